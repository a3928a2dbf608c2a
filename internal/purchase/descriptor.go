package purchase

import (
	"errors"

	"github.com/gagliardetto/solana-go"
)

// ErrWalletNotConnected is returned when a flow is created without a resolved
// buyer identity. The flow must not start until a wallet key is available.
var ErrWalletNotConnected = errors.New("purchase: wallet identity required")

// ErrMissingItem is returned when a flow is created without an item ID.
var ErrMissingItem = errors.New("purchase: item id required")

// OrderDescriptor identifies one purchase attempt. It is immutable and lives
// for the duration of the attempt; a retry after failure reuses it, while a
// fresh flow instance generates a new one.
//
// The JSON field names match the transaction builder wire contract.
type OrderDescriptor struct {
	Buyer     solana.PublicKey `json:"buyer"`
	Reference solana.PublicKey `json:"orderID"`
	ItemID    string           `json:"itemID"`
}

// NewOrderDescriptor derives a fresh order descriptor for a purchase attempt.
// The reference is a newly generated keypair public key: cryptographically
// unpredictable and never reused, so one payment can only ever satisfy one
// order and the reference cannot be front-run.
func NewOrderDescriptor(buyer solana.PublicKey, itemID string) (OrderDescriptor, error) {
	if buyer.IsZero() {
		return OrderDescriptor{}, ErrWalletNotConnected
	}
	if itemID == "" {
		return OrderDescriptor{}, ErrMissingItem
	}

	return OrderDescriptor{
		Buyer:     buyer,
		Reference: solana.NewWallet().PublicKey(),
		ItemID:    itemID,
	}, nil
}
