// Package solanapay implements the pieces of the Solana Pay transfer-request
// protocol the checkout flow relies on: building a payment transaction that
// carries a unique order reference, and locating that reference on-chain to
// confirm the payment.
package solanapay

import (
	"errors"
	"fmt"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
)

// ErrReferenceNotFound is returned by FindReference while no transaction
// mentioning the reference key has landed on-chain yet. This is the steady
// state of a confirmation poll loop, not a failure.
var ErrReferenceNotFound = errors.New("solanapay: reference not found")

// ConfirmationResult describes the on-chain transaction found for a reference.
type ConfirmationResult struct {
	Signature solana.Signature           // Transaction signature that mentions the reference
	Slot      uint64                     // Slot the transaction landed in
	Status    rpc.ConfirmationStatusType // processed | confirmed | finalized
	TxErr     error                      // Non-nil when the transaction itself failed on-chain
}

// MeetsCommitment reports whether the observed confirmation status satisfies
// the required commitment level. Unrecognized status values are treated as
// not-yet-confirmed; only the ladder below counts as terminal.
func (r ConfirmationResult) MeetsCommitment(commitment rpc.CommitmentType) bool {
	switch commitment {
	case rpc.CommitmentFinalized:
		return r.Status == rpc.ConfirmationStatusFinalized
	case rpc.CommitmentConfirmed:
		return r.Status == rpc.ConfirmationStatusConfirmed || r.Status == rpc.ConfirmationStatusFinalized
	case rpc.CommitmentProcessed:
		return r.Status == rpc.ConfirmationStatusProcessed ||
			r.Status == rpc.ConfirmationStatusConfirmed ||
			r.Status == rpc.ConfirmationStatusFinalized
	default:
		return false
	}
}

// ParseCommitment converts a config string into an rpc commitment type.
func ParseCommitment(s string) (rpc.CommitmentType, error) {
	switch s {
	case "processed":
		return rpc.CommitmentProcessed, nil
	case "confirmed", "":
		return rpc.CommitmentConfirmed, nil
	case "finalized":
		return rpc.CommitmentFinalized, nil
	default:
		return "", fmt.Errorf("solanapay: unknown commitment %q", s)
	}
}
