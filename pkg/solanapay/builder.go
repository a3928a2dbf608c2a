package solanapay

import (
	"encoding/base64"
	"errors"
	"fmt"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/memo"
	"github.com/gagliardetto/solana-go/programs/system"
)

// TransferRequest contains the parameters needed to build a payment transaction.
type TransferRequest struct {
	Payer     solana.PublicKey // Buyer wallet (signs and pays)
	Recipient solana.PublicKey // Merchant wallet receiving the payment
	Reference solana.PublicKey // Order reference key, attached to the transfer for later lookup
	Lamports  uint64           // Amount in lamports
	Memo      string           // Optional payment memo
	Blockhash solana.Hash      // Recent blockhash
}

// TransferResponse carries the serialized unsigned transaction.
type TransferResponse struct {
	Transaction string `json:"transaction"` // Base64-encoded unsigned transaction
	Blockhash   string `json:"blockhash"`   // Recent blockhash used
}

// BuildTransferTransaction constructs an unsigned SOL transfer carrying the
// order reference. The reference public key is appended to the transfer
// instruction's account list as a non-signer read-only key, which is enough
// for getSignaturesForAddress to find the transaction later.
//
// The transaction is NOT signed; the wallet provider signs and broadcasts it.
func BuildTransferTransaction(req TransferRequest) (*solana.Transaction, error) {
	if req.Payer.IsZero() {
		return nil, errors.New("solanapay: payer required")
	}
	if req.Recipient.IsZero() {
		return nil, errors.New("solanapay: recipient required")
	}
	if req.Reference.IsZero() {
		return nil, errors.New("solanapay: reference required")
	}
	if req.Lamports == 0 {
		return nil, errors.New("solanapay: amount must be positive")
	}

	transfer := system.NewTransferInstruction(
		req.Lamports,
		req.Payer,
		req.Recipient,
	).Build()

	data, err := transfer.Data()
	if err != nil {
		return nil, fmt.Errorf("solanapay: encode transfer data: %w", err)
	}

	accounts := solana.AccountMetaSlice(transfer.Accounts())
	accounts = append(accounts, solana.Meta(req.Reference))

	instructions := []solana.Instruction{
		solana.NewInstruction(system.ProgramID, accounts, data),
	}

	if req.Memo != "" {
		instructions = append(instructions,
			memo.NewMemoInstruction([]byte(req.Memo), req.Payer).Build(),
		)
	}

	tx, err := solana.NewTransaction(
		instructions,
		req.Blockhash,
		solana.TransactionPayer(req.Payer),
	)
	if err != nil {
		return nil, fmt.Errorf("solanapay: build transaction: %w", err)
	}

	return tx, nil
}

// EncodeTransactionBase64 serializes a transaction to the wire encoding used
// between the builder service and wallet clients.
func EncodeTransactionBase64(tx *solana.Transaction) (string, error) {
	txBytes, err := tx.MarshalBinary()
	if err != nil {
		return "", fmt.Errorf("solanapay: serialize transaction: %w", err)
	}
	return base64.StdEncoding.EncodeToString(txBytes), nil
}

// DecodeTransactionBase64 deserializes a base64 transaction payload.
func DecodeTransactionBase64(payload string) (*solana.Transaction, error) {
	tx, err := solana.TransactionFromBase64(payload)
	if err != nil {
		return nil, fmt.Errorf("solanapay: decode transaction: %w", err)
	}
	return tx, nil
}
