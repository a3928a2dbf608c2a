package solanapay

import (
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
)

func TestBuildTransferCarriesReference(t *testing.T) {
	payer := solana.NewWallet().PublicKey()
	recipient := solana.NewWallet().PublicKey()
	reference := solana.NewWallet().PublicKey()

	tx, err := BuildTransferTransaction(TransferRequest{
		Payer:     payer,
		Recipient: recipient,
		Reference: reference,
		Lamports:  1_000_000,
		Blockhash: solana.Hash{1},
	})
	if err != nil {
		t.Fatalf("BuildTransferTransaction error: %v", err)
	}

	if len(tx.Message.Instructions) != 1 {
		t.Fatalf("expected 1 instruction, got %d", len(tx.Message.Instructions))
	}

	found := false
	for _, key := range tx.Message.AccountKeys {
		if key.Equals(reference) {
			found = true
		}
	}
	if !found {
		t.Error("expected reference key in transaction account keys")
	}

	if !tx.Message.AccountKeys[0].Equals(payer) {
		t.Errorf("expected payer as fee payer, got %s", tx.Message.AccountKeys[0])
	}
}

func TestBuildTransferWithMemoAddsInstruction(t *testing.T) {
	tx, err := BuildTransferTransaction(TransferRequest{
		Payer:     solana.NewWallet().PublicKey(),
		Recipient: solana.NewWallet().PublicKey(),
		Reference: solana.NewWallet().PublicKey(),
		Lamports:  500,
		Memo:      "chonkmart:chonky-cat-pack",
		Blockhash: solana.Hash{1},
	})
	if err != nil {
		t.Fatalf("BuildTransferTransaction error: %v", err)
	}
	if len(tx.Message.Instructions) != 2 {
		t.Fatalf("expected transfer + memo instructions, got %d", len(tx.Message.Instructions))
	}
}

func TestBuildTransferValidation(t *testing.T) {
	valid := TransferRequest{
		Payer:     solana.NewWallet().PublicKey(),
		Recipient: solana.NewWallet().PublicKey(),
		Reference: solana.NewWallet().PublicKey(),
		Lamports:  1,
		Blockhash: solana.Hash{1},
	}

	cases := []struct {
		name   string
		mutate func(*TransferRequest)
	}{
		{"missing payer", func(r *TransferRequest) { r.Payer = solana.PublicKey{} }},
		{"missing recipient", func(r *TransferRequest) { r.Recipient = solana.PublicKey{} }},
		{"missing reference", func(r *TransferRequest) { r.Reference = solana.PublicKey{} }},
		{"zero amount", func(r *TransferRequest) { r.Lamports = 0 }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := valid
			tc.mutate(&req)
			if _, err := BuildTransferTransaction(req); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestTransactionBase64RoundTrip(t *testing.T) {
	tx, err := BuildTransferTransaction(TransferRequest{
		Payer:     solana.NewWallet().PublicKey(),
		Recipient: solana.NewWallet().PublicKey(),
		Reference: solana.NewWallet().PublicKey(),
		Lamports:  1_000_000,
		Blockhash: solana.Hash{1},
	})
	if err != nil {
		t.Fatalf("BuildTransferTransaction error: %v", err)
	}

	encoded, err := EncodeTransactionBase64(tx)
	if err != nil {
		t.Fatalf("EncodeTransactionBase64 error: %v", err)
	}
	decoded, err := DecodeTransactionBase64(encoded)
	if err != nil {
		t.Fatalf("DecodeTransactionBase64 error: %v", err)
	}
	if len(decoded.Message.AccountKeys) != len(tx.Message.AccountKeys) {
		t.Error("account keys changed across round trip")
	}

	if _, err := DecodeTransactionBase64("not base64!!"); err == nil {
		t.Error("expected decode error for invalid payload")
	}
}

func TestMeetsCommitment(t *testing.T) {
	cases := []struct {
		status     rpc.ConfirmationStatusType
		commitment rpc.CommitmentType
		want       bool
	}{
		{rpc.ConfirmationStatusProcessed, rpc.CommitmentConfirmed, false},
		{rpc.ConfirmationStatusConfirmed, rpc.CommitmentConfirmed, true},
		{rpc.ConfirmationStatusFinalized, rpc.CommitmentConfirmed, true},
		{rpc.ConfirmationStatusConfirmed, rpc.CommitmentFinalized, false},
		{rpc.ConfirmationStatusFinalized, rpc.CommitmentFinalized, true},
		{rpc.ConfirmationStatusProcessed, rpc.CommitmentProcessed, true},
		// Unrecognized statuses never count as terminal.
		{"mystery", rpc.CommitmentConfirmed, false},
		{rpc.ConfirmationStatusConfirmed, "mystery", false},
	}
	for _, tc := range cases {
		r := ConfirmationResult{Status: tc.status}
		if got := r.MeetsCommitment(tc.commitment); got != tc.want {
			t.Errorf("MeetsCommitment(%s, %s) = %v, want %v", tc.status, tc.commitment, got, tc.want)
		}
	}
}

func TestParseCommitment(t *testing.T) {
	for input, want := range map[string]rpc.CommitmentType{
		"":          rpc.CommitmentConfirmed,
		"confirmed": rpc.CommitmentConfirmed,
		"finalized": rpc.CommitmentFinalized,
		"processed": rpc.CommitmentProcessed,
	} {
		got, err := ParseCommitment(input)
		if err != nil || got != want {
			t.Errorf("ParseCommitment(%q) = %v, %v; want %v", input, got, err, want)
		}
	}
	if _, err := ParseCommitment("recent"); err == nil {
		t.Error("expected error for unknown commitment")
	}
}
