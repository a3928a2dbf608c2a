package wallet

import (
	"context"
	"errors"
	"testing"

	"github.com/gagliardetto/solana-go"
)

func TestSignAndSendApprovalRejected(t *testing.T) {
	key, err := solana.NewRandomPrivateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}

	w := NewKeypairWallet(key, nil).WithApproval(func(*solana.Transaction) bool {
		return false
	})

	_, err = w.SignAndSend(context.Background(), &solana.Transaction{})
	if !errors.Is(err, ErrUserRejected) {
		t.Fatalf("expected ErrUserRejected, got %v", err)
	}
}

func TestPublicKeyMatchesKeypair(t *testing.T) {
	key, err := solana.NewRandomPrivateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}

	w := NewKeypairWallet(key, nil)
	if !w.PublicKey().Equals(key.PublicKey()) {
		t.Errorf("wallet public key mismatch: %s", w.PublicKey())
	}
}
