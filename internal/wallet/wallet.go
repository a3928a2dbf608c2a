package wallet

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"

	"github.com/chonkmart/checkout/internal/metrics"
)

// ErrUserRejected is returned when the holder declines to sign a transaction.
// The purchase flow treats it as a recoverable failure: state stays Initial
// and the same order descriptor may be resubmitted.
var ErrUserRejected = errors.New("wallet: signing rejected")

// KeypairWallet signs and broadcasts transactions with a locally held keypair.
type KeypairWallet struct {
	key           solana.PrivateKey
	rpcClient     *rpc.Client
	skipPreflight bool
	metrics       *metrics.Metrics
	network       string

	// approve is consulted before signing; nil means always approve.
	// Swappable so tests and interactive frontends can model rejection.
	approve func(tx *solana.Transaction) bool
}

// NewKeypairWallet creates a wallet around a private key and RPC client.
func NewKeypairWallet(key solana.PrivateKey, rpcClient *rpc.Client) *KeypairWallet {
	return &KeypairWallet{
		key:       key,
		rpcClient: rpcClient,
	}
}

// WithMetrics adds metrics collection to the wallet.
func (w *KeypairWallet) WithMetrics(m *metrics.Metrics, network string) *KeypairWallet {
	w.metrics = m
	w.network = network
	return w
}

// WithSkipPreflight disables preflight simulation on broadcast.
func (w *KeypairWallet) WithSkipPreflight(skip bool) *KeypairWallet {
	w.skipPreflight = skip
	return w
}

// WithApproval installs an approval hook consulted before signing.
func (w *KeypairWallet) WithApproval(approve func(tx *solana.Transaction) bool) *KeypairWallet {
	w.approve = approve
	return w
}

// PublicKey returns the wallet identity key.
func (w *KeypairWallet) PublicKey() solana.PublicKey {
	return w.key.PublicKey()
}

// SignAndSend signs the transaction with the wallet key and broadcasts it.
// Returns ErrUserRejected when the approval hook declines.
func (w *KeypairWallet) SignAndSend(ctx context.Context, tx *solana.Transaction) (solana.Signature, error) {
	if w.approve != nil && !w.approve(tx) {
		return solana.Signature{}, ErrUserRejected
	}

	if _, err := tx.Sign(func(key solana.PublicKey) *solana.PrivateKey {
		if key.Equals(w.key.PublicKey()) {
			return &w.key
		}
		return nil
	}); err != nil {
		return solana.Signature{}, fmt.Errorf("wallet: sign transaction: %w", err)
	}

	opts := rpc.TransactionOpts{
		SkipPreflight:       w.skipPreflight,
		PreflightCommitment: rpc.CommitmentConfirmed,
	}

	start := time.Now()
	sig, err := w.rpcClient.SendTransactionWithOpts(ctx, tx, opts)
	w.metrics.ObserveRPCCall("SendTransaction", w.network, time.Since(start), err)
	if err != nil {
		return solana.Signature{}, fmt.Errorf("wallet: broadcast transaction: %w", err)
	}
	return sig, nil
}
