// Package txbuilder prepares unsigned payment transactions for purchase
// flows. Two implementations exist: a local builder that assembles the
// transfer in-process from catalog pricing, and a remote builder that
// delegates to an external builder service over HTTP.
package txbuilder

import (
	"context"
	"fmt"

	"github.com/gagliardetto/solana-go"

	"github.com/chonkmart/checkout/internal/catalog"
	"github.com/chonkmart/checkout/internal/circuitbreaker"
	"github.com/chonkmart/checkout/internal/purchase"
	"github.com/chonkmart/checkout/internal/rpcutil"
	"github.com/chonkmart/checkout/pkg/solanapay"
)

// LocalBuilder assembles payment transactions in-process: it prices the item
// from the catalog, fetches a recent blockhash, and builds a SOL transfer
// carrying the order reference.
type LocalBuilder struct {
	catalog    catalog.Repository
	chain      *solanapay.Client
	recipient  solana.PublicKey
	memoPrefix string
	breakers   *circuitbreaker.Manager
}

// NewLocalBuilder creates a builder that constructs transactions locally.
// recipient is the merchant wallet receiving payments.
func NewLocalBuilder(repo catalog.Repository, chain *solanapay.Client, recipient solana.PublicKey) (*LocalBuilder, error) {
	if recipient.IsZero() {
		return nil, fmt.Errorf("txbuilder: payment recipient required")
	}
	return &LocalBuilder{
		catalog:   repo,
		chain:     chain,
		recipient: recipient,
	}, nil
}

// WithMemoPrefix sets a memo prefix attached to every payment (e.g. "chonkmart").
func (b *LocalBuilder) WithMemoPrefix(prefix string) *LocalBuilder {
	b.memoPrefix = prefix
	return b
}

// WithBreakers routes blockhash fetches through the circuit breaker manager.
func (b *LocalBuilder) WithBreakers(m *circuitbreaker.Manager) *LocalBuilder {
	b.breakers = m
	return b
}

// Build prices the order, fetches a recent blockhash, and assembles an
// unsigned transfer transaction carrying the order reference.
func (b *LocalBuilder) Build(ctx context.Context, order purchase.OrderDescriptor) (*solana.Transaction, error) {
	item, err := b.catalog.GetItem(ctx, order.ItemID)
	if err != nil {
		return nil, fmt.Errorf("txbuilder: price item %q: %w", order.ItemID, err)
	}
	if item.PriceLamports == 0 {
		return nil, fmt.Errorf("txbuilder: item %q has no price", order.ItemID)
	}

	result, err := b.breakers.Execute(circuitbreaker.ServiceSolanaRPC, func() (interface{}, error) {
		return rpcutil.WithRetry(ctx, func() (solana.Hash, error) {
			return b.chain.LatestBlockhash(ctx)
		})
	})
	if err != nil {
		return nil, fmt.Errorf("txbuilder: fetch blockhash: %w", err)
	}
	blockhash := result.(solana.Hash)

	memo := ""
	if b.memoPrefix != "" {
		memo = b.memoPrefix + ":" + order.ItemID
	}

	tx, err := solanapay.BuildTransferTransaction(solanapay.TransferRequest{
		Payer:     order.Buyer,
		Recipient: b.recipient,
		Reference: order.Reference,
		Lamports:  item.PriceLamports,
		Memo:      memo,
		Blockhash: blockhash,
	})
	if err != nil {
		return nil, fmt.Errorf("txbuilder: assemble transfer: %w", err)
	}
	return tx, nil
}
