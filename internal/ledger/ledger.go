// Package ledger adapts the on-chain reference lookup for purchase flows,
// adding retry and circuit breaker protection around the raw RPC calls.
package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/gagliardetto/solana-go"

	"github.com/chonkmart/checkout/internal/circuitbreaker"
	"github.com/chonkmart/checkout/internal/rpcutil"
	"github.com/chonkmart/checkout/pkg/solanapay"
)

// lookupOutcome carries a FindReference result through the circuit breaker,
// which only passes interface{} values.
type lookupOutcome struct {
	result   solanapay.ConfirmationResult
	notFound bool
}

// ConfirmationSource wraps a solanapay client with transient-error retry and
// circuit breaker isolation. "Reference not found" is the poller's expected
// steady state and is never counted as a breaker failure.
type ConfirmationSource struct {
	chain    *solanapay.Client
	breakers *circuitbreaker.Manager
}

// NewConfirmationSource creates a protected confirmation source.
func NewConfirmationSource(chain *solanapay.Client, breakers *circuitbreaker.Manager) *ConfirmationSource {
	return &ConfirmationSource{
		chain:    chain,
		breakers: breakers,
	}
}

// FindReference looks up the order reference on-chain. Transient RPC errors
// are retried with backoff; persistent failures trip the Solana RPC breaker.
func (s *ConfirmationSource) FindReference(ctx context.Context, reference solana.PublicKey) (solanapay.ConfirmationResult, error) {
	raw, err := s.breakers.Execute(circuitbreaker.ServiceSolanaRPC, func() (interface{}, error) {
		result, err := rpcutil.WithRetry(ctx, func() (solanapay.ConfirmationResult, error) {
			return s.chain.FindReference(ctx, reference)
		})
		if errors.Is(err, solanapay.ErrReferenceNotFound) {
			return lookupOutcome{notFound: true}, nil
		}
		if err != nil {
			return nil, err
		}
		return lookupOutcome{result: result}, nil
	})
	if err != nil {
		return solanapay.ConfirmationResult{}, fmt.Errorf("ledger: %w", err)
	}

	outcome := raw.(lookupOutcome)
	if outcome.notFound {
		return solanapay.ConfirmationResult{}, solanapay.ErrReferenceNotFound
	}
	return outcome.result, nil
}
