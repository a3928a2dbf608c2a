package solanapay

import (
	"context"
	"fmt"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"

	"github.com/chonkmart/checkout/internal/metrics"
)

// Client looks up order references against a Solana RPC endpoint.
type Client struct {
	rpcClient *rpc.Client
	metrics   *metrics.Metrics // Optional: Prometheus metrics collector
	network   string           // Network identifier for metrics (mainnet-beta, devnet, etc.)
}

// NewClient creates a reference-lookup client for the given RPC endpoint.
func NewClient(rpcURL string) (*Client, error) {
	if rpcURL == "" {
		return nil, fmt.Errorf("solanapay: rpc url required")
	}
	return &Client{rpcClient: rpc.New(rpcURL)}, nil
}

// NewClientWithRPC wraps an existing RPC client (used by tests and shared pools).
func NewClientWithRPC(rpcClient *rpc.Client) *Client {
	return &Client{rpcClient: rpcClient}
}

// WithMetrics adds metrics collection to the client.
func (c *Client) WithMetrics(m *metrics.Metrics, network string) *Client {
	c.metrics = m
	c.network = network
	return c
}

// RPCClient returns the underlying RPC client for direct access.
func (c *Client) RPCClient() *rpc.Client {
	return c.rpcClient
}

// FindReference looks for a transaction that mentions the reference key.
// Returns ErrReferenceNotFound while nothing has landed on-chain yet; any
// other error is a genuine lookup failure. Reference keys are single-use,
// so at most one transaction can ever match.
func (c *Client) FindReference(ctx context.Context, reference solana.PublicKey) (ConfirmationResult, error) {
	limit := 1

	start := time.Now()
	sigs, err := c.rpcClient.GetSignaturesForAddressWithOpts(ctx, reference, &rpc.GetSignaturesForAddressOpts{
		Limit: &limit,
	})
	c.metrics.ObserveRPCCall("GetSignaturesForAddress", c.network, time.Since(start), err)
	if err != nil {
		return ConfirmationResult{}, fmt.Errorf("solanapay: get signatures for reference: %w", err)
	}

	if len(sigs) == 0 || sigs[0] == nil {
		return ConfirmationResult{}, ErrReferenceNotFound
	}

	sig := sigs[0]
	result := ConfirmationResult{
		Signature: sig.Signature,
		Slot:      sig.Slot,
		Status:    sig.ConfirmationStatus,
	}
	if sig.Err != nil {
		result.TxErr = fmt.Errorf("solanapay: transaction failed on-chain: %v", sig.Err)
	}
	return result, nil
}

// LatestBlockhash fetches a recent blockhash for transaction building.
func (c *Client) LatestBlockhash(ctx context.Context) (solana.Hash, error) {
	start := time.Now()
	out, err := c.rpcClient.GetLatestBlockhash(ctx, rpc.CommitmentFinalized)
	c.metrics.ObserveRPCCall("GetLatestBlockhash", c.network, time.Since(start), err)
	if err != nil {
		return solana.Hash{}, fmt.Errorf("solanapay: get latest blockhash: %w", err)
	}
	return out.Value.Blockhash, nil
}
