package txbuilder

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gagliardetto/solana-go"

	"github.com/chonkmart/checkout/internal/circuitbreaker"
	"github.com/chonkmart/checkout/internal/httputil"
	"github.com/chonkmart/checkout/internal/purchase"
	"github.com/chonkmart/checkout/pkg/solanapay"
)

// RemoteBuilder requests prepared transactions from an external builder
// service. The service receives the order descriptor as JSON and returns the
// unsigned transaction in base64.
type RemoteBuilder struct {
	url      string
	client   *http.Client
	breakers *circuitbreaker.Manager
}

// NewRemoteBuilder creates a builder client for the given endpoint.
func NewRemoteBuilder(url string, timeout time.Duration) (*RemoteBuilder, error) {
	if url == "" {
		return nil, fmt.Errorf("txbuilder: builder url required")
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &RemoteBuilder{
		url:    url,
		client: httputil.NewClient(timeout),
	}, nil
}

// WithBreakers routes builder calls through the circuit breaker manager.
func (b *RemoteBuilder) WithBreakers(m *circuitbreaker.Manager) *RemoteBuilder {
	b.breakers = m
	return b
}

// WithHTTPClient swaps the underlying HTTP client (used by tests).
func (b *RemoteBuilder) WithHTTPClient(client *http.Client) *RemoteBuilder {
	b.client = client
	return b
}

// Build posts the order descriptor to the builder service and decodes the
// returned transaction.
func (b *RemoteBuilder) Build(ctx context.Context, order purchase.OrderDescriptor) (*solana.Transaction, error) {
	result, err := b.breakers.Execute(circuitbreaker.ServiceBuilder, func() (interface{}, error) {
		return b.request(ctx, order)
	})
	if err != nil {
		return nil, err
	}
	return result.(*solana.Transaction), nil
}

func (b *RemoteBuilder) request(ctx context.Context, order purchase.OrderDescriptor) (*solana.Transaction, error) {
	body, err := json.Marshal(order)
	if err != nil {
		return nil, fmt.Errorf("txbuilder: encode order: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("txbuilder: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := b.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("txbuilder: call builder service: %w", err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("txbuilder: read builder response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("txbuilder: builder service returned %d: %s", resp.StatusCode, truncate(payload, 200))
	}

	var out solanapay.TransferResponse
	if err := json.Unmarshal(payload, &out); err != nil {
		return nil, fmt.Errorf("txbuilder: decode builder response: %w", err)
	}
	if out.Transaction == "" {
		return nil, fmt.Errorf("txbuilder: builder response missing transaction")
	}

	tx, err := solanapay.DecodeTransactionBase64(out.Transaction)
	if err != nil {
		return nil, fmt.Errorf("txbuilder: %w", err)
	}
	return tx, nil
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
