package purchase

import (
	"context"
	"sync"

	"github.com/gagliardetto/solana-go"
)

// Registry tracks live purchase flows keyed by their order reference.
// It enforces one active flow per buyer and item: starting a second flow
// for the same pair returns the existing one instead of generating a new
// reference.
type Registry struct {
	deps Deps

	mu    sync.Mutex
	flows map[string]*Flow
	byKey map[string]string // buyer/item -> reference
}

// NewRegistry creates an empty flow registry sharing one set of collaborators.
func NewRegistry(deps Deps) *Registry {
	return &Registry{
		deps:  deps,
		flows: make(map[string]*Flow),
		byKey: make(map[string]string),
	}
}

func flowKey(buyer solana.PublicKey, itemID string) string {
	return buyer.String() + "/" + itemID
}

// Start creates a flow for the buyer and item and runs its prior-purchase
// guard in the background. If a live flow for the pair already exists it is
// returned with created=false and no new flow is made.
func (r *Registry) Start(ctx context.Context, buyer solana.PublicKey, itemID string) (*Flow, bool, error) {
	r.mu.Lock()
	key := flowKey(buyer, itemID)
	if ref, ok := r.byKey[key]; ok {
		if f, ok := r.flows[ref]; ok {
			r.mu.Unlock()
			return f, false, nil
		}
		delete(r.byKey, key)
	}
	r.mu.Unlock()

	f, err := NewFlow(r.deps, buyer, itemID)
	if err != nil {
		return nil, false, err
	}

	r.mu.Lock()
	// Re-check: a racing Start may have won while the flow was being built.
	if ref, ok := r.byKey[key]; ok {
		if existing, ok := r.flows[ref]; ok {
			r.mu.Unlock()
			_ = f.Close()
			return existing, false, nil
		}
	}
	ref := f.Order().Reference.String()
	r.flows[ref] = f
	r.byKey[key] = ref
	r.mu.Unlock()

	go f.Start(context.WithoutCancel(ctx))
	return f, true, nil
}

// Get returns the flow for an order reference.
func (r *Registry) Get(reference string) (*Flow, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	f, ok := r.flows[reference]
	return f, ok
}

// Remove tears down and deregisters the flow for an order reference.
func (r *Registry) Remove(reference string) bool {
	r.mu.Lock()
	f, ok := r.flows[reference]
	if ok {
		delete(r.flows, reference)
		delete(r.byKey, flowKey(f.order.Buyer, f.order.ItemID))
	}
	r.mu.Unlock()

	if !ok {
		return false
	}
	_ = f.Close()
	return true
}

// Len returns the number of live flows.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.flows)
}

// Close tears down every live flow.
func (r *Registry) Close() error {
	r.mu.Lock()
	flows := make([]*Flow, 0, len(r.flows))
	for _, f := range r.flows {
		flows = append(flows, f)
	}
	r.flows = make(map[string]*Flow)
	r.byKey = make(map[string]string)
	r.mu.Unlock()

	for _, f := range flows {
		_ = f.Close()
	}
	return nil
}
