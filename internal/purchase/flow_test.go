package purchase

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/rs/zerolog"

	"github.com/chonkmart/checkout/internal/catalog"
	"github.com/chonkmart/checkout/internal/wallet"
	"github.com/chonkmart/checkout/pkg/solanapay"
)

type stubBuilder struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (b *stubBuilder) Build(_ context.Context, _ OrderDescriptor) (*solana.Transaction, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls++
	if b.err != nil {
		return nil, b.err
	}
	return &solana.Transaction{}, nil
}

func (b *stubBuilder) callCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.calls
}

type stubWallet struct {
	key solana.PublicKey
	err error
}

func (w *stubWallet) PublicKey() solana.PublicKey {
	return w.key
}

func (w *stubWallet) SignAndSend(_ context.Context, _ *solana.Transaction) (solana.Signature, error) {
	if w.err != nil {
		return solana.Signature{}, w.err
	}
	return solana.Signature{1, 2, 3}, nil
}

// lookupStep is one scripted FindReference response.
type lookupStep struct {
	result solanapay.ConfirmationResult
	err    error
}

// stubLedger replays a scripted sequence of lookup responses; the final step
// repeats once the script is exhausted.
type stubLedger struct {
	mu    sync.Mutex
	steps []lookupStep
	calls int
}

func (l *stubLedger) FindReference(_ context.Context, _ solana.PublicKey) (solanapay.ConfirmationResult, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	idx := l.calls
	l.calls++
	if idx >= len(l.steps) {
		idx = len(l.steps) - 1
	}
	step := l.steps[idx]
	return step.result, step.err
}

func (l *stubLedger) callCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.calls
}

func notFound() lookupStep {
	return lookupStep{err: solanapay.ErrReferenceNotFound}
}

func confirmed() lookupStep {
	return lookupStep{result: solanapay.ConfirmationResult{
		Signature: solana.Signature{9},
		Slot:      42,
		Status:    rpc.ConfirmationStatusConfirmed,
	}}
}

func finalized() lookupStep {
	return lookupStep{result: solanapay.ConfirmationResult{
		Signature: solana.Signature{9},
		Slot:      42,
		Status:    rpc.ConfirmationStatusFinalized,
	}}
}

func testItem() catalog.Item {
	return catalog.Item{
		ID:            "chonky-cat-pack",
		Name:          "Chonky Cat Pack",
		ContentHash:   "bafybeigdyrkot",
		Filename:      "chonky-cat-pack.zip",
		PriceLamports: 1_000_000,
		Active:        true,
	}
}

type testEnv struct {
	builder *stubBuilder
	wallet  *stubWallet
	ledger  *stubLedger
	repo    *catalog.MemoryRepository
	deps    Deps
}

func newTestEnv(steps ...lookupStep) *testEnv {
	if len(steps) == 0 {
		steps = []lookupStep{notFound()}
	}

	env := &testEnv{
		builder: &stubBuilder{},
		wallet:  &stubWallet{key: solana.NewWallet().PublicKey()},
		ledger:  &stubLedger{steps: steps},
		repo:    catalog.NewMemoryRepository([]catalog.Item{testItem()}),
	}
	env.deps = Deps{
		Builder:      env.builder,
		Wallet:       env.wallet,
		Ledger:       env.ledger,
		Orders:       env.repo,
		Logger:       zerolog.Nop(),
		PollInterval: 5 * time.Millisecond,
		Commitment:   rpc.CommitmentConfirmed,
	}
	return env
}

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestBuyConfirmsAndFulfills(t *testing.T) {
	env := newTestEnv(notFound(), notFound(), confirmed())
	flow, err := NewFlow(env.deps, env.wallet.key, "chonky-cat-pack")
	if err != nil {
		t.Fatalf("NewFlow error: %v", err)
	}
	defer flow.Close()

	if snap := flow.Snapshot(); snap.State != StateInitial || snap.Busy {
		t.Fatalf("unexpected initial snapshot: %+v", snap)
	}

	if err := flow.Buy(context.Background()); err != nil {
		t.Fatalf("Buy error: %v", err)
	}
	if snap := flow.Snapshot(); snap.State != StateSubmitted || !snap.Busy {
		t.Fatalf("expected busy submitted state, got %+v", snap)
	}

	waitFor(t, "paid state", func() bool {
		snap := flow.Snapshot()
		return snap.State == StatePaid && !snap.Busy
	})

	snap := flow.Snapshot()
	if snap.Via != ViaPayment {
		t.Errorf("expected via payment, got %q", snap.Via)
	}
	if snap.Item == nil || snap.Item.ContentHash != "bafybeigdyrkot" {
		t.Errorf("expected item metadata resolved, got %+v", snap.Item)
	}
	if snap.Error != "" {
		t.Errorf("unexpected error in snapshot: %s", snap.Error)
	}

	if got := env.builder.callCount(); got != 1 {
		t.Errorf("expected 1 builder call, got %d", got)
	}
	if got := env.repo.OrderCount(); got != 1 {
		t.Errorf("expected exactly 1 recorded order, got %d", got)
	}

	owned, err := env.repo.HasPurchased(context.Background(), env.wallet.key.String(), "chonky-cat-pack")
	if err != nil || !owned {
		t.Errorf("expected recorded purchase for buyer, owned=%v err=%v", owned, err)
	}
}

func TestPriorPurchaseShortCircuits(t *testing.T) {
	env := newTestEnv()
	seedRef := solana.NewWallet().PublicKey().String()
	if err := env.repo.RecordOrder(context.Background(), catalog.Order{
		Buyer:     env.wallet.key.String(),
		Reference: seedRef,
		ItemID:    "chonky-cat-pack",
	}); err != nil {
		t.Fatalf("seed order: %v", err)
	}

	flow, err := NewFlow(env.deps, env.wallet.key, "chonky-cat-pack")
	if err != nil {
		t.Fatalf("NewFlow error: %v", err)
	}
	defer flow.Close()

	flow.Start(context.Background())

	snap := flow.Snapshot()
	if snap.State != StatePaid {
		t.Fatalf("expected paid state, got %q", snap.State)
	}
	if snap.Via != ViaPriorPurchase {
		t.Errorf("expected via prior_purchase, got %q", snap.Via)
	}
	if snap.Item == nil {
		t.Error("expected item metadata resolved")
	}

	// No transaction activity and no second fulfillment record.
	if got := env.builder.callCount(); got != 0 {
		t.Errorf("expected no builder calls, got %d", got)
	}
	if got := env.ledger.callCount(); got != 0 {
		t.Errorf("expected no ledger lookups, got %d", got)
	}
	if got := env.repo.OrderCount(); got != 1 {
		t.Errorf("expected order count to stay 1, got %d", got)
	}
}

func TestGuardWithoutPriorPurchaseLeavesInitial(t *testing.T) {
	env := newTestEnv(confirmed())
	flow, err := NewFlow(env.deps, env.wallet.key, "chonky-cat-pack")
	if err != nil {
		t.Fatalf("NewFlow error: %v", err)
	}
	defer flow.Close()

	// Guard against an item the buyer doesn't own: state must stay Initial.
	flow.Start(context.Background())
	if snap := flow.Snapshot(); snap.State != StateInitial {
		t.Fatalf("expected initial state after guard, got %q", snap.State)
	}

	if err := flow.Buy(context.Background()); err != nil {
		t.Fatalf("Buy error: %v", err)
	}
	waitFor(t, "paid state", func() bool {
		return flow.Snapshot().State == StatePaid
	})
}

func TestSigningRejectedKeepsInitial(t *testing.T) {
	env := newTestEnv()
	env.wallet.err = wallet.ErrUserRejected

	flow, err := NewFlow(env.deps, env.wallet.key, "chonky-cat-pack")
	if err != nil {
		t.Fatalf("NewFlow error: %v", err)
	}
	defer flow.Close()

	err = flow.Buy(context.Background())
	if !errors.Is(err, wallet.ErrUserRejected) {
		t.Fatalf("expected ErrUserRejected, got %v", err)
	}

	snap := flow.Snapshot()
	if snap.State != StateInitial {
		t.Errorf("expected state to stay initial, got %q", snap.State)
	}
	if snap.Busy {
		t.Error("expected busy cleared after rejection")
	}
	if snap.Error == "" {
		t.Error("expected error surfaced in snapshot")
	}

	// The poller must not have started.
	time.Sleep(20 * time.Millisecond)
	if got := env.ledger.callCount(); got != 0 {
		t.Errorf("expected no ledger lookups after rejection, got %d", got)
	}

	// The same flow can retry with the same order descriptor.
	env.wallet.err = nil
	before := flow.Order()
	if err := flow.Buy(context.Background()); err != nil {
		t.Fatalf("retry Buy error: %v", err)
	}
	if flow.Order() != before {
		t.Error("expected retry to reuse the same order descriptor")
	}
}

func TestBuilderFailureKeepsInitial(t *testing.T) {
	env := newTestEnv()
	env.builder.err = errors.New("builder down")

	flow, err := NewFlow(env.deps, env.wallet.key, "chonky-cat-pack")
	if err != nil {
		t.Fatalf("NewFlow error: %v", err)
	}
	defer flow.Close()

	err = flow.Buy(context.Background())
	if !errors.Is(err, ErrBuildFailed) {
		t.Fatalf("expected ErrBuildFailed, got %v", err)
	}
	if snap := flow.Snapshot(); snap.State != StateInitial || snap.Busy {
		t.Fatalf("expected idle initial state, got %+v", snap)
	}
}

func TestBuyRejectedAfterSubmission(t *testing.T) {
	env := newTestEnv(notFound())
	flow, err := NewFlow(env.deps, env.wallet.key, "chonky-cat-pack")
	if err != nil {
		t.Fatalf("NewFlow error: %v", err)
	}
	defer flow.Close()

	if err := flow.Buy(context.Background()); err != nil {
		t.Fatalf("Buy error: %v", err)
	}
	if err := flow.Buy(context.Background()); !errors.Is(err, ErrNotInitial) {
		t.Fatalf("expected ErrNotInitial on second Buy, got %v", err)
	}
}

func TestTransientLookupErrorThenConfirmed(t *testing.T) {
	env := newTestEnv(
		lookupStep{err: errors.New("rpc timeout")},
		notFound(),
		confirmed(),
	)
	flow, err := NewFlow(env.deps, env.wallet.key, "chonky-cat-pack")
	if err != nil {
		t.Fatalf("NewFlow error: %v", err)
	}
	defer flow.Close()

	if err := flow.Buy(context.Background()); err != nil {
		t.Fatalf("Buy error: %v", err)
	}

	waitFor(t, "paid state after transient error", func() bool {
		return flow.Snapshot().State == StatePaid
	})
	if got := env.repo.OrderCount(); got != 1 {
		t.Errorf("expected 1 recorded order, got %d", got)
	}
}

func TestFailedTransactionDoesNotComplete(t *testing.T) {
	env := newTestEnv(
		lookupStep{result: solanapay.ConfirmationResult{
			Signature: solana.Signature{7},
			Status:    rpc.ConfirmationStatusConfirmed,
			TxErr:     errors.New("InstructionError"),
		}},
		confirmed(),
	)
	flow, err := NewFlow(env.deps, env.wallet.key, "chonky-cat-pack")
	if err != nil {
		t.Fatalf("NewFlow error: %v", err)
	}
	defer flow.Close()

	if err := flow.Buy(context.Background()); err != nil {
		t.Fatalf("Buy error: %v", err)
	}

	// The failed transaction is skipped; the later clean lookup completes.
	waitFor(t, "paid state", func() bool {
		return flow.Snapshot().State == StatePaid
	})
}

func TestConfirmationBelowCommitmentKeepsPolling(t *testing.T) {
	env := newTestEnv(confirmed(), confirmed(), finalized())
	env.deps.Commitment = rpc.CommitmentFinalized

	flow, err := NewFlow(env.deps, env.wallet.key, "chonky-cat-pack")
	if err != nil {
		t.Fatalf("NewFlow error: %v", err)
	}
	defer flow.Close()

	if err := flow.Buy(context.Background()); err != nil {
		t.Fatalf("Buy error: %v", err)
	}

	waitFor(t, "finalized confirmation", func() bool {
		return flow.Snapshot().State == StatePaid
	})
	if got := env.ledger.callCount(); got < 3 {
		t.Errorf("expected at least 3 lookups before finalization, got %d", got)
	}
}

func TestPaidIsTerminal(t *testing.T) {
	env := newTestEnv(confirmed())
	flow, err := NewFlow(env.deps, env.wallet.key, "chonky-cat-pack")
	if err != nil {
		t.Fatalf("NewFlow error: %v", err)
	}
	defer flow.Close()

	if err := flow.Buy(context.Background()); err != nil {
		t.Fatalf("Buy error: %v", err)
	}
	waitFor(t, "paid state", func() bool {
		return flow.Snapshot().State == StatePaid && !flow.Snapshot().Busy
	})

	// Give late poll cycles a chance to misfire; fulfillment must stay single.
	time.Sleep(30 * time.Millisecond)
	if got := env.repo.OrderCount(); got != 1 {
		t.Errorf("expected exactly 1 recorded order, got %d", got)
	}

	if err := flow.Buy(context.Background()); !errors.Is(err, ErrNotInitial) {
		t.Fatalf("expected ErrNotInitial after payment, got %v", err)
	}
}

func TestCloseStopsPoller(t *testing.T) {
	env := newTestEnv(notFound())
	flow, err := NewFlow(env.deps, env.wallet.key, "chonky-cat-pack")
	if err != nil {
		t.Fatalf("NewFlow error: %v", err)
	}

	if err := flow.Buy(context.Background()); err != nil {
		t.Fatalf("Buy error: %v", err)
	}
	waitFor(t, "first lookup", func() bool {
		return env.ledger.callCount() > 0
	})

	if err := flow.Close(); err != nil {
		t.Fatalf("Close error: %v", err)
	}

	calls := env.ledger.callCount()
	time.Sleep(30 * time.Millisecond)
	if got := env.ledger.callCount(); got != calls {
		t.Errorf("expected no lookups after Close, got %d more", got-calls)
	}

	// The update stream is closed.
	waitFor(t, "updates channel drained", func() bool {
		select {
		case _, ok := <-flow.Updates():
			return !ok
		default:
			return false
		}
	})

	if err := flow.Buy(context.Background()); !errors.Is(err, ErrFlowClosed) {
		t.Fatalf("expected ErrFlowClosed, got %v", err)
	}
}

func TestUpdatesStreamProgression(t *testing.T) {
	env := newTestEnv(confirmed())
	env.deps.UpdateBuffer = 32

	flow, err := NewFlow(env.deps, env.wallet.key, "chonky-cat-pack")
	if err != nil {
		t.Fatalf("NewFlow error: %v", err)
	}
	defer flow.Close()

	if err := flow.Buy(context.Background()); err != nil {
		t.Fatalf("Buy error: %v", err)
	}
	waitFor(t, "paid state", func() bool {
		snap := flow.Snapshot()
		return snap.State == StatePaid && !snap.Busy
	})

	var states []State
	var sawBusySubmitted, sawIdlePaid bool
	for {
		select {
		case u := <-flow.Updates():
			states = append(states, u.State)
			if u.State == StateSubmitted && u.Busy {
				sawBusySubmitted = true
			}
			if u.State == StatePaid && !u.Busy {
				sawIdlePaid = true
			}
			continue
		default:
		}
		break
	}

	if !sawBusySubmitted {
		t.Errorf("expected a busy submitted update, saw %v", states)
	}
	if !sawIdlePaid {
		t.Errorf("expected an idle paid update, saw %v", states)
	}
	// Monotonic: no update may move backwards.
	rank := map[State]int{StateInitial: 0, StateSubmitted: 1, StatePaid: 2}
	for i := 1; i < len(states); i++ {
		if rank[states[i]] < rank[states[i-1]] {
			t.Fatalf("state regressed: %v", states)
		}
	}
}

func TestNewFlowValidation(t *testing.T) {
	env := newTestEnv()

	if _, err := NewFlow(env.deps, solana.PublicKey{}, "chonky-cat-pack"); !errors.Is(err, ErrWalletNotConnected) {
		t.Errorf("expected ErrWalletNotConnected, got %v", err)
	}
	if _, err := NewFlow(env.deps, env.wallet.key, ""); !errors.Is(err, ErrMissingItem) {
		t.Errorf("expected ErrMissingItem, got %v", err)
	}
}

// ctxAwareRepo wraps the memory repository and honors context cancellation
// the way the database backends do.
type ctxAwareRepo struct {
	*catalog.MemoryRepository
}

func (r *ctxAwareRepo) RecordOrder(ctx context.Context, order catalog.Order) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return r.MemoryRepository.RecordOrder(ctx, order)
}

func (r *ctxAwareRepo) GetItem(ctx context.Context, id string) (catalog.Item, error) {
	if err := ctx.Err(); err != nil {
		return catalog.Item{}, err
	}
	return r.MemoryRepository.GetItem(ctx, id)
}

func (r *ctxAwareRepo) HasPurchased(ctx context.Context, buyer, itemID string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	return r.MemoryRepository.HasPurchased(ctx, buyer, itemID)
}

func TestFulfillmentOutlivesPollerContext(t *testing.T) {
	env := newTestEnv(notFound(), confirmed())
	env.deps.Orders = &ctxAwareRepo{MemoryRepository: env.repo}

	flow, err := NewFlow(env.deps, env.wallet.key, "chonky-cat-pack")
	if err != nil {
		t.Fatalf("NewFlow error: %v", err)
	}
	defer flow.Close()

	if err := flow.Buy(context.Background()); err != nil {
		t.Fatalf("Buy error: %v", err)
	}

	// Confirming the payment stops the poller; the fulfillment record and
	// item metadata must still land even though the repository checks ctx.
	waitFor(t, "paid state", func() bool {
		snap := flow.Snapshot()
		return snap.State == StatePaid && !snap.Busy
	})

	snap := flow.Snapshot()
	if snap.Error != "" {
		t.Errorf("unexpected error in snapshot: %s", snap.Error)
	}
	if snap.Item == nil {
		t.Error("expected item metadata resolved")
	}
	if got := env.repo.OrderCount(); got != 1 {
		t.Errorf("expected 1 recorded order, got %d", got)
	}
}

// failingGuardRepo errors on ownership checks while the rest of the
// repository keeps working.
type failingGuardRepo struct {
	*catalog.MemoryRepository
	guardErr error
}

func (r *failingGuardRepo) HasPurchased(_ context.Context, _, _ string) (bool, error) {
	return false, r.guardErr
}

func TestGuardFailureIsFailOpen(t *testing.T) {
	env := newTestEnv(confirmed())
	env.deps.Orders = &failingGuardRepo{
		MemoryRepository: env.repo,
		guardErr:         errors.New("ledger unavailable"),
	}

	flow, err := NewFlow(env.deps, env.wallet.key, "chonky-cat-pack")
	if err != nil {
		t.Fatalf("NewFlow error: %v", err)
	}
	defer flow.Close()

	// A failed ownership check is treated as "not purchased": the flow stays
	// in Initial and the error does not leak into the snapshot.
	flow.Start(context.Background())

	snap := flow.Snapshot()
	if snap.State != StateInitial {
		t.Fatalf("expected initial state after guard failure, got %q", snap.State)
	}
	if snap.Error != "" {
		t.Errorf("guard failure must not surface in snapshot, got %q", snap.Error)
	}

	// The buyer can still pay.
	if err := flow.Buy(context.Background()); err != nil {
		t.Fatalf("Buy error: %v", err)
	}
	waitFor(t, "paid state", func() bool {
		return flow.Snapshot().State == StatePaid
	})
}

func TestOrderDescriptorsAreUnique(t *testing.T) {
	buyer := solana.NewWallet().PublicKey()
	seen := make(map[string]bool)
	for i := 0; i < 32; i++ {
		order, err := NewOrderDescriptor(buyer, "chonky-cat-pack")
		if err != nil {
			t.Fatalf("NewOrderDescriptor error: %v", err)
		}
		if order.Reference.IsZero() {
			t.Fatal("reference must not be zero")
		}
		ref := order.Reference.String()
		if seen[ref] {
			t.Fatalf("duplicate reference generated: %s", ref)
		}
		seen[ref] = true
	}
}
