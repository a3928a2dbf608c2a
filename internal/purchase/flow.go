package purchase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/rs/zerolog"

	"github.com/chonkmart/checkout/internal/catalog"
	"github.com/chonkmart/checkout/internal/logger"
	"github.com/chonkmart/checkout/internal/metrics"
	"github.com/chonkmart/checkout/internal/wallet"
	"github.com/chonkmart/checkout/pkg/solanapay"
)

// ErrFlowClosed is returned when operating on a torn-down flow.
var ErrFlowClosed = errors.New("purchase: flow closed")

// ErrNotInitial is returned when a submission is attempted after the flow
// already left the initial state.
var ErrNotInitial = errors.New("purchase: flow already submitted or paid")

// ErrBusy is returned when a submission is already in flight.
var ErrBusy = errors.New("purchase: submission in flight")

// ErrBuildFailed wraps transaction builder failures so callers can map them
// separately from broadcast failures.
var ErrBuildFailed = errors.New("purchase: build transaction failed")

// TransactionBuilder prepares a payment transaction for an order descriptor.
type TransactionBuilder interface {
	Build(ctx context.Context, order OrderDescriptor) (*solana.Transaction, error)
}

// Wallet supplies the buyer identity and signs/broadcasts transactions.
type Wallet interface {
	PublicKey() solana.PublicKey
	SignAndSend(ctx context.Context, tx *solana.Transaction) (solana.Signature, error)
}

// ConfirmationSource answers whether a payment carrying the reference landed
// on-chain. Implementations return solanapay.ErrReferenceNotFound while the
// transaction is still propagating.
type ConfirmationSource interface {
	FindReference(ctx context.Context, reference solana.PublicKey) (solanapay.ConfirmationResult, error)
}

// Deps bundles the flow's collaborators.
type Deps struct {
	Builder TransactionBuilder
	Wallet  Wallet
	Ledger  ConfirmationSource
	Orders  catalog.Repository

	Logger  zerolog.Logger
	Metrics *metrics.Metrics

	PollInterval time.Duration      // Confirmation poll cadence (default: 1s)
	Commitment   rpc.CommitmentType // Required confirmation depth (default: confirmed)
	UpdateBuffer int                // State update channel capacity (default: 16)
}

// Flow drives one purchase attempt through Initial -> Submitted -> Paid.
// It owns its order descriptor, state, and poller; all mutation happens
// under the flow mutex in response to explicit events, so the Paid
// transition and its side effects fire exactly once no matter how many
// poll cycles observe the confirmation.
type Flow struct {
	deps  Deps
	order OrderDescriptor

	mu          sync.Mutex
	state       State
	busy        bool
	lastErr     error
	item        *catalog.Item
	paidVia     PaidVia
	signature   solana.Signature
	submittedAt time.Time
	closed      bool

	updates    chan Update
	pollCancel context.CancelFunc
	pollDone   chan struct{}
}

// NewFlow creates a purchase flow for the given buyer and item.
// The order descriptor is generated once here and cached for the flow's
// lifetime; retrying a failed submission reuses it.
func NewFlow(deps Deps, buyer solana.PublicKey, itemID string) (*Flow, error) {
	order, err := NewOrderDescriptor(buyer, itemID)
	if err != nil {
		return nil, err
	}

	if deps.PollInterval <= 0 {
		deps.PollInterval = time.Second
	}
	if deps.Commitment == "" {
		deps.Commitment = rpc.CommitmentConfirmed
	}
	if deps.UpdateBuffer <= 0 {
		deps.UpdateBuffer = 16
	}

	f := &Flow{
		deps:    deps,
		order:   order,
		state:   StateInitial,
		updates: make(chan Update, deps.UpdateBuffer),
	}

	if deps.Metrics != nil {
		deps.Metrics.PurchasesStartedTotal.WithLabelValues(itemID).Inc()
		deps.Metrics.ActiveFlows.Inc()
	}

	return f, nil
}

// Order returns the flow's order descriptor.
func (f *Flow) Order() OrderDescriptor {
	return f.order
}

// Updates returns the consumer-facing state stream. The channel is closed
// when the flow is torn down.
func (f *Flow) Updates() <-chan Update {
	return f.updates
}

// Snapshot returns the current state for request/response consumers.
func (f *Flow) Snapshot() Update {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.snapshotLocked()
}

func (f *Flow) snapshotLocked() Update {
	u := Update{
		State: f.state,
		Busy:  f.busy,
		Via:   f.paidVia,
		Item:  f.item,
	}
	if f.lastErr != nil {
		u.Error = f.lastErr.Error()
	}
	return u
}

// Start runs the prior-purchase guard. If the buyer already owns the item the
// flow jumps straight to Paid without submitting a transaction or starting
// the poller; no new fulfillment record is written on that path. Guard
// failures are fail-open: logged and treated as "not purchased" so the buyer
// can still pay.
func (f *Flow) Start(ctx context.Context) {
	log := f.log(ctx)

	owned, err := f.deps.Orders.HasPurchased(ctx, f.order.Buyer.String(), f.order.ItemID)
	if err != nil {
		log.Warn().Err(err).Msg("purchase.guard_check_failed")
		return
	}
	if !owned {
		return
	}

	log.Info().Msg("purchase.already_owned")
	f.markPaid(ctx, ViaPriorPurchase)
}

// Buy submits the payment: requests a prepared transaction from the builder,
// hands it to the wallet to sign and broadcast, and on success advances
// Initial -> Submitted and starts the confirmation poller. On failure at any
// step the error is surfaced and the state stays Initial so the buyer may
// retry with the same descriptor.
func (f *Flow) Buy(ctx context.Context) error {
	f.mu.Lock()
	switch {
	case f.closed:
		f.mu.Unlock()
		return ErrFlowClosed
	case f.state != StateInitial:
		f.mu.Unlock()
		return ErrNotInitial
	case f.busy:
		f.mu.Unlock()
		return ErrBusy
	}
	f.busy = true
	f.lastErr = nil
	update := f.snapshotLocked()
	f.mu.Unlock()
	f.publish(update)

	log := f.log(ctx)

	tx, err := f.deps.Builder.Build(ctx, f.order)
	if err != nil {
		log.Error().Err(err).Msg("purchase.build_transaction_failed")
		return f.failSubmission("builder_error", fmt.Errorf("%w: %w", ErrBuildFailed, err))
	}

	sig, err := f.deps.Wallet.SignAndSend(ctx, tx)
	if err != nil {
		outcome := "broadcast_error"
		if errors.Is(err, wallet.ErrUserRejected) {
			outcome = "signing_rejected"
			log.Info().Msg("purchase.signing_rejected")
		} else {
			log.Error().Err(err).Msg("purchase.send_transaction_failed")
		}
		return f.failSubmission(outcome, fmt.Errorf("sign and send: %w", err))
	}

	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return ErrFlowClosed
	}
	f.state = StateSubmitted
	f.signature = sig
	f.submittedAt = time.Now()
	// Busy stays up while confirmation is pending, mirroring the loading
	// affordance consumers show until the payment is verified.
	pollCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	f.pollCancel = cancel
	f.pollDone = make(chan struct{})
	update = f.snapshotLocked()
	f.mu.Unlock()

	if f.deps.Metrics != nil {
		f.deps.Metrics.SubmissionsTotal.WithLabelValues("submitted").Inc()
	}
	log.Info().
		Str("signature", logger.TruncateAddress(sig.String())).
		Str("reference", logger.TruncateAddress(f.order.Reference.String())).
		Msg("purchase.submitted")

	f.publish(update)
	go f.poll(pollCtx)
	return nil
}

// failSubmission records a failed submission attempt and returns the error.
// The flow stays in Initial so the same descriptor can be resubmitted.
func (f *Flow) failSubmission(outcome string, err error) error {
	if f.deps.Metrics != nil {
		f.deps.Metrics.SubmissionsTotal.WithLabelValues(outcome).Inc()
	}

	f.mu.Lock()
	f.busy = false
	f.lastErr = err
	update := f.snapshotLocked()
	f.mu.Unlock()
	f.publish(update)
	return err
}

// poll issues reference lookups at a fixed interval until the payment is
// confirmed at the required depth or the flow is torn down. "Not found" is
// the expected steady state; other lookup errors are transient and logged
// without stopping the loop.
func (f *Flow) poll(ctx context.Context) {
	defer close(f.pollDone)

	ticker := time.NewTicker(f.deps.PollInterval)
	defer ticker.Stop()

	log := f.log(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			result, err := f.deps.Ledger.FindReference(ctx, f.order.Reference)
			switch {
			case errors.Is(err, solanapay.ErrReferenceNotFound):
				f.observePoll("not_found")
			case err != nil:
				f.observePoll("error")
				log.Warn().Err(err).Msg("purchase.confirmation_lookup_failed")
			case result.TxErr != nil:
				f.observePoll("tx_failed")
				log.Error().Err(result.TxErr).
					Str("signature", logger.TruncateAddress(result.Signature.String())).
					Msg("purchase.referenced_transaction_failed")
			case result.MeetsCommitment(f.deps.Commitment):
				f.observePoll("confirmed")
				log.Info().
					Str("signature", logger.TruncateAddress(result.Signature.String())).
					Str("status", string(result.Status)).
					Msg("purchase.payment_confirmed")
				if f.deps.Metrics != nil && !f.submittedAt.IsZero() {
					f.deps.Metrics.ConfirmationDelay.
						WithLabelValues(string(f.deps.Commitment)).
						Observe(time.Since(f.submittedAt).Seconds())
				}
				f.markPaid(ctx, ViaPayment)
				return
			default:
				// Found but below the required confirmation depth.
				f.observePoll("pending")
			}
		}
	}
}

func (f *Flow) observePoll(outcome string) {
	f.deps.Metrics.ObservePollCycle(outcome)
}

// markPaid performs the single Submitted -> Paid (or Initial -> Paid via the
// guard) transition and its side effects. The state check under the mutex
// makes the transition idempotent: late poll cycles or a racing guard result
// observe StatePaid and return without re-firing fulfillment.
func (f *Flow) markPaid(ctx context.Context, via PaidVia) {
	f.mu.Lock()
	if f.closed || f.state == StatePaid {
		f.mu.Unlock()
		return
	}
	f.state = StatePaid
	f.paidVia = via
	f.busy = true
	cancel := f.pollCancel
	f.pollCancel = nil
	update := f.snapshotLocked()
	f.mu.Unlock()

	// The confirmed-payment path arrives on the poll context; detach before
	// cancelling the poller so fulfillment below is not cut short.
	ctx = context.WithoutCancel(ctx)

	if cancel != nil {
		cancel()
	}
	if f.deps.Metrics != nil {
		f.deps.Metrics.PurchasesPaidTotal.WithLabelValues(f.order.ItemID, string(via)).Inc()
	}
	f.publish(update)

	log := f.log(ctx)

	// Two-phase completion: record the fulfillment, then resolve content
	// metadata. Each phase's failure is reported independently; a ledger
	// write failure does not block the buyer from their content.
	if via == ViaPayment {
		err := f.deps.Orders.RecordOrder(ctx, catalog.Order{
			Buyer:     f.order.Buyer.String(),
			Reference: f.order.Reference.String(),
			ItemID:    f.order.ItemID,
		})
		if err != nil {
			log.Error().Err(err).Msg("purchase.record_order_failed")
			f.setErr(fmt.Errorf("record order: %w", err))
		} else {
			if f.deps.Metrics != nil {
				f.deps.Metrics.OrdersRecordedTotal.WithLabelValues(f.order.ItemID).Inc()
			}
			log.Info().
				Str("reference", logger.TruncateAddress(f.order.Reference.String())).
				Msg("purchase.order_recorded")
		}
	}

	item, err := f.deps.Orders.GetItem(ctx, f.order.ItemID)

	f.mu.Lock()
	if err != nil {
		f.lastErr = fmt.Errorf("fetch item metadata: %w", err)
	} else {
		f.item = &item
	}
	f.busy = false
	update = f.snapshotLocked()
	closed := f.closed
	f.mu.Unlock()

	if err != nil {
		log.Error().Err(err).Msg("purchase.fetch_item_failed")
	}
	if !closed {
		f.publish(update)
	}
}

func (f *Flow) setErr(err error) {
	f.mu.Lock()
	f.lastErr = err
	f.mu.Unlock()
}

// Close tears the flow down: the poller is cancelled deterministically (no
// lookup fires after Close returns) and the update stream is closed.
func (f *Flow) Close() error {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return nil
	}
	f.closed = true
	cancel := f.pollCancel
	f.pollCancel = nil
	done := f.pollDone
	f.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}

	f.mu.Lock()
	close(f.updates)
	f.mu.Unlock()

	if f.deps.Metrics != nil {
		f.deps.Metrics.ActiveFlows.Dec()
	}
	return nil
}

// publish pushes an update without blocking: when the buffer is full the
// oldest entry is dropped so the latest state always lands.
func (f *Flow) publish(u Update) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return
	}
	for {
		select {
		case f.updates <- u:
			return
		default:
			select {
			case <-f.updates:
			default:
			}
		}
	}
}

func (f *Flow) log(ctx context.Context) zerolog.Logger {
	log := f.deps.Logger
	if ctxLog := logger.FromContext(ctx); ctxLog.GetLevel() != zerolog.Disabled {
		log = ctxLog
	}
	return log.With().
		Str("item", f.order.ItemID).
		Str("buyer", logger.TruncateAddress(f.order.Buyer.String())).
		Logger()
}
