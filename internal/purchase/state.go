package purchase

import "github.com/chonkmart/checkout/internal/catalog"

// State is the purchase flow lifecycle position.
// Transitions are monotonic: Initial -> Submitted -> Paid.
type State string

const (
	// StateInitial means no transaction has been submitted yet.
	StateInitial State = "initial"
	// StateSubmitted means the transaction was handed to the wallet and
	// broadcast; confirmation is pending.
	StateSubmitted State = "submitted"
	// StatePaid means a confirmed payment was observed, or a prior purchase
	// was detected at flow start.
	StatePaid State = "paid"
)

// PaidVia records which path reached the paid state.
type PaidVia string

const (
	// ViaPayment: the confirmation poller observed the payment on-chain.
	ViaPayment PaidVia = "payment"
	// ViaPriorPurchase: the prior-purchase guard short-circuited the flow.
	ViaPriorPurchase PaidVia = "prior_purchase"
)

// Update is one entry in the consumer-facing state stream.
type Update struct {
	State State         `json:"state"`
	Busy  bool          `json:"busy"`
	Via   PaidVia       `json:"via,omitempty"`
	Item  *catalog.Item `json:"item,omitempty"`
	Error string        `json:"error,omitempty"`
}
