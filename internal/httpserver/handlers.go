package httpserver

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/chonkmart/checkout/internal/catalog"
	"github.com/chonkmart/checkout/internal/circuitbreaker"
	apierrors "github.com/chonkmart/checkout/internal/errors"
	"github.com/chonkmart/checkout/internal/logger"
	"github.com/chonkmart/checkout/internal/purchase"
	"github.com/chonkmart/checkout/internal/wallet"
	"github.com/chonkmart/checkout/pkg/responders"
)

// startPurchaseRequest is the body for POST /checkout/v1/purchases.
type startPurchaseRequest struct {
	ItemID string `json:"itemID"`
}

// purchaseResponse is the flow snapshot returned by purchase endpoints.
type purchaseResponse struct {
	PurchaseID string           `json:"purchaseId"`
	Buyer      string           `json:"buyer"`
	ItemID     string           `json:"itemID"`
	State      purchase.State   `json:"state"`
	Busy       bool             `json:"busy"`
	Via        purchase.PaidVia `json:"via,omitempty"`
	Item       *itemResponse    `json:"item,omitempty"`
	Error      string           `json:"error,omitempty"`
}

// itemResponse is the catalog item shape returned to clients.
type itemResponse struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	PriceLamports uint64 `json:"priceLamports"`
}

// downloadResponse carries unlocked content metadata.
type downloadResponse struct {
	ItemID      string `json:"itemID"`
	Name        string `json:"name"`
	ContentHash string `json:"contentHash"`
	Filename    string `json:"filename"`
}

func flowResponse(f *purchase.Flow) purchaseResponse {
	order := f.Order()
	snap := f.Snapshot()

	resp := purchaseResponse{
		PurchaseID: order.Reference.String(),
		Buyer:      order.Buyer.String(),
		ItemID:     order.ItemID,
		State:      snap.State,
		Busy:       snap.Busy,
		Via:        snap.Via,
		Error:      snap.Error,
	}
	if snap.Item != nil {
		resp.Item = &itemResponse{
			ID:            snap.Item.ID,
			Name:          snap.Item.Name,
			PriceLamports: snap.Item.PriceLamports,
		}
	}
	return resp
}

// health reports service status and external dependency breaker states.
func (h *handlers) health(w http.ResponseWriter, r *http.Request) {
	responders.JSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"uptime":    time.Since(serverStartTime).String(),
		"timestamp": time.Now().UTC(),
		"flows":     h.registry.Len(),
		"breakers": map[string]string{
			"solana_rpc": h.breakers.State(circuitbreaker.ServiceSolanaRPC),
			"tx_builder": h.breakers.State(circuitbreaker.ServiceBuilder),
			"catalog":    h.breakers.State(circuitbreaker.ServiceCatalog),
		},
	})
}

// listItems returns all purchasable items.
func (h *handlers) listItems(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContext(r.Context())

	items, err := h.catalog.ListItems(r.Context())
	if err != nil {
		log.Error().Err(err).Msg("items.list.fetch_failed")
		apierrors.WriteSimpleError(w, apierrors.ErrCodeDatabaseError, "failed to fetch items")
		return
	}

	response := make([]itemResponse, 0, len(items))
	for _, item := range items {
		response = append(response, itemResponse{
			ID:            item.ID,
			Name:          item.Name,
			PriceLamports: item.PriceLamports,
		})
	}

	responders.JSON(w, http.StatusOK, map[string]any{"items": response})
}

// startPurchase creates a purchase flow for the requested item. A second
// request for the same item returns the existing live flow instead of
// generating a new order.
func (h *handlers) startPurchase(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContext(r.Context())

	var req startPurchaseRequest
	if err := decodeJSON(r.Body, &req); err != nil {
		apierrors.WriteSimpleError(w, apierrors.ErrCodeInvalidField, "invalid request body")
		return
	}
	if req.ItemID == "" {
		apierrors.WriteSimpleError(w, apierrors.ErrCodeMissingField, "itemID is required")
		return
	}

	buyer := h.wallet.PublicKey()
	if buyer.IsZero() {
		apierrors.WriteSimpleError(w, apierrors.ErrCodeWalletNotConnected, "no buyer wallet configured")
		return
	}

	// Reject unknown items before a flow exists for them.
	if _, err := h.catalog.GetItem(r.Context(), req.ItemID); err != nil {
		if errors.Is(err, catalog.ErrItemNotFound) {
			apierrors.WriteError(w, apierrors.ErrCodeItemNotFound, "unknown item", map[string]interface{}{
				"itemID": req.ItemID,
			})
			return
		}
		log.Error().Err(err).Str("item", req.ItemID).Msg("purchases.start.item_lookup_failed")
		apierrors.WriteSimpleError(w, apierrors.ErrCodeDatabaseError, "failed to look up item")
		return
	}

	flow, created, err := h.registry.Start(r.Context(), buyer, req.ItemID)
	if err != nil {
		log.Error().Err(err).Str("item", req.ItemID).Msg("purchases.start.failed")
		apierrors.WriteSimpleError(w, apierrors.ErrCodeInternalError, "failed to start purchase")
		return
	}

	status := http.StatusCreated
	if !created {
		status = http.StatusOK
	}

	log.Info().
		Str("purchase_id", logger.TruncateAddress(flow.Order().Reference.String())).
		Str("item", req.ItemID).
		Bool("created", created).
		Msg("purchases.start.success")

	responders.JSON(w, status, flowResponse(flow))
}

// getPurchase returns the current flow snapshot.
func (h *handlers) getPurchase(w http.ResponseWriter, r *http.Request) {
	flow, ok := h.registry.Get(chi.URLParam(r, "purchaseID"))
	if !ok {
		apierrors.WriteSimpleError(w, apierrors.ErrCodePurchaseNotFound, "purchase not found")
		return
	}
	responders.JSON(w, http.StatusOK, flowResponse(flow))
}

// payPurchase submits the payment transaction for a flow.
func (h *handlers) payPurchase(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContext(r.Context())

	purchaseID := chi.URLParam(r, "purchaseID")
	flow, ok := h.registry.Get(purchaseID)
	if !ok {
		apierrors.WriteSimpleError(w, apierrors.ErrCodePurchaseNotFound, "purchase not found")
		return
	}

	ctx := logger.WithPurchaseID(r.Context(), purchaseID)
	if timeout := h.cfg.Purchase.SubmitTimeout.Duration; timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	if err := flow.Buy(ctx); err != nil {
		log.Warn().
			Err(err).
			Str("purchase_id", logger.TruncateAddress(purchaseID)).
			Msg("purchases.pay.failed")
		writeBuyError(w, err)
		return
	}

	responders.JSON(w, http.StatusOK, flowResponse(flow))
}

// writeBuyError maps a submission failure to its API error code.
func writeBuyError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, purchase.ErrNotInitial):
		apierrors.WriteSimpleError(w, apierrors.ErrCodeAlreadySubmitted, "purchase already submitted or paid")
	case errors.Is(err, purchase.ErrBusy):
		apierrors.WriteSimpleError(w, apierrors.ErrCodePurchaseInFlight, "submission already in flight")
	case errors.Is(err, purchase.ErrFlowClosed):
		apierrors.WriteSimpleError(w, apierrors.ErrCodePurchaseNotFound, "purchase was cancelled")
	case errors.Is(err, wallet.ErrUserRejected):
		apierrors.WriteSimpleError(w, apierrors.ErrCodeSigningRejected, "wallet declined to sign")
	case errors.Is(err, purchase.ErrBuildFailed):
		apierrors.WriteSimpleError(w, apierrors.ErrCodeBuilderUnavailable, "failed to prepare transaction")
	default:
		apierrors.WriteSimpleError(w, apierrors.ErrCodeBroadcastFailed, err.Error())
	}
}

// cancelPurchase tears down a flow and removes it from the registry.
func (h *handlers) cancelPurchase(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContext(r.Context())

	purchaseID := chi.URLParam(r, "purchaseID")
	if !h.registry.Remove(purchaseID) {
		apierrors.WriteSimpleError(w, apierrors.ErrCodePurchaseNotFound, "purchase not found")
		return
	}

	log.Info().
		Str("purchase_id", logger.TruncateAddress(purchaseID)).
		Msg("purchases.cancel.success")

	w.WriteHeader(http.StatusNoContent)
}

// downloadPurchase returns content metadata once the flow is paid.
func (h *handlers) downloadPurchase(w http.ResponseWriter, r *http.Request) {
	flow, ok := h.registry.Get(chi.URLParam(r, "purchaseID"))
	if !ok {
		apierrors.WriteSimpleError(w, apierrors.ErrCodePurchaseNotFound, "purchase not found")
		return
	}

	snap := flow.Snapshot()
	if snap.State != purchase.StatePaid || snap.Item == nil {
		apierrors.WriteSimpleError(w, apierrors.ErrCodeContentNotUnlocked, "payment not confirmed yet")
		return
	}

	responders.JSON(w, http.StatusOK, downloadResponse{
		ItemID:      snap.Item.ID,
		Name:        snap.Item.Name,
		ContentHash: snap.Item.ContentHash,
		Filename:    snap.Item.Filename,
	})
}
