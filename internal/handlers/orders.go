package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/cardapio-field/api/internal/platform/httpx"
	"github.com/cardapio-field/api/internal/services"
)

// OrderHandlers exposes the customer's current order and its background tracking.
type OrderHandlers struct {
	orders  services.OrderService
	tracker services.OrderTracker
}

// NewOrderHandlers constructs customer order handlers. tracker may be nil, in which case the
// tracking routes answer 503.
func NewOrderHandlers(orders services.OrderService, tracker services.OrderTracker) *OrderHandlers {
	return &OrderHandlers{orders: orders, tracker: tracker}
}

// Routes registers customer order endpoints under the provided router.
func (h *OrderHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Get("/current", h.currentOrder)
	r.Delete("/current", h.clearOrder)
	r.Post("/current:refresh", h.refreshOrder)
	r.Post("/current/tracking", h.startTracking)
	r.Delete("/current/tracking", h.stopTracking)
}

type currentOrderResponse struct {
	Order    services.Order `json:"order"`
	Tracking bool           `json:"tracking"`
}

func (h *OrderHandlers) currentOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sessionID, ok := h.session(ctx, w)
	if !ok {
		return
	}
	order, err := h.orders.CurrentOrder(ctx, sessionID)
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, currentOrderResponse{Order: order, Tracking: h.tracking(sessionID)})
}

func (h *OrderHandlers) clearOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sessionID, ok := h.session(ctx, w)
	if !ok {
		return
	}
	if h.tracker != nil {
		h.tracker.Untrack(sessionID)
	}
	if err := h.orders.ClearOrder(ctx, sessionID); err != nil {
		writeOrderError(ctx, w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *OrderHandlers) refreshOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sessionID, ok := h.session(ctx, w)
	if !ok {
		return
	}
	current, err := h.orders.CurrentOrder(ctx, sessionID)
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}
	order, err := h.orders.RefreshOrder(ctx, sessionID, current.ID)
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, currentOrderResponse{Order: order, Tracking: h.tracking(sessionID)})
}

func (h *OrderHandlers) startTracking(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sessionID, ok := h.session(ctx, w)
	if !ok {
		return
	}
	if h.tracker == nil {
		httpx.WriteError(ctx, w, httpx.NewError("tracking_unavailable", "order tracking unavailable", http.StatusServiceUnavailable))
		return
	}
	status, err := h.tracker.Track(ctx, sessionID, "")
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusAccepted, status)
}

func (h *OrderHandlers) stopTracking(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sessionID, ok := h.session(ctx, w)
	if !ok {
		return
	}
	if h.tracker != nil {
		h.tracker.Untrack(sessionID)
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *OrderHandlers) session(ctx context.Context, w http.ResponseWriter) (string, bool) {
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return "", false
	}
	return sessionFromContext(ctx, w)
}

func (h *OrderHandlers) tracking(sessionID string) bool {
	return h.tracker != nil && h.tracker.Tracking(sessionID)
}

func isOrderError(err error) bool {
	return errors.Is(err, services.ErrOrderInvalidInput) ||
		errors.Is(err, services.ErrOrderInvalidState) ||
		errors.Is(err, services.ErrOrderNotFound) ||
		errors.Is(err, services.ErrOrderUnavailable)
}

func writeOrderError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrOrderInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_order_request", cleanServiceMessage(err), http.StatusBadRequest))
	case errors.Is(err, services.ErrOrderNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("order_not_found", "order not found", http.StatusNotFound))
	case errors.Is(err, services.ErrOrderInvalidState):
		httpx.WriteError(ctx, w, httpx.NewError("order_invalid_state", cleanServiceMessage(err), http.StatusConflict))
	case errors.Is(err, services.ErrOrderUnavailable):
		httpx.WriteError(ctx, w, httpx.NewError("order_api_unavailable", "order service is temporarily unavailable", http.StatusServiceUnavailable))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("order_error", "failed to process order request", http.StatusInternalServerError))
	}
}
