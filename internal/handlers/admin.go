package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	domain "github.com/cardapio-field/api/internal/domain"
	"github.com/cardapio-field/api/internal/platform/auth"
	"github.com/cardapio-field/api/internal/platform/httpx"
	"github.com/cardapio-field/api/internal/services"
)

const maxAdminRequestBody = 4 * 1024

// AdminHandlers exposes the restaurant panel: order workflow and the new-order feed.
// Routes expect an authenticated identity in the request context.
type AdminHandlers struct {
	orders        services.OrderService
	notifications services.NotificationService
}

// NewAdminHandlers constructs admin handlers.
func NewAdminHandlers(orders services.OrderService, notifications services.NotificationService) *AdminHandlers {
	return &AdminHandlers{orders: orders, notifications: notifications}
}

// Routes registers admin endpoints under the provided router.
func (h *AdminHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Get("/orders", h.listOrders)
	r.Get("/orders/analytics", h.revenueReport)
	r.Get("/orders/{orderID}", h.getOrder)
	r.Get("/orders/{orderID}/transitions", h.orderTransitions)
	r.Put("/orders/{orderID}/status", h.updateOrderStatus)

	r.Get("/notifications", h.feed)
	r.Delete("/notifications", h.clearNotifications)
	r.Post("/notifications/watch", h.watch)
	r.Delete("/notifications/watch", h.unwatch)
	r.Post("/notifications:read-all", h.markAllRead)
	r.Post("/notifications/{notificationID}:read", h.markRead)
	r.Delete("/notifications/{notificationID}", h.removeNotification)
}

func (h *AdminHandlers) revenueReport(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if !h.ordersReady(ctx, w) {
		return
	}
	restaurantID, ok := restaurantFromRequest(ctx, w, r)
	if !ok {
		return
	}
	period := domain.AnalyticsPeriod(strings.ToLower(strings.TrimSpace(r.URL.Query().Get("period"))))
	if period != "" && !period.Valid() {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_period", "period must be one of today, week, month, year, all", http.StatusBadRequest).WithFields("period"))
		return
	}
	report, err := h.orders.RevenueReport(ctx, restaurantID, period)
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, report)
}

type statusUpdateRequest struct {
	Status string `json:"status"`
}

type transitionOption struct {
	Status domain.OrderStatus `json:"status"`
	Label  string             `json:"label"`
}

type adminOrderResponse struct {
	Order       services.Order     `json:"order"`
	Transitions []transitionOption `json:"transitions"`
}

func (h *AdminHandlers) listOrders(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if !h.ordersReady(ctx, w) {
		return
	}
	restaurantID, ok := restaurantFromRequest(ctx, w, r)
	if !ok {
		return
	}
	groups, err := h.orders.ListOrders(ctx, restaurantID)
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, groups)
}

func (h *AdminHandlers) getOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if !h.ordersReady(ctx, w) {
		return
	}
	scope, ok := orderScope(ctx, w)
	if !ok {
		return
	}
	orderID := strings.TrimSpace(chi.URLParam(r, "orderID"))
	order, err := h.orders.GetOrder(ctx, orderID, scope)
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, adminOrderResponse{
		Order:       order,
		Transitions: transitionOptions(domain.AllowedTransitions(order)),
	})
}

func (h *AdminHandlers) orderTransitions(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if !h.ordersReady(ctx, w) {
		return
	}
	scope, ok := orderScope(ctx, w)
	if !ok {
		return
	}
	orderID := strings.TrimSpace(chi.URLParam(r, "orderID"))
	allowed, err := h.orders.AllowedTransitions(ctx, orderID, scope)
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{
		"orderId":     orderID,
		"transitions": transitionOptions(allowed),
	})
}

func (h *AdminHandlers) updateOrderStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if !h.ordersReady(ctx, w) {
		return
	}
	scope, ok := orderScope(ctx, w)
	if !ok {
		return
	}
	var req statusUpdateRequest
	if !decodeBody(w, r, maxAdminRequestBody, &req) {
		return
	}
	status := domain.OrderStatus(strings.ToLower(strings.TrimSpace(req.Status)))
	if !status.Valid() {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_order_status", "unknown order status", http.StatusBadRequest).WithFields("status"))
		return
	}
	order, err := h.orders.UpdateStatus(ctx, services.UpdateOrderStatusCommand{
		OrderID:         strings.TrimSpace(chi.URLParam(r, "orderID")),
		Status:          status,
		RestaurantScope: scope,
	})
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, adminOrderResponse{
		Order:       order,
		Transitions: transitionOptions(domain.AllowedTransitions(order)),
	})
}

func (h *AdminHandlers) feed(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	restaurantID, ok := h.notificationScope(ctx, w, r)
	if !ok {
		return
	}
	httpx.WriteJSON(w, http.StatusOK, h.notifications.Feed(restaurantID))
}

func (h *AdminHandlers) watch(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	restaurantID, ok := h.notificationScope(ctx, w, r)
	if !ok {
		return
	}
	if err := h.notifications.Watch(ctx, restaurantID); err != nil {
		writeNotificationError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusAccepted, h.notifications.Feed(restaurantID))
}

func (h *AdminHandlers) unwatch(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	restaurantID, ok := h.notificationScope(ctx, w, r)
	if !ok {
		return
	}
	h.notifications.Unwatch(restaurantID)
	w.WriteHeader(http.StatusNoContent)
}

func (h *AdminHandlers) markRead(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	restaurantID, ok := h.notificationScope(ctx, w, r)
	if !ok {
		return
	}
	if err := h.notifications.MarkAsRead(restaurantID, chi.URLParam(r, "notificationID")); err != nil {
		writeNotificationError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, h.notifications.Feed(restaurantID))
}

func (h *AdminHandlers) markAllRead(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	restaurantID, ok := h.notificationScope(ctx, w, r)
	if !ok {
		return
	}
	h.notifications.MarkAllAsRead(restaurantID)
	httpx.WriteJSON(w, http.StatusOK, h.notifications.Feed(restaurantID))
}

func (h *AdminHandlers) removeNotification(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	restaurantID, ok := h.notificationScope(ctx, w, r)
	if !ok {
		return
	}
	if err := h.notifications.RemoveNotification(restaurantID, chi.URLParam(r, "notificationID")); err != nil {
		writeNotificationError(ctx, w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *AdminHandlers) clearNotifications(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	restaurantID, ok := h.notificationScope(ctx, w, r)
	if !ok {
		return
	}
	h.notifications.ClearAll(restaurantID)
	w.WriteHeader(http.StatusNoContent)
}

func (h *AdminHandlers) ordersReady(ctx context.Context, w http.ResponseWriter) bool {
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return false
	}
	return true
}

func (h *AdminHandlers) notificationScope(ctx context.Context, w http.ResponseWriter, r *http.Request) (string, bool) {
	if h.notifications == nil {
		httpx.WriteError(ctx, w, httpx.NewError("notification_service_unavailable", "notification service unavailable", http.StatusServiceUnavailable))
		return "", false
	}
	return restaurantFromRequest(ctx, w, r)
}

func adminIdentity(ctx context.Context, w http.ResponseWriter) (*auth.Identity, bool) {
	identity, ok := auth.IdentityFromContext(ctx)
	if !ok || identity == nil || strings.TrimSpace(identity.UID) == "" {
		httpx.WriteError(ctx, w, httpx.NewError("unauthenticated", "authentication required", http.StatusUnauthorized))
		return nil, false
	}
	return identity, true
}

// restaurantFromRequest resolves the restaurantId query parameter, defaulting to the
// identity's own restaurant.
func restaurantFromRequest(ctx context.Context, w http.ResponseWriter, r *http.Request) (string, bool) {
	identity, ok := adminIdentity(ctx, w)
	if !ok {
		return "", false
	}
	restaurantID := strings.TrimSpace(r.URL.Query().Get("restaurantId"))
	if restaurantID == "" {
		restaurantID = strings.TrimSpace(identity.RestaurantID)
	}
	if restaurantID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "restaurantId is required", http.StatusBadRequest).WithFields("restaurantId"))
		return "", false
	}
	if !identity.CanManageRestaurant(restaurantID) {
		httpx.WriteError(ctx, w, httpx.NewError("restaurant_forbidden", "identity cannot manage this restaurant", http.StatusForbidden))
		return "", false
	}
	return restaurantID, true
}

// orderScope returns "" for platform admins and the identity's restaurant otherwise.
func orderScope(ctx context.Context, w http.ResponseWriter) (string, bool) {
	identity, ok := adminIdentity(ctx, w)
	if !ok {
		return "", false
	}
	if identity.HasRole(auth.RoleAdmin) {
		return "", true
	}
	scope := strings.TrimSpace(identity.RestaurantID)
	if scope == "" {
		httpx.WriteError(ctx, w, httpx.NewError("restaurant_forbidden", "identity is not bound to a restaurant", http.StatusForbidden))
		return "", false
	}
	return scope, true
}

func transitionOptions(statuses []domain.OrderStatus) []transitionOption {
	options := make([]transitionOption, 0, len(statuses))
	for _, status := range statuses {
		options = append(options, transitionOption{Status: status, Label: status.Label()})
	}
	return options
}

func writeNotificationError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrNotificationNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("notification_not_found", "notification not found", http.StatusNotFound))
	case errors.Is(err, services.ErrNotificationInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_notification_request", cleanServiceMessage(err), http.StatusBadRequest))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("notification_error", "failed to process notification request", http.StatusInternalServerError))
	}
}
