package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	domain "github.com/cardapio-field/api/internal/domain"
	"github.com/cardapio-field/api/internal/platform/orderapi"
	"github.com/cardapio-field/api/internal/repositories"
)

var (
	errOrderGatewayRequired    = errors.New("order service: gateway is required")
	errOrderRepositoryRequired = errors.New("order service: current order repository is required")
	errCurrentOrderMoved       = errors.New("order service: current order slot holds another order")
)

// ErrOrderInvalidInput indicates the caller supplied invalid input.
var ErrOrderInvalidInput = errors.New("order service: invalid input")

// ErrOrderInvalidState indicates the requested status change is not a legal transition.
var ErrOrderInvalidState = errors.New("order service: invalid state")

// ErrOrderNotFound indicates the order does not exist or is outside the caller's scope.
var ErrOrderNotFound = errors.New("order service: not found")

// ErrOrderUnavailable indicates the Order API or the current order store failed.
var ErrOrderUnavailable = errors.New("order service: unavailable")

// OrderServiceDeps wires the Order API gateway and the current order slot store.
type OrderServiceDeps struct {
	Gateway       OrderGateway
	CurrentOrders repositories.CurrentOrderRepository
	Clock         func() time.Time
	Location      *time.Location
	Logger        func(context.Context, string, map[string]any)
}

type orderService struct {
	gateway  OrderGateway
	current  repositories.CurrentOrderRepository
	now      func() time.Time
	location *time.Location
	logger   func(context.Context, string, map[string]any)
}

var _ OrderService = (*orderService)(nil)

// NewOrderService constructs an OrderService enforcing dependency validation.
func NewOrderService(deps OrderServiceDeps) (OrderService, error) {
	if deps.Gateway == nil {
		return nil, errOrderGatewayRequired
	}
	if deps.CurrentOrders == nil {
		return nil, errOrderRepositoryRequired
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	location := deps.Location
	if location == nil {
		location = time.UTC
	}
	logger := deps.Logger
	if logger == nil {
		logger = noopLogger
	}
	return &orderService{
		gateway:  deps.Gateway,
		current:  deps.CurrentOrders,
		now:      func() time.Time { return clock().UTC() },
		location: location,
		logger:   logger,
	}, nil
}

// CreateOrder posts the order and makes the server copy the session's current order.
func (s *orderService) CreateOrder(ctx context.Context, sessionID string, order Order) (Order, error) {
	sid := strings.TrimSpace(sessionID)
	if sid == "" {
		return Order{}, fmt.Errorf("%w: session id is required", ErrOrderInvalidInput)
	}
	if len(order.Items) == 0 {
		return Order{}, fmt.Errorf("%w: order has no items", ErrOrderInvalidInput)
	}

	created, err := s.gateway.CreateOrder(ctx, order)
	if err != nil {
		return Order{}, s.translateGatewayError(ctx, "order.create.failed", err)
	}
	if strings.TrimSpace(created.ID) == "" {
		s.logger(ctx, "order.create.failed", map[string]any{"reason": "missing id"})
		return Order{}, fmt.Errorf("%w: order was not created", ErrOrderUnavailable)
	}

	if err := s.current.Save(ctx, sid, created); err != nil {
		// The order exists upstream; the customer can still track it by id.
		s.logger(ctx, "order.current.save.failed", map[string]any{
			"orderID": created.ID,
			"error":   err.Error(),
		})
	}
	s.logger(ctx, "order.created", map[string]any{
		"orderID":      created.ID,
		"restaurantID": created.RestaurantID,
		"status":       string(created.Status),
	})
	return created, nil
}

// MarkPaymentPaid confirms a pix payment. Only pending_payment orders move to confirmed;
// an order that is already confirmed and paid is returned unchanged. When the Order API
// cannot be reached the change is applied to the stored current order only.
func (s *orderService) MarkPaymentPaid(ctx context.Context, sessionID, orderID string) (Order, error) {
	sid := strings.TrimSpace(sessionID)
	oid := strings.TrimSpace(orderID)
	if sid == "" || oid == "" {
		return Order{}, fmt.Errorf("%w: session and order ids are required", ErrOrderInvalidInput)
	}

	order, err := s.gateway.GetOrder(ctx, oid)
	if err == nil {
		if paymentAlreadyConfirmed(order) {
			s.replaceCurrent(ctx, sid, order)
			return order, nil
		}
		if order.Status != domain.OrderStatusPendingPayment {
			return Order{}, fmt.Errorf("%w: order %s is %s, not awaiting payment", ErrOrderInvalidState, order.ID, order.Status)
		}
		paid := true
		confirmed := domain.OrderStatusConfirmed
		var updated Order
		updated, err = s.gateway.UpdateOrder(ctx, oid, orderapi.OrderPatch{Status: &confirmed, PaymentPaid: &paid})
		if err == nil {
			s.replaceCurrent(ctx, sid, updated)
			return updated, nil
		}
	}
	if !isGatewayUnavailable(err) {
		return Order{}, s.translateGatewayError(ctx, "order.mark_paid.failed", err)
	}

	s.logger(ctx, "order.mark_paid.fallback", map[string]any{
		"orderID": oid,
		"error":   err.Error(),
	})
	now := s.now()
	local, uerr := s.current.Update(ctx, sid, func(order *domain.Order) error {
		if order.ID != oid {
			return errCurrentOrderMoved
		}
		if paymentAlreadyConfirmed(*order) {
			return nil
		}
		if order.Status != domain.OrderStatusPendingPayment {
			return fmt.Errorf("%w: order %s is %s, not awaiting payment", ErrOrderInvalidState, order.ID, order.Status)
		}
		order.Status = domain.OrderStatusConfirmed
		order.PaymentPaid = true
		order.PaymentPaidAt = &now
		order.UpdatedAt = now
		return nil
	})
	if uerr != nil {
		switch {
		case errors.Is(uerr, ErrOrderInvalidState):
			return Order{}, uerr
		case isRepoNotFound(uerr), errors.Is(uerr, errCurrentOrderMoved):
			return Order{}, s.translateGatewayError(ctx, "order.mark_paid.failed", err)
		}
		return Order{}, fmt.Errorf("%w: %v", ErrOrderUnavailable, uerr)
	}
	return local, nil
}

func paymentAlreadyConfirmed(order domain.Order) bool {
	return order.PaymentPaid && order.Status == domain.OrderStatusConfirmed
}

// UpdateStatus moves an order to a new status after checking the transition against the
// authoritative copy. Illegal transitions are rejected without calling the API.
func (s *orderService) UpdateStatus(ctx context.Context, cmd UpdateOrderStatusCommand) (Order, error) {
	if !cmd.Status.Valid() {
		return Order{}, fmt.Errorf("%w: unknown status %q", ErrOrderInvalidInput, cmd.Status)
	}
	order, err := s.GetOrder(ctx, cmd.OrderID, cmd.RestaurantScope)
	if err != nil {
		return Order{}, err
	}
	if !domain.CanTransition(order.Status, cmd.Status, order.DeliveryMode) {
		return Order{}, fmt.Errorf("%w: cannot move order from %s to %s", ErrOrderInvalidState, order.Status, cmd.Status)
	}

	status := cmd.Status
	updated, err := s.gateway.UpdateOrder(ctx, order.ID, orderapi.OrderPatch{Status: &status})
	if err != nil {
		return Order{}, s.translateGatewayError(ctx, "order.status.failed", err)
	}
	s.logger(ctx, "order.status.updated", map[string]any{
		"orderID": order.ID,
		"from":    string(order.Status),
		"to":      string(updated.Status),
	})
	return updated, nil
}

// RefreshOrder fetches the order and stores it as the session's current order unless the
// slot has moved on to another order. On failure the stored order is left as is.
func (s *orderService) RefreshOrder(ctx context.Context, sessionID, orderID string) (Order, error) {
	sid := strings.TrimSpace(sessionID)
	oid := strings.TrimSpace(orderID)
	if sid == "" || oid == "" {
		return Order{}, fmt.Errorf("%w: session and order ids are required", ErrOrderInvalidInput)
	}

	fresh, err := s.gateway.GetOrder(ctx, oid)
	if err != nil {
		return Order{}, s.translateGatewayError(ctx, "order.refresh.failed", err)
	}
	s.replaceCurrent(ctx, sid, fresh)
	return fresh, nil
}

// CurrentOrder returns the session's active order. Delivered and cancelled orders are
// evicted from the slot and reported as not found.
func (s *orderService) CurrentOrder(ctx context.Context, sessionID string) (Order, error) {
	sid := strings.TrimSpace(sessionID)
	if sid == "" {
		return Order{}, fmt.Errorf("%w: session id is required", ErrOrderInvalidInput)
	}
	order, err := s.current.Get(ctx, sid)
	if err != nil {
		if isRepoNotFound(err) {
			return Order{}, ErrOrderNotFound
		}
		return Order{}, s.translateStoreError(ctx, err)
	}
	if order.Terminal() {
		if err := s.current.Delete(ctx, sid); err != nil {
			s.logger(ctx, "order.current.evict.failed", map[string]any{
				"orderID": order.ID,
				"error":   err.Error(),
			})
		}
		return Order{}, ErrOrderNotFound
	}
	return order, nil
}

func (s *orderService) ClearOrder(ctx context.Context, sessionID string) error {
	sid := strings.TrimSpace(sessionID)
	if sid == "" {
		return fmt.Errorf("%w: session id is required", ErrOrderInvalidInput)
	}
	if err := s.current.Delete(ctx, sid); err != nil {
		return s.translateStoreError(ctx, err)
	}
	return nil
}

// GetOrder reads an order. A non-empty restaurantScope hides orders of other restaurants.
func (s *orderService) GetOrder(ctx context.Context, orderID, restaurantScope string) (Order, error) {
	oid := strings.TrimSpace(orderID)
	if oid == "" {
		return Order{}, fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}
	order, err := s.gateway.GetOrder(ctx, oid)
	if err != nil {
		return Order{}, s.translateGatewayError(ctx, "order.get.failed", err)
	}
	scope := strings.TrimSpace(restaurantScope)
	if scope != "" && order.RestaurantID != scope && order.Restaurant.ID != scope {
		return Order{}, ErrOrderNotFound
	}
	return order, nil
}

func (s *orderService) AllowedTransitions(ctx context.Context, orderID, restaurantScope string) ([]OrderStatus, error) {
	order, err := s.GetOrder(ctx, orderID, restaurantScope)
	if err != nil {
		return nil, err
	}
	return domain.AllowedTransitions(order), nil
}

// ListOrders returns the restaurant's orders grouped for the admin dashboard.
func (s *orderService) ListOrders(ctx context.Context, restaurantID string) (OrderGroups, error) {
	rid := strings.TrimSpace(restaurantID)
	if rid == "" {
		return OrderGroups{}, fmt.Errorf("%w: restaurant id is required", ErrOrderInvalidInput)
	}
	orders, err := s.gateway.ListOrders(ctx, rid)
	if err != nil {
		return OrderGroups{}, s.translateGatewayError(ctx, "order.list.failed", err)
	}
	return domain.GroupOrders(orders, s.now(), s.location), nil
}

// RevenueReport computes the dashboard revenue figures over the restaurant's orders. An
// empty period selects the default.
func (s *orderService) RevenueReport(ctx context.Context, restaurantID string, period domain.AnalyticsPeriod) (RevenueReport, error) {
	rid := strings.TrimSpace(restaurantID)
	if rid == "" {
		return RevenueReport{}, fmt.Errorf("%w: restaurant id is required", ErrOrderInvalidInput)
	}
	if period == "" {
		period = domain.DefaultAnalyticsPeriod
	}
	if !period.Valid() {
		return RevenueReport{}, fmt.Errorf("%w: unknown period %q", ErrOrderInvalidInput, period)
	}
	orders, err := s.gateway.ListOrders(ctx, rid)
	if err != nil {
		return RevenueReport{}, s.translateGatewayError(ctx, "order.analytics.failed", err)
	}
	return domain.BuildRevenueReport(orders, period, s.now(), s.location), nil
}

func (s *orderService) replaceCurrent(ctx context.Context, sessionID string, fresh domain.Order) {
	_, err := s.current.Update(ctx, sessionID, func(order *domain.Order) error {
		if order.ID != fresh.ID {
			return errCurrentOrderMoved
		}
		*order = fresh
		return nil
	})
	switch {
	case err == nil, errors.Is(err, errCurrentOrderMoved):
	case isRepoNotFound(err):
		if err := s.current.Save(ctx, sessionID, fresh); err != nil {
			s.logger(ctx, "order.current.save.failed", map[string]any{"orderID": fresh.ID, "error": err.Error()})
		}
	default:
		s.logger(ctx, "order.current.save.failed", map[string]any{"orderID": fresh.ID, "error": err.Error()})
	}
}

func (s *orderService) translateGatewayError(ctx context.Context, event string, err error) error {
	if err == nil {
		return nil
	}
	if isContextError(err) {
		return err
	}
	var gwErr gatewayError
	if errors.As(err, &gwErr) {
		switch {
		case gwErr.IsNotFound():
			return fmt.Errorf("%w: %v", ErrOrderNotFound, err)
		case gwErr.IsConflict():
			return fmt.Errorf("%w: %v", ErrOrderInvalidState, err)
		}
	}
	s.logger(ctx, event, map[string]any{"error": err.Error()})
	return fmt.Errorf("%w: %v", ErrOrderUnavailable, err)
}

func (s *orderService) translateStoreError(ctx context.Context, err error) error {
	if isContextError(err) {
		return err
	}
	s.logger(ctx, "order.current.store.failed", map[string]any{"error": err.Error()})
	return fmt.Errorf("%w: %v", ErrOrderUnavailable, err)
}
