package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"

	domain "github.com/cardapio-field/api/internal/domain"
	"github.com/cardapio-field/api/internal/platform/auth"
	"github.com/cardapio-field/api/internal/services"
)

type stubCartService struct {
	view     services.CartView
	err      error
	lastAdd  services.AddCartItemCommand
	lastSID  string
	lastItem string
	lastQty  int
	lastMode domain.DeliveryMode
	lastCode string
	calls    []string
}

func (s *stubCartService) record(name, sessionID string) (services.CartView, error) {
	s.calls = append(s.calls, name)
	s.lastSID = sessionID
	return s.view, s.err
}

func (s *stubCartService) NewSessionID() string { return "01HSTUBSESSION" }

func (s *stubCartService) GetCart(_ context.Context, sid string) (services.CartView, error) {
	return s.record("get", sid)
}

func (s *stubCartService) AddItem(_ context.Context, cmd services.AddCartItemCommand) (services.CartView, error) {
	s.lastAdd = cmd
	return s.record("add", cmd.SessionID)
}

func (s *stubCartService) UpdateItemQuantity(_ context.Context, sid, itemID string, quantity int) (services.CartView, error) {
	s.lastItem, s.lastQty = itemID, quantity
	return s.record("update", sid)
}

func (s *stubCartService) RemoveItem(_ context.Context, sid, itemID string) (services.CartView, error) {
	s.lastItem = itemID
	return s.record("remove", sid)
}

func (s *stubCartService) Clear(_ context.Context, sid string) (services.CartView, error) {
	return s.record("clear", sid)
}

func (s *stubCartService) SetDeliveryMode(_ context.Context, sid string, mode domain.DeliveryMode) (services.CartView, error) {
	s.lastMode = mode
	return s.record("mode", sid)
}

func (s *stubCartService) SetOpen(_ context.Context, sid string, _ bool) (services.CartView, error) {
	return s.record("open", sid)
}

func (s *stubCartService) ApplyCoupon(_ context.Context, sid, code string) (services.CartView, error) {
	s.lastCode = code
	return s.record("apply", sid)
}

func (s *stubCartService) EditCouponCode(_ context.Context, sid, code string) (services.CartView, error) {
	s.lastCode = code
	return s.record("edit", sid)
}

func (s *stubCartService) RemoveCoupon(_ context.Context, sid string) (services.CartView, error) {
	return s.record("uncoupon", sid)
}

type stubCheckoutService struct {
	quote   services.CheckoutQuote
	result  services.CheckoutResult
	paid    services.Order
	err     error
	lastCmd services.CheckoutCommand
	submits int
}

func (s *stubCheckoutService) Quote(_ context.Context, _ string, method domain.PaymentMethod) (services.CheckoutQuote, error) {
	q := s.quote
	q.PaymentMethod = method
	return q, s.err
}

func (s *stubCheckoutService) Submit(_ context.Context, cmd services.CheckoutCommand) (services.CheckoutResult, error) {
	s.submits++
	s.lastCmd = cmd
	return s.result, s.err
}

func (s *stubCheckoutService) ConfirmPixPayment(context.Context, string) (services.Order, error) {
	return s.paid, s.err
}

type stubOrderService struct {
	order       services.Order
	groups      services.OrderGroups
	transitions []domain.OrderStatus
	err         error
	lastScope   string
	lastUpdate  services.UpdateOrderStatusCommand
	lastListID  string
	cleared     bool
	refreshedID string
	report      services.RevenueReport
	lastPeriod  domain.AnalyticsPeriod
}

func (s *stubOrderService) CreateOrder(context.Context, string, services.Order) (services.Order, error) {
	return s.order, s.err
}

func (s *stubOrderService) MarkPaymentPaid(context.Context, string, string) (services.Order, error) {
	return s.order, s.err
}

func (s *stubOrderService) UpdateStatus(_ context.Context, cmd services.UpdateOrderStatusCommand) (services.Order, error) {
	s.lastUpdate = cmd
	if s.err != nil {
		return services.Order{}, s.err
	}
	order := s.order
	order.Status = cmd.Status
	return order, nil
}

func (s *stubOrderService) RefreshOrder(_ context.Context, _ string, orderID string) (services.Order, error) {
	s.refreshedID = orderID
	return s.order, s.err
}

func (s *stubOrderService) CurrentOrder(context.Context, string) (services.Order, error) {
	return s.order, s.err
}

func (s *stubOrderService) ClearOrder(context.Context, string) error {
	s.cleared = true
	return s.err
}

func (s *stubOrderService) GetOrder(_ context.Context, _ string, scope string) (services.Order, error) {
	s.lastScope = scope
	return s.order, s.err
}

func (s *stubOrderService) AllowedTransitions(_ context.Context, _ string, scope string) ([]domain.OrderStatus, error) {
	s.lastScope = scope
	return s.transitions, s.err
}

func (s *stubOrderService) ListOrders(_ context.Context, restaurantID string) (services.OrderGroups, error) {
	s.lastListID = restaurantID
	return s.groups, s.err
}

func (s *stubOrderService) RevenueReport(_ context.Context, restaurantID string, period domain.AnalyticsPeriod) (services.RevenueReport, error) {
	s.lastListID = restaurantID
	s.lastPeriod = period
	return s.report, s.err
}

type stubTracker struct {
	tracking map[string]bool
	err      error
}

func (s *stubTracker) Track(_ context.Context, sid, _ string) (services.TrackingStatus, error) {
	if s.err != nil {
		return services.TrackingStatus{}, s.err
	}
	if s.tracking == nil {
		s.tracking = map[string]bool{}
	}
	s.tracking[sid] = true
	return services.TrackingStatus{OrderID: "ord-1", Active: true}, nil
}

func (s *stubTracker) Untrack(sid string) bool {
	was := s.tracking[sid]
	delete(s.tracking, sid)
	return was
}

func (s *stubTracker) Tracking(sid string) bool { return s.tracking[sid] }

func (s *stubTracker) ActiveSessions() int { return len(s.tracking) }

func (s *stubTracker) StopAll() {}

type stubNotificationService struct {
	feeds    map[string]services.NotificationFeed
	watchErr error
	readErr  error
	watched  []string
	cleared  []string
}

func (s *stubNotificationService) Watch(_ context.Context, rid string) error {
	s.watched = append(s.watched, rid)
	return s.watchErr
}

func (s *stubNotificationService) Unwatch(string) bool { return true }

func (s *stubNotificationService) Poll(context.Context, string) ([]services.Notification, error) {
	return nil, nil
}

func (s *stubNotificationService) Feed(rid string) services.NotificationFeed {
	feed, ok := s.feeds[rid]
	if !ok {
		return services.NotificationFeed{RestaurantID: rid, Notifications: []services.Notification{}}
	}
	return feed
}

func (s *stubNotificationService) MarkAsRead(string, string) error { return s.readErr }

func (s *stubNotificationService) MarkAllAsRead(string) {}

func (s *stubNotificationService) RemoveNotification(string, string) error { return s.readErr }

func (s *stubNotificationService) ClearAll(rid string) { s.cleared = append(s.cleared, rid) }

func (s *stubNotificationService) WatchedRestaurants() []string { return s.watched }

func (s *stubNotificationService) StopAll() {}

type stubCatalogService struct {
	menu services.Menu
	err  error
}

func (s *stubCatalogService) Menu(context.Context, string) (services.Menu, error) {
	return s.menu, s.err
}

func (s *stubCatalogService) Restaurant(context.Context, string) (services.Restaurant, error) {
	return s.menu.Restaurant, s.err
}

func (s *stubCatalogService) Product(context.Context, string, string) (services.Product, error) {
	return services.Product{}, s.err
}

var (
	_ services.CartService         = (*stubCartService)(nil)
	_ services.CheckoutService     = (*stubCheckoutService)(nil)
	_ services.OrderService        = (*stubOrderService)(nil)
	_ services.OrderTracker        = (*stubTracker)(nil)
	_ services.NotificationService = (*stubNotificationService)(nil)
	_ services.CatalogService      = (*stubCatalogService)(nil)
)

// sessionRouter mounts routes under prefix behind the session middleware.
func sessionRouter(prefix string, routes func(chi.Router)) http.Handler {
	r := chi.NewRouter()
	r.Route(prefix, func(group chi.Router) {
		group.Use(SessionMiddleware("", func() string { return "01HSTUBSESSION" }))
		routes(group)
	})
	return r
}

// adminRouter mounts admin routes with identity injected into every request.
func adminRouter(identity *auth.Identity, routes func(chi.Router)) http.Handler {
	r := chi.NewRouter()
	r.Route("/admin", func(group chi.Router) {
		group.Use(func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
				ctx := req.Context()
				if identity != nil {
					ctx = auth.WithIdentity(ctx, identity)
				}
				next.ServeHTTP(w, req.WithContext(ctx))
			})
		})
		routes(group)
	})
	return r
}

func doRequest(t *testing.T, h http.Handler, method, path string, body any, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	switch v := body.(type) {
	case nil:
	case string:
		reader = bytes.NewBufferString(v)
	default:
		data, err := json.Marshal(v)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, reader)
	if reader != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func decodeResponse(t *testing.T, rr *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("expected JSON body, got %q: %v", rr.Body.String(), err)
	}
	return body
}

func expectError(t *testing.T, rr *httptest.ResponseRecorder, status int, code string) map[string]any {
	t.Helper()
	if rr.Code != status {
		t.Fatalf("expected status %d, got %d: %s", status, rr.Code, rr.Body.String())
	}
	body := decodeResponse(t, rr)
	if body["error"] != code {
		t.Fatalf("expected error %q, got %v", code, body["error"])
	}
	return body
}
