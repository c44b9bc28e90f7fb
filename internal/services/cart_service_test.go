package services

import (
	"context"
	"errors"
	"testing"
	"time"

	domain "github.com/cardapio-field/api/internal/domain"
	"github.com/cardapio-field/api/internal/repositories/memory"
)

type cartFixture struct {
	svc     CartService
	catalog *fakeCatalogGateway
	repo    *memory.CartRepository
}

func newCartFixture(t *testing.T) cartFixture {
	t.Helper()
	gateway := newFakeCatalogGateway()
	catalog := newTestCatalog(t, gateway, fixedClock)
	repo := memory.NewCartRepository(time.Hour, fixedClock)
	svc, err := NewCartService(CartServiceDeps{
		Repository:  repo,
		Catalog:     catalog,
		Clock:       fixedClock,
		IDGenerator: func() string { return "01HSESSION" },
	})
	if err != nil {
		t.Fatalf("NewCartService: %v", err)
	}
	return cartFixture{svc: svc, catalog: gateway, repo: repo}
}

func addBurger(t *testing.T, svc CartService, sessionID string, quantity int) CartView {
	t.Helper()
	view, err := svc.AddItem(context.Background(), AddCartItemCommand{
		SessionID:    sessionID,
		RestaurantID: "rest-1",
		ProductID:    "burger",
		Options:      map[string]string{"extra": "bacon"},
		Quantity:     quantity,
	})
	if err != nil {
		t.Fatalf("AddItem: %v", err)
	}
	return view
}

func TestCartServicePricingScenario(t *testing.T) {
	f := newCartFixture(t)
	ctx := context.Background()

	view := addBurger(t, f.svc, "s1", 2)
	assertMoney(t, "subtotal", view.Summary.Subtotal, "111.80")
	assertMoney(t, "delivery fee", view.Summary.DeliveryFee, "5.90")
	assertMoney(t, "total", view.Summary.Total, "117.70")
	if !view.Cart.Open {
		t.Fatalf("expected cart to open after adding an item")
	}
	if view.Restaurant == nil || view.Restaurant.ID != "rest-1" {
		t.Fatalf("expected restaurant in view, got %+v", view.Restaurant)
	}

	view, err := f.svc.ApplyCoupon(ctx, "s1", " bemvindo ")
	if err != nil {
		t.Fatalf("ApplyCoupon: %v", err)
	}
	if view.Cart.Coupon.Status != domain.CouponStatusApplied || view.Cart.Coupon.Code != "BEMVINDO" {
		t.Fatalf("unexpected coupon state %+v", view.Cart.Coupon)
	}
	assertMoney(t, "discount", view.Summary.Discount, "5")
	assertMoney(t, "total", view.Summary.Total, "112.70")

	stored, err := f.repo.Get(ctx, "s1")
	if err != nil {
		t.Fatalf("repo.Get: %v", err)
	}
	if stored.RestaurantID != "rest-1" || len(stored.Items) != 1 {
		t.Fatalf("unexpected stored cart %+v", stored)
	}
}

func TestCartServiceMergesIdenticalSelections(t *testing.T) {
	f := newCartFixture(t)

	addBurger(t, f.svc, "s1", 1)
	view := addBurger(t, f.svc, "s1", 2)
	if len(view.Cart.Items) != 1 || view.Cart.Items[0].Quantity != 3 {
		t.Fatalf("expected one merged line with quantity 3, got %+v", view.Cart.Items)
	}

	view, err := f.svc.AddItem(context.Background(), AddCartItemCommand{
		SessionID: "s1", RestaurantID: "rest-1", ProductID: "burger",
		Options: map[string]string{"extra": "cheese"}, Quantity: 1,
	})
	if err != nil {
		t.Fatalf("AddItem: %v", err)
	}
	if len(view.Cart.Items) != 2 || view.Summary.ItemCount != 4 {
		t.Fatalf("expected a second line, got %+v", view.Cart.Items)
	}
}

func TestCartServiceCapsMergedQuantity(t *testing.T) {
	f := newCartFixture(t)
	ctx := context.Background()

	addBurger(t, f.svc, "s1", maxCartItemQuantity)
	_, err := f.svc.AddItem(ctx, AddCartItemCommand{
		SessionID: "s1", RestaurantID: "rest-1", ProductID: "burger",
		Options: map[string]string{"extra": "bacon"}, Quantity: 1,
	})
	if !errors.Is(err, ErrCartInvalidInput) {
		t.Fatalf("expected invalid input past the line limit, got %v", err)
	}

	stored, err := f.repo.Get(ctx, "s1")
	if err != nil {
		t.Fatalf("repo.Get: %v", err)
	}
	if len(stored.Items) != 1 || stored.Items[0].Quantity != maxCartItemQuantity {
		t.Fatalf("expected the line to stay at %d, got %+v", maxCartItemQuantity, stored.Items)
	}
}

func TestCartServiceRejectsInvalidSelections(t *testing.T) {
	f := newCartFixture(t)
	ctx := context.Background()

	cases := []AddCartItemCommand{
		{SessionID: "s1", RestaurantID: "rest-1", ProductID: "pizza", Quantity: 1},
		{SessionID: "s1", RestaurantID: "rest-1", ProductID: "pizza", Options: map[string]string{"size": "xl"}, Quantity: 1},
		{SessionID: "s1", RestaurantID: "rest-1", ProductID: "missing", Quantity: 1},
		{SessionID: "s1", RestaurantID: "rest-1", ProductID: "soda", Quantity: 0},
		{SessionID: "", RestaurantID: "rest-1", ProductID: "soda", Quantity: 1},
	}
	for _, cmd := range cases {
		if _, err := f.svc.AddItem(ctx, cmd); !errors.Is(err, ErrCartInvalidInput) {
			t.Fatalf("expected invalid input for %+v, got %v", cmd, err)
		}
	}

	view, err := f.svc.AddItem(ctx, AddCartItemCommand{
		SessionID: "s1", RestaurantID: "rest-1", ProductID: "pizza",
		Options: map[string]string{"size": "g"}, Quantity: 1,
	})
	if err != nil {
		t.Fatalf("AddItem: %v", err)
	}
	assertMoney(t, "subtotal", view.Summary.Subtotal, "52")
}

func TestCartServiceBindsToOneRestaurant(t *testing.T) {
	f := newCartFixture(t)
	ctx := context.Background()
	addBurger(t, f.svc, "s1", 1)

	other := AddCartItemCommand{SessionID: "s1", RestaurantID: "rest-2", ProductID: "calzone", Quantity: 1}
	if _, err := f.svc.AddItem(ctx, other); !errors.Is(err, ErrCartRestaurantMismatch) {
		t.Fatalf("expected restaurant mismatch, got %v", err)
	}

	if _, err := f.svc.Clear(ctx, "s1"); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	view, err := f.svc.AddItem(ctx, other)
	if err != nil {
		t.Fatalf("AddItem after clear: %v", err)
	}
	if view.Cart.RestaurantID != "rest-2" {
		t.Fatalf("expected cart rebound to rest-2, got %s", view.Cart.RestaurantID)
	}
	assertMoney(t, "delivery fee", view.Summary.DeliveryFee, "8")
}

func TestCartServiceQuantityUpdates(t *testing.T) {
	f := newCartFixture(t)
	ctx := context.Background()
	view := addBurger(t, f.svc, "s1", 1)
	itemID := view.Cart.Items[0].ID

	view, err := f.svc.UpdateItemQuantity(ctx, "s1", itemID, 4)
	if err != nil {
		t.Fatalf("UpdateItemQuantity: %v", err)
	}
	if view.Cart.Items[0].Quantity != 4 {
		t.Fatalf("expected quantity 4, got %d", view.Cart.Items[0].Quantity)
	}

	if _, err := f.svc.UpdateItemQuantity(ctx, "s1", "unknown", 2); !errors.Is(err, ErrCartItemNotFound) {
		t.Fatalf("expected item not found, got %v", err)
	}
	if _, err := f.svc.RemoveItem(ctx, "s1", "unknown"); err != nil {
		t.Fatalf("RemoveItem unknown should be a no-op: %v", err)
	}

	view, err = f.svc.UpdateItemQuantity(ctx, "s1", itemID, -1)
	if err != nil {
		t.Fatalf("UpdateItemQuantity: %v", err)
	}
	if len(view.Cart.Items) != 0 {
		t.Fatalf("expected item removed, got %+v", view.Cart.Items)
	}
}

func TestCartServiceCouponStatuses(t *testing.T) {
	f := newCartFixture(t)
	ctx := context.Background()
	addBurger(t, f.svc, "s1", 2)

	view, err := f.svc.ApplyCoupon(ctx, "s1", "NOPE")
	if err != nil {
		t.Fatalf("ApplyCoupon: %v", err)
	}
	if view.Cart.Coupon.Status != domain.CouponStatusInvalid {
		t.Fatalf("expected invalid status, got %q", view.Cart.Coupon.Status)
	}
	assertMoney(t, "discount", view.Summary.Discount, "0")

	view, err = f.svc.EditCouponCode(ctx, "s1", "DESC")
	if err != nil {
		t.Fatalf("EditCouponCode: %v", err)
	}
	if view.Cart.Coupon.Status != domain.CouponStatusNone || view.Cart.Coupon.Input != "DESC" {
		t.Fatalf("expected cleared status with new input, got %+v", view.Cart.Coupon)
	}

	view, err = f.svc.ApplyCoupon(ctx, "s1", "desconto10")
	if err != nil {
		t.Fatalf("ApplyCoupon: %v", err)
	}
	assertMoney(t, "discount", view.Summary.Discount, "11.18")

	view, err = f.svc.RemoveCoupon(ctx, "s1")
	if err != nil {
		t.Fatalf("RemoveCoupon: %v", err)
	}
	if view.Cart.Coupon.Status != domain.CouponStatusNone || view.Cart.Coupon.Code != "" {
		t.Fatalf("expected coupon reset, got %+v", view.Cart.Coupon)
	}
}

func TestCartServiceRepricesAppliedCoupon(t *testing.T) {
	f := newCartFixture(t)
	ctx := context.Background()

	view := addBurger(t, f.svc, "s1", 1)
	if _, err := f.svc.ApplyCoupon(ctx, "s1", "FRETEGRATIS"); err != nil {
		t.Fatalf("ApplyCoupon: %v", err)
	}
	view, err := f.svc.SetDeliveryMode(ctx, "s1", domain.DeliveryModePickup)
	if err != nil {
		t.Fatalf("SetDeliveryMode: %v", err)
	}
	assertMoney(t, "delivery fee", view.Summary.DeliveryFee, "0")
	assertMoney(t, "free delivery discount on pickup", view.Summary.Discount, "0")

	if _, err := f.svc.Clear(ctx, "s1"); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	if _, err := f.svc.AddItem(ctx, AddCartItemCommand{SessionID: "s1", RestaurantID: "rest-1", ProductID: "soda", Quantity: 1}); err != nil {
		t.Fatalf("AddItem: %v", err)
	}
	view, err = f.svc.ApplyCoupon(ctx, "s1", "BEMVINDO")
	if err != nil {
		t.Fatalf("ApplyCoupon: %v", err)
	}
	assertMoney(t, "capped discount", view.Summary.Discount, "3")
	assertMoney(t, "total", view.Summary.Total, "0")

	view, err = f.svc.UpdateItemQuantity(ctx, "s1", view.Cart.Items[0].ID, 3)
	if err != nil {
		t.Fatalf("UpdateItemQuantity: %v", err)
	}
	assertMoney(t, "repriced discount", view.Summary.Discount, "5")
}

func TestCartServiceDeliveryModeAndOpen(t *testing.T) {
	f := newCartFixture(t)
	ctx := context.Background()

	view, err := f.svc.GetCart(ctx, "fresh")
	if err != nil {
		t.Fatalf("GetCart: %v", err)
	}
	if view.Cart.DeliveryMode != domain.DeliveryModeDelivery || len(view.Cart.Items) != 0 || view.Restaurant != nil {
		t.Fatalf("unexpected empty cart %+v", view)
	}

	if _, err := f.svc.SetDeliveryMode(ctx, "fresh", "drone"); !errors.Is(err, ErrCartInvalidInput) {
		t.Fatalf("expected invalid delivery mode, got %v", err)
	}

	view, err = f.svc.SetOpen(ctx, "fresh", true)
	if err != nil {
		t.Fatalf("SetOpen: %v", err)
	}
	if !view.Cart.Open {
		t.Fatalf("expected open cart")
	}

	addBurger(t, f.svc, "fresh", 1)
	if _, err := f.svc.SetDeliveryMode(ctx, "fresh", domain.DeliveryModePickup); err != nil {
		t.Fatalf("SetDeliveryMode: %v", err)
	}
	view, err = f.svc.Clear(ctx, "fresh")
	if err != nil {
		t.Fatalf("Clear: %v", err)
	}
	if view.Cart.DeliveryMode != domain.DeliveryModePickup || view.Cart.Open {
		t.Fatalf("expected clear to keep pickup and close the cart, got %+v", view.Cart)
	}
}

func TestCartServiceMinimumOrder(t *testing.T) {
	f := newCartFixture(t)
	ctx := context.Background()

	if _, err := f.svc.SetDeliveryMode(ctx, "s1", domain.DeliveryModePickup); err != nil {
		t.Fatalf("SetDeliveryMode: %v", err)
	}
	view, err := f.svc.AddItem(ctx, AddCartItemCommand{SessionID: "s1", RestaurantID: "rest-1", ProductID: "soda", Quantity: 2})
	if err != nil {
		t.Fatalf("AddItem: %v", err)
	}
	if view.Summary.MeetsMinimum {
		t.Fatalf("expected 6.00 to be below the 20.00 minimum")
	}
	if view.Summary.MinOrderLabel != "Pedido mínimo: R$ 20,00" {
		t.Fatalf("unexpected minimum label %q", view.Summary.MinOrderLabel)
	}
}

func TestCartServiceCatalogUnavailable(t *testing.T) {
	f := newCartFixture(t)
	f.catalog.err = unavailableError("/products")

	_, err := f.svc.AddItem(context.Background(), AddCartItemCommand{SessionID: "s1", RestaurantID: "rest-1", ProductID: "soda", Quantity: 1})
	if !errors.Is(err, ErrCartUnavailable) {
		t.Fatalf("expected unavailable, got %v", err)
	}
}

func TestNewCartServiceRequiresDependencies(t *testing.T) {
	if _, err := NewCartService(CartServiceDeps{}); err == nil {
		t.Fatalf("expected error without repository")
	}
	if _, err := NewCartService(CartServiceDeps{Repository: memory.NewCartRepository(0, nil)}); err == nil {
		t.Fatalf("expected error without catalog")
	}
}
