package services

import (
	"context"
	"errors"
	"reflect"
	"slices"
	"testing"
	"time"

	domain "github.com/cardapio-field/api/internal/domain"
	"github.com/cardapio-field/api/internal/repositories/memory"
)

type checkoutFixture struct {
	svc     CheckoutService
	carts   CartService
	orders  OrderService
	gateway *fakeOrderGateway
}

func newCheckoutFixture(t *testing.T) checkoutFixture {
	t.Helper()
	catalog := newTestCatalog(t, newFakeCatalogGateway(), fixedClock)
	carts, err := NewCartService(CartServiceDeps{
		Repository: memory.NewCartRepository(time.Hour, fixedClock),
		Catalog:    catalog,
		Clock:      fixedClock,
	})
	if err != nil {
		t.Fatalf("NewCartService: %v", err)
	}

	gateway := newFakeOrderGateway()
	orders, err := NewOrderService(OrderServiceDeps{
		Gateway:       gateway,
		CurrentOrders: memory.NewCurrentOrderRepository(),
		Clock:         fixedClock,
	})
	if err != nil {
		t.Fatalf("NewOrderService: %v", err)
	}

	svc, err := NewCheckoutService(CheckoutServiceDeps{Carts: carts, Orders: orders, Clock: fixedClock})
	if err != nil {
		t.Fatalf("NewCheckoutService: %v", err)
	}
	return checkoutFixture{svc: svc, carts: carts, orders: orders, gateway: gateway}
}

func validCheckout(sessionID string, method domain.PaymentMethod) CheckoutCommand {
	cmd := CheckoutCommand{
		SessionID:     sessionID,
		Customer:      domain.Customer{Name: "Ana", Phone: "11 99999-0000"},
		Address:       &domain.Address{Street: "Rua B", Number: "10", Neighborhood: "Centro"},
		PaymentMethod: method,
	}
	if method == domain.PaymentMethodOnDelivery {
		cmd.PaymentSubMethod = domain.PaymentSubMethodCard
	}
	return cmd
}

func expectValidationFields(t *testing.T, err error, want ...string) {
	t.Helper()
	var validation *CheckoutValidationError
	if !errors.As(err, &validation) {
		t.Fatalf("expected a validation error, got %v", err)
	}
	if !errors.Is(err, ErrCheckoutValidation) {
		t.Fatalf("expected ErrCheckoutValidation, got %v", err)
	}
	if !reflect.DeepEqual(validation.Fields, want) {
		t.Fatalf("expected fields %v, got %v", want, validation.Fields)
	}
}

func cartItemCount(t *testing.T, carts CartService, sessionID string) int {
	t.Helper()
	view, err := carts.GetCart(context.Background(), sessionID)
	if err != nil {
		t.Fatalf("GetCart: %v", err)
	}
	return len(view.Cart.Items)
}

func TestCheckoutServiceQuote(t *testing.T) {
	f := newCheckoutFixture(t)
	addBurger(t, f.carts, "s1", 2)
	ctx := context.Background()

	quote, err := f.svc.Quote(ctx, "s1", domain.PaymentMethodPix)
	if err != nil {
		t.Fatalf("Quote pix: %v", err)
	}
	assertMoney(t, "platform fee", quote.PlatformFee, "5.89")
	assertMoney(t, "total", quote.Total, "123.59")

	quote, err = f.svc.Quote(ctx, "s1", domain.PaymentMethodOnDelivery)
	if err != nil {
		t.Fatalf("Quote on delivery: %v", err)
	}
	assertMoney(t, "platform fee", quote.PlatformFee, "0")
	assertMoney(t, "total", quote.Total, "117.70")

	if _, err := f.svc.Quote(ctx, "s1", "boleto"); !errors.Is(err, ErrCheckoutValidation) {
		t.Fatalf("expected ErrCheckoutValidation, got %v", err)
	}
}

func TestCheckoutServiceValidation(t *testing.T) {
	f := newCheckoutFixture(t)
	ctx := context.Background()

	_, err := f.svc.Submit(ctx, CheckoutCommand{SessionID: "empty"})
	expectValidationFields(t, err, "items", "customerInfo.name", "customerInfo.phone", "deliveryAddress", "paymentMethod")

	addBurger(t, f.carts, "s1", 1)
	cmd := validCheckout("s1", domain.PaymentMethodOnDelivery)
	cmd.PaymentSubMethod = ""
	cmd.Address = &domain.Address{Street: "Rua B"}
	_, err = f.svc.Submit(ctx, cmd)
	expectValidationFields(t, err, "deliveryAddress.number", "deliveryAddress.neighborhood", "paymentSubMethod")

	cmd = validCheckout("s1", domain.PaymentMethodPix)
	cmd.Customer.Name = "<script>alert(1)</script>"
	_, err = f.svc.Submit(ctx, cmd)
	expectValidationFields(t, err, "customerInfo.name")

	if len(f.gateway.created) != 0 {
		t.Fatalf("validation failures must not reach the Order API, got %d orders", len(f.gateway.created))
	}
}

func TestCheckoutServiceBelowMinimum(t *testing.T) {
	f := newCheckoutFixture(t)
	ctx := context.Background()
	if _, err := f.carts.SetDeliveryMode(ctx, "s1", domain.DeliveryModePickup); err != nil {
		t.Fatalf("SetDeliveryMode: %v", err)
	}
	if _, err := f.carts.AddItem(ctx, AddCartItemCommand{SessionID: "s1", RestaurantID: "rest-1", ProductID: "soda", Quantity: 1}); err != nil {
		t.Fatalf("AddItem: %v", err)
	}

	if _, err := f.svc.Submit(ctx, validCheckout("s1", domain.PaymentMethodPix)); !errors.Is(err, ErrCheckoutBelowMinimum) {
		t.Fatalf("expected ErrCheckoutBelowMinimum, got %v", err)
	}
}

func TestCheckoutServicePixFlow(t *testing.T) {
	f := newCheckoutFixture(t)
	ctx := context.Background()
	addBurger(t, f.carts, "s1", 2)
	if _, err := f.carts.ApplyCoupon(ctx, "s1", "BEMVINDO"); err != nil {
		t.Fatalf("ApplyCoupon: %v", err)
	}

	cmd := validCheckout("s1", domain.PaymentMethodPix)
	cmd.Customer.Name = "<b>Ana</b> Souza"
	result, err := f.svc.Submit(ctx, cmd)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if !result.AwaitingPix || result.CartWasCleared {
		t.Fatalf("expected a pix order awaiting payment with the cart kept, got %+v", result)
	}

	sent := f.gateway.created[0]
	if sent.Customer.Name != "Ana Souza" {
		t.Fatalf("expected sanitized name, got %q", sent.Customer.Name)
	}
	if sent.Status != domain.OrderStatusPendingPayment || sent.RestaurantID != "rest-1" || sent.Restaurant.Name != "Burger House" {
		t.Fatalf("unexpected order sent %+v", sent)
	}
	if sent.PaymentSubMethod != nil || sent.DeliveryAddress == nil {
		t.Fatalf("expected an address and no sub-method on a pix delivery order")
	}
	assertMoney(t, "subtotal", sent.Subtotal, "111.80")
	assertMoney(t, "platform fee", sent.PlatformFee, "5.89")
	assertMoney(t, "discount", sent.Discount, "0")
	assertMoney(t, "total", sent.Total, "123.59")

	if n := cartItemCount(t, f.carts, "s1"); n != 1 {
		t.Fatalf("pix orders keep the cart until payment, got %d items", n)
	}

	paid, err := f.svc.ConfirmPixPayment(ctx, "s1")
	if err != nil {
		t.Fatalf("ConfirmPixPayment: %v", err)
	}
	if !paid.PaymentPaid || paid.Status != domain.OrderStatusConfirmed {
		t.Fatalf("expected a paid confirmed order, got %+v", paid)
	}
	if n := cartItemCount(t, f.carts, "s1"); n != 0 {
		t.Fatalf("expected the cart cleared after payment, got %d items", n)
	}
}

func TestCheckoutServiceOnDeliveryClearsCart(t *testing.T) {
	f := newCheckoutFixture(t)
	ctx := context.Background()
	addBurger(t, f.carts, "s1", 1)
	if _, err := f.carts.SetDeliveryMode(ctx, "s1", domain.DeliveryModePickup); err != nil {
		t.Fatalf("SetDeliveryMode: %v", err)
	}

	cmd := validCheckout("s1", domain.PaymentMethodOnDelivery)
	cmd.PaymentSubMethod = domain.PaymentSubMethodCash
	result, err := f.svc.Submit(ctx, cmd)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if result.AwaitingPix || !result.CartWasCleared {
		t.Fatalf("expected the cart cleared without pix, got %+v", result)
	}

	sent := f.gateway.created[0]
	if sent.Status != domain.OrderStatusConfirmed {
		t.Fatalf("expected confirmed, got %s", sent.Status)
	}
	if sent.DeliveryAddress != nil {
		t.Fatalf("pickup orders carry no address")
	}
	if sent.PaymentSubMethod == nil || *sent.PaymentSubMethod != domain.PaymentSubMethodCash {
		t.Fatalf("expected cash sub-method, got %v", sent.PaymentSubMethod)
	}
	assertMoney(t, "delivery fee", sent.DeliveryFee, "0")
	assertMoney(t, "platform fee", sent.PlatformFee, "0")

	if n := cartItemCount(t, f.carts, "s1"); n != 0 {
		t.Fatalf("expected an empty cart, got %d items", n)
	}
	if _, err := f.svc.ConfirmPixPayment(ctx, "s1"); !errors.Is(err, ErrCheckoutNoPendingPayment) {
		t.Fatalf("expected ErrCheckoutNoPendingPayment, got %v", err)
	}
}

func TestCheckoutServiceOrderFailureKeepsCart(t *testing.T) {
	f := newCheckoutFixture(t)
	ctx := context.Background()
	addBurger(t, f.carts, "s1", 1)
	f.gateway.setErr(unavailableError("/orders"))

	if _, err := f.svc.Submit(ctx, validCheckout("s1", domain.PaymentMethodOnDelivery)); !errors.Is(err, ErrOrderUnavailable) {
		t.Fatalf("expected ErrOrderUnavailable, got %v", err)
	}
	if n := cartItemCount(t, f.carts, "s1"); n != 1 {
		t.Fatalf("expected the cart kept, got %d items", n)
	}
}

func TestCheckoutValidationErrorMessage(t *testing.T) {
	err := &CheckoutValidationError{Fields: []string{"customerInfo.name", "paymentMethod"}}
	if got := err.Error(); got != "checkout service: validation failed: customerInfo.name, paymentMethod" {
		t.Fatalf("unexpected message %q", got)
	}
	if !errors.Is(err, ErrCheckoutValidation) || !slices.Contains(err.Fields, "paymentMethod") {
		t.Fatalf("expected a validation error listing paymentMethod")
	}
}
