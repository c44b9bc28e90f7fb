package services

import (
	"context"
	"errors"
	"fmt"
	"html"
	"strings"
	"time"

	"github.com/microcosm-cc/bluemonday"
	"github.com/shopspring/decimal"

	domain "github.com/cardapio-field/api/internal/domain"
)

var (
	errCheckoutCartsRequired  = errors.New("checkout service: cart service is required")
	errCheckoutOrdersRequired = errors.New("checkout service: order service is required")
)

// ErrCheckoutValidation indicates the checkout form is incomplete. The concrete error is a
// *CheckoutValidationError listing the offending fields.
var ErrCheckoutValidation = errors.New("checkout service: validation failed")

// ErrCheckoutBelowMinimum indicates the cart total is below the restaurant minimum order.
var ErrCheckoutBelowMinimum = errors.New("checkout service: below minimum order")

// ErrCheckoutNoPendingPayment indicates there is no pix order waiting for confirmation.
var ErrCheckoutNoPendingPayment = errors.New("checkout service: no pending pix payment")

const maxCheckoutFieldLength = 200

// CheckoutValidationError lists the form fields that failed validation.
type CheckoutValidationError struct {
	Fields []string
}

func (e *CheckoutValidationError) Error() string {
	return fmt.Sprintf("%s: %s", ErrCheckoutValidation.Error(), strings.Join(e.Fields, ", "))
}

func (e *CheckoutValidationError) Unwrap() error {
	return ErrCheckoutValidation
}

// CheckoutServiceDeps wires the checkout service.
type CheckoutServiceDeps struct {
	Carts           CartService
	Orders          OrderService
	PlatformFeeRate decimal.Decimal
	Clock           func() time.Time
	Logger          func(context.Context, string, map[string]any)
}

type checkoutService struct {
	carts    CartService
	orders   OrderService
	rate     decimal.Decimal
	now      func() time.Time
	logger   func(context.Context, string, map[string]any)
	sanitize *bluemonday.Policy
}

var _ CheckoutService = (*checkoutService)(nil)

// NewCheckoutService constructs a CheckoutService. A zero fee rate uses the default.
func NewCheckoutService(deps CheckoutServiceDeps) (CheckoutService, error) {
	if deps.Carts == nil {
		return nil, errCheckoutCartsRequired
	}
	if deps.Orders == nil {
		return nil, errCheckoutOrdersRequired
	}
	rate := deps.PlatformFeeRate
	if rate.IsZero() {
		rate = domain.DefaultPlatformFeeRate
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = noopLogger
	}
	return &checkoutService{
		carts:    deps.Carts,
		orders:   deps.Orders,
		rate:     rate,
		now:      func() time.Time { return clock().UTC() },
		logger:   logger,
		sanitize: bluemonday.StrictPolicy(),
	}, nil
}

// Quote prices the session cart for a payment method without placing an order.
func (s *checkoutService) Quote(ctx context.Context, sessionID string, method domain.PaymentMethod) (CheckoutQuote, error) {
	if method != "" && !validPaymentMethod(method) {
		return CheckoutQuote{}, &CheckoutValidationError{Fields: []string{"paymentMethod"}}
	}
	view, err := s.carts.GetCart(ctx, sessionID)
	if err != nil {
		return CheckoutQuote{}, err
	}
	return domain.QuoteCheckout(view.Summary.Subtotal, view.Summary.DeliveryFee, method, s.rate), nil
}

// Submit validates the form, places the order and clears the cart unless the customer
// still has to pay by pix.
func (s *checkoutService) Submit(ctx context.Context, cmd CheckoutCommand) (CheckoutResult, error) {
	view, err := s.carts.GetCart(ctx, cmd.SessionID)
	if err != nil {
		return CheckoutResult{}, err
	}

	cmd = s.sanitizeCommand(cmd)
	if fields := validateCheckout(view, cmd); len(fields) > 0 {
		return CheckoutResult{}, &CheckoutValidationError{Fields: fields}
	}
	if !view.Summary.MeetsMinimum {
		return CheckoutResult{}, fmt.Errorf("%w: %s", ErrCheckoutBelowMinimum, view.Summary.MinOrderLabel)
	}

	quote := domain.QuoteCheckout(view.Summary.Subtotal, view.Summary.DeliveryFee, cmd.PaymentMethod, s.rate)
	order := s.buildOrder(view, cmd, quote)

	created, err := s.orders.CreateOrder(ctx, cmd.SessionID, order)
	if err != nil {
		return CheckoutResult{}, err
	}

	result := CheckoutResult{Order: created, AwaitingPix: cmd.PaymentMethod == domain.PaymentMethodPix}
	if !result.AwaitingPix {
		result.CartWasCleared = s.clearCart(ctx, cmd.SessionID, created.ID)
	}
	return result, nil
}

// ConfirmPixPayment marks the session's pix order as paid and then clears the cart.
func (s *checkoutService) ConfirmPixPayment(ctx context.Context, sessionID string) (Order, error) {
	current, err := s.orders.CurrentOrder(ctx, sessionID)
	if err != nil {
		if errors.Is(err, ErrOrderNotFound) {
			return Order{}, ErrCheckoutNoPendingPayment
		}
		return Order{}, err
	}
	if current.PaymentMethod != domain.PaymentMethodPix {
		return Order{}, fmt.Errorf("%w: order %s is not a pix order", ErrCheckoutNoPendingPayment, current.ID)
	}

	paid := current
	if !current.PaymentPaid {
		paid, err = s.orders.MarkPaymentPaid(ctx, sessionID, current.ID)
		if err != nil {
			return Order{}, err
		}
	}
	s.clearCart(ctx, sessionID, current.ID)
	return paid, nil
}

func (s *checkoutService) clearCart(ctx context.Context, sessionID, orderID string) bool {
	if _, err := s.carts.Clear(ctx, sessionID); err != nil {
		s.logger(ctx, "checkout.cart_clear.failed", map[string]any{
			"orderID": orderID,
			"error":   err.Error(),
		})
		return false
	}
	return true
}

func (s *checkoutService) buildOrder(view CartView, cmd CheckoutCommand, quote domain.CheckoutQuote) domain.Order {
	items := make([]domain.CartItem, len(view.Cart.Items))
	copy(items, view.Cart.Items)

	status := domain.OrderStatusConfirmed
	if cmd.PaymentMethod == domain.PaymentMethodPix {
		status = domain.OrderStatusPendingPayment
	}

	now := s.now()
	order := domain.Order{
		RestaurantID:  view.Restaurant.ID,
		Restaurant:    view.Restaurant.Summary(),
		Items:         items,
		Customer:      cmd.Customer,
		CustomerName:  cmd.Customer.Name,
		DeliveryMode:  view.Cart.DeliveryMode,
		PaymentMethod: cmd.PaymentMethod,
		Subtotal:      quote.Subtotal,
		DeliveryFee:   quote.DeliveryFee,
		PlatformFee:   quote.PlatformFee,
		Discount:      decimal.Zero,
		Total:         quote.Total,
		Status:        status,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if view.Cart.DeliveryMode == domain.DeliveryModeDelivery && cmd.Address != nil {
		address := *cmd.Address
		order.DeliveryAddress = &address
	}
	if cmd.PaymentMethod == domain.PaymentMethodOnDelivery {
		sub := cmd.PaymentSubMethod
		order.PaymentSubMethod = &sub
	}
	return order
}

func validateCheckout(view CartView, cmd CheckoutCommand) []string {
	var fields []string
	if len(view.Cart.Items) == 0 || view.Restaurant == nil {
		fields = append(fields, "items")
	}
	if cmd.Customer.Name == "" {
		fields = append(fields, "customerInfo.name")
	}
	if cmd.Customer.Phone == "" {
		fields = append(fields, "customerInfo.phone")
	}
	if view.Cart.DeliveryMode == domain.DeliveryModeDelivery {
		if cmd.Address == nil {
			fields = append(fields, "deliveryAddress")
		} else {
			if cmd.Address.Street == "" {
				fields = append(fields, "deliveryAddress.street")
			}
			if cmd.Address.Number == "" {
				fields = append(fields, "deliveryAddress.number")
			}
			if cmd.Address.Neighborhood == "" {
				fields = append(fields, "deliveryAddress.neighborhood")
			}
		}
	}
	switch cmd.PaymentMethod {
	case domain.PaymentMethodPix:
	case domain.PaymentMethodOnDelivery:
		if cmd.PaymentSubMethod != domain.PaymentSubMethodCard && cmd.PaymentSubMethod != domain.PaymentSubMethodCash {
			fields = append(fields, "paymentSubMethod")
		}
	default:
		fields = append(fields, "paymentMethod")
	}
	return fields
}

func validPaymentMethod(method domain.PaymentMethod) bool {
	return method == domain.PaymentMethodPix || method == domain.PaymentMethodOnDelivery
}

func (s *checkoutService) sanitizeCommand(cmd CheckoutCommand) CheckoutCommand {
	cmd.SessionID = strings.TrimSpace(cmd.SessionID)
	cmd.Customer = domain.Customer{
		Name:  s.clean(cmd.Customer.Name),
		Phone: s.clean(cmd.Customer.Phone),
		Email: s.clean(cmd.Customer.Email),
	}
	if cmd.Address != nil {
		cmd.Address = &domain.Address{
			Street:       s.clean(cmd.Address.Street),
			Number:       s.clean(cmd.Address.Number),
			Complement:   s.clean(cmd.Address.Complement),
			Neighborhood: s.clean(cmd.Address.Neighborhood),
			City:         s.clean(cmd.Address.City),
			ZipCode:      s.clean(cmd.Address.ZipCode),
			Reference:    s.clean(cmd.Address.Reference),
		}
	}
	cmd.PaymentMethod = domain.PaymentMethod(strings.TrimSpace(string(cmd.PaymentMethod)))
	cmd.PaymentSubMethod = domain.PaymentSubMethod(strings.TrimSpace(string(cmd.PaymentSubMethod)))
	return cmd
}

// clean strips markup, decodes the entities bluemonday escapes and bounds the length.
func (s *checkoutService) clean(value string) string {
	cleaned := strings.TrimSpace(html.UnescapeString(s.sanitize.Sanitize(value)))
	if runes := []rune(cleaned); len(runes) > maxCheckoutFieldLength {
		cleaned = string(runes[:maxCheckoutFieldLength])
	}
	return cleaned
}
