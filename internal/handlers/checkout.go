package handlers

import (
	"context"
	"errors"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	domain "github.com/cardapio-field/api/internal/domain"
	"github.com/cardapio-field/api/internal/platform/httpx"
	"github.com/cardapio-field/api/internal/services"
)

const (
	maxCheckoutRequestBody = 8 * 1024

	defaultSubmitLimit  = 5
	defaultSubmitWindow = time.Minute
)

// CheckoutHandlers exposes quoting, order placement and pix confirmation for the session cart.
type CheckoutHandlers struct {
	checkout services.CheckoutService
	limiter  submitLimiter
}

// CheckoutOption customises CheckoutHandlers.
type CheckoutOption func(*CheckoutHandlers)

// WithCheckoutSubmitLimit allows at most limit order submissions per session within window.
// A non-positive limit disables the check.
func WithCheckoutSubmitLimit(limit int, window time.Duration, clock func() time.Time) CheckoutOption {
	return func(h *CheckoutHandlers) {
		if l := newWindowLimiter(limit, window, clock); l != nil {
			h.limiter = l
			return
		}
		h.limiter = nil
	}
}

// NewCheckoutHandlers constructs checkout handlers.
func NewCheckoutHandlers(checkout services.CheckoutService, opts ...CheckoutOption) *CheckoutHandlers {
	h := &CheckoutHandlers{
		checkout: checkout,
		limiter:  newWindowLimiter(defaultSubmitLimit, defaultSubmitWindow, nil),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	return h
}

// Routes registers checkout endpoints under the provided router.
func (h *CheckoutHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/", h.submit)
	r.Post("/quote", h.quote)
	r.Post("/pix:confirm", h.confirmPix)
}

type quoteRequest struct {
	PaymentMethod string `json:"paymentMethod"`
}

type checkoutRequest struct {
	Customer struct {
		Name  string `json:"name"`
		Phone string `json:"phone"`
		Email string `json:"email"`
	} `json:"customerInfo"`
	DeliveryAddress  *domain.Address `json:"deliveryAddress"`
	PaymentMethod    string          `json:"paymentMethod"`
	PaymentSubMethod string          `json:"paymentSubMethod"`
}

func (h *CheckoutHandlers) quote(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if !h.ready(ctx, w) {
		return
	}
	sessionID, ok := sessionFromContext(ctx, w)
	if !ok {
		return
	}
	var req quoteRequest
	if !decodeBody(w, r, maxCheckoutRequestBody, &req) {
		return
	}
	quote, err := h.checkout.Quote(ctx, sessionID, paymentMethod(req.PaymentMethod))
	if err != nil {
		writeCheckoutError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, quote)
}

func (h *CheckoutHandlers) submit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if !h.ready(ctx, w) {
		return
	}
	sessionID, ok := sessionFromContext(ctx, w)
	if !ok {
		return
	}
	var req checkoutRequest
	if !decodeBody(w, r, maxCheckoutRequestBody, &req) {
		return
	}
	if h.limiter != nil {
		if wait, allowed := h.limiter.Allow(sessionID); !allowed {
			w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(wait.Seconds()))))
			httpx.WriteError(ctx, w, httpx.NewError("too_many_requests", "too many checkout attempts", http.StatusTooManyRequests))
			return
		}
	}

	result, err := h.checkout.Submit(ctx, services.CheckoutCommand{
		SessionID: sessionID,
		Customer: domain.Customer{
			Name:  req.Customer.Name,
			Phone: req.Customer.Phone,
			Email: strings.TrimSpace(req.Customer.Email),
		},
		Address:          req.DeliveryAddress,
		PaymentMethod:    paymentMethod(req.PaymentMethod),
		PaymentSubMethod: domain.PaymentSubMethod(strings.ToLower(strings.TrimSpace(req.PaymentSubMethod))),
	})
	if err != nil {
		writeCheckoutError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, result)
}

func (h *CheckoutHandlers) confirmPix(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if !h.ready(ctx, w) {
		return
	}
	sessionID, ok := sessionFromContext(ctx, w)
	if !ok {
		return
	}
	order, err := h.checkout.ConfirmPixPayment(ctx, sessionID)
	if err != nil {
		writeCheckoutError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, order)
}

func (h *CheckoutHandlers) ready(ctx context.Context, w http.ResponseWriter) bool {
	if h.checkout == nil {
		httpx.WriteError(ctx, w, httpx.NewError("checkout_service_unavailable", "checkout service unavailable", http.StatusServiceUnavailable))
		return false
	}
	return true
}

func paymentMethod(raw string) domain.PaymentMethod {
	return domain.PaymentMethod(strings.ToLower(strings.TrimSpace(raw)))
}

func writeCheckoutError(ctx context.Context, w http.ResponseWriter, err error) {
	var validation *services.CheckoutValidationError
	switch {
	case errors.As(err, &validation):
		httpx.WriteError(ctx, w, httpx.NewError("checkout_validation_failed", "checkout form is incomplete or invalid", http.StatusUnprocessableEntity).WithFields(validation.Fields...))
	case errors.Is(err, services.ErrCheckoutValidation):
		httpx.WriteError(ctx, w, httpx.NewError("checkout_validation_failed", cleanServiceMessage(err), http.StatusUnprocessableEntity))
	case errors.Is(err, services.ErrCheckoutBelowMinimum):
		httpx.WriteError(ctx, w, httpx.NewError("below_minimum_order", cleanServiceMessage(err), http.StatusUnprocessableEntity))
	case errors.Is(err, services.ErrCheckoutNoPendingPayment):
		httpx.WriteError(ctx, w, httpx.NewError("no_pending_payment", "no pix payment is pending for this session", http.StatusConflict))
	case isOrderError(err):
		writeOrderError(ctx, w, err)
	default:
		writeCartError(ctx, w, err)
	}
}
