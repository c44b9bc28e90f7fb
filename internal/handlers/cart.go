package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	domain "github.com/cardapio-field/api/internal/domain"
	"github.com/cardapio-field/api/internal/platform/httpx"
	"github.com/cardapio-field/api/internal/services"
)

const maxCartRequestBody = 16 * 1024

// CartHandlers exposes the session cart.
type CartHandlers struct {
	carts services.CartService
}

// NewCartHandlers constructs cart handlers backed by the cart service.
func NewCartHandlers(carts services.CartService) *CartHandlers {
	return &CartHandlers{carts: carts}
}

// Routes registers cart endpoints under the provided router.
func (h *CartHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Get("/", h.getCart)
	r.Delete("/", h.clearCart)
	r.Post("/items", h.addItem)
	r.Patch("/items/{itemID}", h.updateItem)
	r.Delete("/items/{itemID}", h.removeItem)
	r.Put("/delivery-mode", h.setDeliveryMode)
	r.Put("/open", h.setOpen)
	r.Post("/coupon", h.applyCoupon)
	r.Patch("/coupon", h.editCoupon)
	r.Delete("/coupon", h.removeCoupon)
}

type addCartItemRequest struct {
	RestaurantID string            `json:"restaurantId"`
	ProductID    string            `json:"productId"`
	Options      map[string]string `json:"options"`
	Quantity     *int              `json:"quantity"`
}

type updateCartItemRequest struct {
	Quantity *int `json:"quantity"`
}

type deliveryModeRequest struct {
	Mode string `json:"mode"`
}

type cartOpenRequest struct {
	Open bool `json:"open"`
}

type couponRequest struct {
	Code string `json:"code"`
}

func (h *CartHandlers) getCart(w http.ResponseWriter, r *http.Request) {
	h.serve(w, r, func(ctx context.Context, sessionID string) (services.CartView, error) {
		return h.carts.GetCart(ctx, sessionID)
	})
}

func (h *CartHandlers) clearCart(w http.ResponseWriter, r *http.Request) {
	h.serve(w, r, func(ctx context.Context, sessionID string) (services.CartView, error) {
		return h.carts.Clear(ctx, sessionID)
	})
}

func (h *CartHandlers) addItem(w http.ResponseWriter, r *http.Request) {
	var req addCartItemRequest
	if !decodeBody(w, r, maxCartRequestBody, &req) {
		return
	}
	quantity := 1
	if req.Quantity != nil {
		quantity = *req.Quantity
	}
	h.serveWithStatus(w, r, http.StatusCreated, func(ctx context.Context, sessionID string) (services.CartView, error) {
		return h.carts.AddItem(ctx, services.AddCartItemCommand{
			SessionID:    sessionID,
			RestaurantID: strings.TrimSpace(req.RestaurantID),
			ProductID:    strings.TrimSpace(req.ProductID),
			Options:      req.Options,
			Quantity:     quantity,
		})
	})
}

func (h *CartHandlers) updateItem(w http.ResponseWriter, r *http.Request) {
	var req updateCartItemRequest
	if !decodeBody(w, r, maxCartRequestBody, &req) {
		return
	}
	if req.Quantity == nil {
		httpx.WriteError(r.Context(), w, httpx.NewError("invalid_request", "quantity is required", http.StatusBadRequest).WithFields("quantity"))
		return
	}
	itemID := strings.TrimSpace(chi.URLParam(r, "itemID"))
	h.serve(w, r, func(ctx context.Context, sessionID string) (services.CartView, error) {
		return h.carts.UpdateItemQuantity(ctx, sessionID, itemID, *req.Quantity)
	})
}

func (h *CartHandlers) removeItem(w http.ResponseWriter, r *http.Request) {
	itemID := strings.TrimSpace(chi.URLParam(r, "itemID"))
	h.serve(w, r, func(ctx context.Context, sessionID string) (services.CartView, error) {
		return h.carts.RemoveItem(ctx, sessionID, itemID)
	})
}

func (h *CartHandlers) setDeliveryMode(w http.ResponseWriter, r *http.Request) {
	var req deliveryModeRequest
	if !decodeBody(w, r, maxCartRequestBody, &req) {
		return
	}
	mode := domain.DeliveryMode(strings.ToLower(strings.TrimSpace(req.Mode)))
	h.serve(w, r, func(ctx context.Context, sessionID string) (services.CartView, error) {
		return h.carts.SetDeliveryMode(ctx, sessionID, mode)
	})
}

func (h *CartHandlers) setOpen(w http.ResponseWriter, r *http.Request) {
	var req cartOpenRequest
	if !decodeBody(w, r, maxCartRequestBody, &req) {
		return
	}
	h.serve(w, r, func(ctx context.Context, sessionID string) (services.CartView, error) {
		return h.carts.SetOpen(ctx, sessionID, req.Open)
	})
}

func (h *CartHandlers) applyCoupon(w http.ResponseWriter, r *http.Request) {
	var req couponRequest
	if !decodeBody(w, r, maxCartRequestBody, &req) {
		return
	}
	h.serve(w, r, func(ctx context.Context, sessionID string) (services.CartView, error) {
		return h.carts.ApplyCoupon(ctx, sessionID, req.Code)
	})
}

func (h *CartHandlers) editCoupon(w http.ResponseWriter, r *http.Request) {
	var req couponRequest
	if !decodeBody(w, r, maxCartRequestBody, &req) {
		return
	}
	h.serve(w, r, func(ctx context.Context, sessionID string) (services.CartView, error) {
		return h.carts.EditCouponCode(ctx, sessionID, req.Code)
	})
}

func (h *CartHandlers) removeCoupon(w http.ResponseWriter, r *http.Request) {
	h.serve(w, r, func(ctx context.Context, sessionID string) (services.CartView, error) {
		return h.carts.RemoveCoupon(ctx, sessionID)
	})
}

func (h *CartHandlers) serve(w http.ResponseWriter, r *http.Request, fn func(context.Context, string) (services.CartView, error)) {
	h.serveWithStatus(w, r, http.StatusOK, fn)
}

func (h *CartHandlers) serveWithStatus(w http.ResponseWriter, r *http.Request, status int, fn func(context.Context, string) (services.CartView, error)) {
	ctx := r.Context()
	if h.carts == nil {
		httpx.WriteError(ctx, w, httpx.NewError("cart_service_unavailable", "cart service unavailable", http.StatusServiceUnavailable))
		return
	}
	sessionID, ok := sessionFromContext(ctx, w)
	if !ok {
		return
	}
	view, err := fn(ctx, sessionID)
	if err != nil {
		writeCartError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, status, view)
}

func writeCartError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrCartInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_cart_request", cleanServiceMessage(err), http.StatusBadRequest))
	case errors.Is(err, services.ErrCartItemNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("cart_item_not_found", "cart item not found", http.StatusNotFound))
	case errors.Is(err, services.ErrCartRestaurantMismatch):
		httpx.WriteError(ctx, w, httpx.NewError("cart_restaurant_mismatch", "cart already holds items from another restaurant", http.StatusConflict))
	case errors.Is(err, services.ErrCartUnavailable):
		httpx.WriteError(ctx, w, httpx.NewError("cart_unavailable", "cart is temporarily unavailable", http.StatusServiceUnavailable))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("cart_error", "failed to process cart request", http.StatusInternalServerError))
	}
}
