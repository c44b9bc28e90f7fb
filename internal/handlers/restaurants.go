package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/cardapio-field/api/internal/platform/httpx"
	"github.com/cardapio-field/api/internal/services"
)

const menuCacheMaxAge = 60 * time.Second

// RestaurantHandlers serves the public menu of a restaurant.
type RestaurantHandlers struct {
	catalog services.CatalogService
}

// NewRestaurantHandlers constructs public catalog handlers.
func NewRestaurantHandlers(catalog services.CatalogService) *RestaurantHandlers {
	return &RestaurantHandlers{catalog: catalog}
}

// Routes registers catalog endpoints under the provided router.
func (h *RestaurantHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Get("/{slug}", h.getMenu)
}

func (h *RestaurantHandlers) getMenu(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.catalog == nil {
		httpx.WriteError(ctx, w, httpx.NewError("catalog_service_unavailable", "catalog service unavailable", http.StatusServiceUnavailable))
		return
	}
	slug := strings.ToLower(strings.TrimSpace(chi.URLParam(r, "slug")))
	menu, err := h.catalog.Menu(ctx, slug)
	if err != nil {
		writeCatalogError(ctx, w, err)
		return
	}
	w.Header().Set("Cache-Control", "public, max-age="+strconv.Itoa(int(menuCacheMaxAge.Seconds())))
	httpx.WriteJSON(w, http.StatusOK, menu)
}

func writeCatalogError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrCatalogInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", cleanServiceMessage(err), http.StatusBadRequest))
	case errors.Is(err, services.ErrCatalogNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("restaurant_not_found", "restaurant not found", http.StatusNotFound))
	case errors.Is(err, services.ErrCatalogUnavailable):
		httpx.WriteError(ctx, w, httpx.NewError("catalog_unavailable", "catalog is temporarily unavailable", http.StatusServiceUnavailable))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("catalog_error", "failed to load menu", http.StatusInternalServerError))
	}
}
