package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	domain "github.com/cardapio-field/api/internal/domain"
)

var errCatalogGatewayRequired = errors.New("catalog service: gateway is required")

// ErrCatalogNotFound indicates the restaurant or product does not exist.
var ErrCatalogNotFound = errors.New("catalog service: not found")

// ErrCatalogUnavailable indicates the catalog could not be read from the Order API.
var ErrCatalogUnavailable = errors.New("catalog service: unavailable")

// ErrCatalogInvalidInput indicates a missing identifier.
var ErrCatalogInvalidInput = errors.New("catalog service: invalid input")

const defaultCatalogTTL = time.Minute

// CatalogServiceDeps wires the catalog service.
type CatalogServiceDeps struct {
	Gateway  CatalogGateway
	CacheTTL time.Duration
	Clock    func() time.Time
	Logger   func(context.Context, string, map[string]any)
}

type catalogEntry struct {
	value     any
	expiresAt time.Time
}

type catalogService struct {
	gateway CatalogGateway
	ttl     time.Duration
	now     func() time.Time
	logger  func(context.Context, string, map[string]any)

	group singleflight.Group
	mu    sync.RWMutex
	cache map[string]catalogEntry
}

var _ CatalogService = (*catalogService)(nil)

// NewCatalogService constructs a caching catalog reader. A negative TTL disables caching.
func NewCatalogService(deps CatalogServiceDeps) (CatalogService, error) {
	if deps.Gateway == nil {
		return nil, errCatalogGatewayRequired
	}
	ttl := deps.CacheTTL
	if ttl == 0 {
		ttl = defaultCatalogTTL
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = noopLogger
	}
	return &catalogService{
		gateway: deps.Gateway,
		ttl:     ttl,
		now:     clock,
		logger:  logger,
		cache:   make(map[string]catalogEntry),
	}, nil
}

func (s *catalogService) Menu(ctx context.Context, slug string) (Menu, error) {
	slug = strings.TrimSpace(slug)
	if slug == "" {
		return Menu{}, fmt.Errorf("%w: slug is required", ErrCatalogInvalidInput)
	}
	restaurant, err := cached(ctx, s, "slug:"+slug, func(ctx context.Context) (domain.Restaurant, error) {
		return s.gateway.GetRestaurantBySlug(ctx, slug)
	})
	if err != nil {
		return Menu{}, s.translate(ctx, "catalog.menu.failed", err)
	}
	// Prime the id lookup used by the cart.
	s.store("restaurant:"+restaurant.ID, restaurant)

	categories, err := cached(ctx, s, "categories:"+restaurant.ID, func(ctx context.Context) ([]domain.Category, error) {
		return s.gateway.ListCategories(ctx, restaurant.ID)
	})
	if err != nil {
		return Menu{}, s.translate(ctx, "catalog.categories.failed", err)
	}
	products, err := s.products(ctx, restaurant.ID)
	if err != nil {
		return Menu{}, err
	}
	if categories == nil {
		categories = []domain.Category{}
	}
	return Menu{Restaurant: restaurant, Categories: categories, Products: products}, nil
}

func (s *catalogService) Restaurant(ctx context.Context, restaurantID string) (Restaurant, error) {
	restaurantID = strings.TrimSpace(restaurantID)
	if restaurantID == "" {
		return Restaurant{}, fmt.Errorf("%w: restaurant id is required", ErrCatalogInvalidInput)
	}
	restaurant, err := cached(ctx, s, "restaurant:"+restaurantID, func(ctx context.Context) (domain.Restaurant, error) {
		return s.gateway.GetRestaurant(ctx, restaurantID)
	})
	if err != nil {
		return Restaurant{}, s.translate(ctx, "catalog.restaurant.failed", err)
	}
	return restaurant, nil
}

func (s *catalogService) Product(ctx context.Context, restaurantID, productID string) (Product, error) {
	restaurantID = strings.TrimSpace(restaurantID)
	productID = strings.TrimSpace(productID)
	if restaurantID == "" || productID == "" {
		return Product{}, fmt.Errorf("%w: restaurant and product ids are required", ErrCatalogInvalidInput)
	}
	products, err := s.products(ctx, restaurantID)
	if err != nil {
		return Product{}, err
	}
	for _, product := range products {
		if product.ID == productID {
			return product, nil
		}
	}
	return Product{}, fmt.Errorf("%w: product %s", ErrCatalogNotFound, productID)
}

func (s *catalogService) products(ctx context.Context, restaurantID string) ([]domain.Product, error) {
	products, err := cached(ctx, s, "products:"+restaurantID, func(ctx context.Context) ([]domain.Product, error) {
		return s.gateway.ListProducts(ctx, restaurantID)
	})
	if err != nil {
		return nil, s.translate(ctx, "catalog.products.failed", err)
	}
	if products == nil {
		products = []domain.Product{}
	}
	return products, nil
}

// cached serves key from the cache or loads it once for all concurrent callers.
func cached[T any](ctx context.Context, s *catalogService, key string, load func(context.Context) (T, error)) (T, error) {
	if value, ok := s.lookup(key); ok {
		if typed, ok := value.(T); ok {
			return typed, nil
		}
	}
	v, err, _ := s.group.Do(key, func() (any, error) {
		value, err := load(ctx)
		if err != nil {
			return nil, err
		}
		s.store(key, value)
		return value, nil
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return v.(T), nil
}

func (s *catalogService) lookup(key string) (any, bool) {
	if s.ttl < 0 {
		return nil, false
	}
	s.mu.RLock()
	entry, ok := s.cache[key]
	s.mu.RUnlock()
	if !ok || !s.now().Before(entry.expiresAt) {
		return nil, false
	}
	return entry.value, true
}

func (s *catalogService) store(key string, value any) {
	if s.ttl < 0 {
		return
	}
	s.mu.Lock()
	s.cache[key] = catalogEntry{value: value, expiresAt: s.now().Add(s.ttl)}
	s.mu.Unlock()
}

func (s *catalogService) translate(ctx context.Context, event string, err error) error {
	if isContextError(err) {
		return err
	}
	if isGatewayNotFound(err) {
		return fmt.Errorf("%w: %v", ErrCatalogNotFound, err)
	}
	s.logger(ctx, event, map[string]any{"error": err.Error()})
	return fmt.Errorf("%w: %v", ErrCatalogUnavailable, err)
}
