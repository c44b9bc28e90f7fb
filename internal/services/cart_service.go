package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/shopspring/decimal"

	domain "github.com/cardapio-field/api/internal/domain"
	"github.com/cardapio-field/api/internal/repositories"
)

var (
	errCartRepositoryRequired = errors.New("cart service: repository is required")
	errCartCatalogRequired    = errors.New("cart service: catalog is required")
)

// ErrCartInvalidInput indicates the caller supplied invalid input.
var ErrCartInvalidInput = errors.New("cart service: invalid input")

// ErrCartUnavailable indicates the cart store or the catalog could not be reached.
var ErrCartUnavailable = errors.New("cart service: unavailable")

// ErrCartItemNotFound indicates the line to update is not in the cart.
var ErrCartItemNotFound = errors.New("cart service: item not found")

// ErrCartRestaurantMismatch indicates a product from another restaurant was added to a
// non-empty cart.
var ErrCartRestaurantMismatch = errors.New("cart service: cart belongs to another restaurant")

const maxCartItemQuantity = 99

// CartServiceDeps wires the repository and catalog dependencies for cart operations.
type CartServiceDeps struct {
	Repository  repositories.CartRepository
	Catalog     CatalogService
	Coupons     *domain.CouponTable
	Clock       func() time.Time
	Logger      func(context.Context, string, map[string]any)
	IDGenerator func() string
}

type cartService struct {
	repo    repositories.CartRepository
	catalog CatalogService
	coupons domain.CouponTable
	newID   func() string
	now     func() time.Time
	logger  func(context.Context, string, map[string]any)
	locks   *keyedMutex
}

var _ CartService = (*cartService)(nil)

// NewCartService constructs a CartService enforcing dependency validation.
func NewCartService(deps CartServiceDeps) (CartService, error) {
	if deps.Repository == nil {
		return nil, errCartRepositoryRequired
	}
	if deps.Catalog == nil {
		return nil, errCartCatalogRequired
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = noopLogger
	}
	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string { return ulid.Make().String() }
	}
	coupons := domain.DefaultCouponTable()
	if deps.Coupons != nil {
		coupons = *deps.Coupons
	}

	return &cartService{
		repo:    deps.Repository,
		catalog: deps.Catalog,
		coupons: coupons,
		newID:   idGen,
		now:     func() time.Time { return clock().UTC() },
		logger:  logger,
		locks:   newKeyedMutex(),
	}, nil
}

func (s *cartService) NewSessionID() string {
	return s.newID()
}

// GetCart returns the session cart, or an empty delivery cart when none is stored.
func (s *cartService) GetCart(ctx context.Context, sessionID string) (CartView, error) {
	sid := strings.TrimSpace(sessionID)
	if sid == "" {
		return CartView{}, fmt.Errorf("%w: session id is required", ErrCartInvalidInput)
	}
	cart, err := s.load(ctx, sid)
	if err != nil {
		return CartView{}, err
	}
	return s.view(ctx, cart)
}

func (s *cartService) AddItem(ctx context.Context, cmd AddCartItemCommand) (CartView, error) {
	restaurantID := strings.TrimSpace(cmd.RestaurantID)
	productID := strings.TrimSpace(cmd.ProductID)
	if restaurantID == "" || productID == "" {
		return CartView{}, fmt.Errorf("%w: restaurant and product are required", ErrCartInvalidInput)
	}
	if cmd.Quantity < 1 || cmd.Quantity > maxCartItemQuantity {
		return CartView{}, fmt.Errorf("%w: quantity must be between 1 and %d", ErrCartInvalidInput, maxCartItemQuantity)
	}

	product, err := s.catalog.Product(ctx, restaurantID, productID)
	if err != nil {
		return CartView{}, translateCatalogError(err)
	}
	options, err := ResolveSelection(product, cmd.Options)
	if err != nil {
		return CartView{}, err
	}

	return s.mutate(ctx, cmd.SessionID, func(cart *domain.Cart, _ *domain.Restaurant) error {
		if cart.RestaurantID != "" && cart.RestaurantID != restaurantID {
			if len(cart.Items) > 0 {
				return ErrCartRestaurantMismatch
			}
			cart.RemoveCoupon()
		}
		cart.RestaurantID = restaurantID
		if existing, ok := cart.Item(domain.CartItemID(product.ID, options)); ok && existing.Quantity+cmd.Quantity > maxCartItemQuantity {
			return fmt.Errorf("%w: quantity must be at most %d", ErrCartInvalidInput, maxCartItemQuantity)
		}
		if _, err := cart.AddItem(product, options, cmd.Quantity); err != nil {
			return fmt.Errorf("%w: %v", ErrCartInvalidInput, err)
		}
		return nil
	})
}

func (s *cartService) UpdateItemQuantity(ctx context.Context, sessionID, itemID string, quantity int) (CartView, error) {
	if quantity > maxCartItemQuantity {
		return CartView{}, fmt.Errorf("%w: quantity must be at most %d", ErrCartInvalidInput, maxCartItemQuantity)
	}
	return s.mutate(ctx, sessionID, func(cart *domain.Cart, _ *domain.Restaurant) error {
		if _, ok := cart.Item(itemID); !ok && quantity > 0 {
			return ErrCartItemNotFound
		}
		cart.UpdateQuantity(itemID, quantity)
		return nil
	})
}

func (s *cartService) RemoveItem(ctx context.Context, sessionID, itemID string) (CartView, error) {
	return s.mutate(ctx, sessionID, func(cart *domain.Cart, _ *domain.Restaurant) error {
		cart.RemoveItem(itemID)
		return nil
	})
}

func (s *cartService) Clear(ctx context.Context, sessionID string) (CartView, error) {
	return s.mutate(ctx, sessionID, func(cart *domain.Cart, _ *domain.Restaurant) error {
		cart.Clear()
		return nil
	})
}

func (s *cartService) SetDeliveryMode(ctx context.Context, sessionID string, mode domain.DeliveryMode) (CartView, error) {
	if !mode.Valid() {
		return CartView{}, fmt.Errorf("%w: unknown delivery mode %q", ErrCartInvalidInput, mode)
	}
	return s.mutate(ctx, sessionID, func(cart *domain.Cart, _ *domain.Restaurant) error {
		cart.DeliveryMode = mode
		return nil
	})
}

func (s *cartService) SetOpen(ctx context.Context, sessionID string, open bool) (CartView, error) {
	return s.mutate(ctx, sessionID, func(cart *domain.Cart, _ *domain.Restaurant) error {
		cart.Open = open
		return nil
	})
}

// ApplyCoupon never fails on an unknown code; the cart records an invalid coupon status.
func (s *cartService) ApplyCoupon(ctx context.Context, sessionID, code string) (CartView, error) {
	return s.mutate(ctx, sessionID, func(cart *domain.Cart, restaurant *domain.Restaurant) error {
		cart.ApplyCoupon(code, s.coupons, deliveryFeeFor(cart, restaurant))
		return nil
	})
}

func (s *cartService) EditCouponCode(ctx context.Context, sessionID, code string) (CartView, error) {
	return s.mutate(ctx, sessionID, func(cart *domain.Cart, _ *domain.Restaurant) error {
		cart.EditCouponCode(code)
		return nil
	})
}

func (s *cartService) RemoveCoupon(ctx context.Context, sessionID string) (CartView, error) {
	return s.mutate(ctx, sessionID, func(cart *domain.Cart, _ *domain.Restaurant) error {
		cart.RemoveCoupon()
		return nil
	})
}

// mutate loads the cart under the session lock, applies fn, re-prices an applied coupon
// and saves the result.
func (s *cartService) mutate(ctx context.Context, sessionID string, fn func(*domain.Cart, *domain.Restaurant) error) (CartView, error) {
	sid := strings.TrimSpace(sessionID)
	if sid == "" {
		return CartView{}, fmt.Errorf("%w: session id is required", ErrCartInvalidInput)
	}

	unlock := s.locks.Lock(sid)
	defer unlock()

	cart, err := s.load(ctx, sid)
	if err != nil {
		return CartView{}, err
	}
	restaurant, err := s.restaurant(ctx, cart.RestaurantID)
	if err != nil {
		return CartView{}, err
	}

	previousRestaurant := cart.RestaurantID
	if err := fn(&cart, restaurant); err != nil {
		return CartView{}, err
	}
	if cart.RestaurantID != previousRestaurant {
		if restaurant, err = s.restaurant(ctx, cart.RestaurantID); err != nil {
			return CartView{}, err
		}
	}

	s.repriceCoupon(&cart, restaurant)
	cart.UpdatedAt = s.now()
	if err := s.repo.Save(ctx, cart); err != nil {
		return CartView{}, s.translateRepoError(ctx, err)
	}
	return s.viewWith(cart, restaurant), nil
}

// repriceCoupon keeps an applied coupon in line with the current subtotal and fee so a
// fixed discount never exceeds the subtotal after items are removed.
func (s *cartService) repriceCoupon(cart *domain.Cart, restaurant *domain.Restaurant) {
	if cart.Coupon.Status != domain.CouponStatusApplied {
		return
	}
	input := cart.Coupon.Input
	cart.ApplyCoupon(cart.Coupon.Code, s.coupons, deliveryFeeFor(cart, restaurant))
	cart.Coupon.Input = input
}

func (s *cartService) load(ctx context.Context, sessionID string) (domain.Cart, error) {
	cart, err := s.repo.Get(ctx, sessionID)
	if err != nil {
		if isRepoNotFound(err) {
			return domain.NewCart(sessionID, s.now()), nil
		}
		return domain.Cart{}, s.translateRepoError(ctx, err)
	}
	if cart.Items == nil {
		cart.Items = []domain.CartItem{}
	}
	if !cart.DeliveryMode.Valid() {
		cart.DeliveryMode = domain.DeliveryModeDelivery
	}
	cart.SessionID = sessionID
	return cart, nil
}

func (s *cartService) restaurant(ctx context.Context, restaurantID string) (*domain.Restaurant, error) {
	if restaurantID == "" {
		return nil, nil
	}
	restaurant, err := s.catalog.Restaurant(ctx, restaurantID)
	if err != nil {
		s.logger(ctx, "cart.restaurant_lookup.failed", map[string]any{
			"restaurantID": restaurantID,
			"error":        err.Error(),
		})
		return nil, translateCatalogError(err)
	}
	return &restaurant, nil
}

func (s *cartService) view(ctx context.Context, cart domain.Cart) (CartView, error) {
	restaurant, err := s.restaurant(ctx, cart.RestaurantID)
	if err != nil {
		return CartView{}, err
	}
	return s.viewWith(cart, restaurant), nil
}

func (s *cartService) viewWith(cart domain.Cart, restaurant *domain.Restaurant) CartView {
	var r domain.Restaurant
	if restaurant != nil {
		r = *restaurant
	}
	return CartView{
		Cart:       cart,
		Summary:    cart.Summarize(r),
		Restaurant: restaurant,
	}
}

func deliveryFeeFor(cart *domain.Cart, restaurant *domain.Restaurant) decimal.Decimal {
	if restaurant == nil {
		return decimal.Zero
	}
	return cart.DeliveryFee(*restaurant)
}

func (s *cartService) translateRepoError(ctx context.Context, err error) error {
	if err == nil {
		return nil
	}
	if isContextError(err) {
		return err
	}
	s.logger(ctx, "cart.store.failed", map[string]any{"error": err.Error()})
	return fmt.Errorf("%w: %v", ErrCartUnavailable, err)
}

func translateCatalogError(err error) error {
	switch {
	case errors.Is(err, ErrCatalogNotFound), errors.Is(err, ErrCatalogInvalidInput):
		return fmt.Errorf("%w: %v", ErrCartInvalidInput, err)
	case isContextError(err):
		return err
	default:
		return fmt.Errorf("%w: %v", ErrCartUnavailable, err)
	}
}
