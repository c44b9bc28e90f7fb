// Package memory provides process-local stores used for local runs and tests.
package memory

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	domain "github.com/cardapio-field/api/internal/domain"
	"github.com/cardapio-field/api/internal/repositories"
)

type cartEntry struct {
	data      []byte
	expiresAt time.Time
}

// CartRepository keeps carts in a map with an optional TTL. Carts are stored serialised
// so callers never share slices or maps with the store.
type CartRepository struct {
	mu    sync.Mutex
	carts map[string]cartEntry
	ttl   time.Duration
	now   func() time.Time
}

var _ repositories.CartRepository = (*CartRepository)(nil)

// NewCartRepository constructs an in-memory cart store. ttl <= 0 disables expiry.
func NewCartRepository(ttl time.Duration, clock func() time.Time) *CartRepository {
	if clock == nil {
		clock = time.Now
	}
	return &CartRepository{carts: make(map[string]cartEntry), ttl: ttl, now: clock}
}

func (r *CartRepository) Get(_ context.Context, sessionID string) (domain.Cart, error) {
	r.mu.Lock()
	entry, ok := r.carts[sessionID]
	if ok && !entry.expiresAt.IsZero() && !r.now().Before(entry.expiresAt) {
		delete(r.carts, sessionID)
		ok = false
	}
	r.mu.Unlock()
	if !ok {
		return domain.Cart{}, repositories.NotFound("memory.carts.get", "cart")
	}

	var cart domain.Cart
	if err := json.Unmarshal(entry.data, &cart); err != nil {
		return domain.Cart{}, repositories.NewStoreError("memory.carts.get", repositories.StoreErrorUnknown, err)
	}
	return cart, nil
}

func (r *CartRepository) Save(_ context.Context, cart domain.Cart) error {
	data, err := json.Marshal(cart)
	if err != nil {
		return repositories.NewStoreError("memory.carts.save", repositories.StoreErrorUnknown, err)
	}
	entry := cartEntry{data: data}
	if r.ttl > 0 {
		entry.expiresAt = r.now().Add(r.ttl)
	}
	r.mu.Lock()
	r.carts[cart.SessionID] = entry
	r.mu.Unlock()
	return nil
}

func (r *CartRepository) Delete(_ context.Context, sessionID string) error {
	r.mu.Lock()
	delete(r.carts, sessionID)
	r.mu.Unlock()
	return nil
}

// CurrentOrderRepository keeps one order per session.
type CurrentOrderRepository struct {
	mu     sync.Mutex
	orders map[string][]byte
}

var _ repositories.CurrentOrderRepository = (*CurrentOrderRepository)(nil)

// NewCurrentOrderRepository constructs an empty in-memory current-order store.
func NewCurrentOrderRepository() *CurrentOrderRepository {
	return &CurrentOrderRepository{orders: make(map[string][]byte)}
}

func (r *CurrentOrderRepository) Get(_ context.Context, sessionID string) (domain.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.load("memory.currentOrders.get", sessionID)
}

func (r *CurrentOrderRepository) Save(_ context.Context, sessionID string, order domain.Order) error {
	data, err := json.Marshal(order)
	if err != nil {
		return repositories.NewStoreError("memory.currentOrders.save", repositories.StoreErrorUnknown, err)
	}
	r.mu.Lock()
	r.orders[sessionID] = data
	r.mu.Unlock()
	return nil
}

func (r *CurrentOrderRepository) Delete(_ context.Context, sessionID string) error {
	r.mu.Lock()
	delete(r.orders, sessionID)
	r.mu.Unlock()
	return nil
}

func (r *CurrentOrderRepository) Update(_ context.Context, sessionID string, fn func(*domain.Order) error) (domain.Order, error) {
	const op = "memory.currentOrders.update"
	r.mu.Lock()
	defer r.mu.Unlock()

	order, err := r.load(op, sessionID)
	if err != nil {
		return domain.Order{}, err
	}
	if err := fn(&order); err != nil {
		return domain.Order{}, err
	}
	data, err := json.Marshal(order)
	if err != nil {
		return domain.Order{}, repositories.NewStoreError(op, repositories.StoreErrorUnknown, err)
	}
	r.orders[sessionID] = data
	return order, nil
}

func (r *CurrentOrderRepository) load(op, sessionID string) (domain.Order, error) {
	data, ok := r.orders[sessionID]
	if !ok {
		return domain.Order{}, repositories.NotFound(op, "current order")
	}
	var order domain.Order
	if err := json.Unmarshal(data, &order); err != nil {
		return domain.Order{}, repositories.NewStoreError(op, repositories.StoreErrorUnknown, err)
	}
	return order, nil
}
