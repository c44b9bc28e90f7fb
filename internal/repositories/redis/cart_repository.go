// Package redis stores session carts in Redis.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"time"

	goredis "github.com/redis/go-redis/v9"

	domain "github.com/cardapio-field/api/internal/domain"
	"github.com/cardapio-field/api/internal/repositories"
)

const keyPrefix = "cart:"

// CartRepository keeps each session cart as a JSON string with a sliding TTL: every Save
// pushes the expiry forward.
type CartRepository struct {
	client goredis.UniversalClient
	ttl    time.Duration
}

var _ repositories.CartRepository = (*CartRepository)(nil)

// NewCartRepository constructs a Redis cart store. ttl <= 0 keeps carts forever.
func NewCartRepository(client goredis.UniversalClient, ttl time.Duration) *CartRepository {
	return &CartRepository{client: client, ttl: ttl}
}

func (r *CartRepository) Get(ctx context.Context, sessionID string) (domain.Cart, error) {
	data, err := r.client.Get(ctx, cartKey(sessionID)).Bytes()
	if errors.Is(err, goredis.Nil) {
		return domain.Cart{}, repositories.NotFound("redis.carts.get", "cart")
	}
	if err != nil {
		return domain.Cart{}, wrap("redis.carts.get", err)
	}

	var cart domain.Cart
	if err := json.Unmarshal(data, &cart); err != nil {
		return domain.Cart{}, repositories.NewStoreError("redis.carts.get", repositories.StoreErrorUnknown, err)
	}
	return cart, nil
}

func (r *CartRepository) Save(ctx context.Context, cart domain.Cart) error {
	data, err := json.Marshal(cart)
	if err != nil {
		return repositories.NewStoreError("redis.carts.save", repositories.StoreErrorUnknown, err)
	}
	if err := r.client.Set(ctx, cartKey(cart.SessionID), data, r.ttl).Err(); err != nil {
		return wrap("redis.carts.save", err)
	}
	return nil
}

func (r *CartRepository) Delete(ctx context.Context, sessionID string) error {
	if err := r.client.Del(ctx, cartKey(sessionID)).Err(); err != nil {
		return wrap("redis.carts.delete", err)
	}
	return nil
}

// Ping checks connectivity for readiness checks.
func (r *CartRepository) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func cartKey(sessionID string) string {
	return keyPrefix + sessionID
}

func wrap(op string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	kind := repositories.StoreErrorUnknown
	var netErr net.Error
	if errors.As(err, &netErr) || errors.Is(err, goredis.ErrClosed) {
		kind = repositories.StoreErrorUnavailable
	}
	return repositories.NewStoreError(op, kind, err)
}
