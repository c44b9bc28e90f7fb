package repositories

import (
	"context"

	domain "github.com/cardapio-field/api/internal/domain"
)

// RepositoryError wraps low-level persistence failures with categorisation used by services.
type RepositoryError interface {
	error
	IsNotFound() bool
	IsConflict() bool
	IsUnavailable() bool
}

// CartRepository persists session carts. Get returns a RepositoryError with IsNotFound
// when the session has no cart or it expired.
type CartRepository interface {
	Get(ctx context.Context, sessionID string) (domain.Cart, error)
	Save(ctx context.Context, cart domain.Cart) error
	Delete(ctx context.Context, sessionID string) error
}

// CurrentOrderRepository stores the single active order slot of each customer session.
type CurrentOrderRepository interface {
	Get(ctx context.Context, sessionID string) (domain.Order, error)
	Save(ctx context.Context, sessionID string, order domain.Order) error
	Delete(ctx context.Context, sessionID string) error
	// Update applies fn to the stored order atomically and returns the result. fn errors
	// abort the update and are returned unchanged.
	Update(ctx context.Context, sessionID string, fn func(*domain.Order) error) (domain.Order, error)
}

// HealthRepository exposes dependency health checks for readiness endpoints.
type HealthRepository interface {
	Collect(ctx context.Context) (domain.SystemHealthReport, error)
}
