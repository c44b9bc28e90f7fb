// Package firestore implements repositories on Cloud Firestore.
package firestore

import (
	"context"
	"errors"
	"strings"

	"cloud.google.com/go/firestore"

	domain "github.com/cardapio-field/api/internal/domain"
	pfirestore "github.com/cardapio-field/api/internal/platform/firestore"
	"github.com/cardapio-field/api/internal/repositories"
)

// DefaultCurrentOrdersCollection is used when the configured collection is empty.
const DefaultCurrentOrdersCollection = "currentOrders"

// CurrentOrderRepository stores each session's active order as one document keyed by the
// session id. The order body is kept as JSON; orderId, restaurantId and status are
// duplicated as fields for console queries.
type CurrentOrderRepository struct {
	provider *pfirestore.Provider
	orders   *pfirestore.Collection[domain.Order]
}

var _ repositories.CurrentOrderRepository = (*CurrentOrderRepository)(nil)

// NewCurrentOrderRepository constructs the Firestore current-order store.
func NewCurrentOrderRepository(provider *pfirestore.Provider, collection string) (*CurrentOrderRepository, error) {
	if provider == nil {
		return nil, errors.New("current order repository requires firestore provider")
	}
	if strings.TrimSpace(collection) == "" {
		collection = DefaultCurrentOrdersCollection
	}
	return &CurrentOrderRepository{
		provider: provider,
		orders: pfirestore.NewCollection(provider, collection,
			pfirestore.JSONEncoder(indexFields),
			pfirestore.JSONDecoder[domain.Order](),
		),
	}, nil
}

func indexFields(order domain.Order) map[string]any {
	return map[string]any{
		"orderId":      order.ID,
		"restaurantId": order.RestaurantID,
		"status":       string(order.Status),
		"updatedAt":    firestore.ServerTimestamp,
	}
}

func (r *CurrentOrderRepository) Get(ctx context.Context, sessionID string) (domain.Order, error) {
	doc, err := r.orders.Get(ctx, sessionID)
	if err != nil {
		return domain.Order{}, err
	}
	return doc.Data, nil
}

func (r *CurrentOrderRepository) Save(ctx context.Context, sessionID string, order domain.Order) error {
	return r.orders.Set(ctx, sessionID, order)
}

func (r *CurrentOrderRepository) Delete(ctx context.Context, sessionID string) error {
	return r.orders.Delete(ctx, sessionID)
}

func (r *CurrentOrderRepository) Update(ctx context.Context, sessionID string, fn func(*domain.Order) error) (domain.Order, error) {
	ref, err := r.orders.Ref(ctx, sessionID)
	if err != nil {
		return domain.Order{}, err
	}

	var updated domain.Order
	err = r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		snapshot, err := tx.Get(ref)
		if err != nil {
			return pfirestore.WrapError(r.orders.Name()+".update", err)
		}
		doc, err := r.orders.Decode(snapshot)
		if err != nil {
			return err
		}
		order := doc.Data
		if err := fn(&order); err != nil {
			return err
		}
		payload, err := r.orders.Encode(order)
		if err != nil {
			return err
		}
		updated = order
		return tx.Set(ref, payload)
	})
	if err != nil {
		return domain.Order{}, err
	}
	return updated, nil
}

// Ping checks connectivity for readiness checks.
func (r *CurrentOrderRepository) Ping(ctx context.Context) error {
	return r.provider.Ping(ctx, r.orders.Name())
}
