package services

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	domain "github.com/cardapio-field/api/internal/domain"
	"github.com/cardapio-field/api/internal/platform/orderapi"
)

var testNow = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func fixedClock() time.Time { return testNow }

func assertMoney(t *testing.T, label string, got decimal.Decimal, want string) {
	t.Helper()
	if !got.Equal(decimal.RequireFromString(want)) {
		t.Fatalf("expected %s %s, got %s", label, want, got.String())
	}
}

// waitUntil polls cond for up to a second.
func waitUntil(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func unavailableError(path string) error {
	return &orderapi.Error{Method: http.MethodGet, Path: path, Status: http.StatusServiceUnavailable, Message: "down"}
}

func notFoundError(path string) error {
	return &orderapi.Error{Method: http.MethodGet, Path: path, Status: http.StatusNotFound, Message: "not found"}
}

func testRestaurant() domain.Restaurant {
	return domain.Restaurant{
		ID:          "rest-1",
		Slug:        "burger-house",
		Name:        "Burger House",
		Address:     "Rua A, 1",
		Phone:       "1199999",
		DeliveryFee: domain.Money(5.90),
		MinOrder:    domain.Money(20),
	}
}

func testProducts() []domain.Product {
	return []domain.Product{
		{
			ID:    "burger",
			Name:  "X-Burger",
			Price: domain.Money(45.90),
			Options: []domain.Option{
				{
					ID:   "extra",
					Name: "Adicional",
					Choices: []domain.Choice{
						{ID: "bacon", Name: "Bacon", Price: domain.Money(10)},
						{ID: "cheese", Name: "Queijo", Price: decimal.Zero},
					},
				},
			},
		},
		{
			ID:    "pizza",
			Name:  "Pizza",
			Price: domain.Money(40),
			Options: []domain.Option{
				{
					ID:       "size",
					Name:     "Tamanho",
					Required: true,
					Choices: []domain.Choice{
						{ID: "m", Name: "Média", Price: decimal.Zero},
						{ID: "g", Name: "Grande", Price: domain.Money(12)},
					},
				},
			},
		},
		{ID: "soda", Name: "Refrigerante", Price: domain.Money(3)},
	}
}

// fakeCatalogGateway serves a fixed catalog and counts calls.
type fakeCatalogGateway struct {
	mu          sync.Mutex
	restaurants map[string]domain.Restaurant
	products    map[string][]domain.Product
	categories  map[string][]domain.Category
	err         error
	calls       map[string]int
}

func newFakeCatalogGateway() *fakeCatalogGateway {
	other := domain.Restaurant{ID: "rest-2", Slug: "pizzaria", Name: "Pizzaria", DeliveryFee: domain.Money(8), MinOrder: decimal.Zero}
	return &fakeCatalogGateway{
		restaurants: map[string]domain.Restaurant{"rest-1": testRestaurant(), "rest-2": other},
		products: map[string][]domain.Product{
			"rest-1": testProducts(),
			"rest-2": {{ID: "calzone", Name: "Calzone", Price: domain.Money(30)}},
		},
		categories: map[string][]domain.Category{
			"rest-1": {{ID: "cat-1", RestaurantID: "rest-1", Name: "Lanches"}},
		},
		calls: map[string]int{},
	}
}

func (f *fakeCatalogGateway) count(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[name]
}

func (f *fakeCatalogGateway) record(name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[name]++
	return f.err
}

func (f *fakeCatalogGateway) GetRestaurant(_ context.Context, id string) (domain.Restaurant, error) {
	if err := f.record("restaurant"); err != nil {
		return domain.Restaurant{}, err
	}
	restaurant, ok := f.restaurants[id]
	if !ok {
		return domain.Restaurant{}, notFoundError("/restaurant")
	}
	return restaurant, nil
}

func (f *fakeCatalogGateway) GetRestaurantBySlug(_ context.Context, slug string) (domain.Restaurant, error) {
	if err := f.record("slug"); err != nil {
		return domain.Restaurant{}, err
	}
	for _, restaurant := range f.restaurants {
		if restaurant.Slug == slug {
			return restaurant, nil
		}
	}
	return domain.Restaurant{}, notFoundError("/restaurant/slug/" + slug)
}

func (f *fakeCatalogGateway) ListCategories(_ context.Context, restaurantID string) ([]domain.Category, error) {
	if err := f.record("categories"); err != nil {
		return nil, err
	}
	return f.categories[restaurantID], nil
}

func (f *fakeCatalogGateway) ListProducts(_ context.Context, restaurantID string) ([]domain.Product, error) {
	if err := f.record("products"); err != nil {
		return nil, err
	}
	return f.products[restaurantID], nil
}

// fakeOrderGateway is an in-memory Order API.
type fakeOrderGateway struct {
	mu      sync.Mutex
	orders  map[string]domain.Order
	nextID  int
	err     error
	listErr error
	patches []orderapi.OrderPatch
	created []domain.Order
}

func newFakeOrderGateway() *fakeOrderGateway {
	return &fakeOrderGateway{orders: map[string]domain.Order{}}
}

func (f *fakeOrderGateway) put(order domain.Order) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.orders[order.ID] = order
}

func (f *fakeOrderGateway) setErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

func (f *fakeOrderGateway) setListErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listErr = err
}

func (f *fakeOrderGateway) patchCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.patches)
}

func (f *fakeOrderGateway) CreateOrder(_ context.Context, order domain.Order) (domain.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return domain.Order{}, f.err
	}
	f.nextID++
	order.ID = fmt.Sprintf("ord-%08d", f.nextID)
	f.orders[order.ID] = order
	f.created = append(f.created, order)
	return order, nil
}

func (f *fakeOrderGateway) UpdateOrder(_ context.Context, orderID string, patch orderapi.OrderPatch) (domain.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return domain.Order{}, f.err
	}
	order, ok := f.orders[orderID]
	if !ok {
		return domain.Order{}, notFoundError("/orders/" + orderID)
	}
	f.patches = append(f.patches, patch)
	if patch.Status != nil {
		order.Status = *patch.Status
	}
	if patch.PaymentPaid != nil {
		order.PaymentPaid = *patch.PaymentPaid
	}
	f.orders[orderID] = order
	return order, nil
}

func (f *fakeOrderGateway) GetOrder(_ context.Context, orderID string) (domain.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return domain.Order{}, f.err
	}
	order, ok := f.orders[orderID]
	if !ok {
		return domain.Order{}, notFoundError("/orders/" + orderID)
	}
	return order, nil
}

func (f *fakeOrderGateway) ListOrders(_ context.Context, restaurantID string) ([]domain.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	var orders []domain.Order
	for _, order := range f.orders {
		if order.RestaurantID == restaurantID {
			orders = append(orders, order)
		}
	}
	sort.Slice(orders, func(i, j int) bool { return orders[i].ID < orders[j].ID })
	return orders, nil
}

type recordingPublisher struct {
	mu        sync.Mutex
	published []domain.Notification
	err       error
}

func (p *recordingPublisher) PublishNotification(_ context.Context, restaurantID string, n domain.Notification) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.published = append(p.published, n)
	return p.err
}

type recordedEvent struct {
	event  string
	fields map[string]any
}

type eventRecorder struct {
	mu     sync.Mutex
	events []recordedEvent
}

func (r *eventRecorder) log(_ context.Context, event string, fields map[string]any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, recordedEvent{event: event, fields: fields})
}

func (r *eventRecorder) has(event string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.events {
		if e.event == event {
			return true
		}
	}
	return false
}
