// Package orderapi is the JSON client for the restaurant Order/Catalog REST API.
package orderapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	domain "github.com/cardapio-field/api/internal/domain"
)

const (
	defaultTimeout    = 10 * time.Second
	maxErrorBodyBytes = 64 << 10
)

var errBaseURLRequired = errors.New("orderapi: base url is required")

// Error is a non-2xx response or a transport failure. Status is zero when the request
// never produced a response.
type Error struct {
	Method  string
	Path    string
	Status  int
	Message string
	cause   error
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Status == 0 {
		return fmt.Sprintf("orderapi: %s %s: %s", e.Method, e.Path, e.Message)
	}
	return fmt.Sprintf("orderapi: %s %s: status %d: %s", e.Method, e.Path, e.Status, e.Message)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.cause
}

// IsNotFound reports a 404 from the API.
func (e *Error) IsNotFound() bool {
	return e != nil && e.Status == http.StatusNotFound
}

// IsConflict reports a 409 from the API.
func (e *Error) IsConflict() bool {
	return e != nil && e.Status == http.StatusConflict
}

// IsUnavailable reports transport failures and 5xx responses.
func (e *Error) IsUnavailable() bool {
	return e != nil && (e.Status == 0 || e.Status >= http.StatusInternalServerError)
}

// OrderPatch is the partial update body for PUT /orders/{id}.
type OrderPatch struct {
	Status      *domain.OrderStatus `json:"status,omitempty"`
	PaymentPaid *bool               `json:"paymentPaid,omitempty"`
}

// Option customises the client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client. Its transport is not wrapped.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.http = client
		}
	}
}

// WithTimeout sets the per-request timeout of the default HTTP client.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// Client talks to the Order API.
type Client struct {
	base    *url.URL
	http    *http.Client
	timeout time.Duration
}

// New parses baseURL (e.g. http://localhost:5000/api/v1) and builds a client whose
// transport emits client spans.
func New(baseURL string, opts ...Option) (*Client, error) {
	trimmed := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if trimmed == "" {
		return nil, errBaseURLRequired
	}
	parsed, err := url.Parse(trimmed)
	if err != nil {
		return nil, fmt.Errorf("orderapi: parse base url: %w", err)
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return nil, fmt.Errorf("orderapi: base url %q must be absolute", baseURL)
	}

	c := &Client{base: parsed, timeout: defaultTimeout}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	if c.http == nil {
		c.http = &http.Client{
			Timeout:   c.timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		}
	}
	return c, nil
}

// CreateOrder posts a new order and returns the server copy.
func (c *Client) CreateOrder(ctx context.Context, order domain.Order) (domain.Order, error) {
	var created domain.Order
	if err := c.do(ctx, http.MethodPost, []string{"orders"}, nil, order, &created); err != nil {
		return domain.Order{}, err
	}
	return created, nil
}

// UpdateOrder applies a partial update and returns the server copy.
func (c *Client) UpdateOrder(ctx context.Context, orderID string, patch OrderPatch) (domain.Order, error) {
	var updated domain.Order
	if err := c.do(ctx, http.MethodPut, []string{"orders", orderID}, nil, patch, &updated); err != nil {
		return domain.Order{}, err
	}
	return updated, nil
}

// GetOrder fetches one order.
func (c *Client) GetOrder(ctx context.Context, orderID string) (domain.Order, error) {
	var order domain.Order
	if err := c.do(ctx, http.MethodGet, []string{"orders", orderID}, nil, nil, &order); err != nil {
		return domain.Order{}, err
	}
	return order, nil
}

// ListOrders fetches every order of a restaurant.
func (c *Client) ListOrders(ctx context.Context, restaurantID string) ([]domain.Order, error) {
	var orders []domain.Order
	query := url.Values{"restaurantId": {restaurantID}}
	if err := c.do(ctx, http.MethodGet, []string{"orders"}, query, nil, &orders); err != nil {
		return nil, err
	}
	return orders, nil
}

// GetRestaurant fetches a restaurant by id.
func (c *Client) GetRestaurant(ctx context.Context, restaurantID string) (domain.Restaurant, error) {
	var restaurant domain.Restaurant
	query := url.Values{"id": {restaurantID}}
	if err := c.do(ctx, http.MethodGet, []string{"restaurant"}, query, nil, &restaurant); err != nil {
		return domain.Restaurant{}, err
	}
	return restaurant, nil
}

// GetRestaurantBySlug fetches a restaurant by its public slug.
func (c *Client) GetRestaurantBySlug(ctx context.Context, slug string) (domain.Restaurant, error) {
	var restaurant domain.Restaurant
	if err := c.do(ctx, http.MethodGet, []string{"restaurant", "slug", slug}, nil, nil, &restaurant); err != nil {
		return domain.Restaurant{}, err
	}
	return restaurant, nil
}

// ListCategories fetches the menu categories of a restaurant.
func (c *Client) ListCategories(ctx context.Context, restaurantID string) ([]domain.Category, error) {
	var categories []domain.Category
	query := url.Values{"restaurantId": {restaurantID}}
	if err := c.do(ctx, http.MethodGet, []string{"categories"}, query, nil, &categories); err != nil {
		return nil, err
	}
	return categories, nil
}

// ListProducts fetches the products of a restaurant.
func (c *Client) ListProducts(ctx context.Context, restaurantID string) ([]domain.Product, error) {
	var products []domain.Product
	query := url.Values{"restaurantId": {restaurantID}}
	if err := c.do(ctx, http.MethodGet, []string{"products"}, query, nil, &products); err != nil {
		return nil, err
	}
	return products, nil
}

func (c *Client) do(ctx context.Context, method string, segments []string, query url.Values, body any, out any) error {
	endpoint := c.base.JoinPath(segments...)
	if len(query) > 0 {
		endpoint.RawQuery = query.Encode()
	}
	path := "/" + strings.Join(segments, "/")

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("orderapi: encode %s %s: %w", method, path, err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint.String(), reader)
	if err != nil {
		return fmt.Errorf("orderapi: build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return &Error{Method: method, Path: path, Message: err.Error(), cause: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeError(method, path, resp)
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &Error{Method: method, Path: path, Status: resp.StatusCode, Message: "decode response: " + err.Error(), cause: err}
	}
	return nil
}

func decodeError(method, path string, resp *http.Response) error {
	data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
	var envelope struct {
		Error string `json:"error"`
	}
	message := ""
	if err := json.Unmarshal(data, &envelope); err == nil {
		message = strings.TrimSpace(envelope.Error)
	}
	if message == "" {
		message = http.StatusText(resp.StatusCode)
	}
	return &Error{Method: method, Path: path, Status: resp.StatusCode, Message: message}
}
