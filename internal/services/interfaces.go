package services

import (
	"context"
	"time"

	domain "github.com/cardapio-field/api/internal/domain"
	"github.com/cardapio-field/api/internal/platform/orderapi"
)

// Type aliases expose domain models to the services package without reversing dependency direction.
type (
	Cart               = domain.Cart
	CartItem           = domain.CartItem
	CartSummary        = domain.CartSummary
	CheckoutQuote      = domain.CheckoutQuote
	Order              = domain.Order
	OrderStatus        = domain.OrderStatus
	OrderGroups        = domain.OrderGroups
	RevenueReport      = domain.RevenueReport
	Restaurant         = domain.Restaurant
	Product            = domain.Product
	Category           = domain.Category
	Notification       = domain.Notification
	SystemHealthReport = domain.SystemHealthReport
)

// OrderGateway is the subset of the Order API used for order reads and writes.
type OrderGateway interface {
	CreateOrder(ctx context.Context, order domain.Order) (domain.Order, error)
	UpdateOrder(ctx context.Context, orderID string, patch orderapi.OrderPatch) (domain.Order, error)
	GetOrder(ctx context.Context, orderID string) (domain.Order, error)
	ListOrders(ctx context.Context, restaurantID string) ([]domain.Order, error)
}

// CatalogGateway is the read-only catalog subset of the Order API.
type CatalogGateway interface {
	GetRestaurant(ctx context.Context, restaurantID string) (domain.Restaurant, error)
	GetRestaurantBySlug(ctx context.Context, slug string) (domain.Restaurant, error)
	ListCategories(ctx context.Context, restaurantID string) ([]domain.Category, error)
	ListProducts(ctx context.Context, restaurantID string) ([]domain.Product, error)
}

var (
	_ OrderGateway   = (*orderapi.Client)(nil)
	_ CatalogGateway = (*orderapi.Client)(nil)
)

// NotificationPublisher fans out new-order notifications to other subscribers.
type NotificationPublisher interface {
	PublishNotification(ctx context.Context, restaurantID string, n domain.Notification) error
}

// Menu is the public catalog page of a restaurant.
type Menu struct {
	Restaurant Restaurant `json:"restaurant"`
	Categories []Category `json:"categories"`
	Products   []Product  `json:"products"`
}

// CatalogService resolves restaurants and products for the cart and the public menu.
type CatalogService interface {
	Menu(ctx context.Context, slug string) (Menu, error)
	Restaurant(ctx context.Context, restaurantID string) (Restaurant, error)
	Product(ctx context.Context, restaurantID, productID string) (Product, error)
}

// CartView is a cart together with its computed figures.
type CartView struct {
	Cart       Cart        `json:"cart"`
	Summary    CartSummary `json:"summary"`
	Restaurant *Restaurant `json:"restaurant,omitempty"`
}

// AddCartItemCommand adds a product with a selection of option choices.
type AddCartItemCommand struct {
	SessionID    string
	RestaurantID string
	ProductID    string
	// Options maps option id to choice id.
	Options  map[string]string
	Quantity int
}

// CartService manages session carts.
type CartService interface {
	NewSessionID() string
	GetCart(ctx context.Context, sessionID string) (CartView, error)
	AddItem(ctx context.Context, cmd AddCartItemCommand) (CartView, error)
	UpdateItemQuantity(ctx context.Context, sessionID, itemID string, quantity int) (CartView, error)
	RemoveItem(ctx context.Context, sessionID, itemID string) (CartView, error)
	Clear(ctx context.Context, sessionID string) (CartView, error)
	SetDeliveryMode(ctx context.Context, sessionID string, mode domain.DeliveryMode) (CartView, error)
	SetOpen(ctx context.Context, sessionID string, open bool) (CartView, error)
	ApplyCoupon(ctx context.Context, sessionID, code string) (CartView, error)
	EditCouponCode(ctx context.Context, sessionID, code string) (CartView, error)
	RemoveCoupon(ctx context.Context, sessionID string) (CartView, error)
}

// CheckoutCommand carries the checkout form.
type CheckoutCommand struct {
	SessionID        string
	Customer         domain.Customer
	Address          *domain.Address
	PaymentMethod    domain.PaymentMethod
	PaymentSubMethod domain.PaymentSubMethod
}

// CheckoutResult is the placed order and whether the customer still has to pay by pix.
type CheckoutResult struct {
	Order          Order `json:"order"`
	AwaitingPix    bool  `json:"awaitingPix"`
	CartWasCleared bool  `json:"cartCleared"`
}

// CheckoutService validates the checkout form and places orders.
type CheckoutService interface {
	Quote(ctx context.Context, sessionID string, method domain.PaymentMethod) (CheckoutQuote, error)
	Submit(ctx context.Context, cmd CheckoutCommand) (CheckoutResult, error)
	ConfirmPixPayment(ctx context.Context, sessionID string) (Order, error)
}

// UpdateOrderStatusCommand is an admin status change. RestaurantScope limits the order to
// one restaurant; empty means any.
type UpdateOrderStatusCommand struct {
	OrderID         string
	Status          OrderStatus
	RestaurantScope string
}

// OrderService owns the customer current-order slot and the admin status workflow.
type OrderService interface {
	CreateOrder(ctx context.Context, sessionID string, order Order) (Order, error)
	MarkPaymentPaid(ctx context.Context, sessionID, orderID string) (Order, error)
	UpdateStatus(ctx context.Context, cmd UpdateOrderStatusCommand) (Order, error)
	RefreshOrder(ctx context.Context, sessionID, orderID string) (Order, error)
	CurrentOrder(ctx context.Context, sessionID string) (Order, error)
	ClearOrder(ctx context.Context, sessionID string) error
	GetOrder(ctx context.Context, orderID, restaurantScope string) (Order, error)
	AllowedTransitions(ctx context.Context, orderID, restaurantScope string) ([]OrderStatus, error)
	ListOrders(ctx context.Context, restaurantID string) (OrderGroups, error)
	RevenueReport(ctx context.Context, restaurantID string, period domain.AnalyticsPeriod) (RevenueReport, error)
}

// TrackingStatus describes the tracking task of a session.
type TrackingStatus struct {
	OrderID  string        `json:"orderId"`
	Active   bool          `json:"active"`
	Interval time.Duration `json:"-"`
}

// OrderTracker polls the current order of a session in the background.
type OrderTracker interface {
	Track(ctx context.Context, sessionID, orderID string) (TrackingStatus, error)
	Untrack(sessionID string) bool
	Tracking(sessionID string) bool
	ActiveSessions() int
	StopAll()
}

// NotificationFeed is the admin feed of one restaurant.
type NotificationFeed struct {
	RestaurantID  string         `json:"restaurantId"`
	Notifications []Notification `json:"notifications"`
	UnreadCount   int            `json:"unreadCount"`
	Watching      bool           `json:"watching"`
}

// NotificationService detects new orders for a restaurant and keeps the admin feed.
type NotificationService interface {
	Watch(ctx context.Context, restaurantID string) error
	Unwatch(restaurantID string) bool
	Poll(ctx context.Context, restaurantID string) ([]Notification, error)
	Feed(restaurantID string) NotificationFeed
	MarkAsRead(restaurantID, notificationID string) error
	MarkAllAsRead(restaurantID string)
	RemoveNotification(restaurantID, notificationID string) error
	ClearAll(restaurantID string)
	WatchedRestaurants() []string
	StopAll()
}

// SystemService aggregates utility endpoints.
type SystemService interface {
	HealthReport(ctx context.Context) (SystemHealthReport, error)
}
