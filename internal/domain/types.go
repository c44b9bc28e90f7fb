package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// DeliveryMode selects how the customer receives the order.
type DeliveryMode string

const (
	// DeliveryModeDelivery sends a courier to the customer address.
	DeliveryModeDelivery DeliveryMode = "delivery"
	// DeliveryModePickup means the customer collects the order at the restaurant.
	DeliveryModePickup DeliveryMode = "pickup"
)

// Valid reports whether the mode is one of the known delivery modes.
func (m DeliveryMode) Valid() bool {
	return m == DeliveryModeDelivery || m == DeliveryModePickup
}

// PaymentMethod identifies how the customer pays for the order.
type PaymentMethod string

const (
	// PaymentMethodPix is the instant payment method; it carries the platform fee.
	PaymentMethodPix PaymentMethod = "pix"
	// PaymentMethodOnDelivery settles the order when it is handed over.
	PaymentMethodOnDelivery PaymentMethod = "on_delivery"
)

// PaymentSubMethod refines PaymentMethodOnDelivery.
type PaymentSubMethod string

const (
	PaymentSubMethodCard PaymentSubMethod = "card"
	PaymentSubMethodCash PaymentSubMethod = "cash"
)

// Restaurant is the read-only catalog view of a restaurant consumed by the cart.
type Restaurant struct {
	ID           string          `json:"id"`
	Slug         string          `json:"slug"`
	Name         string          `json:"name"`
	Description  string          `json:"description,omitempty"`
	Address      string          `json:"address,omitempty"`
	Phone        string          `json:"phone,omitempty"`
	DeliveryFee  decimal.Decimal `json:"deliveryFee"`
	MinOrder     decimal.Decimal `json:"minOrder"`
	DeliveryTime string          `json:"deliveryTime,omitempty"`
	Category     string          `json:"category,omitempty"`
}

// RestaurantSummary is the frozen restaurant reference attached to an order.
type RestaurantSummary struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Address string `json:"address,omitempty"`
	Phone   string `json:"phone,omitempty"`
}

// Summary returns the order-facing snapshot of the restaurant.
func (r Restaurant) Summary() RestaurantSummary {
	return RestaurantSummary{ID: r.ID, Name: r.Name, Address: r.Address, Phone: r.Phone}
}

// Category groups products on the menu.
type Category struct {
	ID           string `json:"id"`
	RestaurantID string `json:"restaurantId,omitempty"`
	Name         string `json:"name"`
	Icon         string `json:"icon,omitempty"`
	Order        int    `json:"order,omitempty"`
}

// Product is a menu entry that can be added to the cart.
type Product struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Price       decimal.Decimal `json:"price"`
	CategoryID  string          `json:"categoryId,omitempty"`
	Image       string          `json:"image,omitempty"`
	Options     []Option        `json:"options,omitempty"`
}

// Option is a customisation axis of a product such as size or crust.
type Option struct {
	ID       string   `json:"id"`
	Name     string   `json:"name"`
	Required bool     `json:"required"`
	Choices  []Choice `json:"choices"`
}

// Choice is one selectable value of an option with an additive price delta.
type Choice struct {
	ID    string          `json:"id"`
	Name  string          `json:"name"`
	Price decimal.Decimal `json:"price"`
}

// SelectedOption records the resolved choice for an option at the time it was added.
type SelectedOption struct {
	Name   string          `json:"name"`
	Choice string          `json:"choice"`
	Price  decimal.Decimal `json:"price"`
}

// CartItem is a product line in the cart. ID derives from the product and selection.
type CartItem struct {
	ID        string                    `json:"id"`
	Product   Product                   `json:"product"`
	Options   map[string]SelectedOption `json:"options"`
	Quantity  int                       `json:"quantity"`
	UnitPrice decimal.Decimal           `json:"unitPrice"`
}

// LineTotal returns (unit price + option deltas) * quantity.
func (i CartItem) LineTotal() decimal.Decimal {
	unit := i.UnitPrice
	for _, opt := range i.Options {
		unit = unit.Add(opt.Price)
	}
	return unit.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// Customer holds the contact details entered at checkout.
type Customer struct {
	Name  string `json:"name"`
	Phone string `json:"phone"`
	Email string `json:"email,omitempty"`
}

// Address is the delivery address. Required only for delivery orders.
type Address struct {
	Street       string `json:"street"`
	Number       string `json:"number"`
	Complement   string `json:"complement,omitempty"`
	Neighborhood string `json:"neighborhood"`
	City         string `json:"city,omitempty"`
	ZipCode      string `json:"zipCode,omitempty"`
	Reference    string `json:"reference,omitempty"`
}

// Order mirrors the order resource owned by the Order API.
type Order struct {
	ID               string            `json:"id"`
	RestaurantID     string            `json:"restaurantId,omitempty"`
	Restaurant       RestaurantSummary `json:"restaurant"`
	Items            []CartItem        `json:"items"`
	Customer         Customer          `json:"customerInfo"`
	CustomerName     string            `json:"customerName,omitempty"`
	DeliveryMode     DeliveryMode      `json:"deliveryType"`
	DeliveryAddress  *Address          `json:"deliveryAddress"`
	PaymentMethod    PaymentMethod     `json:"paymentMethod"`
	PaymentSubMethod *PaymentSubMethod `json:"paymentSubMethod"`
	Subtotal         decimal.Decimal   `json:"subtotal"`
	DeliveryFee      decimal.Decimal   `json:"deliveryFee"`
	PlatformFee      decimal.Decimal   `json:"platformFee"`
	Discount         decimal.Decimal   `json:"discount"`
	Total            decimal.Decimal   `json:"total"`
	Status           OrderStatus       `json:"status"`
	PaymentPaid      bool              `json:"paymentPaid"`
	PaymentPaidAt    *time.Time        `json:"paymentPaidAt,omitempty"`
	CreatedAt        time.Time         `json:"createdAt"`
	UpdatedAt        time.Time         `json:"updatedAt"`
}

// DisplayCustomerName returns the best available customer name for listings.
func (o Order) DisplayCustomerName() string {
	if o.CustomerName != "" {
		return o.CustomerName
	}
	return o.Customer.Name
}

// Terminal reports whether the order can no longer change status.
func (o Order) Terminal() bool {
	return o.Status.Terminal()
}

// Notification is an admin feed entry for a newly observed order.
type Notification struct {
	ID        string    `json:"id"`
	Type      string    `json:"type"`
	OrderID   string    `json:"orderId"`
	Title     string    `json:"title"`
	Message   string    `json:"message"`
	Read      bool      `json:"read"`
	CreatedAt time.Time `json:"timestamp"`
}

const (
	// HealthStatusOK indicates all dependencies are healthy.
	HealthStatusOK = "ok"
	// HealthStatusDegraded indicates at least one dependency is degraded but service remains running.
	HealthStatusDegraded = "degraded"
	// HealthStatusError indicates the service or a critical dependency is unavailable.
	HealthStatusError = "error"
)

// SystemHealthCheck is the outcome of one backend check. Configured is false for
// backends replaced by the in-memory store or switched off.
type SystemHealthCheck struct {
	Status     string
	Detail     string
	Error      string
	Configured bool
	Latency    time.Duration
	CheckedAt  time.Time
}

// PollingStatus counts the background pollers currently running.
type PollingStatus struct {
	TrackedSessions    int
	WatchedRestaurants []string
}

// SystemHealthReport is the readiness view: backend checks plus polling workload.
type SystemHealthReport struct {
	Status      string
	Checks      map[string]SystemHealthCheck
	Polling     PollingStatus
	Version     string
	CommitSHA   string
	Environment string
	Uptime      time.Duration
	GeneratedAt time.Time
}
