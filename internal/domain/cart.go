package domain

import (
	"encoding/json"
	"errors"
	"slices"
	"time"

	"github.com/shopspring/decimal"
)

// ErrInvalidQuantity is returned when an item is added with a quantity below one.
var ErrInvalidQuantity = errors.New("cart: quantity must be at least 1")

// CouponStatus is the outcome of the last explicit coupon application.
type CouponStatus string

const (
	// CouponStatusNone means no coupon is applied and no error is shown.
	CouponStatusNone CouponStatus = ""
	// CouponStatusApplied means the coupon matched and its discount is active.
	CouponStatusApplied CouponStatus = "applied"
	// CouponStatusInvalid means the last applied code was empty or unknown.
	CouponStatusInvalid CouponStatus = "invalid"
)

// CouponState tracks the coupon input and the discount it produced.
type CouponState struct {
	Input    string          `json:"input"`
	Code     string          `json:"code,omitempty"`
	Label    string          `json:"label,omitempty"`
	Kind     CouponKind      `json:"kind,omitempty"`
	Discount decimal.Decimal `json:"discount"`
	Status   CouponStatus    `json:"status"`
}

// Cart is one session's in-progress selection. Methods mutate the receiver and never
// perform I/O.
type Cart struct {
	SessionID    string       `json:"sessionId"`
	RestaurantID string       `json:"restaurantId,omitempty"`
	Items        []CartItem   `json:"items"`
	Open         bool         `json:"isOpen"`
	DeliveryMode DeliveryMode `json:"deliveryMode"`
	Coupon       CouponState  `json:"coupon"`
	CreatedAt    time.Time    `json:"createdAt"`
	UpdatedAt    time.Time    `json:"updatedAt"`
}

// NewCart returns an empty delivery cart for the session.
func NewCart(sessionID string, now time.Time) Cart {
	return Cart{
		SessionID:    sessionID,
		Items:        []CartItem{},
		DeliveryMode: DeliveryModeDelivery,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

// CartItemID derives the identity of a cart line from the product id and the
// selected options. encoding/json sorts map keys, so equal selections always produce
// the same id.
func CartItemID(productID string, options map[string]SelectedOption) string {
	if options == nil {
		options = map[string]SelectedOption{}
	}
	raw, err := json.Marshal(options)
	if err != nil {
		raw = []byte("{}")
	}
	return productID + "-" + string(raw)
}

// AddItem merges the selection into an existing line or appends a new one priced at
// the product's current price. It opens the cart.
func (c *Cart) AddItem(product Product, options map[string]SelectedOption, quantity int) (CartItem, error) {
	if quantity < 1 {
		return CartItem{}, ErrInvalidQuantity
	}
	if options == nil {
		options = map[string]SelectedOption{}
	}

	id := CartItemID(product.ID, options)
	c.Open = true

	for i := range c.Items {
		if c.Items[i].ID == id {
			c.Items[i].Quantity += quantity
			return c.Items[i], nil
		}
	}

	item := CartItem{
		ID:        id,
		Product:   product,
		Options:   options,
		Quantity:  quantity,
		UnitPrice: product.Price,
	}
	c.Items = append(c.Items, item)
	return item, nil
}

// RemoveItem deletes the line when present.
func (c *Cart) RemoveItem(itemID string) {
	c.Items = slices.DeleteFunc(c.Items, func(item CartItem) bool {
		return item.ID == itemID
	})
}

// UpdateQuantity replaces the quantity of a line; n <= 0 removes it.
func (c *Cart) UpdateQuantity(itemID string, n int) {
	if n <= 0 {
		c.RemoveItem(itemID)
		return
	}
	for i := range c.Items {
		if c.Items[i].ID == itemID {
			c.Items[i].Quantity = n
			return
		}
	}
}

// Item returns the line with the given id.
func (c *Cart) Item(itemID string) (CartItem, bool) {
	for _, item := range c.Items {
		if item.ID == itemID {
			return item, true
		}
	}
	return CartItem{}, false
}

// Subtotal sums (unit price + option deltas) * quantity over all lines.
func (c *Cart) Subtotal() decimal.Decimal {
	total := decimal.Zero
	for _, item := range c.Items {
		total = total.Add(item.LineTotal())
	}
	return total
}

// DeliveryFee returns the restaurant fee for delivery carts and zero for pickup.
func (c *Cart) DeliveryFee(restaurant Restaurant) decimal.Decimal {
	if c.DeliveryMode == DeliveryModePickup {
		return decimal.Zero
	}
	return restaurant.DeliveryFee
}

// Total is the cart-stage total: subtotal + deliveryFee - discount.
func (c *Cart) Total(deliveryFee, discount decimal.Decimal) decimal.Decimal {
	return c.Subtotal().Add(deliveryFee).Sub(discount)
}

// ItemCount sums quantities across lines.
func (c *Cart) ItemCount() int {
	count := 0
	for _, item := range c.Items {
		count += item.Quantity
	}
	return count
}

// ApplyCoupon resolves the code against the table and records the resulting discount.
// Empty or unknown codes leave the cart with a zero discount and an invalid status.
func (c *Cart) ApplyCoupon(code string, table CouponTable, deliveryFee decimal.Decimal) CouponState {
	rule, result := table.Lookup(code)
	if result != CouponFound {
		c.Coupon = CouponState{
			Input:    code,
			Discount: decimal.Zero,
			Status:   CouponStatusInvalid,
		}
		return c.Coupon
	}

	c.Coupon = CouponState{
		Input:    code,
		Code:     rule.Code,
		Label:    rule.Label,
		Kind:     rule.Kind,
		Discount: rule.Discount(c.Subtotal(), deliveryFee),
		Status:   CouponStatusApplied,
	}
	return c.Coupon
}

// EditCouponCode stores the raw input and clears a stale invalid status. The discount is
// left as is until the next ApplyCoupon.
func (c *Cart) EditCouponCode(code string) {
	c.Coupon.Input = code
	if c.Coupon.Status == CouponStatusInvalid {
		c.Coupon.Status = CouponStatusNone
	}
}

// RemoveCoupon resets code, discount and status.
func (c *Cart) RemoveCoupon() {
	c.Coupon = CouponState{Discount: decimal.Zero}
}

// Clear empties the cart after a successful checkout.
func (c *Cart) Clear() {
	c.Items = []CartItem{}
	c.Open = false
	c.RemoveCoupon()
}

// MeetsMinimum reports whether the cart-stage total reaches the restaurant minimum.
func (c *Cart) MeetsMinimum(restaurant Restaurant) bool {
	total := c.Total(c.DeliveryFee(restaurant), c.Coupon.Discount)
	return !total.LessThan(restaurant.MinOrder)
}

// CartSummary is the computed view of a cart for a restaurant.
type CartSummary struct {
	Subtotal      decimal.Decimal `json:"subtotal"`
	DeliveryFee   decimal.Decimal `json:"deliveryFee"`
	Discount      decimal.Decimal `json:"discount"`
	Total         decimal.Decimal `json:"total"`
	ItemCount     int             `json:"itemCount"`
	MinOrder      decimal.Decimal `json:"minOrder"`
	MeetsMinimum  bool            `json:"meetsMinimum"`
	MinOrderLabel string          `json:"minOrderLabel,omitempty"`
	TotalLabel    string          `json:"totalLabel"`
}

// Summarize computes the cart figures under the restaurant's fees.
func (c *Cart) Summarize(restaurant Restaurant) CartSummary {
	fee := c.DeliveryFee(restaurant)
	total := c.Total(fee, c.Coupon.Discount)
	summary := CartSummary{
		Subtotal:     c.Subtotal(),
		DeliveryFee:  fee,
		Discount:     c.Coupon.Discount,
		Total:        total,
		ItemCount:    c.ItemCount(),
		MinOrder:     restaurant.MinOrder,
		MeetsMinimum: c.MeetsMinimum(restaurant),
		TotalLabel:   FormatMoney(total),
	}
	if !summary.MeetsMinimum {
		summary.MinOrderLabel = "Pedido mínimo: " + FormatMoney(restaurant.MinOrder)
	}
	return summary
}
