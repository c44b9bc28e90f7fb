package domain

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// DefaultPlatformFeeRate is the operator's share charged on pix payments.
var DefaultPlatformFeeRate = decimal.RequireFromString("0.05")

// CheckoutQuote is the checkout-stage breakdown sent with the order.
type CheckoutQuote struct {
	PaymentMethod PaymentMethod   `json:"paymentMethod"`
	Subtotal      decimal.Decimal `json:"subtotal"`
	DeliveryFee   decimal.Decimal `json:"deliveryFee"`
	PlatformFee   decimal.Decimal `json:"platformFee"`
	Total         decimal.Decimal `json:"total"`
	TotalLabel    string          `json:"totalLabel"`
}

// PlatformFee returns rate * (subtotal + deliveryFee) for pix and zero otherwise.
func PlatformFee(subtotal, deliveryFee decimal.Decimal, method PaymentMethod, rate decimal.Decimal) decimal.Decimal {
	if method != PaymentMethodPix {
		return decimal.Zero
	}
	return RoundMoney(subtotal.Add(deliveryFee).Mul(rate))
}

// QuoteCheckout computes subtotal + deliveryFee + platformFee. Cart coupons are not part
// of this stage.
func QuoteCheckout(subtotal, deliveryFee decimal.Decimal, method PaymentMethod, rate decimal.Decimal) CheckoutQuote {
	fee := PlatformFee(subtotal, deliveryFee, method, rate)
	total := subtotal.Add(deliveryFee).Add(fee)
	return CheckoutQuote{
		PaymentMethod: method,
		Subtotal:      subtotal,
		DeliveryFee:   deliveryFee,
		PlatformFee:   fee,
		Total:         total,
		TotalLabel:    FormatMoney(total),
	}
}

// OrderDay is one day of finished orders in the history bucket.
type OrderDay struct {
	Date   string  `json:"date"`
	Orders []Order `json:"orders"`
}

// OrderGroups buckets a restaurant's orders the way the admin dashboard lists them.
type OrderGroups struct {
	Active  []Order    `json:"active"`
	Today   []Order    `json:"today"`
	History []OrderDay `json:"history"`
}

const undatedOrdersKey = "undated"

// GroupOrders sorts orders newest first and splits them into non-terminal orders,
// finished orders created today, and older finished orders grouped by day.
func GroupOrders(orders []Order, now time.Time, loc *time.Location) OrderGroups {
	if loc == nil {
		loc = time.UTC
	}
	sorted := make([]Order, len(orders))
	copy(sorted, orders)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].CreatedAt.After(sorted[j].CreatedAt)
	})

	today := now.In(loc).Format(time.DateOnly)
	groups := OrderGroups{Active: []Order{}, Today: []Order{}, History: []OrderDay{}}
	byDay := map[string][]Order{}
	var days []string

	for _, order := range sorted {
		key := undatedOrdersKey
		if !order.CreatedAt.IsZero() {
			key = order.CreatedAt.In(loc).Format(time.DateOnly)
		}
		switch {
		case !order.Terminal():
			groups.Active = append(groups.Active, order)
		case key == today:
			groups.Today = append(groups.Today, order)
		default:
			if _, ok := byDay[key]; !ok {
				days = append(days, key)
			}
			byDay[key] = append(byDay[key], order)
		}
	}

	// ISO dates sort lexically; undated orders go last.
	sort.SliceStable(days, func(i, j int) bool {
		if days[i] == undatedOrdersKey {
			return false
		}
		if days[j] == undatedOrdersKey {
			return true
		}
		return days[i] > days[j]
	})
	for _, day := range days {
		groups.History = append(groups.History, OrderDay{Date: day, Orders: byDay[day]})
	}
	return groups
}
