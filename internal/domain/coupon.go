package domain

import (
	"sort"
	"strings"

	"github.com/shopspring/decimal"
)

// CouponKind selects how a coupon discount is computed.
type CouponKind string

const (
	// CouponKindPercentage discounts a rate of the subtotal.
	CouponKindPercentage CouponKind = "percentage"
	// CouponKindFixed discounts a fixed amount capped at the subtotal.
	CouponKindFixed CouponKind = "fixed"
)

// CouponRule is one entry of the coupon table.
type CouponRule struct {
	Code  string
	Kind  CouponKind
	Value decimal.Decimal
	Label string
	// WaivesDeliveryFee makes a fixed coupon worth the current delivery fee instead of Value.
	WaivesDeliveryFee bool
}

// Discount computes the rule's discount for the given subtotal and delivery fee.
func (r CouponRule) Discount(subtotal, deliveryFee decimal.Decimal) decimal.Decimal {
	switch r.Kind {
	case CouponKindPercentage:
		return RoundMoney(subtotal.Mul(r.Value))
	case CouponKindFixed:
		amount := r.Value
		if r.WaivesDeliveryFee {
			amount = deliveryFee
		}
		if amount.GreaterThan(subtotal) {
			return subtotal
		}
		return amount
	default:
		return decimal.Zero
	}
}

// CouponLookupResult distinguishes the outcomes of a coupon lookup.
type CouponLookupResult int

const (
	// CouponFound means the code matched a rule.
	CouponFound CouponLookupResult = iota
	// CouponNotFound means the code is not in the table.
	CouponNotFound
	// CouponEmptyCode means nothing was entered.
	CouponEmptyCode
)

// CouponTable is a static, case-insensitive lookup of coupon rules.
type CouponTable struct {
	rules map[string]CouponRule
}

// NewCouponTable indexes the rules by normalised code. Later duplicates win.
func NewCouponTable(rules ...CouponRule) CouponTable {
	table := CouponTable{rules: make(map[string]CouponRule, len(rules))}
	for _, rule := range rules {
		code := NormalizeCouponCode(rule.Code)
		if code == "" {
			continue
		}
		rule.Code = code
		table.rules[code] = rule
	}
	return table
}

// DefaultCouponTable returns the built-in promotional coupons.
func DefaultCouponTable() CouponTable {
	return NewCouponTable(
		CouponRule{Code: "DESCONTO10", Kind: CouponKindPercentage, Value: decimal.RequireFromString("0.10"), Label: "10% de desconto"},
		CouponRule{Code: "FRETEGRATIS", Kind: CouponKindFixed, WaivesDeliveryFee: true, Label: "Frete grátis"},
		CouponRule{Code: "BEMVINDO", Kind: CouponKindFixed, Value: decimal.NewFromInt(5), Label: "R$ 5,00 de desconto"},
		CouponRule{Code: "SUPER15", Kind: CouponKindPercentage, Value: decimal.RequireFromString("0.15"), Label: "15% de desconto"},
	)
}

// Lookup normalises the code and resolves it against the table.
func (t CouponTable) Lookup(code string) (CouponRule, CouponLookupResult) {
	normalised := NormalizeCouponCode(code)
	if normalised == "" {
		return CouponRule{}, CouponEmptyCode
	}
	rule, ok := t.rules[normalised]
	if !ok {
		return CouponRule{}, CouponNotFound
	}
	return rule, CouponFound
}

// Codes returns the known coupon codes in sorted order.
func (t CouponTable) Codes() []string {
	codes := make([]string, 0, len(t.rules))
	for code := range t.rules {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	return codes
}

// Len reports how many rules the table holds.
func (t CouponTable) Len() int {
	return len(t.rules)
}

// NormalizeCouponCode upper-cases and trims a coupon code.
func NormalizeCouponCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
