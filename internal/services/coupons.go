package services

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	domain "github.com/cardapio-field/api/internal/domain"
	"github.com/cardapio-field/api/internal/platform/config"
)

// CouponTableFromConfig builds the coupon table from configured rules, falling back to the
// built-in promotions when none are configured.
func CouponTableFromConfig(cfg config.CouponsConfig) (domain.CouponTable, error) {
	if len(cfg.Rules) == 0 {
		return domain.DefaultCouponTable(), nil
	}

	rules := make([]domain.CouponRule, 0, len(cfg.Rules))
	for i, rule := range cfg.Rules {
		code := domain.NormalizeCouponCode(rule.Code)
		if code == "" {
			return domain.CouponTable{}, fmt.Errorf("coupon rule %d: code is required", i)
		}
		kind := domain.CouponKind(strings.ToLower(strings.TrimSpace(rule.Kind)))
		switch kind {
		case domain.CouponKindPercentage:
			if rule.Value <= 0 || rule.Value > 1 {
				return domain.CouponTable{}, fmt.Errorf("coupon %s: percentage must be in (0, 1]", code)
			}
		case domain.CouponKindFixed:
			if rule.Value < 0 || (rule.Value == 0 && !rule.WaivesDeliveryFee) {
				return domain.CouponTable{}, fmt.Errorf("coupon %s: fixed amount must be positive", code)
			}
		default:
			return domain.CouponTable{}, fmt.Errorf("coupon %s: unknown kind %q", code, rule.Kind)
		}
		rules = append(rules, domain.CouponRule{
			Code:              code,
			Kind:              kind,
			Value:             decimal.NewFromFloat(rule.Value),
			Label:             strings.TrimSpace(rule.Label),
			WaivesDeliveryFee: rule.WaivesDeliveryFee,
		})
	}
	return domain.NewCouponTable(rules...), nil
}
