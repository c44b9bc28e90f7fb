package domain

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// AnalyticsPeriod selects the window of orders a revenue report covers.
type AnalyticsPeriod string

const (
	AnalyticsPeriodToday AnalyticsPeriod = "today"
	AnalyticsPeriodWeek  AnalyticsPeriod = "week"
	AnalyticsPeriodMonth AnalyticsPeriod = "month"
	AnalyticsPeriodYear  AnalyticsPeriod = "year"
	AnalyticsPeriodAll   AnalyticsPeriod = "all"
)

// DefaultAnalyticsPeriod is used when no period is requested.
const DefaultAnalyticsPeriod = AnalyticsPeriodMonth

const topProductsLimit = 10

var analyticsPeriodLabels = map[AnalyticsPeriod]string{
	AnalyticsPeriodToday: "Hoje",
	AnalyticsPeriodWeek:  "Últimos 7 dias",
	AnalyticsPeriodMonth: "Último mês",
	AnalyticsPeriodYear:  "Último ano",
	AnalyticsPeriodAll:   "Todo período",
}

// Valid reports whether the period is known.
func (p AnalyticsPeriod) Valid() bool {
	_, ok := analyticsPeriodLabels[p]
	return ok
}

// Label is the pt-BR name shown on the dashboard.
func (p AnalyticsPeriod) Label() string {
	if label, ok := analyticsPeriodLabels[p]; ok {
		return label
	}
	return string(p)
}

// Since returns the earliest creation time included in the period. The second result is
// false for AnalyticsPeriodAll.
func (p AnalyticsPeriod) Since(now time.Time, loc *time.Location) (time.Time, bool) {
	local := now.In(loc)
	switch p {
	case AnalyticsPeriodToday:
		return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc), true
	case AnalyticsPeriodWeek:
		return local.AddDate(0, 0, -7), true
	case AnalyticsPeriodMonth:
		return local.AddDate(0, -1, 0), true
	case AnalyticsPeriodYear:
		return local.AddDate(-1, 0, 0), true
	default:
		return time.Time{}, false
	}
}

// RevenueBucket is one point of the revenue chart.
type RevenueBucket struct {
	Label   string          `json:"label"`
	Start   time.Time       `json:"start"`
	Revenue decimal.Decimal `json:"revenue"`
	Orders  int             `json:"orders"`
}

// ProductSales aggregates the lines sold of one product.
type ProductSales struct {
	Name     string          `json:"name"`
	Quantity int             `json:"quantity"`
	Revenue  decimal.Decimal `json:"revenue"`
}

// RevenueReport summarises a restaurant's non-cancelled orders over a period.
type RevenueReport struct {
	Period            AnalyticsPeriod       `json:"period"`
	PeriodLabel       string                `json:"periodLabel"`
	Since             *time.Time            `json:"since,omitempty"`
	TotalRevenue      decimal.Decimal       `json:"totalRevenue"`
	TotalOrders       int                   `json:"totalOrders"`
	AverageOrderValue decimal.Decimal       `json:"averageOrderValue"`
	DeliveryOrders    int                   `json:"deliveryOrders"`
	PickupOrders      int                   `json:"pickupOrders"`
	PlatformFees      decimal.Decimal       `json:"platformFees"`
	NetRevenue        decimal.Decimal       `json:"netRevenue"`
	PaymentMethods    map[PaymentMethod]int `json:"paymentMethods"`
	Buckets           []RevenueBucket       `json:"buckets"`
	TopProducts       []ProductSales        `json:"topProducts"`
}

// BuildRevenueReport filters orders to the period, drops cancelled ones and computes the
// dashboard figures. Buckets are hourly for today, daily for the week (7) and month (30),
// and monthly (12) for the year and all-time views; orders outside the buckets still count
// in the totals.
func BuildRevenueReport(orders []Order, period AnalyticsPeriod, now time.Time, loc *time.Location) RevenueReport {
	if loc == nil {
		loc = time.UTC
	}
	if !period.Valid() {
		period = DefaultAnalyticsPeriod
	}
	report := RevenueReport{
		Period:         period,
		PeriodLabel:    period.Label(),
		TotalRevenue:   decimal.Zero,
		PlatformFees:   decimal.Zero,
		PaymentMethods: map[PaymentMethod]int{},
		TopProducts:    []ProductSales{},
	}
	since, bounded := period.Since(now, loc)
	if bounded {
		report.Since = &since
	}

	buckets, bucketOf := revenueBuckets(period, now, loc)
	products := map[string]*ProductSales{}

	for _, order := range orders {
		if order.Status == OrderStatusCancelled {
			continue
		}
		if bounded && (order.CreatedAt.IsZero() || order.CreatedAt.Before(since)) {
			continue
		}

		report.TotalOrders++
		report.TotalRevenue = report.TotalRevenue.Add(order.Total)
		report.PlatformFees = report.PlatformFees.Add(order.PlatformFee)
		if order.DeliveryMode == DeliveryModeDelivery {
			report.DeliveryOrders++
		}
		method := order.PaymentMethod
		if method == "" {
			method = PaymentMethodPix
		}
		report.PaymentMethods[method]++

		if !order.CreatedAt.IsZero() {
			if idx, ok := bucketOf(order.CreatedAt.In(loc)); ok {
				buckets[idx].Revenue = buckets[idx].Revenue.Add(order.Total)
				buckets[idx].Orders++
			}
		}

		for _, item := range order.Items {
			name := item.Product.Name
			if name == "" {
				name = "Produto"
			}
			sales := products[name]
			if sales == nil {
				sales = &ProductSales{Name: name, Revenue: decimal.Zero}
				products[name] = sales
			}
			sales.Quantity += item.Quantity
			sales.Revenue = sales.Revenue.Add(item.LineTotal())
		}
	}

	report.PickupOrders = report.TotalOrders - report.DeliveryOrders
	report.NetRevenue = report.TotalRevenue.Sub(report.PlatformFees)
	report.AverageOrderValue = decimal.Zero
	if report.TotalOrders > 0 {
		report.AverageOrderValue = RoundMoney(report.TotalRevenue.Div(decimal.NewFromInt(int64(report.TotalOrders))))
	}
	report.Buckets = buckets

	for _, sales := range products {
		report.TopProducts = append(report.TopProducts, *sales)
	}
	sort.Slice(report.TopProducts, func(i, j int) bool {
		a, b := report.TopProducts[i], report.TopProducts[j]
		if cmp := a.Revenue.Cmp(b.Revenue); cmp != 0 {
			return cmp > 0
		}
		return a.Name < b.Name
	})
	if len(report.TopProducts) > topProductsLimit {
		report.TopProducts = report.TopProducts[:topProductsLimit]
	}
	return report
}

// revenueBuckets lays out the empty chart ending at now and returns a lookup from a local
// creation time to its bucket index.
func revenueBuckets(period AnalyticsPeriod, now time.Time, loc *time.Location) ([]RevenueBucket, func(time.Time) (int, bool)) {
	local := now.In(loc)
	var (
		starts []time.Time
		layout string
	)
	switch period {
	case AnalyticsPeriodToday:
		day := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
		for h := 0; h < 24; h++ {
			starts = append(starts, day.Add(time.Duration(h)*time.Hour))
		}
		layout = "15:04"
	case AnalyticsPeriodWeek, AnalyticsPeriodMonth:
		days := 7
		if period == AnalyticsPeriodMonth {
			days = 30
		}
		today := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
		for i := days - 1; i >= 0; i-- {
			starts = append(starts, today.AddDate(0, 0, -i))
		}
		layout = time.DateOnly
	default:
		month := time.Date(local.Year(), local.Month(), 1, 0, 0, 0, 0, loc)
		for i := 11; i >= 0; i-- {
			starts = append(starts, month.AddDate(0, -i, 0))
		}
		layout = "2006-01"
	}

	buckets := make([]RevenueBucket, len(starts))
	index := make(map[string]int, len(starts))
	for i, start := range starts {
		label := start.Format(layout)
		buckets[i] = RevenueBucket{Label: label, Start: start, Revenue: decimal.Zero}
		index[label] = i
	}
	return buckets, func(t time.Time) (int, bool) {
		idx, ok := index[t.Format(layout)]
		return idx, ok
	}
}
