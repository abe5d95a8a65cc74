package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// AnalyticsGroupBy описывает доступные варианты группировки периодов.
type AnalyticsGroupBy string

const (
	AnalyticsGroupNone  AnalyticsGroupBy = "none"
	AnalyticsGroupDay   AnalyticsGroupBy = "day"
	AnalyticsGroupWeek  AnalyticsGroupBy = "week"
	AnalyticsGroupMonth AnalyticsGroupBy = "month"
)

// AnalyticsFilter задает временной интервал и параметры агрегации.
type AnalyticsFilter struct {
	From           time.Time
	To             time.Time
	GroupBy        AnalyticsGroupBy
	TopItemsLimit  int
	CouponLimit    int
	BargainOnly    bool
	IncludePeriods bool
}

// KPIMetrics описывает показатели магазина и торга за период.
type KPIMetrics struct {
	From                   time.Time       `json:"from"`
	To                     time.Time       `json:"to"`
	Revenue                decimal.Decimal `json:"revenue"`
	OrdersCount            int             `json:"orders_count"`
	AverageCheck           decimal.Decimal `json:"average_check"`
	DiscountGranted        decimal.Decimal `json:"discount_granted"`
	BargainCouponsIssued   int             `json:"bargain_coupons_issued"`
	BargainCouponsRedeemed int             `json:"bargain_coupons_redeemed"`
	BargainDiscountOffered decimal.Decimal `json:"bargain_discount_offered"`
	RedemptionRate         float64         `json:"redemption_rate"`
	TopItems               []TopItem       `json:"top_items"`
	Periods                []KPIPeriod     `json:"periods,omitempty"`
	GeneratedAt            time.Time       `json:"generated_at"`
	GroupBy                string          `json:"group_by,omitempty"`
}

// KPIPeriod хранит агрегированные метрики по периоду.
type KPIPeriod struct {
	Period          string          `json:"period"`
	Revenue         decimal.Decimal `json:"revenue"`
	OrdersCount     int             `json:"orders_count"`
	DiscountGranted decimal.Decimal `json:"discount_granted"`
}

// TopItem описывает популярный товар в заказах.
type TopItem struct {
	Name     string          `json:"name"`
	Quantity int             `json:"quantity"`
	Revenue  decimal.Decimal `json:"revenue"`
}

// CouponAnalytics агрегирует использование купона.
type CouponAnalytics struct {
	Code               string          `json:"code"`
	DiscountType       DiscountType    `json:"discount_type"`
	IsBargainGenerated bool            `json:"is_bargain_generated"`
	UsedCount          int             `json:"used_count"`
	MaxUses            *int            `json:"max_uses,omitempty"`
	Orders             int             `json:"orders"`
	DiscountGranted    decimal.Decimal `json:"discount_granted"`
	Revenue            decimal.Decimal `json:"revenue"`
}
