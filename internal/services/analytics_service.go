package services

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"streetwear-store/internal/config"
	"streetwear-store/internal/database"
	"streetwear-store/internal/logger"
	"streetwear-store/internal/models"
	"streetwear-store/internal/redis"

	"github.com/shopspring/decimal"
)

const (
	DefaultTopItemsLimit = 5
	DefaultCouponLimit   = 50
	defaultCacheTTL      = 10 * time.Minute
)

// AnalyticsService агрегирует показатели магазина и торга и кеширует тяжёлые выборки.
type AnalyticsService struct {
	db              *database.DB
	redis           *redis.Client
	log             *logger.Logger
	cacheTTL        time.Duration
	defaultTopItems int
	defaultCoupons  int
	defaultGroupBy  models.AnalyticsGroupBy
}

// NewAnalyticsService создает новый сервис аналитики.
func NewAnalyticsService(db *database.DB, redisClient *redis.Client, log *logger.Logger, cfg *config.AnalyticsConfig) *AnalyticsService {
	cacheTTL := defaultCacheTTL
	defaultTop := DefaultTopItemsLimit
	defaultCoupons := DefaultCouponLimit
	groupBy := models.AnalyticsGroupNone

	if cfg != nil {
		if cfg.CacheTTLMinutes > 0 {
			cacheTTL = time.Duration(cfg.CacheTTLMinutes) * time.Minute
		}
		if cfg.DefaultTopLimit > 0 {
			defaultTop = cfg.DefaultTopLimit
		}
		if cfg.DefaultCouponLimit > 0 {
			defaultCoupons = cfg.DefaultCouponLimit
		}
		switch models.AnalyticsGroupBy(cfg.DefaultGroupBy) {
		case models.AnalyticsGroupDay, models.AnalyticsGroupWeek, models.AnalyticsGroupMonth, models.AnalyticsGroupNone:
			groupBy = models.AnalyticsGroupBy(cfg.DefaultGroupBy)
		}
	}

	return &AnalyticsService{
		db:              db,
		redis:           redisClient,
		log:             log,
		cacheTTL:        cacheTTL,
		defaultTopItems: defaultTop,
		defaultCoupons:  defaultCoupons,
		defaultGroupBy:  groupBy,
	}
}

// GetKPIs возвращает выручку, скидки и показатели торга с опциональной группировкой.
func (s *AnalyticsService) GetKPIs(ctx context.Context, filter *models.AnalyticsFilter) (*models.KPIMetrics, error) {
	filter = s.normalizeFilter(filter)
	cacheKey := s.buildCacheKey("kpi", filter)

	var cached models.KPIMetrics
	if s.tryGetFromCache(ctx, cacheKey, &cached) {
		return &cached, nil
	}

	summary, err := s.fetchKPISummary(ctx, filter)
	if err != nil {
		return nil, err
	}

	bargain, err := s.fetchBargainSummary(ctx, filter)
	if err != nil {
		return nil, err
	}

	periods, err := s.fetchKPIPeriods(ctx, filter)
	if err != nil {
		return nil, err
	}

	topItems, err := s.fetchTopItems(ctx, filter)
	if err != nil {
		return nil, err
	}

	result := &models.KPIMetrics{
		From:                   filter.From,
		To:                     filter.To,
		Revenue:                summary.Revenue,
		OrdersCount:            summary.OrdersCount,
		AverageCheck:           summary.AverageCheck.Round(2),
		DiscountGranted:        summary.DiscountGranted,
		BargainCouponsIssued:   bargain.Issued,
		BargainCouponsRedeemed: bargain.Redeemed,
		BargainDiscountOffered: bargain.Offered,
		TopItems:               topItems,
		Periods:                periods,
		GeneratedAt:            time.Now(),
		GroupBy:                string(filter.GroupBy),
	}
	if bargain.Issued > 0 {
		result.RedemptionRate = float64(bargain.Redeemed) / float64(bargain.Issued)
	}

	s.saveToCache(ctx, cacheKey, result)
	return result, nil
}

// GetCouponAnalytics возвращает использование купонов: погашения, выданную скидку и выручку заказов.
func (s *AnalyticsService) GetCouponAnalytics(ctx context.Context, filter *models.AnalyticsFilter) ([]*models.CouponAnalytics, error) {
	filter = s.normalizeFilter(filter)
	cacheKey := s.buildCacheKey("coupons", filter)

	var cached []*models.CouponAnalytics
	if s.tryGetFromCache(ctx, cacheKey, &cached) {
		return cached, nil
	}

	query := `
		SELECT c.code,
		       c.discount_type,
		       c.is_bargain_generated,
		       c.used_count,
		       c.max_uses,
		       COUNT(o.id) AS orders,
		       COALESCE(SUM(o.discount), 0) AS discount_granted,
		       COALESCE(SUM(o.total), 0) AS revenue
		FROM coupons c
		LEFT JOIN orders o ON o.coupon_code = c.code
			AND o.status <> 'cancelled'
			AND o.created_at BETWEEN $1 AND $2
		WHERE ($3 = FALSE OR c.is_bargain_generated)
	GROUP BY c.code, c.discount_type, c.is_bargain_generated, c.used_count, c.max_uses
	ORDER BY orders DESC, discount_granted DESC, c.code ASC
	LIMIT $4
	`

	rows, err := s.db.QueryContext(ctx, query, filter.From, filter.To, filter.BargainOnly, filter.CouponLimit)
	if err != nil {
		return nil, fmt.Errorf("failed to load coupon analytics: %w", err)
	}
	defer rows.Close()

	result := []*models.CouponAnalytics{}
	for rows.Next() {
		item := &models.CouponAnalytics{}
		var maxUses sql.NullInt64
		if err := rows.Scan(&item.Code, &item.DiscountType, &item.IsBargainGenerated, &item.UsedCount, &maxUses,
			&item.Orders, &item.DiscountGranted, &item.Revenue); err != nil {
			return nil, fmt.Errorf("failed to scan coupon analytics: %w", err)
		}
		if maxUses.Valid {
			v := int(maxUses.Int64)
			item.MaxUses = &v
		}
		result = append(result, item)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate coupon analytics: %w", err)
	}

	s.saveToCache(ctx, cacheKey, result)
	return result, nil
}

// InvalidateCache сбрасывает все закешированные выборки, например после нового заказа.
func (s *AnalyticsService) InvalidateCache(ctx context.Context) error {
	if s.redis == nil {
		return nil
	}
	if err := s.redis.DeleteByPrefix(ctx, redis.KeyPrefixStats); err != nil {
		return fmt.Errorf("failed to invalidate analytics cache: %w", err)
	}
	return nil
}

type kpiSummary struct {
	Revenue         decimal.Decimal
	OrdersCount     int
	AverageCheck    decimal.Decimal
	DiscountGranted decimal.Decimal
}

func (s *AnalyticsService) fetchKPISummary(ctx context.Context, filter *models.AnalyticsFilter) (*kpiSummary, error) {
	query := `
		SELECT COALESCE(SUM(total), 0) AS revenue,
		       COUNT(*) AS orders_count,
		       COALESCE(AVG(total), 0) AS average_check,
		       COALESCE(SUM(discount), 0) AS discount_granted
	FROM orders
	WHERE status <> 'cancelled' AND created_at BETWEEN $1 AND $2
	`

	row := s.db.QueryRowContext(ctx, query, filter.From, filter.To)
	summary := &kpiSummary{}
	if err := row.Scan(&summary.Revenue, &summary.OrdersCount, &summary.AverageCheck, &summary.DiscountGranted); err != nil {
		return nil, fmt.Errorf("failed to load KPI summary: %w", err)
	}

	return summary, nil
}

type bargainSummary struct {
	Issued   int
	Redeemed int
	Offered  decimal.Decimal
}

func (s *AnalyticsService) fetchBargainSummary(ctx context.Context, filter *models.AnalyticsFilter) (*bargainSummary, error) {
	query := `
		SELECT COUNT(*) AS issued,
		       COUNT(*) FILTER (WHERE used) AS redeemed,
		       COALESCE(SUM(discount_amount), 0) AS offered
	FROM bargain_sessions
	WHERE created_at BETWEEN $1 AND $2
	`

	summary := &bargainSummary{}
	if err := s.db.QueryRowContext(ctx, query, filter.From, filter.To).Scan(&summary.Issued, &summary.Redeemed, &summary.Offered); err != nil {
		return nil, fmt.Errorf("failed to load bargain summary: %w", err)
	}
	return summary, nil
}

func (s *AnalyticsService) fetchKPIPeriods(ctx context.Context, filter *models.AnalyticsFilter) ([]models.KPIPeriod, error) {
	if filter.GroupBy == models.AnalyticsGroupNone || !filter.IncludePeriods {
		return nil, nil
	}

	periodExpr := "date_trunc('day', created_at)"
	switch filter.GroupBy {
	case models.AnalyticsGroupWeek:
		periodExpr = "date_trunc('week', created_at)"
	case models.AnalyticsGroupMonth:
		periodExpr = "date_trunc('month', created_at)"
	}

	query := fmt.Sprintf(`
		SELECT %[1]s AS period,
		       COALESCE(SUM(total), 0) AS revenue,
		       COUNT(*) AS orders_count,
		       COALESCE(SUM(discount), 0) AS discount_granted
	FROM orders
	WHERE status <> 'cancelled' AND created_at BETWEEN $1 AND $2
	GROUP BY period
	ORDER BY period ASC
	`, periodExpr)

	rows, err := s.db.QueryContext(ctx, query, filter.From, filter.To)
	if err != nil {
		return nil, fmt.Errorf("failed to load KPI periods: %w", err)
	}
	defer rows.Close()

	var result []models.KPIPeriod
	for rows.Next() {
		var (
			periodTime time.Time
			item       models.KPIPeriod
		)
		if err := rows.Scan(&periodTime, &item.Revenue, &item.OrdersCount, &item.DiscountGranted); err != nil {
			return nil, fmt.Errorf("failed to scan KPI period: %w", err)
		}
		item.Period = formatPeriod(periodTime, filter.GroupBy)
		result = append(result, item)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate KPI periods: %w", err)
	}

	return result, nil
}

func (s *AnalyticsService) fetchTopItems(ctx context.Context, filter *models.AnalyticsFilter) ([]models.TopItem, error) {
	query := `
		SELECT oi.name,
		       COALESCE(SUM(oi.quantity), 0) AS total_quantity,
		       COALESCE(SUM(oi.total_price), 0) AS revenue
	FROM order_items oi
	JOIN orders o ON o.id = oi.order_id
	WHERE o.status <> 'cancelled' AND o.created_at BETWEEN $1 AND $2
	GROUP BY oi.name
	ORDER BY total_quantity DESC, revenue DESC, oi.name ASC
	LIMIT $3
	`

	rows, err := s.db.QueryContext(ctx, query, filter.From, filter.To, filter.TopItemsLimit)
	if err != nil {
		return nil, fmt.Errorf("failed to load top items: %w", err)
	}
	defer rows.Close()

	var result []models.TopItem
	for rows.Next() {
		var item models.TopItem
		if err := rows.Scan(&item.Name, &item.Quantity, &item.Revenue); err != nil {
			return nil, fmt.Errorf("failed to scan top item: %w", err)
		}
		result = append(result, item)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate top items: %w", err)
	}

	return result, nil
}

func (s *AnalyticsService) buildCacheKey(kind string, filter *models.AnalyticsFilter) string {
	return redis.GenerateKey(redis.KeyPrefixStats, fmt.Sprintf(
		"%s:%s:%s:%s:%d:%d:%t:%t",
		kind,
		filter.From.Format("2006-01-02"),
		filter.To.Format("2006-01-02"),
		filter.GroupBy,
		filter.TopItemsLimit,
		filter.CouponLimit,
		filter.BargainOnly,
		filter.IncludePeriods,
	))
}

func (s *AnalyticsService) normalizeFilter(filter *models.AnalyticsFilter) *models.AnalyticsFilter {
	if filter.TopItemsLimit <= 0 {
		filter.TopItemsLimit = s.defaultTopItems
	}
	if filter.CouponLimit <= 0 {
		filter.CouponLimit = s.defaultCoupons
	}
	if filter.GroupBy == "" {
		filter.GroupBy = s.defaultGroupBy
	}
	filter.IncludePeriods = filter.GroupBy != models.AnalyticsGroupNone
	return filter
}

func (s *AnalyticsService) tryGetFromCache(ctx context.Context, key string, dest interface{}) bool {
	if s.redis == nil {
		return false
	}

	if err := s.redis.Get(ctx, key, dest); err != nil {
		return false
	}
	return true
}

func (s *AnalyticsService) saveToCache(ctx context.Context, key string, value interface{}) {
	if s.redis == nil {
		return
	}

	if err := s.redis.Set(ctx, key, value, s.cacheTTL); err != nil {
		s.log.WithError(err).WithField("key", key).Warn("Failed to cache analytics result")
	}
}

func formatPeriod(period time.Time, groupBy models.AnalyticsGroupBy) string {
	switch groupBy {
	case models.AnalyticsGroupWeek:
		return period.Format("2006-01-02") // начало недели
	case models.AnalyticsGroupMonth:
		return period.Format("2006-01")
	default:
		return period.Format("2006-01-02")
	}
}
