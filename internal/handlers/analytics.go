package handlers

import (
	"context"
	"encoding/csv"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"streetwear-store/internal/config"
	"streetwear-store/internal/logger"
	"streetwear-store/internal/models"
)

const (
	defaultTopLimitFallback    = 5
	defaultCouponLimitFallback = 50
)

// AnalyticsHandler обрабатывает эндпоинты аналитики торга.
type AnalyticsHandler struct {
	service AnalyticsProvider
	log     *logger.Logger
	cfg     *config.AnalyticsConfig
}

// NewAnalyticsHandler создает новый обработчик аналитики.
func NewAnalyticsHandler(service AnalyticsProvider, log *logger.Logger, cfg *config.AnalyticsConfig) *AnalyticsHandler {
	return &AnalyticsHandler{
		service: service,
		log:     log,
		cfg:     cfg,
	}
}

// GetKPIs возвращает KPI с возможностью экспорта в CSV.
func (h *AnalyticsHandler) GetKPIs(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeErrorResponse(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	filter, format, err := parseAnalyticsFilter(r, h.cfg)
	if err != nil {
		writeErrorResponse(w, http.StatusBadRequest, err.Error())
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), analyticsTimeout(h.cfg))
	defer cancel()

	metrics, err := h.service.GetKPIs(ctx, filter)
	if err != nil {
		h.log.WithError(err).Error("Failed to load KPI metrics")
		writeErrorResponse(w, http.StatusInternalServerError, "Failed to load analytics")
		return
	}

	if format == "csv" {
		if err := writeKPICSV(w, metrics); err != nil {
			h.log.WithError(err).Warn("Failed to stream KPI CSV")
		}
		return
	}

	writeJSONResponse(w, http.StatusOK, metrics)
}

// GetCouponAnalytics возвращает использование купонов с опциональным CSV.
func (h *AnalyticsHandler) GetCouponAnalytics(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeErrorResponse(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	filter, format, err := parseAnalyticsFilter(r, h.cfg)
	if err != nil {
		writeErrorResponse(w, http.StatusBadRequest, err.Error())
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), analyticsTimeout(h.cfg))
	defer cancel()

	metrics, err := h.service.GetCouponAnalytics(ctx, filter)
	if err != nil {
		h.log.WithError(err).Error("Failed to load coupon analytics")
		writeErrorResponse(w, http.StatusInternalServerError, "Failed to load analytics")
		return
	}

	if format == "csv" {
		if err := writeCouponCSV(w, metrics); err != nil {
			h.log.WithError(err).Warn("Failed to stream coupon CSV")
		}
		return
	}

	writeJSONResponse(w, http.StatusOK, metrics)
}

func parseAnalyticsFilter(r *http.Request, cfg *config.AnalyticsConfig) (*models.AnalyticsFilter, string, error) {
	query := r.URL.Query()
	now := time.Now().UTC()

	toParam := query.Get("to")
	fromParam := query.Get("from")

	to := endOfDay(now)
	if toParam != "" {
		parsed, err := time.Parse("2006-01-02", toParam)
		if err != nil {
			return nil, "", fmt.Errorf("invalid 'to' date, expected YYYY-MM-DD")
		}
		to = endOfDay(parsed)
	}

	maxRangeDays := 365
	if cfg != nil && cfg.MaxRangeDays > 0 {
		maxRangeDays = cfg.MaxRangeDays
	}

	from := startOfDay(to.AddDate(0, 0, -maxRangeDays+1))
	if fromParam != "" {
		parsed, err := time.Parse("2006-01-02", fromParam)
		if err != nil {
			return nil, "", fmt.Errorf("invalid 'from' date, expected YYYY-MM-DD")
		}
		from = startOfDay(parsed)
	}

	minAllowedFrom := startOfDay(to.AddDate(0, 0, -maxRangeDays+1))
	if from.Before(minAllowedFrom) {
		return nil, "", fmt.Errorf("date range too wide, max %d days", maxRangeDays)
	}

	if from.After(to) {
		return nil, "", fmt.Errorf("'from' date must be before 'to' date")
	}

	groupByStr := strings.ToLower(query.Get("group_by"))
	defaultGroupBy := models.AnalyticsGroupNone
	if cfg != nil {
		switch strings.ToLower(cfg.DefaultGroupBy) {
		case "day", "week", "month", "none":
			defaultGroupBy = models.AnalyticsGroupBy(strings.ToLower(cfg.DefaultGroupBy))
		}
	}

	groupBy := models.AnalyticsGroupBy(groupByStr)
	if groupByStr == "" {
		groupBy = defaultGroupBy
	} else if groupBy != models.AnalyticsGroupDay && groupBy != models.AnalyticsGroupWeek && groupBy != models.AnalyticsGroupMonth && groupBy != models.AnalyticsGroupNone {
		return nil, "", fmt.Errorf("group_by must be one of: day, week, month, none")
	}

	topDefault := defaultTopLimitFallback
	couponDefault := defaultCouponLimitFallback
	if cfg != nil {
		if cfg.DefaultTopLimit > 0 {
			topDefault = cfg.DefaultTopLimit
		}
		if cfg.DefaultCouponLimit > 0 {
			couponDefault = cfg.DefaultCouponLimit
		}
	}

	topLimit := parseIntWithDefault(query.Get("top_limit"), topDefault)
	couponLimit := parseIntWithDefault(query.Get("limit"), couponDefault)

	bargainOnly := false
	if raw := query.Get("bargain_only"); raw != "" {
		parsed, err := strconv.ParseBool(raw)
		if err != nil {
			return nil, "", fmt.Errorf("bargain_only must be a boolean")
		}
		bargainOnly = parsed
	}

	format := strings.ToLower(query.Get("format"))
	if format != "" && format != "json" && format != "csv" {
		return nil, "", fmt.Errorf("format must be json or csv")
	}

	filter := &models.AnalyticsFilter{
		From:           from,
		To:             to,
		GroupBy:        groupBy,
		TopItemsLimit:  topLimit,
		CouponLimit:    couponLimit,
		BargainOnly:    bargainOnly,
		IncludePeriods: groupBy != models.AnalyticsGroupNone,
	}

	return filter, format, nil
}

func parseIntWithDefault(value string, defaultValue int) int {
	if value == "" {
		return defaultValue
	}

	parsed, err := strconv.Atoi(value)
	if err != nil || parsed <= 0 {
		return defaultValue
	}

	return parsed
}

func writeKPICSV(w http.ResponseWriter, metrics *models.KPIMetrics) error {
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", "attachment; filename=kpi.csv")
	w.WriteHeader(http.StatusOK)

	writer := csv.NewWriter(w)
	_ = writer.Write([]string{"section", "period", "revenue", "orders_count", "discount_granted"})
	rangeLabel := fmt.Sprintf("%s..%s", metrics.From.Format("2006-01-02"), metrics.To.Format("2006-01-02"))
	_ = writer.Write([]string{"summary", rangeLabel, metrics.Revenue.StringFixed(2), strconv.Itoa(metrics.OrdersCount), metrics.DiscountGranted.StringFixed(2)})

	for _, period := range metrics.Periods {
		_ = writer.Write([]string{"period", period.Period, period.Revenue.StringFixed(2), strconv.Itoa(period.OrdersCount), period.DiscountGranted.StringFixed(2)})
	}

	_ = writer.Write([]string{})
	_ = writer.Write([]string{"section", "coupons_issued", "coupons_redeemed", "discount_offered", "redemption_rate"})
	_ = writer.Write([]string{
		"bargain",
		strconv.Itoa(metrics.BargainCouponsIssued),
		strconv.Itoa(metrics.BargainCouponsRedeemed),
		metrics.BargainDiscountOffered.StringFixed(2),
		fmt.Sprintf("%.4f", metrics.RedemptionRate),
	})

	_ = writer.Write([]string{})
	_ = writer.Write([]string{"section", "item_name", "quantity", "revenue"})
	for _, item := range metrics.TopItems {
		_ = writer.Write([]string{"top_item", item.Name, strconv.Itoa(item.Quantity), item.Revenue.StringFixed(2)})
	}

	writer.Flush()
	return writer.Error()
}

func writeCouponCSV(w http.ResponseWriter, metrics []*models.CouponAnalytics) error {
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", "attachment; filename=coupons.csv")
	w.WriteHeader(http.StatusOK)

	writer := csv.NewWriter(w)
	_ = writer.Write([]string{"code", "discount_type", "bargain", "used_count", "max_uses", "orders", "discount_granted", "revenue"})

	for _, row := range metrics {
		maxUses := ""
		if row.MaxUses != nil {
			maxUses = strconv.Itoa(*row.MaxUses)
		}
		_ = writer.Write([]string{
			row.Code,
			string(row.DiscountType),
			strconv.FormatBool(row.IsBargainGenerated),
			strconv.Itoa(row.UsedCount),
			maxUses,
			strconv.Itoa(row.Orders),
			row.DiscountGranted.StringFixed(2),
			row.Revenue.StringFixed(2),
		})
	}

	writer.Flush()
	return writer.Error()
}

func startOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func endOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 23, 59, 59, int(time.Millisecond*999), time.UTC)
}

func analyticsTimeout(cfg *config.AnalyticsConfig) time.Duration {
	if cfg != nil && cfg.RequestTimeoutSeconds > 0 {
		return time.Duration(cfg.RequestTimeoutSeconds) * time.Second
	}
	return 5 * time.Second
}
