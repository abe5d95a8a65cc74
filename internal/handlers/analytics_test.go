package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"streetwear-store/internal/config"
	"streetwear-store/internal/logger"
	"streetwear-store/internal/models"

	"github.com/shopspring/decimal"
)

type stubAnalyticsService struct {
	kpi     *models.KPIMetrics
	coupons []*models.CouponAnalytics
	err     error
	filter  *models.AnalyticsFilter
}

func (s *stubAnalyticsService) GetKPIs(ctx context.Context, filter *models.AnalyticsFilter) (*models.KPIMetrics, error) {
	s.filter = filter
	return s.kpi, s.err
}

func (s *stubAnalyticsService) GetCouponAnalytics(ctx context.Context, filter *models.AnalyticsFilter) ([]*models.CouponAnalytics, error) {
	s.filter = filter
	return s.coupons, s.err
}

func testLogger() *logger.Logger {
	return logger.New(&config.LoggerConfig{Level: "error", Format: "json"})
}

func TestAnalyticsHandler_GetKPIs_JSON(t *testing.T) {
	cfg := &config.AnalyticsConfig{
		MaxRangeDays: 30,
	}
	kpi := &models.KPIMetrics{
		From:                   time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		To:                     time.Date(2024, 1, 2, 23, 59, 59, 0, time.UTC),
		Revenue:                decimal.NewFromInt(1000),
		OrdersCount:            5,
		BargainCouponsIssued:   4,
		BargainCouponsRedeemed: 3,
		RedemptionRate:         0.75,
		TopItems: []models.TopItem{
			{Name: "Oversized Hoodie", Quantity: 3, Revenue: decimal.NewFromInt(600)},
		},
	}
	h := NewAnalyticsHandler(&stubAnalyticsService{kpi: kpi}, testLogger(), cfg)

	req := httptest.NewRequest(http.MethodGet, "/api/admin/analytics/kpi?from=2024-01-01&to=2024-01-02&group_by=none", nil)
	rr := httptest.NewRecorder()

	h.GetKPIs(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}

	var resp models.KPIMetrics
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}

	if resp.OrdersCount != kpi.OrdersCount || !resp.Revenue.Equal(kpi.Revenue) || resp.RedemptionRate != 0.75 {
		t.Fatalf("unexpected KPI response: %+v", resp)
	}
}

func TestAnalyticsHandler_GetCouponAnalytics_CSV(t *testing.T) {
	maxUses := 1
	coupons := []*models.CouponAnalytics{
		{
			Code:               "BARGAINX7K2P9",
			DiscountType:       models.DiscountTypeFixed,
			IsBargainGenerated: true,
			UsedCount:          1,
			MaxUses:            &maxUses,
			Orders:             1,
			DiscountGranted:    decimal.NewFromInt(180),
			Revenue:            decimal.NewFromInt(1869),
		},
	}
	stub := &stubAnalyticsService{coupons: coupons}
	h := NewAnalyticsHandler(stub, testLogger(), &config.AnalyticsConfig{MaxRangeDays: 30})

	req := httptest.NewRequest(http.MethodGet, "/api/admin/analytics/coupons?from=2024-01-01&to=2024-01-02&format=csv&bargain_only=true", nil)
	rr := httptest.NewRecorder()

	h.GetCouponAnalytics(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	if ct := rr.Header().Get("Content-Type"); !strings.Contains(ct, "text/csv") {
		t.Fatalf("expected text/csv content type, got %s", ct)
	}
	body := rr.Body.String()
	if !strings.Contains(body, "BARGAINX7K2P9") || !strings.Contains(body, "180.00") || !strings.Contains(body, "discount_granted") {
		t.Fatalf("unexpected CSV body: %s", body)
	}
	if !stub.filter.BargainOnly {
		t.Fatalf("expected bargain_only filter to reach the service")
	}
}

func TestAnalyticsHandler_MaxRange_TooWide(t *testing.T) {
	h := NewAnalyticsHandler(&stubAnalyticsService{}, testLogger(), &config.AnalyticsConfig{MaxRangeDays: 7})

	req := httptest.NewRequest(http.MethodGet, "/api/admin/analytics/kpi?from=2024-01-01&to=2024-02-01", nil)
	rr := httptest.NewRecorder()

	h.GetKPIs(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", rr.Code)
	}
}

func TestAnalyticsHandler_BadRequests(t *testing.T) {
	h := NewAnalyticsHandler(&stubAnalyticsService{}, testLogger(), &config.AnalyticsConfig{MaxRangeDays: 30})

	cases := map[string]string{
		"group_by":     "/api/admin/analytics/kpi?from=2024-01-01&to=2024-01-02&group_by=year",
		"format":       "/api/admin/analytics/kpi?from=2024-01-01&to=2024-01-02&format=xml",
		"to":           "/api/admin/analytics/kpi?to=2024-99-99",
		"from_after":   "/api/admin/analytics/kpi?from=2024-01-10&to=2024-01-01",
		"bargain_only": "/api/admin/analytics/kpi?from=2024-01-01&to=2024-01-02&bargain_only=maybe",
	}
	for name, url := range cases {
		rr := httptest.NewRecorder()
		h.GetKPIs(rr, httptest.NewRequest(http.MethodGet, url, nil))
		if rr.Code != http.StatusBadRequest {
			t.Fatalf("%s: expected 400, got %d", name, rr.Code)
		}
	}
}

func TestAnalyticsHandler_MethodNotAllowed(t *testing.T) {
	h := NewAnalyticsHandler(&stubAnalyticsService{}, testLogger(), &config.AnalyticsConfig{MaxRangeDays: 30})
	req := httptest.NewRequest(http.MethodPost, "/api/admin/analytics/kpi", nil)
	rr := httptest.NewRecorder()

	h.GetKPIs(rr, req)
	if rr.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", rr.Code)
	}
}

func TestParseAnalyticsFilter_DefaultsFromConfig(t *testing.T) {
	cfg := &config.AnalyticsConfig{
		MaxRangeDays:       30,
		DefaultGroupBy:     "day",
		DefaultTopLimit:    7,
		DefaultCouponLimit: 11,
	}

	req := httptest.NewRequest(http.MethodGet, "/api/admin/analytics/kpi?from=2024-01-01&to=2024-01-02&top_limit=bad&limit=-1", nil)
	filter, format, err := parseAnalyticsFilter(req, cfg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if format != "" {
		t.Fatalf("expected empty format, got %q", format)
	}
	if filter.GroupBy != models.AnalyticsGroupDay || !filter.IncludePeriods {
		t.Fatalf("expected day periods, got %s include=%t", filter.GroupBy, filter.IncludePeriods)
	}
	if filter.TopItemsLimit != 7 || filter.CouponLimit != 11 {
		t.Fatalf("unexpected defaults: top=%d coupons=%d", filter.TopItemsLimit, filter.CouponLimit)
	}
}

func TestAnalyticsHandler_ServiceErrors(t *testing.T) {
	h := NewAnalyticsHandler(&stubAnalyticsService{err: fmt.Errorf("service error")}, testLogger(), &config.AnalyticsConfig{MaxRangeDays: 30})

	rr := httptest.NewRecorder()
	h.GetKPIs(rr, httptest.NewRequest(http.MethodGet, "/api/admin/analytics/kpi?from=2024-01-01&to=2024-01-02", nil))
	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rr.Code)
	}

	rr = httptest.NewRecorder()
	h.GetCouponAnalytics(rr, httptest.NewRequest(http.MethodGet, "/api/admin/analytics/coupons?from=2024-01-01&to=2024-01-02", nil))
	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rr.Code)
	}
}

func TestAnalyticsHandler_GetKPIs_CSV(t *testing.T) {
	kpi := &models.KPIMetrics{
		From:        time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		To:          time.Date(2024, 1, 2, 23, 0, 0, 0, time.UTC),
		Revenue:     decimal.NewFromInt(100),
		OrdersCount: 2,
		Periods: []models.KPIPeriod{
			{Period: "2024-01-01", Revenue: decimal.NewFromInt(50), OrdersCount: 1, DiscountGranted: decimal.NewFromInt(5)},
		},
		TopItems: []models.TopItem{{Name: "Tee", Quantity: 1, Revenue: decimal.NewFromInt(50)}},
	}
	h := NewAnalyticsHandler(&stubAnalyticsService{kpi: kpi}, testLogger(), &config.AnalyticsConfig{MaxRangeDays: 30})
	req := httptest.NewRequest(http.MethodGet, "/api/admin/analytics/kpi?from=2024-01-01&to=2024-01-02&format=csv", nil)
	rr := httptest.NewRecorder()

	h.GetKPIs(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	body := rr.Body.String()
	if !strings.Contains(body, "summary") || !strings.Contains(body, "bargain") || !strings.Contains(body, "Tee") {
		t.Fatalf("expected csv content, got %s", body)
	}
}

func TestParseIntWithDefault(t *testing.T) {
	if v := parseIntWithDefault("", 5); v != 5 {
		t.Fatalf("expected default 5, got %d", v)
	}
	if v := parseIntWithDefault("10", 1); v != 10 {
		t.Fatalf("expected 10, got %d", v)
	}
	if v := parseIntWithDefault("bad", 3); v != 3 {
		t.Fatalf("expected fallback 3, got %d", v)
	}
}

func TestAnalyticsTimeout(t *testing.T) {
	if d := analyticsTimeout(nil); d != 5*time.Second {
		t.Fatalf("expected default 5s, got %v", d)
	}
	cfg := &config.AnalyticsConfig{RequestTimeoutSeconds: 2}
	if d := analyticsTimeout(cfg); d != 2*time.Second {
		t.Fatalf("expected configured timeout, got %v", d)
	}
}
