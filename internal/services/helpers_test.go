package services

import (
	"testing"
	"time"

	"streetwear-store/internal/config"
	"streetwear-store/internal/database"
	"streetwear-store/internal/logger"

	"github.com/DATA-DOG/go-sqlmock"
)

var testNow = time.Date(2025, 3, 14, 12, 0, 0, 0, time.UTC)

func newTestLogger() *logger.Logger {
	return logger.New(&config.LoggerConfig{Level: "error", Format: "json"})
}

func newMockDB(t *testing.T) (*database.DB, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}

	return &database.DB{DB: db}, mock
}

func newTestCouponService(db *database.DB) *CouponService {
	s := NewCouponService(db, newTestLogger(), &config.BargainConfig{CouponTTL: 5 * time.Minute, CodePrefix: "BARGAIN"})
	s.now = func() time.Time { return testNow }
	return s
}

var couponRowColumns = []string{
	"code", "discount_type", "discount_value", "max_discount", "min_order_value", "valid_from", "valid_until",
	"max_uses", "used_count", "for_new_users_only", "user_id", "is_bargain_generated", "is_active", "created_at", "updated_at",
}

// couponFixture описывает строку купона; nil-поля попадают в БД как NULL.
type couponFixture struct {
	code          string
	discountType  string
	value         string
	maxDiscount   interface{}
	minOrderValue interface{}
	validUntil    interface{}
	maxUses       interface{}
	usedCount     int
	newUsersOnly  bool
	userID        interface{}
	bargain       bool
	active        bool
}

func couponRows(fixtures ...couponFixture) *sqlmock.Rows {
	rows := sqlmock.NewRows(couponRowColumns)
	for _, f := range fixtures {
		rows.AddRow(f.code, f.discountType, f.value, f.maxDiscount, f.minOrderValue, testNow.Add(-24*time.Hour),
			f.validUntil, f.maxUses, f.usedCount, f.newUsersOnly, f.userID, f.bargain, f.active, testNow, testNow)
	}
	return rows
}
