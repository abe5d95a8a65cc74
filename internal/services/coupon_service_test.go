package services

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"streetwear-store/internal/apperror"
	"streetwear-store/internal/models"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
)

func TestCouponService_Validate_Fixed(t *testing.T) {
	db, mock := newMockDB(t)
	defer db.Close()
	service := newTestCouponService(db)

	mock.ExpectQuery("SELECT code, discount_type").
		WithArgs("FLAT100").
		WillReturnRows(couponRows(couponFixture{code: "FLAT100", discountType: "fixed", value: "100", active: true}))

	res, err := service.Validate(context.Background(), " flat100 ", dec("1500"), "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.Valid || !res.DiscountAmount().Equal(dec("100")) {
		t.Fatalf("expected valid 100 discount, got %+v", res)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestCouponService_Validate_PercentageCapped(t *testing.T) {
	db, mock := newMockDB(t)
	defer db.Close()
	service := newTestCouponService(db)

	mock.ExpectQuery("SELECT code, discount_type").
		WithArgs("TEN").
		WillReturnRows(couponRows(couponFixture{code: "TEN", discountType: "percentage", value: "10", maxDiscount: "150", active: true}))

	res, err := service.Validate(context.Background(), "TEN", dec("3000"), "u1")
	if err != nil || !res.Valid {
		t.Fatalf("expected valid coupon, got %+v err=%v", res, err)
	}
	if !res.DiscountAmount().Equal(dec("150")) {
		t.Fatalf("expected capped 150, got %s", res.DiscountAmount())
	}
}

func TestCouponService_Validate_Rejections(t *testing.T) {
	past := testNow.Add(-time.Minute)
	cases := []struct {
		name    string
		fixture couponFixture
		user    string
		total   string
		want    models.CouponErrorCode
	}{
		{"inactive", couponFixture{discountType: "fixed", value: "50", active: false}, "", "1000", models.CouponErrInactive},
		{"expired", couponFixture{discountType: "fixed", value: "50", validUntil: past, active: true}, "", "1000", models.CouponErrExpired},
		{"exhausted", couponFixture{discountType: "fixed", value: "50", maxUses: 1, usedCount: 1, active: true}, "", "1000", models.CouponErrUsageExhausted},
		{"below minimum", couponFixture{discountType: "fixed", value: "200", minOrderValue: "2500", active: true}, "", "2000", models.CouponErrBelowMinimum},
		{"wrong user", couponFixture{discountType: "fixed", value: "180", userID: "owner", active: true}, "intruder", "1000", models.CouponErrWrongUser},
		{"anonymous on bound coupon", couponFixture{discountType: "fixed", value: "180", userID: "owner", active: true}, "", "1000", models.CouponErrWrongUser},
		{"new users anonymous", couponFixture{discountType: "fixed", value: "50", newUsersOnly: true, active: true}, "", "1000", models.CouponErrNewUserOnly},
		{"unknown type", couponFixture{discountType: "bogo", value: "1", active: true}, "", "1000", models.CouponErrUnsupportedType},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			db, mock := newMockDB(t)
			defer db.Close()
			service := newTestCouponService(db)

			tc.fixture.code = "CODE"
			mock.ExpectQuery("SELECT code, discount_type").WithArgs("CODE").WillReturnRows(couponRows(tc.fixture))

			res, err := service.Validate(context.Background(), "CODE", dec(tc.total), tc.user)
			if err != nil {
				t.Fatalf("business rejection must not be an error: %v", err)
			}
			if res.Valid || res.Error != tc.want {
				t.Fatalf("expected %s, got %+v", tc.want, res)
			}
			if !res.DiscountAmount().IsZero() {
				t.Fatalf("rejected coupon must carry no discount")
			}
		})
	}
}

func TestCouponService_ValidateAt_PastMoment(t *testing.T) {
	db, mock := newMockDB(t)
	defer db.Close()
	service := newTestCouponService(db)

	// купон торга истёк минуту назад, но был действителен при создании заказа в шлюзе
	fixture := couponFixture{code: "BARGAINAB12CD", discountType: "fixed", value: "150", validUntil: testNow.Add(-time.Minute), userID: "u1", bargain: true, active: true}
	mock.ExpectQuery("SELECT code, discount_type").WithArgs("BARGAINAB12CD").WillReturnRows(couponRows(fixture))
	mock.ExpectQuery("SELECT code, discount_type").WithArgs("BARGAINAB12CD").WillReturnRows(couponRows(fixture))

	res, err := service.ValidateAt(context.Background(), "BARGAINAB12CD", dec("2000"), "u1", testNow.Add(-6*time.Minute))
	if err != nil || !res.Valid || !res.DiscountAmount().Equal(dec("150")) {
		t.Fatalf("expected valid 150 discount at gateway order time, got %+v err=%v", res, err)
	}

	res, err = service.Validate(context.Background(), "BARGAINAB12CD", dec("2000"), "u1")
	if err != nil || res.Valid || res.Error != models.CouponErrExpired {
		t.Fatalf("expected expired now, got %+v err=%v", res, err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestCouponService_Validate_NotFound(t *testing.T) {
	db, mock := newMockDB(t)
	defer db.Close()
	service := newTestCouponService(db)

	mock.ExpectQuery("SELECT code, discount_type").WithArgs("NOPE").WillReturnError(sql.ErrNoRows)

	res, err := service.Validate(context.Background(), "NOPE", dec("1000"), "")
	if err != nil || res.Valid || res.Error != models.CouponErrNotFound {
		t.Fatalf("expected not_found result, got %+v err=%v", res, err)
	}
}

func TestCouponService_Validate_StoreFailureIsError(t *testing.T) {
	db, mock := newMockDB(t)
	defer db.Close()
	service := newTestCouponService(db)

	mock.ExpectQuery("SELECT code, discount_type").WithArgs("X").WillReturnError(errors.New("connection reset"))

	if _, err := service.Validate(context.Background(), "X", dec("1000"), ""); err == nil {
		t.Fatalf("expected infrastructure error")
	}
}

func TestCouponService_Validate_NewUsersOnly(t *testing.T) {
	db, mock := newMockDB(t)
	defer db.Close()
	service := newTestCouponService(db)

	fixture := couponFixture{code: "WELCOME", discountType: "fixed", value: "150", newUsersOnly: true, active: true}

	mock.ExpectQuery("SELECT code, discount_type").WithArgs("WELCOME").WillReturnRows(couponRows(fixture))
	mock.ExpectQuery("SELECT COUNT\\(\\*\\) FROM orders").
		WithArgs("returning", models.OrderStatusCancelled).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(2))

	res, err := service.Validate(context.Background(), "WELCOME", dec("1000"), "returning")
	if err != nil || res.Error != models.CouponErrNewUserOnly {
		t.Fatalf("expected new-user rejection, got %+v err=%v", res, err)
	}

	mock.ExpectQuery("SELECT code, discount_type").WithArgs("WELCOME").WillReturnRows(couponRows(fixture))
	mock.ExpectQuery("SELECT COUNT\\(\\*\\) FROM orders").
		WithArgs("fresh", models.OrderStatusCancelled).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))

	res, err = service.Validate(context.Background(), "WELCOME", dec("1000"), "fresh")
	if err != nil || !res.Valid {
		t.Fatalf("expected valid for first order, got %+v err=%v", res, err)
	}
}

func TestCouponService_Validate_Idempotent(t *testing.T) {
	db, mock := newMockDB(t)
	defer db.Close()
	service := newTestCouponService(db)

	fixture := couponFixture{code: "BARGAINQ1W2E3", discountType: "fixed", value: "180", minOrderValue: "2500",
		maxUses: 1, userID: "u1", bargain: true, active: true, validUntil: testNow.Add(4 * time.Minute)}
	for i := 0; i < 2; i++ {
		mock.ExpectQuery("SELECT code, discount_type").WithArgs("BARGAINQ1W2E3").WillReturnRows(couponRows(fixture))
	}

	first, err := service.Validate(context.Background(), "BARGAINQ1W2E3", dec("2500"), "u1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, err := service.Validate(context.Background(), "BARGAINQ1W2E3", dec("2500"), "u1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if first.Valid != second.Valid || !first.DiscountAmount().Equal(second.DiscountAmount()) || first.Error != second.Error {
		t.Fatalf("validation is not idempotent: %+v vs %+v", first, second)
	}
	if !first.Valid || !first.DiscountAmount().Equal(dec("180")) {
		t.Fatalf("expected valid 180, got %+v", first)
	}
}

func TestCouponService_Issue_RetriesOnCollision(t *testing.T) {
	db, mock := newMockDB(t)
	defer db.Close()
	service := newTestCouponService(db)

	codes := []string{"BARGAINAAAAAA", "BARGAINBBBBBB"}
	service.newCode = func(prefix string) (string, error) {
		c := codes[0]
		codes = codes[1:]
		return c, nil
	}

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO coupons").
		WithArgs("BARGAINAAAAAA", models.DiscountTypeFixed, sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), "u1").
		WillReturnError(&pq.Error{Code: "23505"})
	mock.ExpectRollback()

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO coupons").
		WithArgs("BARGAINBBBBBB", models.DiscountTypeFixed, sqlmock.AnyArg(), sqlmock.AnyArg(), testNow, testNow.Add(5*time.Minute), "u1").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO bargain_sessions").
		WithArgs(sqlmock.AnyArg(), "u1", "BARGAINBBBBBB", sqlmock.AnyArg(), sqlmock.AnyArg(), testNow.Add(5*time.Minute), testNow).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	issued, err := service.Issue(context.Background(), &models.IssueBargainCouponRequest{
		UserID:         "u1",
		CartValue:      dec("2500"),
		DiscountAmount: dec("180"),
	})
	if err != nil {
		t.Fatalf("issue failed: %v", err)
	}
	if issued.Code != "BARGAINBBBBBB" || !issued.Discount.Equal(dec("180")) {
		t.Fatalf("unexpected coupon %+v", issued)
	}
	if !issued.ExpiresAt.Equal(testNow.Add(5 * time.Minute)) {
		t.Fatalf("expected expiry 5m after issuance, got %v", issued.ExpiresAt)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestCouponService_Issue_SessionFailureRollsBack(t *testing.T) {
	db, mock := newMockDB(t)
	defer db.Close()
	service := newTestCouponService(db)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO coupons").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO bargain_sessions").WillReturnError(errors.New("disk full"))
	mock.ExpectRollback()

	_, err := service.Issue(context.Background(), &models.IssueBargainCouponRequest{
		UserID: "u1", CartValue: dec("2500"), DiscountAmount: dec("180"),
	})
	if err == nil {
		t.Fatalf("expected persistence error")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestCouponService_Issue_RequiresUser(t *testing.T) {
	db, _ := newMockDB(t)
	defer db.Close()
	service := newTestCouponService(db)

	_, err := service.Issue(context.Background(), &models.IssueBargainCouponRequest{DiscountAmount: dec("10")})
	if !apperror.Is(err, apperror.KindValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestGenerateCouponCode(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 200; i++ {
		code, err := GenerateCouponCode("BARGAIN")
		if err != nil {
			t.Fatalf("generate failed: %v", err)
		}
		if !strings.HasPrefix(code, "BARGAIN") || len(code) != len("BARGAIN")+6 {
			t.Fatalf("unexpected code shape %q", code)
		}
		for _, r := range strings.TrimPrefix(code, "BARGAIN") {
			if !strings.ContainsRune(couponCodeAlphabet, r) {
				t.Fatalf("unexpected rune %q in %s", r, code)
			}
		}
		seen[code] = true
	}
	if len(seen) < 195 {
		t.Fatalf("codes are not random enough: %d unique of 200", len(seen))
	}
}

func TestCouponService_MarkUsed_ConcurrentSingleUse(t *testing.T) {
	db, mock := newMockDB(t)
	defer db.Close()
	service := newTestCouponService(db)
	mock.MatchExpectationsInOrder(false)

	code := "BARGAINZZ9XY1"
	mock.ExpectBegin()
	mock.ExpectBegin()
	mock.ExpectQuery("UPDATE coupons").
		WithArgs(code, testNow, testNow).
		WillReturnRows(sqlmock.NewRows([]string{"is_bargain_generated"}).AddRow(true))
	mock.ExpectQuery("UPDATE coupons").
		WithArgs(code, testNow, testNow).
		WillReturnRows(sqlmock.NewRows([]string{"is_bargain_generated"}))
	mock.ExpectExec("UPDATE bargain_sessions SET used = TRUE").
		WithArgs(code).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()
	mock.ExpectRollback()

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = service.MarkUsed(context.Background(), code)
		}(i)
	}
	wg.Wait()

	succeeded, exhausted := 0, 0
	for _, err := range errs {
		switch {
		case err == nil:
			succeeded++
		case errors.Is(err, ErrCouponUsageExhausted) && apperror.Is(err, apperror.KindConflict):
			exhausted++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if succeeded != 1 || exhausted != 1 {
		t.Fatalf("expected exactly one redemption, got succeeded=%d exhausted=%d", succeeded, exhausted)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestCouponService_FindActiveBargainCoupon(t *testing.T) {
	db, mock := newMockDB(t)
	defer db.Close()
	service := newTestCouponService(db)

	expires := testNow.Add(3 * time.Minute)
	mock.ExpectQuery("SELECT c.code, c.discount_value, c.valid_until, b.cart_value").
		WithArgs("u1", testNow).
		WillReturnRows(sqlmock.NewRows([]string{"code", "discount_value", "valid_until", "cart_value"}).AddRow("BARGAINKEEP01", "180", expires, "2500.00"))

	issued, err := service.FindActiveBargainCoupon(context.Background(), "u1")
	if err != nil || issued == nil {
		t.Fatalf("expected active coupon, got %v err=%v", issued, err)
	}
	if !issued.Reused || issued.Code != "BARGAINKEEP01" || !issued.ExpiresAt.Equal(expires) || !issued.CartValue.Equal(dec("2500")) {
		t.Fatalf("unexpected coupon %+v", issued)
	}

	mock.ExpectQuery("SELECT c.code, c.discount_value, c.valid_until, b.cart_value").
		WithArgs("u2", testNow).
		WillReturnError(sql.ErrNoRows)
	issued, err = service.FindActiveBargainCoupon(context.Background(), "u2")
	if err != nil || issued != nil {
		t.Fatalf("expected no coupon, got %v err=%v", issued, err)
	}
}

func TestCouponService_AdminLifecycle(t *testing.T) {
	db, mock := newMockDB(t)
	defer db.Close()
	service := newTestCouponService(db)
	ctx := context.Background()

	maxUses := 100
	mock.ExpectExec("INSERT INTO coupons").WillReturnResult(sqlmock.NewResult(1, 1))
	created, err := service.CreateCoupon(ctx, &models.CreateCouponRequest{
		Code:          "spring10",
		DiscountType:  models.DiscountTypePercentage,
		DiscountValue: dec("10"),
		MaxUses:       &maxUses,
		IsActive:      true,
	})
	if err != nil || created.Code != "SPRING10" {
		t.Fatalf("create failed: %v", err)
	}

	mock.ExpectExec("UPDATE coupons").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery("SELECT code, discount_type").
		WithArgs("SPRING10").
		WillReturnRows(couponRows(couponFixture{code: "SPRING10", discountType: "percentage", value: "15", maxUses: 100, active: true}))
	updated, err := service.UpdateCoupon(ctx, "spring10", &models.UpdateCouponRequest{
		DiscountType:  models.DiscountTypePercentage,
		DiscountValue: dec("15"),
		MaxUses:       &maxUses,
		IsActive:      true,
	})
	if err != nil || !updated.DiscountValue.Equal(dec("15")) || updated.MaxUses == nil || *updated.MaxUses != 100 {
		t.Fatalf("update failed: %+v err=%v", updated, err)
	}

	mock.ExpectExec("UPDATE coupons SET is_active = FALSE").
		WithArgs(testNow, "SPRING10").
		WillReturnResult(sqlmock.NewResult(0, 1))
	if err := service.DeactivateCoupon(ctx, "SPRING10"); err != nil {
		t.Fatalf("deactivate failed: %v", err)
	}

	mock.ExpectQuery("SELECT code, discount_type").
		WithArgs(50, 0).
		WillReturnRows(couponRows(
			couponFixture{code: "A", discountType: "fixed", value: "5", active: true},
			couponFixture{code: "B", discountType: "percentage", value: "10", maxDiscount: "100", active: false},
		))
	list, err := service.ListCoupons(ctx, 0, 0)
	if err != nil || len(list) != 2 {
		t.Fatalf("list failed: %v len=%d", err, len(list))
	}
	if list[1].MaxDiscount == nil || !list[1].MaxDiscount.Equal(dec("100")) {
		t.Fatalf("expected nullable max_discount scanned")
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestCouponService_CreateCoupon_Duplicate(t *testing.T) {
	db, mock := newMockDB(t)
	defer db.Close()
	service := newTestCouponService(db)

	mock.ExpectExec("INSERT INTO coupons").WillReturnError(&pq.Error{Code: "23505"})
	_, err := service.CreateCoupon(context.Background(), &models.CreateCouponRequest{
		Code: "DUP", DiscountType: models.DiscountTypeFixed, DiscountValue: dec("50"), IsActive: true,
	})
	if !apperror.Is(err, apperror.KindConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
}

func TestCouponService_UpdateCoupon_BargainLocked(t *testing.T) {
	db, mock := newMockDB(t)
	defer db.Close()
	service := newTestCouponService(db)

	mock.ExpectExec("UPDATE coupons").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT code, discount_type").
		WithArgs("BARGAINLOCK01").
		WillReturnRows(couponRows(couponFixture{code: "BARGAINLOCK01", discountType: "fixed", value: "90", maxUses: 1, userID: "u", bargain: true, active: true}))

	_, err := service.UpdateCoupon(context.Background(), "BARGAINLOCK01", &models.UpdateCouponRequest{
		DiscountType: models.DiscountTypeFixed, DiscountValue: dec("500"), IsActive: true,
	})
	if !apperror.Is(err, apperror.KindConflict) {
		t.Fatalf("expected conflict for bargain coupon, got %v", err)
	}
}

func TestCouponService_DeactivateCoupon_NotFound(t *testing.T) {
	db, mock := newMockDB(t)
	defer db.Close()
	service := newTestCouponService(db)

	mock.ExpectExec("UPDATE coupons SET is_active = FALSE").WillReturnResult(sqlmock.NewResult(0, 0))
	if err := service.DeactivateCoupon(context.Background(), "MISS"); !apperror.Is(err, apperror.KindNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestValidateCouponPayload(t *testing.T) {
	cap := decimal.NewFromInt(100)
	if err := validateCouponPayload(models.DiscountTypeFixed, dec("-1"), nil, nil); err == nil {
		t.Fatalf("expected error for negative amount")
	}
	if err := validateCouponPayload(models.DiscountTypeFixed, dec("10"), &cap, nil); err == nil {
		t.Fatalf("expected error for cap on fixed coupon")
	}
	if err := validateCouponPayload("unknown", dec("10"), nil, nil); err == nil {
		t.Fatalf("expected error for invalid type")
	}
	if err := validateCouponPayload(models.DiscountTypePercentage, dec("150"), nil, nil); err == nil {
		t.Fatalf("expected error for >100 percent")
	}
	if err := validateCouponPayload(models.DiscountTypePercentage, dec("50"), &cap, nil); err != nil {
		t.Fatalf("expected valid percent, got %v", err)
	}
}
