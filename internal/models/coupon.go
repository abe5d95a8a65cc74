package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// DiscountType описывает тип купона.
type DiscountType string

const (
	DiscountTypeFixed      DiscountType = "fixed"
	DiscountTypePercentage DiscountType = "percentage"
)

// Coupon представляет купон в системе: промо-акцию или купон, выигранный в торге.
type Coupon struct {
	Code               string           `json:"code" db:"code"`
	DiscountType       DiscountType     `json:"discount_type" db:"discount_type"`
	DiscountValue      decimal.Decimal  `json:"discount_value" db:"discount_value"`
	MaxDiscount        *decimal.Decimal `json:"max_discount,omitempty" db:"max_discount"`
	MinOrderValue      *decimal.Decimal `json:"min_order_value,omitempty" db:"min_order_value"`
	ValidFrom          time.Time        `json:"valid_from" db:"valid_from"`
	ValidUntil         *time.Time       `json:"valid_until,omitempty" db:"valid_until"`
	MaxUses            *int             `json:"max_uses,omitempty" db:"max_uses"`
	UsedCount          int              `json:"used_count" db:"used_count"`
	ForNewUsersOnly    bool             `json:"for_new_users_only" db:"for_new_users_only"`
	UserID             *string          `json:"user_id,omitempty" db:"user_id"`
	IsBargainGenerated bool             `json:"is_bargain_generated" db:"is_bargain_generated"`
	IsActive           bool             `json:"is_active" db:"is_active"`
	CreatedAt          time.Time        `json:"created_at" db:"created_at"`
	UpdatedAt          time.Time        `json:"updated_at" db:"updated_at"`
}

// Rule возвращает правило скидки купона. Неизвестный тип даёт nil.
func (c *Coupon) Rule() DiscountRule {
	switch c.DiscountType {
	case DiscountTypeFixed:
		return FixedDiscount{Amount: c.DiscountValue}
	case DiscountTypePercentage:
		return PercentageDiscount{Percent: c.DiscountValue, Cap: c.MaxDiscount}
	default:
		return nil
	}
}

// Exhausted сообщает, исчерпан ли лимит использований.
func (c *Coupon) Exhausted() bool {
	return c.MaxUses != nil && c.UsedCount >= *c.MaxUses
}

// CouponErrorCode задаёт причину, по которой купон нельзя применить.
type CouponErrorCode string

const (
	CouponErrNotFound        CouponErrorCode = "not_found"
	CouponErrInactive        CouponErrorCode = "inactive"
	CouponErrExpired         CouponErrorCode = "expired"
	CouponErrUsageExhausted  CouponErrorCode = "usage_exhausted"
	CouponErrBelowMinimum    CouponErrorCode = "below_minimum"
	CouponErrNewUserOnly     CouponErrorCode = "not_eligible_new_user_only"
	CouponErrWrongUser       CouponErrorCode = "wrong_user"
	CouponErrNotYetValid     CouponErrorCode = "not_yet_valid"
	CouponErrUnsupportedType CouponErrorCode = "unsupported_type"
)

// CouponValidation хранит результат проверки купона. Бизнес-отказ не является ошибкой.
type CouponValidation struct {
	Valid    bool             `json:"valid"`
	Discount *decimal.Decimal `json:"discount,omitempty"`
	Error    CouponErrorCode  `json:"error,omitempty"`
	Coupon   *Coupon          `json:"-"`
}

// CouponRejected создаёт отрицательный результат проверки.
func CouponRejected(code CouponErrorCode) *CouponValidation {
	return &CouponValidation{Valid: false, Error: code}
}

// DiscountAmount возвращает скидку или ноль для невалидного купона.
func (v *CouponValidation) DiscountAmount() decimal.Decimal {
	if v == nil || !v.Valid || v.Discount == nil {
		return decimal.Zero
	}
	return *v.Discount
}

// CreateCouponRequest описывает запрос на создание промо-купона.
type CreateCouponRequest struct {
	Code            string           `json:"code" validate:"required,max=64"`
	DiscountType    DiscountType     `json:"discount_type" validate:"required,oneof=fixed percentage"`
	DiscountValue   decimal.Decimal  `json:"discount_value"`
	MaxDiscount     *decimal.Decimal `json:"max_discount,omitempty"`
	MinOrderValue   *decimal.Decimal `json:"min_order_value,omitempty"`
	ValidFrom       *time.Time       `json:"valid_from,omitempty"`
	ValidUntil      *time.Time       `json:"valid_until,omitempty"`
	MaxUses         *int             `json:"max_uses,omitempty" validate:"omitempty,gt=0"` // nil = безлимит
	ForNewUsersOnly bool             `json:"for_new_users_only"`
	UserID          *string          `json:"user_id,omitempty"`
	IsActive        bool             `json:"is_active"`
}

// UpdateCouponRequest описывает запрос на обновление купона.
type UpdateCouponRequest struct {
	DiscountType    DiscountType     `json:"discount_type" validate:"required,oneof=fixed percentage"`
	DiscountValue   decimal.Decimal  `json:"discount_value"`
	MaxDiscount     *decimal.Decimal `json:"max_discount,omitempty"`
	MinOrderValue   *decimal.Decimal `json:"min_order_value,omitempty"`
	ValidUntil      *time.Time       `json:"valid_until,omitempty"`
	MaxUses         *int             `json:"max_uses,omitempty" validate:"omitempty,gt=0"`
	ForNewUsersOnly bool             `json:"for_new_users_only"`
	IsActive        bool             `json:"is_active"`
}

// ValidateCouponRequest представляет тело запроса проверки купона с витрины.
type ValidateCouponRequest struct {
	Code       string          `json:"code" validate:"required"`
	OrderTotal decimal.Decimal `json:"order_total"`
}
