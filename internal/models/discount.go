package models

import "github.com/shopspring/decimal"

var hundred = decimal.NewFromInt(100)

// DiscountRule описывает вариант скидки купона: фиксированная сумма или процент с потолком.
type DiscountRule interface {
	Type() DiscountType
	// Apply считает скидку для суммы заказа; результат в пределах [0, orderTotal].
	Apply(orderTotal decimal.Decimal) decimal.Decimal
}

// FixedDiscount представляет фиксированную скидку.
type FixedDiscount struct {
	Amount decimal.Decimal
}

func (FixedDiscount) Type() DiscountType { return DiscountTypeFixed }

func (d FixedDiscount) Apply(orderTotal decimal.Decimal) decimal.Decimal {
	if d.Amount.IsNegative() || !orderTotal.IsPositive() {
		return decimal.Zero
	}
	return decimal.Min(d.Amount, orderTotal).Round(2)
}

// PercentageDiscount представляет процентную скидку с необязательным потолком.
type PercentageDiscount struct {
	Percent decimal.Decimal
	Cap     *decimal.Decimal
}

func (PercentageDiscount) Type() DiscountType { return DiscountTypePercentage }

func (d PercentageDiscount) Apply(orderTotal decimal.Decimal) decimal.Decimal {
	if !d.Percent.IsPositive() || !orderTotal.IsPositive() {
		return decimal.Zero
	}
	percent := decimal.Min(d.Percent, hundred)
	discount := orderTotal.Mul(percent).Div(hundred)
	if d.Cap != nil && !d.Cap.IsNegative() {
		discount = decimal.Min(discount, *d.Cap)
	}
	return decimal.Min(discount, orderTotal).Round(2)
}
