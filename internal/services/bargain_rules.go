package services

import (
	"streetwear-store/internal/models"

	"github.com/shopspring/decimal"
)

var (
	firstTimePremiumThreshold = decimal.NewFromInt(2000)
	firstTimePremiumRate      = decimal.RequireFromString("0.10")
	firstTimePremiumCap       = decimal.NewFromInt(200)

	lowValueThreshold = decimal.NewFromInt(1000)
	lowValueBound     = decimal.NewFromInt(70)

	standardBaseRate  = decimal.RequireFromString("0.05")
	standardRateStep  = decimal.RequireFromString("0.03")
	standardRateScale = decimal.NewFromInt(10000)
	standardMaxRate   = decimal.RequireFromString("0.08")
	standardCap       = decimal.NewFromInt(150)

	openingOfferRate = decimal.RequireFromString("0.35")
	middleOfferRate  = decimal.RequireFromString("0.55")
	finalOfferRate   = decimal.RequireFromString("0.90")
)

// FinalRound задаёт раунд, начиная с которого звучит финальное предложение
const FinalRound = 3

// ComputeMaxDiscount возвращает максимальную скидку для корзины.
// cartTotal должен быть положительным, проверка на стороне вызывающего.
// productCeiling задаёт сумму потолков по товарам; ноль означает «без ограничения».
func ComputeMaxDiscount(cartTotal decimal.Decimal, isFirstTimeUser bool, productCeiling decimal.Decimal) models.DiscountBound {
	var bound models.DiscountBound

	switch {
	case isFirstTimeUser && cartTotal.GreaterThanOrEqual(firstTimePremiumThreshold):
		bound = models.DiscountBound{
			MaxDiscount: decimal.Min(cartTotal.Mul(firstTimePremiumRate), firstTimePremiumCap),
			Type:        models.BoundFirstTimePremium,
		}
	case cartTotal.LessThan(lowValueThreshold):
		bound = models.DiscountBound{MaxDiscount: lowValueBound, Type: models.BoundLowValue}
	default:
		rate := standardBaseRate.Add(cartTotal.Div(standardRateScale).Mul(standardRateStep))
		rate = decimal.Min(standardMaxRate, rate)
		bound = models.DiscountBound{
			MaxDiscount: decimal.Min(cartTotal.Mul(rate), standardCap),
			Type:        models.BoundStandard,
		}
	}

	if productCeiling.IsPositive() {
		bound.MaxDiscount = decimal.Min(bound.MaxDiscount, productCeiling)
	}
	return bound
}

// ComputeOfferAmount возвращает сумму, которую предлагаем в этом раунде, с округлением вниз до целых
func ComputeOfferAmount(round int, maxDiscount decimal.Decimal) decimal.Decimal {
	if !maxDiscount.IsPositive() {
		return decimal.Zero
	}

	rate := openingOfferRate
	switch {
	case round >= FinalRound:
		rate = finalOfferRate
	case round == 2:
		rate = middleOfferRate
	}
	return maxDiscount.Mul(rate).Floor()
}
