package services

import (
	"context"
	"fmt"
	"time"

	"streetwear-store/internal/apperror"
	"streetwear-store/internal/config"
	"streetwear-store/internal/logger"
	"streetwear-store/internal/models"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ProductCatalog отдаёт актуальные цены товаров. Реализация: CatalogService.
type ProductCatalog interface {
	GetProductsByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*models.Product, error)
}

// CouponValidator проверяет купон. Реализация: CouponService.
type CouponValidator interface {
	ValidateAt(ctx context.Context, code string, orderTotal decimal.Decimal, userID string, at time.Time) (*models.CouponValidation, error)
}

// ReconcileRequest содержит вход расчёта суммы заказа. Клиентские цены сюда не попадают.
type ReconcileRequest struct {
	Items         []models.OrderLineRequest
	CouponCode    *string
	UserID        string
	PaymentMethod models.PaymentMethod
	CouponAt      time.Time // момент, на который проверяется купон; нулевой означает сейчас
}

// CheckoutService пересчитывает суммы заказа по каталогу и купону.
type CheckoutService struct {
	catalog               ProductCatalog
	coupons               CouponValidator
	log                   *logger.Logger
	freeShippingThreshold decimal.Decimal
	shippingFee           decimal.Decimal
	codFee                decimal.Decimal
	tolerance             decimal.Decimal
}

// NewCheckoutService создаёт сервис расчёта с тарифами из конфигурации.
func NewCheckoutService(catalog ProductCatalog, coupons CouponValidator, log *logger.Logger, cfg *config.CheckoutConfig) *CheckoutService {
	return &CheckoutService{
		catalog:               catalog,
		coupons:               coupons,
		log:                   log,
		freeShippingThreshold: decimal.NewFromFloat(cfg.FreeShippingThreshold),
		shippingFee:           decimal.NewFromFloat(cfg.ShippingFee),
		codFee:                decimal.NewFromFloat(cfg.CODFee),
		tolerance:             decimal.NewFromFloat(cfg.AmountTolerance),
	}
}

// Reconcile считает subtotal, доставку, скидку, сбор за наложенный платёж и итог.
func (s *CheckoutService) Reconcile(ctx context.Context, req *ReconcileRequest) (*models.OrderTotals, error) {
	if len(req.Items) == 0 {
		return nil, apperror.Validation("order has no items", nil)
	}
	if req.PaymentMethod != models.PaymentMethodCOD && req.PaymentMethod != models.PaymentMethodOnline {
		return nil, apperror.Validation("unsupported payment method", nil)
	}

	ids := make([]uuid.UUID, 0, len(req.Items))
	for _, item := range req.Items {
		if item.ProductID == uuid.Nil {
			return nil, apperror.Validation("product_id is required", nil)
		}
		if item.Quantity <= 0 {
			return nil, apperror.Validation(fmt.Sprintf("invalid quantity for product %s", item.ProductID), nil)
		}
		ids = append(ids, item.ProductID)
	}

	products, err := s.catalog.GetProductsByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to load products: %w", err)
	}

	totals := &models.OrderTotals{}
	for _, item := range req.Items {
		product, ok := products[item.ProductID]
		if !ok || !product.IsActive {
			return nil, apperror.Validation(fmt.Sprintf("product %s not found", item.ProductID), nil)
		}

		lineTotal := product.SellingPrice.Mul(decimal.NewFromInt(int64(item.Quantity)))
		totals.Lines = append(totals.Lines, models.OrderItem{
			ProductID:  product.ID,
			Name:       product.Name,
			Quantity:   item.Quantity,
			UnitPrice:  product.SellingPrice,
			TotalPrice: lineTotal,
		})
		totals.Subtotal = totals.Subtotal.Add(lineTotal)
	}

	if totals.Subtotal.LessThan(s.freeShippingThreshold) {
		totals.Shipping = s.shippingFee
	}
	if req.PaymentMethod == models.PaymentMethodCOD {
		totals.CODFee = s.codFee
	}

	if req.CouponCode != nil {
		if code := NormalizeCouponCode(*req.CouponCode); code != "" {
			validation, err := s.coupons.ValidateAt(ctx, code, totals.Subtotal, req.UserID, req.CouponAt)
			if err != nil {
				return nil, err
			}
			totals.Coupon = validation
			if validation.Valid {
				totals.Discount = validation.DiscountAmount()
				totals.CouponCode = &code
			} else {
				s.log.WithFields(map[string]interface{}{
					"coupon_code": code,
					"reason":      validation.Error,
				}).Info("Coupon rejected during checkout")
			}
		}
	}

	totals.Total = totals.Subtotal.Add(totals.Shipping).Add(totals.CODFee).Sub(totals.Discount)
	if !totals.Total.IsPositive() {
		return nil, apperror.Validation("order total must be positive", nil)
	}

	return totals, nil
}

// VerifyCapturedAmount сверяет сумму, списанную шлюзом, с рассчитанной.
func (s *CheckoutService) VerifyCapturedAmount(total, captured decimal.Decimal) error {
	if captured.Sub(total).Abs().GreaterThan(s.tolerance) {
		return apperror.Integrity(
			fmt.Sprintf("captured amount %s does not match order total %s", captured.StringFixed(2), total.StringFixed(2)), nil)
	}
	return nil
}

// ToMinorUnits переводит сумму в пайсы для платёжного шлюза.
func ToMinorUnits(amount decimal.Decimal) int64 {
	return amount.Mul(decimal.NewFromInt(100)).Round(0).IntPart()
}

// FromMinorUnits переводит пайсы обратно в рупии.
func FromMinorUnits(amount int64) decimal.Decimal {
	return decimal.New(amount, -2)
}
