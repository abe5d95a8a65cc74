package services

import (
	"context"
	"time"

	"streetwear-store/internal/apperror"
	"streetwear-store/internal/config"
	"streetwear-store/internal/logger"
	"streetwear-store/internal/models"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// BargainCoupons объединяет операции с купонами, нужные торгу. Реализация: CouponService.
type BargainCoupons interface {
	CountPriorOrders(ctx context.Context, userID string) (int, error)
	FindActiveBargainCoupon(ctx context.Context, userID string) (*models.IssuedCoupon, error)
	Issue(ctx context.Context, req *models.IssueBargainCouponRequest) (*models.IssuedCoupon, error)
}

// NegotiationService ведёт один ход торга: границы скидки, предложение раунда и выдачу купона.
type NegotiationService struct {
	catalog        ProductCatalog
	coupons        BargainCoupons
	events         EventPublisher
	log            *logger.Logger
	catalogTimeout time.Duration
}

// NewNegotiationService создаёт сервис торга.
func NewNegotiationService(catalog ProductCatalog, coupons BargainCoupons, events EventPublisher, log *logger.Logger, cfg *config.BargainConfig) *NegotiationService {
	timeout := 2 * time.Second
	if cfg != nil && cfg.CatalogTimeout > 0 {
		timeout = cfg.CatalogTimeout
	}
	return &NegotiationService{
		catalog:        catalog,
		coupons:        coupons,
		events:         events,
		log:            log,
		catalogTimeout: timeout,
	}
}

// Negotiate обрабатывает ход пользователя. userID пустой для анонимов.
// Ошибка возвращается только для некорректного запроса; сбои каталога и выдачи купона деградируют ход.
func (s *NegotiationService) Negotiate(ctx context.Context, req *models.NegotiationRequest, userID string) (*models.NegotiationTurn, error) {
	if req.CartTotal == nil || !req.CartTotal.IsPositive() {
		return nil, apperror.Validation("cartTotal must be a positive number", nil)
	}
	if req.NegotiationRound < 0 {
		return nil, apperror.Validation("negotiationRound must be non-negative", nil)
	}

	log := s.log.WithFields(map[string]interface{}{
		"round":   req.NegotiationRound,
		"user_id": userID,
	})

	cartTotal, ceiling := s.priceCart(ctx, req.CartItems, *req.CartTotal)
	firstTime := s.isFirstTimeUser(ctx, userID)
	bound := ComputeMaxDiscount(cartTotal, firstTime, ceiling)

	turn := &models.NegotiationTurn{
		Round:          req.NegotiationRound,
		State:          models.StateHaggling,
		CartTotal:      cartTotal,
		FirstTimeUser:  firstTime,
		ProductCeiling: ceiling,
		Bound:          bound,
		OfferAmount:    ComputeOfferAmount(req.NegotiationRound, bound.MaxDiscount),
		Authenticated:  userID != "",
	}

	switch {
	case turn.Round == 0:
		turn.State = models.StateGreeting
	case turn.Round >= FinalRound && userID != "":
		s.finalize(ctx, turn, userID)
	}

	log.WithFields(map[string]interface{}{
		"state":        turn.State,
		"cart_total":   turn.CartTotal.String(),
		"max_discount": bound.MaxDiscount.String(),
		"bound_type":   bound.Type,
		"offer":        turn.OfferAmount.String(),
	}).Info("Negotiation turn processed")

	return turn, nil
}

// finalize выдаёт купон финального раунда. Уже выданный купон возвращается только для той же корзины
// и если его скидка не выше предложения этого хода; иначе выпускается новый.
// При сбое выдачи ход остаётся в haggling без купона.
func (s *NegotiationService) finalize(ctx context.Context, turn *models.NegotiationTurn, userID string) {
	log := s.log.WithField("user_id", userID)

	existing, err := s.coupons.FindActiveBargainCoupon(ctx, userID)
	if err != nil {
		log.WithError(err).Warn("Failed to look up active bargain coupon")
	}
	if existing != nil {
		if reusable(existing, turn) {
			turn.Coupon = existing
			turn.OfferAmount = existing.Discount
			turn.State = models.StateTerminated
			return
		}
		log.WithFields(map[string]interface{}{
			"coupon_code":   existing.Code,
			"coupon_cart":   existing.CartValue.String(),
			"current_cart":  turn.CartTotal.String(),
			"coupon_amount": existing.Discount.String(),
		}).Info("Active bargain coupon does not fit this cart, issuing a new one")
	}

	if !turn.OfferAmount.IsPositive() {
		log.Warn("Final offer is zero, no coupon issued")
		return
	}

	issued, err := s.coupons.Issue(ctx, &models.IssueBargainCouponRequest{
		UserID:         userID,
		CartValue:      turn.CartTotal,
		DiscountAmount: turn.OfferAmount,
	})
	if err != nil {
		log.WithError(err).Warn("Failed to persist bargain coupon, continuing without code")
		return
	}

	turn.Coupon = issued
	turn.State = models.StateFinal

	publishEvent(s.log, s.events, models.EventTypeCouponIssued, func(p EventPublisher) error {
		return p.PublishCouponIssued(userID, turn.CartTotal, issued)
	})
}

func reusable(existing *models.IssuedCoupon, turn *models.NegotiationTurn) bool {
	return existing.CartValue.Equal(turn.CartTotal) &&
		existing.Discount.IsPositive() &&
		existing.Discount.LessThanOrEqual(turn.OfferAmount)
}

// priceCart пересчитывает корзину по каталогу и считает сумму потолков скидки по товарам.
// Если каталог недоступен, используется сумма клиента и потолок 0.
func (s *NegotiationService) priceCart(ctx context.Context, items []models.CartItem, clientTotal decimal.Decimal) (decimal.Decimal, decimal.Decimal) {
	if len(items) == 0 || s.catalog == nil {
		return clientTotal, decimal.Zero
	}

	ids := make([]uuid.UUID, 0, len(items))
	for _, item := range items {
		if id, err := uuid.Parse(item.ProductID); err == nil {
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		return clientTotal, decimal.Zero
	}

	lookupCtx, cancel := context.WithTimeout(ctx, s.catalogTimeout)
	defer cancel()

	products, err := s.catalog.GetProductsByIDs(lookupCtx, ids)
	if err != nil {
		s.log.WithError(err).Warn("Catalog unavailable, using cart-based discount rules only")
		return clientTotal, decimal.Zero
	}

	repriced := decimal.Zero
	ceiling := decimal.Zero
	complete := true
	for _, item := range items {
		id, err := uuid.Parse(item.ProductID)
		if err != nil || item.Quantity <= 0 {
			complete = false
			continue
		}
		product, ok := products[id]
		if !ok || !product.IsActive {
			complete = false
			continue
		}
		qty := decimal.NewFromInt(int64(item.Quantity))
		repriced = repriced.Add(product.SellingPrice.Mul(qty))
		ceiling = ceiling.Add(product.MaxBargainDiscount.Mul(qty))
	}

	if !complete || !repriced.IsPositive() {
		s.log.WithField("items", len(items)).Warn("Cart contains unknown products, keeping client cart total")
		return clientTotal, ceiling
	}
	return repriced, ceiling
}

func (s *NegotiationService) isFirstTimeUser(ctx context.Context, userID string) bool {
	if userID == "" {
		return false
	}
	count, err := s.coupons.CountPriorOrders(ctx, userID)
	if err != nil {
		s.log.WithError(err).WithField("user_id", userID).Warn("Failed to load order history, treating as returning customer")
		return false
	}
	return count == 0
}
