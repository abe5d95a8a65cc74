package services

import (
	"context"
	"crypto/rand"
	"database/sql"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"streetwear-store/internal/apperror"
	"streetwear-store/internal/config"
	"streetwear-store/internal/database"
	"streetwear-store/internal/logger"
	"streetwear-store/internal/models"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
)

// ErrCouponUsageExhausted означает, что купон уже погашен максимальное число раз
var ErrCouponUsageExhausted = errors.New("coupon usage exhausted")

const (
	couponCodeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	couponCodeLength   = 6
	maxIssueAttempts   = 5
	uniqueViolation    = "23505"
)

const couponColumns = `code, discount_type, discount_value, max_discount, min_order_value, valid_from, valid_until,
		max_uses, used_count, for_new_users_only, user_id, is_bargain_generated, is_active, created_at, updated_at`

// CouponService управляет жизненным циклом купонов: выдача, проверка, погашение.
type CouponService struct {
	db      *database.DB
	log     *logger.Logger
	ttl     time.Duration
	prefix  string
	newCode func(prefix string) (string, error)
	now     func() time.Time
}

// NewCouponService создаёт сервис купонов.
func NewCouponService(db *database.DB, log *logger.Logger, cfg *config.BargainConfig) *CouponService {
	ttl := 5 * time.Minute
	prefix := "BARGAIN"
	if cfg != nil {
		if cfg.CouponTTL > 0 {
			ttl = cfg.CouponTTL
		}
		if cfg.CodePrefix != "" {
			prefix = cfg.CodePrefix
		}
	}
	return &CouponService{
		db:      db,
		log:     log,
		ttl:     ttl,
		prefix:  prefix,
		newCode: GenerateCouponCode,
		now:     time.Now,
	}
}

// GenerateCouponCode возвращает префикс и 6 случайных символов [A-Z0-9].
func GenerateCouponCode(prefix string) (string, error) {
	var sb strings.Builder
	sb.WriteString(prefix)
	max := big.NewInt(int64(len(couponCodeAlphabet)))
	for i := 0; i < couponCodeLength; i++ {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", fmt.Errorf("failed to generate coupon code: %w", err)
		}
		sb.WriteByte(couponCodeAlphabet[n.Int64()])
	}
	return sb.String(), nil
}

// NormalizeCouponCode приводит код к каноническому виду.
func NormalizeCouponCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// Issue атомарно создаёт купон торга и запись bargain_sessions.
// При коллизии кода генерирует новый.
func (s *CouponService) Issue(ctx context.Context, req *models.IssueBargainCouponRequest) (*models.IssuedCoupon, error) {
	if req.UserID == "" {
		return nil, apperror.Validation("bargain coupons require an authenticated user", nil)
	}
	if !req.DiscountAmount.IsPositive() {
		return nil, apperror.Validation("bargain discount must be positive", nil)
	}

	for attempt := 1; attempt <= maxIssueAttempts; attempt++ {
		code, err := s.newCode(s.prefix)
		if err != nil {
			return nil, err
		}

		issued, err := s.insertBargainCoupon(ctx, code, req)
		if err == nil {
			s.log.WithFields(map[string]interface{}{
				"coupon_code": issued.Code,
				"user_id":     req.UserID,
				"discount":    issued.Discount.String(),
			}).Info("Bargain coupon issued")
			return issued, nil
		}

		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			s.log.WithField("attempt", attempt).Warn("Coupon code collision, regenerating")
			continue
		}
		return nil, err
	}

	return nil, fmt.Errorf("failed to issue coupon after %d attempts", maxIssueAttempts)
}

func (s *CouponService) insertBargainCoupon(ctx context.Context, code string, req *models.IssueBargainCouponRequest) (*models.IssuedCoupon, error) {
	now := s.now()
	expiresAt := now.Add(s.ttl)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	couponQuery := `
		INSERT INTO coupons (code, discount_type, discount_value, max_discount, min_order_value, valid_from, valid_until,
			max_uses, used_count, for_new_users_only, user_id, is_bargain_generated, is_active, created_at, updated_at)
		VALUES ($1, $2, $3, NULL, $4, $5, $6, 1, 0, FALSE, $7, TRUE, TRUE, $5, $5)
	`
	if _, err := tx.ExecContext(ctx, couponQuery, code, models.DiscountTypeFixed, req.DiscountAmount,
		req.CartValue, now, expiresAt, req.UserID); err != nil {
		return nil, fmt.Errorf("failed to insert coupon: %w", err)
	}

	sessionQuery := `
		INSERT INTO bargain_sessions (id, user_id, coupon_code, cart_value, discount_amount, used, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5, FALSE, $6, $7)
	`
	if _, err := tx.ExecContext(ctx, sessionQuery, uuid.New(), req.UserID, code, req.CartValue,
		req.DiscountAmount, expiresAt, now); err != nil {
		return nil, fmt.Errorf("failed to insert bargain session: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	return &models.IssuedCoupon{Code: code, Discount: req.DiscountAmount, ExpiresAt: expiresAt, CartValue: req.CartValue}, nil
}

// FindActiveBargainCoupon ищет непогашенный и непросроченный купон торга пользователя
// вместе со стоимостью корзины, под которую он выдан.
func (s *CouponService) FindActiveBargainCoupon(ctx context.Context, userID string) (*models.IssuedCoupon, error) {
	query := `
		SELECT c.code, c.discount_value, c.valid_until, b.cart_value
		FROM coupons c
		JOIN bargain_sessions b ON b.coupon_code = c.code
		WHERE c.user_id = $1 AND c.is_bargain_generated AND c.is_active
		  AND c.used_count < c.max_uses AND c.valid_until > $2 AND NOT b.used
		ORDER BY c.created_at DESC
		LIMIT 1
	`

	issued := &models.IssuedCoupon{Reused: true}
	err := s.db.QueryRowContext(ctx, query, userID, s.now()).Scan(&issued.Code, &issued.Discount, &issued.ExpiresAt, &issued.CartValue)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find active bargain coupon: %w", err)
	}
	return issued, nil
}

// CountPriorOrders возвращает число неотменённых заказов пользователя.
func (s *CouponService) CountPriorOrders(ctx context.Context, userID string) (int, error) {
	var count int
	query := `SELECT COUNT(*) FROM orders WHERE user_id = $1 AND status <> $2`
	if err := s.db.QueryRowContext(ctx, query, userID, models.OrderStatusCancelled).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count user orders: %w", err)
	}
	return count, nil
}

// Validate проверяет купон для суммы заказа и пользователя.
// Нарушение бизнес-правил возвращается как результат, ошибка возвращается только при сбое хранилища.
func (s *CouponService) Validate(ctx context.Context, code string, orderTotal decimal.Decimal, userID string) (*models.CouponValidation, error) {
	return s.ValidateAt(ctx, code, orderTotal, userID, time.Time{})
}

// ValidateAt проверяет купон на момент at; нулевой at означает текущее время.
// Оплата через шлюз проверяет купон на момент создания заказа в шлюзе.
func (s *CouponService) ValidateAt(ctx context.Context, code string, orderTotal decimal.Decimal, userID string, at time.Time) (*models.CouponValidation, error) {
	coupon, err := s.GetCoupon(ctx, code)
	if err != nil {
		if apperror.Is(err, apperror.KindNotFound) {
			return models.CouponRejected(models.CouponErrNotFound), nil
		}
		return nil, err
	}

	now := at
	if now.IsZero() {
		now = s.now()
	}
	switch {
	case !coupon.IsActive:
		return models.CouponRejected(models.CouponErrInactive), nil
	case coupon.ValidUntil != nil && !now.Before(*coupon.ValidUntil):
		return models.CouponRejected(models.CouponErrExpired), nil
	case coupon.ValidFrom.After(now):
		return models.CouponRejected(models.CouponErrNotYetValid), nil
	case coupon.Exhausted():
		return models.CouponRejected(models.CouponErrUsageExhausted), nil
	case coupon.MinOrderValue != nil && orderTotal.LessThan(*coupon.MinOrderValue):
		return models.CouponRejected(models.CouponErrBelowMinimum), nil
	}

	if coupon.ForNewUsersOnly {
		if userID == "" {
			return models.CouponRejected(models.CouponErrNewUserOnly), nil
		}
		prior, err := s.CountPriorOrders(ctx, userID)
		if err != nil {
			return nil, err
		}
		if prior > 0 {
			return models.CouponRejected(models.CouponErrNewUserOnly), nil
		}
	}

	if coupon.UserID != nil && *coupon.UserID != userID {
		return models.CouponRejected(models.CouponErrWrongUser), nil
	}

	rule := coupon.Rule()
	if rule == nil {
		return models.CouponRejected(models.CouponErrUnsupportedType), nil
	}

	discount := rule.Apply(orderTotal)
	return &models.CouponValidation{Valid: true, Discount: &discount, Coupon: coupon}, nil
}

// MarkUsedWithTx погашает купон условным UPDATE внутри транзакции заказа.
// Срок действия сверяется с validAt (нулевой означает текущее время).
// Если лимит уже выбран, возвращает Conflict с ErrCouponUsageExhausted.
func (s *CouponService) MarkUsedWithTx(ctx context.Context, tx *sql.Tx, code string, validAt time.Time) error {
	query := `
		UPDATE coupons
		SET used_count = used_count + 1, updated_at = $2
		WHERE code = $1 AND is_active
		  AND (max_uses IS NULL OR used_count < max_uses)
		  AND (valid_until IS NULL OR valid_until > $3)
		RETURNING is_bargain_generated
	`

	now := s.now()
	if validAt.IsZero() {
		validAt = now
	}

	var bargain bool
	if err := tx.QueryRowContext(ctx, query, code, now, validAt).Scan(&bargain); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return apperror.Conflict("coupon can no longer be redeemed", ErrCouponUsageExhausted)
		}
		return fmt.Errorf("failed to mark coupon used: %w", err)
	}

	if bargain {
		if _, err := tx.ExecContext(ctx, `UPDATE bargain_sessions SET used = TRUE WHERE coupon_code = $1`, code); err != nil {
			return fmt.Errorf("failed to mark bargain session used: %w", err)
		}
	}
	return nil
}

// MarkUsed погашает купон в отдельной транзакции.
func (s *CouponService) MarkUsed(ctx context.Context, code string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := s.MarkUsedWithTx(ctx, tx, code, time.Time{}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// CreateCoupon создаёт промо-купон из админки.
func (s *CouponService) CreateCoupon(ctx context.Context, req *models.CreateCouponRequest) (*models.Coupon, error) {
	if err := validateCouponPayload(req.DiscountType, req.DiscountValue, req.MaxDiscount, req.MinOrderValue); err != nil {
		return nil, apperror.Validation(err.Error(), err)
	}

	now := s.now()
	coupon := &models.Coupon{
		Code:            NormalizeCouponCode(req.Code),
		DiscountType:    req.DiscountType,
		DiscountValue:   req.DiscountValue,
		MaxDiscount:     req.MaxDiscount,
		MinOrderValue:   req.MinOrderValue,
		ValidFrom:       now,
		ValidUntil:      req.ValidUntil,
		MaxUses:         req.MaxUses,
		ForNewUsersOnly: req.ForNewUsersOnly,
		UserID:          req.UserID,
		IsActive:        req.IsActive,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if req.ValidFrom != nil {
		coupon.ValidFrom = *req.ValidFrom
	}
	if coupon.ValidUntil != nil && !coupon.ValidUntil.After(coupon.ValidFrom) {
		return nil, apperror.Validation("valid_until must be after valid_from", nil)
	}

	query := `
		INSERT INTO coupons (code, discount_type, discount_value, max_discount, min_order_value, valid_from, valid_until,
			max_uses, used_count, for_new_users_only, user_id, is_bargain_generated, is_active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, 0, $9, $10, FALSE, $11, $12, $13)
	`
	_, err := s.db.ExecContext(ctx, query, coupon.Code, coupon.DiscountType, coupon.DiscountValue, coupon.MaxDiscount,
		coupon.MinOrderValue, coupon.ValidFrom, coupon.ValidUntil, coupon.MaxUses, coupon.ForNewUsersOnly, coupon.UserID,
		coupon.IsActive, coupon.CreatedAt, coupon.UpdatedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return nil, apperror.Conflict("coupon already exists", err)
		}
		return nil, fmt.Errorf("failed to create coupon: %w", err)
	}

	s.log.WithField("coupon_code", coupon.Code).Info("Coupon created")
	return coupon, nil
}

// UpdateCoupon обновляет параметры купона. Купоны торга не редактируются.
func (s *CouponService) UpdateCoupon(ctx context.Context, code string, req *models.UpdateCouponRequest) (*models.Coupon, error) {
	if err := validateCouponPayload(req.DiscountType, req.DiscountValue, req.MaxDiscount, req.MinOrderValue); err != nil {
		return nil, apperror.Validation(err.Error(), err)
	}
	code = NormalizeCouponCode(code)

	query := `
		UPDATE coupons
		SET discount_type = $1, discount_value = $2, max_discount = $3, min_order_value = $4, valid_until = $5,
			max_uses = $6, for_new_users_only = $7, is_active = $8, updated_at = $9
		WHERE code = $10 AND NOT is_bargain_generated AND ($6::INT IS NULL OR used_count <= $6::INT)
	`
	result, err := s.db.ExecContext(ctx, query, req.DiscountType, req.DiscountValue, req.MaxDiscount, req.MinOrderValue,
		req.ValidUntil, req.MaxUses, req.ForNewUsersOnly, req.IsActive, s.now(), code)
	if err != nil {
		return nil, fmt.Errorf("failed to update coupon: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		existing, getErr := s.GetCoupon(ctx, code)
		if getErr != nil {
			return nil, getErr
		}
		if existing.IsBargainGenerated {
			return nil, apperror.Conflict("bargain coupons cannot be edited", nil)
		}
		return nil, apperror.Conflict("max_uses is below current usage", nil)
	}

	return s.GetCoupon(ctx, code)
}

// DeactivateCoupon выключает купон. Купоны не удаляются.
func (s *CouponService) DeactivateCoupon(ctx context.Context, code string) error {
	result, err := s.db.ExecContext(ctx, "UPDATE coupons SET is_active = FALSE, updated_at = $1 WHERE code = $2",
		s.now(), NormalizeCouponCode(code))
	if err != nil {
		return fmt.Errorf("failed to deactivate coupon: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return apperror.NotFound("coupon not found", nil)
	}

	s.log.WithField("coupon_code", code).Info("Coupon deactivated")
	return nil
}

// GetCoupon возвращает купон по коду.
func (s *CouponService) GetCoupon(ctx context.Context, code string) (*models.Coupon, error) {
	query := `SELECT ` + couponColumns + ` FROM coupons WHERE code = $1`

	coupon, err := scanCoupon(s.db.QueryRowContext(ctx, query, NormalizeCouponCode(code)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("coupon not found", err)
		}
		return nil, fmt.Errorf("failed to get coupon: %w", err)
	}
	return coupon, nil
}

// ListCoupons возвращает купоны, новые первыми.
func (s *CouponService) ListCoupons(ctx context.Context, limit, offset int) ([]*models.Coupon, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	query := `SELECT ` + couponColumns + ` FROM coupons ORDER BY created_at DESC LIMIT $1 OFFSET $2`

	rows, err := s.db.QueryContext(ctx, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list coupons: %w", err)
	}
	defer rows.Close()

	var coupons []*models.Coupon
	for rows.Next() {
		c, err := scanCoupon(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan coupon: %w", err)
		}
		coupons = append(coupons, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate coupons: %w", err)
	}
	return coupons, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanCoupon(row rowScanner) (*models.Coupon, error) {
	var (
		c             models.Coupon
		maxDiscount   decimal.NullDecimal
		minOrderValue decimal.NullDecimal
		validUntil    sql.NullTime
		maxUses       sql.NullInt64
		userID        sql.NullString
	)
	if err := row.Scan(&c.Code, &c.DiscountType, &c.DiscountValue, &maxDiscount, &minOrderValue, &c.ValidFrom,
		&validUntil, &maxUses, &c.UsedCount, &c.ForNewUsersOnly, &userID, &c.IsBargainGenerated, &c.IsActive,
		&c.CreatedAt, &c.UpdatedAt); err != nil {
		return nil, err
	}

	if maxDiscount.Valid {
		c.MaxDiscount = &maxDiscount.Decimal
	}
	if minOrderValue.Valid {
		c.MinOrderValue = &minOrderValue.Decimal
	}
	if validUntil.Valid {
		c.ValidUntil = &validUntil.Time
	}
	if maxUses.Valid {
		n := int(maxUses.Int64)
		c.MaxUses = &n
	}
	if userID.Valid {
		c.UserID = &userID.String
	}
	return &c, nil
}

func validateCouponPayload(discountType models.DiscountType, value decimal.Decimal, maxDiscount, minOrderValue *decimal.Decimal) error {
	switch discountType {
	case models.DiscountTypeFixed:
		if !value.IsPositive() {
			return fmt.Errorf("discount_value must be positive for fixed discount")
		}
		if maxDiscount != nil {
			return fmt.Errorf("max_discount applies only to percentage coupons")
		}
	case models.DiscountTypePercentage:
		if !value.IsPositive() || value.GreaterThan(decimal.NewFromInt(100)) {
			return fmt.Errorf("percentage must be between 0 and 100")
		}
		if maxDiscount != nil && !maxDiscount.IsPositive() {
			return fmt.Errorf("max_discount must be positive")
		}
	default:
		return fmt.Errorf("invalid discount_type")
	}
	if minOrderValue != nil && minOrderValue.IsNegative() {
		return fmt.Errorf("min_order_value must be non-negative")
	}
	return nil
}
