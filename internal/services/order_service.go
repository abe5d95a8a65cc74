package services

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"streetwear-store/internal/apperror"
	"streetwear-store/internal/database"
	"streetwear-store/internal/logger"
	"streetwear-store/internal/models"
	"streetwear-store/internal/payment"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/oklog/ulid/v2"
)

const orderColumns = `id, order_number, user_id, shipping_address, subtotal, shipping_cost, discount, cod_fee, total,
	coupon_code, payment_method, payment_status, gateway_order_id, gateway_payment_id, status, created_at, updated_at`

// PaymentGateway объединяет операции платёжного шлюза. Реализация: payment.Client.
type PaymentGateway interface {
	CreateOrder(ctx context.Context, amount int64, receipt string, notes map[string]string) (*payment.Order, error)
	FetchPayment(ctx context.Context, paymentID string) (*payment.Payment, error)
	FetchOrder(ctx context.Context, orderID string) (*payment.Order, error)
	VerifySignature(orderID, paymentID, signature string) bool
	KeyID() string
	Currency() string
}

// CouponRedeemer погашает купон внутри транзакции заказа. Реализация: CouponService.
type CouponRedeemer interface {
	MarkUsedWithTx(ctx context.Context, tx *sql.Tx, code string, validAt time.Time) error
}

// OrderService представляет сервис для работы с заказами
type OrderService struct {
	db       *database.DB
	log      *logger.Logger
	checkout *CheckoutService
	coupons  CouponRedeemer
	gateway  PaymentGateway
	events   EventPublisher
	now      func() time.Time
}

// NewOrderService создает новый экземпляр сервиса заказов
func NewOrderService(db *database.DB, log *logger.Logger, checkout *CheckoutService, coupons CouponRedeemer, gateway PaymentGateway, events EventPublisher) *OrderService {
	return &OrderService{
		db:       db,
		log:      log,
		checkout: checkout,
		coupons:  coupons,
		gateway:  gateway,
		events:   events,
		now:      time.Now,
	}
}

// CreateCODOrder создаёт заказ с оплатой при получении. Суммы клиента игнорируются.
func (s *OrderService) CreateCODOrder(ctx context.Context, req *models.CreateOrderRequest, userID string) (*models.Order, error) {
	if req.PaymentMethod != models.PaymentMethodCOD {
		return nil, apperror.Validation("payment method mismatch: expected cod", nil)
	}

	totals, err := s.checkout.Reconcile(ctx, &ReconcileRequest{
		Items:         req.Items,
		CouponCode:    req.CouponCode,
		UserID:        userID,
		PaymentMethod: models.PaymentMethodCOD,
	})
	if err != nil {
		return nil, err
	}

	if req.ClientTotal != nil && !req.ClientTotal.Equal(totals.Total) {
		s.log.WithFields(map[string]interface{}{
			"client_total": req.ClientTotal.String(),
			"server_total": totals.Total.String(),
		}).Info("Client total differs from reconciled total, using server figures")
	}

	order := s.newOrder(totals, req.ShippingAddress, userID, models.PaymentMethodCOD)
	order.Status = models.OrderStatusPending
	order.PaymentStatus = models.PaymentStatusPending

	if err := s.persistOrder(ctx, order, time.Time{}); err != nil {
		return nil, err
	}

	s.afterCreate(order)
	return order, nil
}

// CreatePaymentOrder регистрирует в шлюзе заказ на сумму, посчитанную сервером.
func (s *OrderService) CreatePaymentOrder(ctx context.Context, req *models.CreatePaymentOrderRequest, userID string) (*models.PaymentOrder, error) {
	if req.PaymentMethod != models.PaymentMethodOnline {
		return nil, apperror.Validation("payment method mismatch: expected online", nil)
	}
	if s.gateway == nil {
		return nil, apperror.Unavailable("online payments are disabled", payment.ErrNotConfigured)
	}

	totals, err := s.checkout.Reconcile(ctx, &ReconcileRequest{
		Items:         req.Items,
		CouponCode:    req.CouponCode,
		UserID:        userID,
		PaymentMethod: models.PaymentMethodOnline,
	})
	if err != nil {
		return nil, err
	}

	receipt := "rcpt_" + ulid.Make().String()
	notes := map[string]string{}
	if userID != "" {
		notes["user_id"] = userID
	}
	if totals.CouponCode != nil {
		notes["coupon_code"] = *totals.CouponCode
	}

	amount := ToMinorUnits(totals.Total)
	gwOrder, err := s.gateway.CreateOrder(ctx, amount, receipt, notes)
	if err != nil {
		return nil, err
	}

	return &models.PaymentOrder{
		GatewayOrderID: gwOrder.ID,
		Receipt:        receipt,
		Amount:         amount,
		Currency:       s.gateway.Currency(),
		KeyID:          s.gateway.KeyID(),
		Totals:         totals,
		Total:          totals.Total,
	}, nil
}

// VerifyPaymentAndCreateOrder проверяет подпись и списанную сумму, затем создаёт оплаченный заказ.
// Любое расхождение денег даёт Integrity, заказ не создаётся.
func (s *OrderService) VerifyPaymentAndCreateOrder(ctx context.Context, req *models.VerifyPaymentRequest, userID string) (*models.Order, error) {
	if req.PaymentMethod != models.PaymentMethodOnline {
		return nil, apperror.Validation("payment method mismatch: expected online", nil)
	}
	if req.GatewayOrderID == "" || req.GatewayPaymentID == "" || req.Signature == "" {
		return nil, apperror.Validation("gateway_order_id, gateway_payment_id and signature are required", nil)
	}
	if s.gateway == nil {
		return nil, apperror.Unavailable("online payments are disabled", payment.ErrNotConfigured)
	}

	log := s.log.WithFields(map[string]interface{}{
		"gateway_order_id":   req.GatewayOrderID,
		"gateway_payment_id": req.GatewayPaymentID,
		"user_id":            userID,
	})

	if !s.gateway.VerifySignature(req.GatewayOrderID, req.GatewayPaymentID, req.Signature) {
		log.Error("Payment signature verification failed")
		return nil, apperror.Integrity("invalid payment signature", nil)
	}

	captured, err := s.gateway.FetchPayment(ctx, req.GatewayPaymentID)
	if err != nil {
		return nil, err
	}
	if captured.OrderID != req.GatewayOrderID {
		log.WithField("payment_order_id", captured.OrderID).Error("Payment belongs to another gateway order")
		return nil, apperror.Integrity("payment does not belong to this order", nil)
	}
	if captured.Status != payment.PaymentStatusCaptured {
		log.WithField("payment_status", captured.Status).Error("Payment is not captured")
		return nil, apperror.Integrity("payment is not captured", nil)
	}

	// купон торга живёт минуты: сверяем его на момент создания заказа в шлюзе, а не на момент возврата клиента
	gwOrder, err := s.gateway.FetchOrder(ctx, req.GatewayOrderID)
	if err != nil {
		log.WithError(err).Error("Captured payment could not be matched to its gateway order, refund required")
		return nil, err
	}
	couponAt := gwOrder.CreatedTime()

	totals, err := s.checkout.Reconcile(ctx, &ReconcileRequest{
		Items:         req.Items,
		CouponCode:    req.CouponCode,
		UserID:        userID,
		PaymentMethod: models.PaymentMethodOnline,
		CouponAt:      couponAt,
	})
	if err != nil {
		log.WithError(err).Error("Captured payment could not be reconciled, refund required")
		return nil, err
	}

	if err := s.checkout.VerifyCapturedAmount(totals.Total, FromMinorUnits(captured.Amount)); err != nil {
		log.WithFields(map[string]interface{}{
			"captured": FromMinorUnits(captured.Amount).String(),
			"total":    totals.Total.String(),
		}).Error("Captured amount does not match reconciled total, refund required")
		return nil, err
	}

	order := s.newOrder(totals, req.ShippingAddress, userID, models.PaymentMethodOnline)
	order.Status = models.OrderStatusConfirmed
	order.PaymentStatus = models.PaymentStatusPaid
	order.GatewayOrderID = &req.GatewayOrderID
	order.GatewayPaymentID = &req.GatewayPaymentID

	if err := s.persistOrder(ctx, order, couponAt); err != nil {
		if apperror.Is(err, apperror.KindConflict) && !errors.Is(err, ErrCouponUsageExhausted) {
			return nil, err
		}
		log.WithError(err).Error("Paid order could not be recorded, refund required")
		return nil, err
	}

	s.afterCreate(order)
	return order, nil
}

func (s *OrderService) newOrder(totals *models.OrderTotals, address models.ShippingAddress, userID string, method models.PaymentMethod) *models.Order {
	now := s.now()
	order := &models.Order{
		ID:              uuid.New(),
		OrderNumber:     "SW-" + ulid.Make().String(),
		ShippingAddress: address,
		Subtotal:        totals.Subtotal,
		ShippingCost:    totals.Shipping,
		Discount:        totals.Discount,
		CODFee:          totals.CODFee,
		Total:           totals.Total,
		CouponCode:      totals.CouponCode,
		PaymentMethod:   method,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if userID != "" {
		order.UserID = &userID
	}
	for _, line := range totals.Lines {
		line.ID = uuid.New()
		line.OrderID = order.ID
		order.Items = append(order.Items, line)
	}
	return order
}

// persistOrder пишет заказ, позиции и погашение купона одной транзакцией.
// Купон сверяется со сроком действия на момент couponAt; нулевой означает текущее время.
func (s *OrderService) persistOrder(ctx context.Context, order *models.Order, couponAt time.Time) error {
	address, err := json.Marshal(order.ShippingAddress)
	if err != nil {
		return fmt.Errorf("failed to encode shipping address: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	query := `
		INSERT INTO orders (id, order_number, user_id, shipping_address, subtotal, shipping_cost, discount, cod_fee, total,
			coupon_code, payment_method, payment_status, gateway_order_id, gateway_payment_id, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
	`
	_, err = tx.ExecContext(ctx, query, order.ID, order.OrderNumber, order.UserID, address,
		order.Subtotal, order.ShippingCost, order.Discount, order.CODFee, order.Total,
		order.CouponCode, order.PaymentMethod, order.PaymentStatus, order.GatewayOrderID, order.GatewayPaymentID,
		order.Status, order.CreatedAt, order.UpdatedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return apperror.Conflict("payment has already been processed", err)
		}
		return fmt.Errorf("failed to create order: %w", err)
	}

	itemQuery := `
		INSERT INTO order_items (id, order_id, product_id, name, quantity, unit_price, total_price)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	for _, item := range order.Items {
		_, err = tx.ExecContext(ctx, itemQuery, item.ID, item.OrderID, item.ProductID, item.Name, item.Quantity, item.UnitPrice, item.TotalPrice)
		if err != nil {
			return fmt.Errorf("failed to create order item: %w", err)
		}
	}

	if order.CouponCode != nil {
		if s.coupons == nil {
			return apperror.Validation("coupons are not supported", nil)
		}
		if err := s.coupons.MarkUsedWithTx(ctx, tx, *order.CouponCode, couponAt); err != nil {
			return err
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func (s *OrderService) afterCreate(order *models.Order) {
	s.log.WithFields(map[string]interface{}{
		"order_id":       order.ID,
		"order_number":   order.OrderNumber,
		"payment_method": order.PaymentMethod,
		"total":          order.Total.String(),
		"discount":       order.Discount.String(),
	}).Info("Order created successfully")

	publishEvent(s.log, s.events, models.EventTypeOrderCreated, func(p EventPublisher) error {
		return p.PublishOrderCreated(order)
	})
	if order.CouponCode != nil {
		publishEvent(s.log, s.events, models.EventTypeCouponRedeemed, func(p EventPublisher) error {
			return p.PublishCouponRedeemed(*order.CouponCode, order.ID, order.Discount)
		})
	}
}

// GetOrder получает заказ по ID вместе с позициями
func (s *OrderService) GetOrder(ctx context.Context, orderID uuid.UUID) (*models.Order, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, orderID)
	order, err := scanOrder(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("order not found", err)
		}
		return nil, fmt.Errorf("failed to get order: %w", err)
	}

	itemsQuery := `
		SELECT id, order_id, product_id, name, quantity, unit_price, total_price
		FROM order_items
		WHERE order_id = $1
	`
	rows, err := s.db.QueryContext(ctx, itemsQuery, orderID)
	if err != nil {
		return nil, fmt.Errorf("failed to get order items: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var item models.OrderItem
		if err := rows.Scan(&item.ID, &item.OrderID, &item.ProductID, &item.Name, &item.Quantity, &item.UnitPrice, &item.TotalPrice); err != nil {
			return nil, fmt.Errorf("failed to scan order item: %w", err)
		}
		order.Items = append(order.Items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate order items: %w", err)
	}

	return order, nil
}

// ListOrders получает список заказов с фильтрацией по пользователю и статусу
func (s *OrderService) ListOrders(ctx context.Context, userID *string, status *models.OrderStatus, limit, offset int) ([]*models.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE 1=1`
	args := []interface{}{}
	argIndex := 1

	if userID != nil {
		query += fmt.Sprintf(" AND user_id = $%d", argIndex)
		args = append(args, *userID)
		argIndex++
	}

	if status != nil {
		query += fmt.Sprintf(" AND status = $%d", argIndex)
		args = append(args, *status)
		argIndex++
	}

	query += " ORDER BY created_at DESC"

	if limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIndex)
		args = append(args, limit)
		argIndex++
	}

	if offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argIndex)
		args = append(args, offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to get orders: %w", err)
	}
	defer rows.Close()

	orders := []*models.Order{}
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan order: %w", err)
		}
		orders = append(orders, order)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate orders: %w", err)
	}

	return orders, nil
}

// UpdateOrderStatus обновляет статус заказа по таблице переходов
func (s *OrderService) UpdateOrderStatus(ctx context.Context, orderID uuid.UUID, req *models.UpdateOrderStatusRequest) (*models.Order, error) {
	if req == nil || req.Status == "" {
		return nil, apperror.Validation("status is required", nil)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	row := tx.QueryRowContext(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1 FOR UPDATE`, orderID)
	order, err := scanOrder(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("order not found", err)
		}
		return nil, fmt.Errorf("failed to fetch order status: %w", err)
	}

	oldStatus := order.Status
	if oldStatus == req.Status {
		return order, nil
	}
	if !isValidOrderStatusTransition(oldStatus, req.Status) {
		return nil, apperror.Conflict(fmt.Sprintf("cannot move order from %s to %s", oldStatus, req.Status), nil)
	}

	now := s.now()
	paymentStatus := order.PaymentStatus
	// наложенный платёж считается оплаченным при вручении
	if req.Status == models.OrderStatusDelivered && order.PaymentMethod == models.PaymentMethodCOD {
		paymentStatus = models.PaymentStatusPaid
	}

	updateQuery := `
		UPDATE orders
		SET status = $1, payment_status = $2, updated_at = $3
		WHERE id = $4
	`
	if _, err := tx.ExecContext(ctx, updateQuery, req.Status, paymentStatus, now, orderID); err != nil {
		return nil, fmt.Errorf("failed to update order status: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit order status update: %w", err)
	}

	order.Status = req.Status
	order.PaymentStatus = paymentStatus
	order.UpdatedAt = now

	s.log.WithFields(map[string]interface{}{
		"order_id":   orderID,
		"old_status": oldStatus,
		"new_status": req.Status,
	}).Info("Order status updated")

	publishEvent(s.log, s.events, models.EventTypeOrderStatusChanged, func(p EventPublisher) error {
		return p.PublishOrderStatusChanged(orderID, oldStatus, req.Status)
	})

	return order, nil
}

func scanOrder(row rowScanner) (*models.Order, error) {
	order := &models.Order{}
	var (
		address          []byte
		userID           sql.NullString
		couponCode       sql.NullString
		gatewayOrderID   sql.NullString
		gatewayPaymentID sql.NullString
	)
	if err := row.Scan(&order.ID, &order.OrderNumber, &userID, &address,
		&order.Subtotal, &order.ShippingCost, &order.Discount, &order.CODFee, &order.Total,
		&couponCode, &order.PaymentMethod, &order.PaymentStatus, &gatewayOrderID, &gatewayPaymentID,
		&order.Status, &order.CreatedAt, &order.UpdatedAt); err != nil {
		return nil, err
	}

	if len(address) > 0 {
		if err := json.Unmarshal(address, &order.ShippingAddress); err != nil {
			return nil, fmt.Errorf("failed to decode shipping address: %w", err)
		}
	}
	order.UserID = nullStringPtr(userID)
	order.CouponCode = nullStringPtr(couponCode)
	order.GatewayOrderID = nullStringPtr(gatewayOrderID)
	order.GatewayPaymentID = nullStringPtr(gatewayPaymentID)
	return order, nil
}

func nullStringPtr(v sql.NullString) *string {
	if !v.Valid {
		return nil
	}
	s := v.String
	return &s
}

// OrderBelongsTo сообщает, принадлежит ли заказ пользователю.
func OrderBelongsTo(order *models.Order, userID string) bool {
	return order.UserID != nil && userID != "" && *order.UserID == userID
}

var orderTransitions = map[models.OrderStatus][]models.OrderStatus{
	models.OrderStatusPending:   {models.OrderStatusConfirmed, models.OrderStatusCancelled},
	models.OrderStatusConfirmed: {models.OrderStatusShipped, models.OrderStatusCancelled},
	models.OrderStatusShipped:   {models.OrderStatusDelivered},
}

func isValidOrderStatusTransition(from, to models.OrderStatus) bool {
	for _, next := range orderTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}
