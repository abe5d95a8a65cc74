package services

import (
	"context"
	"database/sql"
	"testing"

	"streetwear-store/internal/apperror"
	"streetwear-store/internal/models"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
)

var orderRowColumns = []string{
	"id", "order_number", "user_id", "shipping_address", "subtotal", "shipping_cost", "discount", "cod_fee", "total",
	"coupon_code", "payment_method", "payment_status", "gateway_order_id", "gateway_payment_id", "status", "created_at", "updated_at",
}

const addressJSON = `{"full_name":"Aarav Shah","phone":"9876543210","line1":"12 MG Road","city":"Bengaluru","state":"KA","pincode":"560001"}`

func orderRow(rows *sqlmock.Rows, id uuid.UUID, userID interface{}, method models.PaymentMethod, status models.OrderStatus) *sqlmock.Rows {
	return rows.AddRow(id.String(), "SW-01HZY", userID, []byte(addressJSON), "2000", "0", "100", "49", "1949",
		"SAVE100", method, models.PaymentStatusPending, nil, nil, status, testNow, testNow)
}

func TestOrderService_GetOrder_Success(t *testing.T) {
	db, mock := newMockDB(t)
	defer db.Close()
	service := newTestOrderService(db, &stubCouponValidator{}, nil, nil)

	orderID := uuid.New()
	mock.ExpectQuery("SELECT id, order_number, user_id, shipping_address").
		WithArgs(orderID).
		WillReturnRows(orderRow(sqlmock.NewRows(orderRowColumns), orderID, "u1", models.PaymentMethodCOD, models.OrderStatusPending))
	mock.ExpectQuery("SELECT id, order_id, product_id, name, quantity, unit_price, total_price FROM order_items").
		WithArgs(orderID).
		WillReturnRows(sqlmock.NewRows([]string{"id", "order_id", "product_id", "name", "quantity", "unit_price", "total_price"}).
			AddRow(uuid.New().String(), orderID.String(), hoodieID.String(), "Box Logo Hoodie", 1, "1500", "1500").
			AddRow(uuid.New().String(), orderID.String(), teeID.String(), "Oversized Tee", 1, "500", "500"))

	order, err := service.GetOrder(context.Background(), orderID)
	if err != nil {
		t.Fatalf("expected success, got error: %v", err)
	}
	if order.ID != orderID || len(order.Items) != 2 {
		t.Fatalf("unexpected order %+v", order)
	}
	if order.ShippingAddress.City != "Bengaluru" || order.CouponCode == nil || *order.CouponCode != "SAVE100" {
		t.Fatalf("unexpected decoded fields %+v", order)
	}
	if !order.Total.Equal(dec("1949")) || order.GatewayPaymentID != nil {
		t.Fatalf("unexpected money fields %+v", order)
	}
	if !OrderBelongsTo(order, "u1") || OrderBelongsTo(order, "u2") {
		t.Fatalf("ownership check is wrong")
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestOrderService_GetOrder_NotFound(t *testing.T) {
	db, mock := newMockDB(t)
	defer db.Close()
	service := newTestOrderService(db, &stubCouponValidator{}, nil, nil)

	orderID := uuid.New()
	mock.ExpectQuery("SELECT id, order_number").
		WithArgs(orderID).
		WillReturnError(sql.ErrNoRows)

	if _, err := service.GetOrder(context.Background(), orderID); !apperror.Is(err, apperror.KindNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestOrderService_ListOrders_Filters(t *testing.T) {
	db, mock := newMockDB(t)
	defer db.Close()
	service := newTestOrderService(db, &stubCouponValidator{}, nil, nil)

	userID := "u1"
	status := models.OrderStatusPending
	rows := sqlmock.NewRows(orderRowColumns)
	orderRow(rows, uuid.New(), userID, models.PaymentMethodCOD, status)
	orderRow(rows, uuid.New(), userID, models.PaymentMethodCOD, status)

	mock.ExpectQuery(`FROM orders WHERE 1=1 AND user_id = \$1 AND status = \$2 ORDER BY created_at DESC LIMIT \$3 OFFSET \$4`).
		WithArgs(userID, "pending", 10, 20).
		WillReturnRows(rows)

	orders, err := service.ListOrders(context.Background(), &userID, &status, 10, 20)
	if err != nil {
		t.Fatalf("expected success, got error: %v", err)
	}
	if len(orders) != 2 {
		t.Fatalf("expected 2 orders, got %d", len(orders))
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestOrderService_ListOrders_Empty(t *testing.T) {
	db, mock := newMockDB(t)
	defer db.Close()
	service := newTestOrderService(db, &stubCouponValidator{}, nil, nil)

	mock.ExpectQuery("FROM orders WHERE 1=1 ORDER BY created_at DESC").
		WillReturnRows(sqlmock.NewRows(orderRowColumns))

	orders, err := service.ListOrders(context.Background(), nil, nil, 0, 0)
	if err != nil {
		t.Fatalf("expected success, got error: %v", err)
	}
	if orders == nil || len(orders) != 0 {
		t.Fatalf("expected empty non-nil slice, got %v", orders)
	}
}

func TestOrderService_UpdateOrderStatus_DeliveredCODMarksPaid(t *testing.T) {
	db, mock := newMockDB(t)
	defer db.Close()
	events := &recordingEvents{}
	service := newTestOrderService(db, &stubCouponValidator{}, nil, events)

	orderID := uuid.New()
	mock.ExpectBegin()
	mock.ExpectQuery("SELECT id, order_number .* FOR UPDATE").
		WithArgs(orderID).
		WillReturnRows(orderRow(sqlmock.NewRows(orderRowColumns), orderID, "u1", models.PaymentMethodCOD, models.OrderStatusShipped))
	mock.ExpectExec("UPDATE orders").
		WithArgs(models.OrderStatusDelivered, models.PaymentStatusPaid, testNow, orderID).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	order, err := service.UpdateOrderStatus(context.Background(), orderID, &models.UpdateOrderStatusRequest{Status: models.OrderStatusDelivered})
	if err != nil {
		t.Fatalf("expected success, got error: %v", err)
	}
	if order.Status != models.OrderStatusDelivered || order.PaymentStatus != models.PaymentStatusPaid {
		t.Fatalf("unexpected order state %s/%s", order.Status, order.PaymentStatus)
	}
	if events.statusChanges != 1 {
		t.Fatalf("expected order.status_changed event")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestOrderService_UpdateOrderStatus_InvalidTransition(t *testing.T) {
	db, mock := newMockDB(t)
	defer db.Close()
	service := newTestOrderService(db, &stubCouponValidator{}, nil, nil)

	orderID := uuid.New()
	mock.ExpectBegin()
	mock.ExpectQuery("SELECT id, order_number .* FOR UPDATE").
		WithArgs(orderID).
		WillReturnRows(orderRow(sqlmock.NewRows(orderRowColumns), orderID, nil, models.PaymentMethodCOD, models.OrderStatusShipped))
	mock.ExpectRollback()

	_, err := service.UpdateOrderStatus(context.Background(), orderID, &models.UpdateOrderStatusRequest{Status: models.OrderStatusCancelled})
	if !apperror.Is(err, apperror.KindConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestOrderService_UpdateOrderStatus_NotFound(t *testing.T) {
	db, mock := newMockDB(t)
	defer db.Close()
	service := newTestOrderService(db, &stubCouponValidator{}, nil, nil)

	orderID := uuid.New()
	mock.ExpectBegin()
	mock.ExpectQuery("FOR UPDATE").WithArgs(orderID).WillReturnError(sql.ErrNoRows)
	mock.ExpectRollback()

	_, err := service.UpdateOrderStatus(context.Background(), orderID, &models.UpdateOrderStatusRequest{Status: models.OrderStatusConfirmed})
	if !apperror.Is(err, apperror.KindNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestOrderService_UpdateOrderStatus_RequiresStatus(t *testing.T) {
	db, _ := newMockDB(t)
	defer db.Close()
	service := newTestOrderService(db, &stubCouponValidator{}, nil, nil)

	if _, err := service.UpdateOrderStatus(context.Background(), uuid.New(), &models.UpdateOrderStatusRequest{}); !apperror.Is(err, apperror.KindValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestIsValidOrderStatusTransition(t *testing.T) {
	tests := []struct {
		from, to models.OrderStatus
		want     bool
	}{
		{models.OrderStatusPending, models.OrderStatusConfirmed, true},
		{models.OrderStatusPending, models.OrderStatusCancelled, true},
		{models.OrderStatusPending, models.OrderStatusShipped, false},
		{models.OrderStatusConfirmed, models.OrderStatusShipped, true},
		{models.OrderStatusConfirmed, models.OrderStatusCancelled, true},
		{models.OrderStatusShipped, models.OrderStatusDelivered, true},
		{models.OrderStatusShipped, models.OrderStatusCancelled, false},
		{models.OrderStatusDelivered, models.OrderStatusCancelled, false},
		{models.OrderStatusCancelled, models.OrderStatusPending, false},
	}

	for _, tt := range tests {
		if got := isValidOrderStatusTransition(tt.from, tt.to); got != tt.want {
			t.Fatalf("%s -> %s: expected %v, got %v", tt.from, tt.to, tt.want, got)
		}
	}
}
