package models

import (
	"time"

	"github.com/google/uuid"
)

// EventType представляет тип доменного события
type EventType string

const (
	EventTypeOrderCreated       EventType = "order.created"
	EventTypeOrderStatusChanged EventType = "order.status_changed"
	EventTypeCouponIssued       EventType = "coupon.issued"
	EventTypeCouponRedeemed     EventType = "coupon.redeemed"
)

// Event представляет событие, публикуемое в Kafka
type Event struct {
	ID        uuid.UUID   `json:"id"`
	Type      EventType   `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	Data      interface{} `json:"data"`
}

// OrderCreatedData содержит данные события создания заказа
type OrderCreatedData struct {
	OrderID       uuid.UUID     `json:"order_id"`
	OrderNumber   string        `json:"order_number"`
	UserID        *string       `json:"user_id,omitempty"`
	Total         string        `json:"total"`
	Discount      string        `json:"discount"`
	CouponCode    *string       `json:"coupon_code,omitempty"`
	PaymentMethod PaymentMethod `json:"payment_method"`
}

// OrderStatusChangedData содержит данные события смены статуса заказа
type OrderStatusChangedData struct {
	OrderID   uuid.UUID   `json:"order_id"`
	OldStatus OrderStatus `json:"old_status"`
	NewStatus OrderStatus `json:"new_status"`
}

// CouponIssuedData содержит данные события выдачи купона в торге
type CouponIssuedData struct {
	Code      string    `json:"code"`
	UserID    string    `json:"user_id"`
	Discount  string    `json:"discount"`
	CartValue string    `json:"cart_value"`
	ExpiresAt time.Time `json:"expires_at"`
}

// CouponRedeemedData содержит данные события погашения купона
type CouponRedeemedData struct {
	Code     string    `json:"code"`
	OrderID  uuid.UUID `json:"order_id"`
	Discount string    `json:"discount"`
}
