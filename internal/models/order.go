package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// OrderStatus представляет статус заказа
type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "pending"
	OrderStatusConfirmed OrderStatus = "confirmed"
	OrderStatusShipped   OrderStatus = "shipped"
	OrderStatusDelivered OrderStatus = "delivered"
	OrderStatusCancelled OrderStatus = "cancelled"
)

// Valid сообщает, известен ли статус.
func (s OrderStatus) Valid() bool {
	switch s {
	case OrderStatusPending, OrderStatusConfirmed, OrderStatusShipped, OrderStatusDelivered, OrderStatusCancelled:
		return true
	}
	return false
}

// PaymentMethod представляет способ оплаты заказа
type PaymentMethod string

const (
	PaymentMethodCOD    PaymentMethod = "cod"
	PaymentMethodOnline PaymentMethod = "online"
)

// PaymentStatus представляет статус оплаты
type PaymentStatus string

const (
	PaymentStatusPending PaymentStatus = "pending"
	PaymentStatusPaid    PaymentStatus = "paid"
)

// ShippingAddress представляет адрес доставки, хранится в заказе как JSON
type ShippingAddress struct {
	FullName string `json:"full_name" validate:"required"`
	Phone    string `json:"phone" validate:"required"`
	Line1    string `json:"line1" validate:"required"`
	Line2    string `json:"line2,omitempty"`
	City     string `json:"city" validate:"required"`
	State    string `json:"state" validate:"required"`
	Pincode  string `json:"pincode" validate:"required,len=6,numeric"`
}

// Order представляет заказ в системе. Все денежные поля посчитаны на сервере.
type Order struct {
	ID               uuid.UUID       `json:"id" db:"id"`
	OrderNumber      string          `json:"order_number" db:"order_number"`
	UserID           *string         `json:"user_id,omitempty" db:"user_id"`
	ShippingAddress  ShippingAddress `json:"shipping_address" db:"shipping_address"`
	Items            []OrderItem     `json:"items"`
	Subtotal         decimal.Decimal `json:"subtotal" db:"subtotal"`
	ShippingCost     decimal.Decimal `json:"shipping_cost" db:"shipping_cost"`
	Discount         decimal.Decimal `json:"discount" db:"discount"`
	CODFee           decimal.Decimal `json:"cod_fee" db:"cod_fee"`
	Total            decimal.Decimal `json:"total" db:"total"`
	CouponCode       *string         `json:"coupon_code,omitempty" db:"coupon_code"`
	PaymentMethod    PaymentMethod   `json:"payment_method" db:"payment_method"`
	PaymentStatus    PaymentStatus   `json:"payment_status" db:"payment_status"`
	GatewayOrderID   *string         `json:"gateway_order_id,omitempty" db:"gateway_order_id"`
	GatewayPaymentID *string         `json:"gateway_payment_id,omitempty" db:"gateway_payment_id"`
	Status           OrderStatus     `json:"status" db:"status"`
	CreatedAt        time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at" db:"updated_at"`
}

// OrderItem представляет товар в заказе с ценой из каталога
type OrderItem struct {
	ID         uuid.UUID       `json:"id" db:"id"`
	OrderID    uuid.UUID       `json:"order_id" db:"order_id"`
	ProductID  uuid.UUID       `json:"product_id" db:"product_id"`
	Name       string          `json:"name" db:"name"`
	Quantity   int             `json:"quantity" db:"quantity"`
	UnitPrice  decimal.Decimal `json:"unit_price" db:"unit_price"`
	TotalPrice decimal.Decimal `json:"total_price" db:"total_price"`
}

// OrderLineRequest представляет позицию из запроса клиента. Цена клиента игнорируется.
type OrderLineRequest struct {
	ProductID uuid.UUID        `json:"product_id"`
	Quantity  int              `json:"quantity"`
	UnitPrice *decimal.Decimal `json:"unit_price,omitempty"`
}

// CreateOrderRequest представляет запрос на создание заказа с оплатой при получении
type CreateOrderRequest struct {
	Items           []OrderLineRequest `json:"items"`
	ShippingAddress ShippingAddress    `json:"shipping_address"`
	CouponCode      *string            `json:"coupon_code,omitempty"`
	PaymentMethod   PaymentMethod      `json:"payment_method"`
	// Поля ниже присылает клиент; сервер их не использует для расчёта
	ClientSubtotal *decimal.Decimal `json:"subtotal,omitempty"`
	ClientDiscount *decimal.Decimal `json:"discount,omitempty"`
	ClientTotal    *decimal.Decimal `json:"total,omitempty"`
}

// CreatePaymentOrderRequest представляет запрос на создание заказа в платёжном шлюзе
type CreatePaymentOrderRequest struct {
	Items         []OrderLineRequest `json:"items"`
	CouponCode    *string            `json:"coupon_code,omitempty"`
	PaymentMethod PaymentMethod      `json:"payment_method"`
}

// PaymentOrder представляет ответ клиенту для открытия формы оплаты
type PaymentOrder struct {
	GatewayOrderID string          `json:"gateway_order_id"`
	Receipt        string          `json:"receipt"`
	Amount         int64           `json:"amount"` // в минимальных единицах валюты (пайсы)
	Currency       string          `json:"currency"`
	KeyID          string          `json:"key_id"`
	Totals         *OrderTotals    `json:"totals"`
	Total          decimal.Decimal `json:"total"`
}

// VerifyPaymentRequest представляет подтверждение оплаты после захвата средств шлюзом
type VerifyPaymentRequest struct {
	GatewayOrderID   string             `json:"gateway_order_id"`
	GatewayPaymentID string             `json:"gateway_payment_id"`
	Signature        string             `json:"signature"`
	Items            []OrderLineRequest `json:"items"`
	ShippingAddress  ShippingAddress    `json:"shipping_address"`
	CouponCode       *string            `json:"coupon_code,omitempty"`
	PaymentMethod    PaymentMethod      `json:"payment_method"`
	ClientTotal      *decimal.Decimal   `json:"total,omitempty"`
}

// OrderTotals хранит авторитетный расчёт суммы заказа
type OrderTotals struct {
	Lines      []OrderItem       `json:"lines"`
	Subtotal   decimal.Decimal   `json:"subtotal"`
	Shipping   decimal.Decimal   `json:"shipping"`
	Discount   decimal.Decimal   `json:"discount"`
	CODFee     decimal.Decimal   `json:"cod_fee"`
	Total      decimal.Decimal   `json:"total"`
	CouponCode *string           `json:"coupon_code,omitempty"`
	Coupon     *CouponValidation `json:"coupon,omitempty"`
}

// UpdateOrderStatusRequest представляет запрос на обновление статуса заказа
type UpdateOrderStatusRequest struct {
	Status OrderStatus `json:"status"`
}
