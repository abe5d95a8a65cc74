package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// BargainBoundType называет правило, по которому получена граница скидки
type BargainBoundType string

const (
	BoundFirstTimePremium BargainBoundType = "first_time_premium"
	BoundLowValue         BargainBoundType = "low_value"
	BoundStandard         BargainBoundType = "standard"
)

// DiscountBound хранит максимальную скидку для корзины
type DiscountBound struct {
	MaxDiscount decimal.Decimal  `json:"max_discount"`
	Type        BargainBoundType `json:"discount_type"`
}

// NegotiationState представляет состояние торга
type NegotiationState string

const (
	StateGreeting   NegotiationState = "greeting"
	StateHaggling   NegotiationState = "haggling"
	StateFinal      NegotiationState = "final"
	StateTerminated NegotiationState = "terminated"
)

// BargainSession хранит аудит выданного в торге купона, один к одному с купоном
type BargainSession struct {
	ID             uuid.UUID       `json:"id" db:"id"`
	UserID         string          `json:"user_id" db:"user_id"`
	CouponCode     string          `json:"coupon_code" db:"coupon_code"`
	CartValue      decimal.Decimal `json:"cart_value" db:"cart_value"`
	DiscountAmount decimal.Decimal `json:"discount_amount" db:"discount_amount"`
	Used           bool            `json:"used" db:"used"`
	ExpiresAt      time.Time       `json:"expires_at" db:"expires_at"`
	CreatedAt      time.Time       `json:"created_at" db:"created_at"`
}

// IssueBargainCouponRequest содержит параметры купона, выдаваемого в финальном раунде
type IssueBargainCouponRequest struct {
	UserID         string
	CartValue      decimal.Decimal
	DiscountAmount decimal.Decimal
}

// IssuedCoupon описывает то, что уходит клиенту в заголовках ответа
type IssuedCoupon struct {
	Code      string          `json:"code"`
	Discount  decimal.Decimal `json:"discount"`
	ExpiresAt time.Time       `json:"expires_at"`
	CartValue decimal.Decimal `json:"cart_value"`
	Reused    bool            `json:"reused"`
}

// ChatMessage представляет реплику в переписке; история хранится на клиенте
type ChatMessage struct {
	Role    string `json:"role"` // user | assistant
	Content string `json:"content"`
}

// CartItem представляет снимок корзины от клиента; цене доверять нельзя
type CartItem struct {
	ProductID string          `json:"productId"`
	Name      string          `json:"name"`
	UnitPrice decimal.Decimal `json:"unitPrice"`
	Quantity  int             `json:"quantity"`
}

// NegotiationRequest представляет тело запроса чата торга
type NegotiationRequest struct {
	Messages         []ChatMessage    `json:"messages"`
	CartItems        []CartItem       `json:"cartItems"`
	CartTotal        *decimal.Decimal `json:"cartTotal"`
	NegotiationRound int              `json:"negotiationRound"`
}

// NegotiationTurn описывает итог одного хода торга
type NegotiationTurn struct {
	Round          int              `json:"round"`
	State          NegotiationState `json:"state"`
	CartTotal      decimal.Decimal  `json:"cart_total"`
	FirstTimeUser  bool             `json:"first_time_user"`
	ProductCeiling decimal.Decimal  `json:"product_ceiling"`
	Bound          DiscountBound    `json:"bound"`
	OfferAmount    decimal.Decimal  `json:"offer_amount"`
	Coupon         *IssuedCoupon    `json:"coupon,omitempty"`
	Authenticated  bool             `json:"authenticated"`
}

// Terminated сообщает, что торг завершён выдачей купона
func (t *NegotiationTurn) Terminated() bool {
	return t.Coupon != nil
}

// DialoguePrompt содержит вход генератора диалога
type DialoguePrompt struct {
	System   string
	History  []ChatMessage
	Message  string
	Fallback string
}
