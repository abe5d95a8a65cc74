package services

import (
	"streetwear-store/internal/logger"
	"streetwear-store/internal/models"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// EventPublisher публикует доменные события. Реализация: kafka.Producer.
type EventPublisher interface {
	PublishOrderCreated(order *models.Order) error
	PublishOrderStatusChanged(orderID uuid.UUID, oldStatus, newStatus models.OrderStatus) error
	PublishCouponIssued(userID string, cartValue decimal.Decimal, coupon *models.IssuedCoupon) error
	PublishCouponRedeemed(code string, orderID uuid.UUID, discount decimal.Decimal) error
}

// publishEvent отправляет событие, если Kafka подключена. Ошибка только логируется.
func publishEvent(log *logger.Logger, events EventPublisher, eventType models.EventType, send func(EventPublisher) error) {
	if events == nil {
		return
	}
	if err := send(events); err != nil && log != nil {
		log.WithError(err).WithField("event_type", eventType).Warn("Failed to publish event")
	}
}
