package kafka

import (
	"encoding/json"
	"fmt"
	"time"

	"streetwear-store/internal/config"
	"streetwear-store/internal/logger"
	"streetwear-store/internal/models"

	"github.com/IBM/sarama"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Producer публикует доменные события в Kafka
type Producer struct {
	producer sarama.SyncProducer
	log      *logger.Logger
	topics   *config.Topics
}

// NewProducer создает синхронного продюсера
func NewProducer(cfg *config.KafkaConfig, log *logger.Logger) (*Producer, error) {
	saramaCfg := sarama.NewConfig()
	saramaCfg.Producer.RequiredAcks = sarama.WaitForAll
	saramaCfg.Producer.Retry.Max = 3
	saramaCfg.Producer.Return.Successes = true
	saramaCfg.Net.DialTimeout = 5 * time.Second

	producer, err := sarama.NewSyncProducer(cfg.Brokers, saramaCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka producer: %w", err)
	}

	log.WithField("brokers", cfg.Brokers).Info("Kafka producer created")

	topics := cfg.Topics
	return &Producer{producer: producer, log: log, topics: &topics}, nil
}

// Close закрывает продюсера
func (p *Producer) Close() error {
	if p == nil || p.producer == nil {
		return nil
	}
	return p.producer.Close()
}

// PublishOrderCreated публикует событие создания заказа
func (p *Producer) PublishOrderCreated(order *models.Order) error {
	event := newEvent(models.EventTypeOrderCreated, models.OrderCreatedData{
		OrderID:       order.ID,
		OrderNumber:   order.OrderNumber,
		UserID:        order.UserID,
		Total:         order.Total.StringFixed(2),
		Discount:      order.Discount.StringFixed(2),
		CouponCode:    order.CouponCode,
		PaymentMethod: order.PaymentMethod,
	})
	return p.publishEvent(p.topics.Orders, event)
}

// PublishOrderStatusChanged публикует событие смены статуса заказа
func (p *Producer) PublishOrderStatusChanged(orderID uuid.UUID, oldStatus, newStatus models.OrderStatus) error {
	event := newEvent(models.EventTypeOrderStatusChanged, models.OrderStatusChangedData{
		OrderID:   orderID,
		OldStatus: oldStatus,
		NewStatus: newStatus,
	})
	return p.publishEvent(p.topics.Orders, event)
}

// PublishCouponIssued публикует событие выдачи купона в торге
func (p *Producer) PublishCouponIssued(userID string, cartValue decimal.Decimal, coupon *models.IssuedCoupon) error {
	event := newEvent(models.EventTypeCouponIssued, models.CouponIssuedData{
		Code:      coupon.Code,
		UserID:    userID,
		Discount:  coupon.Discount.StringFixed(2),
		CartValue: cartValue.StringFixed(2),
		ExpiresAt: coupon.ExpiresAt,
	})
	return p.publishEvent(p.topics.Coupons, event)
}

// PublishCouponRedeemed публикует событие погашения купона заказом
func (p *Producer) PublishCouponRedeemed(code string, orderID uuid.UUID, discount decimal.Decimal) error {
	event := newEvent(models.EventTypeCouponRedeemed, models.CouponRedeemedData{
		Code:     code,
		OrderID:  orderID,
		Discount: discount.StringFixed(2),
	})
	return p.publishEvent(p.topics.Coupons, event)
}

func newEvent(eventType models.EventType, data interface{}) models.Event {
	return models.Event{
		ID:        uuid.New(),
		Type:      eventType,
		Timestamp: time.Now().UTC(),
		Data:      data,
	}
}

func (p *Producer) publishEvent(topic string, event models.Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	msg := &sarama.ProducerMessage{
		Topic: topic,
		Key:   sarama.StringEncoder(event.ID.String()),
		Value: sarama.ByteEncoder(payload),
	}

	partition, offset, err := p.producer.SendMessage(msg)
	if err != nil {
		p.log.WithError(err).WithField("event_type", event.Type).Error("Failed to publish event")
		return fmt.Errorf("failed to send message: %w", err)
	}

	p.log.WithFields(map[string]interface{}{
		"event_type": event.Type,
		"topic":      topic,
		"partition":  partition,
		"offset":     offset,
	}).Debug("Event published")

	return nil
}
