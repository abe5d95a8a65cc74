package handlers

import (
	"context"

	"streetwear-store/internal/models"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ----- Bargain -----

type NegotiationService interface {
	Negotiate(ctx context.Context, req *models.NegotiationRequest, userID string) (*models.NegotiationTurn, error)
}

type DialogueStreamer interface {
	StreamReply(ctx context.Context, prompt *models.DialoguePrompt, emit func(chunk string) error) (int, error)
}

// ----- Coupons -----

type CouponService interface {
	Validate(ctx context.Context, code string, orderTotal decimal.Decimal, userID string) (*models.CouponValidation, error)
	CreateCoupon(ctx context.Context, req *models.CreateCouponRequest) (*models.Coupon, error)
	UpdateCoupon(ctx context.Context, code string, req *models.UpdateCouponRequest) (*models.Coupon, error)
	DeactivateCoupon(ctx context.Context, code string) error
	GetCoupon(ctx context.Context, code string) (*models.Coupon, error)
	ListCoupons(ctx context.Context, limit, offset int) ([]*models.Coupon, error)
}

// ----- Orders -----

type OrderService interface {
	CreateCODOrder(ctx context.Context, req *models.CreateOrderRequest, userID string) (*models.Order, error)
	CreatePaymentOrder(ctx context.Context, req *models.CreatePaymentOrderRequest, userID string) (*models.PaymentOrder, error)
	VerifyPaymentAndCreateOrder(ctx context.Context, req *models.VerifyPaymentRequest, userID string) (*models.Order, error)
	GetOrder(ctx context.Context, orderID uuid.UUID) (*models.Order, error)
	ListOrders(ctx context.Context, userID *string, status *models.OrderStatus, limit, offset int) ([]*models.Order, error)
	UpdateOrderStatus(ctx context.Context, orderID uuid.UUID, req *models.UpdateOrderStatusRequest) (*models.Order, error)
}

// ----- Catalog -----

type CatalogService interface {
	CreateProduct(ctx context.Context, req *models.UpsertProductRequest) (*models.Product, error)
	UpdateProduct(ctx context.Context, id uuid.UUID, req *models.UpsertProductRequest) (*models.Product, error)
	GetProduct(ctx context.Context, id uuid.UUID) (*models.Product, error)
	ListProducts(ctx context.Context, limit, offset int) ([]*models.Product, error)
}

// ----- Analytics -----

type AnalyticsProvider interface {
	GetKPIs(ctx context.Context, filter *models.AnalyticsFilter) (*models.KPIMetrics, error)
	GetCouponAnalytics(ctx context.Context, filter *models.AnalyticsFilter) ([]*models.CouponAnalytics, error)
}

// ----- Health -----

type DBHealth interface {
	Health() error
}

type RedisHealth interface {
	Health(ctx context.Context) error
}
