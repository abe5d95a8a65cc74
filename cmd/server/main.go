package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"streetwear-store/internal/auth"
	"streetwear-store/internal/config"
	"streetwear-store/internal/database"
	"streetwear-store/internal/handlers"
	"streetwear-store/internal/kafka"
	"streetwear-store/internal/llm"
	"streetwear-store/internal/logger"
	"streetwear-store/internal/models"
	"streetwear-store/internal/payment"
	"streetwear-store/internal/redis"
	"streetwear-store/internal/services"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
)

// Фабричные функции для подключения внешних сервисов (подменяемые в тестах).
var (
	dbConnect        = database.Connect
	redisConnect     = redis.Connect
	newKafkaProducer = kafka.NewProducer
	newKafkaConsumer = kafka.NewConsumer
	newLLMClient     = llm.NewClient
	kafkaHealthCheck = handlers.CheckKafkaHealth
	loadConfig       = config.Load
	newLogger        = logger.New
)

// application агрегирует собранные зависимости.
type application struct {
	cfg      *config.Config
	log      *logger.Logger
	db       *database.DB
	redis    *redis.Client
	producer *kafka.Producer
	consumer *kafka.Consumer
	llm      *llm.Client
	router   chi.Router
	server   *http.Server
}

// routeHandlers собирает HTTP-обработчики для роутера.
type routeHandlers struct {
	bargain   *handlers.BargainHandler
	coupons   *handlers.CouponHandler
	orders    *handlers.OrderHandler
	products  *handlers.ProductHandler
	analytics *handlers.AnalyticsHandler
	health    *handlers.HealthHandler
	rateLimit *handlers.RateLimitHandler
}

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "failed to load .env: %v\n", err)
	}

	app, err := buildApplication(context.Background())
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to build app: %v\n", err)
		os.Exit(1)
	}
	app.log.Info("Starting streetwear store server...")

	go func() {
		app.log.WithField("address", app.server.Addr).Info("HTTP server starting")
		if err := app.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			app.log.WithError(err).Fatal("HTTP server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	app.log.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := app.server.Shutdown(ctx); err != nil {
		app.log.WithError(err).Error("Server forced to shutdown")
	}
	app.close()
	app.log.Info("Server exited")
}

// buildApplication создает все зависимости. Redis, Kafka и генератор диалога необязательны:
// без них сервис работает в деградированном режиме.
func buildApplication(ctx context.Context) (*application, error) {
	cfg := loadConfig()
	log := newLogger(&cfg.Logger)
	app := &application{cfg: cfg, log: log}

	db, err := dbConnect(&cfg.Database, log)
	if err != nil {
		return nil, fmt.Errorf("db connect: %w", err)
	}
	app.db = db

	migrateCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := db.Migrate(migrateCtx); err != nil {
		app.close()
		return nil, fmt.Errorf("db migrate: %w", err)
	}

	if redisClient, err := redisConnect(&cfg.Redis, log); err != nil {
		log.WithError(err).Warn("Redis unavailable, caching and rate limiting disabled")
	} else {
		app.redis = redisClient
	}

	if producer, err := newKafkaProducer(&cfg.Kafka, log); err != nil {
		log.WithError(err).Warn("Kafka producer unavailable, events will not be published")
	} else {
		app.producer = producer
	}

	llmClient, err := newLLMClient(ctx, &cfg.LLM, log)
	if err != nil {
		log.WithError(err).Warn("Dialogue generator unavailable, fallback replies only")
	} else {
		app.llm = llmClient
	}

	var events services.EventPublisher
	if app.producer != nil {
		events = app.producer
	}

	var dialogue handlers.DialogueStreamer
	if app.llm.Configured() {
		dialogue = app.llm
	}

	gateway := payment.NewClient(&cfg.Payment, log)
	if !gateway.Configured() {
		log.Warn("Payment gateway keys are not set, online payments disabled")
	}

	catalogService := services.NewCatalogService(db, app.redis, log, &cfg.Catalog)
	couponService := services.NewCouponService(db, log, &cfg.Bargain)
	checkoutService := services.NewCheckoutService(catalogService, couponService, log, &cfg.Checkout)
	negotiationService := services.NewNegotiationService(catalogService, couponService, events, log, &cfg.Bargain)
	orderService := services.NewOrderService(db, log, checkoutService, couponService, gateway, events)
	analyticsService := services.NewAnalyticsService(db, app.redis, log, &cfg.Analytics)
	rateLimiter := services.NewRateLimiter(app.redis, log, &cfg.RateLimit)
	chatLimiter := rateLimiter.Bucket("chat", cfg.RateLimit.ChatRequests)

	var redisHealth handlers.RedisHealth
	if app.redis != nil {
		redisHealth = app.redis
	}
	var brokers []string
	if app.producer != nil {
		brokers = cfg.Kafka.Brokers
	}

	h := routeHandlers{
		bargain:   handlers.NewBargainHandler(negotiationService, dialogue, log),
		coupons:   handlers.NewCouponHandler(couponService, log),
		orders:    handlers.NewOrderHandler(orderService, log),
		products:  handlers.NewProductHandler(catalogService, log),
		analytics: handlers.NewAnalyticsHandler(analyticsService, log, &cfg.Analytics),
		health:    handlers.NewHealthHandler(db, redisHealth, brokers, kafkaHealthCheck),
		rateLimit: handlers.NewRateLimitHandler(rateLimiter, log, &cfg.RateLimit),
	}

	if app.producer != nil {
		consumer, err := newKafkaConsumer(&cfg.Kafka, log)
		if err != nil {
			log.WithError(err).Warn("Kafka consumer unavailable")
		} else {
			registerEventHandlers(consumer, analyticsService, log)
			if err := consumer.Start(); err != nil {
				_ = consumer.Stop()
				log.WithError(err).Warn("Kafka consumer failed to start")
			} else {
				app.consumer = consumer
			}
		}
	}

	jwtService := auth.NewJWTService(&cfg.Auth)
	if !jwtService.Enabled() {
		log.Warn("JWT secret is not set, all requests are anonymous")
	}

	app.router = setupRoutes(h, jwtService, rateLimiter, chatLimiter, log)
	app.server = &http.Server{
		Addr:         fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port),
		Handler:      app.router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	return app, nil
}

// close освобождает подключения в обратном порядке.
func (a *application) close() {
	if a.consumer != nil {
		_ = a.consumer.Stop()
	}
	if a.producer != nil {
		_ = a.producer.Close()
	}
	if a.llm != nil {
		_ = a.llm.Close()
	}
	if a.redis != nil {
		_ = a.redis.Close()
	}
	if a.db != nil {
		_ = a.db.Close()
	}
}

// setupRoutes настраивает маршруты HTTP сервера
func setupRoutes(h routeHandlers, jwtService *auth.JWTService, limiter, chatLimiter handlers.MiddlewareLimiter, log *logger.Logger) chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(corsMiddleware)

	r.Get("/health", h.health.Health)
	r.Get("/health/readiness", h.health.Readiness)
	r.Get("/health/liveness", h.health.Liveness)

	r.Route("/api", func(api chi.Router) {
		api.Use(jwtService.OptionalAuth)

		api.With(handlers.RateLimit(chatLimiter, log)).Post("/bargain/chat", h.bargain.Chat)

		api.Group(func(g chi.Router) {
			g.Use(handlers.RateLimit(limiter, log))

			g.Get("/rate-limit/status", h.rateLimit.Status)
			g.Post("/coupons/validate", h.coupons.ValidateCoupon)

			g.Post("/orders/cod", h.orders.CreateCODOrder)
			g.Post("/orders/payment", h.orders.CreatePaymentOrder)
			g.Post("/orders/verify", h.orders.VerifyPayment)
			g.With(jwtService.RequireAuth).Get("/orders", h.orders.GetOrders)
			g.Get("/orders/{id}", h.orders.GetOrder)

			g.Route("/admin", func(admin chi.Router) {
				admin.Use(jwtService.RequireAdmin)

				admin.Get("/coupons", h.coupons.ListCoupons)
				admin.Post("/coupons", h.coupons.CreateCoupon)
				admin.Get("/coupons/{code}", h.coupons.GetCoupon)
				admin.Put("/coupons/{code}", h.coupons.UpdateCoupon)
				admin.Delete("/coupons/{code}", h.coupons.DeactivateCoupon)

				admin.Put("/orders/{id}/status", h.orders.UpdateOrderStatus)

				admin.Get("/products", h.products.ListProducts)
				admin.Post("/products", h.products.CreateProduct)
				admin.Get("/products/{id}", h.products.GetProduct)
				admin.Put("/products/{id}", h.products.UpdateProduct)

				admin.Get("/analytics/kpi", h.analytics.GetKPIs)
				admin.Get("/analytics/coupons", h.analytics.GetCouponAnalytics)
			})
		})
	})

	return r
}

// registerEventHandlers регистрирует обработчики событий Kafka
func registerEventHandlers(consumer *kafka.Consumer, analytics *services.AnalyticsService, log *logger.Logger) {
	invalidate := func(ctx context.Context, event *models.Event) error {
		if err := analytics.InvalidateCache(ctx); err != nil {
			log.WithError(err).WithField("event_id", event.ID).Warn("Failed to invalidate analytics cache")
			return err
		}
		return nil
	}
	consumer.RegisterHandler(models.EventTypeOrderCreated, invalidate)
	consumer.RegisterHandler(models.EventTypeOrderStatusChanged, invalidate)

	consumer.RegisterHandler(models.EventTypeCouponIssued, func(ctx context.Context, event *models.Event) error {
		log.WithField("event_id", event.ID).Debug("Bargain coupon issued")
		return nil
	})
}

// corsMiddleware отдаёт CORS-заголовки, включая заголовки торга для браузерного клиента.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		w.Header().Set("Access-Control-Expose-Headers",
			"X-Coupon-Code, X-Coupon-Discount, X-Coupon-Expires, X-Negotiation-Round, X-Negotiation-State, X-RateLimit-Limit, X-RateLimit-Remaining, X-RateLimit-Reset")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}
