package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config представляет конфигурацию приложения
type Config struct {
	Server    ServerConfig    `json:"server"`
	Database  DatabaseConfig  `json:"database"`
	Redis     RedisConfig     `json:"redis"`
	Kafka     KafkaConfig     `json:"kafka"`
	Logger    LoggerConfig    `json:"logger"`
	Auth      AuthConfig      `json:"auth"`
	Checkout  CheckoutConfig  `json:"checkout"`
	Bargain   BargainConfig   `json:"bargain"`
	Payment   PaymentConfig   `json:"payment"`
	LLM       LLMConfig       `json:"llm"`
	Catalog   CatalogConfig   `json:"catalog"`
	Analytics AnalyticsConfig `json:"analytics"`
	RateLimit RateLimitConfig `json:"rate_limit"`
}

// ServerConfig представляет конфигурацию HTTP сервера
type ServerConfig struct {
	Port         string `json:"port"`
	Host         string `json:"host"`
	ReadTimeout  int    `json:"read_timeout"`
	WriteTimeout int    `json:"write_timeout"`
}

// DatabaseConfig представляет конфигурацию базы данных
type DatabaseConfig struct {
	Host     string `json:"host"`
	Port     string `json:"port"`
	User     string `json:"user"`
	Password string `json:"password"`
	DBName   string `json:"db_name"`
	SSLMode  string `json:"ssl_mode"`
	MaxOpen  int    `json:"max_open"`
	MaxIdle  int    `json:"max_idle"`
}

// RedisConfig представляет конфигурацию Redis
type RedisConfig struct {
	Host     string `json:"host"`
	Port     string `json:"port"`
	Password string `json:"password"`
	DB       int    `json:"db"`
}

// KafkaConfig представляет конфигурацию Kafka
type KafkaConfig struct {
	Brokers []string `json:"brokers"`
	GroupID string   `json:"group_id"`
	Topics  Topics   `json:"topics"`
}

// Topics представляет список топиков Kafka
type Topics struct {
	Orders  string `json:"orders"`
	Coupons string `json:"coupons"`
}

// LoggerConfig представляет конфигурацию логгера
type LoggerConfig struct {
	Level  string `json:"level"`
	Format string `json:"format"`
	File   string `json:"file"`
}

// AuthConfig описывает проверку JWT, выпущенных внешним провайдером идентификации
type AuthConfig struct {
	JWTSecret string `json:"-"`
	Issuer    string `json:"issuer"`
}

// CheckoutConfig хранит параметры расчёта заказа
type CheckoutConfig struct {
	FreeShippingThreshold float64 `json:"free_shipping_threshold"`
	ShippingFee           float64 `json:"shipping_fee"`
	CODFee                float64 `json:"cod_fee"`
	AmountTolerance       float64 `json:"amount_tolerance"` // допустимое расхождение с суммой платёжного шлюза
}

// BargainConfig хранит параметры торга
type BargainConfig struct {
	CouponTTL      time.Duration `json:"coupon_ttl"`
	CodePrefix     string        `json:"code_prefix"`
	CatalogTimeout time.Duration `json:"catalog_timeout"`
}

// PaymentConfig описывает подключение к платёжному шлюзу
type PaymentConfig struct {
	BaseURL        string `json:"base_url"`
	KeyID          string `json:"key_id"`
	KeySecret      string `json:"-"`
	Currency       string `json:"currency"`
	TimeoutSeconds int    `json:"timeout_seconds"`
}

// LLMConfig описывает генератор диалога
type LLMConfig struct {
	APIKey         string `json:"-"`
	Model          string `json:"model"`
	TimeoutSeconds int    `json:"timeout_seconds"`
}

// CatalogConfig хранит настройки кеша каталога
type CatalogConfig struct {
	CacheTTLSeconds int `json:"cache_ttl_seconds"`
}

// AnalyticsConfig хранит настройки аналитики
type AnalyticsConfig struct {
	CacheTTLMinutes       int    `json:"cache_ttl_minutes"`
	MaxRangeDays          int    `json:"max_range_days"`
	DefaultGroupBy        string `json:"default_group_by"`
	DefaultTopLimit       int    `json:"default_top_limit"`
	DefaultCouponLimit    int    `json:"default_coupon_limit"`
	RequestTimeoutSeconds int    `json:"request_timeout_seconds"`
}

// RateLimitConfig описывает настройки rate limiting
type RateLimitConfig struct {
	Enabled       bool   `json:"enabled"`
	Requests      int    `json:"requests"`
	WindowSeconds int    `json:"window_seconds"`
	KeyPrefix     string `json:"key_prefix"`
	ChatRequests  int    `json:"chat_requests"` // отдельный лимит для чата торга
}

// Load загружает конфигурацию из переменных окружения
func Load() *Config {
	return &Config{
		Server: ServerConfig{
			Port:         getEnv("SERVER_PORT", "8080"),
			Host:         getEnv("SERVER_HOST", "0.0.0.0"),
			ReadTimeout:  getEnvAsInt("SERVER_READ_TIMEOUT", 10),
			WriteTimeout: getEnvAsInt("SERVER_WRITE_TIMEOUT", 60),
		},
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "store_user"),
			Password: getEnv("DB_PASSWORD", "store_pass"),
			DBName:   getEnv("DB_NAME", "streetwear_store"),
			SSLMode:  getEnv("DB_SSL_MODE", "disable"),
			MaxOpen:  getEnvAsInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdle:  getEnvAsInt("DB_MAX_IDLE_CONNS", 5),
		},
		Redis: RedisConfig{
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnv("REDIS_PORT", "6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
		},
		Kafka: KafkaConfig{
			Brokers: strings.Split(getEnv("KAFKA_BROKERS", "localhost:9092"), ","),
			GroupID: getEnv("KAFKA_GROUP_ID", "streetwear-store"),
			Topics: Topics{
				Orders:  getEnv("KAFKA_TOPIC_ORDERS", "orders"),
				Coupons: getEnv("KAFKA_TOPIC_COUPONS", "coupons"),
			},
		},
		Logger: LoggerConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
			File:   getEnv("LOG_FILE", ""),
		},
		Auth: AuthConfig{
			JWTSecret: getEnv("JWT_SECRET", ""),
			Issuer:    getEnv("JWT_ISSUER", ""),
		},
		Checkout: CheckoutConfig{
			FreeShippingThreshold: getEnvAsFloat("CHECKOUT_FREE_SHIPPING_THRESHOLD", 1999),
			ShippingFee:           getEnvAsFloat("CHECKOUT_SHIPPING_FEE", 99),
			CODFee:                getEnvAsFloat("CHECKOUT_COD_FEE", 49),
			AmountTolerance:       getEnvAsFloat("CHECKOUT_AMOUNT_TOLERANCE", 1),
		},
		Bargain: BargainConfig{
			CouponTTL:      getEnvAsDuration("BARGAIN_COUPON_TTL", 5*time.Minute),
			CodePrefix:     getEnv("BARGAIN_CODE_PREFIX", "BARGAIN"),
			CatalogTimeout: getEnvAsDuration("BARGAIN_CATALOG_TIMEOUT", 2*time.Second),
		},
		Payment: PaymentConfig{
			BaseURL:        getEnv("PAYMENT_BASE_URL", "https://api.razorpay.com/v1"),
			KeyID:          getEnv("PAYMENT_KEY_ID", ""),
			KeySecret:      getEnv("PAYMENT_KEY_SECRET", ""),
			Currency:       getEnv("PAYMENT_CURRENCY", "INR"),
			TimeoutSeconds: getEnvAsInt("PAYMENT_TIMEOUT_SECONDS", 10),
		},
		LLM: LLMConfig{
			APIKey:         getEnv("GEMINI_API_KEY", ""),
			Model:          getEnv("GEMINI_MODEL", "gemini-2.0-flash-001"),
			TimeoutSeconds: getEnvAsInt("GEMINI_TIMEOUT_SECONDS", 30),
		},
		Catalog: CatalogConfig{
			CacheTTLSeconds: getEnvAsInt("CATALOG_CACHE_TTL_SECONDS", 60),
		},
		Analytics: AnalyticsConfig{
			CacheTTLMinutes:       getEnvAsInt("ANALYTICS_CACHE_TTL_MINUTES", 10),
			MaxRangeDays:          getEnvAsInt("ANALYTICS_MAX_RANGE_DAYS", 365),
			DefaultGroupBy:        getEnv("ANALYTICS_DEFAULT_GROUP_BY", "none"),
			DefaultTopLimit:       getEnvAsInt("ANALYTICS_DEFAULT_TOP_LIMIT", 5),
			DefaultCouponLimit:    getEnvAsInt("ANALYTICS_DEFAULT_COUPON_LIMIT", 50),
			RequestTimeoutSeconds: getEnvAsInt("ANALYTICS_REQUEST_TIMEOUT_SECONDS", 5),
		},
		RateLimit: RateLimitConfig{
			Enabled:       getEnvAsBool("RATE_LIMIT_ENABLED", false),
			Requests:      getEnvAsInt("RATE_LIMIT_REQUESTS", 100),
			WindowSeconds: getEnvAsInt("RATE_LIMIT_WINDOW_SECONDS", 60),
			KeyPrefix:     getEnv("RATE_LIMIT_KEY_PREFIX", "ratelimit"),
			ChatRequests:  getEnvAsInt("RATE_LIMIT_CHAT_REQUESTS", 20),
		},
	}
}

// getEnv получает значение переменной окружения с значением по умолчанию
func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

// getEnvAsInt получает значение переменной окружения как int с значением по умолчанию
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsFloat получает значение переменной окружения как float64 с значением по умолчанию
func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseFloat(valueStr, 64); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsBool получает значение переменной окружения как bool с значением по умолчанию
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := strings.ToLower(getEnv(key, ""))
	if valueStr == "true" || valueStr == "1" || valueStr == "yes" {
		return true
	}
	if valueStr == "false" || valueStr == "0" || valueStr == "no" {
		return false
	}
	return defaultValue
}

// getEnvAsDuration понимает как "5m", так и голое число секунд
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	if value, err := time.ParseDuration(valueStr); err == nil && value > 0 {
		return value
	}
	if seconds, err := strconv.Atoi(valueStr); err == nil && seconds > 0 {
		return time.Duration(seconds) * time.Second
	}
	return defaultValue
}
