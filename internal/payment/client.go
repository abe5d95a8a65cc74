package payment

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"streetwear-store/internal/apperror"
	"streetwear-store/internal/config"
	"streetwear-store/internal/logger"
)

// ErrNotConfigured возвращается, когда ключи шлюза не заданы.
var ErrNotConfigured = errors.New("payment gateway is not configured")

// PaymentStatusCaptured задаёт статус платежа, по которому создаётся оплаченный заказ.
const PaymentStatusCaptured = "captured"

// Order представляет заказ на стороне шлюза.
type Order struct {
	ID        string            `json:"id"`
	Amount    int64             `json:"amount"`
	Currency  string            `json:"currency"`
	Receipt   string            `json:"receipt"`
	Status    string            `json:"status"`
	Notes     map[string]string `json:"notes,omitempty"`
	CreatedAt int64             `json:"created_at"` // unix-секунды
}

// CreatedTime возвращает время создания заказа в шлюзе; нулевое, если шлюз его не прислал.
func (o *Order) CreatedTime() time.Time {
	if o == nil || o.CreatedAt <= 0 {
		return time.Time{}
	}
	return time.Unix(o.CreatedAt, 0).UTC()
}

// Payment представляет платёж на стороне шлюза. Amount в минимальных единицах валюты.
type Payment struct {
	ID       string `json:"id"`
	OrderID  string `json:"order_id"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
	Status   string `json:"status"`
}

// Client ходит в REST API платёжного шлюза (Razorpay-совместимый).
type Client struct {
	baseURL   string
	keyID     string
	keySecret string
	currency  string
	client    *http.Client
	log       *logger.Logger
}

// NewClient создаёт клиента шлюза.
func NewClient(cfg *config.PaymentConfig, log *logger.Logger) *Client {
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL:   strings.TrimRight(cfg.BaseURL, "/"),
		keyID:     cfg.KeyID,
		keySecret: cfg.KeySecret,
		currency:  cfg.Currency,
		client:    &http.Client{Timeout: timeout},
		log:       log,
	}
}

// KeyID возвращает публичный ключ для формы оплаты на клиенте.
func (c *Client) KeyID() string {
	return c.keyID
}

// Currency возвращает валюту заказов.
func (c *Client) Currency() string {
	return c.currency
}

// Configured сообщает, заданы ли ключи.
func (c *Client) Configured() bool {
	return c.keyID != "" && c.keySecret != ""
}

// CreateOrder регистрирует заказ в шлюзе на сумму amount (в пайсах).
func (c *Client) CreateOrder(ctx context.Context, amount int64, receipt string, notes map[string]string) (*Order, error) {
	if !c.Configured() {
		return nil, apperror.Unavailable("payment gateway is not configured", ErrNotConfigured)
	}
	if amount <= 0 {
		return nil, apperror.Validation("payment amount must be positive", nil)
	}

	payload := map[string]interface{}{
		"amount":   amount,
		"currency": c.currency,
		"receipt":  receipt,
	}
	if len(notes) > 0 {
		payload["notes"] = notes
	}

	var order Order
	if err := c.do(ctx, http.MethodPost, "/orders", payload, &order); err != nil {
		return nil, err
	}

	c.log.WithFields(map[string]interface{}{
		"gateway_order_id": order.ID,
		"receipt":          receipt,
		"amount":           amount,
	}).Info("Gateway order created")

	return &order, nil
}

// FetchOrder получает заказ шлюза по ID.
func (c *Client) FetchOrder(ctx context.Context, orderID string) (*Order, error) {
	if !c.Configured() {
		return nil, apperror.Unavailable("payment gateway is not configured", ErrNotConfigured)
	}
	if orderID == "" {
		return nil, apperror.Validation("gateway order id is required", nil)
	}

	var o Order
	if err := c.do(ctx, http.MethodGet, "/orders/"+url.PathEscape(orderID), nil, &o); err != nil {
		return nil, err
	}
	return &o, nil
}

// FetchPayment получает платёж по ID.
func (c *Client) FetchPayment(ctx context.Context, paymentID string) (*Payment, error) {
	if !c.Configured() {
		return nil, apperror.Unavailable("payment gateway is not configured", ErrNotConfigured)
	}
	if paymentID == "" {
		return nil, apperror.Validation("payment id is required", nil)
	}

	var p Payment
	if err := c.do(ctx, http.MethodGet, "/payments/"+url.PathEscape(paymentID), nil, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// VerifySignature проверяет подпись checkout: HMAC-SHA256(orderID|paymentID) секретом ключа в hex.
func (c *Client) VerifySignature(orderID, paymentID, signature string) bool {
	if c.keySecret == "" || orderID == "" || paymentID == "" || signature == "" {
		return false
	}
	expected := Sign(c.keySecret, orderID, paymentID)
	return hmac.Equal([]byte(expected), []byte(strings.ToLower(signature)))
}

// Sign считает подпись так же, как шлюз.
func Sign(secret, orderID, paymentID string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(orderID + "|" + paymentID))
	return hex.EncodeToString(mac.Sum(nil))
}

func (c *Client) do(ctx context.Context, method, path string, payload interface{}, out interface{}) error {
	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("failed to encode gateway request: %w", err)
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to build gateway request: %w", err)
	}
	req.SetBasicAuth(c.keyID, c.keySecret)
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return apperror.Unavailable("payment gateway is unreachable", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		gatewayErr := fmt.Errorf("gateway %s %s returned status %d: %s", method, path, resp.StatusCode, string(snippet))
		c.log.WithError(gatewayErr).Warn("Payment gateway request failed")

		switch {
		case resp.StatusCode == http.StatusNotFound:
			return apperror.NotFound("payment not found", gatewayErr)
		case resp.StatusCode == http.StatusUnauthorized:
			return apperror.Unavailable("payment gateway rejected credentials", gatewayErr)
		case resp.StatusCode >= 500:
			return apperror.Unavailable("payment gateway error", gatewayErr)
		default:
			return apperror.Validation("payment gateway rejected the request", gatewayErr)
		}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode gateway response: %w", err)
	}
	return nil
}
