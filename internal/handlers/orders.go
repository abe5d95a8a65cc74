package handlers

import (
	"net/http"

	"streetwear-store/internal/auth"
	"streetwear-store/internal/logger"
	"streetwear-store/internal/models"
	"streetwear-store/internal/services"
)

// OrderHandler представляет обработчик заказов
type OrderHandler struct {
	orders OrderService
	log    *logger.Logger
}

// NewOrderHandler создает новый обработчик заказов
func NewOrderHandler(orders OrderService, log *logger.Logger) *OrderHandler {
	return &OrderHandler{
		orders: orders,
		log:    log,
	}
}

// CreateCODOrder создает заказ с оплатой при получении
func (h *OrderHandler) CreateCODOrder(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeErrorResponse(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	var req models.CreateOrderRequest
	if err := decodeJSONBody(w, r, &req); err != nil {
		writeErrorResponse(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.PaymentMethod == "" {
		req.PaymentMethod = models.PaymentMethodCOD
	}

	order, err := h.orders.CreateCODOrder(r.Context(), &req, auth.UserID(r.Context()))
	if err != nil {
		writeServiceError(w, h.log, err, "Failed to create order")
		return
	}

	writeJSONResponse(w, http.StatusCreated, order)
}

// CreatePaymentOrder создает заказ в платёжном шлюзе на пересчитанную сумму
func (h *OrderHandler) CreatePaymentOrder(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeErrorResponse(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	var req models.CreatePaymentOrderRequest
	if err := decodeJSONBody(w, r, &req); err != nil {
		writeErrorResponse(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.PaymentMethod == "" {
		req.PaymentMethod = models.PaymentMethodOnline
	}

	paymentOrder, err := h.orders.CreatePaymentOrder(r.Context(), &req, auth.UserID(r.Context()))
	if err != nil {
		writeServiceError(w, h.log, err, "Failed to create payment order")
		return
	}

	writeJSONResponse(w, http.StatusCreated, paymentOrder)
}

// VerifyPayment проверяет подпись и сумму оплаты и создаёт оплаченный заказ
func (h *OrderHandler) VerifyPayment(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeErrorResponse(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	var req models.VerifyPaymentRequest
	if err := decodeJSONBody(w, r, &req); err != nil {
		writeErrorResponse(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.PaymentMethod == "" {
		req.PaymentMethod = models.PaymentMethodOnline
	}

	order, err := h.orders.VerifyPaymentAndCreateOrder(r.Context(), &req, auth.UserID(r.Context()))
	if err != nil {
		writeServiceError(w, h.log, err, "Failed to verify payment")
		return
	}

	writeJSONResponse(w, http.StatusCreated, order)
}

// GetOrder получает заказ по ID. Чужой заказ для покупателя выглядит как несуществующий.
func (h *OrderHandler) GetOrder(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeErrorResponse(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	orderID, err := uuidParam(r, "id")
	if err != nil {
		writeErrorResponse(w, http.StatusBadRequest, "Invalid order ID")
		return
	}

	order, err := h.orders.GetOrder(r.Context(), orderID)
	if err != nil {
		writeServiceError(w, h.log, err, "Failed to get order")
		return
	}

	identity, _ := auth.FromContext(r.Context())
	if !identity.IsAdmin() && !services.OrderBelongsTo(order, identity.UserID) {
		writeErrorResponse(w, http.StatusNotFound, "order not found")
		return
	}

	writeJSONResponse(w, http.StatusOK, order)
}

// GetOrders получает список заказов: покупатель видит свои, администратор все
func (h *OrderHandler) GetOrders(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeErrorResponse(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	identity, ok := auth.FromContext(r.Context())
	if !ok {
		writeErrorResponse(w, http.StatusUnauthorized, "authorization token required")
		return
	}

	query := r.URL.Query()

	var status *models.OrderStatus
	if statusStr := query.Get("status"); statusStr != "" {
		s := models.OrderStatus(statusStr)
		if !s.Valid() {
			writeErrorResponse(w, http.StatusBadRequest, "Invalid status")
			return
		}
		status = &s
	}

	userID := &identity.UserID
	if identity.IsAdmin() {
		userID = nil
		if filter := query.Get("user_id"); filter != "" {
			userID = &filter
		}
	}

	limit, offset := parsePagination(r)
	orders, err := h.orders.ListOrders(r.Context(), userID, status, limit, offset)
	if err != nil {
		writeServiceError(w, h.log, err, "Failed to get orders")
		return
	}

	writeJSONResponse(w, http.StatusOK, orders)
}

// UpdateOrderStatus обновляет статус заказа из бэк-офиса
func (h *OrderHandler) UpdateOrderStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPut {
		writeErrorResponse(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	orderID, err := uuidParam(r, "id")
	if err != nil {
		writeErrorResponse(w, http.StatusBadRequest, "Invalid order ID")
		return
	}

	var req models.UpdateOrderStatusRequest
	if err := decodeJSONBody(w, r, &req); err != nil {
		writeErrorResponse(w, http.StatusBadRequest, err.Error())
		return
	}

	order, err := h.orders.UpdateOrderStatus(r.Context(), orderID, &req)
	if err != nil {
		writeServiceError(w, h.log, err, "Failed to update order status")
		return
	}

	h.log.WithField("order_id", orderID).WithField("new_status", order.Status).Info("Order status updated")
	writeJSONResponse(w, http.StatusOK, order)
}
