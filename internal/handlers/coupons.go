package handlers

import (
	"net/http"
	"strings"

	"streetwear-store/internal/auth"
	"streetwear-store/internal/logger"
	"streetwear-store/internal/models"
	"streetwear-store/internal/services"

	"github.com/go-chi/chi/v5"
)

// CouponHandler обрабатывает проверку купонов и их администрирование.
type CouponHandler struct {
	coupons CouponService
	log     *logger.Logger
}

// NewCouponHandler создаёт новый обработчик купонов.
func NewCouponHandler(coupons CouponService, log *logger.Logger) *CouponHandler {
	return &CouponHandler{
		coupons: coupons,
		log:     log,
	}
}

// ValidateCoupon проверяет купон для суммы заказа текущего пользователя.
// Бизнес-отказ возвращается с кодом 200 и valid=false.
func (h *CouponHandler) ValidateCoupon(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeErrorResponse(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	var req models.ValidateCouponRequest
	if err := decodeJSONBody(w, r, &req); err != nil {
		writeErrorResponse(w, http.StatusBadRequest, err.Error())
		return
	}
	if !req.OrderTotal.IsPositive() {
		writeErrorResponse(w, http.StatusBadRequest, "order_total must be positive")
		return
	}

	result, err := h.coupons.Validate(r.Context(), services.NormalizeCouponCode(req.Code), req.OrderTotal, auth.UserID(r.Context()))
	if err != nil {
		writeServiceError(w, h.log, err, "Failed to validate coupon")
		return
	}

	writeJSONResponse(w, http.StatusOK, result)
}

// CreateCoupon создаёт промо-купон.
func (h *CouponHandler) CreateCoupon(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeErrorResponse(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	var req models.CreateCouponRequest
	if err := decodeJSONBody(w, r, &req); err != nil {
		writeErrorResponse(w, http.StatusBadRequest, err.Error())
		return
	}

	coupon, err := h.coupons.CreateCoupon(r.Context(), &req)
	if err != nil {
		writeServiceError(w, h.log, err, "Failed to create coupon")
		return
	}

	writeJSONResponse(w, http.StatusCreated, coupon)
}

// ListCoupons возвращает список купонов.
func (h *CouponHandler) ListCoupons(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeErrorResponse(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	limit, offset := parsePagination(r)
	coupons, err := h.coupons.ListCoupons(r.Context(), limit, offset)
	if err != nil {
		writeServiceError(w, h.log, err, "Failed to list coupons")
		return
	}

	writeJSONResponse(w, http.StatusOK, coupons)
}

// GetCoupon возвращает купон по коду.
func (h *CouponHandler) GetCoupon(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeErrorResponse(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	code, ok := couponCodeParam(w, r)
	if !ok {
		return
	}

	coupon, err := h.coupons.GetCoupon(r.Context(), code)
	if err != nil {
		writeServiceError(w, h.log, err, "Failed to get coupon")
		return
	}

	writeJSONResponse(w, http.StatusOK, coupon)
}

// UpdateCoupon обновляет промо-купон. Купоны торга не редактируются.
func (h *CouponHandler) UpdateCoupon(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPut {
		writeErrorResponse(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	code, ok := couponCodeParam(w, r)
	if !ok {
		return
	}

	var req models.UpdateCouponRequest
	if err := decodeJSONBody(w, r, &req); err != nil {
		writeErrorResponse(w, http.StatusBadRequest, err.Error())
		return
	}

	coupon, err := h.coupons.UpdateCoupon(r.Context(), code, &req)
	if err != nil {
		writeServiceError(w, h.log, err, "Failed to update coupon")
		return
	}

	writeJSONResponse(w, http.StatusOK, coupon)
}

// DeactivateCoupon выключает купон; удаления нет.
func (h *CouponHandler) DeactivateCoupon(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodDelete {
		writeErrorResponse(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	code, ok := couponCodeParam(w, r)
	if !ok {
		return
	}

	if err := h.coupons.DeactivateCoupon(r.Context(), code); err != nil {
		writeServiceError(w, h.log, err, "Failed to deactivate coupon")
		return
	}

	writeJSONResponse(w, http.StatusOK, map[string]string{"message": "Coupon deactivated"})
}

func couponCodeParam(w http.ResponseWriter, r *http.Request) (string, bool) {
	code := services.NormalizeCouponCode(chi.URLParam(r, "code"))
	if code == "" || len(code) > 64 || strings.ContainsAny(code, "/ ") {
		writeErrorResponse(w, http.StatusBadRequest, "Invalid coupon code")
		return "", false
	}
	return code, true
}
