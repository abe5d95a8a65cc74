package handlers

import (
	"net/http"

	"streetwear-store/internal/logger"
	"streetwear-store/internal/models"
)

// ProductHandler обслуживает каталог для бэк-офиса.
type ProductHandler struct {
	catalog CatalogService
	log     *logger.Logger
}

// NewProductHandler создаёт обработчик каталога.
func NewProductHandler(catalog CatalogService, log *logger.Logger) *ProductHandler {
	return &ProductHandler{catalog: catalog, log: log}
}

// CreateProduct добавляет товар.
func (h *ProductHandler) CreateProduct(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeErrorResponse(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	var req models.UpsertProductRequest
	if err := decodeJSONBody(w, r, &req); err != nil {
		writeErrorResponse(w, http.StatusBadRequest, err.Error())
		return
	}

	product, err := h.catalog.CreateProduct(r.Context(), &req)
	if err != nil {
		writeServiceError(w, h.log, err, "Failed to create product")
		return
	}

	writeJSONResponse(w, http.StatusCreated, product)
}

// UpdateProduct меняет цену, потолок скидки торга и активность товара.
func (h *ProductHandler) UpdateProduct(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPut {
		writeErrorResponse(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	id, err := uuidParam(r, "id")
	if err != nil {
		writeErrorResponse(w, http.StatusBadRequest, "Invalid product ID")
		return
	}

	var req models.UpsertProductRequest
	if err := decodeJSONBody(w, r, &req); err != nil {
		writeErrorResponse(w, http.StatusBadRequest, err.Error())
		return
	}

	product, err := h.catalog.UpdateProduct(r.Context(), id, &req)
	if err != nil {
		writeServiceError(w, h.log, err, "Failed to update product")
		return
	}

	writeJSONResponse(w, http.StatusOK, product)
}

// GetProduct возвращает товар.
func (h *ProductHandler) GetProduct(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeErrorResponse(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	id, err := uuidParam(r, "id")
	if err != nil {
		writeErrorResponse(w, http.StatusBadRequest, "Invalid product ID")
		return
	}

	product, err := h.catalog.GetProduct(r.Context(), id)
	if err != nil {
		writeServiceError(w, h.log, err, "Failed to get product")
		return
	}

	writeJSONResponse(w, http.StatusOK, product)
}

// ListProducts возвращает страницу каталога.
func (h *ProductHandler) ListProducts(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeErrorResponse(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	limit, offset := parsePagination(r)
	products, err := h.catalog.ListProducts(r.Context(), limit, offset)
	if err != nil {
		writeServiceError(w, h.log, err, "Failed to list products")
		return
	}

	writeJSONResponse(w, http.StatusOK, products)
}
