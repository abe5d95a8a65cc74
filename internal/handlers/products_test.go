package handlers

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"streetwear-store/internal/apperror"
	"streetwear-store/internal/models"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type stubCatalogService struct {
	product  *models.Product
	products []*models.Product
	err      error
	gotReq   *models.UpsertProductRequest
	gotID    uuid.UUID
}

func (s *stubCatalogService) CreateProduct(ctx context.Context, req *models.UpsertProductRequest) (*models.Product, error) {
	s.gotReq = req
	return s.product, s.err
}
func (s *stubCatalogService) UpdateProduct(ctx context.Context, id uuid.UUID, req *models.UpsertProductRequest) (*models.Product, error) {
	s.gotID, s.gotReq = id, req
	return s.product, s.err
}
func (s *stubCatalogService) GetProduct(ctx context.Context, id uuid.UUID) (*models.Product, error) {
	s.gotID = id
	return s.product, s.err
}
func (s *stubCatalogService) ListProducts(ctx context.Context, limit, offset int) ([]*models.Product, error) {
	return s.products, s.err
}

func testProduct() *models.Product {
	return &models.Product{
		ID:                 uuid.New(),
		Name:               "Oversized Hoodie",
		SellingPrice:       decimal.NewFromInt(1899),
		MaxBargainDiscount: decimal.NewFromInt(150),
		IsActive:           true,
	}
}

func TestProductHandler_CreateProduct(t *testing.T) {
	svc := &stubCatalogService{product: testProduct()}
	h := NewProductHandler(svc, testLogger())

	body := `{"name":"Oversized Hoodie","selling_price":"1899","max_bargain_discount":"150","is_active":true}`
	rr := httptest.NewRecorder()
	h.CreateProduct(rr, httptest.NewRequest(http.MethodPost, "/api/admin/products", bytes.NewBufferString(body)))

	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", rr.Code)
	}
	if !svc.gotReq.MaxBargainDiscount.Equal(decimal.NewFromInt(150)) {
		t.Fatalf("bargain ceiling not passed through: %s", svc.gotReq.MaxBargainDiscount)
	}
}

func TestProductHandler_CreateProduct_MissingName(t *testing.T) {
	h := NewProductHandler(&stubCatalogService{}, testLogger())
	rr := httptest.NewRecorder()
	h.CreateProduct(rr, httptest.NewRequest(http.MethodPost, "/api/admin/products", bytes.NewBufferString(`{"selling_price":"10"}`)))
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
}

func TestProductHandler_UpdateAndGet(t *testing.T) {
	product := testProduct()
	svc := &stubCatalogService{product: product, products: []*models.Product{product}}
	h := NewProductHandler(svc, testLogger())
	id := product.ID.String()

	rr := httptest.NewRecorder()
	h.UpdateProduct(rr, withURLParam(httptest.NewRequest(http.MethodPut, "/api/admin/products/"+id, bytes.NewBufferString(`{"name":"Oversized Hoodie","selling_price":"1799","max_bargain_discount":"120","is_active":true}`)), "id", id))
	if rr.Code != http.StatusOK || svc.gotID != product.ID {
		t.Fatalf("update: expected 200 for %s, got %d", id, rr.Code)
	}

	rr = httptest.NewRecorder()
	h.GetProduct(rr, withURLParam(httptest.NewRequest(http.MethodGet, "/api/admin/products/"+id, nil), "id", id))
	if rr.Code != http.StatusOK {
		t.Fatalf("get: expected 200, got %d", rr.Code)
	}

	rr = httptest.NewRecorder()
	h.ListProducts(rr, httptest.NewRequest(http.MethodGet, "/api/admin/products", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("list: expected 200, got %d", rr.Code)
	}
}

func TestProductHandler_Errors(t *testing.T) {
	h := NewProductHandler(&stubCatalogService{err: apperror.NotFound("product not found", nil)}, testLogger())
	id := uuid.New().String()

	rr := httptest.NewRecorder()
	h.GetProduct(rr, withURLParam(httptest.NewRequest(http.MethodGet, "/", nil), "id", id))
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rr.Code)
	}

	rr = httptest.NewRecorder()
	h.GetProduct(rr, withURLParam(httptest.NewRequest(http.MethodGet, "/", nil), "id", "42"))
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad id, got %d", rr.Code)
	}

	rr = httptest.NewRecorder()
	h.ListProducts(rr, httptest.NewRequest(http.MethodDelete, "/", nil))
	if rr.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", rr.Code)
	}
}
