package services

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"streetwear-store/internal/apperror"
	"streetwear-store/internal/config"
	"streetwear-store/internal/database"
	"streetwear-store/internal/logger"
	"streetwear-store/internal/models"
	"streetwear-store/internal/redis"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

const productColumns = `id, name, selling_price, max_bargain_discount, is_active, created_at, updated_at`

type productCache interface {
	GetMultiple(ctx context.Context, keys []string) (map[string][]byte, error)
	SetMultiple(ctx context.Context, values map[string]interface{}, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
}

// CatalogService читает товары с кешем в Redis и обслуживает админку каталога.
type CatalogService struct {
	db    *database.DB
	cache productCache
	log   *logger.Logger
	ttl   time.Duration
}

// NewCatalogService создаёт сервис каталога. Без Redis работает напрямую с БД.
func NewCatalogService(db *database.DB, redisClient *redis.Client, log *logger.Logger, cfg *config.CatalogConfig) *CatalogService {
	s := &CatalogService{db: db, log: log, ttl: time.Minute}
	if redisClient != nil {
		s.cache = redisClient
	}
	if cfg != nil && cfg.CacheTTLSeconds > 0 {
		s.ttl = time.Duration(cfg.CacheTTLSeconds) * time.Second
	}
	return s
}

func productKey(id uuid.UUID) string {
	return redis.GenerateKey(redis.KeyPrefixProduct, id.String())
}

// GetProductsByIDs возвращает найденные товары по id; отсутствующих в ответе нет.
func (s *CatalogService) GetProductsByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*models.Product, error) {
	result := make(map[uuid.UUID]*models.Product, len(ids))
	unique := make([]uuid.UUID, 0, len(ids))
	seen := make(map[uuid.UUID]bool, len(ids))
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			unique = append(unique, id)
		}
	}
	if len(unique) == 0 {
		return result, nil
	}

	missing := unique
	if s.cache != nil {
		missing = s.readCached(ctx, unique, result)
	}
	if len(missing) == 0 {
		return result, nil
	}

	strIDs := make([]string, len(missing))
	for i, id := range missing {
		strIDs[i] = id.String()
	}

	rows, err := s.db.QueryContext(ctx, `SELECT `+productColumns+` FROM products WHERE id = ANY($1)`, pq.Array(strIDs))
	if err != nil {
		return nil, fmt.Errorf("failed to load products: %w", err)
	}
	defer rows.Close()

	fresh := make(map[string]interface{})
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan product: %w", err)
		}
		result[p.ID] = p
		fresh[productKey(p.ID)] = p
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate products: %w", err)
	}

	if s.cache != nil && len(fresh) > 0 {
		if err := s.cache.SetMultiple(ctx, fresh, s.ttl); err != nil {
			s.log.WithError(err).Warn("Failed to cache products")
		}
	}
	return result, nil
}

func (s *CatalogService) readCached(ctx context.Context, ids []uuid.UUID, result map[uuid.UUID]*models.Product) []uuid.UUID {
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = productKey(id)
	}

	cached, err := s.cache.GetMultiple(ctx, keys)
	if err != nil {
		s.log.WithError(err).Warn("Product cache unavailable, reading from database")
		return ids
	}

	var missing []uuid.UUID
	for i, id := range ids {
		raw, ok := cached[keys[i]]
		if !ok {
			missing = append(missing, id)
			continue
		}
		var p models.Product
		if err := json.Unmarshal(raw, &p); err != nil {
			missing = append(missing, id)
			continue
		}
		result[id] = &p
	}
	return missing
}

// CreateProduct добавляет товар в каталог.
func (s *CatalogService) CreateProduct(ctx context.Context, req *models.UpsertProductRequest) (*models.Product, error) {
	if err := validateProductPayload(req); err != nil {
		return nil, err
	}

	now := time.Now()
	p := &models.Product{
		ID:                 uuid.New(),
		Name:               req.Name,
		SellingPrice:       req.SellingPrice,
		MaxBargainDiscount: req.MaxBargainDiscount,
		IsActive:           req.IsActive,
		CreatedAt:          now,
		UpdatedAt:          now,
	}

	query := `
		INSERT INTO products (id, name, selling_price, max_bargain_discount, is_active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	if _, err := s.db.ExecContext(ctx, query, p.ID, p.Name, p.SellingPrice, p.MaxBargainDiscount, p.IsActive,
		p.CreatedAt, p.UpdatedAt); err != nil {
		return nil, fmt.Errorf("failed to create product: %w", err)
	}

	s.log.WithField("product_id", p.ID).Info("Product created")
	return p, nil
}

// UpdateProduct меняет цену, потолок скидки торга и видимость товара.
func (s *CatalogService) UpdateProduct(ctx context.Context, id uuid.UUID, req *models.UpsertProductRequest) (*models.Product, error) {
	if err := validateProductPayload(req); err != nil {
		return nil, err
	}

	query := `
		UPDATE products
		SET name = $1, selling_price = $2, max_bargain_discount = $3, is_active = $4, updated_at = $5
		WHERE id = $6
	`
	result, err := s.db.ExecContext(ctx, query, req.Name, req.SellingPrice, req.MaxBargainDiscount, req.IsActive, time.Now(), id)
	if err != nil {
		return nil, fmt.Errorf("failed to update product: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return nil, apperror.NotFound("product not found", nil)
	}

	if s.cache != nil {
		if err := s.cache.Delete(ctx, productKey(id)); err != nil {
			s.log.WithError(err).WithField("product_id", id).Warn("Failed to invalidate product cache")
		}
	}

	return s.GetProduct(ctx, id)
}

// GetProduct возвращает товар из БД.
func (s *CatalogService) GetProduct(ctx context.Context, id uuid.UUID) (*models.Product, error) {
	p, err := scanProduct(s.db.QueryRowContext(ctx, `SELECT `+productColumns+` FROM products WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("product not found", err)
		}
		return nil, fmt.Errorf("failed to get product: %w", err)
	}
	return p, nil
}

// ListProducts возвращает страницу каталога.
func (s *CatalogService) ListProducts(ctx context.Context, limit, offset int) ([]*models.Product, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	rows, err := s.db.QueryContext(ctx, `SELECT `+productColumns+` FROM products ORDER BY created_at DESC LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list products: %w", err)
	}
	defer rows.Close()

	var products []*models.Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan product: %w", err)
		}
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate products: %w", err)
	}
	return products, nil
}

func scanProduct(row rowScanner) (*models.Product, error) {
	var p models.Product
	if err := row.Scan(&p.ID, &p.Name, &p.SellingPrice, &p.MaxBargainDiscount, &p.IsActive, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return nil, err
	}
	return &p, nil
}

func validateProductPayload(req *models.UpsertProductRequest) error {
	if req.Name == "" {
		return apperror.Validation("name is required", nil)
	}
	if !req.SellingPrice.IsPositive() {
		return apperror.Validation("selling_price must be positive", nil)
	}
	if req.MaxBargainDiscount.IsNegative() || req.MaxBargainDiscount.GreaterThan(req.SellingPrice) {
		return apperror.Validation("max_bargain_discount must be between 0 and selling_price", nil)
	}
	return nil
}
