package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Product представляет позицию каталога. Ядру торга нужны только цена и потолок скидки.
type Product struct {
	ID                 uuid.UUID       `json:"id" db:"id"`
	Name               string          `json:"name" db:"name"`
	SellingPrice       decimal.Decimal `json:"selling_price" db:"selling_price"`
	MaxBargainDiscount decimal.Decimal `json:"max_bargain_discount" db:"max_bargain_discount"`
	IsActive           bool            `json:"is_active" db:"is_active"`
	CreatedAt          time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt          time.Time       `json:"updated_at" db:"updated_at"`
}

// UpsertProductRequest описывает создание или обновление товара из админки
type UpsertProductRequest struct {
	Name               string          `json:"name" validate:"required,max=200"`
	SellingPrice       decimal.Decimal `json:"selling_price"`
	MaxBargainDiscount decimal.Decimal `json:"max_bargain_discount"`
	IsActive           bool            `json:"is_active"`
}
