package database

// schema идемпотентен: каждая команда безопасна при повторном запуске
var schema = []string{
	`CREATE TABLE IF NOT EXISTS products (
		id                   UUID PRIMARY KEY,
		name                 TEXT NOT NULL,
		selling_price        NUMERIC(12,2) NOT NULL CHECK (selling_price >= 0),
		max_bargain_discount NUMERIC(12,2) NOT NULL DEFAULT 0 CHECK (max_bargain_discount >= 0),
		is_active            BOOLEAN NOT NULL DEFAULT TRUE,
		created_at           TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at           TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS coupons (
		code                 TEXT PRIMARY KEY,
		discount_type        TEXT NOT NULL CHECK (discount_type IN ('fixed', 'percentage')),
		discount_value       NUMERIC(12,2) NOT NULL CHECK (discount_value >= 0),
		max_discount         NUMERIC(12,2),
		min_order_value      NUMERIC(12,2),
		valid_from           TIMESTAMPTZ NOT NULL DEFAULT now(),
		valid_until          TIMESTAMPTZ,
		max_uses             INTEGER CHECK (max_uses > 0),
		used_count           INTEGER NOT NULL DEFAULT 0 CHECK (used_count >= 0),
		for_new_users_only   BOOLEAN NOT NULL DEFAULT FALSE,
		user_id              TEXT,
		is_bargain_generated BOOLEAN NOT NULL DEFAULT FALSE,
		is_active            BOOLEAN NOT NULL DEFAULT TRUE,
		created_at           TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at           TIMESTAMPTZ NOT NULL DEFAULT now(),
		CHECK (max_uses IS NULL OR used_count <= max_uses),
		CHECK (NOT is_bargain_generated OR (max_uses = 1 AND user_id IS NOT NULL))
	)`,
	`CREATE TABLE IF NOT EXISTS bargain_sessions (
		id              UUID PRIMARY KEY,
		user_id         TEXT NOT NULL,
		coupon_code     TEXT NOT NULL UNIQUE REFERENCES coupons(code),
		cart_value      NUMERIC(12,2) NOT NULL,
		discount_amount NUMERIC(12,2) NOT NULL,
		used            BOOLEAN NOT NULL DEFAULT FALSE,
		expires_at      TIMESTAMPTZ NOT NULL,
		created_at      TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_bargain_sessions_user ON bargain_sessions (user_id, used, expires_at)`,
	`CREATE TABLE IF NOT EXISTS orders (
		id                 UUID PRIMARY KEY,
		order_number       TEXT NOT NULL UNIQUE,
		user_id            TEXT,
		shipping_address   JSONB NOT NULL,
		subtotal           NUMERIC(12,2) NOT NULL,
		shipping_cost      NUMERIC(12,2) NOT NULL,
		discount           NUMERIC(12,2) NOT NULL,
		cod_fee            NUMERIC(12,2) NOT NULL,
		total              NUMERIC(12,2) NOT NULL CHECK (total > 0),
		coupon_code        TEXT REFERENCES coupons(code),
		payment_method     TEXT NOT NULL,
		payment_status     TEXT NOT NULL,
		gateway_order_id   TEXT UNIQUE,
		gateway_payment_id TEXT UNIQUE,
		status             TEXT NOT NULL,
		created_at         TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at         TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_orders_user ON orders (user_id, created_at DESC)`,
	`CREATE TABLE IF NOT EXISTS order_items (
		id          UUID PRIMARY KEY,
		order_id    UUID NOT NULL REFERENCES orders(id),
		product_id  UUID NOT NULL REFERENCES products(id),
		name        TEXT NOT NULL,
		quantity    INTEGER NOT NULL CHECK (quantity > 0),
		unit_price  NUMERIC(12,2) NOT NULL,
		total_price NUMERIC(12,2) NOT NULL
	)`,
}
