package storage

// Schema holds the DDL applied by cmd/migrate and by the integration tests.
var Schema = []string{
	`CREATE TABLE IF NOT EXISTS stock_records (
		store_id         VARCHAR(64)  NOT NULL,
		product_id       VARCHAR(64)  NOT NULL,
		quantity         INT          NOT NULL DEFAULT 0,
		safety_threshold INT          NOT NULL DEFAULT 0,
		version          INT          NOT NULL DEFAULT 0,
		created_at       DATETIME     NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at       DATETIME     NOT NULL DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP,
		PRIMARY KEY (store_id, product_id),
		CONSTRAINT chk_stock_non_negative CHECK (quantity >= 0)
	)`,
	`CREATE TABLE IF NOT EXISTS inventory_transactions (
		id             CHAR(36)     NOT NULL,
		store_id       VARCHAR(64)  NOT NULL,
		product_id     VARCHAR(64)  NOT NULL,
		quantity_delta INT          NOT NULL,
		reference_type VARCHAR(16)  NOT NULL,
		reference_id   CHAR(36)     NOT NULL,
		order_number   VARCHAR(64)  NOT NULL,
		actor_user_id  VARCHAR(64)  NOT NULL,
		created_at     DATETIME     NOT NULL DEFAULT CURRENT_TIMESTAMP,
		PRIMARY KEY (id),
		INDEX idx_inv_tx_reference (reference_id),
		INDEX idx_inv_tx_product (store_id, product_id)
	)`,
	`CREATE TABLE IF NOT EXISTS orders (
		id                   CHAR(36)     NOT NULL,
		order_number         VARCHAR(64)  NOT NULL,
		store_id             VARCHAR(64)  NOT NULL,
		user_id              VARCHAR(64)  NOT NULL,
		order_type           VARCHAR(16)  NOT NULL,
		status               VARCHAR(16)  NOT NULL,
		payment_method       VARCHAR(16)  NOT NULL,
		payment_status       VARCHAR(16)  NOT NULL,
		subtotal             BIGINT       NOT NULL,
		tax_amount           BIGINT       NOT NULL,
		delivery_fee         BIGINT       NOT NULL,
		coupon_discount      BIGINT       NOT NULL,
		points_used          BIGINT       NOT NULL,
		total_amount         BIGINT       NOT NULL,
		applied_coupon_id    CHAR(36)     NULL,
		needs_reconciliation TINYINT(1)   NOT NULL DEFAULT 0,
		created_at           DATETIME     NOT NULL,
		updated_at           DATETIME     NOT NULL,
		PRIMARY KEY (id),
		UNIQUE KEY uq_order_number (order_number),
		INDEX idx_orders_store_status (store_id, status)
	)`,
	`CREATE TABLE IF NOT EXISTS order_items (
		id            BIGINT       NOT NULL AUTO_INCREMENT,
		order_id      CHAR(36)     NOT NULL,
		product_id    VARCHAR(64)  NOT NULL,
		quantity      INT          NOT NULL,
		unit_price    BIGINT       NOT NULL,
		discount_rate DOUBLE       NOT NULL DEFAULT 0,
		subtotal      BIGINT       NOT NULL,
		PRIMARY KEY (id),
		INDEX idx_order_items_order (order_id)
	)`,
	`CREATE TABLE IF NOT EXISTS user_coupons (
		id              CHAR(36)    NOT NULL,
		user_id         VARCHAR(64) NOT NULL,
		coupon_id       VARCHAR(64) NOT NULL,
		discount_amount BIGINT      NOT NULL,
		used            TINYINT(1)  NOT NULL DEFAULT 0,
		used_order_id   CHAR(36)    NULL,
		used_at         DATETIME    NULL,
		created_at      DATETIME    NOT NULL DEFAULT CURRENT_TIMESTAMP,
		PRIMARY KEY (id),
		INDEX idx_user_coupons_user (user_id)
	)`,
	`CREATE TABLE IF NOT EXISTS points_ledger (
		id             CHAR(36)    NOT NULL,
		user_id        VARCHAR(64) NOT NULL,
		delta          BIGINT      NOT NULL,
		reference_type VARCHAR(16) NOT NULL,
		reference_id   CHAR(36)    NOT NULL,
		created_at     DATETIME    NOT NULL DEFAULT CURRENT_TIMESTAMP,
		PRIMARY KEY (id),
		INDEX idx_points_user (user_id),
		UNIQUE KEY uq_points_reference (reference_type, reference_id)
	)`,
	`CREATE TABLE IF NOT EXISTS refund_requests (
		id               CHAR(36)     NOT NULL,
		order_id         CHAR(36)     NOT NULL,
		store_id         VARCHAR(64)  NOT NULL,
		requested_amount BIGINT       NOT NULL,
		approved_amount  BIGINT       NULL,
		reason           VARCHAR(512) NOT NULL DEFAULT '',
		status           VARCHAR(16)  NOT NULL DEFAULT 'pending',
		admin_notes      VARCHAR(512) NOT NULL DEFAULT '',
		processed_by     VARCHAR(64)  NOT NULL DEFAULT '',
		processed_at     DATETIME     NULL,
		created_at       DATETIME     NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at       DATETIME     NOT NULL DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP,
		PRIMARY KEY (id),
		INDEX idx_refunds_order (order_id)
	)`,
}
