package migrations

import (
	"database/sql"
	"fmt"
	"time"
)

// retryDelay is the pause between attempts while the database is still starting.
var retryDelay = 1 * time.Second

var schema = []struct {
	table string
	query string
}{
	{"users", `
		CREATE TABLE IF NOT EXISTS users (
			id BIGINT AUTO_INCREMENT PRIMARY KEY,
			username VARCHAR(255) NOT NULL UNIQUE,
			email VARCHAR(255) NOT NULL UNIQUE,
			role ENUM('user', 'admin') NOT NULL DEFAULT 'user'
		);
	`},
	{"products", `
		CREATE TABLE IF NOT EXISTS products (
			id BIGINT AUTO_INCREMENT PRIMARY KEY,
			name VARCHAR(255) NOT NULL,
			description TEXT NOT NULL,
			price DECIMAL(10, 2) NOT NULL,
			stock INT NOT NULL DEFAULT 0,
			sku VARCHAR(64) NULL UNIQUE,
			is_active BOOLEAN NOT NULL DEFAULT TRUE,
			CHECK (stock >= 0)
		);
	`},
	{"carts", `
		CREATE TABLE IF NOT EXISTS carts (
			id BIGINT AUTO_INCREMENT PRIMARY KEY,
			user_id BIGINT NOT NULL UNIQUE,
			FOREIGN KEY (user_id) REFERENCES users(id) ON DELETE CASCADE
		);
	`},
	{"cart_items", `
		CREATE TABLE IF NOT EXISTS cart_items (
			id BIGINT AUTO_INCREMENT PRIMARY KEY,
			cart_id BIGINT NOT NULL,
			product_id BIGINT NOT NULL,
			quantity INT NOT NULL,
			UNIQUE KEY uq_cart_product (cart_id, product_id),
			FOREIGN KEY (cart_id) REFERENCES carts(id) ON DELETE CASCADE,
			FOREIGN KEY (product_id) REFERENCES products(id) ON DELETE CASCADE
		);
	`},
	{"orders", `
		CREATE TABLE IF NOT EXISTS orders (
			id BIGINT AUTO_INCREMENT PRIMARY KEY,
			user_id BIGINT NOT NULL,
			status ENUM('PENDING', 'CONFIRMED', 'SHIPPED', 'DELIVERED', 'CANCELED') NOT NULL DEFAULT 'PENDING',
			total BIGINT NOT NULL,
			currency VARCHAR(3) NOT NULL DEFAULT 'EGP',
			payment_method VARCHAR(20) NOT NULL,
			notes TEXT NULL,
			delivery_needed BOOLEAN NOT NULL DEFAULT FALSE,
			shipping JSON NULL,
			payment_gateway VARCHAR(50) NULL,
			payment_gateway_id VARCHAR(255) NULL,
			payment_gateway_metadata JSON NULL,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			INDEX idx_orders_user (user_id, created_at),
			INDEX idx_orders_gateway (payment_gateway_id),
			FOREIGN KEY (user_id) REFERENCES users(id)
		);
	`},
	{"order_items", `
		CREATE TABLE IF NOT EXISTS order_items (
			order_id BIGINT NOT NULL,
			product_id BIGINT NOT NULL,
			name VARCHAR(255) NOT NULL,
			description TEXT NOT NULL,
			amount_cents BIGINT NOT NULL,
			quantity INT NOT NULL,
			currency VARCHAR(3) NOT NULL DEFAULT 'EGP',
			sku VARCHAR(64) NULL,
			PRIMARY KEY (order_id, product_id),
			FOREIGN KEY (order_id) REFERENCES orders(id) ON DELETE CASCADE
		);
	`},
}

// AutoMigrate creates every table the shop needs if it does not exist. Each statement is
// retried up to retries times, one second apart.
func AutoMigrate(retries int, db *sql.DB) error {
	for _, s := range schema {
		_, err := db.Exec(s.query)
		if err != nil {
			// Retry creating the table
			for i := 0; i < retries; i++ {
				time.Sleep(retryDelay)
				_, err = db.Exec(s.query)
				if err == nil {
					break
				}
			}
		}
		if err != nil {
			return fmt.Errorf("create table %s: %w", s.table, err)
		}
	}
	return nil
}
