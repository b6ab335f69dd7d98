package entity

import "github.com/shopspring/decimal"

type Cart struct {
	ID     int64      `json:"id" db:"id"`
	UserID int64      `json:"user_id" db:"user_id"`
	Items  []CartLine `json:"items" db:"-"`
}

type CartItem struct {
	ID        int64 `json:"id" db:"id"`
	CartID    int64 `json:"cart_id" db:"cart_id"`
	ProductID int64 `json:"product_id" db:"product_id"`
	Quantity  int   `json:"quantity" db:"quantity"`
}

// CartLine is a cart item joined with the product it references, read at a point in time.
type CartLine struct {
	ItemID      int64           `json:"id" db:"item_id"`
	ProductID   int64           `json:"product_id" db:"product_id"`
	Name        string          `json:"name" db:"name"`
	Description string          `json:"description" db:"description"`
	Price       decimal.Decimal `json:"price" db:"price"`
	Stock       int             `json:"stock" db:"stock"`
	SKU         *string         `json:"sku,omitempty" db:"sku"`
	Quantity    int             `json:"quantity" db:"quantity"`
}
