package entity

import "github.com/shopspring/decimal"

type Product struct {
	ID          int64           `json:"id" db:"id"`
	Name        string          `json:"name" db:"name"`
	Description string          `json:"description" db:"description"`
	Price       decimal.Decimal `json:"price" db:"price"`
	Stock       int             `json:"stock" db:"stock"`
	SKU         *string         `json:"sku,omitempty" db:"sku"`
	IsActive    bool            `json:"is_active" db:"is_active"`
}

var hundred = decimal.NewFromInt(100)

// ToCents converts a unit price to integer cents, rounding half-up.
func ToCents(price decimal.Decimal) int64 {
	return price.Mul(hundred).Round(0).IntPart()
}
