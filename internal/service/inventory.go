package service

import (
	"context"
	"errors"

	"shop-service/internal/repository"
)

// Inventory reserves and releases product stock. Both operations must run inside a
// transaction opened by the caller so the row lock lasts until commit.
type Inventory struct {
	products repository.ProductRepository
}

func NewInventory(products repository.ProductRepository) *Inventory {
	return &Inventory{products: products}
}

// Reserve locks the product row and takes quantity units from it, or fails with a
// *StockConflictError leaving stock untouched.
func (inv *Inventory) Reserve(ctx context.Context, productID int64, quantity int) error {
	if quantity <= 0 {
		return validationError("quantity must be positive")
	}

	product, err := inv.products.LockByID(ctx, productID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return validationError("product %d no longer exists", productID)
		}
		return err
	}
	if product.Stock < quantity {
		return &StockConflictError{ProductID: product.ID, Name: product.Name, Available: product.Stock}
	}

	ok, err := inv.products.DecrementStock(ctx, productID, quantity)
	if err != nil {
		return err
	}
	if !ok {
		return &StockConflictError{ProductID: product.ID, Name: product.Name, Available: product.Stock}
	}
	return nil
}

// Release gives quantity units back. A product deleted since the order was placed is skipped.
func (inv *Inventory) Release(ctx context.Context, productID int64, quantity int) error {
	if quantity <= 0 {
		return validationError("quantity must be positive")
	}
	err := inv.products.IncrementStock(ctx, productID, quantity)
	if errors.Is(err, repository.ErrNotFound) {
		logger.Warn().Int64("productId", productID).Int("quantity", quantity).Msg("Released stock for missing product")
		return nil
	}
	return err
}
