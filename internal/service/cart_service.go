package service

import (
	"context"
	"errors"

	"github.com/go-playground/validator/v10"

	"shop-service/internal/auth"
	"shop-service/internal/entity"
	"shop-service/internal/repository"
)

// CartItemInput adds or sets a product quantity in the caller's cart.
type CartItemInput struct {
	ProductID int64 `json:"productId" validate:"required,gt=0"`
	Quantity  int   `json:"quantity" validate:"required,gt=0"`
}

// StockCache serves recent stock reads. A miss reports ok false.
type StockCache interface {
	Get(ctx context.Context, productID int64) (stock int, ok bool, err error)
	Set(ctx context.Context, productID int64, stock int) error
}

type CartService struct {
	tx         repository.TxManager
	carts      repository.CartRepository
	products   repository.ProductRepository
	stockCache StockCache
	validate   *validator.Validate
}

// NewCartService creates a new instance of CartService. stockCache may be nil.
func NewCartService(tx repository.TxManager, carts repository.CartRepository, products repository.ProductRepository,
	stockCache StockCache) *CartService {
	return &CartService{tx: tx, carts: carts, products: products, stockCache: stockCache, validate: newValidator()}
}

// GetCart returns the caller's cart, empty when none exists yet.
func (s *CartService) GetCart(ctx context.Context, p auth.Principal) (*entity.Cart, error) {
	cart, err := s.carts.GetByUser(ctx, p.UserID)
	if errors.Is(err, repository.ErrNotFound) {
		return &entity.Cart{UserID: p.UserID, Items: []entity.CartLine{}}, nil
	}
	if err != nil {
		return nil, hideInternal(err, "Error getting cart")
	}
	cart.Items, err = s.carts.Lines(ctx, cart.ID)
	if err != nil {
		return nil, hideInternal(err, "Error getting cart items")
	}
	return cart, nil
}

// ensureCart locks the caller's cart, creating it on first use.
func (s *CartService) ensureCart(ctx context.Context, userID int64) (*entity.Cart, error) {
	cart, err := s.carts.LockByUser(ctx, userID)
	if errors.Is(err, repository.ErrNotFound) {
		return s.carts.Create(ctx, userID)
	}
	return cart, err
}

func findLine(lines []entity.CartLine, productID int64) *entity.CartLine {
	for i := range lines {
		if lines[i].ProductID == productID {
			return &lines[i]
		}
	}
	return nil
}

// AddItem puts quantity units of a product in the cart, adding to an existing line.
func (s *CartService) AddItem(ctx context.Context, p auth.Principal, in CartItemInput) (*entity.Cart, error) {
	if err := validateStruct(s.validate, in); err != nil {
		return nil, err
	}

	err := s.tx.WithTransaction(ctx, func(ctx context.Context) error {
		cart, err := s.ensureCart(ctx, p.UserID)
		if err != nil {
			return err
		}
		if _, err := s.products.GetByID(ctx, in.ProductID); err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return notFoundError("Product not found")
			}
			return err
		}

		lines, err := s.carts.Lines(ctx, cart.ID)
		if err != nil {
			return err
		}
		item := &entity.CartItem{CartID: cart.ID, ProductID: in.ProductID, Quantity: in.Quantity}
		if line := findLine(lines, in.ProductID); line != nil {
			item.ID = line.ItemID
			item.Quantity += line.Quantity
		}
		return s.carts.SaveItem(ctx, item)
	})
	if err != nil {
		return nil, hideInternal(err, "Error adding cart item")
	}
	return s.GetCart(ctx, p)
}

// ownedItem loads a cart item and checks it belongs to the caller's cart.
func (s *CartService) ownedItem(ctx context.Context, p auth.Principal, itemID int64) (*entity.CartItem, error) {
	item, err := s.carts.GetItem(ctx, itemID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, notFoundError("Item not found")
	}
	if err != nil {
		return nil, err
	}
	cart, err := s.carts.GetByUser(ctx, p.UserID)
	if errors.Is(err, repository.ErrNotFound) || (err == nil && cart.ID != item.CartID) {
		return nil, forbiddenError("Not your cart")
	}
	if err != nil {
		return nil, err
	}
	return item, nil
}

// UpdateItem sets the quantity of one of the caller's cart items.
func (s *CartService) UpdateItem(ctx context.Context, p auth.Principal, itemID int64, quantity int) (*entity.Cart, error) {
	if quantity <= 0 {
		return nil, validationError("quantity must be positive")
	}
	err := s.tx.WithTransaction(ctx, func(ctx context.Context) error {
		item, err := s.ownedItem(ctx, p, itemID)
		if err != nil {
			return err
		}
		item.Quantity = quantity
		return s.carts.SaveItem(ctx, item)
	})
	if err != nil {
		return nil, hideInternal(err, "Error updating cart item")
	}
	return s.GetCart(ctx, p)
}

// RemoveItem deletes one of the caller's cart items.
func (s *CartService) RemoveItem(ctx context.Context, p auth.Principal, itemID int64) (*entity.Cart, error) {
	err := s.tx.WithTransaction(ctx, func(ctx context.Context) error {
		item, err := s.ownedItem(ctx, p, itemID)
		if err != nil {
			return err
		}
		return s.carts.DeleteItem(ctx, item.ID)
	})
	if err != nil {
		return nil, hideInternal(err, "Error removing cart item")
	}
	return s.GetCart(ctx, p)
}

// MergeCarts folds a guest cart into the caller's cart. Unknown products are skipped and
// quantities of products already in the cart are overwritten.
func (s *CartService) MergeCarts(ctx context.Context, p auth.Principal, items []CartItemInput) (*entity.Cart, error) {
	for _, in := range items {
		if err := validateStruct(s.validate, in); err != nil {
			return nil, err
		}
	}

	err := s.tx.WithTransaction(ctx, func(ctx context.Context) error {
		cart, err := s.ensureCart(ctx, p.UserID)
		if err != nil {
			return err
		}
		lines, err := s.carts.Lines(ctx, cart.ID)
		if err != nil {
			return err
		}

		for _, in := range items {
			if _, err := s.products.GetByID(ctx, in.ProductID); err != nil {
				if errors.Is(err, repository.ErrNotFound) {
					continue
				}
				return err
			}
			item := &entity.CartItem{CartID: cart.ID, ProductID: in.ProductID, Quantity: in.Quantity}
			line := findLine(lines, in.ProductID)
			if line != nil {
				item.ID = line.ItemID
			}
			if err := s.carts.SaveItem(ctx, item); err != nil {
				return err
			}
			if line == nil {
				lines = append(lines, entity.CartLine{ItemID: item.ID, ProductID: in.ProductID, Quantity: in.Quantity})
			}
		}
		return nil
	})
	if err != nil {
		return nil, hideInternal(err, "Error merging carts")
	}
	return s.GetCart(ctx, p)
}

// ClearCart empties the caller's cart.
func (s *CartService) ClearCart(ctx context.Context, p auth.Principal) error {
	err := s.tx.WithTransaction(ctx, func(ctx context.Context) error {
		cart, err := s.carts.LockByUser(ctx, p.UserID)
		if errors.Is(err, repository.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		return s.carts.DeleteItems(ctx, cart.ID)
	})
	if err != nil {
		return hideInternal(err, "Error clearing cart")
	}
	return nil
}

// ProductStock reads the stock of a product for display. With a cache configured the
// value may lag the database by the cache TTL.
func (s *CartService) ProductStock(ctx context.Context, productID int64) (int, error) {
	if s.stockCache != nil {
		stock, ok, err := s.stockCache.Get(ctx, productID)
		if err != nil {
			logger.Warn().Err(err).Int64("productId", productID).Msg("Error reading stock from cache")
		} else if ok {
			return stock, nil
		}
	}

	product, err := s.products.GetByID(ctx, productID)
	if errors.Is(err, repository.ErrNotFound) {
		return 0, notFoundError("Product not found")
	}
	if err != nil {
		return 0, hideInternal(err, "Error getting product stock")
	}

	if s.stockCache != nil {
		if err := s.stockCache.Set(ctx, productID, product.Stock); err != nil {
			logger.Warn().Err(err).Int64("productId", productID).Msg("Error writing stock to cache")
		}
	}
	return product.Stock, nil
}
