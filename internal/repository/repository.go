package repository

import (
	"context"
	"encoding/json"
	"errors"

	"shop-service/internal/entity"
)

// ErrNotFound is returned when the requested row does not exist.
var ErrNotFound = errors.New("not found")

// TxManager runs fn inside one transaction. Repositories called with the ctx handed to fn
// join that transaction; Lock* methods take row locks held until fn returns.
type TxManager interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

type ProductRepository interface {
	GetByID(ctx context.Context, id int64) (*entity.Product, error)
	LockByID(ctx context.Context, id int64) (*entity.Product, error)
	// DecrementStock subtracts quantity only if enough stock is left; it reports whether it did.
	DecrementStock(ctx context.Context, id int64, quantity int) (bool, error)
	IncrementStock(ctx context.Context, id int64, quantity int) error
}

type CartRepository interface {
	GetByUser(ctx context.Context, userID int64) (*entity.Cart, error)
	LockByUser(ctx context.Context, userID int64) (*entity.Cart, error)
	Create(ctx context.Context, userID int64) (*entity.Cart, error)
	Lines(ctx context.Context, cartID int64) ([]entity.CartLine, error)
	// LockLines is Lines with the referenced product rows locked, in ascending product id order.
	LockLines(ctx context.Context, cartID int64) ([]entity.CartLine, error)
	GetItem(ctx context.Context, itemID int64) (*entity.CartItem, error)
	SaveItem(ctx context.Context, item *entity.CartItem) error
	DeleteItem(ctx context.Context, itemID int64) error
	DeleteItems(ctx context.Context, cartID int64) error
}

// OrderFilter selects a page of orders, newest first. A nil UserID selects every user.
type OrderFilter struct {
	UserID *int64
	Offset int
	Limit  int
}

type OrderRepository interface {
	Create(ctx context.Context, order *entity.Order) error
	GetByID(ctx context.Context, id int64) (*entity.Order, error)
	LockByID(ctx context.Context, id int64) (*entity.Order, error)
	LockByGatewayID(ctx context.Context, gatewayID string) (*entity.Order, error)
	UpdateStatus(ctx context.Context, id int64, status entity.OrderStatus) error
	UpdatePayment(ctx context.Context, id int64, gateway, gatewayID string) error
	UpdateGatewayMetadata(ctx context.Context, id int64, metadata json.RawMessage) error
	List(ctx context.Context, filter OrderFilter) ([]entity.Order, int, error)
	Delete(ctx context.Context, id int64) error
}

type UserRepository interface {
	GetByID(ctx context.Context, id int64) (*entity.User, error)
}
