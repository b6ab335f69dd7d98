package repository

import (
	"context"

	"github.com/jmoiron/sqlx"

	"shop-service/internal/entity"
)

const cartLinesQuery = `
	SELECT ci.id AS item_id, p.id AS product_id, p.name, p.description, p.price, p.stock, p.sku, ci.quantity
	FROM cart_items ci
	JOIN products p ON p.id = ci.product_id
	WHERE ci.cart_id = ?
	ORDER BY p.id`

type SQLCarts struct {
	store *SQLStore
}

func NewSQLCarts(store *SQLStore) *SQLCarts {
	return &SQLCarts{store: store}
}

var _ CartRepository = (*SQLCarts)(nil)

func (r *SQLCarts) GetByUser(ctx context.Context, userID int64) (*entity.Cart, error) {
	return r.get(ctx, `SELECT id, user_id FROM carts WHERE user_id = ?`, userID)
}

func (r *SQLCarts) LockByUser(ctx context.Context, userID int64) (*entity.Cart, error) {
	return r.get(ctx, `SELECT id, user_id FROM carts WHERE user_id = ? FOR UPDATE`, userID)
}

func (r *SQLCarts) get(ctx context.Context, query string, userID int64) (*entity.Cart, error) {
	cart := &entity.Cart{}
	if err := sqlx.GetContext(ctx, r.store.ext(ctx), cart, query, userID); err != nil {
		return nil, notFound(err)
	}
	return cart, nil
}

func (r *SQLCarts) Create(ctx context.Context, userID int64) (*entity.Cart, error) {
	res, err := r.store.ext(ctx).ExecContext(ctx, `INSERT INTO carts (user_id) VALUES (?)`, userID)
	if err != nil {
		return nil, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	return &entity.Cart{ID: id, UserID: userID}, nil
}

func (r *SQLCarts) Lines(ctx context.Context, cartID int64) ([]entity.CartLine, error) {
	return r.lines(ctx, cartLinesQuery, cartID)
}

// LockLines locks the cart items, then the referenced products with a primary key range
// read in ascending id order. InnoDB locks joined rows in scan order, so the products are
// locked by their own query rather than through the join.
func (r *SQLCarts) LockLines(ctx context.Context, cartID int64) ([]entity.CartLine, error) {
	ext := r.store.ext(ctx)

	var items []entity.CartItem
	query := `SELECT id, cart_id, product_id, quantity FROM cart_items WHERE cart_id = ? FOR UPDATE`
	if err := sqlx.SelectContext(ctx, ext, &items, query, cartID); err != nil {
		return nil, err
	}
	lines := []entity.CartLine{}
	if len(items) == 0 {
		return lines, nil
	}

	ids := make([]int64, 0, len(items))
	for _, item := range items {
		ids = append(ids, item.ProductID)
	}
	query, args, err := sqlx.In(`SELECT `+productColumns+` FROM products WHERE id IN (?) ORDER BY id FOR UPDATE`, ids)
	if err != nil {
		return nil, err
	}
	var products []entity.Product
	if err := sqlx.SelectContext(ctx, ext, &products, ext.Rebind(query), args...); err != nil {
		return nil, err
	}

	byProduct := make(map[int64]entity.CartItem, len(items))
	for _, item := range items {
		byProduct[item.ProductID] = item
	}
	for _, p := range products {
		item := byProduct[p.ID]
		lines = append(lines, entity.CartLine{
			ItemID:      item.ID,
			ProductID:   p.ID,
			Name:        p.Name,
			Description: p.Description,
			Price:       p.Price,
			Stock:       p.Stock,
			SKU:         p.SKU,
			Quantity:    item.Quantity,
		})
	}
	return lines, nil
}

func (r *SQLCarts) lines(ctx context.Context, query string, cartID int64) ([]entity.CartLine, error) {
	lines := []entity.CartLine{}
	if err := sqlx.SelectContext(ctx, r.store.ext(ctx), &lines, query, cartID); err != nil {
		return nil, err
	}
	return lines, nil
}

func (r *SQLCarts) GetItem(ctx context.Context, itemID int64) (*entity.CartItem, error) {
	item := &entity.CartItem{}
	query := `SELECT id, cart_id, product_id, quantity FROM cart_items WHERE id = ?`
	if err := sqlx.GetContext(ctx, r.store.ext(ctx), item, query, itemID); err != nil {
		return nil, notFound(err)
	}
	return item, nil
}

// SaveItem inserts the item when it has no id yet and updates its quantity otherwise.
func (r *SQLCarts) SaveItem(ctx context.Context, item *entity.CartItem) error {
	ext := r.store.ext(ctx)
	if item.ID != 0 {
		_, err := ext.ExecContext(ctx, `UPDATE cart_items SET quantity = ? WHERE id = ?`, item.Quantity, item.ID)
		return err
	}

	query := `INSERT INTO cart_items (cart_id, product_id, quantity) VALUES (?, ?, ?)`
	res, err := ext.ExecContext(ctx, query, item.CartID, item.ProductID, item.Quantity)
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	item.ID = id
	return nil
}

func (r *SQLCarts) DeleteItem(ctx context.Context, itemID int64) error {
	_, err := r.store.ext(ctx).ExecContext(ctx, `DELETE FROM cart_items WHERE id = ?`, itemID)
	return err
}

func (r *SQLCarts) DeleteItems(ctx context.Context, cartID int64) error {
	_, err := r.store.ext(ctx).ExecContext(ctx, `DELETE FROM cart_items WHERE cart_id = ?`, cartID)
	return err
}
