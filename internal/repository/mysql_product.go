package repository

import (
	"context"

	"github.com/jmoiron/sqlx"

	"shop-service/internal/entity"
)

const productColumns = `id, name, description, price, stock, sku, is_active`

type SQLProducts struct {
	store *SQLStore
}

func NewSQLProducts(store *SQLStore) *SQLProducts {
	return &SQLProducts{store: store}
}

var _ ProductRepository = (*SQLProducts)(nil)

func (r *SQLProducts) GetByID(ctx context.Context, id int64) (*entity.Product, error) {
	return r.get(ctx, `SELECT `+productColumns+` FROM products WHERE id = ?`, id)
}

func (r *SQLProducts) LockByID(ctx context.Context, id int64) (*entity.Product, error) {
	return r.get(ctx, `SELECT `+productColumns+` FROM products WHERE id = ? FOR UPDATE`, id)
}

func (r *SQLProducts) get(ctx context.Context, query string, id int64) (*entity.Product, error) {
	product := &entity.Product{}
	if err := sqlx.GetContext(ctx, r.store.ext(ctx), product, query, id); err != nil {
		return nil, notFound(err)
	}
	return product, nil
}

func (r *SQLProducts) DecrementStock(ctx context.Context, id int64, quantity int) (bool, error) {
	query := `UPDATE products SET stock = stock - ? WHERE id = ? AND stock >= ?`
	res, err := r.store.ext(ctx).ExecContext(ctx, query, quantity, id, quantity)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (r *SQLProducts) IncrementStock(ctx context.Context, id int64, quantity int) error {
	query := `UPDATE products SET stock = stock + ? WHERE id = ?`
	res, err := r.store.ext(ctx).ExecContext(ctx, query, quantity, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
