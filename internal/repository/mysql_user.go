package repository

import (
	"context"

	"github.com/jmoiron/sqlx"

	"shop-service/internal/entity"
)

type SQLUsers struct {
	store *SQLStore
}

func NewSQLUsers(store *SQLStore) *SQLUsers {
	return &SQLUsers{store: store}
}

var _ UserRepository = (*SQLUsers)(nil)

func (r *SQLUsers) GetByID(ctx context.Context, id int64) (*entity.User, error) {
	user := &entity.User{}
	query := `SELECT id, username, email, role FROM users WHERE id = ?`
	if err := sqlx.GetContext(ctx, r.store.ext(ctx), user, query, id); err != nil {
		return nil, notFound(err)
	}
	return user, nil
}
