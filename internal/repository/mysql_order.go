package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jmoiron/sqlx"

	"shop-service/internal/entity"
)

const orderColumns = `id, user_id, status, total, currency, payment_method, notes, delivery_needed, shipping,
	payment_gateway, payment_gateway_id, payment_gateway_metadata, created_at`

const orderItemColumns = `order_id, product_id, name, description, amount_cents, quantity, currency, sku`

type orderRow struct {
	entity.Order
	ShippingJSON []byte `db:"shipping"`
	MetadataJSON []byte `db:"payment_gateway_metadata"`
}

func (row *orderRow) toEntity() (entity.Order, error) {
	order := row.Order
	if len(row.ShippingJSON) > 0 && string(row.ShippingJSON) != "null" {
		shipping := &entity.Shipping{}
		if err := json.Unmarshal(row.ShippingJSON, shipping); err != nil {
			return order, fmt.Errorf("decode shipping of order %d: %w", order.ID, err)
		}
		order.Shipping = shipping
	}
	if len(row.MetadataJSON) > 0 {
		order.PaymentGatewayMetadata = json.RawMessage(row.MetadataJSON)
	}
	return order, nil
}

type SQLOrders struct {
	store *SQLStore
}

func NewSQLOrders(store *SQLStore) *SQLOrders {
	return &SQLOrders{store: store}
}

var _ OrderRepository = (*SQLOrders)(nil)

// Create inserts the order and its items in one transaction and assigns the generated id.
func (r *SQLOrders) Create(ctx context.Context, order *entity.Order) error {
	return r.store.WithTransaction(ctx, func(ctx context.Context) error {
		ext := r.store.ext(ctx)

		var shipping interface{}
		if order.Shipping != nil {
			b, err := json.Marshal(order.Shipping)
			if err != nil {
				return err
			}
			shipping = string(b)
		}

		orderQuery := `INSERT INTO orders (user_id, status, total, currency, payment_method, notes, delivery_needed, shipping, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`
		res, err := ext.ExecContext(ctx, orderQuery, order.UserID, order.Status, order.Total, order.Currency,
			order.PaymentMethod, order.Notes, order.DeliveryNeeded, shipping, order.CreatedAt)
		if err != nil {
			return err
		}
		orderID, err := res.LastInsertId()
		if err != nil {
			return err
		}
		order.ID = orderID

		if len(order.Items) == 0 {
			return nil
		}

		// Insert order items with batch
		itemQuery := `INSERT INTO order_items (` + orderItemColumns + `) VALUES `
		var values []interface{}
		for i := range order.Items {
			item := &order.Items[i]
			item.OrderID = orderID
			itemQuery += "(?, ?, ?, ?, ?, ?, ?, ?),"
			values = append(values, item.OrderID, item.ProductID, item.Name, item.Description,
				item.AmountCents, item.Quantity, item.Currency, item.SKU)
		}
		itemQuery = itemQuery[:len(itemQuery)-1]

		_, err = ext.ExecContext(ctx, itemQuery, values...)
		return err
	})
}

func (r *SQLOrders) GetByID(ctx context.Context, id int64) (*entity.Order, error) {
	return r.getOne(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = ?`, id)
}

func (r *SQLOrders) LockByID(ctx context.Context, id int64) (*entity.Order, error) {
	return r.getOne(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = ? FOR UPDATE`, id)
}

func (r *SQLOrders) LockByGatewayID(ctx context.Context, gatewayID string) (*entity.Order, error) {
	return r.getOne(ctx, `SELECT `+orderColumns+` FROM orders WHERE payment_gateway_id = ? FOR UPDATE`, gatewayID)
}

func (r *SQLOrders) getOne(ctx context.Context, query string, arg interface{}) (*entity.Order, error) {
	ext := r.store.ext(ctx)

	row := orderRow{}
	if err := sqlx.GetContext(ctx, ext, &row, query, arg); err != nil {
		return nil, notFound(err)
	}
	order, err := row.toEntity()
	if err != nil {
		return nil, err
	}

	orders := []entity.Order{order}
	if err := r.loadItems(ctx, ext, orders); err != nil {
		return nil, err
	}
	return &orders[0], nil
}

func (r *SQLOrders) loadItems(ctx context.Context, ext sqlx.ExtContext, orders []entity.Order) error {
	if len(orders) == 0 {
		return nil
	}

	ids := make([]int64, 0, len(orders))
	byID := make(map[int64]int, len(orders))
	for i := range orders {
		ids = append(ids, orders[i].ID)
		byID[orders[i].ID] = i
		orders[i].Items = []entity.OrderItem{}
	}

	query, args, err := sqlx.In(`SELECT `+orderItemColumns+` FROM order_items WHERE order_id IN (?) ORDER BY order_id, product_id`, ids)
	if err != nil {
		return err
	}

	var items []entity.OrderItem
	if err := sqlx.SelectContext(ctx, ext, &items, ext.Rebind(query), args...); err != nil {
		return err
	}
	for _, item := range items {
		i := byID[item.OrderID]
		orders[i].Items = append(orders[i].Items, item)
	}
	return nil
}

func (r *SQLOrders) UpdateStatus(ctx context.Context, id int64, status entity.OrderStatus) error {
	_, err := r.store.ext(ctx).ExecContext(ctx, `UPDATE orders SET status = ? WHERE id = ?`, status, id)
	return err
}

func (r *SQLOrders) UpdatePayment(ctx context.Context, id int64, gateway, gatewayID string) error {
	query := `UPDATE orders SET payment_gateway = ?, payment_gateway_id = ? WHERE id = ?`
	_, err := r.store.ext(ctx).ExecContext(ctx, query, gateway, gatewayID, id)
	return err
}

func (r *SQLOrders) UpdateGatewayMetadata(ctx context.Context, id int64, metadata json.RawMessage) error {
	query := `UPDATE orders SET payment_gateway_metadata = ? WHERE id = ?`
	_, err := r.store.ext(ctx).ExecContext(ctx, query, string(metadata), id)
	return err
}

// List is a find-and-count: one page of orders plus the number of rows matching the filter.
func (r *SQLOrders) List(ctx context.Context, filter OrderFilter) ([]entity.Order, int, error) {
	ext := r.store.ext(ctx)

	where := ""
	var args []interface{}
	if filter.UserID != nil {
		where = ` WHERE user_id = ?`
		args = append(args, *filter.UserID)
	}

	var total int
	if err := sqlx.GetContext(ctx, ext, &total, `SELECT COUNT(*) FROM orders`+where, args...); err != nil {
		return nil, 0, err
	}

	var rows []orderRow
	query := `SELECT ` + orderColumns + ` FROM orders` + where + ` ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?`
	if err := sqlx.SelectContext(ctx, ext, &rows, query, append(args, filter.Limit, filter.Offset)...); err != nil {
		return nil, 0, err
	}

	orders := make([]entity.Order, 0, len(rows))
	for i := range rows {
		order, err := rows[i].toEntity()
		if err != nil {
			return nil, 0, err
		}
		orders = append(orders, order)
	}
	if err := r.loadItems(ctx, ext, orders); err != nil {
		return nil, 0, err
	}
	return orders, total, nil
}

// Delete removes the order's items and then the order itself.
func (r *SQLOrders) Delete(ctx context.Context, id int64) error {
	return r.store.WithTransaction(ctx, func(ctx context.Context) error {
		ext := r.store.ext(ctx)
		if _, err := ext.ExecContext(ctx, `DELETE FROM order_items WHERE order_id = ?`, id); err != nil {
			return err
		}
		_, err := ext.ExecContext(ctx, `DELETE FROM orders WHERE id = ?`, id)
		return err
	})
}
