package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"shop-service/internal/entity"
)

func TestMemoryTxRollsBackOnError(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	store.PutProduct(entity.Product{ID: 1, Name: "A", Price: decimal.NewFromInt(10), Stock: 5})
	products := NewMemoryProducts(store)
	orders := NewMemoryOrders(store)
	tx := NewMemoryTx(store)

	boom := errors.New("boom")
	err := tx.WithTransaction(ctx, func(ctx context.Context) error {
		if ok, err := products.DecrementStock(ctx, 1, 3); err != nil || !ok {
			t.Fatalf("decrement: %v %v", ok, err)
		}
		if err := orders.Create(ctx, &entity.Order{UserID: 1, Status: entity.OrderStatusPending}); err != nil {
			t.Fatalf("create: %v", err)
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}

	p, _ := products.GetByID(ctx, 1)
	if p.Stock != 5 {
		t.Fatalf("stock not restored: %d", p.Stock)
	}
	if _, total, _ := orders.List(ctx, OrderFilter{Limit: 10}); total != 0 {
		t.Fatalf("order survived rollback: %d", total)
	}
}

func TestMemoryDecrementStockRefusesOversell(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	store.PutProduct(entity.Product{ID: 1, Stock: 2})
	products := NewMemoryProducts(store)

	ok, err := products.DecrementStock(ctx, 1, 3)
	if err != nil || ok {
		t.Fatalf("expected refusal, got %v %v", ok, err)
	}
	if _, err := products.DecrementStock(ctx, 99, 1); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestMemoryOrdersListNewestFirst(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	orders := NewMemoryOrders(store)

	base := time.Now()
	for i := 0; i < 5; i++ {
		userID := int64(1)
		if i%2 == 1 {
			userID = 2
		}
		o := &entity.Order{UserID: userID, CreatedAt: base.Add(time.Duration(i) * time.Minute)}
		if err := orders.Create(ctx, o); err != nil {
			t.Fatal(err)
		}
	}

	page, total, err := orders.List(ctx, OrderFilter{Offset: 0, Limit: 2})
	if err != nil {
		t.Fatal(err)
	}
	if total != 5 || len(page) != 2 || page[0].ID != 5 || page[1].ID != 4 {
		t.Fatalf("unexpected page: total=%d ids=%v", total, ids(page))
	}

	user := int64(1)
	mine, total, _ := orders.List(ctx, OrderFilter{UserID: &user, Offset: 2, Limit: 2})
	if total != 3 || len(mine) != 1 || mine[0].ID != 1 {
		t.Fatalf("unexpected user page: total=%d ids=%v", total, ids(mine))
	}
}

func TestMemoryCartLinesSortedByProduct(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	store.PutProduct(entity.Product{ID: 9, Name: "B", Stock: 1})
	store.PutProduct(entity.Product{ID: 3, Name: "A", Stock: 1})
	carts := NewMemoryCarts(store)

	cart, _ := carts.Create(ctx, 1)
	_ = carts.SaveItem(ctx, &entity.CartItem{CartID: cart.ID, ProductID: 9, Quantity: 1})
	_ = carts.SaveItem(ctx, &entity.CartItem{CartID: cart.ID, ProductID: 3, Quantity: 2})

	lines, err := carts.LockLines(ctx, cart.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(lines) != 2 || lines[0].ProductID != 3 || lines[1].ProductID != 9 {
		t.Fatalf("unexpected lines %+v", lines)
	}
}

func ids(orders []entity.Order) []int64 {
	out := make([]int64, 0, len(orders))
	for _, o := range orders {
		out = append(out, o.ID)
	}
	return out
}
