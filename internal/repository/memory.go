package repository

import (
	"context"
	"encoding/json"
	"sort"
	"sync"

	"shop-service/internal/entity"
)

// MemoryStore keeps every table in maps behind one RWMutex. A transaction holds the write
// lock for its whole duration, which serializes it against every other reader and writer,
// and restores a snapshot when it fails.
type MemoryStore struct {
	mu sync.RWMutex
	state
}

type state struct {
	nextCartID     int64
	nextCartItemID int64
	nextOrderID    int64
	products       map[int64]entity.Product
	users          map[int64]entity.User
	carts          map[int64]entity.Cart
	cartItems      map[int64]entity.CartItem
	orders         map[int64]entity.Order
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{state: state{
		nextCartID:     1,
		nextCartItemID: 1,
		nextOrderID:    1,
		products:       make(map[int64]entity.Product),
		users:          make(map[int64]entity.User),
		carts:          make(map[int64]entity.Cart),
		cartItems:      make(map[int64]entity.CartItem),
		orders:         make(map[int64]entity.Order),
	}}
}

func (s state) clone() state {
	c := s
	c.products = make(map[int64]entity.Product, len(s.products))
	for k, v := range s.products {
		c.products[k] = v
	}
	c.users = make(map[int64]entity.User, len(s.users))
	for k, v := range s.users {
		c.users[k] = v
	}
	c.carts = make(map[int64]entity.Cart, len(s.carts))
	for k, v := range s.carts {
		c.carts[k] = v
	}
	c.cartItems = make(map[int64]entity.CartItem, len(s.cartItems))
	for k, v := range s.cartItems {
		c.cartItems[k] = v
	}
	c.orders = make(map[int64]entity.Order, len(s.orders))
	for k, v := range s.orders {
		c.orders[k] = copyOrder(v)
	}
	return c
}

func copyOrder(o entity.Order) entity.Order {
	o.Items = append([]entity.OrderItem(nil), o.Items...)
	if o.PaymentGatewayMetadata != nil {
		o.PaymentGatewayMetadata = append(json.RawMessage(nil), o.PaymentGatewayMetadata...)
	}
	return o
}

type memTxKey struct{}

func inMemTx(ctx context.Context) bool {
	v, ok := ctx.Value(memTxKey{}).(bool)
	return ok && v
}

func (m *MemoryStore) rlock(ctx context.Context) {
	if !inMemTx(ctx) {
		m.mu.RLock()
	}
}

func (m *MemoryStore) runlock(ctx context.Context) {
	if !inMemTx(ctx) {
		m.mu.RUnlock()
	}
}

func (m *MemoryStore) wlock(ctx context.Context) {
	if !inMemTx(ctx) {
		m.mu.Lock()
	}
}

func (m *MemoryStore) wunlock(ctx context.Context) {
	if !inMemTx(ctx) {
		m.mu.Unlock()
	}
}

// PutProduct inserts or replaces a product row.
func (m *MemoryStore) PutProduct(p entity.Product) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.products[p.ID] = p
}

// PutUser inserts or replaces a user row.
func (m *MemoryStore) PutUser(u entity.User) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[u.ID] = u
}

// MemoryTx emulates a transaction boundary with the store's write lock.
type MemoryTx struct{ store *MemoryStore }

func NewMemoryTx(store *MemoryStore) *MemoryTx { return &MemoryTx{store: store} }

var _ TxManager = (*MemoryTx)(nil)

func (tx *MemoryTx) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if inMemTx(ctx) {
		return fn(ctx)
	}

	tx.store.mu.Lock()
	defer tx.store.mu.Unlock()

	snapshot := tx.store.state.clone()
	if err := fn(context.WithValue(ctx, memTxKey{}, true)); err != nil {
		tx.store.state = snapshot
		return err
	}
	return nil
}

type MemoryProducts struct{ store *MemoryStore }

func NewMemoryProducts(store *MemoryStore) *MemoryProducts { return &MemoryProducts{store: store} }

var _ ProductRepository = (*MemoryProducts)(nil)

func (mp *MemoryProducts) GetByID(ctx context.Context, id int64) (*entity.Product, error) {
	mp.store.rlock(ctx)
	defer mp.store.runlock(ctx)
	p, ok := mp.store.products[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &p, nil
}

func (mp *MemoryProducts) LockByID(ctx context.Context, id int64) (*entity.Product, error) {
	return mp.GetByID(ctx, id)
}

func (mp *MemoryProducts) DecrementStock(ctx context.Context, id int64, quantity int) (bool, error) {
	mp.store.wlock(ctx)
	defer mp.store.wunlock(ctx)
	p, ok := mp.store.products[id]
	if !ok {
		return false, ErrNotFound
	}
	if p.Stock < quantity {
		return false, nil
	}
	p.Stock -= quantity
	mp.store.products[id] = p
	return true, nil
}

func (mp *MemoryProducts) IncrementStock(ctx context.Context, id int64, quantity int) error {
	mp.store.wlock(ctx)
	defer mp.store.wunlock(ctx)
	p, ok := mp.store.products[id]
	if !ok {
		return ErrNotFound
	}
	p.Stock += quantity
	mp.store.products[id] = p
	return nil
}

type MemoryUsers struct{ store *MemoryStore }

func NewMemoryUsers(store *MemoryStore) *MemoryUsers { return &MemoryUsers{store: store} }

var _ UserRepository = (*MemoryUsers)(nil)

func (us *MemoryUsers) GetByID(ctx context.Context, id int64) (*entity.User, error) {
	us.store.rlock(ctx)
	defer us.store.runlock(ctx)
	u, ok := us.store.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &u, nil
}

type MemoryCarts struct{ store *MemoryStore }

func NewMemoryCarts(store *MemoryStore) *MemoryCarts { return &MemoryCarts{store: store} }

var _ CartRepository = (*MemoryCarts)(nil)

func (mc *MemoryCarts) GetByUser(ctx context.Context, userID int64) (*entity.Cart, error) {
	mc.store.rlock(ctx)
	defer mc.store.runlock(ctx)
	for _, c := range mc.store.carts {
		if c.UserID == userID {
			cp := c
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (mc *MemoryCarts) LockByUser(ctx context.Context, userID int64) (*entity.Cart, error) {
	return mc.GetByUser(ctx, userID)
}

func (mc *MemoryCarts) Create(ctx context.Context, userID int64) (*entity.Cart, error) {
	mc.store.wlock(ctx)
	defer mc.store.wunlock(ctx)
	c := entity.Cart{ID: mc.store.nextCartID, UserID: userID}
	mc.store.nextCartID++
	mc.store.carts[c.ID] = c
	return &c, nil
}

func (mc *MemoryCarts) Lines(ctx context.Context, cartID int64) ([]entity.CartLine, error) {
	mc.store.rlock(ctx)
	defer mc.store.runlock(ctx)
	lines := []entity.CartLine{}
	for _, item := range mc.store.cartItems {
		if item.CartID != cartID {
			continue
		}
		p, ok := mc.store.products[item.ProductID]
		if !ok {
			continue
		}
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
	sort.Slice(lines, func(i, j int) bool { return lines[i].ProductID < lines[j].ProductID })
	return lines, nil
}

func (mc *MemoryCarts) LockLines(ctx context.Context, cartID int64) ([]entity.CartLine, error) {
	return mc.Lines(ctx, cartID)
}

func (mc *MemoryCarts) GetItem(ctx context.Context, itemID int64) (*entity.CartItem, error) {
	mc.store.rlock(ctx)
	defer mc.store.runlock(ctx)
	item, ok := mc.store.cartItems[itemID]
	if !ok {
		return nil, ErrNotFound
	}
	return &item, nil
}

func (mc *MemoryCarts) SaveItem(ctx context.Context, item *entity.CartItem) error {
	mc.store.wlock(ctx)
	defer mc.store.wunlock(ctx)
	if item.ID == 0 {
		item.ID = mc.store.nextCartItemID
		mc.store.nextCartItemID++
	}
	mc.store.cartItems[item.ID] = *item
	return nil
}

func (mc *MemoryCarts) DeleteItem(ctx context.Context, itemID int64) error {
	mc.store.wlock(ctx)
	defer mc.store.wunlock(ctx)
	delete(mc.store.cartItems, itemID)
	return nil
}

func (mc *MemoryCarts) DeleteItems(ctx context.Context, cartID int64) error {
	mc.store.wlock(ctx)
	defer mc.store.wunlock(ctx)
	for id, item := range mc.store.cartItems {
		if item.CartID == cartID {
			delete(mc.store.cartItems, id)
		}
	}
	return nil
}

type MemoryOrders struct{ store *MemoryStore }

func NewMemoryOrders(store *MemoryStore) *MemoryOrders { return &MemoryOrders{store: store} }

var _ OrderRepository = (*MemoryOrders)(nil)

func (mo *MemoryOrders) Create(ctx context.Context, o *entity.Order) error {
	mo.store.wlock(ctx)
	defer mo.store.wunlock(ctx)
	o.ID = mo.store.nextOrderID
	mo.store.nextOrderID++
	for i := range o.Items {
		o.Items[i].OrderID = o.ID
	}
	stored := copyOrder(*o)
	stored.PaymentURL = ""
	mo.store.orders[o.ID] = stored
	return nil
}

func (mo *MemoryOrders) GetByID(ctx context.Context, id int64) (*entity.Order, error) {
	mo.store.rlock(ctx)
	defer mo.store.runlock(ctx)
	o, ok := mo.store.orders[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := copyOrder(o)
	return &cp, nil
}

func (mo *MemoryOrders) LockByID(ctx context.Context, id int64) (*entity.Order, error) {
	return mo.GetByID(ctx, id)
}

func (mo *MemoryOrders) LockByGatewayID(ctx context.Context, gatewayID string) (*entity.Order, error) {
	mo.store.rlock(ctx)
	defer mo.store.runlock(ctx)
	for _, o := range mo.store.orders {
		if o.PaymentGatewayID != nil && *o.PaymentGatewayID == gatewayID {
			cp := copyOrder(o)
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (mo *MemoryOrders) update(ctx context.Context, id int64, fn func(o *entity.Order)) error {
	mo.store.wlock(ctx)
	defer mo.store.wunlock(ctx)
	o, ok := mo.store.orders[id]
	if !ok {
		return ErrNotFound
	}
	fn(&o)
	mo.store.orders[id] = o
	return nil
}

func (mo *MemoryOrders) UpdateStatus(ctx context.Context, id int64, status entity.OrderStatus) error {
	return mo.update(ctx, id, func(o *entity.Order) { o.Status = status })
}

func (mo *MemoryOrders) UpdatePayment(ctx context.Context, id int64, gateway, gatewayID string) error {
	return mo.update(ctx, id, func(o *entity.Order) {
		o.PaymentGateway = &gateway
		o.PaymentGatewayID = &gatewayID
	})
}

func (mo *MemoryOrders) UpdateGatewayMetadata(ctx context.Context, id int64, metadata json.RawMessage) error {
	return mo.update(ctx, id, func(o *entity.Order) {
		o.PaymentGatewayMetadata = append(json.RawMessage(nil), metadata...)
	})
}

func (mo *MemoryOrders) List(ctx context.Context, filter OrderFilter) ([]entity.Order, int, error) {
	mo.store.rlock(ctx)
	defer mo.store.runlock(ctx)
	matched := make([]entity.Order, 0)
	for _, o := range mo.store.orders {
		if filter.UserID != nil && o.UserID != *filter.UserID {
			continue
		}
		matched = append(matched, copyOrder(o))
	}
	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].CreatedAt.After(matched[j].CreatedAt)
		}
		return matched[i].ID > matched[j].ID
	})

	total := len(matched)
	start := filter.Offset
	if start > total {
		start = total
	}
	end := total
	if filter.Limit > 0 && start+filter.Limit < end {
		end = start + filter.Limit
	}
	return matched[start:end], total, nil
}

func (mo *MemoryOrders) Delete(ctx context.Context, id int64) error {
	mo.store.wlock(ctx)
	defer mo.store.wunlock(ctx)
	if _, ok := mo.store.orders[id]; !ok {
		return ErrNotFound
	}
	delete(mo.store.orders, id)
	return nil
}
