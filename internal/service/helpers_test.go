package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/shopspring/decimal"

	"shop-service/internal/auth"
	"shop-service/internal/entity"
	"shop-service/internal/payment"
	"shop-service/internal/repository"
)

const hmacSecret = "test-hmac-secret"

var (
	alice = auth.Principal{UserID: 1, Email: "alice@example.com", Role: entity.RoleUser}
	bob   = auth.Principal{UserID: 2, Email: "bob@example.com", Role: entity.RoleUser}
	admin = auth.Principal{UserID: 99, Email: "admin@example.com", Role: entity.RoleAdmin}
)

type fakeGateway struct {
	mu       sync.Mutex
	fail     bool
	calls    int
	merchant []string
}

func (g *fakeGateway) Initiate(ctx context.Context, order *entity.Order, merchantOrderID string, billing payment.Billing) (*payment.Initiation, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls++
	g.merchant = append(g.merchant, merchantOrderID)
	if g.fail {
		return nil, errors.New("paymob unreachable")
	}
	return &payment.Initiation{GatewayOrderID: "42", PaymentKey: "key", PaymentURL: "https://pay.example/42"}, nil
}

func (g *fakeGateway) InitiatePayment(ctx context.Context, order *entity.Order, merchantOrderID string, billing payment.Billing) *payment.Initiation {
	init, err := g.Initiate(ctx, order, merchantOrderID, billing)
	if err != nil {
		return nil
	}
	return init
}

type fakePublisher struct {
	mu    sync.Mutex
	types []string
}

func (p *fakePublisher) Publish(ctx context.Context, eventType string, order *entity.Order) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.types = append(p.types, eventType)
	return nil
}

func (p *fakePublisher) has(eventType string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, t := range p.types {
		if t == eventType {
			return true
		}
	}
	return false
}

type fakeGuard struct {
	keys      map[string]bool
	forgotten []string
	err       error
}

func (g *fakeGuard) Claim(ctx context.Context, scope, key string) (bool, error) {
	if g.err != nil {
		return false, g.err
	}
	k := scope + ":" + key
	if g.keys[k] {
		return false, nil
	}
	g.keys[k] = true
	return true, nil
}

func (g *fakeGuard) Forget(ctx context.Context, scope, key string) error {
	k := scope + ":" + key
	delete(g.keys, k)
	g.forgotten = append(g.forgotten, k)
	return nil
}

// failingOrders writes the order and then fails, to prove the transaction undoes everything.
type failingOrders struct {
	repository.OrderRepository
}

func (f failingOrders) Create(ctx context.Context, order *entity.Order) error {
	if err := f.OrderRepository.Create(ctx, order); err != nil {
		return err
	}
	return errors.New("simulated write failure")
}

type fixture struct {
	store     *repository.MemoryStore
	products  *repository.MemoryProducts
	carts     *repository.MemoryCarts
	orders    *repository.MemoryOrders
	gateway   *fakeGateway
	publisher *fakePublisher
	guard     *fakeGuard
	verifier  *payment.Verifier
	orderSvc  *OrderService
	webhooks  *WebhookService
	cartSvc   *CartService
}

func setup(t *testing.T) *fixture {
	return setupWith(t, nil)
}

func setupWith(t *testing.T, wrap func(repository.OrderRepository) repository.OrderRepository) *fixture {
	t.Helper()
	store := repository.NewMemoryStore()
	store.PutUser(entity.User{ID: alice.UserID, Email: alice.Email, Role: entity.RoleUser})
	store.PutUser(entity.User{ID: bob.UserID, Email: bob.Email, Role: entity.RoleUser})

	f := &fixture{
		store:     store,
		products:  repository.NewMemoryProducts(store),
		carts:     repository.NewMemoryCarts(store),
		orders:    repository.NewMemoryOrders(store),
		gateway:   &fakeGateway{},
		publisher: &fakePublisher{},
		guard:     &fakeGuard{keys: map[string]bool{}},
		verifier:  payment.NewVerifier(hmacSecret),
	}

	var orders repository.OrderRepository = f.orders
	if wrap != nil {
		orders = wrap(orders)
	}
	tx := repository.NewMemoryTx(store)
	inventory := NewInventory(f.products)
	f.orderSvc = NewOrderService(tx, orders, f.carts, repository.NewMemoryUsers(store), inventory, f.gateway, f.publisher, f.guard, nil)
	f.webhooks = NewWebhookService(tx, orders, inventory, f.verifier, f.publisher, nil)
	f.cartSvc = NewCartService(tx, f.carts, f.products, nil)
	return f
}

func (f *fixture) product(id int64, price string, stock int) {
	f.store.PutProduct(entity.Product{
		ID:          id,
		Name:        fmt.Sprintf("Product %d", id),
		Description: "desc",
		Price:       decimal.RequireFromString(price),
		Stock:       stock,
		IsActive:    true,
	})
}

func (f *fixture) addToCart(t *testing.T, p auth.Principal, productID int64, qty int) {
	t.Helper()
	if _, err := f.cartSvc.AddItem(context.Background(), p, CartItemInput{ProductID: productID, Quantity: qty}); err != nil {
		t.Fatalf("add to cart: %v", err)
	}
}

func (f *fixture) stock(t *testing.T, productID int64) int {
	t.Helper()
	p, err := f.products.GetByID(context.Background(), productID)
	if err != nil {
		t.Fatal(err)
	}
	return p.Stock
}

func (f *fixture) cartSize(t *testing.T, p auth.Principal) int {
	t.Helper()
	cart, err := f.cartSvc.GetCart(context.Background(), p)
	if err != nil {
		t.Fatal(err)
	}
	return len(cart.Items)
}

func (f *fixture) reload(t *testing.T, id int64) *entity.Order {
	t.Helper()
	o, err := f.orders.GetByID(context.Background(), id)
	if err != nil {
		t.Fatal(err)
	}
	return o
}

func requireKind(t *testing.T, err error, kind ErrorKind) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected %s error, got nil", kind)
	}
	if got := KindOf(err); got != kind {
		t.Fatalf("expected %s error, got %s (%v)", kind, got, err)
	}
}

func cashOrder() entity.PlaceOrderInput {
	return entity.PlaceOrderInput{PaymentMethod: "cash"}
}

func cardOrder() entity.PlaceOrderInput {
	return entity.PlaceOrderInput{PaymentMethod: entity.PaymentMethodCard}
}

func callbackBody(gatewayOrderID string, success bool) []byte {
	return []byte(fmt.Sprintf(`{"type":"TRANSACTION","obj":{"id":9001,"pending":false,"amount_cents":2000,`+
		`"success":%t,"is_auth":false,"is_capture":false,"is_standalone_payment":true,"is_voided":false,`+
		`"is_refunded":false,"is_3d_secure":true,"integration_id":1,"has_parent_transaction":false,`+
		`"error_occured":%t,"currency":"EGP","created_at":"2024-05-20T12:01:02","owner":1,`+
		`"order":{"id":%s},"source_data":{"pan":"2346","type":"card","sub_type":"MasterCard"}}}`,
		success, !success, gatewayOrderID))
}

func (f *fixture) sign(t *testing.T, body []byte) string {
	t.Helper()
	cb, err := payment.ParseCallback(body)
	if err != nil {
		t.Fatal(err)
	}
	return f.verifier.Sign(cb)
}

// placeCardOrder places a card order whose gateway id is "42".
func (f *fixture) placeCardOrder(t *testing.T) *entity.Order {
	t.Helper()
	f.product(1, "10.00", 3)
	f.addToCart(t, alice, 1, 2)
	order, err := f.orderSvc.PlaceOrder(context.Background(), alice, "", cardOrder())
	if err != nil {
		t.Fatal(err)
	}
	if order.PaymentGatewayID == nil || *order.PaymentGatewayID != "42" {
		t.Fatalf("expected gateway id 42, got %+v", order.PaymentGatewayID)
	}
	return order
}
