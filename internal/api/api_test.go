package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"

	"shop-service/internal/auth"
	"shop-service/internal/entity"
	"shop-service/internal/metrics"
	"shop-service/internal/payment"
	"shop-service/internal/repository"
	"shop-service/internal/service"
)

const (
	jwtSecret  = "api-test-secret"
	hmacSecret = "api-test-hmac"
)

var (
	alice = auth.Principal{UserID: 1, Email: "alice@example.com", Role: entity.RoleUser}
	bob   = auth.Principal{UserID: 2, Email: "bob@example.com", Role: entity.RoleUser}
	admin = auth.Principal{UserID: 99, Email: "admin@example.com", Role: entity.RoleAdmin}
)

type stubGateway struct{}

func (stubGateway) Initiate(ctx context.Context, order *entity.Order, merchantOrderID string, billing payment.Billing) (*payment.Initiation, error) {
	return &payment.Initiation{GatewayOrderID: "42", PaymentKey: "key", PaymentURL: "https://pay.example/42"}, nil
}

func (g stubGateway) InitiatePayment(ctx context.Context, order *entity.Order, merchantOrderID string, billing payment.Billing) *payment.Initiation {
	init, _ := g.Initiate(ctx, order, merchantOrderID, billing)
	return init
}

type memoryGuard map[string]bool

func (g memoryGuard) Claim(ctx context.Context, scope, key string) (bool, error) {
	if g[scope+key] {
		return false, nil
	}
	g[scope+key] = true
	return true, nil
}

func (g memoryGuard) Forget(ctx context.Context, scope, key string) error {
	delete(g, scope+key)
	return nil
}

type testServer struct {
	e        *echo.Echo
	store    *repository.MemoryStore
	verifier *payment.Verifier
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	store := repository.NewMemoryStore()
	store.PutUser(entity.User{ID: alice.UserID, Email: alice.Email, Role: entity.RoleUser})
	store.PutUser(entity.User{ID: bob.UserID, Email: bob.Email, Role: entity.RoleUser})
	store.PutProduct(entity.Product{ID: 1, Name: "Mug", Description: "A mug", Price: decimal.RequireFromString("10.00"), Stock: 3, IsActive: true})

	tx := repository.NewMemoryTx(store)
	products := repository.NewMemoryProducts(store)
	carts := repository.NewMemoryCarts(store)
	orders := repository.NewMemoryOrders(store)
	inventory := service.NewInventory(products)
	verifier := payment.NewVerifier(hmacSecret)
	m := metrics.New()

	e := NewServer(Options{
		AppName:   "shop-service",
		JWTSecret: jwtSecret,
		RateLimit: 1000,
		RateBurst: 1000,
		Metrics:   m,
		Orders: service.NewOrderService(tx, orders, carts, repository.NewMemoryUsers(store), inventory,
			stubGateway{}, nil, memoryGuard{}, m),
		Carts:    service.NewCartService(tx, carts, products, nil),
		Webhooks: service.NewWebhookService(tx, orders, inventory, verifier, nil, m),
	})
	return &testServer{e: e, store: store, verifier: verifier}
}

func (s *testServer) do(t *testing.T, method, target string, p *auth.Principal, body string, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	if p != nil {
		token, err := auth.SignToken(jwtSecret, *p, time.Hour)
		if err != nil {
			t.Fatal(err)
		}
		req.Header.Set(echo.HeaderAuthorization, "Bearer "+token)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	s.e.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), v); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
}

func expectStatus(t *testing.T, rec *httptest.ResponseRecorder, status int) {
	t.Helper()
	if rec.Code != status {
		t.Fatalf("expected status %d, got %d: %s", status, rec.Code, rec.Body.String())
	}
}

func TestPublicAndProtectedRoutes(t *testing.T) {
	s := newTestServer(t)

	expectStatus(t, s.do(t, http.MethodGet, "/health", nil, "", nil), http.StatusOK)
	expectStatus(t, s.do(t, http.MethodGet, "/orders/mine", nil, "", nil), http.StatusUnauthorized)
	expectStatus(t, s.do(t, http.MethodGet, "/orders", &alice, "", nil), http.StatusForbidden)
	expectStatus(t, s.do(t, http.MethodGet, "/orders", &admin, "", nil), http.StatusOK)
	expectStatus(t, s.do(t, http.MethodGet, "/orders?limit=500", &admin, "", nil), http.StatusBadRequest)
	expectStatus(t, s.do(t, http.MethodGet, "/orders?page=x", &admin, "", nil), http.StatusBadRequest)

	rec := s.do(t, http.MethodGet, "/metrics", nil, "", nil)
	expectStatus(t, rec, http.StatusOK)
	if !strings.Contains(rec.Body.String(), "shop_http_requests_total") {
		t.Fatal("metrics endpoint should expose request counters")
	}
}

func TestPlaceCashOrderOverHTTP(t *testing.T) {
	s := newTestServer(t)

	expectStatus(t, s.do(t, http.MethodPost, "/cart", &alice, `{"productId":1,"quantity":2}`, nil), http.StatusOK)

	rec := s.do(t, http.MethodPost, "/orders", &alice, `{"paymentMethod":"cash"}`, nil)
	expectStatus(t, rec, http.StatusCreated)
	var order entity.Order
	decode(t, rec, &order)
	if order.Total != 2000 || order.Status != entity.OrderStatusPending || order.PaymentURL != "" {
		t.Fatalf("unexpected order %+v", order)
	}

	rec = s.do(t, http.MethodGet, "/products/1/stock", &alice, "", nil)
	expectStatus(t, rec, http.StatusOK)
	var stock map[string]int
	decode(t, rec, &stock)
	if stock["stock"] != 1 {
		t.Fatalf("expected stock 1, got %v", stock)
	}

	var cart entity.Cart
	decode(t, s.do(t, http.MethodGet, "/cart", &alice, "", nil), &cart)
	if len(cart.Items) != 0 {
		t.Fatal("cart should be emptied")
	}

	expectStatus(t, s.do(t, http.MethodGet, "/orders/mine/1", &alice, "", nil), http.StatusOK)
	expectStatus(t, s.do(t, http.MethodGet, "/orders/mine/1", &bob, "", nil), http.StatusForbidden)
	expectStatus(t, s.do(t, http.MethodGet, "/orders/mine/7", &alice, "", nil), http.StatusNotFound)
	expectStatus(t, s.do(t, http.MethodGet, "/orders/abc", &admin, "", nil), http.StatusBadRequest)
}

func TestPlaceOrderErrors(t *testing.T) {
	s := newTestServer(t)

	expectStatus(t, s.do(t, http.MethodPost, "/orders", &alice, `{"paymentMethod":"cash"}`, nil), http.StatusBadRequest)
	expectStatus(t, s.do(t, http.MethodPost, "/orders", &alice, `{`, nil), http.StatusBadRequest)

	expectStatus(t, s.do(t, http.MethodPost, "/cart", &alice, `{"productId":1,"quantity":5}`, nil), http.StatusOK)
	rec := s.do(t, http.MethodPost, "/orders", &alice, `{"paymentMethod":"cash"}`, nil)
	expectStatus(t, rec, http.StatusConflict)
	var body map[string]string
	decode(t, rec, &body)
	if body["error"] != "Insufficient stock for Mug. Available: 3" {
		t.Fatalf("unexpected error %q", body["error"])
	}
}

func TestIdempotencyKeyOverHTTP(t *testing.T) {
	s := newTestServer(t)
	headers := map[string]string{"Idempotency-Key": "checkout-1"}

	expectStatus(t, s.do(t, http.MethodPost, "/cart", &alice, `{"productId":1,"quantity":1}`, nil), http.StatusOK)
	expectStatus(t, s.do(t, http.MethodPost, "/orders", &alice, `{"paymentMethod":"cash"}`, headers), http.StatusCreated)

	expectStatus(t, s.do(t, http.MethodPost, "/cart", &alice, `{"productId":1,"quantity":1}`, nil), http.StatusOK)
	expectStatus(t, s.do(t, http.MethodPost, "/orders", &alice, `{"paymentMethod":"cash"}`, headers), http.StatusConflict)
}

func TestWebhookOverHTTP(t *testing.T) {
	s := newTestServer(t)
	expectStatus(t, s.do(t, http.MethodPost, "/cart", &alice, `{"productId":1,"quantity":2}`, nil), http.StatusOK)

	rec := s.do(t, http.MethodPost, "/orders", &alice, `{"paymentMethod":"card"}`, nil)
	expectStatus(t, rec, http.StatusCreated)
	var order entity.Order
	decode(t, rec, &order)
	if order.PaymentURL != "https://pay.example/42" {
		t.Fatalf("expected a payment url, got %+v", order)
	}

	body := `{"type":"TRANSACTION","obj":{"id":9001,"pending":false,"amount_cents":2000,"success":true,` +
		`"is_auth":false,"is_capture":false,"is_standalone_payment":true,"is_voided":false,"is_refunded":false,` +
		`"is_3d_secure":true,"integration_id":1,"has_parent_transaction":false,"error_occured":false,` +
		`"currency":"EGP","created_at":"2024-05-20T12:01:02","owner":1,"order":{"id":42},` +
		`"source_data":{"pan":"2346","type":"card","sub_type":"MasterCard"}}}`
	cb, err := payment.ParseCallback([]byte(body))
	if err != nil {
		t.Fatal(err)
	}
	sig := s.verifier.Sign(cb)

	expectStatus(t, s.do(t, http.MethodPost, webhookPath, nil, body, nil), http.StatusUnauthorized)
	expectStatus(t, s.do(t, http.MethodPost, webhookPath, nil, body, map[string]string{"X-Provider-Signature": "00"}), http.StatusUnauthorized)
	expectStatus(t, s.do(t, http.MethodPost, webhookPath, nil, "{}", map[string]string{"X-Provider-Signature": sig}), http.StatusBadRequest)

	rec = s.do(t, http.MethodPost, webhookPath, nil, body, map[string]string{"X-Provider-Signature": sig})
	expectStatus(t, rec, http.StatusOK)
	var res map[string]bool
	decode(t, rec, &res)
	if !res["success"] {
		t.Fatal("expected success")
	}

	rec = s.do(t, http.MethodGet, webhookPath+"?hmac="+url.QueryEscape(sig), nil, body, nil)
	expectStatus(t, rec, http.StatusOK)

	decode(t, s.do(t, http.MethodGet, "/orders/1", &admin, "", nil), &order)
	if order.Status != entity.OrderStatusConfirmed {
		t.Fatalf("expected CONFIRMED, got %s", order.Status)
	}
}

func TestOrderLifecycleOverHTTP(t *testing.T) {
	s := newTestServer(t)
	expectStatus(t, s.do(t, http.MethodPost, "/cart", &alice, `{"productId":1,"quantity":2}`, nil), http.StatusOK)
	expectStatus(t, s.do(t, http.MethodPost, "/orders", &alice, `{"paymentMethod":"cash"}`, nil), http.StatusCreated)

	expectStatus(t, s.do(t, http.MethodPatch, "/orders/1/status", &alice, `{"status":"CONFIRMED"}`, nil), http.StatusForbidden)
	expectStatus(t, s.do(t, http.MethodPatch, "/orders/1/status", &admin, `{"status":"BOGUS"}`, nil), http.StatusBadRequest)
	expectStatus(t, s.do(t, http.MethodPatch, "/orders/1/cancel", &bob, "", nil), http.StatusForbidden)

	rec := s.do(t, http.MethodPatch, "/orders/1/cancel", &alice, "", nil)
	expectStatus(t, rec, http.StatusOK)
	var order entity.Order
	decode(t, rec, &order)
	if order.Status != entity.OrderStatusCanceled {
		t.Fatalf("expected CANCELED, got %s", order.Status)
	}

	var stock map[string]int
	decode(t, s.do(t, http.MethodGet, "/products/1/stock", &alice, "", nil), &stock)
	if stock["stock"] != 3 {
		t.Fatalf("cancel should release stock, got %v", stock)
	}

	expectStatus(t, s.do(t, http.MethodPost, "/orders/1/payment", &alice, "", nil), http.StatusBadRequest)
	expectStatus(t, s.do(t, http.MethodDelete, "/orders/1", &admin, "", nil), http.StatusBadRequest)
}

func TestCartRoutes(t *testing.T) {
	s := newTestServer(t)

	var cart entity.Cart
	rec := s.do(t, http.MethodPost, "/cart/merge", &alice, `{"items":[{"productId":1,"quantity":2},{"productId":9,"quantity":1}]}`, nil)
	expectStatus(t, rec, http.StatusOK)
	decode(t, rec, &cart)
	if len(cart.Items) != 1 || cart.Items[0].Quantity != 2 {
		t.Fatalf("unexpected cart %+v", cart)
	}
	item := cart.Items[0].ItemID
	itemPath := "/cart/item/" + strconv.FormatInt(item, 10)

	expectStatus(t, s.do(t, http.MethodPatch, itemPath, &bob, `{"quantity":1}`, nil), http.StatusForbidden)
	expectStatus(t, s.do(t, http.MethodPatch, itemPath, &alice, `{"quantity":0}`, nil), http.StatusBadRequest)
	expectStatus(t, s.do(t, http.MethodPatch, itemPath, &alice, `{"quantity":1}`, nil), http.StatusOK)
	expectStatus(t, s.do(t, http.MethodDelete, itemPath, &alice, "", nil), http.StatusOK)
	expectStatus(t, s.do(t, http.MethodDelete, "/cart/clear", &alice, "", nil), http.StatusOK)
	expectStatus(t, s.do(t, http.MethodPost, "/cart", &alice, `{"productId":404,"quantity":1}`, nil), http.StatusNotFound)
}
