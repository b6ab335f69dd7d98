package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMiddlewareCountsByRoute(t *testing.T) {
	m := New()
	e := echo.New()
	e.Use(m.Middleware())
	e.GET("/orders/:id", func(c echo.Context) error { return c.NoContent(http.StatusOK) })
	e.GET("/metrics", echo.WrapHandler(m.Handler()))

	for _, path := range []string{"/orders/1", "/orders/2"} {
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	}

	if got := testutil.ToFloat64(m.Requests.WithLabelValues("/orders/:id", http.MethodGet, "200")); got != 2 {
		t.Fatalf("expected 2 requests, got %v", got)
	}

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if !strings.Contains(rec.Body.String(), "shop_http_requests_total") {
		t.Fatal("metrics endpoint does not expose request counter")
	}
}

func TestDomainCountersAndNilReceiver(t *testing.T) {
	m := New()
	m.OrderPlaced(true)
	m.OrderPlaced(false)
	m.OrderPlaced(false)
	m.StockConflict()
	m.PaymentInitiated(false)
	m.Callback("confirmed")

	if testutil.ToFloat64(m.OrdersPlaced.WithLabelValues("card")) != 1 {
		t.Fatal("order counter not incremented")
	}
	if testutil.ToFloat64(m.OrdersPlaced.WithLabelValues("other")) != 2 {
		t.Fatal("non-card orders should share one series")
	}
	if n := testutil.CollectAndCount(m.OrdersPlaced); n != 2 {
		t.Fatalf("expected 2 payment method series, got %d", n)
	}
	if testutil.ToFloat64(m.PaymentAttempts.WithLabelValues("failure")) != 1 {
		t.Fatal("payment counter not incremented")
	}

	var none *Metrics
	none.OrderPlaced(false)
	none.StockConflict()
	none.PaymentInitiated(true)
	none.Callback("x")
}
