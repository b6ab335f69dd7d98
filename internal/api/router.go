package api

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"golang.org/x/time/rate"

	"shop-service/internal/auth"
	"shop-service/internal/metrics"
	"shop-service/internal/service"
)

const (
	healthPath  = "/health"
	metricsPath = "/metrics"
	webhookPath = "/orders/paymob-webhook"
)

type Options struct {
	AppName   string
	JWTSecret string
	RateLimit float64
	RateBurst int
	Metrics   *metrics.Metrics

	Orders   *service.OrderService
	Carts    *service.CartService
	Webhooks *service.WebhookService
}

func rateLimiter(limit float64, burst int) echo.MiddlewareFunc {
	limiterConfig := middleware.RateLimiterConfig{
		Skipper: func(c echo.Context) bool {
			return c.Request().URL.Path == webhookPath || c.Request().URL.Path == metricsPath
		},
		Store: middleware.NewRateLimiterMemoryStoreWithConfig(
			middleware.RateLimiterMemoryStoreConfig{
				Rate:      rate.Limit(limit),
				Burst:     burst,
				ExpiresIn: 3 * time.Minute,
			}),
		IdentifierExtractor: func(context echo.Context) (string, error) {
			return context.RealIP(), nil
		},
		ErrorHandler: func(context echo.Context, err error) error {
			return context.JSON(http.StatusTooManyRequests, map[string]string{"error": "rate limit exceeded"})
		},
		DenyHandler: func(context echo.Context, identifier string, err error) error {
			return context.JSON(http.StatusTooManyRequests, map[string]string{"error": "rate limit exceeded"})
		},
	}
	return middleware.RateLimiterWithConfig(limiterConfig)
}

// NewServer builds the echo instance with middleware and every route registered.
func NewServer(opts Options) *echo.Echo {
	e := echo.New()
	e.HideBanner = true

	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())
	e.Use(opts.Metrics.Middleware())
	e.Use(rateLimiter(opts.RateLimit, opts.RateBurst))
	e.Use(auth.Middleware(opts.JWTSecret, auth.SkipPaths(healthPath, metricsPath, webhookPath)))

	orderHandler := NewOrderHandler(opts.Orders)
	cartHandler := NewCartHandler(opts.Carts)
	webhookHandler := NewWebhookHandler(opts.Webhooks)

	e.GET(healthPath, func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]interface{}{
			"status":  "ok",
			"service": opts.AppName,
			"time":    time.Now().Format(time.RFC3339),
		})
	})
	if opts.Metrics != nil {
		e.GET(metricsPath, echo.WrapHandler(opts.Metrics.Handler()))
	}

	e.Any(webhookPath, webhookHandler.PaymobCallback)

	e.POST("/orders", orderHandler.PlaceOrder)
	e.GET("/orders", orderHandler.ListOrders, auth.RequireAdmin)
	e.GET("/orders/mine", orderHandler.ListMine)
	e.GET("/orders/mine/:id", orderHandler.GetOrder)
	e.GET("/orders/:id", orderHandler.GetOrder, auth.RequireAdmin)
	e.PATCH("/orders/:id/status", orderHandler.UpdateStatus, auth.RequireAdmin)
	e.PATCH("/orders/:id/cancel", orderHandler.CancelOrder)
	e.POST("/orders/:id/payment", orderHandler.RetryPayment)
	e.DELETE("/orders/:id", orderHandler.DeleteOrder, auth.RequireAdmin)

	e.GET("/cart", cartHandler.GetCart)
	e.POST("/cart", cartHandler.AddItem)
	e.PATCH("/cart/item/:id", cartHandler.UpdateItem)
	e.DELETE("/cart/item/:id", cartHandler.RemoveItem)
	e.POST("/cart/merge", cartHandler.MergeCarts)
	e.DELETE("/cart/clear", cartHandler.ClearCart)

	e.GET("/products/:id/stock", cartHandler.ProductStock)

	return e
}
