package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	_ "github.com/go-sql-driver/mysql"
	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"shop-service/internal/api"
	"shop-service/internal/cache"
	"shop-service/internal/config"
	"shop-service/internal/entity"
	"shop-service/internal/events"
	"shop-service/internal/idempotency"
	"shop-service/internal/metrics"
	"shop-service/internal/payment"
	"shop-service/internal/repository"
	"shop-service/internal/service"
	"shop-service/migrations"
)

type repositories struct {
	tx       repository.TxManager
	products repository.ProductRepository
	carts    repository.CartRepository
	orders   repository.OrderRepository
	users    repository.UserRepository
	close    func()
}

func connectDB(cfg config.Config) (*sqlx.DB, error) {
	var db *sqlx.DB
	var err error
	for i := 0; i < 10; i++ {
		db, err = sqlx.Connect("mysql", cfg.MySQLDSN())
		if err == nil {
			log.Info().Str("db", cfg.DBName).Msg("Connected to DB")
			return db, nil
		}
		log.Warn().Err(err).Int("attempt", i+1).Str("addr", fmt.Sprintf("%s:%d", cfg.DBHost, cfg.DBPort)).
			Msg("Failed to connect to DB")
		time.Sleep(3 * time.Second)
	}
	return nil, fmt.Errorf("failed to connect to DB %s at %s:%d after retries: %w", cfg.DBName, cfg.DBHost, cfg.DBPort, err)
}

// demoProducts stocks the in-memory store so checkout works without a catalog service.
func demoProducts() []entity.Product {
	return []entity.Product{
		{ID: 1, Name: "Ceramic Mug", Description: "350ml stoneware mug", Price: decimal.RequireFromString("120.00"), Stock: 50, IsActive: true},
		{ID: 2, Name: "Cotton T-Shirt", Description: "Plain crew neck, size M", Price: decimal.RequireFromString("349.99"), Stock: 25, IsActive: true},
		{ID: 3, Name: "Notebook", Description: "A5 dotted, 120 pages", Price: decimal.RequireFromString("85.50"), Stock: 100, IsActive: true},
	}
}

func openRepositories(cfg config.Config) (*repositories, error) {
	if cfg.DBDriver == "memory" {
		log.Warn().Msg("Using in-memory store with demo products, data is lost on restart")
		store := repository.NewMemoryStore()
		for _, p := range demoProducts() {
			store.PutProduct(p)
		}
		return &repositories{
			tx:       repository.NewMemoryTx(store),
			products: repository.NewMemoryProducts(store),
			carts:    repository.NewMemoryCarts(store),
			orders:   repository.NewMemoryOrders(store),
			users:    repository.NewMemoryUsers(store),
			close:    func() {},
		}, nil
	}

	db, err := connectDB(cfg)
	if err != nil {
		return nil, err
	}
	if err := migrations.AutoMigrate(3, db.DB); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	store := repository.NewSQLStore(db)
	return &repositories{
		tx:       store,
		products: repository.NewSQLProducts(store),
		carts:    repository.NewSQLCarts(store),
		orders:   repository.NewSQLOrders(store),
		users:    repository.NewSQLUsers(store),
		close:    func() { db.Close() },
	}, nil
}

func setLogLevel(level string) {
	switch strings.ToLower(level) {
	case "debug":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "warn":
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case "error":
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	default:
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
}

func main() {
	cfg, err := config.LoadConfig(".")
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}
	setLogLevel(cfg.LogLevel)
	log.Info().Str("appName", cfg.AppName).Msg("Application starting")

	repos, err := openRepositories(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize database")
	}
	defer repos.close()

	var guard service.IdempotencyGuard
	var stockCache service.StockCache
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr: cfg.RedisAddr,
		})
		defer rdb.Close()
		guard = idempotency.NewStore(rdb, idempotency.DefaultTTL)
		stockCache = cache.NewStockCache(rdb, cache.DefaultStockTTL)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	publisher := events.NewPublisher(nil)
	brokers := cfg.Brokers()
	if len(brokers) > 0 {
		kafkaWriter := config.NewKafkaWriter(brokers, cfg.KafkaOrderTopic)
		defer kafkaWriter.Close()
		publisher = events.NewPublisher(kafkaWriter)
	}

	if cfg.PaymobHMACSecret == "" {
		log.Warn().Msg("PAYMOB_HMAC_SECRET is not set, every payment callback will be rejected")
	}
	gateway := payment.NewPaymob(payment.Config{
		BaseURL:       cfg.PaymobBaseURL,
		APIKey:        cfg.PaymobAPIKey,
		IntegrationID: cfg.PaymobIntegrationID,
		IframeID:      cfg.PaymobIframeID,
		Timeout:       cfg.PaymobTimeout,
	})
	m := metrics.New()

	inventory := service.NewInventory(repos.products)
	orderService := service.NewOrderService(repos.tx, repos.orders, repos.carts, repos.users, inventory,
		gateway, publisher, guard, m)
	webhookService := service.NewWebhookService(repos.tx, repos.orders, inventory,
		payment.NewVerifier(cfg.PaymobHMACSecret), publisher, m)
	cartService := service.NewCartService(repos.tx, repos.carts, repos.products, stockCache)

	if len(brokers) > 0 {
		kafkaReader := config.NewKafkaReader(brokers, cfg.KafkaOrderTopic, cfg.KafkaGroupID)
		defer kafkaReader.Close()
		consumer := events.NewPaymentRetryConsumer(kafkaReader, orderService)
		go func() {
			if err := consumer.Run(ctx); err != nil {
				log.Error().Err(err).Msg("Payment retry consumer stopped")
			}
		}()
	}

	e := api.NewServer(api.Options{
		AppName:   cfg.AppName,
		JWTSecret: cfg.JWTSecret,
		RateLimit: cfg.RateLimit,
		RateBurst: cfg.RateBurst,
		Metrics:   m,
		Orders:    orderService,
		Carts:     cartService,
		Webhooks:  webhookService,
	})

	go func() {
		if err := e.Start(cfg.HTTPAddr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Application shutting down...")
	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown failed")
	}
}
