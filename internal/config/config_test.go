package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadConfigDefaultsAndEnv(t *testing.T) {
	t.Setenv("JWT_SECRET", "s3cret")
	t.Setenv("DB_DRIVER", "memory")
	t.Setenv("PAYMOB_TIMEOUT", "3s")
	t.Setenv("KAFKA_BROKERS", " a:1, ,b:2 ")

	cfg, err := LoadConfig(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	if cfg.AppName != "shop-service" || cfg.HTTPAddr != ":8080" || cfg.DBDriver != "memory" {
		t.Fatalf("unexpected config %+v", cfg)
	}
	if cfg.PaymobTimeout != 3*time.Second {
		t.Fatalf("unexpected timeout %v", cfg.PaymobTimeout)
	}
	brokers := cfg.Brokers()
	if len(brokers) != 2 || brokers[0] != "a:1" || brokers[1] != "b:2" {
		t.Fatalf("unexpected brokers %v", brokers)
	}
}

func TestRedisAndKafkaAreOptional(t *testing.T) {
	t.Setenv("JWT_SECRET", "s3cret")
	t.Setenv("REDIS_ADDR", "")
	t.Setenv("KAFKA_BROKERS", "")

	cfg, err := LoadConfig(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	if cfg.RedisAddr != "" || len(cfg.Brokers()) != 0 {
		t.Fatalf("redis and kafka should be off unless configured: %q %v", cfg.RedisAddr, cfg.Brokers())
	}

	t.Setenv("REDIS_ADDR", "redis:6379")
	t.Setenv("KAFKA_BROKERS", "kafka:9092")
	cfg, err = LoadConfig(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	if cfg.RedisAddr != "redis:6379" || len(cfg.Brokers()) != 1 {
		t.Fatalf("configured redis and kafka not picked up: %+v", cfg)
	}
}

func TestLoadConfigReadsFile(t *testing.T) {
	dir := t.TempDir()
	content := "JWT_SECRET=from-file\nDB_PORT=3307\nPAYMOB_IFRAME_ID=777\n"
	if err := os.WriteFile(filepath.Join(dir, "app.env"), []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadConfig(dir)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.JWTSecret != "from-file" || cfg.DBPort != 3307 || cfg.PaymobIframeID != "777" {
		t.Fatalf("file values not loaded: %+v", cfg)
	}
	if dsn := cfg.MySQLDSN(); !strings.Contains(dsn, "tcp(localhost:3307)/shop") || !strings.Contains(dsn, "parseTime=true") {
		t.Fatalf("unexpected dsn %s", dsn)
	}
}

func TestValidate(t *testing.T) {
	ok := Config{DBDriver: "mysql", JWTSecret: "x", RateLimit: 1, RateBurst: 1}
	if err := ok.Validate(); err != nil {
		t.Fatal(err)
	}

	bad := ok
	bad.DBDriver = "postgres"
	if bad.Validate() == nil {
		t.Error("unknown driver accepted")
	}
	bad = ok
	bad.JWTSecret = ""
	if bad.Validate() == nil {
		t.Error("empty secret accepted")
	}
}
