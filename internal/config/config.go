package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

// Config stores all configuration of the application.
// The values are read by viper from an app.env file or environment variables.
type Config struct {
	AppName  string `mapstructure:"APP_NAME"`
	LogLevel string `mapstructure:"LOG_LEVEL"`
	HTTPAddr string `mapstructure:"HTTP_ADDR"`

	// DBDriver is "mysql" or "memory"
	DBDriver string `mapstructure:"DB_DRIVER"`
	DBHost   string `mapstructure:"DB_HOST"`
	DBPort   int    `mapstructure:"DB_PORT"`
	DBUser   string `mapstructure:"DB_USER"`
	DBPass   string `mapstructure:"DB_PASS"`
	DBName   string `mapstructure:"DB_NAME"`

	// Empty disables idempotency keys
	RedisAddr string `mapstructure:"REDIS_ADDR"`

	// Empty disables events and the payment retry consumer
	KafkaBrokers    string `mapstructure:"KAFKA_BROKERS"`
	KafkaOrderTopic string `mapstructure:"KAFKA_ORDER_TOPIC"`
	KafkaGroupID    string `mapstructure:"KAFKA_GROUP_ID"`

	JWTSecret string `mapstructure:"JWT_SECRET"`

	PaymobBaseURL       string        `mapstructure:"PAYMOB_BASE_URL"`
	PaymobAPIKey        string        `mapstructure:"PAYMOB_API_KEY"`
	PaymobIntegrationID int64         `mapstructure:"PAYMOB_CARD_INTEGRATION_ID"`
	PaymobIframeID      string        `mapstructure:"PAYMOB_IFRAME_ID"`
	PaymobHMACSecret    string        `mapstructure:"PAYMOB_HMAC_SECRET"`
	PaymobTimeout       time.Duration `mapstructure:"PAYMOB_TIMEOUT"`

	RateLimit float64 `mapstructure:"RATE_LIMIT"`
	RateBurst int     `mapstructure:"RATE_BURST"`
}

// LoadConfig reads configuration from path/app.env, then the environment, then defaults.
func LoadConfig(path string) (config Config, err error) {
	v := viper.New()
	v.AddConfigPath(path)
	v.SetConfigName("app")
	v.SetConfigType("env")

	v.AutomaticEnv()

	v.SetDefault("APP_NAME", "shop-service")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("HTTP_ADDR", ":8080")

	v.SetDefault("DB_DRIVER", "mysql")
	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 3306)
	v.SetDefault("DB_USER", "root")
	v.SetDefault("DB_PASS", "password")
	v.SetDefault("DB_NAME", "shop")

	v.SetDefault("REDIS_ADDR", "")

	v.SetDefault("KAFKA_BROKERS", "")
	v.SetDefault("KAFKA_ORDER_TOPIC", "order-topic")
	v.SetDefault("KAFKA_GROUP_ID", "shop-service-payment-retry")

	v.SetDefault("JWT_SECRET", "")

	v.SetDefault("PAYMOB_BASE_URL", "https://accept.paymobsolutions.com")
	v.SetDefault("PAYMOB_API_KEY", "")
	v.SetDefault("PAYMOB_CARD_INTEGRATION_ID", 0)
	v.SetDefault("PAYMOB_IFRAME_ID", "")
	v.SetDefault("PAYMOB_HMAC_SECRET", "")
	v.SetDefault("PAYMOB_TIMEOUT", 10*time.Second)

	v.SetDefault("RATE_LIMIT", 10)
	v.SetDefault("RATE_BURST", 30)

	if err = v.ReadInConfig(); err == nil {
		log.Info().Str("file", v.ConfigFileUsed()).Msg("Using config file")
	} else if errors.As(err, new(viper.ConfigFileNotFoundError)) {
		log.Info().Msg("No config file found, using environment variables and defaults.")
	} else {
		log.Error().Err(err).Msg("Error reading config file")
		return
	}

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err = v.Unmarshal(&config); err != nil {
		return config, fmt.Errorf("decode config: %w", err)
	}
	return config, config.Validate()
}

// Validate rejects settings the service cannot start with.
func (c Config) Validate() error {
	switch c.DBDriver {
	case "mysql", "memory":
	default:
		return fmt.Errorf("unknown DB_DRIVER %q", c.DBDriver)
	}
	if c.JWTSecret == "" {
		return errors.New("JWT_SECRET is required")
	}
	if c.RateLimit <= 0 || c.RateBurst <= 0 {
		return errors.New("RATE_LIMIT and RATE_BURST must be positive")
	}
	return nil
}

// MySQLDSN builds the driver DSN. Timestamps are parsed into time.Time in UTC.
func (c Config) MySQLDSN() string {
	mc := mysql.NewConfig()
	mc.User = c.DBUser
	mc.Passwd = c.DBPass
	mc.Net = "tcp"
	mc.Addr = fmt.Sprintf("%s:%d", c.DBHost, c.DBPort)
	mc.DBName = c.DBName
	mc.ParseTime = true
	mc.Loc = time.UTC
	return mc.FormatDSN()
}

// Brokers splits KAFKA_BROKERS, dropping empty entries.
func (c Config) Brokers() []string {
	var brokers []string
	for _, b := range strings.Split(c.KafkaBrokers, ",") {
		if b = strings.TrimSpace(b); b != "" {
			brokers = append(brokers, b)
		}
	}
	return brokers
}
