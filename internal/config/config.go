package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	HTTPPort        string
	GRPCPort        string
	RequestTimeout  time.Duration
	ShutdownTimeout time.Duration

	MarketplaceURL     string
	MarketplaceTimeout time.Duration
	BreakerFailures    uint32
	BreakerCooldown    time.Duration
	ResolveSellerNames bool

	JWTSecret string

	RedisAddr     string
	RedisPassword string
	RedisDB       int
	QuoteCacheTTL time.Duration
	SelectionTTL  time.Duration

	PostgresHost     string
	PostgresPort     int
	PostgresUser     string
	PostgresPassword string
	PostgresDB       string
	MigrationsPath   string

	KafkaBrokers []string
	KafkaTopic   string
	KafkaGroupID string

	Currency       string
	AllowedOrigins []string
	SessionIdleTTL time.Duration
	JanitorPeriod  time.Duration
	LogLevel       string
}

func defaults(v *viper.Viper) {
	v.SetDefault("HTTP_PORT", "8080")
	v.SetDefault("GRPC_PORT", "50060")
	v.SetDefault("REQUEST_TIMEOUT", "30s")
	v.SetDefault("SHUTDOWN_TIMEOUT", "10s")

	v.SetDefault("MARKETPLACE_URL", "http://localhost:8000")
	v.SetDefault("MARKETPLACE_TIMEOUT", "0s")
	v.SetDefault("BREAKER_FAILURES", 5)
	v.SetDefault("BREAKER_COOLDOWN", "10s")
	v.SetDefault("RESOLVE_SELLER_NAMES", false)

	v.SetDefault("JWT_SECRET", "")

	v.SetDefault("REDIS_ADDR", "")
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("QUOTE_CACHE_TTL", "15m")
	v.SetDefault("SELECTION_TTL", "168h")

	v.SetDefault("POSTGRES_HOST", "")
	v.SetDefault("POSTGRES_PORT", 5432)
	v.SetDefault("POSTGRES_USER", "storefront")
	v.SetDefault("POSTGRES_PASSWORD", "")
	v.SetDefault("POSTGRES_DB", "storefront")
	v.SetDefault("MIGRATIONS_PATH", "internal/repository/migrations")

	v.SetDefault("KAFKA_BROKERS", "")
	v.SetDefault("KAFKA_TOPIC", "storefront.checkout-completed")
	v.SetDefault("KAFKA_GROUP_ID", "")

	v.SetDefault("CURRENCY", "IDR")
	v.SetDefault("ALLOWED_ORIGINS", "http://localhost:3000")
	v.SetDefault("SESSION_IDLE_TTL", "30m")
	v.SetDefault("JANITOR_PERIOD", "1m")
	v.SetDefault("LOG_LEVEL", "info")
}

// Load reads configuration from the environment. A .env file in the working
// directory is applied first when present.
func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	defaults(v)
	v.AutomaticEnv()
	return fromViper(v)
}

func fromViper(v *viper.Viper) (*Config, error) {
	cfg := &Config{
		HTTPPort:        v.GetString("HTTP_PORT"),
		GRPCPort:        v.GetString("GRPC_PORT"),
		RequestTimeout:  v.GetDuration("REQUEST_TIMEOUT"),
		ShutdownTimeout: v.GetDuration("SHUTDOWN_TIMEOUT"),

		MarketplaceURL:     v.GetString("MARKETPLACE_URL"),
		MarketplaceTimeout: v.GetDuration("MARKETPLACE_TIMEOUT"),
		BreakerFailures:    v.GetUint32("BREAKER_FAILURES"),
		BreakerCooldown:    v.GetDuration("BREAKER_COOLDOWN"),
		ResolveSellerNames: v.GetBool("RESOLVE_SELLER_NAMES"),

		JWTSecret: v.GetString("JWT_SECRET"),

		RedisAddr:     v.GetString("REDIS_ADDR"),
		RedisPassword: v.GetString("REDIS_PASSWORD"),
		RedisDB:       v.GetInt("REDIS_DB"),
		QuoteCacheTTL: v.GetDuration("QUOTE_CACHE_TTL"),
		SelectionTTL:  v.GetDuration("SELECTION_TTL"),

		PostgresHost:     v.GetString("POSTGRES_HOST"),
		PostgresPort:     v.GetInt("POSTGRES_PORT"),
		PostgresUser:     v.GetString("POSTGRES_USER"),
		PostgresPassword: v.GetString("POSTGRES_PASSWORD"),
		PostgresDB:       v.GetString("POSTGRES_DB"),
		MigrationsPath:   v.GetString("MIGRATIONS_PATH"),

		KafkaBrokers: splitList(v.GetString("KAFKA_BROKERS")),
		KafkaTopic:   v.GetString("KAFKA_TOPIC"),
		KafkaGroupID: v.GetString("KAFKA_GROUP_ID"),

		Currency:       v.GetString("CURRENCY"),
		AllowedOrigins: splitList(v.GetString("ALLOWED_ORIGINS")),
		SessionIdleTTL: v.GetDuration("SESSION_IDLE_TTL"),
		JanitorPeriod:  v.GetDuration("JANITOR_PERIOD"),
		LogLevel:       v.GetString("LOG_LEVEL"),
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	var errs []error
	if c.MarketplaceURL == "" {
		errs = append(errs, errors.New("MARKETPLACE_URL is required"))
	}
	if c.HTTPPort == "" {
		errs = append(errs, errors.New("HTTP_PORT is required"))
	}
	if c.JanitorPeriod <= 0 {
		errs = append(errs, fmt.Errorf("JANITOR_PERIOD must be positive, got %s", c.JanitorPeriod))
	}
	return errors.Join(errs...)
}

func (c *Config) RedisEnabled() bool    { return c.RedisAddr != "" }
func (c *Config) PostgresEnabled() bool { return c.PostgresHost != "" }
func (c *Config) KafkaEnabled() bool    { return len(c.KafkaBrokers) > 0 }

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
