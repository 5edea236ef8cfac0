package config

import (
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	v := viper.New()
	defaults(v)

	cfg, err := fromViper(v)
	require.NoError(t, err)
	assert.Equal(t, "8080", cfg.HTTPPort)
	assert.Equal(t, time.Duration(0), cfg.MarketplaceTimeout)
	assert.Equal(t, uint32(5), cfg.BreakerFailures)
	assert.Equal(t, 15*time.Minute, cfg.QuoteCacheTTL)
	assert.Equal(t, "IDR", cfg.Currency)
	assert.Equal(t, []string{"http://localhost:3000"}, cfg.AllowedOrigins)
	assert.False(t, cfg.RedisEnabled())
	assert.False(t, cfg.PostgresEnabled())
	assert.False(t, cfg.KafkaEnabled())
}

func TestEnvironmentOverrides(t *testing.T) {
	t.Setenv("MARKETPLACE_URL", "https://api.example.test")
	t.Setenv("MARKETPLACE_TIMEOUT", "3s")
	t.Setenv("REDIS_ADDR", "localhost:6379")
	t.Setenv("KAFKA_BROKERS", "k1:9092, k2:9092")
	t.Setenv("RESOLVE_SELLER_NAMES", "true")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "https://api.example.test", cfg.MarketplaceURL)
	assert.Equal(t, 3*time.Second, cfg.MarketplaceTimeout)
	assert.True(t, cfg.RedisEnabled())
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.KafkaBrokers)
	assert.True(t, cfg.ResolveSellerNames)
}

func TestValidate(t *testing.T) {
	v := viper.New()
	defaults(v)
	v.Set("MARKETPLACE_URL", "")
	v.Set("JANITOR_PERIOD", "0s")

	_, err := fromViper(v)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "MARKETPLACE_URL")
	assert.Contains(t, err.Error(), "JANITOR_PERIOD")
}
