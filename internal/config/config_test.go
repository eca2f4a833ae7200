package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequired(t *testing.T) {
	t.Setenv("JWT_SECRET", "jwt")
	t.Setenv("VNPAY_TMN_CODE", "TMN")
	t.Setenv("VNPAY_SECRET_KEY", "secret")
}

func TestLoad_Defaults(t *testing.T) {
	setRequired(t)

	cfg, err := Load()
	require.NoError(t, err)
	require.NoError(t, cfg.ValidateAPI())

	assert.Equal(t, "order-topic", cfg.OrderTopic)
	assert.Equal(t, "order-service-group", cfg.ConsumerGroup)
	assert.Equal(t, DispatchOutbox, cfg.CommandDispatch)
	assert.Equal(t, OracleHTTP, cfg.PriceOracle)
	assert.Equal(t, []string{"localhost:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, 3*time.Second, cfg.OracleTimeout)
	assert.True(t, cfg.RunMigrations)
	assert.Equal(t, "http://localhost:3000", cfg.FrontendURL)
}

func TestLoad_Overrides(t *testing.T) {
	setRequired(t)
	t.Setenv("KAFKA_BROKERS", "k1:9092, k2:9092,")
	t.Setenv("COMMAND_DISPATCH", "DIRECT")
	t.Setenv("ORACLE_TIMEOUT", "750ms")
	t.Setenv("FRONTEND_URL", "https://shop.example/")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, DispatchDirect, cfg.CommandDispatch)
	assert.Equal(t, 750*time.Millisecond, cfg.OracleTimeout)
	assert.Equal(t, "https://shop.example", cfg.FrontendURL)
}

func TestLoad_MissingSecrets(t *testing.T) {
	t.Setenv("JWT_SECRET", "")
	t.Setenv("VNPAY_TMN_CODE", "")
	t.Setenv("VNPAY_SECRET_KEY", "")

	cfg, err := Load()
	require.NoError(t, err)

	err = cfg.ValidateAPI()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "JWT_SECRET")
	assert.Contains(t, err.Error(), "VNPAY_SECRET_KEY")
}

func TestLoad_InvalidValues(t *testing.T) {
	setRequired(t)
	t.Setenv("PRICE_ORACLE", "grpc")

	_, err := Load()
	assert.ErrorContains(t, err, "PRICE_ORACLE")

	t.Setenv("PRICE_ORACLE", "")
	t.Setenv("GATEWAY_TIMEOUT", "soon")
	_, err = Load()
	assert.ErrorContains(t, err, "GATEWAY_TIMEOUT")
}
