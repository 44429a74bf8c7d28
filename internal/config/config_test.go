package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDatabase(t *testing.T) {
	t.Run("falls back to POSTGRES_URL", func(t *testing.T) {
		t.Setenv("DATABASE_DRIVER", "")
		t.Setenv("DATABASE_URL", "")
		t.Setenv("POSTGRES_URL", "postgres://localhost/orders")

		db, err := LoadDatabase()
		require.NoError(t, err)
		assert.Equal(t, "postgres", db.Driver)
		assert.Equal(t, "postgres://localhost/orders", db.URL)
	})

	t.Run("sqlite", func(t *testing.T) {
		t.Setenv("DATABASE_DRIVER", "sqlite")
		t.Setenv("DATABASE_URL", "file:orders.db")

		db, err := LoadDatabase()
		require.NoError(t, err)
		assert.Equal(t, "sqlite", db.Driver)
	})

	t.Run("unsupported driver", func(t *testing.T) {
		t.Setenv("DATABASE_DRIVER", "mysql")
		t.Setenv("DATABASE_URL", "x")

		_, err := LoadDatabase()
		require.ErrorContains(t, err, "unsupported driver")
	})

	t.Run("missing url", func(t *testing.T) {
		t.Setenv("DATABASE_DRIVER", "")
		t.Setenv("DATABASE_URL", "")
		t.Setenv("POSTGRES_URL", "")

		_, err := LoadDatabase()
		require.ErrorIs(t, err, ErrMissing)
	})
}

func TestLoadOrders(t *testing.T) {
	for _, key := range []string{"PORT", "DATABASE_DRIVER", "MIGRATE_ON_START", "KAFKA_BROKERS",
		"ORDER_EVENTS_TOPIC", "ORDER_CACHE_TTL", "MAX_UPLOAD_BYTES", "UPLOADS_DIR"} {
		t.Setenv(key, "")
	}
	t.Setenv("DATABASE_URL", "postgres://localhost/orders")

	t.Run("defaults", func(t *testing.T) {
		cfg, err := LoadOrders()
		require.NoError(t, err)

		assert.Equal(t, "8081", cfg.Port)
		assert.False(t, cfg.MigrateOnStart)
		assert.Empty(t, cfg.KafkaBrokers)
		assert.Equal(t, "order-events", cfg.EventsTopic)
		assert.Equal(t, 10*time.Minute, cfg.CacheTTL)
		assert.Equal(t, int64(10<<20), cfg.MaxUploadBytes)
		assert.Equal(t, "uploads", cfg.UploadsDir)
	})

	t.Run("overrides", func(t *testing.T) {
		t.Setenv("MIGRATE_ON_START", "true")
		t.Setenv("KAFKA_BROKERS", "k1:9092, k2:9092,")
		t.Setenv("ORDER_CACHE_TTL", "30s")
		t.Setenv("MAX_UPLOAD_BYTES", "2048")

		cfg, err := LoadOrders()
		require.NoError(t, err)

		assert.True(t, cfg.MigrateOnStart)
		assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.KafkaBrokers)
		assert.Equal(t, 30*time.Second, cfg.CacheTTL)
		assert.Equal(t, int64(2048), cfg.MaxUploadBytes)
	})

	t.Run("invalid values", func(t *testing.T) {
		for key, value := range map[string]string{
			"MIGRATE_ON_START": "sometimes",
			"ORDER_CACHE_TTL":  "ten minutes",
			"MAX_UPLOAD_BYTES": "-1",
		} {
			t.Run(key, func(t *testing.T) {
				t.Setenv(key, value)
				_, err := LoadOrders()
				require.ErrorContains(t, err, key)
			})
		}
	})
}

func TestLoadWorker(t *testing.T) {
	t.Setenv("KAFKA_BROKERS", "")
	t.Setenv("EMAIL_SERVICE_URL", "")
	t.Setenv("ORDERS_SERVICE_URL", "http://orders:8081")
	t.Setenv("WORKER_GROUP_ID", "")
	t.Setenv("NOTIFY_EMAIL", "")

	_, err := LoadWorker()
	require.ErrorIs(t, err, ErrMissing)
	assert.ErrorContains(t, err, "EMAIL_SERVICE_URL, KAFKA_BROKERS")

	t.Setenv("KAFKA_BROKERS", "kafka:9092")
	t.Setenv("EMAIL_SERVICE_URL", "http://email:8084")

	cfg, err := LoadWorker()
	require.NoError(t, err)
	assert.Equal(t, "notification-worker", cfg.GroupID)
	assert.Equal(t, "orders@example.com", cfg.NotifyEmail)
}

func TestLoadGateway(t *testing.T) {
	t.Setenv("PORT", "")
	t.Setenv("ORDERS_SERVICE_URL", "http://orders:8081")
	t.Setenv("DASHBOARD_SERVICE_URL", "")

	_, err := LoadGateway()
	require.ErrorContains(t, err, "DASHBOARD_SERVICE_URL")

	t.Setenv("DASHBOARD_SERVICE_URL", "http://dashboard:8082")
	cfg, err := LoadGateway()
	require.NoError(t, err)
	assert.Equal(t, "8080", cfg.Port)
}

func TestLoadEmail(t *testing.T) {
	t.Setenv("PORT", "")
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "collector:4317")

	cfg := LoadEmail()
	assert.Equal(t, "8084", cfg.Port)
	assert.Equal(t, "collector:4317", cfg.OTLPEndpoint)
}
