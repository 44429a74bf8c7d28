// Package config reads service settings from environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"
)

const (
	defaultEventsTopic    = "order-events"
	defaultCacheTTL       = 10 * time.Minute
	defaultMaxUploadBytes = 10 << 20
)

var ErrMissing = errors.New("required environment variable not set")

type Database struct {
	Driver string
	URL    string
}

type Orders struct {
	Port           string
	Database       Database
	MigrateOnStart bool
	KafkaBrokers   []string
	EventsTopic    string
	RedisAddr      string
	CacheTTL       time.Duration
	UploadsDir     string
	S3Bucket       string
	S3Prefix       string
	AWSRegion      string
	MaxUploadBytes int64
	OTLPEndpoint   string
}

type Dashboard struct {
	Port         string
	Database     Database
	OTLPEndpoint string
}

type Worker struct {
	KafkaBrokers     []string
	EventsTopic      string
	GroupID          string
	EmailServiceURL  string
	OrdersServiceURL string
	NotifyEmail      string
	OTLPEndpoint     string
}

type Email struct {
	Port         string
	OTLPEndpoint string
}

type Gateway struct {
	Port                string
	OrdersServiceURL    string
	DashboardServiceURL string
	OTLPEndpoint        string
}

// LoadDatabase reads DATABASE_DRIVER and DATABASE_URL. POSTGRES_URL is
// accepted in place of DATABASE_URL.
func LoadDatabase() (Database, error) {
	db := Database{
		Driver: getEnvOrDefault("DATABASE_DRIVER", "postgres"),
		URL:    getEnvOrDefault("DATABASE_URL", os.Getenv("POSTGRES_URL")),
	}

	switch db.Driver {
	case "postgres", "sqlite":
	default:
		return Database{}, fmt.Errorf("DATABASE_DRIVER: unsupported driver %q", db.Driver)
	}

	if db.URL == "" {
		return Database{}, fmt.Errorf("DATABASE_URL: %w", ErrMissing)
	}

	return db, nil
}

func LoadOrders() (Orders, error) {
	db, err := LoadDatabase()
	if err != nil {
		return Orders{}, err
	}

	cfg := Orders{
		Port:         getEnvOrDefault("PORT", "8081"),
		Database:     db,
		KafkaBrokers: splitList(os.Getenv("KAFKA_BROKERS")),
		EventsTopic:  getEnvOrDefault("ORDER_EVENTS_TOPIC", defaultEventsTopic),
		RedisAddr:    os.Getenv("REDIS_ADDR"),
		UploadsDir:   getEnvOrDefault("UPLOADS_DIR", "uploads"),
		S3Bucket:     os.Getenv("UPLOADS_S3_BUCKET"),
		S3Prefix:     getEnvOrDefault("UPLOADS_S3_PREFIX", "uploads"),
		AWSRegion:    getEnvOrDefault("AWS_REGION", "us-east-1"),
		OTLPEndpoint: os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
	}

	if cfg.MigrateOnStart, err = getBool("MIGRATE_ON_START", false); err != nil {
		return Orders{}, err
	}
	if cfg.CacheTTL, err = getDuration("ORDER_CACHE_TTL", defaultCacheTTL); err != nil {
		return Orders{}, err
	}
	if cfg.MaxUploadBytes, err = getInt64("MAX_UPLOAD_BYTES", defaultMaxUploadBytes); err != nil {
		return Orders{}, err
	}

	return cfg, nil
}

func LoadDashboard() (Dashboard, error) {
	db, err := LoadDatabase()
	if err != nil {
		return Dashboard{}, err
	}

	return Dashboard{
		Port:         getEnvOrDefault("PORT", "8082"),
		Database:     db,
		OTLPEndpoint: os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
	}, nil
}

func LoadWorker() (Worker, error) {
	cfg := Worker{
		KafkaBrokers:     splitList(os.Getenv("KAFKA_BROKERS")),
		EventsTopic:      getEnvOrDefault("ORDER_EVENTS_TOPIC", defaultEventsTopic),
		GroupID:          getEnvOrDefault("WORKER_GROUP_ID", "notification-worker"),
		EmailServiceURL:  os.Getenv("EMAIL_SERVICE_URL"),
		OrdersServiceURL: os.Getenv("ORDERS_SERVICE_URL"),
		NotifyEmail:      getEnvOrDefault("NOTIFY_EMAIL", "orders@example.com"),
		OTLPEndpoint:     os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
	}

	if err := required(map[string]bool{
		"KAFKA_BROKERS":      len(cfg.KafkaBrokers) > 0,
		"EMAIL_SERVICE_URL":  cfg.EmailServiceURL != "",
		"ORDERS_SERVICE_URL": cfg.OrdersServiceURL != "",
	}); err != nil {
		return Worker{}, err
	}

	return cfg, nil
}

func LoadGateway() (Gateway, error) {
	cfg := Gateway{
		Port:                getEnvOrDefault("PORT", "8080"),
		OrdersServiceURL:    os.Getenv("ORDERS_SERVICE_URL"),
		DashboardServiceURL: os.Getenv("DASHBOARD_SERVICE_URL"),
		OTLPEndpoint:        os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
	}

	if err := required(map[string]bool{
		"ORDERS_SERVICE_URL":    cfg.OrdersServiceURL != "",
		"DASHBOARD_SERVICE_URL": cfg.DashboardServiceURL != "",
	}); err != nil {
		return Gateway{}, err
	}

	return cfg, nil
}

func LoadEmail() Email {
	return Email{
		Port:         getEnvOrDefault("PORT", "8084"),
		OTLPEndpoint: os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
	}
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getBool(key string, defaultValue bool) (bool, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("%s: %w", key, err)
	}
	return v, nil
}

func getDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue, nil
	}
	v, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return v, nil
}

func getInt64(key string, defaultValue int64) (int64, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue, nil
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || v <= 0 {
		return 0, fmt.Errorf("%s: must be a positive integer", key)
	}
	return v, nil
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func required(present map[string]bool) error {
	var missing []string
	for key, ok := range present {
		if !ok {
			missing = append(missing, key)
		}
	}
	if len(missing) == 0 {
		return nil
	}
	slices.Sort(missing)
	return fmt.Errorf("%s: %w", strings.Join(missing, ", "), ErrMissing)
}
