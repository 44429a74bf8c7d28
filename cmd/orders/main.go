package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	_ "modernc.org/sqlite"

	"github.com/joao-fontenele/order-management/internal/assets"
	"github.com/joao-fontenele/order-management/internal/cache"
	"github.com/joao-fontenele/order-management/internal/config"
	"github.com/joao-fontenele/order-management/internal/messaging"
	"github.com/joao-fontenele/order-management/internal/orders"
	"github.com/joao-fontenele/order-management/internal/telemetry"
	"github.com/joao-fontenele/order-management/migrations"
)

func main() {
	ctx := context.Background()
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	cfg, err := config.LoadOrders()
	if err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	shutdownTracer, err := telemetry.InitTracerProvider(ctx, "orders", "0.1.0", cfg.OTLPEndpoint)
	if err != nil {
		logger.Error("failed to initialize tracer", "error", err)
		os.Exit(1)
	}
	defer func() { _ = shutdownTracer(ctx) }()

	metricsHandler, shutdownMeter, err := telemetry.InitMeterProvider("orders", "0.1.0")
	if err != nil {
		logger.Error("failed to initialize meter", "error", err)
		os.Exit(1)
	}
	defer func() { _ = shutdownMeter(ctx) }()

	db, err := telemetry.OpenDB(ctx, cfg.Database.Driver, cfg.Database.URL)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer func() { _ = db.Close() }()

	if cfg.MigrateOnStart {
		if err := migrations.Up(db, cfg.Database.Driver); err != nil {
			logger.Error("failed to apply migrations", "error", err)
			os.Exit(1)
		}
		logger.Info("migrations applied", "driver", cfg.Database.Driver)
	}

	var sink assets.Sink
	if cfg.S3Bucket != "" {
		sink, err = assets.NewS3SinkFromEnv(ctx, cfg.S3Bucket, cfg.S3Prefix, cfg.AWSRegion)
	} else {
		sink, err = assets.NewFileSink(cfg.UploadsDir)
	}
	if err != nil {
		logger.Error("failed to initialize upload storage", "error", err)
		os.Exit(1)
	}
	logger.Info("upload storage ready", "s3_bucket", cfg.S3Bucket, "dir", cfg.UploadsDir)
	resolver := assets.NewResolver(sink)

	var opts []orders.ServiceOption

	if cfg.RedisAddr != "" {
		redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		defer func() { _ = redisClient.Close() }()

		if err := redisClient.Ping(ctx).Err(); err != nil {
			logger.Warn("redis unreachable, order cache degraded", "error", err, "addr", cfg.RedisAddr)
		}
		opts = append(opts, orders.WithCache(cache.NewRedisCache(redisClient, cfg.CacheTTL)))
	}

	if len(cfg.KafkaBrokers) > 0 {
		producer := messaging.NewProducer(cfg.KafkaBrokers, cfg.EventsTopic)
		defer func() { _ = producer.Close() }()
		opts = append(opts, orders.WithEventPublisher(producer))
	}

	service, err := orders.NewService(orders.NewOrderRepository(db), orders.NewAssembler(resolver), logger, opts...)
	if err != nil {
		logger.Error("failed to create order service", "error", err)
		os.Exit(1)
	}

	handler := orders.NewHandler(service, logger, cfg.MaxUploadBytes)
	uploads := assets.NewHandler(resolver, logger)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /orders", telemetry.WithHTTPRoute(handler.HandleList))
	mux.HandleFunc("POST /orders", telemetry.WithHTTPRoute(handler.HandleCreate))
	mux.HandleFunc("GET /orders/{id}", telemetry.WithHTTPRoute(handler.HandleGet))
	mux.HandleFunc("PUT /orders/{id}", telemetry.WithHTTPRoute(handler.HandleUpdate))
	mux.HandleFunc("DELETE /orders/{id}", telemetry.WithHTTPRoute(handler.HandleDelete))
	mux.HandleFunc("GET /uploads/{name}", telemetry.WithHTTPRoute(uploads.HandleGet))
	mux.Handle("GET /metrics", metricsHandler)

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      otelhttp.NewHandler(mux, "orders", otelhttp.WithSpanNameFormatter(telemetry.SpanName)),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	go func() {
		logger.Info("starting orders service", "port", cfg.Port, "driver", cfg.Database.Driver)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
		os.Exit(1)
	}
}
