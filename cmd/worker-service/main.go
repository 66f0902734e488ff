package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/retailops/orderflow/pkg/database"
	"github.com/retailops/orderflow/pkg/eventbus"
	"github.com/retailops/orderflow/pkg/idempotency"
	"github.com/retailops/orderflow/pkg/logging"
	"github.com/retailops/orderflow/pkg/secrets"
	"github.com/retailops/orderflow/pkg/shutdown"
	"github.com/retailops/orderflow/pkg/stream"
	"github.com/retailops/orderflow/pkg/tracing"

	inventoryapp "github.com/retailops/orderflow/internal/inventory/application"
	inventorypg "github.com/retailops/orderflow/internal/inventory/infrastructure/postgres"
	orderpg "github.com/retailops/orderflow/internal/order/infrastructure/postgres"
	validationapp "github.com/retailops/orderflow/internal/validation/application"
)

func main() {
	log := logging.New("worker-service")

	ctx, cancel := shutdown.WithSignals(context.Background())
	defer cancel()

	// Configuration
	writerEndpoint := env("DB_WRITER_ENDPOINT", "localhost")
	readerEndpoint := env("DB_READER_ENDPOINT", "localhost")
	kafkaBrokers := []string{env("KAFKA_ADDR", "localhost:9092")}
	redisAddr := env("REDIS_ADDR", "localhost:6379")
	otlpEndpoint := env("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4318")
	healthAddr := env("HEALTH_ADDR", ":3002")
	concurrency := envInt("WORKER_CONCURRENCY", 4)
	maxAttempts := envInt("MAX_ATTEMPTS", 5)
	backoff := time.Duration(envInt("RETRY_BACKOFF_MS", 2000)) * time.Millisecond
	deadLetterTopic := env("DEAD_LETTER_TOPIC", "orders.dead-letter")

	tp, err := tracing.Init(ctx, "worker-service", otlpEndpoint, log)
	if err != nil {
		log.Error("otel init failed", "err", err)
		os.Exit(1)
	}
	defer func() { _ = tp.Shutdown(ctx) }()

	// Persistence gateway: both handles, resolved once at startup
	gateway := database.NewGateway(credentialSource(ctx, log), writerEndpoint, readerEndpoint)
	writerPool, err := gateway.Writer(ctx)
	if err != nil {
		log.Error("writer pool init failed", "err", err)
		os.Exit(1)
	}
	defer writerPool.Close()
	readerPool, err := gateway.Reader(ctx)
	if err != nil {
		log.Error("reader pool init failed", "err", err)
		os.Exit(1)
	}
	defer readerPool.Close()

	rdb := redis.NewClient(&redis.Options{Addr: redisAddr})
	idem := idempotency.NewStore(rdb, 10*time.Minute)

	producer := eventbus.NewWriter(kafkaBrokers)
	defer producer.Close()
	publisher := eventbus.NewKafkaPublisher(log, producer, eventbus.Topics{
		eventbus.DetailStockValidated:        env("STOCK_VALIDATED_TOPIC", "orders.stock-validated"),
		eventbus.DetailStockValidationFailed: env("STOCK_VALIDATION_FAILED_TOPIC", "orders.stock-validation-failed"),
		eventbus.DetailInventoryUpdated:      env("INVENTORY_UPDATED_TOPIC", "orders.inventory-updated"),
	})

	orders := orderpg.NewRepository(log, writerPool)
	stock := inventorypg.NewStockReader(log, readerPool)
	inventory := inventorypg.NewRepository(log, writerPool)

	validationSvc := validationapp.NewService(log, stock, orders, publisher)
	inventorySvc := inventoryapp.NewService(log, inventory, orders, publisher)

	validationConsumer := stream.NewConsumer(log, stream.Config{
		Brokers:         kafkaBrokers,
		Topic:           env("ORDER_CREATED_TOPIC", "orders.created"),
		Group:           env("STOCK_VALIDATION_GROUP", "stock-validation"),
		Concurrency:     concurrency,
		MaxAttempts:     maxAttempts,
		Backoff:         backoff,
		DeadLetterTopic: deadLetterTopic,
	}, validationSvc.HandleEnvelope, idem, producer)

	inventoryConsumer := stream.NewConsumer(log, stream.Config{
		Brokers:         kafkaBrokers,
		Topic:           env("STOCK_VALIDATED_TOPIC", "orders.stock-validated"),
		Group:           env("INVENTORY_UPDATE_GROUP", "inventory-update"),
		Concurrency:     concurrency,
		MaxAttempts:     maxAttempts,
		Backoff:         backoff,
		DeadLetterTopic: deadLetterTopic,
	}, inventorySvc.HandleEnvelope, idem, producer)

	srv := healthServer(log, healthAddr, readerPool.Ping)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return validationConsumer.Run(gctx) })
	g.Go(func() error { return inventoryConsumer.Run(gctx) })
	g.Go(func() error {
		log.Info("health listening", "addr", healthAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Error("worker stopped with error", "err", err)
		os.Exit(1)
	}
	log.Info("worker-service shutdown complete")
}

func healthServer(log *slog.Logger, addr string, ping func(context.Context) error) *http.Server {
	r := chi.NewRouter()
	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})
	r.Get("/health/deep", func(w http.ResponseWriter, req *http.Request) {
		if err := ping(req.Context()); err != nil {
			log.Error("deep health check failed", "err", err)
			w.WriteHeader(http.StatusInternalServerError)
			_, _ = w.Write([]byte(`{"status":"UNHEALTHY","database":"DISCONNECTED"}`))
			return
		}
		_, _ = w.Write([]byte(`{"status":"HEALTHY","database":"CONNECTED"}`))
	})
	r.Handle("/metrics", promhttp.Handler())
	return &http.Server{Addr: addr, Handler: r}
}

func credentialSource(ctx context.Context, log *slog.Logger) secrets.Source {
	if arn := os.Getenv("DB_SECRET_ARN"); arn != "" {
		src, err := secrets.NewAWSSource(ctx, arn)
		if err != nil {
			log.Error("secrets manager init failed", "err", err)
			os.Exit(1)
		}
		return src
	}
	return secrets.NewStaticSource(env("DB_SECRET_JSON",
		`{"username":"postgres","password":"postgres","dbname":"orderflow","port":5432}`))
}

func env(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func envInt(k string, def int) int {
	if v := os.Getenv(k); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}
