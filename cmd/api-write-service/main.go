package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/retailops/orderflow/pkg/database"
	"github.com/retailops/orderflow/pkg/eventbus"
	"github.com/retailops/orderflow/pkg/logging"
	"github.com/retailops/orderflow/pkg/outbox"
	"github.com/retailops/orderflow/pkg/secrets"
	"github.com/retailops/orderflow/pkg/shutdown"
	"github.com/retailops/orderflow/pkg/tracing"

	"github.com/retailops/orderflow/internal/order/application"
	orderhttp "github.com/retailops/orderflow/internal/order/infrastructure/http"
	orderpg "github.com/retailops/orderflow/internal/order/infrastructure/postgres"
)

func main() {
	log := logging.New("api-write-service")

	ctx, cancel := shutdown.WithSignals(context.Background())
	defer cancel()

	// Configuration
	writerEndpoint := env("DB_WRITER_ENDPOINT", "localhost")
	readerEndpoint := env("DB_READER_ENDPOINT", "localhost")
	kafkaBrokers := []string{env("KAFKA_ADDR", "localhost:9092")}
	otlpEndpoint := env("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4318")
	httpAddr := env("HTTP_ADDR", ":3000")

	tp, err := tracing.Init(ctx, "api-write-service", otlpEndpoint, log)
	if err != nil {
		log.Error("otel init failed", "err", err)
		os.Exit(1)
	}
	defer func() { _ = tp.Shutdown(ctx) }()

	// Persistence gateway; a bad secret is fatal at startup
	gateway := database.NewGateway(credentialSource(ctx, log), writerEndpoint, readerEndpoint)
	pool, err := gateway.Writer(ctx)
	if err != nil {
		log.Error("writer pool init failed", "err", err)
		os.Exit(1)
	}
	defer pool.Close()

	// Kafka publisher
	writer := eventbus.NewWriter(kafkaBrokers)
	defer writer.Close()
	publisher := eventbus.NewKafkaPublisher(log, writer, topicsFromEnv())

	// Repository, journal relay for publish-failure reconciliation
	repo := orderpg.NewRepository(log, pool)
	journal := orderpg.NewJournalStore(log, pool)
	relay := outbox.NewRelay(log, journal, publisher, "api-write-service-relay")

	svc := application.NewService(log, repo, publisher, journal)
	deep := func(r *http.Request) error {
		_, err := pool.Exec(r.Context(), "SELECT 1")
		return err
	}
	handler := orderhttp.NewWriteHandler(log, svc, deep)

	srv := &http.Server{
		Addr:         httpAddr,
		Handler:      handler.Routes(),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	go func() {
		if err := relay.Run(ctx); err != nil {
			log.Error("relay stopped with error", "err", err)
		}
	}()

	go func() {
		log.Info("http listening", "addr", httpAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("http server error", "err", err)
			cancel()
		}
	}()

	<-ctx.Done()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	_ = srv.Shutdown(shutdownCtx)
	log.Info("api-write-service shutdown complete")
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

func topicsFromEnv() eventbus.Topics {
	return eventbus.Topics{
		eventbus.DetailOrderCreated:          env("ORDER_CREATED_TOPIC", "orders.created"),
		eventbus.DetailStockValidated:        env("STOCK_VALIDATED_TOPIC", "orders.stock-validated"),
		eventbus.DetailStockValidationFailed: env("STOCK_VALIDATION_FAILED_TOPIC", "orders.stock-validation-failed"),
		eventbus.DetailInventoryUpdated:      env("INVENTORY_UPDATED_TOPIC", "orders.inventory-updated"),
	}
}

func env(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}
