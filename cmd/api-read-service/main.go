package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/retailops/orderflow/pkg/database"
	"github.com/retailops/orderflow/pkg/logging"
	"github.com/retailops/orderflow/pkg/secrets"
	"github.com/retailops/orderflow/pkg/shutdown"
	"github.com/retailops/orderflow/pkg/tracing"

	orderhttp "github.com/retailops/orderflow/internal/order/infrastructure/http"
	orderpg "github.com/retailops/orderflow/internal/order/infrastructure/postgres"
)

func main() {
	log := logging.New("api-read-service")

	ctx, cancel := shutdown.WithSignals(context.Background())
	defer cancel()

	writerEndpoint := env("DB_WRITER_ENDPOINT", "localhost")
	readerEndpoint := env("DB_READER_ENDPOINT", "localhost")
	otlpEndpoint := env("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4318")
	httpAddr := env("HTTP_ADDR", ":3001")

	tp, err := tracing.Init(ctx, "api-read-service", otlpEndpoint, log)
	if err != nil {
		log.Error("otel init failed", "err", err)
		os.Exit(1)
	}
	defer func() { _ = tp.Shutdown(ctx) }()

	gateway := database.NewGateway(credentialSource(ctx, log), writerEndpoint, readerEndpoint)
	pool, err := gateway.Reader(ctx)
	if err != nil {
		log.Error("reader pool init failed", "err", err)
		os.Exit(1)
	}
	defer pool.Close()

	repo := orderpg.NewRepository(log, pool)
	deep := func(r *http.Request) error {
		_, err := pool.Exec(r.Context(), "SELECT 1")
		return err
	}
	handler := orderhttp.NewReadHandler(log, repo, deep)

	srv := &http.Server{
		Addr:         httpAddr,
		Handler:      handler.Routes(),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

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
	log.Info("api-read-service shutdown complete")
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
