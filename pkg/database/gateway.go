package database

import (
	"context"
	"fmt"
	"net/url"
	"sync"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/retailops/orderflow/pkg/secrets"
)

// Gateway hands out the two pooled connection handles shared by every
// concurrent handler in a process: one against the writer endpoint, one
// against the reader endpoint. Each pool is built lazily exactly once;
// the result, success or failure, is cached for the process lifetime.
// There is no close or refresh surface.
type Gateway struct {
	source         secrets.Source
	writerEndpoint string
	readerEndpoint string

	writerOnce sync.Once
	writer     *pgxpool.Pool
	writerErr  error

	readerOnce sync.Once
	reader     *pgxpool.Pool
	readerErr  error
}

func NewGateway(source secrets.Source, writerEndpoint, readerEndpoint string) *Gateway {
	return &Gateway{
		source:         source,
		writerEndpoint: writerEndpoint,
		readerEndpoint: readerEndpoint,
	}
}

// Writer returns the write-capable pool, constructing it on first call.
func (g *Gateway) Writer(ctx context.Context) (*pgxpool.Pool, error) {
	g.writerOnce.Do(func() {
		g.writer, g.writerErr = g.connect(ctx, g.writerEndpoint)
	})
	return g.writer, g.writerErr
}

// Reader returns the read-capable pool, constructing it on first call.
func (g *Gateway) Reader(ctx context.Context) (*pgxpool.Pool, error) {
	g.readerOnce.Do(func() {
		g.reader, g.readerErr = g.connect(ctx, g.readerEndpoint)
	})
	return g.reader, g.readerErr
}

func (g *Gateway) connect(ctx context.Context, endpoint string) (*pgxpool.Pool, error) {
	creds, err := g.source.Fetch(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch db credentials: %w", err)
	}
	dsn := fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable&pool_max_conns=10",
		url.QueryEscape(creds.Username), url.QueryEscape(creds.Password),
		endpoint, creds.Port, creds.DBName)
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("pg connect %s: %w", endpoint, err)
	}
	return pool, nil
}
