package postgres

import (
	"context"
	"errors"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/retailops/orderflow/internal/order/domain"
)

type Repository struct {
	log  *slog.Logger
	pool *pgxpool.Pool
}

func NewRepository(log *slog.Logger, pool *pgxpool.Pool) *Repository {
	return &Repository{log: log, pool: pool}
}

// ApplyDecrement runs the stage's single unit of work: decrement stock for
// every line item, then advance the order status, all in one transaction.
// The status advance is guarded; losing it means another delivery already
// applied this order, so the whole transaction rolls back and no decrement
// survives.
func (r *Repository) ApplyDecrement(ctx context.Context, order domain.Order) (bool, error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return false, err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	for _, item := range order.Items {
		_, err := tx.Exec(ctx, `UPDATE inventory SET stock = stock - $1 WHERE product_id = $2`,
			item.Quantity, item.ProductID)
		if err != nil {
			return false, err
		}
	}

	ct, err := tx.Exec(ctx, `UPDATE orders SET status = $1 WHERE id = $2 AND status = $3`,
		domain.StatusInventoryUpdated, order.ID, domain.StatusStockValidated)
	if err != nil {
		return false, err
	}
	if ct.RowsAffected() == 0 {
		return false, nil
	}

	if err := tx.Commit(ctx); err != nil {
		return false, err
	}
	return true, nil
}

// StockReader serves the validation stage's lookups from the read-capable
// handle.
type StockReader struct {
	log  *slog.Logger
	pool *pgxpool.Pool
}

func NewStockReader(log *slog.Logger, pool *pgxpool.Pool) *StockReader {
	return &StockReader{log: log, pool: pool}
}

func (r *StockReader) Stock(ctx context.Context, productID string) (int, bool, error) {
	var stock int
	err := r.pool.QueryRow(ctx, `SELECT stock FROM inventory WHERE product_id = $1`, productID).Scan(&stock)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return stock, true, nil
}
