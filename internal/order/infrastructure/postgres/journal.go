package postgres

import (
	"context"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/retailops/orderflow/pkg/eventbus"
	"github.com/retailops/orderflow/pkg/outbox"
)

// JournalStore keeps envelopes whose post-commit publish failed. Pending
// rows are leased to a single relay with FOR UPDATE SKIP LOCKED so scaled-out
// processes never double-send.
type JournalStore struct {
	log  *slog.Logger
	pool *pgxpool.Pool
}

func NewJournalStore(log *slog.Logger, pool *pgxpool.Pool) *JournalStore {
	return &JournalStore{log: log, pool: pool}
}

func (s *JournalStore) Append(ctx context.Context, env eventbus.Envelope, orderID string) error {
	_, err := s.pool.Exec(ctx, `INSERT INTO event_journal (source, detail_type, order_id, payload, status)
		VALUES ($1,$2,$3,$4,'pending')`,
		env.Source, env.DetailType, orderID, []byte(env.Detail))
	return err
}

func (s *JournalStore) LockBatch(ctx context.Context, relayID string, batchSize int, lease time.Duration) ([]outbox.Record, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	rows, err := tx.Query(ctx, `
		SELECT id, source, detail_type, order_id, payload, created_at
		FROM event_journal
		WHERE status = 'pending' OR (status = 'in_progress' AND lease_until < now())
		ORDER BY id
		FOR UPDATE SKIP LOCKED
		LIMIT $1
	`, batchSize)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []outbox.Record
	for rows.Next() {
		var rec outbox.Record
		if err := rows.Scan(&rec.ID, &rec.Source, &rec.DetailType, &rec.OrderID, &rec.Payload, &rec.CreatedAt); err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, tx.Commit(ctx)
	}

	ids := make([]int64, 0, len(records))
	for _, rec := range records {
		ids = append(ids, rec.ID)
	}
	_, err = tx.Exec(ctx, `UPDATE event_journal SET status='in_progress', relay_id=$1, lease_until=now() + $2::interval WHERE id = ANY($3)`,
		relayID, lease.String(), ids)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return records, nil
}

func (s *JournalStore) MarkSent(ctx context.Context, ids []int64) error {
	_, err := s.pool.Exec(ctx, `UPDATE event_journal SET status='sent' WHERE id = ANY($1)`, ids)
	return err
}

// MarkFailed returns the row to pending so a later batch retries it. The
// journal only ever holds envelopes the broker already refused once, so a
// terminal failure state would park them for good.
func (s *JournalStore) MarkFailed(ctx context.Context, id int64, errMsg string) error {
	_, err := s.pool.Exec(ctx, `UPDATE event_journal SET status='pending', last_error=$2, retry_count=retry_count+1, relay_id=NULL, lease_until=NULL WHERE id=$1`, id, errMsg)
	return err
}
