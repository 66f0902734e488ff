package outbox

import (
	"context"
	"log/slog"
	"time"

	"github.com/retailops/orderflow/pkg/eventbus"
)

// Store is the journal's persistence surface. Append runs inside a caller
// context after a failed publish; LockBatch leases pending records to one
// relay so horizontally scaled processes do not double-send.
type Store interface {
	Append(ctx context.Context, env eventbus.Envelope, orderID string) error
	LockBatch(ctx context.Context, relayID string, batchSize int, lease time.Duration) ([]Record, error)
	MarkSent(ctx context.Context, ids []int64) error
	// MarkFailed requeues the record for a later batch, recording the
	// error and bumping the retry count. It must not take the record out
	// of LockBatch's reach: journaled envelopes have already missed one
	// publish and the relay is their only way out.
	MarkFailed(ctx context.Context, id int64, errMsg string) error
}

// Relay drains journaled envelopes and re-publishes them until sent.
type Relay struct {
	log       *slog.Logger
	store     Store
	publisher eventbus.Publisher
	relayID   string
	batchSize int
	interval  time.Duration
	lease     time.Duration
}

func NewRelay(log *slog.Logger, store Store, publisher eventbus.Publisher, relayID string) *Relay {
	return &Relay{
		log:       log,
		store:     store,
		publisher: publisher,
		relayID:   relayID,
		batchSize: 100,
		interval:  500 * time.Millisecond,
		lease:     5 * time.Second,
	}
}

func (r *Relay) Run(ctx context.Context) error {
	t := time.NewTicker(r.interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			r.log.Info("relay stopping", "relay_id", r.relayID)
			return nil
		case <-t.C:
			records, err := r.store.LockBatch(ctx, r.relayID, r.batchSize, r.lease)
			if err != nil {
				r.log.Error("relay lock batch error", "err", err)
				continue
			}
			if len(records) == 0 {
				continue
			}

			sent := make([]int64, 0, len(records))
			for _, rec := range records {
				if err := r.publisher.Publish(ctx, rec.Envelope(), rec.OrderID); err != nil {
					_ = r.store.MarkFailed(ctx, rec.ID, err.Error())
					continue
				}
				sent = append(sent, rec.ID)
			}
			if len(sent) > 0 {
				if err := r.store.MarkSent(ctx, sent); err != nil {
					r.log.Error("relay mark sent error", "err", err)
				}
			}
		}
	}
}
