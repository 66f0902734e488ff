package outbox

import (
	"time"

	"github.com/retailops/orderflow/pkg/eventbus"
)

type Status string

// A record is pending until a relay leases it, and a failed publish puts it
// back to pending. Sent is the only terminal state.
const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in_progress"
	StatusSent       Status = "sent"
)

// Record is an envelope whose post-commit publish failed, parked in the
// event_journal table until the relay gets it out. The journal exists only
// to close the dual-write window; the happy path never touches it.
type Record struct {
	ID         int64
	Source     string
	DetailType string
	OrderID    string
	Payload    []byte
	CreatedAt  time.Time
	Status     Status
	RetryCount int
	LastError  *string
}

func (r Record) Envelope() eventbus.Envelope {
	return eventbus.Envelope{
		Source:     r.Source,
		DetailType: r.DetailType,
		Detail:     r.Payload,
	}
}
