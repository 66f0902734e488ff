package application

import (
	"context"

	"github.com/retailops/orderflow/internal/order/domain"
	"github.com/retailops/orderflow/pkg/eventbus"
)

type OrderRepository interface {
	// CreateWithItems persists the order row and all item rows in one
	// transaction; nothing survives a mid-way failure.
	CreateWithItems(ctx context.Context, o domain.Order) error
	Get(ctx context.Context, id string) (domain.Order, error)
}

// Journal parks envelopes whose post-commit publish failed, for the relay
// to drain later.
type Journal interface {
	Append(ctx context.Context, env eventbus.Envelope, orderID string) error
}
