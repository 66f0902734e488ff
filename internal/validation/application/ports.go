package application

import (
	"context"

	"github.com/retailops/orderflow/internal/order/domain"
)

// StockReader looks up available stock on the read-capable handle. found is
// false when the product has no inventory row; callers treat that as zero.
type StockReader interface {
	Stock(ctx context.Context, productID string) (stock int, found bool, err error)
}

// OrderStore advances an order's status only from its expected predecessor,
// and reads the stored status back when a guarded advance loses to an
// earlier delivery.
type OrderStore interface {
	AdvanceStatus(ctx context.Context, id string, from, to domain.OrderStatus) (bool, error)
	Status(ctx context.Context, id string) (domain.OrderStatus, error)
}
