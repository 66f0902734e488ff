package application

import (
	"context"

	"github.com/retailops/orderflow/internal/order/domain"
)

// InventoryRepository applies an order's stock decrements and status advance
// in one transaction. applied is false when the guarded status update finds
// the order already past STOCK_VALIDATED; the transaction is then rolled
// back so no decrement survives a duplicate delivery.
type InventoryRepository interface {
	ApplyDecrement(ctx context.Context, order domain.Order) (applied bool, err error)
}

// OrderStatusReader reads the stored status, used to recover the terminal
// event after a publish failure.
type OrderStatusReader interface {
	Status(ctx context.Context, id string) (domain.OrderStatus, error)
}
