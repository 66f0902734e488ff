package domain

import "time"

type OrderStatus string

const (
	StatusPending          OrderStatus = "PENDING"
	StatusStockValidated   OrderStatus = "STOCK_VALIDATED"
	StatusInventoryUpdated OrderStatus = "INVENTORY_UPDATED"
	StatusCompleted        OrderStatus = "COMPLETED"
	StatusFailed           OrderStatus = "FAILED"
)

// rank orders the forward path; FAILED is a terminal side exit from PENDING.
var rank = map[OrderStatus]int{
	StatusPending:          0,
	StatusStockValidated:   1,
	StatusInventoryUpdated: 2,
	StatusCompleted:        3,
	StatusFailed:           1,
}

// CanTransition reports whether an order may move between two statuses.
// Transitions are monotonic: no stage moves an order backward or skips a
// stage, and exactly one stage owns each transition.
func CanTransition(from, to OrderStatus) bool {
	if from == StatusFailed || from == StatusCompleted {
		return false
	}
	if to == StatusFailed {
		return from == StatusPending
	}
	return rank[to] == rank[from]+1
}

type Order struct {
	ID         string      `json:"id"`
	CustomerID string      `json:"customerId"`
	Items      []OrderItem `json:"items"`
	Status     OrderStatus `json:"status"`
	CreatedAt  time.Time   `json:"createdAt"`
}

type OrderItem struct {
	ProductID string `json:"productId"`
	Quantity  int    `json:"quantity"`
}

func NewOrder(id, customerID string, items []OrderItem) Order {
	return Order{
		ID:         id,
		CustomerID: customerID,
		Items:      items,
		Status:     StatusPending,
		CreatedAt:  time.Now().UTC(),
	}
}

// ValidateSubmission checks a new-order request before any side effect.
func ValidateSubmission(customerID string, items []OrderItem) error {
	if customerID == "" {
		return &ValidationError{Reason: "missing customerId"}
	}
	if len(items) == 0 {
		return &ValidationError{Reason: "missing items"}
	}
	for _, item := range items {
		if item.ProductID == "" {
			return &ValidationError{Reason: "item missing productId"}
		}
		if item.Quantity < 1 {
			return &ValidationError{Reason: "item quantity must be at least 1"}
		}
	}
	return nil
}
