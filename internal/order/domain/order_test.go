package domain

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestValidateSubmission(t *testing.T) {
	valid := []OrderItem{{ProductID: "prod-1", Quantity: 1}}

	tests := []struct {
		name       string
		customerID string
		items      []OrderItem
		wantErr    bool
	}{
		{"ok", "cust-1", valid, false},
		{"missing customer", "", valid, true},
		{"nil items", "cust-1", nil, true},
		{"empty items", "cust-1", []OrderItem{}, true},
		{"zero quantity", "cust-1", []OrderItem{{ProductID: "prod-1", Quantity: 0}}, true},
		{"negative quantity", "cust-1", []OrderItem{{ProductID: "prod-1", Quantity: -2}}, true},
		{"missing product id", "cust-1", []OrderItem{{Quantity: 1}}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateSubmission(tt.customerID, tt.items)
			if tt.wantErr {
				var verr *ValidationError
				require.ErrorAs(t, err, &verr)
				return
			}
			require.NoError(t, err)
		})
	}
}

func TestNewOrderStartsPending(t *testing.T) {
	o := NewOrder("order-1", "cust-1", []OrderItem{{ProductID: "prod-1", Quantity: 2}})
	require.Equal(t, StatusPending, o.Status)
	require.Equal(t, "order-1", o.ID)
	require.False(t, o.CreatedAt.IsZero())
}

func TestCanTransitionIsMonotonic(t *testing.T) {
	require.True(t, CanTransition(StatusPending, StatusStockValidated))
	require.True(t, CanTransition(StatusPending, StatusFailed))
	require.True(t, CanTransition(StatusStockValidated, StatusInventoryUpdated))
	require.True(t, CanTransition(StatusInventoryUpdated, StatusCompleted))

	// no backward moves, no skipped stages, no leaving a terminal state
	require.False(t, CanTransition(StatusStockValidated, StatusPending))
	require.False(t, CanTransition(StatusInventoryUpdated, StatusPending))
	require.False(t, CanTransition(StatusInventoryUpdated, StatusStockValidated))
	require.False(t, CanTransition(StatusPending, StatusInventoryUpdated))
	require.False(t, CanTransition(StatusPending, StatusCompleted))
	require.False(t, CanTransition(StatusStockValidated, StatusFailed))
	require.False(t, CanTransition(StatusFailed, StatusStockValidated))
	require.False(t, CanTransition(StatusCompleted, StatusPending))
}
