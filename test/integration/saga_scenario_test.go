package integration

import (
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"

	inventoryapp "github.com/retailops/orderflow/internal/inventory/application"
	orderapp "github.com/retailops/orderflow/internal/order/application"
	"github.com/retailops/orderflow/internal/order/domain"
	validationapp "github.com/retailops/orderflow/internal/validation/application"
	"github.com/retailops/orderflow/pkg/eventbus"
)

// world is an in-memory stand-in for the database shared by all stages.
type world struct {
	orders map[string]domain.Order
	items  map[string][]domain.OrderItem
	stock  map[string]int
}

func (w *world) CreateWithItems(_ context.Context, o domain.Order) error {
	w.orders[o.ID] = o
	w.items[o.ID] = o.Items
	return nil
}

func (w *world) Get(_ context.Context, id string) (domain.Order, error) {
	o := w.orders[id]
	o.Items = w.items[id]
	return o, nil
}

func (w *world) AdvanceStatus(_ context.Context, id string, from, to domain.OrderStatus) (bool, error) {
	o, ok := w.orders[id]
	if !ok || o.Status != from {
		return false, nil
	}
	o.Status = to
	w.orders[id] = o
	return true, nil
}

func (w *world) Status(_ context.Context, id string) (domain.OrderStatus, error) {
	return w.orders[id].Status, nil
}

func (w *world) Stock(_ context.Context, productID string) (int, bool, error) {
	stock, ok := w.stock[productID]
	return stock, ok, nil
}

func (w *world) ApplyDecrement(_ context.Context, order domain.Order) (bool, error) {
	if w.orders[order.ID].Status != domain.StatusStockValidated {
		return false, nil
	}
	for _, item := range order.Items {
		w.stock[item.ProductID] -= item.Quantity
	}
	o := w.orders[order.ID]
	o.Status = domain.StatusInventoryUpdated
	w.orders[order.ID] = o
	return true, nil
}

// channel dispatches each published envelope synchronously to the stage
// subscribed to its detail type, recording terminal events.
type channel struct {
	handlers map[string]func(context.Context, eventbus.Envelope) error
	terminal []eventbus.Envelope
}

func (c *channel) Publish(ctx context.Context, env eventbus.Envelope, _ string) error {
	if h, ok := c.handlers[env.DetailType]; ok {
		return h(ctx, env)
	}
	c.terminal = append(c.terminal, env)
	return nil
}

var discard = slog.New(slog.DiscardHandler)

func newSaga(stock map[string]int) (*world, *channel, *orderapp.Service) {
	w := &world{
		orders: map[string]domain.Order{},
		items:  map[string][]domain.OrderItem{},
		stock:  stock,
	}
	ch := &channel{handlers: map[string]func(context.Context, eventbus.Envelope) error{}}

	validation := validationapp.NewService(discard, w, w, ch)
	inventory := inventoryapp.NewService(discard, w, w, ch)
	ch.handlers[eventbus.DetailOrderCreated] = validation.HandleEnvelope
	ch.handlers[eventbus.DetailStockValidated] = inventory.HandleEnvelope

	ingestion := orderapp.NewService(discard, w, ch, nil)
	return w, ch, ingestion
}

func submitItems() []domain.OrderItem {
	return []domain.OrderItem{
		{ProductID: "prod-1", Quantity: 1},
		{ProductID: "prod-2", Quantity: 2},
	}
}

func TestSagaCompletesWhenStockSuffices(t *testing.T) {
	w, ch, ingestion := newSaga(map[string]int{"prod-1": 5, "prod-2": 5})

	orderID, err := ingestion.SubmitOrder(context.Background(), "cust-1", submitItems())
	require.NoError(t, err)

	require.Equal(t, domain.StatusInventoryUpdated, w.orders[orderID].Status)
	require.Equal(t, 4, w.stock["prod-1"])
	require.Equal(t, 3, w.stock["prod-2"])

	require.Len(t, ch.terminal, 1)
	require.Equal(t, eventbus.DetailInventoryUpdated, ch.terminal[0].DetailType)
	var snapshot domain.Order
	require.NoError(t, json.Unmarshal(ch.terminal[0].Detail, &snapshot))
	require.Equal(t, orderID, snapshot.ID)
}

func TestSagaFailsOnInsufficientStock(t *testing.T) {
	w, ch, ingestion := newSaga(map[string]int{"prod-1": 5, "prod-2": 1})

	orderID, err := ingestion.SubmitOrder(context.Background(), "cust-1", submitItems())
	require.NoError(t, err, "ingestion accepts the order; the saga fails later")

	require.Equal(t, domain.StatusFailed, w.orders[orderID].Status)
	require.Equal(t, 5, w.stock["prod-1"], "inventory untouched on validation failure")
	require.Equal(t, 1, w.stock["prod-2"])

	require.Len(t, ch.terminal, 1)
	require.Equal(t, eventbus.DetailStockValidationFailed, ch.terminal[0].DetailType)
}

func TestSagaRedeliveryIsIdempotent(t *testing.T) {
	w, ch, ingestion := newSaga(map[string]int{"prod-1": 5, "prod-2": 5})

	orderID, err := ingestion.SubmitOrder(context.Background(), "cust-1", submitItems())
	require.NoError(t, err)

	// redeliver OrderCreated as the channel may under at-least-once
	created := w.orders[orderID]
	created.Status = domain.StatusPending
	env, err := eventbus.NewEnvelope(eventbus.DetailOrderCreated, created)
	require.NoError(t, err)
	require.NoError(t, ch.handlers[eventbus.DetailOrderCreated](context.Background(), env))

	require.Equal(t, domain.StatusInventoryUpdated, w.orders[orderID].Status, "status never moves backward")
	require.Equal(t, 4, w.stock["prod-1"], "no double decrement")
	require.Equal(t, 3, w.stock["prod-2"])
	require.Len(t, w.items[orderID], 2, "no duplicate order rows")
}
