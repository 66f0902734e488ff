package application

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/retailops/orderflow/internal/order/domain"
	"github.com/retailops/orderflow/pkg/eventbus"
)

// Service is the inventory-update stage: one StockValidated event in, one
// all-or-nothing transaction (decrement every line item, advance status),
// one InventoryUpdated event out after commit.
//
// The decrement is unconditional: the validation stage's sufficiency result
// is trusted and not re-verified here, matching the original system. Under
// a race between validation and update, stock can go negative; see
// DESIGN.md for the decision record.
type Service struct {
	log       *slog.Logger
	inventory InventoryRepository
	orders    OrderStatusReader
	publisher eventbus.Publisher
}

func NewService(log *slog.Logger, inventory InventoryRepository, orders OrderStatusReader, publisher eventbus.Publisher) *Service {
	return &Service{log: log, inventory: inventory, orders: orders, publisher: publisher}
}

// HandleEnvelope adapts a delivered envelope to the stage handler.
func (s *Service) HandleEnvelope(ctx context.Context, env eventbus.Envelope) error {
	var order domain.Order
	if err := json.Unmarshal(env.Detail, &order); err != nil {
		return fmt.Errorf("decode order detail: %w", err)
	}
	return s.Handle(ctx, order)
}

func (s *Service) Handle(ctx context.Context, order domain.Order) error {
	applied, err := s.inventory.ApplyDecrement(ctx, order)
	if err != nil {
		return fmt.Errorf("apply inventory decrement for order %s: %w", order.ID, err)
	}
	if !applied {
		// Duplicate delivery: the transaction rolled back without
		// touching stock. Re-emit the terminal event if the first
		// attempt failed to publish it.
		return s.republishTerminal(ctx, order)
	}

	order.Status = domain.StatusInventoryUpdated
	if err := s.publish(ctx, order); err != nil {
		return err
	}

	s.log.Info("inventory updated", "order_id", order.ID)
	return nil
}

func (s *Service) republishTerminal(ctx context.Context, order domain.Order) error {
	status, err := s.orders.Status(ctx, order.ID)
	if err != nil {
		return fmt.Errorf("read order %s status: %w", order.ID, err)
	}
	if status != domain.StatusInventoryUpdated {
		s.log.Info("order not eligible for inventory update, skipping", "order_id", order.ID, "status", status)
		return nil
	}
	order.Status = status
	return s.publish(ctx, order)
}

func (s *Service) publish(ctx context.Context, order domain.Order) error {
	env, err := eventbus.NewEnvelope(eventbus.DetailInventoryUpdated, order)
	if err != nil {
		return err
	}
	if err := s.publisher.Publish(ctx, env, order.ID); err != nil {
		return &domain.PublishError{DetailType: eventbus.DetailInventoryUpdated, Err: err}
	}
	return nil
}
