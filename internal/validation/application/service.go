package application

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/retailops/orderflow/internal/order/domain"
	"github.com/retailops/orderflow/pkg/eventbus"
)

// Service is the stock-validation stage: one OrderCreated event in, one
// status write, one decision event out. Re-running the whole handler on a
// redelivered event is safe: the stock check is read-only, the status write
// is guarded, and downstream tolerates duplicate events.
type Service struct {
	log       *slog.Logger
	stock     StockReader
	orders    OrderStore
	publisher eventbus.Publisher
}

func NewService(log *slog.Logger, stock StockReader, orders OrderStore, publisher eventbus.Publisher) *Service {
	return &Service{log: log, stock: stock, orders: orders, publisher: publisher}
}

// HandleEnvelope adapts a delivered envelope to the stage handler.
func (s *Service) HandleEnvelope(ctx context.Context, env eventbus.Envelope) error {
	var order domain.Order
	if err := json.Unmarshal(env.Detail, &order); err != nil {
		return fmt.Errorf("decode order detail: %w", err)
	}
	return s.Handle(ctx, order)
}

// Handle checks items in input order and short-circuits on the first
// insufficient or missing product; the decision is binary, not a shortfall
// report.
func (s *Service) Handle(ctx context.Context, order domain.Order) error {
	sufficient := true
	for _, item := range order.Items {
		stock, found, err := s.stock.Stock(ctx, item.ProductID)
		if err != nil {
			return fmt.Errorf("stock lookup %s: %w", item.ProductID, err)
		}
		if !found || stock < item.Quantity {
			sufficient = false
			break
		}
	}

	newStatus := domain.StatusStockValidated
	if !sufficient {
		newStatus = domain.StatusFailed
	}

	advanced, err := s.orders.AdvanceStatus(ctx, order.ID, domain.StatusPending, newStatus)
	if err != nil {
		return fmt.Errorf("advance order %s: %w", order.ID, err)
	}
	if !advanced {
		// An earlier delivery already decided this order. Re-emit its
		// stored decision in case that attempt died between the status
		// write and the publish; duplicates are tolerated downstream.
		return s.republishDecision(ctx, order)
	}

	order.Status = newStatus
	if err := s.publish(ctx, order); err != nil {
		return err
	}

	s.log.Info("stock validation decided", "order_id", order.ID, "status", newStatus)
	return nil
}

func (s *Service) republishDecision(ctx context.Context, order domain.Order) error {
	status, err := s.orders.Status(ctx, order.ID)
	if err != nil {
		return fmt.Errorf("read order %s status: %w", order.ID, err)
	}
	if status != domain.StatusStockValidated && status != domain.StatusFailed {
		// Already flowed further downstream (or still pending under a
		// racing delivery); nothing for this stage to emit.
		s.log.Info("order already past validation, skipping", "order_id", order.ID, "status", status)
		return nil
	}
	order.Status = status
	return s.publish(ctx, order)
}

func (s *Service) publish(ctx context.Context, order domain.Order) error {
	detailType := eventbus.DetailStockValidated
	if order.Status == domain.StatusFailed {
		detailType = eventbus.DetailStockValidationFailed
	}
	env, err := eventbus.NewEnvelope(detailType, order)
	if err != nil {
		return err
	}
	if err := s.publisher.Publish(ctx, env, order.ID); err != nil {
		// The status is committed; the channel redelivers and this stage
		// re-emits the stored decision on the next attempt.
		return &domain.PublishError{DetailType: detailType, Err: err}
	}
	return nil
}
