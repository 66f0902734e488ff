package application

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"github.com/retailops/orderflow/internal/order/domain"
	"github.com/retailops/orderflow/pkg/eventbus"
	"github.com/retailops/orderflow/pkg/metrics"
)

// Service is the ingestion stage: durably record a new order, then announce
// it. The write path never round-trips read state back to the caller.
type Service struct {
	log       *slog.Logger
	repo      OrderRepository
	publisher eventbus.Publisher
	journal   Journal
}

func NewService(log *slog.Logger, repo OrderRepository, publisher eventbus.Publisher, journal Journal) *Service {
	return &Service{log: log, repo: repo, publisher: publisher, journal: journal}
}

// SubmitOrder validates, persists atomically, then publishes OrderCreated.
// A publish failure after the commit is logged and journaled, never
// surfaced: the order exists and the caller is told so.
func (s *Service) SubmitOrder(ctx context.Context, customerID string, items []domain.OrderItem) (string, error) {
	if err := domain.ValidateSubmission(customerID, items); err != nil {
		return "", err
	}

	order := domain.NewOrder(uuid.NewString(), customerID, items)

	if err := s.repo.CreateWithItems(ctx, order); err != nil {
		return "", &domain.PersistenceError{Op: "create order", Err: err}
	}
	metrics.OrdersSubmitted.Inc()

	env, err := eventbus.NewEnvelope(eventbus.DetailOrderCreated, order)
	if err != nil {
		s.logPublishFailure(ctx, eventbus.Envelope{DetailType: eventbus.DetailOrderCreated}, order.ID, err, false)
		return order.ID, nil
	}
	if err := s.publisher.Publish(ctx, env, order.ID); err != nil {
		s.logPublishFailure(ctx, env, order.ID, err, true)
	}
	return order.ID, nil
}

func (s *Service) logPublishFailure(ctx context.Context, env eventbus.Envelope, orderID string, err error, journal bool) {
	pubErr := &domain.PublishError{DetailType: env.DetailType, Err: err}
	s.log.Error("order committed but event not published", "order_id", orderID, "err", pubErr)
	if !journal || s.journal == nil {
		return
	}
	if jerr := s.journal.Append(ctx, env, orderID); jerr != nil {
		s.log.Error("journal append failed, event is lost until reconciliation", "order_id", orderID, "err", jerr)
	}
}
