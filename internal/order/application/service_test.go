package application

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/retailops/orderflow/internal/order/domain"
	"github.com/retailops/orderflow/pkg/eventbus"
)

type fakeRepo struct {
	created  []domain.Order
	failWith error
}

func (f *fakeRepo) CreateWithItems(_ context.Context, o domain.Order) error {
	if f.failWith != nil {
		return f.failWith
	}
	f.created = append(f.created, o)
	return nil
}

func (f *fakeRepo) Get(_ context.Context, id string) (domain.Order, error) {
	for _, o := range f.created {
		if o.ID == id {
			return o, nil
		}
	}
	return domain.Order{}, errors.New("not found")
}

type fakePublisher struct {
	published []eventbus.Envelope
	keys      []string
	failWith  error
}

func (f *fakePublisher) Publish(_ context.Context, env eventbus.Envelope, key string) error {
	if f.failWith != nil {
		return f.failWith
	}
	f.published = append(f.published, env)
	f.keys = append(f.keys, key)
	return nil
}

type fakeJournal struct {
	appended []eventbus.Envelope
	failWith error
}

func (f *fakeJournal) Append(_ context.Context, env eventbus.Envelope, _ string) error {
	if f.failWith != nil {
		return f.failWith
	}
	f.appended = append(f.appended, env)
	return nil
}

var discard = slog.New(slog.DiscardHandler)

func TestSubmitOrderPersistsAndPublishes(t *testing.T) {
	repo := &fakeRepo{}
	pub := &fakePublisher{}
	svc := NewService(discard, repo, pub, &fakeJournal{})

	items := []domain.OrderItem{{ProductID: "prod-1", Quantity: 1}, {ProductID: "prod-2", Quantity: 2}}
	orderID, err := svc.SubmitOrder(context.Background(), "cust-1", items)
	require.NoError(t, err)
	require.NotEmpty(t, orderID)

	require.Len(t, repo.created, 1)
	require.Equal(t, orderID, repo.created[0].ID)
	require.Equal(t, domain.StatusPending, repo.created[0].Status)
	require.Equal(t, items, repo.created[0].Items)

	require.Len(t, pub.published, 1)
	require.Equal(t, eventbus.DetailOrderCreated, pub.published[0].DetailType)
	require.Equal(t, eventbus.Source, pub.published[0].Source)
	require.Equal(t, orderID, pub.keys[0])

	var snapshot domain.Order
	require.NoError(t, json.Unmarshal(pub.published[0].Detail, &snapshot))
	require.Equal(t, repo.created[0].ID, snapshot.ID)
	require.Equal(t, domain.StatusPending, snapshot.Status)
}

func TestSubmitOrderRejectsBadInputWithoutSideEffects(t *testing.T) {
	repo := &fakeRepo{}
	pub := &fakePublisher{}
	svc := NewService(discard, repo, pub, &fakeJournal{})

	_, err := svc.SubmitOrder(context.Background(), "", []domain.OrderItem{{ProductID: "prod-1", Quantity: 1}})
	var verr *domain.ValidationError
	require.ErrorAs(t, err, &verr)

	_, err = svc.SubmitOrder(context.Background(), "cust-1", nil)
	require.ErrorAs(t, err, &verr)

	require.Empty(t, repo.created)
	require.Empty(t, pub.published)
}

func TestSubmitOrderSurfacesPersistenceFailure(t *testing.T) {
	repo := &fakeRepo{failWith: errors.New("connection reset")}
	pub := &fakePublisher{}
	svc := NewService(discard, repo, pub, &fakeJournal{})

	_, err := svc.SubmitOrder(context.Background(), "cust-1", []domain.OrderItem{{ProductID: "prod-1", Quantity: 1}})
	var perr *domain.PersistenceError
	require.ErrorAs(t, err, &perr)
	require.Empty(t, pub.published, "no event may be announced for an uncommitted order")
}

func TestSubmitOrderPublishFailureIsNotSurfaced(t *testing.T) {
	repo := &fakeRepo{}
	pub := &fakePublisher{failWith: errors.New("broker unreachable")}
	journal := &fakeJournal{}
	svc := NewService(discard, repo, pub, journal)

	orderID, err := svc.SubmitOrder(context.Background(), "cust-1", []domain.OrderItem{{ProductID: "prod-1", Quantity: 1}})
	require.NoError(t, err, "commit succeeded, the caller must see success")
	require.NotEmpty(t, orderID)
	require.Len(t, repo.created, 1)

	require.Len(t, journal.appended, 1, "failed publish must be journaled for the relay")
	require.Equal(t, eventbus.DetailOrderCreated, journal.appended[0].DetailType)
}

func TestSubmitOrderSurvivesJournalFailure(t *testing.T) {
	repo := &fakeRepo{}
	pub := &fakePublisher{failWith: errors.New("broker unreachable")}
	journal := &fakeJournal{failWith: errors.New("journal down")}
	svc := NewService(discard, repo, pub, journal)

	orderID, err := svc.SubmitOrder(context.Background(), "cust-1", []domain.OrderItem{{ProductID: "prod-1", Quantity: 1}})
	require.NoError(t, err)
	require.NotEmpty(t, orderID)
}
