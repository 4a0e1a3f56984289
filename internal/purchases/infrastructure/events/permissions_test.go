package events

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/felixgeelhaar/entitlekit/internal/purchases/domain"
	"github.com/felixgeelhaar/entitlekit/internal/shared/infrastructure/eventbus"
	"github.com/felixgeelhaar/entitlekit/pkg/observability"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockPublisher struct {
	mock.Mock
}

func (m *mockPublisher) Publish(ctx context.Context, routingKey string, payload []byte) error {
	args := m.Called(ctx, routingKey, payload)
	return args.Error(0)
}

func (m *mockPublisher) Close() error {
	return nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func samplePermissions() map[string]domain.Permission {
	return map[string]domain.Permission{
		"premium": {ID: "premium", ProductID: "pro", Active: true},
		"legacy":  {ID: "legacy", ProductID: "old", Active: false},
		"ads":     {ID: "ads", ProductID: "no_ads", Active: true},
	}
}

func TestPermissionsPublisher_DeliversThroughInProcessBus(t *testing.T) {
	bus := eventbus.NewInProcessBus(discardLogger())
	var got []PermissionsUpdated
	var correlation string
	bus.Subscribe(PermissionsHandler(func(_ context.Context, event *eventbus.Event, update PermissionsUpdated) error {
		correlation = event.CorrelationID
		got = append(got, update)
		return nil
	}))

	metrics := observability.NewInMemoryMetrics()
	p := NewPermissionsPublisher(bus, "pk_live", discardLogger(), metrics)

	ctx := observability.WithCorrelationID(context.Background(), "corr-1")
	require.NoError(t, p.Publish(ctx, samplePermissions()))

	require.Len(t, got, 1)
	assert.Equal(t, "pk_live", got[0].ProjectKey)
	assert.Equal(t, []string{"ads", "premium"}, got[0].Active)
	assert.Len(t, got[0].Permissions, 3)
	assert.Equal(t, "corr-1", correlation)
	assert.Equal(t, int64(1), metrics.GetCounter(observability.MetricEventsPublished, observability.T("outcome", "success")))
}

func TestPermissionsPublisher_OnPermissionsUpdated(t *testing.T) {
	pub := &mockPublisher{}
	pub.On("Publish", mock.Anything, RoutingKeyPermissionsUpdated, mock.MatchedBy(func(payload []byte) bool {
		return len(payload) > 0
	})).Return(nil).Once()

	p := NewPermissionsPublisher(pub, "", discardLogger(), nil)
	p.OnPermissionsUpdated(nil)

	pub.AssertExpectations(t)
}

func TestPermissionsPublisher_PublishFailure(t *testing.T) {
	pub := &mockPublisher{}
	pub.On("Publish", mock.Anything, RoutingKeyPermissionsUpdated, mock.Anything).Return(errors.New("channel closed"))

	metrics := observability.NewInMemoryMetrics()
	p := NewPermissionsPublisher(pub, "", discardLogger(), metrics)

	err := p.Publish(context.Background(), samplePermissions())
	assert.ErrorContains(t, err, "channel closed")
	assert.Equal(t, int64(1), metrics.GetCounter(observability.MetricEventsPublished, observability.T("outcome", "failure")))

	assert.NotPanics(t, func() { p.OnPermissionsUpdated(samplePermissions()) })
}

func TestPermissionsHandler_DecodeError(t *testing.T) {
	h := PermissionsHandler(func(context.Context, *eventbus.Event, PermissionsUpdated) error {
		t.Fatal("handler must not run for undecodable payloads")
		return nil
	})
	assert.Equal(t, []string{RoutingKeyPermissionsUpdated}, h.EventTypes())

	err := h.Handle(context.Background(), &eventbus.Event{Payload: []byte(`"not an object"`)})
	assert.ErrorContains(t, err, "decode permissions update")
}
