package eventbus_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/felixgeelhaar/entitlekit/internal/shared/infrastructure/eventbus"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type recordingHandler struct {
	keys   []string
	events []*eventbus.Event
	err    error
}

func (h *recordingHandler) EventTypes() []string { return h.keys }

func (h *recordingHandler) Handle(_ context.Context, e *eventbus.Event) error {
	h.events = append(h.events, e)
	return h.err
}

func TestNewEvent(t *testing.T) {
	event, err := eventbus.NewEvent("purchases.permissions.updated", map[string]string{"uid": "u1"})
	require.NoError(t, err)

	assert.NotEqual(t, uuid.Nil, event.ID)
	assert.Equal(t, "purchases.permissions.updated", event.RoutingKey)
	assert.False(t, event.OccurredAt.IsZero())

	var payload map[string]string
	require.NoError(t, event.Decode(&payload))
	assert.Equal(t, "u1", payload["uid"])

	_, err = eventbus.NewEvent("x", make(chan int))
	assert.Error(t, err)
}

func TestInProcessBus_DispatchesByRoutingKey(t *testing.T) {
	bus := eventbus.NewInProcessBus(testLogger())
	permissions := &recordingHandler{keys: []string{"purchases.permissions.updated"}}
	other := &recordingHandler{keys: []string{"purchases.other"}}
	bus.Subscribe(permissions)
	bus.Subscribe(other)

	event, err := eventbus.NewEvent("purchases.permissions.updated", map[string]int{"n": 1})
	require.NoError(t, err)
	body, err := json.Marshal(event)
	require.NoError(t, err)

	require.NoError(t, bus.Publish(context.Background(), event.RoutingKey, body))

	require.Len(t, permissions.events, 1)
	assert.Equal(t, event.ID, permissions.events[0].ID)
	assert.Empty(t, other.events)
}

func TestInProcessBus_FillsMissingRoutingKey(t *testing.T) {
	bus := eventbus.NewInProcessBus(testLogger())
	h := &recordingHandler{keys: []string{"k"}}
	bus.Subscribe(h)

	require.NoError(t, bus.Publish(context.Background(), "k", []byte(`{"payload":{}}`)))

	require.Len(t, h.events, 1)
	assert.Equal(t, "k", h.events[0].RoutingKey)
}

func TestInProcessBus_SwallowsHandlerAndDecodeErrors(t *testing.T) {
	bus := eventbus.NewInProcessBus(testLogger())
	failing := &recordingHandler{keys: []string{"k"}, err: errors.New("boom")}
	healthy := &recordingHandler{keys: []string{"k"}}
	bus.Subscribe(failing)
	bus.Subscribe(healthy)

	assert.NoError(t, bus.Publish(context.Background(), "k", []byte(`{"routing_key":"k"}`)))
	assert.Len(t, failing.events, 1)
	assert.Len(t, healthy.events, 1, "remaining handlers still run")

	assert.NoError(t, bus.Publish(context.Background(), "k", []byte("not json")))
	assert.Len(t, healthy.events, 1)
}

func TestRegistry_DispatchReturnsLastError(t *testing.T) {
	r := eventbus.NewRegistry(testLogger())
	boom := errors.New("boom")
	r.Register(eventbus.HandlerFunc{Keys: []string{"k"}, Fn: func(context.Context, *eventbus.Event) error { return boom }})

	err := r.Dispatch(context.Background(), &eventbus.Event{RoutingKey: "k"})
	assert.ErrorIs(t, err, boom)
	assert.NoError(t, r.Dispatch(context.Background(), &eventbus.Event{RoutingKey: "none"}))
	assert.Len(t, r.Handlers("k"), 1)
}

func TestNoopPublisher(t *testing.T) {
	p := eventbus.NewNoopPublisher(nil)
	assert.NoError(t, p.Publish(context.Background(), "k", []byte("{}")))
	assert.NoError(t, p.Close())
}

func TestNewRabbitMQPublisher_InvalidURL(t *testing.T) {
	_, err := eventbus.NewRabbitMQPublisher("not-a-url", testLogger())
	assert.ErrorContains(t, err, "failed to connect to RabbitMQ")
}
