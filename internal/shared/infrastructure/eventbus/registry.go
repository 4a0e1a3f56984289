package eventbus

import (
	"context"
	"log/slog"
	"sync"
)

// Registry maps routing keys to handlers.
type Registry struct {
	handlers map[string][]Handler
	mu       sync.RWMutex
	logger   *slog.Logger
}

// NewRegistry creates an empty handler registry.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		handlers: make(map[string][]Handler),
		logger:   logger,
	}
}

// Register adds a handler for its declared event types.
func (r *Registry) Register(h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, key := range h.EventTypes() {
		r.handlers[key] = append(r.handlers[key], h)
	}
}

// Handlers returns the handlers registered for a routing key.
func (r *Registry) Handlers(routingKey string) []Handler {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.handlers[routingKey]
}

// Dispatch sends an event to every handler for its routing key. All
// handlers run; the last error is returned.
func (r *Registry) Dispatch(ctx context.Context, event *Event) error {
	handlers := r.Handlers(event.RoutingKey)
	if len(handlers) == 0 {
		r.logger.Debug("no handlers for event type", "routing_key", event.RoutingKey)
		return nil
	}

	var lastErr error
	for _, h := range handlers {
		if err := h.Handle(ctx, event); err != nil {
			r.logger.Error("handler failed to handle event",
				"routing_key", event.RoutingKey,
				"event_id", event.ID,
				"error", err,
			)
			lastErr = err
		}
	}
	return lastErr
}
