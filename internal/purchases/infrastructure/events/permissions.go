// Package events publishes out-of-band permission changes to the event bus.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/felixgeelhaar/entitlekit/internal/purchases/domain"
	"github.com/felixgeelhaar/entitlekit/internal/shared/infrastructure/eventbus"
	"github.com/felixgeelhaar/entitlekit/pkg/observability"
)

// RoutingKeyPermissionsUpdated is published when permissions change without
// a waiting caller.
const RoutingKeyPermissionsUpdated = "purchases.permissions.updated"

// PermissionsUpdated is the event payload.
type PermissionsUpdated struct {
	ProjectKey  string                       `json:"project_key,omitempty"`
	Active      []string                     `json:"active"`
	Permissions map[string]domain.Permission `json:"permissions"`
}

// PermissionsPublisher implements domain.PermissionsListener by publishing
// a PermissionsUpdated event. Publish failures are logged; the listener has
// nobody to return them to.
type PermissionsPublisher struct {
	publisher  eventbus.Publisher
	projectKey string
	timeout    time.Duration
	logger     *slog.Logger
	metrics    observability.Metrics
}

// NewPermissionsPublisher creates a listener publishing through p.
func NewPermissionsPublisher(p eventbus.Publisher, projectKey string, logger *slog.Logger, metrics observability.Metrics) *PermissionsPublisher {
	if logger == nil {
		logger = slog.Default()
	}
	if metrics == nil {
		metrics = observability.NoopMetrics{}
	}
	return &PermissionsPublisher{
		publisher:  p,
		projectKey: projectKey,
		timeout:    10 * time.Second,
		logger:     logger.With("component", "permissions_publisher"),
		metrics:    metrics,
	}
}

func (p *PermissionsPublisher) OnPermissionsUpdated(permissions map[string]domain.Permission) {
	ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
	defer cancel()

	if err := p.Publish(ctx, permissions); err != nil {
		p.logger.Warn("failed to publish permissions update", "error", err)
	}
}

// Publish sends a PermissionsUpdated event.
func (p *PermissionsPublisher) Publish(ctx context.Context, permissions map[string]domain.Permission) error {
	payload := PermissionsUpdated{
		ProjectKey:  p.projectKey,
		Active:      activeIDs(permissions),
		Permissions: permissions,
	}
	if payload.Permissions == nil {
		payload.Permissions = map[string]domain.Permission{}
	}

	event, err := eventbus.NewEvent(RoutingKeyPermissionsUpdated, payload)
	if err != nil {
		return fmt.Errorf("build event: %w", err)
	}
	event.CorrelationID = observability.CorrelationIDFromContext(ctx)

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	if err := p.publisher.Publish(ctx, RoutingKeyPermissionsUpdated, data); err != nil {
		p.metrics.Counter(observability.MetricEventsPublished, 1, observability.T("outcome", "failure"))
		return err
	}

	p.metrics.Counter(observability.MetricEventsPublished, 1, observability.T("outcome", "success"))
	p.logger.Debug("permissions update published", "event_id", event.ID, "active", len(payload.Active))
	return nil
}

func activeIDs(permissions map[string]domain.Permission) []string {
	ids := make([]string, 0, len(permissions))
	for id, perm := range permissions {
		if perm.Active {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

// PermissionsHandler returns an event handler that decodes
// PermissionsUpdated events and passes them to fn.
func PermissionsHandler(fn func(ctx context.Context, event *eventbus.Event, update PermissionsUpdated) error) eventbus.Handler {
	return eventbus.HandlerFunc{
		Keys: []string{RoutingKeyPermissionsUpdated},
		Fn: func(ctx context.Context, event *eventbus.Event) error {
			var update PermissionsUpdated
			if err := event.Decode(&update); err != nil {
				return fmt.Errorf("decode permissions update: %w", err)
			}
			return fn(ctx, event, update)
		},
	}
}

var _ domain.PermissionsListener = (*PermissionsPublisher)(nil)
