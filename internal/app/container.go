// Package app wires configuration into a ready-to-use purchases
// orchestrator and its collaborators.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/felixgeelhaar/entitlekit/internal/purchases/application"
	"github.com/felixgeelhaar/entitlekit/internal/purchases/domain"
	"github.com/felixgeelhaar/entitlekit/internal/purchases/infrastructure/backend"
	"github.com/felixgeelhaar/entitlekit/internal/purchases/infrastructure/events"
	"github.com/felixgeelhaar/entitlekit/internal/purchases/infrastructure/googleplay"
	"github.com/felixgeelhaar/entitlekit/internal/purchases/infrastructure/sandbox"
	"github.com/felixgeelhaar/entitlekit/internal/shared/infrastructure/eventbus"
	"github.com/felixgeelhaar/entitlekit/pkg/config"
	"github.com/felixgeelhaar/entitlekit/pkg/observability"
)

// Container holds all application dependencies.
type Container struct {
	Config  *config.Config
	Logger  *slog.Logger
	Metrics observability.Metrics
	Health  *observability.HealthRegistry

	InstallDate int64

	// Persistence
	Cache   LaunchCache
	Pending domain.PendingPurchaseStore

	// Collaborators
	Backend   domain.Backend
	Breaker   *backend.BreakerClient
	Store     *sandbox.Store
	Finalizer domain.Finalizer

	// Events
	EventPublisher eventbus.Publisher
	Bus            *eventbus.InProcessBus

	Orchestrator *application.Orchestrator

	stores *stores
}

// Option customizes the container.
type Option func(*options)

type options struct {
	backend  domain.Backend
	metrics  observability.Metrics
	dispatch application.Dispatcher
	now      func() time.Time
}

// WithBackend replaces the HTTP backend client.
func WithBackend(b domain.Backend) Option {
	return func(o *options) { o.backend = b }
}

// WithMetrics sets the metrics sink shared by all components.
func WithMetrics(m observability.Metrics) Option {
	return func(o *options) { o.metrics = m }
}

// WithDispatcher sets the orchestrator and sandbox dispatcher.
func WithDispatcher(d application.Dispatcher) Option {
	return func(o *options) { o.dispatch = d }
}

// WithClock sets the time source.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// NewContainer creates and wires all dependencies.
func NewContainer(ctx context.Context, cfg *config.Config, logger *slog.Logger, opts ...Option) (*Container, error) {
	o := options{metrics: observability.NoopMetrics{}, now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	if logger == nil {
		logger = slog.Default()
	}

	c := &Container{
		Config:  cfg,
		Logger:  logger,
		Metrics: o.metrics,
		Health:  observability.NewHealthRegistry(),
	}

	installDate, err := resolveInstallDate(cfg, o.now())
	if err != nil {
		return nil, err
	}
	c.InstallDate = installDate

	st, err := openStores(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	c.stores = st
	c.Cache = st.cache
	c.Pending = st.pending
	if st.db != nil {
		c.Health.Register("database", observability.PingChecker("database", true, st.db.Ping))
	}
	if st.redis != nil {
		c.Health.Register("redis", observability.PingChecker("redis", true, func(ctx context.Context) error {
			return st.redis.Ping(ctx).Err()
		}))
	}

	if err := c.initBackend(o); err != nil {
		c.Close()
		return nil, err
	}
	if err := c.initStore(ctx, o); err != nil {
		c.Close()
		return nil, err
	}
	c.initEvents()

	orchOpts := []application.Option{
		application.WithMetrics(c.Metrics),
		application.WithClock(o.now),
		application.WithPermissionsListener(events.NewPermissionsPublisher(c.EventPublisher, cfg.ProjectKey, logger, c.Metrics)),
	}
	if o.dispatch != nil {
		orchOpts = append(orchOpts, application.WithDispatcher(o.dispatch))
	}

	orch, err := application.New(application.Dependencies{
		Billing:   c.Store,
		Backend:   c.Backend,
		Finalizer: c.Finalizer,
		Cache:     c.Cache,
		Pending:   c.Pending,
	}, application.Config{
		InstallDate: installDate,
		Replay: application.ReplayPolicy{
			BackoffBase: cfg.ReplayBackoffBase,
			BackoffMax:  cfg.ReplayBackoffMax,
		},
		OperationTimeout: cfg.OperationTimeout,
	}, logger, orchOpts...)
	if err != nil {
		c.Close()
		return nil, err
	}
	c.Orchestrator = orch
	c.Store.SetListener(orch)

	logger.Debug("container ready",
		"cache_backend", cfg.CacheBackend,
		"sandbox", c.Finalizer == nil,
		"breaker", c.Breaker != nil,
	)
	return c, nil
}

func (c *Container) initBackend(o options) error {
	if o.backend != nil {
		c.Backend = o.backend
	} else {
		client, err := backend.NewClient(backend.Config{
			BaseURL:    c.Config.BackendURL,
			ProjectKey: c.Config.ProjectKey,
			Timeout:    c.Config.BackendTimeout,
			DebugMode:  c.Config.DebugMode,
		}, c.Logger, c.Metrics)
		if err != nil {
			return fmt.Errorf("create backend client: %w", err)
		}
		c.Backend = client
	}

	if c.Config.BreakerEnabled {
		c.Breaker = backend.NewBreakerClient(c.Backend, backend.BreakerConfig{
			MaxRequests:      c.Config.BreakerMaxRequests,
			Interval:         c.Config.BreakerInterval,
			Timeout:          c.Config.BreakerTimeout,
			FailureThreshold: c.Config.BreakerFailureThreshold,
		}, c.Logger, c.Metrics)
		c.Backend = c.Breaker
		c.Health.Register("backend", func(context.Context) observability.HealthCheckResult {
			if state := c.Breaker.State(); state != "closed" {
				return observability.HealthCheckResult{Status: observability.HealthStatusDegraded, Message: "circuit breaker " + state}
			}
			return observability.HealthCheckResult{Status: observability.HealthStatusHealthy, Message: "circuit breaker closed"}
		})
	}
	return nil
}

func (c *Container) initStore(ctx context.Context, o options) error {
	var catalog *sandbox.Catalog
	if path := c.Config.SandboxCatalog; path != "" {
		loaded, err := sandbox.LoadCatalog(path)
		if err != nil {
			return err
		}
		catalog = loaded
	} else {
		c.Logger.Warn("ENTITLEKIT_SANDBOX_CATALOG not set, sandbox store starts empty")
	}

	storeOpts := []sandbox.Option{sandbox.WithLogger(c.Logger), sandbox.WithClock(o.now)}
	if o.dispatch != nil {
		storeOpts = append(storeOpts, sandbox.WithDispatcher(o.dispatch))
	}
	c.Store = sandbox.New(catalog, storeOpts...)

	if c.Config.SandboxMode() {
		return nil
	}
	finalizer, err := googleplay.NewFinalizer(ctx, googleplay.Config{
		PackageName:        c.Config.GooglePlayPackageName,
		ServiceAccountJSON: c.Config.GooglePlayServiceAccountJSON,
	}, c.Logger)
	if err != nil {
		return fmt.Errorf("create google play finalizer: %w", err)
	}
	c.Finalizer = finalizer
	return nil
}

func (c *Container) initEvents() {
	if url := c.Config.RabbitMQURL; url != "" {
		publisher, err := eventbus.NewRabbitMQPublisher(url, c.Logger)
		if err == nil {
			c.EventPublisher = publisher
			c.Health.Register("rabbitmq", observability.PingChecker("rabbitmq", false, publisher.Ping))
			return
		}
		c.Logger.Warn("RabbitMQ not available, using in-process bus", "error", err)
	}
	c.Bus = eventbus.NewInProcessBus(c.Logger)
	c.EventPublisher = c.Bus
}

// Close cleans up all resources.
func (c *Container) Close() error {
	var errs []error
	if c.Orchestrator != nil {
		c.Orchestrator.Close()
	}
	if c.Store != nil {
		c.Store.Wait()
	}
	if c.EventPublisher != nil {
		if err := c.EventPublisher.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close event publisher: %w", err))
		}
	}
	if c.stores != nil {
		if err := c.stores.close(); err != nil {
			errs = append(errs, fmt.Errorf("close stores: %w", err))
		}
	}
	return errors.Join(errs...)
}
