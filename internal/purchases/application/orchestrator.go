package application

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/felixgeelhaar/entitlekit/internal/purchases/domain"
	"github.com/felixgeelhaar/entitlekit/pkg/observability"
)

// Callback receives the outcome of an asynchronous orchestrator operation.
type Callback[T any] func(domain.Result[T])

type (
	LaunchCallback      = Callback[*domain.SessionResult]
	PermissionsCallback = Callback[map[string]domain.Permission]
	ProductsCallback    = Callback[map[string]domain.Product]
	ExperimentsCallback = Callback[map[string]domain.Experiment]
	OfferingsCallback   = Callback[*domain.Offerings]
	EligibilityCallback = Callback[map[string]domain.Eligibility]

	PermissionsResult = domain.Result[map[string]domain.Permission]
)

// Dispatcher runs fn asynchronously. Tests substitute a synchronous one.
type Dispatcher func(fn func())

// GoDispatcher runs every task on its own goroutine.
func GoDispatcher(fn func()) { go fn() }

// SyncDispatcher runs every task inline on the calling goroutine.
func SyncDispatcher(fn func()) { fn() }

// Dependencies are the collaborators the orchestrator drives.
type Dependencies struct {
	Billing       domain.BillingTransport
	Backend       domain.Backend
	Finalizer     domain.Finalizer
	Cache         domain.EntitlementCache
	Pending       domain.PendingPurchaseStore
	AdvertisingID domain.AdvertisingIDProvider
}

// Config holds orchestrator settings.
type Config struct {
	// InstallDate is the app install time in unix seconds, sent with every
	// backend call.
	InstallDate int64
	Replay      ReplayPolicy
	// OperationTimeout bounds every collaborator call. Zero means no bound.
	OperationTimeout time.Duration
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithDispatcher replaces the goroutine dispatcher.
func WithDispatcher(d Dispatcher) Option {
	return func(o *Orchestrator) {
		if d != nil {
			o.dispatch = d
		}
	}
}

// WithMetrics sets the metrics sink.
func WithMetrics(m observability.Metrics) Option {
	return func(o *Orchestrator) {
		if m != nil {
			o.metrics = m
		}
	}
}

// WithClock overrides the time source used for replay scheduling.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) {
		if now != nil {
			o.now = now
		}
	}
}

// WithPermissionsListener registers the out-of-band permissions listener.
func WithPermissionsListener(l domain.PermissionsListener) Option {
	return func(o *Orchestrator) {
		o.listener = l
	}
}

// Orchestrator is the session state machine. It sequences launch, catalog
// loading, purchases and restores, and reconciles the caches and callback
// batches. All mutable state is guarded by mu; callbacks and collaborators
// are never invoked while mu is held.
type Orchestrator struct {
	billing     domain.BillingTransport
	backend     domain.Backend
	finalizer   domain.Finalizer
	cache       domain.EntitlementCache
	pending     domain.PendingPurchaseStore
	adProvider  domain.AdvertisingIDProvider
	installDate int64
	replay      ReplayPolicy
	opTimeout   time.Duration

	logger   *slog.Logger
	metrics  observability.Metrics
	dispatch Dispatcher
	now      func() time.Time

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu          sync.Mutex
	state       SessionState
	result      *domain.SessionResult
	launchErr   error
	forceRetry  bool
	catalog     *catalogCache
	products    batch[map[string]domain.Product]
	permissions batch[map[string]domain.Permission]
	experiments batch[map[string]domain.Experiment]
	purchasing  *purchaseRegistry
	listener    domain.PermissionsListener
	generation  uint64

	persistMu sync.Mutex
	persisted uint64
}

// New creates an orchestrator. Billing and Backend are required; the
// remaining collaborators are optional.
func New(deps Dependencies, cfg Config, logger *slog.Logger, opts ...Option) (*Orchestrator, error) {
	if deps.Billing == nil {
		return nil, errors.New("billing transport is required")
	}
	if deps.Backend == nil {
		return nil, errors.New("backend is required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	finalizer := deps.Finalizer
	if finalizer == nil {
		if f, ok := deps.Billing.(domain.Finalizer); ok {
			finalizer = f
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	o := &Orchestrator{
		billing:     deps.Billing,
		backend:     deps.Backend,
		finalizer:   finalizer,
		cache:       deps.Cache,
		pending:     deps.Pending,
		adProvider:  deps.AdvertisingID,
		installDate: cfg.InstallDate,
		replay:      cfg.Replay.withDefaults(),
		opTimeout:   cfg.OperationTimeout,
		logger:      logger.With("component", "purchases"),
		metrics:     observability.NoopMetrics{},
		dispatch:    GoDispatcher,
		now:         time.Now,
		ctx:         ctx,
		cancel:      cancel,
		state:       StateNotLaunched,
		catalog:     newCatalogCache(),
		purchasing:  newPurchaseRegistry(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o, nil
}

// SetPermissionsListener replaces the out-of-band permissions listener.
func (o *Orchestrator) SetPermissionsListener(l domain.PermissionsListener) {
	o.mu.Lock()
	o.listener = l
	o.mu.Unlock()
}

// Wait blocks until all dispatched work has completed.
func (o *Orchestrator) Wait() {
	o.wg.Wait()
}

// Close cancels in-flight collaborator calls and waits for dispatched work.
func (o *Orchestrator) Close() {
	o.cancel()
	o.wg.Wait()
}

func (o *Orchestrator) async(fn func()) {
	o.wg.Add(1)
	o.dispatch(func() {
		defer o.wg.Done()
		fn()
	})
}

func (o *Orchestrator) opContext() (context.Context, context.CancelFunc) {
	if o.opTimeout > 0 {
		return context.WithTimeout(o.ctx, o.opTimeout)
	}
	return context.WithCancel(o.ctx)
}

// finishedLocked reports whether a session result or a launch error is held.
func (o *Orchestrator) finishedLocked() bool {
	return o.result != nil || o.launchErr != nil
}

// setResultLocked makes result current, clears the launch error and the
// force-retry flag, and returns the generation to persist it under.
func (o *Orchestrator) setResultLocked(result *domain.SessionResult) uint64 {
	o.result = result
	o.launchErr = nil
	o.forceRetry = false
	o.state = StateSucceeded
	o.generation++
	return o.generation
}

// updateResult replaces the current session result and persists it.
func (o *Orchestrator) updateResult(result *domain.SessionResult) {
	o.mu.Lock()
	gen := o.setResultLocked(result)
	o.mu.Unlock()
	o.persist(gen, result)
}

// persist writes result to the entitlement cache unless a newer result has
// already been written.
func (o *Orchestrator) persist(gen uint64, result *domain.SessionResult) {
	if o.cache == nil || result == nil {
		return
	}
	o.persistMu.Lock()
	defer o.persistMu.Unlock()
	if gen <= o.persisted {
		return
	}
	ctx, cancel := o.opContext()
	defer cancel()
	if err := o.cache.Save(ctx, result); err != nil {
		o.logger.Warn("failed to persist session result", "error", err)
		o.metrics.Counter(observability.MetricCacheWriteFailed, 1)
		return
	}
	o.persisted = gen
}

func (o *Orchestrator) loadCached() *domain.SessionResult {
	if o.cache == nil {
		return nil
	}
	ctx, cancel := o.opContext()
	defer cancel()
	cached, err := o.cache.Load(ctx)
	if err != nil {
		o.logger.Warn("failed to read entitlement cache", "error", err)
		return nil
	}
	return cached
}

func (o *Orchestrator) markForceRetry() {
	o.mu.Lock()
	o.forceRetry = true
	o.mu.Unlock()
}

func (o *Orchestrator) currentListener() domain.PermissionsListener {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.listener
}

func deliver[T any](cb Callback[T], r domain.Result[T]) {
	if cb != nil {
		cb(r)
	}
}

func deliverAll[T any](cbs []Callback[T], r domain.Result[T]) {
	for _, cb := range cbs {
		deliver(cb, r)
	}
}
