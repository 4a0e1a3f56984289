package application

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/felixgeelhaar/entitlekit/internal/purchases/domain"
	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var errBackendDown = errors.New("backend unreachable")

// manualDispatcher queues tasks until drain is called, so tests control
// exactly when asynchronous work happens.
type manualDispatcher struct {
	mu    sync.Mutex
	tasks []func()
}

func (d *manualDispatcher) dispatch(fn func()) {
	d.mu.Lock()
	d.tasks = append(d.tasks, fn)
	d.mu.Unlock()
}

// drain runs queued tasks, including ones queued while draining.
func (d *manualDispatcher) drain() {
	for {
		d.mu.Lock()
		if len(d.tasks) == 0 {
			d.mu.Unlock()
			return
		}
		fn := d.tasks[0]
		d.tasks = d.tasks[1:]
		d.mu.Unlock()
		fn()
	}
}

func (d *manualDispatcher) pending() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.tasks)
}

type fakeBilling struct {
	mu             sync.Mutex
	outstanding    []domain.PlatformPurchase
	outstandingErr error
	catalog        map[string]domain.StoreMetadata
	catalogErr     error
	catalogCalls   [][]string
	purchases      []domain.PurchaseRequest
	purchaseErr    error
	history        []domain.HistoryRecord
	historyErr     error
	consumed       []string
	acknowledged   []string
}

func newFakeBilling(catalog map[string]domain.StoreMetadata) *fakeBilling {
	return &fakeBilling{catalog: catalog}
}

func (b *fakeBilling) QueryOutstandingPurchases(context.Context) ([]domain.PlatformPurchase, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.outstanding, b.outstandingErr
}

func (b *fakeBilling) FetchCatalog(_ context.Context, ids []string) (map[string]domain.StoreMetadata, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.catalogCalls = append(b.catalogCalls, ids)
	if b.catalogErr != nil {
		return nil, b.catalogErr
	}
	out := make(map[string]domain.StoreMetadata)
	for _, id := range ids {
		if md, ok := b.catalog[id]; ok {
			out[id] = md
		}
	}
	return out, nil
}

func (b *fakeBilling) Purchase(_ context.Context, req domain.PurchaseRequest) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.purchases = append(b.purchases, req)
	return b.purchaseErr
}

func (b *fakeBilling) QueryHistory(context.Context) ([]domain.HistoryRecord, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.history, b.historyErr
}

func (b *fakeBilling) Consume(_ context.Context, p domain.PlatformPurchase) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.consumed = append(b.consumed, p.ProductID)
	return nil
}

func (b *fakeBilling) Acknowledge(_ context.Context, p domain.PlatformPurchase, _ domain.ProductKind) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.acknowledged = append(b.acknowledged, p.ProductID)
	return nil
}

func (b *fakeBilling) purchaseCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.purchases)
}

type outcome struct {
	result *domain.SessionResult
	err    error
}

type fakeBackend struct {
	mu                sync.Mutex
	inits             []outcome
	initCalls         int
	initWithPurchases [][]domain.NormalizedPurchase
	confirm           []outcome
	confirmCalls      []domain.NormalizedPurchase
	restore           outcome
	restoreCalls      [][]domain.NormalizedPurchase
	eligibility       map[string]domain.Eligibility
	eligibilityErr    error
	eligibilityIDs    []string
}

// next returns the scripted outcome for call i; the last one repeats.
func next(script []outcome, i int) outcome {
	if len(script) == 0 {
		return outcome{err: errBackendDown}
	}
	if i >= len(script) {
		i = len(script) - 1
	}
	return script[i]
}

func (b *fakeBackend) InitSession(context.Context, int64, string) (*domain.SessionResult, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	o := next(b.inits, b.initCalls)
	b.initCalls++
	return o.result, o.err
}

func (b *fakeBackend) InitSessionWithPurchases(_ context.Context, _ int64, _ string, purchases []domain.NormalizedPurchase) (*domain.SessionResult, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	o := next(b.inits, b.initCalls)
	b.initCalls++
	b.initWithPurchases = append(b.initWithPurchases, purchases)
	return o.result, o.err
}

func (b *fakeBackend) ConfirmPurchase(_ context.Context, _ int64, p domain.NormalizedPurchase) (*domain.SessionResult, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	o := next(b.confirm, len(b.confirmCalls))
	b.confirmCalls = append(b.confirmCalls, p)
	return o.result, o.err
}

func (b *fakeBackend) Restore(_ context.Context, _ int64, history []domain.NormalizedPurchase) (*domain.SessionResult, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.restoreCalls = append(b.restoreCalls, history)
	return b.restore.result, b.restore.err
}

func (b *fakeBackend) EligibilityForIDs(_ context.Context, ids []string, _ int64) (map[string]domain.Eligibility, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.eligibilityIDs = ids
	return b.eligibility, b.eligibilityErr
}

func (b *fakeBackend) launches() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.initCalls
}

type memoryCache struct {
	mu     sync.Mutex
	result *domain.SessionResult
	saves  int
}

func (c *memoryCache) Load(context.Context) (*domain.SessionResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.result, nil
}

func (c *memoryCache) Save(_ context.Context, r *domain.SessionResult) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.result = r
	c.saves++
	return nil
}

type memoryPending struct {
	mu      sync.Mutex
	records map[uuid.UUID]*domain.PendingPurchase
}

func newMemoryPending(records ...*domain.PendingPurchase) *memoryPending {
	m := &memoryPending{records: make(map[uuid.UUID]*domain.PendingPurchase)}
	for _, r := range records {
		m.records[r.ID] = r
	}
	return m
}

func (m *memoryPending) LoadAll(context.Context) ([]*domain.PendingPurchase, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*domain.PendingPurchase, 0, len(m.records))
	for _, r := range m.records {
		cp := *r
		out = append(out, &cp)
	}
	return out, nil
}

func (m *memoryPending) Save(_ context.Context, r *domain.PendingPurchase) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *r
	m.records[r.ID] = &cp
	return nil
}

func (m *memoryPending) Remove(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.records, id)
	return nil
}

func (m *memoryPending) all() []*domain.PendingPurchase {
	out, _ := m.LoadAll(context.Background())
	return out
}

// mockListener is a mock implementation of domain.PermissionsListener.
type mockListener struct {
	mock.Mock
}

func (m *mockListener) OnPermissionsUpdated(permissions map[string]domain.Permission) {
	m.Called(permissions)
}

// recorder collects callback results in delivery order.
type recorder[T any] struct {
	mu      sync.Mutex
	results []domain.Result[T]
	labels  []string
}

func (r *recorder[T]) callback(label string) Callback[T] {
	return func(res domain.Result[T]) {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.results = append(r.results, res)
		r.labels = append(r.labels, label)
	}
}

func (r *recorder[T]) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.results)
}

func (r *recorder[T]) last(t *testing.T) domain.Result[T] {
	t.Helper()
	r.mu.Lock()
	defer r.mu.Unlock()
	require.NotEmpty(t, r.results)
	return r.results[len(r.results)-1]
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func sampleResult(uid string) *domain.SessionResult {
	return &domain.SessionResult{
		UID:       uid,
		Timestamp: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
		Products: map[string]domain.Product{
			"pro":   {ID: "pro", StoreID: "com.app.pro", Type: domain.ProductTypeSubscription, Duration: domain.DurationMonthly},
			"coins": {ID: "coins", StoreID: "com.app.coins", Type: domain.ProductTypeOneTime},
			"web":   {ID: "web", Type: domain.ProductTypeOneTime},
		},
		Permissions: map[string]domain.Permission{
			"premium": {ID: "premium", ProductID: "pro", RenewState: domain.RenewStateWillRenew, Active: uid != "free"},
		},
		UserProducts: map[string]domain.Product{},
		Offerings: &domain.Offerings{Available: []domain.Offering{
			{ID: "main", Tag: domain.OfferingTagMain, Products: []domain.Product{{ID: "pro", StoreID: "com.app.pro"}}},
		}},
		Experiments: map[string]domain.Experiment{
			"paywall_v2": {ID: "paywall_v2", Group: domain.ExperimentGroup{Type: "treatment"}},
		},
	}
}

func sampleCatalog() map[string]domain.StoreMetadata {
	return map[string]domain.StoreMetadata{
		"com.app.pro":   {ProductID: "com.app.pro", Kind: domain.KindSubscription, Price: "$4.99", PriceAmountMicros: 4_990_000, PriceCurrencyCode: "USD"},
		"com.app.coins": {ProductID: "com.app.coins", Kind: domain.KindInApp, Price: "$0.99", PriceAmountMicros: 990_000, PriceCurrencyCode: "USD"},
	}
}

type harness struct {
	o       *Orchestrator
	d       *manualDispatcher
	billing *fakeBilling
	backend *fakeBackend
	cache   *memoryCache
	pending *memoryPending
	now     time.Time
}

func newHarness(t *testing.T, opts ...Option) *harness {
	t.Helper()
	h := &harness{
		d:       &manualDispatcher{},
		billing: newFakeBilling(sampleCatalog()),
		backend: &fakeBackend{},
		cache:   &memoryCache{},
		pending: newMemoryPending(),
		now:     time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC),
	}
	all := append([]Option{
		WithDispatcher(h.d.dispatch),
		WithClock(func() time.Time { return h.now }),
	}, opts...)
	o, err := New(Dependencies{
		Billing: h.billing,
		Backend: h.backend,
		Cache:   h.cache,
		Pending: h.pending,
	}, Config{InstallDate: 1_700_000_000}, testLogger(), all...)
	require.NoError(t, err)
	h.o = o
	return h
}

// launched runs a successful launch to completion.
func (h *harness) launched(t *testing.T, result *domain.SessionResult) {
	t.Helper()
	h.backend.inits = append(h.backend.inits, outcome{result: result})
	h.o.Launch(nil)
	h.d.drain()
	require.Equal(t, StateSucceeded, h.o.Status().Session)
}
