// Package sandbox is an in-memory billing transport that simulates a store
// for local runs and tests.
package sandbox

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/felixgeelhaar/entitlekit/internal/purchases/domain"
	"github.com/google/uuid"
)

var (
	// ErrNotOwned is returned when finalizing a purchase the store does not hold.
	ErrNotOwned = errors.New("purchase is not owned")

	// ErrDeclined is the cause delivered for scripted failures.
	ErrDeclined = errors.New("payment declined by sandbox store")

	// ErrNoListener is returned by Purchase before a listener is registered.
	ErrNoListener = errors.New("no purchases listener registered")
)

// Option configures a Store.
type Option func(*Store)

// WithDispatcher replaces the goroutine used to notify the listener.
func WithDispatcher(d func(func())) Option {
	return func(s *Store) {
		if d != nil {
			s.dispatch = d
		}
	}
}

// WithClock overrides the purchase time source.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.logger = l
		}
	}
}

// Store implements domain.BillingTransport and domain.Finalizer in memory.
// Purchase results are reported to the listener asynchronously, the way a
// platform store reports them.
type Store struct {
	packageName string
	dispatch    func(func())
	now         func() time.Time
	logger      *slog.Logger

	mu       sync.Mutex
	catalog  map[string]domain.StoreMetadata
	outcomes map[string]Outcome
	owned    map[string]*domain.PlatformPurchase
	history  []domain.HistoryRecord
	listener domain.PurchasesListener
	wg       sync.WaitGroup
}

// New creates a store seeded from catalog. A nil catalog starts empty.
func New(catalog *Catalog, opts ...Option) *Store {
	s := &Store{
		dispatch: func(fn func()) { go fn() },
		now:      time.Now,
		logger:   slog.Default(),
		catalog:  make(map[string]domain.StoreMetadata),
		outcomes: make(map[string]Outcome),
		owned:    make(map[string]*domain.PlatformPurchase),
	}
	if catalog != nil {
		s.packageName = catalog.PackageName
		for _, p := range catalog.Products {
			s.catalog[p.ProductID] = p.StoreMetadata
			s.outcomes[p.ProductID] = p.Outcome
		}
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("component", "sandbox_store")
	return s
}

// SetListener registers the receiver of purchase results.
func (s *Store) SetListener(l domain.PurchasesListener) {
	s.mu.Lock()
	s.listener = l
	s.mu.Unlock()
}

// SetOutcome changes the scripted outcome for a product.
func (s *Store) SetOutcome(storeID string, outcome Outcome) error {
	if !outcome.Valid() {
		return fmt.Errorf("unknown outcome %q", outcome)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.catalog[storeID]; !ok {
		return fmt.Errorf("unknown product %q", storeID)
	}
	s.outcomes[storeID] = outcome
	return nil
}

// Wait blocks until every listener notification has been delivered.
func (s *Store) Wait() {
	s.wg.Wait()
}

func (s *Store) QueryOutstandingPurchases(ctx context.Context) ([]domain.PlatformPurchase, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]domain.PlatformPurchase, 0, len(s.owned))
	for _, p := range s.owned {
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].PurchaseTime.Equal(out[j].PurchaseTime) {
			return out[i].PurchaseToken < out[j].PurchaseToken
		}
		return out[i].PurchaseTime.Before(out[j].PurchaseTime)
	})
	return out, nil
}

// FetchCatalog returns metadata for the ids the store knows; unknown ids
// are omitted.
func (s *Store) FetchCatalog(ctx context.Context, storeIDs []string) (map[string]domain.StoreMetadata, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[string]domain.StoreMetadata, len(storeIDs))
	for _, id := range storeIDs {
		if md, ok := s.catalog[id]; ok {
			out[id] = md
		}
	}
	return out, nil
}

// Purchase starts a simulated purchase flow. The result is delivered to the
// listener according to the product's scripted outcome.
func (s *Store) Purchase(ctx context.Context, req domain.PurchaseRequest) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	storeID := req.Metadata.ProductID

	s.mu.Lock()
	listener := s.listener
	md, known := s.catalog[storeID]
	outcome := s.outcomes[storeID]
	if listener == nil {
		s.mu.Unlock()
		return ErrNoListener
	}
	if !known {
		s.mu.Unlock()
		return fmt.Errorf("sandbox store has no product %q", storeID)
	}

	purchase := domain.PlatformPurchase{
		ProductID:     storeID,
		OrderID:       newOrderID(),
		PurchaseToken: uuid.NewString(),
		PurchaseTime:  s.now().UTC(),
		PackageName:   s.packageName,
		AutoRenewing:  md.Kind == domain.KindSubscription,
	}

	var notify func()
	switch outcome {
	case OutcomeFailed:
		notify = func() {
			listener.OnPurchasesFailed([]domain.PlatformPurchase{{ProductID: storeID}}, domain.NewError(domain.CodePurchaseFailed, ErrDeclined))
		}
	case OutcomeCanceled:
		notify = func() {
			listener.OnPurchasesFailed([]domain.PlatformPurchase{{ProductID: storeID}}, domain.ErrCanceled)
		}
	default:
		purchase.State = domain.PurchaseStatePurchased
		if outcome == OutcomePending {
			purchase.State = domain.PurchaseStatePending
		}
		if req.Replaced != nil {
			s.replaceLocked(req.Replaced.ProductID)
		}
		owned := purchase
		s.owned[purchase.PurchaseToken] = &owned
		s.history = append(s.history, domain.HistoryRecord{
			Kind:          md.Kind,
			ProductID:     storeID,
			PurchaseToken: purchase.PurchaseToken,
			PurchaseTime:  purchase.PurchaseTime,
		})
		notify = func() {
			listener.OnPurchasesCompleted([]domain.PlatformPurchase{purchase})
		}
	}
	s.wg.Add(1)
	s.mu.Unlock()

	s.logger.Debug("sandbox purchase started", "store_id", storeID, "outcome", outcome, "token", purchase.PurchaseToken)
	s.dispatch(func() {
		defer s.wg.Done()
		notify()
	})
	return nil
}

// replaceLocked drops owned subscriptions of the product being replaced.
func (s *Store) replaceLocked(storeID string) {
	for token, p := range s.owned {
		if p.ProductID == storeID {
			delete(s.owned, token)
		}
	}
}

func (s *Store) QueryHistory(ctx context.Context) ([]domain.HistoryRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.HistoryRecord(nil), s.history...), nil
}

// Consume removes a one-time purchase so it can be bought again.
func (s *Store) Consume(ctx context.Context, purchase domain.PlatformPurchase) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.owned[purchase.PurchaseToken]; !ok {
		return fmt.Errorf("consume %s: %w", purchase.ProductID, ErrNotOwned)
	}
	delete(s.owned, purchase.PurchaseToken)
	return nil
}

// Acknowledge marks an owned purchase as acknowledged.
func (s *Store) Acknowledge(ctx context.Context, purchase domain.PlatformPurchase, kind domain.ProductKind) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.owned[purchase.PurchaseToken]
	if !ok {
		return fmt.Errorf("acknowledge %s: %w", purchase.ProductID, ErrNotOwned)
	}
	p.Acknowledged = true
	return nil
}

// Settle moves a pending purchase to purchased. As with a real store the
// app learns about it on its next foreground reconciliation.
func (s *Store) Settle(purchaseToken string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.owned[purchaseToken]
	if !ok {
		return ErrNotOwned
	}
	if p.State != domain.PurchaseStatePending {
		return fmt.Errorf("purchase %s is %s, not pending", purchaseToken, p.State)
	}
	p.State = domain.PurchaseStatePurchased
	return nil
}

// Products returns the catalog sorted by product id.
func (s *Store) Products() []domain.StoreMetadata {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]domain.StoreMetadata, 0, len(s.catalog))
	for _, md := range s.catalog {
		out = append(out, md)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ProductID < out[j].ProductID })
	return out
}

// Order ids mimic the store format GPA.XXXX-XXXX-XXXX-XXXXX.
func newOrderID() string {
	hex := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", ""))
	return fmt.Sprintf("GPA.%s-%s-%s-%s", hex[0:4], hex[4:8], hex[8:12], hex[12:17])
}

var (
	_ domain.BillingTransport = (*Store)(nil)
	_ domain.Finalizer        = (*Store)(nil)
)
