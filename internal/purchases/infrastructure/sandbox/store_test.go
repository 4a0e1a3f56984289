package sandbox

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/felixgeelhaar/entitlekit/internal/purchases/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testCatalogJSON = `{
  "package_name": "com.example.app",
  "products": [
    {"product_id": "com.example.pro", "type": "subs", "title": "Pro", "price": "$4.99",
     "price_amount_micros": 4990000, "price_currency_code": "USD", "subscription_period": "P1M"},
    {"product_id": "com.example.coins", "title": "Coins", "price": "$0.99", "price_amount_micros": 990000},
    {"product_id": "com.example.slow", "type": "inapp", "outcome": "pending"},
    {"product_id": "com.example.broken", "type": "inapp", "outcome": "failed"}
  ]
}`

type recordingListener struct {
	mu        sync.Mutex
	completed [][]domain.PlatformPurchase
	failed    []error
	failedIDs []string
}

func (l *recordingListener) OnPurchasesCompleted(purchases []domain.PlatformPurchase) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.completed = append(l.completed, purchases)
}

func (l *recordingListener) OnPurchasesFailed(purchases []domain.PlatformPurchase, err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.failed = append(l.failed, err)
	for _, p := range purchases {
		l.failedIDs = append(l.failedIDs, p.ProductID)
	}
}

func newTestStore(t *testing.T) (*Store, *recordingListener) {
	t.Helper()
	catalog, err := ParseCatalog([]byte(testCatalogJSON))
	require.NoError(t, err)

	now := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	s := New(catalog,
		WithDispatcher(func(fn func()) { fn() }),
		WithClock(func() time.Time {
			now = now.Add(time.Second)
			return now
		}),
	)
	l := &recordingListener{}
	s.SetListener(l)
	return s, l
}

func request(t *testing.T, s *Store, storeID string) domain.PurchaseRequest {
	t.Helper()
	md, err := s.FetchCatalog(context.Background(), []string{storeID})
	require.NoError(t, err)
	require.Contains(t, md, storeID)
	return domain.PurchaseRequest{Metadata: md[storeID]}
}

func TestParseCatalog(t *testing.T) {
	catalog, err := ParseCatalog([]byte(testCatalogJSON))
	require.NoError(t, err)

	assert.Equal(t, "com.example.app", catalog.PackageName)
	require.Len(t, catalog.Products, 4)
	assert.Equal(t, domain.KindSubscription, catalog.Products[0].Kind)
	assert.Equal(t, int64(4_990_000), catalog.Products[0].PriceAmountMicros)
	assert.Equal(t, OutcomeCompleted, catalog.Products[0].Outcome)
	assert.Equal(t, domain.KindInApp, catalog.Products[1].Kind, "type defaults to inapp")
	assert.Equal(t, OutcomePending, catalog.Products[2].Outcome)
}

func TestParseCatalog_Invalid(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		want string
	}{
		{"malformed", `{`, "decode sandbox catalog"},
		{"missing id", `{"products":[{"title":"x"}]}`, "no product_id"},
		{"duplicate", `{"products":[{"product_id":"a"},{"product_id":"a"}]}`, "duplicate product"},
		{"bad type", `{"products":[{"product_id":"a","type":"bundle"}]}`, "unknown type"},
		{"bad outcome", `{"products":[{"product_id":"a","outcome":"maybe"}]}`, "unknown outcome"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseCatalog([]byte(tt.doc))
			assert.ErrorContains(t, err, tt.want)
		})
	}
}

func TestLoadCatalog(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.json")
	require.NoError(t, os.WriteFile(path, []byte(testCatalogJSON), 0600))

	catalog, err := LoadCatalog(path)
	require.NoError(t, err)
	assert.Len(t, catalog.Products, 4)

	_, err = LoadCatalog(filepath.Join(t.TempDir(), "missing.json"))
	assert.ErrorContains(t, err, "read sandbox catalog")
}

func TestStore_FetchCatalog_OmitsUnknownIDs(t *testing.T) {
	s, _ := newTestStore(t)

	md, err := s.FetchCatalog(context.Background(), []string{"com.example.pro", "com.example.unknown"})
	require.NoError(t, err)
	assert.Len(t, md, 1)
	assert.Equal(t, "$4.99", md["com.example.pro"].Price)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = s.FetchCatalog(ctx, []string{"com.example.pro"})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestStore_Purchase_Completed(t *testing.T) {
	s, l := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Purchase(ctx, request(t, s, "com.example.pro")))
	s.Wait()

	require.Len(t, l.completed, 1)
	p := l.completed[0][0]
	assert.Equal(t, "com.example.pro", p.ProductID)
	assert.Equal(t, domain.PurchaseStatePurchased, p.State)
	assert.True(t, p.AutoRenewing)
	assert.Equal(t, "com.example.app", p.PackageName)
	assert.NotEmpty(t, p.PurchaseToken)
	assert.Regexp(t, `^GPA\.[0-9A-F]{4}-[0-9A-F]{4}-[0-9A-F]{4}-[0-9A-F]{5}$`, p.OrderID)

	outstanding, err := s.QueryOutstandingPurchases(ctx)
	require.NoError(t, err)
	require.Len(t, outstanding, 1)
	assert.False(t, outstanding[0].Acknowledged)

	require.NoError(t, s.Acknowledge(ctx, p, domain.KindSubscription))
	outstanding, err = s.QueryOutstandingPurchases(ctx)
	require.NoError(t, err)
	assert.True(t, outstanding[0].Acknowledged)

	history, err := s.QueryHistory(ctx)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, domain.KindSubscription, history[0].Kind)
	assert.Equal(t, p.PurchaseToken, history[0].PurchaseToken)
}

func TestStore_Purchase_Scripted(t *testing.T) {
	s, l := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Purchase(ctx, request(t, s, "com.example.slow")))
	require.NoError(t, s.Purchase(ctx, request(t, s, "com.example.broken")))
	require.NoError(t, s.SetOutcome("com.example.coins", OutcomeCanceled))
	require.NoError(t, s.Purchase(ctx, request(t, s, "com.example.coins")))
	s.Wait()

	require.Len(t, l.completed, 1)
	assert.Equal(t, domain.PurchaseStatePending, l.completed[0][0].State)

	require.Len(t, l.failed, 2)
	assert.Equal(t, []string{"com.example.broken", "com.example.coins"}, l.failedIDs)
	assert.ErrorIs(t, l.failed[0], domain.ErrPurchaseFailed)
	assert.ErrorIs(t, l.failed[0], ErrDeclined)
	assert.ErrorIs(t, l.failed[1], domain.ErrCanceled)

	history, err := s.QueryHistory(ctx)
	require.NoError(t, err)
	assert.Len(t, history, 1, "failed flows leave no history")
}

func TestStore_Purchase_Refusals(t *testing.T) {
	catalog, err := ParseCatalog([]byte(testCatalogJSON))
	require.NoError(t, err)
	s := New(catalog)

	err = s.Purchase(context.Background(), domain.PurchaseRequest{Metadata: domain.StoreMetadata{ProductID: "com.example.pro"}})
	assert.ErrorIs(t, err, ErrNoListener)

	s.SetListener(&recordingListener{})
	err = s.Purchase(context.Background(), domain.PurchaseRequest{Metadata: domain.StoreMetadata{ProductID: "com.example.nope"}})
	assert.ErrorContains(t, err, "no product")

	assert.Error(t, s.SetOutcome("com.example.nope", OutcomeFailed))
	assert.Error(t, s.SetOutcome("com.example.pro", Outcome("later")))
}

func TestStore_ConsumeAndSettle(t *testing.T) {
	s, l := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Purchase(ctx, request(t, s, "com.example.coins")))
	require.NoError(t, s.Purchase(ctx, request(t, s, "com.example.slow")))
	s.Wait()
	require.Len(t, l.completed, 2)
	coins, slow := l.completed[0][0], l.completed[1][0]

	require.NoError(t, s.Consume(ctx, coins))
	assert.ErrorIs(t, s.Consume(ctx, coins), ErrNotOwned)
	assert.ErrorIs(t, s.Acknowledge(ctx, coins, domain.KindInApp), ErrNotOwned)

	require.NoError(t, s.Settle(slow.PurchaseToken))
	assert.Error(t, s.Settle(slow.PurchaseToken), "already settled")
	assert.ErrorIs(t, s.Settle("unknown"), ErrNotOwned)

	outstanding, err := s.QueryOutstandingPurchases(ctx)
	require.NoError(t, err)
	require.Len(t, outstanding, 1)
	assert.Equal(t, domain.PurchaseStatePurchased, outstanding[0].State)
}

func TestStore_Purchase_ReplacesSubscription(t *testing.T) {
	catalog, err := ParseCatalog([]byte(`{"products":[
		{"product_id":"monthly","type":"subs"},
		{"product_id":"annual","type":"subs"}
	]}`))
	require.NoError(t, err)
	s := New(catalog, WithDispatcher(func(fn func()) { fn() }))
	s.SetListener(&recordingListener{})
	ctx := context.Background()

	require.NoError(t, s.Purchase(ctx, request(t, s, "monthly")))
	old := request(t, s, "monthly").Metadata
	req := request(t, s, "annual")
	req.Replaced = &old
	require.NoError(t, s.Purchase(ctx, req))

	outstanding, err := s.QueryOutstandingPurchases(ctx)
	require.NoError(t, err)
	require.Len(t, outstanding, 1)
	assert.Equal(t, "annual", outstanding[0].ProductID)
}

func TestStore_Products(t *testing.T) {
	s, _ := newTestStore(t)
	products := s.Products()
	require.Len(t, products, 4)
	assert.Equal(t, "com.example.broken", products[0].ProductID)
}
