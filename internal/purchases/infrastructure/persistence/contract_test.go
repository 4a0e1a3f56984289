package persistence

import (
	"context"
	"testing"
	"time"

	"github.com/felixgeelhaar/entitlekit/internal/purchases/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type clearableCache interface {
	domain.EntitlementCache
	Clear(ctx context.Context) error
}

func sampleResult(uid string) *domain.SessionResult {
	expires := time.Date(2027, 1, 1, 0, 0, 0, 0, time.UTC)
	return &domain.SessionResult{
		UID:       uid,
		Timestamp: time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC),
		Products: map[string]domain.Product{
			"pro": {ID: "pro", StoreID: "com.app.pro", Type: domain.ProductTypeSubscription, Duration: domain.DurationMonthly},
		},
		Permissions: map[string]domain.Permission{
			"premium": {
				ID:         "premium",
				ProductID:  "pro",
				RenewState: domain.RenewStateWillRenew,
				StartedAt:  time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
				ExpiresAt:  &expires,
				Active:     true,
			},
		},
		Offerings: &domain.Offerings{Available: []domain.Offering{
			{ID: "main", Tag: domain.OfferingTagMain, Products: []domain.Product{{ID: "pro", StoreID: "com.app.pro"}}},
		}},
		Experiments: map[string]domain.Experiment{
			"paywall": {ID: "paywall", Group: domain.ExperimentGroup{Type: "control"}},
		},
	}
}

func testLaunchCache(t *testing.T, cache clearableCache) {
	t.Helper()
	ctx := context.Background()

	loaded, err := cache.Load(ctx)
	require.NoError(t, err)
	assert.Nil(t, loaded, "empty cache loads nil without error")

	first := sampleResult("u1")
	require.NoError(t, cache.Save(ctx, first))
	loaded, err = cache.Load(ctx)
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Equal(t, "u1", loaded.UID)
	assert.True(t, first.Timestamp.Equal(loaded.Timestamp))
	require.Contains(t, loaded.Permissions, "premium")
	assert.True(t, loaded.Permissions["premium"].Active)
	require.NotNil(t, loaded.Permissions["premium"].ExpiresAt)
	assert.Equal(t, "com.app.pro", loaded.Products["pro"].StoreID)
	assert.Equal(t, "main", loaded.Offerings.Main().ID)
	assert.Equal(t, "control", loaded.Experiments["paywall"].Group.Type)

	require.NoError(t, cache.Save(ctx, sampleResult("u2")))
	loaded, err = cache.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, "u2", loaded.UID, "save replaces the previous result")

	assert.Error(t, cache.Save(ctx, nil))

	require.NoError(t, cache.Clear(ctx))
	loaded, err = cache.Load(ctx)
	require.NoError(t, err)
	assert.Nil(t, loaded)
	require.NoError(t, cache.Clear(ctx), "clearing an empty cache is not an error")
}

func testPendingStore(t *testing.T, store domain.PendingPurchaseStore) {
	t.Helper()
	ctx := context.Background()

	records, err := store.LoadAll(ctx)
	require.NoError(t, err)
	assert.Empty(t, records)

	older := domain.NewPendingPurchase(domain.NormalizedPurchase{ProductID: "com.app.pro", PurchaseToken: "tok-1", PriceMicros: 4_990_000})
	older.CreatedAt = time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	newer := domain.NewPendingPurchase(domain.NormalizedPurchase{ProductID: "com.app.coins", PurchaseToken: "tok-2"})
	newer.CreatedAt = time.Date(2026, 5, 1, 11, 0, 0, 0, time.UTC)

	require.NoError(t, store.Save(ctx, newer))
	require.NoError(t, store.Save(ctx, older))

	records, err = store.LoadAll(ctx)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, older.ID, records[0].ID, "oldest first")
	assert.Equal(t, "tok-1", records[0].Purchase.PurchaseToken)
	assert.Equal(t, int64(4_990_000), records[0].Purchase.PriceMicros)
	assert.True(t, older.CreatedAt.Equal(records[0].CreatedAt))
	assert.Nil(t, records[0].NextAttemptAt)

	next := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	older.MarkFailed(assert.AnError, next)
	require.NoError(t, store.Save(ctx, older))

	records, err = store.LoadAll(ctx)
	require.NoError(t, err)
	require.Len(t, records, 2, "save updates in place")
	assert.Equal(t, 1, records[0].Attempts)
	require.NotNil(t, records[0].NextAttemptAt)
	assert.True(t, next.Equal(*records[0].NextAttemptAt))
	assert.Equal(t, assert.AnError.Error(), records[0].LastError)

	require.NoError(t, store.Remove(ctx, older.ID))
	require.NoError(t, store.Remove(ctx, older.ID), "removing twice is not an error")

	records, err = store.LoadAll(ctx)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, newer.ID, records[0].ID)
}
