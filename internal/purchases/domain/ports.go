package domain

import (
	"context"

	"github.com/google/uuid"
)

// PurchasesListener receives asynchronous purchase results from the billing
// transport. Results are correlated to callers by store product id only.
type PurchasesListener interface {
	OnPurchasesCompleted(purchases []PlatformPurchase)
	OnPurchasesFailed(purchases []PlatformPurchase, err error)
}

// BillingTransport is the platform store.
type BillingTransport interface {
	QueryOutstandingPurchases(ctx context.Context) ([]PlatformPurchase, error)
	FetchCatalog(ctx context.Context, storeIDs []string) (map[string]StoreMetadata, error)
	// Purchase starts a store purchase flow. The outcome is delivered to the
	// registered PurchasesListener, not returned.
	Purchase(ctx context.Context, req PurchaseRequest) error
	QueryHistory(ctx context.Context) ([]HistoryRecord, error)
}

// Finalizer tells the store that a purchase has been handled so it is not
// redelivered or refunded.
type Finalizer interface {
	Consume(ctx context.Context, purchase PlatformPurchase) error
	Acknowledge(ctx context.Context, purchase PlatformPurchase, kind ProductKind) error
}

// Backend is the remote validation service.
type Backend interface {
	InitSession(ctx context.Context, installDate int64, advertisingID string) (*SessionResult, error)
	InitSessionWithPurchases(ctx context.Context, installDate int64, advertisingID string, purchases []NormalizedPurchase) (*SessionResult, error)
	ConfirmPurchase(ctx context.Context, installDate int64, purchase NormalizedPurchase) (*SessionResult, error)
	Restore(ctx context.Context, installDate int64, history []NormalizedPurchase) (*SessionResult, error)
	EligibilityForIDs(ctx context.Context, storeIDs []string, installDate int64) (map[string]Eligibility, error)
}

// EntitlementCache persists the most recent successful session result.
// Load returns nil, nil when nothing has been stored.
type EntitlementCache interface {
	Load(ctx context.Context) (*SessionResult, error)
	Save(ctx context.Context, result *SessionResult) error
}

// PendingPurchaseStore persists purchases awaiting backend confirmation.
type PendingPurchaseStore interface {
	LoadAll(ctx context.Context) ([]*PendingPurchase, error)
	Save(ctx context.Context, record *PendingPurchase) error
	Remove(ctx context.Context, id uuid.UUID) error
}

// PermissionsListener is notified when permissions change without a waiting
// caller, e.g. a purchase detected on app-foreground reconciliation.
type PermissionsListener interface {
	OnPermissionsUpdated(permissions map[string]Permission)
}

// AdvertisingIDProvider resolves the device advertising identifier.
type AdvertisingIDProvider interface {
	AdvertisingID(ctx context.Context) (string, error)
}
