package application

import (
	"context"
	"time"

	"github.com/felixgeelhaar/entitlekit/internal/purchases/domain"
	"github.com/felixgeelhaar/entitlekit/pkg/observability"
)

// Launch establishes a backend session. Purchases still outstanding on the
// device are sent along so the backend can grant them. The callback, if any,
// receives the session result or the launch error after all queued callers
// have been flushed.
func (o *Orchestrator) Launch(cb LaunchCallback) {
	o.mu.Lock()
	o.state = StateLaunching
	o.mu.Unlock()

	o.async(func() {
		start := time.Now()
		ctx, cancel := o.opContext()
		defer cancel()

		result, err := o.initSession(ctx)
		o.metrics.Timing(observability.MetricLaunchDuration, time.Since(start))
		if err != nil {
			launchErr := domain.AsError(domain.CodeSessionError, err)
			o.logger.Warn("launch failed", "error", launchErr)
			o.metrics.Counter(observability.MetricLaunch, 1, observability.T("outcome", "failure"))
			o.onLaunchError(launchErr)
			deliver(cb, domain.Fail[*domain.SessionResult](launchErr))
			return
		}

		o.logger.Debug("launch succeeded", "uid", result.UID, "products", len(result.Products), "permissions", len(result.Permissions))
		o.metrics.Counter(observability.MetricLaunch, 1, observability.T("outcome", "success"))
		o.onLaunchSuccess(result)
		deliver(cb, domain.Ok(result))
	})
}

func (o *Orchestrator) initSession(ctx context.Context) (*domain.SessionResult, error) {
	adID := o.advertisingID(ctx)

	purchases, err := o.billing.QueryOutstandingPurchases(ctx)
	if err != nil {
		o.logger.Debug("outstanding purchase query failed, launching without purchases", "error", err)
		return o.backend.InitSession(ctx, o.installDate, adID)
	}
	if len(purchases) == 0 {
		return o.backend.InitSession(ctx, o.installDate, adID)
	}

	catalog, err := o.billing.FetchCatalog(ctx, purchaseStoreIDs(purchases))
	if err != nil {
		o.logger.Debug("catalog for outstanding purchases unavailable, launching without purchases", "error", err)
		return o.backend.InitSession(ctx, o.installDate, adID)
	}

	records := make([]domain.NormalizedPurchase, 0, len(purchases))
	for _, p := range purchases {
		md, ok := catalog[p.ProductID]
		if !ok {
			continue
		}
		records = append(records, domain.NormalizePurchase(md, p))
	}
	return o.backend.InitSessionWithPurchases(ctx, o.installDate, adID, records)
}

func (o *Orchestrator) advertisingID(ctx context.Context) string {
	if o.adProvider == nil {
		return ""
	}
	id, err := o.adProvider.AdvertisingID(ctx)
	if err != nil {
		o.logger.Debug("advertising id unavailable", "error", err)
		return ""
	}
	return id
}

func (o *Orchestrator) onLaunchSuccess(result *domain.SessionResult) {
	o.mu.Lock()
	gen := o.setResultLocked(result)
	permissions := o.permissions.drain()
	experiments := o.experiments.drain()
	o.mu.Unlock()

	o.persist(gen, result)
	o.loadCatalogIfPossible(result)
	o.handlePermissions(permissions)
	o.handleExperiments(experiments)
	o.replayPending()
}

func (o *Orchestrator) onLaunchError(err error) {
	o.mu.Lock()
	o.state = StateFailed
	o.result = nil
	o.launchErr = err
	o.catalog.state = CatalogFailed
	products := o.products.drain()
	permissions := o.permissions.drain()
	experiments := o.experiments.drain()
	o.mu.Unlock()

	o.handlePermissions(permissions)
	o.handleExperiments(experiments)
	deliverAll(products, domain.Fail[map[string]domain.Product](err))
}

func purchaseStoreIDs(purchases []domain.PlatformPurchase) []string {
	seen := make(map[string]struct{}, len(purchases))
	ids := make([]string, 0, len(purchases))
	for _, p := range purchases {
		if _, ok := seen[p.ProductID]; ok {
			continue
		}
		seen[p.ProductID] = struct{}{}
		ids = append(ids, p.ProductID)
	}
	return ids
}
