package application

import (
	"errors"

	"github.com/felixgeelhaar/entitlekit/internal/purchases/domain"
	"github.com/felixgeelhaar/entitlekit/pkg/observability"
)

// PurchaseParams are the optional inputs of a purchase.
type PurchaseParams struct {
	// ReplacedProductID is the internal id of a subscription being replaced.
	ReplacedProductID string
	Options           domain.PurchaseOptions
}

// PurchaseProduct starts a store purchase for the product with the given
// internal id. At most one purchase per store product is in flight: a second
// call for the same product is ignored and its callback never invoked.
func (o *Orchestrator) PurchaseProduct(productID string, params PurchaseParams, cb PermissionsCallback) {
	o.mu.Lock()
	launchErr := o.launchErr
	o.mu.Unlock()

	if launchErr == nil {
		o.processPurchase(productID, params, cb)
		return
	}

	o.logger.Debug("purchase requested while session is failed, relaunching", "product_id", productID)
	o.Launch(func(r domain.Result[*domain.SessionResult]) {
		if r.Err != nil {
			deliver(cb, domain.Fail[map[string]domain.Permission](r.Err))
			return
		}
		o.LoadProducts(func(pr domain.Result[map[string]domain.Product]) {
			if pr.Err != nil {
				deliver(cb, domain.Fail[map[string]domain.Permission](pr.Err))
				return
			}
			o.processPurchase(productID, params, cb)
		})
	})
}

func (o *Orchestrator) processPurchase(productID string, params PurchaseParams, cb PermissionsCallback) {
	o.mu.Lock()
	product, ok := o.result.Product(productID)
	if !ok || !product.HasStoreCounterpart() {
		o.mu.Unlock()
		deliver(cb, domain.Fail[map[string]domain.Permission](domain.ErrProductNotFound))
		return
	}
	storeID := product.StoreID

	if o.purchasing.has(storeID) {
		o.mu.Unlock()
		o.rejectDuplicate(productID, storeID)
		return
	}

	req, found := o.purchaseRequestLocked(storeID, params)
	if found {
		o.purchasing.register(storeID, cb)
		o.mu.Unlock()
		o.startPurchase(storeID, req)
		return
	}

	if o.catalog.state == CatalogLoaded {
		o.mu.Unlock()
		deliver(cb, domain.Fail[map[string]domain.Permission](domain.ErrCatalogUnavailable))
		return
	}
	o.mu.Unlock()

	o.async(func() {
		ctx, cancel := o.opContext()
		defer cancel()

		entries, err := o.billing.FetchCatalog(ctx, []string{storeID})
		if err != nil {
			deliver(cb, domain.Fail[map[string]domain.Permission](domain.AsError(domain.CodeTransportFailed, err)))
			return
		}

		o.mu.Lock()
		o.catalog.merge(entries)
		req, found := o.purchaseRequestLocked(storeID, params)
		if !found {
			o.mu.Unlock()
			o.logger.Warn("store metadata still missing after scoped catalog load", "product_id", productID, "store_id", storeID)
			deliver(cb, domain.Fail[map[string]domain.Permission](domain.ErrCatalogUnavailable))
			return
		}
		if !o.purchasing.register(storeID, cb) {
			o.mu.Unlock()
			o.rejectDuplicate(productID, storeID)
			return
		}
		o.mu.Unlock()
		o.startPurchase(storeID, req)
	})
}

// purchaseRequestLocked builds the transport request from catalog metadata.
func (o *Orchestrator) purchaseRequestLocked(storeID string, params PurchaseParams) (domain.PurchaseRequest, bool) {
	md, ok := o.catalog.get(storeID)
	if !ok {
		return domain.PurchaseRequest{}, false
	}
	req := domain.PurchaseRequest{Metadata: md, Options: params.Options}
	if params.ReplacedProductID != "" {
		if replaced, ok := o.result.Product(params.ReplacedProductID); ok && replaced.HasStoreCounterpart() {
			if old, ok := o.catalog.get(replaced.StoreID); ok {
				req.Replaced = &old
			}
		}
	}
	return req, true
}

func (o *Orchestrator) rejectDuplicate(productID, storeID string) {
	o.logger.Info("purchase already in progress; call ignored", "product_id", productID, "store_id", storeID)
	o.metrics.Counter(observability.MetricPurchases, 1, observability.T("outcome", "duplicate"))
}

func (o *Orchestrator) startPurchase(storeID string, req domain.PurchaseRequest) {
	o.metrics.Counter(observability.MetricPurchases, 1, observability.T("outcome", "started"))
	o.async(func() {
		ctx, cancel := o.opContext()
		defer cancel()

		if err := o.billing.Purchase(ctx, req); err != nil {
			o.OnPurchasesFailed([]domain.PlatformPurchase{{ProductID: storeID}}, err)
		}
	})
}

// OnPurchasesFailed receives failed purchase results from the billing
// transport. Without specific records every in-flight purchase fails.
func (o *Orchestrator) OnPurchasesFailed(purchases []domain.PlatformPurchase, err error) {
	if err == nil {
		err = errors.New("purchase failed without a reason")
	}
	perr := domain.AsError(domain.CodePurchaseFailed, err)

	o.mu.Lock()
	var cbs []PermissionsCallback
	if len(purchases) == 0 {
		cbs = o.purchasing.drain()
	} else {
		for _, p := range purchases {
			if cb := o.purchasing.take(p.ProductID); cb != nil {
				cbs = append(cbs, cb)
			}
		}
	}
	o.mu.Unlock()

	o.logger.Info("purchase failed", "error", perr, "callers", len(cbs))
	o.metrics.Counter(observability.MetricPurchases, int64(max(len(cbs), 1)), observability.T("outcome", "failed"))
	deliverAll(cbs, domain.Fail[map[string]domain.Permission](perr))
}

// OnPurchasesCompleted receives completed purchases from the billing
// transport. Purchases are finalized with the store, then confirmed with the
// backend one by one.
func (o *Orchestrator) OnPurchasesCompleted(purchases []domain.PlatformPurchase) {
	if len(purchases) == 0 {
		return
	}
	o.async(func() {
		o.handlePurchases(purchases)
	})
}

func (o *Orchestrator) handlePurchases(purchases []domain.PlatformPurchase) {
	o.mu.Lock()
	catalog := o.catalog.snapshot()
	o.mu.Unlock()

	o.finalizePurchases(purchases, catalog)

	for _, p := range purchases {
		o.mu.Lock()
		cb := o.purchasing.take(p.ProductID)
		md, found := o.catalog.get(p.ProductID)
		o.mu.Unlock()

		if p.State == domain.PurchaseStatePending {
			o.logger.Info("purchase pending", "store_id", p.ProductID)
			o.metrics.Counter(observability.MetricPurchases, 1, observability.T("outcome", "pending"))
			deliver(cb, domain.Fail[map[string]domain.Permission](domain.ErrPurchasePending))
			continue
		}
		if !found {
			o.logger.Warn("skipping purchase without store metadata", "store_id", p.ProductID)
			deliver(cb, domain.Fail[map[string]domain.Permission](domain.ErrCatalogUnavailable))
			continue
		}
		o.confirmPurchase(domain.NormalizePurchase(md, p), cb)
	}
}

func (o *Orchestrator) confirmPurchase(purchase domain.NormalizedPurchase, cb PermissionsCallback) {
	ctx, cancel := o.opContext()
	defer cancel()

	result, err := o.backend.ConfirmPurchase(ctx, o.installDate, purchase)
	if err != nil {
		o.markForceRetry()
		o.logger.Warn("purchase confirmation failed", "store_id", purchase.ProductID, "error", err)
		o.metrics.Counter(observability.MetricPurchases, 1, observability.T("outcome", "confirm_failed"))
		if errors.Is(err, domain.ErrTransportFailed) {
			o.capturePending(purchase)
		}
		deliver(cb, domain.Fail[map[string]domain.Permission](domain.NewError(domain.CodePurchaseFailed, err)))
		return
	}

	o.metrics.Counter(observability.MetricPurchases, 1, observability.T("outcome", "confirmed"))
	o.updateResult(result)

	if cb != nil {
		cb(domain.Ok(result.PermissionsCopy()))
		return
	}
	if listener := o.currentListener(); listener != nil {
		listener.OnPermissionsUpdated(result.PermissionsCopy())
	}
}

// OnAppForeground reconciles purchases made while the app was in the
// background. Query failures are ignored.
func (o *Orchestrator) OnAppForeground() {
	o.mu.Lock()
	finished := o.finishedLocked()
	o.mu.Unlock()
	if !finished {
		return
	}

	o.async(func() {
		ctx, cancel := o.opContext()
		purchases, err := o.billing.QueryOutstandingPurchases(ctx)
		cancel()
		if err != nil {
			o.logger.Debug("outstanding purchase query failed", "error", err)
			return
		}
		if len(purchases) == 0 {
			return
		}
		o.handlePurchases(purchases)
	})
}
