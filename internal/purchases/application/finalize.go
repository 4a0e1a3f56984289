package application

import (
	"github.com/felixgeelhaar/entitlekit/internal/purchases/domain"
)

// finalizePurchases consumes settled one-time purchases and acknowledges
// settled subscriptions so the store neither redelivers nor refunds them.
// Pending purchases and purchases without metadata are left untouched.
func (o *Orchestrator) finalizePurchases(purchases []domain.PlatformPurchase, catalog map[string]domain.StoreMetadata) {
	if o.finalizer == nil {
		return
	}
	ctx, cancel := o.opContext()
	defer cancel()

	for _, p := range purchases {
		if p.State != domain.PurchaseStatePurchased {
			continue
		}
		md, ok := catalog[p.ProductID]
		if !ok {
			continue
		}

		var err error
		switch {
		case md.Consumable():
			err = o.finalizer.Consume(ctx, p)
		case !p.Acknowledged:
			err = o.finalizer.Acknowledge(ctx, p, md.Kind)
		}
		if err != nil {
			o.logger.Warn("failed to finalize purchase", "store_id", p.ProductID, "error", err)
		}
	}
}

// finalizeHistory consumes one-time purchases found in the purchase history.
func (o *Orchestrator) finalizeHistory(records []domain.HistoryRecord) {
	if o.finalizer == nil {
		return
	}
	ctx, cancel := o.opContext()
	defer cancel()

	for _, r := range records {
		if r.Kind != domain.KindInApp {
			continue
		}
		p := domain.PlatformPurchase{
			ProductID:     r.ProductID,
			PurchaseToken: r.PurchaseToken,
			PurchaseTime:  r.PurchaseTime,
			State:         domain.PurchaseStatePurchased,
		}
		if err := o.finalizer.Consume(ctx, p); err != nil {
			o.logger.Warn("failed to consume history record", "store_id", r.ProductID, "error", err)
		}
	}
}
