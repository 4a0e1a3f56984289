package application

import (
	"github.com/felixgeelhaar/entitlekit/internal/purchases/domain"
	"github.com/felixgeelhaar/entitlekit/pkg/observability"
)

// Restore submits the store's full purchase history to the backend and
// delivers the refreshed permissions.
func (o *Orchestrator) Restore(cb PermissionsCallback) {
	o.async(func() {
		ctx, cancel := o.opContext()
		defer cancel()

		history, err := o.billing.QueryHistory(ctx)
		if err != nil {
			o.logger.Warn("purchase history query failed", "error", err)
			o.metrics.Counter(observability.MetricRestores, 1, observability.T("outcome", "failure"))
			deliver(cb, domain.Fail[map[string]domain.Permission](domain.NewError(domain.CodeRestoreFailed, domain.AsError(domain.CodeTransportFailed, err))))
			return
		}

		o.finalizeHistory(history)

		records := make([]domain.NormalizedPurchase, 0, len(history))
		for _, h := range history {
			records = append(records, domain.NormalizeHistory(h))
		}

		o.metrics.Histogram(observability.MetricRestoreRecords, float64(len(records)))
		result, err := o.backend.Restore(ctx, o.installDate, records)
		if err != nil {
			o.markForceRetry()
			o.logger.Warn("restore failed", "error", err, "records", len(records))
			o.metrics.Counter(observability.MetricRestores, 1, observability.T("outcome", "failure"))
			deliver(cb, domain.Fail[map[string]domain.Permission](domain.NewError(domain.CodeRestoreFailed, err)))
			return
		}

		o.logger.Debug("restore succeeded", "records", len(records))
		o.metrics.Counter(observability.MetricRestores, 1, observability.T("outcome", "success"))
		o.updateResult(result)
		deliver(cb, domain.Ok(result.PermissionsCopy()))
	})
}

// SyncPurchases restores without a caller, for apps that record purchases
// outside this engine.
func (o *Orchestrator) SyncPurchases() {
	o.Restore(nil)
}
