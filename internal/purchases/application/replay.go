package application

import (
	"time"

	"github.com/felixgeelhaar/entitlekit/internal/purchases/domain"
	"github.com/felixgeelhaar/entitlekit/pkg/observability"
)

// ReplayPolicy spaces out confirmation retries of pending purchases.
type ReplayPolicy struct {
	BackoffBase time.Duration
	BackoffMax  time.Duration
}

// DefaultReplayPolicy returns the default backoff of 1s doubling up to 5m.
func DefaultReplayPolicy() ReplayPolicy {
	return ReplayPolicy{
		BackoffBase: time.Second,
		BackoffMax:  5 * time.Minute,
	}
}

func (p ReplayPolicy) withDefaults() ReplayPolicy {
	def := DefaultReplayPolicy()
	if p.BackoffBase <= 0 {
		p.BackoffBase = def.BackoffBase
	}
	if p.BackoffMax <= 0 {
		p.BackoffMax = def.BackoffMax
	}
	return p
}

// Backoff returns the delay before the given attempt (1-based).
func (p ReplayPolicy) Backoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	backoff := p.BackoffBase
	for i := 1; i < attempt; i++ {
		backoff *= 2
		if backoff >= p.BackoffMax {
			return p.BackoffMax
		}
	}
	if backoff > p.BackoffMax {
		return p.BackoffMax
	}
	return backoff
}

// replayPending re-submits purchases whose confirmation failed earlier.
// Failures stay in the store with a later retry time; nothing is reported.
func (o *Orchestrator) replayPending() {
	if o.pending == nil {
		return
	}
	o.async(func() {
		ctx, cancel := o.opContext()
		defer cancel()

		records, err := o.pending.LoadAll(ctx)
		if err != nil {
			o.logger.Warn("failed to load pending purchases", "error", err)
			return
		}

		now := o.now()
		for _, record := range records {
			if !record.Due(now) {
				continue
			}
			result, err := o.backend.ConfirmPurchase(ctx, o.installDate, record.Purchase)
			if err != nil {
				record.MarkFailed(err, now.Add(o.replay.Backoff(record.Attempts+1)))
				o.logger.Warn("pending purchase replay failed",
					"id", record.ID,
					"attempts", record.Attempts,
					"next_attempt_at", record.NextAttemptAt,
					"error", err,
				)
				if err := o.pending.Save(ctx, record); err != nil {
					o.logger.Warn("failed to update pending purchase", "id", record.ID, "error", err)
				}
				continue
			}

			o.metrics.Counter(observability.MetricPendingReplayed, 1)
			o.updateResult(result)
			if err := o.pending.Remove(ctx, record.ID); err != nil {
				o.logger.Warn("failed to remove replayed purchase", "id", record.ID, "error", err)
			}
		}
	})
}

func (o *Orchestrator) capturePending(purchase domain.NormalizedPurchase) {
	if o.pending == nil {
		return
	}
	ctx, cancel := o.opContext()
	defer cancel()

	record := domain.NewPendingPurchase(purchase)
	if err := o.pending.Save(ctx, record); err != nil {
		o.logger.Warn("failed to store unconfirmed purchase", "store_id", purchase.ProductID, "error", err)
		return
	}
	o.metrics.Counter(observability.MetricPendingCaptured, 1)
	o.logger.Info("stored unconfirmed purchase for replay", "id", record.ID, "store_id", purchase.ProductID)
}
