package application

import (
	"github.com/felixgeelhaar/entitlekit/internal/purchases/domain"
	"github.com/felixgeelhaar/entitlekit/pkg/observability"
)

// CheckPermissions delivers the user's permissions. Callers arriving before
// the session has finished are queued and flushed in order once it does.
func (o *Orchestrator) CheckPermissions(cb PermissionsCallback) {
	o.mu.Lock()
	o.permissions.add(cb)
	if !o.finishedLocked() {
		o.mu.Unlock()
		return
	}
	cbs := o.permissions.drain()
	o.mu.Unlock()

	o.handlePermissions(cbs)
}

// Experiments delivers the user's experiment assignments, following the same
// queueing and fallback rules as CheckPermissions.
func (o *Orchestrator) Experiments(cb ExperimentsCallback) {
	o.mu.Lock()
	o.experiments.add(cb)
	if !o.finishedLocked() {
		o.mu.Unlock()
		return
	}
	cbs := o.experiments.drain()
	o.mu.Unlock()

	o.handleExperiments(cbs)
}

func (o *Orchestrator) handlePermissions(cbs []PermissionsCallback) {
	handleSessionQuery(o, "permissions", cbs, (*domain.SessionResult).PermissionsCopy)
}

func (o *Orchestrator) handleExperiments(cbs []ExperimentsCallback) {
	handleSessionQuery(o, "experiments", cbs, (*domain.SessionResult).ExperimentsCopy)
}

// handleSessionQuery answers read-only session queries. With a current
// result the answer is immediate; otherwise the session is re-launched and,
// if that fails too, the entitlement cache is used unless a write has failed
// since the cache was last trustworthy.
func handleSessionQuery[T any](o *Orchestrator, kind string, cbs []Callback[T], pick func(*domain.SessionResult) T) {
	if len(cbs) == 0 {
		return
	}

	o.mu.Lock()
	result := o.result
	o.mu.Unlock()

	if result != nil {
		for _, cb := range cbs {
			deliver(cb, domain.Ok(pick(result)))
		}
		return
	}

	o.Launch(func(r domain.Result[*domain.SessionResult]) {
		if r.Err == nil {
			for _, cb := range cbs {
				deliver(cb, domain.Ok(pick(r.Value)))
			}
			return
		}

		o.mu.Lock()
		force := o.forceRetry
		o.mu.Unlock()
		if force {
			deliverAll(cbs, domain.Fail[T](r.Err))
			return
		}

		cached := o.loadCached()
		if cached == nil {
			deliverAll(cbs, domain.Fail[T](r.Err))
			return
		}
		o.logger.Info("serving cached session data after launch failure", "kind", kind, "error", r.Err)
		o.metrics.Counter(observability.MetricCacheFallback, 1, observability.T("kind", kind))
		for _, cb := range cbs {
			deliver(cb, domain.Ok(pick(cached)))
		}
	})
}

// Offerings delivers the configured offerings with store metadata attached.
// Without a current session the cached offerings are used, unless a write
// has failed since.
func (o *Orchestrator) Offerings(cb OfferingsCallback) {
	o.LoadProducts(func(r domain.Result[map[string]domain.Product]) {
		o.mu.Lock()
		result := o.result
		launchErr := o.launchErr
		force := o.forceRetry
		catalog := o.catalog.snapshot()
		o.mu.Unlock()

		var offerings *domain.Offerings
		switch {
		case result != nil:
			if r.Err == nil {
				offerings = result.Offerings
			}
		case !force:
			if cached := o.loadCached(); cached != nil {
				offerings = cached.Offerings
			}
		}

		if offerings == nil {
			err := r.Err
			if err == nil {
				err = launchErr
			}
			if err == nil {
				err = domain.ErrOfferingsNotFound
			}
			deliver(cb, domain.Fail[*domain.Offerings](err))
			return
		}
		deliver(cb, domain.Ok(offerings.WithCatalog(catalog)))
	})
}

// CheckTrialIntroEligibility reports, for each requested product id, whether
// the user may still use an introductory offer or free trial.
func (o *Orchestrator) CheckTrialIntroEligibility(productIDs []string, cb EligibilityCallback) {
	o.LoadProducts(func(r domain.Result[map[string]domain.Product]) {
		if r.Err != nil {
			deliver(cb, domain.Fail[map[string]domain.Eligibility](r.Err))
			return
		}

		storeIDs := make([]string, 0, len(r.Value))
		for _, p := range r.Value {
			if p.StoreDetails != nil {
				storeIDs = append(storeIDs, p.StoreID)
			}
		}

		o.async(func() {
			ctx, cancel := o.opContext()
			defer cancel()

			all, err := o.backend.EligibilityForIDs(ctx, storeIDs, o.installDate)
			if err != nil {
				deliver(cb, domain.Fail[map[string]domain.Eligibility](domain.NewError(domain.CodeEligibilityFailed, err)))
				return
			}

			wanted := make(map[string]struct{}, len(productIDs))
			for _, id := range productIDs {
				wanted[id] = struct{}{}
			}
			filtered := make(map[string]domain.Eligibility, len(productIDs))
			for id, e := range all {
				if _, ok := wanted[id]; ok {
					filtered[id] = e
				}
			}
			deliver(cb, domain.Ok(filtered))
		})
	})
}
