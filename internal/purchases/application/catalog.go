package application

import (
	"github.com/felixgeelhaar/entitlekit/internal/purchases/domain"
	"github.com/felixgeelhaar/entitlekit/pkg/observability"
)

// CatalogState tracks store catalog loading.
type CatalogState string

const (
	CatalogIdle    CatalogState = "idle"
	CatalogLoading CatalogState = "loading"
	CatalogLoaded  CatalogState = "loaded"
	// CatalogEmpty means the session had no store products to load. Product
	// callers are served, but a later session with store products loads.
	CatalogEmpty CatalogState = "empty"
	// CatalogFailed means an attempt was made and failed. Waiting callers
	// are flushed with the error instead of staying queued.
	CatalogFailed CatalogState = "failed"
)

// catalogCache holds store metadata keyed by store product id. It is always
// accessed under the orchestrator lock.
type catalogCache struct {
	state   CatalogState
	entries map[string]domain.StoreMetadata
}

func newCatalogCache() *catalogCache {
	return &catalogCache{
		state:   CatalogIdle,
		entries: make(map[string]domain.StoreMetadata),
	}
}

// attempted reports whether a load has completed, successfully or not.
func (c *catalogCache) attempted() bool {
	return c.state == CatalogLoaded || c.state == CatalogFailed || c.state == CatalogEmpty
}

func (c *catalogCache) get(storeID string) (domain.StoreMetadata, bool) {
	md, ok := c.entries[storeID]
	return md, ok
}

func (c *catalogCache) replace(entries map[string]domain.StoreMetadata) {
	c.entries = make(map[string]domain.StoreMetadata, len(entries))
	for id, md := range entries {
		c.entries[id] = md
	}
}

func (c *catalogCache) merge(entries map[string]domain.StoreMetadata) {
	for id, md := range entries {
		c.entries[id] = md
	}
}

func (c *catalogCache) snapshot() map[string]domain.StoreMetadata {
	out := make(map[string]domain.StoreMetadata, len(c.entries))
	for id, md := range c.entries {
		out[id] = md
	}
	return out
}

// loadCatalogIfPossible fetches store metadata for the products of result.
// It skips the fetch when there is nothing to load, when a load is already
// running, or when a previous load succeeded.
func (o *Orchestrator) loadCatalogIfPossible(result *domain.SessionResult) {
	ids := result.StoreIDs()

	o.mu.Lock()
	switch {
	case len(ids) == 0:
		if o.catalog.state != CatalogLoaded && o.catalog.state != CatalogLoading {
			o.catalog.state = CatalogEmpty
		}
		o.mu.Unlock()
		o.flushProducts()
		return
	case o.catalog.state == CatalogLoading:
		o.mu.Unlock()
		return
	case o.catalog.state == CatalogLoaded:
		o.mu.Unlock()
		o.flushProducts()
		return
	}
	o.catalog.state = CatalogLoading
	o.mu.Unlock()

	o.async(func() {
		ctx, cancel := o.opContext()
		defer cancel()

		entries, err := o.billing.FetchCatalog(ctx, ids)
		if err != nil {
			o.logger.Warn("store catalog load failed", "error", err, "products", len(ids))
			o.metrics.Counter(observability.MetricCatalogLoads, 1, observability.T("outcome", "failure"))
			o.mu.Lock()
			o.catalog.state = CatalogFailed
			cbs := o.products.drain()
			o.mu.Unlock()
			deliverAll(cbs, domain.Fail[map[string]domain.Product](domain.AsError(domain.CodeTransportFailed, err)))
			return
		}

		o.logger.Debug("store catalog loaded", "requested", len(ids), "received", len(entries))
		o.metrics.Counter(observability.MetricCatalogLoads, 1, observability.T("outcome", "success"))
		o.mu.Lock()
		o.catalog.replace(entries)
		o.catalog.state = CatalogLoaded
		o.mu.Unlock()
		o.flushProducts()
	})
}

// flushProducts delivers the products batch. With no current session result
// it re-launches once; products never fall back to the entitlement cache.
func (o *Orchestrator) flushProducts() {
	o.mu.Lock()
	cbs := o.products.drain()
	result := o.result
	catalog := o.catalog.snapshot()
	o.mu.Unlock()

	if len(cbs) == 0 {
		return
	}
	if result != nil {
		for _, cb := range cbs {
			deliver(cb, domain.Ok(domain.AttachCatalog(result.Products, catalog)))
		}
		return
	}
	// Queued product callers are flushed with the launch error when it
	// happens; reaching this point means the catalog was attempted while
	// the session is failed, so try once more.
	o.Launch(func(r domain.Result[*domain.SessionResult]) {
		if r.Err != nil {
			deliverAll(cbs, domain.Fail[map[string]domain.Product](r.Err))
			return
		}
		o.mu.Lock()
		o.products.prepend(cbs)
		ready := o.catalog.attempted()
		o.mu.Unlock()
		if ready {
			o.flushProducts()
		}
	})
}

// LoadProducts delivers the session's products with store metadata attached.
// Callers are queued until the session has finished and a catalog load has
// been attempted. A previously failed catalog load is retried.
func (o *Orchestrator) LoadProducts(cb ProductsCallback) {
	o.mu.Lock()
	o.products.add(cb)
	ready := o.finishedLocked() && o.catalog.attempted()
	retry := ready && o.catalog.state == CatalogFailed && o.result != nil
	result := o.result
	o.mu.Unlock()

	switch {
	case retry:
		o.loadCatalogIfPossible(result)
	case ready:
		o.flushProducts()
	}
}
