package application

import "sort"

// purchaseRegistry maps a store product id to the single in-flight purchase
// callback for that id. It is always accessed under the orchestrator lock.
type purchaseRegistry struct {
	entries map[string]PermissionsCallback
}

func newPurchaseRegistry() *purchaseRegistry {
	return &purchaseRegistry{entries: make(map[string]PermissionsCallback)}
}

func (r *purchaseRegistry) has(storeID string) bool {
	_, ok := r.entries[storeID]
	return ok
}

// register adds an entry and reports false if one already exists.
func (r *purchaseRegistry) register(storeID string, cb PermissionsCallback) bool {
	if r.has(storeID) {
		return false
	}
	if cb == nil {
		cb = func(PermissionsResult) {}
	}
	r.entries[storeID] = cb
	return true
}

// take removes and returns the entry for storeID, or nil.
func (r *purchaseRegistry) take(storeID string) PermissionsCallback {
	cb, ok := r.entries[storeID]
	if !ok {
		return nil
	}
	delete(r.entries, storeID)
	return cb
}

// drain removes every entry, returning the callbacks ordered by store id.
func (r *purchaseRegistry) drain() []PermissionsCallback {
	ids := r.ids()
	cbs := make([]PermissionsCallback, 0, len(ids))
	for _, id := range ids {
		cbs = append(cbs, r.entries[id])
	}
	r.entries = make(map[string]PermissionsCallback)
	return cbs
}

func (r *purchaseRegistry) ids() []string {
	ids := make([]string, 0, len(r.entries))
	for id := range r.entries {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
