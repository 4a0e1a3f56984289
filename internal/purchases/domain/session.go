package domain

import (
	"sort"
	"time"
)

// SessionResult is the backend's authoritative snapshot of what a user owns
// and what the app sells. A new result always replaces the previous one.
type SessionResult struct {
	UID          string                `json:"uid"`
	Timestamp    time.Time             `json:"timestamp"`
	Products     map[string]Product    `json:"products"`
	Permissions  map[string]Permission `json:"permissions"`
	UserProducts map[string]Product    `json:"user_products"`
	Offerings    *Offerings            `json:"offerings,omitempty"`
	Experiments  map[string]Experiment `json:"experiments,omitempty"`
}

// StoreIDs returns the distinct, sorted store product ids referenced by the
// result's product map.
func (r *SessionResult) StoreIDs() []string {
	if r == nil {
		return nil
	}
	seen := make(map[string]struct{}, len(r.Products))
	ids := make([]string, 0, len(r.Products))
	for _, p := range r.Products {
		if p.StoreID == "" {
			continue
		}
		if _, ok := seen[p.StoreID]; ok {
			continue
		}
		seen[p.StoreID] = struct{}{}
		ids = append(ids, p.StoreID)
	}
	sort.Strings(ids)
	return ids
}

// Product looks up a product by its internal id.
func (r *SessionResult) Product(id string) (Product, bool) {
	if r == nil {
		return Product{}, false
	}
	p, ok := r.Products[id]
	return p, ok
}

// PermissionsCopy returns a copy of the permission map that callers may keep.
func (r *SessionResult) PermissionsCopy() map[string]Permission {
	if r == nil {
		return nil
	}
	out := make(map[string]Permission, len(r.Permissions))
	for k, v := range r.Permissions {
		out[k] = v
	}
	return out
}

// ExperimentsCopy returns a copy of the experiment map that callers may keep.
func (r *SessionResult) ExperimentsCopy() map[string]Experiment {
	if r == nil {
		return nil
	}
	out := make(map[string]Experiment, len(r.Experiments))
	for k, v := range r.Experiments {
		out[k] = v
	}
	return out
}

// ActivePermissions returns only the permissions that are currently active.
func (r *SessionResult) ActivePermissions() map[string]Permission {
	out := make(map[string]Permission)
	if r == nil {
		return out
	}
	for k, v := range r.Permissions {
		if v.Active {
			out[k] = v
		}
	}
	return out
}

// Experiment is a promotional experiment the user participates in.
type Experiment struct {
	ID    string          `json:"uid"`
	Group ExperimentGroup `json:"attached_group"`
}

// ExperimentGroup identifies the experiment branch assigned to the user.
type ExperimentGroup struct {
	Type string `json:"type"`
}
