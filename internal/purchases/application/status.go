package application

// SessionState is the lifecycle state of the backend session.
type SessionState string

const (
	StateNotLaunched SessionState = "not_launched"
	StateLaunching   SessionState = "launching"
	StateSucceeded   SessionState = "succeeded"
	StateFailed      SessionState = "failed"
)

// Status is a point-in-time snapshot of the orchestrator.
type Status struct {
	Session           SessionState `json:"session"`
	SessionUID        string       `json:"session_uid,omitempty"`
	LaunchError       string       `json:"launch_error,omitempty"`
	ForceRetry        bool         `json:"force_retry"`
	Catalog           CatalogState `json:"catalog"`
	CatalogSize       int          `json:"catalog_size"`
	QueuedProducts    int          `json:"queued_products"`
	QueuedPermissions int          `json:"queued_permissions"`
	QueuedExperiments int          `json:"queued_experiments"`
	InFlightPurchases []string     `json:"in_flight_purchases"`
}

// Status returns a snapshot of the session, catalog and queue state.
func (o *Orchestrator) Status() Status {
	o.mu.Lock()
	defer o.mu.Unlock()

	s := Status{
		Session:           o.state,
		ForceRetry:        o.forceRetry,
		Catalog:           o.catalog.state,
		CatalogSize:       len(o.catalog.entries),
		QueuedProducts:    o.products.len(),
		QueuedPermissions: o.permissions.len(),
		QueuedExperiments: o.experiments.len(),
		InFlightPurchases: o.purchasing.ids(),
	}
	if o.result != nil {
		s.SessionUID = o.result.UID
	}
	if o.launchErr != nil {
		s.LaunchError = o.launchErr.Error()
	}
	return s
}
