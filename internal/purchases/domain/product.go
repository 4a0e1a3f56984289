package domain

import "time"

// ProductType describes how a product is billed.
type ProductType string

const (
	// ProductTypeTrial is a subscription that starts with a free trial.
	ProductTypeTrial ProductType = "trial"
	// ProductTypeSubscription is a subscription billed from the first period.
	ProductTypeSubscription ProductType = "subscription"
	// ProductTypeOneTime is a single in-app purchase.
	ProductTypeOneTime ProductType = "one_time"
)

// ProductDuration is the billing period of a subscription product.
type ProductDuration string

const (
	DurationWeekly   ProductDuration = "weekly"
	DurationMonthly  ProductDuration = "monthly"
	Duration3Months  ProductDuration = "3months"
	Duration6Months  ProductDuration = "6months"
	DurationAnnual   ProductDuration = "annual"
	DurationLifetime ProductDuration = "lifetime"
	DurationUnknown  ProductDuration = ""
)

// Product is an item the app sells, as configured on the backend.
type Product struct {
	ID       string          `json:"id"`
	StoreID  string          `json:"store_id,omitempty"`
	Type     ProductType     `json:"type"`
	Duration ProductDuration `json:"duration,omitempty"`

	// StoreDetails is presentation-only metadata attached from the catalog.
	StoreDetails *StoreMetadata `json:"-"`
}

// HasStoreCounterpart reports whether the product can be bought in the store.
func (p Product) HasStoreCounterpart() bool {
	return p.StoreID != ""
}

// WithStoreDetails returns a copy of the product carrying the given metadata.
func (p Product) WithStoreDetails(md *StoreMetadata) Product {
	if md == nil {
		p.StoreDetails = nil
		return p
	}
	details := *md
	p.StoreDetails = &details
	return p
}

// PrettyPrice returns the store-formatted price, or an empty string when no
// metadata is attached.
func (p Product) PrettyPrice() string {
	if p.StoreDetails == nil {
		return ""
	}
	return p.StoreDetails.Price
}

// RenewState is the renewal status of a subscription permission.
type RenewState string

const (
	RenewStateNonRenewable RenewState = "non_renewable"
	RenewStateUnknown      RenewState = "unknown"
	RenewStateWillRenew    RenewState = "will_renew"
	RenewStateCanceled     RenewState = "canceled"
	RenewStateBillingIssue RenewState = "billing_issue"
)

// Permission is an entitlement granted to the user. Validity semantics are
// owned by the backend and passed through as-is.
type Permission struct {
	ID         string     `json:"id"`
	ProductID  string     `json:"associated_product"`
	RenewState RenewState `json:"renew_state"`
	StartedAt  time.Time  `json:"started_timestamp"`
	ExpiresAt  *time.Time `json:"expiration_timestamp,omitempty"`
	Active     bool       `json:"active"`
}

// EligibilityStatus reports whether a user can still use an intro offer or trial.
type EligibilityStatus string

const (
	EligibilityUnknown    EligibilityStatus = "unknown"
	EligibilityEligible   EligibilityStatus = "intro_or_trial_eligible"
	EligibilityIneligible EligibilityStatus = "intro_or_trial_ineligible"
)

// Eligibility is the trial/intro eligibility of a single product.
type Eligibility struct {
	Status EligibilityStatus `json:"status"`
}
