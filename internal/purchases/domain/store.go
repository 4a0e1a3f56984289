package domain

import "time"

// ProductKind is the store-side kind of a product.
type ProductKind string

const (
	// KindInApp is a one-time product; these are consumed after validation.
	KindInApp ProductKind = "inapp"
	// KindSubscription is an auto-renewing subscription; these are acknowledged.
	KindSubscription ProductKind = "subs"
)

// StoreMetadata is the store-provided description of a product: price,
// period and other market-specific fields.
type StoreMetadata struct {
	ProductID                     string      `json:"product_id"`
	Kind                          ProductKind `json:"type"`
	Title                         string      `json:"title"`
	Description                   string      `json:"description"`
	Price                         string      `json:"price"`
	PriceAmountMicros             int64       `json:"price_amount_micros"`
	PriceCurrencyCode             string      `json:"price_currency_code"`
	SubscriptionPeriod            string      `json:"subscription_period,omitempty"`
	FreeTrialPeriod               string      `json:"free_trial_period,omitempty"`
	IntroductoryPrice             string      `json:"introductory_price,omitempty"`
	IntroductoryPriceAmountMicros int64       `json:"introductory_price_amount_micros,omitempty"`
	IntroductoryPricePeriod       string      `json:"introductory_price_period,omitempty"`
	IntroductoryPriceCycles       int         `json:"introductory_price_cycles,omitempty"`
	DetailsToken                  string      `json:"details_token,omitempty"`
}

// Consumable reports whether purchases of this product are consumed rather
// than acknowledged.
func (m StoreMetadata) Consumable() bool {
	return m.Kind == KindInApp
}

// PurchaseState is the payment state of a platform purchase.
type PurchaseState int

const (
	PurchaseStateUnspecified PurchaseState = iota
	PurchaseStatePurchased
	PurchaseStatePending
)

func (s PurchaseState) String() string {
	switch s {
	case PurchaseStatePurchased:
		return "purchased"
	case PurchaseStatePending:
		return "pending"
	default:
		return "unspecified"
	}
}

// PlatformPurchase is a purchase as reported by the billing transport.
type PlatformPurchase struct {
	ProductID     string        `json:"product_id"`
	OrderID       string        `json:"order_id"`
	PurchaseToken string        `json:"purchase_token"`
	PurchaseTime  time.Time     `json:"purchase_time"`
	State         PurchaseState `json:"state"`
	Acknowledged  bool          `json:"acknowledged"`
	AutoRenewing  bool          `json:"auto_renewing"`
	PackageName   string        `json:"package_name,omitempty"`
}

// HistoryRecord is one entry of the store's full purchase history.
type HistoryRecord struct {
	Kind          ProductKind `json:"type"`
	ProductID     string      `json:"product_id"`
	PurchaseToken string      `json:"purchase_token"`
	PurchaseTime  time.Time   `json:"purchase_time"`
}

// ReplacementMode controls how an old subscription is replaced by a new one.
type ReplacementMode int

const (
	ReplacementModeUnset ReplacementMode = iota
	ReplacementModeWithTimeProration
	ReplacementModeChargeProratedPrice
	ReplacementModeWithoutProration
	ReplacementModeDeferred
	ReplacementModeChargeFullPrice
)

// PurchaseOptions are platform-specific options forwarded to the store.
type PurchaseOptions struct {
	ReplacementMode     ReplacementMode
	ObfuscatedAccountID string
}

// PurchaseRequest is what the orchestrator hands to the billing transport to
// start a store purchase flow.
type PurchaseRequest struct {
	Metadata StoreMetadata
	Replaced *StoreMetadata
	Options  PurchaseOptions
}
