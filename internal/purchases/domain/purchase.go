package domain

import (
	"strconv"
	"time"

	"github.com/google/uuid"
)

// NormalizedPurchase is the backend representation of a store purchase,
// combining the platform purchase with its catalog metadata.
type NormalizedPurchase struct {
	ProductID               string `json:"product"`
	DetailsToken            string `json:"details_token,omitempty"`
	Title                   string `json:"title,omitempty"`
	Description             string `json:"description,omitempty"`
	OrderID                 string `json:"order_id,omitempty"`
	OriginalOrderID         string `json:"original_order_id,omitempty"`
	PurchaseToken           string `json:"purchase_token"`
	PurchaseTime            int64  `json:"purchase_time"`
	PackageName             string `json:"package_name,omitempty"`
	AutoRenewing            bool   `json:"auto_renewing"`
	Currency                string `json:"currency,omitempty"`
	Price                   string `json:"price,omitempty"`
	PriceMicros             int64  `json:"price_micros,omitempty"`
	SubscriptionPeriod      string `json:"period,omitempty"`
	FreeTrialPeriod         string `json:"free_trial_period,omitempty"`
	IntroductoryPrice       string `json:"intro_price,omitempty"`
	IntroductoryPriceCycles int    `json:"intro_cycles,omitempty"`
	IntroductoryPeriod      string `json:"intro_period,omitempty"`
}

// NormalizePurchase converts a (metadata, platform purchase) pair into the
// record the backend validates.
func NormalizePurchase(md StoreMetadata, p PlatformPurchase) NormalizedPurchase {
	return NormalizedPurchase{
		ProductID:               p.ProductID,
		DetailsToken:            md.DetailsToken,
		Title:                   md.Title,
		Description:             md.Description,
		OrderID:                 p.OrderID,
		OriginalOrderID:         originalOrderID(p.OrderID),
		PurchaseToken:           p.PurchaseToken,
		PurchaseTime:            p.PurchaseTime.Unix(),
		PackageName:             p.PackageName,
		AutoRenewing:            p.AutoRenewing,
		Currency:                md.PriceCurrencyCode,
		Price:                   formatMicros(md.PriceAmountMicros),
		PriceMicros:             md.PriceAmountMicros,
		SubscriptionPeriod:      md.SubscriptionPeriod,
		FreeTrialPeriod:         md.FreeTrialPeriod,
		IntroductoryPrice:       formatMicros(md.IntroductoryPriceAmountMicros),
		IntroductoryPriceCycles: md.IntroductoryPriceCycles,
		IntroductoryPeriod:      md.IntroductoryPricePeriod,
	}
}

// NormalizeHistory converts a purchase history entry for the restore call.
// History carries no pricing, so only identity fields are populated.
func NormalizeHistory(r HistoryRecord) NormalizedPurchase {
	return NormalizedPurchase{
		ProductID:     r.ProductID,
		PurchaseToken: r.PurchaseToken,
		PurchaseTime:  r.PurchaseTime.Unix(),
	}
}

// Renewal order ids look like "GPA.1234-5678-9012-34567..0"; the part before
// ".." identifies the original order.
func originalOrderID(orderID string) string {
	for i := 0; i+1 < len(orderID); i++ {
		if orderID[i] == '.' && orderID[i+1] == '.' {
			return orderID[:i]
		}
	}
	return orderID
}

func formatMicros(micros int64) string {
	if micros == 0 {
		return ""
	}
	return strconv.FormatFloat(float64(micros)/1_000_000, 'f', -1, 64)
}

// PendingPurchase is a purchase observed from the store whose backend
// confirmation failed. It is replayed until confirmed.
type PendingPurchase struct {
	ID            uuid.UUID          `json:"id"`
	Purchase      NormalizedPurchase `json:"purchase"`
	CreatedAt     time.Time          `json:"created_at"`
	Attempts      int                `json:"attempts"`
	NextAttemptAt *time.Time         `json:"next_attempt_at,omitempty"`
	LastError     string             `json:"last_error,omitempty"`
}

// NewPendingPurchase creates a pending record for an unconfirmed purchase.
func NewPendingPurchase(p NormalizedPurchase) *PendingPurchase {
	return &PendingPurchase{
		ID:        uuid.New(),
		Purchase:  p,
		CreatedAt: time.Now().UTC(),
	}
}

// Due reports whether the record may be replayed at the given time.
func (p *PendingPurchase) Due(now time.Time) bool {
	return p.NextAttemptAt == nil || !p.NextAttemptAt.After(now)
}

// MarkFailed records a failed confirmation attempt.
func (p *PendingPurchase) MarkFailed(err error, next time.Time) {
	p.Attempts++
	p.NextAttemptAt = &next
	if err != nil {
		p.LastError = err.Error()
	}
}
