package sandbox

import (
	"encoding/json"
	"fmt"

	"github.com/felixgeelhaar/entitlekit/internal/purchases/domain"
	"github.com/felixgeelhaar/entitlekit/internal/shared/infrastructure/security"
)

// Outcome scripts how the sandbox store resolves a purchase flow.
type Outcome string

const (
	OutcomeCompleted Outcome = "completed"
	OutcomePending   Outcome = "pending"
	OutcomeFailed    Outcome = "failed"
	OutcomeCanceled  Outcome = "canceled"
)

// Valid reports whether o is a known outcome.
func (o Outcome) Valid() bool {
	switch o {
	case OutcomeCompleted, OutcomePending, OutcomeFailed, OutcomeCanceled:
		return true
	}
	return false
}

// CatalogProduct is a store product plus the outcome its purchases get.
type CatalogProduct struct {
	domain.StoreMetadata
	Outcome Outcome `json:"outcome,omitempty"`
}

// Catalog is the JSON document the sandbox store is seeded from.
//
//	{
//	  "package_name": "com.example.app",
//	  "products": [
//	    {"product_id": "com.example.pro", "type": "subs", "price": "$4.99",
//	     "price_amount_micros": 4990000, "price_currency_code": "USD",
//	     "subscription_period": "P1M", "outcome": "completed"}
//	  ]
//	}
type Catalog struct {
	PackageName string           `json:"package_name"`
	Products    []CatalogProduct `json:"products"`
}

// ParseCatalog decodes and validates a catalog document.
func ParseCatalog(data []byte) (*Catalog, error) {
	var c Catalog
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("decode sandbox catalog: %w", err)
	}

	seen := make(map[string]struct{}, len(c.Products))
	for i := range c.Products {
		p := &c.Products[i]
		if p.ProductID == "" {
			return nil, fmt.Errorf("sandbox catalog: product %d has no product_id", i)
		}
		if _, dup := seen[p.ProductID]; dup {
			return nil, fmt.Errorf("sandbox catalog: duplicate product %q", p.ProductID)
		}
		seen[p.ProductID] = struct{}{}

		switch p.Kind {
		case "":
			p.Kind = domain.KindInApp
		case domain.KindInApp, domain.KindSubscription:
		default:
			return nil, fmt.Errorf("sandbox catalog: product %q has unknown type %q", p.ProductID, p.Kind)
		}
		if p.Outcome == "" {
			p.Outcome = OutcomeCompleted
		}
		if !p.Outcome.Valid() {
			return nil, fmt.Errorf("sandbox catalog: product %q has unknown outcome %q", p.ProductID, p.Outcome)
		}
	}
	return &c, nil
}

// LoadCatalog reads a catalog file.
func LoadCatalog(path string) (*Catalog, error) {
	data, err := security.ReadConfigFile(path)
	if err != nil {
		return nil, fmt.Errorf("read sandbox catalog: %w", err)
	}
	return ParseCatalog(data)
}
