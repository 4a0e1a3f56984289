package persistence

import (
	"encoding/json"
	"fmt"

	"github.com/felixgeelhaar/entitlekit/internal/purchases/domain"
)

// Caches store the session result as the backend's JSON document.
// Store metadata is never persisted; it is reloaded from the store.

func encodeResult(result *domain.SessionResult) ([]byte, error) {
	if result == nil {
		return nil, fmt.Errorf("cannot cache a nil session result")
	}
	data, err := json.Marshal(result)
	if err != nil {
		return nil, fmt.Errorf("encode session result: %w", err)
	}
	return data, nil
}

func decodeResult(data []byte) (*domain.SessionResult, error) {
	var result domain.SessionResult
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("decode session result: %w", err)
	}
	return &result, nil
}

func encodePurchase(p domain.NormalizedPurchase) ([]byte, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("encode pending purchase: %w", err)
	}
	return data, nil
}

func decodePurchase(data []byte) (domain.NormalizedPurchase, error) {
	var p domain.NormalizedPurchase
	if err := json.Unmarshal(data, &p); err != nil {
		return p, fmt.Errorf("decode pending purchase: %w", err)
	}
	return p, nil
}
