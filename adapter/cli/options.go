package cli

import (
	"fmt"
	"sort"
	"strings"

	"github.com/felixgeelhaar/entitlekit/internal/purchases/domain"
)

var replacementModes = map[string]domain.ReplacementMode{
	"":                    domain.ReplacementModeUnset,
	"with-time-proration": domain.ReplacementModeWithTimeProration,
	"charge-prorated":     domain.ReplacementModeChargeProratedPrice,
	"without-proration":   domain.ReplacementModeWithoutProration,
	"deferred":            domain.ReplacementModeDeferred,
	"charge-full-price":   domain.ReplacementModeChargeFullPrice,
}

// ParseReplacementMode maps a replacement mode name to its value. The empty
// name leaves the mode unset.
func ParseReplacementMode(name string) (domain.ReplacementMode, error) {
	mode, ok := replacementModes[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return 0, fmt.Errorf("unknown replacement mode %q (want one of %s)", name, strings.Join(ReplacementModeNames(), ", "))
	}
	return mode, nil
}

// ReplacementModeNames lists the accepted replacement mode names.
func ReplacementModeNames() []string {
	names := make([]string, 0, len(replacementModes))
	for name := range replacementModes {
		if name != "" {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}
