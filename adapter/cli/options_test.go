package cli

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/felixgeelhaar/entitlekit/internal/purchases/domain"
)

func TestParseReplacementMode(t *testing.T) {
	mode, err := ParseReplacementMode("")
	require.NoError(t, err)
	assert.Equal(t, domain.ReplacementModeUnset, mode)

	mode, err = ParseReplacementMode(" Deferred ")
	require.NoError(t, err)
	assert.Equal(t, domain.ReplacementModeDeferred, mode)

	_, err = ParseReplacementMode("sideways")
	assert.ErrorContains(t, err, "charge-full-price")
}

func TestReplacementModeNames(t *testing.T) {
	assert.Equal(t, []string{
		"charge-full-price",
		"charge-prorated",
		"deferred",
		"with-time-proration",
		"without-proration",
	}, ReplacementModeNames())
}

func TestErrorHint(t *testing.T) {
	assert.Empty(t, ErrorHint(errors.New("plain")))
	assert.Contains(t, ErrorHint(domain.NewError(domain.CodePurchaseFailed, domain.ErrTransportFailed)), "replayed")

	err := FailWithHint(domain.ErrPurchasePending)
	assert.ErrorIs(t, err, domain.ErrPurchasePending)
	assert.Contains(t, err.Error(), "still processing")

	plain := errors.New("boom")
	assert.Same(t, plain, FailWithHint(plain))
}

func TestSplitIDs(t *testing.T) {
	assert.Equal(t, []string{"a", "b", "c"}, SplitIDs([]string{"a, b", "", "c,"}))
	assert.Nil(t, SplitIDs(nil))
}
