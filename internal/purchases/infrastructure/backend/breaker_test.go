package backend

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/felixgeelhaar/entitlekit/internal/purchases/domain"
	"github.com/felixgeelhaar/entitlekit/pkg/observability"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubBackend struct {
	calls int
	err   error
}

func (s *stubBackend) result() (*domain.SessionResult, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return &domain.SessionResult{UID: "u1"}, nil
}

func (s *stubBackend) InitSession(context.Context, int64, string) (*domain.SessionResult, error) {
	return s.result()
}

func (s *stubBackend) InitSessionWithPurchases(context.Context, int64, string, []domain.NormalizedPurchase) (*domain.SessionResult, error) {
	return s.result()
}

func (s *stubBackend) ConfirmPurchase(context.Context, int64, domain.NormalizedPurchase) (*domain.SessionResult, error) {
	return s.result()
}

func (s *stubBackend) Restore(context.Context, int64, []domain.NormalizedPurchase) (*domain.SessionResult, error) {
	return s.result()
}

func (s *stubBackend) EligibilityForIDs(context.Context, []string, int64) (map[string]domain.Eligibility, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return map[string]domain.Eligibility{"pro": {Status: domain.EligibilityEligible}}, nil
}

func TestBreakerClient_PassesThrough(t *testing.T) {
	stub := &stubBackend{}
	b := NewBreakerClient(stub, DefaultBreakerConfig(), nil, nil)
	ctx := context.Background()

	result, err := b.InitSession(ctx, 1, "")
	require.NoError(t, err)
	assert.Equal(t, "u1", result.UID)

	_, err = b.InitSessionWithPurchases(ctx, 1, "", nil)
	require.NoError(t, err)
	_, err = b.ConfirmPurchase(ctx, 1, domain.NormalizedPurchase{})
	require.NoError(t, err)
	_, err = b.Restore(ctx, 1, nil)
	require.NoError(t, err)

	elig, err := b.EligibilityForIDs(ctx, []string{"com.app.pro"}, 1)
	require.NoError(t, err)
	assert.Equal(t, domain.EligibilityEligible, elig["pro"].Status)

	assert.Equal(t, 5, stub.calls)
	assert.Equal(t, "closed", b.State())
}

func TestBreakerClient_OpensOnTransportFailures(t *testing.T) {
	stub := &stubBackend{err: domain.NewError(domain.CodeTransportFailed, errors.New("connection refused"))}
	metrics := observability.NewInMemoryMetrics()
	b := NewBreakerClient(stub, BreakerConfig{FailureThreshold: 3, Timeout: time.Hour}, nil, metrics)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := b.InitSession(ctx, 1, "")
		assert.ErrorIs(t, err, domain.ErrTransportFailed)
	}
	assert.Equal(t, "open", b.State())
	assert.Equal(t, int64(1), metrics.GetCounter(observability.MetricBreakerState, observability.T("state", "open")))
	assert.Equal(t, 1.0, metrics.GetGauge(observability.MetricBreakerOpen))

	_, err := b.ConfirmPurchase(ctx, 1, domain.NormalizedPurchase{})
	assert.ErrorIs(t, err, domain.ErrTransportFailed, "open breaker reads as a transport failure")
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.Equal(t, 3, stub.calls, "open breaker does not reach the backend")

	_, err = b.EligibilityForIDs(ctx, nil, 1)
	assert.ErrorIs(t, err, ErrCircuitOpen)
}

func TestBreakerClient_RejectionsDoNotTrip(t *testing.T) {
	stub := &stubBackend{err: &APIError{Status: 422, Message: "invalid purchase token"}}
	b := NewBreakerClient(stub, BreakerConfig{FailureThreshold: 2}, nil, nil)

	for i := 0; i < 5; i++ {
		_, err := b.ConfirmPurchase(context.Background(), 1, domain.NormalizedPurchase{})
		var apiErr *APIError
		assert.True(t, errors.As(err, &apiErr))
	}
	assert.Equal(t, "closed", b.State())
	assert.Equal(t, 5, stub.calls)
}
