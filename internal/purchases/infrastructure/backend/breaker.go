package backend

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/felixgeelhaar/entitlekit/internal/purchases/domain"
	"github.com/felixgeelhaar/entitlekit/pkg/observability"
	"github.com/sony/gobreaker/v2"
)

// ErrCircuitOpen is the cause attached when the breaker short-circuits a call.
var ErrCircuitOpen = errors.New("backend circuit breaker is open")

// BreakerConfig configures the circuit breaker.
type BreakerConfig struct {
	// MaxRequests is the maximum number of requests allowed in half-open state.
	MaxRequests uint32

	// Interval is the cyclic period of the closed state.
	Interval time.Duration

	// Timeout is the period of the open state.
	Timeout time.Duration

	// FailureThreshold trips the breaker after that many consecutive
	// transport failures.
	FailureThreshold uint32
}

// DefaultBreakerConfig returns the default breaker configuration.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		MaxRequests:      1,
		Interval:         60 * time.Second,
		Timeout:          30 * time.Second,
		FailureThreshold: 5,
	}
}

// BreakerClient decorates a domain.Backend with a circuit breaker. Only
// TransportFailed errors count as failures; a backend rejection means the
// service is up.
type BreakerClient struct {
	next    domain.Backend
	breaker *gobreaker.CircuitBreaker[any]
	metrics observability.Metrics
}

// NewBreakerClient wraps next.
func NewBreakerClient(next domain.Backend, cfg BreakerConfig, logger *slog.Logger, metrics observability.Metrics) *BreakerClient {
	def := DefaultBreakerConfig()
	if cfg.MaxRequests == 0 {
		cfg.MaxRequests = def.MaxRequests
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.FailureThreshold == 0 {
		cfg.FailureThreshold = def.FailureThreshold
	}
	if logger == nil {
		logger = slog.Default()
	}
	if metrics == nil {
		metrics = observability.NoopMetrics{}
	}

	settings := gobreaker.Settings{
		Name:        "backend",
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.FailureThreshold
		},
		IsSuccessful: func(err error) bool {
			return err == nil || !errors.Is(err, domain.ErrTransportFailed)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Info("circuit breaker state changed",
				"breaker", name,
				"from", from.String(),
				"to", to.String(),
			)
			metrics.Counter(observability.MetricBreakerState, 1, observability.T("state", to.String()))
			open := 0.0
			if to == gobreaker.StateOpen {
				open = 1
			}
			metrics.Gauge(observability.MetricBreakerOpen, open)
		},
	}

	return &BreakerClient{
		next:    next,
		breaker: gobreaker.NewCircuitBreaker[any](settings),
		metrics: metrics,
	}
}

// State returns the breaker state name: closed, half-open or open.
func (b *BreakerClient) State() string {
	return b.breaker.State().String()
}

func (b *BreakerClient) execute(fn func() (any, error)) (any, error) {
	result, err := b.breaker.Execute(fn)
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, domain.NewError(domain.CodeTransportFailed, ErrCircuitOpen)
	}
	return result, err
}

func (b *BreakerClient) session(fn func() (*domain.SessionResult, error)) (*domain.SessionResult, error) {
	result, err := b.execute(func() (any, error) {
		return fn()
	})
	if err != nil {
		return nil, err
	}
	return result.(*domain.SessionResult), nil
}

func (b *BreakerClient) InitSession(ctx context.Context, installDate int64, advertisingID string) (*domain.SessionResult, error) {
	return b.session(func() (*domain.SessionResult, error) {
		return b.next.InitSession(ctx, installDate, advertisingID)
	})
}

func (b *BreakerClient) InitSessionWithPurchases(ctx context.Context, installDate int64, advertisingID string, purchases []domain.NormalizedPurchase) (*domain.SessionResult, error) {
	return b.session(func() (*domain.SessionResult, error) {
		return b.next.InitSessionWithPurchases(ctx, installDate, advertisingID, purchases)
	})
}

func (b *BreakerClient) ConfirmPurchase(ctx context.Context, installDate int64, purchase domain.NormalizedPurchase) (*domain.SessionResult, error) {
	return b.session(func() (*domain.SessionResult, error) {
		return b.next.ConfirmPurchase(ctx, installDate, purchase)
	})
}

func (b *BreakerClient) Restore(ctx context.Context, installDate int64, history []domain.NormalizedPurchase) (*domain.SessionResult, error) {
	return b.session(func() (*domain.SessionResult, error) {
		return b.next.Restore(ctx, installDate, history)
	})
}

func (b *BreakerClient) EligibilityForIDs(ctx context.Context, storeIDs []string, installDate int64) (map[string]domain.Eligibility, error) {
	result, err := b.execute(func() (any, error) {
		return b.next.EligibilityForIDs(ctx, storeIDs, installDate)
	})
	if err != nil {
		return nil, err
	}
	return result.(map[string]domain.Eligibility), nil
}

var _ domain.Backend = (*BreakerClient)(nil)
