package application

import (
	"context"
	"sync"

	"github.com/felixgeelhaar/entitlekit/internal/purchases/domain"
)

// Future is a single-assignment result that can be awaited. Its Complete
// method is usable as a Callback.
type Future[T any] struct {
	once sync.Once
	done chan struct{}
	res  domain.Result[T]
}

// NewFuture creates an unresolved future.
func NewFuture[T any]() *Future[T] {
	return &Future[T]{done: make(chan struct{})}
}

// Complete resolves the future. Only the first call has an effect.
func (f *Future[T]) Complete(r domain.Result[T]) {
	f.once.Do(func() {
		f.res = r
		close(f.done)
	})
}

// Done is closed once the future is resolved.
func (f *Future[T]) Done() <-chan struct{} {
	return f.done
}

// Resolved reports whether Complete has been called.
func (f *Future[T]) Resolved() bool {
	select {
	case <-f.done:
		return true
	default:
		return false
	}
}

// Await blocks until the future resolves or ctx is done.
func (f *Future[T]) Await(ctx context.Context) (T, error) {
	select {
	case <-f.done:
		return f.res.Value, f.res.Err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// LaunchAsync is Launch returning a future.
func (o *Orchestrator) LaunchAsync() *Future[*domain.SessionResult] {
	f := NewFuture[*domain.SessionResult]()
	o.Launch(f.Complete)
	return f
}

// CheckPermissionsAsync is CheckPermissions returning a future.
func (o *Orchestrator) CheckPermissionsAsync() *Future[map[string]domain.Permission] {
	f := NewFuture[map[string]domain.Permission]()
	o.CheckPermissions(f.Complete)
	return f
}

// LoadProductsAsync is LoadProducts returning a future.
func (o *Orchestrator) LoadProductsAsync() *Future[map[string]domain.Product] {
	f := NewFuture[map[string]domain.Product]()
	o.LoadProducts(f.Complete)
	return f
}

// OfferingsAsync is Offerings returning a future.
func (o *Orchestrator) OfferingsAsync() *Future[*domain.Offerings] {
	f := NewFuture[*domain.Offerings]()
	o.Offerings(f.Complete)
	return f
}

// ExperimentsAsync is Experiments returning a future.
func (o *Orchestrator) ExperimentsAsync() *Future[map[string]domain.Experiment] {
	f := NewFuture[map[string]domain.Experiment]()
	o.Experiments(f.Complete)
	return f
}

// EligibilityAsync is CheckTrialIntroEligibility returning a future.
func (o *Orchestrator) EligibilityAsync(productIDs []string) *Future[map[string]domain.Eligibility] {
	f := NewFuture[map[string]domain.Eligibility]()
	o.CheckTrialIntroEligibility(productIDs, f.Complete)
	return f
}

// PurchaseAsync is PurchaseProduct returning a future. A duplicate purchase
// yields a future that never resolves.
func (o *Orchestrator) PurchaseAsync(productID string, params PurchaseParams) *Future[map[string]domain.Permission] {
	f := NewFuture[map[string]domain.Permission]()
	o.PurchaseProduct(productID, params, f.Complete)
	return f
}

// RestoreAsync is Restore returning a future.
func (o *Orchestrator) RestoreAsync() *Future[map[string]domain.Permission] {
	f := NewFuture[map[string]domain.Permission]()
	o.Restore(f.Complete)
	return f
}
