package application

// batch is an ordered collection of callers waiting for a session outcome.
// It is always accessed under the orchestrator lock.
type batch[T any] struct {
	callbacks []Callback[T]
}

func (b *batch[T]) add(cb Callback[T]) {
	if cb == nil {
		return
	}
	b.callbacks = append(b.callbacks, cb)
}

// prepend puts cbs back in front of the queue, keeping their order.
func (b *batch[T]) prepend(cbs []Callback[T]) {
	if len(cbs) == 0 {
		return
	}
	merged := make([]Callback[T], 0, len(cbs)+len(b.callbacks))
	merged = append(merged, cbs...)
	b.callbacks = append(merged, b.callbacks...)
}

// drain removes and returns every queued callback in registration order.
func (b *batch[T]) drain() []Callback[T] {
	cbs := b.callbacks
	b.callbacks = nil
	return cbs
}

func (b *batch[T]) len() int {
	return len(b.callbacks)
}
