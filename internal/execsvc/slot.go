// Package execsvc implements the execution supervisor: launching scripts,
// demultiplexing their output, and serving the blocking long-poll
// subscriptions transport handlers consume.
package execsvc

import (
	"context"
	"sync"
)

// Slot is a single-value observable cell supporting "wait until the value
// differs from my witness, or the owning execution has exited". Publication
// is expected to be single-writer; AwaitChange may be called concurrently by
// many readers.
type Slot[T any] struct {
	mu        sync.Mutex
	cond      *sync.Cond
	val       T
	published bool
	exited    bool
	equal     func(a, b T) bool
}

// NewSlot builds a Slot with the given initial value and equality function.
func NewSlot[T any](initial T, equal func(a, b T) bool) *Slot[T] {
	s := &Slot[T]{val: initial, equal: equal}
	s.cond = sync.NewCond(&s.mu)
	return s
}

// Current returns an immediate snapshot of the slot's value.
func (s *Slot[T]) Current() T {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.val
}

// Publish sets a new value and wakes every waiter whose witness no longer
// matches. The update is visible to Current before any waiter is released.
func (s *Slot[T]) Publish(v T) {
	s.mu.Lock()
	s.val = v
	s.published = true
	s.mu.Unlock()
	s.cond.Broadcast()
}

// SignalExit marks the slot's owning execution as exited, releasing every
// waiter regardless of witness. Idempotent.
func (s *Slot[T]) SignalExit() {
	s.mu.Lock()
	s.exited = true
	s.mu.Unlock()
	s.cond.Broadcast()
}

// AwaitChange blocks until the slot's value differs from witness or the
// owning execution exits, then returns the current value. A slot that has
// never been published to always blocks (regardless of witness) until its
// first publication or exit, since there is nothing meaningful yet to
// compare the witness against. It returns early with ctx.Err() if ctx is
// cancelled first.
func (s *Slot[T]) AwaitChange(ctx context.Context, witness T) (T, error) {
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			// Taking the lock here forces this broadcast to be ordered
			// after the waiter's check-then-Wait sequence below: it can
			// only proceed once the waiter either hasn't locked yet (so
			// it will observe ctx.Err() itself) or is already parked
			// inside cond.Wait (which releases the lock atomically), so
			// the wakeup is never sent before anyone is listening for it.
			s.mu.Lock()
			s.cond.Broadcast()
			s.mu.Unlock()
		case <-done:
		}
	}()

	s.mu.Lock()
	defer s.mu.Unlock()
	for (!s.published || s.equal(s.val, witness)) && !s.exited {
		if err := ctx.Err(); err != nil {
			return s.val, err
		}
		s.cond.Wait()
	}
	if err := ctx.Err(); err != nil {
		return s.val, err
	}
	return s.val, nil
}

// Once is a one-shot observable: Set may be called at most once (later
// calls are ignored), and Await blocks until it has been called.
type Once[T any] struct {
	mu   sync.Mutex
	done bool
	val  T
	ch   chan struct{}
}

// NewOnce builds an unset Once.
func NewOnce[T any]() *Once[T] {
	return &Once[T]{ch: make(chan struct{})}
}

// Set records v as the slot's permanent value. Subsequent calls are no-ops.
func (o *Once[T]) Set(v T) {
	o.mu.Lock()
	if o.done {
		o.mu.Unlock()
		return
	}
	o.val = v
	o.done = true
	o.mu.Unlock()
	close(o.ch)
}

// Await blocks until Set has been called, then returns the recorded value.
func (o *Once[T]) Await(ctx context.Context) (T, error) {
	select {
	case <-o.ch:
		o.mu.Lock()
		v := o.val
		o.mu.Unlock()
		return v, nil
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// TryGet returns the recorded value and true if Set has already been
// called, without blocking.
func (o *Once[T]) TryGet() (T, bool) {
	select {
	case <-o.ch:
		o.mu.Lock()
		v := o.val
		o.mu.Unlock()
		return v, true
	default:
		var zero T
		return zero, false
	}
}
