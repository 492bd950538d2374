package engine

import "time"

// Operation is the handle to a concurrently running fetch or
// profile-acquisition batch. The goroutine executing the batch calls
// Finish exactly once; the loop joins the handle either opportunistically
// (TryJoin) or blocking (Join) at the profile gate and during drain.
type Operation struct {
	enqueuedAt time.Time
	done       chan struct{}
	err        error
}

// NewOperation creates a handle stamped with the dispatch time.
func NewOperation(enqueuedAt time.Time) *Operation {
	return &Operation{
		enqueuedAt: enqueuedAt,
		done:       make(chan struct{}),
	}
}

// EnqueuedAt returns the dispatch timestamp.
func (o *Operation) EnqueuedAt() time.Time {
	return o.enqueuedAt
}

// Finish marks the operation complete. Must be called exactly once,
// after all output has been written to the shared sink.
func (o *Operation) Finish(err error) {
	o.err = err
	close(o.done)
}

// Join blocks until the operation completes and returns its error.
// The wait is unbounded; cancellation of in-flight work is never forced.
func (o *Operation) Join() error {
	<-o.done
	return o.err
}

// TryJoin reports whether the operation has completed without blocking.
func (o *Operation) TryJoin() (bool, error) {
	select {
	case <-o.done:
		return true, o.err
	default:
		return false, nil
	}
}
