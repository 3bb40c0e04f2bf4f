package bridge

import (
	"sync"
	"time"
)

// FutureState is the resolution state of a ResultFuture.
type FutureState int

const (
	// FuturePending means no result has been delivered yet.
	FuturePending FutureState = iota
	// FutureResolved means the future holds a successful result.
	FutureResolved
	// FutureFailed means the future holds an error.
	FutureFailed
)

// String returns the human-readable state name.
func (s FutureState) String() string {
	switch s {
	case FuturePending:
		return "pending"
	case FutureResolved:
		return "resolved"
	case FutureFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// ResultFuture is a write-once, read-many handle for a result that arrives
// later. Exactly one writer (the bridge worker) resolves it; any number of
// readers may wait on it or poll it. Once resolved or failed it never changes.
type ResultFuture struct {
	mu    sync.Mutex
	done  chan struct{}
	state FutureState
	value interface{}
	err   error
}

// NewResultFuture creates a pending future.
func NewResultFuture() *ResultFuture {
	return &ResultFuture{done: make(chan struct{})}
}

// resolvedFuture creates an already-completed future, used for cache hits.
func resolvedFuture(value interface{}) *ResultFuture {
	f := NewResultFuture()
	f.resolve(value)
	return f
}

// Await blocks until the future completes or the timeout elapses. A timeout
// returns ErrTimeout without cancelling the underlying work; the caller may
// retry the await later. A non-positive timeout waits indefinitely.
func (f *ResultFuture) Await(timeout time.Duration) (interface{}, error) {
	if timeout <= 0 {
		<-f.done
		return f.result()
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-f.done:
		return f.result()
	case <-timer.C:
		return nil, ErrTimeout
	}
}

// IsDone reports, without blocking, whether the future has completed.
func (f *ResultFuture) IsDone() bool {
	select {
	case <-f.done:
		return true
	default:
		return false
	}
}

// State returns the current resolution state.
func (f *ResultFuture) State() FutureState {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

// result returns the stored outcome. Only valid once done is closed.
func (f *ResultFuture) result() (interface{}, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.value, f.err
}

// resolve completes the future with a value. Resolving twice is a programming
// error and panics: correct handler code can never trigger it.
func (f *ResultFuture) resolve(value interface{}) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.state != FuturePending {
		panic("bridge: future resolved twice")
	}
	f.state = FutureResolved
	f.value = value
	close(f.done)
}

// fail completes the future with an error. Same write-once contract as
// resolve.
func (f *ResultFuture) fail(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.state != FuturePending {
		panic("bridge: future resolved twice")
	}
	f.state = FutureFailed
	f.err = err
	close(f.done)
}
