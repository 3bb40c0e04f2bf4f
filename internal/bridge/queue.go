package bridge

import "sync"

// RequestQueue is a thread-safe FIFO of pending bridge requests. Any number
// of producers may Push concurrently; a single consumer (the bridge worker)
// Pops in submission order. After Close, Pop drains the remaining items and
// then reports exhaustion.
type RequestQueue struct {
	mu     sync.Mutex
	cond   *sync.Cond
	items  []*RequestEnvelope
	closed bool
}

// NewRequestQueue creates an empty queue.
func NewRequestQueue() *RequestQueue {
	q := &RequestQueue{}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// Push appends an envelope. It returns ErrBridgeClosed if the queue has been
// closed.
func (q *RequestQueue) Push(env *RequestEnvelope) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return ErrBridgeClosed
	}
	q.items = append(q.items, env)
	q.cond.Signal()
	return nil
}

// Pop blocks until an envelope is available and returns it. It returns
// ok=false only when the queue is closed and fully drained.
func (q *RequestQueue) Pop() (*RequestEnvelope, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for len(q.items) == 0 && !q.closed {
		q.cond.Wait()
	}
	if len(q.items) == 0 {
		return nil, false
	}
	env := q.items[0]
	q.items[0] = nil
	q.items = q.items[1:]
	return env, true
}

// Close stops accepting new envelopes. Items already queued remain poppable.
func (q *RequestQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
	q.cond.Broadcast()
}

// Len returns the number of queued envelopes.
func (q *RequestQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
