package dispatch

import (
	"sync"

	"github.com/roach88/cogd/internal/metrics"
)

// eventQueue is an unbounded, thread-safe FIFO. Gateways enqueue from their
// own goroutines while Run dequeues.
//
// signal has a buffer of one so that bursts of enqueues coalesce into a
// single wake-up; Run drains with tryDequeue until empty before waiting
// again.
type eventQueue struct {
	mu     sync.Mutex
	events []Event
	closed bool
	signal chan struct{}
}

func newEventQueue() *eventQueue {
	return &eventQueue{
		events: make([]Event, 0, 64),
		signal: make(chan struct{}, 1),
	}
}

// enqueue appends e. It returns false once the queue is closed.
func (q *eventQueue) enqueue(e Event) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}
	q.events = append(q.events, e)
	metrics.QueueDepth.Set(float64(len(q.events)))

	select {
	case q.signal <- struct{}{}:
	default:
	}
	return true
}

// tryDequeue pops the front event without blocking.
func (q *eventQueue) tryDequeue() (Event, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.events) == 0 {
		return Event{}, false
	}
	e := q.events[0]
	// Clear the slot so the payload can be collected.
	q.events[0] = Event{}
	if len(q.events) == 1 {
		q.events = q.events[:0]
	} else {
		q.events = q.events[1:]
	}
	metrics.QueueDepth.Set(float64(len(q.events)))
	return e, true
}

// wait returns a channel that fires when events may be available and is
// closed when the queue closes.
func (q *eventQueue) wait() <-chan struct{} {
	return q.signal
}

func (q *eventQueue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.events)
}

func (q *eventQueue) isClosed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed
}

// close stops further enqueues and wakes the waiter. Queued events remain
// and are still drained by Run.
func (q *eventQueue) close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}
	q.closed = true
	close(q.signal)
}
