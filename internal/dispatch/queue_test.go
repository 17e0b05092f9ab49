package dispatch

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventQueue_FIFO(t *testing.T) {
	q := newEventQueue()
	for _, name := range []string{"a", "b", "c"} {
		require.True(t, q.enqueue(Event{Name: name}))
	}

	for _, want := range []string{"a", "b", "c"} {
		got, ok := q.tryDequeue()
		require.True(t, ok)
		assert.Equal(t, want, got.Name)
	}
	_, ok := q.tryDequeue()
	assert.False(t, ok)
}

func TestEventQueue_ClosedRejectsEnqueue(t *testing.T) {
	q := newEventQueue()
	q.enqueue(Event{Name: "kept"})
	q.close()
	q.close()

	assert.False(t, q.enqueue(Event{Name: "late"}))
	assert.Equal(t, 1, q.len(), "queued events survive close")

	select {
	case <-q.wait():
	default:
		t.Fatal("wait channel must fire after close")
	}
}

func TestEventQueue_SignalCoalesces(t *testing.T) {
	q := newEventQueue()
	q.enqueue(Event{Name: "a"})
	q.enqueue(Event{Name: "b"})

	<-q.wait()
	select {
	case <-q.wait():
		t.Fatal("two enqueues should leave one signal")
	default:
	}
	assert.Equal(t, 2, q.len())
}

func TestEventQueue_ConcurrentEnqueue(t *testing.T) {
	q := newEventQueue()
	var wg sync.WaitGroup
	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 100 {
				q.enqueue(Event{Name: "x"})
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1000, q.len())
}

func TestClock(t *testing.T) {
	c := NewClock()
	assert.Equal(t, int64(1), c.Next())
	assert.Equal(t, int64(2), c.Next())
	assert.Equal(t, int64(2), c.Current())

	resumed := NewClockAt(41)
	assert.Equal(t, int64(42), resumed.Next())
}
