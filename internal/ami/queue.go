package ami

import (
	"context"
	"sync"
	"time"
)

// DefaultQueueSize bounds the inbound notification backlog.
const DefaultQueueSize = 20000

// Queue is a bounded FIFO of inbound notifications between the reader and
// the consumer loop. When full, Push evicts the oldest undelivered message.
type Queue struct {
	mu      sync.Mutex
	buf     []Message
	head    int
	size    int
	dropped uint64
	notify  chan struct{}
}

// NewQueue creates a queue holding at most capacity messages.
func NewQueue(capacity int) *Queue {
	if capacity <= 0 {
		capacity = DefaultQueueSize
	}
	return &Queue{
		buf:    make([]Message, capacity),
		notify: make(chan struct{}, 1),
	}
}

// Push appends msg and reports whether an older message was dropped to
// make room.
func (q *Queue) Push(msg Message) bool {
	q.mu.Lock()
	dropped := false
	if q.size == len(q.buf) {
		q.buf[q.head] = nil
		q.head = (q.head + 1) % len(q.buf)
		q.size--
		q.dropped++
		dropped = true
	}
	q.buf[(q.head+q.size)%len(q.buf)] = msg
	q.size++
	q.mu.Unlock()

	select {
	case q.notify <- struct{}{}:
	default:
	}
	return dropped
}

// Drain removes and returns up to max messages in arrival order. max <= 0
// drains everything.
func (q *Queue) Drain(max int) []Message {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := q.size
	if max > 0 && max < n {
		n = max
	}
	if n == 0 {
		return nil
	}
	out := make([]Message, n)
	for i := 0; i < n; i++ {
		out[i] = q.buf[q.head]
		q.buf[q.head] = nil
		q.head = (q.head + 1) % len(q.buf)
	}
	q.size -= n
	return out
}

// Wait blocks until the queue is non-empty, timeout elapses, or ctx is done.
// It reports whether messages are available.
func (q *Queue) Wait(ctx context.Context, timeout time.Duration) bool {
	if q.Len() > 0 {
		return true
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-q.notify:
	case <-timer.C:
	case <-ctx.Done():
	}
	return q.Len() > 0
}

// Len returns the number of queued messages.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.size
}

// Cap returns the queue bound.
func (q *Queue) Cap() int { return len(q.buf) }

// Dropped returns how many messages were evicted by overflow.
func (q *Queue) Dropped() uint64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.dropped
}
