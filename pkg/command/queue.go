package command

import (
	"context"
	"sync"
)

// DefaultMaxPerController caps queued inputs per controller so one runaway
// client cannot flood the shared queue.
const DefaultMaxPerController = 100

// Queue is the shared FIFO of pending ActionInputs. Producers (transports,
// scheduled callbacks) and consumers (workers) use it concurrently.
type Queue struct {
	mu               sync.Mutex
	items            []*ActionInput
	maxPerController int
	// notify holds at most one wake-up token.
	notify chan struct{}
}

// NewQueue creates a queue. maxPerController <= 0 disables the cap.
func NewQueue(maxPerController int) *Queue {
	return &Queue{
		maxPerController: maxPerController,
		notify:           make(chan struct{}, 1),
	}
}

// Enqueue appends in. It reports false when in was dropped because its
// controller already has too many queued inputs.
func (q *Queue) Enqueue(in *ActionInput) bool {
	if in == nil {
		return false
	}
	q.mu.Lock()
	if q.maxPerController > 0 && in.Controller != nil {
		count := 0
		for _, e := range q.items {
			if e.Controller == in.Controller {
				count++
			}
		}
		if count >= q.maxPerController {
			q.mu.Unlock()
			return false
		}
	}
	q.items = append(q.items, in)
	q.mu.Unlock()
	q.signal()
	return true
}

// Dequeue pops the front entry; ok is false when the queue is empty.
func (q *Queue) Dequeue() (in *ActionInput, ok bool) {
	q.mu.Lock()
	if len(q.items) == 0 {
		q.mu.Unlock()
		return nil, false
	}
	in = q.items[0]
	q.items[0] = nil
	q.items = q.items[1:]
	more := len(q.items) > 0
	q.mu.Unlock()
	if more {
		// Pass the wake-up on to another waiting worker.
		q.signal()
	}
	return in, true
}

// Wait blocks until an entry is available or ctx is done.
func (q *Queue) Wait(ctx context.Context) (*ActionInput, error) {
	for {
		if in, ok := q.Dequeue(); ok {
			return in, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-q.notify:
		}
	}
}

func (q *Queue) signal() {
	select {
	case q.notify <- struct{}{}:
	default:
	}
}

func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Drain removes every queued entry from c and returns how many were
// removed.
func (q *Queue) Drain(c Controller) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	kept := q.items[:0]
	removed := 0
	for _, e := range q.items {
		if e.Controller == c {
			removed++
			continue
		}
		kept = append(kept, e)
	}
	for i := len(kept); i < len(q.items); i++ {
		q.items[i] = nil
	}
	q.items = kept
	return removed
}

// Peek returns up to n entries from the front without removing them.
func (q *Queue) Peek(n int) []*ActionInput {
	q.mu.Lock()
	defer q.mu.Unlock()
	if n > len(q.items) {
		n = len(q.items)
	}
	out := make([]*ActionInput, n)
	copy(out, q.items[:n])
	return out
}
