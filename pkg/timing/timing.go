// Package timing drives deferred callbacks from one shared heartbeat.
//
// Every temporary effect, delayed command step or pagination timeout is a
// TimeEvent in a single min-heap keyed by expiration time. The heartbeat
// pops due entries and runs their callbacks on its own goroutine, so the
// number of timers does not grow with the number of outstanding effects.
// Resolution is coarse: a callback may run up to one interval late.
package timing

import (
	"container/heap"
	"context"
	"errors"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
)

// DefaultInterval is the heartbeat period.
const DefaultInterval = 100 * time.Millisecond

var (
	ErrNilEvent    = errors.New("timing: nil time event")
	ErrNilCallback = errors.New("timing: time event has no callback")
)

// TimeEvent is one scheduled callback. Cancellation is lazy: a cancelled
// entry stays in the heap and is skipped when it comes due.
type TimeEvent struct {
	EndTime  time.Time
	Callback func()
	// Event is an optional payload, typically the sensory event the
	// callback will raise.
	Event any

	cancelled atomic.Bool
	index     int
}

// NewTimeEvent builds an entry that fires at end.
func NewTimeEvent(end time.Time, callback func()) *TimeEvent {
	return &TimeEvent{EndTime: end, Callback: callback}
}

// Cancel prevents the callback from running if it has not run yet.
func (e *TimeEvent) Cancel() { e.cancelled.Store(true) }

func (e *TimeEvent) Cancelled() bool { return e.cancelled.Load() }

// eventHeap implements heap.Interface ordered by EndTime.
type eventHeap []*TimeEvent

func (h eventHeap) Len() int { return len(h) }

func (h eventHeap) Less(i, j int) bool { return h[i].EndTime.Before(h[j].EndTime) }

func (h eventHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *eventHeap) Push(x any) {
	ev := x.(*TimeEvent)
	ev.index = len(*h)
	*h = append(*h, ev)
}

func (h *eventHeap) Pop() any {
	old := *h
	n := len(old)
	ev := old[n-1]
	old[n-1] = nil
	ev.index = -1
	*h = old[:n-1]
	return ev
}

// Option configures a System.
type Option func(*System)

// WithInterval sets the heartbeat period.
func WithInterval(d time.Duration) Option {
	return func(s *System) {
		if d > 0 {
			s.interval = d
		}
	}
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *System) { s.now = now }
}

// WithLogger sets the logger used for callback failures.
func WithLogger(l logrus.FieldLogger) Option {
	return func(s *System) { s.log = l.WithField("subsystem", "timing") }
}

// WithObserver registers a hook called after each sweep with the number of
// callbacks run and the number still pending.
func WithObserver(fn func(fired, pending int)) Option {
	return func(s *System) { s.observe = fn }
}

// System is the shared scheduler.
type System struct {
	interval time.Duration
	now      func() time.Time
	log      logrus.FieldLogger
	observe  func(fired, pending int)

	mu     sync.Mutex
	events eventHeap

	runMu  sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// New creates a stopped System.
func New(opts ...Option) *System {
	s := &System{
		interval: DefaultInterval,
		now:      time.Now,
		log:      logrus.WithField("subsystem", "timing"),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Now returns the System's notion of the current time.
func (s *System) Now() time.Time { return s.now() }

// ScheduleEvent inserts ev into the heap.
func (s *System) ScheduleEvent(ev *TimeEvent) error {
	if ev == nil {
		return ErrNilEvent
	}
	if ev.Callback == nil {
		return ErrNilCallback
	}
	s.mu.Lock()
	heap.Push(&s.events, ev)
	s.mu.Unlock()
	return nil
}

// Schedule runs callback at the given time.
func (s *System) Schedule(at time.Time, callback func()) (*TimeEvent, error) {
	ev := NewTimeEvent(at, callback)
	if err := s.ScheduleEvent(ev); err != nil {
		return nil, err
	}
	return ev, nil
}

// After runs callback once d has elapsed.
func (s *System) After(d time.Duration, callback func()) (*TimeEvent, error) {
	return s.Schedule(s.now().Add(d), callback)
}

// Pending returns the number of entries in the heap, cancelled ones
// included.
func (s *System) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.events)
}

// Sweep runs every entry due at or before now, earliest first, and returns
// how many callbacks ran. It stops at the first entry still in the future.
func (s *System) Sweep(now time.Time) int {
	fired := 0
	for {
		s.mu.Lock()
		if len(s.events) == 0 || s.events[0].EndTime.After(now) {
			s.mu.Unlock()
			break
		}
		ev := heap.Pop(&s.events).(*TimeEvent)
		s.mu.Unlock()

		if ev.Cancelled() {
			continue
		}
		s.run(ev)
		fired++
	}
	if s.observe != nil {
		s.observe(fired, s.Pending())
	}
	return fired
}

func (s *System) run(ev *TimeEvent) {
	defer func() {
		if r := recover(); r != nil {
			s.log.WithFields(logrus.Fields{
				"end_time": ev.EndTime,
				"panic":    r,
			}).Errorf("scheduled callback panicked\n%s", debug.Stack())
		}
	}()
	ev.Callback()
}

// Start launches the heartbeat. It returns immediately; the heartbeat stops
// when ctx is done or Stop is called. Starting twice is a no-op.
func (s *System) Start(ctx context.Context) {
	s.runMu.Lock()
	defer s.runMu.Unlock()
	if s.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})

	go func(done chan struct{}) {
		defer close(done)
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.Sweep(s.now())
			}
		}
	}(s.done)
	s.log.WithField("interval", s.interval).Info("heartbeat started")
}

// Stop halts the heartbeat and waits for the current sweep to finish.
// Pending entries are kept.
func (s *System) Stop() {
	s.runMu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel, s.done = nil, nil
	s.runMu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
	s.log.Info("heartbeat stopped")
}
