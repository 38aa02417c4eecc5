package timing

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestSystem() (*System, *fakeClock) {
	clock := &fakeClock{now: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)}
	return New(WithClock(clock.Now)), clock
}

func TestScheduleEventRejectsMisuse(t *testing.T) {
	s, _ := newTestSystem()
	assert.ErrorIs(t, s.ScheduleEvent(nil), ErrNilEvent)
	assert.ErrorIs(t, s.ScheduleEvent(&TimeEvent{EndTime: time.Now()}), ErrNilCallback)
	_, err := s.After(time.Second, nil)
	assert.ErrorIs(t, err, ErrNilCallback)
	assert.Zero(t, s.Pending())
}

func TestEarlierExpirationFiresFirst(t *testing.T) {
	s, clock := newTestSystem()
	var order []string
	_, err := s.After(100*time.Millisecond, func() { order = append(order, "T+100") })
	require.NoError(t, err)
	_, err = s.After(50*time.Millisecond, func() { order = append(order, "T+50") })
	require.NoError(t, err)

	clock.Advance(200 * time.Millisecond)
	assert.Equal(t, 2, s.Sweep(clock.Now()))
	assert.Equal(t, []string{"T+50", "T+100"}, order)
}

func TestSweepStopsAtFirstFutureEntry(t *testing.T) {
	s, clock := newTestSystem()
	fired := 0
	s.After(10*time.Millisecond, func() { fired++ })
	s.After(time.Hour, func() { fired++ })

	clock.Advance(time.Second)
	assert.Equal(t, 1, s.Sweep(clock.Now()))
	assert.Equal(t, 1, fired)
	assert.Equal(t, 1, s.Pending())
}

func TestSweepInvokesInNonDecreasingOrder(t *testing.T) {
	s, clock := newTestSystem()
	base := clock.Now()
	var fired []time.Time
	offsets := []int{70, 10, 90, 10, 40, 0, 55, 20, 90, 5}
	for _, ms := range offsets {
		at := base.Add(time.Duration(ms) * time.Millisecond)
		s.Schedule(at, func() { fired = append(fired, at) })
	}

	s.Sweep(base.Add(time.Second))
	require.Len(t, fired, len(offsets))
	for i := 1; i < len(fired); i++ {
		assert.False(t, fired[i].Before(fired[i-1]), "callback %d ran out of order", i)
	}
}

func TestCancelledEventNeverRuns(t *testing.T) {
	s, clock := newTestSystem()
	ran := false
	ev, err := s.After(10*time.Millisecond, func() { ran = true })
	require.NoError(t, err)
	ev.Cancel()
	ev.Cancel()
	assert.True(t, ev.Cancelled())
	assert.Equal(t, 1, s.Pending(), "cancellation is lazy")

	clock.Advance(time.Second)
	assert.Zero(t, s.Sweep(clock.Now()))
	assert.False(t, ran)
	assert.Zero(t, s.Pending())
}

func TestCallbackMaySchedule(t *testing.T) {
	s, clock := newTestSystem()
	second := false
	s.After(0, func() {
		s.After(0, func() { second = true })
	})
	s.Sweep(clock.Now())
	assert.True(t, second, "an entry due now and added during the sweep runs in the same sweep")
}

func TestPanickingCallbackIsContained(t *testing.T) {
	s, clock := newTestSystem()
	after := false
	s.After(time.Millisecond, func() { panic("bad effect") })
	s.After(2*time.Millisecond, func() { after = true })

	clock.Advance(time.Second)
	assert.NotPanics(t, func() { s.Sweep(clock.Now()) })
	assert.True(t, after)
}

func TestObserver(t *testing.T) {
	var gotFired, gotPending int
	s := New(WithObserver(func(fired, pending int) { gotFired, gotPending = fired, pending }))
	s.Schedule(time.Now().Add(-time.Second), func() {})
	s.Schedule(time.Now().Add(time.Hour), func() {})
	s.Sweep(time.Now())
	assert.Equal(t, 1, gotFired)
	assert.Equal(t, 1, gotPending)
}

func TestHeartbeatRunsDueCallbacks(t *testing.T) {
	s := New(WithInterval(5 * time.Millisecond))
	done := make(chan struct{})
	_, err := s.After(10*time.Millisecond, func() { close(done) })
	require.NoError(t, err)

	s.Start(context.Background())
	s.Start(context.Background())
	defer s.Stop()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("heartbeat never fired the callback")
	}
}

func TestStopWithoutStart(t *testing.T) {
	s := New()
	assert.NotPanics(t, s.Stop)
}
