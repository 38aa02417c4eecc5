package behaviors

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/crystal-mush/thingmud/pkg/timing"
	"github.com/crystal-mush/thingmud/pkg/world"
)

// Balance tracks whether a Thing is steady on its feet. Knocking it off
// balance schedules its recovery on the shared time system.
type Balance struct {
	world.BehaviorBase
	sched Scheduler

	mu      sync.Mutex
	off     bool
	restore *timing.TimeEvent
}

func NewBalance(sched Scheduler) *Balance {
	return &Balance{sched: sched}
}

func (b *Balance) IsBalanced() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return !b.off
}

// Unbalance takes the owner off balance for d. A later call replaces the
// pending recovery.
func (b *Balance) Unbalance(d time.Duration) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.off = true
	if b.restore != nil {
		b.restore.Cancel()
		b.restore = nil
	}
	if b.sched == nil {
		return
	}
	var ev *timing.TimeEvent
	ev, err := b.sched.After(d, func() { b.recover(ev) })
	if err != nil {
		logrus.WithError(err).Warn("balance recovery not scheduled")
		return
	}
	b.restore = ev
}

// Restore puts the owner back on balance immediately.
func (b *Balance) Restore() {
	b.mu.Lock()
	if b.restore != nil {
		b.restore.Cancel()
		b.restore = nil
	}
	b.off = false
	b.mu.Unlock()
}

func (b *Balance) recover(ev *timing.TimeEvent) {
	b.mu.Lock()
	if b.restore != ev {
		b.mu.Unlock()
		return
	}
	b.restore = nil
	b.off = false
	b.mu.Unlock()
	tell(b.Owner(), "You regain your balance.")
}

func (b *Balance) OnDetach(*world.Thing) {
	b.Restore()
}
