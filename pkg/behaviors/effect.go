package behaviors

import (
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/crystal-mush/thingmud/pkg/timing"
	"github.com/crystal-mush/thingmud/pkg/world"
)

// Effect is a temporary condition. It removes itself from its owner once
// its duration has passed. An effect may block one category of requests
// originated by its owner while it lasts, e.g. a root that prevents
// movement.
type Effect struct {
	world.BehaviorBase

	Name     string
	Duration time.Duration
	// Blocks, when set, cancels the owner's own requests in this category.
	Blocks      *world.Category
	BlockReason string
	// ExpireMessage is written to the owner's controller on expiry.
	ExpireMessage string

	sched Scheduler

	mu       sync.Mutex
	expiry   *timing.TimeEvent
	bound    []*timing.TimeEvent
	detached bool
}

func NewEffect(name string, d time.Duration, sched Scheduler) *Effect {
	return &Effect{Name: name, Duration: d, sched: sched}
}

// Blocking sets the category this effect blocks and returns e.
func (e *Effect) Blocking(c world.Category, reason string) *Effect {
	e.Blocks = &c
	e.BlockReason = reason
	return e
}

func (e *Effect) OnAttach(owner *world.Thing) {
	e.mu.Lock()
	e.detached = false
	e.mu.Unlock()
	if e.Blocks != nil {
		e.Track(owner.Eventing.HandleRequest(*e.Blocks, func(receiver *world.Thing, r world.Request) {
			if r.Origin() == receiver {
				r.Cancel(e.BlockReason)
			}
		}))
	}
	if e.sched == nil || e.Duration <= 0 {
		return
	}
	ev, err := e.sched.After(e.Duration, func() { e.expire(owner) })
	if err != nil {
		logrus.WithError(err).WithField("effect", e.Name).Warn("effect expiry not scheduled")
		return
	}
	e.mu.Lock()
	e.expiry = ev
	e.mu.Unlock()
}

// Bind ties a scheduled follow-up to the effect: it is cancelled when the
// effect ends, or at once if the effect has already ended.
func (e *Effect) Bind(ev *timing.TimeEvent) {
	if ev == nil {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.detached {
		ev.Cancel()
		return
	}
	e.bound = append(e.bound, ev)
}

func (e *Effect) OnDetach(*world.Thing) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.detached = true
	if e.expiry != nil {
		e.expiry.Cancel()
		e.expiry = nil
	}
	for _, ev := range e.bound {
		ev.Cancel()
	}
	e.bound = nil
}

func (e *Effect) expire(owner *world.Thing) {
	if owner.Behaviors.Remove(e) {
		tell(owner, e.ExpireMessage)
	}
}

// FindEffect returns the effect called name on t, if any.
func FindEffect(t *world.Thing, name string) *Effect {
	for _, e := range world.FindAll[*Effect](t) {
		if strings.EqualFold(e.Name, name) {
			return e
		}
	}
	return nil
}
