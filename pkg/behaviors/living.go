package behaviors

import (
	"sync"

	"github.com/crystal-mush/thingmud/pkg/world"
)

type LifeState int

const (
	Awake LifeState = iota
	Unconscious
	Dead
)

func (s LifeState) String() string {
	switch s {
	case Awake:
		return "awake"
	case Unconscious:
		return "unconscious"
	case Dead:
		return "dead"
	}
	return "unknown"
}

// Living tracks whether a Thing is awake, unconscious or dead. It watches
// its owner's health: at zero the owner dies.
type Living struct {
	world.BehaviorBase

	mu    sync.RWMutex
	state LifeState
}

func NewLiving() *Living { return &Living{} }

func (l *Living) State() LifeState {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.state
}

func (l *Living) SetState(s LifeState) {
	l.mu.Lock()
	l.state = s
	l.mu.Unlock()
}

func (l *Living) IsAlive() bool     { return l.State() != Dead }
func (l *Living) IsConscious() bool { return l.State() == Awake }

func (l *Living) OnAttach(owner *world.Thing) {
	l.Track(owner.Eventing.HandleEvent(world.CategoryMisc, l.onStatChange))
}

func (l *Living) onStatChange(receiver *world.Thing, ev world.Event) {
	sc, ok := ev.(*world.StatChangeEvent)
	if !ok || ev.Origin() != receiver || sc.Stat != StatHealth {
		return
	}
	switch {
	case sc.NewValue <= 0 && l.IsAlive():
		l.SetState(Dead)
		tell(receiver, "You have died.")
		receiver.Eventing.Broadcast(world.NewMiscEvent(receiver, "death",
			world.NewSensoryMessage(world.SenseSight, 10, world.ContextualString{
				ToOthers: "{{.ActiveThing}} collapses, dead.",
			})), world.ParentsDown)
	case sc.NewValue > 0 && l.State() == Dead:
		l.SetState(Awake)
		tell(receiver, "You return to life.")
	}
}

func (l *Living) Kind() string { return KindLiving }

func (l *Living) Save() ([]byte, error) {
	return encode(KindLiving, int(l.State()))
}

func (l *Living) Load(data []byte) error {
	var s int
	if err := decode(KindLiving, data, &s); err != nil {
		return err
	}
	l.SetState(LifeState(s))
	return nil
}
