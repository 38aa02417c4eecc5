package behaviors

import (
	"github.com/crystal-mush/thingmud/pkg/world"
)

// Mobile marks a Thing that can move itself between places.
type Mobile struct {
	world.BehaviorBase
}

func NewMobile() *Mobile { return &Mobile{} }

func (m *Mobile) Kind() string           { return KindMobile }
func (m *Mobile) Save() ([]byte, error)  { return nil, nil }
func (m *Mobile) Load(data []byte) error { return nil }

// Move carries mover into to. The move is proposed to everything around
// the mover and then to the destination; any of them may cancel it. It
// reports whether the move happened.
func Move(mover, to *world.Thing) bool {
	if mover == nil || to == nil || mover == to {
		return false
	}
	from := mover.Parent()
	if from == to {
		return false
	}

	req := world.NewMovementRequest(mover, from, to, nil)
	if from != nil && !mover.Eventing.Request(req, world.ParentsDown) {
		return false
	}
	if !to.Eventing.Request(req, world.SelfOnly) {
		return false
	}

	if from != nil {
		leave := world.NewSensoryMessage(world.SenseSight, 10, world.ContextualString{
			ToOriginator: "You leave {{.GoingFrom}}.",
			ToOthers:     "{{.ActiveThing}} leaves.",
		})
		mover.Eventing.Broadcast(world.NewMovementEvent(mover, from, to, leave), world.ParentsDown)
	}
	if !to.AddChild(mover) {
		return false
	}
	arrive := world.NewSensoryMessage(world.SenseSight, 10, world.ContextualString{
		ToOriginator: "You arrive in {{.GoingTo}}.",
		ToOthers:     "{{.ActiveThing}} arrives.",
	})
	mover.Eventing.Broadcast(world.NewMovementEvent(mover, from, to, arrive), world.ParentsDown)
	return true
}
