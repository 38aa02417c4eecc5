package behaviors

import (
	"sync"

	"github.com/crystal-mush/thingmud/pkg/world"
)

// Senses gives a Thing perception. While attached it listens to every event
// category on its owner and renders perceivable messages to the owner's
// controller.
type Senses struct {
	world.BehaviorBase

	mu    sync.RWMutex
	types world.SensoryType
}

func NewSenses(types world.SensoryType) *Senses {
	return &Senses{types: types}
}

func (s *Senses) Types() world.SensoryType {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.types
}

func (s *Senses) SetTypes(types world.SensoryType) {
	s.mu.Lock()
	s.types = types
	s.mu.Unlock()
}

// CanPerceive reports whether msg reaches these senses.
func (s *Senses) CanPerceive(msg *world.SensoryMessage) bool {
	return msg != nil && msg.Type&s.Types() != 0
}

func (s *Senses) OnAttach(owner *world.Thing) {
	for _, c := range world.Categories() {
		s.Track(owner.Eventing.HandleEvent(c, s.perceive))
	}
}

func (s *Senses) perceive(receiver *world.Thing, ev world.Event) {
	msg := ev.Sensory()
	if !s.CanPerceive(msg) {
		return
	}
	tell(receiver, msg.Render(receiver))
}

func (s *Senses) Kind() string { return KindSenses }

func (s *Senses) Save() ([]byte, error) {
	return encode(KindSenses, int(s.Types()))
}

func (s *Senses) Load(data []byte) error {
	var types int
	if err := decode(KindSenses, data, &types); err != nil {
		return err
	}
	s.SetTypes(world.SensoryType(types))
	return nil
}
