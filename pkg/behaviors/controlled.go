package behaviors

import (
	"sync"

	"github.com/crystal-mush/thingmud/pkg/world"
)

// UserControlled links a Thing to the session or AI driving it. Controlled
// things outlive the destruction of their parent; a collapsing room drops
// its occupants instead of taking them with it.
type UserControlled struct {
	world.BehaviorBase

	mu   sync.RWMutex
	ctrl world.Controller
}

func NewUserControlled(c world.Controller) *UserControlled {
	return &UserControlled{ctrl: c}
}

func (b *UserControlled) Controller() world.Controller {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.ctrl
}

// SetController swaps the controller, e.g. when a player reconnects.
func (b *UserControlled) SetController(c world.Controller) {
	b.mu.Lock()
	b.ctrl = c
	b.mu.Unlock()
}

func (b *UserControlled) SurvivesParentDestruction() bool { return true }
