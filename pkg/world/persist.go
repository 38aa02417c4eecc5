package world

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

var ErrUnknownKind = errors.New("world: unknown behavior kind")

// Persistent is a behavior whose state survives a save/load cycle. The
// bytes are opaque to the core.
type Persistent interface {
	Behavior
	Kind() string
	Save() ([]byte, error)
	Load(data []byte) error
}

// Store is the persistence boundary. Implementations choose the format.
type Store interface {
	SaveTree(root *Thing) error
	LoadTree(id string, kinds *BehaviorKinds) (*Thing, error)
}

// BehaviorKinds maps stable kind names to behavior constructors. It is
// filled at startup by the packages that define behaviors.
type BehaviorKinds struct {
	mu        sync.RWMutex
	factories map[string]func() Persistent
}

func NewBehaviorKinds() *BehaviorKinds {
	return &BehaviorKinds{factories: make(map[string]func() Persistent)}
}

// Register adds or replaces the constructor for kind.
func (k *BehaviorKinds) Register(kind string, factory func() Persistent) {
	k.mu.Lock()
	k.factories[kind] = factory
	k.mu.Unlock()
}

// New constructs an empty behavior of kind.
func (k *BehaviorKinds) New(kind string) (Persistent, error) {
	k.mu.RLock()
	f, ok := k.factories[kind]
	k.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownKind, kind)
	}
	return f(), nil
}

// Kinds returns the registered kind names, sorted.
func (k *BehaviorKinds) Kinds() []string {
	k.mu.RLock()
	defer k.mu.RUnlock()
	out := make([]string, 0, len(k.factories))
	for name := range k.factories {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
