package world

import (
	"errors"
	"fmt"
	"strings"
	"sync"
)

var (
	ErrAlreadyPromoted = errors.New("world: thing already has a permanent id")
	ErrDuplicateID     = errors.New("world: id already registered")
	ErrEmptyID         = errors.New("world: empty id")
)

// Registry tracks every live Thing by ID.
type Registry struct {
	mu     sync.RWMutex
	things map[string]*Thing
}

func NewRegistry() *Registry {
	return &Registry{things: make(map[string]*Thing)}
}

// Add registers t under its current ID (temporary or permanent).
func (r *Registry) Add(t *Thing) error {
	id := t.ID()
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.things[id]; ok && existing != t {
		return fmt.Errorf("%w: %s", ErrDuplicateID, id)
	}
	r.things[id] = t
	t.mu.Lock()
	t.registry = r
	t.mu.Unlock()
	return nil
}

// Promote replaces t's temporary ID with its permanent one. This happens
// exactly once per Thing.
func (r *Registry) Promote(t *Thing, id string) error {
	if strings.TrimSpace(id) == "" {
		return ErrEmptyID
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.promoted {
		return fmt.Errorf("%w: %s", ErrAlreadyPromoted, t.id)
	}
	if existing, ok := r.things[id]; ok && existing != t {
		return fmt.Errorf("%w: %s", ErrDuplicateID, id)
	}
	delete(r.things, t.id)
	t.id = id
	t.promoted = true
	t.registry = r
	r.things[id] = t
	return nil
}

// Get returns the Thing registered under id, or nil.
func (r *Registry) Get(id string) *Thing {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.things[id]
}

func (r *Registry) Remove(t *Thing) {
	id := t.ID()
	r.mu.Lock()
	if r.things[id] == t {
		delete(r.things, id)
	}
	r.mu.Unlock()
	t.mu.Lock()
	if t.registry == r {
		t.registry = nil
	}
	t.mu.Unlock()
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.things)
}

// FindByName returns the first registered Thing with the exact name,
// compared case-insensitively.
func (r *Registry) FindByName(name string) *Thing {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, t := range r.things {
		if strings.EqualFold(t.Name(), name) {
			return t
		}
	}
	return nil
}
