package world

import "sync"

// MultipleParentsBehavior lets a Thing sit in more than one parent at once,
// such as a door that belongs to the two rooms it joins. The secondary
// parents list the owner among their children; the primary parent is
// unaffected.
type MultipleParentsBehavior struct {
	BehaviorBase

	mu        sync.RWMutex
	secondary []*Thing
}

func NewMultipleParentsBehavior() *MultipleParentsBehavior {
	return &MultipleParentsBehavior{}
}

// AddParent links the owner under p as a secondary parent.
func (b *MultipleParentsBehavior) AddParent(p *Thing) bool {
	owner := b.Owner()
	if owner == nil || p == nil || p == owner {
		return false
	}
	linkMu.Lock()
	defer linkMu.Unlock()
	if owner.isAncestorOf(p) {
		return false
	}
	if owner.Parent() == p {
		return false
	}
	b.mu.Lock()
	if containsThing(b.secondary, p) {
		b.mu.Unlock()
		return false
	}
	b.secondary = append(b.secondary, p)
	b.mu.Unlock()
	p.addChildEntry(owner)
	return true
}

// RemoveParent drops the secondary link to p.
func (b *MultipleParentsBehavior) RemoveParent(p *Thing) bool {
	b.mu.Lock()
	idx := -1
	for i, x := range b.secondary {
		if x == p {
			idx = i
			break
		}
	}
	if idx < 0 {
		b.mu.Unlock()
		return false
	}
	b.secondary = append(b.secondary[:idx:idx], b.secondary[idx+1:]...)
	b.mu.Unlock()
	if owner := b.Owner(); owner != nil {
		p.removeChildEntry(owner)
	}
	return true
}

// SecondaryParents returns a snapshot in the order they were added.
func (b *MultipleParentsBehavior) SecondaryParents() []*Thing {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]*Thing, len(b.secondary))
	copy(out, b.secondary)
	return out
}

func (b *MultipleParentsBehavior) OnDetach(owner *Thing) {
	b.mu.Lock()
	parents := b.secondary
	b.secondary = nil
	b.mu.Unlock()
	for _, p := range parents {
		p.removeChildEntry(owner)
	}
}
