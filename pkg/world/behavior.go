package world

import "sync"

// Behavior is a unit of capability and state attached to exactly one Thing
// at a time. Concrete behaviors embed BehaviorBase.
type Behavior interface {
	Owner() *Thing
	// OnAttach runs after the behavior joined owner's behavior list.
	OnAttach(owner *Thing)
	// OnDetach runs before the behavior leaves owner's behavior list.
	OnDetach(owner *Thing)

	behaviorBase() *BehaviorBase
}

// BehaviorBase provides the owner link, no-op hooks and subscription
// bookkeeping. Subscriptions registered through Track are cancelled when
// the behavior is detached.
type BehaviorBase struct {
	// attachMu serializes attach/detach of this behavior.
	attachMu sync.Mutex

	mu    sync.RWMutex
	owner *Thing
	subs  []Subscription
}

func (b *BehaviorBase) Owner() *Thing {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.owner
}

func (b *BehaviorBase) OnAttach(*Thing) {}

func (b *BehaviorBase) OnDetach(*Thing) {}

// Track records event subscriptions owned by this behavior.
func (b *BehaviorBase) Track(subs ...Subscription) {
	b.mu.Lock()
	b.subs = append(b.subs, subs...)
	b.mu.Unlock()
}

func (b *BehaviorBase) behaviorBase() *BehaviorBase { return b }

func (b *BehaviorBase) setOwner(t *Thing) {
	b.mu.Lock()
	b.owner = t
	b.mu.Unlock()
}

func (b *BehaviorBase) release() {
	b.mu.Lock()
	subs := b.subs
	b.subs = nil
	b.owner = nil
	b.mu.Unlock()
	for _, s := range subs {
		s.Unsubscribe()
	}
}

// BehaviorManager is a Thing's ordered behavior collection.
type BehaviorManager struct {
	owner *Thing
	mu    sync.RWMutex
	list  []Behavior
}

// Add attaches b, moving it off any other Thing first. Duplicate kinds are
// not rejected here; that is a rule for individual behaviors to enforce.
func (m *BehaviorManager) Add(b Behavior) {
	if b == nil {
		return
	}
	base := b.behaviorBase()
	base.attachMu.Lock()
	defer base.attachMu.Unlock()

	prev := base.Owner()
	if prev == m.owner {
		return
	}
	if prev != nil {
		prev.Behaviors.detach(b)
	}

	m.mu.Lock()
	m.list = append(m.list, b)
	m.mu.Unlock()

	base.setOwner(m.owner)
	b.OnAttach(m.owner)
}

// Remove detaches b. It reports false when b is not attached here.
func (m *BehaviorManager) Remove(b Behavior) bool {
	if b == nil {
		return false
	}
	base := b.behaviorBase()
	base.attachMu.Lock()
	defer base.attachMu.Unlock()
	return m.detach(b)
}

func (m *BehaviorManager) detach(b Behavior) bool {
	m.mu.Lock()
	idx := -1
	for i, x := range m.list {
		if x == b {
			idx = i
			break
		}
	}
	if idx < 0 {
		m.mu.Unlock()
		return false
	}
	m.list = append(m.list[:idx:idx], m.list[idx+1:]...)
	m.mu.Unlock()

	b.OnDetach(m.owner)
	b.behaviorBase().release()
	return true
}

// All returns a snapshot of attached behaviors in insertion order.
func (m *BehaviorManager) All() []Behavior {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Behavior, len(m.list))
	copy(out, m.list)
	return out
}

func (m *BehaviorManager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.list)
}

// FindBehavior returns the first attached behavior assignable to K.
func FindBehavior[K any](t *Thing) (K, bool) {
	var zero K
	if t == nil {
		return zero, false
	}
	for _, b := range t.Behaviors.All() {
		if k, ok := b.(K); ok {
			return k, true
		}
	}
	return zero, false
}

// FindFirst is FindBehavior without the presence flag; absence yields the
// zero value of K.
func FindFirst[K any](t *Thing) K {
	k, _ := FindBehavior[K](t)
	return k
}

// FindAll returns every attached behavior assignable to K.
func FindAll[K any](t *Thing) []K {
	if t == nil {
		return nil
	}
	var out []K
	for _, b := range t.Behaviors.All() {
		if k, ok := b.(K); ok {
			out = append(out, k)
		}
	}
	return out
}

// HasBehavior reports whether any attached behavior is assignable to K.
func HasBehavior[K any](t *Thing) bool {
	_, ok := FindBehavior[K](t)
	return ok
}
