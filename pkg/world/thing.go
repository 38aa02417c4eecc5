package world

import (
	"strings"
	"sync"

	"github.com/google/uuid"
)

// TempIDPrefix marks identifiers handed out before a Thing is promoted into
// the live registry under its permanent ID.
const TempIDPrefix = "tmp-"

// Thing is a node in the world tree: a room, an item, a player, a mobile.
// What a Thing can do is decided by the Behaviors attached to it.
//
// The parent pointer and the parent's child list are only changed through
// AddChild and RemoveChild, which keep both sides in agreement.
type Thing struct {
	mu          sync.RWMutex
	id          string
	promoted    bool
	name        string
	description string
	parent      *Thing
	registry    *Registry

	// moveMu serializes moves of this Thing between parents.
	moveMu sync.Mutex

	childMu  sync.RWMutex
	children []*Thing

	Behaviors *BehaviorManager
	Eventing  *Eventing
}

// NewThing creates a parentless Thing with a temporary ID and attaches the
// given behaviors in order.
func NewThing(name string, behaviors ...Behavior) *Thing {
	return newThing(TempIDPrefix+uuid.NewString(), false, name, behaviors)
}

// RestoreThing creates a Thing that already owns a permanent ID, as when it
// is loaded back from storage.
func RestoreThing(id, name string, behaviors ...Behavior) *Thing {
	return newThing(id, true, name, behaviors)
}

func newThing(id string, promoted bool, name string, behaviors []Behavior) *Thing {
	t := &Thing{
		id:       id,
		promoted: promoted,
		name:     name,
	}
	t.Behaviors = &BehaviorManager{owner: t}
	t.Eventing = &Eventing{owner: t}
	for _, b := range behaviors {
		t.Behaviors.Add(b)
	}
	return t
}

// ID returns the Thing's identifier.
func (t *Thing) ID() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.id
}

// IsPromoted reports whether the Thing carries its permanent ID.
func (t *Thing) IsPromoted() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.promoted
}

func (t *Thing) Name() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.name
}

func (t *Thing) SetName(name string) {
	t.mu.Lock()
	t.name = name
	t.mu.Unlock()
}

func (t *Thing) Description() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.description
}

func (t *Thing) SetDescription(desc string) {
	t.mu.Lock()
	t.description = desc
	t.mu.Unlock()
}

// String implements fmt.Stringer so templates and logs print the name.
func (t *Thing) String() string {
	if t == nil {
		return "<nothing>"
	}
	return t.Name()
}

// Parent returns the primary parent, or nil.
func (t *Thing) Parent() *Thing {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.parent
}

// Parents returns the primary parent followed by any secondary parents
// supplied by a MultipleParentsBehavior.
func (t *Thing) Parents() []*Thing {
	var parents []*Thing
	if p := t.Parent(); p != nil {
		parents = append(parents, p)
	}
	if mp, ok := FindBehavior[*MultipleParentsBehavior](t); ok {
		for _, p := range mp.SecondaryParents() {
			if !containsThing(parents, p) {
				parents = append(parents, p)
			}
		}
	}
	return parents
}

// Children returns a snapshot of the child list. Callers may mutate the
// tree while iterating it.
func (t *Thing) Children() []*Thing {
	t.childMu.RLock()
	defer t.childMu.RUnlock()
	out := make([]*Thing, len(t.children))
	copy(out, t.children)
	return out
}

// HasChild reports whether child is currently in the child list.
func (t *Thing) HasChild(child *Thing) bool {
	t.childMu.RLock()
	defer t.childMu.RUnlock()
	return containsThing(t.children, child)
}

// FindChild returns the first child whose name starts with the given
// prefix, case-insensitively.
func (t *Thing) FindChild(name string) *Thing {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		return nil
	}
	for _, c := range t.Children() {
		if strings.HasPrefix(strings.ToLower(c.Name()), name) {
			return c
		}
	}
	return nil
}

// linkMu covers the cycle check and the new link together, so two moves
// cannot each pass the check and close a loop between them. Removals and
// reads never take it.
var linkMu sync.Mutex

// AddChild makes t the primary parent of child, moving it out of its
// previous parent. It refuses to create cycles.
func (t *Thing) AddChild(child *Thing) bool {
	if child == nil || child == t {
		return false
	}
	linkMu.Lock()
	defer linkMu.Unlock()
	if child.isAncestorOf(t) {
		return false
	}
	child.moveMu.Lock()
	defer child.moveMu.Unlock()

	old := child.Parent()
	if old == t {
		return true
	}
	if old != nil {
		old.removeChildEntry(child)
	}
	t.addChildEntry(child)

	child.mu.Lock()
	child.parent = t
	child.mu.Unlock()
	return true
}

// RemoveChild detaches child from t. If t is one of child's secondary
// parents, only that secondary link is dropped.
func (t *Thing) RemoveChild(child *Thing) bool {
	if child == nil {
		return false
	}
	child.moveMu.Lock()
	if child.Parent() == t {
		t.removeChildEntry(child)
		child.mu.Lock()
		child.parent = nil
		child.mu.Unlock()
		child.moveMu.Unlock()
		return true
	}
	child.moveMu.Unlock()

	if mp, ok := FindBehavior[*MultipleParentsBehavior](child); ok {
		return mp.RemoveParent(t)
	}
	return false
}

// RemoveFromParents detaches the Thing from its primary and secondary
// parents.
func (t *Thing) RemoveFromParents() {
	for _, p := range t.Parents() {
		p.RemoveChild(t)
	}
}

// Destroy removes the Thing from the world. Children are destroyed as well,
// except those with a behavior reporting SurvivesParentDestruction, which
// are merely orphaned.
func (t *Thing) Destroy() {
	t.RemoveFromParents()
	for _, c := range t.Children() {
		if survivesDestruction(c) {
			t.RemoveChild(c)
			continue
		}
		c.Destroy()
	}
	for _, b := range t.Behaviors.All() {
		t.Behaviors.Remove(b)
	}
	t.mu.RLock()
	reg := t.registry
	t.mu.RUnlock()
	if reg != nil {
		reg.Remove(t)
	}
}

// Survivor is implemented by behaviors whose owner must outlive the
// destruction of its parent (players, for instance).
type Survivor interface {
	SurvivesParentDestruction() bool
}

func survivesDestruction(t *Thing) bool {
	for _, s := range FindAll[Survivor](t) {
		if s.SurvivesParentDestruction() {
			return true
		}
	}
	return false
}

// isAncestorOf walks every parent link upward from other, secondary
// parents included.
func (t *Thing) isAncestorOf(other *Thing) bool {
	seen := map[*Thing]bool{other: true}
	queue := []*Thing{other}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		if cur == t {
			return true
		}
		for _, p := range cur.Parents() {
			if !seen[p] {
				seen[p] = true
				queue = append(queue, p)
			}
		}
	}
	return false
}

func (t *Thing) addChildEntry(child *Thing) {
	t.childMu.Lock()
	defer t.childMu.Unlock()
	if !containsThing(t.children, child) {
		t.children = append(t.children, child)
	}
}

func (t *Thing) removeChildEntry(child *Thing) bool {
	t.childMu.Lock()
	defer t.childMu.Unlock()
	for i, c := range t.children {
		if c == child {
			t.children = append(t.children[:i:i], t.children[i+1:]...)
			return true
		}
	}
	return false
}

func containsThing(list []*Thing, t *Thing) bool {
	for _, x := range list {
		if x == t {
			return true
		}
	}
	return false
}
