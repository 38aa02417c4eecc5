package behaviors

import (
	"sort"
	"sync"

	"github.com/crystal-mush/thingmud/pkg/world"
)

const (
	StatHealth  = "health"
	StatAttack  = "attack"
	StatDefense = "defense"
)

// Stat is one bounded value.
type Stat struct {
	Value int
	Min   int
	Max   int
}

func (s Stat) clamp(v int) int {
	if v < s.Min {
		return s.Min
	}
	if v > s.Max {
		return s.Max
	}
	return v
}

// Stats holds named bounded values. Changes made through Adjust are proposed
// as a StatChangeRequest to the owner and announced as a StatChangeEvent.
type Stats struct {
	world.BehaviorBase

	mu    sync.RWMutex
	stats map[string]Stat
}

func NewStats() *Stats {
	return &Stats{stats: make(map[string]Stat)}
}

// NewCombatStats returns the stat block every fighter carries.
func NewCombatStats(health, attack, defense int) *Stats {
	s := NewStats()
	s.Define(StatHealth, health, 0, health)
	s.Define(StatAttack, attack, 0, 1000)
	s.Define(StatDefense, defense, 0, 1000)
	return s
}

// Define creates or replaces a stat. value is clamped into [min, max].
func (s *Stats) Define(name string, value, min, max int) {
	if max < min {
		min, max = max, min
	}
	st := Stat{Min: min, Max: max}
	st.Value = st.clamp(value)
	s.mu.Lock()
	s.stats[name] = st
	s.mu.Unlock()
}

func (s *Stats) Get(name string) (Stat, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.stats[name]
	return st, ok
}

// Value returns the current value of name, 0 when undefined.
func (s *Stats) Value(name string) int {
	st, _ := s.Get(name)
	return st.Value
}

// Names lists the defined stats, sorted.
func (s *Stats) Names() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.stats))
	for n := range s.stats {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// Adjust adds delta to name within its bounds. It returns the new value and
// false if the stat is undefined or the change was cancelled.
func (s *Stats) Adjust(name string, delta int) (int, bool) {
	owner := s.Owner()
	st, ok := s.Get(name)
	if !ok {
		return 0, false
	}
	if owner != nil {
		req := world.NewStatChangeRequest(owner, name, st.Value, st.clamp(st.Value+delta), nil)
		if !owner.Eventing.Request(req, world.SelfOnly) {
			return st.Value, false
		}
	}

	s.mu.Lock()
	st, ok = s.stats[name]
	if !ok {
		s.mu.Unlock()
		return 0, false
	}
	old := st.Value
	st.Value = st.clamp(old + delta)
	s.stats[name] = st
	s.mu.Unlock()

	if owner != nil && old != st.Value {
		owner.Eventing.Broadcast(world.NewStatChangeEvent(owner, name, old, st.Value, nil), world.SelfOnly)
	}
	return st.Value, true
}

func (s *Stats) Kind() string { return KindStats }

func (s *Stats) Save() ([]byte, error) {
	s.mu.RLock()
	snapshot := make(map[string]Stat, len(s.stats))
	for k, v := range s.stats {
		snapshot[k] = v
	}
	s.mu.RUnlock()
	return encode(KindStats, snapshot)
}

func (s *Stats) Load(data []byte) error {
	loaded := make(map[string]Stat)
	if err := decode(KindStats, data, &loaded); err != nil {
		return err
	}
	s.mu.Lock()
	s.stats = loaded
	s.mu.Unlock()
	return nil
}
