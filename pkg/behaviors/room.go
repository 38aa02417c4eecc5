package behaviors

import (
	"strings"

	"github.com/crystal-mush/thingmud/pkg/world"
)

// Room marks a Thing as a place others can stand in.
type Room struct {
	world.BehaviorBase
}

func NewRoom() *Room { return &Room{} }

func (r *Room) Kind() string           { return KindRoom }
func (r *Room) Save() ([]byte, error)  { return nil, nil }
func (r *Room) Load(data []byte) error { return nil }

// Describe renders the room as viewer sees it: name, description and
// everything else present.
func (r *Room) Describe(viewer *world.Thing) string {
	owner := r.Owner()
	if owner == nil {
		return ""
	}
	var sb strings.Builder
	sb.WriteString(owner.Name())
	if desc := owner.Description(); desc != "" {
		sb.WriteString("\n")
		sb.WriteString(desc)
	}
	var present []string
	for _, c := range owner.Children() {
		if c != viewer {
			present = append(present, c.Name())
		}
	}
	if len(present) > 0 {
		sb.WriteString("\nYou see: ")
		sb.WriteString(strings.Join(present, ", "))
		sb.WriteString(".")
	}
	return sb.String()
}

// RoomOf returns the nearest ancestor of t that is a room, or nil.
func RoomOf(t *world.Thing) *world.Thing {
	seen := map[*world.Thing]bool{}
	for p := t.Parent(); p != nil && !seen[p]; p = p.Parent() {
		if world.HasBehavior[*Room](p) {
			return p
		}
		seen[p] = true
	}
	return nil
}
