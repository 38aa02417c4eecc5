// Package behaviors holds the stock capabilities a Thing can carry: being
// controlled, perceiving, living, moving, keeping balance, stats, temporary
// effects and being a room.
package behaviors

import (
	"bytes"
	"encoding/gob"
	"fmt"
	"time"

	"github.com/crystal-mush/thingmud/pkg/timing"
	"github.com/crystal-mush/thingmud/pkg/world"
)

// Scheduler is the slice of the time system behaviors need.
type Scheduler interface {
	After(d time.Duration, callback func()) (*timing.TimeEvent, error)
}

// Persistent behavior kind names.
const (
	KindSenses = "senses"
	KindLiving = "living"
	KindMobile = "mobile"
	KindStats  = "stats"
	KindRoom   = "room"
)

// Register makes the persistent behaviors of this package loadable.
func Register(kinds *world.BehaviorKinds) {
	kinds.Register(KindSenses, func() world.Persistent { return NewSenses(0) })
	kinds.Register(KindLiving, func() world.Persistent { return NewLiving() })
	kinds.Register(KindMobile, func() world.Persistent { return NewMobile() })
	kinds.Register(KindStats, func() world.Persistent { return NewStats() })
	kinds.Register(KindRoom, func() world.Persistent { return NewRoom() })
}

func encode(kind string, v any) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(v); err != nil {
		return nil, fmt.Errorf("behaviors: encoding %s: %w", kind, err)
	}
	return buf.Bytes(), nil
}

func decode(kind string, data []byte, v any) error {
	if len(data) == 0 {
		return nil
	}
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(v); err != nil {
		return fmt.Errorf("behaviors: decoding %s: %w", kind, err)
	}
	return nil
}

// tell writes text to whoever controls t, if anyone.
func tell(t *world.Thing, text string) {
	if c := world.ControllerOf(t); c != nil && text != "" {
		c.Write(text)
	}
}
