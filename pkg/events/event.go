package events

import "time"

// EventType classifies output events for transport-specific encoding.
type EventType int

const (
	EvText       EventType = iota // Rendered text for a player
	EvCancel                      // A request the player made was refused
	EvPrompt                      // Prompt/status update
	EvConnect                     // Player connected
	EvDisconnect                  // Player disconnected
	EvSystem                      // Server notice (shutdown, reload)
)

// String returns a human-readable name for the event type.
func (t EventType) String() string {
	switch t {
	case EvText:
		return "text"
	case EvCancel:
		return "cancel"
	case EvPrompt:
		return "prompt"
	case EvConnect:
		return "connect"
	case EvDisconnect:
		return "disconnect"
	case EvSystem:
		return "system"
	default:
		return "unknown"
	}
}

// Event is one piece of output on its way to a session. Telnet sends Text;
// WebSocket clients get the structured form.
type Event struct {
	Type   EventType      `json:"type"`
	Player string         `json:"player"` // Recipient Thing ID ("" for broadcast)
	Source string         `json:"source,omitempty"`
	Text   string         `json:"text"`
	Time   time.Time      `json:"time"`
	Data   map[string]any `json:"data,omitempty"`
}
