package world

import "sync"

// Event is a committed fact: something happened. It cannot be cancelled.
type Event interface {
	Category() Category
	// Kind names the concrete event type, e.g. "CombatEvent".
	Kind() string
	Origin() *Thing
	Sensory() *SensoryMessage
}

// Request is a cancellable proposal: something is about to happen.
type Request interface {
	Event
	// Cancel stops the request. It is idempotent; the first non-empty
	// reason is delivered once to the origin's controller.
	Cancel(reason string)
	IsCancelled() bool
	CancelReason() string
}

// EventBase carries the fields shared by every request and event.
type EventBase struct {
	category Category
	kind     string
	origin   *Thing
	sensory  *SensoryMessage
}

func (b *EventBase) Category() Category       { return b.category }
func (b *EventBase) Kind() string             { return b.kind }
func (b *EventBase) Origin() *Thing           { return b.origin }
func (b *EventBase) Sensory() *SensoryMessage { return b.sensory }

// init fills the base and enriches the sensory context with the kind name
// mapped to self and with ActiveThing, unless an earlier producer already
// staged one.
func (b *EventBase) init(c Category, kind string, origin *Thing, msg *SensoryMessage, self any) {
	b.category = c
	b.kind = kind
	b.origin = origin
	b.sensory = msg
	if msg == nil {
		return
	}
	if msg.Context == nil {
		msg.Context = NewContext()
	}
	msg.Context.Set(kind, self)
	if origin != nil {
		msg.Context.SetIfAbsent(ContextActiveThing, origin)
	}
}

// RequestBase adds the cancellation contract to EventBase.
type RequestBase struct {
	EventBase

	mu        sync.Mutex
	cancelled bool
	reason    string
}

func (r *RequestBase) Cancel(reason string) {
	r.mu.Lock()
	r.cancelled = true
	deliver := reason != "" && r.reason == ""
	if deliver {
		r.reason = reason
	}
	r.mu.Unlock()

	if !deliver {
		return
	}
	if c := ControllerOf(r.origin); c != nil {
		c.NotifyCancelled(reason)
	}
}

func (r *RequestBase) IsCancelled() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cancelled
}

func (r *RequestBase) CancelReason() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.reason
}
