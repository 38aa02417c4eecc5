package world

import (
	"bytes"
	"sort"
	"sync"
	"text/template"
)

// Well-known context keys.
const (
	ContextActiveThing = "ActiveThing"
	ContextReceiver    = "Receiver"
)

// SensoryType is a bit set of senses a message can be perceived through.
type SensoryType int

const (
	SenseSight SensoryType = 1 << iota
	SenseHearing
	SenseTouch
	SenseSmell
	SenseTaste
	SenseDebug

	SenseAll = SenseSight | SenseHearing | SenseTouch | SenseSmell | SenseTaste
)

func (s SensoryType) String() string {
	switch s {
	case SenseSight:
		return "sight"
	case SenseHearing:
		return "hearing"
	case SenseTouch:
		return "touch"
	case SenseSmell:
		return "smell"
	case SenseTaste:
		return "taste"
	case SenseDebug:
		return "debug"
	default:
		return "mixed"
	}
}

// ContextualString holds one template per audience. Templates use
// text/template syntax over the message context, e.g.
// "{{.Aggressor}} punches {{.Target}}.".
type ContextualString struct {
	ToOriginator string
	ToReceiver   string
	ToOthers     string
}

// Context is the free-form key/value bag carried by a sensory message.
type Context struct {
	mu     sync.RWMutex
	values map[string]any
}

func NewContext() *Context {
	return &Context{values: make(map[string]any)}
}

func (c *Context) Set(key string, value any) {
	c.mu.Lock()
	c.values[key] = value
	c.mu.Unlock()
}

// SetIfAbsent stores value unless key is present. It reports whether the
// value was stored.
func (c *Context) SetIfAbsent(key string, value any) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.values[key]; ok {
		return false
	}
	c.values[key] = value
	return true
}

func (c *Context) Get(key string) (any, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.values[key]
	return v, ok
}

// Thing returns the value under key if it is a *Thing.
func (c *Context) Thing(key string) *Thing {
	v, _ := c.Get(key)
	t, _ := v.(*Thing)
	return t
}

// Keys returns the sorted key set.
func (c *Context) Keys() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	keys := make([]string, 0, len(c.values))
	for k := range c.values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Snapshot copies the bag.
func (c *Context) Snapshot() map[string]any {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string]any, len(c.values))
	for k, v := range c.values {
		out[k] = v
	}
	return out
}

// SensoryMessage is the perceivable side of a request or event.
type SensoryMessage struct {
	Type     SensoryType
	Strength int
	Message  ContextualString
	Context  *Context
}

// NewSensoryMessage builds a message with an empty context bag.
func NewSensoryMessage(t SensoryType, strength int, msg ContextualString) *SensoryMessage {
	return &SensoryMessage{
		Type:     t,
		Strength: strength,
		Message:  msg,
		Context:  NewContext(),
	}
}

// Render picks the template for viewer and executes it over the context.
// The originator sees ToOriginator, the receiver ToReceiver, everyone else
// ToOthers; an empty choice falls back to ToOthers.
func (m *SensoryMessage) Render(viewer *Thing) string {
	if m == nil {
		return ""
	}
	if m.Context == nil {
		m.Context = NewContext()
	}
	text := m.Message.ToOthers
	switch {
	case viewer != nil && viewer == m.Context.Thing(ContextActiveThing):
		if m.Message.ToOriginator != "" {
			text = m.Message.ToOriginator
		}
	case viewer != nil && viewer == m.Context.Thing(ContextReceiver):
		if m.Message.ToReceiver != "" {
			text = m.Message.ToReceiver
		}
	}
	if text == "" {
		return ""
	}
	tmpl, err := parseTemplate(text)
	if err != nil {
		logger.WithError(err).Debugf("bad message template %q", text)
		return text
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, m.Context.Snapshot()); err != nil {
		logger.WithError(err).Debugf("message template %q failed", text)
		return text
	}
	return buf.String()
}

var templateCache sync.Map

func parseTemplate(text string) (*template.Template, error) {
	if t, ok := templateCache.Load(text); ok {
		return t.(*template.Template), nil
	}
	t, err := template.New("msg").Option("missingkey=zero").Parse(text)
	if err != nil {
		return nil, err
	}
	templateCache.Store(text, t)
	return t, nil
}
