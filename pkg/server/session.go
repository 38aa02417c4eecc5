package server

import (
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/crystal-mush/thingmud/pkg/command"
	"github.com/crystal-mush/thingmud/pkg/events"
	"github.com/crystal-mush/thingmud/pkg/world"
)

// Transport names, also used as metric labels.
const (
	TransportTCP       = "tcp"
	TransportWebSocket = "websocket"
)

const (
	msgNamePrompt  = "By what name are you known? "
	msgBadName     = "Names are 2 to 16 letters, nothing else."
	msgNameInUse   = "Someone by that name is already here."
	msgLoginFailed = "The world could not receive you. Try again later."
	msgTooFast     = "You are typing faster than the world can keep up."
	msgGoodbye     = "Goodbye."
)

// Session is one client connection. Once logged in it drives a player
// Thing: it is the Thing's controller and issues commands on its behalf.
// Output for the player travels over the bus so global subscribers see it.
type Session struct {
	ID        int64
	Addr      string
	Transport string
	ConnTime  time.Time

	engine *Engine
	send   func(events.Event)
	closer func()

	mu         sync.Mutex
	player     *world.Thing
	lastCmd    time.Time
	cmdCount   int
	closed     bool
	logoutOnce sync.Once
}

var (
	_ command.Controller = (*Session)(nil)
	_ events.Subscriber  = (*Session)(nil)
)

// Greet sends the welcome text and the name prompt.
func (s *Session) Greet() {
	text := s.engine.Config.WelcomeText
	if text == "" {
		text = msgNamePrompt
	}
	s.Receive(events.Event{Type: events.EvPrompt, Text: text})
}

// HandleLine processes one line of client input. It returns false when the
// session should end.
func (s *Session) HandleLine(line string) bool {
	line = strings.TrimSpace(line)
	s.mu.Lock()
	s.lastCmd = time.Now()
	s.mu.Unlock()

	if s.Player() == nil {
		return s.login(line)
	}
	if line == "" {
		return true
	}
	if strings.EqualFold(line, "quit") {
		s.Receive(events.Event{Type: events.EvSystem, Text: msgGoodbye})
		return false
	}

	s.mu.Lock()
	s.cmdCount++
	s.mu.Unlock()
	s.engine.Log.WithFields(logrus.Fields{"session": s.ID, "input": line}).Debug("command")
	if !s.engine.Pipeline.EnqueueAction(command.ParseActionInput(line, s)) {
		s.Write(msgTooFast)
	}
	return true
}

func (s *Session) login(name string) bool {
	if name == "" {
		s.Receive(events.Event{Type: events.EvPrompt, Text: msgNamePrompt})
		return true
	}
	player, created, err := s.engine.Login(s, name)
	switch {
	case errors.Is(err, ErrBadName):
		s.Receive(events.Event{Type: events.EvText, Text: msgBadName})
		s.Receive(events.Event{Type: events.EvPrompt, Text: msgNamePrompt})
		return true
	case errors.Is(err, ErrNameInUse):
		s.Receive(events.Event{Type: events.EvText, Text: msgNameInUse})
		s.Receive(events.Event{Type: events.EvPrompt, Text: msgNamePrompt})
		return true
	case err != nil:
		s.engine.Log.WithError(err).WithField("session", s.ID).Error("login failed")
		s.Receive(events.Event{Type: events.EvText, Text: msgLoginFailed})
		return false
	}

	if created {
		s.Write("Welcome, " + player.Name() + ".")
	} else {
		s.Write("Welcome back, " + player.Name() + ".")
	}
	s.engine.Pipeline.EnqueueAction(command.ParseActionInput("look", s))
	return true
}

// Write implements world.Controller.
func (s *Session) Write(text string) {
	s.emit(events.EvText, text)
}

// NotifyCancelled implements world.Controller.
func (s *Session) NotifyCancelled(reason string) {
	if reason == "" {
		return
	}
	s.emit(events.EvCancel, reason)
}

func (s *Session) emit(typ events.EventType, text string) {
	p := s.Player()
	if p == nil {
		s.Receive(events.Event{Type: typ, Text: text})
		return
	}
	s.engine.Bus.EmitToPlayer(p.ID(), events.Event{Type: typ, Text: text})
}

// Thing implements world.Controller.
func (s *Session) Thing() *world.Thing { return s.Player() }

// Roles implements command.Controller. Sessions that have not logged in
// hold no roles.
func (s *Session) Roles() command.Role {
	if s.Player() == nil {
		return command.RoleNone
	}
	return command.RolePlayer
}

// Player returns the Thing this session drives, or nil before login.
func (s *Session) Player() *world.Thing {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.player
}

func (s *Session) setPlayer(p *world.Thing) {
	s.mu.Lock()
	s.player = p
	s.mu.Unlock()
}

// Receive implements events.Subscriber.
func (s *Session) Receive(ev events.Event) {
	if s.Closed() || s.send == nil {
		return
	}
	s.send(ev)
}

// Closed implements events.Subscriber.
func (s *Session) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Close drops the transport. The player stays in the world until Logout.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	closer := s.closer
	s.mu.Unlock()
	if closer != nil {
		closer()
	}
}

// Idle returns how long since the last input line.
func (s *Session) Idle() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return time.Since(s.lastCmd)
}

// Commands returns how many commands the session has issued.
func (s *Session) Commands() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cmdCount
}
