package world

import (
	"runtime/debug"
	"sync"

	"github.com/sirupsen/logrus"
)

var logger logrus.FieldLogger = logrus.WithField("subsystem", "world")

// SetLogger replaces the package logger. Call it during startup.
func SetLogger(l logrus.FieldLogger) {
	logger = l.WithField("subsystem", "world")
}

// Category groups event traffic. Each Thing has one request channel and one
// event channel per category.
type Category int

const (
	CategoryCombat Category = iota
	CategoryMovement
	CategoryCommunication
	CategoryMisc

	categoryCount
)

func (c Category) String() string {
	switch c {
	case CategoryCombat:
		return "combat"
	case CategoryMovement:
		return "movement"
	case CategoryCommunication:
		return "communication"
	case CategoryMisc:
		return "misc"
	default:
		return "unknown"
	}
}

// Categories lists every traffic category.
func Categories() []Category {
	return []Category{CategoryCombat, CategoryMovement, CategoryCommunication, CategoryMisc}
}

// Scope is the breadth of one broadcast.
type Scope int

const (
	// ParentsDown starts at each parent of the origin and cascades through
	// that parent's whole subtree.
	ParentsDown Scope = iota
	// SelfDown starts at the origin and cascades through its subtree.
	SelfDown
	// SelfOnly delivers to the origin alone.
	SelfOnly
)

func (s Scope) String() string {
	switch s {
	case ParentsDown:
		return "parents-down"
	case SelfDown:
		return "self-down"
	case SelfOnly:
		return "self-only"
	default:
		return "unknown"
	}
}

// RequestHandler receives a cancellable request on the Thing it was
// registered on.
type RequestHandler func(receiver *Thing, r Request)

// EventHandler receives a committed event on the Thing it was registered on.
type EventHandler func(receiver *Thing, e Event)

type requestSub struct {
	id uint64
	fn RequestHandler
}

type eventSub struct {
	id uint64
	fn EventHandler
}

// Eventing is the per-Thing broadcasting facet. It holds the handlers
// registered on its Thing and runs broadcasts that originate from it.
type Eventing struct {
	owner *Thing

	mu       sync.RWMutex
	nextID   uint64
	requests [categoryCount][]requestSub
	events   [categoryCount][]eventSub
}

// Subscription identifies one registered handler.
type Subscription struct {
	eventing *Eventing
	category Category
	id       uint64
	request  bool
}

// Unsubscribe removes the handler. The zero Subscription is a no-op.
func (s Subscription) Unsubscribe() {
	if s.eventing == nil {
		return
	}
	s.eventing.remove(s)
}

// HandleRequest registers fn for requests of category c reaching this Thing.
func (e *Eventing) HandleRequest(c Category, fn RequestHandler) Subscription {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.nextID++
	e.requests[c] = append(e.requests[c], requestSub{id: e.nextID, fn: fn})
	return Subscription{eventing: e, category: c, id: e.nextID, request: true}
}

// HandleEvent registers fn for events of category c reaching this Thing.
func (e *Eventing) HandleEvent(c Category, fn EventHandler) Subscription {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.nextID++
	e.events[c] = append(e.events[c], eventSub{id: e.nextID, fn: fn})
	return Subscription{eventing: e, category: c, id: e.nextID}
}

func (e *Eventing) remove(s Subscription) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if s.request {
		subs := e.requests[s.category]
		for i, x := range subs {
			if x.id == s.id {
				e.requests[s.category] = append(subs[:i:i], subs[i+1:]...)
				return
			}
		}
		return
	}
	subs := e.events[s.category]
	for i, x := range subs {
		if x.id == s.id {
			e.events[s.category] = append(subs[:i:i], subs[i+1:]...)
			return
		}
	}
}

// HandlerCount returns how many request and event handlers are registered
// for category c.
func (e *Eventing) HandlerCount(c Category) (requests, events int) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.requests[c]), len(e.events[c])
}

// Request broadcasts a cancellable request over scope. Handlers run
// synchronously on the calling goroutine; the first cancellation stops the
// traversal. It reports whether the request survived uncancelled.
func (e *Eventing) Request(r Request, scope Scope) bool {
	if r == nil || r.IsCancelled() {
		return false
	}
	cat := r.Category()
	e.traverse(scope, func(t *Thing) bool {
		t.Eventing.deliverRequest(t, cat, r)
		return !r.IsCancelled()
	})
	return !r.IsCancelled()
}

// Broadcast delivers a committed event to every Thing within scope.
func (e *Eventing) Broadcast(ev Event, scope Scope) {
	if ev == nil {
		return
	}
	cat := ev.Category()
	e.traverse(scope, func(t *Thing) bool {
		t.Eventing.deliverEvent(t, cat, ev)
		return true
	})
}

// Visit walks the Things a broadcast with the given scope would reach, in
// delivery order, until fn returns false.
func (e *Eventing) Visit(scope Scope, fn func(*Thing) bool) {
	e.traverse(scope, fn)
}

func (e *Eventing) traverse(scope Scope, visit func(*Thing) bool) {
	var seeds []*Thing
	if scope == ParentsDown {
		seeds = e.owner.Parents()
	} else {
		seeds = []*Thing{e.owner}
	}
	cascade := scope != SelfOnly

	for _, seed := range seeds {
		queue := []*Thing{seed}
		for len(queue) > 0 {
			t := queue[0]
			queue = queue[1:]
			if !visit(t) {
				return
			}
			if cascade {
				queue = append(queue, t.Children()...)
			}
		}
	}
}

func (e *Eventing) deliverRequest(receiver *Thing, c Category, r Request) {
	e.mu.RLock()
	subs := e.requests[c]
	e.mu.RUnlock()

	for _, s := range subs {
		callRequestHandler(receiver, s.fn, r)
		if r.IsCancelled() {
			return
		}
	}
}

func (e *Eventing) deliverEvent(receiver *Thing, c Category, ev Event) {
	e.mu.RLock()
	subs := e.events[c]
	e.mu.RUnlock()

	for _, s := range subs {
		callEventHandler(receiver, s.fn, ev)
	}
}

func callRequestHandler(receiver *Thing, fn RequestHandler, r Request) {
	defer func() {
		if rec := recover(); rec != nil {
			logger.WithFields(logrus.Fields{
				"receiver": receiver.ID(),
				"kind":     r.Kind(),
				"panic":    rec,
			}).Errorf("request handler panicked\n%s", debug.Stack())
		}
	}()
	fn(receiver, r)
}

func callEventHandler(receiver *Thing, fn EventHandler, ev Event) {
	defer func() {
		if rec := recover(); rec != nil {
			logger.WithFields(logrus.Fields{
				"receiver": receiver.ID(),
				"kind":     ev.Kind(),
				"panic":    rec,
			}).Errorf("event handler panicked\n%s", debug.Stack())
		}
	}()
	fn(receiver, ev)
}
