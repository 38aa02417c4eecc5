package world

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeController struct {
	mu        sync.Mutex
	thing     *Thing
	lines     []string
	cancelled []string
}

func (c *fakeController) Write(text string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lines = append(c.lines, text)
}

func (c *fakeController) NotifyCancelled(reason string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cancelled = append(c.cancelled, reason)
}

func (c *fakeController) Thing() *Thing { return c.thing }

type controlled struct {
	BehaviorBase
	c Controller
}

func (b *controlled) Controller() Controller { return b.c }

// recorder registers request and event handlers on things and records the
// order in which they were reached.
type recorder struct {
	mu     sync.Mutex
	visits []string
}

func (r *recorder) watch(things ...*Thing) {
	for _, th := range things {
		for _, c := range Categories() {
			th.Eventing.HandleRequest(c, func(receiver *Thing, _ Request) {
				r.add(receiver.Name())
			})
			th.Eventing.HandleEvent(c, func(receiver *Thing, _ Event) {
				r.add(receiver.Name())
			})
		}
	}
}

func (r *recorder) add(name string) {
	r.mu.Lock()
	r.visits = append(r.visits, name)
	r.mu.Unlock()
}

// world -> room -> (alice -> bag -> coin, bob)
type fixture struct {
	world, room, alice, bag, coin, bob *Thing
}

func newFixture() fixture {
	f := fixture{
		world: NewThing("world"),
		room:  NewThing("room"),
		alice: NewThing("alice"),
		bag:   NewThing("bag"),
		coin:  NewThing("coin"),
		bob:   NewThing("bob"),
	}
	f.world.AddChild(f.room)
	f.room.AddChild(f.alice)
	f.alice.AddChild(f.bag)
	f.bag.AddChild(f.coin)
	f.room.AddChild(f.bob)
	return f
}

func (f fixture) all() []*Thing {
	return []*Thing{f.world, f.room, f.alice, f.bag, f.coin, f.bob}
}

func TestScopes(t *testing.T) {
	tests := []struct {
		name  string
		scope Scope
		want  []string
	}{
		{"self only", SelfOnly, []string{"alice"}},
		{"self down", SelfDown, []string{"alice", "bag", "coin"}},
		{"parents down", ParentsDown, []string{"room", "alice", "bob", "bag", "coin"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture()
			rec := &recorder{}
			rec.watch(f.all()...)

			f.alice.Eventing.Broadcast(NewMiscEvent(f.alice, "ping", nil), tt.scope)
			assert.Equal(t, tt.want, rec.visits)

			rec.visits = nil
			ok := f.alice.Eventing.Request(NewMiscRequest(f.alice, "ping", nil), tt.scope)
			assert.True(t, ok)
			assert.Equal(t, tt.want, rec.visits)
		})
	}
}

func TestParentsDownWithoutParentsReachesNobody(t *testing.T) {
	loner := NewThing("loner")
	rec := &recorder{}
	rec.watch(loner)

	loner.Eventing.Broadcast(NewMiscEvent(loner, "ping", nil), ParentsDown)
	assert.True(t, loner.Eventing.Request(NewMiscRequest(loner, "ping", nil), ParentsDown))
	assert.Empty(t, rec.visits)
}

func TestParentsDownVisitsEachParentSubtreeInOrder(t *testing.T) {
	hall := NewThing("hall")
	kitchen := NewThing("kitchen")
	cook := NewThing("cook")
	kitchen.AddChild(cook)
	mp := NewMultipleParentsBehavior()
	door := NewThing("door", mp)
	hall.AddChild(door)
	mp.AddParent(kitchen)

	rec := &recorder{}
	rec.watch(hall, kitchen, cook, door)

	door.Eventing.Broadcast(NewMiscEvent(door, "creak", nil), ParentsDown)
	assert.Equal(t, []string{"hall", "door", "kitchen", "cook", "door"}, rec.visits)
}

func TestMultiParentThingVisitedOncePerParentSubtree(t *testing.T) {
	house := NewThing("house")
	hall := NewThing("hall")
	kitchen := NewThing("kitchen")
	house.AddChild(hall)
	house.AddChild(kitchen)
	mp := NewMultipleParentsBehavior()
	door := NewThing("door", mp)
	hall.AddChild(door)
	mp.AddParent(kitchen)

	count := 0
	door.Eventing.HandleEvent(CategoryMisc, func(*Thing, Event) { count++ })
	house.Eventing.Broadcast(NewMiscEvent(house, "quake", nil), SelfDown)
	assert.Equal(t, 2, count)
}

func TestCancelStopsTraversal(t *testing.T) {
	f := newFixture()
	var seen []string
	for _, th := range f.all() {
		th.Eventing.HandleRequest(CategoryCombat, func(receiver *Thing, r Request) {
			assert.False(t, r.IsCancelled(), "%s saw a cancelled request", receiver.Name())
			seen = append(seen, receiver.Name())
			if receiver == f.bob {
				r.Cancel("Bob blocks the blow.")
			}
		})
	}
	// room, alice, bob, bag, coin: bob is step 3 of 5.
	req := NewCombatRequest(f.alice, f.bob, 3, nil)
	ok := f.alice.Eventing.Request(req, ParentsDown)

	assert.False(t, ok)
	assert.True(t, req.IsCancelled())
	assert.Equal(t, "Bob blocks the blow.", req.CancelReason())
	assert.Equal(t, []string{"room", "alice", "bob"}, seen)
}

func TestCancelStopsRemainingHandlersOnSameThing(t *testing.T) {
	room := NewThing("room")
	actor := NewThing("actor")
	room.AddChild(actor)
	second := false
	room.Eventing.HandleRequest(CategoryMovement, func(_ *Thing, r Request) { r.Cancel("") })
	room.Eventing.HandleRequest(CategoryMovement, func(*Thing, Request) { second = true })

	assert.False(t, actor.Eventing.Request(NewMovementRequest(actor, room, nil, nil), ParentsDown))
	assert.False(t, second)
}

func TestEventsNeverShortCircuit(t *testing.T) {
	f := newFixture()
	rec := &recorder{}
	rec.watch(f.all()...)
	f.room.Eventing.Broadcast(NewCombatEvent(f.alice, f.bob, 1, nil), SelfDown)
	assert.Len(t, rec.visits, 5)
}

func TestCancelReasonDeliveredOnce(t *testing.T) {
	actor := NewThing("actor")
	ctrl := &fakeController{thing: actor}
	actor.Behaviors.Add(&controlled{c: ctrl})

	req := NewMiscRequest(actor, "jump", nil)
	req.Cancel("")
	req.Cancel("You are held down.")
	req.Cancel("You are held down.")
	req.Cancel("Something else.")

	assert.True(t, req.IsCancelled())
	assert.Equal(t, []string{"You are held down."}, ctrl.cancelled)
	assert.Empty(t, ctrl.lines, "cancel reasons do not go through the normal channel")
}

func TestCancelWithoutControllerIsSafe(t *testing.T) {
	req := NewMiscRequest(NewThing("rock"), "roll", nil)
	assert.NotPanics(t, func() {
		req.Cancel("no one listens")
		req.Cancel("")
	})
	assert.True(t, req.IsCancelled())
}

func TestAlreadyCancelledRequestIsNotBroadcast(t *testing.T) {
	f := newFixture()
	rec := &recorder{}
	rec.watch(f.all()...)
	req := NewMiscRequest(f.alice, "ping", nil)
	req.Cancel("")
	assert.False(t, f.alice.Eventing.Request(req, SelfDown))
	assert.Empty(t, rec.visits)
}

func TestPanickingHandlerDoesNotStopBroadcast(t *testing.T) {
	f := newFixture()
	f.bag.Eventing.HandleEvent(CategoryMisc, func(*Thing, Event) { panic("boom") })
	reached := false
	f.coin.Eventing.HandleEvent(CategoryMisc, func(*Thing, Event) { reached = true })

	assert.NotPanics(t, func() {
		f.alice.Eventing.Broadcast(NewMiscEvent(f.alice, "ping", nil), SelfDown)
	})
	assert.True(t, reached)
}

func TestUnsubscribe(t *testing.T) {
	th := NewThing("th")
	calls := 0
	sub := th.Eventing.HandleEvent(CategoryMisc, func(*Thing, Event) { calls++ })
	th.Eventing.Broadcast(NewMiscEvent(th, "a", nil), SelfOnly)
	sub.Unsubscribe()
	sub.Unsubscribe()
	th.Eventing.Broadcast(NewMiscEvent(th, "b", nil), SelfOnly)
	assert.Equal(t, 1, calls)

	Subscription{}.Unsubscribe()
}

func TestContextEnrichment(t *testing.T) {
	actor := NewThing("actor")
	container := NewThing("chest")

	msg := NewSensoryMessage(SenseSight, 10, ContextualString{ToOthers: "{{.ActiveThing}} opens something."})
	req := NewMiscRequest(actor, "open", msg)

	v, ok := msg.Context.Get("MiscRequest")
	require.True(t, ok)
	assert.Same(t, req, v)
	assert.Same(t, actor, msg.Context.Thing(ContextActiveThing))

	// A second originator staged on the same payload does not replace the first.
	ev := NewMiscEvent(container, "open", msg)
	assert.Same(t, actor, msg.Context.Thing(ContextActiveThing))
	v, _ = msg.Context.Get("MiscEvent")
	assert.Same(t, ev, v)
}

func TestRenderPicksAudience(t *testing.T) {
	alice := NewThing("Alice")
	bob := NewThing("Bob")
	carol := NewThing("Carol")
	msg := NewSensoryMessage(SenseSight, 10, ContextualString{
		ToOriginator: "You punch {{.Target}} for {{.Damage}}.",
		ToReceiver:   "{{.Aggressor}} punches you for {{.Damage}}.",
		ToOthers:     "{{.Aggressor}} punches {{.Target}}.",
	})
	NewCombatEvent(alice, bob, 4, msg)

	assert.Equal(t, "You punch Bob for 4.", msg.Render(alice))
	assert.Equal(t, "Alice punches you for 4.", msg.Render(bob))
	assert.Equal(t, "Alice punches Bob.", msg.Render(carol))
	assert.Equal(t, "", (*SensoryMessage)(nil).Render(carol))
}

func TestRenderBadTemplateFallsBackToRawText(t *testing.T) {
	msg := NewSensoryMessage(SenseHearing, 1, ContextualString{ToOthers: "{{.Broken"})
	assert.Equal(t, "{{.Broken", msg.Render(nil))
}
