package command

import (
	"errors"
	"sync"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crystal-mush/thingmud/pkg/world"
)

type fakeController struct {
	mu        sync.Mutex
	thing     *world.Thing
	roles     Role
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

func (c *fakeController) Thing() *world.Thing { return c.thing }
func (c *fakeController) Roles() Role         { return c.roles }

func (c *fakeController) output() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.lines...)
}

func newPlayer(name string) *fakeController {
	return &fakeController{thing: world.NewThing(name), roles: RolePlayer}
}

// probe is a scriptable Executor that counts its calls.
type probe struct {
	guard   string
	err     error
	panics  bool
	guards  *int
	execs   *int
	onGuard func(in *ActionInput)
}

func (p *probe) Guards(in *ActionInput) string {
	*p.guards++
	if p.onGuard != nil {
		p.onGuard(in)
	}
	return p.guard
}

func (p *probe) Execute(in *ActionInput) error {
	*p.execs++
	if p.panics {
		panic("kaboom")
	}
	return p.err
}

type probeDef struct {
	guards, execs int
	guard         string
	err           error
	panics        bool
}

func (d *probeDef) definition(name string, roles Role, aliases ...string) Definition {
	def := Definition{
		Name:    name,
		Primary: Alias{Name: name, Category: "test"},
		Roles:   roles,
		New: func() Executor {
			return &probe{guard: d.guard, err: d.err, panics: d.panics, guards: &d.guards, execs: &d.execs}
		},
	}
	for _, a := range aliases {
		def.Secondary = append(def.Secondary, Alias{Name: a, Category: "test"})
	}
	return def
}

func quietLogger() logrus.FieldLogger {
	log, _ := test.NewNullLogger()
	return log
}

func TestParseActionInput(t *testing.T) {
	tests := []struct {
		text   string
		noun   string
		tail   string
		params []string
	}{
		{"look", "look", "", nil},
		{"look   ", "look", "", nil},
		{"  ATTACK  Bob  ", "attack", "Bob", []string{"Bob"}},
		{"say hello there", "say", "hello there", []string{"hello", "there"}},
		{"'hello there", "'", "hello there", []string{"hello", "there"}},
		{"", "", "", nil},
	}
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			in := ParseActionInput(tt.text, nil)
			assert.Equal(t, tt.noun, in.Noun)
			assert.Equal(t, tt.tail, in.Tail)
			assert.Equal(t, tt.params, in.Params)
		})
	}
}

func TestRoleAllows(t *testing.T) {
	assert.False(t, RoleNone.Allows(RoleAll), "none must fail closed")
	assert.True(t, (RolePlayer | RoleMobile).Allows(RoleMobile))
	assert.False(t, RoleFullAdmin.Allows(RolePlayer))
	assert.True(t, RoleAll.Allows(RoleHelper))

	r, err := ParseRoles([]string{"player", "FullAdmin"})
	require.NoError(t, err)
	assert.Equal(t, RolePlayer|RoleFullAdmin, r)
	assert.Equal(t, "player|fulladmin", r.String())

	_, err = ParseRole("wizard")
	assert.Error(t, err)
}

func TestRegistryTables(t *testing.T) {
	reg := NewRegistry(quietLogger())
	d := &probeDef{}
	require.NoError(t, reg.Recompose([]Definition{
		d.definition("attack", RolePlayer, "punch", "kill"),
		d.definition("look", RolePlayer, "l"),
	}))

	primary, master := reg.Len()
	assert.Equal(t, 2, primary)
	assert.Equal(t, 5, master)

	punch, ok := reg.Lookup("PUNCH")
	require.True(t, ok)
	attack, _ := reg.Lookup("attack")
	assert.False(t, punch.IsPrimary)
	assert.True(t, attack.IsPrimary)
	assert.Same(t, attack.Definition, punch.Definition, "aliases share one identity")

	var names []string
	for _, c := range reg.Primary() {
		names = append(names, c.Alias)
	}
	assert.Equal(t, []string{"attack", "look"}, names)
}

func TestRegistryFirstDefinitionKeepsDuplicateAlias(t *testing.T) {
	reg := NewRegistry(quietLogger())
	a, b := &probeDef{}, &probeDef{}
	require.NoError(t, reg.Recompose([]Definition{
		a.definition("one", RolePlayer, "x"),
		b.definition("two", RolePlayer, "x"),
	}))
	cmd, ok := reg.Lookup("x")
	require.True(t, ok)
	assert.Equal(t, "one", cmd.Definition.Name)
}

func TestRecomposeRejectsInvalidAndKeepsTables(t *testing.T) {
	reg := NewRegistry(quietLogger())
	d := &probeDef{}
	require.NoError(t, reg.Recompose([]Definition{d.definition("look", RolePlayer)}))

	err := reg.Recompose([]Definition{{Name: "broken", Primary: Alias{Name: "broken"}}})
	assert.True(t, errors.Is(err, ErrInvalidDefinition))
	_, ok := reg.Lookup("look")
	assert.True(t, ok, "failed recompose leaves the previous tables")
}

func TestRecomposeWhileDispatching(t *testing.T) {
	reg := NewRegistry(quietLogger())
	d := &probeDef{}
	defsA := []Definition{d.definition("alpha", RoleAll, "a1", "a2")}
	defsB := []Definition{d.definition("beta", RoleAll, "b1", "b2")}
	require.NoError(t, reg.Recompose(defsA))

	var wg sync.WaitGroup
	stop := make(chan struct{})
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 200; i++ {
			if i%2 == 0 {
				_ = reg.Recompose(defsB)
			} else {
				_ = reg.Recompose(defsA)
			}
		}
		close(stop)
	}()
	for {
		select {
		case <-stop:
			wg.Wait()
			return
		default:
		}
		// Tables are swapped whole: either every alpha alias resolves or none.
		primary, master := reg.Len()
		assert.Equal(t, 1, primary)
		assert.Equal(t, 3, master)
		if c, ok := reg.Lookup("a1"); ok {
			assert.Equal(t, "alpha", c.Definition.Name)
		}
	}
}

func TestGuardFailureSkipsExecute(t *testing.T) {
	d := &probeDef{guard: "You cannot do that."}
	p := newTestPipeline(t, d.definition("jump", RolePlayer))
	ctrl := newPlayer("alice")
	other := newPlayer("bob")

	outcome := p.Process(ParseActionInput("jump", ctrl))

	assert.Equal(t, GuardFailed, outcome)
	assert.Equal(t, 1, d.guards)
	assert.Equal(t, 0, d.execs)
	assert.Equal(t, []string{"You cannot do that."}, ctrl.output())
	assert.Empty(t, other.output())
}

func TestProcessOutcomes(t *testing.T) {
	ok := &probeDef{}
	failing := &probeDef{err: errors.New("disk on fire")}
	panicking := &probeDef{panics: true}
	locked := &probeDef{}
	p := newTestPipeline(t,
		ok.definition("wave", RolePlayer),
		failing.definition("break", RolePlayer),
		panicking.definition("crash", RolePlayer),
		locked.definition("shutdown", RoleFullAdmin),
		(&probeDef{}).definition("unset", RoleNone),
	)

	tests := []struct {
		text    string
		outcome Outcome
		reply   []string
	}{
		{"wave", Executed, nil},
		{"break", Failed, []string{MsgFailed}},
		{"crash", Failed, []string{MsgFailed}},
		{"shutdown", Denied, []string{MsgDenied}},
		{"unset", Denied, []string{MsgDenied}},
		{"dance", Unknown, []string{MsgUnknown}},
		{"   ", Empty, nil},
	}
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			ctrl := newPlayer("alice")
			assert.Equal(t, tt.outcome, p.Process(ParseActionInput(tt.text, ctrl)))
			assert.Equal(t, tt.reply, ctrl.output())
		})
	}
	assert.Equal(t, 0, locked.guards, "denied commands are never instantiated")
	assert.Equal(t, 1, panicking.execs)
}

func TestFreshExecutorPerInput(t *testing.T) {
	var instances []Executor
	var mu sync.Mutex
	def := Definition{
		Name:    "count",
		Primary: Alias{Name: "count"},
		Roles:   RoleAll,
		New: func() Executor {
			e := &stateful{}
			mu.Lock()
			instances = append(instances, e)
			mu.Unlock()
			return e
		},
	}
	p := newTestPipeline(t, def)
	ctrl := newPlayer("alice")
	p.Process(ParseActionInput("count bob", ctrl))
	p.Process(ParseActionInput("count carol", ctrl))

	require.Len(t, instances, 2)
	assert.Equal(t, []string{"bob", "carol"}, ctrl.output())
}

// stateful resolves a target in Guards and reuses it in Execute.
type stateful struct {
	target string
}

func (s *stateful) Guards(in *ActionInput) string {
	if s.target != "" {
		return "reused instance"
	}
	return RunGuards(in, RequireArgs(1, "count <name>"), func(in *ActionInput) string {
		s.target = in.Params[0]
		return ""
	})
}

func (s *stateful) Execute(in *ActionInput) error {
	in.Reply(s.target)
	return nil
}

func TestRunGuardsShortCircuits(t *testing.T) {
	var calls []string
	g := func(name, result string) Guard {
		return func(*ActionInput) string {
			calls = append(calls, name)
			return result
		}
	}
	msg := RunGuards(&ActionInput{}, g("alive", ""), nil, g("balanced", "You are off balance."), g("args", "never"))
	assert.Equal(t, "You are off balance.", msg)
	assert.Equal(t, []string{"alive", "balanced"}, calls)
}

func TestStockGuards(t *testing.T) {
	assert.Equal(t, "Usage: say <text>", RequireArgs(1, "say <text>")(&ActionInput{}))
	assert.Equal(t, "That command needs 2 arguments.", RequireArgs(2, "")(&ActionInput{Params: []string{"a"}}))
	assert.Empty(t, RequireArgs(1, "")(&ActionInput{Params: []string{"a"}}))

	assert.NotEmpty(t, RequireActor(&ActionInput{}))
	assert.NotEmpty(t, RequireActor(&ActionInput{Controller: &fakeController{}}))
	assert.Empty(t, RequireActor(ParseActionInput("x", newPlayer("alice"))))
}

func newTestPipeline(t *testing.T, defs ...Definition) *Pipeline {
	t.Helper()
	reg := NewRegistry(quietLogger())
	require.NoError(t, reg.Recompose(defs))
	return NewPipeline(reg, NewQueue(DefaultMaxPerController), WithLogger(quietLogger()))
}
