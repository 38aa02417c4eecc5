package server

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/crystal-mush/thingmud/pkg/behaviors"
	"github.com/crystal-mush/thingmud/pkg/boltstore"
	"github.com/crystal-mush/thingmud/pkg/command"
	"github.com/crystal-mush/thingmud/pkg/commands"
	"github.com/crystal-mush/thingmud/pkg/events"
	"github.com/crystal-mush/thingmud/pkg/journal"
	"github.com/crystal-mush/thingmud/pkg/timing"
	"github.com/crystal-mush/thingmud/pkg/world"
)

const (
	rootID         = "world"
	playerIDPrefix = "player:"
)

var (
	ErrBadName   = errors.New("server: invalid player name")
	ErrNameInUse = errors.New("server: player already connected")
)

var validName = regexp.MustCompile(`^[A-Za-z]{2,16}$`)

// Engine wires the simulation services together. It is built once at
// startup and handed to the listeners.
type Engine struct {
	Config Config
	Log    logrus.FieldLogger

	Things   *world.Registry
	Kinds    *world.BehaviorKinds
	Timing   *timing.System
	Commands *command.Registry
	Queue    *command.Queue
	Pipeline *command.Pipeline
	Loader   *command.Loader
	Env      *commands.Env
	Bus      *events.Bus
	Store    *boltstore.Store // nil when the world lives in memory only
	Journal  *journal.Journal // nil when no journal is configured
	Metrics  *Metrics

	root  *world.Thing
	start *world.Thing

	mu       sync.Mutex
	sessions map[int64]*Session
	nextID   int64
	cancel   context.CancelFunc
	done     chan struct{}
	stopped  bool
}

// NewEngine builds every service from cfg and loads or creates the world.
func NewEngine(cfg Config, log logrus.FieldLogger) (*Engine, error) {
	if log == nil {
		log = logrus.StandardLogger()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	world.SetLogger(log)

	e := &Engine{
		Config:   cfg,
		Log:      log.WithField("subsystem", "engine"),
		Things:   world.NewRegistry(),
		Kinds:    world.NewBehaviorKinds(),
		Bus:      events.NewBus(),
		Metrics:  NewMetrics(nil),
		sessions: make(map[int64]*Session),
	}
	e.Metrics.engine = e
	behaviors.Register(e.Kinds)

	e.Timing = timing.New(
		timing.WithInterval(cfg.heartbeat()),
		timing.WithLogger(log),
		timing.WithObserver(e.Metrics.TimersSwept),
	)

	e.Commands = command.NewRegistry(log)
	e.Queue = command.NewQueue(cfg.MaxQueuedPerSession)
	e.Pipeline = command.NewPipeline(e.Commands, e.Queue,
		command.WithLogger(log),
		command.WithObserver(e.Metrics),
	)

	e.Env = commands.DefaultEnv()
	e.Env.Scheduler = e.Timing
	e.Env.Enqueue = e.Pipeline.EnqueueAction
	e.Env.Registry = e.Commands
	if cfg.RestSeconds > 0 {
		e.Env.RestDelay = time.Duration(cfg.RestSeconds) * time.Second
	}
	if cfg.RestHeal > 0 {
		e.Env.RestHeal = cfg.RestHeal
	}
	if cfg.AttackBalanceMS > 0 {
		e.Env.AttackBalance = time.Duration(cfg.AttackBalanceMS) * time.Millisecond
	}

	e.Loader = &command.Loader{
		Catalog:      func() []command.Definition { return commands.Catalog(e.Env) },
		ManifestPath: cfg.ManifestPath,
		Log:          log.WithField("subsystem", "command"),
	}
	if err := e.Loader.Reload(e.Commands); err != nil {
		return nil, fmt.Errorf("loading commands: %w", err)
	}

	if cfg.BoltPath != "" {
		store, err := boltstore.Open(cfg.BoltPath,
			boltstore.WithLogger(log),
			boltstore.WithSkip(world.HasBehavior[*behaviors.UserControlled]),
		)
		if err != nil {
			return nil, err
		}
		e.Store = store
	}
	if cfg.JournalPath != "" {
		j, err := journal.Open(cfg.JournalPath, 5*time.Second, log)
		if err != nil {
			e.closeStores()
			return nil, err
		}
		j.Attach(e.Bus)
		e.Journal = j
	}

	if err := e.loadWorld(); err != nil {
		e.closeStores()
		return nil, err
	}
	return e, nil
}

// loadWorld restores the saved tree, or builds a root holding the start
// room when there is nothing to restore.
func (e *Engine) loadWorld() error {
	if e.Store != nil {
		if id, ok := e.Store.RootID(); ok {
			root, err := e.Store.LoadTree(id, e.Kinds)
			if err != nil {
				return fmt.Errorf("loading world: %w", err)
			}
			e.root = root
			e.Log.WithFields(logrus.Fields{"root": id}).Info("world loaded from bolt")
		}
	}
	if e.root == nil {
		e.root = world.RestoreThing(rootID, e.Config.Name)
		e.Log.Info("created new world")
	}
	if err := e.register(e.root); err != nil {
		return err
	}

	e.start = e.Things.Get(e.Config.StartRoomID)
	if e.start == nil {
		e.start = world.RestoreThing(e.Config.StartRoomID, e.Config.StartRoomName, behaviors.NewRoom())
		e.start.SetDescription(e.Config.StartRoomDesc)
		e.root.AddChild(e.start)
		if err := e.Things.Add(e.start); err != nil {
			return err
		}
	}
	return nil
}

// register adds t and everything below it to the live registry.
func (e *Engine) register(t *world.Thing) error {
	if err := e.Things.Add(t); err != nil {
		return err
	}
	for _, c := range t.Children() {
		if c.Parent() != t {
			continue
		}
		if err := e.register(c); err != nil {
			return err
		}
	}
	return nil
}

// Root returns the top of the world tree.
func (e *Engine) Root() *world.Thing { return e.root }

// StartRoom returns the room new players arrive in.
func (e *Engine) StartRoom() *world.Thing { return e.start }

// Start launches the heartbeat, the command workers, the manifest watcher,
// journal retention and periodic saves. It returns immediately.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.cancel != nil {
		return nil
	}
	ctx, cancel := context.WithCancel(ctx)

	e.Timing.Start(ctx)
	if err := e.Pipeline.Start(ctx, e.Config.Workers); err != nil {
		cancel()
		e.Timing.Stop()
		return err
	}
	if err := e.Loader.Watch(ctx, e.Commands); err != nil {
		e.Log.WithError(err).Warn("manifest hot reload disabled")
	}
	if e.Journal != nil {
		e.Journal.StartRetentionCleanup(ctx, e.Config.journalRetention(), time.Hour)
	}

	e.cancel = cancel
	e.done = make(chan struct{})
	go e.saveLoop(ctx, e.done)
	return nil
}

func (e *Engine) saveLoop(ctx context.Context, done chan struct{}) {
	defer close(done)
	if e.Store == nil || e.Config.SaveInterval <= 0 {
		<-ctx.Done()
		return
	}
	ticker := time.NewTicker(time.Duration(e.Config.SaveInterval) * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := e.SaveWorld(); err != nil {
				e.Log.WithError(err).Error("periodic save failed")
			}
		}
	}
}

// SaveWorld writes the world tree and every connected player.
func (e *Engine) SaveWorld() error {
	if e.Store == nil {
		return nil
	}
	if err := e.Store.SaveTree(e.root); err != nil {
		return err
	}
	for _, s := range e.Sessions() {
		if p := s.Player(); p != nil {
			if err := e.Store.SavePlayer(p); err != nil {
				e.Log.WithError(err).WithField("player", p.Name()).Warn("player save failed")
			}
		}
	}
	return nil
}

// Stop disconnects every session, halts the workers and the heartbeat,
// saves the world and closes the stores.
func (e *Engine) Stop() {
	e.mu.Lock()
	if e.stopped {
		e.mu.Unlock()
		return
	}
	e.stopped = true
	e.mu.Unlock()

	e.Bus.Emit(events.Event{Type: events.EvSystem, Text: "The world fades as the server shuts down."})
	for _, s := range e.Sessions() {
		s.Close()
		e.Logout(s)
	}

	e.mu.Lock()
	cancel, done := e.cancel, e.done
	e.cancel, e.done = nil, nil
	e.mu.Unlock()
	if cancel != nil {
		cancel()
		<-done
	}
	e.Pipeline.Stop()
	e.Timing.Stop()

	if err := e.SaveWorld(); err != nil {
		e.Log.WithError(err).Error("final save failed")
	}
	e.closeStores()
	e.Log.Info("engine stopped")
}

func (e *Engine) closeStores() {
	if e.Journal != nil {
		if err := e.Journal.Close(); err != nil {
			e.Log.WithError(err).Warn("closing journal")
		}
	}
	if e.Store != nil {
		if err := e.Store.Close(); err != nil {
			e.Log.WithError(err).Warn("closing bolt store")
		}
	}
	e.Bus.Cleanup()
}

// NewSession registers a connection. send delivers output to the client
// and closer drops the transport. After Stop the session comes back
// already closed.
func (e *Engine) NewSession(transport, addr string, send func(events.Event), closer func()) *Session {
	e.mu.Lock()
	e.nextID++
	s := &Session{
		ID:        e.nextID,
		Addr:      addr,
		Transport: transport,
		ConnTime:  time.Now(),
		engine:    e,
		send:      send,
		closer:    closer,
		lastCmd:   time.Now(),
	}
	stopped := e.stopped
	if !stopped {
		e.sessions[s.ID] = s
	}
	e.mu.Unlock()
	if stopped {
		s.Close()
		return s
	}

	e.Metrics.Connected(transport)
	e.Log.WithFields(logrus.Fields{"session": s.ID, "addr": addr, "transport": transport}).Info("new connection")
	return s
}

// Sessions returns a snapshot of the connected sessions.
func (e *Engine) Sessions() []*Session {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]*Session, 0, len(e.sessions))
	for _, s := range e.sessions {
		out = append(out, s)
	}
	return out
}

// SessionCounts returns the number of sessions per transport.
func (e *Engine) SessionCounts() map[string]int {
	counts := map[string]int{}
	for _, s := range e.Sessions() {
		counts[s.Transport]++
	}
	return counts
}

// Login attaches a player Thing to s: a saved player is restored, anyone
// else is created fresh. The player is placed where they were last saved,
// or in the start room.
func (e *Engine) Login(s *Session, name string) (player *world.Thing, created bool, err error) {
	name = strings.TrimSpace(name)
	if !validName.MatchString(name) {
		return nil, false, ErrBadName
	}
	id := playerIDPrefix + strings.ToLower(name)
	if e.Things.Get(id) != nil {
		return nil, false, ErrNameInUse
	}

	var loc *world.Thing
	if e.Store != nil {
		p, locID, err := e.Store.LoadPlayer(name, e.Kinds)
		switch {
		case err == nil:
			player = p
			loc = e.Things.Get(locID)
		case !errors.Is(err, boltstore.ErrNotFound):
			return nil, false, err
		}
	}

	if player != nil {
		player.Behaviors.Add(behaviors.NewUserControlled(s))
		player.Behaviors.Add(behaviors.NewBalance(e.Timing))
		if err := e.register(player); err != nil {
			return nil, false, err
		}
		e.Bus.Subscribe(player.ID(), s)
	} else {
		player, err = e.createPlayer(s, name, id)
		if err != nil {
			return nil, false, err
		}
		created = true
	}
	s.setPlayer(player)
	if !created {
		e.replay(s, player)
	}

	if loc == nil || !world.HasBehavior[*behaviors.Room](loc) {
		loc = e.start
	}
	behaviors.Move(player, loc)
	e.revive(player)

	e.Log.WithFields(logrus.Fields{"session": s.ID, "player": player.ID(), "created": created}).Info("player logged in")
	return player, created, nil
}

// createPlayer builds a new player under a temporary ID and promotes it to
// its permanent one, carrying its subscriptions along.
func (e *Engine) createPlayer(s *Session, name, id string) (*world.Thing, error) {
	cfg := e.Config
	player := world.NewThing(strings.ToUpper(name[:1])+strings.ToLower(name[1:]),
		behaviors.NewUserControlled(s),
		behaviors.NewSenses(world.SenseAll),
		behaviors.NewLiving(),
		behaviors.NewMobile(),
		behaviors.NewBalance(e.Timing),
		behaviors.NewCombatStats(cfg.PlayerHealth, cfg.PlayerAttack, cfg.PlayerDefense),
	)
	player.SetDescription("An adventurer, new to these parts.")
	if err := e.Things.Add(player); err != nil {
		return nil, err
	}
	tmp := player.ID()
	e.Bus.Subscribe(tmp, s)

	if err := e.Things.Promote(player, id); err != nil {
		e.Bus.Unsubscribe(tmp, s)
		e.Things.Remove(player)
		if errors.Is(err, world.ErrDuplicateID) {
			return nil, ErrNameInUse
		}
		return nil, err
	}
	e.Bus.Rekey(tmp, id)
	if e.Journal != nil {
		if err := e.Journal.Rekey(tmp, id); err != nil {
			e.Log.WithError(err).Warn("journal rekey failed")
		}
	}
	return player, nil
}

// replay shows a returning player the tail of their journal.
func (e *Engine) replay(s *Session, player *world.Thing) {
	if e.Journal == nil || e.Config.JournalReplay <= 0 {
		return
	}
	entries, err := e.Journal.Recent(player.ID(), time.Time{}, e.Config.JournalReplay)
	if err != nil {
		e.Log.WithError(err).WithField("player", player.ID()).Warn("journal replay failed")
		return
	}
	if len(entries) == 0 {
		return
	}
	s.Receive(events.Event{Type: events.EvSystem, Player: player.ID(), Text: "--- Recent messages ---"})
	for _, en := range entries {
		s.Receive(events.Event{Type: events.EvText, Player: en.Player, Source: en.Source, Text: en.Text, Time: en.Time})
	}
	s.Receive(events.Event{Type: events.EvSystem, Player: player.ID(), Text: "--- End of recent messages ---"})
}

// revive brings a player who logged out dead back to full health.
func (e *Engine) revive(player *world.Thing) {
	living := world.FindFirst[*behaviors.Living](player)
	stats := world.FindFirst[*behaviors.Stats](player)
	if living == nil || stats == nil || living.IsAlive() {
		return
	}
	if st, ok := stats.Get(behaviors.StatHealth); ok {
		stats.Adjust(behaviors.StatHealth, st.Max-st.Value)
	}
}

// Logout saves the session's player and takes it out of the world. It is
// safe to call more than once.
func (e *Engine) Logout(s *Session) {
	s.logoutOnce.Do(func() {
		e.mu.Lock()
		delete(e.sessions, s.ID)
		e.mu.Unlock()

		dropped := e.Queue.Drain(s)
		player := s.Player()
		if player == nil {
			e.Log.WithField("session", s.ID).Info("connection closed before login")
			return
		}
		if e.Store != nil {
			if err := e.Store.SavePlayer(player); err != nil {
				e.Log.WithError(err).WithField("player", player.ID()).Error("saving player failed")
			}
		}

		msg := world.NewSensoryMessage(world.SenseSight, 10, world.ContextualString{
			ToOthers: "{{.ActiveThing}} fades from the world.",
		})
		player.Eventing.Broadcast(world.NewMiscEvent(player, "disconnect", msg), world.ParentsDown)

		e.Bus.Unsubscribe(player.ID(), s)
		player.Destroy()
		e.Log.WithFields(logrus.Fields{
			"session": s.ID,
			"player":  player.ID(),
			"dropped": dropped,
		}).Info("player logged out")
	})
}
