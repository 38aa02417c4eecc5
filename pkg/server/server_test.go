package server

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crystal-mush/thingmud/pkg/behaviors"
	"github.com/crystal-mush/thingmud/pkg/command"
	"github.com/crystal-mush/thingmud/pkg/events"
	"github.com/crystal-mush/thingmud/pkg/world"
)

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Port = 0
	cfg.WebAddr = ""
	cfg.SaveInterval = 0
	cfg.HeartbeatMS = 10
	return cfg
}

func newEngine(t *testing.T, cfg Config) *Engine {
	t.Helper()
	log, _ := test.NewNullLogger()
	e, err := NewEngine(cfg, log)
	require.NoError(t, err)
	t.Cleanup(e.Stop)
	return e
}

// recorder is a session transport that keeps everything sent to it.
type recorder struct {
	mu     sync.Mutex
	events []events.Event
	closed bool
}

func (r *recorder) send(ev events.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recorder) close() {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()
}

func (r *recorder) texts() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.events))
	for i, ev := range r.events {
		out[i] = ev.Text
	}
	return out
}

func (r *recorder) has(text string) bool {
	for _, got := range r.texts() {
		if got == text {
			return true
		}
	}
	return false
}

func connect(e *Engine) (*Session, *recorder) {
	r := &recorder{}
	return e.NewSession(TransportTCP, "test", r.send, r.close), r
}

func login(t *testing.T, e *Engine, name string) (*Session, *recorder) {
	t.Helper()
	s, r := connect(e)
	require.True(t, s.HandleLine(name))
	require.NotNil(t, s.Player(), "login as %s: %v", name, r.texts())
	return s, r
}

func TestLoadConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "thingmud.yaml")
	require.NoError(t, os.WriteFile(path, []byte("port: 4444\nworkers: 2\nstart_room_name: The Well\n"), 0644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 4444, cfg.Port)
	assert.Equal(t, 2, cfg.Workers)
	assert.Equal(t, "The Well", cfg.StartRoomName)
	assert.Equal(t, DefaultConfig().PlayerHealth, cfg.PlayerHealth)

	bad := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("workers: 0\n"), 0644))
	_, err = LoadConfig(bad)
	assert.Error(t, err)

	_, err = LoadConfig(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)
}

func TestLoginCreatesPlayerInStartRoom(t *testing.T) {
	e := newEngine(t, testConfig())
	s, r := connect(e)
	s.Greet()
	assert.Equal(t, command.RoleNone, s.Roles())

	require.True(t, s.HandleLine("alice"))
	p := s.Player()
	require.NotNil(t, p)
	assert.Equal(t, "player:alice", p.ID())
	assert.Equal(t, "Alice", p.Name())
	assert.True(t, p.IsPromoted())
	assert.Same(t, e.StartRoom(), p.Parent())
	assert.Same(t, p, e.Things.Get("player:alice"))
	assert.Same(t, s, world.ControllerOf(p))
	assert.Equal(t, command.RolePlayer, s.Roles())
	assert.Equal(t, 1, e.Bus.PlayerSubscribers("player:alice"))

	assert.True(t, r.has("You arrive in The Crossroads."), r.texts())
	assert.True(t, r.has("Welcome, Alice."), r.texts())
	assert.Equal(t, 1, e.Queue.Len(), "an initial look is queued")
}

func TestLoginRejections(t *testing.T) {
	e := newEngine(t, testConfig())
	login(t, e, "alice")

	tests := []struct {
		name string
		line string
		want string
	}{
		{"bad name", "al1ce", msgBadName},
		{"too short", "a", msgBadName},
		{"in use", "ALICE", msgNameInUse},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, r := connect(e)
			assert.True(t, s.HandleLine(tt.line))
			assert.Nil(t, s.Player())
			assert.True(t, r.has(tt.want), r.texts())
		})
	}
}

func TestCommandsReachOthersInTheRoom(t *testing.T) {
	e := newEngine(t, testConfig())
	require.NoError(t, e.Start(context.Background()))

	_, bobOut := login(t, e, "bob")
	alice, aliceOut := login(t, e, "alice")

	require.True(t, alice.HandleLine("say hello there"))
	require.Eventually(t, func() bool {
		return aliceOut.has(`You say, "hello there"`) && bobOut.has(`Alice says, "hello there"`)
	}, 2*time.Second, 10*time.Millisecond)

	require.True(t, alice.HandleLine("dance"))
	require.Eventually(t, func() bool { return aliceOut.has(command.MsgUnknown) }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, 2, alice.Commands())
}

func TestQuitEndsSession(t *testing.T) {
	e := newEngine(t, testConfig())
	s, r := login(t, e, "alice")
	assert.False(t, s.HandleLine("QUIT"))
	assert.True(t, r.has(msgGoodbye))
}

func TestLogoutRemovesPlayer(t *testing.T) {
	e := newEngine(t, testConfig())
	_, bobOut := login(t, e, "bob")
	alice, _ := login(t, e, "alice")
	alice.HandleLine("say one")
	alice.HandleLine("say two")

	e.Logout(alice)
	e.Logout(alice)

	assert.Nil(t, e.Things.Get("player:alice"))
	assert.Equal(t, 0, e.Bus.PlayerSubscribers("player:alice"))
	assert.False(t, e.StartRoom().HasChild(alice.Player()))
	assert.Equal(t, 1, e.Queue.Len(), "only bob's look is left")
	assert.True(t, bobOut.has("Alice fades from the world."), bobOut.texts())
	assert.Len(t, e.Sessions(), 1)
}

func TestReturningPlayerIsRestored(t *testing.T) {
	dir := t.TempDir()
	cfg := testConfig()
	cfg.BoltPath = filepath.Join(dir, "world.db")
	cfg.JournalPath = filepath.Join(dir, "journal.db")
	e := newEngine(t, cfg)

	alice, _ := login(t, e, "alice")
	stats := world.FindFirst[*behaviors.Stats](alice.Player())
	require.NotNil(t, stats)
	stats.Adjust(behaviors.StatHealth, -13)
	e.Logout(alice)

	again, out := connect(e)
	require.True(t, again.HandleLine("Alice"))
	p := again.Player()
	require.NotNil(t, p)
	assert.Equal(t, "player:alice", p.ID())
	assert.Equal(t, 7, world.FindFirst[*behaviors.Stats](p).Value(behaviors.StatHealth))
	assert.True(t, world.HasBehavior[*behaviors.Balance](p))
	assert.Same(t, again, world.ControllerOf(p))

	texts := out.texts()
	assert.Contains(t, texts, "--- Recent messages ---")
	assert.Contains(t, texts, "Welcome, Alice.")
	assert.Contains(t, texts, "Welcome back, Alice.")
}

func TestDeadPlayerIsRevivedOnLogin(t *testing.T) {
	cfg := testConfig()
	cfg.BoltPath = filepath.Join(t.TempDir(), "world.db")
	e := newEngine(t, cfg)

	alice, _ := login(t, e, "alice")
	stats := world.FindFirst[*behaviors.Stats](alice.Player())
	stats.Adjust(behaviors.StatHealth, -100)
	require.False(t, world.FindFirst[*behaviors.Living](alice.Player()).IsAlive())
	e.Logout(alice)

	again, out := login(t, e, "alice")
	assert.True(t, world.FindFirst[*behaviors.Living](again.Player()).IsAlive())
	assert.Equal(t, cfg.PlayerHealth, world.FindFirst[*behaviors.Stats](again.Player()).Value(behaviors.StatHealth))
	assert.True(t, out.has("You return to life."), out.texts())
}

func TestWorldSurvivesRestart(t *testing.T) {
	cfg := testConfig()
	cfg.BoltPath = filepath.Join(t.TempDir(), "world.db")

	log, _ := test.NewNullLogger()
	first, err := NewEngine(cfg, log)
	require.NoError(t, err)
	first.StartRoom().AddChild(world.RestoreThing("fountain", "stone fountain"))
	login(t, first, "alice")
	first.Stop()
	first.Stop()

	second := newEngine(t, cfg)
	assert.Equal(t, "world", second.Root().ID())
	require.Len(t, second.Root().Children(), 1)
	start := second.StartRoom()
	require.NotNil(t, start)
	assert.True(t, world.HasBehavior[*behaviors.Room](start))
	assert.NotNil(t, start.FindChild("stone"))
	assert.Nil(t, start.FindChild("alice"), "players are saved on their own")
	assert.NotNil(t, second.Things.Get("fountain"))
}

func TestSessionAfterStopIsClosed(t *testing.T) {
	log, _ := test.NewNullLogger()
	e, err := NewEngine(testConfig(), log)
	require.NoError(t, err)
	e.Stop()

	s, r := connect(e)
	assert.True(t, s.Closed())
	assert.True(t, r.closed)
	assert.Empty(t, e.Sessions())
}

func TestManifestDisablesCommand(t *testing.T) {
	cfg := testConfig()
	cfg.ManifestPath = filepath.Join(t.TempDir(), "commands.yaml")
	require.NoError(t, os.WriteFile(cfg.ManifestPath, []byte("commands:\n  say:\n    disabled: true\n"), 0644))
	e := newEngine(t, cfg)

	_, ok := e.Commands.Lookup("say")
	assert.False(t, ok)
	_, ok = e.Commands.Lookup("look")
	assert.True(t, ok)
}

func TestMetricsAndHealth(t *testing.T) {
	e := newEngine(t, testConfig())
	login(t, e, "alice")
	e.Pipeline.Process(command.ParseActionInput("nonsense", nil))

	ws := NewWebServer(e, "")
	rec := httptest.NewRecorder()
	ws.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, `thingmud_commands_processed_total{outcome="unknown"} 1`)
	assert.Contains(t, body, `thingmud_sessions_connected{transport="tcp"} 1`)

	rec = httptest.NewRecorder()
	ws.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	var health map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &health))
	assert.Equal(t, "ok", health["status"])
	assert.EqualValues(t, 1, health["sessions"])
}

func TestWebSocketSession(t *testing.T) {
	e := newEngine(t, testConfig())
	require.NoError(t, e.Start(context.Background()))
	ts := httptest.NewServer(NewWebServer(e, "").Handler())
	t.Cleanup(ts.Close)

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(ts.URL, "http")+"/ws", nil)
	require.NoError(t, err)
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	var msg WSMessage
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, "prompt", msg.Type)

	require.NoError(t, conn.WriteJSON(WSMessage{Type: "login", Command: "carol"}))
	seen := map[string]bool{}
	for !seen["Welcome, Carol."] || !seen["The Crossroads"] {
		require.NoError(t, conn.ReadJSON(&msg))
		for _, line := range strings.Split(msg.Text, "\n") {
			seen[line] = true
		}
	}

	require.NoError(t, conn.WriteJSON(WSMessage{Type: "bogus"}))
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, "error", msg.Type)

	conn.Close()
	require.Eventually(t, func() bool { return e.Things.Get("player:carol") == nil }, 2*time.Second, 10*time.Millisecond)
}

func TestTelnetSession(t *testing.T) {
	e := newEngine(t, testConfig())
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	srv := NewServer(e)
	done := make(chan error, 1)
	go func() { done <- srv.Serve(context.Background(), ln) }()

	conn, err := net.Dial("tcp", ln.Addr().String())
	require.NoError(t, err)
	defer conn.Close()
	conn.SetDeadline(time.Now().Add(5 * time.Second))
	r := bufio.NewReader(conn)

	readUntil := func(want string) {
		t.Helper()
		for {
			line, err := r.ReadString('\n')
			require.NoError(t, err, "waiting for %q", want)
			if strings.Contains(line, want) {
				return
			}
		}
	}

	fmt.Fprint(conn, "dave\r\n")
	readUntil("Welcome, Dave.")
	fmt.Fprint(conn, "\xff\xfb\x01say hi\r\n")
	readUntil(`You say, "hi"`)
	fmt.Fprint(conn, "quit\r\n")
	readUntil(msgGoodbye)

	require.Eventually(t, func() bool { return e.Things.Get("player:dave") == nil }, 2*time.Second, 10*time.Millisecond)
	srv.Stop()
	assert.NoError(t, <-done)
}

func TestStripTelnet(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"look", "look"},
		{"look\r", "look"},
		{"\xff\xfd\x18look", "look"},
		{"\xff\xfa\x18\x00xterm\xff\xf0say hi", "say hi"},
		{"a\xff\xffb", "a\xffb"},
		{"\xff\xf1go", "go"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, stripTelnet(tt.in), "%q", tt.in)
	}
}
