package journal

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crystal-mush/thingmud/pkg/events"
)

func openJournal(t *testing.T) *Journal {
	t.Helper()
	log, _ := test.NewNullLogger()
	j, err := Open(filepath.Join(t.TempDir(), "journal.db"), time.Second, log)
	require.NoError(t, err)
	t.Cleanup(func() { j.Close() })
	return j
}

func TestJournalRecordsBusOutput(t *testing.T) {
	j := openJournal(t)
	bus := events.NewBus()
	j.Attach(bus)

	start := time.Now().Add(-time.Minute)
	bus.EmitToPlayer("alice", events.Event{Type: events.EvText, Text: "Bob hits you."})
	bus.EmitToPlayer("alice", events.Event{Type: events.EvPrompt, Text: "> "})
	bus.EmitToPlayer("bob", events.Event{Type: events.EvText, Text: "You hit Alice."})
	bus.Emit(events.Event{Type: events.EvSystem, Text: "Rebooting."})
	bus.EmitToPlayer("alice", events.Event{Type: events.EvCancel, Text: "You are held down."})

	got, err := j.Recent("alice", start, 10)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "Bob hits you.", got[0].Text)
	assert.Equal(t, "text", got[0].Kind)
	assert.Equal(t, "cancel", got[1].Kind)
}

func TestRecentKeepsNewestInOrder(t *testing.T) {
	j := openJournal(t)
	base := time.Now()
	for i, text := range []string{"one", "two", "three", "four"} {
		require.NoError(t, j.Insert(Entry{Player: "p", Kind: "text", Text: text, Time: base.Add(time.Duration(i) * time.Millisecond)}))
	}
	got, err := j.Recent("p", time.Time{}, 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "three", got[0].Text)
	assert.Equal(t, "four", got[1].Text)
}

func TestPurgeAndRekey(t *testing.T) {
	j := openJournal(t)
	require.NoError(t, j.Insert(Entry{Player: "tmp-1", Kind: "text", Text: "old", Time: time.Now().Add(-48 * time.Hour)}))
	require.NoError(t, j.Insert(Entry{Player: "tmp-1", Kind: "text", Text: "new"}))

	purged, err := j.Purge(24 * time.Hour)
	require.NoError(t, err)
	assert.EqualValues(t, 1, purged)

	require.NoError(t, j.Rekey("tmp-1", "player:alice"))
	got, err := j.Recent("player:alice", time.Time{}, 10)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "new", got[0].Text)
}

func TestClosedJournal(t *testing.T) {
	j := openJournal(t)
	require.NoError(t, j.Close())
	assert.True(t, j.Closed())
	assert.ErrorIs(t, j.Insert(Entry{Player: "p", Text: "x"}), ErrClosed)
	assert.NoError(t, j.Close())
	assert.NotPanics(t, func() { j.Receive(events.Event{Player: "p", Text: "x"}) })
}
