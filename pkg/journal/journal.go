// Package journal records player output in SQLite so a reconnecting player
// can be shown what they missed.
package journal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	_ "modernc.org/sqlite"

	"github.com/crystal-mush/thingmud/pkg/events"
)

var ErrClosed = errors.New("journal: closed")

const schema = `
CREATE TABLE IF NOT EXISTS journal (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	player     TEXT NOT NULL,
	source     TEXT NOT NULL DEFAULT '',
	kind       TEXT NOT NULL,
	text       TEXT NOT NULL,
	created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS journal_player_created ON journal(player, created_at);
`

// Entry is one recorded line of output.
type Entry struct {
	Player string
	Source string
	Kind   string
	Text   string
	Time   time.Time
}

// Journal is a global event bus subscriber writing player output to SQLite.
type Journal struct {
	db   *sql.DB
	path string
	log  logrus.FieldLogger

	mu     sync.Mutex
	closed bool
}

// Open opens a SQLite database, sets WAL mode and busy timeout and creates
// the journal table.
func Open(path string, busyTimeout time.Duration, log logrus.FieldLogger) (*Journal, error) {
	if log == nil {
		log = logrus.StandardLogger()
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("journal: opening sqlite %s: %w", path, err)
	}
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		fmt.Sprintf("PRAGMA busy_timeout=%d", busyTimeout.Milliseconds()),
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("journal: %s: %w", p, err)
		}
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("journal: creating tables: %w", err)
	}
	return &Journal{db: db, path: path, log: log.WithField("subsystem", "journal")}, nil
}

// Attach registers the journal as a global subscriber on bus.
func (j *Journal) Attach(bus *events.Bus) {
	bus.SubscribeGlobal(j)
	j.log.Info("journal registered on event bus")
}

// Receive implements events.Subscriber. Prompts and broadcasts without a
// recipient are not recorded.
func (j *Journal) Receive(ev events.Event) {
	if ev.Player == "" || ev.Type == events.EvPrompt {
		return
	}
	if err := j.Insert(Entry{
		Player: ev.Player,
		Source: ev.Source,
		Kind:   ev.Type.String(),
		Text:   ev.Text,
		Time:   ev.Time,
	}); err != nil && !errors.Is(err, ErrClosed) {
		j.log.WithError(err).Warn("insert failed")
	}
}

// Closed implements events.Subscriber.
func (j *Journal) Closed() bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.closed
}

// Insert records one entry.
func (j *Journal) Insert(e Entry) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.closed {
		return ErrClosed
	}
	if e.Time.IsZero() {
		e.Time = time.Now()
	}
	_, err := j.db.Exec(
		`INSERT INTO journal (player, source, kind, text, created_at) VALUES (?, ?, ?, ?, ?)`,
		e.Player, e.Source, e.Kind, e.Text, e.Time.UnixNano(),
	)
	return err
}

// Recent returns up to limit entries for player newer than since, oldest
// first.
func (j *Journal) Recent(player string, since time.Time, limit int) ([]Entry, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.closed {
		return nil, ErrClosed
	}
	var after int64
	if !since.IsZero() {
		after = since.UnixNano()
	}
	rows, err := j.db.Query(
		`SELECT player, source, kind, text, created_at FROM (
			SELECT id, player, source, kind, text, created_at FROM journal
			WHERE player = ? AND created_at > ?
			ORDER BY id DESC LIMIT ?
		) ORDER BY id ASC`,
		player, after, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("journal: query: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		var ts int64
		if err := rows.Scan(&e.Player, &e.Source, &e.Kind, &e.Text, &ts); err != nil {
			return nil, fmt.Errorf("journal: scan: %w", err)
		}
		e.Time = time.Unix(0, ts)
		out = append(out, e)
	}
	return out, rows.Err()
}

// Rekey moves entries recorded under a temporary player ID to its
// permanent one.
func (j *Journal) Rekey(oldID, newID string) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.closed {
		return ErrClosed
	}
	_, err := j.db.Exec(`UPDATE journal SET player = ? WHERE player = ?`, newID, oldID)
	return err
}

// Purge deletes entries older than retention and returns how many went.
func (j *Journal) Purge(retention time.Duration) (int64, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.closed {
		return 0, ErrClosed
	}
	cutoff := time.Now().Add(-retention).UnixNano()
	res, err := j.db.Exec(`DELETE FROM journal WHERE created_at < ?`, cutoff)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// StartRetentionCleanup purges old entries every interval until ctx is done.
func (j *Journal) StartRetentionCleanup(ctx context.Context, retention, interval time.Duration) {
	if retention <= 0 {
		return
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				purged, err := j.Purge(retention)
				if err != nil {
					if !errors.Is(err, ErrClosed) {
						j.log.WithError(err).Warn("retention cleanup failed")
					}
					continue
				}
				if purged > 0 {
					j.log.WithField("purged", purged).Info("old journal entries purged")
				}
			}
		}
	}()
}

// Path returns the filesystem path of the SQLite database.
func (j *Journal) Path() string { return j.path }

// Close stops delivery and closes the database.
func (j *Journal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.closed {
		return nil
	}
	j.closed = true
	return j.db.Close()
}
