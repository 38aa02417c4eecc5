// Package boltstore persists the world tree in a bbolt file. Each Thing is
// one gob record keyed by its permanent ID; behaviors are stored through
// their own Save/Load.
package boltstore

import (
	"errors"
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	bbolt "go.etcd.io/bbolt"

	"github.com/crystal-mush/thingmud/pkg/world"
)

var (
	ErrNotFound  = errors.New("boltstore: not found")
	ErrTemporary = errors.New("boltstore: thing has no permanent id")
)

// Store wraps a bbolt database. It implements world.Store.
type Store struct {
	bolt *bbolt.DB
	log  logrus.FieldLogger
	skip func(*world.Thing) bool
}

var _ world.Store = (*Store)(nil)

type Option func(*Store)

func WithLogger(l logrus.FieldLogger) Option {
	return func(s *Store) { s.log = l.WithField("subsystem", "boltstore") }
}

// WithSkip excludes matching Things (and what they hold) from tree saves
// below the root, e.g. connected players who are saved on their own.
func WithSkip(fn func(*world.Thing) bool) Option {
	return func(s *Store) { s.skip = fn }
}

// Open opens or creates a bbolt database file and ensures all buckets exist.
func Open(path string, opts ...Option) (*Store, error) {
	db, err := bbolt.Open(path, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("boltstore: open %s: %w", path, err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		for _, name := range [][]byte{bucketMeta, bucketThings, bucketPlayers} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return err
			}
		}
		return tx.Bucket(bucketMeta).Put(keyVersion, []byte(formatVersion))
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("boltstore: create buckets: %w", err)
	}

	s := &Store{bolt: db, log: logrus.WithField("subsystem", "boltstore")}
	for _, o := range opts {
		o(s)
	}
	return s, nil
}

// Close closes the underlying bbolt database.
func (s *Store) Close() error {
	if s.bolt != nil {
		return s.bolt.Close()
	}
	return nil
}

// Path returns the filesystem path of the underlying bbolt database.
func (s *Store) Path() string {
	if s.bolt != nil {
		return s.bolt.Path()
	}
	return ""
}

// SaveTree writes root and every promoted Thing below it in one
// transaction. Temporary Things are not persisted. A parentless root is
// remembered as the world root.
func (s *Store) SaveTree(root *world.Thing) error {
	if root == nil || !root.IsPromoted() {
		return ErrTemporary
	}
	count := 0
	err := s.bolt.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketThings)
		if err := s.putTree(b, root, map[*world.Thing]bool{}, &count); err != nil {
			return err
		}
		if root.Parent() == nil {
			return tx.Bucket(bucketMeta).Put(keyRoot, []byte(root.ID()))
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.log.WithFields(logrus.Fields{"root": root.ID(), "things": count}).Debug("tree saved")
	return nil
}

func (s *Store) included(t *world.Thing) bool {
	if !t.IsPromoted() {
		return false
	}
	return s.skip == nil || !s.skip(t)
}

func (s *Store) putTree(b *bbolt.Bucket, t *world.Thing, seen map[*world.Thing]bool, count *int) error {
	if seen[t] {
		return nil
	}
	seen[t] = true

	rec := thingRecord{
		ID:          t.ID(),
		Name:        t.Name(),
		Description: t.Description(),
	}
	if p := t.Parent(); p != nil && p.IsPromoted() {
		rec.Parent = p.ID()
	}
	var kids []*world.Thing
	for _, c := range t.Children() {
		// Secondary links are restored by whoever owns them.
		if c.Parent() != t || !s.included(c) {
			continue
		}
		kids = append(kids, c)
		rec.Children = append(rec.Children, c.ID())
	}
	for _, p := range world.FindAll[world.Persistent](t) {
		data, err := p.Save()
		if err != nil {
			return fmt.Errorf("boltstore: save %s behavior of %s: %w", p.Kind(), rec.ID, err)
		}
		rec.Behaviors = append(rec.Behaviors, behaviorRecord{Kind: p.Kind(), Data: data})
	}

	if err := s.dropStaleChildren(b, rec); err != nil {
		return err
	}
	data, err := encodeRecord(&rec)
	if err != nil {
		return fmt.Errorf("boltstore: encode %s: %w", rec.ID, err)
	}
	if err := b.Put(thingKey(rec.ID), data); err != nil {
		return err
	}
	*count++

	for _, c := range kids {
		if err := s.putTree(b, c, seen, count); err != nil {
			return err
		}
	}
	return nil
}

// dropStaleChildren deletes stored children of rec that are gone from the
// live tree and were not re-parented elsewhere.
func (s *Store) dropStaleChildren(b *bbolt.Bucket, rec thingRecord) error {
	raw := b.Get(thingKey(rec.ID))
	if raw == nil {
		return nil
	}
	old, err := decodeThing(raw)
	if err != nil {
		return fmt.Errorf("boltstore: decode %s: %w", rec.ID, err)
	}
	keep := make(map[string]bool, len(rec.Children))
	for _, id := range rec.Children {
		keep[id] = true
	}
	for _, id := range old.Children {
		if keep[id] {
			continue
		}
		child := b.Get(thingKey(id))
		if child == nil {
			continue
		}
		crec, err := decodeThing(child)
		if err != nil || crec.Parent != rec.ID {
			continue
		}
		if err := deleteTree(b, id, map[string]bool{}); err != nil {
			return err
		}
	}
	return nil
}

// LoadTree rebuilds the Thing stored under id with everything below it.
// Behaviors of unknown kinds are skipped with a warning.
func (s *Store) LoadTree(id string, kinds *world.BehaviorKinds) (*world.Thing, error) {
	var root *world.Thing
	err := s.bolt.View(func(tx *bbolt.Tx) error {
		var err error
		root, err = s.loadTree(tx.Bucket(bucketThings), id, kinds, map[string]bool{})
		return err
	})
	if err != nil {
		return nil, err
	}
	return root, nil
}

func (s *Store) loadTree(b *bbolt.Bucket, id string, kinds *world.BehaviorKinds, seen map[string]bool) (*world.Thing, error) {
	if seen[id] {
		return nil, fmt.Errorf("boltstore: cycle at %s", id)
	}
	seen[id] = true

	raw := b.Get(thingKey(id))
	if raw == nil {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	rec, err := decodeThing(raw)
	if err != nil {
		return nil, fmt.Errorf("boltstore: decode %s: %w", id, err)
	}

	t := world.RestoreThing(rec.ID, rec.Name)
	t.SetDescription(rec.Description)
	for _, br := range rec.Behaviors {
		p, err := kinds.New(br.Kind)
		if errors.Is(err, world.ErrUnknownKind) {
			s.log.WithFields(logrus.Fields{"thing": id, "kind": br.Kind}).Warn("skipping unknown behavior kind")
			continue
		}
		if err != nil {
			return nil, err
		}
		if err := p.Load(br.Data); err != nil {
			return nil, fmt.Errorf("boltstore: load %s behavior of %s: %w", br.Kind, id, err)
		}
		t.Behaviors.Add(p)
	}
	for _, cid := range rec.Children {
		child, err := s.loadTree(b, cid, kinds, seen)
		if errors.Is(err, ErrNotFound) {
			s.log.WithFields(logrus.Fields{"thing": id, "child": cid}).Warn("missing child record")
			continue
		}
		if err != nil {
			return nil, err
		}
		t.AddChild(child)
	}
	return t, nil
}

// RootID returns the ID of the saved world root.
func (s *Store) RootID() (string, bool) {
	var id string
	s.bolt.View(func(tx *bbolt.Tx) error {
		id = string(tx.Bucket(bucketMeta).Get(keyRoot))
		return nil
	})
	return id, id != ""
}

// DeleteTree removes the record for id and all records below it.
func (s *Store) DeleteTree(id string) error {
	return s.bolt.Update(func(tx *bbolt.Tx) error {
		return deleteTree(tx.Bucket(bucketThings), id, map[string]bool{})
	})
}

func deleteTree(b *bbolt.Bucket, id string, seen map[string]bool) error {
	if seen[id] {
		return nil
	}
	seen[id] = true
	raw := b.Get(thingKey(id))
	if raw == nil {
		return nil
	}
	if rec, err := decodeThing(raw); err == nil {
		for _, cid := range rec.Children {
			if err := deleteTree(b, cid, seen); err != nil {
				return err
			}
		}
	}
	return b.Delete(thingKey(id))
}

// SavePlayer saves a player's subtree and indexes it by name along with
// where the player was standing.
func (s *Store) SavePlayer(player *world.Thing) error {
	if err := s.SaveTree(player); err != nil {
		return err
	}
	rec := playerRecord{ID: player.ID()}
	if p := player.Parent(); p != nil && p.IsPromoted() {
		rec.Location = p.ID()
	}
	data, err := encodeRecord(&rec)
	if err != nil {
		return fmt.Errorf("boltstore: encode player %s: %w", player.Name(), err)
	}
	return s.bolt.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketPlayers).Put(playerKey(player.Name()), data)
	})
}

// LoadPlayer restores a player by name. location is the ID of the Thing
// the player was last saved in, possibly empty.
func (s *Store) LoadPlayer(name string, kinds *world.BehaviorKinds) (player *world.Thing, location string, err error) {
	var rec *playerRecord
	err = s.bolt.View(func(tx *bbolt.Tx) error {
		raw := tx.Bucket(bucketPlayers).Get(playerKey(name))
		if raw == nil {
			return fmt.Errorf("%w: player %s", ErrNotFound, name)
		}
		var err error
		rec, err = decodePlayer(raw)
		return err
	})
	if err != nil {
		return nil, "", err
	}
	player, err = s.LoadTree(rec.ID, kinds)
	if err != nil {
		return nil, "", err
	}
	return player, rec.Location, nil
}

// HasData returns true if the bbolt database contains any things.
func (s *Store) HasData() bool {
	hasData := false
	s.bolt.View(func(tx *bbolt.Tx) error {
		hasData = tx.Bucket(bucketThings).Stats().KeyN > 0
		return nil
	})
	return hasData
}

// Backup creates a hot snapshot of the bbolt database using tx.WriteTo().
func (s *Store) Backup(path string) error {
	return s.bolt.View(func(tx *bbolt.Tx) error {
		f, err := os.Create(path)
		if err != nil {
			return fmt.Errorf("boltstore: create backup %s: %w", path, err)
		}
		defer f.Close()
		if _, err := tx.WriteTo(f); err != nil {
			return fmt.Errorf("boltstore: write backup: %w", err)
		}
		s.log.WithField("path", path).Info("backup written")
		return nil
	})
}
