package command

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/sirupsen/logrus"
)

var ErrInvalidDefinition = errors.New("command: invalid definition")

type tables struct {
	primary map[string]*Command
	master  map[string]*Command
}

// Registry holds the alias tables used for dispatch and listing. Both
// tables are rebuilt together and swapped in atomically, so a worker never
// sees a half-built table.
type Registry struct {
	recomposeMu sync.Mutex
	current     atomic.Pointer[tables]
	log         logrus.FieldLogger
}

func NewRegistry(log logrus.FieldLogger) *Registry {
	if log == nil {
		log = logrus.StandardLogger()
	}
	r := &Registry{log: log.WithField("subsystem", "command")}
	r.current.Store(&tables{
		primary: map[string]*Command{},
		master:  map[string]*Command{},
	})
	return r
}

// Recompose replaces the tables with ones built from defs. On error the
// current tables stay in place. When two definitions claim the same alias
// the first one wins.
func (r *Registry) Recompose(defs []Definition) error {
	r.recomposeMu.Lock()
	defer r.recomposeMu.Unlock()

	next := &tables{
		primary: make(map[string]*Command),
		master:  make(map[string]*Command),
	}
	for i := range defs {
		def := defs[i]
		if err := validate(&def); err != nil {
			return err
		}
		for j, a := range def.Aliases() {
			alias := strings.ToLower(strings.TrimSpace(a.Name))
			if alias == "" {
				continue
			}
			if prev, ok := next.master[alias]; ok {
				r.log.WithFields(logrus.Fields{
					"alias": alias,
					"kept":  prev.Definition.Name,
					"skip":  def.Name,
				}).Warn("duplicate command alias")
				continue
			}
			cmd := &Command{
				Alias:      alias,
				Category:   a.Category,
				IsPrimary:  j == 0,
				Definition: &def,
			}
			next.master[alias] = cmd
			if cmd.IsPrimary {
				next.primary[alias] = cmd
			}
		}
	}
	r.current.Store(next)
	r.log.WithFields(logrus.Fields{
		"primary": len(next.primary),
		"aliases": len(next.master),
	}).Info("command tables recomposed")
	return nil
}

func validate(def *Definition) error {
	switch {
	case def.Name == "":
		return fmt.Errorf("%w: missing name", ErrInvalidDefinition)
	case def.New == nil:
		return fmt.Errorf("%w: %s has no factory", ErrInvalidDefinition, def.Name)
	case strings.TrimSpace(def.Primary.Name) == "":
		return fmt.Errorf("%w: %s has no primary alias", ErrInvalidDefinition, def.Name)
	}
	return nil
}

// Lookup resolves an alias against the master table.
func (r *Registry) Lookup(alias string) (*Command, bool) {
	cmd, ok := r.current.Load().master[strings.ToLower(strings.TrimSpace(alias))]
	return cmd, ok
}

// Primary lists primary-alias registrations sorted by category and alias.
func (r *Registry) Primary() []*Command {
	return sorted(r.current.Load().primary)
}

// Master lists every alias registration sorted by category and alias.
func (r *Registry) Master() []*Command {
	return sorted(r.current.Load().master)
}

// Len returns the sizes of the primary and master tables.
func (r *Registry) Len() (primary, master int) {
	t := r.current.Load()
	return len(t.primary), len(t.master)
}

func sorted(m map[string]*Command) []*Command {
	out := make([]*Command, 0, len(m))
	for _, c := range m {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Category != out[j].Category {
			return out[i].Category < out[j].Category
		}
		return out[i].Alias < out[j].Alias
	})
	return out
}
