package command

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// Manifest adjusts the compiled-in command definitions without a rebuild:
// aliases, categories, roles and help text per command name.
//
//	commands:
//	  attack:
//	    aliases:
//	      - {name: kick, category: combat}
//	    roles: [player, mobile]
//	  rest:
//	    disabled: true
type Manifest struct {
	Commands map[string]ManifestEntry `yaml:"commands"`
}

// ManifestEntry overrides one definition. Empty fields keep the compiled-in
// value.
type ManifestEntry struct {
	Primary     string          `yaml:"primary"`
	Category    string          `yaml:"category"`
	Aliases     []ManifestAlias `yaml:"aliases"`
	Roles       []string        `yaml:"roles"`
	Description string          `yaml:"description"`
	Example     string          `yaml:"example"`
	Disabled    bool            `yaml:"disabled"`
}

type ManifestAlias struct {
	Name     string `yaml:"name"`
	Category string `yaml:"category"`
}

// LoadManifest reads a YAML manifest file.
func LoadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("command: reading manifest %s: %w", path, err)
	}
	return ParseManifest(data)
}

// ParseManifest decodes manifest YAML.
func ParseManifest(data []byte) (*Manifest, error) {
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("command: parsing manifest: %w", err)
	}
	return &m, nil
}

// Apply returns defs with the manifest's overrides applied. Entries naming
// commands that are not compiled in are reported as unknown.
func (m *Manifest) Apply(defs []Definition) (out []Definition, unknown []string, err error) {
	if m == nil {
		return defs, nil, nil
	}
	seen := make(map[string]bool, len(defs))
	for _, d := range defs {
		seen[d.Name] = true
		entry, ok := m.Commands[d.Name]
		if !ok {
			out = append(out, d)
			continue
		}
		if entry.Disabled {
			continue
		}
		if entry.Primary != "" {
			d.Primary.Name = entry.Primary
		}
		if entry.Category != "" {
			d.Primary.Category = entry.Category
		}
		if len(entry.Aliases) > 0 {
			secondary := append([]Alias(nil), d.Secondary...)
			for _, a := range entry.Aliases {
				cat := a.Category
				if cat == "" {
					cat = d.Primary.Category
				}
				secondary = append(secondary, Alias{Name: a.Name, Category: cat})
			}
			d.Secondary = secondary
		}
		if len(entry.Roles) > 0 {
			roles, err := ParseRoles(entry.Roles)
			if err != nil {
				return nil, nil, fmt.Errorf("command: manifest entry %s: %w", d.Name, err)
			}
			d.Roles = roles
		}
		if entry.Description != "" {
			d.Description = entry.Description
		}
		if entry.Example != "" {
			d.Example = entry.Example
		}
		out = append(out, d)
	}
	for name := range m.Commands {
		if !seen[name] {
			unknown = append(unknown, name)
		}
	}
	return out, unknown, nil
}

// Loader produces the definition set: the compiled-in catalog, overlaid by
// the manifest file when one is configured.
type Loader struct {
	Catalog      func() []Definition
	ManifestPath string
	Log          logrus.FieldLogger
}

// Load builds the current definition set.
func (l *Loader) Load() ([]Definition, error) {
	defs := l.Catalog()
	if l.ManifestPath == "" {
		return defs, nil
	}
	m, err := LoadManifest(l.ManifestPath)
	if err != nil {
		return nil, err
	}
	out, unknown, err := m.Apply(defs)
	if err != nil {
		return nil, err
	}
	for _, name := range unknown {
		l.logger().WithField("command", name).Warn("manifest names a command that is not compiled in")
	}
	return out, nil
}

// Reload loads the definitions and recomposes reg.
func (l *Loader) Reload(reg *Registry) error {
	defs, err := l.Load()
	if err != nil {
		return err
	}
	return reg.Recompose(defs)
}

// Watch recomposes reg whenever the manifest file changes, until ctx is
// done. Editors that replace the file are handled by watching its directory.
func (l *Loader) Watch(ctx context.Context, reg *Registry) error {
	if l.ManifestPath == "" {
		return nil
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("command: manifest watcher: %w", err)
	}
	dir := filepath.Dir(l.ManifestPath)
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return fmt.Errorf("command: watching %s: %w", dir, err)
	}
	target := filepath.Clean(l.ManifestPath)
	log := l.logger()

	go func() {
		defer watcher.Close()
		// Editors tend to emit several writes per save.
		var debounce <-chan time.Time
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != target {
					continue
				}
				if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
					continue
				}
				debounce = time.After(200 * time.Millisecond)
			case <-debounce:
				debounce = nil
				if err := l.Reload(reg); err != nil {
					log.WithError(err).Error("manifest reload failed, keeping current commands")
					continue
				}
				log.WithField("path", l.ManifestPath).Info("command manifest reloaded")
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				log.WithError(err).Warn("manifest watcher error")
			}
		}
	}()
	log.WithField("path", l.ManifestPath).Info("watching command manifest")
	return nil
}

func (l *Loader) logger() logrus.FieldLogger {
	if l.Log == nil {
		return logrus.WithField("subsystem", "command")
	}
	return l.Log
}
