// Package commands is the stock command set. Each command is a client of
// the pipeline: it validates in Guards and acts in Execute, preferring
// request and event traffic over writing to other sessions directly.
package commands

import (
	"math/rand/v2"
	"time"

	"github.com/crystal-mush/thingmud/pkg/behaviors"
	"github.com/crystal-mush/thingmud/pkg/command"
)

const (
	CategoryInformation   = "information"
	CategoryCombat        = "combat"
	CategoryCommunication = "communication"
	CategoryMisc          = "misc"
)

// Env carries the services commands depend on.
type Env struct {
	Scheduler behaviors.Scheduler
	// Enqueue feeds follow-up inputs back into the pipeline.
	Enqueue  func(*command.ActionInput) bool
	Registry *command.Registry
	// Roll returns a value in [1, max]. Nil uses math/rand.
	Roll func(max int) int

	RestDelay     time.Duration
	RestHeal      int
	AttackBalance time.Duration
}

// DefaultEnv fills the tunables with their stock values.
func DefaultEnv() *Env {
	return &Env{
		RestDelay:     5 * time.Second,
		RestHeal:      5,
		AttackBalance: 2 * time.Second,
	}
}

func (e *Env) roll(max int) int {
	if max <= 0 {
		return 0
	}
	if e.Roll != nil {
		return e.Roll(max)
	}
	return rand.IntN(max) + 1
}

var everyone = command.RolePlayer | command.RoleMobile

// Catalog returns the compiled-in command definitions.
func Catalog(env *Env) []command.Definition {
	return []command.Definition{
		{
			Name:        "look",
			New:         func() command.Executor { return &look{} },
			Primary:     command.Alias{Name: "look", Category: CategoryInformation},
			Secondary:   []command.Alias{{Name: "l", Category: CategoryInformation}},
			Roles:       everyone,
			Description: "Look around you, or at something nearby.",
			Example:     "look bag",
		},
		{
			Name:    "attack",
			New:     func() command.Executor { return &attack{env: env} },
			Primary: command.Alias{Name: "attack", Category: CategoryCombat},
			Secondary: []command.Alias{
				{Name: "punch", Category: CategoryCombat},
				{Name: "kill", Category: CategoryCombat},
			},
			Roles:       everyone,
			Description: "Attack someone in the same place as you.",
			Example:     "attack goblin",
		},
		{
			Name:        "say",
			New:         func() command.Executor { return &say{} },
			Primary:     command.Alias{Name: "say", Category: CategoryCommunication},
			Secondary:   []command.Alias{{Name: "'", Category: CategoryCommunication}},
			Roles:       everyone,
			Description: "Say something out loud.",
			Example:     "say hello",
		},
		{
			Name:        "rest",
			New:         func() command.Executor { return &rest{env: env} },
			Primary:     command.Alias{Name: "rest", Category: CategoryMisc},
			Roles:       everyone,
			Description: "Sit down for a while to recover health.",
			Example:     "rest",
		},
		{
			Name:        "help",
			New:         func() command.Executor { return &help{env: env} },
			Primary:     command.Alias{Name: "help", Category: CategoryInformation},
			Roles:       everyone,
			Description: "Describe a command.",
			Example:     "help attack",
		},
		{
			Name:        "commands",
			New:         func() command.Executor { return &list{env: env} },
			Primary:     command.Alias{Name: "commands", Category: CategoryInformation},
			Roles:       everyone,
			Description: "List the commands you can use.",
			Example:     "commands",
		},
	}
}
