// Package command turns raw player and AI input into validated mutations of
// the world. Input is parsed into an ActionInput, queued on a shared FIFO and
// drained by worker goroutines, which resolve the command, run its Guards and
// then Execute it.
package command

import (
	"strings"
	"unicode"

	"github.com/crystal-mush/thingmud/pkg/world"
)

// Controller is a world.Controller that can issue commands.
type Controller interface {
	world.Controller
	Roles() Role
}

// Executor is one invocation of a command. A fresh Executor is created per
// ActionInput, so state resolved in Guards can be reused by Execute.
type Executor interface {
	// Guards validates the input. A non-empty return is a user-facing
	// failure and Execute is skipped.
	Guards(in *ActionInput) string
	// Execute performs the mutation, preferring request/event traffic over
	// direct writes to other sessions.
	Execute(in *ActionInput) error
}

// Factory creates a fresh Executor.
type Factory func() Executor

// Alias is one string a command answers to, with the category it is listed
// under.
type Alias struct {
	Name     string
	Category string
}

// Definition describes a command implementation. It is the identity shared
// by all of its aliases.
type Definition struct {
	Name        string
	New         Factory
	Primary     Alias
	Secondary   []Alias
	Roles       Role
	Description string
	Example     string
}

// Aliases returns the primary alias followed by the secondary ones.
func (d *Definition) Aliases() []Alias {
	return append([]Alias{d.Primary}, d.Secondary...)
}

// Command is a registration of a Definition under one alias.
type Command struct {
	Alias      string
	Category   string
	IsPrimary  bool
	Definition *Definition
}

// ActionInput is one parsed request from a player or AI.
type ActionInput struct {
	FullText string
	// Noun is the alias the input was addressed to, lower-cased.
	Noun string
	// Tail is everything after the noun.
	Tail   string
	Params []string

	Controller Controller
	// Context is an opaque token a command uses to recognize its own
	// follow-up invocation.
	Context any
}

// ParseActionInput splits text into noun, tail and parameters. A leading
// punctuation character counts as a noun on its own, so "'hello" addresses
// the "'" alias.
func ParseActionInput(text string, c Controller) *ActionInput {
	full := strings.TrimSpace(text)
	in := &ActionInput{FullText: full, Controller: c}
	if full == "" {
		return in
	}

	first := []rune(full)[0]
	var noun, tail string
	if !unicode.IsLetter(first) && !unicode.IsDigit(first) && !unicode.IsSpace(first) {
		noun = string(first)
		tail = strings.TrimSpace(full[len(string(first)):])
	} else if i := strings.IndexFunc(full, unicode.IsSpace); i >= 0 {
		noun = full[:i]
		tail = strings.TrimSpace(full[i:])
	} else {
		noun = full
	}
	in.Noun = strings.ToLower(noun)
	in.Tail = tail
	if tail != "" {
		in.Params = strings.Fields(tail)
	}
	return in
}

// Actor returns the Thing the invoker controls, or nil.
func (in *ActionInput) Actor() *world.Thing {
	if in == nil || in.Controller == nil {
		return nil
	}
	return in.Controller.Thing()
}

// Reply writes text back to the invoker only.
func (in *ActionInput) Reply(text string) {
	if in != nil && in.Controller != nil {
		in.Controller.Write(text)
	}
}
