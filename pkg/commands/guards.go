package commands

import (
	"github.com/crystal-mush/thingmud/pkg/behaviors"
	"github.com/crystal-mush/thingmud/pkg/command"
	"github.com/crystal-mush/thingmud/pkg/world"
)

const (
	MsgNoSenses    = "You do not have any senses to perceive with."
	MsgDead        = "You are dead."
	MsgUnconscious = "You are unconscious."
	MsgOffBalance  = "You are off balance."
	MsgImmobile    = "You are unable to move."
	MsgNotHere     = "You don't see that here."
)

// InitiatorAlive fails for dead invokers and for things that never lived.
func InitiatorAlive(in *command.ActionInput) string {
	l := world.FindFirst[*behaviors.Living](in.Actor())
	if l == nil || !l.IsAlive() {
		return MsgDead
	}
	return ""
}

func InitiatorConscious(in *command.ActionInput) string {
	l := world.FindFirst[*behaviors.Living](in.Actor())
	if l == nil || !l.IsConscious() {
		return MsgUnconscious
	}
	return ""
}

// InitiatorBalanced passes for invokers without a balance to lose.
func InitiatorBalanced(in *command.ActionInput) string {
	b := world.FindFirst[*behaviors.Balance](in.Actor())
	if b != nil && !b.IsBalanced() {
		return MsgOffBalance
	}
	return ""
}

func InitiatorMobile(in *command.ActionInput) string {
	if !world.HasBehavior[*behaviors.Mobile](in.Actor()) {
		return MsgImmobile
	}
	return ""
}

func InitiatorHasSenses(in *command.ActionInput) string {
	if !world.HasBehavior[*behaviors.Senses](in.Actor()) {
		return MsgNoSenses
	}
	return ""
}

// findNear resolves name against the invoker's surroundings, then its
// inventory.
func findNear(actor *world.Thing, name string) *world.Thing {
	if name == "" || actor == nil {
		return nil
	}
	if loc := actor.Parent(); loc != nil {
		if t := loc.FindChild(name); t != nil {
			return t
		}
	}
	return actor.FindChild(name)
}
