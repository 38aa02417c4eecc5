package commands

import (
	"strings"

	"github.com/crystal-mush/thingmud/pkg/behaviors"
	"github.com/crystal-mush/thingmud/pkg/command"
	"github.com/crystal-mush/thingmud/pkg/world"
)

type look struct {
	target *world.Thing
}

func (c *look) Guards(in *command.ActionInput) string {
	return command.RunGuards(in,
		command.RequireActor,
		InitiatorHasSenses,
		InitiatorConscious,
		c.resolveTarget,
	)
}

func (c *look) resolveTarget(in *command.ActionInput) string {
	if in.Tail == "" {
		return ""
	}
	name := strings.TrimPrefix(in.Tail, "at ")
	c.target = findNear(in.Actor(), name)
	if c.target == nil {
		return MsgNotHere
	}
	return ""
}

func (c *look) Execute(in *command.ActionInput) error {
	actor := in.Actor()
	if c.target != nil {
		in.Reply(describeThing(c.target))
		return nil
	}
	loc := actor.Parent()
	if loc == nil {
		in.Reply("You are nowhere.")
		return nil
	}
	if room := world.FindFirst[*behaviors.Room](loc); room != nil {
		in.Reply(room.Describe(actor))
		return nil
	}
	in.Reply(describeThing(loc))
	return nil
}

func describeThing(t *world.Thing) string {
	var sb strings.Builder
	sb.WriteString(t.Name())
	if desc := t.Description(); desc != "" {
		sb.WriteString("\n")
		sb.WriteString(desc)
	}
	if l := world.FindFirst[*behaviors.Living](t); l != nil && l.State() != behaviors.Awake {
		sb.WriteString("\nIt is ")
		sb.WriteString(l.State().String())
		sb.WriteString(".")
	}
	var held []string
	for _, c := range t.Children() {
		held = append(held, c.Name())
	}
	if len(held) > 0 {
		sb.WriteString("\nIt holds: ")
		sb.WriteString(strings.Join(held, ", "))
		sb.WriteString(".")
	}
	return sb.String()
}
