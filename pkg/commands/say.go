package commands

import (
	"github.com/crystal-mush/thingmud/pkg/command"
	"github.com/crystal-mush/thingmud/pkg/world"
)

type say struct{}

func (c *say) Guards(in *command.ActionInput) string {
	return command.RunGuards(in,
		command.RequireActor,
		InitiatorAlive,
		InitiatorConscious,
		command.RequireArgs(1, "say <text>"),
	)
}

func (c *say) Execute(in *command.ActionInput) error {
	actor := in.Actor()
	if !actor.Eventing.Request(world.NewCommunicationRequest(actor, in.Tail, nil), world.ParentsDown) {
		return nil
	}
	msg := world.NewSensoryMessage(world.SenseHearing, 10, world.ContextualString{
		ToOriginator: `You say, "{{.Text}}"`,
		ToOthers:     `{{.ActiveThing}} says, "{{.Text}}"`,
	})
	actor.Eventing.Broadcast(world.NewCommunicationEvent(actor, in.Tail, msg), world.ParentsDown)
	return nil
}
