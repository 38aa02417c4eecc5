package commands

import (
	"errors"

	"github.com/crystal-mush/thingmud/pkg/behaviors"
	"github.com/crystal-mush/thingmud/pkg/command"
	"github.com/crystal-mush/thingmud/pkg/world"
)

const restingEffect = "resting"

// restDone marks the delayed second half of a rest. It names the effect it
// ends so a follow-up left over from an interrupted rest cannot end a
// later one.
type restDone struct {
	effect *behaviors.Effect
}

// rest runs in two steps: the first sits the invoker down and schedules a
// follow-up input carrying restDone; the follow-up heals and stands them up.
type rest struct {
	env     *Env
	stats   *behaviors.Stats
	resting *behaviors.Effect
}

func (c *rest) Guards(in *command.ActionInput) string {
	if done, ok := in.Context.(restDone); ok {
		return command.RunGuards(in, command.RequireActor, InitiatorAlive, func(in *command.ActionInput) string {
			return c.resolveResting(in, done.effect)
		})
	}
	return command.RunGuards(in,
		command.RequireActor,
		InitiatorAlive,
		InitiatorConscious,
		InitiatorBalanced,
		c.notResting,
	)
}

func (c *rest) notResting(in *command.ActionInput) string {
	if behaviors.FindEffect(in.Actor(), restingEffect) != nil {
		return "You are already resting."
	}
	c.stats = world.FindFirst[*behaviors.Stats](in.Actor())
	if c.stats == nil {
		return "You have nothing to recover."
	}
	return ""
}

func (c *rest) resolveResting(in *command.ActionInput, effect *behaviors.Effect) string {
	c.resting = behaviors.FindEffect(in.Actor(), restingEffect)
	if c.resting == nil || c.resting != effect {
		// Interrupted; nothing to finish.
		return "You are no longer resting."
	}
	c.stats = world.FindFirst[*behaviors.Stats](in.Actor())
	return ""
}

func (c *rest) Execute(in *command.ActionInput) error {
	if _, ok := in.Context.(restDone); ok {
		return c.finish(in)
	}
	if c.env.Scheduler == nil || c.env.Enqueue == nil {
		return errors.New("rest: no scheduler configured")
	}
	actor := in.Actor()
	resting := behaviors.NewEffect(restingEffect, 0, nil).
		Blocking(world.CategoryCombat, "You cannot fight while resting.")
	actor.Behaviors.Add(resting)

	follow := &command.ActionInput{
		FullText:   in.FullText,
		Noun:       in.Noun,
		Controller: in.Controller,
		Context:    restDone{effect: resting},
	}
	ev, err := c.env.Scheduler.After(c.env.RestDelay, func() { c.env.Enqueue(follow) })
	if err != nil {
		actor.Behaviors.Remove(resting)
		return err
	}
	resting.Bind(ev)

	msg := world.NewSensoryMessage(world.SenseSight, 5, world.ContextualString{
		ToOriginator: "You sit down and rest.",
		ToOthers:     "{{.ActiveThing}} sits down to rest.",
	})
	actor.Eventing.Broadcast(world.NewMiscEvent(actor, "rest", msg), world.ParentsDown)
	return nil
}

func (c *rest) finish(in *command.ActionInput) error {
	actor := in.Actor()
	actor.Behaviors.Remove(c.resting)
	if c.stats != nil {
		c.stats.Adjust(behaviors.StatHealth, c.env.RestHeal)
	}
	msg := world.NewSensoryMessage(world.SenseSight, 5, world.ContextualString{
		ToOriginator: "You feel rested and stand up.",
		ToOthers:     "{{.ActiveThing}} stands up, looking refreshed.",
	})
	actor.Eventing.Broadcast(world.NewMiscEvent(actor, "rested", msg), world.ParentsDown)
	return nil
}
