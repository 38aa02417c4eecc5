package commands

import (
	"github.com/crystal-mush/thingmud/pkg/behaviors"
	"github.com/crystal-mush/thingmud/pkg/command"
	"github.com/crystal-mush/thingmud/pkg/world"
)

type attack struct {
	env    *Env
	target *world.Thing
	stats  *behaviors.Stats
}

func (c *attack) Guards(in *command.ActionInput) string {
	return command.RunGuards(in,
		command.RequireActor,
		InitiatorAlive,
		InitiatorConscious,
		InitiatorBalanced,
		InitiatorMobile,
		command.RequireArgs(1, "attack <target>"),
		c.resolveTarget,
	)
}

func (c *attack) resolveTarget(in *command.ActionInput) string {
	actor := in.Actor()
	loc := actor.Parent()
	if loc == nil {
		return MsgNotHere
	}
	c.target = loc.FindChild(in.Tail)
	if c.target == nil {
		return MsgNotHere
	}
	if c.target == actor {
		return "You cannot attack yourself."
	}
	c.stats = world.FindFirst[*behaviors.Stats](c.target)
	if c.stats == nil {
		return "You cannot attack that."
	}
	if l := world.FindFirst[*behaviors.Living](c.target); l != nil && !l.IsAlive() {
		return "It is already dead."
	}
	return ""
}

func (c *attack) Execute(in *command.ActionInput) error {
	actor := in.Actor()

	attackPower := 1
	if own := world.FindFirst[*behaviors.Stats](actor); own != nil {
		attackPower = own.Value(behaviors.StatAttack)
	}
	damage := c.env.roll(attackPower) - c.env.roll(c.stats.Value(behaviors.StatDefense))
	if damage < 0 {
		damage = 0
	}
	if health := c.stats.Value(behaviors.StatHealth); damage > health {
		damage = health
	}

	req := world.NewCombatRequest(actor, c.target, damage, nil)
	if !actor.Eventing.Request(req, world.ParentsDown) {
		return nil
	}
	damage = req.Damage

	msg := world.NewSensoryMessage(world.SenseSight, 10, world.ContextualString{
		ToOriginator: "You hit {{.Target}} for {{.Damage}} damage.",
		ToReceiver:   "{{.Aggressor}} hits you for {{.Damage}} damage.",
		ToOthers:     "{{.Aggressor}} hits {{.Target}}.",
	})
	if damage == 0 {
		msg.Message = world.ContextualString{
			ToOriginator: "You swing at {{.Target}} but do no harm.",
			ToReceiver:   "{{.Aggressor}} swings at you but does no harm.",
			ToOthers:     "{{.Aggressor}} swings at {{.Target}} and misses.",
		}
	}
	actor.Eventing.Broadcast(world.NewCombatEvent(actor, c.target, damage, msg), world.ParentsDown)

	if damage > 0 {
		c.stats.Adjust(behaviors.StatHealth, -damage)
	}
	if bal := world.FindFirst[*behaviors.Balance](actor); bal != nil && c.env.AttackBalance > 0 {
		bal.Unbalance(c.env.AttackBalance)
	}
	return nil
}
