package commands

import (
	"fmt"
	"strings"

	"github.com/crystal-mush/thingmud/pkg/command"
)

type help struct {
	env *Env
	cmd *command.Command
}

func (c *help) Guards(in *command.ActionInput) string {
	return command.RunGuards(in, command.RequireArgs(1, "help <command>"), c.resolve)
}

func (c *help) resolve(in *command.ActionInput) string {
	if c.env.Registry == nil {
		return "Help is not available."
	}
	cmd, ok := c.env.Registry.Lookup(in.Params[0])
	if !ok || !cmd.Definition.Roles.Allows(roles(in)) {
		return fmt.Sprintf("There is no help for %q.", in.Params[0])
	}
	c.cmd = cmd
	return ""
}

func (c *help) Execute(in *command.ActionInput) error {
	def := c.cmd.Definition
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s: %s", strings.ToUpper(def.Primary.Name), def.Description)
	if len(def.Secondary) > 0 {
		names := make([]string, len(def.Secondary))
		for i, a := range def.Secondary {
			names[i] = a.Name
		}
		fmt.Fprintf(&sb, "\nAliases: %s", strings.Join(names, ", "))
	}
	if def.Example != "" {
		fmt.Fprintf(&sb, "\nExample: %s", def.Example)
	}
	in.Reply(sb.String())
	return nil
}

// list shows the primary aliases the invoker may use, by category.
type list struct {
	env *Env
}

func (c *list) Guards(in *command.ActionInput) string {
	if c.env.Registry == nil {
		return "No commands are available."
	}
	return ""
}

func (c *list) Execute(in *command.ActionInput) error {
	held := roles(in)
	var sb strings.Builder
	category := ""
	for _, cmd := range c.env.Registry.Primary() {
		if !cmd.Definition.Roles.Allows(held) {
			continue
		}
		if cmd.Category != category {
			if category != "" {
				sb.WriteString("\n")
			}
			category = cmd.Category
			fmt.Fprintf(&sb, "%s:", strings.ToUpper(category))
		}
		fmt.Fprintf(&sb, " %s", cmd.Alias)
	}
	if sb.Len() == 0 {
		in.Reply("You cannot use any commands.")
		return nil
	}
	in.Reply(sb.String())
	return nil
}

func roles(in *command.ActionInput) command.Role {
	if in.Controller == nil {
		return command.RoleNone
	}
	return in.Controller.Roles()
}
