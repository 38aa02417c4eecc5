package command

import (
	"fmt"
	"strings"
)

// Role is a security-role bitmask. A command may be invoked when the
// invoker holds at least one of the roles in the command's mask.
type Role uint32

const (
	RoleNone         Role = 0
	RolePlayer       Role = 1 << 0
	RoleMobile       Role = 1 << 1
	RoleItem         Role = 1 << 2
	RoleRoom         Role = 1 << 3
	RoleHelper       Role = 1 << 4
	RoleMinorBuilder Role = 1 << 5
	RoleFullBuilder  Role = 1 << 6
	RoleMinorAdmin   Role = 1 << 7
	RoleFullAdmin    Role = 1 << 8

	RoleAll = RolePlayer | RoleMobile | RoleItem | RoleRoom | RoleHelper |
		RoleMinorBuilder | RoleFullBuilder | RoleMinorAdmin | RoleFullAdmin
)

var roleNames = []struct {
	role Role
	name string
}{
	{RolePlayer, "player"},
	{RoleMobile, "mobile"},
	{RoleItem, "item"},
	{RoleRoom, "room"},
	{RoleHelper, "helper"},
	{RoleMinorBuilder, "minorbuilder"},
	{RoleFullBuilder, "fullbuilder"},
	{RoleMinorAdmin, "minoradmin"},
	{RoleFullAdmin, "fulladmin"},
}

// Allows reports whether an invoker holding held may use a command whose
// mask is r. RoleNone allows nobody.
func (r Role) Allows(held Role) bool {
	return r&held != 0
}

func (r Role) String() string {
	if r == RoleNone {
		return "none"
	}
	if r == RoleAll {
		return "all"
	}
	var parts []string
	for _, rn := range roleNames {
		if r&rn.role != 0 {
			parts = append(parts, rn.name)
		}
	}
	return strings.Join(parts, "|")
}

// ParseRole resolves a role name as written in the command manifest.
func ParseRole(name string) (Role, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	switch name {
	case "none", "nobody":
		return RoleNone, nil
	case "all", "everyone":
		return RoleAll, nil
	}
	for _, rn := range roleNames {
		if rn.name == name {
			return rn.role, nil
		}
	}
	return RoleNone, fmt.Errorf("command: unknown role %q", name)
}

// ParseRoles ORs several role names together.
func ParseRoles(names []string) (Role, error) {
	var r Role
	for _, n := range names {
		role, err := ParseRole(n)
		if err != nil {
			return RoleNone, err
		}
		r |= role
	}
	return r, nil
}
