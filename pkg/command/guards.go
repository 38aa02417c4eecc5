package command

import "fmt"

// Guard is a reusable precondition. It returns a user-facing failure or "".
type Guard func(in *ActionInput) string

// RunGuards runs guards in order and returns the first failure.
func RunGuards(in *ActionInput, guards ...Guard) string {
	for _, g := range guards {
		if g == nil {
			continue
		}
		if msg := g(in); msg != "" {
			return msg
		}
	}
	return ""
}

// RequireArgs fails unless the input carries at least n parameters.
func RequireArgs(n int, usage string) Guard {
	return func(in *ActionInput) string {
		if len(in.Params) >= n {
			return ""
		}
		if usage != "" {
			return fmt.Sprintf("Usage: %s", usage)
		}
		if n == 1 {
			return "That command needs an argument."
		}
		return fmt.Sprintf("That command needs %d arguments.", n)
	}
}

// RequireActor fails when the invoker controls no Thing.
func RequireActor(in *ActionInput) string {
	if in.Actor() == nil {
		return "You are not in the world."
	}
	return ""
}
