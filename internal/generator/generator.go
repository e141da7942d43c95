package generator

import "context"

// Role is a closed set of conversation roles. External role strings are
// converted at the boundary; anything unrecognized is skipped rather
// than matched at runtime.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// ParseRole converts an external role string into a Role. The second
// return value is false for unknown roles.
func ParseRole(s string) (Role, bool) {
	switch s {
	case "user":
		return RoleUser, true
	case "assistant":
		return RoleAssistant, true
	default:
		return "", false
	}
}

// Turn is a single role-tagged message in a generation request
type Turn struct {
	Role    Role
	Content string
}

// Generator produces a text reply from a system instruction and a
// message sequence. Replies are passed through as-is, including empty
// ones.
type Generator interface {
	Generate(ctx context.Context, system string, turns []Turn) (string, error)
}
