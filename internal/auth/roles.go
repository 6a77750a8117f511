package auth

import (
	"fmt"
	"strings"
)

// Role is one of the platform's ordered roles. The permission order is total:
// user < artist < moderator < admin.
type Role string

const (
	RoleUser      Role = "user"
	RoleArtist    Role = "artist"
	RoleModerator Role = "moderator"
	RoleAdmin     Role = "admin"
)

// rank is the single source of truth for role comparisons.
var rank = map[Role]int{
	RoleUser:      0,
	RoleArtist:    1,
	RoleModerator: 2,
	RoleAdmin:     3,
}

// Valid reports whether the role is one of the known roles.
func (r Role) Valid() bool {
	_, ok := rank[r]
	return ok
}

// Level returns the role's permission level. Unknown roles rank below user.
func (r Role) Level() int {
	if lvl, ok := rank[r]; ok {
		return lvl
	}
	return -1
}

// AtLeast reports whether the role's permission level satisfies required.
func (r Role) AtLeast(required Role) bool {
	return r.Level() >= required.Level() && required.Valid()
}

// ParseRole normalizes and validates a role string.
func ParseRole(raw string) (Role, error) {
	role := Role(strings.ToLower(strings.TrimSpace(raw)))
	if !role.Valid() {
		return "", fmt.Errorf("unknown role %q", raw)
	}
	return role, nil
}
