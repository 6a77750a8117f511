package auth

// Actor is the authenticated caller as seen by the authorization guard.
type Actor struct {
	ID     string
	Role   Role
	Status string
}

// Check describes what an operation requires. Zero values mean "no
// constraint of that kind".
type Check struct {
	// RequiredRole, when set, is the minimum role for the operation.
	RequiredRole Role
	// ResourceOwnerID, when set, restricts the operation to the resource
	// owner; moderator-level and above override ownership.
	ResourceOwnerID string
}

// Decision is the typed outcome of an authorization check. Err is nil iff
// Allowed.
type Decision struct {
	Allowed bool
	Reason  string
	Err     error
}

// Guard evaluates role-hierarchy and resource-ownership rules. Stateless.
type Guard struct{}

// Authorize applies the decision algorithm. A disabled or soft-deleted
// actor is denied before any rule is evaluated. Ownership is overridable by
// moderator level and above, never by artist or user level.
func (Guard) Authorize(actor Actor, check Check) Decision {
	switch actor.Status {
	case StatusDeleted:
		return Decision{Reason: "account deleted", Err: ErrAccountDeleted}
	case StatusActive:
	default:
		return Decision{Reason: "account inactive", Err: ErrAccountInactive}
	}

	if check.RequiredRole != "" && !actor.Role.AtLeast(check.RequiredRole) {
		return Decision{Reason: "insufficient permissions", Err: ErrInsufficientPermissions}
	}

	if check.ResourceOwnerID != "" && actor.ID != check.ResourceOwnerID &&
		!actor.Role.AtLeast(RoleModerator) {
		return Decision{Reason: "not resource owner", Err: ErrNotResourceOwner}
	}

	return Decision{Allowed: true}
}
