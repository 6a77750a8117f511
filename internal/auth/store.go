package auth

import "context"

// UserStore is the narrow persistence contract the auth subsystem consumes.
// Implementations must return ErrNotFound for missing users and
// ErrAlreadyExists on unique-constraint conflicts.
type UserStore interface {
	// FindByIdentifier resolves a user by email or username,
	// case-insensitively.
	FindByIdentifier(ctx context.Context, identifier string) (*User, error)
	Find(ctx context.Context, id string) (*User, error)
	Create(ctx context.Context, u *User) error
	UpdatePassword(ctx context.Context, userID, passwordHash string) error
	UpdateStatus(ctx context.Context, userID, status string) error
}
