package auth

import (
	"errors"
	"fmt"
	"time"
)

// Expected denial paths are sentinel errors so callers can branch without
// string matching. Only truly exceptional conditions surface as wrapped
// storage or crypto failures.
var (
	ErrRateLimited             = errors.New("auth: rate limited")
	ErrInvalidCredentials      = errors.New("auth: invalid credentials")
	ErrAccountInactive         = errors.New("auth: account inactive")
	ErrAccountDeleted          = errors.New("auth: account deleted")
	ErrInvalidToken            = errors.New("auth: invalid token")
	ErrTokenExpired            = errors.New("auth: token expired")
	ErrTokenTypeMismatch       = errors.New("auth: token type mismatch")
	ErrTokenRevoked            = errors.New("auth: token revoked")
	ErrInsufficientPermissions = errors.New("auth: insufficient permissions")
	ErrNotResourceOwner        = errors.New("auth: not resource owner")
	ErrNotFound                = errors.New("auth: not found")
	ErrAlreadyExists           = errors.New("auth: already exists")
)

// RateLimitedError carries the disclosed retry delay alongside the
// ErrRateLimited sentinel.
type RateLimitedError struct {
	RetryAfter time.Duration
	ResetAt    time.Time
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("auth: rate limited, retry after %s", e.RetryAfter)
}

func (e *RateLimitedError) Unwrap() error { return ErrRateLimited }
