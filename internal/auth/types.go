package auth

import "time"

// Account status values. Deleted accounts are soft-deleted: the row stays,
// logins are refused with a distinct error.
const (
	StatusActive   = "active"
	StatusDisabled = "disabled"
	StatusDeleted  = "deleted"
)

// User carries the auth-relevant fields of a platform account. Profile and
// catalog data live elsewhere.
type User struct {
	ID           string
	Email        string
	Username     string
	DisplayName  string
	AvatarURL    string
	PasswordHash string
	Role         Role
	Status       string
	Verified     bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// TokenPair holds both tokens created at issuance. Never partially valid:
// issuance either returns a complete pair or fails.
type TokenPair struct {
	AccessToken      string
	RefreshToken     string
	AccessExpiresIn  time.Duration
	RefreshExpiresIn time.Duration
}

// LoginRequest is the inbound login contract.
type LoginRequest struct {
	Identifier      string
	Secret          string
	RememberMe      bool
	SourceAddress   string
	ClientSignature string
}

// LoginResult is returned on a completed login.
type LoginResult struct {
	User   *User
	Tokens TokenPair
}
