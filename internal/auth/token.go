package auth

import (
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"chordstream.io/internal/obs"
)

const (
	defaultAccessTTL  = 15 * time.Minute
	defaultRefreshTTL = 24 * time.Hour * 30

	// Refresh lifetime without remember-me.
	shortRefreshTTL = 24 * time.Hour

	defaultIssuer   = "chordstream"
	defaultAudience = "chordstream-api"
)

// TokenType distinguishes access from refresh tokens. A refresh token is
// never accepted where an access token is required, and vice versa.
type TokenType string

const (
	TokenTypeAccess  TokenType = "access"
	TokenTypeRefresh TokenType = "refresh"
)

// Claims is the signed claim set carried by both token types.
type Claims struct {
	Email     string    `json:"email"`
	Username  string    `json:"username"`
	Role      Role      `json:"role"`
	TokenType TokenType `json:"type"`
	jwt.RegisteredClaims
}

// revocation is a blacklist entry keyed by token identifier (jti).
type revocation struct {
	revokedAt time.Time
	expiresAt time.Time
}

// TokenService issues, verifies, refreshes and revokes signed tokens. It
// exclusively owns the signing secret and the revocation blacklist; blacklist
// access is serialized by a mutex shared with the background sweep.
type TokenService struct {
	secret     []byte
	issuer     string
	audience   string
	accessTTL  time.Duration
	refreshTTL time.Duration
	now        func() time.Time

	mu      sync.Mutex
	revoked map[string]revocation
}

// TokenOption configures TokenService behavior.
type TokenOption func(*TokenService)

// WithIssuer overrides the token issuer claim.
func WithIssuer(issuer string) TokenOption {
	return func(s *TokenService) {
		if v := strings.TrimSpace(issuer); v != "" {
			s.issuer = v
		}
	}
}

// WithAudience overrides the token audience claim.
func WithAudience(audience string) TokenOption {
	return func(s *TokenService) {
		if v := strings.TrimSpace(audience); v != "" {
			s.audience = v
		}
	}
}

// WithAccessTTL configures access token lifetime.
func WithAccessTTL(ttl time.Duration) TokenOption {
	return func(s *TokenService) {
		if ttl > 0 {
			s.accessTTL = ttl
		}
	}
}

// WithRefreshTTL configures refresh token lifetime.
func WithRefreshTTL(ttl time.Duration) TokenOption {
	return func(s *TokenService) {
		if ttl > 0 {
			s.refreshTTL = ttl
		}
	}
}

// WithTokenClock overrides the time source (useful for tests).
func WithTokenClock(fn func() time.Time) TokenOption {
	return func(s *TokenService) {
		if fn != nil {
			s.now = fn
		}
	}
}

// NewTokenService constructs a TokenService signing with HS256.
func NewTokenService(secret string, opts ...TokenOption) (*TokenService, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, errors.New("auth: signing secret is required")
	}
	s := &TokenService{
		secret:     []byte(secret),
		issuer:     defaultIssuer,
		audience:   defaultAudience,
		accessTTL:  defaultAccessTTL,
		refreshTTL: defaultRefreshTTL,
		now:        time.Now,
		revoked:    make(map[string]revocation),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// AccessTTL returns the configured access token lifetime.
func (s *TokenService) AccessTTL() time.Duration { return s.accessTTL }

// Issue mints a complete token pair for the user. Without rememberMe the
// refresh lifetime is capped at 24 hours.
func (s *TokenService) Issue(user *User, rememberMe bool) (TokenPair, error) {
	refreshTTL := s.refreshTTL
	if !rememberMe && refreshTTL > shortRefreshTTL {
		refreshTTL = shortRefreshTTL
	}

	now := s.now()
	access, err := s.sign(user, TokenTypeAccess, now, s.accessTTL)
	if err != nil {
		return TokenPair{}, err
	}
	refresh, err := s.sign(user, TokenTypeRefresh, now, refreshTTL)
	if err != nil {
		return TokenPair{}, err
	}
	return TokenPair{
		AccessToken:      access,
		RefreshToken:     refresh,
		AccessExpiresIn:  s.accessTTL,
		RefreshExpiresIn: refreshTTL,
	}, nil
}

func (s *TokenService) sign(user *User, tokenType TokenType, now time.Time, ttl time.Duration) (string, error) {
	claims := Claims{
		Email:     user.Email,
		Username:  user.Username,
		Role:      user.Role,
		TokenType: tokenType,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID,
			Issuer:    s.issuer,
			Audience:  jwt.ClaimStrings{s.audience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			ID:        uuid.NewString(),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secret)
}

// Verify validates the token and returns its claims. Failure order: a
// structurally invalid or mis-signed token reports ErrInvalidToken before
// ErrTokenExpired, which precedes ErrTokenTypeMismatch, which precedes
// ErrTokenRevoked. Callers can therefore distinguish "never valid" from
// "valid but no longer usable".
func (s *TokenService) Verify(token string, expected TokenType) (*Claims, error) {
	claims, err := s.parse(token)
	if err != nil {
		return nil, err
	}
	if claims.TokenType != expected {
		return nil, ErrTokenTypeMismatch
	}
	if s.isRevoked(claims.ID) {
		return nil, ErrTokenRevoked
	}
	return claims, nil
}

// parse checks structure, signature, issuer/audience and expiry, in that
// order of reported failure.
func (s *TokenService) parse(token string) (*Claims, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, ErrInvalidToken
	}
	parsed, err := jwt.ParseWithClaims(token, &Claims{},
		func(t *jwt.Token) (any, error) {
			if t.Method != jwt.SigningMethodHS256 {
				return nil, ErrInvalidToken
			}
			return s.secret, nil
		},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(s.issuer),
		jwt.WithAudience(s.audience),
		jwt.WithIssuedAt(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenMalformed),
			errors.Is(err, jwt.ErrTokenSignatureInvalid),
			errors.Is(err, jwt.ErrTokenInvalidIssuer),
			errors.Is(err, jwt.ErrTokenInvalidAudience):
			return nil, ErrInvalidToken
		case errors.Is(err, jwt.ErrTokenExpired):
			return nil, ErrTokenExpired
		default:
			return nil, ErrInvalidToken
		}
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, ErrInvalidToken
	}
	if strings.TrimSpace(claims.Subject) == "" || claims.ID == "" ||
		claims.ExpiresAt == nil || claims.IssuedAt == nil {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// Refresh verifies the refresh token and re-issues an access token bound to
// the same subject and role. The refresh token itself is left untouched: no
// implicit rotation.
func (s *TokenService) Refresh(refreshToken string) (string, time.Duration, error) {
	claims, err := s.Verify(refreshToken, TokenTypeRefresh)
	if err != nil {
		return "", 0, err
	}
	user := &User{
		ID:       claims.Subject,
		Email:    claims.Email,
		Username: claims.Username,
		Role:     claims.Role,
	}
	access, err := s.sign(user, TokenTypeAccess, s.now(), s.accessTTL)
	if err != nil {
		return "", 0, err
	}
	return access, s.accessTTL, nil
}

// Revoke blacklists the exact token by its identifier. Other tokens of the
// same subject stay valid. Revoking an already-expired token is a no-op:
// verification will report expiry anyway.
func (s *TokenService) Revoke(token string) (*Claims, error) {
	claims, err := s.parse(token)
	if errors.Is(err, ErrTokenExpired) {
		return nil, ErrTokenExpired
	}
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.revoked[claims.ID]; !ok {
		s.revoked[claims.ID] = revocation{
			revokedAt: s.now(),
			expiresAt: claims.ExpiresAt.Time,
		}
		obs.ObserveRevocation()
		obs.SetBlacklistSize(len(s.revoked))
	}
	return claims, nil
}

func (s *TokenService) isRevoked(jti string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.revoked[jti]
	return ok
}

// BlacklistSize returns the number of live revocation entries.
func (s *TokenService) BlacklistSize() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.revoked)
}

// Sweep garbage-collects revocation entries whose tokens have expired.
// An entry for an expired token is redundant: expiry alone rejects it.
func (s *TokenService) Sweep() {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()
	for jti, entry := range s.revoked {
		if !now.Before(entry.expiresAt) {
			delete(s.revoked, jti)
		}
	}
	obs.SetBlacklistSize(len(s.revoked))
}
