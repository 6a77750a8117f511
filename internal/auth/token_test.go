package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type testClock struct {
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time          { return c.now }
func (c *testClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func testUser() *User {
	return &User{
		ID:       "01JEXAMPLEUSER0000000000",
		Email:    "ada@chordstream.io",
		Username: "ada",
		Role:     RoleArtist,
		Status:   StatusActive,
	}
}

func newTestTokens(t *testing.T, clock *testClock, opts ...TokenOption) *TokenService {
	t.Helper()
	all := append([]TokenOption{WithTokenClock(clock.Now)}, opts...)
	svc, err := NewTokenService("test-signing-secret", all...)
	require.NoError(t, err)
	return svc
}

func TestNewTokenServiceRequiresSecret(t *testing.T) {
	_, err := NewTokenService("")
	require.Error(t, err)

	_, err = NewTokenService("   ")
	require.Error(t, err)
}

func TestIssueAndVerifyRoundTrip(t *testing.T) {
	clock := newTestClock()
	svc := newTestTokens(t, clock)
	user := testUser()

	pair, err := svc.Issue(user, true)
	require.NoError(t, err)
	require.NotEmpty(t, pair.AccessToken)
	require.NotEmpty(t, pair.RefreshToken)
	require.NotEqual(t, pair.AccessToken, pair.RefreshToken)
	require.Equal(t, 15*time.Minute, pair.AccessExpiresIn)
	require.Equal(t, 30*24*time.Hour, pair.RefreshExpiresIn)

	claims, err := svc.Verify(pair.AccessToken, TokenTypeAccess)
	require.NoError(t, err)
	require.Equal(t, user.ID, claims.Subject)
	require.Equal(t, user.Email, claims.Email)
	require.Equal(t, user.Username, claims.Username)
	require.Equal(t, user.Role, claims.Role)
	require.Equal(t, TokenTypeAccess, claims.TokenType)
	require.NotEmpty(t, claims.ID)

	refreshClaims, err := svc.Verify(pair.RefreshToken, TokenTypeRefresh)
	require.NoError(t, err)
	require.Equal(t, TokenTypeRefresh, refreshClaims.TokenType)
	require.NotEqual(t, claims.ID, refreshClaims.ID)
}

func TestIssueWithoutRememberMeCapsRefreshLifetime(t *testing.T) {
	clock := newTestClock()
	svc := newTestTokens(t, clock)

	pair, err := svc.Issue(testUser(), false)
	require.NoError(t, err)
	require.Equal(t, 24*time.Hour, pair.RefreshExpiresIn)

	// The cap is real, not cosmetic: the refresh token dies after 24h.
	clock.Advance(24*time.Hour + time.Second)
	_, err = svc.Verify(pair.RefreshToken, TokenTypeRefresh)
	require.ErrorIs(t, err, ErrTokenExpired)
}

func TestVerifyRejectsWrongTokenType(t *testing.T) {
	svc := newTestTokens(t, newTestClock())

	pair, err := svc.Issue(testUser(), true)
	require.NoError(t, err)

	_, err = svc.Verify(pair.AccessToken, TokenTypeRefresh)
	require.ErrorIs(t, err, ErrTokenTypeMismatch)

	_, err = svc.Verify(pair.RefreshToken, TokenTypeAccess)
	require.ErrorIs(t, err, ErrTokenTypeMismatch)
}

func TestVerifyRejectsGarbage(t *testing.T) {
	svc := newTestTokens(t, newTestClock())

	for _, token := range []string{"", "   ", "not-a-token", "a.b.c"} {
		_, err := svc.Verify(token, TokenTypeAccess)
		require.ErrorIs(t, err, ErrInvalidToken, "token %q", token)
	}
}

func TestVerifyRejectsForeignSignature(t *testing.T) {
	clock := newTestClock()
	svc := newTestTokens(t, clock)

	other, err := NewTokenService("a-different-secret", WithTokenClock(clock.Now))
	require.NoError(t, err)

	pair, err := other.Issue(testUser(), true)
	require.NoError(t, err)

	_, err = svc.Verify(pair.AccessToken, TokenTypeAccess)
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestVerifyExpiredToken(t *testing.T) {
	clock := newTestClock()
	svc := newTestTokens(t, clock, WithAccessTTL(time.Minute))

	pair, err := svc.Issue(testUser(), true)
	require.NoError(t, err)

	clock.Advance(time.Minute + time.Second)
	_, err = svc.Verify(pair.AccessToken, TokenTypeAccess)
	require.ErrorIs(t, err, ErrTokenExpired)
}

func TestExpiredSignatureMismatchReportsInvalid(t *testing.T) {
	// Structure and signature dominate expiry in the reported failure.
	clock := newTestClock()
	issuerSvc, err := NewTokenService("a-different-secret",
		WithTokenClock(clock.Now), WithAccessTTL(time.Minute))
	require.NoError(t, err)

	pair, err := issuerSvc.Issue(testUser(), true)
	require.NoError(t, err)

	clock.Advance(time.Hour)
	svc := newTestTokens(t, clock)
	_, err = svc.Verify(pair.AccessToken, TokenTypeAccess)
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestRefreshIssuesNewAccessToken(t *testing.T) {
	clock := newTestClock()
	svc := newTestTokens(t, clock)
	user := testUser()

	pair, err := svc.Issue(user, true)
	require.NoError(t, err)

	clock.Advance(time.Hour)
	access, ttl, err := svc.Refresh(pair.RefreshToken)
	require.NoError(t, err)
	require.Equal(t, 15*time.Minute, ttl)

	claims, err := svc.Verify(access, TokenTypeAccess)
	require.NoError(t, err)
	require.Equal(t, user.ID, claims.Subject)
	require.Equal(t, user.Role, claims.Role)

	// The refresh token is not rotated.
	_, err = svc.Verify(pair.RefreshToken, TokenTypeRefresh)
	require.NoError(t, err)
}

func TestRefreshRejectsAccessToken(t *testing.T) {
	svc := newTestTokens(t, newTestClock())

	pair, err := svc.Issue(testUser(), true)
	require.NoError(t, err)

	_, _, err = svc.Refresh(pair.AccessToken)
	require.ErrorIs(t, err, ErrTokenTypeMismatch)
}

func TestRevokeBlocksExactTokenOnly(t *testing.T) {
	clock := newTestClock()
	svc := newTestTokens(t, clock)
	user := testUser()

	first, err := svc.Issue(user, true)
	require.NoError(t, err)
	second, err := svc.Issue(user, true)
	require.NoError(t, err)

	claims, err := svc.Revoke(first.AccessToken)
	require.NoError(t, err)
	require.Equal(t, user.ID, claims.Subject)
	require.Equal(t, 1, svc.BlacklistSize())

	_, err = svc.Verify(first.AccessToken, TokenTypeAccess)
	require.ErrorIs(t, err, ErrTokenRevoked)

	// Other tokens of the same subject stay valid.
	_, err = svc.Verify(second.AccessToken, TokenTypeAccess)
	require.NoError(t, err)
	_, err = svc.Verify(first.RefreshToken, TokenTypeRefresh)
	require.NoError(t, err)
}

func TestRevokeIsIdempotent(t *testing.T) {
	svc := newTestTokens(t, newTestClock())

	pair, err := svc.Issue(testUser(), true)
	require.NoError(t, err)

	_, err = svc.Revoke(pair.AccessToken)
	require.NoError(t, err)
	_, err = svc.Revoke(pair.AccessToken)
	require.NoError(t, err)
	require.Equal(t, 1, svc.BlacklistSize())
}

func TestRevokeExpiredTokenIsRefused(t *testing.T) {
	clock := newTestClock()
	svc := newTestTokens(t, clock, WithAccessTTL(time.Minute))

	pair, err := svc.Issue(testUser(), true)
	require.NoError(t, err)

	clock.Advance(2 * time.Minute)
	_, err = svc.Revoke(pair.AccessToken)
	require.ErrorIs(t, err, ErrTokenExpired)
	require.Equal(t, 0, svc.BlacklistSize())
}

func TestSweepDropsExpiredRevocations(t *testing.T) {
	clock := newTestClock()
	svc := newTestTokens(t, clock, WithAccessTTL(time.Minute))

	short, err := svc.Issue(testUser(), true)
	require.NoError(t, err)
	_, err = svc.Revoke(short.AccessToken)
	require.NoError(t, err)
	_, err = svc.Revoke(short.RefreshToken)
	require.NoError(t, err)
	require.Equal(t, 2, svc.BlacklistSize())

	// Access revocation becomes redundant once the token itself expires;
	// the long-lived refresh entry survives the sweep.
	clock.Advance(2 * time.Minute)
	svc.Sweep()
	require.Equal(t, 1, svc.BlacklistSize())

	_, err = svc.Verify(short.RefreshToken, TokenTypeRefresh)
	require.ErrorIs(t, err, ErrTokenRevoked)
}

func TestCustomIssuerAndAudienceAreEnforced(t *testing.T) {
	clock := newTestClock()
	svc := newTestTokens(t, clock, WithIssuer("stage"), WithAudience("stage-api"))

	pair, err := svc.Issue(testUser(), true)
	require.NoError(t, err)

	_, err = svc.Verify(pair.AccessToken, TokenTypeAccess)
	require.NoError(t, err)

	defaultSvc, err := NewTokenService("test-signing-secret", WithTokenClock(clock.Now))
	require.NoError(t, err)
	_, err = defaultSvc.Verify(pair.AccessToken, TokenTypeAccess)
	require.ErrorIs(t, err, ErrInvalidToken)
}
