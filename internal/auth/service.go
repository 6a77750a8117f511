// Package auth implements the authentication and access-control core: token
// lifecycle, role-based authorization and the login flow that ties the
// attempt tracker, anomaly detector and event recorder together.
//
// The Service holds no per-request state and is safe for concurrent use
// provided the injected user store is.
package auth

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"chordstream.io/internal/obs"
	"chordstream.io/internal/security"
)

// Service orchestrates the login use case and fronts token verification and
// authorization for the transport layer.
type Service struct {
	users     UserStore
	passwords PasswordVerifier
	tokens    *TokenService
	tracker   *security.Tracker
	recorder  *security.Recorder
	guard     Guard
	now       func() time.Time

	// credTimeout bounds the external credential-check step only; tracker,
	// guard and token operations are synchronous and never time out.
	credTimeout time.Duration
}

// ServiceOption configures Service behavior.
type ServiceOption func(*Service)

// WithPasswordVerifier overrides the credential-verification contract.
func WithPasswordVerifier(v PasswordVerifier) ServiceOption {
	return func(s *Service) {
		if v != nil {
			s.passwords = v
		}
	}
}

// WithClock overrides the time source (useful for tests).
func WithClock(fn func() time.Time) ServiceOption {
	return func(s *Service) {
		if fn != nil {
			s.now = fn
		}
	}
}

// WithCredentialTimeout bounds the user lookup and password check.
func WithCredentialTimeout(d time.Duration) ServiceOption {
	return func(s *Service) {
		if d > 0 {
			s.credTimeout = d
		}
	}
}

// NewService wires the login flow. All collaborators are required except the
// options.
func NewService(users UserStore, tokens *TokenService, tracker *security.Tracker, recorder *security.Recorder, opts ...ServiceOption) (*Service, error) {
	if users == nil {
		return nil, errors.New("auth: user store is required")
	}
	if tokens == nil {
		return nil, errors.New("auth: token service is required")
	}
	if tracker == nil {
		return nil, errors.New("auth: attempt tracker is required")
	}
	if recorder == nil {
		return nil, errors.New("auth: event recorder is required")
	}
	s := &Service{
		users:     users,
		passwords: BcryptVerifier{},
		tokens:    tokens,
		tracker:   tracker,
		recorder:  recorder,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Tokens exposes the owned token service for the transport layer.
func (s *Service) Tokens() *TokenService { return s.tokens }

// Tracker exposes the owned attempt tracker for rate-limit headers.
func (s *Service) Tracker() *security.Tracker { return s.tracker }

// Login runs the full login flow: rate-limit check, credential check,
// anomaly check, token issuance and event recording. Denials on the expected
// paths come back as sentinel errors; failed attempts are always recorded
// before the error surfaces.
func (s *Service) Login(ctx context.Context, req LoginRequest) (*LoginResult, error) {
	identifier := strings.ToLower(strings.TrimSpace(req.Identifier))
	if identifier == "" || req.Secret == "" {
		return nil, ErrInvalidCredentials
	}

	decision := s.tracker.CheckAllowed(identifier)
	if !decision.Allowed {
		s.tracker.Record(identifier, s.attempt(req, false))
		s.recorder.Record(ctx, security.EventInput{
			Type:            security.EventLoginRateLimited,
			SourceAddress:   req.SourceAddress,
			ClientSignature: req.ClientSignature,
			Details: map[string]string{
				"identifier":  identifier,
				"retry_after": strconv.Itoa(int(decision.RetryAfter / time.Second)),
			},
		})
		obs.ObserveLogin("blocked")
		obs.ObserveRateLimitBlock()
		return nil, &RateLimitedError{RetryAfter: decision.RetryAfter, ResetAt: decision.ResetAt}
	}

	user, err := s.lookupAndVerify(ctx, identifier, req.Secret)
	if err != nil {
		var denial error
		switch {
		case errors.Is(err, ErrNotFound):
			// Same message as a bad password, to avoid user enumeration.
			denial = ErrInvalidCredentials
		case errors.Is(err, ErrInvalidCredentials),
			errors.Is(err, ErrAccountInactive),
			errors.Is(err, ErrAccountDeleted):
			denial = err
		default:
			return nil, fmt.Errorf("auth: credential check: %w", err)
		}
		s.recordFailure(ctx, identifier, req, user, denial)
		return nil, denial
	}

	s.tracker.Record(identifier, s.attempt(req, true))

	report := security.Evaluate(s.tracker.Window(identifier), s.now())
	if report.Suspicious {
		s.recorder.Record(ctx, security.EventInput{
			Type:            security.EventSuspiciousActivity,
			SubjectUserID:   user.ID,
			SourceAddress:   req.SourceAddress,
			ClientSignature: req.ClientSignature,
			Details: map[string]string{
				"identifier": identifier,
				"reasons":    strings.Join(report.Reasons, ", "),
			},
		})
	}

	pair, err := s.tokens.Issue(user, req.RememberMe)
	if err != nil {
		return nil, fmt.Errorf("auth: issue tokens: %w", err)
	}

	s.recorder.Record(ctx, security.EventInput{
		Type:            security.EventLoginSuccess,
		SubjectUserID:   user.ID,
		SourceAddress:   req.SourceAddress,
		ClientSignature: req.ClientSignature,
		Details:         map[string]string{"identifier": identifier},
	})
	obs.ObserveLogin("success")

	return &LoginResult{User: user, Tokens: pair}, nil
}

// lookupAndVerify performs the external credential check, bounded by the
// configured timeout. Returns the user also on status denials so the caller
// can attribute the security event.
func (s *Service) lookupAndVerify(ctx context.Context, identifier, secret string) (*User, error) {
	if s.credTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.credTimeout)
		defer cancel()
	}

	user, err := s.users.FindByIdentifier(ctx, identifier)
	if err != nil {
		return nil, err
	}
	switch user.Status {
	case StatusActive:
	case StatusDeleted:
		return user, ErrAccountDeleted
	default:
		return user, ErrAccountInactive
	}
	if err := s.passwords.Verify(user.PasswordHash, secret); err != nil {
		return user, ErrInvalidCredentials
	}
	return user, nil
}

// recordFailure appends the failed attempt, emits the failure event and
// re-checks the brute-force threshold.
func (s *Service) recordFailure(ctx context.Context, identifier string, req LoginRequest, user *User, denial error) {
	s.tracker.Record(identifier, s.attempt(req, false))

	subjectID := ""
	if user != nil {
		subjectID = user.ID
	}
	s.recorder.Record(ctx, security.EventInput{
		Type:            security.EventLoginFailure,
		SubjectUserID:   subjectID,
		SourceAddress:   req.SourceAddress,
		ClientSignature: req.ClientSignature,
		Details: map[string]string{
			"identifier": identifier,
			"reason":     denialReason(denial),
		},
	})
	obs.ObserveLogin("failure")

	if s.tracker.FailureCount(identifier) >= s.tracker.MaxAttempts() {
		s.recorder.Record(ctx, security.EventInput{
			Type:            security.EventLoginBruteForce,
			SubjectUserID:   subjectID,
			SourceAddress:   req.SourceAddress,
			ClientSignature: req.ClientSignature,
			Details:         map[string]string{"identifier": identifier},
		})
		s.recorder.Record(ctx, security.EventInput{
			Type:          security.EventAccountLocked,
			SubjectUserID: subjectID,
			Details:       map[string]string{"identifier": identifier},
		})
	}
}

func denialReason(err error) string {
	switch {
	case errors.Is(err, ErrAccountInactive):
		return "account_inactive"
	case errors.Is(err, ErrAccountDeleted):
		return "account_deleted"
	default:
		return "invalid_credentials"
	}
}

func (s *Service) attempt(req LoginRequest, success bool) security.Attempt {
	return security.Attempt{
		Time:            s.now(),
		SourceAddress:   req.SourceAddress,
		ClientSignature: req.ClientSignature,
		Success:         success,
	}
}

// Refresh exchanges a valid refresh token for a new access token. The
// refresh token is not rotated.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (string, time.Duration, error) {
	return s.tokens.Refresh(refreshToken)
}

// Revoke blacklists the given token and records the revocation event.
func (s *Service) Revoke(ctx context.Context, token, sourceAddress string) error {
	claims, err := s.tokens.Revoke(token)
	if err != nil {
		return err
	}
	s.recorder.Record(ctx, security.EventInput{
		Type:          security.EventTokenRevoked,
		SubjectUserID: claims.Subject,
		SourceAddress: sourceAddress,
		Details:       map[string]string{"token_type": string(claims.TokenType)},
	})
	return nil
}

// Authenticate verifies an access token and loads the current account. A
// token that verifies but belongs to a disabled or deleted account is
// refused: authorization is fail-closed on account status.
func (s *Service) Authenticate(ctx context.Context, accessToken string) (Principal, error) {
	claims, err := s.tokens.Verify(accessToken, TokenTypeAccess)
	if err != nil {
		return Principal{}, err
	}
	user, err := s.users.Find(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Principal{}, ErrInvalidToken
		}
		return Principal{}, fmt.Errorf("auth: load principal: %w", err)
	}
	switch user.Status {
	case StatusActive:
	case StatusDeleted:
		return Principal{}, ErrAccountDeleted
	default:
		return Principal{}, ErrAccountInactive
	}
	return Principal{User: user, Claims: claims}, nil
}

// Authorize runs the guard and records an unauthorized-access event on
// denial.
func (s *Service) Authorize(ctx context.Context, actor Actor, check Check) error {
	decision := s.guard.Authorize(actor, check)
	if decision.Allowed {
		return nil
	}
	s.recorder.Record(ctx, security.EventInput{
		Type:          security.EventUnauthorizedAccess,
		SubjectUserID: actor.ID,
		Details: map[string]string{
			"reason":         decision.Reason,
			"required_role":  string(check.RequiredRole),
			"resource_owner": check.ResourceOwnerID,
		},
	})
	return decision.Err
}
