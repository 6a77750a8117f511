// Package httpapi is the HTTP surface of the security subsystem: login and
// token endpoints, guarded resource routes and the operational probes.
package httpapi

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"chordstream.io/internal/audit"
	"chordstream.io/internal/auth"
	"chordstream.io/internal/obs"
)

// Stable machine-readable error codes.
const (
	codeAuthRequired       = "AUTHENTICATION_REQUIRED"
	codeInvalidCredentials = "INVALID_CREDENTIALS"
	codeRateLimited        = "RATE_LIMITED"
	codeAccessDenied       = "ACCESS_DENIED"
	codeInsufficientPerms  = "INSUFFICIENT_PERMISSIONS"
	codeInvalidToken       = "INVALID_TOKEN"
	codeTokenExpired       = "TOKEN_EXPIRED"
	codeTokenRevoked       = "TOKEN_REVOKED"
	codeBadRequest         = "BAD_REQUEST"
	codeNotFound           = "NOT_FOUND"
	codeInternal           = "INTERNAL"
)

// ReadyProbe checks downstream readiness (for example a DB ping).
type ReadyProbe struct {
	DB *sql.DB
}

func (rp ReadyProbe) Check(ctx context.Context) error {
	if rp.DB == nil {
		return nil
	}
	return rp.DB.PingContext(ctx)
}

// Config carries the transport-level knobs.
type Config struct {
	RateLimitPerSecond int
	RateLimitBurst     int
	MaxBodyBytes       int64
	Version            string
}

// API is the HTTP layer.
type API struct {
	router     chi.Router
	auth       *auth.Service
	users      auth.UserStore
	readyProbe ReadyProbe
	version    string
}

func New(svc *auth.Service, users auth.UserStore, rp ReadyProbe, cfg Config) *API {
	a := &API{
		router:     chi.NewRouter(),
		auth:       svc,
		users:      users,
		readyProbe: rp,
		version:    cfg.Version,
	}
	if cfg.RateLimitPerSecond <= 0 {
		cfg.RateLimitPerSecond = 20
	}
	if cfg.RateLimitBurst <= 0 {
		cfg.RateLimitBurst = 40
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = 1 << 20
	}

	r := a.router
	r.Use(RequestID)
	r.Use(LoggingJSON)
	r.Use(SecurityHeaders)
	r.Use(IPRateLimit(cfg.RateLimitPerSecond, cfg.RateLimitBurst))
	r.Use(MaxBodyBytes(cfg.MaxBodyBytes))

	r.Get("/healthz", a.Healthz)
	r.Get("/readyz", a.Ready)
	r.Handle("/metrics", obs.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Route("/auth", func(r chi.Router) {
			r.Post("/login", a.handleLogin)
			r.Post("/refresh", a.handleRefresh)
			r.Group(func(r chi.Router) {
				r.Use(a.withAuth)
				r.Post("/revoke", a.handleRevoke)
				r.Get("/me", a.handleMe)
			})
		})
		r.Group(func(r chi.Router) {
			r.Use(a.withAuth)
			r.Get("/users/{id}/profile", a.handleUserProfile)
			r.Get("/admin/security-status", a.handleSecurityStatus)
		})
	})

	return a
}

// Handler returns the instrumented root handler.
func (a *API) Handler() http.Handler {
	return obs.Instrument(a.router)
}

func (a *API) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": "chordstream-auth",
		"version": a.version,
	})
}

func (a *API) Ready(w http.ResponseWriter, r *http.Request) {
	if err := a.readyProbe.Check(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "not_ready",
			"error":  err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ready"})
}

// --- helpers ---

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, r *http.Request, status int, code, msg string) {
	payload := map[string]any{
		"error": map[string]string{
			"code":    code,
			"message": msg,
		},
	}
	if rid := audit.RequestIDFromContext(r.Context()); rid != "" {
		payload["request_id"] = rid
	}
	writeJSON(w, status, payload)
}

func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body is required")
		}
		return err
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		if err == nil {
			return errors.New("unexpected data after JSON body")
		}
		return err
	}
	return nil
}

func formatSeconds(d time.Duration) string {
	secs := int(d.Seconds())
	if secs < 1 {
		secs = 1
	}
	return strconv.Itoa(secs)
}

// handleAuthError maps service denials onto status codes and stable error
// codes. Unknown errors are reported as opaque internals.
func handleAuthError(w http.ResponseWriter, r *http.Request, err error) {
	var rateLimited *auth.RateLimitedError
	switch {
	case errors.As(err, &rateLimited):
		w.Header().Set("Retry-After", formatSeconds(rateLimited.RetryAfter))
		payload := map[string]any{
			"error": map[string]string{
				"code":    codeRateLimited,
				"message": "too many attempts",
			},
			"retryAfter": int(rateLimited.RetryAfter.Seconds()),
		}
		if rid := audit.RequestIDFromContext(r.Context()); rid != "" {
			payload["request_id"] = rid
		}
		writeJSON(w, http.StatusTooManyRequests, payload)
	case errors.Is(err, auth.ErrInvalidCredentials):
		writeError(w, r, http.StatusUnauthorized, codeInvalidCredentials, "invalid credentials")
	case errors.Is(err, auth.ErrAccountInactive), errors.Is(err, auth.ErrAccountDeleted):
		writeError(w, r, http.StatusForbidden, codeAccessDenied, "account is not active")
	case errors.Is(err, auth.ErrTokenExpired):
		writeError(w, r, http.StatusUnauthorized, codeTokenExpired, "token expired")
	case errors.Is(err, auth.ErrTokenRevoked):
		writeError(w, r, http.StatusUnauthorized, codeTokenRevoked, "token revoked")
	case errors.Is(err, auth.ErrInvalidToken), errors.Is(err, auth.ErrTokenTypeMismatch):
		writeError(w, r, http.StatusUnauthorized, codeInvalidToken, "invalid token")
	case errors.Is(err, auth.ErrInsufficientPermissions):
		writeError(w, r, http.StatusForbidden, codeInsufficientPerms, "insufficient permissions")
	case errors.Is(err, auth.ErrNotResourceOwner):
		writeError(w, r, http.StatusForbidden, codeAccessDenied, "access denied")
	case errors.Is(err, auth.ErrNotFound):
		writeError(w, r, http.StatusNotFound, codeNotFound, "not found")
	default:
		writeError(w, r, http.StatusInternalServerError, codeInternal, "internal error")
	}
}
