package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"chordstream.io/internal/auth"
)

// handleUserProfile is the ownership-guarded resource route: a user reads
// their own profile; moderator level and above read anyone's.
func (a *API) handleUserProfile(w http.ResponseWriter, r *http.Request) {
	principal, ok := auth.PrincipalFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, codeAuthRequired, "authentication required")
		return
	}

	targetID := chi.URLParam(r, "id")
	if targetID == "" {
		writeError(w, r, http.StatusBadRequest, codeBadRequest, "user id is required")
		return
	}

	if err := a.auth.Authorize(r.Context(), principal.Actor(), auth.Check{
		ResourceOwnerID: targetID,
	}); err != nil {
		handleAuthError(w, r, err)
		return
	}

	target, err := a.users.Find(r.Context(), targetID)
	if err != nil {
		handleAuthError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"profile": subjectOf(target)})
}

// handleSecurityStatus is the role-guarded operational route (moderator+).
func (a *API) handleSecurityStatus(w http.ResponseWriter, r *http.Request) {
	principal, ok := auth.PrincipalFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, codeAuthRequired, "authentication required")
		return
	}

	if err := a.auth.Authorize(r.Context(), principal.Actor(), auth.Check{
		RequiredRole: auth.RoleModerator,
	}); err != nil {
		handleAuthError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"revocationBlacklistSize": a.auth.Tokens().BlacklistSize(),
		"maxLoginAttempts":        a.auth.Tracker().MaxAttempts(),
	})
}
