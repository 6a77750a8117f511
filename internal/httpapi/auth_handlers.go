package httpapi

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"chordstream.io/internal/auth"
)

type loginRequest struct {
	Identifier string `json:"identifier"`
	Password   string `json:"password"`
	RememberMe bool   `json:"rememberMe"`
}

type subjectResponse struct {
	ID          string `json:"id"`
	Email       string `json:"email"`
	Username    string `json:"username"`
	Role        string `json:"role"`
	Verified    bool   `json:"verified"`
	DisplayName string `json:"displayName,omitempty"`
	AvatarURL   string `json:"avatarUrl,omitempty"`
}

type loginResponse struct {
	AccessToken      string          `json:"accessToken"`
	RefreshToken     string          `json:"refreshToken"`
	TokenType        string          `json:"tokenType"`
	ExpiresIn        int64           `json:"expiresIn"`
	RefreshExpiresIn int64           `json:"refreshExpiresIn"`
	Subject          subjectResponse `json:"subject"`
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

type refreshResponse struct {
	AccessToken string `json:"accessToken"`
	TokenType   string `json:"tokenType"`
	ExpiresIn   int64  `json:"expiresIn"`
}

type revokeRequest struct {
	Token string `json:"token"`
}

func subjectOf(u *auth.User) subjectResponse {
	return subjectResponse{
		ID:          u.ID,
		Email:       u.Email,
		Username:    u.Username,
		Role:        string(u.Role),
		Verified:    u.Verified,
		DisplayName: u.DisplayName,
		AvatarURL:   u.AvatarURL,
	}
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, codeBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(req.Identifier) == "" || req.Password == "" {
		writeError(w, r, http.StatusBadRequest, codeBadRequest, "identifier and password are required")
		return
	}

	result, err := a.auth.Login(r.Context(), auth.LoginRequest{
		Identifier:      req.Identifier,
		Secret:          req.Password,
		RememberMe:      req.RememberMe,
		SourceAddress:   clientIP(r),
		ClientSignature: r.UserAgent(),
	})
	a.setRateLimitHeaders(w, req.Identifier)
	if err != nil {
		handleAuthError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, loginResponse{
		AccessToken:      result.Tokens.AccessToken,
		RefreshToken:     result.Tokens.RefreshToken,
		TokenType:        "Bearer",
		ExpiresIn:        int64(result.Tokens.AccessExpiresIn.Seconds()),
		RefreshExpiresIn: int64(result.Tokens.RefreshExpiresIn.Seconds()),
		Subject:          subjectOf(result.User),
	})
}

// setRateLimitHeaders discloses the login lockout state for the identifier.
func (a *API) setRateLimitHeaders(w http.ResponseWriter, identifier string) {
	decision := a.auth.Tracker().CheckAllowed(identifier)
	w.Header().Set("X-RateLimit-Limit", strconv.Itoa(a.auth.Tracker().MaxAttempts()))
	w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(decision.Remaining))
	if !decision.ResetAt.IsZero() {
		w.Header().Set("X-RateLimit-Reset", decision.ResetAt.UTC().Format(time.RFC3339))
	}
}

func (a *API) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, codeBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(req.RefreshToken) == "" {
		writeError(w, r, http.StatusBadRequest, codeBadRequest, "refreshToken is required")
		return
	}

	access, ttl, err := a.auth.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		handleAuthError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, refreshResponse{
		AccessToken: access,
		TokenType:   "Bearer",
		ExpiresIn:   int64(ttl.Seconds()),
	})
}

// handleRevoke blacklists the token named in the body, or the caller's own
// bearer token when the body names none.
func (a *API) handleRevoke(w http.ResponseWriter, r *http.Request) {
	var req revokeRequest
	if r.ContentLength != 0 {
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, codeBadRequest, err.Error())
			return
		}
	}
	token := strings.TrimSpace(req.Token)
	if token == "" {
		token, _ = auth.TokenFromContext(r.Context())
	}
	if token == "" {
		writeError(w, r, http.StatusBadRequest, codeBadRequest, "token is required")
		return
	}

	if err := a.auth.Revoke(r.Context(), token, clientIP(r)); err != nil {
		handleAuthError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"revoked": true})
}

func (a *API) handleMe(w http.ResponseWriter, r *http.Request) {
	principal, ok := auth.PrincipalFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, codeAuthRequired, "authentication required")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"subject": subjectOf(principal.User)})
}
