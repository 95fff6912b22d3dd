package handler

import (
	"crypto/rand"
	"encoding/base64"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/newronx/waitlist/internal/auth"
	"github.com/newronx/waitlist/internal/referral"
	"github.com/newronx/waitlist/internal/service"
)

// Cookie names used by the OAuth flow. stateCookie ties the callback to a
// flow this server started; referralCookie carries the ?ref= code across the
// Google round-trip. Both are short-lived and cleared on the callback.
const (
	stateCookie    = "oauth_state"
	referralCookie = "oauth_ref"
)

// AuthHandler manages the Google OAuth login flow and the session cookie.
type AuthHandler struct {
	google      *auth.GoogleProvider
	tokens      *auth.TokenService
	signup      *service.SignupService
	waitlist    *service.WaitlistService
	frontendURL string
	secure      bool // mark cookies Secure; off for local http development
	logger      *slog.Logger
}

func NewAuthHandler(
	google *auth.GoogleProvider,
	tokens *auth.TokenService,
	signup *service.SignupService,
	waitlist *service.WaitlistService,
	frontendURL string,
	secure bool,
	logger *slog.Logger,
) *AuthHandler {
	return &AuthHandler{
		google:      google,
		tokens:      tokens,
		signup:      signup,
		waitlist:    waitlist,
		frontendURL: frontendURL,
		secure:      secure,
		logger:      logger,
	}
}

// HandleGoogleLogin starts the OAuth flow: it generates a random state,
// stashes it (and any ?ref= referral code) in short-lived cookies, and
// redirects the browser to Google's consent page.
//
// HTTP: GET /auth/google/login?ref=AB12C3
//
// The referral code rides in its own cookie rather than inside the state
// parameter: state stays a pure unguessable CSRF token, and a malformed
// code can't break the login.
func (h *AuthHandler) HandleGoogleLogin(w http.ResponseWriter, r *http.Request) {
	state, err := randomState()
	if err != nil {
		h.logger.Error("generating OAuth state failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{
			Error:   "internal_error",
			Message: "could not start login",
		})
		return
	}

	h.setFlowCookie(w, stateCookie, state)
	// A malformed ref would fail the whole login at the callback; only a
	// well-formed code rides along.
	if ref := referral.Normalize(r.URL.Query().Get("ref")); referral.ValidFormat(ref) {
		h.setFlowCookie(w, referralCookie, ref)
	}

	http.Redirect(w, r, h.google.AuthURL(state), http.StatusTemporaryRedirect)
}

// HandleGoogleCallback finishes the OAuth flow: verifies the state against
// the cookie, exchanges the code for a Google profile, resolves it to a
// registrant, issues the session JWT, and bounces back to the frontend.
//
// HTTP: GET /auth/google/callback?code=...&state=...
//
// Failures redirect to the frontend with ?auth=failed instead of rendering
// an error page — the user is mid-browser-flow, not calling an API.
func (h *AuthHandler) HandleGoogleCallback(w http.ResponseWriter, r *http.Request) {
	defer h.clearFlowCookies(w)

	stateParam := r.URL.Query().Get("state")
	cookie, err := r.Cookie(stateCookie)
	if err != nil || stateParam == "" || cookie.Value != stateParam {
		h.logger.Warn("OAuth state mismatch")
		h.redirectFailed(w, r, "state_mismatch")
		return
	}

	code := r.URL.Query().Get("code")
	if code == "" {
		// The user clicked "cancel" on the consent screen.
		h.redirectFailed(w, r, "access_denied")
		return
	}

	gu, err := h.google.Exchange(r.Context(), code)
	if err != nil {
		h.logger.Error("OAuth exchange failed", slog.String("error", err.Error()))
		h.redirectFailed(w, r, "exchange_failed")
		return
	}

	var referralCode string
	if refCookie, err := r.Cookie(referralCookie); err == nil {
		referralCode = refCookie.Value
	}

	result, err := h.signup.GoogleLogin(r.Context(), gu, referralCode)
	if err != nil {
		h.logger.Error("google signup failed", slog.String("error", err.Error()))
		h.redirectFailed(w, r, "signup_failed")
		return
	}

	token, err := h.tokens.Generate(result.Registrant.ID)
	if err != nil {
		h.logger.Error("issuing session token failed", slog.String("error", err.Error()))
		h.redirectFailed(w, r, "session_failed")
		return
	}
	h.setSessionCookie(w, token, 24*time.Hour)

	h.logger.Info("google login completed",
		slog.String("registrantID", result.Registrant.ID),
		slog.Bool("referralApplied", result.Referrer != nil),
	)

	http.Redirect(w, r, h.frontendURL+"/?auth=success", http.StatusTemporaryRedirect)
}

// HandleStatus reports the session state. Runs behind OptionalAuth, so it
// answers both anonymous and signed-in callers with 200.
//
// HTTP: GET /auth/status
func (h *AuthHandler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := auth.RegistrantIDFromContext(r.Context())
	if !ok {
		writeJSON(w, http.StatusOK, map[string]any{"authenticated": false})
		return
	}

	reg, err := h.waitlist.GetByID(r.Context(), id)
	if err != nil {
		// Token is valid but the registrant is gone — treat as signed out.
		h.clearSessionCookie(w)
		writeJSON(w, http.StatusOK, map[string]any{"authenticated": false})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"authenticated": true,
		"user":          newRegistrantPayload(reg),
	})
}

// HandleLogout clears the session cookie.
//
// HTTP: POST /auth/logout
func (h *AuthHandler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	h.clearSessionCookie(w)
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "Logged out successfully",
	})
}

// randomState returns 32 bytes of entropy as URL-safe base64.
func randomState() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// setFlowCookie sets a short-lived cookie scoped to the OAuth flow. Lax is
// required here: the callback arrives as a cross-site navigation from
// Google, and Strict cookies would not accompany it.
func (h *AuthHandler) setFlowCookie(w http.ResponseWriter, name, value string) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/auth",
		MaxAge:   int((10 * time.Minute).Seconds()),
		HttpOnly: true,
		Secure:   h.secure,
		SameSite: http.SameSiteLaxMode,
	})
}

func (h *AuthHandler) clearFlowCookies(w http.ResponseWriter) {
	for _, name := range []string{stateCookie, referralCookie} {
		http.SetCookie(w, &http.Cookie{
			Name:     name,
			Value:    "",
			Path:     "/auth",
			MaxAge:   -1,
			HttpOnly: true,
			Secure:   h.secure,
			SameSite: http.SameSiteLaxMode,
		})
	}
}

func (h *AuthHandler) setSessionCookie(w http.ResponseWriter, token string, ttl time.Duration) {
	http.SetCookie(w, &http.Cookie{
		Name:     auth.SessionCookie,
		Value:    token,
		Path:     "/",
		MaxAge:   int(ttl.Seconds()),
		HttpOnly: true,
		Secure:   h.secure,
		SameSite: http.SameSiteLaxMode,
	})
}

func (h *AuthHandler) clearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     auth.SessionCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// redirectFailed bounces the browser back to the frontend with an error tag.
func (h *AuthHandler) redirectFailed(w http.ResponseWriter, r *http.Request, reason string) {
	http.Redirect(w, r, h.frontendURL+"/?auth=failed&reason="+url.QueryEscape(reason), http.StatusTemporaryRedirect)
}
