// oauth_handler.go -- Google sign-in redirect and callback.
// Provider-specific logic lives in internal/oauth; account resolution in Identity.LinkOAuth.
package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/MGallo-Code/weddingkityaari/internal/httpx"
)

// oauthStateCookie is the payload stored in the state cookie during the OAuth round-trip.
type oauthStateCookie struct {
	State    string `json:"state"`
	Verifier string `json:"verifier"`
}

// stateCookieName uses the __Host- prefix only when the cookie can be Secure.
func (h *AuthHandler) stateCookieName() string {
	if h.CookieSecure {
		return "__Host-oauth-state"
	}
	return "oauth-state"
}

// GoogleRedirect handles GET /api/auth/google -- generates PKCE + state, stores them in a
// short-lived HttpOnly cookie, and redirects the browser to Google's consent page.
func (h *AuthHandler) GoogleRedirect(w http.ResponseWriter, r *http.Request) {
	if h.Google == nil {
		httpx.NotImplemented(w, "google sign-in is not configured")
		return
	}

	var stateBytes, verifierBytes [32]byte
	if _, err := rand.Read(stateBytes[:]); err != nil {
		httpx.InternalServerError(w, r, err)
		return
	}
	if _, err := rand.Read(verifierBytes[:]); err != nil {
		httpx.InternalServerError(w, r, err)
		return
	}

	state := base64.RawURLEncoding.EncodeToString(stateBytes[:])
	codeVerifier := base64.RawURLEncoding.EncodeToString(verifierBytes[:])
	challenge := sha256.Sum256([]byte(codeVerifier))
	codeChallenge := base64.RawURLEncoding.EncodeToString(challenge[:])

	h.setOAuthStateCookie(w, state, codeVerifier)
	http.Redirect(w, r, h.Google.AuthCodeURL(state, codeChallenge), http.StatusFound)
}

// GoogleCallback handles GET /api/auth/google/callback. Verifies state, exchanges the code,
// resolves the account and redirects to the frontend with a token, or with ?error= on failure.
func (h *AuthHandler) GoogleCallback(w http.ResponseWriter, r *http.Request) {
	if h.Google == nil {
		httpx.NotImplemented(w, "google sign-in is not configured")
		return
	}

	// Read and immediately clear the state cookie to prevent replay.
	stateCookie, err := r.Cookie(h.stateCookieName())
	if err != nil {
		httpx.LogWarn(r, "oauth callback: missing state cookie")
		h.redirectError(w, r, "oauth_failed")
		return
	}
	h.clearOAuthStateCookie(w)

	rawJSON, err := base64.RawURLEncoding.DecodeString(stateCookie.Value)
	if err != nil {
		httpx.LogWarn(r, "oauth callback: bad state cookie encoding", "error", err)
		h.redirectError(w, r, "oauth_failed")
		return
	}
	var sc oauthStateCookie
	if err := json.Unmarshal(rawJSON, &sc); err != nil {
		httpx.LogWarn(r, "oauth callback: bad state cookie json", "error", err)
		h.redirectError(w, r, "oauth_failed")
		return
	}

	// Constant-time comparison prevents timing oracle on state value.
	if subtle.ConstantTimeCompare([]byte(sc.State), []byte(r.URL.Query().Get("state"))) != 1 {
		httpx.LogWarn(r, "oauth callback: state mismatch")
		h.redirectError(w, r, "oauth_failed")
		return
	}
	if e := r.URL.Query().Get("error"); e != "" {
		httpx.LogWarn(r, "oauth callback: provider returned error", "error", e)
		h.redirectError(w, r, "oauth_failed")
		return
	}

	profile, err := h.Google.Exchange(r.Context(), r.URL.Query().Get("code"), sc.Verifier)
	if err != nil {
		httpx.LogWarn(r, "oauth callback: exchange failed", "error", err, "provider", h.Google.Name())
		h.redirectError(w, r, "oauth_failed")
		return
	}

	u, err := h.ID.LinkOAuth(r.Context(), profile)
	if errors.Is(err, ErrEmailNotVerified) {
		httpx.LogWarn(r, "oauth callback: email not verified", "provider", h.Google.Name())
		h.redirectError(w, r, "email_not_verified")
		return
	}
	if err != nil {
		httpx.LogError(r, "oauth callback: link failed", "error", err)
		h.redirectError(w, r, "oauth_failed")
		return
	}

	token, _, err := h.Tokens.Issue(u.ID, u.Email, u.Name)
	if err != nil {
		httpx.LogError(r, "oauth callback: issuing token failed", "error", err)
		h.redirectError(w, r, "oauth_failed")
		return
	}
	userJSON, err := json.Marshal(NewUserResponse(u))
	if err != nil {
		httpx.LogError(r, "oauth callback: encoding user failed", "error", err)
		h.redirectError(w, r, "oauth_failed")
		return
	}

	httpx.LogInfo(r, "oauth user logged in", "user_id", u.ID, "provider", h.Google.Name())
	q := url.Values{}
	q.Set("token", token)
	q.Set("user", string(userJSON))
	http.Redirect(w, r, h.frontendURL("/auth/callback")+"?"+q.Encode(), http.StatusFound)
}

// redirectError sends the browser back to the frontend root with ?error=code.
func (h *AuthHandler) redirectError(w http.ResponseWriter, r *http.Request, code string) {
	http.Redirect(w, r, h.frontendURL("/")+"?error="+url.QueryEscape(code), http.StatusFound)
}

func (h *AuthHandler) frontendURL(path string) string {
	return strings.TrimRight(h.FrontendURL, "/") + path
}

// setOAuthStateCookie stores state + PKCE verifier in a short-lived HttpOnly cookie.
func (h *AuthHandler) setOAuthStateCookie(w http.ResponseWriter, state, verifier string) {
	payload, _ := json.Marshal(oauthStateCookie{State: state, Verifier: verifier})
	http.SetCookie(w, &http.Cookie{
		Name:     h.stateCookieName(),
		Value:    base64.RawURLEncoding.EncodeToString(payload),
		Path:     "/",
		HttpOnly: true,
		Secure:   h.CookieSecure,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   600, // 10 minutes
	})
}

// clearOAuthStateCookie expires the OAuth state cookie immediately.
func (h *AuthHandler) clearOAuthStateCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     h.stateCookieName(),
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		Secure:   h.CookieSecure,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   -1,
	})
}
