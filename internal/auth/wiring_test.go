package auth

// wiring_test.go
//
// Catches bugs where handlers and middleware hand data to each other incorrectly.
//
// Shares one mock store and token service through a chi router to verify the
// contracts between them:
//
//   - Token:     Register/Login (issue) -> RequireAuth (verify)
//   - Context:   RequireAuth (inject claims) -> GetProfile/UpdateProfile (read claims)
//   - Isolation: a token only ever reaches its own user's record
//

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
)

// newWiredRouter mounts the auth routes the way main.go does.
func newWiredRouter(h *AuthHandler) http.Handler {
	r := chi.NewRouter()
	r.Post("/api/auth/register", h.Register)
	r.Post("/api/auth/login", h.Login)
	r.Group(func(r chi.Router) {
		r.Use(h.RequireAuth)
		r.Post("/api/auth/logout", h.Logout)
		r.Get("/api/auth/profile", h.GetProfile)
		r.Put("/api/auth/profile", h.UpdateProfile)
	})
	return r
}

// doJSON sends method+path with an optional bearer token and returns the recorder.
func doJSON(t *testing.T, router http.Handler, method, path, token, body string) *httptest.ResponseRecorder {
	t.Helper()
	var r *http.Request
	if body != "" {
		r = httptest.NewRequest(method, path, strings.NewReader(body))
	} else {
		r = httptest.NewRequest(method, path, nil)
	}
	if token != "" {
		r.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, r)
	return w
}

func registerVia(t *testing.T, router http.Handler, email string) (UserResponse, string) {
	t.Helper()
	w := doJSON(t, router, http.MethodPost, "/api/auth/register", "",
		`{"email":"`+email+`","password":"secret123","name":"Wired"}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("register %s: %d %s", email, w.Code, w.Body.String())
	}
	_, user, token := decodeAuthResponse(t, w)
	return user, token
}

func TestWiring_RegisterTokenReachesProfile(t *testing.T) {
	h, _, _ := newTestHandler(t)
	router := newWiredRouter(h)

	user, token := registerVia(t, router, "wired@example.com")

	w := doJSON(t, router, http.MethodGet, "/api/auth/profile", token, "")
	if w.Code != http.StatusOK {
		t.Fatalf("profile: expected 200, got %d", w.Code)
	}
	var got UserResponse
	json.NewDecoder(w.Body).Decode(&got)
	if got.ID != user.ID {
		t.Errorf("profile returned %s, expected %s", got.ID, user.ID)
	}
}

func TestWiring_LoginTokenUpdatesOwnProfileOnly(t *testing.T) {
	h, ms, _ := newTestHandler(t)
	router := newWiredRouter(h)

	alice, _ := registerVia(t, router, "alice@example.com")
	bob, _ := registerVia(t, router, "bob@example.com")

	w := doJSON(t, router, http.MethodPost, "/api/auth/login", "", `{"email":"alice@example.com","password":"secret123"}`)
	_, _, aliceToken := decodeAuthResponse(t, w)

	w = doJSON(t, router, http.MethodPut, "/api/auth/profile", aliceToken, `{"location":"Udaipur","id":"`+bob.ID+`"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("update: expected 200, got %d", w.Code)
	}

	for _, u := range ms.Users {
		switch u.ID.String() {
		case alice.ID:
			if u.Profile.Location != "Udaipur" {
				t.Errorf("alice location: got %q", u.Profile.Location)
			}
		case bob.ID:
			if u.Profile.Location != "" {
				t.Errorf("bob modified through alice's token: %q", u.Profile.Location)
			}
		}
	}
}

func TestWiring_UnauthorizedLeavesStoreUntouched(t *testing.T) {
	h, ms, _ := newTestHandler(t)
	router := newWiredRouter(h)

	before := ms.CallCount()
	w := doJSON(t, router, http.MethodPut, "/api/auth/profile", "", `{"location":"Goa"}`)
	assertMessage(t, w, http.StatusUnauthorized, "access token required")
	w = doJSON(t, router, http.MethodGet, "/api/auth/profile", "forged.token.here", "")
	assertMessage(t, w, http.StatusForbidden, "invalid or expired token")

	if ms.CallCount() != before {
		t.Errorf("store called %d times by unauthorized requests", ms.CallCount()-before)
	}
}

func TestWiring_Logout(t *testing.T) {
	h, _, _ := newTestHandler(t)
	router := newWiredRouter(h)
	_, token := registerVia(t, router, "bye@example.com")

	w := doJSON(t, router, http.MethodPost, "/api/auth/logout", token, "")
	assertMessage(t, w, http.StatusOK, "logged out successfully")
}
