// internal/handlers/identity.go
package handlers

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/jason-s-yu/bingo/internal/auth"
)

// AuthCookie carries the caller's identity token.
const AuthCookie = "auth_token"

// tokenFromRequest reads the identity token from the cookie, falling back
// to an Authorization bearer header for non-browser clients.
func tokenFromRequest(r *http.Request) string {
	if c, err := r.Cookie(AuthCookie); err == nil && c.Value != "" {
		return c.Value
	}
	if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
		return strings.TrimPrefix(h, "Bearer ")
	}
	return ""
}

// callerID returns the caller's identity if they presented a valid token.
func callerID(r *http.Request) (uuid.UUID, bool) {
	token := tokenFromRequest(r)
	if token == "" {
		return uuid.Nil, false
	}
	id, err := auth.AuthenticateJWT(token)
	if err != nil {
		return uuid.Nil, false
	}
	return id, true
}

// ensureIdentity returns the caller's id, minting a guest identity and
// setting the cookie when the request carries no valid token. It must run
// before anything is written to w.
func ensureIdentity(w http.ResponseWriter, r *http.Request) (uuid.UUID, error) {
	if id, ok := callerID(r); ok {
		return id, nil
	}

	id := uuid.New()
	token, err := auth.CreateJWT(id)
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to create guest token: %w", err)
	}
	http.SetCookie(w, &http.Cookie{
		Name:     AuthCookie,
		Value:    token,
		HttpOnly: true,
		Path:     "/",
		SameSite: http.SameSiteLaxMode,
	})
	w.Header().Set("X-Auth-Token", token)
	return id, nil
}
