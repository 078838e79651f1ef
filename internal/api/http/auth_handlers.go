package http

import (
	"errors"
	"net/http"
	"time"

	"github.com/mind-engage/mindengage-clinical/internal/auth"
	authmw "github.com/mind-engage/mindengage-clinical/internal/auth/middleware"
)

type tokenOut struct {
	AccessToken string    `json:"access_token"`
	ExpiresAt   time.Time `json:"expires_at"`
	UserID      string    `json:"user_id"`
	Username    string    `json:"username"`
	Role        string    `json:"role"`
}

// LoginHandler exchanges a username and password for a bearer token whose
// subject is the user id.
// POST /auth/login  { "username": "...", "password": "..." }
func LoginHandler(users *auth.Users, a *authmw.AuthService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Username string `json:"username"`
			Password string `json:"password"`
		}
		if !decode(w, r, &req) {
			return
		}
		u, err := users.Authenticate(r.Context(), req.Username, req.Password)
		if errors.Is(err, auth.ErrInvalidCredentials) {
			fail(w, http.StatusUnauthorized, "unauthorized", "invalid credentials")
			return
		}
		if err != nil {
			respondError(w, r, err)
			return
		}
		issue(w, r, a, u)
	}
}

// GuestLoginHandler signs the browser in as a guest learner, reusing the
// guest id from its cookie when there is one.
func GuestLoginHandler(users *auth.Users, a *authmw.AuthService, secureCookie bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var prev string
		if c, err := r.Cookie(auth.GuestCookie); err == nil {
			prev = c.Value
		}
		u, err := users.Guest(r.Context(), prev)
		if err != nil {
			respondError(w, r, err)
			return
		}
		http.SetCookie(w, &http.Cookie{
			Name:     auth.GuestCookie,
			Value:    u.ID,
			Path:     "/",
			HttpOnly: true,
			Secure:   secureCookie,
			SameSite: http.SameSiteLaxMode,
			Expires:  time.Now().Add(30 * 24 * time.Hour),
		})
		issue(w, r, a, u)
	}
}

func issue(w http.ResponseWriter, r *http.Request, a *authmw.AuthService, u auth.User) {
	tok, exp, err := a.IssueJWT(u.ID, u.Role)
	if err != nil {
		respondError(w, r, err)
		return
	}
	ok(w, tokenOut{AccessToken: tok, ExpiresAt: exp, UserID: u.ID, Username: u.Username, Role: u.Role}, "signed in")
}
