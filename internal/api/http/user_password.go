package http

import (
	"errors"
	"net/http"

	"github.com/mind-engage/mindengage-clinical/internal/auth"
	authmw "github.com/mind-engage/mindengage-clinical/internal/auth/middleware"
)

// ChangePasswordHandler lets a signed-in local account rotate its password.
// POST /api/me/password  { "old_password": "...", "new_password": "..." }
func ChangePasswordHandler(users *auth.Users) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sub := authmw.SubjectFromContext(r.Context())
		if sub == "" {
			fail(w, http.StatusUnauthorized, "unauthorized", "sign in to continue")
			return
		}
		var req struct {
			OldPassword string `json:"old_password"`
			NewPassword string `json:"new_password"`
		}
		if !decode(w, r, &req) {
			return
		}
		err := users.ChangePassword(r.Context(), sub, req.OldPassword, req.NewPassword)
		if errors.Is(err, auth.ErrInvalidCredentials) {
			fail(w, http.StatusForbidden, "forbidden", "current password is incorrect")
			return
		}
		if err != nil {
			respondError(w, r, err)
			return
		}
		ok(w, nil, "password changed")
	}
}
