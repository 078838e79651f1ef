package auth

import (
	"database/sql"
	"net/http"

	"github.com/mind-engage/mindengage-clinical/internal/rbac"
)

// AttachRoleFromDB replaces the token's role with the one stored for the
// subject, so a demoted user loses access before the token expires.
// allowClaimFallback=true in offline mode; false online.
func AttachRoleFromDB(db *sql.DB, allowClaimFallback bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			sub := SubjectFromContext(ctx)
			claimRole := rbac.RoleFromContext(ctx)

			var role string
			err := db.QueryRowContext(ctx, `SELECT role FROM users WHERE id=$1`, sub).Scan(&role)

			switch {
			case err == nil && role != "":
				next.ServeHTTP(w, r.WithContext(rbac.WithRole(ctx, role)))
			case err != nil && allowClaimFallback && claimRole != "":
				// unknown user or missing users table: trust the token
				next.ServeHTTP(w, r)
			default:
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusForbidden)
				_, _ = w.Write([]byte(`{"success":false,"message":"forbidden","code":"forbidden"}`))
			}
		})
	}
}
