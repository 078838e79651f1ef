// Package http exposes the clinical-reasoning engine over a JSON API.
package http

import (
	"context"
	"database/sql"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/mind-engage/mindengage-clinical/internal/auth"
	authmw "github.com/mind-engage/mindengage-clinical/internal/auth/middleware"
	"github.com/mind-engage/mindengage-clinical/internal/clinical"
	"github.com/mind-engage/mindengage-clinical/internal/engine"
	"github.com/mind-engage/mindengage-clinical/internal/rbac"
	"github.com/mind-engage/mindengage-clinical/internal/storage"
	syncx "github.com/mind-engage/mindengage-clinical/internal/sync"
)

// Deps are the collaborators the router mounts. DB, Users and Events are
// optional; the routes that need them are left out when nil. A nil Archive
// skips case-pack archiving.
type Deps struct {
	Engine  *engine.Engine
	Cases   clinical.CaseStore
	Auth    *authmw.AuthService
	Users   *auth.Users
	Events  *syncx.EventRepo
	DB      *sql.DB
	Archive storage.BlobStore

	CORSOrigins     []string
	EnableLocalAuth bool
	EnableGuestAuth bool
	// Online turns off the token-role fallback and marks cookies Secure.
	Online bool
}

func NewRouter(d Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, requestLogger, middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   d.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	r.Get("/readyz", readyHandler(d.DB))

	if d.Users != nil {
		if d.EnableLocalAuth {
			r.Post("/auth/login", LoginHandler(d.Users, d.Auth))
		}
		if d.EnableGuestAuth {
			r.Post("/auth/guest", GuestLoginHandler(d.Users, d.Auth, d.Online))
		}
	}

	r.Route("/api", func(pr chi.Router) {
		pr.Use(authmw.JWTMiddleware(d.Auth))
		if d.DB != nil {
			pr.Use(authmw.AttachRoleFromDB(d.DB, !d.Online))
		}

		if d.Users != nil && d.EnableLocalAuth {
			pr.Post("/me/password", ChangePasswordHandler(d.Users))
		}
		pr.With(rbac.Require(rbac.PermSessionPlay)).Get("/me/stats", UserStatsHandler(d.Engine))

		pr.Route("/cases", func(cr chi.Router) {
			cr.With(rbac.Require(rbac.PermCaseView)).Get("/", ListCasesHandler(d.Engine))
			if d.Cases != nil {
				cr.With(rbac.Require(rbac.PermCaseImport)).Post("/import", ImportCasesHandler(d.Cases, d.Archive))
			}

			cr.Route("/{caseID}", func(c chi.Router) {
				c.With(rbac.Require(rbac.PermCaseView)).Get("/", GetCaseHandler(d.Engine))

				c.Group(func(p chi.Router) {
					p.Use(rbac.Require(rbac.PermSessionPlay))
					p.Post("/session", StartCaseHandler(d.Engine))
					p.Get("/session", ProgressHandler(d.Engine))
					p.Post("/session/advance", AdvanceHandler(d.Engine))

					p.Get("/examinations", GetExaminationOptionsHandler(d.Engine))
					p.Post("/examinations", SubmitExaminationsHandler(d.Engine))
					p.Get("/examinations/results", ExaminationResultsHandler(d.Engine))
					p.Get("/diagnoses", GetDiagnosisOptionsHandler(d.Engine))
					p.Post("/diagnoses", SubmitDiagnosisHandler(d.Engine))
					p.Get("/treatments", GetTreatmentOptionsHandler(d.Engine))
					p.Post("/treatments", SubmitTreatmentHandler(d.Engine))
				})
				c.With(rbac.Require(rbac.PermSessionReset)).Delete("/session", ResetSessionHandler(d.Engine))
			})
		})

		if d.Events != nil {
			// case authors may review learner activity as well as auditors
			audit := rbac.RequireAny(rbac.PermSessionAudit, rbac.PermCaseImport)
			pr.With(audit).Get("/events", EventSearchHandler(d.Events))
			pr.With(audit).Get("/sessions/{sessionID}/events", SessionEventsHandler(d.Events))
		}
	})
	return r
}

func readyHandler(db *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if db == nil {
			w.WriteHeader(http.StatusOK)
			return
		}
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := db.PingContext(ctx); err != nil {
			slog.Warn("readiness check failed", "err", err)
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}
}

// requestLogger logs one line per request with slog.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		defer func() {
			slog.Info("http request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"bytes", ww.BytesWritten(),
				"duration_ms", time.Since(start).Milliseconds(),
				"request_id", middleware.GetReqID(r.Context()),
			)
		}()

		next.ServeHTTP(ww, r)
	})
}
