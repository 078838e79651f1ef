package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	authmw "github.com/mind-engage/mindengage-clinical/internal/auth/middleware"
	"github.com/mind-engage/mindengage-clinical/internal/engine"
)

// learner returns the JWT subject, writing a 401 when there is none.
func learner(w http.ResponseWriter, r *http.Request) (string, bool) {
	sub := authmw.SubjectFromContext(r.Context())
	if sub == "" {
		fail(w, http.StatusUnauthorized, "unauthorized", "sign in to continue")
		return "", false
	}
	return sub, true
}

func ListCasesHandler(eng *engine.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		cases, err := eng.ListCases(r.Context())
		if err != nil {
			respondError(w, r, err)
			return
		}
		ok(w, cases, "")
	}
}

func GetCaseHandler(eng *engine.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c, err := eng.GetCase(r.Context(), chi.URLParam(r, "caseID"))
		if err != nil {
			respondError(w, r, err)
			return
		}
		ok(w, c, "")
	}
}

// StartCaseHandler creates the learner's session, or reopens a completed one.
func StartCaseHandler(eng *engine.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sub, authed := learner(w, r)
		if !authed {
			return
		}
		out, err := eng.StartCase(r.Context(), sub, chi.URLParam(r, "caseID"))
		if err != nil {
			respondError(w, r, err)
			return
		}
		ok(w, out, "case started")
	}
}

func ProgressHandler(eng *engine.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sub, authed := learner(w, r)
		if !authed {
			return
		}
		p, err := eng.Progress(r.Context(), sub, chi.URLParam(r, "caseID"))
		if err != nil {
			respondError(w, r, err)
			return
		}
		ok(w, p, "")
	}
}

func AdvanceHandler(eng *engine.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sub, authed := learner(w, r)
		if !authed {
			return
		}
		p, err := eng.Advance(r.Context(), sub, chi.URLParam(r, "caseID"))
		if err != nil {
			respondError(w, r, err)
			return
		}
		ok(w, p, "moved to "+string(p.Stage))
	}
}

// ResetSessionHandler deletes the learner's session and its history.
func ResetSessionHandler(eng *engine.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sub, authed := learner(w, r)
		if !authed {
			return
		}
		if err := eng.ResetSession(r.Context(), sub, chi.URLParam(r, "caseID")); err != nil {
			respondError(w, r, err)
			return
		}
		ok(w, nil, "session reset")
	}
}

// UserStatsHandler reports the caller's progress across all active cases.
func UserStatsHandler(eng *engine.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sub, authed := learner(w, r)
		if !authed {
			return
		}
		st, err := eng.UserStats(r.Context(), sub)
		if err != nil {
			respondError(w, r, err)
			return
		}
		ok(w, st, "")
	}
}
