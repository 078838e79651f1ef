package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/mind-engage/mindengage-clinical/internal/engine"
)

func GetExaminationOptionsHandler(eng *engine.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		out, err := eng.GetExaminationOptions(r.Context(), chi.URLParam(r, "caseID"))
		if err != nil {
			respondError(w, r, err)
			return
		}
		ok(w, out, "")
	}
}

func SubmitExaminationsHandler(eng *engine.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sub, authed := learner(w, r)
		if !authed {
			return
		}
		var req struct {
			SelectedIDs []int64 `json:"selected_ids"`
		}
		if !decode(w, r, &req) {
			return
		}
		out, err := eng.SubmitExaminations(r.Context(), sub, chi.URLParam(r, "caseID"), req.SelectedIDs)
		if err != nil {
			respondError(w, r, err)
			return
		}
		ok(w, out, out.Feedback)
	}
}

func ExaminationResultsHandler(eng *engine.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sub, authed := learner(w, r)
		if !authed {
			return
		}
		out, err := eng.ExaminationResults(r.Context(), sub, chi.URLParam(r, "caseID"))
		if err != nil {
			respondError(w, r, err)
			return
		}
		ok(w, out, "")
	}
}

func GetDiagnosisOptionsHandler(eng *engine.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		out, err := eng.GetDiagnosisOptions(r.Context(), chi.URLParam(r, "caseID"))
		if err != nil {
			respondError(w, r, err)
			return
		}
		ok(w, out, "")
	}
}

// SubmitDiagnosisHandler accepts diagnosis_id, diagnosis_ids or both.
func SubmitDiagnosisHandler(eng *engine.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sub, authed := learner(w, r)
		if !authed {
			return
		}
		var req struct {
			DiagnosisID  *int64  `json:"diagnosis_id"`
			DiagnosisIDs []int64 `json:"diagnosis_ids"`
			Rationale    string  `json:"diagnosis_rationale"`
		}
		if !decode(w, r, &req) {
			return
		}
		out, err := eng.SubmitDiagnosis(r.Context(), sub, chi.URLParam(r, "caseID"),
			idList(req.DiagnosisID, req.DiagnosisIDs), req.Rationale)
		if err != nil {
			respondError(w, r, err)
			return
		}
		ok(w, out, out.Feedback)
	}
}

func GetTreatmentOptionsHandler(eng *engine.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		out, err := eng.GetTreatmentOptions(r.Context(), chi.URLParam(r, "caseID"))
		if err != nil {
			respondError(w, r, err)
			return
		}
		ok(w, out, "")
	}
}

// SubmitTreatmentHandler accepts treatment_id, treatment_ids or both.
func SubmitTreatmentHandler(eng *engine.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sub, authed := learner(w, r)
		if !authed {
			return
		}
		var req struct {
			TreatmentID  *int64  `json:"treatment_id"`
			TreatmentIDs []int64 `json:"treatment_ids"`
			Rationale    string  `json:"treatment_rationale"`
		}
		if !decode(w, r, &req) {
			return
		}
		out, err := eng.SubmitTreatment(r.Context(), sub, chi.URLParam(r, "caseID"),
			idList(req.TreatmentID, req.TreatmentIDs), req.Rationale)
		if err != nil {
			respondError(w, r, err)
			return
		}
		msg := out.Feedback
		if out.OverallFeedback != "" {
			msg = out.OverallFeedback
		}
		ok(w, out, msg)
	}
}
