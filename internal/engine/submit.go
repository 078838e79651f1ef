package engine

import (
	"context"
	"fmt"

	"github.com/mind-engage/mindengage-clinical/internal/clinical"
	"github.com/mind-engage/mindengage-clinical/internal/grading"
	"github.com/mind-engage/mindengage-clinical/internal/guidance"
	"github.com/mind-engage/mindengage-clinical/internal/session"
)

type ExaminationFinding struct {
	ID     int64  `json:"id"`
	Name   string `json:"name"`
	Type   string `json:"type,omitempty"`
	Result string `json:"result"`
}

type ExaminationSubmission struct {
	Score        float64              `json:"score"`
	Penalty      float64              `json:"penalty"`
	TotalPenalty float64              `json:"total_penalty"`
	Complete     bool                 `json:"complete"`
	Attempt      int                  `json:"attempt"`
	Missing      int                  `json:"missing"`
	Extra        int                  `json:"extra"`
	Feedback     string               `json:"feedback"`
	Hint         *guidance.Hint       `json:"hint,omitempty"`
	Results      []ExaminationFinding `json:"results,omitempty"`
	Stage        clinical.Stage       `json:"stage"`
}

type DiagnosisSubmission struct {
	DiagnosisScore      float64                 `json:"diagnosis_score"`
	RationaleScore      float64                 `json:"rationale_score"`
	TotalScore          float64                 `json:"total_score"`
	CorrectlySelected   int                     `json:"correctly_selected"`
	IncorrectlySelected int                     `json:"incorrectly_selected"`
	Missed              int                     `json:"missed"`
	Rationale           grading.RationaleResult `json:"rationale_breakdown"`
	Feedback            string                  `json:"feedback"`
	IsComplete          bool                    `json:"is_complete"`
	Attempt             int                     `json:"attempt"`
	Hint                *guidance.Hint          `json:"hint,omitempty"`
	Stage               clinical.Stage          `json:"stage"`
}

type TreatmentSubmission struct {
	TreatmentScore      float64                 `json:"treatment_score"`
	RationaleScore      float64                 `json:"rationale_score"`
	TotalScore          float64                 `json:"total_score"`
	CorrectlySelected   int                     `json:"correctly_selected"`
	IncorrectlySelected int                     `json:"incorrectly_selected"`
	Missed              int                     `json:"missed"`
	Rationale           grading.RationaleResult `json:"rationale_breakdown"`
	IsPerfect           bool                    `json:"is_perfect"`
	OverallScore        float64                 `json:"overall_score"`
	OverallFeedback     string                  `json:"overall_feedback,omitempty"`
	Feedback            string                  `json:"feedback"`
	IsComplete          bool                    `json:"is_complete"`
	Attempt             int                     `json:"attempt"`
	Hint                *guidance.Hint          `json:"hint,omitempty"`
	Stage               clinical.Stage          `json:"stage"`
}

// SubmitExaminations checks the selection against the required examinations.
// Anything short of the exact required set costs a penalty and keeps the
// learner in examination_selection.
func (e *Engine) SubmitExaminations(ctx context.Context, learnerID, caseID string, selected []int64) (ExaminationSubmission, error) {
	selected, err := validateSelection("selected_ids", selected)
	if err != nil {
		return ExaminationSubmission{}, err
	}
	c, err := e.loadCase(ctx, caseID)
	if err != nil {
		return ExaminationSubmission{}, err
	}
	required, err := answerKey(c, clinical.KindExamination)
	if err != nil {
		return ExaminationSubmission{}, err
	}
	chosen, err := e.checkKnown(ctx, clinical.KindExamination, selected)
	if err != nil {
		return ExaminationSubmission{}, err
	}

	var out ExaminationSubmission
	stage := clinical.StageExaminationSelection
	err = e.withSession(ctx, learnerID, caseID, stage, func(sess clinical.Session) error {
		res, err := grading.ScoreSelection(ids(required), selected)
		if err != nil {
			return err
		}
		attempt := sess.Attempts[stage] + 1
		out = ExaminationSubmission{
			Attempt:  attempt,
			Missing:  len(res.Missed),
			Extra:    len(res.IncorrectlySelected),
			Complete: res.Complete,
		}

		t := session.Transition{
			From:         stage,
			To:           stage,
			Action:       "submit_examinations",
			CountAttempt: true,
			SelectedKind: clinical.KindExamination,
			Selected:     selected,
		}
		var lines []string
		if res.Complete {
			out.TotalPenalty = sess.ExaminationPenalty
			out.Score = grading.ExaminationScore(out.TotalPenalty)
			out.Results = findings(chosen)
			t.To = clinical.StageExaminationResults
			t.ExaminationScore = &out.Score
			lines = append(selectionLines("required examination", "required examinations", res, len(required)),
				fmt.Sprintf("Examination score: %.2f.", out.Score))
		} else {
			out.Penalty = e.scorer.Penalty(attempt, out.Missing, out.Extra)
			out.TotalPenalty = sess.ExaminationPenalty + out.Penalty
			out.Score = grading.ExaminationScore(out.TotalPenalty)
			tier := guidance.Tier(attempt, sess.GuidanceTier[stage])
			hint := guidance.Select(required, selected, tier)
			out.Hint = hintPtr(hint)
			t.Tier = &tier
			t.Penalty = out.Penalty
			lines = selectionLines("required examination", "required examinations", res, len(required))
			lines = append(lines, optionFeedback(c, clinical.KindExamination, res.IncorrectlySelected)...)
			lines = append(lines, fmt.Sprintf("%.0f points deducted for this attempt.", out.Penalty))
			lines = withHint(lines, hint)
		}
		out.Feedback = join(lines)
		score := out.Score
		t.Note = &session.Note{Type: noteType(res.Complete, derefHint(out.Hint)), Message: out.Feedback, Score: &score}
		t.Payload = map[string]any{
			"selected_ids": selected,
			"complete":     res.Complete,
			"missing":      out.Missing,
			"extra":        out.Extra,
			"penalty":      out.Penalty,
			"score":        out.Score,
			"attempt":      attempt,
		}

		saved, err := e.machine.Apply(ctx, sess, t)
		if err != nil {
			return err
		}
		out.Stage = saved.Stage
		return nil
	})
	if err != nil {
		return ExaminationSubmission{}, err
	}
	return out, nil
}

// SubmitDiagnosis scores the selected diagnoses against every correct
// diagnosis and the rationale against the first correct one.
func (e *Engine) SubmitDiagnosis(ctx context.Context, learnerID, caseID string, selected []int64, rationale string) (DiagnosisSubmission, error) {
	selected, err := validateSelection("diagnosis_ids", selected)
	if err != nil {
		return DiagnosisSubmission{}, err
	}
	rationale, err = validateRationale("diagnosis_rationale", rationale, "explain the reasoning behind your diagnosis")
	if err != nil {
		return DiagnosisSubmission{}, err
	}
	c, err := e.loadCase(ctx, caseID)
	if err != nil {
		return DiagnosisSubmission{}, err
	}
	correct, err := answerKey(c, clinical.KindDiagnosis)
	if err != nil {
		return DiagnosisSubmission{}, err
	}
	if _, err := e.checkKnown(ctx, clinical.KindDiagnosis, selected); err != nil {
		return DiagnosisSubmission{}, err
	}

	var out DiagnosisSubmission
	stage := clinical.StageDiagnosisReasoning
	err = e.withSession(ctx, learnerID, caseID, stage, func(sess clinical.Session) error {
		sel, err := grading.ScoreSelection(ids(correct), selected)
		if err != nil {
			return err
		}
		ref := correct[0]
		rat := grading.ScoreRationale(rationale, grading.Reference{Text: ref.Rationale, Keywords: ref.Keywords})
		attempt := sess.Attempts[stage] + 1
		out = DiagnosisSubmission{
			DiagnosisScore:      sel.Score,
			RationaleScore:      rat.Score,
			TotalScore:          e.scorer.Blend(sel.Score, rat.Score),
			CorrectlySelected:   len(sel.CorrectlySelected),
			IncorrectlySelected: len(sel.IncorrectlySelected),
			Missed:              len(sel.Missed),
			Rationale:           rat,
			IsComplete:          sel.Complete,
			Attempt:             attempt,
		}

		t := session.Transition{
			From:         stage,
			To:           stage,
			Action:       "submit_diagnosis",
			CountAttempt: true,
			SelectedKind: clinical.KindDiagnosis,
			Selected:     selected,
		}
		lines := selectionLines("diagnosis", "diagnoses", sel, len(correct))
		var hint guidance.Hint
		if sel.Complete {
			t.To = clinical.StageTreatmentSelection
			t.DiagnosisScore = &out.TotalScore
		} else {
			tier := guidance.Tier(attempt, sess.GuidanceTier[stage])
			hint = guidance.Select(correct, selected, tier)
			out.Hint = hintPtr(hint)
			t.Tier = &tier
			lines = append(lines, optionFeedback(c, clinical.KindDiagnosis, sel.IncorrectlySelected)...)
		}
		lines = append(lines, grading.RationaleBand(rat.Score))
		lines = withHint(lines, hint)
		out.Feedback = join(lines)

		score := out.TotalScore
		t.Note = &session.Note{Type: noteType(sel.Complete, hint), Message: out.Feedback, Score: &score}
		t.Payload = map[string]any{
			"selected_ids":    selected,
			"rationale":       rationale,
			"complete":        sel.Complete,
			"diagnosis_score": out.DiagnosisScore,
			"rationale_score": out.RationaleScore,
			"total_score":     out.TotalScore,
			"attempt":         attempt,
		}

		saved, err := e.machine.Apply(ctx, sess, t)
		if err != nil {
			return err
		}
		out.Stage = saved.Stage
		return nil
	})
	if err != nil {
		return DiagnosisSubmission{}, err
	}
	return out, nil
}

// SubmitTreatment scores the treatment plan. The rationale is judged against
// the first optimal treatment the learner actually chose; with none chosen it
// scores zero.
func (e *Engine) SubmitTreatment(ctx context.Context, learnerID, caseID string, selected []int64, rationale string) (TreatmentSubmission, error) {
	selected, err := validateSelection("treatment_ids", selected)
	if err != nil {
		return TreatmentSubmission{}, err
	}
	rationale, err = validateRationale("treatment_rationale", rationale, "explain the reasoning behind your treatment plan")
	if err != nil {
		return TreatmentSubmission{}, err
	}
	c, err := e.loadCase(ctx, caseID)
	if err != nil {
		return TreatmentSubmission{}, err
	}
	optimal, err := answerKey(c, clinical.KindTreatment)
	if err != nil {
		return TreatmentSubmission{}, err
	}
	if _, err := e.checkKnown(ctx, clinical.KindTreatment, selected); err != nil {
		return TreatmentSubmission{}, err
	}

	var out TreatmentSubmission
	stage := clinical.StageTreatmentSelection
	err = e.withSession(ctx, learnerID, caseID, stage, func(sess clinical.Session) error {
		sel, err := grading.ScoreSelection(ids(optimal), selected)
		if err != nil {
			return err
		}
		var rat grading.RationaleResult
		if ref, ok := firstChosen(optimal, sel.CorrectlySelected); ok {
			rat = grading.ScoreRationale(rationale, grading.Reference{Text: ref.Rationale, Keywords: ref.Keywords})
		}
		attempt := sess.Attempts[stage] + 1
		out = TreatmentSubmission{
			TreatmentScore:      sel.Score,
			RationaleScore:      rat.Score,
			TotalScore:          e.scorer.Blend(sel.Score, rat.Score),
			CorrectlySelected:   len(sel.CorrectlySelected),
			IncorrectlySelected: len(sel.IncorrectlySelected),
			Missed:              len(sel.Missed),
			Rationale:           rat,
			IsPerfect:           sel.Complete,
			IsComplete:          sel.Complete,
			Attempt:             attempt,
		}

		t := session.Transition{
			From:         stage,
			To:           stage,
			Action:       "submit_treatment",
			CountAttempt: true,
			SelectedKind: clinical.KindTreatment,
			Selected:     selected,
		}
		lines := selectionLines("optimal treatment", "optimal treatments", sel, len(optimal))
		var hint guidance.Hint
		if sel.Complete {
			t.To = clinical.StageLearningFeedback
			t.TreatmentScore = &out.TotalScore
		} else {
			tier := guidance.Tier(attempt, sess.GuidanceTier[stage])
			hint = guidance.Select(optimal, selected, tier)
			out.Hint = hintPtr(hint)
			t.Tier = &tier
			lines = append(lines, optionFeedback(c, clinical.KindTreatment, sel.IncorrectlySelected)...)
		}
		lines = append(lines, grading.RationaleBand(rat.Score))
		lines = withHint(lines, hint)
		out.Feedback = join(lines)

		score := out.TotalScore
		t.Note = &session.Note{Type: noteType(sel.Complete, hint), Message: out.Feedback, Score: &score}
		t.Payload = map[string]any{
			"selected_ids":    selected,
			"rationale":       rationale,
			"complete":        sel.Complete,
			"treatment_score": out.TreatmentScore,
			"rationale_score": out.RationaleScore,
			"total_score":     out.TotalScore,
			"attempt":         attempt,
		}

		saved, err := e.machine.Apply(ctx, sess, t)
		if err != nil {
			return err
		}
		out.Stage = saved.Stage
		out.OverallScore = saved.OverallScore
		if sel.Complete {
			out.OverallFeedback = overallLine(saved.OverallScore)
		}
		return nil
	})
	if err != nil {
		return TreatmentSubmission{}, err
	}
	return out, nil
}

// firstChosen returns the first option of key, in display order, whose id is
// in chosen.
func firstChosen(key []clinical.Option, chosen []int64) (clinical.Option, bool) {
	set := make(map[int64]struct{}, len(chosen))
	for _, id := range chosen {
		set[id] = struct{}{}
	}
	for _, o := range key {
		if _, ok := set[o.ID]; ok {
			return o, true
		}
	}
	return clinical.Option{}, false
}

func findings(opts []clinical.Option) []ExaminationFinding {
	out := make([]ExaminationFinding, 0, len(opts))
	for _, o := range opts {
		out = append(out, ExaminationFinding{ID: o.ID, Name: o.Name, Type: o.Type, Result: o.Result})
	}
	return out
}

func derefHint(h *guidance.Hint) guidance.Hint {
	if h == nil {
		return guidance.Hint{}
	}
	return *h
}
