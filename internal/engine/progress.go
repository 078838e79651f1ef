package engine

import (
	"context"
	"time"

	"github.com/mind-engage/mindengage-clinical/internal/clinical"
	"github.com/mind-engage/mindengage-clinical/internal/lock"
	"github.com/mind-engage/mindengage-clinical/internal/session"
)

// Progress is the learner-facing view of a session. Selections are ids only.
type Progress struct {
	SessionID            string                   `json:"session_id"`
	CaseID               string                   `json:"case_id"`
	Stage                clinical.Stage           `json:"stage"`
	NextStage            clinical.Stage           `json:"next_stage,omitempty"`
	Run                  int                      `json:"run"`
	ExaminationScore     float64                  `json:"examination_score"`
	DiagnosisScore       float64                  `json:"diagnosis_score"`
	TreatmentScore       float64                  `json:"treatment_score"`
	OverallScore         float64                  `json:"overall_score"`
	ExaminationPenalty   float64                  `json:"examination_penalty"`
	Attempts             map[clinical.Stage]int   `json:"attempts"`
	GuidanceTier         map[clinical.Stage]int   `json:"guidance_tier"`
	SelectedExaminations []int64                  `json:"selected_examinations"`
	SelectedDiagnoses    []int64                  `json:"selected_diagnoses"`
	SelectedTreatments   []int64                  `json:"selected_treatments"`
	LearningPath         []clinical.PathEntry     `json:"learning_path"`
	Feedback             []clinical.FeedbackEntry `json:"feedback"`
	StartedAt            time.Time                `json:"started_at"`
	CompletedAt          *time.Time               `json:"completed_at,omitempty"`
}

func progressOf(s clinical.Session) Progress {
	return Progress{
		SessionID:            s.ID,
		CaseID:               s.CaseID,
		Stage:                s.Stage,
		NextStage:            session.Next(s.Stage),
		Run:                  s.Run,
		ExaminationScore:     s.ExaminationScore,
		DiagnosisScore:       s.DiagnosisScore,
		TreatmentScore:       s.TreatmentScore,
		OverallScore:         s.OverallScore,
		ExaminationPenalty:   s.ExaminationPenalty,
		Attempts:             s.Attempts,
		GuidanceTier:         s.GuidanceTier,
		SelectedExaminations: s.SelectedExaminations,
		SelectedDiagnoses:    s.SelectedDiagnoses,
		SelectedTreatments:   s.SelectedTreatments,
		LearningPath:         s.LearningPath,
		Feedback:             s.Feedback,
		StartedAt:            s.StartedAt,
		CompletedAt:          s.CompletedAt,
	}
}

// CaseStart is what a learner sees when opening a case.
type CaseStart struct {
	Case     clinical.CaseSummary `json:"case"`
	Progress Progress             `json:"progress"`
}

// ListCases returns the narrative of every active case.
func (e *Engine) ListCases(ctx context.Context) ([]clinical.CaseSummary, error) {
	out, err := e.cases.ListCases(ctx, true)
	if err != nil {
		return nil, clinical.Internal("list cases", err)
	}
	return out, nil
}

// GetCase returns one active case's narrative, never its options.
func (e *Engine) GetCase(ctx context.Context, caseID string) (clinical.CaseSummary, error) {
	c, err := e.loadCase(ctx, caseID)
	if err != nil {
		return clinical.CaseSummary{}, err
	}
	return c.Summary(), nil
}

// StartCase opens the learner's session, creating it on first use and
// reopening it when it was completed.
func (e *Engine) StartCase(ctx context.Context, learnerID, caseID string) (CaseStart, error) {
	if learnerID == "" {
		return CaseStart{}, clinical.Invalid("learner_id", "learner id is required")
	}
	c, err := e.loadCase(ctx, caseID)
	if err != nil {
		return CaseStart{}, err
	}
	release, err := e.locker.Acquire(ctx, lock.Key(learnerID, caseID))
	if err != nil {
		return CaseStart{}, lock.Busy(err)
	}
	defer release()

	sess, err := e.machine.Open(ctx, learnerID, caseID)
	if err != nil {
		return CaseStart{}, err
	}
	e.log.Info("case started", "learner", learnerID, "case", caseID, "session", sess.ID, "run", sess.Run, "stage", sess.Stage)
	return CaseStart{Case: c.Summary(), Progress: progressOf(sess)}, nil
}

// advanceable are the stages left without a scored submission.
var advanceable = map[clinical.Stage]string{
	clinical.StageCasePresentation:   "begin_examination",
	clinical.StageExaminationResults: "begin_diagnosis",
	clinical.StageLearningFeedback:   "complete_case",
}

// Advance moves the session out of a stage that has nothing to grade.
// Graded stages only advance through their submission.
func (e *Engine) Advance(ctx context.Context, learnerID, caseID string) (Progress, error) {
	if _, err := e.loadCase(ctx, caseID); err != nil {
		return Progress{}, err
	}
	var out Progress
	err := e.withSession(ctx, learnerID, caseID, "", func(sess clinical.Session) error {
		action, ok := advanceable[sess.Stage]
		if !ok {
			return clinical.Conflict("stage %s advances only through a graded submission", sess.Stage)
		}
		t := session.Transition{
			From:    sess.Stage,
			To:      session.Next(sess.Stage),
			Action:  action,
			Payload: map[string]any{"from": sess.Stage},
		}
		if t.To == clinical.StageCompleted {
			score := sess.OverallScore
			t.Note = &session.Note{Type: clinical.FeedbackSummary, Message: "Case completed. " + overallLine(score), Score: &score}
		}
		saved, err := e.machine.Apply(ctx, sess, t)
		if err != nil {
			return err
		}
		out = progressOf(saved)
		return nil
	})
	if err != nil {
		return Progress{}, err
	}
	return out, nil
}

// Progress returns the learner's session without changing it.
func (e *Engine) Progress(ctx context.Context, learnerID, caseID string) (Progress, error) {
	if caseID == "" {
		return Progress{}, clinical.Invalid("case_id", "case id is required")
	}
	sess, err := e.machine.Get(ctx, learnerID, caseID)
	if err != nil {
		return Progress{}, err
	}
	return progressOf(sess), nil
}

// ExaminationResults returns the findings of the examinations the learner
// ordered. They are only available once the examination stage is passed.
func (e *Engine) ExaminationResults(ctx context.Context, learnerID, caseID string) ([]ExaminationFinding, error) {
	if _, err := e.loadCase(ctx, caseID); err != nil {
		return nil, err
	}
	sess, err := e.machine.Get(ctx, learnerID, caseID)
	if err != nil {
		return nil, err
	}
	if sess.Stage.Index() < clinical.StageExaminationResults.Index() || len(sess.SelectedExaminations) == 0 {
		return nil, clinical.StageMismatch(sess.Stage, clinical.StageExaminationResults)
	}
	opts, err := e.checkKnown(ctx, clinical.KindExamination, sess.SelectedExaminations)
	if err != nil {
		return nil, err
	}
	return findings(opts), nil
}

// ResetSession deletes the learner's session for a case, logs included.
func (e *Engine) ResetSession(ctx context.Context, learnerID, caseID string) error {
	if learnerID == "" || caseID == "" {
		return clinical.Invalid("session", "learner id and case id are required")
	}
	release, err := e.locker.Acquire(ctx, lock.Key(learnerID, caseID))
	if err != nil {
		return lock.Busy(err)
	}
	defer release()
	if err := e.machine.Reset(ctx, learnerID, caseID); err != nil {
		return err
	}
	e.log.Info("session reset", "learner", learnerID, "case", caseID)
	return nil
}
