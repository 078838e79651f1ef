// Package session owns the per-learner, per-case stage progression. Machine
// is the only code that mutates a clinical.Session.
package session

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/mind-engage/mindengage-clinical/internal/clinical"
	"github.com/mind-engage/mindengage-clinical/internal/grading"
	syncx "github.com/mind-engage/mindengage-clinical/internal/sync"
)

// edges is the transition table. Self-loops are the retry paths; the single
// backward edge is reopen.
var edges = map[clinical.Stage][]clinical.Stage{
	clinical.StageCasePresentation:     {clinical.StageExaminationSelection},
	clinical.StageExaminationSelection: {clinical.StageExaminationSelection, clinical.StageExaminationResults},
	clinical.StageExaminationResults:   {clinical.StageDiagnosisReasoning},
	clinical.StageDiagnosisReasoning:   {clinical.StageDiagnosisReasoning, clinical.StageTreatmentSelection},
	clinical.StageTreatmentSelection:   {clinical.StageTreatmentSelection, clinical.StageLearningFeedback},
	clinical.StageLearningFeedback:     {clinical.StageCompleted},
	clinical.StageCompleted:            {clinical.StageCasePresentation},
}

// Legal reports whether from→to is in the transition table.
func Legal(from, to clinical.Stage) bool {
	for _, s := range edges[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Next is the forward successor of from, or "" for completed.
func Next(from clinical.Stage) clinical.Stage {
	for _, s := range edges[from] {
		if s != from && s.Index() > from.Index() {
			return s
		}
	}
	return ""
}

// Note is a feedback-log entry attached to a transition.
type Note struct {
	Type    clinical.FeedbackType
	Message string
	Score   *float64
}

// Transition describes one atomic change to a session.
type Transition struct {
	From   clinical.Stage
	To     clinical.Stage
	Action string
	// Payload is recorded verbatim in the learning path.
	Payload any

	// CountAttempt increments Attempts[From].
	CountAttempt bool
	// Tier, when set, raises GuidanceTier[From]. It is never lowered.
	Tier *int
	// Penalty is added to the cumulative examination penalty.
	Penalty float64

	ExaminationScore *float64
	DiagnosisScore   *float64
	TreatmentScore   *float64

	// Selected replaces the stored selection for SelectedKind.
	SelectedKind clinical.Kind
	Selected     []int64

	Note *Note
}

func (t Transition) reopen() bool {
	return t.From == clinical.StageCompleted && t.To == clinical.StageCasePresentation
}

type Machine struct {
	repo   clinical.SessionStore
	scorer *grading.Scorer
	events *syncx.Emitter
	now    func() time.Time
	log    *slog.Logger
}

type Option func(*Machine)

func WithClock(now func() time.Time) Option { return func(m *Machine) { m.now = now } }
func WithEmitter(e *syncx.Emitter) Option   { return func(m *Machine) { m.events = e } }
func WithLogger(l *slog.Logger) Option      { return func(m *Machine) { m.log = l } }
func WithScorer(s *grading.Scorer) Option   { return func(m *Machine) { m.scorer = s } }

func NewMachine(repo clinical.SessionStore, opts ...Option) *Machine {
	m := &Machine{
		repo:   repo,
		scorer: grading.NewScorer(),
		now:    func() time.Time { return time.Now().UTC() },
		log:    slog.Default(),
	}
	for _, o := range opts {
		o(m)
	}
	// session columns hold milliseconds; timestamps must survive a reload
	clock := m.now
	m.now = func() time.Time { return clock().UTC().Truncate(time.Millisecond) }
	return m
}

// Get returns the learner's session for a case without changing it.
func (m *Machine) Get(ctx context.Context, learnerID, caseID string) (clinical.Session, error) {
	return m.repo.GetSession(ctx, learnerID, caseID)
}

// List returns every session the learner holds, ordered by case id.
func (m *Machine) List(ctx context.Context, learnerID string) ([]clinical.Session, error) {
	return m.repo.ListSessions(ctx, learnerID)
}

// Open returns the learner's session for a case, creating it on first use. A
// completed session is reopened: attempts, tiers, scores, penalty and
// selections reset while the id and both logs are kept.
func (m *Machine) Open(ctx context.Context, learnerID, caseID string) (clinical.Session, error) {
	sess, err := m.repo.GetSession(ctx, learnerID, caseID)
	switch {
	case clinical.IsNotFound(err):
		sess, err = m.create(ctx, learnerID, caseID)
		if clinical.IsConflict(err) {
			// lost a creation race; the winner's row is ours too
			return m.repo.GetSession(ctx, learnerID, caseID)
		}
		return sess, err
	case err != nil:
		return clinical.Session{}, err
	}
	if sess.Stage != clinical.StageCompleted {
		return sess, nil
	}
	return m.Apply(ctx, sess, Transition{
		From:   clinical.StageCompleted,
		To:     clinical.StageCasePresentation,
		Action: "session_reopened",
		Payload: map[string]any{
			"previous_run":           sess.Run,
			"previous_overall_score": sess.OverallScore,
		},
	})
}

func (m *Machine) create(ctx context.Context, learnerID, caseID string) (clinical.Session, error) {
	now := m.now()
	sess := clinical.Session{
		ID:             uuid.NewString(),
		LearnerID:      learnerID,
		CaseID:         caseID,
		Stage:          clinical.StageCasePresentation,
		Run:            1,
		Attempts:       map[clinical.Stage]int{},
		GuidanceTier:   map[clinical.Stage]int{},
		StageEnteredAt: map[clinical.Stage]time.Time{clinical.StageCasePresentation: now},
		StartedAt:      now,
		UpdatedAt:      now,
		LearningPath: []clinical.PathEntry{{
			ID:        uuid.NewString(),
			Timestamp: now,
			Run:       1,
			Stage:     clinical.StageCasePresentation,
			Action:    "session_started",
		}},
		Feedback: []clinical.FeedbackEntry{},
	}
	return m.repo.CreateSession(ctx, sess)
}

// Reset deletes the session. It is destructive and distinct from reopen.
func (m *Machine) Reset(ctx context.Context, learnerID, caseID string) error {
	sess, err := m.repo.GetSession(ctx, learnerID, caseID)
	if err != nil {
		return err
	}
	if err := m.repo.DeleteSession(ctx, learnerID, caseID); err != nil {
		return err
	}
	m.events.Emit(ctx, syncx.TypeSessionReset, sess.ID, map[string]any{
		"session_id": sess.ID,
		"learner_id": learnerID,
		"case_id":    caseID,
		"run":        sess.Run,
	})
	return nil
}

// Apply validates t against the session's current stage and the transition
// table, applies it to a copy and commits the copy with a version check. On
// any error the stored session is unchanged.
func (m *Machine) Apply(ctx context.Context, sess clinical.Session, t Transition) (clinical.Session, error) {
	if t.From != sess.Stage {
		return clinical.Session{}, clinical.StageMismatch(sess.Stage, t.From)
	}
	if !Legal(t.From, t.To) {
		return clinical.Session{}, clinical.Conflict("illegal transition %s -> %s", t.From, t.To)
	}

	var payload json.RawMessage
	if t.Payload != nil {
		b, err := json.Marshal(t.Payload)
		if err != nil {
			return clinical.Session{}, clinical.Internal("encode learning path payload", err)
		}
		payload = b
	}

	now := m.now()
	next := sess.Clone()
	if t.reopen() {
		resetForReopen(&next)
	}

	if t.CountAttempt {
		next.Attempts[t.From]++
	}
	if t.Tier != nil && *t.Tier > next.GuidanceTier[t.From] {
		next.GuidanceTier[t.From] = *t.Tier
	}
	next.ExaminationPenalty += t.Penalty
	if t.ExaminationScore != nil {
		next.ExaminationScore = *t.ExaminationScore
	}
	if t.DiagnosisScore != nil {
		next.DiagnosisScore = *t.DiagnosisScore
	}
	if t.TreatmentScore != nil {
		next.TreatmentScore = *t.TreatmentScore
	}
	switch t.SelectedKind {
	case clinical.KindExamination:
		next.SelectedExaminations = append([]int64(nil), t.Selected...)
	case clinical.KindDiagnosis:
		next.SelectedDiagnoses = append([]int64(nil), t.Selected...)
	case clinical.KindTreatment:
		next.SelectedTreatments = append([]int64(nil), t.Selected...)
	}

	next.LearningPath = append(next.LearningPath, clinical.PathEntry{
		ID:        uuid.NewString(),
		Timestamp: now,
		Run:       next.Run,
		Stage:     t.From,
		Action:    t.Action,
		Payload:   payload,
	})
	if t.Note != nil {
		next.Feedback = append(next.Feedback, clinical.FeedbackEntry{
			ID:        uuid.NewString(),
			Timestamp: now,
			Run:       next.Run,
			Stage:     t.From,
			Type:      t.Note.Type,
			Message:   t.Note.Message,
			Score:     t.Note.Score,
		})
	}

	advancing := t.To != t.From
	if advancing {
		next.Stage = t.To
		next.StageEnteredAt[t.To] = now
		if !t.reopen() {
			next.OverallScore = m.scorer.Overall(next.ExaminationScore, next.DiagnosisScore, next.TreatmentScore)
		}
	}
	if t.To == clinical.StageCompleted {
		done := completionTime(now, next.StageEnteredAt)
		next.CompletedAt = &done
	}
	next.UpdatedAt = now

	saved, err := m.repo.UpdateSession(ctx, next)
	if err != nil {
		if clinical.IsConflict(err) || clinical.IsNotFound(err) {
			return clinical.Session{}, err
		}
		return clinical.Session{}, clinical.Internal("commit session", err)
	}

	if advancing {
		m.emit(ctx, saved, t)
	}
	return saved, nil
}

func (m *Machine) emit(ctx context.Context, s clinical.Session, t Transition) {
	base := map[string]any{
		"session_id":    s.ID,
		"learner_id":    s.LearnerID,
		"case_id":       s.CaseID,
		"run":           s.Run,
		"from":          t.From,
		"to":            t.To,
		"overall_score": s.OverallScore,
	}
	switch {
	case t.reopen():
		m.events.Emit(ctx, syncx.TypeSessionReopened, s.ID, base)
	case t.To == clinical.StageCompleted:
		base["examination_score"] = s.ExaminationScore
		base["diagnosis_score"] = s.DiagnosisScore
		base["treatment_score"] = s.TreatmentScore
		base["completed_at"] = s.CompletedAt
		m.events.Emit(ctx, syncx.TypeSessionCompleted, s.ID, base)
	default:
		m.events.Emit(ctx, syncx.TypeStageCompleted, s.ID, base)
	}
	m.log.Debug("session advanced", "session", s.ID, "from", t.From, "to", t.To, "version", s.Version)
}

func resetForReopen(s *clinical.Session) {
	s.Run++
	s.Attempts = map[clinical.Stage]int{}
	s.GuidanceTier = map[clinical.Stage]int{}
	s.ExaminationScore, s.DiagnosisScore, s.TreatmentScore, s.OverallScore = 0, 0, 0, 0
	s.ExaminationPenalty = 0
	s.SelectedExaminations, s.SelectedDiagnoses, s.SelectedTreatments = nil, nil, nil
	s.CompletedAt = nil
	s.StageEnteredAt = map[clinical.Stage]time.Time{}
}

// completionTime is the latest of now and every stage entry time.
func completionTime(now time.Time, entered map[clinical.Stage]time.Time) time.Time {
	latest := now
	for _, t := range entered {
		if t.After(latest) {
			latest = t
		}
	}
	return latest
}
