package engine

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mind-engage/mindengage-clinical/internal/clinical"
	"github.com/mind-engage/mindengage-clinical/internal/distractor"
	"github.com/mind-engage/mindengage-clinical/internal/session"
)

const (
	learner = "learner-1"
	chest   = "CASE_001"
	other   = "CASE_002"

	miRationale  = "Crushing chest pain radiating to the left arm with ST elevation"
	pciRationale = "Reperfusion with primary PCI restores coronary flow"
)

func fixtures() []clinical.Case {
	return []clinical.Case{
		{
			ID: chest, Title: "Chest pain", ChiefComplaint: "Chest pain for two hours", Active: true,
			Examinations: []clinical.Option{
				{ID: 1, Name: "ECG", IsRequired: true, Result: "ST elevation in V1-V4", DisplayOrder: 1},
				{ID: 2, Name: "Troponin", IsRequired: true, Result: "Elevated", DisplayOrder: 2},
				{ID: 3, Name: "Abdominal ultrasound", Feedback: "Not indicated for chest pain.", DisplayOrder: 3},
			},
			Diagnoses: []clinical.Option{
				{ID: 11, Name: "Acute myocardial infarction", IsCorrect: true, DisplayOrder: 1,
					Rationale: miRationale, Keywords: []string{"chest pain", "ST elevation"},
					Hints: [3]string{"Look closely at the ECG.", "", ""}},
				{ID: 12, Name: "Pneumothorax", Feedback: "Breath sounds were symmetrical.", DisplayOrder: 2},
			},
			Treatments: []clinical.Option{
				{ID: 21, Name: "Primary PCI", IsCorrect: true, DisplayOrder: 1,
					Rationale: pciRationale, Keywords: []string{"reperfusion"}},
				{ID: 22, Name: "Aspirin", IsCorrect: true, DisplayOrder: 2, Rationale: "Antiplatelet therapy"},
				{ID: 23, Name: "Chest drain", DisplayOrder: 3},
			},
		},
		{
			ID: other, Title: "Headache", ChiefComplaint: "Headache", Active: true,
			Examinations: []clinical.Option{{ID: 31, Name: "Head CT"}},
			Diagnoses:    []clinical.Option{{ID: 41, Name: "Migraine", IsCorrect: true}},
			Treatments:   []clinical.Option{{ID: 51, Name: "Triptan", IsCorrect: true}},
		},
	}
}

type fixedClock struct{ t time.Time }

func (c *fixedClock) now() time.Time {
	c.t = c.t.Add(time.Second)
	return c.t
}

func newEngine(t *testing.T, cases ...clinical.Case) (*Engine, *clinical.MemoryStore) {
	t.Helper()
	if len(cases) == 0 {
		cases = fixtures()
	}
	store := clinical.NewMemoryStore()
	for _, c := range cases {
		require.NoError(t, store.PutCase(context.Background(), c))
	}
	clk := &fixedClock{t: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
	m := session.NewMachine(store, session.WithClock(clk.now))
	return New(store, m, WithSampler(distractor.NewSeeded(7))), store
}

func startAt(t *testing.T, e *Engine, stage clinical.Stage) {
	t.Helper()
	ctx := context.Background()
	_, err := e.StartCase(ctx, learner, chest)
	require.NoError(t, err)
	for _, step := range []struct {
		at  clinical.Stage
		run func() error
	}{
		{clinical.StageCasePresentation, func() error { _, err := e.Advance(ctx, learner, chest); return err }},
		{clinical.StageExaminationSelection, func() error {
			_, err := e.SubmitExaminations(ctx, learner, chest, []int64{1, 2})
			return err
		}},
		{clinical.StageExaminationResults, func() error { _, err := e.Advance(ctx, learner, chest); return err }},
		{clinical.StageDiagnosisReasoning, func() error {
			_, err := e.SubmitDiagnosis(ctx, learner, chest, []int64{11}, miRationale)
			return err
		}},
		{clinical.StageTreatmentSelection, func() error {
			_, err := e.SubmitTreatment(ctx, learner, chest, []int64{21, 22}, pciRationale)
			return err
		}},
		{clinical.StageLearningFeedback, func() error { _, err := e.Advance(ctx, learner, chest); return err }},
	} {
		if step.at == stage {
			return
		}
		require.NoError(t, step.run(), "leaving %s", step.at)
	}
}

func TestFullCase(t *testing.T) {
	e, _ := newEngine(t)
	ctx := context.Background()

	start, err := e.StartCase(ctx, learner, chest)
	require.NoError(t, err)
	assert.Equal(t, clinical.StageCasePresentation, start.Progress.Stage)
	assert.Equal(t, "Chest pain", start.Case.Title)

	p, err := e.Advance(ctx, learner, chest)
	require.NoError(t, err)
	assert.Equal(t, clinical.StageExaminationSelection, p.Stage)

	miss, err := e.SubmitExaminations(ctx, learner, chest, []int64{1, 3})
	require.NoError(t, err)
	assert.False(t, miss.Complete)
	assert.Equal(t, 1, miss.Missing)
	assert.Equal(t, 1, miss.Extra)
	assert.InDelta(t, 13, miss.Penalty, 1e-9)
	assert.InDelta(t, 87, miss.Score, 1e-9)
	assert.Nil(t, miss.Hint)
	assert.Contains(t, miss.Feedback, "Not indicated for chest pain.")
	assert.NotContains(t, miss.Feedback, "Troponin")
	assert.Equal(t, clinical.StageExaminationSelection, miss.Stage)

	hit, err := e.SubmitExaminations(ctx, learner, chest, []int64{2, 1})
	require.NoError(t, err)
	assert.True(t, hit.Complete)
	assert.InDelta(t, 87, hit.Score, 1e-9)
	assert.Equal(t, clinical.StageExaminationResults, hit.Stage)
	require.Len(t, hit.Results, 2)
	assert.Equal(t, "ST elevation in V1-V4", hit.Results[0].Result)

	results, err := e.ExaminationResults(ctx, learner, chest)
	require.NoError(t, err)
	assert.Len(t, results, 2)

	_, err = e.Advance(ctx, learner, chest)
	require.NoError(t, err)

	dx, err := e.SubmitDiagnosis(ctx, learner, chest, []int64{11}, miRationale)
	require.NoError(t, err)
	assert.True(t, dx.IsComplete)
	assert.InDelta(t, 100, dx.DiagnosisScore, 1e-9)
	assert.InDelta(t, 100, dx.RationaleScore, 1e-9)
	assert.InDelta(t, 100, dx.TotalScore, 1e-9)
	assert.Equal(t, clinical.StageTreatmentSelection, dx.Stage)

	tx, err := e.SubmitTreatment(ctx, learner, chest, []int64{22, 21}, pciRationale)
	require.NoError(t, err)
	assert.True(t, tx.IsPerfect)
	assert.InDelta(t, 100, tx.RationaleScore, 1e-9)
	assert.Equal(t, clinical.StageLearningFeedback, tx.Stage)
	// 0.3·87 + 0.5·100 + 0.2·100
	assert.InDelta(t, 96.1, tx.OverallScore, 1e-9)
	assert.Contains(t, tx.OverallFeedback, "Excellent")

	done, err := e.Advance(ctx, learner, chest)
	require.NoError(t, err)
	assert.Equal(t, clinical.StageCompleted, done.Stage)
	require.NotNil(t, done.CompletedAt)
	assert.Equal(t, clinical.FeedbackSummary, done.Feedback[len(done.Feedback)-1].Type)
	assert.Equal(t, 2, done.Attempts[clinical.StageExaminationSelection])
}

func TestOptionSets(t *testing.T) {
	e, _ := newEngine(t)
	ctx := context.Background()

	ex, err := e.GetExaminationOptions(ctx, chest)
	require.NoError(t, err)
	assert.Equal(t, 4, ex.TotalCount)
	assert.Len(t, ex.Required, 2)
	assert.Len(t, ex.Distractors, 2)
	assert.Len(t, ex.Options, 4)

	dx, err := e.GetDiagnosisOptions(ctx, chest)
	require.NoError(t, err)
	assert.False(t, dx.AllowMultiple)
	assert.ElementsMatch(t, []int64{11, 41}, publicIDs(dx.Options))

	tx, err := e.GetTreatmentOptions(ctx, chest)
	require.NoError(t, err)
	assert.True(t, tx.AllowMultiple)
	assert.ElementsMatch(t, []int64{21, 22, 51}, publicIDs(tx.Options))
}

func publicIDs(opts []clinical.PublicOption) []int64 {
	out := make([]int64, len(opts))
	for i, o := range opts {
		out[i] = o.ID
	}
	return out
}

func TestDiagnosisGuidanceEscalates(t *testing.T) {
	e, _ := newEngine(t)
	ctx := context.Background()
	startAt(t, e, clinical.StageDiagnosisReasoning)

	first, err := e.SubmitDiagnosis(ctx, learner, chest, []int64{12}, "sudden dyspnoea")
	require.NoError(t, err)
	assert.False(t, first.IsComplete)
	assert.Equal(t, 1, first.Missed)
	assert.Equal(t, 1, first.IncorrectlySelected)
	assert.Nil(t, first.Hint)
	assert.Contains(t, first.Feedback, "Breath sounds were symmetrical.")
	assert.NotContains(t, first.Feedback, "myocardial")

	second, err := e.SubmitDiagnosis(ctx, learner, chest, []int64{12}, "sudden dyspnoea")
	require.NoError(t, err)
	require.NotNil(t, second.Hint)
	assert.Equal(t, 1, second.Hint.Tier)
	assert.Equal(t, "Look closely at the ECG.", second.Hint.Text)
	assert.Equal(t, 2, second.Attempt)

	p, err := e.Progress(ctx, learner, chest)
	require.NoError(t, err)
	assert.Equal(t, clinical.StageDiagnosisReasoning, p.Stage)
	assert.Equal(t, 1, p.GuidanceTier[clinical.StageDiagnosisReasoning])
	assert.Zero(t, p.DiagnosisScore)
}

func TestTreatmentRationaleNeedsChosenOptimal(t *testing.T) {
	e, _ := newEngine(t)
	ctx := context.Background()
	startAt(t, e, clinical.StageTreatmentSelection)

	res, err := e.SubmitTreatment(ctx, learner, chest, []int64{23}, pciRationale)
	require.NoError(t, err)
	assert.Zero(t, res.RationaleScore)
	assert.Zero(t, res.TreatmentScore)
	assert.False(t, res.IsPerfect)
	assert.Empty(t, res.OverallFeedback)

	// only the second optimal treatment chosen: its rationale is the reference
	res, err = e.SubmitTreatment(ctx, learner, chest, []int64{22}, "Antiplatelet therapy")
	require.NoError(t, err)
	assert.InDelta(t, 60, res.Rationale.Similarity, 1e-9)
	assert.InDelta(t, 66.67, res.TreatmentScore, 1e-9)
}

func TestSubmissionErrors(t *testing.T) {
	e, store := newEngine(t)
	ctx := context.Background()

	_, err := e.SubmitExaminations(ctx, learner, chest, []int64{1, 2})
	assert.True(t, clinical.IsConflict(err), "first interaction opens the case at presentation")
	created, err := store.GetSession(ctx, learner, chest)
	require.NoError(t, err)
	assert.Equal(t, clinical.StageCasePresentation, created.Stage)

	start, err := e.StartCase(ctx, learner, chest)
	require.NoError(t, err)
	assert.Equal(t, created.ID, start.Progress.SessionID)

	_, err = e.SubmitDiagnosis(ctx, learner, chest, []int64{11}, miRationale)
	var ce *clinical.ConflictError
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, "stage_mismatch", ce.Code)

	_, err = e.SubmitDiagnosis(ctx, learner, chest, []int64{11}, "   ")
	assert.True(t, clinical.IsValidation(err))

	_, err = e.SubmitExaminations(ctx, learner, "CASE_404", []int64{1})
	assert.True(t, clinical.IsNotFound(err))
	_, err = store.GetSession(ctx, learner, "CASE_404")
	assert.True(t, clinical.IsNotFound(err), "unknown case never gets a session")

	_, err = e.SubmitExaminations(ctx, learner, chest, nil)
	assert.True(t, clinical.IsValidation(err))

	_, err = e.SubmitExaminations(ctx, learner, chest, []int64{999})
	assert.True(t, clinical.IsNotFound(err))

	_, err = e.GetDiagnosisOptions(ctx, "CASE_404")
	assert.True(t, clinical.IsNotFound(err))

	_, err = e.Advance(ctx, learner, chest)
	require.NoError(t, err)
	_, err = e.Advance(ctx, learner, chest)
	assert.True(t, clinical.IsConflict(err), "graded stage cannot be skipped")

	_, err = e.ExaminationResults(ctx, learner, chest)
	assert.True(t, clinical.IsConflict(err))

	sess, err := store.GetSession(ctx, learner, chest)
	require.NoError(t, err)
	assert.Zero(t, sess.Attempts[clinical.StageExaminationSelection], "rejected submissions never count")
}

func TestAdvanceOpensMissingSession(t *testing.T) {
	e, _ := newEngine(t)
	ctx := context.Background()

	p, err := e.Advance(ctx, learner, chest)
	require.NoError(t, err)
	assert.Equal(t, clinical.StageExaminationSelection, p.Stage)
	assert.Equal(t, 1, p.Run)
	require.Len(t, p.LearningPath, 2)
	assert.Equal(t, "session_started", p.LearningPath[0].Action)
}

func TestRationaleLengthBounded(t *testing.T) {
	e, store := newEngine(t)
	ctx := context.Background()
	startAt(t, e, clinical.StageDiagnosisReasoning)
	long := strings.Repeat("é", MaxRationaleRunes+1)

	_, err := e.SubmitDiagnosis(ctx, learner, chest, []int64{11}, long)
	var ve *clinical.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "diagnosis_rationale", ve.Field)

	// exactly at the bound is accepted; runes are counted, not bytes
	res, err := e.SubmitDiagnosis(ctx, learner, chest, []int64{11}, strings.Repeat("é", MaxRationaleRunes))
	require.NoError(t, err)
	assert.Equal(t, 1, res.Attempt)

	_, err = e.SubmitTreatment(ctx, learner, chest, []int64{21}, long)
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "treatment_rationale", ve.Field)

	sess, err := store.GetSession(ctx, learner, chest)
	require.NoError(t, err)
	assert.Zero(t, sess.Attempts[clinical.StageTreatmentSelection])
}

func TestMisconfiguredCase(t *testing.T) {
	c := fixtures()[0]
	for i := range c.Examinations {
		c.Examinations[i].IsRequired = false
	}
	e, store := newEngine(t, c)
	ctx := context.Background()
	startAt(t, e, clinical.StageExaminationSelection)

	_, err := e.GetExaminationOptions(ctx, chest)
	assert.True(t, clinical.IsConfiguration(err))

	_, err = e.SubmitExaminations(ctx, learner, chest, []int64{1})
	assert.True(t, clinical.IsConfiguration(err))

	sess, err := store.GetSession(ctx, learner, chest)
	require.NoError(t, err)
	assert.Zero(t, sess.Attempts[clinical.StageExaminationSelection])
	assert.Zero(t, sess.ExaminationPenalty)
}

func TestExaminationScoreFloorsAtZero(t *testing.T) {
	e, _ := newEngine(t)
	ctx := context.Background()
	startAt(t, e, clinical.StageExaminationSelection)

	var last ExaminationSubmission
	for i := 0; i < 5; i++ {
		var err error
		last, err = e.SubmitExaminations(ctx, learner, chest, []int64{3})
		require.NoError(t, err)
	}
	assert.Zero(t, last.Score)
	require.NotNil(t, last.Hint)
	assert.Equal(t, 3, last.Hint.Tier)

	ok, err := e.SubmitExaminations(ctx, learner, chest, []int64{1, 2})
	require.NoError(t, err)
	assert.Zero(t, ok.Score)
	assert.True(t, ok.Complete)
}

func TestReopenAndReset(t *testing.T) {
	e, _ := newEngine(t)
	ctx := context.Background()
	startAt(t, e, "")

	again, err := e.StartCase(ctx, learner, chest)
	require.NoError(t, err)
	assert.Equal(t, 2, again.Progress.Run)
	assert.Equal(t, clinical.StageCasePresentation, again.Progress.Stage)
	assert.Zero(t, again.Progress.OverallScore)
	assert.Nil(t, again.Progress.CompletedAt)
	assert.NotEmpty(t, again.Progress.LearningPath)

	require.NoError(t, e.ResetSession(ctx, learner, chest))
	_, err = e.Progress(ctx, learner, chest)
	assert.True(t, clinical.IsNotFound(err))

	fresh, err := e.StartCase(ctx, learner, chest)
	require.NoError(t, err)
	assert.Equal(t, 1, fresh.Progress.Run)
	assert.NotEqual(t, again.Progress.SessionID, fresh.Progress.SessionID)
}
