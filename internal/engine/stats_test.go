package engine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mind-engage/mindengage-clinical/internal/clinical"
	"github.com/mind-engage/mindengage-clinical/internal/grading"
)

func TestUserStats(t *testing.T) {
	cases := fixtures()
	cases[0].Difficulty = "beginner"
	cases[1].Difficulty = "advanced"
	cases = append(cases, clinical.Case{ID: "CASE_OLD", Title: "Retired", Difficulty: "beginner", Active: false})
	e, _ := newEngine(t, cases...)
	ctx := context.Background()

	empty, err := e.UserStats(ctx, learner)
	require.NoError(t, err)
	assert.Equal(t, 2, empty.TotalCases)
	assert.Zero(t, empty.CompletedCases)
	assert.Zero(t, empty.AverageScore)
	assert.Zero(t, empty.ProgressPercentage)
	assert.Equal(t, LevelProgress{Total: 1}, empty.DifficultyProgress["beginner"])
	assert.Equal(t, "0m", empty.FormattedStudyTime)

	startAt(t, e, "")
	_, err = e.StartCase(ctx, learner, other)
	require.NoError(t, err)
	_, err = e.StartCase(ctx, "learner-2", chest)
	require.NoError(t, err)

	done, err := e.Progress(ctx, learner, chest)
	require.NoError(t, err)

	st, err := e.UserStats(ctx, learner)
	require.NoError(t, err)
	assert.Equal(t, 2, st.TotalCases)
	assert.Equal(t, 1, st.CompletedCases)
	assert.Equal(t, 1, st.InProgressCases)
	assert.InDelta(t, grading.Round2(done.OverallScore), st.AverageScore, 1e-9)
	assert.InDelta(t, 50, st.ProgressPercentage, 1e-9)
	assert.Equal(t, LevelProgress{Completed: 1, Total: 1}, st.DifficultyProgress["beginner"])
	assert.Equal(t, LevelProgress{Total: 1}, st.DifficultyProgress["advanced"])

	// a reopened case is back in progress
	_, err = e.StartCase(ctx, learner, chest)
	require.NoError(t, err)
	st, err = e.UserStats(ctx, learner)
	require.NoError(t, err)
	assert.Zero(t, st.CompletedCases)
	assert.Equal(t, 2, st.InProgressCases)

	_, err = e.UserStats(ctx, "")
	assert.True(t, clinical.IsValidation(err))
}

func TestRunDuration(t *testing.T) {
	start := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	at := func(d time.Duration) *time.Time { v := start.Add(d); return &v }

	s := clinical.Session{StartedAt: start, CompletedAt: at(25 * time.Minute)}
	assert.Equal(t, 25*time.Minute, runDuration(s))

	s.CompletedAt = at(30 * time.Hour)
	assert.Equal(t, MaxStudyPerRun, runDuration(s), "capped")

	// reopened: the run starts at its case_presentation entry
	s.StageEnteredAt = map[clinical.Stage]time.Time{clinical.StageCasePresentation: start.Add(29 * time.Hour)}
	assert.Equal(t, time.Hour, runDuration(s))

	assert.Equal(t, "45m", formatStudyTime(45))
	assert.Equal(t, "2h 5m", formatStudyTime(125))
}
