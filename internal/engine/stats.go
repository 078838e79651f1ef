package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/mind-engage/mindengage-clinical/internal/clinical"
	"github.com/mind-engage/mindengage-clinical/internal/grading"
)

// MaxStudyPerRun caps the study time one run contributes. A learner who
// leaves a case open overnight still counts as one sitting.
const MaxStudyPerRun = 4 * time.Hour

type LevelProgress struct {
	Completed int `json:"completed"`
	Total     int `json:"total"`
}

// UserStats summarises a learner's standing across every active case.
type UserStats struct {
	TotalCases         int                      `json:"total_cases"`
	CompletedCases     int                      `json:"completed_cases"`
	InProgressCases    int                      `json:"in_progress_cases"`
	AverageScore       float64                  `json:"average_score"`
	ProgressPercentage float64                  `json:"progress_percentage"`
	DifficultyProgress map[string]LevelProgress `json:"difficulty_progress"`
	StudyMinutes       int                      `json:"study_minutes"`
	FormattedStudyTime string                   `json:"formatted_study_time"`
}

// UserStats aggregates the learner's sessions. Only sessions currently at
// completed count as completed; the average is over those sessions' overall
// scores. Sessions on inactive or deleted cases are ignored.
func (e *Engine) UserStats(ctx context.Context, learnerID string) (UserStats, error) {
	if learnerID == "" {
		return UserStats{}, clinical.Invalid("learner_id", "learner id is required")
	}
	cases, err := e.cases.ListCases(ctx, true)
	if err != nil {
		return UserStats{}, clinical.Internal("list cases", err)
	}
	sessions, err := e.machine.List(ctx, learnerID)
	if err != nil {
		return UserStats{}, clinical.Internal("list sessions", err)
	}

	out := UserStats{
		TotalCases:         len(cases),
		DifficultyProgress: map[string]LevelProgress{},
	}
	level := make(map[string]string, len(cases))
	for _, c := range cases {
		level[c.ID] = c.Difficulty
		lp := out.DifficultyProgress[c.Difficulty]
		lp.Total++
		out.DifficultyProgress[c.Difficulty] = lp
	}

	var (
		sum   float64
		study time.Duration
	)
	for _, s := range sessions {
		d, ok := level[s.CaseID]
		if !ok {
			continue
		}
		if s.Stage != clinical.StageCompleted || s.CompletedAt == nil {
			out.InProgressCases++
			continue
		}
		out.CompletedCases++
		sum += s.OverallScore
		lp := out.DifficultyProgress[d]
		lp.Completed++
		out.DifficultyProgress[d] = lp
		study += runDuration(s)
	}
	if out.CompletedCases > 0 {
		out.AverageScore = grading.Round2(sum / float64(out.CompletedCases))
	}
	if out.TotalCases > 0 {
		out.ProgressPercentage = grading.Round2(float64(out.CompletedCases) / float64(out.TotalCases) * 100)
	}
	out.StudyMinutes = int(study / time.Minute)
	out.FormattedStudyTime = formatStudyTime(out.StudyMinutes)
	return out, nil
}

// runDuration is the length of the session's latest run. A reopened run
// starts when it re-entered case_presentation.
func runDuration(s clinical.Session) time.Duration {
	start := s.StartedAt
	if t, ok := s.StageEnteredAt[clinical.StageCasePresentation]; ok && t.After(start) {
		start = t
	}
	d := s.CompletedAt.Sub(start)
	switch {
	case d < 0:
		return 0
	case d > MaxStudyPerRun:
		return MaxStudyPerRun
	}
	return d
}

func formatStudyTime(minutes int) string {
	if minutes < 60 {
		return fmt.Sprintf("%dm", minutes)
	}
	return fmt.Sprintf("%dh %dm", minutes/60, minutes%60)
}
