package engine

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/mind-engage/mindengage-clinical/internal/clinical"
	"github.com/mind-engage/mindengage-clinical/internal/grading"
	"github.com/mind-engage/mindengage-clinical/internal/guidance"
)

func formatID(id int64) string { return strconv.FormatInt(id, 10) }

func plural(n int, one, many string) string {
	if n == 1 {
		return fmt.Sprintf("%d %s", n, one)
	}
	return fmt.Sprintf("%d %s", n, many)
}

// selectionLines describes a miss by counts only; correct answers are never
// named so a retry still tests the learner.
func selectionLines(noun, nouns string, res grading.SelectionResult, keySize int) []string {
	if res.Complete {
		return []string{fmt.Sprintf("Correct. You selected every %s that applies.", noun)}
	}
	var lines []string
	if n := len(res.CorrectlySelected); n > 0 {
		lines = append(lines, fmt.Sprintf("Partly correct: you identified %d of %d.", n, keySize))
	}
	if n := len(res.IncorrectlySelected); n > 0 {
		lines = append(lines, plural(n, "selected "+noun+" does not fit this case.", "selected "+nouns+" do not fit this case."))
	}
	if n := len(res.Missed); n > 0 {
		lines = append(lines, plural(n, noun+" is still missing.", nouns+" are still missing."))
	}
	return lines
}

// optionFeedback returns the authored feedback of selected options that
// belong to this case and are not part of the answer key.
func optionFeedback(c clinical.Case, k clinical.Kind, wrong []int64) []string {
	if len(wrong) == 0 {
		return nil
	}
	miss := make(map[int64]struct{}, len(wrong))
	for _, id := range wrong {
		miss[id] = struct{}{}
	}
	var lines []string
	for _, o := range c.Options(k) {
		if _, ok := miss[o.ID]; ok && strings.TrimSpace(o.Feedback) != "" {
			lines = append(lines, o.Name+": "+strings.TrimSpace(o.Feedback))
		}
	}
	return lines
}

func withHint(lines []string, h guidance.Hint) []string {
	if h.Text == "" {
		return lines
	}
	return append(lines, "Hint: "+h.Text)
}

func hintPtr(h guidance.Hint) *guidance.Hint {
	if h.Tier == 0 {
		return nil
	}
	return &h
}

func noteType(complete bool, h guidance.Hint) clinical.FeedbackType {
	switch {
	case complete:
		return clinical.FeedbackEncouragement
	case h.Text != "":
		return clinical.FeedbackGuidance
	default:
		return clinical.FeedbackCorrection
	}
}

func join(lines []string) string { return strings.Join(lines, "\n") }

func overallLine(score float64) string {
	return fmt.Sprintf("Overall score: %.1f. %s", score, grading.OverallBand(score))
}
