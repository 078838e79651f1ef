// Package guidance escalates hints as a learner keeps missing a stage.
package guidance

import (
	"strings"

	"github.com/mind-engage/mindengage-clinical/internal/clinical"
)

const MaxTier = 3

var generic = [MaxTier + 1]string{
	"",
	"Review the patient's history and presenting findings again before resubmitting.",
	"Compare your choices against the key examination findings; at least one answer is still missing or wrong.",
	"Work through each finding and ask which option explains it best. Consider every option listed, not only the most obvious one.",
}

// Tier maps the attempt number (1-based, counting the current submission)
// to a guidance tier. It never returns less than previous.
func Tier(attempt, previous int) int {
	t := 0
	switch {
	case attempt <= 1:
		t = 0
	case attempt == 2:
		t = 1
	case attempt == 3:
		t = 2
	default:
		t = 3
	}
	if previous > t {
		t = previous
	}
	if t > MaxTier {
		t = MaxTier
	}
	return t
}

// Hint is the guidance shown after an incomplete submission.
type Hint struct {
	Tier     int    `json:"tier"`
	Text     string `json:"text,omitempty"`
	OptionID int64  `json:"-"`
	Generic  bool   `json:"generic,omitempty"`
}

// Select picks the hint for tier from the most relevant correct option:
// the only one when there is one, otherwise the first in display order that
// the learner left out. correct must already be in display order.
func Select(correct []clinical.Option, selected []int64, tier int) Hint {
	if tier <= 0 {
		return Hint{}
	}
	if tier > MaxTier {
		tier = MaxTier
	}
	target, ok := focus(correct, selected)
	if !ok {
		return Hint{Tier: tier, Text: generic[tier], Generic: true}
	}
	// fall back to the nearest authored lower tier
	for t := tier; t >= 1; t-- {
		if text := strings.TrimSpace(target.Hints[t-1]); text != "" {
			return Hint{Tier: tier, Text: text, OptionID: target.ID}
		}
	}
	return Hint{Tier: tier, Text: generic[tier], OptionID: target.ID, Generic: true}
}

func focus(correct []clinical.Option, selected []int64) (clinical.Option, bool) {
	switch len(correct) {
	case 0:
		return clinical.Option{}, false
	case 1:
		return correct[0], true
	}
	chosen := make(map[int64]struct{}, len(selected))
	for _, id := range selected {
		chosen[id] = struct{}{}
	}
	for _, c := range correct {
		if _, ok := chosen[c.ID]; !ok {
			return c, true
		}
	}
	return correct[0], true
}
