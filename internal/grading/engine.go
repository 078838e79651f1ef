package grading

import (
	"math"
	"sort"

	"github.com/mind-engage/mindengage-clinical/internal/clinical"
)

// SelectionResult is the outcome of comparing a learner's selection with the
// answer key.
type SelectionResult struct {
	Score               float64 // 0–100
	Complete            bool    // selection equals the answer key exactly
	Precision           float64
	Recall              float64
	CorrectlySelected   []int64
	IncorrectlySelected []int64
	Missed              []int64
}

// ScoreSelection scores selected against correct with set semantics:
// duplicates collapse and order never matters. An exact match scores 100,
// anything else scores 100·F1.
func ScoreSelection(correct, selected []int64) (SelectionResult, error) {
	want := toSet(correct)
	got := toSet(selected)
	if len(want) == 0 {
		return SelectionResult{}, &clinical.ConfigurationError{Message: "answer key has no correct options"}
	}

	res := SelectionResult{}
	for id := range got {
		if _, ok := want[id]; ok {
			res.CorrectlySelected = append(res.CorrectlySelected, id)
		} else {
			res.IncorrectlySelected = append(res.IncorrectlySelected, id)
		}
	}
	for id := range want {
		if _, ok := got[id]; !ok {
			res.Missed = append(res.Missed, id)
		}
	}
	sortIDs(res.CorrectlySelected)
	sortIDs(res.IncorrectlySelected)
	sortIDs(res.Missed)

	if setEqual(want, got) {
		res.Score, res.Precision, res.Recall, res.Complete = 100, 1, 1, true
		return res, nil
	}
	hits := float64(len(res.CorrectlySelected))
	if len(got) > 0 {
		res.Precision = hits / float64(len(got))
	}
	res.Recall = hits / float64(len(want))
	if p, r := res.Precision, res.Recall; p+r > 0 {
		res.Score = Round2(100 * 2 * p * r / (p + r))
	}
	return res, nil
}

// Scorer holds the weights used to blend component scores.
type Scorer struct {
	cfg config
}

type Option func(*config)

type config struct {
	SelectionWeight float64
	RationaleWeight float64
	Overall         Rubric
	PenaltyCap      float64
}

func WithBlend(selection, rationale float64) Option {
	return func(c *config) { c.SelectionWeight, c.RationaleWeight = selection, rationale }
}
func WithOverallRubric(r Rubric) Option { return func(c *config) { c.Overall = r } }
func WithPenaltyCap(n float64) Option   { return func(c *config) { c.PenaltyCap = n } }

// NewScorer returns a Scorer with the default 0.7/0.3 stage blend, the
// 0.3/0.5/0.2 overall rubric and a 30-point per-attempt penalty cap.
func NewScorer(opts ...Option) *Scorer {
	cfg := config{
		SelectionWeight: 0.7,
		RationaleWeight: 0.3,
		Overall:         DefaultOverallRubric(),
		PenaltyCap:      30,
	}
	for _, o := range opts {
		o(&cfg)
	}
	return &Scorer{cfg: cfg}
}

// Blend combines a selection score and a rationale score into a stage total.
func (s *Scorer) Blend(selection, rationale float64) float64 {
	return Round2(s.cfg.SelectionWeight*selection + s.cfg.RationaleWeight*rationale)
}

// Overall aggregates the three stage scores with the overall rubric.
func (s *Scorer) Overall(examination, diagnosis, treatment float64) float64 {
	total, _ := ScoreRubric(s.cfg.Overall, map[string]float64{
		CriterionExamination: examination,
		CriterionDiagnosis:   diagnosis,
		CriterionTreatment:   treatment,
	})
	return Round2(total)
}

// Penalty is the cost of one failed examination submission: five points per
// attempt number, five per missing required test, three per unnecessary test,
// capped.
func (s *Scorer) Penalty(attempt, missing, extra int) float64 {
	p := float64(5*attempt + 5*missing + 3*extra)
	return math.Min(s.cfg.PenaltyCap, p)
}

// ExaminationScore is what remains of 100 after the accumulated penalties.
func ExaminationScore(totalPenalty float64) float64 {
	return Round2(math.Max(0, 100-totalPenalty))
}

// RationaleBand returns the learner-facing verdict on a rationale score.
func RationaleBand(score float64) string {
	switch {
	case score >= 80:
		return "Your reasoning is thorough and clearly argued."
	case score >= 60:
		return "Your reasoning is reasonable but could be more detailed."
	default:
		return "Your reasoning is insufficient. Draw on the history and examination findings more fully."
	}
}

// OverallBand returns the closing verdict on an overall score.
func OverallBand(score float64) string {
	switch {
	case score >= 90:
		return "Excellent work. Your clinical reasoning was accurate throughout this case."
	case score >= 70:
		return "Good work. Review the stages where you lost points to sharpen your reasoning."
	default:
		return "This case needs review. Revisit the examination findings and the differential before trying again."
	}
}

// Round2 rounds to two decimal places.
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// helpers

func toSet(ids []int64) map[int64]struct{} {
	m := make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		m[id] = struct{}{}
	}
	return m
}

func setEqual(a, b map[int64]struct{}) bool {
	if len(a) != len(b) {
		return false
	}
	for k := range a {
		if _, ok := b[k]; !ok {
			return false
		}
	}
	return true
}

func sortIDs(ids []int64) {
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
}
