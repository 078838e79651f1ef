package grading

import "fmt"

const (
	CriterionExamination = "examination"
	CriterionDiagnosis   = "diagnosis"
	CriterionTreatment   = "treatment"
)

// Rubric is a weighted sum of 0–100 component scores.
type Rubric struct {
	Criteria []Criterion `json:"criteria"`
}

type Criterion struct {
	Key    string  `json:"key"`
	Desc   string  `json:"desc"`
	Weight float64 `json:"weight"`
}

func DefaultOverallRubric() Rubric {
	return Rubric{Criteria: []Criterion{
		{Key: CriterionExamination, Desc: "examination selection", Weight: 0.3},
		{Key: CriterionDiagnosis, Desc: "diagnostic reasoning", Weight: 0.5},
		{Key: CriterionTreatment, Desc: "treatment plan", Weight: 0.2},
	}}
}

// ScoreRubric clamps each awarded score to [0,100] and returns the weighted
// total with one note per criterion.
func ScoreRubric(r Rubric, awarded map[string]float64) (float64, []string) {
	total := 0.0
	notes := make([]string, 0, len(r.Criteria))
	for _, c := range r.Criteria {
		v := awarded[c.Key]
		if v < 0 {
			v = 0
		}
		if v > 100 {
			v = 100
		}
		total += c.Weight * v
		notes = append(notes, fmt.Sprintf("%s:%.2f×%.2f", c.Key, v, c.Weight))
	}
	return total, notes
}
