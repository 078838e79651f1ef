package engine

import (
	"context"

	"github.com/mind-engage/mindengage-clinical/internal/clinical"
	"github.com/mind-engage/mindengage-clinical/internal/distractor"
)

// ExaminationOptions keeps the required tests apart from the distractors for
// callers that grade; learners only ever see Options.
type ExaminationOptions struct {
	Required    []clinical.Option       `json:"-"`
	Distractors []clinical.Option       `json:"-"`
	Options     []clinical.PublicOption `json:"options"`
	TotalCount  int                     `json:"total_count"`
}

// OptionSet is a shuffled diagnosis or treatment choice set.
type OptionSet struct {
	Options       []clinical.PublicOption `json:"options"`
	TotalCount    int                     `json:"total_count"`
	AllowMultiple bool                    `json:"allow_multiple"`
}

// GetExaminationOptions offers the case's required examinations mixed with
// optional ones from this and other cases.
func (e *Engine) GetExaminationOptions(ctx context.Context, caseID string) (ExaminationOptions, error) {
	c, err := e.loadCase(ctx, caseID)
	if err != nil {
		return ExaminationOptions{}, err
	}
	required, err := answerKey(c, clinical.KindExamination)
	if err != nil {
		return ExaminationOptions{}, err
	}

	var pool []clinical.Option
	for _, o := range c.Examinations {
		if !o.IsRequired {
			pool = append(pool, o)
		}
	}
	optional := false
	others, err := e.cases.QueryOptions(ctx, clinical.OptionQuery{
		Kind: clinical.KindExamination, ExcludeCaseID: c.ID, Expected: &optional,
	})
	if err != nil {
		return ExaminationOptions{}, clinical.Internal("load examination pool", err)
	}
	pool = append(pool, others...)

	set := e.sampler.Sample(required, pool, e.totals.Examination)
	out := ExaminationOptions{Required: required, Options: distractor.Public(set), TotalCount: len(set)}
	req := make(map[int64]struct{}, len(required))
	for _, r := range required {
		req[r.ID] = struct{}{}
	}
	for _, o := range set {
		if _, ok := req[o.ID]; !ok {
			out.Distractors = append(out.Distractors, o)
		}
	}
	return out, nil
}

// GetDiagnosisOptions mixes the case's correct diagnoses with correct
// diagnoses of other cases.
func (e *Engine) GetDiagnosisOptions(ctx context.Context, caseID string) (OptionSet, error) {
	return e.optionSet(ctx, caseID, clinical.KindDiagnosis, e.totals.Diagnosis)
}

// GetTreatmentOptions mixes the case's optimal treatments with optimal
// treatments of other cases.
func (e *Engine) GetTreatmentOptions(ctx context.Context, caseID string) (OptionSet, error) {
	return e.optionSet(ctx, caseID, clinical.KindTreatment, e.totals.Treatment)
}

func (e *Engine) optionSet(ctx context.Context, caseID string, k clinical.Kind, total int) (OptionSet, error) {
	c, err := e.loadCase(ctx, caseID)
	if err != nil {
		return OptionSet{}, err
	}
	correct, err := answerKey(c, k)
	if err != nil {
		return OptionSet{}, err
	}
	expected := true
	pool, err := e.cases.QueryOptions(ctx, clinical.OptionQuery{Kind: k, ExcludeCaseID: c.ID, Expected: &expected})
	if err != nil {
		return OptionSet{}, clinical.Internal("load "+string(k)+" pool", err)
	}
	set := e.sampler.Sample(correct, pool, total)
	return OptionSet{
		Options:       distractor.Public(set),
		TotalCount:    len(set),
		AllowMultiple: len(correct) > 1,
	}, nil
}
