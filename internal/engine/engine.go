// Package engine runs one learner submission at a time: validate, lock the
// session, score against the case's answer key, escalate guidance on a miss
// and commit the result through the session machine.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/mind-engage/mindengage-clinical/internal/clinical"
	"github.com/mind-engage/mindengage-clinical/internal/distractor"
	"github.com/mind-engage/mindengage-clinical/internal/grading"
	"github.com/mind-engage/mindengage-clinical/internal/lock"
	"github.com/mind-engage/mindengage-clinical/internal/session"
)

// Totals are the target option-set sizes, correct options included.
type Totals struct {
	Examination int
	Diagnosis   int
	Treatment   int
}

func DefaultTotals() Totals {
	return Totals{
		Examination: distractor.DefaultExaminationTotal,
		Diagnosis:   distractor.DefaultDiagnosisTotal,
		Treatment:   distractor.DefaultTreatmentTotal,
	}
}

type Engine struct {
	cases   clinical.CaseStore
	machine *session.Machine
	sampler *distractor.Sampler
	scorer  *grading.Scorer
	locker  lock.Locker
	totals  Totals
	log     *slog.Logger
}

type Option func(*Engine)

func WithSampler(s *distractor.Sampler) Option { return func(e *Engine) { e.sampler = s } }
func WithScorer(s *grading.Scorer) Option      { return func(e *Engine) { e.scorer = s } }
func WithLocker(l lock.Locker) Option          { return func(e *Engine) { e.locker = l } }
func WithLogger(l *slog.Logger) Option         { return func(e *Engine) { e.log = l } }

// WithTotals overrides the option-set sizes; zero fields keep their default.
func WithTotals(t Totals) Option {
	return func(e *Engine) {
		if t.Examination > 0 {
			e.totals.Examination = t.Examination
		}
		if t.Diagnosis > 0 {
			e.totals.Diagnosis = t.Diagnosis
		}
		if t.Treatment > 0 {
			e.totals.Treatment = t.Treatment
		}
	}
}

func New(cases clinical.CaseStore, machine *session.Machine, opts ...Option) *Engine {
	e := &Engine{
		cases:   cases,
		machine: machine,
		sampler: distractor.New(nil),
		scorer:  grading.NewScorer(),
		locker:  lock.NewLocal(0),
		totals:  DefaultTotals(),
		log:     slog.Default(),
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// loadCase returns an active case; inactive cases are reported as missing.
func (e *Engine) loadCase(ctx context.Context, caseID string) (clinical.Case, error) {
	if strings.TrimSpace(caseID) == "" {
		return clinical.Case{}, clinical.Invalid("case_id", "case id is required")
	}
	c, err := e.cases.GetCase(ctx, caseID)
	if err != nil {
		return clinical.Case{}, err
	}
	if !c.Active {
		return clinical.Case{}, clinical.NotFound("case", caseID)
	}
	return c, nil
}

// answerKey returns the case's ground-truth options of kind k, or a
// ConfigurationError naming what the instructor has to fix.
func answerKey(c clinical.Case, k clinical.Kind) ([]clinical.Option, error) {
	key := c.Expected(k)
	if len(key) > 0 {
		return key, nil
	}
	if len(c.Options(k)) == 0 {
		return nil, clinical.Misconfigured(c.ID, "no "+string(k)+" options are configured for this case")
	}
	flag := "correct"
	switch k {
	case clinical.KindExamination:
		flag = "required"
	case clinical.KindTreatment:
		flag = "optimal"
	}
	return nil, clinical.Misconfigured(c.ID, "no "+string(k)+" option is marked "+flag)
}

// checkKnown rejects ids that are not options of kind k anywhere.
func (e *Engine) checkKnown(ctx context.Context, k clinical.Kind, ids []int64) ([]clinical.Option, error) {
	found, err := e.cases.QueryOptions(ctx, clinical.OptionQuery{Kind: k, IDs: ids})
	if err != nil {
		return nil, clinical.Internal("load selected options", err)
	}
	have := make(map[int64]struct{}, len(found))
	for _, o := range found {
		have[o.ID] = struct{}{}
	}
	for _, id := range ids {
		if _, ok := have[id]; !ok {
			return nil, clinical.NotFound(string(k)+" option", formatID(id))
		}
	}
	return found, nil
}

// withSession runs fn holding the per-session lock, against the stored
// session, which must be in stage want. A learner without a session gets one
// at case_presentation on first interaction.
func (e *Engine) withSession(ctx context.Context, learnerID, caseID string, want clinical.Stage,
	fn func(sess clinical.Session) error) error {
	release, err := e.locker.Acquire(ctx, lock.Key(learnerID, caseID))
	if err != nil {
		return lock.Busy(err)
	}
	defer release()

	sess, err := e.machine.Get(ctx, learnerID, caseID)
	if clinical.IsNotFound(err) {
		sess, err = e.machine.Open(ctx, learnerID, caseID)
	}
	if err != nil {
		return err
	}
	if want != "" && sess.Stage != want {
		return clinical.StageMismatch(sess.Stage, want)
	}
	return fn(sess)
}

func validateSelection(field string, ids []int64) ([]int64, error) {
	if len(ids) == 0 {
		return nil, clinical.Invalid(field, "select at least one option")
	}
	seen := make(map[int64]struct{}, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if id <= 0 {
			return nil, clinical.Invalid(field, "option ids must be positive")
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out, nil
}

// MaxRationaleRunes bounds free-text rationales; similarity scoring is
// quadratic in the text length.
const MaxRationaleRunes = 5000

func validateRationale(field, text, empty string) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", clinical.Invalid(field, empty)
	}
	if utf8.RuneCountInString(text) > MaxRationaleRunes {
		return "", clinical.Invalid(field, fmt.Sprintf("rationale must be at most %d characters", MaxRationaleRunes))
	}
	return text, nil
}

func ids(opts []clinical.Option) []int64 {
	out := make([]int64, len(opts))
	for i, o := range opts {
		out[i] = o.ID
	}
	return out
}
