// Package caseload reads authored case packs from YAML and imports them.
package caseload

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/mind-engage/mindengage-clinical/internal/clinical"
	"github.com/mind-engage/mindengage-clinical/internal/grading"
)

type packFile struct {
	Cases []caseFile `yaml:"cases"`
}

type caseFile struct {
	ID             string       `yaml:"id"`
	Title          string       `yaml:"title"`
	ChiefComplaint string       `yaml:"chief_complaint"`
	PresentIllness string       `yaml:"present_illness"`
	PastHistory    string       `yaml:"past_history"`
	FamilyHistory  string       `yaml:"family_history"`
	PatientAge     int          `yaml:"patient_age"`
	PatientGender  string       `yaml:"patient_gender"`
	Difficulty     string       `yaml:"difficulty"`
	Active         *bool        `yaml:"active"`
	Examinations   []optionFile `yaml:"examinations"`
	Diagnoses      []optionFile `yaml:"diagnoses"`
	Treatments     []optionFile `yaml:"treatments"`
}

type optionFile struct {
	ID           int64    `yaml:"id"`
	Name         string   `yaml:"name"`
	Description  string   `yaml:"description"`
	Difficulty   string   `yaml:"difficulty"`
	Type         string   `yaml:"type"`
	DisplayOrder int      `yaml:"display_order"`
	IsCorrect    bool     `yaml:"is_correct"`
	IsOptimal    bool     `yaml:"is_optimal"`
	IsRequired   bool     `yaml:"is_required"`
	Score        float64  `yaml:"score"`
	Rationale    string   `yaml:"rationale"`
	Keywords     keywords `yaml:"keywords"`
	Hint1        string   `yaml:"hint_level_1"`
	Hint2        string   `yaml:"hint_level_2"`
	Hint3        string   `yaml:"hint_level_3"`
	Feedback     string   `yaml:"feedback"`
	Result       string   `yaml:"result"`
}

// keywords accepts either a delimited string or a YAML list.
type keywords []string

func (k *keywords) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.ScalarNode:
		*k = grading.ParseKeywords(value.Value)
		return nil
	case yaml.SequenceNode:
		var list []string
		if err := value.Decode(&list); err != nil {
			return err
		}
		*k = grading.NormalizeKeywords(list)
		return nil
	}
	return fmt.Errorf("line %d: keywords must be a string or a list", value.Line)
}

var difficulties = map[string]bool{"": true, "beginner": true, "intermediate": true, "advanced": true}

// LoadFile reads and validates a case pack.
func LoadFile(path string) ([]clinical.Case, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read case pack: %w", err)
	}
	cases, err := Parse(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cases, nil
}

// Parse decodes a case pack. Unknown fields are rejected so typos in
// answer-key flags do not silently produce a case without ground truth.
func Parse(r io.Reader) ([]clinical.Case, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	var pack packFile
	if err := dec.Decode(&pack); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errors.New("case pack is empty")
		}
		return nil, fmt.Errorf("parse case pack: %w", err)
	}

	out := make([]clinical.Case, 0, len(pack.Cases))
	for _, cf := range pack.Cases {
		out = append(out, cf.toCase())
	}
	if err := Validate(out); err != nil {
		return nil, err
	}
	return out, nil
}

func (cf caseFile) toCase() clinical.Case {
	c := clinical.Case{
		ID:             strings.TrimSpace(cf.ID),
		Title:          strings.TrimSpace(cf.Title),
		ChiefComplaint: cf.ChiefComplaint,
		PresentIllness: cf.PresentIllness,
		PastHistory:    cf.PastHistory,
		FamilyHistory:  cf.FamilyHistory,
		PatientAge:     cf.PatientAge,
		PatientGender:  cf.PatientGender,
		Difficulty:     strings.ToLower(strings.TrimSpace(cf.Difficulty)),
		Active:         cf.Active == nil || *cf.Active,
	}
	if c.Difficulty == "" {
		c.Difficulty = "beginner"
	}
	c.Examinations = options(clinical.KindExamination, cf.Examinations)
	c.Diagnoses = options(clinical.KindDiagnosis, cf.Diagnoses)
	c.Treatments = options(clinical.KindTreatment, cf.Treatments)
	return c
}

func options(k clinical.Kind, in []optionFile) []clinical.Option {
	out := make([]clinical.Option, 0, len(in))
	for i, of := range in {
		o := clinical.Option{
			ID:           of.ID,
			Kind:         k,
			Name:         strings.TrimSpace(of.Name),
			Description:  of.Description,
			Difficulty:   of.Difficulty,
			Type:         of.Type,
			DisplayOrder: of.DisplayOrder,
			IsCorrect:    of.IsCorrect || of.IsOptimal,
			IsRequired:   of.IsRequired,
			Score:        of.Score,
			Rationale:    strings.TrimSpace(of.Rationale),
			Keywords:     grading.NormalizeKeywords(of.Keywords),
			Hints:        [3]string{of.Hint1, of.Hint2, of.Hint3},
			Feedback:     of.Feedback,
			Result:       of.Result,
		}
		if o.DisplayOrder == 0 {
			o.DisplayOrder = i + 1
		}
		if k == clinical.KindExamination {
			o.IsCorrect = false
		} else {
			o.IsRequired = false
		}
		out = append(out, o)
	}
	return out
}

// Validate checks a set of cases for structural problems: missing or
// duplicate case ids, unnamed options, duplicate names within one option
// family and option ids reused anywhere in the set.
func Validate(cases []clinical.Case) error {
	var problems []string
	caseIDs := map[string]bool{}
	optionIDs := map[int64]string{}
	for i, c := range cases {
		where := fmt.Sprintf("case %d", i+1)
		if c.ID == "" {
			problems = append(problems, where+": id is required")
		} else {
			where = "case " + c.ID
			if caseIDs[c.ID] {
				problems = append(problems, where+": duplicate case id")
			}
			caseIDs[c.ID] = true
		}
		if c.Title == "" {
			problems = append(problems, where+": title is required")
		}
		if !difficulties[c.Difficulty] {
			problems = append(problems, where+": unknown difficulty "+c.Difficulty)
		}
		for _, k := range []clinical.Kind{clinical.KindExamination, clinical.KindDiagnosis, clinical.KindTreatment} {
			var names []string
			for j, o := range c.Options(k) {
				at := fmt.Sprintf("%s: %s %d", where, k, j+1)
				if o.Name == "" {
					problems = append(problems, at+": name is required")
					continue
				}
				for _, n := range names {
					if clinical.SameName(n, o.Name) {
						problems = append(problems, at+": duplicate name "+o.Name)
						break
					}
				}
				names = append(names, o.Name)
				if o.ID == 0 {
					continue
				}
				if prev, ok := optionIDs[o.ID]; ok {
					problems = append(problems, fmt.Sprintf("%s: option id %d already used by %s", at, o.ID, prev))
				}
				optionIDs[o.ID] = at
			}
		}
	}
	if len(problems) > 0 {
		return clinical.Invalid("case_pack", strings.Join(problems, "; "))
	}
	return nil
}

// Import upserts every case. Cases are written one at a time; a failure
// leaves earlier cases imported.
func Import(ctx context.Context, repo clinical.CaseStore, cases []clinical.Case) (int, error) {
	if err := Validate(cases); err != nil {
		return 0, err
	}
	for i, c := range cases {
		if err := repo.PutCase(ctx, c); err != nil {
			return i, fmt.Errorf("import case %s: %w", c.ID, err)
		}
	}
	return len(cases), nil
}
