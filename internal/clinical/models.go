package clinical

import (
	"encoding/json"
	"time"
)

// Stage is one phase of the clinical-reasoning workflow.
type Stage string

const (
	StageCasePresentation     Stage = "case_presentation"
	StageExaminationSelection Stage = "examination_selection"
	StageExaminationResults   Stage = "examination_results"
	StageDiagnosisReasoning   Stage = "diagnosis_reasoning"
	StageTreatmentSelection   Stage = "treatment_selection"
	StageLearningFeedback     Stage = "learning_feedback"
	StageCompleted            Stage = "completed"
)

// Stages lists every stage in workflow order.
var Stages = []Stage{
	StageCasePresentation,
	StageExaminationSelection,
	StageExaminationResults,
	StageDiagnosisReasoning,
	StageTreatmentSelection,
	StageLearningFeedback,
	StageCompleted,
}

// Valid reports whether s is a known stage.
func (s Stage) Valid() bool {
	for _, st := range Stages {
		if st == s {
			return true
		}
	}
	return false
}

// Index is the position of s in the workflow, or -1.
func (s Stage) Index() int {
	for i, st := range Stages {
		if st == s {
			return i
		}
	}
	return -1
}

// Kind distinguishes the three option families a case owns.
type Kind string

const (
	KindExamination Kind = "examination"
	KindDiagnosis   Kind = "diagnosis"
	KindTreatment   Kind = "treatment"
)

func (k Kind) Valid() bool {
	return k == KindExamination || k == KindDiagnosis || k == KindTreatment
}

// Option is an authored answer-key entry: an examination, a diagnosis or a
// treatment. Examinations use IsRequired as their ground truth; diagnoses and
// treatments use IsCorrect (a treatment is correct when it is optimal).
type Option struct {
	ID           int64     `json:"id"`
	CaseID       string    `json:"case_id"`
	Kind         Kind      `json:"kind"`
	Name         string    `json:"name"`
	Description  string    `json:"description,omitempty"`
	Difficulty   string    `json:"difficulty,omitempty"`
	Type         string    `json:"type,omitempty"` // examination_type / treatment_type
	DisplayOrder int       `json:"display_order"`
	IsCorrect    bool      `json:"is_correct"`
	IsRequired   bool      `json:"is_required"`
	Score        float64   `json:"score"` // probability / appropriateness
	Rationale    string    `json:"rationale,omitempty"`
	Keywords     []string  `json:"keywords,omitempty"`
	Hints        [3]string `json:"hints"`
	Feedback     string    `json:"feedback,omitempty"`
	Result       string    `json:"result,omitempty"` // examinations only
}

// Expected is the option's ground-truth flag for its kind.
func (o Option) Expected() bool {
	if o.Kind == KindExamination {
		return o.IsRequired
	}
	return o.IsCorrect
}

// Public strips everything that could leak the answer key.
func (o Option) Public() PublicOption {
	return PublicOption{ID: o.ID, Name: o.Name, Description: o.Description, Difficulty: o.Difficulty}
}

// PublicOption is the only option shape that crosses the wire to learners.
type PublicOption struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Difficulty  string `json:"difficulty"`
}

// Case is an authored teaching scenario with its answer-key options.
type Case struct {
	ID             string    `json:"id"`
	Title          string    `json:"title"`
	ChiefComplaint string    `json:"chief_complaint"`
	PresentIllness string    `json:"present_illness"`
	PastHistory    string    `json:"past_history,omitempty"`
	FamilyHistory  string    `json:"family_history,omitempty"`
	PatientAge     int       `json:"patient_age,omitempty"`
	PatientGender  string    `json:"patient_gender,omitempty"`
	Difficulty     string    `json:"difficulty"`
	Active         bool      `json:"active"`
	CreatedAt      time.Time `json:"created_at,omitempty"`

	Examinations []Option `json:"examinations,omitempty"`
	Diagnoses    []Option `json:"diagnoses,omitempty"`
	Treatments   []Option `json:"treatments,omitempty"`
}

// Options returns the case's options of kind k.
func (c Case) Options(k Kind) []Option {
	switch k {
	case KindExamination:
		return c.Examinations
	case KindDiagnosis:
		return c.Diagnoses
	case KindTreatment:
		return c.Treatments
	}
	return nil
}

// Expected returns the ground-truth options of kind k in display order.
func (c Case) Expected(k Kind) []Option {
	var out []Option
	for _, o := range c.Options(k) {
		if o.Expected() {
			out = append(out, o)
		}
	}
	return out
}

// Summary is the narrative-only view of a case, safe to show learners.
func (c Case) Summary() CaseSummary {
	return CaseSummary{
		ID:             c.ID,
		Title:          c.Title,
		ChiefComplaint: c.ChiefComplaint,
		PresentIllness: c.PresentIllness,
		PastHistory:    c.PastHistory,
		FamilyHistory:  c.FamilyHistory,
		PatientAge:     c.PatientAge,
		PatientGender:  c.PatientGender,
		Difficulty:     c.Difficulty,
	}
}

type CaseSummary struct {
	ID             string `json:"id"`
	Title          string `json:"title"`
	ChiefComplaint string `json:"chief_complaint"`
	PresentIllness string `json:"present_illness,omitempty"`
	PastHistory    string `json:"past_history,omitempty"`
	FamilyHistory  string `json:"family_history,omitempty"`
	PatientAge     int    `json:"patient_age,omitempty"`
	PatientGender  string `json:"patient_gender,omitempty"`
	Difficulty     string `json:"difficulty"`
}

// FeedbackType classifies feedback-log entries.
type FeedbackType string

const (
	FeedbackEncouragement FeedbackType = "encouragement"
	FeedbackGuidance      FeedbackType = "guidance"
	FeedbackCorrection    FeedbackType = "correction"
	FeedbackSummary       FeedbackType = "summary"
)

// PathEntry is one step of the append-only learning path.
type PathEntry struct {
	ID        string          `json:"id"`
	Timestamp time.Time       `json:"timestamp"`
	Run       int             `json:"run"`
	Stage     Stage           `json:"stage"`
	Action    string          `json:"action"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

// FeedbackEntry is one message the engine showed the learner.
type FeedbackEntry struct {
	ID        string       `json:"id"`
	Timestamp time.Time    `json:"timestamp"`
	Run       int          `json:"run"`
	Stage     Stage        `json:"stage"`
	Type      FeedbackType `json:"type"`
	Message   string       `json:"message"`
	Score     *float64     `json:"score,omitempty"`
}

// Session is one learner's progress through one case. It is mutated only by
// session.Machine.
type Session struct {
	ID        string `json:"id"`
	LearnerID string `json:"learner_id"`
	CaseID    string `json:"case_id"`
	Stage     Stage  `json:"stage"`
	Run       int    `json:"run"`

	ExaminationScore   float64 `json:"examination_score"`
	DiagnosisScore     float64 `json:"diagnosis_score"`
	TreatmentScore     float64 `json:"treatment_score"`
	OverallScore       float64 `json:"overall_score"`
	ExaminationPenalty float64 `json:"examination_penalty"`

	Attempts     map[Stage]int `json:"attempts"`
	GuidanceTier map[Stage]int `json:"guidance_tier"`

	SelectedExaminations []int64 `json:"selected_examinations"`
	SelectedDiagnoses    []int64 `json:"selected_diagnoses"`
	SelectedTreatments   []int64 `json:"selected_treatments"`

	LearningPath []PathEntry     `json:"learning_path"`
	Feedback     []FeedbackEntry `json:"feedback"`

	StageEnteredAt map[Stage]time.Time `json:"stage_entered_at"`
	StartedAt      time.Time           `json:"started_at"`
	CompletedAt    *time.Time          `json:"completed_at,omitempty"`
	UpdatedAt      time.Time           `json:"updated_at"`
	Version        int64               `json:"version"`
}

// Clone returns a deep copy so scoring can work on a snapshot.
func (s Session) Clone() Session {
	c := s
	c.Attempts = cloneMap(s.Attempts)
	c.GuidanceTier = cloneMap(s.GuidanceTier)
	c.StageEnteredAt = cloneMap(s.StageEnteredAt)
	c.SelectedExaminations = append([]int64(nil), s.SelectedExaminations...)
	c.SelectedDiagnoses = append([]int64(nil), s.SelectedDiagnoses...)
	c.SelectedTreatments = append([]int64(nil), s.SelectedTreatments...)
	c.LearningPath = append([]PathEntry(nil), s.LearningPath...)
	c.Feedback = append([]FeedbackEntry(nil), s.Feedback...)
	if s.CompletedAt != nil {
		t := *s.CompletedAt
		c.CompletedAt = &t
	}
	return c
}

func cloneMap[K comparable, V any](m map[K]V) map[K]V {
	out := make(map[K]V, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
