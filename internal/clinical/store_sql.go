package clinical

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

type SQLStore struct {
	db     *sql.DB
	driver string // "sqlite" or "postgres"
}

func NewSQLStore(db *sql.DB, driver string) *SQLStore {
	return &SQLStore{db: db, driver: driver}
}

func optionTable(k Kind) (string, error) {
	switch k {
	case KindExamination:
		return "examination_options", nil
	case KindDiagnosis:
		return "diagnosis_options", nil
	case KindTreatment:
		return "treatment_options", nil
	}
	return "", fmt.Errorf("unknown option kind %q", k)
}

const optionColumns = `id,case_id,name,description,difficulty,type,display_order,is_correct,is_required,score,rationale,keywords_json,hints_json,feedback,result`

// PutCase upserts the case row and replaces all of its options in one
// transaction.
func (s *SQLStore) PutCase(ctx context.Context, c Case) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	created := c.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO cases (id,title,chief_complaint,present_illness,past_history,family_history,patient_age,patient_gender,difficulty,active,created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
		ON CONFLICT (id) DO UPDATE SET title=EXCLUDED.title, chief_complaint=EXCLUDED.chief_complaint,
			present_illness=EXCLUDED.present_illness, past_history=EXCLUDED.past_history,
			family_history=EXCLUDED.family_history, patient_age=EXCLUDED.patient_age,
			patient_gender=EXCLUDED.patient_gender, difficulty=EXCLUDED.difficulty, active=EXCLUDED.active`,
		c.ID, c.Title, c.ChiefComplaint, c.PresentIllness, c.PastHistory, c.FamilyHistory,
		c.PatientAge, c.PatientGender, c.Difficulty, c.Active, created.UnixMilli())
	if err != nil {
		return fmt.Errorf("upsert case %s: %w", c.ID, err)
	}

	for _, k := range []Kind{KindExamination, KindDiagnosis, KindTreatment} {
		table, _ := optionTable(k)
		if _, err := tx.ExecContext(ctx, `DELETE FROM `+table+` WHERE case_id=$1`, c.ID); err != nil {
			return err
		}
		for _, o := range c.Options(k) {
			if err := insertOption(ctx, tx, table, c.ID, o); err != nil {
				return fmt.Errorf("insert %s %q: %w", k, o.Name, err)
			}
		}
	}
	return tx.Commit()
}

func insertOption(ctx context.Context, tx *sql.Tx, table, caseID string, o Option) error {
	kw, err := json.Marshal(o.Keywords)
	if err != nil {
		return err
	}
	hints, err := json.Marshal(o.Hints)
	if err != nil {
		return err
	}
	args := []any{caseID, o.Name, o.Description, o.Difficulty, o.Type, o.DisplayOrder,
		o.IsCorrect, o.IsRequired, o.Score, o.Rationale, string(kw), string(hints), o.Feedback, o.Result}
	if o.ID == 0 {
		_, err = tx.ExecContext(ctx, `INSERT INTO `+table+` (`+strings.TrimPrefix(optionColumns, "id,")+`)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)`, args...)
		return err
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO `+table+` (`+optionColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)`, append([]any{o.ID}, args...)...)
	return err
}

func (s *SQLStore) GetCase(ctx context.Context, id string) (Case, error) {
	row := s.db.QueryRowContext(ctx, `SELECT id,title,chief_complaint,present_illness,past_history,family_history,patient_age,patient_gender,difficulty,active,created_at
		FROM cases WHERE id=$1`, id)
	var c Case
	var created int64
	if err := row.Scan(&c.ID, &c.Title, &c.ChiefComplaint, &c.PresentIllness, &c.PastHistory, &c.FamilyHistory,
		&c.PatientAge, &c.PatientGender, &c.Difficulty, &c.Active, &created); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Case{}, NotFound("case", id)
		}
		return Case{}, err
	}
	c.CreatedAt = time.UnixMilli(created).UTC()

	var err error
	if c.Examinations, err = s.caseOptions(ctx, KindExamination, id); err != nil {
		return Case{}, err
	}
	if c.Diagnoses, err = s.caseOptions(ctx, KindDiagnosis, id); err != nil {
		return Case{}, err
	}
	if c.Treatments, err = s.caseOptions(ctx, KindTreatment, id); err != nil {
		return Case{}, err
	}
	return c, nil
}

func (s *SQLStore) caseOptions(ctx context.Context, k Kind, caseID string) ([]Option, error) {
	table, err := optionTable(k)
	if err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, `SELECT `+optionColumns+` FROM `+table+`
		WHERE case_id=$1 ORDER BY display_order, id`, caseID)
	if err != nil {
		return nil, err
	}
	return scanOptions(rows, k)
}

func scanOptions(rows *sql.Rows, k Kind) ([]Option, error) {
	defer rows.Close()
	var out []Option
	for rows.Next() {
		o := Option{Kind: k}
		var kw, hints string
		if err := rows.Scan(&o.ID, &o.CaseID, &o.Name, &o.Description, &o.Difficulty, &o.Type, &o.DisplayOrder,
			&o.IsCorrect, &o.IsRequired, &o.Score, &o.Rationale, &kw, &hints, &o.Feedback, &o.Result); err != nil {
			return nil, err
		}
		if kw != "" {
			if err := json.Unmarshal([]byte(kw), &o.Keywords); err != nil {
				return nil, fmt.Errorf("option %d keywords: %w", o.ID, err)
			}
		}
		if hints != "" {
			if err := json.Unmarshal([]byte(hints), &o.Hints); err != nil {
				return nil, fmt.Errorf("option %d hints: %w", o.ID, err)
			}
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

func (s *SQLStore) ListCases(ctx context.Context, activeOnly bool) ([]CaseSummary, error) {
	q := `SELECT id,title,chief_complaint,present_illness,past_history,family_history,patient_age,patient_gender,difficulty FROM cases`
	if activeOnly {
		q += ` WHERE active=$1`
	}
	q += ` ORDER BY id`
	var (
		rows *sql.Rows
		err  error
	)
	if activeOnly {
		rows, err = s.db.QueryContext(ctx, q, true)
	} else {
		rows, err = s.db.QueryContext(ctx, q)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []CaseSummary{}
	for rows.Next() {
		var c CaseSummary
		if err := rows.Scan(&c.ID, &c.Title, &c.ChiefComplaint, &c.PresentIllness, &c.PastHistory, &c.FamilyHistory,
			&c.PatientAge, &c.PatientGender, &c.Difficulty); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *SQLStore) DeleteCase(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM cases WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return NotFound("case", id)
	}
	return nil
}

func (s *SQLStore) QueryOptions(ctx context.Context, q OptionQuery) ([]Option, error) {
	table, err := optionTable(q.Kind)
	if err != nil {
		return nil, err
	}
	var sb strings.Builder
	args := []any{q.ExcludeCaseID}
	sb.WriteString(`SELECT ` + optionColumns + ` FROM ` + table + ` WHERE case_id<>$1`)
	args = append(args, true)
	fmt.Fprintf(&sb, ` AND case_id IN (SELECT id FROM cases WHERE active=$%d)`, len(args))
	if q.Expected != nil {
		col := "is_correct"
		if q.Kind == KindExamination {
			col = "is_required"
		}
		args = append(args, *q.Expected)
		fmt.Fprintf(&sb, ` AND %s=$%d`, col, len(args))
	}
	if len(q.IDs) > 0 {
		sb.WriteString(` AND id IN (`)
		for i, id := range q.IDs {
			if i > 0 {
				sb.WriteString(",")
			}
			args = append(args, id)
			fmt.Fprintf(&sb, "$%d", len(args))
		}
		sb.WriteString(`)`)
	}
	sb.WriteString(` ORDER BY id`)
	rows, err := s.db.QueryContext(ctx, sb.String(), args...)
	if err != nil {
		return nil, err
	}
	return scanOptions(rows, q.Kind)
}

const sessionColumns = `id,learner_id,case_id,stage,run,exam_score,diagnosis_score,treatment_score,overall_score,exam_penalty,
	attempts_json,guidance_json,selections_json,learning_path_json,feedback_json,stage_entered_json,started_at,completed_at,updated_at,version`

type selections struct {
	Examinations []int64 `json:"examinations"`
	Diagnoses    []int64 `json:"diagnoses"`
	Treatments   []int64 `json:"treatments"`
}

// sessionRow is the JSON-encoded column form of a Session.
type sessionRow struct {
	attempts, guidance, sel, path, feedback, entered string
	completed                                        sql.NullInt64
}

func encodeSession(s Session) (sessionRow, error) {
	var r sessionRow
	enc := func(v any, dst *string) error {
		b, err := json.Marshal(v)
		if err != nil {
			return err
		}
		*dst = string(b)
		return nil
	}
	for _, f := range []struct {
		v   any
		dst *string
	}{
		{s.Attempts, &r.attempts},
		{s.GuidanceTier, &r.guidance},
		{selections{s.SelectedExaminations, s.SelectedDiagnoses, s.SelectedTreatments}, &r.sel},
		{s.LearningPath, &r.path},
		{s.Feedback, &r.feedback},
		{s.StageEnteredAt, &r.entered},
	} {
		if err := enc(f.v, f.dst); err != nil {
			return sessionRow{}, err
		}
	}
	if s.CompletedAt != nil {
		r.completed = sql.NullInt64{Int64: s.CompletedAt.UnixMilli(), Valid: true}
	}
	return r, nil
}

func (s *SQLStore) GetSession(ctx context.Context, learnerID, caseID string) (Session, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM clinical_sessions WHERE learner_id=$1 AND case_id=$2`,
		learnerID, caseID)
	out, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Session{}, NotFound("session", learnerID+"|"+caseID)
	}
	return out, err
}

// ListSessions returns every session of one learner, ordered by case id.
func (s *SQLStore) ListSessions(ctx context.Context, learnerID string) ([]Session, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+sessionColumns+` FROM clinical_sessions WHERE learner_id=$1 ORDER BY case_id`,
		learnerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, sess)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (Session, error) {
	var (
		out              Session
		r                sessionRow
		started, updated int64
	)
	if err := row.Scan(&out.ID, &out.LearnerID, &out.CaseID, &out.Stage, &out.Run,
		&out.ExaminationScore, &out.DiagnosisScore, &out.TreatmentScore, &out.OverallScore, &out.ExaminationPenalty,
		&r.attempts, &r.guidance, &r.sel, &r.path, &r.feedback, &r.entered,
		&started, &r.completed, &updated, &out.Version); err != nil {
		return Session{}, err
	}
	var sel selections
	for _, f := range []struct {
		src string
		dst any
	}{
		{r.attempts, &out.Attempts},
		{r.guidance, &out.GuidanceTier},
		{r.sel, &sel},
		{r.path, &out.LearningPath},
		{r.feedback, &out.Feedback},
		{r.entered, &out.StageEnteredAt},
	} {
		if err := json.Unmarshal([]byte(f.src), f.dst); err != nil {
			return Session{}, fmt.Errorf("decode session %s: %w", out.ID, err)
		}
	}
	out.SelectedExaminations = sel.Examinations
	out.SelectedDiagnoses = sel.Diagnoses
	out.SelectedTreatments = sel.Treatments
	out.StartedAt = time.UnixMilli(started).UTC()
	out.UpdatedAt = time.UnixMilli(updated).UTC()
	if r.completed.Valid {
		t := time.UnixMilli(r.completed.Int64).UTC()
		out.CompletedAt = &t
	}
	return out, nil
}

func (s *SQLStore) CreateSession(ctx context.Context, sess Session) (Session, error) {
	r, err := encodeSession(sess)
	if err != nil {
		return Session{}, err
	}
	sess.Version = 1
	_, err = s.db.ExecContext(ctx, `INSERT INTO clinical_sessions (`+sessionColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20)`,
		sess.ID, sess.LearnerID, sess.CaseID, string(sess.Stage), sess.Run,
		sess.ExaminationScore, sess.DiagnosisScore, sess.TreatmentScore, sess.OverallScore, sess.ExaminationPenalty,
		r.attempts, r.guidance, r.sel, r.path, r.feedback, r.entered,
		sess.StartedAt.UnixMilli(), r.completed, sess.UpdatedAt.UnixMilli(), sess.Version)
	if err != nil {
		if isUniqueViolation(err) {
			return Session{}, Conflict("session already exists for learner %s on case %s", sess.LearnerID, sess.CaseID)
		}
		return Session{}, err
	}
	return sess, nil
}

// UpdateSession writes sess only if the stored version still equals
// sess.Version. Zero affected rows means another writer won.
func (s *SQLStore) UpdateSession(ctx context.Context, sess Session) (Session, error) {
	r, err := encodeSession(sess)
	if err != nil {
		return Session{}, err
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Session{}, err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `UPDATE clinical_sessions SET stage=$1, run=$2,
			exam_score=$3, diagnosis_score=$4, treatment_score=$5, overall_score=$6, exam_penalty=$7,
			attempts_json=$8, guidance_json=$9, selections_json=$10, learning_path_json=$11, feedback_json=$12,
			stage_entered_json=$13, completed_at=$14, updated_at=$15, version=version+1
		WHERE id=$16 AND version=$17`,
		string(sess.Stage), sess.Run,
		sess.ExaminationScore, sess.DiagnosisScore, sess.TreatmentScore, sess.OverallScore, sess.ExaminationPenalty,
		r.attempts, r.guidance, r.sel, r.path, r.feedback, r.entered,
		r.completed, sess.UpdatedAt.UnixMilli(), sess.ID, sess.Version)
	if err != nil {
		return Session{}, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return Session{}, err
	}
	if n == 0 {
		return Session{}, Conflict("session %s was modified concurrently", sess.ID)
	}
	if err := tx.Commit(); err != nil {
		return Session{}, err
	}
	sess.Version++
	return sess, nil
}

func (s *SQLStore) DeleteSession(ctx context.Context, learnerID, caseID string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM clinical_sessions WHERE learner_id=$1 AND case_id=$2`, learnerID, caseID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return NotFound("session", learnerID+"|"+caseID)
	}
	return nil
}

func isUniqueViolation(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique") || strings.Contains(msg, "duplicate key")
}
