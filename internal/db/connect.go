package db

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/jackc/pgx/v5/stdlib" // driver: pgx
	_ "modernc.org/sqlite"             // driver: sqlite
)

type Driver string

const (
	DriverSQLite   Driver = "sqlite"
	DriverPostgres Driver = "postgres"
)

// Open opens a DB and ensures schema exists.
func Open(ctx context.Context, driver Driver, dsn string) (*sql.DB, error) {
	var drvName string
	switch driver {
	case DriverSQLite:
		drvName = "sqlite" // modernc driver
		if dsn == "" {
			dsn = "file:clinical.db?cache=shared&mode=rwc&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)"
		}
	case DriverPostgres:
		drvName = "pgx" // pgx stdlib driver
		if dsn == "" {
			dsn = "postgres://localhost:5432/clinical?sslmode=disable"
		}
	default:
		return nil, fmt.Errorf("unsupported driver: %s", driver)
	}

	db, err := sql.Open(drvName, dsn)
	if err != nil {
		return nil, err
	}
	if driver == DriverSQLite {
		// a single writer avoids SQLITE_BUSY under concurrent submissions
		db.SetMaxOpenConns(1)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, err
	}

	if err := ensureSchema(ctx, db, driver); err != nil {
		db.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}
	return db, nil
}

func ensureSchema(ctx context.Context, db *sql.DB, driver Driver) error {
	var schema string
	switch driver {
	case DriverSQLite:
		schema = schemaSQLite
	case DriverPostgres:
		schema = schemaPostgres
	}
	_, err := db.ExecContext(ctx, schema)
	return err
}

const optionColumnsSQLite = `
  case_id TEXT NOT NULL REFERENCES cases(id) ON DELETE CASCADE,
  name TEXT NOT NULL,
  description TEXT NOT NULL DEFAULT '',
  difficulty TEXT NOT NULL DEFAULT '',
  type TEXT NOT NULL DEFAULT '',
  display_order INTEGER NOT NULL DEFAULT 0,
  is_correct INTEGER NOT NULL DEFAULT 0,
  is_required INTEGER NOT NULL DEFAULT 0,
  score REAL NOT NULL DEFAULT 0,
  rationale TEXT NOT NULL DEFAULT '',
  keywords_json TEXT NOT NULL DEFAULT '[]',
  hints_json TEXT NOT NULL DEFAULT '["","",""]',
  feedback TEXT NOT NULL DEFAULT '',
  result TEXT NOT NULL DEFAULT ''
`

const schemaSQLite = `
PRAGMA foreign_keys=ON;

CREATE TABLE IF NOT EXISTS cases (
  id TEXT PRIMARY KEY,
  title TEXT NOT NULL,
  chief_complaint TEXT NOT NULL DEFAULT '',
  present_illness TEXT NOT NULL DEFAULT '',
  past_history TEXT NOT NULL DEFAULT '',
  family_history TEXT NOT NULL DEFAULT '',
  patient_age INTEGER NOT NULL DEFAULT 0,
  patient_gender TEXT NOT NULL DEFAULT '',
  difficulty TEXT NOT NULL DEFAULT 'beginner',
  active INTEGER NOT NULL DEFAULT 1,
  created_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS examination_options (
  id INTEGER PRIMARY KEY AUTOINCREMENT,` + optionColumnsSQLite + `);
CREATE TABLE IF NOT EXISTS diagnosis_options (
  id INTEGER PRIMARY KEY AUTOINCREMENT,` + optionColumnsSQLite + `);
CREATE TABLE IF NOT EXISTS treatment_options (
  id INTEGER PRIMARY KEY AUTOINCREMENT,` + optionColumnsSQLite + `);

CREATE INDEX IF NOT EXISTS idx_exam_opts_case ON examination_options(case_id);
CREATE INDEX IF NOT EXISTS idx_dx_opts_case ON diagnosis_options(case_id);
CREATE INDEX IF NOT EXISTS idx_tx_opts_case ON treatment_options(case_id);

CREATE TABLE IF NOT EXISTS users (
  id TEXT PRIMARY KEY,
  username TEXT NOT NULL UNIQUE,
  role TEXT NOT NULL,
  password_hash TEXT NOT NULL,
  created_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS clinical_sessions (
  id TEXT PRIMARY KEY,
  learner_id TEXT NOT NULL,
  case_id TEXT NOT NULL REFERENCES cases(id) ON DELETE CASCADE,
  stage TEXT NOT NULL,
  run INTEGER NOT NULL DEFAULT 1,
  exam_score REAL NOT NULL DEFAULT 0,
  diagnosis_score REAL NOT NULL DEFAULT 0,
  treatment_score REAL NOT NULL DEFAULT 0,
  overall_score REAL NOT NULL DEFAULT 0,
  exam_penalty REAL NOT NULL DEFAULT 0,
  attempts_json TEXT NOT NULL,
  guidance_json TEXT NOT NULL,
  selections_json TEXT NOT NULL,
  learning_path_json TEXT NOT NULL,
  feedback_json TEXT NOT NULL,
  stage_entered_json TEXT NOT NULL,
  started_at INTEGER NOT NULL,
  completed_at INTEGER,
  updated_at INTEGER NOT NULL,
  version INTEGER NOT NULL DEFAULT 1,
  UNIQUE (learner_id, case_id)
);

CREATE TABLE IF NOT EXISTS event_log (
  seq INTEGER PRIMARY KEY AUTOINCREMENT,
  site_id TEXT NOT NULL DEFAULT 'local',
  typ TEXT NOT NULL,                         -- e.g., StageCompleted
  key TEXT NOT NULL,                         -- natural key: session id
  data TEXT NOT NULL,                        -- JSON payload
  created_at INTEGER NOT NULL
);
`

const optionColumnsPostgres = `
  case_id TEXT NOT NULL REFERENCES cases(id) ON DELETE CASCADE,
  name TEXT NOT NULL,
  description TEXT NOT NULL DEFAULT '',
  difficulty TEXT NOT NULL DEFAULT '',
  type TEXT NOT NULL DEFAULT '',
  display_order INTEGER NOT NULL DEFAULT 0,
  is_correct BOOLEAN NOT NULL DEFAULT FALSE,
  is_required BOOLEAN NOT NULL DEFAULT FALSE,
  score DOUBLE PRECISION NOT NULL DEFAULT 0,
  rationale TEXT NOT NULL DEFAULT '',
  keywords_json TEXT NOT NULL DEFAULT '[]',
  hints_json TEXT NOT NULL DEFAULT '["","",""]',
  feedback TEXT NOT NULL DEFAULT '',
  result TEXT NOT NULL DEFAULT ''
`

const schemaPostgres = `
CREATE TABLE IF NOT EXISTS cases (
  id TEXT PRIMARY KEY,
  title TEXT NOT NULL,
  chief_complaint TEXT NOT NULL DEFAULT '',
  present_illness TEXT NOT NULL DEFAULT '',
  past_history TEXT NOT NULL DEFAULT '',
  family_history TEXT NOT NULL DEFAULT '',
  patient_age INTEGER NOT NULL DEFAULT 0,
  patient_gender TEXT NOT NULL DEFAULT '',
  difficulty TEXT NOT NULL DEFAULT 'beginner',
  active BOOLEAN NOT NULL DEFAULT TRUE,
  created_at BIGINT NOT NULL
);

CREATE TABLE IF NOT EXISTS examination_options (
  id BIGINT GENERATED BY DEFAULT AS IDENTITY PRIMARY KEY,` + optionColumnsPostgres + `);
CREATE TABLE IF NOT EXISTS diagnosis_options (
  id BIGINT GENERATED BY DEFAULT AS IDENTITY PRIMARY KEY,` + optionColumnsPostgres + `);
CREATE TABLE IF NOT EXISTS treatment_options (
  id BIGINT GENERATED BY DEFAULT AS IDENTITY PRIMARY KEY,` + optionColumnsPostgres + `);

CREATE INDEX IF NOT EXISTS idx_exam_opts_case ON examination_options(case_id);
CREATE INDEX IF NOT EXISTS idx_dx_opts_case ON diagnosis_options(case_id);
CREATE INDEX IF NOT EXISTS idx_tx_opts_case ON treatment_options(case_id);

CREATE TABLE IF NOT EXISTS users (
  id TEXT PRIMARY KEY,
  username TEXT NOT NULL UNIQUE,
  role TEXT NOT NULL,
  password_hash TEXT NOT NULL,
  created_at BIGINT NOT NULL
);

CREATE TABLE IF NOT EXISTS clinical_sessions (
  id TEXT PRIMARY KEY,
  learner_id TEXT NOT NULL,
  case_id TEXT NOT NULL REFERENCES cases(id) ON DELETE CASCADE,
  stage TEXT NOT NULL,
  run INTEGER NOT NULL DEFAULT 1,
  exam_score DOUBLE PRECISION NOT NULL DEFAULT 0,
  diagnosis_score DOUBLE PRECISION NOT NULL DEFAULT 0,
  treatment_score DOUBLE PRECISION NOT NULL DEFAULT 0,
  overall_score DOUBLE PRECISION NOT NULL DEFAULT 0,
  exam_penalty DOUBLE PRECISION NOT NULL DEFAULT 0,
  attempts_json TEXT NOT NULL,
  guidance_json TEXT NOT NULL,
  selections_json TEXT NOT NULL,
  learning_path_json TEXT NOT NULL,
  feedback_json TEXT NOT NULL,
  stage_entered_json TEXT NOT NULL,
  started_at BIGINT NOT NULL,
  completed_at BIGINT,
  updated_at BIGINT NOT NULL,
  version BIGINT NOT NULL DEFAULT 1,
  UNIQUE (learner_id, case_id)
);

CREATE TABLE IF NOT EXISTS event_log (
  seq BIGSERIAL PRIMARY KEY,
  site_id TEXT NOT NULL DEFAULT 'local',
  typ TEXT NOT NULL,
  key TEXT NOT NULL,
  data TEXT NOT NULL,
  created_at BIGINT NOT NULL
);
`
