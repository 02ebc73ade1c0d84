package db

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

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
			dsn = "file:skillpilot.db?cache=shared&mode=rwc&_pragma=busy_timeout(5000)"
		}
	case DriverPostgres:
		drvName = "pgx" // pgx stdlib driver
		if dsn == "" {
			dsn = "postgres://localhost:5432/skillpilot?sslmode=disable"
		}
	default:
		return nil, fmt.Errorf("unsupported driver: %s", driver)
	}

	db, err := sql.Open(drvName, dsn)
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		return nil, err
	}

	if err := ensureSchema(ctx, db, driver); err != nil {
		return nil, err
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
	// Run as one script; if the driver rejects multi-statement exec, fall back
	// to splitting on semicolons (sufficient for simple DDL).
	if _, err := db.ExecContext(ctx, schema); err != nil {
		for _, stmt := range strings.Split(schema, ";") {
			trim := strings.TrimSpace(stmt)
			if trim == "" {
				continue
			}
			if _, e := db.ExecContext(ctx, trim); e != nil {
				return fmt.Errorf("schema: failed at %q: %w", firstLine(trim), e)
			}
		}
	}
	return nil
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}

const schemaSQLite = `
PRAGMA foreign_keys=ON;

CREATE TABLE IF NOT EXISTS courses (
  id TEXT PRIMARY KEY,
  title TEXT NOT NULL,
  curator_id TEXT NOT NULL,
  published INTEGER NOT NULL DEFAULT 0,
  steps_json TEXT NOT NULL,
  created_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS enrollments (
  id TEXT PRIMARY KEY,
  learner_id TEXT NOT NULL,
  course_id TEXT NOT NULL REFERENCES courses(id) ON DELETE CASCADE,
  pass INTEGER NOT NULL DEFAULT 1,
  progress_pct INTEGER NOT NULL DEFAULT 0,
  last_step_index INTEGER NOT NULL DEFAULT 0,
  is_completed INTEGER NOT NULL DEFAULT 0,
  correct_answers INTEGER NOT NULL DEFAULT 0,
  total_answers INTEGER NOT NULL DEFAULT 0,
  score_points INTEGER NOT NULL DEFAULT 0,
  last_success_rate REAL NOT NULL DEFAULT 0,
  best_success_rate REAL NOT NULL DEFAULT 0,
  created_at INTEGER NOT NULL,
  updated_at INTEGER NOT NULL,
  UNIQUE (learner_id, course_id)
);

CREATE TABLE IF NOT EXISTS drill_attempts (
  id TEXT PRIMARY KEY,
  enrollment_id TEXT NOT NULL REFERENCES enrollments(id) ON DELETE CASCADE,
  step_id TEXT NOT NULL,
  pass INTEGER NOT NULL DEFAULT 1,
  attempt_type TEXT NOT NULL,
  is_correct INTEGER NOT NULL,
  user_answer TEXT NOT NULL,
  score INTEGER NOT NULL,
  tag TEXT NOT NULL,
  grading_degraded INTEGER NOT NULL DEFAULT 0,
  created_at INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS drill_attempts_episode_idx
  ON drill_attempts (enrollment_id, step_id, pass);

CREATE TABLE IF NOT EXISTS knowledge_fragments (
  id TEXT PRIMARY KEY,
  course_id TEXT NOT NULL REFERENCES courses(id) ON DELETE CASCADE,
  tag TEXT NOT NULL,
  seq INTEGER NOT NULL,
  content TEXT NOT NULL,
  created_at INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS knowledge_fragments_course_idx
  ON knowledge_fragments (course_id, seq);

CREATE TABLE IF NOT EXISTS event_log (
  offset INTEGER PRIMARY KEY AUTOINCREMENT, -- BIGSERIAL in Postgres
  typ TEXT NOT NULL,                        -- e.g., AttemptRecorded
  key TEXT NOT NULL,                        -- natural key: enrollmentID or sessionID
  data TEXT NOT NULL,                       -- JSON payload
  created_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS mastery_snapshots (
  course_id TEXT PRIMARY KEY REFERENCES courses(id) ON DELETE CASCADE,
  stats_json TEXT NOT NULL,
  computed_at INTEGER NOT NULL
);
`

const schemaPostgres = `
CREATE TABLE IF NOT EXISTS courses (
  id TEXT PRIMARY KEY,
  title TEXT NOT NULL,
  curator_id TEXT NOT NULL,
  published BOOLEAN NOT NULL DEFAULT FALSE,
  steps_json TEXT NOT NULL,
  created_at BIGINT NOT NULL
);

CREATE TABLE IF NOT EXISTS enrollments (
  id TEXT PRIMARY KEY,
  learner_id TEXT NOT NULL,
  course_id TEXT NOT NULL REFERENCES courses(id) ON DELETE CASCADE,
  pass INTEGER NOT NULL DEFAULT 1,
  progress_pct INTEGER NOT NULL DEFAULT 0,
  last_step_index INTEGER NOT NULL DEFAULT 0,
  is_completed BOOLEAN NOT NULL DEFAULT FALSE,
  correct_answers INTEGER NOT NULL DEFAULT 0,
  total_answers INTEGER NOT NULL DEFAULT 0,
  score_points INTEGER NOT NULL DEFAULT 0,
  last_success_rate DOUBLE PRECISION NOT NULL DEFAULT 0,
  best_success_rate DOUBLE PRECISION NOT NULL DEFAULT 0,
  created_at BIGINT NOT NULL,
  updated_at BIGINT NOT NULL,
  UNIQUE (learner_id, course_id)
);

CREATE TABLE IF NOT EXISTS drill_attempts (
  id TEXT PRIMARY KEY,
  enrollment_id TEXT NOT NULL REFERENCES enrollments(id) ON DELETE CASCADE,
  step_id TEXT NOT NULL,
  pass INTEGER NOT NULL DEFAULT 1,
  attempt_type TEXT NOT NULL,
  is_correct BOOLEAN NOT NULL,
  user_answer TEXT NOT NULL,
  score INTEGER NOT NULL,
  tag TEXT NOT NULL,
  grading_degraded BOOLEAN NOT NULL DEFAULT FALSE,
  created_at BIGINT NOT NULL
);

CREATE INDEX IF NOT EXISTS drill_attempts_episode_idx
  ON drill_attempts (enrollment_id, step_id, pass);

CREATE TABLE IF NOT EXISTS knowledge_fragments (
  id TEXT PRIMARY KEY,
  course_id TEXT NOT NULL REFERENCES courses(id) ON DELETE CASCADE,
  tag TEXT NOT NULL,
  seq INTEGER NOT NULL,
  content TEXT NOT NULL,
  created_at BIGINT NOT NULL
);

CREATE INDEX IF NOT EXISTS knowledge_fragments_course_idx
  ON knowledge_fragments (course_id, seq);

CREATE TABLE IF NOT EXISTS event_log (
  "offset" BIGSERIAL PRIMARY KEY,
  typ TEXT NOT NULL,
  key TEXT NOT NULL,
  data TEXT NOT NULL,
  created_at BIGINT NOT NULL
);

CREATE TABLE IF NOT EXISTS mastery_snapshots (
  course_id TEXT PRIMARY KEY REFERENCES courses(id) ON DELETE CASCADE,
  stats_json TEXT NOT NULL,
  computed_at BIGINT NOT NULL
);
`
