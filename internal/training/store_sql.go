package training

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"
)

// SQLStore persists the training domain over database/sql. Placeholders are
// written as $1..$n, which both the pgx stdlib driver and modernc sqlite
// accept, so one implementation serves both backends. Step payloads are kept
// as one JSON document per course; attempts and fragments are real rows
// because aggregation queries need them.
type SQLStore struct {
	db *sql.DB
}

func NewSQLStore(db *sql.DB) *SQLStore { return &SQLStore{db: db} }

var _ Store = (*SQLStore)(nil)

func (s *SQLStore) PutCourse(ctx context.Context, c Course) error {
	stepsJSON, err := json.Marshal(c.Steps)
	if err != nil {
		return fmt.Errorf("encode steps: %w", err)
	}
	if c.CreatedAt == 0 {
		c.CreatedAt = time.Now().Unix()
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO courses (id, title, curator_id, published, steps_json, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET
		  title = excluded.title,
		  curator_id = excluded.curator_id,
		  published = excluded.published,
		  steps_json = excluded.steps_json`,
		c.ID, c.Title, c.CuratorID, c.Published, string(stepsJSON), c.CreatedAt)
	return err
}

func (s *SQLStore) GetCourse(ctx context.Context, id string) (Course, error) {
	var c Course
	var stepsJSON string
	err := s.db.QueryRowContext(ctx, `
		SELECT id, title, curator_id, published, steps_json, created_at
		FROM courses WHERE id = $1`, id).
		Scan(&c.ID, &c.Title, &c.CuratorID, &c.Published, &stepsJSON, &c.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Course{}, ErrNotFound
	}
	if err != nil {
		return Course{}, err
	}
	if err := json.Unmarshal([]byte(stepsJSON), &c.Steps); err != nil {
		return Course{}, fmt.Errorf("decode steps for %s: %w", id, err)
	}
	return c, nil
}

func (s *SQLStore) ListCourses(ctx context.Context, opts ListOpts) ([]CourseSummary, error) {
	q := `SELECT id, title, curator_id, published, steps_json FROM courses`
	var conds []string
	var args []any
	if opts.CuratorID != "" {
		args = append(args, opts.CuratorID)
		conds = append(conds, "curator_id = $"+strconv.Itoa(len(args)))
	}
	if opts.PublishedOnly {
		conds = append(conds, "published = TRUE")
	}
	for i, c := range conds {
		if i == 0 {
			q += " WHERE " + c
		} else {
			q += " AND " + c
		}
	}
	q += " ORDER BY id"

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []CourseSummary
	for rows.Next() {
		var cs CourseSummary
		var stepsJSON string
		if err := rows.Scan(&cs.ID, &cs.Title, &cs.CuratorID, &cs.Published, &stepsJSON); err != nil {
			return nil, err
		}
		var steps []Step
		if err := json.Unmarshal([]byte(stepsJSON), &steps); err != nil {
			return nil, fmt.Errorf("decode steps for %s: %w", cs.ID, err)
		}
		cs.StepCount = len(steps)
		out = append(out, cs)
	}
	return out, rows.Err()
}

func (s *SQLStore) ReplaceSteps(ctx context.Context, courseID string, steps []Step) error {
	stepsJSON, err := json.Marshal(steps)
	if err != nil {
		return fmt.Errorf("encode steps: %w", err)
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE courses SET steps_json = $2 WHERE id = $1`, courseID, string(stepsJSON))
	if err != nil {
		return err
	}
	return wantRow(res)
}

func (s *SQLStore) PublishCourse(ctx context.Context, id string) (Course, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE courses SET published = TRUE WHERE id = $1`, id)
	if err != nil {
		return Course{}, err
	}
	if err := wantRow(res); err != nil {
		return Course{}, err
	}
	return s.GetCourse(ctx, id)
}

func (s *SQLStore) CreateEnrollment(ctx context.Context, e Enrollment) error {
	now := time.Now().Unix()
	if e.CreatedAt == 0 {
		e.CreatedAt = now
	}
	if e.UpdatedAt == 0 {
		e.UpdatedAt = now
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO enrollments (
		  id, learner_id, course_id, pass, progress_pct, last_step_index,
		  is_completed, correct_answers, total_answers, score_points,
		  last_success_rate, best_success_rate, created_at, updated_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)`,
		e.ID, e.LearnerID, e.CourseID, e.Pass, e.ProgressPct, e.LastStepIndex,
		e.IsCompleted, e.CorrectAnswers, e.TotalAnswers, e.ScorePoints,
		e.LastSuccessRate, e.BestSuccessRate, e.CreatedAt, e.UpdatedAt)
	return err
}

const enrollmentCols = `
	id, learner_id, course_id, pass, progress_pct, last_step_index,
	is_completed, correct_answers, total_answers, score_points,
	last_success_rate, best_success_rate, created_at, updated_at`

func scanEnrollment(row interface{ Scan(...any) error }) (Enrollment, error) {
	var e Enrollment
	err := row.Scan(
		&e.ID, &e.LearnerID, &e.CourseID, &e.Pass, &e.ProgressPct, &e.LastStepIndex,
		&e.IsCompleted, &e.CorrectAnswers, &e.TotalAnswers, &e.ScorePoints,
		&e.LastSuccessRate, &e.BestSuccessRate, &e.CreatedAt, &e.UpdatedAt)
	return e, err
}

func (s *SQLStore) GetEnrollment(ctx context.Context, id string) (Enrollment, error) {
	e, err := scanEnrollment(s.db.QueryRowContext(ctx,
		`SELECT `+enrollmentCols+` FROM enrollments WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return Enrollment{}, ErrNotFound
	}
	return e, err
}

func (s *SQLStore) FindEnrollment(ctx context.Context, learnerID, courseID string) (Enrollment, error) {
	e, err := scanEnrollment(s.db.QueryRowContext(ctx,
		`SELECT `+enrollmentCols+` FROM enrollments WHERE learner_id = $1 AND course_id = $2`,
		learnerID, courseID))
	if errors.Is(err, sql.ErrNoRows) {
		return Enrollment{}, ErrNotFound
	}
	return e, err
}

func (s *SQLStore) UpdateEnrollment(ctx context.Context, e Enrollment) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE enrollments SET
		  pass = $2, progress_pct = $3, last_step_index = $4, is_completed = $5,
		  correct_answers = $6, total_answers = $7, score_points = $8,
		  last_success_rate = $9, best_success_rate = $10, updated_at = $11
		WHERE id = $1`,
		e.ID, e.Pass, e.ProgressPct, e.LastStepIndex, e.IsCompleted,
		e.CorrectAnswers, e.TotalAnswers, e.ScorePoints,
		e.LastSuccessRate, e.BestSuccessRate, time.Now().Unix())
	if err != nil {
		return err
	}
	return wantRow(res)
}

func (s *SQLStore) ListEnrollments(ctx context.Context, f EnrollmentFilter) ([]Enrollment, error) {
	q := `SELECT ` + enrollmentCols + ` FROM enrollments`
	var conds []string
	var args []any
	if f.LearnerID != "" {
		args = append(args, f.LearnerID)
		conds = append(conds, "learner_id = $"+strconv.Itoa(len(args)))
	}
	if f.CourseID != "" {
		args = append(args, f.CourseID)
		conds = append(conds, "course_id = $"+strconv.Itoa(len(args)))
	}
	for i, c := range conds {
		if i == 0 {
			q += " WHERE " + c
		} else {
			q += " AND " + c
		}
	}
	q += " ORDER BY id"

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Enrollment
	for rows.Next() {
		e, err := scanEnrollment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *SQLStore) AppendAttempt(ctx context.Context, a DrillAttempt) error {
	if a.CreatedAt == 0 {
		a.CreatedAt = time.Now().Unix()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO drill_attempts (
		  id, enrollment_id, step_id, pass, attempt_type, is_correct,
		  user_answer, score, tag, grading_degraded, created_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`,
		a.ID, a.EnrollmentID, a.StepID, a.Pass, string(a.AttemptType), a.IsCorrect,
		a.UserAnswer, a.Score, a.Tag, a.GradingDegraded, a.CreatedAt)
	return err
}

const attemptCols = `
	a.id, a.enrollment_id, a.step_id, a.pass, a.attempt_type, a.is_correct,
	a.user_answer, a.score, a.tag, a.grading_degraded, a.created_at`

func scanAttempt(row interface{ Scan(...any) error }) (DrillAttempt, error) {
	var a DrillAttempt
	var typ string
	err := row.Scan(
		&a.ID, &a.EnrollmentID, &a.StepID, &a.Pass, &typ, &a.IsCorrect,
		&a.UserAnswer, &a.Score, &a.Tag, &a.GradingDegraded, &a.CreatedAt)
	a.AttemptType = AttemptType(typ)
	return a, err
}

func (s *SQLStore) ListEpisode(ctx context.Context, enrollmentID, stepID string, pass int) ([]DrillAttempt, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+attemptCols+` FROM drill_attempts a
		WHERE a.enrollment_id = $1 AND a.step_id = $2 AND a.pass = $3
		ORDER BY a.created_at, a.id`,
		enrollmentID, stepID, pass)
	if err != nil {
		return nil, err
	}
	return collectAttempts(rows)
}

func (s *SQLStore) ListAttemptsByLearner(ctx context.Context, learnerID string) ([]DrillAttempt, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+attemptCols+` FROM drill_attempts a
		JOIN enrollments e ON e.id = a.enrollment_id
		WHERE e.learner_id = $1
		ORDER BY a.created_at, a.id`, learnerID)
	if err != nil {
		return nil, err
	}
	return collectAttempts(rows)
}

func (s *SQLStore) ListAttemptsByCourse(ctx context.Context, courseID string) ([]DrillAttempt, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+attemptCols+` FROM drill_attempts a
		JOIN enrollments e ON e.id = a.enrollment_id
		WHERE e.course_id = $1
		ORDER BY a.created_at, a.id`, courseID)
	if err != nil {
		return nil, err
	}
	return collectAttempts(rows)
}

func collectAttempts(rows *sql.Rows) ([]DrillAttempt, error) {
	defer rows.Close()
	var out []DrillAttempt
	for rows.Next() {
		a, err := scanAttempt(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *SQLStore) ReplaceFragments(ctx context.Context, courseID string, frags []KnowledgeFragment) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM knowledge_fragments WHERE course_id = $1`, courseID); err != nil {
		return err
	}
	now := time.Now().Unix()
	for _, f := range frags {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO knowledge_fragments (id, course_id, tag, seq, content, created_at)
			VALUES ($1,$2,$3,$4,$5,$6)`,
			f.ID, courseID, f.Tag, f.Seq, f.Content, now); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *SQLStore) ListFragments(ctx context.Context, courseID string) ([]KnowledgeFragment, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, course_id, tag, seq, content
		FROM knowledge_fragments WHERE course_id = $1 ORDER BY seq`, courseID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []KnowledgeFragment
	for rows.Next() {
		var f KnowledgeFragment
		if err := rows.Scan(&f.ID, &f.CourseID, &f.Tag, &f.Seq, &f.Content); err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

func (s *SQLStore) PutMasterySnapshot(ctx context.Context, courseID, statsJSON string, computedAt int64) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO mastery_snapshots (course_id, stats_json, computed_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (course_id) DO UPDATE SET
		  stats_json = excluded.stats_json,
		  computed_at = excluded.computed_at`,
		courseID, statsJSON, computedAt)
	return err
}

func (s *SQLStore) GetMasterySnapshot(ctx context.Context, courseID string) (string, int64, error) {
	var statsJSON string
	var at int64
	err := s.db.QueryRowContext(ctx, `
		SELECT stats_json, computed_at FROM mastery_snapshots WHERE course_id = $1`,
		courseID).Scan(&statsJSON, &at)
	if errors.Is(err, sql.ErrNoRows) {
		return "", 0, ErrNotFound
	}
	return statsJSON, at, err
}

func wantRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
