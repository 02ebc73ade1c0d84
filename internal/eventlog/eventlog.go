// Package eventlog appends durable domain events. Downstream reporting reads
// the table directly; the engine only ever writes.
package eventlog

import (
	"context"
	"database/sql"
	"sync"
	"time"
)

const (
	TypeAttemptRecorded     = "AttemptRecorded"
	TypeRoleplayEvaluated   = "RoleplayEvaluated"
	TypeEnrollmentCompleted = "EnrollmentCompleted"
	TypeEnrollmentRestarted = "EnrollmentRestarted"
)

type Event struct {
	Offset    int64
	Type      string
	Key       string // natural key: enrollment or session id
	DataJSON  string
	CreatedAt int64
}

// Log is the write side. Appends must never block domain writes on
// downstream consumers.
type Log interface {
	Append(ctx context.Context, e Event) error
}

type Repo struct{ db *sql.DB }

func NewRepo(db *sql.DB) *Repo { return &Repo{db: db} }

func (r *Repo) Append(ctx context.Context, e Event) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO event_log (typ, key, data, created_at)
		 VALUES ($1,$2,$3,$4)`,
		e.Type, e.Key, e.DataJSON, time.Now().Unix())
	return err
}

// Memory keeps events in process for dev mode and tests.
type Memory struct {
	mu     sync.Mutex
	events []Event
}

func NewMemory() *Memory { return &Memory{} }

func (m *Memory) Append(_ context.Context, e Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e.Offset = int64(len(m.events) + 1)
	e.CreatedAt = time.Now().Unix()
	m.events = append(m.events, e)
	return nil
}

// Events returns a copy of everything appended so far.
func (m *Memory) Events() []Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Event, len(m.events))
	copy(out, m.events)
	return out
}
