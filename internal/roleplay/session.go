// Package roleplay runs scripted dialogue practice: a fixed six-turn
// exchange between the learner and an AI persona, closed by a structured
// evaluation. Sessions live in memory only; the evaluation is the sole
// durable trace.
package roleplay

import (
	"errors"
	"time"

	"github.com/skillpilot/skillpilot-core/internal/training"
)

// State is the explicit session lifecycle. Transitions only move forward:
// scenario -> dialogue (opening turn committed) -> evaluated.
type State string

const (
	StateScenario  State = "scenario"
	StateDialogue  State = "dialogue"
	StateEvaluated State = "evaluated"
)

const (
	RoleAI      = "ai"
	RoleLearner = "learner"
)

var (
	// ErrTurnInFlight rejects a second turn for a session whose AI call has
	// not resolved yet.
	ErrTurnInFlight = errors.New("turn already in flight")

	// ErrSessionExpired marks a session dropped by the TTL. The learner
	// starts over; nothing was recorded.
	ErrSessionExpired = errors.New("session expired")

	ErrEmptyTurn = errors.New("empty turn text")
)

type Turn struct {
	Role string `json:"role"`
	Text string `json:"text"`
}

// Evaluation is the durable outcome of a finished dialogue. Degraded marks
// the fixed neutral fallback used when the model failed to produce one.
type Evaluation struct {
	Score         int      `json:"score"`
	Verdict       string   `json:"verdict"`
	Strengths     []string `json:"strengths"`
	Improvements  []string `json:"improvements"`
	BetterExample string   `json:"better_example,omitempty"`
	Degraded      bool     `json:"degraded,omitempty"`
}

// session is the orchestrator's mutable record. Guarded by the
// orchestrator's mutex; never handed out directly.
type session struct {
	id           string
	enrollmentID string
	stepID       string
	learnerID    string
	courseID     string
	tag          string
	state        State
	scenario     training.Scenario
	turns        []Turn
	evaluation   *Evaluation
	record       *training.RecordOutcome
	inFlight     bool
	updatedAt    time.Time
}

func (s *session) view() SessionView {
	turns := make([]Turn, len(s.turns))
	copy(turns, s.turns)
	return SessionView{
		ID:           s.id,
		EnrollmentID: s.enrollmentID,
		StepID:       s.stepID,
		State:        s.state,
		Scenario:     s.scenario,
		Turns:        turns,
		Evaluation:   s.evaluation,
	}
}

// SessionView is the client-facing snapshot of a session.
type SessionView struct {
	ID           string            `json:"id"`
	EnrollmentID string            `json:"enrollment_id"`
	StepID       string            `json:"step_id"`
	State        State             `json:"state"`
	Scenario     training.Scenario `json:"scenario"`
	Turns        []Turn            `json:"turns"`
	Evaluation   *Evaluation       `json:"evaluation,omitempty"`
}

// TurnReply is the outcome of one NextTurn call: either the AI counter-turn
// or, on the sixth committed turn, the evaluation plus the recorded attempt.
type TurnReply struct {
	Turn       int                     `json:"turn,omitempty"`
	AIText     string                  `json:"ai_text,omitempty"`
	Evaluation *Evaluation             `json:"evaluation,omitempty"`
	Record     *training.RecordOutcome `json:"record,omitempty"`
}
