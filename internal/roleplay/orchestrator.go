package roleplay

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/skillpilot/skillpilot-core/internal/ai"
	"github.com/skillpilot/skillpilot-core/internal/eventlog"
	"github.com/skillpilot/skillpilot-core/internal/knowledge"
	"github.com/skillpilot/skillpilot-core/internal/training"
)

// neutralScore is the fallback evaluation score when the model produces
// nothing usable. Below the pass bar, above zero: the learner keeps their
// retry budget without being failed for an outage.
const neutralScore = 5

// neutralContinuation keeps a dialogue moving when a mid-session AI turn
// fails. Persona-neutral on purpose.
const neutralContinuation = "I see. Could you walk me through your thinking on that?"

// Reader is the store surface the orchestrator needs.
type Reader interface {
	GetEnrollment(ctx context.Context, id string) (training.Enrollment, error)
	GetCourse(ctx context.Context, id string) (training.Course, error)
	ListEpisode(ctx context.Context, enrollmentID, stepID string, pass int) ([]training.DrillAttempt, error)
}

// Generator is the model surface for counter-turns and evaluations.
type Generator interface {
	Generate(ctx context.Context, req ai.Request) (ai.Result, error)
}

// GroundingSource selects course material for dialogue prompts.
type GroundingSource interface {
	Select(ctx context.Context, courseID, topic string, maxFragments int) (knowledge.Grounding, error)
}

// Recorder turns a finished dialogue into a drill attempt.
type Recorder interface {
	RecordEvaluated(ctx context.Context, enrollmentID, stepID, sessionID string, score int, degraded bool) (training.RecordOutcome, error)
}

// Orchestrator drives roleplay sessions through their states. Sessions are
// held in memory only and expire after a TTL; nothing durable exists until
// the evaluation is recorded.
type Orchestrator struct {
	store    Reader
	recorder Recorder
	gen      Generator
	src      GroundingSource
	events   eventlog.Log
	ttl      time.Duration
	now      func() time.Time

	mu       sync.Mutex
	sessions map[string]*session
	active   map[string]string // enrollmentID|stepID -> live session id
}

type Option func(*Orchestrator)

// WithGenerator wires the model gateway and grounder. Without them every
// turn uses the neutral fallbacks, which keeps dev mode usable offline.
func WithGenerator(gen Generator, src GroundingSource) Option {
	return func(o *Orchestrator) {
		o.gen = gen
		o.src = src
	}
}

func WithEvents(events eventlog.Log) Option { return func(o *Orchestrator) { o.events = events } }

func WithTTL(ttl time.Duration) Option { return func(o *Orchestrator) { o.ttl = ttl } }

// WithClock overrides time for expiry tests.
func WithClock(now func() time.Time) Option { return func(o *Orchestrator) { o.now = now } }

func New(store Reader, recorder Recorder, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		store:    store,
		recorder: recorder,
		ttl:      45 * time.Minute,
		now:      time.Now,
		sessions: make(map[string]*session),
		active:   make(map[string]string),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

func pairKey(enrollmentID, stepID string) string { return enrollmentID + "|" + stepID }

// Start opens (or resumes) the session for the enrollment's current
// roleplay step. Turn 1 is the scenario's precomputed opening line; no
// model call happens here.
func (o *Orchestrator) Start(ctx context.Context, learnerID, enrollmentID, stepID string) (SessionView, error) {
	enr, err := o.store.GetEnrollment(ctx, enrollmentID)
	if err != nil {
		return SessionView{}, err
	}
	if enr.LearnerID != learnerID {
		return SessionView{}, training.ErrNotFound
	}
	if enr.IsCompleted {
		return SessionView{}, training.ErrEnrollmentCompleted
	}
	course, err := o.store.GetCourse(ctx, enr.CourseID)
	if err != nil {
		return SessionView{}, err
	}
	step, ok := course.StepByID(stepID)
	if !ok {
		return SessionView{}, fmt.Errorf("step %s: %w", stepID, training.ErrNotFound)
	}
	if step.Kind != training.StepRoleplay || step.Roleplay == nil {
		return SessionView{}, training.ErrKindMismatch
	}
	if step.Index != enr.LastStepIndex {
		if step.Index < enr.LastStepIndex {
			return SessionView{}, training.ErrStaleIndex
		}
		return SessionView{}, training.ErrIndexAhead
	}
	episode, err := o.store.ListEpisode(ctx, enr.ID, step.ID, enr.Pass)
	if err != nil {
		return SessionView{}, err
	}
	if training.EpisodeTerminal(episode) {
		return SessionView{}, training.ErrEpisodeClosed
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	key := pairKey(enrollmentID, stepID)
	if id, ok := o.active[key]; ok {
		if s := o.sessions[id]; s != nil && s.state == StateDialogue && !s.expired(o.now(), o.ttl) {
			return s.view(), nil
		}
	}

	s := &session{
		id:           uuid.NewString(),
		enrollmentID: enrollmentID,
		stepID:       stepID,
		learnerID:    learnerID,
		courseID:     enr.CourseID,
		tag:          step.Tag,
		state:        StateScenario,
		scenario:     *step.Roleplay,
		updatedAt:    o.now(),
	}
	s.turns = append(s.turns, Turn{Role: RoleAI, Text: s.scenario.OpeningLine})
	s.state = StateDialogue

	o.sessions[s.id] = s
	o.active[key] = s.id
	return s.view(), nil
}

// NextTurn feeds one learner line into the session. Mid-dialogue it returns
// the AI counter-turn; on the sixth committed turn it evaluates, records the
// attempt, and returns the evaluation. An evaluated session answers
// idempotently with its stored evaluation.
func (o *Orchestrator) NextTurn(ctx context.Context, learnerID, sessionID, text string) (TurnReply, error) {
	o.mu.Lock()
	s, ok := o.sessions[sessionID]
	if !ok || s.learnerID != learnerID {
		o.mu.Unlock()
		return TurnReply{}, training.ErrNotFound
	}
	if s.expired(o.now(), o.ttl) {
		o.drop(s)
		o.mu.Unlock()
		return TurnReply{}, ErrSessionExpired
	}
	if s.state == StateEvaluated {
		reply := TurnReply{Evaluation: s.evaluation, Record: s.record}
		o.mu.Unlock()
		return reply, nil
	}
	if s.inFlight {
		o.mu.Unlock()
		return TurnReply{}, ErrTurnInFlight
	}
	if text == "" {
		o.mu.Unlock()
		return TurnReply{}, ErrEmptyTurn
	}
	committed := len(s.turns)
	if committed%2 == 0 || committed >= training.RoleplayTurns {
		// Turns commit in ai/learner pairs after the AI opening, so an even
		// count here means corrupted state.
		o.mu.Unlock()
		return TurnReply{}, fmt.Errorf("session %s in inconsistent state", sessionID)
	}
	s.inFlight = true
	scenario := s.scenario
	transcript := make([]Turn, committed)
	copy(transcript, s.turns)
	courseID, tag := s.courseID, s.tag
	o.mu.Unlock()

	final := committed == training.RoleplayTurns-1

	if !final {
		aiText := o.counterTurn(ctx, courseID, tag, scenario, transcript, text)
		o.mu.Lock()
		defer o.mu.Unlock()
		s.inFlight = false
		if aiText == "" {
			// Cancelled before the call resolved; transcript stays intact.
			return TurnReply{}, ctx.Err()
		}
		s.turns = append(s.turns, Turn{Role: RoleLearner, Text: text}, Turn{Role: RoleAI, Text: aiText})
		s.updatedAt = o.now()
		return TurnReply{Turn: len(s.turns), AIText: aiText}, nil
	}

	eval := o.evaluate(ctx, courseID, tag, scenario, append(transcript, Turn{Role: RoleLearner, Text: text}))

	o.mu.Lock()
	s.inFlight = false
	if eval == nil {
		o.mu.Unlock()
		return TurnReply{}, ctx.Err()
	}
	s.turns = append(s.turns, Turn{Role: RoleLearner, Text: text})
	s.evaluation = eval
	s.state = StateEvaluated
	s.updatedAt = o.now()
	enrollmentID, stepID := s.enrollmentID, s.stepID
	o.mu.Unlock()

	reply := TurnReply{Evaluation: eval}
	rec, err := o.recorder.RecordEvaluated(ctx, enrollmentID, stepID, sessionID, eval.Score, eval.Degraded)
	if err != nil {
		// The evaluation is still returned; the attempt record is what failed.
		log.Printf("roleplay: record evaluation for session %s: %v", sessionID, err)
	} else {
		reply.Record = &rec
		o.mu.Lock()
		s.record = &rec
		o.mu.Unlock()
	}
	o.appendEvaluatedEvent(ctx, sessionID, enrollmentID, stepID, eval)
	return reply, nil
}

// counterTurn produces the AI's next line. Returns "" only when the caller
// context died; any other failure yields the neutral continuation.
func (o *Orchestrator) counterTurn(ctx context.Context, courseID, tag string, sc training.Scenario, transcript []Turn, learnerText string) string {
	if o.gen == nil {
		return neutralContinuation
	}
	grounding := o.ground(ctx, courseID, tag, sc)
	res, err := o.gen.Generate(ctx, ai.Request{
		Kind:        ai.KindRoleplayTurn,
		Prompt:      turnPrompt(sc, transcript, learnerText, grounding),
		FragmentIDs: grounding.FragmentIDs,
	})
	if err != nil {
		if ctx.Err() != nil {
			return ""
		}
		log.Printf("roleplay: counter-turn failed, using neutral line: %v", err)
		return neutralContinuation
	}
	reply, err := ai.TrimReply(res.Text)
	if err != nil {
		log.Printf("roleplay: counter-turn unusable, using neutral line: %v", err)
		return neutralContinuation
	}
	return reply
}

// evaluate produces the session evaluation. Returns nil only when the
// caller context died; any other failure yields the neutral evaluation.
func (o *Orchestrator) evaluate(ctx context.Context, courseID, tag string, sc training.Scenario, transcript []Turn) *Evaluation {
	if o.gen == nil {
		return neutralEvaluation()
	}
	grounding := o.ground(ctx, courseID, tag, sc)
	res, err := o.gen.Generate(ctx, ai.Request{
		Kind:        ai.KindRoleplayEval,
		Prompt:      evalPrompt(sc, transcript, grounding),
		FragmentIDs: grounding.FragmentIDs,
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		log.Printf("roleplay: evaluation failed, using neutral fallback: %v", err)
		return neutralEvaluation()
	}
	parsed, err := ai.ParseEvaluation(res.Text)
	if err != nil {
		log.Printf("roleplay: evaluation unusable, using neutral fallback: %v", err)
		return neutralEvaluation()
	}
	return &Evaluation{
		Score:         parsed.Score,
		Verdict:       parsed.Verdict,
		Strengths:     parsed.Strengths,
		Improvements:  parsed.Improvements,
		BetterExample: parsed.BetterExample,
	}
}

func (o *Orchestrator) ground(ctx context.Context, courseID, tag string, sc training.Scenario) knowledge.Grounding {
	if o.src == nil {
		return knowledge.Grounding{}
	}
	g, err := o.src.Select(ctx, courseID, tag+" "+sc.Goal, 0)
	if err != nil {
		log.Printf("roleplay: grounding select: %v", err)
		return knowledge.Grounding{}
	}
	return g
}

func neutralEvaluation() *Evaluation {
	return &Evaluation{
		Score:        neutralScore,
		Verdict:      "The session was completed, but automatic evaluation was unavailable.",
		Strengths:    []string{"Completed the full dialogue."},
		Improvements: []string{"Ask your curator for a manual review of this session."},
		Degraded:     true,
	}
}

func (o *Orchestrator) appendEvaluatedEvent(ctx context.Context, sessionID, enrollmentID, stepID string, eval *Evaluation) {
	if o.events == nil {
		return
	}
	data, _ := json.Marshal(map[string]any{
		"session_id":    sessionID,
		"enrollment_id": enrollmentID,
		"step_id":       stepID,
		"evaluation":    eval,
	})
	if err := o.events.Append(ctx, eventlog.Event{
		Type:     eventlog.TypeRoleplayEvaluated,
		Key:      sessionID,
		DataJSON: string(data),
	}); err != nil {
		log.Printf("roleplay: append evaluated event for %s: %v", sessionID, err)
	}
}

// Sweep drops expired sessions and reports how many were removed. Wired to
// the periodic scheduler; expiry is also enforced lazily on access.
func (o *Orchestrator) Sweep() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	now := o.now()
	n := 0
	for _, s := range o.sessions {
		if !s.inFlight && s.expired(now, o.ttl) {
			o.drop(s)
			n++
		}
	}
	return n
}

// drop must run under o.mu.
func (o *Orchestrator) drop(s *session) {
	delete(o.sessions, s.id)
	if o.active[pairKey(s.enrollmentID, s.stepID)] == s.id {
		delete(o.active, pairKey(s.enrollmentID, s.stepID))
	}
}

func (s *session) expired(now time.Time, ttl time.Duration) bool {
	return now.Sub(s.updatedAt) > ttl
}
