package roleplay_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/skillpilot/skillpilot-core/internal/ai"
	"github.com/skillpilot/skillpilot-core/internal/eventlog"
	"github.com/skillpilot/skillpilot-core/internal/roleplay"
	"github.com/skillpilot/skillpilot-core/internal/training"
)

/* ---------------- fakes ---------------- */

type fakeReader struct {
	enrollments map[string]training.Enrollment
	courses     map[string]training.Course
	episodes    map[string][]training.DrillAttempt
}

func epKey(enrollmentID, stepID string, pass int) string {
	return fmt.Sprintf("%s|%s|%d", enrollmentID, stepID, pass)
}

func (f *fakeReader) GetEnrollment(_ context.Context, id string) (training.Enrollment, error) {
	e, ok := f.enrollments[id]
	if !ok {
		return training.Enrollment{}, training.ErrNotFound
	}
	return e, nil
}

func (f *fakeReader) GetCourse(_ context.Context, id string) (training.Course, error) {
	c, ok := f.courses[id]
	if !ok {
		return training.Course{}, training.ErrNotFound
	}
	return c, nil
}

func (f *fakeReader) ListEpisode(_ context.Context, enrollmentID, stepID string, pass int) ([]training.DrillAttempt, error) {
	return f.episodes[epKey(enrollmentID, stepID, pass)], nil
}

type recordedCall struct {
	enrollmentID string
	stepID       string
	sessionID    string
	score        int
	degraded     bool
}

type fakeRecorder struct {
	calls []recordedCall
	out   training.RecordOutcome
	err   error
}

func (f *fakeRecorder) RecordEvaluated(_ context.Context, enrollmentID, stepID, sessionID string, score int, degraded bool) (training.RecordOutcome, error) {
	f.calls = append(f.calls, recordedCall{enrollmentID, stepID, sessionID, score, degraded})
	if f.err != nil {
		return training.RecordOutcome{}, f.err
	}
	return f.out, nil
}

// fakeGen answers turn and evaluation prompts separately. When block is set
// it parks inside Generate until released, for in-flight tests.
type fakeGen struct {
	mu        sync.Mutex
	turnReply string
	evalReply string
	err       error
	kinds     []string
	block     chan struct{}
	entered   chan struct{}
}

func (f *fakeGen) Generate(_ context.Context, req ai.Request) (ai.Result, error) {
	f.mu.Lock()
	f.kinds = append(f.kinds, req.Kind)
	block, entered := f.block, f.entered
	err := f.err
	reply := f.turnReply
	if req.Kind == ai.KindRoleplayEval {
		reply = f.evalReply
	}
	f.mu.Unlock()

	if block != nil {
		entered <- struct{}{}
		<-block
	}
	if err != nil {
		return ai.Result{}, err
	}
	return ai.Result{Text: reply}, nil
}

func (f *fakeGen) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.kinds)
}

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type rig struct {
	store  *fakeReader
	rec    *fakeRecorder
	gen    *fakeGen
	events *eventlog.Memory
	clock  *fakeClock
	orc    *roleplay.Orchestrator
}

func scenario() training.Scenario {
	return training.Scenario{
		Situation:   "A customer received the wrong shoe size twice in a row.",
		LearnerRole: "support agent",
		Goal:        "De-escalate and arrange a replacement.",
		Persona:     "Frustrated but reasonable customer.",
		OpeningLine: "You shipped me the wrong size. Again.",
		TotalTurns:  training.RoleplayTurns,
	}
}

func newRig(t *testing.T, opts ...roleplay.Option) *rig {
	t.Helper()
	sc := scenario()
	store := &fakeReader{
		enrollments: map[string]training.Enrollment{
			"enr-1": {ID: "enr-1", LearnerID: "learner-1", CourseID: "course-1", Pass: 1, LastStepIndex: 0},
		},
		courses: map[string]training.Course{
			"course-1": {
				ID: "course-1", Title: "Support Onboarding", CuratorID: "curator-1", Published: true,
				Steps: []training.Step{
					{ID: "rp-0", CourseID: "course-1", Index: 0, Kind: training.StepRoleplay, Tag: "escalation", Roleplay: &sc},
					{ID: "rp-1", CourseID: "course-1", Index: 1, Kind: training.StepRoleplay, Tag: "refunds", Roleplay: &sc},
					{ID: "quiz-2", CourseID: "course-1", Index: 2, Kind: training.StepQuiz, Tag: "billing", Quiz: &training.QuizContent{
						Prompt: "Refund window?", Options: []string{"7 days", "30 days"}, CorrectIndex: 1,
					}},
				},
			},
		},
		episodes: map[string][]training.DrillAttempt{},
	}
	rec := &fakeRecorder{out: training.RecordOutcome{
		IsCorrect: true, AttemptType: training.AttemptInitial, Score: 9,
	}}
	gen := &fakeGen{
		turnReply: "That is the second time? Let me fix this properly.",
		evalReply: `{"score":9,"verdict":"Strong recovery.","strengths":["Owned the mistake"],"improvements":["Offer a timeline sooner"],"better_example":"Lead with the replacement plan."}`,
	}
	events := eventlog.NewMemory()
	clock := &fakeClock{t: time.Unix(1_700_000_000, 0)}

	all := append([]roleplay.Option{
		roleplay.WithGenerator(gen, nil),
		roleplay.WithEvents(events),
		roleplay.WithClock(clock.Now),
	}, opts...)
	return &rig{
		store:  store,
		rec:    rec,
		gen:    gen,
		events: events,
		clock:  clock,
		orc:    roleplay.New(store, rec, all...),
	}
}

// playThrough drives the session up to (but not past) the final learner turn.
func playThrough(t *testing.T, r *rig, sessionID string) {
	t.Helper()
	for i := 0; i < 2; i++ {
		reply, err := r.orc.NextTurn(context.Background(), "learner-1", sessionID, fmt.Sprintf("learner line %d", i+1))
		if err != nil {
			t.Fatalf("mid-dialogue turn %d: %v", i+1, err)
		}
		if reply.Evaluation != nil {
			t.Fatalf("turn %d evaluated early", i+1)
		}
	}
}

/* ---------------- Tests ---------------- */

func TestStart_OpensWithScenarioLineWithoutModelCall(t *testing.T) {
	r := newRig(t)

	view, err := r.orc.Start(context.Background(), "learner-1", "enr-1", "rp-0")
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if view.State != roleplay.StateDialogue {
		t.Fatalf("state = %s, want dialogue", view.State)
	}
	if len(view.Turns) != 1 {
		t.Fatalf("turns = %d, want just the opening", len(view.Turns))
	}
	if view.Turns[0].Role != roleplay.RoleAI || view.Turns[0].Text != scenario().OpeningLine {
		t.Fatalf("opening turn = %+v, want the precomputed scenario line", view.Turns[0])
	}
	if n := r.gen.callCount(); n != 0 {
		t.Fatalf("generator calls = %d, the opening must not hit the model", n)
	}
}

func TestStart_ResumesLiveSession(t *testing.T) {
	r := newRig(t)

	first, err := r.orc.Start(context.Background(), "learner-1", "enr-1", "rp-0")
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if _, err := r.orc.NextTurn(context.Background(), "learner-1", first.ID, "hello"); err != nil {
		t.Fatalf("NextTurn: %v", err)
	}

	second, err := r.orc.Start(context.Background(), "learner-1", "enr-1", "rp-0")
	if err != nil {
		t.Fatalf("second Start: %v", err)
	}
	if second.ID != first.ID {
		t.Fatalf("resume created a new session: %s != %s", second.ID, first.ID)
	}
	if len(second.Turns) != 3 {
		t.Fatalf("resumed turns = %d, want transcript so far", len(second.Turns))
	}
}

func TestStart_RejectsForeignEnrollment(t *testing.T) {
	r := newRig(t)

	if _, err := r.orc.Start(context.Background(), "learner-2", "enr-1", "rp-0"); !errors.Is(err, training.ErrNotFound) {
		t.Fatalf("err = %v, want not-found for another learner's enrollment", err)
	}
}

func TestStart_RejectsCompletedEnrollment(t *testing.T) {
	r := newRig(t)
	enr := r.store.enrollments["enr-1"]
	enr.IsCompleted = true
	r.store.enrollments["enr-1"] = enr

	if _, err := r.orc.Start(context.Background(), "learner-1", "enr-1", "rp-0"); !errors.Is(err, training.ErrEnrollmentCompleted) {
		t.Fatalf("err = %v, want completed-enrollment rejection", err)
	}
}

func TestStart_RejectsNonRoleplayStep(t *testing.T) {
	r := newRig(t)

	if _, err := r.orc.Start(context.Background(), "learner-1", "enr-1", "quiz-2"); !errors.Is(err, training.ErrKindMismatch) {
		t.Fatalf("err = %v, want kind mismatch for a quiz step", err)
	}
}

func TestStart_RejectsOffPositionStep(t *testing.T) {
	r := newRig(t)
	enr := r.store.enrollments["enr-1"]
	enr.LastStepIndex = 1
	r.store.enrollments["enr-1"] = enr

	if _, err := r.orc.Start(context.Background(), "learner-1", "enr-1", "rp-0"); !errors.Is(err, training.ErrStaleIndex) {
		t.Fatalf("err = %v, want stale index for a step behind the cursor", err)
	}

	enr.LastStepIndex = 0
	r.store.enrollments["enr-1"] = enr
	if _, err := r.orc.Start(context.Background(), "learner-1", "enr-1", "rp-1"); !errors.Is(err, training.ErrIndexAhead) {
		t.Fatalf("err = %v, want index-ahead for a step past the cursor", err)
	}
}

func TestStart_RejectsClosedEpisode(t *testing.T) {
	r := newRig(t)
	r.store.episodes[epKey("enr-1", "rp-0", 1)] = []training.DrillAttempt{
		{ID: "a1", EnrollmentID: "enr-1", StepID: "rp-0", Pass: 1, AttemptType: training.AttemptInitial, IsCorrect: true, Score: 9},
	}

	if _, err := r.orc.Start(context.Background(), "learner-1", "enr-1", "rp-0"); !errors.Is(err, training.ErrEpisodeClosed) {
		t.Fatalf("err = %v, want closed episode after a correct attempt", err)
	}
}

func TestNextTurn_MidDialogueReturnsCounterTurn(t *testing.T) {
	r := newRig(t)
	view, err := r.orc.Start(context.Background(), "learner-1", "enr-1", "rp-0")
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	reply, err := r.orc.NextTurn(context.Background(), "learner-1", view.ID, "I am so sorry, let me sort this out.")
	if err != nil {
		t.Fatalf("NextTurn: %v", err)
	}
	if reply.Evaluation != nil {
		t.Fatalf("mid-dialogue turn must not evaluate")
	}
	if reply.Turn != 3 {
		t.Fatalf("turn = %d, want 3 after one exchange", reply.Turn)
	}
	if reply.AIText != r.gen.turnReply {
		t.Fatalf("ai text = %q, want the model counter-turn", reply.AIText)
	}

	resumed, err := r.orc.Start(context.Background(), "learner-1", "enr-1", "rp-0")
	if err != nil {
		t.Fatalf("resume: %v", err)
	}
	want := []string{roleplay.RoleAI, roleplay.RoleLearner, roleplay.RoleAI}
	if len(resumed.Turns) != len(want) {
		t.Fatalf("turns = %d, want %d", len(resumed.Turns), len(want))
	}
	for i, role := range want {
		if resumed.Turns[i].Role != role {
			t.Fatalf("turn %d role = %s, want %s", i+1, resumed.Turns[i].Role, role)
		}
	}
}

func TestNextTurn_SixthTurnEvaluatesAndRecords(t *testing.T) {
	r := newRig(t)
	view, err := r.orc.Start(context.Background(), "learner-1", "enr-1", "rp-0")
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	playThrough(t, r, view.ID)

	reply, err := r.orc.NextTurn(context.Background(), "learner-1", view.ID, "Replacement ships today, on us.")
	if err != nil {
		t.Fatalf("final turn: %v", err)
	}
	if reply.Evaluation == nil {
		t.Fatalf("final turn must carry the evaluation")
	}
	if reply.Evaluation.Score != 9 || reply.Evaluation.Degraded {
		t.Fatalf("evaluation = %+v, want model score 9", reply.Evaluation)
	}
	if reply.Record == nil || !reply.Record.IsCorrect {
		t.Fatalf("record = %+v, want the recorded attempt outcome", reply.Record)
	}

	if len(r.rec.calls) != 1 {
		t.Fatalf("recorder calls = %d, want 1", len(r.rec.calls))
	}
	call := r.rec.calls[0]
	if call.enrollmentID != "enr-1" || call.stepID != "rp-0" || call.sessionID != view.ID {
		t.Fatalf("recorded against %+v", call)
	}
	if call.score != 9 || call.degraded {
		t.Fatalf("recorded score=%d degraded=%v, want 9/false", call.score, call.degraded)
	}

	evs := r.events.Events()
	if len(evs) != 1 || evs[0].Type != eventlog.TypeRoleplayEvaluated || evs[0].Key != view.ID {
		t.Fatalf("events = %+v, want one RoleplayEvaluated keyed by session", evs)
	}
}

func TestNextTurn_EvaluatedSessionRepliesIdempotently(t *testing.T) {
	r := newRig(t)
	view, err := r.orc.Start(context.Background(), "learner-1", "enr-1", "rp-0")
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	playThrough(t, r, view.ID)
	if _, err := r.orc.NextTurn(context.Background(), "learner-1", view.ID, "Replacement ships today."); err != nil {
		t.Fatalf("final turn: %v", err)
	}
	genCalls := r.gen.callCount()

	again, err := r.orc.NextTurn(context.Background(), "learner-1", view.ID, "anything at all")
	if err != nil {
		t.Fatalf("replayed turn: %v", err)
	}
	if again.Evaluation == nil || again.Evaluation.Score != 9 {
		t.Fatalf("replay = %+v, want the stored evaluation", again)
	}
	if again.Record == nil {
		t.Fatalf("replay should carry the stored record outcome")
	}
	if len(r.rec.calls) != 1 {
		t.Fatalf("recorder calls = %d, replay must not record twice", len(r.rec.calls))
	}
	if r.gen.callCount() != genCalls {
		t.Fatalf("replay must not call the model again")
	}
}

func TestNextTurn_NeutralLineWhenModelFails(t *testing.T) {
	r := newRig(t)
	view, err := r.orc.Start(context.Background(), "learner-1", "enr-1", "rp-0")
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	r.gen.err = errors.New("upstream down")

	reply, err := r.orc.NextTurn(context.Background(), "learner-1", view.ID, "Let me check your order.")
	if err != nil {
		t.Fatalf("NextTurn: %v", err)
	}
	if reply.AIText != "I see. Could you walk me through your thinking on that?" {
		t.Fatalf("ai text = %q, want the neutral continuation", reply.AIText)
	}

	// The dialogue keeps moving: the neutral line committed as turn 3.
	resumed, err := r.orc.Start(context.Background(), "learner-1", "enr-1", "rp-0")
	if err != nil {
		t.Fatalf("resume: %v", err)
	}
	if len(resumed.Turns) != 3 {
		t.Fatalf("turns = %d, want the fallback committed", len(resumed.Turns))
	}
}

func TestNextTurn_NeutralEvaluationWhenModelFails(t *testing.T) {
	r := newRig(t)
	view, err := r.orc.Start(context.Background(), "learner-1", "enr-1", "rp-0")
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	playThrough(t, r, view.ID)
	r.gen.err = errors.New("upstream down")

	reply, err := r.orc.NextTurn(context.Background(), "learner-1", view.ID, "Final answer.")
	if err != nil {
		t.Fatalf("final turn: %v", err)
	}
	if reply.Evaluation == nil || !reply.Evaluation.Degraded {
		t.Fatalf("evaluation = %+v, want degraded fallback", reply.Evaluation)
	}
	if reply.Evaluation.Score != 5 {
		t.Fatalf("fallback score = %d, want the below-pass neutral score", reply.Evaluation.Score)
	}
	if len(r.rec.calls) != 1 || !r.rec.calls[0].degraded {
		t.Fatalf("recorder calls = %+v, want one degraded record", r.rec.calls)
	}
}

func TestNextTurn_UnparseableEvaluationFallsBack(t *testing.T) {
	r := newRig(t)
	view, err := r.orc.Start(context.Background(), "learner-1", "enr-1", "rp-0")
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	playThrough(t, r, view.ID)
	r.gen.evalReply = "great job overall, maybe 9 out of 10?"

	reply, err := r.orc.NextTurn(context.Background(), "learner-1", view.ID, "Final answer.")
	if err != nil {
		t.Fatalf("final turn: %v", err)
	}
	if reply.Evaluation == nil || !reply.Evaluation.Degraded || reply.Evaluation.Score != 5 {
		t.Fatalf("evaluation = %+v, want degraded fallback on schema violation", reply.Evaluation)
	}
}

func TestNextTurn_NoGeneratorUsesNeutralFlow(t *testing.T) {
	sc := scenario()
	store := &fakeReader{
		enrollments: map[string]training.Enrollment{
			"enr-1": {ID: "enr-1", LearnerID: "learner-1", CourseID: "course-1", Pass: 1},
		},
		courses: map[string]training.Course{
			"course-1": {ID: "course-1", Published: true, Steps: []training.Step{
				{ID: "rp-0", CourseID: "course-1", Index: 0, Kind: training.StepRoleplay, Tag: "escalation", Roleplay: &sc},
			}},
		},
		episodes: map[string][]training.DrillAttempt{},
	}
	rec := &fakeRecorder{out: training.RecordOutcome{AttemptType: training.AttemptInitial, Score: 5}}
	orc := roleplay.New(store, rec)

	view, err := orc.Start(context.Background(), "learner-1", "enr-1", "rp-0")
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	for i := 0; i < 2; i++ {
		reply, err := orc.NextTurn(context.Background(), "learner-1", view.ID, "line")
		if err != nil {
			t.Fatalf("turn %d: %v", i+1, err)
		}
		if reply.AIText == "" {
			t.Fatalf("turn %d: offline mode must still answer", i+1)
		}
	}
	reply, err := orc.NextTurn(context.Background(), "learner-1", view.ID, "closing line")
	if err != nil {
		t.Fatalf("final turn: %v", err)
	}
	if reply.Evaluation == nil || !reply.Evaluation.Degraded {
		t.Fatalf("evaluation = %+v, want neutral evaluation without a generator", reply.Evaluation)
	}
}

func TestNextTurn_RecorderFailureStillReturnsEvaluation(t *testing.T) {
	r := newRig(t)
	r.rec.err = errors.New("db down")
	view, err := r.orc.Start(context.Background(), "learner-1", "enr-1", "rp-0")
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	playThrough(t, r, view.ID)

	reply, err := r.orc.NextTurn(context.Background(), "learner-1", view.ID, "Final answer.")
	if err != nil {
		t.Fatalf("final turn: %v", err)
	}
	if reply.Evaluation == nil || reply.Evaluation.Score != 9 {
		t.Fatalf("evaluation = %+v, must survive a recording failure", reply.Evaluation)
	}
	if reply.Record != nil {
		t.Fatalf("record = %+v, want nil when recording failed", reply.Record)
	}
}

func TestNextTurn_RejectsEmptyText(t *testing.T) {
	r := newRig(t)
	view, err := r.orc.Start(context.Background(), "learner-1", "enr-1", "rp-0")
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if _, err := r.orc.NextTurn(context.Background(), "learner-1", view.ID, ""); !errors.Is(err, roleplay.ErrEmptyTurn) {
		t.Fatalf("err = %v, want empty-turn rejection", err)
	}
}

func TestNextTurn_RejectsUnknownOrForeignSession(t *testing.T) {
	r := newRig(t)
	view, err := r.orc.Start(context.Background(), "learner-1", "enr-1", "rp-0")
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	if _, err := r.orc.NextTurn(context.Background(), "learner-1", "no-such-session", "hi"); !errors.Is(err, training.ErrNotFound) {
		t.Fatalf("err = %v, want not-found for unknown session", err)
	}
	if _, err := r.orc.NextTurn(context.Background(), "learner-2", view.ID, "hi"); !errors.Is(err, training.ErrNotFound) {
		t.Fatalf("err = %v, want not-found for another learner's session", err)
	}
}

func TestNextTurn_SecondTurnWhileFirstInFlight(t *testing.T) {
	r := newRig(t)
	r.gen.block = make(chan struct{})
	r.gen.entered = make(chan struct{}, 1)

	view, err := r.orc.Start(context.Background(), "learner-1", "enr-1", "rp-0")
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	done := make(chan error, 1)
	go func() {
		_, err := r.orc.NextTurn(context.Background(), "learner-1", view.ID, "first")
		done <- err
	}()
	<-r.gen.entered // the first turn is now parked inside the model call

	if _, err := r.orc.NextTurn(context.Background(), "learner-1", view.ID, "second"); !errors.Is(err, roleplay.ErrTurnInFlight) {
		t.Fatalf("err = %v, want in-flight rejection", err)
	}

	close(r.gen.block)
	if err := <-done; err != nil {
		t.Fatalf("first turn: %v", err)
	}
}

func TestSessionExpiry_DropsAndRestarts(t *testing.T) {
	r := newRig(t)
	view, err := r.orc.Start(context.Background(), "learner-1", "enr-1", "rp-0")
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	r.clock.Advance(46 * time.Minute)

	if _, err := r.orc.NextTurn(context.Background(), "learner-1", view.ID, "still there?"); !errors.Is(err, roleplay.ErrSessionExpired) {
		t.Fatalf("err = %v, want expiry", err)
	}

	fresh, err := r.orc.Start(context.Background(), "learner-1", "enr-1", "rp-0")
	if err != nil {
		t.Fatalf("restart after expiry: %v", err)
	}
	if fresh.ID == view.ID {
		t.Fatalf("expired session must not be resumed")
	}
	if len(fresh.Turns) != 1 {
		t.Fatalf("fresh session turns = %d, want opening only", len(fresh.Turns))
	}
}

func TestSweep_RemovesOnlyExpiredSessions(t *testing.T) {
	r := newRig(t, roleplay.WithTTL(10*time.Minute))

	stale, err := r.orc.Start(context.Background(), "learner-1", "enr-1", "rp-0")
	if err != nil {
		t.Fatalf("Start stale: %v", err)
	}
	r.clock.Advance(11 * time.Minute)

	r.store.enrollments["enr-2"] = training.Enrollment{
		ID: "enr-2", LearnerID: "learner-1", CourseID: "course-1", Pass: 1, LastStepIndex: 0,
	}
	live, err := r.orc.Start(context.Background(), "learner-1", "enr-2", "rp-0")
	if err != nil {
		t.Fatalf("Start live: %v", err)
	}

	if n := r.orc.Sweep(); n != 1 {
		t.Fatalf("Sweep = %d, want 1", n)
	}
	if _, err := r.orc.NextTurn(context.Background(), "learner-1", stale.ID, "hi"); !errors.Is(err, training.ErrNotFound) {
		t.Fatalf("err = %v, swept session should be gone", err)
	}
	if _, err := r.orc.NextTurn(context.Background(), "learner-1", live.ID, "hi"); err != nil {
		t.Fatalf("live session must survive the sweep: %v", err)
	}
}
