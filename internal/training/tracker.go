package training

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/google/uuid"

	"github.com/skillpilot/skillpilot-core/internal/eventlog"
	"github.com/skillpilot/skillpilot-core/internal/grading"
)

// RoleplayPassScore is PassThreshold applied to the 0-10 attempt scale: an
// evaluation at or above it counts as a correct attempt.
const RoleplayPassScore = 8

// RecordOutcome is what the learner sees after one submission.
type RecordOutcome struct {
	IsCorrect       bool        `json:"is_correct"`
	AttemptType     AttemptType `json:"attempt_type"`
	RetryOwed       bool        `json:"retry_owed"`
	Score           int         `json:"score"`
	Feedback        string      `json:"feedback,omitempty"`
	GradingDegraded bool        `json:"grading_degraded,omitempty"`
}

// Tracker owns attempt episodes: at most MaxEpisodeAttempts submissions per
// (enrollment, step, pass), terminating on the first correct answer. Retry
// state is derived from stored attempts on every call, so a duplicate or
// out-of-order request can never corrupt it.
type Tracker struct {
	store  Store
	engine grading.Engine
	events eventlog.Log
}

func NewTracker(store Store, engine grading.Engine, events eventlog.Log) *Tracker {
	return &Tracker{store: store, engine: engine, events: events}
}

// Record grades one submission for the enrollment's current step and appends
// the attempt. Malformed answers fail validation before any side effect.
func (t *Tracker) Record(ctx context.Context, enrollmentID, stepID, answer string) (RecordOutcome, error) {
	enr, err := t.store.GetEnrollment(ctx, enrollmentID)
	if err != nil {
		return RecordOutcome{}, err
	}
	if enr.IsCompleted {
		return RecordOutcome{}, ErrEnrollmentCompleted
	}
	course, err := t.store.GetCourse(ctx, enr.CourseID)
	if err != nil {
		return RecordOutcome{}, err
	}
	step, ok := course.StepByID(stepID)
	if !ok {
		return RecordOutcome{}, fmt.Errorf("step %s: %w", stepID, ErrNotFound)
	}
	if step.Index != enr.LastStepIndex {
		if step.Index < enr.LastStepIndex {
			return RecordOutcome{}, ErrStaleIndex
		}
		return RecordOutcome{}, ErrIndexAhead
	}
	if step.Kind == StepRoleplay {
		return RecordOutcome{}, fmt.Errorf("%w: roleplay steps are answered through dialogue sessions", grading.ErrBadAnswer)
	}

	episode, err := t.store.ListEpisode(ctx, enr.ID, step.ID, enr.Pass)
	if err != nil {
		return RecordOutcome{}, err
	}
	if EpisodeTerminal(episode) {
		return RecordOutcome{}, ErrEpisodeClosed
	}

	res, err := t.engine.Grade(ctx, taskOf(step), answer)
	if err != nil {
		return RecordOutcome{}, err
	}

	attemptType := attemptTypeFor(len(episode))
	outcome := RecordOutcome{
		IsCorrect:       res.Correct,
		AttemptType:     attemptType,
		RetryOwed:       !res.Correct && len(episode)+1 < MaxEpisodeAttempts,
		Score:           res.Score,
		Feedback:        res.Feedback,
		GradingDegraded: res.Degraded,
	}
	attempt := DrillAttempt{
		ID:              uuid.NewString(),
		EnrollmentID:    enr.ID,
		StepID:          step.ID,
		Pass:            enr.Pass,
		AttemptType:     attemptType,
		IsCorrect:       res.Correct,
		UserAnswer:      answer,
		Score:           res.Score,
		Tag:             step.Tag,
		GradingDegraded: res.Degraded,
	}
	if err := t.commit(ctx, enr, attempt); err != nil {
		return RecordOutcome{}, err
	}
	return outcome, nil
}

// RecordEvaluated appends the terminal attempt for a finished roleplay
// dialogue. Correctness follows the evaluation score against
// RoleplayPassScore; the transcript itself stays transient, so the attempt
// row references the session instead of an answer text.
func (t *Tracker) RecordEvaluated(ctx context.Context, enrollmentID, stepID, sessionID string, score int, degraded bool) (RecordOutcome, error) {
	enr, err := t.store.GetEnrollment(ctx, enrollmentID)
	if err != nil {
		return RecordOutcome{}, err
	}
	if enr.IsCompleted {
		return RecordOutcome{}, ErrEnrollmentCompleted
	}
	course, err := t.store.GetCourse(ctx, enr.CourseID)
	if err != nil {
		return RecordOutcome{}, err
	}
	step, ok := course.StepByID(stepID)
	if !ok {
		return RecordOutcome{}, fmt.Errorf("step %s: %w", stepID, ErrNotFound)
	}
	episode, err := t.store.ListEpisode(ctx, enr.ID, step.ID, enr.Pass)
	if err != nil {
		return RecordOutcome{}, err
	}
	if EpisodeTerminal(episode) {
		return RecordOutcome{}, ErrEpisodeClosed
	}

	correct := score >= RoleplayPassScore
	attemptType := attemptTypeFor(len(episode))
	outcome := RecordOutcome{
		IsCorrect:       correct,
		AttemptType:     attemptType,
		RetryOwed:       !correct && len(episode)+1 < MaxEpisodeAttempts,
		Score:           score,
		GradingDegraded: degraded,
	}
	attempt := DrillAttempt{
		ID:              uuid.NewString(),
		EnrollmentID:    enr.ID,
		StepID:          step.ID,
		Pass:            enr.Pass,
		AttemptType:     attemptType,
		IsCorrect:       correct,
		UserAnswer:      "session:" + sessionID,
		Score:           score,
		Tag:             step.Tag,
		GradingDegraded: degraded,
	}
	if err := t.commit(ctx, enr, attempt); err != nil {
		return RecordOutcome{}, err
	}
	return outcome, nil
}

// commit persists the attempt row, bumps enrollment counters, and appends
// the domain event.
func (t *Tracker) commit(ctx context.Context, enr Enrollment, attempt DrillAttempt) error {
	if err := t.store.AppendAttempt(ctx, attempt); err != nil {
		return err
	}
	enr.TotalAnswers++
	if attempt.IsCorrect {
		enr.CorrectAnswers++
	}
	enr.ScorePoints += attempt.Score
	if err := t.store.UpdateEnrollment(ctx, enr); err != nil {
		return err
	}
	t.appendEvent(ctx, enr.ID, attempt)
	return nil
}

func (t *Tracker) appendEvent(ctx context.Context, enrollmentID string, attempt DrillAttempt) {
	if t.events == nil {
		return
	}
	data, _ := json.Marshal(map[string]any{
		"attempt_id":   attempt.ID,
		"step_id":      attempt.StepID,
		"pass":         attempt.Pass,
		"attempt_type": attempt.AttemptType,
		"is_correct":   attempt.IsCorrect,
		"score":        attempt.Score,
		"tag":          attempt.Tag,
		"degraded":     attempt.GradingDegraded,
	})
	if err := t.events.Append(ctx, eventlog.Event{
		Type:     eventlog.TypeAttemptRecorded,
		Key:      enrollmentID,
		DataJSON: string(data),
	}); err != nil {
		log.Printf("training: append attempt event for %s: %v", enrollmentID, err)
	}
}

// EpisodeTerminal reports whether an episode can accept no more attempts:
// either a correct answer landed or the attempt limit is spent.
func EpisodeTerminal(episode []DrillAttempt) bool {
	if len(episode) >= MaxEpisodeAttempts {
		return true
	}
	for _, a := range episode {
		if a.IsCorrect {
			return true
		}
	}
	return false
}

func attemptTypeFor(priorAttempts int) AttemptType {
	switch priorAttempts {
	case 0:
		return AttemptInitial
	case 1:
		return AttemptDrill1
	default:
		return AttemptDrill2
	}
}

func taskOf(step Step) grading.Task {
	task := grading.Task{
		StepID:   step.ID,
		CourseID: step.CourseID,
		Kind:     string(step.Kind),
		Tag:      step.Tag,
	}
	switch step.Kind {
	case StepQuiz:
		task.Prompt = step.Quiz.Prompt
		task.Options = step.Quiz.Options
		task.CorrectIndex = step.Quiz.CorrectIndex
		task.Explanation = step.Quiz.Explanation
	case StepOpen:
		task.Prompt = step.Open.Prompt
	}
	return task
}
