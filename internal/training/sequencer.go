package training

import (
	"context"
	"encoding/json"
	"log"
	"math"

	"github.com/google/uuid"

	"github.com/skillpilot/skillpilot-core/internal/eventlog"
)

// Sequencer owns linear progression through a course: which step is
// current, when an advance is legal, and when a pass completes. The stored
// lastStepIndex is the single authority; a mismatched client index is
// rejected without side effects, which collapses duplicate submissions to
// at-most-once.
type Sequencer struct {
	store  Store
	events eventlog.Log
}

func NewSequencer(store Store, events eventlog.Log) *Sequencer {
	return &Sequencer{store: store, events: events}
}

// Enroll joins a learner to a published course. Idempotent: an existing
// enrollment is returned as-is.
func (s *Sequencer) Enroll(ctx context.Context, learnerID, courseID string) (Enrollment, error) {
	course, err := s.store.GetCourse(ctx, courseID)
	if err != nil {
		return Enrollment{}, err
	}
	if !course.Published {
		return Enrollment{}, ErrCourseNotPublished
	}
	if existing, err := s.store.FindEnrollment(ctx, learnerID, courseID); err == nil {
		return existing, nil
	}
	enr := Enrollment{
		ID:        uuid.NewString(),
		LearnerID: learnerID,
		CourseID:  courseID,
		Pass:      1,
	}
	if err := s.store.CreateEnrollment(ctx, enr); err != nil {
		// Lost a race with a concurrent join; surface the winner.
		if existing, ferr := s.store.FindEnrollment(ctx, learnerID, courseID); ferr == nil {
			return existing, nil
		}
		return Enrollment{}, err
	}
	return enr, nil
}

// CurrentStep returns the learner view of the step at lastStepIndex, or the
// completion summary once the pass is finished.
func (s *Sequencer) CurrentStep(ctx context.Context, enrollmentID string) (StepView, *CompletionSummary, error) {
	enr, err := s.store.GetEnrollment(ctx, enrollmentID)
	if err != nil {
		return StepView{}, nil, err
	}
	if enr.IsCompleted {
		return StepView{}, &CompletionSummary{
			Completed:   true,
			SuccessRate: enr.LastSuccessRate,
			Result:      enr.Result(),
		}, nil
	}
	course, err := s.store.GetCourse(ctx, enr.CourseID)
	if err != nil {
		return StepView{}, nil, err
	}
	if len(course.Steps) == 0 {
		return StepView{}, nil, ErrNotFound
	}
	idx := enr.LastStepIndex
	if idx < 0 {
		idx = 0
	}
	if idx >= len(course.Steps) {
		idx = len(course.Steps) - 1
	}
	return course.Steps[idx].View(), nil, nil
}

// Advance moves the enrollment past stepIndex. The client echoes the index
// it believes is current; anything but the stored one is rejected
// (ErrStaleIndex behind, ErrIndexAhead ahead). The current step's attempt
// episode must be terminal. Advancing past the final step completes the
// pass and freezes lastStepIndex at the final index.
func (s *Sequencer) Advance(ctx context.Context, enrollmentID string, stepIndex int) (Enrollment, error) {
	enr, err := s.store.GetEnrollment(ctx, enrollmentID)
	if err != nil {
		return Enrollment{}, err
	}
	if enr.IsCompleted {
		// The completing advance already happened; any repeat is stale.
		return Enrollment{}, ErrStaleIndex
	}
	course, err := s.store.GetCourse(ctx, enr.CourseID)
	if err != nil {
		return Enrollment{}, err
	}
	total := len(course.Steps)
	if total == 0 {
		return Enrollment{}, ErrNotFound
	}
	if stepIndex != enr.LastStepIndex {
		if stepIndex < enr.LastStepIndex {
			return Enrollment{}, ErrStaleIndex
		}
		return Enrollment{}, ErrIndexAhead
	}

	step := course.Steps[stepIndex]
	episode, err := s.store.ListEpisode(ctx, enr.ID, step.ID, enr.Pass)
	if err != nil {
		return Enrollment{}, err
	}
	if !EpisodeTerminal(episode) {
		return Enrollment{}, ErrEpisodeOpen
	}

	enr.ProgressPct = progressPct(stepIndex, total)
	if stepIndex == total-1 {
		enr.IsCompleted = true
		enr.LastSuccessRate = successRate(enr.CorrectAnswers, enr.TotalAnswers)
		if enr.LastSuccessRate > enr.BestSuccessRate {
			enr.BestSuccessRate = enr.LastSuccessRate
		}
	} else {
		enr.LastStepIndex = stepIndex + 1
	}
	if err := s.store.UpdateEnrollment(ctx, enr); err != nil {
		return Enrollment{}, err
	}
	if enr.IsCompleted {
		s.appendEvent(ctx, eventlog.TypeEnrollmentCompleted, enr)
	}
	return enr, nil
}

// RestartForReview opens a fresh pass over a completed enrollment. Counters
// reset; completion stats from earlier passes stay untouched.
func (s *Sequencer) RestartForReview(ctx context.Context, enrollmentID string) (Enrollment, error) {
	enr, err := s.store.GetEnrollment(ctx, enrollmentID)
	if err != nil {
		return Enrollment{}, err
	}
	if !enr.IsCompleted {
		return Enrollment{}, ErrNotCompleted
	}
	enr.Pass++
	enr.ProgressPct = 0
	enr.LastStepIndex = 0
	enr.IsCompleted = false
	enr.CorrectAnswers = 0
	enr.TotalAnswers = 0
	enr.ScorePoints = 0
	if err := s.store.UpdateEnrollment(ctx, enr); err != nil {
		return Enrollment{}, err
	}
	s.appendEvent(ctx, eventlog.TypeEnrollmentRestarted, enr)
	return enr, nil
}

func (s *Sequencer) appendEvent(ctx context.Context, typ string, enr Enrollment) {
	if s.events == nil {
		return
	}
	data, _ := json.Marshal(map[string]any{
		"course_id":    enr.CourseID,
		"learner_id":   enr.LearnerID,
		"pass":         enr.Pass,
		"success_rate": enr.LastSuccessRate,
		"result":       enr.Result(),
	})
	if err := s.events.Append(ctx, eventlog.Event{
		Type:     typ,
		Key:      enr.ID,
		DataJSON: string(data),
	}); err != nil {
		log.Printf("training: append %s event for %s: %v", typ, enr.ID, err)
	}
}

// progressPct maps a just-finished step index onto 0..100.
func progressPct(stepIndex, total int) int {
	pct := int(math.Round(100 * float64(stepIndex+1) / float64(total)))
	if pct < 0 {
		return 0
	}
	if pct > 100 {
		return 100
	}
	return pct
}

func successRate(correct, total int) float64 {
	if total < 1 {
		total = 1
	}
	return float64(correct) / float64(total)
}
