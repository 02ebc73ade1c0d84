package training

import "errors"

var (
	ErrNotFound = errors.New("not found")

	// ErrStaleIndex signals an advance carrying an index the enrollment has
	// already moved past. Callers treat it as an idempotent no-op cue, not a
	// failure.
	ErrStaleIndex = errors.New("stale step index")

	// ErrIndexAhead signals an advance for a step the learner has not
	// reached yet.
	ErrIndexAhead = errors.New("step index ahead of progress")

	// ErrEpisodeOpen rejects advancing past a gradable step whose current
	// attempt episode has not reached a terminal state.
	ErrEpisodeOpen = errors.New("attempt episode still open")

	// ErrEpisodeClosed rejects recording attempts into an episode that
	// already terminated (correct answer or attempt limit).
	ErrEpisodeClosed = errors.New("attempt episode already terminal")

	ErrEnrollmentCompleted = errors.New("enrollment already completed")
	ErrNotCompleted        = errors.New("enrollment not completed")
	ErrCoursePublished     = errors.New("course already published")
	ErrCourseNotPublished  = errors.New("course not published")
	ErrKindMismatch        = errors.New("answer kind does not match step kind")
)
