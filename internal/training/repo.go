package training

import "context"

// ListOpts narrows course listings. Zero value means everything.
type ListOpts struct {
	CuratorID     string
	PublishedOnly bool
}

// EnrollmentFilter narrows enrollment listings. Zero value means everything.
type EnrollmentFilter struct {
	LearnerID string
	CourseID  string
}

// Store abstracts persistence for courses, enrollments, attempts, knowledge
// fragments, and mastery snapshots. Implementations must be safe for
// concurrent use; per-enrollment write ordering is the caller's job.
type Store interface {
	// Courses.
	PutCourse(ctx context.Context, c Course) error
	GetCourse(ctx context.Context, id string) (Course, error)
	ListCourses(ctx context.Context, opts ListOpts) ([]CourseSummary, error)
	ReplaceSteps(ctx context.Context, courseID string, steps []Step) error
	PublishCourse(ctx context.Context, id string) (Course, error)

	// Enrollments.
	CreateEnrollment(ctx context.Context, e Enrollment) error
	GetEnrollment(ctx context.Context, id string) (Enrollment, error)
	FindEnrollment(ctx context.Context, learnerID, courseID string) (Enrollment, error)
	UpdateEnrollment(ctx context.Context, e Enrollment) error
	ListEnrollments(ctx context.Context, f EnrollmentFilter) ([]Enrollment, error)

	// Attempts. Append-only; episode reads are scoped to one
	// (enrollment, step, pass) triple.
	AppendAttempt(ctx context.Context, a DrillAttempt) error
	ListEpisode(ctx context.Context, enrollmentID, stepID string, pass int) ([]DrillAttempt, error)
	ListAttemptsByLearner(ctx context.Context, learnerID string) ([]DrillAttempt, error)
	ListAttemptsByCourse(ctx context.Context, courseID string) ([]DrillAttempt, error)

	// Knowledge fragments. ReplaceFragments swaps a course's whole corpus.
	ReplaceFragments(ctx context.Context, courseID string, frags []KnowledgeFragment) error
	ListFragments(ctx context.Context, courseID string) ([]KnowledgeFragment, error)

	// Mastery snapshots, one JSON blob per course.
	PutMasterySnapshot(ctx context.Context, courseID, statsJSON string, computedAt int64) error
	GetMasterySnapshot(ctx context.Context, courseID string) (string, int64, error)
}
