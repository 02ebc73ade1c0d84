package training

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// memoryStore keeps everything in process. It backs dev mode and tests;
// the SQL store is the production path.
type memoryStore struct {
	mu          sync.Mutex
	courses     map[string]Course
	enrollments map[string]Enrollment
	byPair      map[string]string // learnerID|courseID -> enrollment id
	attempts    []DrillAttempt
	fragments   map[string][]KnowledgeFragment
	snapshots   map[string]snapshot
}

type snapshot struct {
	statsJSON  string
	computedAt int64
}

func NewMemoryStore() Store {
	return &memoryStore{
		courses:     make(map[string]Course),
		enrollments: make(map[string]Enrollment),
		byPair:      make(map[string]string),
		fragments:   make(map[string][]KnowledgeFragment),
		snapshots:   make(map[string]snapshot),
	}
}

func pairKey(learnerID, courseID string) string { return learnerID + "|" + courseID }

func (m *memoryStore) PutCourse(_ context.Context, c Course) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c.Steps = cloneSteps(c.Steps)
	m.courses[c.ID] = c
	return nil
}

func (m *memoryStore) GetCourse(_ context.Context, id string) (Course, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.courses[id]
	if !ok {
		return Course{}, ErrNotFound
	}
	c.Steps = cloneSteps(c.Steps)
	return c, nil
}

func (m *memoryStore) ListCourses(_ context.Context, opts ListOpts) ([]CourseSummary, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]CourseSummary, 0, len(m.courses))
	for _, c := range m.courses {
		if opts.CuratorID != "" && c.CuratorID != opts.CuratorID {
			continue
		}
		if opts.PublishedOnly && !c.Published {
			continue
		}
		out = append(out, CourseSummary{
			ID: c.ID, Title: c.Title, CuratorID: c.CuratorID,
			Published: c.Published, StepCount: len(c.Steps),
		})
	}
	sortSummaries(out)
	return out, nil
}

func (m *memoryStore) ReplaceSteps(_ context.Context, courseID string, steps []Step) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.courses[courseID]
	if !ok {
		return ErrNotFound
	}
	c.Steps = cloneSteps(steps)
	m.courses[courseID] = c
	return nil
}

func (m *memoryStore) PublishCourse(_ context.Context, id string) (Course, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.courses[id]
	if !ok {
		return Course{}, ErrNotFound
	}
	c.Published = true
	m.courses[id] = c
	c.Steps = cloneSteps(c.Steps)
	return c, nil
}

func (m *memoryStore) CreateEnrollment(_ context.Context, e Enrollment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := pairKey(e.LearnerID, e.CourseID)
	if _, exists := m.byPair[key]; exists {
		return fmt.Errorf("enrollment exists for learner %s in course %s", e.LearnerID, e.CourseID)
	}
	m.enrollments[e.ID] = e
	m.byPair[key] = e.ID
	return nil
}

func (m *memoryStore) GetEnrollment(_ context.Context, id string) (Enrollment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.enrollments[id]
	if !ok {
		return Enrollment{}, ErrNotFound
	}
	return e, nil
}

func (m *memoryStore) FindEnrollment(_ context.Context, learnerID, courseID string) (Enrollment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.byPair[pairKey(learnerID, courseID)]
	if !ok {
		return Enrollment{}, ErrNotFound
	}
	return m.enrollments[id], nil
}

func (m *memoryStore) UpdateEnrollment(_ context.Context, e Enrollment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.enrollments[e.ID]; !ok {
		return ErrNotFound
	}
	m.enrollments[e.ID] = e
	return nil
}

func (m *memoryStore) ListEnrollments(_ context.Context, f EnrollmentFilter) ([]Enrollment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Enrollment
	for _, e := range m.enrollments {
		if f.LearnerID != "" && e.LearnerID != f.LearnerID {
			continue
		}
		if f.CourseID != "" && e.CourseID != f.CourseID {
			continue
		}
		out = append(out, e)
	}
	sortEnrollments(out)
	return out, nil
}

func (m *memoryStore) AppendAttempt(_ context.Context, a DrillAttempt) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.attempts = append(m.attempts, a)
	return nil
}

func (m *memoryStore) ListEpisode(_ context.Context, enrollmentID, stepID string, pass int) ([]DrillAttempt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []DrillAttempt
	for _, a := range m.attempts {
		if a.EnrollmentID == enrollmentID && a.StepID == stepID && a.Pass == pass {
			out = append(out, a)
		}
	}
	return out, nil
}

func (m *memoryStore) ListAttemptsByLearner(_ context.Context, learnerID string) ([]DrillAttempt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	mine := make(map[string]bool)
	for _, e := range m.enrollments {
		if e.LearnerID == learnerID {
			mine[e.ID] = true
		}
	}
	var out []DrillAttempt
	for _, a := range m.attempts {
		if mine[a.EnrollmentID] {
			out = append(out, a)
		}
	}
	return out, nil
}

func (m *memoryStore) ListAttemptsByCourse(_ context.Context, courseID string) ([]DrillAttempt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	in := make(map[string]bool)
	for _, e := range m.enrollments {
		if e.CourseID == courseID {
			in[e.ID] = true
		}
	}
	var out []DrillAttempt
	for _, a := range m.attempts {
		if in[a.EnrollmentID] {
			out = append(out, a)
		}
	}
	return out, nil
}

func (m *memoryStore) ReplaceFragments(_ context.Context, courseID string, frags []KnowledgeFragment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := make([]KnowledgeFragment, len(frags))
	copy(cp, frags)
	m.fragments[courseID] = cp
	return nil
}

func (m *memoryStore) ListFragments(_ context.Context, courseID string) ([]KnowledgeFragment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	src := m.fragments[courseID]
	out := make([]KnowledgeFragment, len(src))
	copy(out, src)
	return out, nil
}

func (m *memoryStore) PutMasterySnapshot(_ context.Context, courseID, statsJSON string, computedAt int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snapshots[courseID] = snapshot{statsJSON: statsJSON, computedAt: computedAt}
	return nil
}

func (m *memoryStore) GetMasterySnapshot(_ context.Context, courseID string) (string, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.snapshots[courseID]
	if !ok {
		return "", 0, ErrNotFound
	}
	return s.statsJSON, s.computedAt, nil
}

func sortSummaries(s []CourseSummary) {
	sort.Slice(s, func(i, j int) bool { return s[i].ID < s[j].ID })
}

func sortEnrollments(e []Enrollment) {
	sort.Slice(e, func(i, j int) bool { return e[i].ID < e[j].ID })
}

func cloneSteps(in []Step) []Step {
	if in == nil {
		return nil
	}
	out := make([]Step, len(in))
	for i, s := range in {
		if s.Quiz != nil {
			q := *s.Quiz
			q.Options = append([]string(nil), s.Quiz.Options...)
			s.Quiz = &q
		}
		if s.Open != nil {
			o := *s.Open
			s.Open = &o
		}
		if s.Roleplay != nil {
			r := *s.Roleplay
			s.Roleplay = &r
		}
		out[i] = s
	}
	return out
}
