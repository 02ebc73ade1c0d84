package mastery_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/skillpilot/skillpilot-core/internal/mastery"
	"github.com/skillpilot/skillpilot-core/internal/training"
)

/* ---------------- fakes ---------------- */

type snapshot struct {
	statsJSON  string
	computedAt int64
}

type fakeStore struct {
	byLearner map[string][]training.DrillAttempt
	byCourse  map[string][]training.DrillAttempt
	courses   []training.CourseSummary
	snapshots map[string]snapshot

	listOpts  []training.ListOpts
	listErr   error
	putErr    error
	attemptEr error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		byLearner: map[string][]training.DrillAttempt{},
		byCourse:  map[string][]training.DrillAttempt{},
		snapshots: map[string]snapshot{},
	}
}

func (f *fakeStore) ListAttemptsByLearner(_ context.Context, learnerID string) ([]training.DrillAttempt, error) {
	if f.attemptEr != nil {
		return nil, f.attemptEr
	}
	return f.byLearner[learnerID], nil
}

func (f *fakeStore) ListAttemptsByCourse(_ context.Context, courseID string) ([]training.DrillAttempt, error) {
	if f.attemptEr != nil {
		return nil, f.attemptEr
	}
	return f.byCourse[courseID], nil
}

func (f *fakeStore) ListCourses(_ context.Context, opts training.ListOpts) ([]training.CourseSummary, error) {
	f.listOpts = append(f.listOpts, opts)
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.courses, nil
}

func (f *fakeStore) PutMasterySnapshot(_ context.Context, courseID, statsJSON string, computedAt int64) error {
	if f.putErr != nil {
		return f.putErr
	}
	f.snapshots[courseID] = snapshot{statsJSON: statsJSON, computedAt: computedAt}
	return nil
}

// att builds the minimal attempt the aggregator reads: tag and correctness.
func att(tag string, correct bool) training.DrillAttempt {
	return training.DrillAttempt{Tag: tag, IsCorrect: correct}
}

func repeat(tag string, correct, wrong int) []training.DrillAttempt {
	out := make([]training.DrillAttempt, 0, correct+wrong)
	for i := 0; i < correct; i++ {
		out = append(out, att(tag, true))
	}
	for i := 0; i < wrong; i++ {
		out = append(out, att(tag, false))
	}
	return out
}

func statFor(t *testing.T, stats []mastery.TagStat, tag string) mastery.TagStat {
	t.Helper()
	for _, s := range stats {
		if s.Tag == tag {
			return s
		}
	}
	t.Fatalf("no stat for tag %q in %+v", tag, stats)
	return mastery.TagStat{}
}

/* ---------------- Tests ---------------- */

func TestRecompute_AccuracyIsOneMinusErrorRatio(t *testing.T) {
	store := newFakeStore()
	store.byLearner["learner-1"] = append(
		repeat("billing", 1, 3), // 1 of 4 correct
		repeat("refunds", 5, 0)...,
	)
	agg := mastery.NewAggregator(store, 0)

	rep, err := agg.Recompute(context.Background(), "learner-1")
	if err != nil {
		t.Fatalf("Recompute: %v", err)
	}
	if rep.LearnerID != "learner-1" {
		t.Fatalf("learner = %s", rep.LearnerID)
	}

	billing := statFor(t, rep.TagStats, "billing")
	if billing.Attempts != 4 || billing.Errors != 3 || billing.Accuracy != 0.25 {
		t.Fatalf("billing = %+v, want 4 attempts, 3 errors, accuracy 0.25", billing)
	}
	refunds := statFor(t, rep.TagStats, "refunds")
	if refunds.Accuracy != 1.0 {
		t.Fatalf("refunds accuracy = %v, want 1.0", refunds.Accuracy)
	}

	// Stats come back tag-sorted.
	if rep.TagStats[0].Tag != "billing" || rep.TagStats[1].Tag != "refunds" {
		t.Fatalf("tag order = %+v", rep.TagStats)
	}
	if len(rep.NeedsRepeat) != 1 || rep.NeedsRepeat[0] != "billing" {
		t.Fatalf("needsRepeat = %v, want just billing", rep.NeedsRepeat)
	}
}

func TestRecompute_ThresholdIsStrict(t *testing.T) {
	store := newFakeStore()
	store.byLearner["learner-1"] = append(
		repeat("exactly", 4, 1),   // 0.80 on the nose stays mastered
		repeat("barely", 3, 1)..., // 0.75 needs repeat
	)
	agg := mastery.NewAggregator(store, 0)

	rep, err := agg.Recompute(context.Background(), "learner-1")
	if err != nil {
		t.Fatalf("Recompute: %v", err)
	}
	if len(rep.NeedsRepeat) != 1 || rep.NeedsRepeat[0] != "barely" {
		t.Fatalf("needsRepeat = %v, want only the sub-threshold tag", rep.NeedsRepeat)
	}
}

func TestRecompute_SkipsUntaggedAttempts(t *testing.T) {
	store := newFakeStore()
	store.byLearner["learner-1"] = []training.DrillAttempt{
		att("", false), att("", false), att("billing", true),
	}
	agg := mastery.NewAggregator(store, 0)

	rep, err := agg.Recompute(context.Background(), "learner-1")
	if err != nil {
		t.Fatalf("Recompute: %v", err)
	}
	if len(rep.TagStats) != 1 || rep.TagStats[0].Tag != "billing" || rep.TagStats[0].Attempts != 1 {
		t.Fatalf("stats = %+v, untagged attempts must not count", rep.TagStats)
	}
}

func TestRecompute_EmptyHistory(t *testing.T) {
	store := newFakeStore()
	agg := mastery.NewAggregator(store, 0)

	rep, err := agg.Recompute(context.Background(), "learner-1")
	if err != nil {
		t.Fatalf("Recompute: %v", err)
	}
	if len(rep.TagStats) != 0 || len(rep.NeedsRepeat) != 0 {
		t.Fatalf("report = %+v, want empty", rep)
	}
}

func TestRecompute_SourceErrorPropagates(t *testing.T) {
	store := newFakeStore()
	store.attemptEr = errors.New("store down")
	agg := mastery.NewAggregator(store, 0)

	if _, err := agg.Recompute(context.Background(), "learner-1"); !errors.Is(err, store.attemptEr) {
		t.Fatalf("err = %v, want store error", err)
	}
}

func TestRecomputeCourse_ProblemTopicsFilterAndOrder(t *testing.T) {
	store := newFakeStore()
	var all []training.DrillAttempt
	all = append(all, repeat("alpha", 0, 2)...)   // accuracy 0 but under min sample
	all = append(all, repeat("beta", 2, 2)...)    // 0.50, 4 attempts
	all = append(all, repeat("gamma", 1, 2)...)   // 0.33, 3 attempts
	all = append(all, repeat("delta", 5, 0)...)   // mastered
	all = append(all, repeat("epsilon", 3, 3)...) // 0.50, 6 attempts
	all = append(all, repeat("zeta", 2, 2)...)    // 0.50, 4 attempts
	store.byCourse["course-1"] = all
	agg := mastery.NewAggregator(store, 3)

	rep, err := agg.RecomputeCourse(context.Background(), "course-1")
	if err != nil {
		t.Fatalf("RecomputeCourse: %v", err)
	}
	if len(rep.TagStats) != 6 {
		t.Fatalf("tag stats = %d, want all six tags", len(rep.TagStats))
	}

	// Worst accuracy first, then more attempts, then tag.
	want := []string{"gamma", "epsilon", "beta", "zeta"}
	if len(rep.ProblemTopics) != len(want) {
		t.Fatalf("problem topics = %+v, want %v", rep.ProblemTopics, want)
	}
	for i, tag := range want {
		if rep.ProblemTopics[i].Tag != tag {
			t.Fatalf("problem topic %d = %s, want %s (full: %+v)", i, rep.ProblemTopics[i].Tag, tag, rep.ProblemTopics)
		}
	}
	if g := rep.ProblemTopics[0]; g.Accuracy != 1-2.0/3.0 {
		t.Fatalf("gamma accuracy = %v", g.Accuracy)
	}
}

func TestRecomputeCourse_MinSampleConfigurable(t *testing.T) {
	store := newFakeStore()
	store.byCourse["course-1"] = repeat("billing", 1, 3) // 4 attempts, accuracy 0.25
	agg := mastery.NewAggregator(store, 5)

	rep, err := agg.RecomputeCourse(context.Background(), "course-1")
	if err != nil {
		t.Fatalf("RecomputeCourse: %v", err)
	}
	if len(rep.ProblemTopics) != 0 {
		t.Fatalf("problem topics = %+v, want none under a sample floor of 5", rep.ProblemTopics)
	}
}

func TestScheduler_RefreshAllSnapshotsPublishedCourses(t *testing.T) {
	store := newFakeStore()
	store.courses = []training.CourseSummary{
		{ID: "course-1", Title: "Support Onboarding", Published: true},
		{ID: "course-2", Title: "Billing Deep Dive", Published: true},
	}
	store.byCourse["course-1"] = repeat("billing", 1, 3)
	store.byCourse["course-2"] = repeat("refunds", 6, 0)
	agg := mastery.NewAggregator(store, 3)
	sched := mastery.NewScheduler(agg, store)

	if err := sched.RefreshAll(context.Background()); err != nil {
		t.Fatalf("RefreshAll: %v", err)
	}

	if len(store.listOpts) != 1 || !store.listOpts[0].PublishedOnly {
		t.Fatalf("course listing = %+v, want published-only", store.listOpts)
	}
	if len(store.snapshots) != 2 {
		t.Fatalf("snapshots = %d, want one per course", len(store.snapshots))
	}

	var rep mastery.CourseReport
	if err := json.Unmarshal([]byte(store.snapshots["course-1"].statsJSON), &rep); err != nil {
		t.Fatalf("snapshot is not a course report: %v", err)
	}
	if rep.CourseID != "course-1" {
		t.Fatalf("snapshot course = %s", rep.CourseID)
	}
	if len(rep.ProblemTopics) != 1 || rep.ProblemTopics[0].Tag != "billing" {
		t.Fatalf("snapshot problem topics = %+v", rep.ProblemTopics)
	}
	if store.snapshots["course-1"].computedAt != rep.ComputedAt {
		t.Fatalf("stored computedAt %d != report %d", store.snapshots["course-1"].computedAt, rep.ComputedAt)
	}
}

func TestScheduler_RefreshAllPropagatesWriteError(t *testing.T) {
	store := newFakeStore()
	store.courses = []training.CourseSummary{{ID: "course-1", Published: true}}
	store.putErr = errors.New("disk full")
	sched := mastery.NewScheduler(mastery.NewAggregator(store, 0), store)

	if err := sched.RefreshAll(context.Background()); err == nil {
		t.Fatalf("want snapshot write error to surface")
	}
}
