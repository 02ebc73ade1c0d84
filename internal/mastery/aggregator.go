// Package mastery derives topic-level accuracy from the attempt history.
// Everything here is a pure recomputation over stored attempts; nothing is
// incrementally patched, so the numbers can never drift from the source
// rows.
package mastery

import (
	"context"
	"sort"
	"time"

	"github.com/skillpilot/skillpilot-core/internal/training"
)

// DefaultMinSample is the cohort sample floor: below it a topic's accuracy
// is noise, not signal.
const DefaultMinSample = 3

// TagStat is accuracy over all attempts carrying one topic tag.
type TagStat struct {
	Tag      string  `json:"tag"`
	Attempts int     `json:"attempts"`
	Errors   int     `json:"errors"`
	Accuracy float64 `json:"accuracy"`
}

// LearnerReport maps one learner's history onto topics.
type LearnerReport struct {
	LearnerID   string    `json:"learner_id"`
	TagStats    []TagStat `json:"tag_stats"`
	NeedsRepeat []string  `json:"needs_repeat"`
	ComputedAt  int64     `json:"computed_at"`
}

// CourseReport is the cohort view across every enrollment in a course.
type CourseReport struct {
	CourseID      string    `json:"course_id"`
	TagStats      []TagStat `json:"tag_stats"`
	ProblemTopics []TagStat `json:"problem_topics"`
	ComputedAt    int64     `json:"computed_at"`
}

// AttemptSource is the read surface the aggregator needs.
type AttemptSource interface {
	ListAttemptsByLearner(ctx context.Context, learnerID string) ([]training.DrillAttempt, error)
	ListAttemptsByCourse(ctx context.Context, courseID string) ([]training.DrillAttempt, error)
}

type Aggregator struct {
	src       AttemptSource
	minSample int
}

func NewAggregator(src AttemptSource, minSample int) *Aggregator {
	if minSample <= 0 {
		minSample = DefaultMinSample
	}
	return &Aggregator{src: src, minSample: minSample}
}

// Recompute rebuilds one learner's topic stats from scratch. needsRepeat
// lists every attempted tag under the mastery threshold.
func (a *Aggregator) Recompute(ctx context.Context, learnerID string) (LearnerReport, error) {
	attempts, err := a.src.ListAttemptsByLearner(ctx, learnerID)
	if err != nil {
		return LearnerReport{}, err
	}
	stats := aggregate(attempts)
	var needs []string
	for _, s := range stats {
		if s.Accuracy < training.PassThreshold && s.Attempts >= 1 {
			needs = append(needs, s.Tag)
		}
	}
	return LearnerReport{
		LearnerID:   learnerID,
		TagStats:    stats,
		NeedsRepeat: needs,
		ComputedAt:  time.Now().Unix(),
	}, nil
}

// RecomputeCourse rebuilds the cohort stats. problemTopics keeps only tags
// with a workable sample, worst accuracy first; ties break by descending
// attempts and then tag so the ordering is fully deterministic.
func (a *Aggregator) RecomputeCourse(ctx context.Context, courseID string) (CourseReport, error) {
	attempts, err := a.src.ListAttemptsByCourse(ctx, courseID)
	if err != nil {
		return CourseReport{}, err
	}
	stats := aggregate(attempts)
	var problems []TagStat
	for _, s := range stats {
		if s.Attempts >= a.minSample && s.Accuracy < training.PassThreshold {
			problems = append(problems, s)
		}
	}
	sort.Slice(problems, func(i, j int) bool {
		if problems[i].Accuracy != problems[j].Accuracy {
			return problems[i].Accuracy < problems[j].Accuracy
		}
		if problems[i].Attempts != problems[j].Attempts {
			return problems[i].Attempts > problems[j].Attempts
		}
		return problems[i].Tag < problems[j].Tag
	})
	return CourseReport{
		CourseID:      courseID,
		TagStats:      stats,
		ProblemTopics: problems,
		ComputedAt:    time.Now().Unix(),
	}, nil
}

// aggregate folds attempts into per-tag stats, sorted by tag.
func aggregate(attempts []training.DrillAttempt) []TagStat {
	byTag := make(map[string]*TagStat)
	for _, a := range attempts {
		if a.Tag == "" {
			continue
		}
		s := byTag[a.Tag]
		if s == nil {
			s = &TagStat{Tag: a.Tag}
			byTag[a.Tag] = s
		}
		s.Attempts++
		if !a.IsCorrect {
			s.Errors++
		}
	}
	out := make([]TagStat, 0, len(byTag))
	for _, s := range byTag {
		s.Accuracy = 1 - float64(s.Errors)/float64(s.Attempts)
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Tag < out[j].Tag })
	return out
}
