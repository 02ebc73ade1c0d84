package mastery

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/robfig/cron/v3"
	"golang.org/x/sync/errgroup"

	"github.com/skillpilot/skillpilot-core/internal/training"
)

// refreshParallelism caps concurrent course recomputes during a scheduled
// refresh so a large catalog cannot saturate the store.
const refreshParallelism = 4

// SnapshotStore is the store surface the refresher needs.
type SnapshotStore interface {
	ListCourses(ctx context.Context, opts training.ListOpts) ([]training.CourseSummary, error)
	PutMasterySnapshot(ctx context.Context, courseID, statsJSON string, computedAt int64) error
}

// Scheduler snapshots cohort mastery for every published course so the
// curator dashboard reads precomputed numbers instead of scanning attempts.
type Scheduler struct {
	agg   *Aggregator
	store SnapshotStore
}

func NewScheduler(agg *Aggregator, store SnapshotStore) *Scheduler {
	return &Scheduler{agg: agg, store: store}
}

// Register adds the periodic refresh to the cron runner.
func (s *Scheduler) Register(c *cron.Cron, spec string) error {
	_, err := c.AddFunc(spec, func() {
		if err := s.RefreshAll(context.Background()); err != nil {
			log.Printf("mastery: scheduled refresh: %v", err)
		}
	})
	if err != nil {
		return fmt.Errorf("register mastery refresh %q: %w", spec, err)
	}
	return nil
}

// RefreshAll recomputes and stores a snapshot per published course.
func (s *Scheduler) RefreshAll(ctx context.Context) error {
	courses, err := s.store.ListCourses(ctx, training.ListOpts{PublishedOnly: true})
	if err != nil {
		return err
	}
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(refreshParallelism)
	for _, c := range courses {
		courseID := c.ID
		g.Go(func() error {
			report, err := s.agg.RecomputeCourse(ctx, courseID)
			if err != nil {
				return fmt.Errorf("recompute course %s: %w", courseID, err)
			}
			statsJSON, err := json.Marshal(report)
			if err != nil {
				return fmt.Errorf("encode snapshot for %s: %w", courseID, err)
			}
			return s.store.PutMasterySnapshot(ctx, courseID, string(statsJSON), report.ComputedAt)
		})
	}
	return g.Wait()
}
