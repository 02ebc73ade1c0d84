package http

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/skillpilot/skillpilot-core/internal/mastery"
	"github.com/skillpilot/skillpilot-core/internal/rbac"
	"github.com/skillpilot/skillpilot-core/internal/training"
)

// GET /mastery/learners/{learnerID}
//
// Always computed live from the attempt history. Learner reports are
// cheap; only the cohort view gets snapshotted.
func LearnerMasteryHandler(agg *mastery.Aggregator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		learnerID := strings.TrimSpace(chi.URLParam(r, "learnerID"))
		sub, role := caller(r)
		if sub != learnerID && role != rbac.RoleAdmin {
			writeErr(w, http.StatusForbidden, "FORBIDDEN", "not your report")
			return
		}
		rep, err := agg.Recompute(r.Context(), learnerID)
		if err != nil {
			writeDomainErr(w, err)
			return
		}
		writeJSON(w, http.StatusOK, rep)
	}
}

// GET /mastery/courses/{courseID}?live=1
//
// Serves the cron-refreshed snapshot unless live=1 forces a recompute.
// A course with no snapshot yet falls back to live.
func CourseMasteryHandler(agg *mastery.Aggregator, store training.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		courseID := strings.TrimSpace(chi.URLParam(r, "courseID"))
		course, err := store.GetCourse(r.Context(), courseID)
		if err != nil {
			writeDomainErr(w, err)
			return
		}
		if !ownsCourse(r, course.CuratorID) {
			writeErr(w, http.StatusForbidden, "FORBIDDEN", "not your course")
			return
		}

		if r.URL.Query().Get("live") != "1" {
			statsJSON, _, err := store.GetMasterySnapshot(r.Context(), courseID)
			if err == nil {
				w.Header().Set("Content-Type", "application/json")
				_, _ = w.Write([]byte(statsJSON))
				return
			}
			if !errors.Is(err, training.ErrNotFound) {
				writeDomainErr(w, err)
				return
			}
		}

		rep, err := agg.RecomputeCourse(r.Context(), courseID)
		if err != nil {
			writeDomainErr(w, err)
			return
		}
		writeJSON(w, http.StatusOK, rep)
	}
}
