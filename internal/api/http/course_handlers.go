package http

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/skillpilot/skillpilot-core/internal/rbac"
	"github.com/skillpilot/skillpilot-core/internal/training"
)

type createCourseReq struct {
	Title string `json:"title" validate:"required,min=3,max=200"`
}

// POST /courses
func CreateCourseHandler(store training.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sub, _ := caller(r)
		var req createCourseReq
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeErr(w, http.StatusBadRequest, "VALIDATION", "bad json")
			return
		}
		req.Title = strings.TrimSpace(req.Title)
		if err := validate.Struct(req); err != nil {
			writeErr(w, http.StatusBadRequest, "VALIDATION", err.Error())
			return
		}
		c := training.Course{
			ID:        uuid.NewString(),
			Title:     req.Title,
			CuratorID: sub,
			CreatedAt: time.Now().Unix(),
		}
		if err := store.PutCourse(r.Context(), c); err != nil {
			writeDomainErr(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, c)
	}
}

// GET /courses
//
// Learners browse the published catalog; curators see their own courses,
// published or not; admins see everything.
func ListCoursesHandler(store training.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sub, role := caller(r)
		opts := training.ListOpts{}
		switch role {
		case rbac.RoleAdmin:
		case rbac.RoleCurator:
			opts.CuratorID = sub
		default:
			opts.PublishedOnly = true
		}
		out, err := store.ListCourses(r.Context(), opts)
		if err != nil {
			writeDomainErr(w, err)
			return
		}
		if out == nil {
			out = []training.CourseSummary{} // [] not null
		}
		writeJSON(w, http.StatusOK, out)
	}
}

// courseDetail is the learner-facing course shape: step views only, no
// answer keys.
type courseDetail struct {
	ID        string              `json:"id"`
	Title     string              `json:"title"`
	Published bool                `json:"published"`
	Steps     []training.StepView `json:"steps"`
}

// GET /courses/{courseID}
func GetCourseHandler(store training.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(chi.URLParam(r, "courseID"))
		c, err := store.GetCourse(r.Context(), id)
		if err != nil {
			writeDomainErr(w, err)
			return
		}
		if ownsCourse(r, c.CuratorID) {
			writeJSON(w, http.StatusOK, c)
			return
		}
		if !c.Published {
			writeDomainErr(w, training.ErrNotFound)
			return
		}
		d := courseDetail{ID: c.ID, Title: c.Title, Published: c.Published}
		d.Steps = make([]training.StepView, 0, len(c.Steps))
		for _, s := range c.Steps {
			d.Steps = append(d.Steps, s.View())
		}
		writeJSON(w, http.StatusOK, d)
	}
}

type stepDef struct {
	ID       string                `json:"id,omitempty"`
	Index    int                   `json:"index"`
	Kind     training.StepKind     `json:"kind"`
	Tag      string                `json:"tag"`
	Quiz     *training.QuizContent `json:"quiz,omitempty"`
	Open     *training.OpenContent `json:"open,omitempty"`
	Roleplay *training.Scenario    `json:"roleplay,omitempty"`
}

// PUT /courses/{courseID}/steps
//
// Whole-list replacement on an unpublished course. Step ids are minted
// here when the curator omits them.
func ReplaceStepsHandler(store training.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(chi.URLParam(r, "courseID"))
		c, err := store.GetCourse(r.Context(), id)
		if err != nil {
			writeDomainErr(w, err)
			return
		}
		if !ownsCourse(r, c.CuratorID) {
			writeErr(w, http.StatusForbidden, "FORBIDDEN", "not your course")
			return
		}
		if c.Published {
			writeDomainErr(w, training.ErrCoursePublished)
			return
		}
		var defs []stepDef
		if err := json.NewDecoder(r.Body).Decode(&defs); err != nil {
			writeErr(w, http.StatusBadRequest, "VALIDATION", "bad json")
			return
		}
		steps := make([]training.Step, 0, len(defs))
		for _, d := range defs {
			if d.ID == "" {
				d.ID = uuid.NewString()
			}
			steps = append(steps, training.Step{
				ID: d.ID, CourseID: id, Index: d.Index, Kind: d.Kind,
				Tag: strings.TrimSpace(d.Tag),
				Quiz: d.Quiz, Open: d.Open, Roleplay: d.Roleplay,
			})
		}
		if err := training.ValidateSteps(steps); err != nil {
			writeErr(w, http.StatusBadRequest, "VALIDATION", err.Error())
			return
		}
		if err := store.ReplaceSteps(r.Context(), id, steps); err != nil {
			writeDomainErr(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// POST /courses/{courseID}/publish
func PublishCourseHandler(store training.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(chi.URLParam(r, "courseID"))
		c, err := store.GetCourse(r.Context(), id)
		if err != nil {
			writeDomainErr(w, err)
			return
		}
		if !ownsCourse(r, c.CuratorID) {
			writeErr(w, http.StatusForbidden, "FORBIDDEN", "not your course")
			return
		}
		if len(c.Steps) == 0 {
			writeErr(w, http.StatusBadRequest, "VALIDATION", "course has no steps")
			return
		}
		published, err := store.PublishCourse(r.Context(), id)
		if err != nil {
			writeDomainErr(w, err)
			return
		}
		writeJSON(w, http.StatusOK, published)
	}
}

type fragmentDef struct {
	ID      string `json:"id,omitempty"`
	Tag     string `json:"tag" validate:"required"`
	Seq     int    `json:"seq"`
	Content string `json:"content" validate:"required"`
}

type pushKnowledgeReq struct {
	Fragments []fragmentDef `json:"fragments" validate:"required,min=1,dive"`
}

// POST /courses/{courseID}/knowledge
//
// The ingestion pipeline pushes a course's whole pre-chunked corpus at
// once; partial updates are not a thing.
func PushKnowledgeHandler(store training.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(chi.URLParam(r, "courseID"))
		c, err := store.GetCourse(r.Context(), id)
		if err != nil {
			writeDomainErr(w, err)
			return
		}
		if !ownsCourse(r, c.CuratorID) {
			writeErr(w, http.StatusForbidden, "FORBIDDEN", "not your course")
			return
		}
		var req pushKnowledgeReq
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeErr(w, http.StatusBadRequest, "VALIDATION", "bad json")
			return
		}
		if err := validate.Struct(req); err != nil {
			writeErr(w, http.StatusBadRequest, "VALIDATION", err.Error())
			return
		}
		frags := make([]training.KnowledgeFragment, 0, len(req.Fragments))
		for _, f := range req.Fragments {
			if f.ID == "" {
				f.ID = uuid.NewString()
			}
			frags = append(frags, training.KnowledgeFragment{
				ID: f.ID, CourseID: id, Tag: strings.TrimSpace(f.Tag),
				Seq: f.Seq, Content: f.Content,
			})
		}
		if err := store.ReplaceFragments(r.Context(), id, frags); err != nil {
			writeDomainErr(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"count": len(frags)})
	}
}

// POST /courses/{courseID}/enrollments
//
// Learner self-enrollment. Joining twice returns the existing enrollment.
func JoinCourseHandler(seq *training.Sequencer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sub, _ := caller(r)
		courseID := strings.TrimSpace(chi.URLParam(r, "courseID"))
		enr, err := seq.Enroll(r.Context(), sub, courseID)
		if err != nil {
			writeDomainErr(w, err)
			return
		}
		writeJSON(w, http.StatusOK, enr)
	}
}

// GET /courses/{courseID}/enrollments
func CourseRosterHandler(store training.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(chi.URLParam(r, "courseID"))
		c, err := store.GetCourse(r.Context(), id)
		if err != nil {
			writeDomainErr(w, err)
			return
		}
		if !ownsCourse(r, c.CuratorID) {
			writeErr(w, http.StatusForbidden, "FORBIDDEN", "not your course")
			return
		}
		out, err := store.ListEnrollments(r.Context(), training.EnrollmentFilter{CourseID: id})
		if err != nil {
			writeDomainErr(w, err)
			return
		}
		if out == nil {
			out = []training.Enrollment{}
		}
		writeJSON(w, http.StatusOK, out)
	}
}
