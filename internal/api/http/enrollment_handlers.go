package http

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/skillpilot/skillpilot-core/internal/cert"
	"github.com/skillpilot/skillpilot-core/internal/training"
)

// GET /enrollments/{enrollmentID}/step
func GetStepHandler(seq *training.Sequencer, store training.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(chi.URLParam(r, "enrollmentID"))
		enr, err := store.GetEnrollment(r.Context(), id)
		if err != nil {
			writeDomainErr(w, err)
			return
		}
		if !ownsEnrollment(r, enr) {
			writeErr(w, http.StatusForbidden, "FORBIDDEN", "not your enrollment")
			return
		}
		view, done, err := seq.CurrentStep(r.Context(), id)
		if err != nil {
			writeDomainErr(w, err)
			return
		}
		if done != nil {
			writeJSON(w, http.StatusOK, done)
			return
		}
		writeJSON(w, http.StatusOK, view)
	}
}

type submitAnswerReq struct {
	StepID string `json:"step_id" validate:"required"`
	Answer string `json:"answer" validate:"required"`
}

// POST /enrollments/{enrollmentID}/answers
func SubmitAnswerHandler(tracker *training.Tracker, store training.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(chi.URLParam(r, "enrollmentID"))
		enr, err := store.GetEnrollment(r.Context(), id)
		if err != nil {
			writeDomainErr(w, err)
			return
		}
		if !ownsEnrollment(r, enr) {
			writeErr(w, http.StatusForbidden, "FORBIDDEN", "not your enrollment")
			return
		}
		var req submitAnswerReq
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeErr(w, http.StatusBadRequest, "VALIDATION", "bad json")
			return
		}
		if err := validate.Struct(req); err != nil {
			writeErr(w, http.StatusBadRequest, "VALIDATION", err.Error())
			return
		}
		out, err := tracker.Record(r.Context(), id, req.StepID, req.Answer)
		if err != nil {
			writeDomainErr(w, err)
			return
		}
		writeJSON(w, http.StatusOK, out)
	}
}

type advanceReq struct {
	StepIndex *int `json:"step_index" validate:"required"`
}

// POST /enrollments/{enrollmentID}/advance
func AdvanceHandler(seq *training.Sequencer, store training.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(chi.URLParam(r, "enrollmentID"))
		enr, err := store.GetEnrollment(r.Context(), id)
		if err != nil {
			writeDomainErr(w, err)
			return
		}
		if !ownsEnrollment(r, enr) {
			writeErr(w, http.StatusForbidden, "FORBIDDEN", "not your enrollment")
			return
		}
		var req advanceReq
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeErr(w, http.StatusBadRequest, "VALIDATION", "bad json")
			return
		}
		if err := validate.Struct(req); err != nil {
			writeErr(w, http.StatusBadRequest, "VALIDATION", "step_index required")
			return
		}
		updated, err := seq.Advance(r.Context(), id, *req.StepIndex)
		if err != nil {
			writeDomainErr(w, err)
			return
		}
		writeJSON(w, http.StatusOK, updated)
	}
}

// POST /enrollments/{enrollmentID}/restart
func RestartHandler(seq *training.Sequencer, store training.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(chi.URLParam(r, "enrollmentID"))
		enr, err := store.GetEnrollment(r.Context(), id)
		if err != nil {
			writeDomainErr(w, err)
			return
		}
		if !ownsEnrollment(r, enr) {
			writeErr(w, http.StatusForbidden, "FORBIDDEN", "not your enrollment")
			return
		}
		updated, err := seq.RestartForReview(r.Context(), id)
		if err != nil {
			writeDomainErr(w, err)
			return
		}
		writeJSON(w, http.StatusOK, updated)
	}
}

// GET /enrollments/{enrollmentID}/certificate
func CertificateHandler(gen *cert.Generator, store training.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(chi.URLParam(r, "enrollmentID"))
		enr, err := store.GetEnrollment(r.Context(), id)
		if err != nil {
			writeDomainErr(w, err)
			return
		}
		if !ownsEnrollment(r, enr) {
			writeErr(w, http.StatusForbidden, "FORBIDDEN", "not your enrollment")
			return
		}
		course, err := store.GetCourse(r.Context(), enr.CourseID)
		if err != nil {
			writeDomainErr(w, err)
			return
		}
		pdf, err := gen.Render(enr, course, enr.LearnerID)
		if err != nil {
			writeDomainErr(w, err)
			return
		}
		w.Header().Set("Content-Type", "application/pdf")
		w.Header().Set("Content-Disposition", `attachment; filename="certificate-`+enr.ID+`.pdf"`)
		_, _ = w.Write(pdf)
	}
}
