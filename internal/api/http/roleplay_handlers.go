package http

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/skillpilot/skillpilot-core/internal/roleplay"
)

type startSessionReq struct {
	EnrollmentID string `json:"enrollment_id" validate:"required"`
	StepID       string `json:"step_id" validate:"required"`
}

// POST /roleplay/sessions
//
// Idempotent per (enrollment, step): starting again while a dialogue is
// live resumes it, opening turn included.
func StartSessionHandler(orc *roleplay.Orchestrator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sub, _ := caller(r)
		var req startSessionReq
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeErr(w, http.StatusBadRequest, "VALIDATION", "bad json")
			return
		}
		if err := validate.Struct(req); err != nil {
			writeErr(w, http.StatusBadRequest, "VALIDATION", err.Error())
			return
		}
		view, err := orc.Start(r.Context(), sub, req.EnrollmentID, req.StepID)
		if err != nil {
			writeDomainErr(w, err)
			return
		}
		writeJSON(w, http.StatusOK, view)
	}
}

type turnReq struct {
	Text string `json:"text"`
}

// POST /roleplay/sessions/{sessionID}/turns
func TurnHandler(orc *roleplay.Orchestrator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sub, _ := caller(r)
		sessionID := strings.TrimSpace(chi.URLParam(r, "sessionID"))
		var req turnReq
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeErr(w, http.StatusBadRequest, "VALIDATION", "bad json")
			return
		}
		reply, err := orc.NextTurn(r.Context(), sub, sessionID, req.Text)
		if err != nil {
			writeDomainErr(w, err)
			return
		}
		writeJSON(w, http.StatusOK, reply)
	}
}
