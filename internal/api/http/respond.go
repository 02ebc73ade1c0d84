// Package http holds the gateway's HTTP handlers. Routes themselves are
// registered in main.go.
package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/skillpilot/skillpilot-core/internal/cert"
	"github.com/skillpilot/skillpilot-core/internal/grading"
	"github.com/skillpilot/skillpilot-core/internal/roleplay"
	"github.com/skillpilot/skillpilot-core/internal/training"
)

// apiError is the uniform error envelope. Clients branch on Code, not on
// the message text.
type apiError struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeErr(w http.ResponseWriter, status int, code, msg string) {
	var e apiError
	e.Error.Code = code
	e.Error.Message = msg
	writeJSON(w, status, e)
}

// writeDomainErr translates sentinel errors from the engines into the
// envelope. Anything unrecognized is a plain 500; AI failures never reach
// here because the engines degrade instead of erroring.
func writeDomainErr(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, training.ErrStaleIndex):
		writeErr(w, http.StatusConflict, "STALE_INDEX", err.Error())
	case errors.Is(err, training.ErrIndexAhead):
		writeErr(w, http.StatusConflict, "INDEX_AHEAD", err.Error())
	case errors.Is(err, training.ErrEpisodeOpen):
		writeErr(w, http.StatusConflict, "EPISODE_OPEN", err.Error())
	case errors.Is(err, training.ErrEpisodeClosed):
		writeErr(w, http.StatusConflict, "EPISODE_CLOSED", err.Error())
	case errors.Is(err, training.ErrEnrollmentCompleted):
		writeErr(w, http.StatusConflict, "COMPLETED", err.Error())
	case errors.Is(err, training.ErrNotCompleted):
		writeErr(w, http.StatusConflict, "NOT_COMPLETED", err.Error())
	case errors.Is(err, training.ErrCoursePublished):
		writeErr(w, http.StatusConflict, "PUBLISHED", err.Error())
	case errors.Is(err, training.ErrCourseNotPublished):
		writeErr(w, http.StatusConflict, "NOT_PUBLISHED", err.Error())
	case errors.Is(err, roleplay.ErrTurnInFlight):
		writeErr(w, http.StatusConflict, "TURN_IN_FLIGHT", err.Error())
	case errors.Is(err, roleplay.ErrSessionExpired):
		writeErr(w, http.StatusGone, "SESSION_EXPIRED", err.Error())
	case errors.Is(err, cert.ErrNotEarned):
		writeErr(w, http.StatusConflict, "NOT_EARNED", err.Error())
	case errors.Is(err, training.ErrKindMismatch),
		errors.Is(err, roleplay.ErrEmptyTurn),
		errors.Is(err, grading.ErrBadAnswer):
		writeErr(w, http.StatusBadRequest, "VALIDATION", err.Error())
	case errors.Is(err, training.ErrNotFound):
		writeErr(w, http.StatusNotFound, "NOT_FOUND", err.Error())
	default:
		writeErr(w, http.StatusInternalServerError, "INTERNAL", "internal error")
	}
}
