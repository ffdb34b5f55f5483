package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"connectrpc.com/connect"

	"github.com/jurni-app/planner/core/protocol"
	"github.com/jurni-app/planner/memory"
	"github.com/jurni-app/planner/orchestrate/state"
	"github.com/jurni-app/planner/orchestrator"
	"github.com/jurni-app/planner/session"
)

// errBadRequest marks malformed request bodies.
var errBadRequest = errors.New("bad request")

var invalidArgument = []error{
	errBadRequest,
	session.ErrInvalidID,
	orchestrator.ErrEmptyMessage,
	state.ErrInvalidTransition,
	protocol.ErrUnknownPhase,
	memory.ErrIncompleteItinerary,
}

// httpStatus maps an orchestrator error onto an HTTP status.
func httpStatus(err error) int {
	switch {
	case errors.Is(err, session.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, session.ErrAlreadyExists),
		errors.Is(err, session.ErrSessionClosed),
		errors.Is(err, orchestrator.ErrSessionBusy):
		return http.StatusConflict
	case errors.Is(err, orchestrator.ErrForbidden):
		return http.StatusForbidden
	case isInvalidArgument(err):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// connectCode maps an orchestrator error onto a Connect code.
func connectCode(err error) connect.Code {
	switch {
	case errors.Is(err, session.ErrNotFound):
		return connect.CodeNotFound
	case errors.Is(err, session.ErrAlreadyExists):
		return connect.CodeAlreadyExists
	case errors.Is(err, session.ErrSessionClosed):
		return connect.CodeFailedPrecondition
	case errors.Is(err, orchestrator.ErrSessionBusy):
		return connect.CodeAborted
	case errors.Is(err, orchestrator.ErrForbidden):
		return connect.CodePermissionDenied
	case isInvalidArgument(err):
		return connect.CodeInvalidArgument
	default:
		return connect.CodeInternal
	}
}

func connectError(err error) *connect.Error {
	var ce *connect.Error
	if errors.As(err, &ce) {
		return ce
	}
	return connect.NewError(connectCode(err), err)
}

func isInvalidArgument(err error) bool {
	for _, target := range invalidArgument {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// envelope is the JSON body of every REST response.
type envelope struct {
	Success   bool   `json:"success"`
	Message   string `json:"message,omitempty"`
	SessionID string `json:"session_id,omitempty"`
	Data      any    `json:"data,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, err error, sessionID string) {
	status := httpStatus(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		msg = http.StatusText(status)
	}
	writeJSON(w, status, envelope{Success: false, Message: msg, SessionID: sessionID})
}
