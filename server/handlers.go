package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/jurni-app/planner/auth"
	"github.com/jurni-app/planner/core/protocol"
	"github.com/jurni-app/planner/memory"
	"github.com/jurni-app/planner/orchestrator"
	"github.com/jurni-app/planner/stream"
)

const maxBodyBytes = 1 << 20

type sessionRequest struct {
	SessionID string `json:"session_id,omitempty"`
}

type chatRequest struct {
	Message   string `json:"message"`
	SessionID string `json:"session_id,omitempty"`
	Phase     string `json:"phase,omitempty"`
}

type structuredResponse struct {
	Success   bool            `json:"success"`
	Message   string          `json:"message,omitempty"`
	SessionID string          `json:"session_id"`
	DataType  string          `json:"data_type,omitempty"`
	Data      json.RawMessage `json:"data"`
}

func (s *Server) createSession(w http.ResponseWriter, r *http.Request) {
	var req sessionRequest
	if err := decodeBody(r, &req, true); err != nil {
		writeError(w, err, "")
		return
	}

	sess, err := s.planner.CreateSession(r.Context(), req.SessionID, auth.UserID(r.Context()))
	if err != nil {
		s.logFailure(r, err)
		writeError(w, err, req.SessionID)
		return
	}

	var uc memory.UserContext
	if err := json.Unmarshal(sess.Context, &uc); err != nil {
		s.logger.Warn("undecodable session context", "session_id", sess.ID, "error", err)
	}

	writeJSON(w, http.StatusCreated, envelope{
		Success:   true,
		Message:   "Session created",
		SessionID: sess.ID,
		Data: map[string]any{
			"phase":            sess.Phase,
			"user_trips_count": len(uc.PreviousTrips),
		},
	})
}

func (s *Server) sessionState(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	sess, err := s.planner.Session(r.Context(), id, auth.UserID(r.Context()))
	if err != nil {
		writeError(w, err, id)
		return
	}
	writeJSON(w, http.StatusOK, envelope{Success: true, SessionID: id, Data: sess})
}

func (s *Server) closeSession(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	sess, err := s.planner.CloseSession(r.Context(), id, auth.UserID(r.Context()))
	if err != nil {
		s.logFailure(r, err)
		writeError(w, err, id)
		return
	}
	writeJSON(w, http.StatusOK, envelope{
		Success:   true,
		Message:   "Session closed",
		SessionID: id,
		Data:      map[string]any{"phase": sess.Phase, "closed": sess.Closed},
	})
}

func (s *Server) saveItinerary(w http.ResponseWriter, r *http.Request) {
	var req sessionRequest
	if err := decodeBody(r, &req, true); err != nil {
		writeError(w, err, "")
		return
	}
	if q := r.URL.Query().Get("session_id"); q != "" {
		req.SessionID = q
	}
	if req.SessionID == "" {
		writeError(w, fmt.Errorf("%w: session_id is required", errBadRequest), "")
		return
	}

	trip, err := s.planner.SaveItinerary(r.Context(), req.SessionID, auth.UserID(r.Context()))
	if err != nil {
		s.logFailure(r, err)
		writeError(w, err, req.SessionID)
		return
	}
	writeJSON(w, http.StatusOK, envelope{
		Success:   true,
		Message:   "Itinerary saved",
		SessionID: req.SessionID,
		Data:      map[string]any{"trip_id": trip.ID, "trip": trip},
	})
}

// chat streams one turn as server-sent events. Errors detected before the
// turn starts are plain JSON responses; afterwards they arrive as error
// events inside the stream.
func (s *Server) chat(w http.ResponseWriter, r *http.Request) {
	req, err := decodeChat(r)
	if err != nil {
		writeError(w, err, "")
		return
	}

	turn, err := s.planner.Submit(r.Context(), req)
	if err != nil {
		s.logFailure(r, err)
		writeError(w, err, req.SessionID)
		return
	}

	sse, err := startSSE(w)
	if err != nil {
		s.logFailure(r, err)
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}
	if err := s.relay(r, sse, turn); err != nil {
		s.logger.Debug("chat stream ended early", "session_id", turn.SessionID(), "error", err)
	}
}

func (s *Server) relay(r *http.Request, sse *sseWriter, turn *stream.Stream) error {
	if err := sse.retry(sseRetryInterval); err != nil {
		return err
	}
	if err := sse.data(frame{
		Type:      frameConnected,
		Message:   "Connected to travel planner",
		SessionID: turn.SessionID(),
	}); err != nil {
		return err
	}

	heartbeat := s.cfg.Heartbeat
	if heartbeat <= 0 {
		heartbeat = DefaultConfig().Heartbeat
	}
	ticker := time.NewTicker(heartbeat)
	defer ticker.Stop()

	events := turn.Events()
	for {
		select {
		case <-r.Context().Done():
			return r.Context().Err()
		case <-ticker.C:
			if err := sse.comment("ping"); err != nil {
				return err
			}
		case ev, ok := <-events:
			if !ok {
				return sse.data(frame{Type: frameComplete, Message: "Response completed"})
			}
			if err := sse.data(ev); err != nil {
				return err
			}
		}
	}
}

// chatStructured runs one turn to completion and returns its first
// structured payload.
func (s *Server) chatStructured(w http.ResponseWriter, r *http.Request) {
	req, err := decodeChat(r)
	if err != nil {
		writeError(w, err, "")
		return
	}

	turn, err := s.planner.Submit(r.Context(), req)
	if err != nil {
		s.logFailure(r, err)
		writeError(w, err, req.SessionID)
		return
	}

	events, err := turn.Collect(r.Context())
	if err != nil {
		return
	}

	var terminal stream.Event
	for _, ev := range events {
		if ev.Type == stream.EventStructured {
			writeJSON(w, http.StatusOK, structuredResponse{
				Success:   true,
				SessionID: turn.SessionID(),
				DataType:  ev.DataType,
				Data:      ev.Data,
			})
			return
		}
		if ev.IsTerminal() {
			terminal = ev
		}
	}

	if terminal.Type == stream.EventError {
		writeJSON(w, failureStatus(terminal.Code), structuredResponse{
			Success:   false,
			Message:   terminal.Message,
			SessionID: turn.SessionID(),
		})
		return
	}
	writeJSON(w, http.StatusOK, structuredResponse{
		Success:   false,
		Message:   "No structured data found",
		SessionID: turn.SessionID(),
	})
}

func (s *Server) watch(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	feed, err := s.planner.Watch(r.Context(), id, auth.UserID(r.Context()))
	if err != nil {
		writeError(w, err, id)
		return
	}

	up := s.upgrader()
	conn, err := up.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	if err := pumpEvents(r.Context(), conn, feed); err != nil {
		s.logger.Debug("watch ended", "session_id", id, "error", err)
	}
}

// failureStatus maps a terminal error code onto an HTTP status for
// non-streaming responses.
func failureStatus(code string) int {
	switch code {
	case stream.CodeBackendTimeout, stream.CodeTurnTimeout:
		return http.StatusGatewayTimeout
	case stream.CodeBackendUnavailable:
		return http.StatusServiceUnavailable
	case stream.CodeBackendRejected:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func decodeChat(r *http.Request) (orchestrator.TurnRequest, error) {
	var req chatRequest
	if err := decodeBody(r, &req, false); err != nil {
		return orchestrator.TurnRequest{}, err
	}

	turn := orchestrator.TurnRequest{
		SessionID: req.SessionID,
		Owner:     auth.UserID(r.Context()),
		Message:   req.Message,
	}
	if req.Phase != "" {
		phase, err := protocol.ParsePhase(req.Phase)
		if err != nil {
			return orchestrator.TurnRequest{}, err
		}
		turn.PhaseHint = phase
	}
	return turn, nil
}

// decodeBody decodes a JSON request body into v. An empty body is accepted
// when optional is set.
func decodeBody(r *http.Request, v any, optional bool) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		if optional && errors.Is(err, io.EOF) {
			return nil
		}
		return fmt.Errorf("%w: %v", errBadRequest, err)
	}
	return nil
}

func (s *Server) logFailure(r *http.Request, err error) {
	if httpStatus(err) < http.StatusInternalServerError {
		return
	}
	s.logger.Error("request failed",
		"method", r.Method,
		"path", r.URL.Path,
		"error", err)
}
