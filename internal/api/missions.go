package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/swncrew-core/internal/mission"
)

// ActiveRequest is the body of PUT /missions/active.
type ActiveRequest struct {
	Active bool `json:"active"`
}

// ActiveResponse reports the scheduler's active flag.
type ActiveResponse struct {
	Active bool `json:"active"`
}

// QueueResponse lists queued missions.
type QueueResponse struct {
	Missions []mission.Mission `json:"missions"`
	Count    int               `json:"count"`
}

// readBody reads the request body, writing a 400 on failure.
func readBody(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	raw, err := io.ReadAll(r.Body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, ErrCodeBadRequest, "request body too large")
			return nil, false
		}
		writeBadRequest(w, "reading request body failed")
		return nil, false
	}
	return raw, true
}

// handleEnqueue accepts a single mission or an array of missions. Either
// every mission is queued or none is.
func (s *Server) handleEnqueue(w http.ResponseWriter, r *http.Request) {
	raw, ok := readBody(w, r)
	if !ok {
		return
	}
	if err := checkBody(s.schemas.missions, raw); err != nil {
		writeBadRequest(w, err.Error())
		return
	}

	var missions []mission.Mission
	if trimmed := bytes.TrimSpace(raw); len(trimmed) > 0 && trimmed[0] == '[' {
		if err := json.Unmarshal(trimmed, &missions); err != nil {
			writeBadRequest(w, "invalid mission array: "+err.Error())
			return
		}
	} else {
		var m mission.Mission
		if err := json.Unmarshal(trimmed, &m); err != nil {
			writeBadRequest(w, "invalid mission: "+err.Error())
			return
		}
		missions = []mission.Mission{m}
	}

	admitted, err := s.controller.Enqueue(missions)
	if err != nil {
		writeValidationError(w, err)
		return
	}

	writeJSON(w, http.StatusAccepted, QueueResponse{Missions: admitted, Count: len(admitted)})
}

func (s *Server) handleListQueue(w http.ResponseWriter, _ *http.Request) {
	pending := s.controller.Pending()
	writeJSON(w, http.StatusOK, QueueResponse{Missions: pending, Count: len(pending)})
}

func (s *Server) handleQueueLength(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]int{"length": s.controller.QueueLength()})
}

// handleCurrent returns the executing mission, or 204 when idle.
func (s *Server) handleCurrent(w http.ResponseWriter, _ *http.Request) {
	m, ok := s.controller.Current()
	if !ok {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

// handlePeekNext returns the head of the queue, or 204 when it is empty.
func (s *Server) handlePeekNext(w http.ResponseWriter, _ *http.Request) {
	m, ok := s.controller.PeekNext()
	if !ok {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

func (s *Server) handleGetActive(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, ActiveResponse{Active: s.controller.Active()})
}

func (s *Server) handleSetActive(w http.ResponseWriter, r *http.Request) {
	raw, ok := readBody(w, r)
	if !ok {
		return
	}
	if err := checkBody(s.schemas.activeFlag, raw); err != nil {
		writeBadRequest(w, err.Error())
		return
	}

	var req ActiveRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	active := s.controller.SetActive(req.Active)
	writeJSON(w, http.StatusOK, ActiveResponse{Active: active})
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.controller.Status())
}

// handleLastCompleted returns the most recent completion record, or 204.
func (s *Server) handleLastCompleted(w http.ResponseWriter, _ *http.Request) {
	c, ok := s.controller.LastCompleted()
	if !ok {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

// handleLastClassified returns the most recent classification, or 204.
func (s *Server) handleLastClassified(w http.ResponseWriter, _ *http.Request) {
	c, ok := s.controller.LastClassified()
	if !ok {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (s *Server) handlePostClassified(w http.ResponseWriter, r *http.Request) {
	raw, ok := readBody(w, r)
	if !ok {
		return
	}
	if err := checkBody(s.schemas.classification, raw); err != nil {
		writeBadRequest(w, err.Error())
		return
	}

	var c mission.Classified
	if err := json.Unmarshal(raw, &c); err != nil {
		writeBadRequest(w, "invalid classification: "+err.Error())
		return
	}
	if c.Status == "" {
		c.Status = mission.StatusCompleted
	}

	if err := s.controller.PostClassification(r.Context(), c); err != nil {
		writeValidationError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, c)
}

// handleListHistory lists completed missions, newest first. Query
// parameters: limit, valve_id.
func (s *Server) handleListHistory(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		writeError(w, http.StatusServiceUnavailable, ErrCodeDisabled, "mission history is not configured")
		return
	}

	limit := s.historyLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			writeBadRequest(w, "limit must be a positive integer")
			return
		}
		limit = n
	}

	var (
		entries []mission.HistoryEntry
		err     error
	)
	if v := r.URL.Query().Get("valve_id"); v != "" {
		valveID, convErr := strconv.Atoi(v)
		if convErr != nil {
			writeBadRequest(w, "valve_id must be an integer")
			return
		}
		entries, err = s.history.ListByValve(r.Context(), valveID, limit)
	} else {
		entries, err = s.history.List(r.Context(), limit)
	}
	if err != nil {
		s.logger.Error("listing mission history", "error", err)
		writeInternalError(w, "failed to list mission history")
		return
	}
	if entries == nil {
		entries = []mission.HistoryEntry{}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"missions": entries,
		"count":    len(entries),
	})
}

func (s *Server) handleGetHistory(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		writeError(w, http.StatusServiceUnavailable, ErrCodeDisabled, "mission history is not configured")
		return
	}

	entry, err := s.history.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, mission.ErrHistoryNotFound) {
			writeNotFound(w, "mission not found in history")
			return
		}
		s.logger.Error("reading mission history", "error", err)
		writeInternalError(w, "failed to read mission history")
		return
	}
	writeJSON(w, http.StatusOK, entry)
}
