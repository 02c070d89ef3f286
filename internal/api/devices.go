package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/swncrew-core/internal/device"
)

// ReadingRequest is the body of POST /devices/flowmeters/{id}/reading.
// A missing timestamp means now.
type ReadingRequest struct {
	Value       float64 `json:"value"`
	TimestampNS int64   `json:"timestamp_ns"`
}

// ValveStateRequest is the body of POST /devices/valves/{id}/state.
type ValveStateRequest struct {
	Open bool `json:"open"`
}

// deviceID parses the {id} URL parameter, writing a 400 on failure.
func deviceID(w http.ResponseWriter, r *http.Request) (int, bool) {
	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil {
		writeBadRequest(w, "device id must be an integer")
		return 0, false
	}
	return id, true
}

func (s *Server) handleListValves(w http.ResponseWriter, _ *http.Request) {
	valves := s.registry.Valves()
	writeJSON(w, http.StatusOK, map[string]any{"valves": valves, "count": len(valves)})
}

func (s *Server) handleGetValve(w http.ResponseWriter, r *http.Request) {
	id, ok := deviceID(w, r)
	if !ok {
		return
	}
	v, err := s.registry.Valve(id)
	if err != nil {
		writeNotFound(w, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, v)
}

// handleSetValveState opens or closes a valve by hand. Manual commands
// are refused while a mission owns the hardware.
func (s *Server) handleSetValveState(w http.ResponseWriter, r *http.Request) {
	if s.valves == nil {
		writeError(w, http.StatusServiceUnavailable, ErrCodeDisabled, "manual valve control is not configured")
		return
	}
	id, ok := deviceID(w, r)
	if !ok {
		return
	}
	raw, ok := readBody(w, r)
	if !ok {
		return
	}
	if err := checkBody(s.schemas.valveState, raw); err != nil {
		writeBadRequest(w, err.Error())
		return
	}

	var req ValveStateRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if err := s.registry.CheckValve(id); err != nil {
		writeNotFound(w, err.Error())
		return
	}
	if current, running := s.controller.Current(); running {
		writeError(w, http.StatusConflict, ErrCodeConflict,
			fmt.Sprintf("mission %s is running on valve %d", current.ID, current.ValveID))
		return
	}

	err := s.valves.SetValveOpen(r.Context(), id, req.Open)
	switch {
	case errors.Is(err, device.ErrValveNotFound):
		writeNotFound(w, err.Error())
	case err != nil:
		s.logger.Error("manual valve command failed", "valve_id", id, "open", req.Open, "error", err)
		writeInternalError(w, "failed to set valve state")
	default:
		s.logger.Info("manual valve command", "valve_id", id, "open", req.Open)
		v, err := s.registry.Valve(id)
		if err != nil {
			writeNotFound(w, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, v)
	}
}

func (s *Server) handleListFlowmeters(w http.ResponseWriter, _ *http.Request) {
	flowmeters := s.registry.Flowmeters()
	writeJSON(w, http.StatusOK, map[string]any{"flowmeters": flowmeters, "count": len(flowmeters)})
}

func (s *Server) handleGetFlowmeter(w http.ResponseWriter, r *http.Request) {
	id, ok := deviceID(w, r)
	if !ok {
		return
	}
	f, err := s.registry.Flowmeter(id)
	if err != nil {
		writeNotFound(w, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, f)
}

// handlePostReading records a flowmeter reading pushed over HTTP, for
// sensors that are not bridged through MQTT.
func (s *Server) handlePostReading(w http.ResponseWriter, r *http.Request) {
	id, ok := deviceID(w, r)
	if !ok {
		return
	}
	raw, ok := readBody(w, r)
	if !ok {
		return
	}
	if err := checkBody(s.schemas.reading, raw); err != nil {
		writeBadRequest(w, err.Error())
		return
	}

	var req ReadingRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.TimestampNS == 0 {
		req.TimestampNS = time.Now().UnixNano()
	}

	f, err := s.registry.RecordReading(id, device.Reading{Value: req.Value, TimestampNS: req.TimestampNS})
	switch {
	case errors.Is(err, device.ErrFlowmeterNotFound):
		writeNotFound(w, err.Error())
	case errors.Is(err, device.ErrInvalidReading):
		writeError(w, http.StatusUnprocessableEntity, ErrCodeValidation, err.Error())
	case err != nil:
		s.logger.Error("recording flowmeter reading", "sensor_id", id, "error", err)
		writeInternalError(w, "failed to record reading")
	default:
		if s.recorder != nil {
			s.recorder.WriteSensorReading(device.KindFlowmeter, id, req.Value, time.Unix(0, req.TimestampNS))
		}
		writeJSON(w, http.StatusOK, f)
	}
}

func (s *Server) handleDeviceStats(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.registry.GetStats())
}
