package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/aisu-run/aisu-core/pkg/apperr"
	"github.com/aisu-run/aisu-core/pkg/types"
)

type containerResponse struct {
	Status        types.ContainerStatus `json:"status"`
	ContainerName string                `json:"container_name,omitempty"`
	IPAddress     string                `json:"ip_address,omitempty"`
	CPULimit      int                   `json:"cpu_limit,omitempty"`
	RAMLimitBytes int64                 `json:"ram_limit_bytes,omitempty"`
	StartedAt     *time.Time            `json:"started_at,omitempty"`
	Message       string                `json:"message,omitempty"`
}

func toContainerResponse(status types.ContainerStatus, record *types.ContainerRecord, message string) containerResponse {
	resp := containerResponse{Status: status, Message: message}
	if record != nil {
		resp.ContainerName = record.ContainerName
		resp.IPAddress = record.IPAddress
		resp.CPULimit = record.CPULimit
		resp.RAMLimitBytes = record.RAMLimitBytes
		resp.StartedAt = record.StartedAt
	}
	return resp
}

// handleContainerStatus reconciles against the engine and returns the
// authoritative status. An unprovisioned user reads as removed rather
// than an error.
func (s *Server) handleContainerStatus(w http.ResponseWriter, r *http.Request) {
	user := userFrom(r)

	status, record, err := s.manager.LiveStatus(r.Context(), user.ID)
	if err != nil {
		if apperr.Is(err, apperr.NotFound) {
			writeJSON(w, http.StatusOK, containerResponse{Status: types.ContainerStatusRemoved, Message: "not provisioned"})
			return
		}
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toContainerResponse(status, record, ""))
}

func (s *Server) handleContainerStart(w http.ResponseWriter, r *http.Request) {
	user := userFrom(r)

	result, err := s.manager.Start(r.Context(), user)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toContainerResponse(result.Record.Status, result.Record, result.Message))
}

func (s *Server) handleContainerStop(w http.ResponseWriter, r *http.Request) {
	user := userFrom(r)

	record, err := s.manager.Stop(r.Context(), user.ID, 10*time.Second)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toContainerResponse(record.Status, record, "stopped"))
}

func (s *Server) handleContainerRestart(w http.ResponseWriter, r *http.Request) {
	user := userFrom(r)

	result, err := s.manager.Restart(r.Context(), user)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toContainerResponse(result.Record.Status, result.Record, "restarted"))
}

func (s *Server) handleContainerEvents(w http.ResponseWriter, r *http.Request) {
	user := userFrom(r)

	events, err := s.manager.Events(user.ID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": events})
}

// handleContainerEventStream pushes the user's live lifecycle events as
// server-sent events until the client disconnects.
func (s *Server) handleContainerEventStream(w http.ResponseWriter, r *http.Request) {
	user := userFrom(r)

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, apperr.New(apperr.Internal, "Streaming unsupported"))
		return
	}

	stream, cancel := s.manager.Watch(user.ID)
	defer cancel()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case event, ok := <-stream:
			if !ok {
				return
			}
			payload, err := json.Marshal(map[string]string{
				"type":      string(event.Type),
				"message":   event.Message,
				"timestamp": event.Timestamp.UTC().Format(time.RFC3339),
			})
			if err != nil {
				continue
			}
			fmt.Fprintf(w, "data: %s\n\n", payload)
			flusher.Flush()
		}
	}
}
