package server

import (
	"encoding/json"
	"net/http"
	"runtime"
	"time"

	"github.com/google/uuid"
)

type healthResponse struct {
	Status    string `json:"status"`
	Version   string `json:"version"`
	GoVersion string `json:"go_version"`
	Uptime    string `json:"uptime"`
	Engines   int    `json:"engines"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respond(w, http.StatusOK, healthResponse{
		Status:    "healthy",
		Version:   "0.1.0",
		GoVersion: runtime.Version(),
		Uptime:    time.Since(s.startTime).Round(time.Second).String(),
		Engines:   len(s.sched.Engines()),
	})
}

func (s *Server) handleEngines(w http.ResponseWriter, r *http.Request) {
	s.respond(w, http.StatusOK, s.sched.Engines())
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	s.respond(w, http.StatusOK, s.stats.Snapshot())
}

func (s *Server) handleResults(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		s.respondError(w, http.StatusNotFound, "result history not enabled")
		return
	}
	runID := r.URL.Query().Get("run")
	if runID == "" {
		runID = s.runID
	}
	rows, err := s.store.ListResults(r.Context(), runID)
	if err != nil {
		s.logger.Error("list results failed", "run_id", runID, "error", err)
		s.respondError(w, http.StatusInternalServerError, "list results failed")
		return
	}
	s.respond(w, http.StatusOK, rows)
}

func (s *Server) handleRuns(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		s.respondError(w, http.StatusNotFound, "result history not enabled")
		return
	}
	runs, err := s.store.ListRuns(r.Context())
	if err != nil {
		s.logger.Error("list runs failed", "error", err)
		s.respondError(w, http.StatusInternalServerError, "list runs failed")
		return
	}
	s.respond(w, http.StatusOK, runs)
}

type envelope struct {
	RequestID string `json:"request_id"`
	Data      any    `json:"data,omitempty"`
	Error     string `json:"error,omitempty"`
}

func (s *Server) respond(w http.ResponseWriter, status int, data any) {
	s.writeJSON(w, status, envelope{RequestID: requestID(), Data: data})
}

func (s *Server) respondError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, envelope{RequestID: requestID(), Error: msg})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, body envelope) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.logger.Error("encode response", "error", err)
	}
}

// requestID generates a short unique request identifier.
func requestID() string {
	return "req_" + uuid.New().String()[:8]
}
