// Package server exposes the orchestrator over HTTP.
package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/slicesim/slicesim/sim"
	"github.com/slicesim/slicesim/sim/orchestrator"
)

// maxBodyBytes caps request bodies.
const maxBodyBytes = 1 << 20

// Server routes HTTP requests to an Orchestrator.
type Server struct {
	orch   *orchestrator.Orchestrator
	router *mux.Router
}

// New builds the router for orch.
func New(orch *orchestrator.Orchestrator) *Server {
	s := &Server{orch: orch, router: mux.NewRouter()}
	r := s.router
	r.Use(logRequests)
	r.HandleFunc("/health", s.health).Methods(http.MethodGet)
	r.HandleFunc("/profiles", s.profiles).Methods(http.MethodGet)
	r.HandleFunc("/simulations", s.createRun).Methods(http.MethodPost)
	r.HandleFunc("/simulations", s.listRuns).Methods(http.MethodGet)
	r.HandleFunc("/simulations/{id}", s.getRun).Methods(http.MethodGet)
	r.HandleFunc("/simulations/{id}/start", s.startRun).Methods(http.MethodPost)
	r.HandleFunc("/simulations/{id}/stop", s.stopRun).Methods(http.MethodPost)
	r.HandleFunc("/simulations/{id}/snapshots", s.snapshots).Methods(http.MethodGet)
	return s
}

func (s *Server) Handler() http.Handler {
	return s.router
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		logrus.Debugf("%s %s -> %d (%s)", r.Method, r.URL.Path, rec.status, time.Since(start))
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logrus.Warnf("encoding response: %v", err)
	}
}

type errorResponse struct {
	Error string `json:"error"`
}

// writeError maps orchestrator sentinel errors to status codes.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, orchestrator.ErrRunNotFound):
		status = http.StatusNotFound
	case errors.Is(err, orchestrator.ErrInvalidRequest):
		status = http.StatusBadRequest
	case errors.Is(err, orchestrator.ErrInvalidTransition):
		status = http.StatusConflict
	}
	if status == http.StatusInternalServerError {
		logrus.Errorf("request failed: %v", err)
	}
	writeJSON(w, status, errorResponse{Error: err.Error()})
}

func badRequest(w http.ResponseWriter, format string, args ...any) {
	writeJSON(w, http.StatusBadRequest, errorResponse{Error: fmt.Sprintf(format, args...)})
}

type healthResponse struct {
	Status    string                         `json:"status"`
	Timestamp time.Time                      `json:"timestamp"`
	Runs      map[orchestrator.RunStatus]int `json:"runs"`
}

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	runs, _ := s.orch.Runs(orchestrator.RunFilter{})
	counts := make(map[orchestrator.RunStatus]int)
	for _, v := range runs {
		counts[v.Status]++
	}
	writeJSON(w, http.StatusOK, healthResponse{Status: "healthy", Timestamp: time.Now().UTC(), Runs: counts})
}

// ProfileView describes one slice as configured.
type ProfileView struct {
	sim.SliceProfile
	Thresholds    sim.Thresholds `json:"thresholds"`
	QueueCapacity int            `json:"queue_capacity"`
	Overflow      string         `json:"overflow"`
}

type profilesResponse struct {
	Profiles []ProfileView `json:"profiles"`
	Patterns []string      `json:"patterns"`
}

// Profiles lists every configured slice in merge order.
func Profiles(cfg sim.Config) []ProfileView {
	out := make([]ProfileView, 0, len(cfg.Slices))
	for _, slice := range sim.SliceOrder {
		sc, ok := cfg.Slice(slice)
		if !ok {
			continue
		}
		overflow := sc.Overflow
		if overflow == "" {
			overflow = "drop"
		}
		out = append(out, ProfileView{
			SliceProfile:  sc.SliceProfile,
			Thresholds:    sim.NewMetricModel(slice).Thresholds(),
			QueueCapacity: sc.QueueCapacity,
			Overflow:      overflow,
		})
	}
	return out
}

func (s *Server) profiles(w http.ResponseWriter, _ *http.Request) {
	cfg := s.orch.Config()
	writeJSON(w, http.StatusOK, profilesResponse{Profiles: Profiles(cfg), Patterns: cfg.Traffic.Patterns})
}

func (s *Server) createRun(w http.ResponseWriter, r *http.Request) {
	var req orchestrator.RunRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		badRequest(w, "invalid request body: %v", err)
		return
	}
	id, err := s.orch.CreateRun(req)
	if err != nil {
		writeError(w, err)
		return
	}
	v, err := s.orch.Run(id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, v)
}

func (s *Server) getRun(w http.ResponseWriter, r *http.Request) {
	v, err := s.orch.Run(mux.Vars(r)["id"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

func (s *Server) startRun(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := s.orch.StartRun(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	s.getRun(w, r)
}

func (s *Server) stopRun(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := s.orch.StopRun(id); err != nil {
		writeError(w, err)
		return
	}
	s.getRun(w, r)
}

type listResponse struct {
	Runs   []orchestrator.RunView `json:"runs"`
	Total  int                    `json:"total"`
	Limit  int                    `json:"limit"`
	Offset int                    `json:"offset"`
}

// intParam parses a non-negative query parameter, def when absent.
func intParam(r *http.Request, name string, def int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%s must be a non-negative integer, got %q", name, raw)
	}
	return n, nil
}

func (s *Server) listRuns(w http.ResponseWriter, r *http.Request) {
	status := orchestrator.RunStatus(r.URL.Query().Get("status"))
	if status != "" && !orchestrator.IsValidRunStatus(status) {
		badRequest(w, "unknown status %q", status)
		return
	}
	limit, err := intParam(r, "limit", 50)
	if err != nil {
		badRequest(w, "%v", err)
		return
	}
	offset, err := intParam(r, "offset", 0)
	if err != nil {
		badRequest(w, "%v", err)
		return
	}
	runs, total := s.orch.Runs(orchestrator.RunFilter{Status: status, Limit: limit, Offset: offset})
	writeJSON(w, http.StatusOK, listResponse{Runs: runs, Total: total, Limit: limit, Offset: offset})
}

type snapshotsResponse struct {
	RunID     string                  `json:"run_id"`
	Snapshots []orchestrator.Snapshot `json:"snapshots"`
}

func (s *Server) snapshots(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	limit, err := intParam(r, "limit", 0)
	if err != nil {
		badRequest(w, "%v", err)
		return
	}
	snaps, err := s.orch.Snapshots(id, limit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snapshotsResponse{RunID: id, Snapshots: snaps})
}
