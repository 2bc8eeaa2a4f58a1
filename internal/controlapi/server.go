// Package controlapi exposes the Scheduler's §6 control surface
// (register/enable/disable/run-now/cancel-run/list-schedules) over
// HTTP, so netravenctl can drive a worker process from outside it
// rather than requiring in-process access to the Scheduler.
package controlapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/netraven/engine/internal/domain"
	"github.com/netraven/engine/internal/scheduler"
	"github.com/netraven/engine/internal/store"
	"github.com/netraven/engine/internal/validate"
)

// Scheduler is the subset of *scheduler.Scheduler the control API needs.
type Scheduler interface {
	Register(job domain.Job) error
	Deregister(jobID string)
	Enable(jobID string) error
	Disable(jobID string) error
	RunNow(jobID string) (string, error)
	CancelRun(jobRunID string) error
	ListSchedules() []scheduler.Info
}

// Server wires the Scheduler's control operations to HTTP handlers.
type Server struct {
	sched  Scheduler
	store  store.Store
	logger *slog.Logger
	mux    *http.ServeMux
}

// NewServer builds a Server and registers its routes on a fresh mux.
func NewServer(sched Scheduler, st store.Store, logger *slog.Logger) *Server {
	s := &Server{sched: sched, store: st, logger: logger, mux: http.NewServeMux()}
	s.routes()
	return s
}

// Handler returns the server's http.Handler for mounting on an
// http.Server.
func (s *Server) Handler() http.Handler {
	return s.mux
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /healthz", s.handleHealthz)
	s.mux.HandleFunc("GET /api/v1/schedules", s.handleListSchedules)
	s.mux.HandleFunc("POST /api/v1/jobs/{id}/register", s.handleRegister)
	s.mux.HandleFunc("POST /api/v1/jobs/{id}/deregister", s.handleDeregister)
	s.mux.HandleFunc("POST /api/v1/jobs/{id}/enable", s.handleEnable)
	s.mux.HandleFunc("POST /api/v1/jobs/{id}/disable", s.handleDisable)
	s.mux.HandleFunc("POST /api/v1/jobs/{id}/run-now", s.handleRunNow)
	s.mux.HandleFunc("POST /api/v1/runs/{id}/cancel", s.handleCancelRun)
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleRegister loads job-id's row from the store and registers it
// with the Scheduler (§6 "register(job-id, schedule-spec)"). The
// schedule-spec lives on the Job row itself; this endpoint just moves
// an already-authored job into the live schedule set.
func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	jobID := r.PathValue("id")

	job, err := s.store.GetJob(r.Context(), jobID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, fmt.Errorf("job %s not found", jobID))
			return
		}
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	if err := validate.Struct(job); err != nil {
		writeError(w, http.StatusUnprocessableEntity, err)
		return
	}

	if err := s.sched.Register(job); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"job_id": jobID, "state": string(scheduler.StateActive)})
}

func (s *Server) handleDeregister(w http.ResponseWriter, r *http.Request) {
	s.sched.Deregister(r.PathValue("id"))
	writeJSON(w, http.StatusOK, map[string]string{"job_id": r.PathValue("id")})
}

func (s *Server) handleEnable(w http.ResponseWriter, r *http.Request) {
	jobID := r.PathValue("id")
	if err := s.sched.Enable(jobID); err != nil {
		writeError(w, http.StatusNotFound, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"job_id": jobID, "state": string(scheduler.StateActive)})
}

func (s *Server) handleDisable(w http.ResponseWriter, r *http.Request) {
	jobID := r.PathValue("id")
	if err := s.sched.Disable(jobID); err != nil {
		writeError(w, http.StatusNotFound, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"job_id": jobID, "state": string(scheduler.StatePaused)})
}

func (s *Server) handleRunNow(w http.ResponseWriter, r *http.Request) {
	jobID := r.PathValue("id")
	jobRunID, err := s.sched.RunNow(jobID)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"job_run_id": jobRunID})
}

func (s *Server) handleCancelRun(w http.ResponseWriter, r *http.Request) {
	jobRunID := r.PathValue("id")
	if err := s.sched.CancelRun(jobRunID); err != nil {
		writeError(w, http.StatusNotFound, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"job_run_id": jobRunID})
}

// ScheduleView is the wire shape of one list-schedules row (§6
// "list_schedules() -> [{job-id, next-fire, state}]").
type ScheduleView struct {
	JobID    string    `json:"job_id"`
	NextFire time.Time `json:"next_fire"`
	State    string    `json:"state"`
}

func (s *Server) handleListSchedules(w http.ResponseWriter, _ *http.Request) {
	infos := s.sched.ListSchedules()
	views := make([]ScheduleView, 0, len(infos))
	for _, info := range infos {
		views = append(views, ScheduleView{JobID: info.JobID, NextFire: info.NextFire, State: string(info.State)})
	}
	writeJSON(w, http.StatusOK, views)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": strings.TrimSpace(err.Error())})
}
