// Package admin exposes the schedule manager and on-demand checks over HTTP,
// and provides the client the CLI uses to fire alert hooks.
package admin

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/amishk599/jobalert/internal/checker"
	"github.com/amishk599/jobalert/internal/model"
	"github.com/amishk599/jobalert/internal/scheduler"
)

// Scheduler is the part of scheduler.Manager the API drives.
type Scheduler interface {
	Schedule(ctx context.Context, alertID string) error
	Unschedule(alertID string) bool
	RunOnce(ctx context.Context, alertID string) (checker.Result, error)
	Entries() []scheduler.Entry
}

// Sweeper checks every active alert of one frequency.
type Sweeper interface {
	Sweep(ctx context.Context, freq model.Frequency, limit int) (checker.SweepResult, error)
}

// Server serves the admin API.
type Server struct {
	scheduler  Scheduler
	sweeper    Sweeper
	sweepLimit int
	logger     *slog.Logger
}

// NewServer creates a server. sweepLimit bounds concurrent checks of a sweep.
func NewServer(s Scheduler, sw Sweeper, sweepLimit int, logger *slog.Logger) *Server {
	return &Server{scheduler: s, sweeper: sw, sweepLimit: sweepLimit, logger: logger}
}

// Handler returns the API router.
func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/healthz", s.health).Methods(http.MethodGet)
	r.HandleFunc("/schedules", s.listSchedules).Methods(http.MethodGet)
	r.HandleFunc("/alerts/{id}/check", s.checkAlert).Methods(http.MethodPost)
	r.HandleFunc("/alerts/{id}/schedule", s.scheduleAlert).Methods(http.MethodPut)
	r.HandleFunc("/alerts/{id}/schedule", s.unscheduleAlert).Methods(http.MethodDelete)
	r.HandleFunc("/cron/{frequency}", s.sweep).Methods(http.MethodPost)
	return r
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("admin api listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("admin api: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("admin api shutdown: %w", err)
	}
	s.logger.Info("admin api stopped")
	return nil
}

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) listSchedules(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.scheduler.Entries())
}

// POST /alerts/{id}/check
func (s *Server) checkAlert(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	res, err := s.scheduler.RunOnce(r.Context(), id)
	if err != nil {
		var de *model.DeliveryError
		if errors.As(err, &de) {
			writeError(w, http.StatusBadGateway, err)
			return
		}
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// ScheduleResponse reports the trigger state of an alert after a hook.
type ScheduleResponse struct {
	AlertID   string `json:"alert_id"`
	Scheduled bool   `json:"scheduled"`
}

// PUT /alerts/{id}/schedule
func (s *Server) scheduleAlert(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := s.scheduler.Schedule(r.Context(), id); err != nil {
		var se *model.SchedulingError
		if errors.As(err, &se) {
			writeError(w, http.StatusUnprocessableEntity, err)
			return
		}
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, ScheduleResponse{AlertID: id, Scheduled: s.isScheduled(id)})
}

// DELETE /alerts/{id}/schedule
func (s *Server) unscheduleAlert(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	s.scheduler.Unschedule(id)
	writeJSON(w, http.StatusOK, ScheduleResponse{AlertID: id, Scheduled: false})
}

// POST /cron/{frequency}
func (s *Server) sweep(w http.ResponseWriter, r *http.Request) {
	freq, err := model.ParseFrequency(mux.Vars(r)["frequency"])
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	res, err := s.sweeper.Sweep(r.Context(), freq, s.sweepLimit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	s.logger.Info("frequency sweep complete",
		"frequency", freq,
		"total", res.Total,
		"successes", res.Successes,
		"failures", res.Failures,
	)
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) isScheduled(id string) bool {
	for _, e := range s.scheduler.Entries() {
		if e.AlertID == id {
			return true
		}
	}
	return false
}

type errorBody struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, errorBody{Error: err.Error()})
}
