// Package webhook exposes registered webhooks over HTTP. A POST to
// /trigger/{name} runs the mapped script synchronously and reports the
// outcome as JSON.
package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/roach88/scripter/internal/runner"
	"github.com/roach88/scripter/internal/store"
	"github.com/roach88/scripter/internal/trigger"
)

// Response is the JSON body for every trigger endpoint outcome.
type Response struct {
	OK     bool   `json:"ok"`
	RunID  int64  `json:"run_id,omitempty"`
	Status string `json:"status,omitempty"`
	Error  string `json:"error,omitempty"`
}

// Server handles webhook-triggered runs.
type Server struct {
	store *store.Store
	run   *runner.Service
}

// NewServer wires the handler around the shared run service, so webhook
// runs obey the same per-script lock as scheduled ones.
func NewServer(st *store.Store, run *runner.Service) *Server {
	return &Server{store: st, run: run}
}

// Router builds the chi router for the server.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(requestLogger)
	r.Post("/trigger/{name}", s.handleTrigger)
	return r
}

// ListenAndServe runs the HTTP server until ctx is cancelled, then shuts
// down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()
	slog.Info("webhook: listening", "addr", addr)

	select {
	case err := <-errCh:
		return fmt.Errorf("webhook server: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func (s *Server) handleTrigger(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	hook, err := s.store.GetWebhook(r.Context(), name)
	if errors.Is(err, store.ErrNotFound) {
		writeJSON(w, http.StatusNotFound, Response{OK: false, Error: fmt.Sprintf("unknown webhook %q", name)})
		return
	}
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, Response{OK: false, Error: err.Error()})
		return
	}

	ev := trigger.Event{
		TriggerID: fmt.Sprintf("webhook:%s", hook.Name),
		ScriptID:  hook.ScriptID,
	}
	res, err := s.run.Execute(r.Context(), ev)
	switch {
	case errors.Is(err, runner.ErrLockHeld):
		writeJSON(w, http.StatusConflict, Response{OK: false, Error: fmt.Sprintf("script %q is already running", hook.ScriptName)})
		return
	case errors.Is(err, store.ErrNotFound):
		// Script deleted between resolution and dispatch.
		writeJSON(w, http.StatusNotFound, Response{OK: false, Error: fmt.Sprintf("script for webhook %q no longer exists", name)})
		return
	case err != nil:
		writeJSON(w, http.StatusInternalServerError, Response{OK: false, Error: err.Error()})
		return
	}

	// A non-zero exit is a normal outcome: the caller gets 200 and reads
	// the status. 500 is reserved for runs the executor could not carry
	// out (timeout kill, spawn failure).
	if res.ExecErr != nil {
		writeJSON(w, http.StatusInternalServerError, Response{OK: false, RunID: res.RunID, Status: res.Status, Error: res.ExecErr.Error()})
		return
	}
	writeJSON(w, http.StatusOK, Response{OK: true, RunID: res.RunID, Status: res.Status})
}

func writeJSON(w http.ResponseWriter, code int, body Response) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.Error("webhook: write response failed", "error", err)
	}
}

// requestLogger tags every request with a short id and logs its outcome.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := uuid.NewString()[:8]
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		slog.Info("webhook: request",
			"id", reqID, "method", r.Method, "path", r.URL.Path,
			"status", rec.status, "elapsed", time.Since(start))
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}
