// Package server exposes the HTTP surface of the exchange daemon: the
// signed HUMAN protocol endpoints, a small admin surface for lifecycle
// transitions, and health/statistics probes.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/raphaelgruber/annobridge/internal/events"
	"github.com/raphaelgruber/annobridge/internal/exchange"
	"github.com/raphaelgruber/annobridge/internal/messages"
	"github.com/raphaelgruber/annobridge/internal/models"
)

// APIBase is the path prefix of the HUMAN protocol endpoints.
const APIBase = "/human-protocol/v1"

const shutdownTimeout = 10 * time.Second

// Server is the exchange HTTP daemon.
type Server struct {
	httpServer *http.Server
	exchange   *exchange.Service
	projects   exchange.ProjectRegistry
	bus        *events.Bus
	logger     *slog.Logger
}

// New builds the daemon. humanKey is the inbound signing key guarding the
// protocol endpoints; the wildcard key disables verification.
func New(addr, humanKey string, svc *exchange.Service, projects exchange.ProjectRegistry, bus *events.Bus, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		exchange: svc,
		projects: projects,
		bus:      bus,
		logger:   logger,
	}

	gate := SignatureGate(humanKey, logger)

	mux := http.NewServeMux()
	mux.Handle("POST "+APIBase+"/submitJob", gate(http.HandlerFunc(s.handleSubmitJob)))
	mux.Handle("POST "+APIBase+"/submitJobManifest", gate(http.HandlerFunc(s.handleSubmitJobManifest)))
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /stats", s.handleStats)
	mux.HandleFunc("POST /admin/v1/projects/{slug}/state", s.handleProjectState)

	s.httpServer = &http.Server{
		Addr:    addr,
		Handler: Recover(logger, RequestLogging(logger, mux)),
	}
	return s
}

// Handler exposes the configured handler chain. Intended for tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Run serves until the context is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http server listening", "addr", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

// handleSubmitJob accepts a signed job submission. The response is only
// ever Created or Rejected; failure detail stays in the logs.
func (s *Server) handleSubmitJob(w http.ResponseWriter, r *http.Request) {
	if !SignatureValid(r.Context()) {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	var req messages.JobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.logger.Warn("malformed job request", "error", err)
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	if err := s.exchange.CreateJob(r.Context(), req); err != nil {
		s.logger.Error("job submission failed", "job_address", req.JobAddress, "error", err)
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	w.WriteHeader(http.StatusCreated)
}

// handleSubmitJobManifest accepts an inline manifest instead of a manifest
// URI; job address and network id come as query parameters. The manifest
// body is spooled to a temporary file so the regular intake path can fetch
// it; the file is removed when the submission completes.
func (s *Server) handleSubmitJobManifest(w http.ResponseWriter, r *http.Request) {
	if !SignatureValid(r.Context()) {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	jobAddress := r.URL.Query().Get("jobAddress")
	networkID, err := strconv.Atoi(r.URL.Query().Get("networkId"))
	if jobAddress == "" || err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	tmp, err := os.CreateTemp("", "annobridge-manifest-*.json")
	if err != nil {
		s.logger.Error("manifest spool failed", "error", err)
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.ReadFrom(r.Body); err != nil {
		tmp.Close()
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	if err := tmp.Close(); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	req := messages.JobRequest{
		JobAddress:  jobAddress,
		NetworkID:   networkID,
		JobManifest: "file://" + tmp.Name(),
	}
	if err := s.exchange.CreateJob(r.Context(), req); err != nil {
		s.logger.Error("job submission failed", "job_address", jobAddress, "error", err)
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	w.WriteHeader(http.StatusCreated)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func (s *Server) handleStats(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(s.exchange.Metrics().Snapshot())
}

// handleProjectState is the lifecycle ingress of the annotation surface: it
// records the new project state and dispatches the transition to the event
// bus, which drives auto-curation and result publication.
func (s *Server) handleProjectState(w http.ResponseWriter, r *http.Request) {
	slug := r.PathValue("slug")

	var body struct {
		State models.ProjectState `json:"state"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "malformed body", http.StatusBadRequest)
		return
	}
	switch body.State {
	case models.ProjectStateNew, models.ProjectStateAnnotationInProgress,
		models.ProjectStateAnnotationFinished, models.ProjectStateCurationInProgress,
		models.ProjectStateCurationFinished:
	default:
		http.Error(w, "unknown project state", http.StatusBadRequest)
		return
	}

	project, err := s.projects.GetProject(r.Context(), slug)
	if err != nil {
		http.Error(w, "project not found", http.StatusNotFound)
		return
	}
	if err := s.projects.SetProjectState(r.Context(), slug, body.State); err != nil {
		s.logger.Error("state transition failed", "project", slug, "error", err)
		http.Error(w, "transition failed", http.StatusInternalServerError)
		return
	}

	s.bus.Publish(events.ProjectStateChanged{
		ProjectSlug: slug,
		OldState:    project.State,
		NewState:    body.State,
	})

	w.WriteHeader(http.StatusNoContent)
}
