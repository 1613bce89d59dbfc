// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package server hosts research runs over HTTP. A run streams its progress
// as Server-Sent Events; session memory is readable and clearable through
// plain JSON endpoints.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/pdiddy/deep-research/internal/coordinator"
	"github.com/pdiddy/deep-research/internal/logging"
	"github.com/pdiddy/deep-research/internal/progress"
	"github.com/pdiddy/deep-research/pkg/types"
)

// HeartbeatInterval is the gap between SSE keep-alive comments. Tests
// shorten it.
var HeartbeatInterval = 15 * time.Second

// maxRequestBody bounds the research request body.
const maxRequestBody = 1 << 20

// Researcher runs one research query.
type Researcher interface {
	Research(ctx context.Context, session, query string, sink progress.Sink) (*coordinator.Run, error)
}

// Memory is the part of session memory the server exposes.
type Memory interface {
	Get(session, query string) (types.ResearchRecord, bool)
	AllTaskResults(session, query string) map[string]types.TaskResult
	Clear(session string)
}

// ResearchRequest is the body of POST /v1/research.
type ResearchRequest struct {
	Query string `json:"query"`
	// SessionID groups runs in memory. Empty starts a fresh session.
	SessionID string `json:"session_id"`
}

// Server serves the research HTTP API.
type Server struct {
	researcher Researcher
	memory     Memory
	logger     *zap.Logger
	mux        *http.ServeMux
}

// New returns a Server with its routes registered.
func New(r Researcher, m Memory, logger *zap.Logger) *Server {
	s := &Server{researcher: r, memory: m, logger: logging.OrNop(logger), mux: http.NewServeMux()}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.mux.HandleFunc("POST /v1/research", s.handleResearch)
	s.mux.HandleFunc("GET /v1/sessions/{session}/research", s.handleGetResearch)
	s.mux.HandleFunc("GET /v1/sessions/{session}/tasks", s.handleGetTasks)
	s.mux.HandleFunc("DELETE /v1/sessions/{session}", s.handleClearSession)
	s.mux.HandleFunc("GET /healthz", s.handleHealth)
	s.mux.Handle("GET /metrics", promhttp.Handler())
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler { return s.mux }

// Run serves on cfg.Addr until ctx is canceled, then shuts down gracefully
// within cfg.ShutdownTimeout.
func (s *Server) Run(ctx context.Context, cfg types.ServerConfig) error {
	ln, err := net.Listen("tcp", cfg.Addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", cfg.Addr, err)
	}
	return s.Serve(ctx, ln, cfg.ShutdownTimeout)
}

// Serve serves on ln until ctx is canceled.
func (s *Server) Serve(ctx context.Context, ln net.Listener, shutdownTimeout time.Duration) error {
	srv := &http.Server{
		Handler:           s.mux,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s.logger.Info("server listening", zap.String("addr", ln.Addr().String()))
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serving: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		s.logger.Info("server shutting down")
		if err := srv.Shutdown(sctx); err != nil {
			return fmt.Errorf("shutting down: %w", err)
		}
		return nil
	})
	return g.Wait()
}

// handleResearch runs a query and streams its progress.
// POST /v1/research {"query": "...", "session_id": "..."}
func (s *Server) handleResearch(w http.ResponseWriter, r *http.Request) {
	var req ResearchRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	req.Query = strings.TrimSpace(req.Query)
	if req.Query == "" {
		writeError(w, http.StatusBadRequest, "query required")
		return
	}
	if req.SessionID == "" {
		req.SessionID = uuid.NewString()
	}

	if _, ok := w.(http.Flusher); !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.Header().Set("X-Session-ID", req.SessionID)
	w.WriteHeader(http.StatusOK)

	sink := NewSSESink(w)
	sink.comment("session " + req.SessionID)

	done := make(chan struct{})
	hbDone := make(chan struct{})
	go func() {
		defer close(hbDone)
		sink.heartbeat(HeartbeatInterval, done)
	}()
	defer func() {
		close(done)
		<-hbDone
	}()

	ctx := r.Context()
	run, err := s.researcher.Research(ctx, req.SessionID, req.Query, sink)
	if err != nil {
		if ctx.Err() != nil {
			s.logger.Info("SSE client disconnected", zap.String("session", req.SessionID))
			return
		}
		fields := []zap.Field{zap.String("session", req.SessionID), zap.Error(err)}
		if run != nil {
			fields = append(fields, zap.Int("completed_tasks", len(run.Results)))
		}
		s.logger.Warn("research failed", fields...)
		_ = sink.Error(ctx, err)
	}
}

// handleGetResearch returns the stored record for a query.
// GET /v1/sessions/{session}/research?query=<q>
func (s *Server) handleGetResearch(w http.ResponseWriter, r *http.Request) {
	session, query, ok := sessionQuery(w, r)
	if !ok {
		return
	}
	rec, found := s.memory.Get(session, query)
	if !found {
		writeError(w, http.StatusNotFound, "no research stored for query")
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// handleGetTasks returns the stored task results for a query, keyed by task.
// GET /v1/sessions/{session}/tasks?query=<q>
func (s *Server) handleGetTasks(w http.ResponseWriter, r *http.Request) {
	session, query, ok := sessionQuery(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, s.memory.AllTaskResults(session, query))
}

// handleClearSession drops everything stored for a session.
// DELETE /v1/sessions/{session}
func (s *Server) handleClearSession(w http.ResponseWriter, r *http.Request) {
	session := r.PathValue("session")
	s.memory.Clear(session)
	s.logger.Info("session cleared", zap.String("session", session))
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func sessionQuery(w http.ResponseWriter, r *http.Request) (session, query string, ok bool) {
	session = r.PathValue("session")
	query = r.URL.Query().Get("query")
	if query == "" {
		writeError(w, http.StatusBadRequest, "query required")
		return "", "", false
	}
	return session, query, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
