// Package api exposes the automaton registry and loader over HTTP, plus a
// websocket stream of lifecycle events.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"automata/internal/loader"
	"automata/internal/registry"
	"automata/pkg/automaton"
)

// Registry is the part of the registry served over HTTP.
type Registry interface {
	ListAll() []automaton.Snapshot
	Info(name string) (automaton.Snapshot, bool)
	Shutdown(ctx context.Context, name string) error
	Kill(name string) error
	Restart(ctx context.Context, name string) error
	Conflicts() []registry.Conflict
}

// Loader is the part of the loader served over HTTP.
type Loader interface {
	LoadAll(ctx context.Context) (int, error)
	LoadURL(ctx context.Context, url string) (int, error)
	History() []loader.PackageLoadRecord
}

// Settings reads and overwrites the stored URL list and blacklist.
type Settings interface {
	URLs(ctx context.Context) ([]string, error)
	SetURLs(ctx context.Context, urls []string) error
	Blacklist(ctx context.Context) ([]string, error)
	SetBlacklist(ctx context.Context, names []string) error
}

// Server provides HTTP API endpoints for the automaton host
type Server struct {
	registry Registry
	loader   Loader
	settings Settings
	hub      *Hub
	logger   *zap.Logger
	server   *http.Server
	mux      *http.ServeMux
}

// NewServer creates a new API server. hub may be nil, in which case /ws is
// not served.
func NewServer(reg Registry, ld Loader, settings Settings, hub *Hub, logger *zap.Logger, port int) *Server {
	s := &Server{
		registry: reg,
		loader:   ld,
		settings: settings,
		hub:      hub,
		logger:   logger.Named("api"),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleSitemap)
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /api/automata", s.handleListAutomata)
	mux.HandleFunc("GET /api/automata/{name}", s.handleGetAutomaton)
	mux.HandleFunc("POST /api/automata/{name}/{op}", s.handleOperation)
	mux.HandleFunc("GET /api/conflicts", s.handleConflicts)
	mux.HandleFunc("GET /api/packages", s.handlePackages)
	mux.HandleFunc("POST /api/packages/load", s.handleLoad)
	mux.HandleFunc("GET /api/settings/urls", s.handleGetList(settings.URLs))
	mux.HandleFunc("PUT /api/settings/urls", s.handlePutList(settings.SetURLs))
	mux.HandleFunc("GET /api/settings/blacklist", s.handleGetList(settings.Blacklist))
	mux.HandleFunc("PUT /api/settings/blacklist", s.handlePutList(settings.SetBlacklist))
	if hub != nil {
		mux.Handle("GET /ws", hub)
	}
	s.mux = mux

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 2 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// Handler returns the request router.
func (s *Server) Handler() http.Handler {
	return s.mux
}

// errorResponse is the JSON body of every non-2xx API response
type errorResponse struct {
	Error string `json:"error"`
}

// LoadRequest is the optional body of POST /api/packages/load
type LoadRequest struct {
	URL string `json:"url"`
}

// LoadResponse reports how many automata a load request loaded
type LoadResponse struct {
	AutomataLoaded int      `json:"automata_loaded"`
	Errors         []string `json:"errors,omitempty"`
}

// OperationResponse acknowledges a lifecycle operation
type OperationResponse struct {
	Name      string `json:"name"`
	Operation string `json:"operation"`
	OK        bool   `json:"ok"`
}

func (s *Server) handleListAutomata(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.registry.ListAll())
}

func (s *Server) handleGetAutomaton(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	info, ok := s.registry.Info(name)
	if !ok {
		s.writeError(w, http.StatusNotFound, fmt.Sprintf("automaton %q is not loaded", name))
		return
	}
	s.writeJSON(w, http.StatusOK, info)
}

// handleOperation runs shutdown, kill or restart. Operations outlive the
// request so a disconnecting client cannot leave a restart half done.
func (s *Server) handleOperation(w http.ResponseWriter, r *http.Request) {
	name, op := r.PathValue("name"), r.PathValue("op")
	ctx := context.WithoutCancel(r.Context())

	var err error
	switch op {
	case "shutdown":
		err = s.registry.Shutdown(ctx, name)
	case "kill":
		err = s.registry.Kill(name)
	case "restart":
		err = s.registry.Restart(ctx, name)
	default:
		s.writeError(w, http.StatusNotFound, fmt.Sprintf("unknown operation %q", op))
		return
	}

	if err != nil {
		status := http.StatusConflict
		if errors.Is(err, registry.ErrNotLoaded) {
			status = http.StatusNotFound
		}
		s.writeError(w, status, err.Error())
		return
	}

	s.logger.Info("Operation completed",
		zap.String("op", op),
		zap.String("automaton", name),
		zap.String("remote_addr", r.RemoteAddr))
	s.writeJSON(w, http.StatusOK, OperationResponse{Name: name, Operation: op, OK: true})
}

func (s *Server) handleConflicts(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.registry.Conflicts())
}

func (s *Server) handlePackages(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.loader.History())
}

// handleLoad loads every configured URL, or just the URL in the body.
func (s *Server) handleLoad(w http.ResponseWriter, r *http.Request) {
	var req LoadRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			s.writeError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
			return
		}
	}

	ctx := context.WithoutCancel(r.Context())

	var (
		n   int
		err error
	)
	if url := strings.TrimSpace(req.URL); url != "" {
		n, err = s.loader.LoadURL(ctx, url)
	} else {
		n, err = s.loader.LoadAll(ctx)
	}

	resp := LoadResponse{AutomataLoaded: n}
	status := http.StatusOK
	if err != nil {
		resp.Errors = splitErrors(err)
		status = http.StatusBadGateway
		if n > 0 {
			status = http.StatusMultiStatus
		}
	}
	s.writeJSON(w, status, resp)
}

func splitErrors(err error) []string {
	var out []string
	for _, e := range multierr.Errors(err) {
		out = append(out, e.Error())
	}
	return out
}

func (s *Server) handleGetList(get func(context.Context) ([]string, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		values, err := get(r.Context())
		if err != nil {
			s.logger.Error("Failed to read setting", zap.String("path", r.URL.Path), zap.Error(err))
			s.writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		s.writeJSON(w, http.StatusOK, values)
	}
}

func (s *Server) handlePutList(set func(context.Context, []string) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var values []string
		if err := json.NewDecoder(r.Body).Decode(&values); err != nil {
			s.writeError(w, http.StatusBadRequest, "expected a JSON array of strings: "+err.Error())
			return
		}
		if values == nil {
			values = []string{}
		}
		if err := set(r.Context(), values); err != nil {
			s.logger.Error("Failed to write setting", zap.String("path", r.URL.Path), zap.Error(err))
			s.writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		s.logger.Info("Setting updated", zap.String("path", r.URL.Path), zap.Int("entries", len(values)))
		s.writeJSON(w, http.StatusOK, values)
	}
}

// handleHealth returns a simple health check response
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"loaded":  len(s.registry.ListAll()),
		"clients": s.clients(),
	})
}

func (s *Server) clients() int {
	if s.hub == nil {
		return 0
	}
	return s.hub.Clients()
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("Failed to encode response", zap.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, errorResponse{Error: msg})
}

// Start begins serving HTTP requests
func (s *Server) Start() error {
	s.logger.Info("Starting HTTP API server", zap.String("addr", s.server.Addr))

	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("HTTP server error", zap.Error(err))
		}
	}()

	return nil
}

// Stop gracefully shuts down the HTTP server
func (s *Server) Stop() error {
	s.logger.Info("Stopping HTTP API server")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if s.hub != nil {
		s.hub.Close()
	}
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown HTTP server: %w", err)
	}

	return nil
}
