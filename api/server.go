// Package api exposes the running simulation over HTTP: health, status,
// rolling-window summary, recent samples, Prometheus metrics and a websocket
// stream.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kilianp07/enginesim/core/analyzer"
	"github.com/kilianp07/enginesim/core/model"
	"github.com/kilianp07/enginesim/infra/logger"
)

// Status describes the current run.
type Status struct {
	RunID       string        `json:"run_id"`
	EngineState string        `json:"engine_state"`
	Elapsed     time.Duration `json:"elapsed"`
	Steps       int           `json:"steps"`
	Failures    int           `json:"failures"`
	Skipped     int           `json:"skipped"`
	Last        *model.Sample `json:"last_sample,omitempty"`
}

// Source provides the data served by the API. Implementations must be safe
// for concurrent use.
type Source interface {
	Status() Status
	Summary() (analyzer.Report, bool)
	Samples() []model.Sample
}

// Server represents the API server.
type Server struct {
	src    Source
	router *mux.Router
	log    logger.Logger
}

// NewServer creates a new API server. stream, when not nil, is mounted on
// /ws.
func NewServer(src Source, stream http.Handler, log logger.Logger) *Server {
	if log == nil {
		log = logger.NopLogger{}
	}
	s := &Server{src: src, router: mux.NewRouter(), log: log}
	s.setupRoutes(stream)
	return s
}

func (s *Server) setupRoutes(stream http.Handler) {
	s.router.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	s.router.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	if stream != nil {
		s.router.Handle("/ws", stream)
	}

	v1 := s.router.PathPrefix("/api/v1").Subrouter()
	v1.HandleFunc("/status", s.handleStatus).Methods(http.MethodGet)
	v1.HandleFunc("/summary", s.handleSummary).Methods(http.MethodGet)
	v1.HandleFunc("/samples", s.handleSamples).Methods(http.MethodGet)
	v1.Use(jsonMiddleware)

	s.router.Use(s.loggingMiddleware)
}

// Router returns the configured router.
func (s *Server) Router() *mux.Router {
	return s.router
}

// ListenAndServe serves the API on addr until ctx is canceled.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{Addr: addr, Handler: s.router, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := srv.Shutdown(shutdownCtx); err != nil {
			s.log.Errorf("api shutdown: %v", err)
		}
		cancel()
	}()
	s.log.Infof("api listening on %s", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.log.Debugw("http request", map[string]any{
			"method":      r.Method,
			"path":        r.URL.Path,
			"duration_ms": time.Since(start).Milliseconds(),
		})
	})
}

func jsonMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		next.ServeHTTP(w, r)
	})
}

type apiResponse struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(apiResponse{Success: true, Data: data})
}

func respondError(w http.ResponseWriter, status int, message string) {
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(apiResponse{Success: false, Error: message})
}
