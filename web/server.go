// Package web serves the local diagnostics endpoints: connection status,
// health, and prometheus metrics. It observes engine state and never takes
// part in the relay protocol itself.
package web

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/hubcast/hubcast/relay"
)

type Server struct {
	addr   string
	engine *relay.Engine
	server *http.Server
}

func NewServer(addr string, engine *relay.Engine, registry *prometheus.Registry) *Server {
	s := &Server{addr: addr, engine: engine}

	r := chi.NewRouter()
	r.Get("/healthz", s.handleHealth)
	r.Get("/status", s.handleStatus)
	r.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

	s.server = &http.Server{Addr: addr, Handler: r}
	return s
}

func (s *Server) Start() error {
	slog.Info("Starting status server", "addr", s.addr)
	err := s.server.ListenAndServe()
	if err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *Server) Shutdown() error {
	slog.Info("Shutting down status server", "addr", s.addr)
	return s.server.Close()
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(s.engine.Status()); err != nil {
		http.Error(w, "Failed to encode status: "+err.Error(), http.StatusInternalServerError)
	}
}
