// Package api is the thin HTTP transport over the intake service. It does
// session cookies, JSON framing, and telemetry headers; all policy lives in
// the core packages.
package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/querl369/adobe-stock-uploader-sub000/internal/processing/intake"
	"github.com/querl369/adobe-stock-uploader-sub000/internal/quota"
)

// Server exposes the batch API plus health and metrics endpoints.
type Server struct {
	handler *Handler
	server  *http.Server
}

// NewServer builds the HTTP server on the given port.
func NewServer(svc *intake.Service, reg *quota.Registry, port int, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	h := &Handler{svc: svc, quota: reg, log: log}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/batches", h.handleStartBatch)
	mux.HandleFunc("GET /api/batches/{id}", h.handleBatchStatus)
	mux.HandleFunc("GET /api/batches/{id}/items/{itemID}", h.handleItemResult)
	mux.HandleFunc("GET /api/quota", h.handleQuota)
	mux.HandleFunc("GET /healthz", h.handleHealth)
	mux.Handle("GET /metrics", promhttp.Handler())

	return &Server{
		handler: h,
		server: &http.Server{
			Addr:    fmt.Sprintf(":%d", port),
			Handler: mux,
		},
	}
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	return s.server.ListenAndServe()
}

// Stop shuts the server down gracefully.
func (s *Server) Stop(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

// Handler carries the dependencies of the HTTP handlers. Exported so tests
// can mount it on a httptest server.
type Handler struct {
	svc   *intake.Service
	quota *quota.Registry
	log   *slog.Logger
}

// Mux returns a fresh mux with all routes, for tests.
func (s *Server) Mux() http.Handler {
	return s.server.Handler
}
