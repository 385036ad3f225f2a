// Package server exposes the receiving MSH over HTTP.
//
// Routes:
//
//   - POST {basePath}/as4 - Receives inbound AS4 messages. Responses are
//     SOAP envelopes (receipt, error signal or user message reply) or an
//     empty 204 when no back-channel response applies.
//   - GET /health - Liveness probe.
//   - GET /ready  - Readiness probe (checks storage connectivity).
//   - GET /metrics - Prometheus metrics (if enabled).
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sirosfoundation/go-as4-msh/internal/config"
	"github.com/sirosfoundation/go-as4-msh/internal/storage"
	"github.com/sirosfoundation/go-as4-msh/pkg/msh"
)

// Server is the AS4 receiving HTTP server.
type Server struct {
	config   *config.Config
	logger   *slog.Logger
	httpSrv  *http.Server
	receiver *msh.Receiver
	store    storage.Store
}

// New creates the server around a configured receiver.
func New(cfg *config.Config, receiver *msh.Receiver, store storage.Store, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		config:   cfg,
		logger:   logger,
		receiver: receiver,
		store:    store,
	}

	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.Timeout(120 * time.Second))

	s.registerRoutes(r)

	s.httpSrv = &http.Server{
		Handler:      r,
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	return s
}

// Handler returns the route handler, for serving through a caller-owned
// listener.
func (s *Server) Handler() http.Handler {
	return s.httpSrv.Handler
}

// Start begins listening on the configured port.
func (s *Server) Start() error {
	s.httpSrv.Addr = fmt.Sprintf(":%d", s.config.Server.Port)
	s.logger.Info("starting server",
		"addr", s.httpSrv.Addr,
		"tls", s.config.Server.TLS.Enabled)
	if s.config.Server.TLS.Enabled {
		return s.httpSrv.ListenAndServeTLS(
			s.config.Server.TLS.CertFile,
			s.config.Server.TLS.KeyFile,
		)
	}
	return s.httpSrv.ListenAndServe()
}

// Shutdown gracefully stops the server and closes storage.
func (s *Server) Shutdown(ctx context.Context) error {
	if err := s.httpSrv.Shutdown(ctx); err != nil {
		return err
	}
	if s.store != nil {
		return s.store.Close(ctx)
	}
	return nil
}

func (s *Server) registerRoutes(r chi.Router) {
	basePath := strings.TrimSuffix(s.config.Server.BasePath, "/")

	r.Get("/health", s.handleHealth)
	r.Get("/ready", s.handleReady)

	if s.config.Server.Metrics.Enabled {
		r.Handle(s.config.Server.Metrics.Path, promhttp.Handler())
	}

	r.Post(basePath+"/as4", s.handleInbound)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.jsonResponse(w, map[string]string{"status": "ok"}, http.StatusOK)
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.store != nil {
		if err := s.store.Ping(r.Context()); err != nil {
			s.jsonResponse(w, map[string]string{"status": "storage unavailable"}, http.StatusServiceUnavailable)
			return
		}
	}
	s.jsonResponse(w, map[string]string{"status": "ready"}, http.StatusOK)
}

func (s *Server) handleInbound(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	s.logger.Info("received AS4 request",
		"remote", r.RemoteAddr,
		"content-type", r.Header.Get("Content-Type"),
		"content-length", r.ContentLength)

	body := &countingReader{r: r.Body}
	verdict := s.receiver.Receive(r.Context(), msh.RequestInfo{
		RemoteAddr: r.RemoteAddr,
		Headers:    r.Header,
		ReceivedAt: start,
	}, body, r.Header.Get("Content-Type"))

	requestBytesCounter.Add(float64(body.n))
	status := strconv.Itoa(verdict.Status)
	messagesReceivedCounter.WithLabelValues(status).Inc()
	processingDurationHist.WithLabelValues(status).Observe(time.Since(start).Seconds())

	if verdict.ContentType != "" {
		w.Header().Set("Content-Type", verdict.ContentType)
	}
	w.WriteHeader(verdict.Status)
	if len(verdict.Body) > 0 {
		if _, err := w.Write(verdict.Body); err != nil {
			s.logger.Warn("writing response failed", "remote", r.RemoteAddr, "error", err)
		}
	}
}

func (s *Server) jsonResponse(w http.ResponseWriter, data any, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}
