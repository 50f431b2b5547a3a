// Copyright (c) 2019 IoTeX Foundation
// This is an alpha (internal) release and is not suitable for production. This source code is provided 'as is' and no
// warranties are given as to title or non-infringement, merchantability or fitness for purpose and, to the extent
// permitted by law, all liability for your use of the code is disclaimed. This source code is governed by Apache
// License 2.0 that can be found in the LICENSE file.

package probe

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/atomic"
	"go.uber.org/zap"

	"github.com/iotexproject/rlay-client/pkg/log"
	"github.com/iotexproject/rlay-client/pkg/util/httputil"
)

// StatusFunc reports a JSON-serializable snapshot of the service state
type StatusFunc func() interface{}

// Server is a http server for service probe.
type Server struct {
	ready            atomic.Bool
	server           http.Server
	readinessHandler http.Handler
	status           StatusFunc
}

// Option is ued to set probe server's options.
type Option func(*Server)

// WithReadinessHandler is an option to set a readiness handler for probe server.
func WithReadinessHandler(h http.Handler) Option {
	return func(s *Server) { s.readinessHandler = h }
}

// WithStatus exposes the given snapshot on /status
func WithStatus(f StatusFunc) Option {
	return func(s *Server) { s.status = f }
}

// New creates a new probe server.
func New(port int, opts ...Option) *Server {
	s := &Server{
		readinessHandler: http.HandlerFunc(successHandleFunc),
	}
	for _, opt := range opts {
		opt(s)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/liveness", successHandleFunc)
	readiness := func(w http.ResponseWriter, r *http.Request) {
		if !s.ready.Load() {
			failureHandleFunc(w, r)
			return
		}
		s.readinessHandler.ServeHTTP(w, r)
	}
	mux.HandleFunc("/readiness", readiness)
	mux.HandleFunc("/health", readiness)
	mux.HandleFunc("/status", s.handleStatus)
	mux.Handle("/metrics", promhttp.Handler())

	s.server = httputil.NewServer(fmt.Sprintf(":%d", port), mux)
	return s
}

// Handler returns the probe handler
func (s *Server) Handler() http.Handler { return s.server.Handler }

// Start starts the probe server and starts returning success status on liveness endpoint.
func (s *Server) Start(_ context.Context) error {
	ln, err := httputil.LimitListener(s.server.Addr)
	if err != nil {
		return err
	}
	go func() {
		if err := s.server.Serve(ln); err != nil && err != http.ErrServerClosed {
			log.L().Info("Probe server stopped.", zap.Error(err))
		}
	}()
	return nil
}

// Ready makes the probe server starts returning status on readiness and
// health endpoint.
func (s *Server) Ready() { s.ready.Store(true) }

// NotReady makes the probe server starts returning failure status on readiness and
// health endpoint.
func (s *Server) NotReady() { s.ready.Store(false) }

// Stop shutdown the probe server.
func (s *Server) Stop(ctx context.Context) error { return s.server.Shutdown(ctx) }

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	if s.status == nil {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(s.status()); err != nil {
		log.L().Warn("Failed to send status response.", zap.Error(err))
	}
}

func successHandleFunc(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte("OK")); err != nil {
		log.L().Warn("Failed to send http response.", zap.Error(err))
	}
}

func failureHandleFunc(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusServiceUnavailable)
	if _, err := w.Write([]byte("FAIL")); err != nil {
		log.L().Warn("Failed to send http response.", zap.Error(err))
	}
}
