// Copyright (c) 2024 IoTeX Foundation
// This source code is provided 'as is' and no warranties are given as to title or non-infringement, merchantability
// or fitness for purpose and, to the extent permitted by law, all liability for your use of the code is disclaimed.
// This source code is governed by Apache License 2.0 that can be found in the LICENSE file.

package api

import (
	"context"
	"net/http"

	"github.com/pkg/errors"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/iotexproject/rlay-client/pkg/log"
	"github.com/iotexproject/rlay-client/pkg/tracer"
	"github.com/iotexproject/rlay-client/store"
)

const _websocketPath = "/ws"

// Server serves the JSON-RPC facade over http and websocket
type Server struct {
	core     *coreService
	handler  http.Handler
	httpSvr  *HTTPServer
	provider *sdktrace.TracerProvider
}

// NewServer creates the facade over the entity stores of every backend
func NewServer(cfg Config, stores map[string]store.EntityStore, defaultBackend string, opts ...Option) (*Server, error) {
	if _, ok := stores[defaultBackend]; !ok {
		return nil, errors.Wrapf(ErrUnknownBackend, "default backend %s", defaultBackend)
	}
	core := newCoreService(stores, defaultBackend, opts...)
	web3 := newWeb3Handler(core, cfg.BatchRequestLimit)
	httpHandler, err := newHTTPHandler(web3, cfg.UpstreamURL)
	if err != nil {
		return nil, err
	}
	var limiter *rate.Limiter
	if cfg.WebsocketRate > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.WebsocketRate), 1)
	}
	provider, err := tracer.NewProvider(cfg.Tracer.Options()...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create tracer provider")
	}
	mux := http.NewServeMux()
	mux.Handle(_websocketPath, NewWebsocketHandler(web3, limiter))
	mux.Handle("/", httpHandler)
	var handler http.Handler = mux
	if provider != nil {
		handler = otelhttp.NewHandler(mux, "rlay-api", otelhttp.WithTracerProvider(provider))
	}
	return &Server{
		core:     core,
		handler:  handler,
		httpSvr:  NewHTTPServer(cfg.Port, handler),
		provider: provider,
	}, nil
}

// Handler returns the handler of every facade route
func (svr *Server) Handler() http.Handler {
	return svr.handler
}

// Start starts listening if a port is configured
func (svr *Server) Start(ctx context.Context) error {
	if svr.httpSvr == nil {
		return nil
	}
	return svr.httpSvr.Start(ctx)
}

// Stop stops the listener and flushes the pending spans
func (svr *Server) Stop(ctx context.Context) error {
	if svr.provider != nil {
		defer func() {
			if err := svr.provider.Shutdown(ctx); err != nil {
				log.L().Warn("failed to shutdown tracer provider", zap.Error(err))
			}
		}()
	}
	if svr.httpSvr == nil {
		return nil
	}
	return svr.httpSvr.Stop(ctx)
}
