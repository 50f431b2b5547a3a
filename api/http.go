// Copyright (c) 2024 IoTeX Foundation
// This source code is provided 'as is' and no warranties are given as to title or non-infringement, merchantability
// or fitness for purpose and, to the extent permitted by law, all liability for your use of the code is disclaimed.
// This source code is governed by Apache License 2.0 that can be found in the LICENSE file.

package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/iotexproject/rlay-client/pkg/log"
	"github.com/iotexproject/rlay-client/pkg/tracer"
	"github.com/iotexproject/rlay-client/pkg/util/httputil"
)

const _healthPath = "/health"

type (
	// HTTPServer crates a http server
	HTTPServer struct {
		svr *http.Server
	}

	// hTTPHandler handles requests from http protocol
	hTTPHandler struct {
		msgHandler Web3Handler
		// proxy serves the requests when an upstream is configured
		proxy http.Handler
		sem   *semaphore.Weighted
	}
)

// NewHTTPServer creates a new http server
func NewHTTPServer(port int, handler http.Handler) *HTTPServer {
	if port == 0 {
		return nil
	}
	svr := httputil.NewServer(":"+strconv.Itoa(port), handler, httputil.ReadHeaderTimeout(10*time.Second))
	return &HTTPServer{
		svr: &svr,
	}
}

// Start starts the http server
func (hSvr *HTTPServer) Start(_ context.Context) error {
	go func() {
		if err := hSvr.svr.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.L().Fatal("Node failed to serve.", zap.Error(err))
		}
	}()
	return nil
}

// Stop stops the http server
func (hSvr *HTTPServer) Stop(ctx context.Context) error {
	return hSvr.svr.Shutdown(ctx)
}

// newHTTPHandler creates a new http handler, forwarding unknown methods to upstream if set
func newHTTPHandler(web3Handler *web3Handler, upstream string) (*hTTPHandler, error) {
	h := &hTTPHandler{
		msgHandler: web3Handler,
		sem:        semaphore.NewWeighted(_maxRequestLimit),
	}
	if upstream != "" {
		proxy, err := newProxyHandler(web3Handler, upstream)
		if err != nil {
			return nil, err
		}
		h.proxy = proxy
	}
	return h, nil
}

func (handler *hTTPHandler) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	if req.Method == http.MethodGet && req.URL.Path == _healthPath {
		w.Header().Set("Content-Type", "application/json; charset=UTF-8")
		w.Write([]byte(`{"status":"healthy"}`))
		return
	}
	if req.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	ctx, span := tracer.NewSpan(req.Context(), "http")
	defer span.End()
	acquireCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := handler.sem.Acquire(acquireCtx, 1); err != nil {
		w.WriteHeader(http.StatusTooManyRequests)
		log.L().Error("fail to acquire semaphore", zap.Error(err))
		return
	}
	defer handler.sem.Release(1)

	if handler.proxy != nil {
		handler.proxy.ServeHTTP(w, req.WithContext(ctx))
		return
	}
	if err := handler.msgHandler.HandlePOSTReq(ctx, req.Body,
		NewResponseWriter(
			func(resp interface{}) (int, error) {
				w.Header().Set("Access-Control-Allow-Origin", "*")
				w.Header().Set("Content-Type", "application/json; charset=UTF-8")
				raw, err := json.Marshal(resp)
				if err != nil {
					return 0, err
				}
				return w.Write(raw)
			}),
	); err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		log.L().Error("fail to respond request.", zap.Error(err))
	}
}
