// Copyright (c) 2019 IoTeX Foundation
// This is an alpha (internal) release and is not suitable for production. This source code is provided 'as is' and no
// warranties are given as to title or non-infringement, merchantability or fitness for purpose and, to the extent
// permitted by law, all liability for your use of the code is disclaimed. This source code is governed by Apache
// License 2.0 that can be found in the LICENSE file.

package httputil

import (
	"net"
	"net/http"
	"time"

	"golang.org/x/net/netutil"
)

const (
	_connectionCount = 400
)

type (
	// ServerConfig is a struct for http server config
	ServerConfig struct {
		ReadHeaderTimeout time.Duration
		ReadTimeout       time.Duration
		WriteTimeout      time.Duration
		IdleTimeout       time.Duration
	}

	// ServerOption is a server option
	ServerOption func(cfg *ServerConfig)
)

// DefaultServerConfig is the default server config
var DefaultServerConfig = ServerConfig{
	ReadHeaderTimeout: 2 * time.Second,
	ReadTimeout:       30 * time.Second,
	WriteTimeout:      30 * time.Second,
	IdleTimeout:       5 * time.Second,
}

// ReadHeaderTimeout sets header timeout
func ReadHeaderTimeout(h time.Duration) ServerOption {
	return func(cfg *ServerConfig) {
		cfg.ReadHeaderTimeout = h
	}
}

// NewServer creates a HTTP server with time out settings.
func NewServer(addr string, handler http.Handler, opts ...ServerOption) http.Server {
	cfg := DefaultServerConfig
	for _, opt := range opts {
		opt(&cfg)
	}

	return http.Server{
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		ReadTimeout:       cfg.ReadTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
		Addr:              addr,
		Handler:           handler,
	}
}

// LimitListener returns a Listener that accepts at most n simultaneous
// connections from the provided Listener.
func LimitListener(addr string) (net.Listener, error) {
	if addr == "" {
		addr = ":http"
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	return netutil.LimitListener(ln, _connectionCount), nil
}
