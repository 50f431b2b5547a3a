// Copyright (c) 2024 IoTeX Foundation
// This source code is provided 'as is' and no warranties are given as to title or non-infringement, merchantability
// or fitness for purpose and, to the extent permitted by law, all liability for your use of the code is disclaimed.
// This source code is governed by Apache License 2.0 that can be found in the LICENSE file.

package api

import (
	"context"
	"sync"
)

type (
	streamContextKey struct{}

	// StreamContext tracks the subscriptions opened on one websocket connection
	StreamContext struct {
		writer    Web3ResponseWriter
		listeners map[string]*EntityListener
		mutex     sync.Mutex
	}
)

// AddListener records a subscription of the connection
func (sc *StreamContext) AddListener(id string, l *EntityListener) {
	sc.mutex.Lock()
	defer sc.mutex.Unlock()
	sc.listeners[id] = l
}

// RemoveListener forgets a subscription, returning false if the connection does not own it
func (sc *StreamContext) RemoveListener(id string) bool {
	sc.mutex.Lock()
	defer sc.mutex.Unlock()
	if _, ok := sc.listeners[id]; !ok {
		return false
	}
	delete(sc.listeners, id)
	return true
}

// Close removes every subscription of the connection
func (sc *StreamContext) Close() {
	sc.mutex.Lock()
	defer sc.mutex.Unlock()
	for id, l := range sc.listeners {
		_, _ = l.RemoveResponder(id)
		delete(sc.listeners, id)
	}
}

// WithStreamContext attaches a stream writing notifications to w
func WithStreamContext(ctx context.Context, w Web3ResponseWriter) context.Context {
	return context.WithValue(ctx, streamContextKey{}, &StreamContext{
		writer:    w,
		listeners: make(map[string]*EntityListener),
	})
}

// StreamFromContext returns the stream of a websocket request
func StreamFromContext(ctx context.Context) (*StreamContext, bool) {
	sc, ok := ctx.Value(streamContextKey{}).(*StreamContext)
	return sc, ok
}
