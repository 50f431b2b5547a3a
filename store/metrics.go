// Copyright (c) 2024 IoTeX Foundation
// This source code is provided 'as is' and no warranties are given as to title or non-infringement, merchantability
// or fitness for purpose and, to the extent permitted by law, all liability for your use of the code is disclaimed.
// This source code is governed by Apache License 2.0 that can be found in the LICENSE file.

package store

import (
	"context"

	"github.com/ipfs/go-cid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/iotexproject/rlay-client/entity"
)

var _backendMtc = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "rlay_backend_ops",
		Help: "Entity store operations by backend.",
	},
	[]string{"backend", "method", "result"},
)

func init() {
	prometheus.MustRegister(_backendMtc)
}

// instrumented counts every call of the wrapped store
type instrumented struct {
	EntityStore
	name string
}

func newInstrumented(name string, s EntityStore) EntityStore {
	return &instrumented{EntityStore: s, name: name}
}

func (s *instrumented) observe(method string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	_backendMtc.WithLabelValues(s.name, method, result).Inc()
}

func (s *instrumented) Put(ctx context.Context, e *entity.Entity) error {
	err := s.EntityStore.Put(ctx, e)
	s.observe("put", err)
	return err
}

func (s *instrumented) Get(ctx context.Context, id cid.Cid) (*entity.Entity, error) {
	e, err := s.EntityStore.Get(ctx, id)
	s.observe("get", err)
	return e, err
}

func (s *instrumented) ListByKind(ctx context.Context, k entity.Kind) ([]cid.Cid, error) {
	ids, err := s.EntityStore.ListByKind(ctx, k)
	s.observe("list", err)
	return ids, err
}

func (s *instrumented) Exists(ctx context.Context, id cid.Cid) (bool, error) {
	ok, err := s.EntityStore.Exists(ctx, id)
	s.observe("exists", err)
	return ok, err
}
