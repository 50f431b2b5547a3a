// Copyright (c) 2024 IoTeX Foundation
// This source code is provided 'as is' and no warranties are given as to title or non-infringement, merchantability
// or fitness for purpose and, to the extent permitted by law, all liability for your use of the code is disclaimed.
// This source code is governed by Apache License 2.0 that can be found in the LICENSE file.

package store

import (
	"sort"
	"sync"

	"github.com/pkg/errors"

	"github.com/iotexproject/rlay-client/db"
)

// Builder creates an entity store from its config
type Builder func(Config) (EntityStore, error)

var (
	// ErrUnknownBackend is returned for a backend type without builder
	ErrUnknownBackend = errors.New("unknown backend type")

	_buildersMtx sync.RWMutex
	_builders    = map[string]Builder{
		TypeMemory: func(Config) (EntityStore, error) {
			return NewKVStore(db.NewMemKVStore()), nil
		},
		TypeBolt: func(cfg Config) (EntityStore, error) {
			return newKVBackend(db.DBBolt, cfg)
		},
		TypePebble: func(cfg Config) (EntityStore, error) {
			return newKVBackend(db.DBPebble, cfg)
		},
		TypeRedis: func(cfg Config) (EntityStore, error) {
			return NewRedisStore(cfg.Redis), nil
		},
		TypeSQLite: func(cfg Config) (EntityStore, error) {
			if cfg.DbPath == "" {
				return nil, db.ErrEmptyDBPath
			}
			return NewSQLiteStore(cfg.DbPath), nil
		},
	}
)

func newKVBackend(dbType string, cfg Config) (EntityStore, error) {
	kv, err := db.CreateKVStore(db.Config{
		DBType:     dbType,
		NumRetries: cfg.NumRetries,
	}, cfg.DbPath)
	if err != nil {
		return nil, err
	}
	return NewKVStore(kv), nil
}

// Register adds or replaces the builder of a backend type
func Register(typ string, b Builder) {
	_buildersMtx.Lock()
	defer _buildersMtx.Unlock()
	_builders[typ] = b
}

// Types returns the registered backend types
func Types() []string {
	_buildersMtx.RLock()
	defer _buildersMtx.RUnlock()
	types := make([]string, 0, len(_builders))
	for t := range _builders {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}

// New creates the entity store of a named backend, instrumented with metrics
func New(name string, cfg Config) (EntityStore, error) {
	_buildersMtx.RLock()
	b, ok := _builders[cfg.Type]
	_buildersMtx.RUnlock()
	if !ok {
		return nil, errors.Wrapf(ErrUnknownBackend, "backend %s has type %s", name, cfg.Type)
	}
	s, err := b(cfg)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to build backend %s", name)
	}
	return newInstrumented(name, s), nil
}
