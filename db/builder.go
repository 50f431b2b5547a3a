// Copyright (c) 2021 IoTeX Foundation
// This is an alpha (internal) release and is not suitable for production. This source code is provided 'as is' and no
// warranties are given as to title or non-infringement, merchantability or fitness for purpose and, to the extent
// permitted by law, all liability for your use of the code is disclaimed. This source code is governed by Apache
// License 2.0 that can be found in the LICENSE file.

package db

import "github.com/pkg/errors"

var (
	// ErrEmptyDBPath is the error when db path is empty
	ErrEmptyDBPath = errors.New("empty db path")
)

// CreateKVStore creates db from config and db path
func CreateKVStore(cfg Config, dbPath string) (KVStore, error) {
	if cfg.DBType == DBMemory {
		return NewMemKVStore(), nil
	}
	if len(dbPath) == 0 {
		return nil, ErrEmptyDBPath
	}
	cfg.DbPath = dbPath
	switch cfg.DBType {
	case DBPebble:
		return NewPebbleDB(cfg), nil
	case DBBolt, "":
		return NewBoltDB(cfg), nil
	default:
		return nil, errors.Errorf("unsupported db type %s", cfg.DBType)
	}
}
