// Copyright (c) 2024 IoTeX Foundation
// This source code is provided 'as is' and no warranties are given as to title or non-infringement, merchantability
// or fitness for purpose and, to the extent permitted by law, all liability for your use of the code is disclaimed.
// This source code is governed by Apache License 2.0 that can be found in the LICENSE file.

package syncer

import (
	"github.com/pkg/errors"

	"github.com/iotexproject/rlay-client/chain"
	"github.com/iotexproject/rlay-client/db"
	"github.com/iotexproject/rlay-client/pkg/util/byteutil"
)

const _checkpointNS = "checkpoint"

// ErrCheckpoint indicates the checkpoint could not be read or written
var ErrCheckpoint = errors.New("checkpoint error")

// CheckpointStore keeps one checkpoint per backend in a KV store
type CheckpointStore struct {
	kv db.KVStore
}

// NewCheckpointStore creates a checkpoint store on top of kv
func NewCheckpointStore(kv db.KVStore) *CheckpointStore {
	return &CheckpointStore{kv: kv}
}

// Load returns the checkpoint of a backend, nil if it never committed
func (s *CheckpointStore) Load(backend string) (*chain.Position, error) {
	value, err := s.kv.Get(_checkpointNS, []byte(backend))
	switch errors.Cause(err) {
	case nil:
	case db.ErrNotExist, db.ErrBucketNotExist:
		return nil, nil
	default:
		return nil, errors.Wrapf(ErrCheckpoint, "failed to read checkpoint of %s: %v", backend, err)
	}
	if len(value) != 16 {
		return nil, errors.Wrapf(ErrCheckpoint, "invalid checkpoint of %s: %x", backend, value)
	}
	height, err := byteutil.BytesToUint64BigEndian(value[:8])
	if err != nil {
		return nil, err
	}
	index, err := byteutil.BytesToUint64BigEndian(value[8:])
	if err != nil {
		return nil, err
	}
	return &chain.Position{Height: height, LogIndex: index}, nil
}

// Save replaces the checkpoint of a backend in a single write
func (s *CheckpointStore) Save(backend string, p chain.Position) error {
	value := append(byteutil.Uint64ToBytesBigEndian(p.Height), byteutil.Uint64ToBytesBigEndian(p.LogIndex)...)
	if err := s.kv.Put(_checkpointNS, []byte(backend), value); err != nil {
		return errors.Wrapf(ErrCheckpoint, "failed to write checkpoint of %s: %v", backend, err)
	}
	return nil
}
