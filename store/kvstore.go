// Copyright (c) 2024 IoTeX Foundation
// This source code is provided 'as is' and no warranties are given as to title or non-infringement, merchantability
// or fitness for purpose and, to the extent permitted by law, all liability for your use of the code is disclaimed.
// This source code is governed by Apache License 2.0 that can be found in the LICENSE file.

package store

import (
	"context"
	"fmt"

	"github.com/ipfs/go-cid"
	"github.com/pkg/errors"

	"github.com/iotexproject/rlay-client/db"
	"github.com/iotexproject/rlay-client/entity"
)

const (
	_entityNS = "entity"
)

// kvStore keeps entities in a db.KVStore: the blob under the identifier and
// one index namespace per kind. Both are written in a single batch.
type kvStore struct {
	kv db.KVStore
}

// NewKVStore wraps a KV store as an entity store
func NewKVStore(kv db.KVStore) EntityStore {
	return &kvStore{kv: kv}
}

func kindNS(k entity.Kind) string {
	return fmt.Sprintf("kind_%x", uint64(k))
}

func (s *kvStore) Start(ctx context.Context) error {
	return s.kv.Start(ctx)
}

func (s *kvStore) Stop(ctx context.Context) error {
	return s.kv.Stop(ctx)
}

func (s *kvStore) Put(_ context.Context, e *entity.Entity) error {
	id, data, err := encodeForPut(e)
	if err != nil {
		return err
	}
	b := db.NewBatch()
	b.Put(_entityNS, id.Bytes(), data)
	b.Put(kindNS(e.Kind), id.Bytes(), []byte{})
	if err := s.kv.WriteBatch(b); err != nil {
		return transient(err, "failed to put entity %s", entity.HexID(id))
	}
	return nil
}

func (s *kvStore) Get(_ context.Context, id cid.Cid) (*entity.Entity, error) {
	data, err := s.kv.Get(_entityNS, id.Bytes())
	switch errors.Cause(err) {
	case nil:
		return decodeStored(id, data)
	case db.ErrNotExist, db.ErrBucketNotExist:
		return nil, errors.Wrapf(ErrNotFound, "entity %s", entity.HexID(id))
	default:
		return nil, transient(err, "failed to get entity %s", entity.HexID(id))
	}
}

func (s *kvStore) ListByKind(_ context.Context, k entity.Kind) ([]cid.Cid, error) {
	var ids []cid.Cid
	if err := s.kv.ForEach(kindNS(k), func(key, _ []byte) error {
		id, err := cid.Cast(key)
		if err != nil {
			return errors.Wrapf(err, "corrupted index key %x", key)
		}
		ids = append(ids, id)
		return nil
	}); err != nil {
		return nil, transient(err, "failed to list %s", k)
	}
	return ids, nil
}

func (s *kvStore) Exists(_ context.Context, id cid.Cid) (bool, error) {
	_, err := s.kv.Get(_entityNS, id.Bytes())
	switch errors.Cause(err) {
	case nil:
		return true, nil
	case db.ErrNotExist, db.ErrBucketNotExist:
		return false, nil
	default:
		return false, transient(err, "failed to check entity %s", entity.HexID(id))
	}
}
