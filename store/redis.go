// Copyright (c) 2024 IoTeX Foundation
// This source code is provided 'as is' and no warranties are given as to title or non-infringement, merchantability
// or fitness for purpose and, to the extent permitted by law, all liability for your use of the code is disclaimed.
// This source code is governed by Apache License 2.0 that can be found in the LICENSE file.

package store

import (
	"context"

	"github.com/go-redis/redis/v8"
	"github.com/ipfs/go-cid"
	"github.com/pkg/errors"

	"github.com/iotexproject/rlay-client/entity"
)

// redisStore keeps each entity as a string key and one set of identifiers per kind.
// Both writes go through MULTI/EXEC so readers never see half an entity.
type redisStore struct {
	cfg    RedisConfig
	client *redis.Client
}

// NewRedisStore creates a redis backed entity store
func NewRedisStore(cfg RedisConfig) EntityStore {
	return &redisStore{cfg: cfg}
}

func (s *redisStore) entityKey(id cid.Cid) string {
	return s.cfg.Prefix + ":entity:" + entity.HexID(id)
}

func (s *redisStore) kindKey(k entity.Kind) string {
	return s.cfg.Prefix + ":kind:" + k.String()
}

func (s *redisStore) Start(ctx context.Context) error {
	s.client = redis.NewClient(&redis.Options{
		Addr:     s.cfg.Addr,
		Password: s.cfg.Password,
		DB:       s.cfg.DB,
	})
	if err := s.client.Ping(ctx).Err(); err != nil {
		return transient(err, "failed to reach redis at %s", s.cfg.Addr)
	}
	return nil
}

func (s *redisStore) Stop(_ context.Context) error {
	if s.client == nil {
		return nil
	}
	return s.client.Close()
}

func (s *redisStore) Put(ctx context.Context, e *entity.Entity) error {
	id, data, err := encodeForPut(e)
	if err != nil {
		return err
	}
	if _, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, s.entityKey(id), data, 0)
		pipe.SAdd(ctx, s.kindKey(e.Kind), entity.HexID(id))
		return nil
	}); err != nil {
		return transient(err, "failed to put entity %s", entity.HexID(id))
	}
	return nil
}

func (s *redisStore) Get(ctx context.Context, id cid.Cid) (*entity.Entity, error) {
	data, err := s.client.Get(ctx, s.entityKey(id)).Bytes()
	if err == redis.Nil {
		return nil, errors.Wrapf(ErrNotFound, "entity %s", entity.HexID(id))
	}
	if err != nil {
		return nil, transient(err, "failed to get entity %s", entity.HexID(id))
	}
	return decodeStored(id, data)
}

func (s *redisStore) ListByKind(ctx context.Context, k entity.Kind) ([]cid.Cid, error) {
	members, err := s.client.SMembers(ctx, s.kindKey(k)).Result()
	if err != nil {
		return nil, transient(err, "failed to list %s", k)
	}
	ids := make([]cid.Cid, 0, len(members))
	for _, m := range members {
		id, err := entity.ParseHexID(m)
		if err != nil {
			return nil, errors.Wrapf(err, "corrupted index member %s", m)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func (s *redisStore) Exists(ctx context.Context, id cid.Cid) (bool, error) {
	n, err := s.client.Exists(ctx, s.entityKey(id)).Result()
	if err != nil {
		return false, transient(err, "failed to check entity %s", entity.HexID(id))
	}
	return n > 0, nil
}
