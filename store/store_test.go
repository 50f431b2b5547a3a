// Copyright (c) 2024 IoTeX Foundation
// This source code is provided 'as is' and no warranties are given as to title or non-infringement, merchantability
// or fitness for purpose and, to the extent permitted by law, all liability for your use of the code is disclaimed.
// This source code is governed by Apache License 2.0 that can be found in the LICENSE file.

package store

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/ipfs/go-cid"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"

	"github.com/iotexproject/rlay-client/entity"
	"github.com/iotexproject/rlay-client/testutil"
)

func testEntity(i int) *entity.Entity {
	return entity.New(entity.KindClassAssertion).
		Set(entity.FieldSubject, []byte(fmt.Sprintf("subject-%d", i))).
		Set(entity.FieldClass, []byte("class"))
}

func snapshot(ctx context.Context, r *require.Assertions, s EntityStore) map[string]string {
	out := make(map[string]string)
	for _, k := range entity.Kinds() {
		ids, err := s.ListByKind(ctx, k)
		r.NoError(err)
		for _, id := range ids {
			e, err := s.Get(ctx, id)
			r.NoError(err)
			data, err := e.Encode()
			r.NoError(err)
			out[entity.HexID(id)] = fmt.Sprintf("%s:%x", k, data)
		}
	}
	return out
}

func testEntityStore(s EntityStore, t *testing.T) {
	r := require.New(t)
	ctx := context.Background()
	r.NoError(s.Start(ctx))
	defer func() {
		r.NoError(s.Stop(ctx))
	}()

	e := testEntity(1)
	id, err := e.ID()
	r.NoError(err)

	ok, err := s.Exists(ctx, id)
	r.NoError(err)
	r.False(ok)
	_, err = s.Get(ctx, id)
	r.Equal(ErrNotFound, errors.Cause(err))

	r.NoError(s.Put(ctx, e))
	once := snapshot(ctx, r, s)
	r.NoError(s.Put(ctx, e))
	r.Equal(once, snapshot(ctx, r, s))
	r.Len(once, 1)

	ok, err = s.Exists(ctx, id)
	r.NoError(err)
	r.True(ok)
	got, err := s.Get(ctx, id)
	r.NoError(err)
	gotID, err := got.ID()
	r.NoError(err)
	r.True(id.Equals(gotID))

	ann := entity.New(entity.KindAnnotation).
		Set(entity.FieldProperty, []byte{0x01}).
		Set(entity.FieldValue, []byte("label"))
	r.NoError(s.Put(ctx, ann))
	ids, err := s.ListByKind(ctx, entity.KindAnnotation)
	r.NoError(err)
	r.Len(ids, 1)
	ids, err = s.ListByKind(ctx, entity.KindClassAssertion)
	r.NoError(err)
	r.Len(ids, 1)
	ids, err = s.ListByKind(ctx, entity.KindIndividual)
	r.NoError(err)
	r.Empty(ids)

	// malformed entity is rejected without touching the store
	bad := entity.New(entity.KindClassAssertion).Set(entity.FieldSubject, []byte("s"))
	r.Equal(entity.ErrEncoding, errors.Cause(s.Put(ctx, bad)))

	// readers run while a single writer commits
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 10; i < 60; i++ {
			if err := s.Put(ctx, testEntity(i)); err != nil {
				t.Error(err)
				return
			}
		}
	}()
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				ids, err := s.ListByKind(ctx, entity.KindClassAssertion)
				if err != nil {
					t.Error(err)
					return
				}
				for _, id := range ids {
					if _, err := s.Get(ctx, id); err != nil {
						t.Error(err)
						return
					}
				}
			}
		}()
	}
	wg.Wait()
	ids, err = s.ListByKind(ctx, entity.KindClassAssertion)
	r.NoError(err)
	r.Len(ids, 51)
}

func TestEntityStore(t *testing.T) {
	t.Run("memory", func(t *testing.T) {
		s, err := New("mem", Config{Type: TypeMemory})
		require.NoError(t, err)
		testEntityStore(s, t)
	})
	t.Run("bolt", func(t *testing.T) {
		path := testutil.DBPath(t, "entity-bolt")
		s, err := New("bolt", Config{Type: TypeBolt, DbPath: path, NumRetries: 3})
		require.NoError(t, err)
		testEntityStore(s, t)
	})
	t.Run("pebble", func(t *testing.T) {
		path := testutil.DBPath(t, "entity-pebble")
		s, err := New("pebble", Config{Type: TypePebble, DbPath: path})
		require.NoError(t, err)
		testEntityStore(s, t)
	})
	t.Run("sqlite", func(t *testing.T) {
		path := testutil.DBPath(t, "entity-sqlite")
		s, err := New("sqlite", Config{Type: TypeSQLite, DbPath: path})
		require.NoError(t, err)
		testEntityStore(s, t)
	})
	t.Run("redis", func(t *testing.T) {
		mr := miniredis.RunT(t)
		s, err := New("redis", Config{Type: TypeRedis, Redis: RedisConfig{Addr: mr.Addr(), Prefix: "rlay"}})
		require.NoError(t, err)
		testEntityStore(s, t)
		// entities and kind index live under the prefix
		require.True(t, mr.Exists("rlay:kind:"+entity.KindAnnotation.String()))
		members, err := mr.Members("rlay:kind:" + entity.KindClassAssertion.String())
		require.NoError(t, err)
		require.Len(t, members, 51)
	})
}

func TestRedisStoreErrors(t *testing.T) {
	r := require.New(t)
	ctx := context.Background()
	mr := miniredis.RunT(t)
	s := NewRedisStore(RedisConfig{Addr: mr.Addr(), Prefix: "rlay"})
	r.NoError(s.Start(ctx))
	defer s.Stop(ctx)

	e := testEntity(1)
	id, err := e.ID()
	r.NoError(err)
	r.NoError(s.Put(ctx, e))

	// a corrupted index member surfaces as an error
	_, err = mr.SAdd("rlay:kind:"+entity.KindIndividual.String(), "zz")
	r.NoError(err)
	_, err = s.ListByKind(ctx, entity.KindIndividual)
	r.Error(err)

	mr.Close()
	_, err = s.Get(ctx, id)
	r.Equal(ErrTransient, errors.Cause(err))
	_, err = s.Exists(ctx, id)
	r.Equal(ErrTransient, errors.Cause(err))
	r.Equal(ErrTransient, errors.Cause(s.Put(ctx, testEntity(2))))

	down := NewRedisStore(RedisConfig{Addr: mr.Addr()})
	r.Equal(ErrTransient, errors.Cause(down.Start(ctx)))
}

type nopStore struct {
	EntityStore
}

func (nopStore) Exists(context.Context, cid.Cid) (bool, error) { return true, nil }

func TestFactory(t *testing.T) {
	r := require.New(t)

	_, err := New("x", Config{Type: "neo4j"})
	r.Equal(ErrUnknownBackend, errors.Cause(err))
	_, err = New("x", Config{Type: TypeBolt})
	r.Error(err)
	_, err = New("x", Config{Type: TypeSQLite})
	r.Error(err)

	Register("nop", func(Config) (EntityStore, error) { return nopStore{}, nil })
	r.Contains(Types(), "nop")
	s, err := New("x", Config{Type: "nop"})
	r.NoError(err)
	ok, err := s.Exists(context.Background(), cid.Undef)
	r.NoError(err)
	r.True(ok)
}
