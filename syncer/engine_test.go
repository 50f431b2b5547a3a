// Copyright (c) 2024 IoTeX Foundation
// This source code is provided 'as is' and no warranties are given as to title or non-infringement, merchantability
// or fitness for purpose and, to the extent permitted by law, all liability for your use of the code is disclaimed.
// This source code is governed by Apache License 2.0 that can be found in the LICENSE file.

package syncer_test

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ipfs/go-cid"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/iotexproject/rlay-client/chain"
	"github.com/iotexproject/rlay-client/db"
	"github.com/iotexproject/rlay-client/entity"
	"github.com/iotexproject/rlay-client/filter"
	"github.com/iotexproject/rlay-client/store"
	"github.com/iotexproject/rlay-client/syncer"
	"github.com/iotexproject/rlay-client/test/mock/mock_chain"
	"github.com/iotexproject/rlay-client/test/mock/mock_store"
)

var (
	_ontology    = common.HexToAddress("0x1000000000000000000000000000000000000001")
	_propLedger  = common.HexToAddress("0x1000000000000000000000000000000000000002")
	_participant = common.HexToAddress("0x00000000000000000000000000000000000000aa")
	_readerCfg   = chain.Config{
		BlockBatchSize: 100,
		Retry: chain.RetryConfig{
			InitialInterval: time.Millisecond,
			MaxInterval:     time.Millisecond,
			MaxRetries:      1,
		},
	}
)

func assertion(subject string) *entity.Entity {
	return entity.New(entity.KindClassAssertion).
		Set(entity.FieldSubject, []byte(subject)).
		Set(entity.FieldClass, []byte("class"))
}

func storedLog(t *testing.T, height uint64, index uint, e *entity.Entity) types.Log {
	data, err := e.Encode()
	require.NoError(t, err)
	id, err := e.ID()
	require.NoError(t, err)
	payload, err := chain.PackEntityStored(id, data)
	require.NoError(t, err)
	return types.Log{
		Address:     _ontology,
		Topics:      []common.Hash{chain.EventTopics()[0]},
		Data:        payload,
		BlockNumber: height,
		Index:       index,
	}
}

func stakeLog(t *testing.T, height uint64, index uint, proposition cid.Cid, amount int64) types.Log {
	payload, err := chain.PackWeightIncreased(proposition, big.NewInt(amount), _participant)
	require.NoError(t, err)
	return types.Log{
		Address:     _propLedger,
		Topics:      []common.Hash{chain.EventTopics()[1]},
		Data:        payload,
		BlockNumber: height,
		Index:       index,
	}
}

func malformedLog(height uint64, index uint) types.Log {
	return types.Log{
		Address:     _ontology,
		Topics:      []common.Hash{chain.EventTopics()[0]},
		Data:        []byte{0x01},
		BlockNumber: height,
		Index:       index,
	}
}

func newEngine(t *testing.T, ledger chain.Ledger, s store.EntityStore, checkpoints *syncer.CheckpointStore, opts ...syncer.Option) *syncer.Engine {
	decoder := chain.NewDecoder(_ontology, _propLedger)
	reader := chain.NewReader(ledger, decoder.Addresses(), _readerCfg)
	e, err := syncer.NewEngine("default", reader, decoder, s, checkpoints, append([]syncer.Option{syncer.WithStartHeight(100)}, opts...)...)
	require.NoError(t, err)
	return e
}

func newMemStore(t *testing.T) store.EntityStore {
	s := store.NewKVStore(db.NewMemKVStore())
	require.NoError(t, s.Start(context.Background()))
	return s
}

func TestEngineSkipsMalformedEvent(t *testing.T) {
	r := require.New(t)
	ctrl := gomock.NewController(t)
	ledger := mock_chain.NewMockLedger(ctrl)
	s := newMemStore(t)
	checkpoints := syncer.NewCheckpointStore(db.NewMemKVStore())
	var committed []chain.Position
	e := newEngine(t, ledger, s, checkpoints, syncer.WithCommitHook(func(backend string, cp chain.Position) {
		r.Equal("default", backend)
		committed = append(committed, cp)
	}))
	ctx := context.Background()

	valid := assertion("alice")
	ledger.EXPECT().TipHeight(gomock.Any()).Return(uint64(101), nil)
	ledger.EXPECT().FilterLogs(gomock.Any(), uint64(100), uint64(101), gomock.Any(), gomock.Any()).Return([]types.Log{
		malformedLog(100, 0),
		storedLog(t, 101, 3, valid),
	}, nil)
	r.NoError(e.Sync(ctx))
	r.Equal(syncer.StateIdle, e.CurrentState())

	id, err := valid.ID()
	r.NoError(err)
	exists, err := s.Exists(ctx, id)
	r.NoError(err)
	r.True(exists)
	cp, err := e.Checkpoint()
	r.NoError(err)
	r.Equal(&chain.Position{Height: 101, LogIndex: 3}, cp)
	r.Equal([]chain.Position{{Height: 101, LogIndex: 3}}, committed)

	// nothing new: no commit, checkpoint unchanged
	ledger.EXPECT().TipHeight(gomock.Any()).Return(uint64(101), nil)
	r.NoError(e.Sync(ctx))
	r.Len(committed, 1)

	// the next cycle resumes after the committed block
	ledger.EXPECT().TipHeight(gomock.Any()).Return(uint64(105), nil)
	ledger.EXPECT().FilterLogs(gomock.Any(), uint64(102), uint64(105), gomock.Any(), gomock.Any()).Return(nil, nil)
	r.NoError(e.Sync(ctx))
	cp, err = e.Checkpoint()
	r.NoError(err)
	r.Equal(&chain.Position{Height: 105}, cp)
}

func TestEngineReplayIsSafe(t *testing.T) {
	r := require.New(t)
	ctrl := gomock.NewController(t)
	ledger := mock_chain.NewMockLedger(ctrl)
	s := newMemStore(t)
	ctx := context.Background()

	prop, err := assertion("alice").ID()
	r.NoError(err)
	logs := []types.Log{
		storedLog(t, 100, 0, assertion("alice")),
		storedLog(t, 100, 1, assertion("bob")),
		stakeLog(t, 101, 0, prop, 10),
	}
	ledger.EXPECT().TipHeight(gomock.Any()).Return(uint64(101), nil).Times(2)
	ledger.EXPECT().FilterLogs(gomock.Any(), uint64(100), uint64(101), gomock.Any(), gomock.Any()).Return(logs, nil).Times(2)

	snapshot := func() map[entity.Kind]int {
		ret := map[entity.Kind]int{}
		for _, k := range entity.Kinds() {
			ids, err := s.ListByKind(ctx, k)
			r.NoError(err)
			ret[k] = len(ids)
		}
		return ret
	}

	// a crash before the checkpoint write replays the batch from scratch
	r.NoError(newEngine(t, ledger, s, syncer.NewCheckpointStore(db.NewMemKVStore())).Sync(ctx))
	once := snapshot()
	r.Equal(2, once[entity.KindClassAssertion])
	r.Equal(1, once[entity.KindPropositionStake])
	r.NoError(newEngine(t, ledger, s, syncer.NewCheckpointStore(db.NewMemKVStore())).Sync(ctx))
	r.Equal(once, snapshot())
}

func TestEngineTransientFailure(t *testing.T) {
	r := require.New(t)
	ctrl := gomock.NewController(t)
	ledger := mock_chain.NewMockLedger(ctrl)
	s := mock_store.NewMockEntityStore(ctrl)
	checkpoints := syncer.NewCheckpointStore(db.NewMemKVStore())
	e := newEngine(t, ledger, s, checkpoints)
	ctx := context.Background()

	logs := []types.Log{
		storedLog(t, 100, 0, assertion("alice")),
		storedLog(t, 100, 1, assertion("bob")),
	}
	ledger.EXPECT().TipHeight(gomock.Any()).Return(uint64(100), nil).Times(2)
	ledger.EXPECT().FilterLogs(gomock.Any(), uint64(100), uint64(100), gomock.Any(), gomock.Any()).Return(logs, nil).Times(2)
	gomock.InOrder(
		s.EXPECT().Put(gomock.Any(), gomock.Any()).Return(nil),
		s.EXPECT().Put(gomock.Any(), gomock.Any()).Return(errors.Wrap(store.ErrTransient, "connection reset")),
		s.EXPECT().Put(gomock.Any(), gomock.Any()).Return(nil).Times(2),
	)

	err := e.Sync(ctx)
	r.Equal(store.ErrTransient, errors.Cause(err))
	r.Equal(syncer.StateIdle, e.CurrentState())
	cp, err := e.Checkpoint()
	r.NoError(err)
	r.Nil(cp)
	r.NotEmpty(e.Status().Error)

	// retried from the committed checkpoint, not from the fetched position
	r.NoError(e.Sync(ctx))
	cp, err = e.Checkpoint()
	r.NoError(err)
	r.Equal(&chain.Position{Height: 100, LogIndex: 1}, cp)
	r.Empty(e.Status().Error)

	// ledger failures are transient too
	ledger.EXPECT().TipHeight(gomock.Any()).Return(uint64(0), chain.ErrTransient).Times(2)
	err = e.Sync(ctx)
	r.Equal(chain.ErrTransient, errors.Cause(err))
	r.Equal(syncer.StateIdle, e.CurrentState())
}

func TestEngineHaltsOnReorg(t *testing.T) {
	r := require.New(t)
	ctrl := gomock.NewController(t)
	ledger := mock_chain.NewMockLedger(ctrl)
	checkpoints := syncer.NewCheckpointStore(db.NewMemKVStore())
	r.NoError(checkpoints.Save("default", chain.Position{Height: 120}))
	e := newEngine(t, ledger, newMemStore(t), checkpoints)
	ctx := context.Background()

	ledger.EXPECT().TipHeight(gomock.Any()).Return(uint64(110), nil)
	err := e.Sync(ctx)
	r.Equal(syncer.ErrHalted, errors.Cause(err))
	r.Equal(syncer.StateHalted, e.CurrentState())
	status := e.Status()
	r.Equal(string(syncer.StateHalted), status.State)
	r.Contains(status.Error, "below scanned height")

	// halted engines do not touch the ledger
	err = e.Sync(ctx)
	r.Equal(syncer.ErrHalted, errors.Cause(err))

	r.NoError(e.Resume())
	r.Equal(syncer.StateIdle, e.CurrentState())
	ledger.EXPECT().TipHeight(gomock.Any()).Return(uint64(120), nil)
	r.NoError(e.Sync(ctx))
	r.Empty(e.Status().Error)
}

func TestEngineFilter(t *testing.T) {
	r := require.New(t)
	ctrl := gomock.NewController(t)
	ledger := mock_chain.NewMockLedger(ctrl)
	s := newMemStore(t)
	ctx := context.Background()

	alice, err := assertion("alice").ID()
	r.NoError(err)
	bob, err := assertion("bob").ID()
	r.NoError(err)
	f, err := filter.Build([]string{filter.WhitelistName}, filter.Config{Whitelist: []string{entity.HexID(alice)}})
	r.NoError(err)
	e := newEngine(t, ledger, s, syncer.NewCheckpointStore(db.NewMemKVStore()), syncer.WithFilter(f))

	ledger.EXPECT().TipHeight(gomock.Any()).Return(uint64(100), nil)
	ledger.EXPECT().FilterLogs(gomock.Any(), uint64(100), uint64(100), gomock.Any(), gomock.Any()).Return([]types.Log{
		storedLog(t, 100, 0, assertion("alice")),
		storedLog(t, 100, 1, assertion("bob")),
		stakeLog(t, 100, 2, bob, 5),
	}, nil)
	r.NoError(e.Sync(ctx))

	exists, err := s.Exists(ctx, alice)
	r.NoError(err)
	r.True(exists)
	exists, err = s.Exists(ctx, bob)
	r.NoError(err)
	r.False(exists)
	stakes, err := s.ListByKind(ctx, entity.KindPropositionStake)
	r.NoError(err)
	r.Len(stakes, 1)
	cp, err := e.Checkpoint()
	r.NoError(err)
	r.Equal(uint64(2), cp.LogIndex)
}

func TestEngineEntityHook(t *testing.T) {
	r := require.New(t)
	ctrl := gomock.NewController(t)
	ledger := mock_chain.NewMockLedger(ctrl)
	s := newMemStore(t)
	ctx := context.Background()

	alice, err := assertion("alice").ID()
	r.NoError(err)
	f, err := filter.Build([]string{filter.WhitelistName}, filter.Config{Whitelist: []string{entity.HexID(alice)}})
	r.NoError(err)
	type seen struct {
		height uint64
		id     cid.Cid
	}
	var (
		got       []seen
		committed int
	)
	e := newEngine(t, ledger, s, syncer.NewCheckpointStore(db.NewMemKVStore()),
		syncer.WithFilter(f),
		syncer.WithEntityHook(func(backend string, height uint64, ent *entity.Entity) {
			r.Equal("default", backend)
			// entities are announced before the commit hooks run
			r.Zero(committed)
			id, err := ent.ID()
			r.NoError(err)
			got = append(got, seen{height, id})
		}),
		syncer.WithCommitHook(func(string, chain.Position) { committed++ }))

	ledger.EXPECT().TipHeight(gomock.Any()).Return(uint64(101), nil)
	ledger.EXPECT().FilterLogs(gomock.Any(), uint64(100), uint64(101), gomock.Any(), gomock.Any()).Return([]types.Log{
		storedLog(t, 100, 0, assertion("alice")),
		malformedLog(100, 1),
		storedLog(t, 101, 0, assertion("bob")),
	}, nil)
	r.NoError(e.Sync(ctx))
	r.Equal(1, committed)
	r.Equal([]seen{{100, alice}}, got)
}
