// Copyright (c) 2024 IoTeX Foundation
// This source code is provided 'as is' and no warranties are given as to title or non-infringement, merchantability
// or fitness for purpose and, to the extent permitted by law, all liability for your use of the code is disclaimed.
// This source code is governed by Apache License 2.0 that can be found in the LICENSE file.

package submitter

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/facebookgo/clock"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/iotexproject/rlay-client/chain"
	"github.com/iotexproject/rlay-client/db"
	"github.com/iotexproject/rlay-client/entity"
	"github.com/iotexproject/rlay-client/epoch"
	"github.com/iotexproject/rlay-client/merkle"
	"github.com/iotexproject/rlay-client/payout"
	"github.com/iotexproject/rlay-client/store"
	"github.com/iotexproject/rlay-client/syncer"
)

type pipelineSuite struct {
	checkpoints *syncer.CheckpointStore
	records     *RecordStore
	pipeline    *Pipeline
}

// newPipelineSuite stakes on epochs of 100 blocks starting at 100, paying 1 per block
func newPipelineSuite(t *testing.T, opts ...Option) *pipelineSuite {
	r := require.New(t)
	ctx := context.Background()
	s := store.NewKVStore(db.NewMemKVStore())
	r.NoError(s.Start(ctx))
	prop := entity.New(entity.KindClassAssertion).
		Set(entity.FieldSubject, []byte("tom")).
		Set(entity.FieldClass, []byte("cat"))
	r.NoError(s.Put(ctx, prop))
	id, err := prop.ID()
	r.NoError(err)
	stake := func(sender common.Address, amount int64, height uint64) {
		r.NoError(s.Put(ctx, entity.NewStakeEntity(&entity.Stake{
			Proposition: id.Bytes(),
			Sender:      sender,
			Amount:      big.NewInt(amount),
			Height:      height,
		})))
	}
	stake(_alice, 10, 120)
	stake(_bob, 30, 199)
	stake(_carol, 5, 350)

	tracker, err := epoch.NewTracker(100, 100)
	r.NoError(err)
	kv := db.NewMemKVStore()
	suite := &pipelineSuite{
		checkpoints: syncer.NewCheckpointStore(kv),
		records:     NewRecordStore(kv),
	}
	suite.pipeline = NewPipeline("default", suite.checkpoints, tracker, payout.NewAggregator(s),
		suite.records, big.NewInt(1), time.Hour, opts...)
	return suite
}

func TestPipelineCalculate(t *testing.T) {
	r := require.New(t)
	ctx := context.Background()
	s := newPipelineSuite(t)
	p := s.pipeline

	// nothing synced
	created, err := p.Calculate(ctx)
	r.NoError(err)
	r.Empty(created)

	// epoch 0 is still open
	r.NoError(s.checkpoints.Save("default", chain.Position{Height: 198}))
	created, err = p.Calculate(ctx)
	r.NoError(err)
	r.Empty(created)
	_, err = p.Record(ctx, 0)
	r.Equal(epoch.ErrInsufficientEpochData, errors.Cause(err))

	// other backends do not gate the pipeline
	r.NoError(s.checkpoints.Save("redis", chain.Position{Height: 1000}))
	created, err = p.Calculate(ctx)
	r.NoError(err)
	r.Empty(created)

	r.NoError(s.checkpoints.Save("default", chain.Position{Height: 299, LogIndex: 4}))
	created, err = p.Calculate(ctx)
	r.NoError(err)
	r.Len(created, 2)

	rec, err := s.records.Get(0)
	r.NoError(err)
	r.Equal(uint64(100), rec.Start)
	r.Equal(uint64(199), rec.End)
	r.Equal(int64(100), rec.Budget.Int64())
	r.Equal(StatusPending, rec.Status)
	r.Len(rec.Payouts, 2)
	r.Equal(_alice, rec.Payouts[0].Address)
	r.Equal(int64(25), rec.Payouts[0].Amount.Int64())
	r.Equal(int64(75), rec.Payouts[1].Amount.Int64())
	tree, err := merkle.NewTree(payout.Leaves(rec.Payouts))
	r.NoError(err)
	r.Equal(tree.Root(), rec.Root)

	// no stakes: final without anything to anchor
	rec, err = s.records.Get(1)
	r.NoError(err)
	r.True(rec.Final())
	r.Empty(rec.Payouts)
	r.Equal(common.Hash{}, rec.Root)

	// records are computed once
	created, err = p.Calculate(ctx)
	r.NoError(err)
	r.Empty(created)

	// a closed epoch without record is computed on demand, not persisted
	r.NoError(s.checkpoints.Save("default", chain.Position{Height: 420}))
	rec, err = p.Record(ctx, 2)
	r.NoError(err)
	r.Len(rec.Payouts, 1)
	r.Equal(_carol, rec.Payouts[0].Address)
	r.Equal(int64(100), rec.Payouts[0].Amount.Int64())
	_, err = s.records.Get(2)
	r.Equal(ErrRecordNotFound, errors.Cause(err))
	_, err = p.Record(ctx, 3)
	r.Equal(epoch.ErrInsufficientEpochData, errors.Cause(err))
}

func TestPipelineBudgetOverride(t *testing.T) {
	r := require.New(t)
	s := newPipelineSuite(t, WithBudget(big.NewInt(4)))
	r.NoError(s.checkpoints.Save("default", chain.Position{Height: 199}))
	created, err := s.pipeline.Calculate(context.Background())
	r.NoError(err)
	r.Len(created, 1)
	r.Equal(int64(1), created[0].Payouts[0].Amount.Int64())
	r.Equal(int64(3), created[0].Payouts[1].Amount.Int64())
}

func TestPipelineRun(t *testing.T) {
	r := require.New(t)
	ctx := context.Background()
	sub := newSubmitterSuite(t, 10)
	s := newPipelineSuite(t)
	// anchor through a submitter sharing the pipeline records
	sub.sub.records = s.records
	s.pipeline.submitter = sub.sub
	r.NoError(s.checkpoints.Save("default", chain.Position{Height: 299}))

	tx := common.HexToHash("0x77")
	sub.expectRoot(t, common.Hash{})
	sub.ledger.EXPECT().SendTransaction(gomock.Any(), _token, gomock.Any()).Return(tx, nil)
	r.NoError(s.pipeline.Run(ctx))

	status, err := s.pipeline.Status(0)
	r.NoError(err)
	r.True(status.Closed)
	r.Equal(string(StatusSubmitted), status.Status)
	r.Equal(tx, *status.TxHash)
	r.Equal(2, status.Payouts)

	status, err = s.pipeline.Status(1)
	r.NoError(err)
	r.Equal(string(StatusFinal), status.Status)

	status, err = s.pipeline.Status(2)
	r.NoError(err)
	r.False(status.Closed)
	r.Equal("open", status.Status)
	r.Equal(uint64(299), status.SyncedHeight)
	r.Equal(epoch.Epoch{Index: 2, Start: 300, End: 399}, status.Epoch)

	rec, err := s.records.Get(0)
	r.NoError(err)
	sub.expectRoot(t, rec.Root)
	r.NoError(s.pipeline.Run(ctx))
	sums, err := s.records.Cumulative(1)
	r.NoError(err)
	r.Len(sums, 2)
}

func TestPipelineLifecycle(t *testing.T) {
	r := require.New(t)
	ctx := context.Background()
	s := newPipelineSuite(t, WithClock(clock.NewMock()))
	r.NoError(s.checkpoints.Save("default", chain.Position{Height: 250}))

	r.NoError(s.pipeline.Start(ctx))
	s.pipeline.OnCommit("redis", chain.Position{Height: 500})
	s.pipeline.OnCommit("default", chain.Position{Height: 250})
	r.NoError(s.pipeline.Stop(ctx))

	// the first round runs on start
	rec, err := s.records.Latest()
	r.NoError(err)
	r.Equal(uint64(0), rec.Epoch)
}
