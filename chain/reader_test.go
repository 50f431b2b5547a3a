// Copyright (c) 2024 IoTeX Foundation
// This source code is provided 'as is' and no warranties are given as to title or non-infringement, merchantability
// or fitness for purpose and, to the extent permitted by law, all liability for your use of the code is disclaimed.
// This source code is governed by Apache License 2.0 that can be found in the LICENSE file.

package chain_test

import (
	"context"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/iotexproject/rlay-client/chain"
	"github.com/iotexproject/rlay-client/test/mock/mock_chain"
)

var _testCfg = chain.Config{
	BlockBatchSize: 10,
	Retry: chain.RetryConfig{
		InitialInterval: time.Millisecond,
		MaxInterval:     time.Millisecond,
		MaxRetries:      2,
	},
}

func TestReaderFetch(t *testing.T) {
	r := require.New(t)
	ctrl := gomock.NewController(t)
	ledger := mock_chain.NewMockLedger(ctrl)
	addrs := []common.Address{common.HexToAddress("0x01")}
	reader := chain.NewReader(ledger, addrs, _testCfg)
	ctx := context.Background()

	t.Run("first batch starts at start height and is capped", func(t *testing.T) {
		ledger.EXPECT().TipHeight(gomock.Any()).Return(uint64(100), nil)
		ledger.EXPECT().FilterLogs(gomock.Any(), uint64(5), uint64(14), addrs, chain.EventTopics()).Return([]types.Log{
			{BlockNumber: 9, Index: 2},
			{BlockNumber: 7, Index: 1},
			{BlockNumber: 9, Index: 0},
		}, nil)
		batch, err := reader.Fetch(ctx, nil, 5)
		r.NoError(err)
		r.Equal(uint64(5), batch.From)
		r.Equal(uint64(14), batch.To)
		r.Len(batch.Events, 3)
		r.Equal(chain.Position{Height: 7, LogIndex: 1}, chain.Position{Height: batch.Events[0].Height, LogIndex: batch.Events[0].LogIndex})
		r.Equal(uint64(0), batch.Events[1].LogIndex)
		r.Equal(uint64(2), batch.Events[2].LogIndex)
	})

	t.Run("resume after scanned height up to tip", func(t *testing.T) {
		ledger.EXPECT().TipHeight(gomock.Any()).Return(uint64(20), nil)
		ledger.EXPECT().FilterLogs(gomock.Any(), uint64(15), uint64(20), addrs, gomock.Any()).Return(nil, nil)
		batch, err := reader.Fetch(ctx, &chain.Position{Height: 14, LogIndex: 3}, 5)
		r.NoError(err)
		r.Equal(uint64(15), batch.From)
		r.Equal(uint64(20), batch.To)
		r.Empty(batch.Events)
	})

	t.Run("nothing new", func(t *testing.T) {
		ledger.EXPECT().TipHeight(gomock.Any()).Return(uint64(20), nil)
		batch, err := reader.Fetch(ctx, &chain.Position{Height: 20}, 5)
		r.NoError(err)
		r.Nil(batch)
	})

	t.Run("tip below scanned height", func(t *testing.T) {
		ledger.EXPECT().TipHeight(gomock.Any()).Return(uint64(18), nil)
		_, err := reader.Fetch(ctx, &chain.Position{Height: 20}, 5)
		r.Equal(chain.ErrChainReorgDetected, errors.Cause(err))
	})

	t.Run("removed log", func(t *testing.T) {
		ledger.EXPECT().TipHeight(gomock.Any()).Return(uint64(30), nil)
		ledger.EXPECT().FilterLogs(gomock.Any(), uint64(21), uint64(30), addrs, gomock.Any()).Return([]types.Log{
			{BlockNumber: 22, Index: 0, Removed: true},
		}, nil)
		_, err := reader.Fetch(ctx, &chain.Position{Height: 20}, 5)
		r.Equal(chain.ErrChainReorgDetected, errors.Cause(err))
	})

	t.Run("duplicate log position", func(t *testing.T) {
		ledger.EXPECT().TipHeight(gomock.Any()).Return(uint64(30), nil)
		ledger.EXPECT().FilterLogs(gomock.Any(), uint64(21), uint64(30), addrs, gomock.Any()).Return([]types.Log{
			{BlockNumber: 22, Index: 1},
			{BlockNumber: 22, Index: 1},
		}, nil)
		_, err := reader.Fetch(ctx, &chain.Position{Height: 20}, 5)
		r.Equal(chain.ErrChainReorgDetected, errors.Cause(err))
	})

	t.Run("transient errors are retried", func(t *testing.T) {
		gomock.InOrder(
			ledger.EXPECT().TipHeight(gomock.Any()).Return(uint64(0), chain.ErrTransient),
			ledger.EXPECT().TipHeight(gomock.Any()).Return(uint64(30), nil),
		)
		ledger.EXPECT().FilterLogs(gomock.Any(), uint64(21), uint64(30), addrs, gomock.Any()).Return(nil, nil)
		batch, err := reader.Fetch(ctx, &chain.Position{Height: 20}, 5)
		r.NoError(err)
		r.Equal(uint64(30), batch.To)
	})

	t.Run("retries are bounded", func(t *testing.T) {
		ledger.EXPECT().TipHeight(gomock.Any()).Return(uint64(0), chain.ErrTransient).Times(3)
		_, err := reader.Fetch(ctx, &chain.Position{Height: 20}, 5)
		r.Equal(chain.ErrTransient, errors.Cause(err))
	})
}

func TestReaderConfirmations(t *testing.T) {
	r := require.New(t)
	ctrl := gomock.NewController(t)
	ledger := mock_chain.NewMockLedger(ctrl)
	cfg := _testCfg
	cfg.Confirmations = 5
	reader := chain.NewReader(ledger, nil, cfg)

	ledger.EXPECT().TipHeight(gomock.Any()).Return(uint64(3), nil)
	batch, err := reader.Fetch(context.Background(), nil, 0)
	r.NoError(err)
	r.Nil(batch)

	ledger.EXPECT().TipHeight(gomock.Any()).Return(uint64(8), nil)
	ledger.EXPECT().FilterLogs(gomock.Any(), uint64(0), uint64(3), gomock.Any(), gomock.Any()).Return(nil, nil)
	batch, err = reader.Fetch(context.Background(), nil, 0)
	r.NoError(err)
	r.Equal(uint64(3), batch.To)
}
