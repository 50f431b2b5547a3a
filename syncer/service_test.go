// Copyright (c) 2024 IoTeX Foundation
// This source code is provided 'as is' and no warranties are given as to title or non-infringement, merchantability
// or fitness for purpose and, to the extent permitted by law, all liability for your use of the code is disclaimed.
// This source code is governed by Apache License 2.0 that can be found in the LICENSE file.

package syncer_test

import (
	"context"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/core/types"
	"github.com/facebookgo/clock"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/iotexproject/rlay-client/chain"
	"github.com/iotexproject/rlay-client/db"
	"github.com/iotexproject/rlay-client/pkg/routine"
	"github.com/iotexproject/rlay-client/syncer"
	"github.com/iotexproject/rlay-client/test/mock/mock_chain"
)

func newNamedEngine(t *testing.T, name string, ledger chain.Ledger, checkpoints *syncer.CheckpointStore) *syncer.Engine {
	decoder := chain.NewDecoder(_ontology, _propLedger)
	reader := chain.NewReader(ledger, decoder.Addresses(), _readerCfg)
	e, err := syncer.NewEngine(name, reader, decoder, newMemStore(t), checkpoints, syncer.WithStartHeight(100))
	require.NoError(t, err)
	return e
}

func TestService(t *testing.T) {
	r := require.New(t)
	ctrl := gomock.NewController(t)
	healthy := mock_chain.NewMockLedger(ctrl)
	broken := mock_chain.NewMockLedger(ctrl)
	checkpoints := syncer.NewCheckpointStore(db.NewMemKVStore())
	r.NoError(checkpoints.Save("redis", chain.Position{Height: 200}))

	svc := syncer.NewService([]*syncer.Engine{
		newNamedEngine(t, "redis", broken, checkpoints),
		newNamedEngine(t, "default", healthy, checkpoints),
	}, time.Hour, routine.WithClock(clock.NewMock()))

	_, err := svc.Engine("neo4j")
	r.Equal(syncer.ErrUnknownBackend, errors.Cause(err))
	e, err := svc.Engine("default")
	r.NoError(err)
	r.Equal("default", e.Backend())

	// a halted backend does not stop the others
	healthy.EXPECT().TipHeight(gomock.Any()).Return(uint64(100), nil)
	healthy.EXPECT().FilterLogs(gomock.Any(), uint64(100), uint64(100), gomock.Any(), gomock.Any()).Return([]types.Log{
		storedLog(t, 100, 0, assertion("alice")),
	}, nil)
	broken.EXPECT().TipHeight(gomock.Any()).Return(uint64(150), nil)
	r.NoError(svc.SyncOnce(context.Background()))

	status := svc.Status()
	r.Len(status, 2)
	r.Equal("default", status[0].Backend)
	r.Equal(&chain.Position{Height: 100}, status[0].Checkpoint)
	r.Equal("redis", status[1].Backend)
	r.Equal(string(syncer.StateHalted), status[1].State)

	// transient failures are reported
	healthy.EXPECT().TipHeight(gomock.Any()).Return(uint64(0), chain.ErrTransient).Times(2)
	err = svc.SyncOnce(context.Background())
	r.Equal(chain.ErrTransient, errors.Cause(err))
}

func TestServiceLifecycle(t *testing.T) {
	r := require.New(t)
	ctrl := gomock.NewController(t)
	ledger := mock_chain.NewMockLedger(ctrl)
	done := make(chan struct{})
	ledger.EXPECT().TipHeight(gomock.Any()).DoAndReturn(func(context.Context) (uint64, error) {
		close(done)
		return 99, nil
	})
	svc := syncer.NewService([]*syncer.Engine{
		newNamedEngine(t, "default", ledger, syncer.NewCheckpointStore(db.NewMemKVStore())),
	}, time.Hour, routine.WithClock(clock.NewMock()))
	ctx := context.Background()
	r.NoError(svc.Start(ctx))
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		r.FailNow("sync did not run on start")
	}
	r.NoError(svc.Stop(ctx))
}
