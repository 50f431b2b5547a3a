// Copyright (c) 2024 IoTeX Foundation
// This source code is provided 'as is' and no warranties are given as to title or non-infringement, merchantability
// or fitness for purpose and, to the extent permitted by law, all liability for your use of the code is disclaimed.
// This source code is governed by Apache License 2.0 that can be found in the LICENSE file.

package itx

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/iotexproject/rlay-client/api"
	"github.com/iotexproject/rlay-client/config"
	"github.com/iotexproject/rlay-client/db"
	"github.com/iotexproject/rlay-client/epoch"
	"github.com/iotexproject/rlay-client/store"
	"github.com/iotexproject/rlay-client/test/mock/mock_chain"
)

func testConfig() config.Config {
	cfg := config.Default
	cfg.Chain.URLs = []string{"http://127.0.0.1:8545"}
	cfg.Chain.OntologyStorageAddress = "0x0000000000000000000000000000000000000011"
	cfg.Chain.PropositionLedgerAddress = "0x0000000000000000000000000000000000000012"
	cfg.Backends = map[string]store.Config{
		"default": {Type: store.TypeMemory},
		"mirror":  {Type: store.TypeMemory},
	}
	cfg.Payout.Submit = false
	cfg.Payout.Epoch = epoch.Config{Start: 1, Length: 100}
	cfg.API.Port = 0
	cfg.System.HeartbeatInterval = 0
	return cfg
}

func testStores(t *testing.T, cfg config.Config) map[string]store.EntityStore {
	stores := make(map[string]store.EntityStore, len(cfg.Backends))
	for name, bc := range cfg.Backends {
		s, err := store.New(name, bc)
		require.NoError(t, err)
		stores[name] = s
	}
	return stores
}

func TestNewServer(t *testing.T) {
	r := require.New(t)
	ctrl := gomock.NewController(t)
	ledger := mock_chain.NewMockLedger(ctrl)
	ctx := context.Background()

	cfg := testConfig()
	svr, err := newServer(ctx, cfg, ledger, db.NewMemKVStore(), testStores(t, cfg))
	r.NoError(err)
	r.NotNil(svr.SyncService())
	r.NotNil(svr.Pipeline())
	r.NotNil(svr.API())
	r.Len(svr.Stores(), 2)
	r.Equal("default", svr.Pipeline().Backend())
	r.Equal(uint64(1), svr.Pipeline().Tracker().Start())

	status := svr.SyncService().Status()
	r.Len(status, 2)
	r.Equal("default", status[0].Backend)
	r.Equal("mirror", status[1].Backend)

	// commit hooks reach a started pipeline
	pipelineAt, listenerAt, syncAt := -1, -1, -1
	for i, m := range svr.lc.Models() {
		if _, ok := m.(*api.EntityListener); ok {
			listenerAt = i
		}
		switch m {
		case svr.Pipeline():
			pipelineAt = i
		case svr.SyncService():
			syncAt = i
		}
	}
	r.NotEqual(-1, pipelineAt)
	r.Less(pipelineAt, syncAt)
	// so do the entity hooks feeding subscriptions
	r.NotEqual(-1, listenerAt)
	r.Less(listenerAt, syncAt)

	t.Run("PayoutDisabled", func(t *testing.T) {
		cfg := testConfig()
		cfg.Payout.Enabled = false
		cfg.API.Disabled = true
		svr, err := newServer(ctx, cfg, ledger, db.NewMemKVStore(), testStores(t, cfg))
		require.NoError(t, err)
		require.Nil(t, svr.Pipeline())
		require.Nil(t, svr.API())
	})

	t.Run("MissingDefaultBackend", func(t *testing.T) {
		cfg := testConfig()
		cfg.DefaultBackend = "archive"
		_, err := newServer(ctx, cfg, ledger, db.NewMemKVStore(), testStores(t, cfg))
		require.ErrorContains(t, err, "archive")
	})

	t.Run("SubmitWithoutToken", func(t *testing.T) {
		cfg := testConfig()
		cfg.Payout.Submit = true
		_, err := newServer(ctx, cfg, ledger, db.NewMemKVStore(), testStores(t, cfg))
		require.ErrorContains(t, err, "token address is required")
	})

	t.Run("UnknownFilter", func(t *testing.T) {
		cfg := testConfig()
		cfg.Sync.Filters = []string{"nope"}
		_, err := newServer(ctx, cfg, ledger, db.NewMemKVStore(), testStores(t, cfg))
		require.Error(t, err)
	})
}

func TestStartStop(t *testing.T) {
	r := require.New(t)
	ctrl := gomock.NewController(t)
	ledger := mock_chain.NewMockLedger(ctrl)
	ledger.EXPECT().TipHeight(gomock.Any()).Return(uint64(0), nil).AnyTimes()
	ledger.EXPECT().Close().Times(1)
	ctx := context.Background()

	cfg := testConfig()
	cfg.Sync.Interval = time.Hour
	// above the tip, so no log is read
	cfg.Sync.StartHeight = 1
	svr, err := newServer(ctx, cfg, ledger, db.NewMemKVStore(), testStores(t, cfg))
	r.NoError(err)
	r.NoError(svr.Start(ctx))

	// nothing is synced on an empty ledger
	r.NoError(svr.SyncService().SyncOnce(ctx))
	for _, st := range svr.SyncService().Status() {
		r.Empty(st.Error)
	}
	NewHeartbeatHandler(svr).Log()

	r.NoError(svr.Stop(ctx))
}
