// Copyright (c) 2024 IoTeX Foundation
// This source code is provided 'as is' and no warranties are given as to title or non-infringement, merchantability
// or fitness for purpose and, to the extent permitted by law, all liability for your use of the code is disclaimed.
// This source code is governed by Apache License 2.0 that can be found in the LICENSE file.

package itx

import (
	"context"
	"sort"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/iotexproject/rlay-client/api"
	"github.com/iotexproject/rlay-client/chain"
	"github.com/iotexproject/rlay-client/config"
	"github.com/iotexproject/rlay-client/db"
	"github.com/iotexproject/rlay-client/epoch"
	"github.com/iotexproject/rlay-client/filter"
	"github.com/iotexproject/rlay-client/payout"
	"github.com/iotexproject/rlay-client/pkg/lifecycle"
	"github.com/iotexproject/rlay-client/pkg/log"
	"github.com/iotexproject/rlay-client/pkg/probe"
	"github.com/iotexproject/rlay-client/pkg/routine"
	"github.com/iotexproject/rlay-client/store"
	"github.com/iotexproject/rlay-client/submitter"
	"github.com/iotexproject/rlay-client/syncer"
)

// Server is the rlay client instance containing all components.
type Server struct {
	cfg         config.Config
	ledger      chain.Ledger
	state       db.KVStore
	stores      map[string]store.EntityStore
	syncService *syncer.Service
	pipeline    *submitter.Pipeline
	apiServer   *api.Server
	lc          lifecycle.Lifecycle
}

// NewServer dials the ledger and creates a server from the config
func NewServer(ctx context.Context, cfg config.Config) (*Server, error) {
	// the key is only loaded when roots are anchored
	signer := chain.SignerConfig{}
	if cfg.Payout.Enabled && cfg.Payout.Submit {
		signer = cfg.Chain.Signer
	}
	key, err := chain.LoadSigner(signer)
	if err != nil {
		return nil, errors.Wrap(err, "failed to load signer")
	}
	ledger, err := chain.NewEthLedger(ctx, cfg.Chain, key)
	if err != nil {
		return nil, errors.Wrap(err, "failed to connect to the ledger")
	}
	state, err := db.CreateKVStore(cfg.State, cfg.State.DbPath)
	if err != nil {
		ledger.Close()
		return nil, errors.Wrap(err, "failed to create state db")
	}
	stores := make(map[string]store.EntityStore, len(cfg.Backends))
	for name, bc := range cfg.Backends {
		s, err := store.New(name, bc)
		if err != nil {
			ledger.Close()
			return nil, err
		}
		stores[name] = s
	}
	svr, err := newServer(ctx, cfg, ledger, state, stores)
	if err != nil {
		ledger.Close()
		return nil, err
	}
	return svr, nil
}

func newServer(
	ctx context.Context,
	cfg config.Config,
	ledger chain.Ledger,
	state db.KVStore,
	stores map[string]store.EntityStore,
) (*Server, error) {
	if _, ok := stores[cfg.DefaultBackend]; !ok {
		return nil, errors.Errorf("default backend %s is not configured", cfg.DefaultBackend)
	}
	svr := &Server{
		cfg:    cfg,
		ledger: ledger,
		state:  state,
		stores: stores,
	}
	checkpoints := syncer.NewCheckpointStore(state)
	if cfg.Payout.Enabled {
		p, err := newPipeline(ctx, cfg, ledger, checkpoints, state, stores[cfg.DefaultBackend])
		if err != nil {
			return nil, err
		}
		svr.pipeline = p
	}

	f, err := filter.Build(cfg.Sync.Filters, cfg.Sync.Filter)
	if err != nil {
		return nil, err
	}
	ontology := common.HexToAddress(cfg.Chain.OntologyStorageAddress)
	propositions := common.HexToAddress(cfg.Chain.PropositionLedgerAddress)
	decoder := chain.NewDecoder(ontology, propositions)
	reader := chain.NewReader(ledger, decoder.Addresses(), cfg.Chain)
	names := make([]string, 0, len(stores))
	for name := range stores {
		names = append(names, name)
	}
	sort.Strings(names)
	var listener *api.EntityListener
	if !cfg.API.Disabled && cfg.API.MaxSubscriptions > 0 {
		listener = api.NewEntityListener(cfg.DefaultBackend, cfg.API.MaxSubscriptions, cfg.API.ReplayEntities)
	}
	engines := make([]*syncer.Engine, 0, len(names))
	for _, name := range names {
		opts := []syncer.Option{
			syncer.WithStartHeight(cfg.Sync.StartHeight),
			syncer.WithFilter(f),
		}
		if svr.pipeline != nil {
			opts = append(opts, syncer.WithCommitHook(svr.pipeline.OnCommit))
		}
		if listener != nil {
			opts = append(opts, syncer.WithEntityHook(listener.Publish))
		}
		e, err := syncer.NewEngine(name, reader, decoder, stores[name], checkpoints, opts...)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to create engine of backend %s", name)
		}
		engines = append(engines, e)
	}
	svr.syncService = syncer.NewService(engines, cfg.Sync.Interval)

	if !cfg.API.Disabled {
		opts := []api.Option{
			api.WithContracts(api.Contracts{
				OntologyStorage:   ontology,
				PropositionLedger: propositions,
				RlayToken:         common.HexToAddress(cfg.Chain.TokenAddress),
			}),
			api.WithSyncStatus(svr.syncService),
		}
		if svr.pipeline != nil {
			opts = append(opts, api.WithPipeline(svr.pipeline))
		}
		if listener != nil {
			opts = append(opts, api.WithEntityListener(listener))
		}
		if svr.apiServer, err = api.NewServer(cfg.API, stores, cfg.DefaultBackend, opts...); err != nil {
			return nil, err
		}
	}

	svr.lc.Add(state)
	for _, name := range names {
		svr.lc.Add(stores[name])
	}
	// the pipeline is fed by the commit hooks of sync, so it starts before and stops after
	if svr.pipeline != nil {
		svr.lc.Add(svr.pipeline)
	}
	if listener != nil {
		svr.lc.Add(listener)
	}
	svr.lc.Add(svr.syncService)
	if svr.apiServer != nil {
		svr.lc.Add(svr.apiServer)
	}
	return svr, nil
}

func newPipeline(
	ctx context.Context,
	cfg config.Config,
	ledger chain.Ledger,
	checkpoints *syncer.CheckpointStore,
	state db.KVStore,
	s store.EntityStore,
) (*submitter.Pipeline, error) {
	rewardPerBlock, budget, err := cfg.Payout.Budgets()
	if err != nil {
		return nil, err
	}
	var (
		token   *chain.TokenContract
		tracker *epoch.Tracker
	)
	if cfg.Chain.TokenAddress != "" {
		token = chain.NewTokenContract(ledger, common.HexToAddress(cfg.Chain.TokenAddress))
		if owner, err := token.Owner(ctx); err != nil {
			log.L().Warn("failed to read token owner", zap.Error(err))
		} else {
			log.L().Info("payout token", zap.String("address", token.Address().Hex()), zap.String("owner", owner.Hex()))
		}
		tracker, err = epoch.NewTrackerFromContract(ctx, token, cfg.Payout.Epoch)
	} else {
		tracker, err = epoch.NewTracker(cfg.Payout.Epoch.Start, cfg.Payout.Epoch.Length)
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to create epoch tracker")
	}

	records := submitter.NewRecordStore(state)
	opts := []submitter.Option{}
	if budget != nil {
		opts = append(opts, submitter.WithBudget(budget))
	}
	if cfg.Payout.Submit {
		if token == nil {
			return nil, errors.New("token address is required to submit payout roots")
		}
		opts = append(opts, submitter.WithSubmitter(submitter.NewSubmitter(
			records,
			token,
			ledger,
			cfg.Payout.Retry,
			cfg.Payout.CheckEpochs,
			cfg.Payout.ConfirmTimeout,
		)))
	}
	return submitter.NewPipeline(
		cfg.DefaultBackend,
		checkpoints,
		tracker,
		payout.NewAggregator(s),
		records,
		rewardPerBlock,
		cfg.Payout.Interval,
		opts...,
	), nil
}

// Start starts the server
func (s *Server) Start(ctx context.Context) error {
	if err := s.lc.OnStartSequentially(ctx); err != nil {
		return errors.Wrap(err, "error when starting server")
	}
	return nil
}

// Stop stops the server
func (s *Server) Stop(ctx context.Context) error {
	defer s.ledger.Close()
	if err := s.lc.OnStop(ctx); err != nil {
		return errors.Wrap(err, "error when stopping server")
	}
	return nil
}

// SyncService returns the sync engines of every backend
func (s *Server) SyncService() *syncer.Service {
	return s.syncService
}

// Pipeline returns the payout pipeline, nil if payouts are disabled
func (s *Server) Pipeline() *submitter.Pipeline {
	return s.pipeline
}

// API returns the query facade, nil if disabled
func (s *Server) API() *api.Server {
	return s.apiServer
}

// Stores returns the entity store of every backend
func (s *Server) Stores() map[string]store.EntityStore {
	return s.stores
}

// StartServer starts a node server
func StartServer(ctx context.Context, svr *Server, probeSvr *probe.Server, cfg config.Config) {
	if err := svr.Start(ctx); err != nil {
		log.L().Fatal("Failed to start server.", zap.Error(err))
		return
	}
	if probeSvr != nil {
		probeSvr.Ready()
	}

	if cfg.System.HeartbeatInterval > 0 {
		task := routine.NewRecurringTask(NewHeartbeatHandler(svr).Log, cfg.System.HeartbeatInterval)
		if err := task.Start(ctx); err != nil {
			log.L().Panic("Failed to start heartbeat routine.", zap.Error(err))
		}
		defer func() {
			if err := task.Stop(context.Background()); err != nil {
				log.L().Panic("Failed to stop heartbeat routine.", zap.Error(err))
			}
		}()
	}

	<-ctx.Done()
	if probeSvr != nil {
		probeSvr.NotReady()
	}
	if err := svr.Stop(context.Background()); err != nil {
		log.L().Panic("Failed to stop server.", zap.Error(err))
	}
}
