// Copyright (c) 2024 IoTeX Foundation
// This source code is provided 'as is' and no warranties are given as to title or non-infringement, merchantability
// or fitness for purpose and, to the extent permitted by law, all liability for your use of the code is disclaimed.
// This source code is governed by Apache License 2.0 that can be found in the LICENSE file.

package syncer

import (
	"context"
	"sync"

	"github.com/ipfs/go-cid"
	fsm "github.com/iotexproject/go-fsm"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/atomic"
	"go.uber.org/zap"

	"github.com/iotexproject/rlay-client/chain"
	"github.com/iotexproject/rlay-client/entity"
	"github.com/iotexproject/rlay-client/filter"
	"github.com/iotexproject/rlay-client/pkg/log"
	"github.com/iotexproject/rlay-client/store"
)

const (
	// StateIdle waits for the next cycle
	StateIdle fsm.State = "S_IDLE"
	// StateFetching reads the next batch from the ledger
	StateFetching fsm.State = "S_FETCHING"
	// StateDecoding turns events into entities
	StateDecoding fsm.State = "S_DECODING"
	// StateFiltering applies the configured filters
	StateFiltering fsm.State = "S_FILTERING"
	// StateCommitting writes entities and then the checkpoint
	StateCommitting fsm.State = "S_COMMITTING"
	// StateHalted stops the engine until Resume is called
	StateHalted fsm.State = "S_HALTED"

	eStart  fsm.EventType = "E_START"
	eFetch  fsm.EventType = "E_FETCH"
	eDecode fsm.EventType = "E_DECODE"
	eFilter fsm.EventType = "E_FILTER"
	eCommit fsm.EventType = "E_COMMIT"
	eResume fsm.EventType = "E_RESUME"
)

const (
	_outcomeApplied   = "applied"
	_outcomeFiltered  = "filtered"
	_outcomeMalformed = "malformed"
	_outcomeRejected  = "rejected"
)

var (
	// ErrHalted is returned by Sync once a reorg has been detected
	ErrHalted = errors.New("synchronization halted")

	_eventCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rlay_sync_events",
			Help: "Ledger events processed by outcome",
		},
		[]string{"backend", "outcome"},
	)
	_checkpointGauge = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "rlay_sync_checkpoint_height",
			Help: "Last block height committed per backend",
		},
		[]string{"backend"},
	)
)

func init() {
	prometheus.MustRegister(_eventCounter)
	prometheus.MustRegister(_checkpointGauge)
}

type (
	// EventSource yields ordered batches of ledger events
	EventSource interface {
		Fetch(context.Context, *chain.Position, uint64) (*chain.Batch, error)
	}

	// EventDecoder turns a ledger event into an entity
	EventDecoder interface {
		Decode(*chain.Event) (cid.Cid, *entity.Entity, error)
	}

	// CommitHook is called after a checkpoint has been committed
	CommitHook func(backend string, checkpoint chain.Position)

	// EntityHook is called for every stored entity once its checkpoint is committed
	EntityHook func(backend string, height uint64, e *entity.Entity)

	// Option configures an engine
	Option func(*Engine)

	// Status is a snapshot of an engine
	Status struct {
		Backend    string          `json:"backend"`
		State      string          `json:"state"`
		Checkpoint *chain.Position `json:"checkpoint"`
		Error      string          `json:"error,omitempty"`
	}

	syncEvent struct {
		ctx context.Context
		t   fsm.EventType
	}

	decoded struct {
		pos chain.Position
		id  cid.Cid
		e   *entity.Entity
	}

	// cycle holds the work of one pass from Idle back to Idle
	cycle struct {
		checkpoint *chain.Position
		batch      *chain.Batch
		decoded    []decoded
		err        error
	}

	// Engine mirrors ledger events into one entity store
	Engine struct {
		mu          sync.Mutex
		backend     string
		source      EventSource
		decoder     EventDecoder
		filter      filter.Filter
		store       store.EntityStore
		checkpoints *CheckpointStore
		startHeight uint64
		hooks       []CommitHook
		entityHooks []EntityHook
		fsm         fsm.FSM
		cycle       cycle
		haltCause   atomic.Error
		lastErr     atomic.Error
		logger      *zap.Logger
	}
)

func (e *syncEvent) Type() fsm.EventType { return e.t }

// WithStartHeight sets the first block read when the backend has no checkpoint
func WithStartHeight(h uint64) Option {
	return func(e *Engine) { e.startHeight = h }
}

// WithFilter sets the filter applied before entities are stored
func WithFilter(f filter.Filter) Option {
	return func(e *Engine) { e.filter = f }
}

// WithCommitHook registers a callback run after every committed checkpoint
func WithCommitHook(h CommitHook) Option {
	return func(e *Engine) { e.hooks = append(e.hooks, h) }
}

// WithEntityHook registers a callback run for every entity of a committed batch
func WithEntityHook(h EntityHook) Option {
	return func(e *Engine) { e.entityHooks = append(e.entityHooks, h) }
}

// NewEngine creates the synchronization engine of a backend
func NewEngine(
	backend string,
	source EventSource,
	decoder EventDecoder,
	s store.EntityStore,
	checkpoints *CheckpointStore,
	opts ...Option,
) (*Engine, error) {
	e := &Engine{
		backend:     backend,
		source:      source,
		decoder:     decoder,
		store:       s,
		checkpoints: checkpoints,
		logger:      log.Logger("sync").With(zap.String("backend", backend)),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.filter == nil {
		f, err := filter.Build(nil, filter.Config{})
		if err != nil {
			return nil, err
		}
		e.filter = f
	}
	m, err := fsm.NewBuilder().
		AddInitialState(StateIdle).
		AddStates(StateFetching, StateDecoding, StateFiltering, StateCommitting, StateHalted).
		AddTransition(StateIdle, eStart, e.start, []fsm.State{StateIdle, StateFetching}).
		AddTransition(StateFetching, eFetch, e.fetch, []fsm.State{StateIdle, StateDecoding, StateHalted}).
		AddTransition(StateDecoding, eDecode, e.decode, []fsm.State{StateFiltering}).
		AddTransition(StateFiltering, eFilter, e.applyFilter, []fsm.State{StateCommitting}).
		AddTransition(StateCommitting, eCommit, e.commit, []fsm.State{StateIdle}).
		AddTransition(StateHalted, eResume, e.resume, []fsm.State{StateIdle}).
		Build()
	if err != nil {
		return nil, errors.Wrap(err, "error when building the sync FSM")
	}
	e.fsm = m
	return e, nil
}

// Backend returns the name of the backend the engine writes to
func (e *Engine) Backend() string { return e.backend }

// CurrentState returns the current state
func (e *Engine) CurrentState() fsm.State { return e.fsm.CurrentState() }

// Sync runs one cycle, from the committed checkpoint to the end of the next batch.
// A failed cycle leaves the engine Idle and the checkpoint untouched.
func (e *Engine) Sync(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.fsm.CurrentState() == StateHalted {
		return errors.Wrap(ErrHalted, e.haltCause.Load().Error())
	}
	e.cycle = cycle{}
	next := map[fsm.State]fsm.EventType{
		StateIdle:       eStart,
		StateFetching:   eFetch,
		StateDecoding:   eDecode,
		StateFiltering:  eFilter,
		StateCommitting: eCommit,
	}
	for started := false; ; started = true {
		src := e.fsm.CurrentState()
		if started && (src == StateIdle || src == StateHalted) {
			break
		}
		if err := e.fsm.Handle(&syncEvent{ctx: ctx, t: next[src]}); err != nil {
			return errors.Wrapf(err, "sync transition from %s failed", src)
		}
		e.logger.Debug("sync state transition happens",
			zap.String("src", string(src)),
			zap.String("dst", string(e.fsm.CurrentState())))
	}
	e.lastErr.Store(e.cycle.err)
	if e.fsm.CurrentState() == StateHalted {
		return errors.Wrap(ErrHalted, e.haltCause.Load().Error())
	}
	return e.cycle.err
}

// Resume leaves the halted state, the next cycle restarts from the committed checkpoint
func (e *Engine) Resume() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.fsm.Handle(&syncEvent{ctx: context.Background(), t: eResume})
}

// Checkpoint returns the committed checkpoint, nil if none
func (e *Engine) Checkpoint() (*chain.Position, error) {
	return e.checkpoints.Load(e.backend)
}

// Status returns a snapshot of the engine
func (e *Engine) Status() Status {
	s := Status{
		Backend: e.backend,
		State:   string(e.fsm.CurrentState()),
	}
	cp, err := e.Checkpoint()
	if err != nil {
		s.Error = err.Error()
		return s
	}
	s.Checkpoint = cp
	if err := e.haltCause.Load(); err != nil {
		s.Error = err.Error()
	} else if err := e.lastErr.Load(); err != nil {
		s.Error = err.Error()
	}
	return s
}

func (e *Engine) fail(err error) (fsm.State, error) {
	e.cycle.err = err
	e.logger.Warn("sync cycle failed, retrying from the committed checkpoint", zap.Error(err))
	return StateIdle, nil
}

func (e *Engine) start(_ fsm.Event) (fsm.State, error) {
	cp, err := e.checkpoints.Load(e.backend)
	if err != nil {
		return e.fail(err)
	}
	e.cycle.checkpoint = cp
	return StateFetching, nil
}

func (e *Engine) fetch(evt fsm.Event) (fsm.State, error) {
	ctx := evt.(*syncEvent).ctx
	batch, err := e.source.Fetch(ctx, e.cycle.checkpoint, e.startHeight)
	switch {
	case errors.Cause(err) == chain.ErrChainReorgDetected:
		e.haltCause.Store(err)
		e.logger.Error("chain reorganization detected, synchronization halted", zap.Error(err))
		return StateHalted, nil
	case err != nil:
		return e.fail(err)
	case batch == nil:
		return StateIdle, nil
	}
	e.cycle.batch = batch
	return StateDecoding, nil
}

func (e *Engine) decode(_ fsm.Event) (fsm.State, error) {
	events := e.cycle.batch.Events
	e.cycle.decoded = make([]decoded, 0, len(events))
	for i := range events {
		ev := &events[i]
		id, ent, err := e.decoder.Decode(ev)
		if err != nil {
			_eventCounter.WithLabelValues(e.backend, _outcomeMalformed).Inc()
			e.logger.Warn("skipping malformed event",
				zap.Uint64("height", ev.Height),
				zap.Uint64("logIndex", ev.LogIndex),
				zap.String("tx", ev.TxHash.Hex()),
				zap.Error(err))
			continue
		}
		e.cycle.decoded = append(e.cycle.decoded, decoded{
			pos: chain.Position{Height: ev.Height, LogIndex: ev.LogIndex},
			id:  id,
			e:   ent,
		})
	}
	return StateFiltering, nil
}

func (e *Engine) applyFilter(_ fsm.Event) (fsm.State, error) {
	accepted := e.cycle.decoded[:0]
	for _, d := range e.cycle.decoded {
		// payouts depend on every stake
		if d.e.Kind == entity.KindPropositionStake || e.filter.Accept(d.id, d.e) {
			accepted = append(accepted, d)
			continue
		}
		_eventCounter.WithLabelValues(e.backend, _outcomeFiltered).Inc()
		e.logger.Debug("entity filtered out",
			zap.String("cid", entity.HexID(d.id)),
			zap.String("filter", e.filter.Name()),
			zap.Uint64("height", d.pos.Height))
	}
	e.cycle.decoded = accepted
	return StateCommitting, nil
}

func (e *Engine) commit(evt fsm.Event) (fsm.State, error) {
	ctx := evt.(*syncEvent).ctx
	batch := e.cycle.batch
	cp := chain.Position{Height: batch.To}
	stored := make([]decoded, 0, len(e.cycle.decoded))
	for _, d := range e.cycle.decoded {
		if err := e.store.Put(ctx, d.e); err != nil {
			if errors.Cause(err) != entity.ErrEncoding {
				return e.fail(errors.Wrapf(err, "failed to store %s", entity.HexID(d.id)))
			}
			_eventCounter.WithLabelValues(e.backend, _outcomeRejected).Inc()
			e.logger.Warn("skipping entity the store rejected",
				zap.String("cid", entity.HexID(d.id)),
				zap.Uint64("height", d.pos.Height),
				zap.Uint64("logIndex", d.pos.LogIndex),
				zap.Error(err))
			continue
		}
		_eventCounter.WithLabelValues(e.backend, _outcomeApplied).Inc()
		stored = append(stored, d)
		if d.pos.Height == batch.To {
			cp.LogIndex = d.pos.LogIndex
		}
	}
	if err := e.checkpoints.Save(e.backend, cp); err != nil {
		return e.fail(err)
	}
	_checkpointGauge.WithLabelValues(e.backend).Set(float64(cp.Height))
	e.logger.Debug("checkpoint committed",
		zap.Uint64("height", cp.Height),
		zap.Uint64("logIndex", cp.LogIndex),
		zap.Int("entities", len(stored)))
	for _, h := range e.entityHooks {
		for _, d := range stored {
			h(e.backend, d.pos.Height, d.e)
		}
	}
	for _, h := range e.hooks {
		h(e.backend, cp)
	}
	return StateIdle, nil
}

func (e *Engine) resume(_ fsm.Event) (fsm.State, error) {
	e.logger.Info("synchronization resumed", zap.Error(e.haltCause.Load()))
	e.haltCause.Store(nil)
	return StateIdle, nil
}
