// Copyright (c) 2024 IoTeX Foundation
// This source code is provided 'as is' and no warranties are given as to title or non-infringement, merchantability
// or fitness for purpose and, to the extent permitted by law, all liability for your use of the code is disclaimed.
// This source code is governed by Apache License 2.0 that can be found in the LICENSE file.

package submitter

import (
	"context"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/facebookgo/clock"
	"github.com/pkg/errors"
	"go.uber.org/atomic"
	"go.uber.org/zap"

	"github.com/iotexproject/rlay-client/chain"
	"github.com/iotexproject/rlay-client/epoch"
	"github.com/iotexproject/rlay-client/merkle"
	"github.com/iotexproject/rlay-client/payout"
	"github.com/iotexproject/rlay-client/pkg/lifecycle"
	"github.com/iotexproject/rlay-client/pkg/log"
	"github.com/iotexproject/rlay-client/pkg/routine"
)

var _ lifecycle.StartStopper = (*Pipeline)(nil)

type (
	// Config is the config of the payout pipeline
	Config struct {
		Enabled bool `yaml:"enabled"`
		// Submit anchors roots on chain; records are only computed when false
		Submit         bool              `yaml:"submit"`
		Interval       time.Duration     `yaml:"interval"`
		Epoch          epoch.Config      `yaml:"epoch"`
		RewardPerBlock string            `yaml:"rewardPerBlock"`
		EpochBudget    string            `yaml:"epochBudget"`
		CheckEpochs    int               `yaml:"checkEpochs"`
		ConfirmTimeout time.Duration     `yaml:"confirmTimeout"`
		Retry          chain.RetryConfig `yaml:"retry"`
	}

	// CheckpointReader reads the committed sync position of a backend
	CheckpointReader interface {
		Load(backend string) (*chain.Position, error)
	}

	// EpochStatus describes how far an epoch has progressed
	EpochStatus struct {
		Epoch        epoch.Epoch  `json:"epoch"`
		SyncedHeight uint64       `json:"syncedHeight"`
		Closed       bool         `json:"closed"`
		Status       string       `json:"status"`
		Root         *common.Hash `json:"root,omitempty"`
		TxHash       *common.Hash `json:"txHash,omitempty"`
		Payouts      int          `json:"payouts"`
	}

	// Pipeline computes the payout records of closed epochs and hands them to the submitter
	Pipeline struct {
		backend        string
		checkpoints    CheckpointReader
		tracker        *epoch.Tracker
		aggregator     *payout.Aggregator
		records        *RecordStore
		submitter      *Submitter
		rewardPerBlock *big.Int
		budget         *big.Int
		clock          clock.Clock
		logger         *zap.Logger

		mu         sync.Mutex
		lastClosed *atomic.Int64
		recurring  *routine.RecurringTask
		trigger    *routine.TriggerTask
		ctx        context.Context
		cancel     context.CancelFunc
	}

	// Option sets an optional field of the pipeline
	Option func(*Pipeline)
)

// DefaultConfig is the default payout config
var DefaultConfig = Config{
	Enabled:        true,
	Submit:         true,
	Interval:       time.Minute,
	RewardPerBlock: "25000000000000000000",
	CheckEpochs:    10,
	ConfirmTimeout: 10 * time.Minute,
	Retry: chain.RetryConfig{
		InitialInterval: time.Second,
		MaxInterval:     time.Minute,
		MaxRetries:      5,
	},
}

// Budgets parses the reward per block and the optional epoch budget override
func (cfg Config) Budgets() (*big.Int, *big.Int, error) {
	rewardPerBlock, ok := new(big.Int).SetString(cfg.RewardPerBlock, 10)
	if !ok || rewardPerBlock.Sign() < 0 {
		return nil, nil, errors.Wrapf(payout.ErrInvalidBudget, "reward per block %q", cfg.RewardPerBlock)
	}
	if cfg.EpochBudget == "" {
		return rewardPerBlock, nil, nil
	}
	budget, ok := new(big.Int).SetString(cfg.EpochBudget, 10)
	if !ok || budget.Sign() < 0 {
		return nil, nil, errors.Wrapf(payout.ErrInvalidBudget, "epoch budget %q", cfg.EpochBudget)
	}
	return rewardPerBlock, budget, nil
}

// WithSubmitter anchors the computed roots
func WithSubmitter(s *Submitter) Option {
	return func(p *Pipeline) { p.submitter = s }
}

// WithBudget overrides the epoch budget derived from the reward per block
func WithBudget(budget *big.Int) Option {
	return func(p *Pipeline) { p.budget = budget }
}

// WithClock sets the clock of the pipeline and its recurring task
func WithClock(c clock.Clock) Option {
	return func(p *Pipeline) { p.clock = c }
}

// NewPipeline creates a pipeline reading the checkpoint of backend every interval
func NewPipeline(
	backend string,
	checkpoints CheckpointReader,
	tracker *epoch.Tracker,
	aggregator *payout.Aggregator,
	records *RecordStore,
	rewardPerBlock *big.Int,
	interval time.Duration,
	opts ...Option,
) *Pipeline {
	p := &Pipeline{
		backend:        backend,
		checkpoints:    checkpoints,
		tracker:        tracker,
		aggregator:     aggregator,
		records:        records,
		rewardPerBlock: rewardPerBlock,
		clock:          clock.New(),
		logger:         log.Logger("payout"),
		lastClosed:     atomic.NewInt64(-1),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.ctx, p.cancel = context.WithCancel(context.Background())
	p.recurring = routine.NewRecurringTask(p.tick, interval, routine.WithClock(p.clock), routine.RunOnStart())
	p.trigger = routine.NewTriggerTask(p.tick)
	return p
}

// Start starts the pipeline loops
func (p *Pipeline) Start(ctx context.Context) error {
	if err := p.trigger.Start(ctx); err != nil {
		return err
	}
	return p.recurring.Start(ctx)
}

// Stop cancels in-flight calls and waits for the loops to exit
func (p *Pipeline) Stop(ctx context.Context) error {
	p.cancel()
	if err := p.recurring.Stop(ctx); err != nil {
		return err
	}
	return p.trigger.Stop(ctx)
}

// OnCommit schedules a round when the followed backend commits a checkpoint
func (p *Pipeline) OnCommit(backend string, cp chain.Position) {
	if backend != p.backend {
		return
	}
	last, err := p.tracker.LastClosed(cp.Height)
	if err != nil {
		return
	}
	// only a newly closed epoch needs a round ahead of the interval
	if int64(last) > p.lastClosed.Swap(int64(last)) {
		p.trigger.Trigger()
	}
}

// Backend returns the backend whose checkpoint gates the pipeline
func (p *Pipeline) Backend() string { return p.backend }

// Tracker returns the epoch tracker
func (p *Pipeline) Tracker() *epoch.Tracker { return p.tracker }

// Records returns the record store
func (p *Pipeline) Records() *RecordStore { return p.records }

// Aggregator returns the pool aggregator
func (p *Pipeline) Aggregator() *payout.Aggregator { return p.aggregator }

func (p *Pipeline) tick() {
	if err := p.Run(p.ctx); err != nil {
		p.logger.Warn("payout round failed", zap.Error(err))
	}
}

// Run computes the records of newly closed epochs, then anchors the pending ones
func (p *Pipeline) Run(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, calcErr := p.Calculate(ctx)
	if p.submitter != nil {
		// records persisted earlier are anchored even if this round failed to extend them
		if err := p.submitter.SubmitPending(ctx); err != nil {
			return err
		}
	}
	return calcErr
}

// SyncedHeight returns the last block committed by the followed backend, false if none
func (p *Pipeline) SyncedHeight() (uint64, bool, error) {
	cp, err := p.checkpoints.Load(p.backend)
	if err != nil {
		return 0, false, err
	}
	if cp == nil {
		return 0, false, nil
	}
	return cp.Height, true, nil
}

// Calculate persists a record for every closed epoch after the newest recorded one
func (p *Pipeline) Calculate(ctx context.Context) ([]*Record, error) {
	synced, ok, err := p.SyncedHeight()
	if err != nil || !ok {
		return nil, err
	}
	last, err := p.tracker.LastClosed(synced)
	if errors.Cause(err) == epoch.ErrInsufficientEpochData {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	next := uint64(0)
	switch latest, err := p.records.Latest(); errors.Cause(err) {
	case nil:
		next = latest.Epoch + 1
	case ErrRecordNotFound:
	default:
		return nil, err
	}
	var created []*Record
	for i := next; i <= last; i++ {
		r, err := p.compute(ctx, i)
		if err != nil {
			return created, err
		}
		if err := p.records.Put(r); err != nil {
			p.logger.Error("failed to persist payout record", zap.Uint64("epoch", i), zap.Error(err))
			return created, err
		}
		_epochCounter.WithLabelValues(string(r.Status)).Inc()
		p.logger.Info("payout record computed",
			zap.Uint64("epoch", r.Epoch),
			zap.Int("payouts", len(r.Payouts)),
			zap.String("root", r.Root.Hex()),
			zap.String("status", string(r.Status)))
		created = append(created, r)
	}
	return created, nil
}

// Record returns the stored record of a closed epoch, or computes it without persisting
func (p *Pipeline) Record(ctx context.Context, index uint64) (*Record, error) {
	r, err := p.records.Get(index)
	if errors.Cause(err) != ErrRecordNotFound {
		return r, err
	}
	synced, ok, err := p.SyncedHeight()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, errors.Wrapf(epoch.ErrInsufficientEpochData, "backend %s has not synced", p.backend)
	}
	if err := p.tracker.CheckClosed(index, synced); err != nil {
		return nil, err
	}
	return p.compute(ctx, index)
}

// Status reports the progress of an epoch
func (p *Pipeline) Status(index uint64) (*EpochStatus, error) {
	s := &EpochStatus{Epoch: p.tracker.Epoch(index), Status: "open"}
	synced, ok, err := p.SyncedHeight()
	if err != nil {
		return nil, err
	}
	if ok {
		s.SyncedHeight = synced
		s.Closed = p.tracker.CheckClosed(index, synced) == nil
	}
	if s.Closed {
		s.Status = "closed"
	}
	r, err := p.records.Get(index)
	switch errors.Cause(err) {
	case nil:
		s.Status, s.Root, s.TxHash, s.Payouts = string(r.Status), &r.Root, r.TxHash, len(r.Payouts)
	case ErrRecordNotFound:
	default:
		return nil, err
	}
	return s, nil
}

func (p *Pipeline) compute(ctx context.Context, index uint64) (*Record, error) {
	ep := p.tracker.Epoch(index)
	pools, err := p.aggregator.Pools(ctx, ep)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to aggregate epoch %d", index)
	}
	budget := payout.Budget(p.rewardPerBlock, p.tracker.Length(), p.budget)
	payouts, err := payout.Calculate(budget, payout.Weights(pools))
	if err != nil {
		return nil, errors.Wrapf(err, "failed to calculate epoch %d", index)
	}
	r := &Record{
		Epoch:     index,
		Start:     ep.Start,
		End:       ep.End,
		Budget:    budget,
		Payouts:   payouts,
		Status:    StatusPending,
		CreatedAt: p.clock.Now(),
	}
	if len(payouts) == 0 {
		// nothing to anchor
		r.Status, r.FinalizedAt = StatusFinal, &r.CreatedAt
		return r, nil
	}
	tree, err := merkle.NewTree(payout.Leaves(payouts))
	if err != nil {
		return nil, errors.Wrapf(err, "failed to build tree of epoch %d", index)
	}
	r.Root = tree.Root()
	return r, nil
}
