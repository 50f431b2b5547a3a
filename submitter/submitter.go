// Copyright (c) 2024 IoTeX Foundation
// This source code is provided 'as is' and no warranties are given as to title or non-infringement, merchantability
// or fitness for purpose and, to the extent permitted by law, all liability for your use of the code is disclaimed.
// This source code is governed by Apache License 2.0 that can be found in the LICENSE file.

package submitter

import (
	"context"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/facebookgo/clock"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/iotexproject/rlay-client/chain"
	"github.com/iotexproject/rlay-client/pkg/log"
)

// ErrSubmission indicates the root of an epoch could not be anchored
var ErrSubmission = errors.New("payout root submission failed")

var _epochCounter = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "rlay_payout_epochs",
		Help: "Payout epochs by submission status",
	},
	[]string{"status"},
)

func init() {
	prometheus.MustRegister(_epochCounter)
}

type (
	// RootContract reads and anchors payout roots
	RootContract interface {
		PayoutRoot(context.Context, uint64) (common.Hash, error)
		SubmitPayoutRoot(context.Context, uint64, common.Hash) (common.Hash, error)
	}

	// TxWatcher reports whether a sent transaction is mined
	TxWatcher interface {
		TransactionConfirmed(context.Context, common.Hash) (bool, error)
	}

	// Submitter anchors the roots of persisted records, never recomputing them
	Submitter struct {
		records        *RecordStore
		contract       RootContract
		watcher        TxWatcher
		retry          chain.RetryConfig
		checkEpochs    int
		confirmTimeout time.Duration
		clock          clock.Clock
		logger         *zap.Logger
	}

	// SubmitterOption sets an optional field of the submitter
	SubmitterOption func(*Submitter)
)

// WithSubmitterClock sets the clock used for record timestamps and timeouts
func WithSubmitterClock(c clock.Clock) SubmitterOption {
	return func(s *Submitter) {
		s.clock = c
	}
}

// NewSubmitter creates a submitter checking at most checkEpochs unfinished records per round
func NewSubmitter(
	records *RecordStore,
	contract RootContract,
	watcher TxWatcher,
	retry chain.RetryConfig,
	checkEpochs int,
	confirmTimeout time.Duration,
	opts ...SubmitterOption,
) *Submitter {
	s := &Submitter{
		records:        records,
		contract:       contract,
		watcher:        watcher,
		retry:          retry,
		checkEpochs:    checkEpochs,
		confirmTimeout: confirmTimeout,
		clock:          clock.New(),
		logger:         log.Logger("payout"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SubmitPending processes the newest unfinished records. A failing epoch is
// logged and does not block the others; the last failure is returned.
func (s *Submitter) SubmitPending(ctx context.Context) error {
	records, err := s.records.List()
	if err != nil {
		return err
	}
	var pending []*Record
	for i := len(records) - 1; i >= 0; i-- {
		if records[i].Final() {
			continue
		}
		pending = append(pending, records[i])
		if s.checkEpochs > 0 && len(pending) == s.checkEpochs {
			break
		}
	}
	var lastErr error
	for i := len(pending) - 1; i >= 0; i-- {
		if err := s.Submit(ctx, pending[i]); err != nil {
			s.logger.Error("failed to anchor payout root",
				zap.Uint64("epoch", pending[i].Epoch),
				zap.String("root", pending[i].Root.Hex()),
				zap.Error(err))
			lastErr = err
		}
	}
	return lastErr
}

// Submit moves a record one step towards final
func (s *Submitter) Submit(ctx context.Context, r *Record) error {
	if r.Final() {
		return nil
	}
	var onChain common.Hash
	if err := chain.Retry(ctx, s.retry, func() (err error) {
		onChain, err = s.contract.PayoutRoot(ctx, r.Epoch)
		return err
	}); err != nil {
		return errors.Wrapf(ErrSubmission, "failed to read root of epoch %d: %v", r.Epoch, err)
	}
	switch {
	case onChain == r.Root:
		return s.finalize(r)
	case onChain != (common.Hash{}):
		_epochCounter.WithLabelValues("conflict").Inc()
		return errors.Wrapf(ErrSubmission, "epoch %d is anchored with root %s, local root is %s", r.Epoch, onChain.Hex(), r.Root.Hex())
	}
	if r.Status == StatusSubmitted && r.TxHash != nil {
		wait, err := s.awaitConfirmation(ctx, r)
		if err != nil || wait {
			return err
		}
	}
	return s.send(ctx, r)
}

// awaitConfirmation returns true while the sent transaction may still be mined
func (s *Submitter) awaitConfirmation(ctx context.Context, r *Record) (bool, error) {
	var confirmed bool
	err := chain.Retry(ctx, s.retry, func() (err error) {
		confirmed, err = s.watcher.TransactionConfirmed(ctx, *r.TxHash)
		return err
	})
	switch errors.Cause(err) {
	case nil:
	case chain.ErrTransactionFailed:
		s.logger.Warn("payout root transaction failed, resubmitting",
			zap.Uint64("epoch", r.Epoch),
			zap.String("tx", r.TxHash.Hex()))
		return false, nil
	default:
		return false, errors.Wrapf(ErrSubmission, "failed to check transaction %s: %v", r.TxHash.Hex(), err)
	}
	if confirmed {
		// mined without the root showing up yet; re-read next round
		return true, nil
	}
	if r.SubmittedAt != nil && s.confirmTimeout > 0 && s.clock.Now().Sub(*r.SubmittedAt) > s.confirmTimeout {
		s.logger.Warn("payout root transaction not mined in time, resubmitting",
			zap.Uint64("epoch", r.Epoch),
			zap.String("tx", r.TxHash.Hex()))
		return false, nil
	}
	return true, nil
}

// send broadcasts once, the ledger resends the same transaction on connection
// errors. A failed send is retried on the next tick after re-reading the root.
func (s *Submitter) send(ctx context.Context, r *Record) error {
	hash, err := s.contract.SubmitPayoutRoot(ctx, r.Epoch, r.Root)
	if err != nil {
		_epochCounter.WithLabelValues("failed").Inc()
		return errors.Wrapf(ErrSubmission, "epoch %d: %v", r.Epoch, err)
	}
	now := s.clock.Now()
	r.Status, r.TxHash, r.SubmittedAt = StatusSubmitted, &hash, &now
	if err := s.records.Put(r); err != nil {
		return err
	}
	_epochCounter.WithLabelValues(string(StatusSubmitted)).Inc()
	s.logger.Info("payout root submitted",
		zap.Uint64("epoch", r.Epoch),
		zap.String("root", r.Root.Hex()),
		zap.String("tx", hash.Hex()))
	return nil
}

func (s *Submitter) finalize(r *Record) error {
	now := s.clock.Now()
	r.Status, r.FinalizedAt = StatusFinal, &now
	if err := s.records.Put(r); err != nil {
		return err
	}
	_epochCounter.WithLabelValues(string(StatusFinal)).Inc()
	s.logger.Info("payout root final", zap.Uint64("epoch", r.Epoch), zap.String("root", r.Root.Hex()))
	return nil
}
