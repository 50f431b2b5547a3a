// Copyright (c) 2024 IoTeX Foundation
// This source code is provided 'as is' and no warranties are given as to title or non-infringement, merchantability
// or fitness for purpose and, to the extent permitted by law, all liability for your use of the code is disclaimed.
// This source code is governed by Apache License 2.0 that can be found in the LICENSE file.

package chain

import (
	"context"
	"sort"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/pkg/errors"
)

type (
	// Position is a point in the ledger: a block and a log index inside it
	Position struct {
		Height   uint64 `json:"height"`
		LogIndex uint64 `json:"logIndex"`
	}

	// Batch is the ordered events of the blocks [From, To]
	Batch struct {
		From   uint64
		To     uint64
		Events []Event
	}

	// Reader reads the protocol events in ordered block batches
	Reader struct {
		ledger        Ledger
		addresses     []common.Address
		topics        []common.Hash
		batchSize     uint64
		confirmations uint64
		retry         RetryConfig
	}
)

// NewReader creates a reader of the logs of the given contracts
func NewReader(ledger Ledger, addresses []common.Address, cfg Config) *Reader {
	batchSize := cfg.BlockBatchSize
	if batchSize == 0 {
		batchSize = DefaultConfig.BlockBatchSize
	}
	return &Reader{
		ledger:        ledger,
		addresses:     addresses,
		topics:        EventTopics(),
		batchSize:     batchSize,
		confirmations: cfg.Confirmations,
		retry:         cfg.Retry,
	}
}

// Fetch reads the next batch of whole blocks. Reading resumes at the block
// after scanned, or at start if nothing has been scanned yet. The batch is
// nil when the ledger has no new block.
func (r *Reader) Fetch(ctx context.Context, scanned *Position, start uint64) (*Batch, error) {
	var tip uint64
	if err := Retry(ctx, r.retry, func() (err error) {
		tip, err = r.ledger.TipHeight(ctx)
		return err
	}); err != nil {
		return nil, err
	}
	from := start
	if scanned != nil {
		if tip < scanned.Height {
			return nil, errors.Wrapf(ErrChainReorgDetected, "tip %d is below scanned height %d", tip, scanned.Height)
		}
		from = scanned.Height + 1
	}
	if tip < r.confirmations || from > tip-r.confirmations {
		return nil, nil
	}
	safeTip := tip - r.confirmations
	to := from + r.batchSize - 1
	if to > safeTip || to < from {
		to = safeTip
	}

	var logs []types.Log
	if err := Retry(ctx, r.retry, func() (err error) {
		logs, err = r.ledger.FilterLogs(ctx, from, to, r.addresses, r.topics)
		return err
	}); err != nil {
		return nil, err
	}
	events, err := orderEvents(logs, from, to)
	if err != nil {
		return nil, err
	}
	return &Batch{From: from, To: to, Events: events}, nil
}

// orderEvents sorts logs by position and rejects any view that cannot come from one canonical chain
func orderEvents(logs []types.Log, from, to uint64) ([]Event, error) {
	events := make([]Event, 0, len(logs))
	for i := range logs {
		l := &logs[i]
		if l.Removed {
			return nil, errors.Wrapf(ErrChainReorgDetected, "log %d of block %d was removed", l.Index, l.BlockNumber)
		}
		if l.BlockNumber < from || l.BlockNumber > to {
			return nil, errors.Wrapf(ErrChainReorgDetected, "log of block %d outside [%d, %d]", l.BlockNumber, from, to)
		}
		events = append(events, NewEvent(l))
	}
	sort.SliceStable(events, func(i, j int) bool { return events[i].Before(&events[j]) })
	for i := 1; i < len(events); i++ {
		if !events[i-1].Before(&events[i]) {
			return nil, errors.Wrapf(ErrChainReorgDetected, "duplicate log %d in block %d", events[i].LogIndex, events[i].Height)
		}
	}
	return events, nil
}
