// Copyright (c) 2024 IoTeX Foundation
// This source code is provided 'as is' and no warranties are given as to title or non-infringement, merchantability
// or fitness for purpose and, to the extent permitted by law, all liability for your use of the code is disclaimed.
// This source code is governed by Apache License 2.0 that can be found in the LICENSE file.

package epoch

import (
	"context"

	"github.com/pkg/errors"
)

var (
	// ErrInsufficientEpochData indicates the synchronized view does not cover the epoch yet
	ErrInsufficientEpochData = errors.New("insufficient epoch data")
	// ErrInvalidLength indicates an epoch length of zero
	ErrInvalidLength = errors.New("invalid epoch length")
)

type (
	// Epoch is the block range [Start, End] rewarded at once
	Epoch struct {
		Index uint64 `json:"index"`
		Start uint64 `json:"start"`
		End   uint64 `json:"end"`
	}

	// Config overrides the values read from the token contract when non zero
	Config struct {
		Start  uint64 `yaml:"start"`
		Length uint64 `yaml:"length"`
	}

	// ContractReader reads the epoch parameters from chain state
	ContractReader interface {
		EpochsStart(context.Context) (uint64, error)
		EpochLength(context.Context) (uint64, error)
	}

	// Tracker computes epoch boundaries from a start block and a fixed length
	Tracker struct {
		start  uint64
		length uint64
	}
)

// Contains returns whether a block height is inside the epoch
func (e Epoch) Contains(height uint64) bool {
	return height >= e.Start && height <= e.End
}

// NewTracker creates a tracker for epochs of length blocks starting at start
func NewTracker(start, length uint64) (*Tracker, error) {
	if length == 0 {
		return nil, ErrInvalidLength
	}
	return &Tracker{start: start, length: length}, nil
}

// NewTrackerFromContract creates a tracker, reading from the contract every value cfg leaves zero
func NewTrackerFromContract(ctx context.Context, c ContractReader, cfg Config) (*Tracker, error) {
	var err error
	start, length := cfg.Start, cfg.Length
	if start == 0 {
		if start, err = c.EpochsStart(ctx); err != nil {
			return nil, errors.Wrap(err, "failed to read epochs start")
		}
	}
	if length == 0 {
		if length, err = c.EpochLength(ctx); err != nil {
			return nil, errors.Wrap(err, "failed to read epoch length")
		}
	}
	return NewTracker(start, length)
}

// Start returns the first block of epoch 0
func (t *Tracker) Start() uint64 { return t.start }

// Length returns the number of blocks per epoch
func (t *Tracker) Length() uint64 { return t.length }

// Epoch returns the boundaries of an epoch
func (t *Tracker) Epoch(index uint64) Epoch {
	start := t.start + index*t.length
	return Epoch{
		Index: index,
		Start: start,
		End:   start + t.length - 1,
	}
}

// EpochOf returns the epoch a block height belongs to, false before the first epoch
func (t *Tracker) EpochOf(height uint64) (uint64, bool) {
	if height < t.start {
		return 0, false
	}
	return (height - t.start) / t.length, true
}

// LastClosed returns the newest epoch fully covered by the synchronized height
func (t *Tracker) LastClosed(synced uint64) (uint64, error) {
	if synced < t.start+t.length-1 {
		return 0, errors.Wrapf(ErrInsufficientEpochData, "synced height %d has not closed any epoch", synced)
	}
	return (synced+1-t.start)/t.length - 1, nil
}

// CheckClosed fails with ErrInsufficientEpochData until the synchronized height reaches the epoch end
func (t *Tracker) CheckClosed(index, synced uint64) error {
	if e := t.Epoch(index); synced < e.End {
		return errors.Wrapf(ErrInsufficientEpochData, "epoch %d ends at %d, synced to %d", index, e.End, synced)
	}
	return nil
}
