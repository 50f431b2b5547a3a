// Copyright (c) 2024 IoTeX Foundation
// This source code is provided 'as is' and no warranties are given as to title or non-infringement, merchantability
// or fitness for purpose and, to the extent permitted by law, all liability for your use of the code is disclaimed.
// This source code is governed by Apache License 2.0 that can be found in the LICENSE file.

package payout

import (
	"bytes"
	"context"
	"encoding/json"
	"math/big"
	"sort"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/iotexproject/rlay-client/entity"
	"github.com/iotexproject/rlay-client/epoch"
	"github.com/iotexproject/rlay-client/pkg/log"
	"github.com/iotexproject/rlay-client/store"
)

type (
	// Pool is the stake put on the propositions of one subject during an epoch
	Pool struct {
		Subject []byte
		Weights map[common.Address]*big.Int
	}

	// Aggregator builds proposition pools from the stakes of an entity store
	Aggregator struct {
		store store.EntityStore
	}
)

// MarshalJSON encodes the subject in hex and weights as decimal strings
func (p *Pool) MarshalJSON() ([]byte, error) {
	weights := make(map[string]string, len(p.Weights))
	for addr, w := range p.Weights {
		weights[addr.Hex()] = w.String()
	}
	return json.Marshal(&struct {
		Subject hexutil.Bytes     `json:"subject"`
		Weights map[string]string `json:"weights"`
	}{p.Subject, weights})
}

// Total returns the sum of the weights of the pool
func (p *Pool) Total() *big.Int {
	total := new(big.Int)
	for _, w := range p.Weights {
		total.Add(total, w)
	}
	return total
}

// NewAggregator creates an aggregator reading from s
func NewAggregator(s store.EntityStore) *Aggregator {
	return &Aggregator{store: s}
}

// Pools returns the pools of the stakes placed within the epoch, sorted by subject
func (a *Aggregator) Pools(ctx context.Context, ep epoch.Epoch) ([]*Pool, error) {
	ids, err := a.store.ListByKind(ctx, entity.KindPropositionStake)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list stakes")
	}
	pools := make(map[string]*Pool)
	for _, id := range ids {
		e, err := a.store.Get(ctx, id)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to read stake %s", entity.HexID(id))
		}
		stake, err := entity.ParseStake(e)
		if err != nil {
			log.Logger("payout").Warn("skipping malformed stake",
				zap.String("cid", entity.HexID(id)),
				zap.Error(err))
			continue
		}
		if !ep.Contains(stake.Height) || stake.Amount.Sign() <= 0 {
			continue
		}
		subject, err := a.subject(ctx, stake.Proposition)
		if err != nil {
			return nil, err
		}
		pool, ok := pools[string(subject)]
		if !ok {
			pool = &Pool{Subject: subject, Weights: make(map[common.Address]*big.Int)}
			pools[string(subject)] = pool
		}
		w, ok := pool.Weights[stake.Sender]
		if !ok {
			w = new(big.Int)
			pool.Weights[stake.Sender] = w
		}
		w.Add(w, stake.Amount)
	}
	ret := make([]*Pool, 0, len(pools))
	for _, p := range pools {
		ret = append(ret, p)
	}
	sort.Slice(ret, func(i, j int) bool { return bytes.Compare(ret[i].Subject, ret[j].Subject) < 0 })
	return ret, nil
}

// subject returns the subject of the proposition, or the proposition itself
// when it is unknown to the store or has no subject
func (a *Aggregator) subject(ctx context.Context, proposition []byte) ([]byte, error) {
	id, err := entity.ParseID(proposition)
	if err != nil {
		return proposition, nil
	}
	e, err := a.store.Get(ctx, id)
	switch errors.Cause(err) {
	case nil:
	case store.ErrNotFound:
		return proposition, nil
	default:
		return nil, errors.Wrapf(err, "failed to read proposition %s", entity.HexID(id))
	}
	if s := e.Field(entity.FieldSubject); len(s) > 0 {
		return s, nil
	}
	return proposition, nil
}

// Weights sums the weight of every participant across pools
func Weights(pools []*Pool) map[common.Address]*big.Int {
	ret := make(map[common.Address]*big.Int)
	for _, p := range pools {
		for addr, w := range p.Weights {
			sum, ok := ret[addr]
			if !ok {
				sum = new(big.Int)
				ret[addr] = sum
			}
			sum.Add(sum, w)
		}
	}
	return ret
}
