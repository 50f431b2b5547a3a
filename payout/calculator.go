// Copyright (c) 2024 IoTeX Foundation
// This source code is provided 'as is' and no warranties are given as to title or non-infringement, merchantability
// or fitness for purpose and, to the extent permitted by law, all liability for your use of the code is disclaimed.
// This source code is governed by Apache License 2.0 that can be found in the LICENSE file.

package payout

import (
	"bytes"
	"math/big"
	"sort"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
)

// ErrInvalidBudget indicates a missing or negative reward budget
var ErrInvalidBudget = errors.New("invalid reward budget")

// Budget returns the reward of an epoch: the override if set, else rewardPerBlock * length
func Budget(rewardPerBlock *big.Int, length uint64, override *big.Int) *big.Int {
	if override != nil && override.Sign() > 0 {
		return new(big.Int).Set(override)
	}
	return new(big.Int).Mul(rewardPerBlock, new(big.Int).SetUint64(length))
}

type share struct {
	addr      common.Address
	amount    *big.Int
	remainder *big.Int
}

// Calculate splits budget across participants proportionally to their weight.
// Floors are handed out first, then the undistributed units go one each to the
// largest remainders, ties broken by ascending address bytes. The result sums
// to budget exactly, skips participants left with nothing, and is sorted by address.
func Calculate(budget *big.Int, weights map[common.Address]*big.Int) ([]Payout, error) {
	if budget == nil || budget.Sign() < 0 {
		return nil, errors.Wrapf(ErrInvalidBudget, "budget %v", budget)
	}
	total := new(big.Int)
	shares := make([]*share, 0, len(weights))
	for addr, w := range weights {
		if w == nil || w.Sign() <= 0 {
			continue
		}
		total.Add(total, w)
		shares = append(shares, &share{addr: addr, remainder: w})
	}
	if len(shares) == 0 || budget.Sign() == 0 {
		return []Payout{}, nil
	}

	left := new(big.Int).Set(budget)
	for _, s := range shares {
		num := new(big.Int).Mul(budget, s.remainder)
		s.amount, s.remainder = new(big.Int).QuoRem(num, total, new(big.Int))
		left.Sub(left, s.amount)
	}
	sort.Slice(shares, func(i, j int) bool {
		if c := shares[i].remainder.Cmp(shares[j].remainder); c != 0 {
			return c > 0
		}
		return bytes.Compare(shares[i].addr.Bytes(), shares[j].addr.Bytes()) < 0
	})
	// left < len(shares) since each remainder is below one unit
	one := big.NewInt(1)
	for i := 0; left.Sign() > 0; i++ {
		shares[i].amount.Add(shares[i].amount, one)
		left.Sub(left, one)
	}

	payouts := make([]Payout, 0, len(shares))
	for _, s := range shares {
		if s.amount.Sign() > 0 {
			payouts = append(payouts, Payout{Address: s.addr, Amount: s.amount})
		}
	}
	Sort(payouts)
	return payouts, nil
}
