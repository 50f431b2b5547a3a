// Copyright (c) 2024 IoTeX Foundation
// This source code is provided 'as is' and no warranties are given as to title or non-infringement, merchantability
// or fitness for purpose and, to the extent permitted by law, all liability for your use of the code is disclaimed.
// This source code is governed by Apache License 2.0 that can be found in the LICENSE file.

package payout

import (
	"encoding/json"
	"math/big"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"github.com/iotexproject/rlay-client/merkle"
)

func TestPayoutJSON(t *testing.T) {
	r := require.New(t)
	amount, ok := new(big.Int).SetString("25000000000000000000", 10)
	r.True(ok)
	p := Payout{Address: _a, Amount: amount}
	data, err := json.Marshal(p)
	r.NoError(err)
	r.Contains(string(data), `"amount":"25000000000000000000"`)
	r.Contains(string(data), `"ioAddress":"io1`)

	var decoded Payout
	r.NoError(json.Unmarshal(data, &decoded))
	r.Equal(p.Address, decoded.Address)
	r.Zero(p.Amount.Cmp(decoded.Amount))

	r.Error(json.Unmarshal([]byte(`{"address":"0x0a","amount":"1.5"}`), &decoded))
}

func TestCumulative(t *testing.T) {
	r := require.New(t)
	sum := Cumulative(
		[]Payout{{_b, big.NewInt(10)}, {_a, big.NewInt(5)}},
		[]Payout{{_a, big.NewInt(7)}},
		nil,
		[]Payout{{_c, big.NewInt(1)}, {_b, big.NewInt(1)}},
	)
	r.Equal(map[common.Address]int64{_a: 12, _b: 11, _c: 1}, amounts(sum))
	r.Equal(_a, sum[0].Address)
	r.Equal(_c, sum[2].Address)
	r.Empty(Cumulative())

	p, ok := Find(sum, _b)
	r.True(ok)
	r.Equal(int64(11), p.Amount.Int64())
	_, ok = Find(sum, _d)
	r.False(ok)
}

func TestFormatRedeem(t *testing.T) {
	r := require.New(t)
	payouts := []Payout{{_a, big.NewInt(600)}, {_b, big.NewInt(300)}}
	tree, err := merkle.NewTree(Leaves(payouts))
	r.NoError(err)
	proof, err := tree.Proof(_a)
	r.NoError(err)
	sibling, err := tree.Leaf(_b)
	r.NoError(err)

	call := FormatRedeem(4, proof, payouts[0])
	r.Equal("redeemPayout(4, ['"+sibling.Hex()+"',],'"+strings.ToLower(_a.Hex())+"','600')", call)
}
