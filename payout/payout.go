// Copyright (c) 2024 IoTeX Foundation
// This source code is provided 'as is' and no warranties are given as to title or non-infringement, merchantability
// or fitness for purpose and, to the extent permitted by law, all liability for your use of the code is disclaimed.
// This source code is governed by Apache License 2.0 that can be found in the LICENSE file.

package payout

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math/big"
	"sort"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/iotexproject/iotex-address/address"
	"github.com/pkg/errors"

	"github.com/iotexproject/rlay-client/merkle"
)

// Payout is the amount owed to one participant, in the smallest reward unit
type Payout struct {
	Address common.Address
	Amount  *big.Int
}

type payoutJSON struct {
	Address   common.Address `json:"address"`
	IoAddress string         `json:"ioAddress,omitempty"`
	Amount    string         `json:"amount"`
}

// MarshalJSON encodes the amount as a decimal string
func (p Payout) MarshalJSON() ([]byte, error) {
	return json.Marshal(&payoutJSON{
		Address:   p.Address,
		IoAddress: p.IoAddress(),
		Amount:    p.Amount.String(),
	})
}

// UnmarshalJSON decodes a payout written by MarshalJSON
func (p *Payout) UnmarshalJSON(data []byte) error {
	var v payoutJSON
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	amount, ok := new(big.Int).SetString(v.Amount, 10)
	if !ok {
		return errors.Errorf("invalid amount %q", v.Amount)
	}
	p.Address, p.Amount = v.Address, amount
	return nil
}

// IoAddress returns the participant address in io1 form, empty if it cannot be converted
func (p Payout) IoAddress() string {
	addr, err := address.FromBytes(p.Address.Bytes())
	if err != nil {
		return ""
	}
	return addr.String()
}

// Sort orders payouts by participant address bytes
func Sort(payouts []Payout) {
	sort.Slice(payouts, func(i, j int) bool {
		return bytes.Compare(payouts[i].Address.Bytes(), payouts[j].Address.Bytes()) < 0
	})
}

// Total returns the sum of all amounts
func Total(payouts []Payout) *big.Int {
	total := new(big.Int)
	for _, p := range payouts {
		total.Add(total, p.Amount)
	}
	return total
}

// Find returns the payout of an address
func Find(payouts []Payout, addr common.Address) (Payout, bool) {
	for _, p := range payouts {
		if p.Address == addr {
			return p, true
		}
	}
	return Payout{}, false
}

// Leaves converts payouts into merkle leaves
func Leaves(payouts []Payout) []merkle.Leaf {
	leaves := make([]merkle.Leaf, len(payouts))
	for i, p := range payouts {
		leaves[i] = merkle.Leaf{Account: p.Address, Amount: p.Amount}
	}
	return leaves
}

// Cumulative sums the payouts of every set per address
func Cumulative(sets ...[]Payout) []Payout {
	sums := make(map[common.Address]*big.Int)
	for _, set := range sets {
		for _, p := range set {
			sum, ok := sums[p.Address]
			if !ok {
				sum = new(big.Int)
				sums[p.Address] = sum
			}
			sum.Add(sum, p.Amount)
		}
	}
	ret := make([]Payout, 0, len(sums))
	for addr, sum := range sums {
		ret = append(ret, Payout{Address: addr, Amount: sum})
	}
	Sort(ret)
	return ret
}

// FormatRedeem returns the token contract call a participant sends to redeem a payout
func FormatRedeem(epoch uint64, proof merkle.Proof, p Payout) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "redeemPayout(%d, [", epoch)
	for _, h := range proof.Hashes() {
		fmt.Fprintf(&sb, "'%s',", h.Hex())
	}
	fmt.Fprintf(&sb, "],'%s','%s')", strings.ToLower(p.Address.Hex()), p.Amount.String())
	return sb.String()
}
