// Copyright (c) 2024 IoTeX Foundation
// This source code is provided 'as is' and no warranties are given as to title or non-infringement, merchantability
// or fitness for purpose and, to the extent permitted by law, all liability for your use of the code is disclaimed.
// This source code is governed by Apache License 2.0 that can be found in the LICENSE file.

package merkle

import (
	"bytes"
	"math/big"
	"sort"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"
	"github.com/pkg/errors"
)

var (
	// ErrEmptyTree indicates a tree without leaves
	ErrEmptyTree = errors.New("merkle tree has no leaf")
	// ErrLeafNotFound indicates the account has no leaf in the tree
	ErrLeafNotFound = errors.New("leaf not found")
	// ErrInvalidLeaf indicates an amount that is negative or does not fit 256 bits, or a duplicated account
	ErrInvalidLeaf = errors.New("invalid leaf")
)

type (
	// Leaf is one (account, amount) pair of a payout set
	Leaf struct {
		Account common.Address
		Amount  *big.Int
	}

	// Step is one level of a proof: the sibling hash and whether it sits on the left
	Step struct {
		Sibling common.Hash `json:"sibling"`
		Left    bool        `json:"left"`
	}

	// Proof is the path from a leaf to the root
	Proof []Step

	// Tree is a binary keccak tree over leaves sorted by account
	Tree struct {
		levels [][]common.Hash
		index  map[common.Address]int
	}
)

// LeafHash returns keccak256(account ‖ amount as 32-byte big endian)
func LeafHash(account common.Address, amount *big.Int) (common.Hash, error) {
	if amount == nil || amount.Sign() < 0 {
		return common.Hash{}, errors.Wrapf(ErrInvalidLeaf, "negative amount for %s", account.Hex())
	}
	v, overflow := uint256.FromBig(amount)
	if overflow {
		return common.Hash{}, errors.Wrapf(ErrInvalidLeaf, "amount of %s overflows 256 bits", account.Hex())
	}
	b := v.Bytes32()
	return crypto.Keccak256Hash(account.Bytes(), b[:]), nil
}

func nodeHash(left, right common.Hash) common.Hash {
	return crypto.Keccak256Hash(left.Bytes(), right.Bytes())
}

// NewTree builds the tree. An odd node on any level is paired with itself.
func NewTree(leaves []Leaf) (*Tree, error) {
	if len(leaves) == 0 {
		return nil, ErrEmptyTree
	}
	sorted := make([]Leaf, len(leaves))
	copy(sorted, leaves)
	sort.Slice(sorted, func(i, j int) bool {
		return bytes.Compare(sorted[i].Account.Bytes(), sorted[j].Account.Bytes()) < 0
	})
	t := &Tree{index: make(map[common.Address]int, len(sorted))}
	level := make([]common.Hash, len(sorted))
	for i, l := range sorted {
		if _, ok := t.index[l.Account]; ok {
			return nil, errors.Wrapf(ErrInvalidLeaf, "duplicated account %s", l.Account.Hex())
		}
		h, err := LeafHash(l.Account, l.Amount)
		if err != nil {
			return nil, err
		}
		t.index[l.Account] = i
		level[i] = h
	}
	t.levels = append(t.levels, level)
	for len(level) > 1 {
		next := make([]common.Hash, (len(level)+1)/2)
		for i := range next {
			left := level[2*i]
			right := left
			if 2*i+1 < len(level) {
				right = level[2*i+1]
			}
			next[i] = nodeHash(left, right)
		}
		t.levels = append(t.levels, next)
		level = next
	}
	return t, nil
}

// Root returns the root hash
func (t *Tree) Root() common.Hash {
	return t.levels[len(t.levels)-1][0]
}

// Len returns the number of leaves
func (t *Tree) Len() int {
	return len(t.levels[0])
}

// Leaf returns the hash of the leaf of an account
func (t *Tree) Leaf(account common.Address) (common.Hash, error) {
	i, ok := t.index[account]
	if !ok {
		return common.Hash{}, errors.Wrap(ErrLeafNotFound, account.Hex())
	}
	return t.levels[0][i], nil
}

// Proof returns the proof of the leaf of an account
func (t *Tree) Proof(account common.Address) (Proof, error) {
	i, ok := t.index[account]
	if !ok {
		return nil, errors.Wrap(ErrLeafNotFound, account.Hex())
	}
	proof := make(Proof, 0, len(t.levels)-1)
	for _, level := range t.levels[:len(t.levels)-1] {
		var step Step
		if i%2 == 1 {
			step = Step{Sibling: level[i-1], Left: true}
		} else if i+1 < len(level) {
			step = Step{Sibling: level[i+1]}
		} else {
			step = Step{Sibling: level[i]}
		}
		proof = append(proof, step)
		i /= 2
	}
	return proof, nil
}

// Hashes returns the sibling hashes of the proof in order
func (p Proof) Hashes() []common.Hash {
	ret := make([]common.Hash, len(p))
	for i, s := range p {
		ret[i] = s.Sibling
	}
	return ret
}

// Verify checks a leaf hash against a root. It only needs the proof.
func Verify(leaf common.Hash, proof Proof, root common.Hash) bool {
	h := leaf
	for _, s := range proof {
		if s.Left {
			h = nodeHash(s.Sibling, h)
		} else {
			h = nodeHash(h, s.Sibling)
		}
	}
	return h == root
}

// VerifyPayout checks an (account, amount) pair against a root
func VerifyPayout(account common.Address, amount *big.Int, proof Proof, root common.Hash) bool {
	leaf, err := LeafHash(account, amount)
	if err != nil {
		return false
	}
	return Verify(leaf, proof, root)
}
