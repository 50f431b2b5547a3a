// Copyright (c) 2024 IoTeX Foundation
// This source code is provided 'as is' and no warranties are given as to title or non-infringement, merchantability
// or fitness for purpose and, to the extent permitted by law, all liability for your use of the code is disclaimed.
// This source code is governed by Apache License 2.0 that can be found in the LICENSE file.

package chain

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
)

// TokenContract reads epoch parameters and anchors payout roots
type TokenContract struct {
	ledger  Ledger
	address common.Address
}

// NewTokenContract binds the token contract at address
func NewTokenContract(ledger Ledger, address common.Address) *TokenContract {
	return &TokenContract{ledger: ledger, address: address}
}

// Address returns the contract address
func (t *TokenContract) Address() common.Address {
	return t.address
}

func (t *TokenContract) call(ctx context.Context, method string, args ...interface{}) (interface{}, error) {
	data, err := _tokenInterface.Pack(method, args...)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to pack %s", method)
	}
	out, err := t.ledger.CallContract(ctx, t.address, data)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to call %s", method)
	}
	values, err := _tokenInterface.Unpack(method, out)
	if err != nil {
		return nil, errors.Wrapf(ErrDecode, "failed to unpack %s: %v", method, err)
	}
	if len(values) != 1 {
		return nil, errors.Wrapf(ErrDecode, "%s returned %d values", method, len(values))
	}
	return values[0], nil
}

func (t *TokenContract) callUint64(ctx context.Context, method string) (uint64, error) {
	v, err := t.call(ctx, method)
	if err != nil {
		return 0, err
	}
	n, ok := v.(*big.Int)
	if !ok || !n.IsUint64() {
		return 0, errors.Wrapf(ErrDecode, "%s returned %v", method, v)
	}
	return n.Uint64(), nil
}

// EpochsStart returns the block the first epoch starts at
func (t *TokenContract) EpochsStart(ctx context.Context) (uint64, error) {
	return t.callUint64(ctx, "epochs_start")
}

// EpochLength returns the number of blocks per epoch
func (t *TokenContract) EpochLength(ctx context.Context) (uint64, error) {
	return t.callUint64(ctx, "epoch_length")
}

// Owner returns the contract owner, the only account allowed to submit roots
func (t *TokenContract) Owner(ctx context.Context) (common.Address, error) {
	v, err := t.call(ctx, "owner")
	if err != nil {
		return common.Address{}, err
	}
	addr, ok := v.(common.Address)
	if !ok {
		return common.Address{}, errors.Wrapf(ErrDecode, "owner returned %v", v)
	}
	return addr, nil
}

// PayoutRoot returns the root anchored for an epoch, zero if none
func (t *TokenContract) PayoutRoot(ctx context.Context, epoch uint64) (common.Hash, error) {
	v, err := t.call(ctx, "payout_roots", new(big.Int).SetUint64(epoch))
	if err != nil {
		return common.Hash{}, err
	}
	root, ok := v.([32]byte)
	if !ok {
		return common.Hash{}, errors.Wrapf(ErrDecode, "payout_roots returned %v", v)
	}
	return common.Hash(root), nil
}

// SubmitPayoutRoot sends the transaction anchoring the root of an epoch
func (t *TokenContract) SubmitPayoutRoot(ctx context.Context, epoch uint64, root common.Hash) (common.Hash, error) {
	data, err := _tokenInterface.Pack("submitPayoutRoot", new(big.Int).SetUint64(epoch), [32]byte(root))
	if err != nil {
		return common.Hash{}, errors.Wrap(err, "failed to pack submitPayoutRoot")
	}
	return t.ledger.SendTransaction(ctx, t.address, data)
}

// PackPayoutRoot encodes a payout_roots return value
func PackPayoutRoot(root common.Hash) ([]byte, error) {
	return _tokenInterface.Methods["payout_roots"].Outputs.Pack([32]byte(root))
}

// PackUint returns the encoding of a uint256 return value
func PackUint(n uint64) ([]byte, error) {
	return _tokenInterface.Methods["epoch_length"].Outputs.Pack(new(big.Int).SetUint64(n))
}
