// Copyright (c) 2024 IoTeX Foundation
// This source code is provided 'as is' and no warranties are given as to title or non-infringement, merchantability
// or fitness for purpose and, to the extent permitted by law, all liability for your use of the code is disclaimed.
// This source code is governed by Apache License 2.0 that can be found in the LICENSE file.

package entity

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"

	"github.com/iotexproject/rlay-client/pkg/util/byteutil"
)

// Stake is the typed view of a PropositionStake entity
type Stake struct {
	Proposition []byte
	Sender      common.Address
	Amount      *big.Int
	Height      uint64
	LogIndex    uint64
}

// NewStakeEntity builds the entity recording a weight increase of a proposition.
// Height and log index are part of the content so repeated stakes stay distinct.
func NewStakeEntity(s *Stake) *Entity {
	amount := s.Amount
	if amount == nil {
		amount = new(big.Int)
	}
	return New(KindPropositionStake).
		Set(FieldProposition, s.Proposition).
		Set(FieldSender, s.Sender.Bytes()).
		Set(FieldAmount, amount.Bytes()).
		Set(FieldHeight, byteutil.Uint64ToBytesBigEndian(s.Height)).
		Set(FieldLogIndex, byteutil.Uint64ToBytesBigEndian(s.LogIndex))
}

// ParseStake reads a PropositionStake entity
func ParseStake(e *Entity) (*Stake, error) {
	if e.Kind != KindPropositionStake {
		return nil, errors.Wrapf(ErrEncoding, "%s is not a stake", e.Kind)
	}
	sender := e.Field(FieldSender)
	if len(sender) != common.AddressLength {
		return nil, errors.Wrapf(ErrEncoding, "sender has %d bytes", len(sender))
	}
	height, err := byteutil.BytesToUint64BigEndian(e.Field(FieldHeight))
	if err != nil {
		return nil, errors.Wrap(ErrEncoding, err.Error())
	}
	logIndex, err := byteutil.BytesToUint64BigEndian(e.Field(FieldLogIndex))
	if err != nil {
		return nil, errors.Wrap(ErrEncoding, err.Error())
	}
	return &Stake{
		Proposition: e.Field(FieldProposition),
		Sender:      common.BytesToAddress(sender),
		Amount:      new(big.Int).SetBytes(e.Field(FieldAmount)),
		Height:      height,
		LogIndex:    logIndex,
	}, nil
}
