// Copyright (c) 2024 IoTeX Foundation
// This source code is provided 'as is' and no warranties are given as to title or non-infringement, merchantability
// or fitness for purpose and, to the extent permitted by law, all liability for your use of the code is disclaimed.
// This source code is governed by Apache License 2.0 that can be found in the LICENSE file.

package chain

import (
	"bytes"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ipfs/go-cid"
	"github.com/pkg/errors"

	"github.com/iotexproject/rlay-client/entity"
)

const (
	_entityStored               = "EntityStored"
	_propositionWeightIncreased = "PropositionWeightIncreased"
)

type (
	// Event is a raw ledger log positioned by block height and log index
	Event struct {
		Height   uint64
		LogIndex uint64
		TxHash   common.Hash
		Address  common.Address
		Topics   []common.Hash
		Data     []byte
	}

	// Decoder turns events of the protocol contracts into entities
	Decoder struct {
		ontologyStorage   common.Address
		propositionLedger common.Address
	}
)

// NewEvent converts a ledger log
func NewEvent(l *types.Log) Event {
	return Event{
		Height:   l.BlockNumber,
		LogIndex: uint64(l.Index),
		TxHash:   l.TxHash,
		Address:  l.Address,
		Topics:   l.Topics,
		Data:     l.Data,
	}
}

// Before returns true if e is positioned before o
func (e *Event) Before(o *Event) bool {
	if e.Height != o.Height {
		return e.Height < o.Height
	}
	return e.LogIndex < o.LogIndex
}

// EventTopics returns the topics the decoder understands
func EventTopics() []common.Hash {
	return []common.Hash{
		_ontologyStorageInterface.Events[_entityStored].ID,
		_propositionLedgerInterface.Events[_propositionWeightIncreased].ID,
	}
}

// NewDecoder creates a decoder for the given contracts
func NewDecoder(ontologyStorage, propositionLedger common.Address) *Decoder {
	return &Decoder{
		ontologyStorage:   ontologyStorage,
		propositionLedger: propositionLedger,
	}
}

// Addresses returns the contracts whose logs are decoded
func (d *Decoder) Addresses() []common.Address {
	return []common.Address{d.ontologyStorage, d.propositionLedger}
}

// Decode returns the entity carried by an event and its identifier
func (d *Decoder) Decode(ev *Event) (cid.Cid, *entity.Entity, error) {
	if len(ev.Topics) == 0 {
		return cid.Undef, nil, errors.Wrap(ErrDecode, "log without topics")
	}
	switch {
	case ev.Address == d.ontologyStorage && ev.Topics[0] == _ontologyStorageInterface.Events[_entityStored].ID:
		return d.decodeEntityStored(ev)
	case ev.Address == d.propositionLedger && ev.Topics[0] == _propositionLedgerInterface.Events[_propositionWeightIncreased].ID:
		return d.decodeWeightIncreased(ev)
	default:
		return cid.Undef, nil, errors.Wrapf(ErrDecode, "unknown event %s from %s", ev.Topics[0].Hex(), ev.Address.Hex())
	}
}

func (d *Decoder) decodeEntityStored(ev *Event) (cid.Cid, *entity.Entity, error) {
	values, err := _ontologyStorageInterface.Unpack(_entityStored, ev.Data)
	if err != nil {
		return cid.Undef, nil, errors.Wrap(ErrDecode, err.Error())
	}
	if len(values) != 2 {
		return cid.Undef, nil, errors.Wrapf(ErrDecode, "%s has %d values", _entityStored, len(values))
	}
	claimed, ok1 := values[0].([]byte)
	data, ok2 := values[1].([]byte)
	if !ok1 || !ok2 {
		return cid.Undef, nil, errors.Wrapf(ErrDecode, "unexpected %s value types", _entityStored)
	}
	e, err := entity.Decode(data)
	if err != nil {
		return cid.Undef, nil, err
	}
	id, err := e.ID()
	if err != nil {
		return cid.Undef, nil, err
	}
	if !bytes.Equal(id.Bytes(), claimed) {
		return cid.Undef, nil, errors.Wrapf(ErrDecode, "claimed cid %x does not match content %s", claimed, entity.HexID(id))
	}
	return id, e, nil
}

func (d *Decoder) decodeWeightIncreased(ev *Event) (cid.Cid, *entity.Entity, error) {
	values, err := _propositionLedgerInterface.Unpack(_propositionWeightIncreased, ev.Data)
	if err != nil {
		return cid.Undef, nil, errors.Wrap(ErrDecode, err.Error())
	}
	if len(values) != 3 {
		return cid.Undef, nil, errors.Wrapf(ErrDecode, "%s has %d values", _propositionWeightIncreased, len(values))
	}
	proposition, ok1 := values[0].([]byte)
	amount, ok2 := values[1].(*big.Int)
	sender, ok3 := values[2].(common.Address)
	if !ok1 || !ok2 || !ok3 {
		return cid.Undef, nil, errors.Wrapf(ErrDecode, "unexpected %s value types", _propositionWeightIncreased)
	}
	if _, err := entity.ParseID(proposition); err != nil {
		return cid.Undef, nil, errors.Wrapf(ErrDecode, "invalid proposition cid %x: %v", proposition, err)
	}
	e := entity.NewStakeEntity(&entity.Stake{
		Proposition: proposition,
		Sender:      sender,
		Amount:      amount,
		Height:      ev.Height,
		LogIndex:    ev.LogIndex,
	})
	id, err := e.ID()
	if err != nil {
		return cid.Undef, nil, err
	}
	return id, e, nil
}

// PackEntityStored encodes the data of an EntityStored log
func PackEntityStored(id cid.Cid, data []byte) ([]byte, error) {
	return _ontologyStorageInterface.Events[_entityStored].Inputs.Pack(id.Bytes(), data)
}

// PackWeightIncreased encodes the data of a PropositionWeightIncreased log
func PackWeightIncreased(proposition cid.Cid, amount *big.Int, sender common.Address) ([]byte, error) {
	return _propositionLedgerInterface.Events[_propositionWeightIncreased].Inputs.Pack(proposition.Bytes(), amount, sender)
}
