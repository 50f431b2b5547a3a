// Copyright (c) 2024 IoTeX Foundation
// This source code is provided 'as is' and no warranties are given as to title or non-infringement, merchantability
// or fitness for purpose and, to the extent permitted by law, all liability for your use of the code is disclaimed.
// This source code is governed by Apache License 2.0 that can be found in the LICENSE file.

package chain

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"

	"github.com/iotexproject/rlay-client/entity"
)

var (
	_ontology    = common.HexToAddress("0x1000000000000000000000000000000000000001")
	_ledger      = common.HexToAddress("0x1000000000000000000000000000000000000002")
	_participant = common.HexToAddress("0x00000000000000000000000000000000000000aa")
)

func storedEvent(t *testing.T, height, index uint64, e *entity.Entity) Event {
	data, err := e.Encode()
	require.NoError(t, err)
	id, err := e.ID()
	require.NoError(t, err)
	payload, err := PackEntityStored(id, data)
	require.NoError(t, err)
	return Event{
		Height:   height,
		LogIndex: index,
		Address:  _ontology,
		Topics:   []common.Hash{EventTopics()[0]},
		Data:     payload,
	}
}

func TestDecodeEntityStored(t *testing.T) {
	r := require.New(t)
	d := NewDecoder(_ontology, _ledger)
	r.Equal([]common.Address{_ontology, _ledger}, d.Addresses())

	e := entity.New(entity.KindClassAssertion).
		Set(entity.FieldSubject, []byte("s")).
		Set(entity.FieldClass, []byte("c"))
	ev := storedEvent(t, 10, 0, e)
	id, decoded, err := d.Decode(&ev)
	r.NoError(err)
	expected, err := e.ID()
	r.NoError(err)
	r.True(expected.Equals(id))
	r.Equal([]byte("s"), decoded.Field(entity.FieldSubject))

	// claimed cid differs from the content
	other := entity.New(entity.KindClassAssertion).
		Set(entity.FieldSubject, []byte("t")).
		Set(entity.FieldClass, []byte("c"))
	otherID, err := other.ID()
	r.NoError(err)
	data, err := e.Encode()
	r.NoError(err)
	ev.Data, err = PackEntityStored(otherID, data)
	r.NoError(err)
	_, _, err = d.Decode(&ev)
	r.Equal(ErrDecode, errors.Cause(err))

	// malformed entity content
	ev.Data, err = PackEntityStored(otherID, []byte{0xc1, 0x01})
	r.NoError(err)
	_, _, err = d.Decode(&ev)
	r.Equal(entity.ErrEncoding, errors.Cause(err))

	// malformed abi payload
	ev.Data = []byte{0x01, 0x02}
	_, _, err = d.Decode(&ev)
	r.Equal(ErrDecode, errors.Cause(err))

	// event from an unexpected contract
	ev = storedEvent(t, 10, 0, e)
	ev.Address = _ledger
	_, _, err = d.Decode(&ev)
	r.Equal(ErrDecode, errors.Cause(err))

	ev.Topics = nil
	_, _, err = d.Decode(&ev)
	r.Equal(ErrDecode, errors.Cause(err))
}

func TestDecodeWeightIncreased(t *testing.T) {
	r := require.New(t)
	d := NewDecoder(_ontology, _ledger)

	proposition, err := entity.New(entity.KindClassAssertion).
		Set(entity.FieldSubject, []byte("s")).
		Set(entity.FieldClass, []byte("c")).ID()
	r.NoError(err)
	payload, err := PackWeightIncreased(proposition, big.NewInt(500), _participant)
	r.NoError(err)
	ev := Event{
		Height:   12,
		LogIndex: 4,
		Address:  _ledger,
		Topics:   []common.Hash{EventTopics()[1]},
		Data:     payload,
	}
	id, e, err := d.Decode(&ev)
	r.NoError(err)
	r.Equal(entity.KindPropositionStake, entity.KindOf(id))
	stake, err := entity.ParseStake(e)
	r.NoError(err)
	r.Equal(proposition.Bytes(), stake.Proposition)
	r.Equal(_participant, stake.Sender)
	r.Equal(big.NewInt(500), stake.Amount)
	r.Equal(uint64(12), stake.Height)
	r.Equal(uint64(4), stake.LogIndex)

	// proposition is not a cid
	ev.Data, err = _propositionLedgerInterface.Events[_propositionWeightIncreased].Inputs.Pack([]byte{0x01}, big.NewInt(1), _participant)
	r.NoError(err)
	_, _, err = d.Decode(&ev)
	r.Equal(ErrDecode, errors.Cause(err))
}

func TestEventOrder(t *testing.T) {
	r := require.New(t)
	a := Event{Height: 1, LogIndex: 5}
	b := Event{Height: 2, LogIndex: 0}
	c := Event{Height: 2, LogIndex: 1}
	r.True(a.Before(&b))
	r.True(b.Before(&c))
	r.False(c.Before(&b))
	r.False(b.Before(&b))
}
