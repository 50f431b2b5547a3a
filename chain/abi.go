// Copyright (c) 2024 IoTeX Foundation
// This source code is provided 'as is' and no warranties are given as to title or non-infringement, merchantability
// or fitness for purpose and, to the extent permitted by law, all liability for your use of the code is disclaimed.
// This source code is governed by Apache License 2.0 that can be found in the LICENSE file.

package chain

import (
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

const (
	_ontologyStorageABI = `[
	{
		"anonymous": false,
		"inputs": [
			{"indexed": false, "name": "cid", "type": "bytes"},
			{"indexed": false, "name": "data", "type": "bytes"}
		],
		"name": "EntityStored",
		"type": "event"
	}
]`

	_propositionLedgerABI = `[
	{
		"anonymous": false,
		"inputs": [
			{"indexed": false, "name": "propositionCid", "type": "bytes"},
			{"indexed": false, "name": "amount", "type": "uint256"},
			{"indexed": false, "name": "sender", "type": "address"}
		],
		"name": "PropositionWeightIncreased",
		"type": "event"
	}
]`

	_tokenABI = `[
	{
		"constant": true,
		"inputs": [],
		"name": "epochs_start",
		"outputs": [{"name": "", "type": "uint256"}],
		"stateMutability": "view",
		"type": "function"
	},
	{
		"constant": true,
		"inputs": [],
		"name": "epoch_length",
		"outputs": [{"name": "", "type": "uint256"}],
		"stateMutability": "view",
		"type": "function"
	},
	{
		"constant": true,
		"inputs": [],
		"name": "owner",
		"outputs": [{"name": "", "type": "address"}],
		"stateMutability": "view",
		"type": "function"
	},
	{
		"constant": true,
		"inputs": [{"name": "epoch", "type": "uint256"}],
		"name": "payout_roots",
		"outputs": [{"name": "", "type": "bytes32"}],
		"stateMutability": "view",
		"type": "function"
	},
	{
		"constant": false,
		"inputs": [
			{"name": "epoch", "type": "uint256"},
			{"name": "root", "type": "bytes32"}
		],
		"name": "submitPayoutRoot",
		"outputs": [],
		"stateMutability": "nonpayable",
		"type": "function"
	}
]`
)

var (
	_ontologyStorageInterface   abi.ABI
	_propositionLedgerInterface abi.ABI
	_tokenInterface             abi.ABI
)

func init() {
	var err error
	for _, c := range []struct {
		json string
		dst  *abi.ABI
	}{
		{_ontologyStorageABI, &_ontologyStorageInterface},
		{_propositionLedgerABI, &_propositionLedgerInterface},
		{_tokenABI, &_tokenInterface},
	} {
		if *c.dst, err = abi.JSON(strings.NewReader(c.json)); err != nil {
			panic(err)
		}
	}
}
