// Copyright (c) 2024 IoTeX Foundation
// This source code is provided 'as is' and no warranties are given as to title or non-infringement, merchantability
// or fitness for purpose and, to the extent permitted by law, all liability for your use of the code is disclaimed.
// This source code is governed by Apache License 2.0 that can be found in the LICENSE file.

package chain

import "github.com/pkg/errors"

var (
	// ErrDecode indicates a malformed chain event
	ErrDecode = errors.New("failed to decode chain event")
	// ErrTransient indicates a ledger connection failure which may succeed on retry
	ErrTransient = errors.New("transient chain error")
	// ErrChainReorgDetected indicates the ledger served a chain inconsistent with what was already applied
	ErrChainReorgDetected = errors.New("chain reorg detected")
	// ErrTransactionFailed indicates a mined transaction was reverted
	ErrTransactionFailed = errors.New("transaction failed")
)
