// Copyright (c) 2021 IoTeX Foundation
// This is an alpha (internal) release and is not suitable for production. This source code is provided 'as is' and no
// warranties are given as to title or non-infringement, merchantability or fitness for purpose and, to the extent
// permitted by law, all liability for your use of the code is disclaimed. This source code is governed by Apache
// License 2.0 that can be found in the LICENSE file.

package lifecycle

import (
	"github.com/pkg/errors"
	"go.uber.org/atomic"
)

// vars
var (
	ErrWrongState = errors.New("service is in wrong state")
)

// Readiness is a thread-safe flag telling whether a service accepts requests
type Readiness struct {
	ready atomic.Bool
}

// TurnOn marks the service ready, failing if it already is
func (r *Readiness) TurnOn() error {
	if r.ready.CompareAndSwap(false, true) {
		return nil
	}
	return ErrWrongState
}

// TurnOff marks the service not ready, failing if it already is not
func (r *Readiness) TurnOff() error {
	if r.ready.CompareAndSwap(true, false) {
		return nil
	}
	return ErrWrongState
}

// IsReady returns whether the service is ready
func (r *Readiness) IsReady() bool {
	return r.ready.Load()
}
