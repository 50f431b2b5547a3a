// Copyright (c) 2019 IoTeX Foundation
// This is an alpha (internal) release and is not suitable for production. This source code is provided 'as is' and no
// warranties are given as to title or non-infringement, merchantability or fitness for purpose and, to the extent
// permitted by law, all liability for your use of the code is disclaimed. This source code is governed by Apache
// License 2.0 that can be found in the LICENSE file.

package routine

import (
	"context"
	"sync"

	"github.com/iotexproject/rlay-client/pkg/lifecycle"
	"github.com/iotexproject/rlay-client/pkg/log"
)

var _ lifecycle.StartStopper = (*TriggerTask)(nil)

// TriggerTask runs its callback once per accepted trigger, serially
type TriggerTask struct {
	lifecycle.Readiness
	cb     Task
	ch     chan struct{}
	mu     sync.Mutex
	exited chan struct{}
}

// NewTriggerTask creates an instance of TriggerTask. Triggers arriving while one is pending are coalesced.
func NewTriggerTask(cb Task) *TriggerTask {
	return &TriggerTask{
		cb:     cb,
		ch:     make(chan struct{}, 1),
		exited: make(chan struct{}),
	}
}

// Start starts the task
func (t *TriggerTask) Start(_ context.Context) error {
	ready := make(chan struct{})
	go func() {
		defer close(t.exited)
		close(ready)
		for range t.ch {
			t.cb()
		}
	}()
	<-ready
	return t.TurnOn()
}

// Trigger triggers the task, return true if the task is triggered successfully
// this function is non-blocking
func (t *TriggerTask) Trigger() bool {
	if !t.IsReady() {
		log.S().Warnf("trigger task is not ready")
		return false
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	select {
	case t.ch <- struct{}{}:
		return true
	default:
	}
	return false
}

// Stop stops the task
func (t *TriggerTask) Stop(_ context.Context) error {
	if err := t.TurnOff(); err != nil {
		return err
	}
	t.mu.Lock()
	close(t.ch)
	t.mu.Unlock()
	<-t.exited
	return nil
}
