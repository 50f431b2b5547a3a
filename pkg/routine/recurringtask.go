// Copyright (c) 2019 IoTeX Foundation
// This is an alpha (internal) release and is not suitable for production. This source code is provided 'as is' and no
// warranties are given as to title or non-infringement, merchantability or fitness for purpose and, to the extent
// permitted by law, all liability for your use of the code is disclaimed. This source code is governed by Apache
// License 2.0 that can be found in the LICENSE file.

package routine

import (
	"context"
	"time"

	"github.com/facebookgo/clock"

	"github.com/iotexproject/rlay-client/pkg/lifecycle"
)

var _ lifecycle.StartStopper = (*RecurringTask)(nil)

// RecurringTaskOption is option to RecurringTask.
type RecurringTaskOption interface {
	SetRecurringTaskOption(*RecurringTask)
}

type recurringTaskOption struct {
	setRecurringTaskOption func(*RecurringTask)
}

func (o recurringTaskOption) SetRecurringTaskOption(t *RecurringTask) {
	o.setRecurringTaskOption(t)
}

// WithClock sets the clock the task ticks on
func WithClock(c clock.Clock) RecurringTaskOption {
	return recurringTaskOption{
		setRecurringTaskOption: func(t *RecurringTask) {
			t.clock = c
		},
	}
}

// RunOnStart runs the task once right after start instead of waiting for the first tick
func RunOnStart() RecurringTaskOption {
	return recurringTaskOption{
		setRecurringTaskOption: func(t *RecurringTask) {
			t.runOnStart = true
		},
	}
}

// RecurringTask represents a recurring task
type RecurringTask struct {
	lifecycle.Readiness
	t          Task
	interval   time.Duration
	runOnStart bool
	ticker     *clock.Ticker
	done       chan struct{}
	exited     chan struct{}
	clock      clock.Clock
}

// NewRecurringTask creates an instance of RecurringTask
func NewRecurringTask(t Task, i time.Duration, ops ...RecurringTaskOption) *RecurringTask {
	rt := &RecurringTask{
		t:        t,
		interval: i,
		done:     make(chan struct{}),
		exited:   make(chan struct{}),
		clock:    clock.New(),
	}
	for _, opt := range ops {
		opt.SetRecurringTaskOption(rt)
	}
	return rt
}

// Start starts the timer
func (t *RecurringTask) Start(_ context.Context) error {
	t.ticker = t.clock.Ticker(t.interval)
	ready := make(chan struct{})
	go func() {
		defer close(t.exited)
		close(ready)
		if t.runOnStart {
			t.t()
		}
		for {
			select {
			case <-t.done:
				return
			case <-t.ticker.C:
				t.t()
			}
		}
	}()
	<-ready
	return t.TurnOn()
}

// Stop stops the timer and waits for a running task to return
func (t *RecurringTask) Stop(_ context.Context) error {
	if err := t.TurnOff(); err != nil {
		return err
	}
	t.ticker.Stop()
	close(t.done)
	<-t.exited
	return nil
}
