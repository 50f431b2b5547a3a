// Copyright (c) 2019 IoTeX Foundation
// This is an alpha (internal) release and is not suitable for production. This source code is provided 'as is' and no
// warranties are given as to title or non-infringement, merchantability or fitness for purpose and, to the extent
// permitted by law, all liability for your use of the code is disclaimed. This source code is governed by Apache
// License 2.0 that can be found in the LICENSE file.

package routine_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/facebookgo/clock"
	"github.com/stretchr/testify/require"

	"github.com/iotexproject/rlay-client/pkg/routine"
	"github.com/iotexproject/rlay-client/testutil"
)

type MockHandler struct {
	Count uint
	mu    sync.RWMutex
}

func (h *MockHandler) Do() {
	h.mu.Lock()
	h.Count++
	h.mu.Unlock()
}

func (h *MockHandler) count() uint {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.Count
}

func TestRecurringTask(t *testing.T) {
	require := require.New(t)
	h := &MockHandler{Count: 0}
	ctx := context.Background()
	ck := clock.NewMock()
	task := routine.NewRecurringTask(h.Do, 100*time.Millisecond, routine.WithClock(ck))
	require.NoError(task.Start(ctx))
	for i := 0; i < 6; i++ {
		ck.Add(100 * time.Millisecond)
	}
	require.NoError(testutil.WaitUntil(10*time.Millisecond, 2*time.Second, func() (bool, error) {
		return h.count() >= 3, nil
	}))
	require.NoError(task.Stop(ctx))
	require.Error(task.Stop(ctx))
}

func TestRecurringTaskRunOnStart(t *testing.T) {
	require := require.New(t)
	h := &MockHandler{Count: 0}
	ctx := context.Background()
	task := routine.NewRecurringTask(h.Do, time.Hour, routine.WithClock(clock.NewMock()), routine.RunOnStart())
	require.NoError(task.Start(ctx))
	require.NoError(testutil.WaitUntil(10*time.Millisecond, 2*time.Second, func() (bool, error) {
		return h.count() == 1, nil
	}))
	require.NoError(task.Stop(ctx))
}
