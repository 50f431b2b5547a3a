// Copyright (c) 2019 IoTeX Foundation
// This is an alpha (internal) release and is not suitable for production. This source code is provided 'as is' and no
// warranties are given as to title or non-infringement, merchantability or fitness for purpose and, to the extent
// permitted by law, all liability for your use of the code is disclaimed. This source code is governed by Apache
// License 2.0 that can be found in the LICENSE file.

package lifecycle_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/iotexproject/rlay-client/pkg/lifecycle"
	"github.com/iotexproject/rlay-client/test/mock/mock_lifecycle"
)

func TestLifecycle(t *testing.T) {
	require := require.New(t)
	ctrl := gomock.NewController(t)

	ctx := context.Background()
	m := mock_lifecycle.NewMockStartStopper(ctrl)
	m.EXPECT().Start(gomock.Any()).Return(nil).Times(2)
	m.EXPECT().Stop(gomock.Any()).Return(nil).Times(1)

	var lc lifecycle.Lifecycle
	lc.Add(m)
	require.NoError(lc.OnStart(ctx))
	require.NoError(lc.OnStartSequentially(ctx))
	require.NoError(lc.OnStop(ctx))
}

func TestLifecycleWithError(t *testing.T) {
	require := require.New(t)
	ctrl := gomock.NewController(t)

	ctx := context.Background()
	m1 := mock_lifecycle.NewMockStartStopper(ctrl)
	m1.EXPECT().Start(gomock.Any()).Return(nil).Times(1)
	m1.EXPECT().Stop(gomock.Any()).Return(nil).Times(1)

	err := errors.New("error")
	m2 := mock_lifecycle.NewMockStartStopper(ctrl)
	m2.EXPECT().Start(gomock.Any()).Return(nil).Times(1)
	m2.EXPECT().Stop(gomock.Any()).Return(err).Times(1)

	var lc lifecycle.Lifecycle
	lc.AddModels(m1, m2)
	require.NoError(lc.OnStart(ctx))
	require.EqualError(lc.OnStop(ctx), err.Error())
}

func TestLifecycleStartSequentiallyStopsOnError(t *testing.T) {
	require := require.New(t)
	ctrl := gomock.NewController(t)

	ctx := context.Background()
	err := errors.New("start failed")
	m1 := mock_lifecycle.NewMockStartStopper(ctrl)
	m1.EXPECT().Start(gomock.Any()).Return(err).Times(1)
	m2 := mock_lifecycle.NewMockStartStopper(ctrl)
	m2.EXPECT().Start(gomock.Any()).Times(0)

	var lc lifecycle.Lifecycle
	lc.AddModels(m1, m2)
	require.Equal(err, lc.OnStartSequentially(ctx))
}

func TestReady(t *testing.T) {
	r := require.New(t)

	ready := lifecycle.Readiness{}
	r.False(ready.IsReady())
	r.Equal(lifecycle.ErrWrongState, ready.TurnOff())

	r.NoError(ready.TurnOn())
	r.True(ready.IsReady())
	r.Equal(lifecycle.ErrWrongState, ready.TurnOn())

	r.NoError(ready.TurnOff())
	r.False(ready.IsReady())
	r.Equal(lifecycle.ErrWrongState, ready.TurnOff())
}

func TestLifecycleModels(t *testing.T) {
	require := require.New(t)
	ctrl := gomock.NewController(t)

	m1 := mock_lifecycle.NewMockStartStopper(ctrl)
	m2 := mock_lifecycle.NewMockStartStopper(ctrl)
	var lc lifecycle.Lifecycle
	lc.AddModels(m1, m2)
	models := lc.Models()
	require.Equal([]lifecycle.Model{m1, m2}, models)
	models[0] = nil
	require.Len(lc.Models(), 2)
	require.NotNil(lc.Models()[0])
}
