// Copyright (c) 2024 IoTeX Foundation
// This source code is provided 'as is' and no warranties are given as to title or non-infringement, merchantability
// or fitness for purpose and, to the extent permitted by law, all liability for your use of the code is disclaimed.
// This source code is governed by Apache License 2.0 that can be found in the LICENSE file.

package syncer

import (
	"context"
	"sort"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/iotexproject/rlay-client/pkg/lifecycle"
	"github.com/iotexproject/rlay-client/pkg/log"
	"github.com/iotexproject/rlay-client/pkg/routine"
)

// ErrUnknownBackend indicates no engine syncs the requested backend
var ErrUnknownBackend = errors.New("unknown backend")

var _ lifecycle.StartStopper = (*Service)(nil)

// Service runs the engines of all configured backends on a shared interval
type Service struct {
	engines map[string]*Engine
	task    *routine.RecurringTask
	ctx     context.Context
	cancel  context.CancelFunc
}

// NewService creates a service syncing every engine each interval
func NewService(engines []*Engine, interval time.Duration, opts ...routine.RecurringTaskOption) *Service {
	s := &Service{
		engines: make(map[string]*Engine, len(engines)),
	}
	for _, e := range engines {
		s.engines[e.Backend()] = e
	}
	s.ctx, s.cancel = context.WithCancel(context.Background())
	s.task = routine.NewRecurringTask(s.tick, interval, append(opts, routine.RunOnStart())...)
	return s
}

// Start starts the sync loop
func (s *Service) Start(ctx context.Context) error {
	return s.task.Start(ctx)
}

// Stop cancels in-flight ledger calls and waits for the loop to exit
func (s *Service) Stop(ctx context.Context) error {
	s.cancel()
	return s.task.Stop(ctx)
}

// Engine returns the engine of a backend
func (s *Service) Engine(backend string) (*Engine, error) {
	e, ok := s.engines[backend]
	if !ok {
		return nil, errors.Wrap(ErrUnknownBackend, backend)
	}
	return e, nil
}

// Status returns a snapshot of every engine, ordered by backend name
func (s *Service) Status() []Status {
	ret := make([]Status, 0, len(s.engines))
	for _, e := range s.engines {
		ret = append(ret, e.Status())
	}
	sort.Slice(ret, func(i, j int) bool { return ret[i].Backend < ret[j].Backend })
	return ret
}

// SyncOnce runs one cycle of every engine concurrently. A failing backend
// does not interrupt the others.
func (s *Service) SyncOnce(ctx context.Context) error {
	var g errgroup.Group
	for _, e := range s.engines {
		e := e
		g.Go(func() error {
			err := e.Sync(ctx)
			if errors.Cause(err) == ErrHalted {
				log.L().Error("backend synchronization is halted", zap.String("backend", e.Backend()), zap.Error(err))
				return nil
			}
			return err
		})
	}
	return g.Wait()
}

func (s *Service) tick() {
	if err := s.SyncOnce(s.ctx); err != nil {
		log.L().Warn("sync round failed", zap.Error(err))
	}
}
