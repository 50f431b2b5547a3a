// Copyright (c) 2019 IoTeX Foundation
// This is an alpha (internal) release and is not suitable for production. This source code is provided 'as is' and no
// warranties are given as to title or non-infringement, merchantability or fitness for purpose and, to the extent
// permitted by law, all liability for your use of the code is disclaimed. This source code is governed by Apache
// License 2.0 that can be found in the LICENSE file.

// Package lifecycle provides application models' lifecycle management.
package lifecycle

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// Model is application model which may require to start and stop in application lifecycle.
type Model interface{}

// Starter is Model has a Start method.
type Starter interface {
	// Start runs on lifecycle start phase.
	Start(context.Context) error
}

// Stopper is Model has a Stop method.
type Stopper interface {
	// Stop runs on lifecycle stop phase.
	Stop(context.Context) error
}

// StartStopper is Model has both Start and Stop methods.
type StartStopper interface {
	Starter
	Stopper
}

// Lifecycle manages lifecycle for models. Currently a Lifecycle has two phases: Start and Stop.
type Lifecycle struct {
	models []Model
}

// Add adds a model into LifeCycle.
func (lc *Lifecycle) Add(m Model) { lc.models = append(lc.models, m) }

// AddModels adds multiple models into LifeCycle.
func (lc *Lifecycle) AddModels(m ...Model) { lc.models = append(lc.models, m...) }

// Models returns the models in start order.
func (lc *Lifecycle) Models() []Model { return append([]Model(nil), lc.models...) }

// OnStart runs models Start function if models implmented it. All Start functions will be run in parallel.
// The context passed into models' Start method will be canceled on the first failure.
func (lc *Lifecycle) OnStart(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, m := range lc.models {
		if starter, ok := m.(Starter); ok {
			g.Go(func() error { return starter.Start(ctx) })
		}
	}
	return g.Wait()
}

// OnStartSequentially runs models Start function in the order they were added.
func (lc *Lifecycle) OnStartSequentially(ctx context.Context) error {
	for _, m := range lc.models {
		if starter, ok := m.(Starter); ok {
			if err := starter.Start(ctx); err != nil {
				return err
			}
		}
	}
	return nil
}

// OnStop runs models Stop function in reverse order. Every model is stopped even if an earlier
// one fails, and the first error is returned.
func (lc *Lifecycle) OnStop(ctx context.Context) error {
	var first error
	for i := len(lc.models) - 1; i >= 0; i-- {
		stopper, ok := lc.models[i].(Stopper)
		if !ok {
			continue
		}
		if err := stopper.Stop(ctx); err != nil && first == nil {
			first = err
		}
	}
	return first
}
