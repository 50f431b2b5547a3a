// Copyright (c) 2024 IoTeX Foundation
// This source code is provided 'as is' and no warranties are given as to title or non-infringement, merchantability
// or fitness for purpose and, to the extent permitted by law, all liability for your use of the code is disclaimed.
// This source code is governed by Apache License 2.0 that can be found in the LICENSE file.

package filter

import (
	"sort"
	"sync"

	"github.com/ipfs/go-cid"
	"github.com/pkg/errors"

	"github.com/iotexproject/rlay-client/entity"
)

type (
	// Filter decides whether an entity is written into the store
	Filter interface {
		Name() string
		Accept(cid.Cid, *entity.Entity) bool
	}

	// Config carries the parameters of the built-in filters
	Config struct {
		Whitelist []string `yaml:"whitelist"`
	}

	// Builder creates a filter from config
	Builder func(Config) (Filter, error)

	funcFilter struct {
		name string
		fn   func(cid.Cid, *entity.Entity) bool
	}

	chain []Filter
)

// ErrUnknownFilter is returned for a filter name without builder
var ErrUnknownFilter = errors.New("unknown filter")

var (
	_buildersMtx sync.RWMutex
	_builders    = map[string]Builder{
		WhitelistName: NewWhitelist,
	}
)

// Func wraps a predicate as a filter
func Func(name string, fn func(cid.Cid, *entity.Entity) bool) Filter {
	return &funcFilter{name: name, fn: fn}
}

func (f *funcFilter) Name() string { return f.name }

func (f *funcFilter) Accept(id cid.Cid, e *entity.Entity) bool { return f.fn(id, e) }

// Register adds or replaces a named filter builder
func Register(name string, b Builder) {
	_buildersMtx.Lock()
	defer _buildersMtx.Unlock()
	_builders[name] = b
}

// Names returns the registered filter names
func Names() []string {
	_buildersMtx.RLock()
	defer _buildersMtx.RUnlock()
	names := make([]string, 0, len(_builders))
	for n := range _builders {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Build creates the filter chain of the given names. No names accepts everything.
func Build(names []string, cfg Config) (Filter, error) {
	_buildersMtx.RLock()
	defer _buildersMtx.RUnlock()
	filters := make([]Filter, 0, len(names))
	for _, name := range names {
		b, ok := _builders[name]
		if !ok {
			return nil, errors.Wrapf(ErrUnknownFilter, "filter %s", name)
		}
		f, err := b(cfg)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to build filter %s", name)
		}
		filters = append(filters, f)
	}
	return Chain(filters...), nil
}

// Chain accepts an entity only if every filter does
func Chain(filters ...Filter) Filter {
	return chain(filters)
}

func (c chain) Name() string {
	if len(c) == 0 {
		return "acceptAll"
	}
	name := c[0].Name()
	for _, f := range c[1:] {
		name += "," + f.Name()
	}
	return name
}

func (c chain) Accept(id cid.Cid, e *entity.Entity) bool {
	for _, f := range c {
		if !f.Accept(id, e) {
			return false
		}
	}
	return true
}
