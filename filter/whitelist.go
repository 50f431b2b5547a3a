// Copyright (c) 2024 IoTeX Foundation
// This source code is provided 'as is' and no warranties are given as to title or non-infringement, merchantability
// or fitness for purpose and, to the extent permitted by law, all liability for your use of the code is disclaimed.
// This source code is governed by Apache License 2.0 that can be found in the LICENSE file.

package filter

import (
	"github.com/ipfs/go-cid"
	"github.com/pkg/errors"

	"github.com/iotexproject/rlay-client/entity"
)

// WhitelistName is the registered name of the whitelist filter
const WhitelistName = "whitelist"

type whitelist struct {
	ids map[string]struct{}
}

// NewWhitelist accepts only the configured identifiers
func NewWhitelist(cfg Config) (Filter, error) {
	if len(cfg.Whitelist) == 0 {
		return nil, errors.New("whitelist is empty")
	}
	w := &whitelist{ids: make(map[string]struct{}, len(cfg.Whitelist))}
	for _, s := range cfg.Whitelist {
		id, err := entity.ParseHexID(s)
		if err != nil {
			return nil, errors.Wrapf(err, "invalid whitelisted cid %s", s)
		}
		w.ids[id.KeyString()] = struct{}{}
	}
	return w, nil
}

func (w *whitelist) Name() string { return WhitelistName }

func (w *whitelist) Accept(id cid.Cid, _ *entity.Entity) bool {
	_, ok := w.ids[id.KeyString()]
	return ok
}
