// Copyright (c) 2024 IoTeX Foundation
// This source code is provided 'as is' and no warranties are given as to title or non-infringement, merchantability
// or fitness for purpose and, to the extent permitted by law, all liability for your use of the code is disclaimed.
// This source code is governed by Apache License 2.0 that can be found in the LICENSE file.

package api

import "github.com/iotexproject/rlay-client/pkg/tracer"

// Config is the config of the query facade
type Config struct {
	Disabled bool `yaml:"disabled"`
	Port     int  `yaml:"port"`
	// UpstreamURL receives the requests of methods the facade does not serve
	UpstreamURL       string `yaml:"upstreamURL"`
	BatchRequestLimit int    `yaml:"batchRequestLimit"`
	// WebsocketRate bounds the requests per second of a websocket connection, unbounded if zero
	WebsocketRate float64 `yaml:"websocketRate"`
	// MaxSubscriptions bounds the entity subscriptions open at once
	MaxSubscriptions int `yaml:"maxSubscriptions"`
	// ReplayEntities is the number of committed entities a subscription can replay with fromBlock
	ReplayEntities int           `yaml:"replayEntities"`
	Tracer         tracer.Config `yaml:"tracer"`
}

// DefaultConfig is the default facade config
var DefaultConfig = Config{
	Port:              8546,
	BatchRequestLimit: _defaultBatchRequestLimit,
	MaxSubscriptions:  100,
	ReplayEntities:    1024,
}
