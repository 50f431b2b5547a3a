// Copyright (c) 2024 IoTeX Foundation
// This source code is provided 'as is' and no warranties are given as to title or non-infringement, merchantability
// or fitness for purpose and, to the extent permitted by law, all liability for your use of the code is disclaimed.
// This source code is governed by Apache License 2.0 that can be found in the LICENSE file.

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"

	"github.com/iotexproject/rlay-client/chain"
	"github.com/iotexproject/rlay-client/store"
)

const (
	_ontology = "0x0000000000000000000000000000000000000011"
	_ledger   = "0x0000000000000000000000000000000000000012"
	_token    = "0x0000000000000000000000000000000000000013"
	_signer   = "0x4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318"
)

func validConfig() Config {
	cfg := Default
	cfg.Chain.OntologyStorageAddress = _ontology
	cfg.Chain.PropositionLedgerAddress = _ledger
	cfg.Chain.TokenAddress = _token
	cfg.Chain.Signer = chain.SignerConfig{PrivateKey: _signer}
	return cfg
}

func writeConfig(t *testing.T, content string) string {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

func TestNewDefaultConfig(t *testing.T) {
	// default config has no contract addresses
	_, err := New(nil)
	require.Error(t, err)
	require.Equal(t, ErrInvalidCfg, errors.Cause(err))
}

func TestNewConfigWithoutValidation(t *testing.T) {
	r := require.New(t)
	cfg, err := New(nil, DoNotValidate)
	r.NoError(err)
	r.Equal(Default.Chain, cfg.Chain)
	r.Equal(Default.Payout, cfg.Payout)
	r.Equal(Default.Backends, cfg.Backends)
	r.Equal("default", cfg.DefaultBackend)
}

func TestNewConfigWithWrongConfigPath(t *testing.T) {
	_, err := New([]string{"wrong_path"}, DoNotValidate)
	require.Error(t, err)
}

func TestNewConfigWithOverride(t *testing.T) {
	r := require.New(t)
	t.Setenv("RLAY_TEST_SIGNER_KEY", _signer)
	path := writeConfig(t, `
chain:
  urls: ["http://node-a:8545", "http://node-b:8545"]
  ontologyStorageAddress: "`+_ontology+`"
  propositionLedgerAddress: "`+_ledger+`"
  tokenAddress: "`+_token+`"
  signer:
    privateKey: "${RLAY_TEST_SIGNER_KEY}"
sync:
  interval: 2s
  filters: ["whitelist"]
  filter:
    whitelist: ["0x01"]
backends:
  cache:
    type: redis
    redis:
      addr: "redis:6379"
defaultBackend: cache
payout:
  epochBudget: "1000"
  checkEpochs: 3
api:
  upstreamURL: "http://node-a:8545"
`)
	cfg, err := New([]string{path})
	r.NoError(err)
	r.Equal([]string{"http://node-a:8545", "http://node-b:8545"}, cfg.Chain.URLs)
	r.Equal(_signer, cfg.Chain.Signer.PrivateKey)
	r.Equal(2*time.Second, cfg.Sync.Interval)
	r.Equal([]string{"whitelist"}, cfg.Sync.Filters)
	r.Equal([]string{"0x01"}, cfg.Sync.Filter.Whitelist)
	r.Equal("cache", cfg.DefaultBackend)
	r.Equal(store.TypeRedis, cfg.Backends["cache"].Type)
	r.Equal("redis:6379", cfg.Backends["cache"].Redis.Addr)
	// defaults are kept where the file is silent
	r.Contains(cfg.Backends, "default")
	r.Equal("1000", cfg.Payout.EpochBudget)
	r.Equal(3, cfg.Payout.CheckEpochs)
	r.Equal(Default.Payout.RewardPerBlock, cfg.Payout.RewardPerBlock)
	r.Equal(Default.API.Port, cfg.API.Port)
}

func TestValidates(t *testing.T) {
	r := require.New(t)
	r.NoError(func() error {
		for _, v := range Validates {
			if err := v(validConfig()); err != nil {
				return err
			}
		}
		return nil
	}())

	for _, tc := range []struct {
		name     string
		validate Validate
		modify   func(*Config)
		msg      string
	}{
		{"no url", ValidateChain, func(c *Config) { c.Chain.URLs = nil }, "no ledger rpc url"},
		{"bad ledger", ValidateChain, func(c *Config) { c.Chain.PropositionLedgerAddress = "io1abc" }, "proposition ledger"},
		{"bad token", ValidateChain, func(c *Config) { c.Chain.TokenAddress = "0x12" }, "token address"},
		// an unquoted 0x key read back by yaml as an integer
		{"signer as number", ValidateChain, func(c *Config) { c.Chain.Signer.PrivateKey = "11259375" }, "64 hex characters"},
		{"signer not hex", ValidateChain, func(c *Config) { c.Chain.Signer.PrivateKey = "0x" + strings.Repeat("zz", 32) }, "not hex"},
		{"no backend", ValidateBackends, func(c *Config) { c.Backends = nil }, "no backend"},
		{"bad type", ValidateBackends, func(c *Config) {
			c.Backends = map[string]store.Config{"default": {Type: "neo4j"}}
		}, "unknown type"},
		{"missing default", ValidateBackends, func(c *Config) { c.DefaultBackend = "redis" }, "default backend redis"},
		{"interval", ValidateSync, func(c *Config) { c.Sync.Interval = 0 }, "sync interval"},
		{"filter", ValidateSync, func(c *Config) { c.Sync.Filters = []string{"nope"} }, "unknown filter nope"},
		{"reward", ValidatePayout, func(c *Config) { c.Payout.RewardPerBlock = "-1" }, "reward per block"},
		{"budget", ValidatePayout, func(c *Config) { c.Payout.EpochBudget = "lots" }, "epoch budget"},
		{"check epochs", ValidatePayout, func(c *Config) { c.Payout.CheckEpochs = 0 }, "epochs to check"},
		{"no token", ValidatePayout, func(c *Config) { c.Chain.TokenAddress = "" }, "token address is required"},
		{"no signer", ValidatePayout, func(c *Config) { c.Chain.Signer = chain.SignerConfig{} }, "signer is required"},
		{"port", ValidateAPI, func(c *Config) { c.API.Port = -1 }, "api port"},
		{"upstream", ValidateAPI, func(c *Config) { c.API.UpstreamURL = "node:8545" }, "upstream url"},
		{"replay size", ValidateAPI, func(c *Config) { c.API.ReplayEntities = -1 }, "subscription limits"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			cfg := validConfig()
			tc.modify(&cfg)
			err := tc.validate(cfg)
			require.Error(t, err)
			require.Equal(t, ErrInvalidCfg, errors.Cause(err))
			require.Contains(t, err.Error(), tc.msg)
		})
	}

	// submission checks are skipped when roots are only computed
	cfg := validConfig()
	cfg.Payout.Submit = false
	cfg.Chain.TokenAddress = ""
	r.NoError(ValidatePayout(cfg))
	cfg.Payout.Enabled = false
	cfg.Payout.RewardPerBlock = "x"
	r.NoError(ValidatePayout(cfg))
	cfg.API.Disabled = true
	cfg.API.Port = -1
	r.NoError(ValidateAPI(cfg))
}
