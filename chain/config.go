// Copyright (c) 2024 IoTeX Foundation
// This source code is provided 'as is' and no warranties are given as to title or non-infringement, merchantability
// or fitness for purpose and, to the extent permitted by law, all liability for your use of the code is disclaimed.
// This source code is governed by Apache License 2.0 that can be found in the LICENSE file.

package chain

import "time"

type (
	// Config is the config of the ledger connection and the protocol contracts
	Config struct {
		URLs                     []string      `yaml:"urls"`
		OntologyStorageAddress   string        `yaml:"ontologyStorageAddress"`
		PropositionLedgerAddress string        `yaml:"propositionLedgerAddress"`
		TokenAddress             string        `yaml:"tokenAddress"`
		ChainID                  uint64        `yaml:"chainID"`
		GasLimit                 uint64        `yaml:"gasLimit"`
		RequestTimeout           time.Duration `yaml:"requestTimeout"`
		RequestsPerSecond        float64       `yaml:"requestsPerSecond"`
		BlockBatchSize           uint64        `yaml:"blockBatchSize"`
		Confirmations            uint64        `yaml:"confirmations"`
		Retry                    RetryConfig   `yaml:"retry"`
		Signer                   SignerConfig  `yaml:"signer"`
	}

	// RetryConfig bounds the exponential backoff of ledger calls
	RetryConfig struct {
		InitialInterval time.Duration `yaml:"initialInterval"`
		MaxInterval     time.Duration `yaml:"maxInterval"`
		MaxRetries      uint64        `yaml:"maxRetries"`
	}

	// SignerConfig locates the key signing payout submissions
	SignerConfig struct {
		PrivateKey string       `yaml:"privateKey"`
		Vault      *VaultConfig `yaml:"vault"`
	}

	// VaultConfig is the location of a private key in hashicorp vault
	VaultConfig struct {
		Address string `yaml:"address"`
		Token   string `yaml:"token"`
		Path    string `yaml:"path"`
		Key     string `yaml:"key"`
	}
)

// DefaultConfig is the default ledger config
var DefaultConfig = Config{
	URLs:              []string{"http://127.0.0.1:8545"},
	ChainID:           4690,
	GasLimit:          200000,
	RequestTimeout:    10 * time.Second,
	RequestsPerSecond: 20,
	BlockBatchSize:    1000,
	Retry: RetryConfig{
		InitialInterval: 500 * time.Millisecond,
		MaxInterval:     30 * time.Second,
		MaxRetries:      5,
	},
}
