// Copyright (c) 2024 IoTeX Foundation
// This source code is provided 'as is' and no warranties are given as to title or non-infringement, merchantability
// or fitness for purpose and, to the extent permitted by law, all liability for your use of the code is disclaimed.
// This source code is governed by Apache License 2.0 that can be found in the LICENSE file.

package config

import (
	"net/url"
	"os"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
	uconfig "go.uber.org/config"

	"github.com/iotexproject/rlay-client/api"
	"github.com/iotexproject/rlay-client/chain"
	"github.com/iotexproject/rlay-client/db"
	"github.com/iotexproject/rlay-client/filter"
	"github.com/iotexproject/rlay-client/pkg/log"
	"github.com/iotexproject/rlay-client/store"
	"github.com/iotexproject/rlay-client/submitter"
)

// IMPORTANT: to define a config, add a field or a new config type to the existing config types. In addition, provide
// the default value in Default var.

var (
	// Default is the default config
	Default = Config{
		Chain: chain.DefaultConfig,
		Sync: Sync{
			Interval: 5 * time.Second,
			Filters:  []string{},
		},
		Backends: map[string]store.Config{
			"default": store.DefaultConfig,
		},
		DefaultBackend: "default",
		State:          db.DefaultConfig,
		Payout:         submitter.DefaultConfig,
		API:            api.DefaultConfig,
		System: System{
			ProbePort:         8080,
			HeartbeatInterval: time.Minute,
		},
		SubLogs: make(map[string]log.GlobalConfig),
	}

	// ErrInvalidCfg indicates the invalid config value
	ErrInvalidCfg = errors.New("invalid config value")

	// Validates is the collection config validation functions
	Validates = []Validate{
		ValidateChain,
		ValidateBackends,
		ValidateSync,
		ValidatePayout,
		ValidateAPI,
	}
)

type (
	// Sync is the config of the synchronization engines
	Sync struct {
		Interval time.Duration `yaml:"interval"`
		// StartHeight is the first block read by a backend without checkpoint
		StartHeight uint64 `yaml:"startHeight"`
		// Filters are applied in order before entities are stored
		Filters []string      `yaml:"filters"`
		Filter  filter.Config `yaml:"filter"`
	}

	// System is the system config
	System struct {
		// ProbePort serves health, readiness and metrics; 0 disables it
		ProbePort         int           `yaml:"probePort"`
		HeartbeatInterval time.Duration `yaml:"heartbeatInterval"`
	}

	// Config is the root config struct, each package's config should be put as its sub struct
	Config struct {
		Chain          chain.Config                `yaml:"chain"`
		Sync           Sync                        `yaml:"sync"`
		Backends       map[string]store.Config     `yaml:"backends"`
		DefaultBackend string                      `yaml:"defaultBackend"`
		State          db.Config                   `yaml:"state"`
		Payout         submitter.Config            `yaml:"payout"`
		API            api.Config                  `yaml:"api"`
		System         System                      `yaml:"system"`
		Log            log.GlobalConfig            `yaml:"log"`
		SubLogs        map[string]log.GlobalConfig `yaml:"subLogs"`
	}

	// Validate is the interface of validating the config
	Validate func(Config) error
)

// New creates a config instance. It first loads the default configs. If the config path is not empty, it will read from
// the file and override the default configs. By default, it will apply all validation functions. To bypass validation,
// use DoNotValidate instead.
func New(configPaths []string, validates ...Validate) (Config, error) {
	opts := make([]uconfig.YAMLOption, 0)
	opts = append(opts, uconfig.Static(Default))
	opts = append(opts, uconfig.Expand(os.LookupEnv))
	for _, path := range configPaths {
		if path != "" {
			opts = append(opts, uconfig.File(path))
		}
	}
	yaml, err := uconfig.NewYAML(opts...)
	if err != nil {
		return Config{}, errors.Wrap(err, "failed to init config")
	}

	var cfg Config
	if err := yaml.Get(uconfig.Root).Populate(&cfg); err != nil {
		return Config{}, errors.Wrap(err, "failed to unmarshal YAML config to struct")
	}

	// By default, the config needs to pass all the validation
	if len(validates) == 0 {
		validates = Validates
	}
	for _, validate := range validates {
		if err := validate(cfg); err != nil {
			return Config{}, errors.Wrap(err, "failed to validate config")
		}
	}
	return cfg, nil
}

// ValidateChain validates the ledger endpoints and the contract addresses
func ValidateChain(cfg Config) error {
	if len(cfg.Chain.URLs) == 0 {
		return errors.Wrap(ErrInvalidCfg, "no ledger rpc url")
	}
	for name, addr := range map[string]string{
		"ontology storage":   cfg.Chain.OntologyStorageAddress,
		"proposition ledger": cfg.Chain.PropositionLedgerAddress,
	} {
		if !common.IsHexAddress(addr) {
			return errors.Wrapf(ErrInvalidCfg, "invalid %s address %q", name, addr)
		}
	}
	if cfg.Chain.TokenAddress != "" && !common.IsHexAddress(cfg.Chain.TokenAddress) {
		return errors.Wrapf(ErrInvalidCfg, "invalid token address %q", cfg.Chain.TokenAddress)
	}
	if cfg.Chain.Signer.PrivateKey != "" {
		if err := chain.ValidatePrivateKey(cfg.Chain.Signer.PrivateKey); err != nil {
			return errors.Wrapf(ErrInvalidCfg, "signer: %v", err)
		}
	}
	return nil
}

// ValidateBackends validates the backend types and the default backend
func ValidateBackends(cfg Config) error {
	if len(cfg.Backends) == 0 {
		return errors.Wrap(ErrInvalidCfg, "no backend configured")
	}
	types := make(map[string]bool)
	for _, t := range store.Types() {
		types[t] = true
	}
	for name, b := range cfg.Backends {
		if !types[b.Type] {
			return errors.Wrapf(ErrInvalidCfg, "backend %s has unknown type %q", name, b.Type)
		}
	}
	if _, ok := cfg.Backends[cfg.DefaultBackend]; !ok {
		return errors.Wrapf(ErrInvalidCfg, "default backend %s is not configured", cfg.DefaultBackend)
	}
	return nil
}

// ValidateSync validates the sync interval and the filter names
func ValidateSync(cfg Config) error {
	if cfg.Sync.Interval <= 0 {
		return errors.Wrap(ErrInvalidCfg, "sync interval should be positive")
	}
	known := make(map[string]bool)
	for _, name := range filter.Names() {
		known[name] = true
	}
	for _, name := range cfg.Sync.Filters {
		if !known[name] {
			return errors.Wrapf(ErrInvalidCfg, "unknown filter %s", name)
		}
	}
	return nil
}

// ValidatePayout validates the budgets and, when submitting, the token contract and the signer
func ValidatePayout(cfg Config) error {
	if !cfg.Payout.Enabled {
		return nil
	}
	if cfg.Payout.Interval <= 0 {
		return errors.Wrap(ErrInvalidCfg, "payout interval should be positive")
	}
	if _, _, err := cfg.Payout.Budgets(); err != nil {
		return errors.Wrap(ErrInvalidCfg, err.Error())
	}
	if cfg.Payout.CheckEpochs <= 0 {
		return errors.Wrap(ErrInvalidCfg, "number of epochs to check should be positive")
	}
	if !cfg.Payout.Submit {
		return nil
	}
	if cfg.Chain.TokenAddress == "" {
		return errors.Wrap(ErrInvalidCfg, "token address is required to submit payout roots")
	}
	if cfg.Chain.Signer.PrivateKey == "" && cfg.Chain.Signer.Vault == nil {
		return errors.Wrap(ErrInvalidCfg, "a signer is required to submit payout roots")
	}
	return nil
}

// ValidateAPI validates the facade port and the upstream url
func ValidateAPI(cfg Config) error {
	if cfg.API.Disabled {
		return nil
	}
	if cfg.API.Port < 0 {
		return errors.Wrapf(ErrInvalidCfg, "invalid api port %d", cfg.API.Port)
	}
	if cfg.API.MaxSubscriptions < 0 || cfg.API.ReplayEntities < 0 {
		return errors.Wrapf(ErrInvalidCfg, "invalid subscription limits %d/%d", cfg.API.MaxSubscriptions, cfg.API.ReplayEntities)
	}
	if cfg.API.UpstreamURL == "" {
		return nil
	}
	u, err := url.Parse(cfg.API.UpstreamURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return errors.Wrapf(ErrInvalidCfg, "invalid upstream url %q", cfg.API.UpstreamURL)
	}
	return nil
}

// DoNotValidate validates the given config
func DoNotValidate(cfg Config) error { return nil }
