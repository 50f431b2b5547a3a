// Copyright (c) 2024 IoTeX Foundation
// This source code is provided 'as is' and no warranties are given as to title or non-infringement, merchantability
// or fitness for purpose and, to the extent permitted by law, all liability for your use of the code is disclaimed.
// This source code is governed by Apache License 2.0 that can be found in the LICENSE file.

package chain

import (
	"crypto/ecdsa"
	"encoding/hex"
	"strings"
	"time"

	"github.com/hashicorp/vault/api"
	"github.com/iotexproject/go-pkgs/crypto"
	"github.com/pkg/errors"
)

const defaultHTTPTimeout = 10 * time.Second

// ErrVault vault error
var ErrVault = errors.New("vault error")

type (
	vaultSecretReader interface {
		Read(path string) (*api.Secret, error)
	}

	vaultPrivKeyLoader struct {
		cfg *VaultConfig
		cli vaultSecretReader
	}
)

func newVaultPrivKeyLoader(cfg *VaultConfig) (*vaultPrivKeyLoader, error) {
	conf := api.DefaultConfig()
	conf.Address = cfg.Address
	conf.Timeout = defaultHTTPTimeout
	cli, err := api.NewClient(conf)
	if err != nil {
		return nil, errors.Wrap(err, "failed to init vault client")
	}
	cli.SetToken(cfg.Token)
	return &vaultPrivKeyLoader{cfg: cfg, cli: cli.Logical()}, nil
}

func (l *vaultPrivKeyLoader) load() (string, error) {
	secret, err := l.cli.Read(l.cfg.Path)
	if err != nil {
		return "", errors.Wrap(err, "failed to read vault secret")
	}
	if secret == nil {
		return "", errors.Wrap(ErrVault, "secret does not exist")
	}
	value, ok := secret.Data[l.cfg.Key]
	if !ok {
		return "", errors.Wrap(ErrVault, "secret value does not exist")
	}
	v, ok := value.(string)
	if !ok {
		return "", errors.Wrap(ErrVault, "invalid secret value type")
	}
	return v, nil
}

// LoadSigner returns the submission key, read from vault if configured.
// A config without key yields nil, leaving the client read-only.
func LoadSigner(cfg SignerConfig) (*ecdsa.PrivateKey, error) {
	hexKey := cfg.PrivateKey
	if cfg.Vault != nil {
		loader, err := newVaultPrivKeyLoader(cfg.Vault)
		if err != nil {
			return nil, err
		}
		if hexKey, err = loader.load(); err != nil {
			return nil, err
		}
	}
	return parsePrivateKey(hexKey)
}

// ValidatePrivateKey checks a configured key is 32 bytes of hex, with or without 0x
func ValidatePrivateKey(hexKey string) error {
	raw := strings.TrimPrefix(hexKey, "0x")
	if len(raw) != 64 {
		return errors.Errorf("private key should be 64 hex characters, got %d", len(raw))
	}
	if _, err := hex.DecodeString(raw); err != nil {
		return errors.Wrap(err, "private key is not hex")
	}
	return nil
}

func parsePrivateKey(hexKey string) (*ecdsa.PrivateKey, error) {
	if hexKey == "" {
		return nil, nil
	}
	if err := ValidatePrivateKey(hexKey); err != nil {
		return nil, err
	}
	sk, err := crypto.HexStringToPrivateKey(strings.TrimPrefix(hexKey, "0x"))
	if err != nil {
		return nil, errors.Wrap(err, "failed to decode private key")
	}
	key, ok := sk.EcdsaPrivateKey().(*ecdsa.PrivateKey)
	if !ok {
		return nil, errors.New("private key is not secp256k1")
	}
	return key, nil
}
