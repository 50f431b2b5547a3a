// Copyright (c) 2021 IoTeX Foundation
// This is an alpha (internal) release and is not suitable for production. This source code is provided 'as is' and no
// warranties are given as to title or non-infringement, merchantability or fitness for purpose and, to the extent
// permitted by law, all liability for your use of the code is disclaimed. This source code is governed by Apache
// License 2.0 that can be found in the LICENSE file.

package db

const (
	// DBBolt represents bolt db
	DBBolt = "boltdb"
	// DBPebble represents pebble db
	DBPebble = "pebbledb"
	// DBMemory represents the in-memory store, for tests and dry runs
	DBMemory = "memory"
)

// Config is the config for database
type Config struct {
	DBType string `yaml:"dbType"`
	DbPath string `yaml:"dbPath"`
	// NumRetries is the number of retries
	NumRetries uint8 `yaml:"numRetries"`
	// ReadOnly is set db to be opened in read only mode
	ReadOnly bool `yaml:"readOnly"`
}

// DefaultConfig returns the default config
var DefaultConfig = Config{
	DBType:     DBBolt,
	DbPath:     "./rlay_data/state.db",
	NumRetries: 3,
}
