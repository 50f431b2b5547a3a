// Copyright (c) 2024 IoTeX Foundation
// This source code is provided 'as is' and no warranties are given as to title or non-infringement, merchantability
// or fitness for purpose and, to the extent permitted by law, all liability for your use of the code is disclaimed.
// This source code is governed by Apache License 2.0 that can be found in the LICENSE file.

package store

// backend types
const (
	TypeMemory = "memory"
	TypeBolt   = "bolt"
	TypePebble = "pebble"
	TypeRedis  = "redis"
	TypeSQLite = "sqlite"
)

type (
	// Config is the config of one entity store backend
	Config struct {
		Type       string      `yaml:"type"`
		DbPath     string      `yaml:"dbPath"`
		NumRetries uint8       `yaml:"numRetries"`
		Redis      RedisConfig `yaml:"redis"`
	}

	// RedisConfig is the config of the redis backend
	RedisConfig struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
		Prefix   string `yaml:"prefix"`
	}
)

// DefaultConfig is the default backend config
var DefaultConfig = Config{
	Type:       TypeBolt,
	DbPath:     "./rlay_data/entities.db",
	NumRetries: 3,
	Redis: RedisConfig{
		Addr:   "127.0.0.1:6379",
		Prefix: "rlay",
	},
}
