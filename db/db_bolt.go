// Copyright (c) 2019 IoTeX Foundation
// This is an alpha (internal) release and is not suitable for production. This source code is provided 'as is' and no
// warranties are given as to title or non-infringement, merchantability or fitness for purpose and, to the extent
// permitted by law, all liability for your use of the code is disclaimed. This source code is governed by Apache
// License 2.0 that can be found in the LICENSE file.

package db

import (
	"context"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	bolt "go.etcd.io/bbolt"

	"github.com/iotexproject/rlay-client/pkg/lifecycle"
)

const fileMode = 0600

// BoltDB is KVStore implementation based bolt DB
type BoltDB struct {
	lifecycle.Readiness
	db     *bolt.DB
	path   string
	config Config
}

// NewBoltDB instantiates an BoltDB with implements KVStore
func NewBoltDB(cfg Config) *BoltDB {
	return &BoltDB{
		db:     nil,
		path:   cfg.DbPath,
		config: cfg,
	}
}

// Start opens the BoltDB (creates new file if not existing yet)
func (b *BoltDB) Start(_ context.Context) error {
	if dir := filepath.Dir(b.path); dir != "" {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return errors.Wrap(ErrIO, err.Error())
		}
	}
	db, err := bolt.Open(b.path, fileMode, &bolt.Options{ReadOnly: b.config.ReadOnly})
	if err != nil {
		return errors.Wrap(ErrIO, err.Error())
	}
	b.db = db
	return b.TurnOn()
}

// Stop closes the BoltDB
func (b *BoltDB) Stop(_ context.Context) error {
	if err := b.TurnOff(); err != nil {
		return err
	}
	if err := b.db.Close(); err != nil {
		return errors.Wrap(ErrIO, err.Error())
	}
	return nil
}

// Put inserts a <key, value> record
func (b *BoltDB) Put(namespace string, key, value []byte) (err error) {
	if !b.IsReady() {
		return ErrDBNotStarted
	}
	for c := uint8(0); c < b.numRetries(); c++ {
		if err = b.db.Update(func(tx *bolt.Tx) error {
			bucket, err := tx.CreateBucketIfNotExists([]byte(namespace))
			if err != nil {
				return err
			}
			return bucket.Put(key, value)
		}); err == nil {
			break
		}
	}
	if err != nil {
		err = errors.Wrap(ErrIO, err.Error())
	}
	return err
}

// Get retrieves a record
func (b *BoltDB) Get(namespace string, key []byte) ([]byte, error) {
	if !b.IsReady() {
		return nil, ErrDBNotStarted
	}
	var value []byte
	err := b.db.View(func(tx *bolt.Tx) error {
		bucket := tx.Bucket([]byte(namespace))
		if bucket == nil {
			return errors.Wrapf(ErrBucketNotExist, "bucket = %x doesn't exist", []byte(namespace))
		}
		v := bucket.Get(key)
		if v == nil {
			return errors.Wrapf(ErrNotExist, "key = %x doesn't exist", key)
		}
		value = make([]byte, len(v))
		copy(value, v)
		return nil
	})
	if err == nil {
		return value, nil
	}
	if cause := errors.Cause(err); cause == ErrNotExist || cause == ErrBucketNotExist {
		return nil, errors.Wrap(ErrNotExist, err.Error())
	}
	return nil, errors.Wrap(ErrIO, err.Error())
}

// Delete deletes a record
func (b *BoltDB) Delete(namespace string, key []byte) (err error) {
	if !b.IsReady() {
		return ErrDBNotStarted
	}
	for c := uint8(0); c < b.numRetries(); c++ {
		err = b.db.Update(func(tx *bolt.Tx) error {
			bucket := tx.Bucket([]byte(namespace))
			if bucket == nil {
				return nil
			}
			return bucket.Delete(key)
		})
		if err == nil {
			break
		}
	}
	if err != nil {
		err = errors.Wrap(ErrIO, err.Error())
	}
	return err
}

// WriteBatch commits a batch in a single transaction
func (b *BoltDB) WriteBatch(batch *Batch) (err error) {
	if !b.IsReady() {
		return ErrDBNotStarted
	}
	for c := uint8(0); c < b.numRetries(); c++ {
		if err = b.db.Update(func(tx *bolt.Tx) error {
			for i := 0; i < batch.Size(); i++ {
				write, err := batch.Entry(i)
				if err != nil {
					return err
				}
				switch write.writeType {
				case Put:
					bucket, err := tx.CreateBucketIfNotExists([]byte(write.namespace))
					if err != nil {
						return errors.Wrapf(err, "failed to create bucket %s", write.namespace)
					}
					if err := bucket.Put(write.key, write.value); err != nil {
						return errors.Wrapf(err, "failed to put key %x", write.key)
					}
				case Delete:
					bucket := tx.Bucket([]byte(write.namespace))
					if bucket == nil {
						continue
					}
					if err := bucket.Delete(write.key); err != nil {
						return errors.Wrapf(err, "failed to delete key %x", write.key)
					}
				}
			}
			return nil
		}); err == nil {
			break
		}
	}
	if err != nil {
		err = errors.Wrap(ErrIO, err.Error())
	}
	return err
}

// ForEach iterates over all <k, v> pairs in a bucket
func (b *BoltDB) ForEach(namespace string, fn func(k, v []byte) error) error {
	if !b.IsReady() {
		return ErrDBNotStarted
	}
	return b.db.View(func(tx *bolt.Tx) error {
		bucket := tx.Bucket([]byte(namespace))
		if bucket == nil {
			return nil
		}
		return bucket.ForEach(func(k, v []byte) error {
			key := make([]byte, len(k))
			copy(key, k)
			value := make([]byte, len(v))
			copy(value, v)
			return fn(key, value)
		})
	})
}

func (b *BoltDB) numRetries() uint8 {
	if b.config.NumRetries == 0 {
		return 1
	}
	return b.config.NumRetries
}

//======================================
// private functions
//======================================

// intentionally fail to test DB can successfully rollback
func (b *BoltDB) batchPutForceFail(namespace string, key [][]byte, value [][]byte) error {
	return b.db.Update(func(tx *bolt.Tx) error {
		bucket, err := tx.CreateBucketIfNotExists([]byte(namespace))
		if err != nil {
			return err
		}
		if len(key) != len(value) {
			return errors.Wrap(ErrIO, "batch put <k, v> size not match")
		}
		for i := 0; i < len(key); i++ {
			if err := bucket.Put(key[i], value[i]); err != nil {
				return err
			}
			if i == len(key)-1 {
				return errors.Wrapf(ErrIO, "force fail to test DB rollback")
			}
		}
		return nil
	})
}
