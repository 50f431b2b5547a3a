// Copyright (c) 2019 IoTeX Foundation
// This is an alpha (internal) release and is not suitable for production. This source code is provided 'as is' and no
// warranties are given as to title or non-infringement, merchantability or fitness for purpose and, to the extent
// permitted by law, all liability for your use of the code is disclaimed. This source code is governed by Apache
// License 2.0 that can be found in the LICENSE file.

package db

import (
	"bytes"
	"context"
	"sort"
	"sync"

	"github.com/pkg/errors"

	"github.com/iotexproject/rlay-client/pkg/lifecycle"
)

var (
	// ErrBucketNotExist indicates certain bucket does not exist in db
	ErrBucketNotExist = errors.New("bucket not exist in DB")
	// ErrNotExist indicates certain item does not exist in db
	ErrNotExist = errors.New("not exist in DB")
	// ErrIO indicates the generic error of DB I/O operation
	ErrIO = errors.New("DB I/O operation error")
	// ErrDBNotStarted indicates the db is used before Start or after Stop
	ErrDBNotStarted = errors.New("db has not started")
)

// KVStore is the interface of KV store.
type KVStore interface {
	lifecycle.StartStopper

	// Put insert or update a record identified by (namespace, key)
	Put(string, []byte, []byte) error
	// Get gets a record by (namespace, key)
	Get(string, []byte) ([]byte, error)
	// Delete deletes a record by (namespace, key)
	Delete(string, []byte) error
	// WriteBatch commits a batch atomically
	WriteBatch(*Batch) error
	// ForEach iterates over all <k, v> pairs in a namespace in key order
	ForEach(string, func(k, v []byte) error) error
}

// memKVStore is the in-memory implementation of KVStore for testing purpose
type memKVStore struct {
	mu     sync.RWMutex
	bucket map[string]map[string][]byte
}

// NewMemKVStore instantiates an in-memory KV store
func NewMemKVStore() KVStore {
	return &memKVStore{
		bucket: make(map[string]map[string][]byte),
	}
}

func (m *memKVStore) Start(_ context.Context) error { return nil }

func (m *memKVStore) Stop(_ context.Context) error { return nil }

// Put inserts a <key, value> record
func (m *memKVStore) Put(namespace string, key, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.put(namespace, key, value)
	return nil
}

func (m *memKVStore) put(namespace string, key, value []byte) {
	b, ok := m.bucket[namespace]
	if !ok {
		b = make(map[string][]byte)
		m.bucket[namespace] = b
	}
	v := make([]byte, len(value))
	copy(v, value)
	b[string(key)] = v
}

// Get retrieves a record
func (m *memKVStore) Get(namespace string, key []byte) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	b, ok := m.bucket[namespace]
	if !ok {
		return nil, errors.Wrapf(ErrNotExist, "namespace = %s doesn't exist", namespace)
	}
	value, ok := b[string(key)]
	if !ok {
		return nil, errors.Wrapf(ErrNotExist, "key = %x doesn't exist", key)
	}
	v := make([]byte, len(value))
	copy(v, value)
	return v, nil
}

// Delete deletes a record
func (m *memKVStore) Delete(namespace string, key []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if b, ok := m.bucket[namespace]; ok {
		delete(b, string(key))
	}
	return nil
}

// WriteBatch applies all writes of the batch under one lock
func (m *memKVStore) WriteBatch(b *Batch) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := 0; i < b.Size(); i++ {
		write, err := b.Entry(i)
		if err != nil {
			return err
		}
		switch write.writeType {
		case Put:
			m.put(write.namespace, write.key, write.value)
		case Delete:
			if bucket, ok := m.bucket[write.namespace]; ok {
				delete(bucket, string(write.key))
			}
		}
	}
	return nil
}

// ForEach iterates over a namespace in key order
func (m *memKVStore) ForEach(namespace string, fn func(k, v []byte) error) error {
	m.mu.RLock()
	b := m.bucket[namespace]
	keys := make([][]byte, 0, len(b))
	values := make(map[string][]byte, len(b))
	for k, v := range b {
		keys = append(keys, []byte(k))
		values[k] = v
	}
	m.mu.RUnlock()

	sort.Slice(keys, func(i, j int) bool { return bytes.Compare(keys[i], keys[j]) < 0 })
	for _, k := range keys {
		if err := fn(k, values[string(k)]); err != nil {
			return err
		}
	}
	return nil
}
