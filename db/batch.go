// Copyright (c) 2019 IoTeX Foundation
// This is an alpha (internal) release and is not suitable for production. This source code is provided 'as is' and no
// warranties are given as to title or non-infringement, merchantability or fitness for purpose and, to the extent
// permitted by law, all liability for your use of the code is disclaimed. This source code is governed by Apache
// License 2.0 that can be found in the LICENSE file.

package db

import (
	"github.com/pkg/errors"
)

// WriteType is the type of write
type WriteType uint8

const (
	// Put indicate the type of write operation to be Put
	Put WriteType = iota
	// Delete indicate the type of write operation to be Delete
	Delete
)

// WriteInfo is the struct to store Put/Delete operation info
type WriteInfo struct {
	writeType WriteType
	namespace string
	key       []byte
	value     []byte
}

// WriteType returns the type of the write
func (wi *WriteInfo) WriteType() WriteType { return wi.writeType }

// Namespace returns the namespace of the write
func (wi *WriteInfo) Namespace() string { return wi.namespace }

// Key returns the key of the write
func (wi *WriteInfo) Key() []byte { return wi.key }

// Value returns the value of the write
func (wi *WriteInfo) Value() []byte { return wi.value }

// Batch collects writes which are committed together by KVStore.WriteBatch
type Batch struct {
	writes []*WriteInfo
}

// NewBatch returns an empty batch
func NewBatch() *Batch {
	return &Batch{}
}

// Put appends a put operation
func (b *Batch) Put(namespace string, key, value []byte) {
	b.writes = append(b.writes, &WriteInfo{
		writeType: Put,
		namespace: namespace,
		key:       append([]byte(nil), key...),
		value:     append([]byte(nil), value...),
	})
}

// Delete appends a delete operation
func (b *Batch) Delete(namespace string, key []byte) {
	b.writes = append(b.writes, &WriteInfo{
		writeType: Delete,
		namespace: namespace,
		key:       append([]byte(nil), key...),
	})
}

// Size returns the number of writes
func (b *Batch) Size() int { return len(b.writes) }

// Entry returns the write at index i
func (b *Batch) Entry(i int) (*WriteInfo, error) {
	if i < 0 || i >= len(b.writes) {
		return nil, errors.Errorf("index %d out of range [0, %d)", i, len(b.writes))
	}
	return b.writes[i], nil
}

// Clear drops all writes
func (b *Batch) Clear() { b.writes = nil }
