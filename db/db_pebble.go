// Copyright (c) 2024 IoTeX Foundation
// This source code is provided 'as is' and no warranties are given as to title or non-infringement, merchantability
// or fitness for purpose and, to the extent permitted by law, all liability for your use of the code is disclaimed.
// This source code is governed by Apache License 2.0 that can be found in the LICENSE file.

package db

import (
	"context"
	"syscall"

	"github.com/cockroachdb/pebble"
	"github.com/iotexproject/go-pkgs/hash"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/iotexproject/rlay-client/pkg/lifecycle"
	"github.com/iotexproject/rlay-client/pkg/log"
)

const (
	prefixLength = 8
)

var (
	pebbledbMtc = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "rlay_pebbledb_ops",
		Help: "pebbledb operations.",
	}, []string{"method", "result"})
)

func init() {
	prometheus.MustRegister(pebbledbMtc)
}

// PebbleDB is KVStore implementation based on pebble DB
type PebbleDB struct {
	lifecycle.Readiness
	db     *pebble.DB
	path   string
	config Config
}

// NewPebbleDB creates a new PebbleDB instance
func NewPebbleDB(cfg Config) *PebbleDB {
	return &PebbleDB{
		db:     nil,
		path:   cfg.DbPath,
		config: cfg,
	}
}

// Start opens the DB (creates new file if not existing yet)
func (b *PebbleDB) Start(_ context.Context) error {
	comparer := *pebble.DefaultComparer
	comparer.Split = func(a []byte) int {
		return prefixLength
	}
	db, err := pebble.Open(b.path, &pebble.Options{
		Comparer:           &comparer,
		FormatMajorVersion: pebble.FormatPrePebblev1MarkedCompacted,
		ReadOnly:           b.config.ReadOnly,
	})
	if err != nil {
		return errors.Wrap(ErrIO, err.Error())
	}
	b.db = db
	return b.TurnOn()
}

// Stop closes the DB
func (b *PebbleDB) Stop(_ context.Context) error {
	if err := b.TurnOff(); err != nil {
		return err
	}
	if err := b.db.Close(); err != nil {
		return errors.Wrap(ErrIO, err.Error())
	}
	return nil
}

// Get retrieves a record
func (b *PebbleDB) Get(ns string, key []byte) ([]byte, error) {
	if !b.IsReady() {
		return nil, ErrDBNotStarted
	}
	v, closer, err := b.db.Get(nsKey(ns, key))
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			pebbledbMtc.WithLabelValues("get", "miss").Inc()
			return nil, errors.Wrapf(ErrNotExist, "ns %s key = %x doesn't exist, %s", ns, key, err.Error())
		}
		pebbledbMtc.WithLabelValues("get", "error").Inc()
		return nil, err
	}
	pebbledbMtc.WithLabelValues("get", "hit").Inc()
	val := make([]byte, len(v))
	copy(val, v)
	return val, closer.Close()
}

// Put inserts a <key, value> record
func (b *PebbleDB) Put(ns string, key, value []byte) (err error) {
	if !b.IsReady() {
		return ErrDBNotStarted
	}
	err = b.db.Set(nsKey(ns, key), value, pebble.Sync)
	return b.wrapWriteErr("put", err)
}

// Delete deletes a record
func (b *PebbleDB) Delete(ns string, key []byte) (err error) {
	if !b.IsReady() {
		return ErrDBNotStarted
	}
	err = b.db.Delete(nsKey(ns, key), pebble.Sync)
	return b.wrapWriteErr("delete", err)
}

// WriteBatch commits a batch
func (b *PebbleDB) WriteBatch(kvsb *Batch) error {
	if !b.IsReady() {
		return ErrDBNotStarted
	}
	ch := b.db.NewBatch()
	for i := 0; i < kvsb.Size(); i++ {
		write, err := kvsb.Entry(i)
		if err != nil {
			return err
		}
		switch write.writeType {
		case Put:
			err = ch.Set(nsKey(write.namespace, write.key), write.value, nil)
		case Delete:
			err = ch.Delete(nsKey(write.namespace, write.key), nil)
		}
		if err != nil {
			return errors.Wrap(ErrIO, err.Error())
		}
	}
	return b.wrapWriteErr("batch", ch.Commit(pebble.Sync))
}

// ForEach iterates over all <k, v> pairs in a bucket
func (b *PebbleDB) ForEach(ns string, fn func(k, v []byte) error) error {
	if !b.IsReady() {
		return ErrDBNotStarted
	}
	iter, err := b.db.NewIter(&pebble.IterOptions{})
	if err != nil {
		return errors.Wrap(err, "failed to create iterator")
	}
	defer func() {
		if e := iter.Close(); e != nil {
			log.L().Error("Failed to close iterator", zap.Error(e))
		}
	}()
	for iter.SeekPrefixGE(nsKey(ns, nil)); iter.Valid(); iter.Next() {
		ck, v := iter.Key(), iter.Value()
		k, err := decodeKey(ck)
		if err != nil {
			return err
		}
		key := make([]byte, len(k))
		copy(key, k)
		value := make([]byte, len(v))
		copy(value, v)
		if err := fn(key, value); err != nil {
			return err
		}
	}
	return nil
}

func (b *PebbleDB) wrapWriteErr(method string, err error) error {
	if err == nil {
		pebbledbMtc.WithLabelValues(method, "ok").Inc()
		return nil
	}
	pebbledbMtc.WithLabelValues(method, "error").Inc()
	if errors.Is(err, syscall.ENOSPC) {
		log.L().Fatal("Failed to write db.", zap.String("method", method), zap.Error(err))
	}
	return errors.Wrap(ErrIO, err.Error())
}

func nsKey(ns string, key []byte) []byte {
	nk := nsToPrefix(ns)
	return append(nk, key...)
}

func nsToPrefix(ns string) []byte {
	h := hash.Hash160b([]byte(ns))
	return h[:prefixLength]
}

func decodeKey(k []byte) (key []byte, err error) {
	if len(k) < prefixLength {
		return nil, errors.New("key is too short")
	}
	return k[prefixLength:], nil
}
