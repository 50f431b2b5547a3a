// Copyright (c) 2024 IoTeX Foundation
// This source code is provided 'as is' and no warranties are given as to title or non-infringement, merchantability
// or fitness for purpose and, to the extent permitted by law, all liability for your use of the code is disclaimed.
// This source code is governed by Apache License 2.0 that can be found in the LICENSE file.

package store

import (
	"context"
	"database/sql"
	"sync"

	"github.com/ipfs/go-cid"
	_ "github.com/mattn/go-sqlite3" // sqlite3 driver
	"github.com/pkg/errors"

	"github.com/iotexproject/rlay-client/entity"
)

const _sqliteSchema = `
CREATE TABLE IF NOT EXISTS entities (
	cid  BLOB PRIMARY KEY,
	kind INTEGER NOT NULL,
	data BLOB NOT NULL
);
CREATE INDEX IF NOT EXISTS entities_kind ON entities (kind);
`

// sqliteStore keeps entities in one table indexed by kind
type sqliteStore struct {
	mutex sync.RWMutex
	path  string
	db    *sql.DB
}

// NewSQLiteStore creates a sqlite backed entity store
func NewSQLiteStore(path string) EntityStore {
	return &sqliteStore{path: path}
}

func (s *sqliteStore) Start(ctx context.Context) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if s.db != nil {
		return nil
	}
	db, err := sql.Open("sqlite3", s.path)
	if err != nil {
		return errors.Wrapf(err, "failed to open sqlite %s", s.path)
	}
	// single writer avoids SQLITE_BUSY
	db.SetMaxOpenConns(1)
	for _, stmt := range []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		_sqliteSchema,
	} {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			db.Close()
			return errors.Wrapf(err, "failed to execute %q", stmt)
		}
	}
	s.db = db
	return nil
}

func (s *sqliteStore) Stop(_ context.Context) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if s.db != nil {
		err := s.db.Close()
		s.db = nil
		return err
	}
	return nil
}

// transact runs txFunc in a transaction, committing only if it succeeds
func (s *sqliteStore) transact(ctx context.Context, txFunc func(*sql.Tx) error) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			if rerr := tx.Rollback(); rerr != nil {
				err = errors.Wrapf(err, "rollback failed: %v", rerr)
			}
			return
		}
		err = tx.Commit()
	}()
	return txFunc(tx)
}

func (s *sqliteStore) Put(ctx context.Context, e *entity.Entity) error {
	id, data, err := encodeForPut(e)
	if err != nil {
		return err
	}
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	if err := s.transact(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			"INSERT OR IGNORE INTO entities (cid, kind, data) VALUES (?, ?, ?)",
			id.Bytes(), int64(e.Kind), data,
		)
		return err
	}); err != nil {
		return transient(err, "failed to put entity %s", entity.HexID(id))
	}
	return nil
}

func (s *sqliteStore) Get(ctx context.Context, id cid.Cid) (*entity.Entity, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	var data []byte
	err := s.db.QueryRowContext(ctx, "SELECT data FROM entities WHERE cid = ?", id.Bytes()).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, errors.Wrapf(ErrNotFound, "entity %s", entity.HexID(id))
	}
	if err != nil {
		return nil, transient(err, "failed to get entity %s", entity.HexID(id))
	}
	return decodeStored(id, data)
}

func (s *sqliteStore) ListByKind(ctx context.Context, k entity.Kind) ([]cid.Cid, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	rows, err := s.db.QueryContext(ctx, "SELECT cid FROM entities WHERE kind = ? ORDER BY cid", int64(k))
	if err != nil {
		return nil, transient(err, "failed to list %s", k)
	}
	defer rows.Close()
	var ids []cid.Cid
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, transient(err, "failed to list %s", k)
		}
		id, err := cid.Cast(raw)
		if err != nil {
			return nil, errors.Wrapf(err, "corrupted cid %x", raw)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, transient(err, "failed to list %s", k)
	}
	return ids, nil
}

func (s *sqliteStore) Exists(ctx context.Context, id cid.Cid) (bool, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(1) FROM entities WHERE cid = ?", id.Bytes()).Scan(&n); err != nil {
		return false, transient(err, "failed to check entity %s", entity.HexID(id))
	}
	return n > 0, nil
}
