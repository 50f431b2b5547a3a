// Copyright (c) 2024 IoTeX Foundation
// This source code is provided 'as is' and no warranties are given as to title or non-infringement, merchantability
// or fitness for purpose and, to the extent permitted by law, all liability for your use of the code is disclaimed.
// This source code is governed by Apache License 2.0 that can be found in the LICENSE file.

package store

import (
	"context"

	"github.com/ipfs/go-cid"
	"github.com/pkg/errors"

	"github.com/iotexproject/rlay-client/entity"
	"github.com/iotexproject/rlay-client/pkg/lifecycle"
)

var (
	// ErrNotFound indicates the entity is not in the store
	ErrNotFound = errors.New("entity not found")
	// ErrTransient indicates a backend failure which may succeed on retry
	ErrTransient = errors.New("transient store error")
)

// EntityStore is the capability every storage backend provides.
// Put is idempotent and an entity becomes visible atomically.
type EntityStore interface {
	lifecycle.StartStopper
	// Put stores an entity under its identifier
	Put(context.Context, *entity.Entity) error
	// Get returns the entity of an identifier, or ErrNotFound
	Get(context.Context, cid.Cid) (*entity.Entity, error)
	// ListByKind returns the identifiers of all entities of a kind
	ListByKind(context.Context, entity.Kind) ([]cid.Cid, error)
	// Exists returns whether an identifier is stored
	Exists(context.Context, cid.Cid) (bool, error)
}

// encodeForPut computes the identifier and canonical encoding of an entity
func encodeForPut(e *entity.Entity) (cid.Cid, []byte, error) {
	data, err := e.Encode()
	if err != nil {
		return cid.Undef, nil, err
	}
	id, err := entity.NewID(e.Kind, data)
	if err != nil {
		return cid.Undef, nil, err
	}
	return id, data, nil
}

// decodeStored parses a stored blob and checks it against its key
func decodeStored(id cid.Cid, data []byte) (*entity.Entity, error) {
	e, err := entity.Decode(data)
	if err != nil {
		return nil, errors.Wrapf(err, "corrupted entity %s", entity.HexID(id))
	}
	return e, nil
}

func transient(err error, format string, args ...interface{}) error {
	return errors.Wrapf(ErrTransient, format+": %v", append(args, err)...)
}
