// Copyright (c) 2024 IoTeX Foundation
// This source code is provided 'as is' and no warranties are given as to title or non-infringement, merchantability
// or fitness for purpose and, to the extent permitted by law, all liability for your use of the code is disclaimed.
// This source code is governed by Apache License 2.0 that can be found in the LICENSE file.

package submitter

import (
	"encoding/json"
	"math/big"
	"sort"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"

	"github.com/iotexproject/rlay-client/db"
	"github.com/iotexproject/rlay-client/merkle"
	"github.com/iotexproject/rlay-client/payout"
	"github.com/iotexproject/rlay-client/pkg/compress"
	"github.com/iotexproject/rlay-client/pkg/util/byteutil"
)

// Status is the submission state of an epoch record
type Status string

// record status
const (
	StatusPending   Status = "pending"
	StatusSubmitted Status = "submitted"
	StatusFinal     Status = "final"
)

const _recordNS = "submission"

var (
	// ErrRecordNotFound is returned when no record exists for an epoch
	ErrRecordNotFound = errors.New("submission record not found")
	// ErrPersist indicates a record could not be written durably
	ErrPersist = errors.New("failed to persist submission record")
)

type (
	// Record is the payout set of an epoch and the state of its on-chain anchoring
	Record struct {
		Epoch       uint64          `json:"epoch"`
		Start       uint64          `json:"start"`
		End         uint64          `json:"end"`
		Budget      *big.Int        `json:"budget"`
		Payouts     []payout.Payout `json:"payouts"`
		Root        common.Hash     `json:"root"`
		Status      Status          `json:"status"`
		TxHash      *common.Hash    `json:"txHash,omitempty"`
		CreatedAt   time.Time       `json:"createdAt"`
		SubmittedAt *time.Time      `json:"submittedAt,omitempty"`
		FinalizedAt *time.Time      `json:"finalizedAt,omitempty"`
	}

	// RecordStore keeps one record per epoch in a KV store
	RecordStore struct {
		kv db.KVStore
	}
)

// Final returns true once the root is anchored, or nothing needs anchoring
func (r *Record) Final() bool {
	return r.Status == StatusFinal
}

// Tree rebuilds the merkle tree of the stored payouts
func (r *Record) Tree() (*merkle.Tree, error) {
	return merkle.NewTree(payout.Leaves(r.Payouts))
}

// Proof returns the payout of addr and its inclusion proof against the stored root
func (r *Record) Proof(addr common.Address) (payout.Payout, merkle.Proof, error) {
	p, ok := payout.Find(r.Payouts, addr)
	if !ok {
		return payout.Payout{}, merkle.Proof{}, errors.Wrapf(merkle.ErrLeafNotFound, "%s in epoch %d", addr.Hex(), r.Epoch)
	}
	tree, err := r.Tree()
	if err != nil {
		return payout.Payout{}, merkle.Proof{}, err
	}
	if tree.Root() != r.Root {
		return payout.Payout{}, merkle.Proof{}, errors.Errorf("stored root of epoch %d does not match its payouts", r.Epoch)
	}
	proof, err := tree.Proof(addr)
	if err != nil {
		return payout.Payout{}, merkle.Proof{}, err
	}
	return p, proof, nil
}

// NewRecordStore creates a record store on kv
func NewRecordStore(kv db.KVStore) *RecordStore {
	return &RecordStore{kv: kv}
}

func epochKey(epoch uint64) []byte {
	return byteutil.Uint64ToBytesBigEndian(epoch)
}

func decodeRecord(value []byte) (*Record, error) {
	raw, err := compress.Decompress(value, compress.Snappy)
	if err != nil {
		return nil, errors.Wrap(err, "failed to decompress record")
	}
	r := &Record{}
	if err := json.Unmarshal(raw, r); err != nil {
		return nil, errors.Wrap(err, "failed to decode record")
	}
	return r, nil
}

// Put replaces the record of r.Epoch
func (s *RecordStore) Put(r *Record) error {
	raw, err := json.Marshal(r)
	if err != nil {
		return errors.Wrapf(ErrPersist, "epoch %d: %v", r.Epoch, err)
	}
	value, err := compress.Compress(raw, compress.Snappy)
	if err != nil {
		return errors.Wrapf(ErrPersist, "epoch %d: %v", r.Epoch, err)
	}
	if err := s.kv.Put(_recordNS, epochKey(r.Epoch), value); err != nil {
		return errors.Wrapf(ErrPersist, "epoch %d: %v", r.Epoch, err)
	}
	return nil
}

// Get returns the record of an epoch
func (s *RecordStore) Get(epoch uint64) (*Record, error) {
	value, err := s.kv.Get(_recordNS, epochKey(epoch))
	switch errors.Cause(err) {
	case nil:
	case db.ErrNotExist, db.ErrBucketNotExist:
		return nil, errors.Wrapf(ErrRecordNotFound, "epoch %d", epoch)
	default:
		return nil, err
	}
	return decodeRecord(value)
}

// List returns every record in ascending epoch order
func (s *RecordStore) List() ([]*Record, error) {
	var records []*Record
	err := s.kv.ForEach(_recordNS, func(k, v []byte) error {
		r, err := decodeRecord(v)
		if err != nil {
			return errors.Wrapf(err, "key %x", k)
		}
		records = append(records, r)
		return nil
	})
	switch errors.Cause(err) {
	case nil:
	case db.ErrNotExist, db.ErrBucketNotExist:
		return nil, nil
	default:
		return nil, err
	}
	sort.Slice(records, func(i, j int) bool { return records[i].Epoch < records[j].Epoch })
	return records, nil
}

// Latest returns the record of the highest epoch, ErrRecordNotFound if there is none
func (s *RecordStore) Latest() (*Record, error) {
	records, err := s.List()
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, ErrRecordNotFound
	}
	return records[len(records)-1], nil
}

// Cumulative sums the payouts of every final record up to and including epoch
func (s *RecordStore) Cumulative(epoch uint64) ([]payout.Payout, error) {
	records, err := s.List()
	if err != nil {
		return nil, err
	}
	var sets [][]payout.Payout
	for _, r := range records {
		if r.Epoch > epoch {
			break
		}
		if r.Final() {
			sets = append(sets, r.Payouts)
		}
	}
	return payout.Cumulative(sets...), nil
}
