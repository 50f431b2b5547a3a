// Copyright (c) 2024 IoTeX Foundation
// This source code is provided 'as is' and no warranties are given as to title or non-infringement, merchantability
// or fitness for purpose and, to the extent permitted by law, all liability for your use of the code is disclaimed.
// This source code is governed by Apache License 2.0 that can be found in the LICENSE file.

package api

import (
	"context"
	"encoding/json"
	"math"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ipfs/go-cid"
	"github.com/pkg/errors"
	"github.com/tidwall/gjson"

	"github.com/iotexproject/rlay-client/entity"
	"github.com/iotexproject/rlay-client/epoch"
	"github.com/iotexproject/rlay-client/merkle"
	"github.com/iotexproject/rlay-client/payout"
	"github.com/iotexproject/rlay-client/store"
	"github.com/iotexproject/rlay-client/submitter"
	"github.com/iotexproject/rlay-client/syncer"
)

const (
	// NetworkVersion is the protocol version the client speaks
	NetworkVersion = "0.3.3"
	// ClientVersion is the version of this client
	ClientVersion = "0.4.0"
)

var (
	// ErrUnknownBackend is returned for a backend option naming no configured backend
	ErrUnknownBackend = errors.New("could not find specified backend")
	// ErrPayoutDisabled is returned by payout methods when the pipeline is not running
	ErrPayoutDisabled = errors.New("payout pipeline is disabled")
	// ErrSubscriptionDisabled is returned by subscriptions when no entity listener is running
	ErrSubscriptionDisabled = errors.New("entity subscriptions are disabled")
)

type (
	// Contracts are the protocol contract addresses reported by rlay_version
	Contracts struct {
		OntologyStorage   common.Address `json:"OntologyStorage"`
		PropositionLedger common.Address `json:"PropositionLedger"`
		RlayToken         common.Address `json:"RlayToken"`
	}

	// SyncStatusReader reports the progress of every backend
	SyncStatusReader interface {
		Status() []syncer.Status
	}

	// VersionInfo is the result of rlay_version
	VersionInfo struct {
		NetworkVersion    string    `json:"networkVersion"`
		ClientVersion     string    `json:"clientVersion"`
		ContractAddresses Contracts `json:"contractAddresses"`
	}

	// KindInfo is the result of rlay_experimentalKindForCid
	KindInfo struct {
		Cid  string  `json:"cid"`
		Kind *string `json:"kind"`
	}

	// ProofInfo is the result of rlay_getPayoutProof
	ProofInfo struct {
		Epoch  uint64        `json:"epoch"`
		Root   common.Hash   `json:"root"`
		Payout payout.Payout `json:"payout"`
		Proof  merkle.Proof  `json:"proof"`
		Redeem string        `json:"redeem"`
	}

	// coreService answers the queries of the facade
	coreService struct {
		stores         map[string]store.EntityStore
		defaultBackend string
		contracts      Contracts
		syncStatus     SyncStatusReader
		pipeline       *submitter.Pipeline
		listener       *EntityListener
	}

	// Option sets an optional dependency of the facade
	Option func(*coreService)
)

// WithContracts sets the contract addresses reported by rlay_version
func WithContracts(c Contracts) Option {
	return func(cs *coreService) { cs.contracts = c }
}

// WithSyncStatus serves rlay_syncStatus from r
func WithSyncStatus(r SyncStatusReader) Option {
	return func(cs *coreService) { cs.syncStatus = r }
}

// WithPipeline serves the payout methods from p
func WithPipeline(p *submitter.Pipeline) Option {
	return func(cs *coreService) { cs.pipeline = p }
}

// WithEntityListener serves the entity subscriptions from l
func WithEntityListener(l *EntityListener) Option {
	return func(cs *coreService) { cs.listener = l }
}

func newCoreService(stores map[string]store.EntityStore, defaultBackend string, opts ...Option) *coreService {
	cs := &coreService{
		stores:         stores,
		defaultBackend: defaultBackend,
	}
	for _, opt := range opts {
		opt(cs)
	}
	return cs
}

func (cs *coreService) store(backend string) (store.EntityStore, error) {
	if backend == "" {
		backend = cs.defaultBackend
	}
	s, ok := cs.stores[backend]
	if !ok {
		return nil, errors.Wrap(ErrUnknownBackend, backend)
	}
	return s, nil
}

func (cs *coreService) payoutPipeline() (*submitter.Pipeline, error) {
	if cs.pipeline == nil {
		return nil, ErrPayoutDisabled
	}
	return cs.pipeline, nil
}

// Version returns the protocol and client versions
func (cs *coreService) Version() *VersionInfo {
	return &VersionInfo{
		NetworkVersion:    NetworkVersion,
		ClientVersion:     "rlay-client/" + ClientVersion,
		ContractAddresses: cs.contracts,
	}
}

// Entity returns the entity of id, nil if the backend does not have it
func (cs *coreService) Entity(ctx context.Context, backend string, id cid.Cid) (*entity.Entity, error) {
	s, err := cs.store(backend)
	if err != nil {
		return nil, err
	}
	e, err := s.Get(ctx, id)
	if errors.Cause(err) == store.ErrNotFound {
		return nil, nil
	}
	return e, err
}

// Entities returns the stored entities of ids, skipping the unknown ones
func (cs *coreService) Entities(ctx context.Context, backend string, ids []cid.Cid) ([]*entity.Entity, error) {
	ret := make([]*entity.Entity, 0, len(ids))
	for _, id := range ids {
		e, err := cs.Entity(ctx, backend, id)
		if err != nil {
			return nil, err
		}
		if e != nil {
			ret = append(ret, e)
		}
	}
	return ret, nil
}

// ListCids returns the identifiers of a kind, or of every kind if kind is nil
func (cs *coreService) ListCids(ctx context.Context, backend string, kind *entity.Kind) ([]cid.Cid, error) {
	s, err := cs.store(backend)
	if err != nil {
		return nil, err
	}
	kinds := entity.Kinds()
	if kind != nil {
		kinds = []entity.Kind{*kind}
	}
	var ids []cid.Cid
	for _, k := range kinds {
		list, err := s.ListByKind(ctx, k)
		if err != nil {
			return nil, err
		}
		ids = append(ids, list...)
	}
	return ids, nil
}

// ListCidsIndex returns the identifiers of a kind whose field holds value, in the
// JSON rendering of the entity. Repeated fields match if any element does.
func (cs *coreService) ListCidsIndex(ctx context.Context, backend string, kind entity.Kind, field, value string) ([]cid.Cid, error) {
	s, err := cs.store(backend)
	if err != nil {
		return nil, err
	}
	ids, err := s.ListByKind(ctx, kind)
	if err != nil {
		return nil, err
	}
	var ret []cid.Cid
	for _, id := range ids {
		e, err := s.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		raw, err := json.Marshal(e)
		if err != nil {
			return nil, err
		}
		v := gjson.ParseBytes(raw).Map()[field]
		match := v.Type == gjson.String && v.String() == value
		if v.IsArray() {
			for _, elem := range v.Array() {
				if elem.String() == value {
					match = true
					break
				}
			}
		}
		if match {
			ret = append(ret, id)
		}
	}
	return ret, nil
}

func (cs *coreService) entityListener() (*EntityListener, error) {
	if cs.listener == nil {
		return nil, ErrSubscriptionDisabled
	}
	return cs.listener, nil
}

// EntityExists returns whether the backend stores id
func (cs *coreService) EntityExists(ctx context.Context, backend string, id cid.Cid) (bool, error) {
	s, err := cs.store(backend)
	if err != nil {
		return false, err
	}
	return s.Exists(ctx, id)
}

// KindForCid returns the kind of an identifier the backend has stored
func (cs *coreService) KindForCid(ctx context.Context, backend string, id cid.Cid) (*KindInfo, error) {
	exists, err := cs.EntityExists(ctx, backend, id)
	if err != nil {
		return nil, err
	}
	info := &KindInfo{Cid: entity.HexID(id)}
	if exists {
		kind := entity.KindOf(id).String()
		info.Kind = &kind
	}
	return info, nil
}

// PropositionPools returns the pools of an epoch, or of all stakes if index is nil
func (cs *coreService) PropositionPools(ctx context.Context, backend string, index *uint64) ([]*payout.Pool, error) {
	s, err := cs.store(backend)
	if err != nil {
		return nil, err
	}
	ep := epoch.Epoch{End: math.MaxUint64}
	if index != nil {
		p, err := cs.payoutPipeline()
		if err != nil {
			return nil, err
		}
		ep = p.Tracker().Epoch(*index)
	}
	return payout.NewAggregator(s).Pools(ctx, ep)
}

// EpochStatus returns the progress of an epoch
func (cs *coreService) EpochStatus(index uint64) (*submitter.EpochStatus, error) {
	p, err := cs.payoutPipeline()
	if err != nil {
		return nil, err
	}
	return p.Status(index)
}

// Record returns the payout record of a closed epoch
func (cs *coreService) Record(ctx context.Context, index uint64) (*submitter.Record, error) {
	p, err := cs.payoutPipeline()
	if err != nil {
		return nil, err
	}
	return p.Record(ctx, index)
}

// CumulativePayouts sums the final payouts up to an epoch
func (cs *coreService) CumulativePayouts(index uint64) ([]payout.Payout, error) {
	p, err := cs.payoutPipeline()
	if err != nil {
		return nil, err
	}
	return p.Records().Cumulative(index)
}

// PayoutProof returns the proof of a participant against the root of a recorded epoch
func (cs *coreService) PayoutProof(index uint64, addr common.Address) (*ProofInfo, error) {
	p, err := cs.payoutPipeline()
	if err != nil {
		return nil, err
	}
	r, err := p.Records().Get(index)
	if err != nil {
		return nil, err
	}
	po, proof, err := r.Proof(addr)
	if err != nil {
		return nil, err
	}
	return &ProofInfo{
		Epoch:  index,
		Root:   r.Root,
		Payout: po,
		Proof:  proof,
		Redeem: payout.FormatRedeem(index, proof, po),
	}, nil
}

// SyncStatus returns the status of every backend
func (cs *coreService) SyncStatus() []syncer.Status {
	if cs.syncStatus == nil {
		return []syncer.Status{}
	}
	return cs.syncStatus.Status()
}
