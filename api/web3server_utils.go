// Copyright (c) 2024 IoTeX Foundation
// This source code is provided 'as is' and no warranties are given as to title or non-infringement, merchantability
// or fitness for purpose and, to the extent permitted by law, all liability for your use of the code is disclaimed.
// This source code is governed by Apache License 2.0 that can be found in the LICENSE file.

package api

import (
	"bytes"
	"context"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/iotexproject/iotex-address/address"
	"github.com/ipfs/go-cid"
	"github.com/pkg/errors"
	"github.com/tidwall/gjson"

	"github.com/iotexproject/rlay-client/entity"
	"github.com/iotexproject/rlay-client/payout"
)

func param(in *gjson.Result, pos int) gjson.Result {
	return in.Get("params." + strconv.Itoa(pos))
}

// backendOption returns the backend named in the options object at pos, empty for the default
func backendOption(in *gjson.Result, pos int) string {
	return in.Get("params." + strconv.Itoa(pos) + ".backend").String()
}

func parseCid(v gjson.Result) (cid.Cid, error) {
	if v.Type != gjson.String {
		return cid.Undef, errors.Wrapf(errInvalidParams, "cid must be a hex string, got %s", v.Raw)
	}
	return entity.ParseHexID(v.String())
}

// parseUint accepts a JSON number, a decimal string or a 0x-prefixed hex string
func parseUint(v gjson.Result) (uint64, error) {
	switch v.Type {
	case gjson.Number:
		if f := v.Float(); f < 0 || f != float64(v.Uint()) {
			return 0, errors.Wrapf(errInvalidParams, "not an unsigned integer: %s", v.Raw)
		}
		return v.Uint(), nil
	case gjson.String:
		s := v.String()
		if strings.HasPrefix(s, "0x") {
			n, err := hexutil.DecodeUint64(s)
			if err != nil {
				return 0, errors.Wrap(errInvalidParams, err.Error())
			}
			return n, nil
		}
		n, err := strconv.ParseUint(s, 10, 64)
		if err != nil {
			return 0, errors.Wrap(errInvalidParams, err.Error())
		}
		return n, nil
	default:
		return 0, errors.Wrapf(errInvalidParams, "not an unsigned integer: %s", v.Raw)
	}
}

// parseAddress accepts 0x hex and io1 addresses
func parseAddress(v gjson.Result) (common.Address, error) {
	s := v.String()
	if common.IsHexAddress(s) {
		return common.HexToAddress(s), nil
	}
	addr, err := address.FromString(s)
	if err != nil {
		return common.Address{}, errors.Wrapf(errInvalidParams, "invalid address %q", s)
	}
	return common.BytesToAddress(addr.Bytes()), nil
}

func (svr *web3Handler) version(_ context.Context, _ *gjson.Result) (interface{}, error) {
	return svr.core.Version(), nil
}

func (svr *web3Handler) getEntity(ctx context.Context, in *gjson.Result) (interface{}, error) {
	id, err := parseCid(param(in, 0))
	if err != nil {
		return nil, err
	}
	e, err := svr.core.Entity(ctx, backendOption(in, 1), id)
	if err != nil || e == nil {
		return nil, err
	}
	return e, nil
}

func (svr *web3Handler) getEntities(ctx context.Context, in *gjson.Result) (interface{}, error) {
	list := param(in, 0)
	if !list.IsArray() {
		return nil, errors.Wrap(errInvalidParams, "cids must be an array")
	}
	ids := make([]cid.Cid, 0, len(list.Array()))
	for _, v := range list.Array() {
		id, err := parseCid(v)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return svr.core.Entities(ctx, backendOption(in, 1), ids)
}

func (svr *web3Handler) listCids(ctx context.Context, in *gjson.Result) (interface{}, error) {
	var kind *entity.Kind
	if v := param(in, 0); v.Type == gjson.String {
		k, err := entity.ParseKind(v.String())
		if err != nil {
			return nil, err
		}
		kind = &k
	}
	ids, err := svr.core.ListCids(ctx, backendOption(in, 1), kind)
	if err != nil {
		return nil, err
	}
	ret := make([]string, 0, len(ids))
	for _, id := range ids {
		ret = append(ret, entity.HexID(id))
	}
	return ret, nil
}

func (svr *web3Handler) listCidsIndex(ctx context.Context, in *gjson.Result) (interface{}, error) {
	kindParam, field, value := param(in, 0), param(in, 1), param(in, 2)
	if kindParam.Type != gjson.String || field.Type != gjson.String || value.Type != gjson.String {
		return nil, errors.Wrap(errInvalidParams, "expected kind, field and value strings")
	}
	kind, err := entity.ParseKind(kindParam.String())
	if err != nil {
		return nil, err
	}
	ids, err := svr.core.ListCidsIndex(ctx, backendOption(in, 3), kind, field.String(), value.String())
	if err != nil {
		return nil, err
	}
	ret := make([]string, 0, len(ids))
	for _, id := range ids {
		ret = append(ret, entity.HexID(id))
	}
	return ret, nil
}

func (svr *web3Handler) subscribeEntities(ctx context.Context, in *gjson.Result) (interface{}, error) {
	sc, ok := StreamFromContext(ctx)
	if !ok {
		return nil, errStreamRequired
	}
	listener, err := svr.core.entityListener()
	if err != nil {
		return nil, err
	}
	var fromBlock *uint64
	if v := param(in, 0).Get("fromBlock"); v.Exists() {
		n, err := parseUint(v)
		if err != nil {
			return nil, err
		}
		fromBlock = &n
	}
	id, err := listener.AddResponder(newEntityResponder(sc.writer), fromBlock)
	if err != nil {
		return nil, err
	}
	sc.AddListener(id, listener)
	return id, nil
}

func (svr *web3Handler) unsubscribeEntities(ctx context.Context, in *gjson.Result) (interface{}, error) {
	sc, ok := StreamFromContext(ctx)
	if !ok {
		return nil, errStreamRequired
	}
	listener, err := svr.core.entityListener()
	if err != nil {
		return nil, err
	}
	id := param(in, 0)
	if id.Type != gjson.String {
		return nil, errors.Wrap(errInvalidParams, "subscription id must be a string")
	}
	// a connection only cancels its own subscriptions
	if !sc.RemoveListener(id.String()) {
		return false, nil
	}
	return listener.RemoveResponder(id.String())
}

func (svr *web3Handler) kindForCid(ctx context.Context, in *gjson.Result) (interface{}, error) {
	id, err := parseCid(param(in, 0))
	if err != nil {
		return nil, err
	}
	return svr.core.KindForCid(ctx, backendOption(in, 1), id)
}

func (svr *web3Handler) entityExists(ctx context.Context, in *gjson.Result) (interface{}, error) {
	id, err := parseCid(param(in, 0))
	if err != nil {
		return nil, err
	}
	return svr.core.EntityExists(ctx, backendOption(in, 1), id)
}

func (svr *web3Handler) getEntityCid(_ context.Context, in *gjson.Result) (interface{}, error) {
	v := param(in, 0)
	if !v.IsObject() {
		return nil, errors.Wrap(errInvalidParams, "entity must be an object")
	}
	e := &entity.Entity{}
	if err := e.UnmarshalJSON([]byte(v.Raw)); err != nil {
		return nil, errors.Wrap(errInvalidParams, err.Error())
	}
	id, err := e.ID()
	if err != nil {
		return nil, err
	}
	return entity.HexID(id), nil
}

func (svr *web3Handler) getPropositionPools(ctx context.Context, in *gjson.Result) (interface{}, error) {
	filter := param(in, 0)
	var index *uint64
	if v := filter.Get("epoch"); v.Exists() {
		n, err := parseUint(v)
		if err != nil {
			return nil, err
		}
		index = &n
	}
	var subject []byte
	if v := filter.Get("subject"); v.Exists() {
		b, err := hexutil.Decode(v.String())
		if err != nil {
			return nil, errors.Wrap(errInvalidParams, err.Error())
		}
		subject = b
	}
	pools, err := svr.core.PropositionPools(ctx, backendOption(in, 1), index)
	if err != nil {
		return nil, err
	}
	if subject == nil {
		return pools, nil
	}
	ret := pools[:0]
	for _, p := range pools {
		if bytes.Equal(p.Subject, subject) {
			ret = append(ret, p)
		}
	}
	return ret, nil
}

func (svr *web3Handler) getEpochStatus(_ context.Context, in *gjson.Result) (interface{}, error) {
	index, err := parseUint(param(in, 0))
	if err != nil {
		return nil, err
	}
	return svr.core.EpochStatus(index)
}

func (svr *web3Handler) getPayouts(ctx context.Context, in *gjson.Result) (interface{}, error) {
	index, err := parseUint(param(in, 0))
	if err != nil {
		return nil, err
	}
	return svr.core.Record(ctx, index)
}

func (svr *web3Handler) getCumulativePayouts(_ context.Context, in *gjson.Result) (interface{}, error) {
	index, err := parseUint(param(in, 0))
	if err != nil {
		return nil, err
	}
	sums, err := svr.core.CumulativePayouts(index)
	if err != nil {
		return nil, err
	}
	if v := param(in, 1); v.Exists() && v.Type == gjson.String {
		addr, err := parseAddress(v)
		if err != nil {
			return nil, err
		}
		p, ok := payout.Find(sums, addr)
		if !ok {
			return []payout.Payout{}, nil
		}
		return []payout.Payout{p}, nil
	}
	return sums, nil
}

func (svr *web3Handler) getPayoutProof(_ context.Context, in *gjson.Result) (interface{}, error) {
	index, err := parseUint(param(in, 0))
	if err != nil {
		return nil, err
	}
	addr, err := parseAddress(param(in, 1))
	if err != nil {
		return nil, err
	}
	return svr.core.PayoutProof(index, addr)
}

func (svr *web3Handler) syncStatus(_ context.Context, _ *gjson.Result) (interface{}, error) {
	return svr.core.SyncStatus(), nil
}
