// Copyright (c) 2024 IoTeX Foundation
// This source code is provided 'as is' and no warranties are given as to title or non-infringement, merchantability
// or fitness for purpose and, to the extent permitted by law, all liability for your use of the code is disclaimed.
// This source code is governed by Apache License 2.0 that can be found in the LICENSE file.

package main

import (
	"bytes"
	"encoding/json"
	"io"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"github.com/iotexproject/rlay-client/api"
	"github.com/iotexproject/rlay-client/chain"
	"github.com/iotexproject/rlay-client/merkle"
	"github.com/iotexproject/rlay-client/payout"
	"github.com/iotexproject/rlay-client/submitter"
	"github.com/iotexproject/rlay-client/syncer"
)

var (
	_alice = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	_bob   = common.HexToAddress("0x00000000000000000000000000000000000000b0")
)

// fakeFacade answers the payout methods for one epoch of two payouts
type fakeFacade struct {
	payouts []payout.Payout
	tree    *merkle.Tree
	tamper  bool
}

func newFakeFacade(t *testing.T) *fakeFacade {
	payouts := []payout.Payout{
		{Address: _alice, Amount: big.NewInt(25)},
		{Address: _bob, Amount: big.NewInt(75)},
	}
	leaves := make([]merkle.Leaf, 0, len(payouts))
	for _, p := range payouts {
		leaves = append(leaves, merkle.Leaf{Account: p.Address, Amount: p.Amount})
	}
	tree, err := merkle.NewTree(leaves)
	require.NoError(t, err)
	return &fakeFacade{payouts: payouts, tree: tree}
}

func (f *fakeFacade) result(req gjson.Result) (interface{}, *rpcError) {
	switch req.Get("method").String() {
	case "rlay_getPayouts":
		if req.Get("params.0").Uint() != 1 {
			return nil, nil
		}
		return &submitter.Record{
			Epoch:   1,
			Start:   100,
			End:     199,
			Budget:  big.NewInt(100),
			Payouts: f.payouts,
			Root:    f.tree.Root(),
			Status:  submitter.StatusFinal,
		}, nil
	case "rlay_getPayoutProof":
		addr := common.HexToAddress(req.Get("params.1").String())
		p, ok := payout.Find(f.payouts, addr)
		if !ok {
			return nil, &rpcError{Code: -32001, Message: "leaf not found"}
		}
		proof, err := f.tree.Proof(addr)
		if err != nil {
			return nil, &rpcError{Code: -32603, Message: err.Error()}
		}
		if f.tamper {
			p.Amount = big.NewInt(1000)
		}
		return &api.ProofInfo{Epoch: 1, Root: f.tree.Root(), Payout: p, Proof: proof}, nil
	case "rlay_getCumulativePayouts":
		if addr := req.Get("params.1"); addr.Exists() {
			p, _ := payout.Find(f.payouts, common.HexToAddress(addr.String()))
			return []payout.Payout{p}, nil
		}
		return f.payouts, nil
	case "rlay_syncStatus":
		return []syncer.Status{
			{Backend: "default", State: "Idle", Checkpoint: &chain.Position{Height: 250, LogIndex: 3}},
			{Backend: "mirror", State: "Halted", Error: "reorg"},
		}, nil
	default:
		return nil, &rpcError{Code: -32601, Message: "method not found"}
	}
}

func (f *fakeFacade) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	req := gjson.ParseBytes(body)
	res, rpcErr := f.result(req)
	resp := map[string]interface{}{
		"jsonrpc": "2.0",
		"id":      req.Get("id").Int(),
	}
	if rpcErr != nil {
		resp["error"] = rpcErr
	} else {
		resp["result"] = res
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

func run(t *testing.T, endpoint string, args ...string) (string, error) {
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)
	cmd.SetArgs(append([]string{"--endpoint", endpoint}, args...))
	err := cmd.Execute()
	return out.String(), err
}

func TestRecordCmd(t *testing.T) {
	r := require.New(t)
	f := newFakeFacade(t)
	svr := httptest.NewServer(f)
	defer svr.Close()

	out, err := run(t, svr.URL, "record", "1")
	r.NoError(err)
	r.Contains(out, "Root: "+f.tree.Root().Hex())
	r.Contains(out, "Status: final")
	r.Contains(out, "Total: 2")
	r.Contains(out, _bob.Hex())
	r.Contains(out, "75")

	// an epoch without record is answered with null
	_, err = run(t, svr.URL, "record", "2")
	r.ErrorIs(err, errNoResult)

	_, err = run(t, svr.URL, "record", "one")
	r.Error(err)

	out, err = run(t, svr.URL, "--json", "record", "1")
	r.NoError(err)
	r.Equal(f.tree.Root().Hex(), gjson.Get(out, "root").String())
}

func TestProofCmd(t *testing.T) {
	r := require.New(t)
	f := newFakeFacade(t)
	svr := httptest.NewServer(f)
	defer svr.Close()

	out, err := run(t, svr.URL, "proof", "1", _alice.Hex())
	r.NoError(err)
	r.Contains(out, "Proof: verified")
	proof, err := f.tree.Proof(_alice)
	r.NoError(err)
	r.Contains(out, payout.FormatRedeem(1, proof, f.payouts[0]))

	_, err = run(t, svr.URL, "proof", "1", "0x00000000000000000000000000000000000000c0")
	r.Error(err)
	var rpcErr *rpcError
	r.True(errors.As(err, &rpcErr))
	r.Equal(-32001, rpcErr.Code)

	_, err = run(t, svr.URL, "proof", "1", "not-an-address")
	r.Error(err)

	f.tamper = true
	_, err = run(t, svr.URL, "proof", "1", _alice.Hex())
	r.ErrorIs(err, errInvalidProof)
}

func TestCumulativeAndSyncCmd(t *testing.T) {
	r := require.New(t)
	svr := httptest.NewServer(newFakeFacade(t))
	defer svr.Close()

	out, err := run(t, svr.URL, "cumulative", "1")
	r.NoError(err)
	r.Contains(out, "Total amount: 100")

	out, err = run(t, svr.URL, "cumulative", "1", _bob.Hex())
	r.NoError(err)
	r.Contains(out, "Total amount: 75")

	out, err = run(t, svr.URL, "sync")
	r.NoError(err)
	r.Contains(out, "default")
	r.Contains(out, "250")
	r.Contains(out, "reorg")

	_, err = run(t, svr.URL, "status", "1")
	r.Error(err)
}

func TestClientHTTPError(t *testing.T) {
	svr := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer svr.Close()

	_, err := run(t, svr.URL, "sync")
	require.ErrorContains(t, err, "503")
}
