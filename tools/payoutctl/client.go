// Copyright (c) 2024 IoTeX Foundation
// This source code is provided 'as is' and no warranties are given as to title or non-infringement, merchantability
// or fitness for purpose and, to the extent permitted by law, all liability for your use of the code is disclaimed.
// This source code is governed by Apache License 2.0 that can be found in the LICENSE file.

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/pkg/errors"
	"go.uber.org/atomic"
)

// errNoResult indicates the facade answered with a null result
var errNoResult = errors.New("no result")

type (
	rpcRequest struct {
		JSONRPC string        `json:"jsonrpc"`
		ID      uint64        `json:"id"`
		Method  string        `json:"method"`
		Params  []interface{} `json:"params"`
	}

	rpcError struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	}

	rpcResponse struct {
		Result json.RawMessage `json:"result"`
		Error  *rpcError       `json:"error"`
	}

	// rpcClient calls the JSON-RPC methods of a running facade
	rpcClient struct {
		endpoint string
		r        *resty.Client
		id       *atomic.Uint64
	}
)

func (e *rpcError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

func newRPCClient(endpoint string, timeout time.Duration) *rpcClient {
	return &rpcClient{
		endpoint: endpoint,
		r: resty.New().
			SetTimeout(timeout).
			SetHeader("Content-Type", "application/json"),
		id: atomic.NewUint64(0),
	}
}

// call invokes method and decodes the result into out
func (c *rpcClient) call(ctx context.Context, method string, out interface{}, params ...interface{}) error {
	if params == nil {
		params = []interface{}{}
	}
	res, err := c.r.R().
		SetContext(ctx).
		SetBody(&rpcRequest{
			JSONRPC: "2.0",
			ID:      c.id.Inc(),
			Method:  method,
			Params:  params,
		}).
		Post(c.endpoint)
	if err != nil {
		return errors.Wrapf(err, "failed to call %s", method)
	}
	if res.IsError() {
		return errors.Errorf("failed to call %s: http status %d", method, res.StatusCode())
	}
	var resp rpcResponse
	if err := json.Unmarshal(res.Body(), &resp); err != nil {
		return errors.Wrapf(err, "failed to decode the response of %s", method)
	}
	if resp.Error != nil {
		return errors.Wrap(resp.Error, method)
	}
	if len(resp.Result) == 0 || string(resp.Result) == "null" {
		return errors.Wrap(errNoResult, method)
	}
	if out == nil {
		return nil
	}
	return errors.Wrapf(json.Unmarshal(resp.Result, out), "failed to decode the result of %s", method)
}
