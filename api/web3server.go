// Copyright (c) 2024 IoTeX Foundation
// This source code is provided 'as is' and no warranties are given as to title or non-infringement, merchantability
// or fitness for purpose and, to the extent permitted by law, all liability for your use of the code is disclaimed.
// This source code is governed by Apache License 2.0 that can be found in the LICENSE file.

package api

import (
	"context"
	"encoding/json"
	"io"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"github.com/iotexproject/rlay-client/entity"
	"github.com/iotexproject/rlay-client/epoch"
	"github.com/iotexproject/rlay-client/merkle"
	"github.com/iotexproject/rlay-client/pkg/log"
	"github.com/iotexproject/rlay-client/submitter"
)

const (
	_defaultBatchRequestLimit = 100
	_maxRequestLimit          = 64
)

type (
	// Web3Handler handles JSON-RPC requests
	Web3Handler interface {
		HandlePOSTReq(context.Context, io.Reader, Web3ResponseWriter) error
	}

	// Web3ResponseWriter writes the response of a request
	Web3ResponseWriter interface {
		Write(interface{}) (int, error)
	}

	responseWriter struct {
		writeHandler func(interface{}) (int, error)
	}

	web3Handler struct {
		core              *coreService
		batchRequestLimit int
	}

	web3Response struct {
		id     interface{}
		result interface{}
		err    error
	}

	web3Err struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	}

	methodHandler func(*web3Handler, context.Context, *gjson.Result) (interface{}, error)
)

var (
	errInvalidFormat     = errors.New("invalid format of request")
	errMethodNotFound    = errors.New("method not found")
	errInvalidParams     = errors.New("invalid params")
	errBatchLimitReached = errors.New("batch request limit reached")
	errStreamRequired    = errors.New("subscriptions require a websocket connection")

	_web3ServerMtc = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rlay_api_requests",
			Help: "Facade requests by method and result",
		},
		[]string{"method", "result"},
	)

	_methods map[string]methodHandler
)

func init() {
	prometheus.MustRegister(_web3ServerMtc)
	_methods = map[string]methodHandler{
		"rlay_version":                   (*web3Handler).version,
		"rlay_experimentalGetEntity":     (*web3Handler).getEntity,
		"rlay_experimentalGetEntities":   (*web3Handler).getEntities,
		"rlay_experimentalListCids":      (*web3Handler).listCids,
		"rlay_experimentalListCidsIndex": (*web3Handler).listCidsIndex,
		"rlay_experimentalKindForCid":    (*web3Handler).kindForCid,
		"rlay_experimentalEntityExists":  (*web3Handler).entityExists,
		"rlay_experimentalGetEntityCid":  (*web3Handler).getEntityCid,
		"rlay_getPropositionPools":       (*web3Handler).getPropositionPools,
		"rlay_getEpochStatus":            (*web3Handler).getEpochStatus,
		"rlay_getPayouts":                (*web3Handler).getPayouts,
		"rlay_getCumulativePayouts":      (*web3Handler).getCumulativePayouts,
		"rlay_getPayoutProof":            (*web3Handler).getPayoutProof,
		"rlay_syncStatus":                (*web3Handler).syncStatus,
		"rlay_subscribeEntities":         (*web3Handler).subscribeEntities,
		"rlay_unsubscribeEntities":       (*web3Handler).unsubscribeEntities,
	}
}

// NewResponseWriter returns a writer calling handler
func NewResponseWriter(handler func(interface{}) (int, error)) Web3ResponseWriter {
	return &responseWriter{handler}
}

func (w *responseWriter) Write(in interface{}) (int, error) {
	return w.writeHandler(in)
}

// newWeb3Handler creates a handler answering from core
func newWeb3Handler(core *coreService, batchRequestLimit int) *web3Handler {
	if batchRequestLimit <= 0 {
		batchRequestLimit = _defaultBatchRequestLimit
	}
	return &web3Handler{
		core:              core,
		batchRequestLimit: batchRequestLimit,
	}
}

// IsLocal returns true if the method is served by the facade
func IsLocal(method string) bool {
	_, ok := _methods[method]
	return ok
}

// HandlePOSTReq handles a single or a batch request
func (svr *web3Handler) HandlePOSTReq(ctx context.Context, reader io.Reader, writer Web3ResponseWriter) error {
	web3Reqs, err := parseWeb3Reqs(reader)
	if err != nil {
		err = errors.Wrap(err, "failed to parse web3 requests.")
		_, err = writer.Write(&web3Response{err: err})
		return err
	}
	if !web3Reqs.IsArray() {
		_, err = writer.Write(svr.handleWeb3Req(ctx, &web3Reqs))
		return err
	}
	reqs := web3Reqs.Array()
	if len(reqs) > svr.batchRequestLimit {
		_, err = writer.Write(&web3Response{err: errors.Wrapf(errBatchLimitReached, "%d > %d", len(reqs), svr.batchRequestLimit)})
		return err
	}
	resps := make([]*web3Response, 0, len(reqs))
	for i := range reqs {
		resps = append(resps, svr.handleWeb3Req(ctx, &reqs[i]))
	}
	_, err = writer.Write(resps)
	return err
}

func (svr *web3Handler) handleWeb3Req(ctx context.Context, web3Req *gjson.Result) *web3Response {
	var (
		method = web3Req.Get("method").String()
		id     = web3Req.Get("id").Value()
		res    interface{}
		err    error
	)
	if h, ok := _methods[method]; ok {
		res, err = h(svr, ctx, web3Req)
	} else {
		err = errors.Wrapf(errMethodNotFound, "method: %s", method)
	}
	if err != nil {
		log.Logger("api").Debug("failed to handle web3 request",
			zap.String("method", method),
			zap.String("requestParams", web3Req.Get("params").Raw),
			zap.Error(err))
		_web3ServerMtc.WithLabelValues(method, "failure").Inc()
	} else {
		_web3ServerMtc.WithLabelValues(method, "success").Inc()
	}
	return &web3Response{id: id, result: res, err: err}
}

func parseWeb3Reqs(reader io.Reader) (gjson.Result, error) {
	data, err := io.ReadAll(reader)
	if err != nil {
		return gjson.Result{}, err
	}
	if !gjson.ValidBytes(data) {
		return gjson.Result{}, errInvalidFormat
	}
	ret := gjson.ParseBytes(data)
	reqs := []gjson.Result{ret}
	if ret.IsArray() {
		reqs = ret.Array()
	}
	for _, req := range reqs {
		if !req.Get("id").Exists() || !req.Get("method").Exists() {
			return gjson.Result{}, errors.Wrap(errInvalidFormat, "request field is incomplete")
		}
	}
	return ret, nil
}

// error code: https://eth.wiki/json-rpc/json-rpc-error-codes-improvement-proposal
func errorCode(err error) int {
	switch errors.Cause(err) {
	case errMethodNotFound:
		return -32601
	case errStreamRequired:
		return -32600
	case errInvalidParams, errInvalidFormat, errBatchLimitReached, ErrUnknownBackend,
		entity.ErrInvalidID, entity.ErrUnknownKind, entity.ErrEncoding:
		return -32602
	case epoch.ErrInsufficientEpochData:
		return -32000
	case submitter.ErrRecordNotFound, merkle.ErrLeafNotFound:
		return -32001
	case ErrPayoutDisabled, ErrSubscriptionDisabled, errCapacityReached:
		return -32002
	case errResponderNotFound:
		return -32001
	default:
		return -32603
	}
}

func (obj *web3Response) MarshalJSON() ([]byte, error) {
	if obj.err == nil {
		return json.Marshal(&struct {
			Jsonrpc string      `json:"jsonrpc"`
			ID      interface{} `json:"id"`
			Result  interface{} `json:"result"`
		}{
			Jsonrpc: "2.0",
			ID:      obj.id,
			Result:  obj.result,
		})
	}
	return json.Marshal(&struct {
		Jsonrpc string      `json:"jsonrpc"`
		ID      interface{} `json:"id"`
		Error   web3Err     `json:"error"`
	}{
		Jsonrpc: "2.0",
		ID:      obj.id,
		Error: web3Err{
			Code:    errorCode(obj.err),
			Message: obj.err.Error(),
		},
	})
}
