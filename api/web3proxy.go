// Copyright (c) 2024 IoTeX Foundation
// This source code is provided 'as is' and no warranties are given as to title or non-infringement, merchantability
// or fitness for purpose and, to the extent permitted by law, all liability for your use of the code is disclaimed.
// This source code is governed by Apache License 2.0 that can be found in the LICENSE file.

package api

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/http/httputil"
	"net/url"

	"github.com/pkg/errors"
	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"github.com/iotexproject/rlay-client/pkg/log"
)

var errUpstream = errors.New("upstream failed to respond")

// proxyHandler serves the facade methods locally and forwards the rest to the upstream node
type proxyHandler struct {
	local *web3Handler
	proxy *httputil.ReverseProxy
}

func newProxyHandler(local *web3Handler, upstream string) (*proxyHandler, error) {
	targetURL, err := url.Parse(upstream)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to parse upstream %s", upstream)
	}
	if targetURL.Scheme == "" || targetURL.Host == "" {
		return nil, errors.Errorf("invalid upstream %s", upstream)
	}
	return &proxyHandler{
		local: local,
		proxy: httputil.NewSingleHostReverseProxy(targetURL),
	}, nil
}

func (handler *proxyHandler) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	bodyBytes, err := io.ReadAll(req.Body)
	if err != nil {
		handler.write(w, &web3Response{err: err})
		return
	}
	web3Reqs, err := parseWeb3Reqs(bytes.NewReader(bodyBytes))
	if err != nil {
		handler.write(w, &web3Response{err: errors.Wrap(err, "failed to parse web3 requests.")})
		return
	}
	ctx := req.Context()
	if !web3Reqs.IsArray() {
		if IsLocal(web3Reqs.Get("method").String()) {
			handler.write(w, handler.local.handleWeb3Req(ctx, &web3Reqs))
			return
		}
		req.Body = io.NopCloser(bytes.NewReader(bodyBytes))
		req.ContentLength = int64(len(bodyBytes))
		handler.proxy.ServeHTTP(w, req)
		return
	}

	reqs := web3Reqs.Array()
	if len(reqs) > handler.local.batchRequestLimit {
		handler.write(w, &web3Response{err: errors.Wrapf(errBatchLimitReached, "%d > %d", len(reqs), handler.local.batchRequestLimit)})
		return
	}
	bodies := make([][]byte, len(reqs))
	var remote []int
	for i := range reqs {
		if !IsLocal(reqs[i].Get("method").String()) {
			remote = append(remote, i)
			continue
		}
		raw, err := json.Marshal(handler.local.handleWeb3Req(ctx, &reqs[i]))
		if err != nil {
			raw, _ = json.Marshal(&web3Response{id: reqs[i].Get("id").Value(), err: err})
		}
		bodies[i] = raw
	}
	if len(remote) > 0 {
		handler.forward(req, reqs, remote, bodies)
	}
	allBody := append([]byte("["), bytes.Join(bodies, []byte(","))...)
	allBody = append(allBody, []byte("]")...)
	w.Header().Set("Content-Type", "application/json; charset=UTF-8")
	if _, err = w.Write(allBody); err != nil {
		log.L().Error("failed to write response", zap.Error(err))
	}
}

// forward sends the remote part of a batch upstream and places the answers by request id
func (handler *proxyHandler) forward(req *http.Request, reqs []gjson.Result, remote []int, bodies [][]byte) {
	groupBodies := make([][]byte, len(remote))
	for i, idx := range remote {
		groupBodies[i] = []byte(reqs[idx].Raw)
	}
	body := append([]byte("["), bytes.Join(groupBodies, []byte(","))...)
	body = append(body, []byte("]")...)
	req.Body = io.NopCloser(bytes.NewBuffer(body))
	req.ContentLength = int64(len(body))
	writer := httptest.NewRecorder()
	log.L().Debug("forwarding batch request upstream", zap.Int("batch request size", len(remote)))
	handler.proxy.ServeHTTP(writer, req)

	pending := make(map[string][]int, len(remote))
	for _, idx := range remote {
		id := reqs[idx].Get("id").Raw
		pending[id] = append(pending[id], idx)
	}
	for _, subResp := range gjson.ParseBytes(writer.Body.Bytes()).Array() {
		id := subResp.Get("id").Raw
		if list := pending[id]; len(list) > 0 {
			bodies[list[0]] = []byte(subResp.Raw)
			pending[id] = list[1:]
		}
	}
	for _, idx := range remote {
		if bodies[idx] != nil {
			continue
		}
		raw, _ := json.Marshal(&web3Response{
			id:  reqs[idx].Get("id").Value(),
			err: errors.Wrapf(errUpstream, "status %d", writer.Code),
		})
		bodies[idx] = raw
	}
}

func (handler *proxyHandler) write(w http.ResponseWriter, resp *web3Response) {
	raw, err := json.Marshal(resp)
	if err != nil {
		log.L().Error("failed to marshal response", zap.Error(err))
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=UTF-8")
	w.Write(raw)
}
