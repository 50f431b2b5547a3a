// Copyright (c) 2024 IoTeX Foundation
// This source code is provided 'as is' and no warranties are given as to title or non-infringement, merchantability
// or fitness for purpose and, to the extent permitted by law, all liability for your use of the code is disclaimed.
// This source code is governed by Apache License 2.0 that can be found in the LICENSE file.

package api

import (
	"context"
	"strconv"
	"sync"

	"github.com/pkg/errors"
	"go.uber.org/atomic"
	"go.uber.org/zap"

	"github.com/iotexproject/rlay-client/entity"
	"github.com/iotexproject/rlay-client/pkg/log"
)

var (
	errResponderNotFound = errors.New("subscription not found")
	errCapacityReached   = errors.New("capacity has been reached")
)

type (
	// Responder receives the entities committed to the followed backend
	Responder interface {
		Respond(id string, height uint64, e *entity.Entity) error
		Exit()
	}

	committedEntity struct {
		height uint64
		e      *entity.Entity
	}

	// EntityListener passes the committed entities of one backend to every responder.
	// The latest entities are kept to replay a subscription from a block.
	EntityListener struct {
		mutex      sync.Mutex
		backend    string
		capacity   int
		responders map[string]Responder
		recent     []committedEntity
		replaySize int
		nextID     *atomic.Uint64
	}
)

// NewEntityListener creates a listener of backend with at most capacity responders
func NewEntityListener(backend string, capacity, replaySize int) *EntityListener {
	return &EntityListener{
		backend:    backend,
		capacity:   capacity,
		responders: make(map[string]Responder),
		replaySize: replaySize,
		nextID:     atomic.NewUint64(0),
	}
}

// Publish hands an entity to the responders, responders failing to receive it are removed
func (l *EntityListener) Publish(backend string, height uint64, e *entity.Entity) {
	if backend != l.backend {
		return
	}
	l.mutex.Lock()
	defer l.mutex.Unlock()
	if l.replaySize > 0 {
		if len(l.recent) == l.replaySize {
			l.recent = append(l.recent[:0], l.recent[1:]...)
		}
		l.recent = append(l.recent, committedEntity{height, e})
	}
	for id, r := range l.responders {
		if err := r.Respond(id, height, e); err != nil {
			log.Logger("api").Info("removing entity subscription", zap.String("id", id), zap.Error(err))
			delete(l.responders, id)
			r.Exit()
		}
	}
}

// AddResponder registers r, first replaying the kept entities at or above fromBlock
func (l *EntityListener) AddResponder(r Responder, fromBlock *uint64) (string, error) {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	if len(l.responders) >= l.capacity {
		return "", errCapacityReached
	}
	id := "0x" + strconv.FormatUint(l.nextID.Inc(), 16)
	if fromBlock != nil {
		for _, c := range l.recent {
			if c.height < *fromBlock {
				continue
			}
			if err := r.Respond(id, c.height, c.e); err != nil {
				return "", errors.Wrap(err, "failed to replay entities")
			}
		}
	}
	l.responders[id] = r
	return id, nil
}

// RemoveResponder unregisters the responder of id
func (l *EntityListener) RemoveResponder(id string) (bool, error) {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	r, ok := l.responders[id]
	if !ok {
		return false, errors.Wrap(errResponderNotFound, id)
	}
	delete(l.responders, id)
	r.Exit()
	return true, nil
}

// Stop notifies every responder to exit
func (l *EntityListener) Stop(_ context.Context) error {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	for id, r := range l.responders {
		r.Exit()
		delete(l.responders, id)
	}
	return nil
}

// entityResponder writes entity notifications to a websocket stream
type entityResponder struct {
	writer Web3ResponseWriter
	closed *atomic.Bool
}

type (
	entityNotification struct {
		JSONRPC string            `json:"jsonrpc"`
		Method  string            `json:"method"`
		Params  entityNotifParams `json:"params"`
	}

	entityNotifParams struct {
		Subscription string         `json:"subscription"`
		BlockNumber  uint64         `json:"blockNumber"`
		Result       *entity.Entity `json:"result"`
	}
)

func newEntityResponder(w Web3ResponseWriter) *entityResponder {
	return &entityResponder{writer: w, closed: atomic.NewBool(false)}
}

func (r *entityResponder) Respond(id string, height uint64, e *entity.Entity) error {
	if r.closed.Load() {
		return errors.New("responder exited")
	}
	_, err := r.writer.Write(&entityNotification{
		JSONRPC: "2.0",
		Method:  "rlay_subscribeEntities",
		Params: entityNotifParams{
			Subscription: id,
			BlockNumber:  height,
			Result:       e,
		},
	})
	return err
}

func (r *entityResponder) Exit() {
	r.closed.Store(true)
}
