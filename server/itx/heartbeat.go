// Copyright (c) 2024 IoTeX Foundation
// This source code is provided 'as is' and no warranties are given as to title or non-infringement, merchantability
// or fitness for purpose and, to the extent permitted by law, all liability for your use of the code is disclaimed.
// This source code is governed by Apache License 2.0 that can be found in the LICENSE file.

package itx

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/iotexproject/rlay-client/pkg/log"
	"github.com/iotexproject/rlay-client/submitter"
)

var heartbeatMtc = prometheus.NewGaugeVec(
	prometheus.GaugeOpts{
		Name: "rlay_heartbeat_status",
		Help: "Client heartbeat status.",
	},
	[]string{"status_type", "source"},
)

func init() {
	prometheus.MustRegister(heartbeatMtc)
}

// HeartbeatHandler is the handler to periodically log the system key metrics
type HeartbeatHandler struct {
	s       *Server
	timeout time.Duration
}

// NewHeartbeatHandler instantiates a HeartbeatHandler instance
func NewHeartbeatHandler(s *Server) *HeartbeatHandler {
	return &HeartbeatHandler{s: s, timeout: 5 * time.Second}
}

// Log executes the logging logic
func (h *HeartbeatHandler) Log() {
	ctx, cancel := context.WithTimeout(context.Background(), h.timeout)
	defer cancel()

	tip, err := h.s.ledger.TipHeight(ctx)
	if err != nil {
		log.L().Debug("error when get tip height.", zap.Error(err))
	} else {
		heartbeatMtc.WithLabelValues("tipHeight", "ledger").Set(float64(tip))
	}

	for _, st := range h.s.syncService.Status() {
		var synced uint64
		if st.Checkpoint != nil {
			synced = st.Checkpoint.Height
		}
		log.L().Info("backend status",
			zap.String("backend", st.Backend),
			zap.String("fsmState", st.State),
			zap.Uint64("syncedHeight", synced),
			zap.Uint64("tipHeight", tip),
			zap.String("lastError", st.Error),
		)
		heartbeatMtc.WithLabelValues("syncedHeight", st.Backend).Set(float64(synced))
		if tip > synced {
			heartbeatMtc.WithLabelValues("lag", st.Backend).Set(float64(tip - synced))
		} else {
			heartbeatMtc.WithLabelValues("lag", st.Backend).Set(0)
		}
	}

	if h.s.pipeline == nil {
		return
	}
	r, err := h.s.pipeline.Records().Latest()
	switch errors.Cause(err) {
	case nil:
		log.L().Info("payout status",
			zap.Uint64("epoch", r.Epoch),
			zap.String("root", r.Root.Hex()),
			zap.String("status", string(r.Status)),
			zap.Int("payouts", len(r.Payouts)),
		)
		heartbeatMtc.WithLabelValues("latestEpoch", "payout").Set(float64(r.Epoch))
	case submitter.ErrRecordNotFound:
		log.L().Info("payout status", zap.String("status", "no epoch closed"))
	default:
		log.L().Error("error when reading payout records.", zap.Error(err))
	}
}
