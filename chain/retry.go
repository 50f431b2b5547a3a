// Copyright (c) 2024 IoTeX Foundation
// This source code is provided 'as is' and no warranties are given as to title or non-infringement, merchantability
// or fitness for purpose and, to the extent permitted by law, all liability for your use of the code is disclaimed.
// This source code is governed by Apache License 2.0 that can be found in the LICENSE file.

package chain

import (
	"context"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/iotexproject/rlay-client/pkg/log"
)

// Retry runs op with bounded exponential backoff while it fails with ErrTransient.
// Any other error stops the retry and is returned as is.
func Retry(ctx context.Context, cfg RetryConfig, op func() error) error {
	b := backoff.NewExponentialBackOff()
	if cfg.InitialInterval > 0 {
		b.InitialInterval = cfg.InitialInterval
	}
	if cfg.MaxInterval > 0 {
		b.MaxInterval = cfg.MaxInterval
	}
	// the retry count bounds the loop, not the elapsed time
	b.MaxElapsedTime = time.Duration(0)
	bo := backoff.WithContext(backoff.WithMaxRetries(b, cfg.MaxRetries), ctx)
	return backoff.RetryNotify(func() error {
		err := op()
		if err == nil || errors.Cause(err) == ErrTransient {
			return err
		}
		return backoff.Permanent(err)
	}, bo, func(err error, next time.Duration) {
		log.L().Warn("transient ledger failure, retrying", zap.Error(err), zap.Duration("backoff", next))
	})
}
