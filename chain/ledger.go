// Copyright (c) 2024 IoTeX Foundation
// This source code is provided 'as is' and no warranties are given as to title or non-infringement, merchantability
// or fitness for purpose and, to the extent permitted by law, all liability for your use of the code is disclaimed.
// This source code is governed by Apache License 2.0 that can be found in the LICENSE file.

package chain

import (
	"context"
	"crypto/ecdsa"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/iotexproject/rlay-client/pkg/log"
)

// ErrNoSigner is returned when a transaction is sent without a configured key
var ErrNoSigner = errors.New("no signer configured")

type (
	// Ledger is the upstream ledger RPC as needed by the client
	Ledger interface {
		// TipHeight returns the latest block height
		TipHeight(context.Context) (uint64, error)
		// FilterLogs returns the logs of the contracts and topics in [from, to]
		FilterLogs(ctx context.Context, from, to uint64, addresses []common.Address, topics []common.Hash) ([]types.Log, error)
		// CallContract executes a read-only contract call at the latest block
		CallContract(ctx context.Context, to common.Address, data []byte) ([]byte, error)
		// SendTransaction signs and sends a contract call, returning the transaction hash
		SendTransaction(ctx context.Context, to common.Address, data []byte) (common.Hash, error)
		// TransactionConfirmed returns true once the transaction is mined successfully
		TransactionConfirmed(context.Context, common.Hash) (bool, error)
		// Close closes the connection
		Close()
	}

	// EthLedger talks to an ethereum compatible JSON-RPC endpoint, rotating
	// through the configured URLs on connection errors
	EthLedger struct {
		mutex      sync.RWMutex
		client     *ethclient.Client
		urls       []string
		current    int
		timeout    time.Duration
		limiter    *rate.Limiter
		chainID    *big.Int
		gasLimit   uint64
		signer     *ecdsa.PrivateKey
		dialClient func(context.Context, string) (*ethclient.Client, error)
	}
)

// NewEthLedger dials the first reachable URL
func NewEthLedger(ctx context.Context, cfg Config, signer *ecdsa.PrivateKey) (*EthLedger, error) {
	if len(cfg.URLs) == 0 {
		return nil, errors.New("client URL list is empty")
	}
	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}
	l := &EthLedger{
		urls:       cfg.URLs,
		timeout:    cfg.RequestTimeout,
		limiter:    rate.NewLimiter(limit, 1),
		chainID:    new(big.Int).SetUint64(cfg.ChainID),
		gasLimit:   cfg.GasLimit,
		signer:     signer,
		dialClient: ethclient.DialContext,
	}
	var err error
	for l.current = 0; l.current < len(l.urls); l.current++ {
		if l.client, err = l.dialClient(ctx, l.urls[l.current]); err == nil {
			break
		}
		log.L().Error("client is not reachable", zap.String("url", l.urls[l.current]), zap.Error(err))
	}
	if err != nil {
		return nil, errors.Wrap(ErrTransient, err.Error())
	}
	return l, nil
}

// Close closes the current client
func (l *EthLedger) Close() {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	if l.client != nil {
		l.client.Close()
	}
}

// Sender returns the address of the signer
func (l *EthLedger) Sender() (common.Address, error) {
	if l.signer == nil {
		return common.Address{}, ErrNoSigner
	}
	return crypto.PubkeyToAddress(l.signer.PublicKey), nil
}

// TipHeight returns the latest block height
func (l *EthLedger) TipHeight(ctx context.Context) (tip uint64, err error) {
	err = l.call(ctx, func(ctx context.Context, c *ethclient.Client) error {
		tip, err = c.BlockNumber(ctx)
		return err
	})
	return
}

// FilterLogs returns the logs of the contracts and topics in [from, to]
func (l *EthLedger) FilterLogs(ctx context.Context, from, to uint64, addresses []common.Address, topics []common.Hash) (logs []types.Log, err error) {
	query := ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(from),
		ToBlock:   new(big.Int).SetUint64(to),
		Addresses: addresses,
		Topics:    [][]common.Hash{topics},
	}
	err = l.call(ctx, func(ctx context.Context, c *ethclient.Client) error {
		logs, err = c.FilterLogs(ctx, query)
		return err
	})
	return
}

// CallContract executes a read-only call at the latest block
func (l *EthLedger) CallContract(ctx context.Context, to common.Address, data []byte) (out []byte, err error) {
	msg := ethereum.CallMsg{To: &to, Data: data}
	err = l.call(ctx, func(ctx context.Context, c *ethclient.Client) error {
		out, err = c.CallContract(ctx, msg, nil)
		return err
	})
	return
}

// SendTransaction signs a legacy EIP-155 transaction once and broadcasts it.
// Retries on connection errors resend the same signed transaction.
func (l *EthLedger) SendTransaction(ctx context.Context, to common.Address, data []byte) (common.Hash, error) {
	from, err := l.Sender()
	if err != nil {
		return common.Hash{}, err
	}
	var (
		nonce    uint64
		gasPrice *big.Int
	)
	if err := l.call(ctx, func(ctx context.Context, c *ethclient.Client) (err error) {
		if nonce, err = c.PendingNonceAt(ctx, from); err != nil {
			return err
		}
		gasPrice, err = c.SuggestGasPrice(ctx)
		return err
	}); err != nil {
		return common.Hash{}, err
	}
	tx := types.NewTransaction(nonce, to, big.NewInt(0), l.gasLimit, gasPrice, data)
	signed, err := types.SignTx(tx, types.NewEIP155Signer(l.chainID), l.signer)
	if err != nil {
		return common.Hash{}, errors.Wrap(err, "failed to sign transaction")
	}
	attempts := 0
	if err := l.call(ctx, func(ctx context.Context, c *ethclient.Client) error {
		attempts++
		err := c.SendTransaction(ctx, signed)
		if err != nil && isBroadcast(err, attempts > 1) {
			log.L().Info("transaction already broadcast", zap.String("tx", signed.Hash().Hex()), zap.Error(err))
			return nil
		}
		return err
	}); err != nil {
		return common.Hash{}, err
	}
	return signed.Hash(), nil
}

// isBroadcast is true if the node already holds the transaction. After a lost
// response, a too low nonce means the earlier send was mined.
func isBroadcast(err error, resent bool) bool {
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "already known") || strings.Contains(msg, "known transaction") {
		return true
	}
	return resent && strings.Contains(msg, "nonce too low")
}

// TransactionConfirmed returns true once the transaction is mined successfully
func (l *EthLedger) TransactionConfirmed(ctx context.Context, hash common.Hash) (confirmed bool, err error) {
	err = l.call(ctx, func(ctx context.Context, c *ethclient.Client) error {
		receipt, err := c.TransactionReceipt(ctx, hash)
		if errors.Is(err, ethereum.NotFound) {
			confirmed = false
			return nil
		}
		if err != nil {
			return err
		}
		if receipt.Status != types.ReceiptStatusSuccessful {
			return errors.Wrapf(ErrTransactionFailed, "tx %s reverted", hash.Hex())
		}
		confirmed = true
		return nil
	})
	return
}

// call runs fn against the current client, rotating to the next URL on
// connection errors. Exhausting all URLs yields ErrTransient.
func (l *EthLedger) call(ctx context.Context, fn func(context.Context, *ethclient.Client) error) error {
	var lastErr error
	for i := 0; i < len(l.urls); i++ {
		if err := l.limiter.Wait(ctx); err != nil {
			return err
		}
		l.mutex.RLock()
		c := l.client
		l.mutex.RUnlock()

		err := l.withTimeout(ctx, func(cctx context.Context) error {
			return fn(cctx, c)
		})
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if !isConnectionError(err) {
			return err
		}
		lastErr = err
		if rerr := l.rotateClient(ctx, err); rerr != nil {
			lastErr = rerr
		}
	}
	return errors.Wrap(ErrTransient, lastErr.Error())
}

func (l *EthLedger) withTimeout(ctx context.Context, fn func(context.Context) error) error {
	if l.timeout <= 0 {
		return fn(ctx)
	}
	cctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()
	return fn(cctx)
}

func (l *EthLedger) rotateClient(ctx context.Context, cause error) error {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	log.L().Warn("ledger connection error", zap.String("url", l.urls[l.current]), zap.Error(cause))
	if len(l.urls) == 1 {
		return nil
	}
	l.current = (l.current + 1) % len(l.urls)
	log.L().Info("rotate to new client", zap.String("url", l.urls[l.current]))
	client, err := l.dialClient(ctx, l.urls[l.current])
	if err != nil {
		return err
	}
	l.client.Close()
	l.client = client
	return nil
}

// isConnectionError is false for errors the node answered with
func isConnectionError(err error) bool {
	if errors.Is(err, ethereum.NotFound) || errors.Is(err, ErrTransactionFailed) {
		return false
	}
	var rpcErr rpc.Error
	return !errors.As(err, &rpcErr)
}
