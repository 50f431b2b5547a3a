// Copyright (c) 2024 IoTeX Foundation
// This source code is provided 'as is' and no warranties are given as to title or non-infringement, merchantability
// or fitness for purpose and, to the extent permitted by law, all liability for your use of the code is disclaimed.
// This source code is governed by Apache License 2.0 that can be found in the LICENSE file.

// payoutctl inspects the payout records of a running rlay client and verifies payout proofs.
//
// Usage:
//   payoutctl --endpoint=http://127.0.0.1:8546 record 12
//   payoutctl proof 12 io1...
//

package main

import (
	"os"
	"time"

	"github.com/spf13/cobra"
)

type rootOptions struct {
	endpoint string
	timeout  time.Duration
	json     bool
}

func (o *rootOptions) client() *rpcClient {
	return newRPCClient(o.endpoint, o.timeout)
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:           "payoutctl",
		Short:         "Inspect epoch payouts of an rlay client",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.PersistentFlags().StringVar(&opts.endpoint, "endpoint", "http://127.0.0.1:8546", "JSON-RPC endpoint of the client")
	root.PersistentFlags().DurationVar(&opts.timeout, "timeout", 10*time.Second, "request timeout")
	root.PersistentFlags().BoolVar(&opts.json, "json", false, "print raw JSON")

	root.AddCommand(
		newStatusCmd(opts),
		newRecordCmd(opts),
		newCumulativeCmd(opts),
		newProofCmd(opts),
		newSyncCmd(opts),
	)
	return root
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
