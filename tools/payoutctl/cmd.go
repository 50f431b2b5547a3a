// Copyright (c) 2024 IoTeX Foundation
// This source code is provided 'as is' and no warranties are given as to title or non-infringement, merchantability
// or fitness for purpose and, to the extent permitted by law, all liability for your use of the code is disclaimed.
// This source code is governed by Apache License 2.0 that can be found in the LICENSE file.

package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/iotexproject/iotex-address/address"
	"github.com/pkg/errors"
	"github.com/rodaine/table"
	"github.com/spf13/cobra"

	"github.com/iotexproject/rlay-client/api"
	"github.com/iotexproject/rlay-client/merkle"
	"github.com/iotexproject/rlay-client/payout"
	"github.com/iotexproject/rlay-client/submitter"
	"github.com/iotexproject/rlay-client/syncer"
)

// errInvalidProof indicates a proof served by the client does not lead to its root
var errInvalidProof = errors.New("payout proof does not match the root")

func parseEpoch(s string) (uint64, error) {
	index, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, errors.Wrapf(err, "invalid epoch %q", s)
	}
	return index, nil
}

// parseAccount accepts a 0x hex or an io1 address
func parseAccount(s string) (common.Address, error) {
	if common.IsHexAddress(s) {
		return common.HexToAddress(s), nil
	}
	addr, err := address.FromString(s)
	if err != nil {
		return common.Address{}, errors.Wrapf(err, "invalid address %q", s)
	}
	return common.BytesToAddress(addr.Bytes()), nil
}

func printJSON(w io.Writer, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}

func printPayouts(w io.Writer, payouts []payout.Payout) {
	tb := table.New("Address", "IoAddress", "Amount").WithWriter(w)
	for _, p := range payouts {
		tb.AddRow(p.Address.Hex(), p.IoAddress(), p.Amount.String())
	}
	tb.Print()
}

func newStatusCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "status EPOCH",
		Short: "Show whether an epoch is closed and the state of its root",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			index, err := parseEpoch(args[0])
			if err != nil {
				return err
			}
			var s submitter.EpochStatus
			if err := opts.client().call(cmd.Context(), "rlay_getEpochStatus", &s, index); err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			if opts.json {
				return printJSON(w, &s)
			}
			fmt.Fprintf(w, "Epoch: %d [%d, %d]\n", s.Epoch.Index, s.Epoch.Start, s.Epoch.End)
			fmt.Fprintf(w, "Synced height: %d\n", s.SyncedHeight)
			fmt.Fprintf(w, "Status: %s\n", s.Status)
			if s.Root != nil {
				fmt.Fprintf(w, "Root: %s\n", s.Root.Hex())
			}
			if s.TxHash != nil {
				fmt.Fprintf(w, "Tx: %s\n", s.TxHash.Hex())
			}
			return nil
		},
	}
}

func newRecordCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "record EPOCH",
		Short: "Show the payout set and submission state of an epoch",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			index, err := parseEpoch(args[0])
			if err != nil {
				return err
			}
			var r submitter.Record
			if err := opts.client().call(cmd.Context(), "rlay_getPayouts", &r, index); err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			if opts.json {
				return printJSON(w, &r)
			}
			fmt.Fprintf(w, "Epoch: %d [%d, %d]\n", r.Epoch, r.Start, r.End)
			fmt.Fprintf(w, "Budget: %s\n", r.Budget)
			fmt.Fprintf(w, "Root: %s\n", r.Root.Hex())
			fmt.Fprintf(w, "Status: %s\n", r.Status)
			if r.TxHash != nil {
				fmt.Fprintf(w, "Tx: %s\n", r.TxHash.Hex())
			}
			fmt.Fprintf(w, "Total: %d\n", len(r.Payouts))
			printPayouts(w, r.Payouts)
			return nil
		},
	}
}

func newCumulativeCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "cumulative EPOCH [ADDRESS]",
		Short: "Show the payouts summed over every final epoch up to EPOCH",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			index, err := parseEpoch(args[0])
			if err != nil {
				return err
			}
			params := []interface{}{index}
			if len(args) == 2 {
				if _, err := parseAccount(args[1]); err != nil {
					return err
				}
				params = append(params, args[1])
			}
			var sums []payout.Payout
			if err := opts.client().call(cmd.Context(), "rlay_getCumulativePayouts", &sums, params...); err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			if opts.json {
				return printJSON(w, sums)
			}
			fmt.Fprintf(w, "Total amount: %s\n", payout.Total(sums))
			printPayouts(w, sums)
			return nil
		},
	}
}

func newProofCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "proof EPOCH ADDRESS",
		Short: "Fetch, verify and format the redeem call of a payout",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			index, err := parseEpoch(args[0])
			if err != nil {
				return err
			}
			account, err := parseAccount(args[1])
			if err != nil {
				return err
			}
			var p api.ProofInfo
			if err := opts.client().call(cmd.Context(), "rlay_getPayoutProof", &p, index, account.Hex()); err != nil {
				return err
			}
			if p.Epoch != index || p.Payout.Address != account {
				return errors.Wrapf(errInvalidProof, "proof of %s in epoch %d returned", p.Payout.Address.Hex(), p.Epoch)
			}
			if p.Payout.Amount == nil || !merkle.VerifyPayout(account, p.Payout.Amount, p.Proof, p.Root) {
				return errors.Wrapf(errInvalidProof, "root %s", p.Root.Hex())
			}
			w := cmd.OutOrStdout()
			if opts.json {
				return printJSON(w, &p)
			}
			fmt.Fprintf(w, "Epoch: %d\n", p.Epoch)
			fmt.Fprintf(w, "Root: %s\n", p.Root.Hex())
			fmt.Fprintf(w, "Amount: %s\n", p.Payout.Amount)
			fmt.Fprintln(w, "Proof: verified")
			fmt.Fprintln(w, payout.FormatRedeem(p.Epoch, p.Proof, p.Payout))
			return nil
		},
	}
}

func newSyncCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Show the synchronization state of every backend",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var status []syncer.Status
			if err := opts.client().call(cmd.Context(), "rlay_syncStatus", &status); err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			if opts.json {
				return printJSON(w, status)
			}
			tb := table.New("Backend", "State", "Height", "LogIndex", "Error").WithWriter(w)
			for _, s := range status {
				var height, logIndex string
				if s.Checkpoint != nil {
					height = strconv.FormatUint(s.Checkpoint.Height, 10)
					logIndex = strconv.FormatUint(s.Checkpoint.LogIndex, 10)
				}
				tb.AddRow(s.Backend, s.State, height, logIndex, s.Error)
			}
			tb.Print()
			return nil
		},
	}
}
