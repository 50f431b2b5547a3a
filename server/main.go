// Copyright (c) 2024 IoTeX Foundation
// This source code is provided 'as is' and no warranties are given as to title or non-infringement, merchantability
// or fitness for purpose and, to the extent permitted by law, all liability for your use of the code is disclaimed.
// This source code is governed by Apache License 2.0 that can be found in the LICENSE file.

// Usage:
//   make build
//   ./bin/server -config-path=./config.yaml -config-path=./secrets.yaml
//

package main

import (
	"context"
	"flag"
	"fmt"
	glog "log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	_ "go.uber.org/automaxprocs"
	"go.uber.org/zap"

	"github.com/iotexproject/rlay-client/config"
	"github.com/iotexproject/rlay-client/pkg/log"
	"github.com/iotexproject/rlay-client/pkg/probe"
	"github.com/iotexproject/rlay-client/server/itx"
)

// configPaths are layered in order, later files override earlier ones
type configPaths []string

func (p *configPaths) String() string { return strings.Join(*p, ",") }

func (p *configPaths) Set(v string) error {
	*p = append(*p, v)
	return nil
}

var _configPaths configPaths

func init() {
	flag.Var(&_configPaths, "config-path", "Config path, may be repeated")
	flag.Usage = func() {
		_, _ = fmt.Fprintf(os.Stderr,
			"usage: server -config-path=[string]\n")
		flag.PrintDefaults()
		os.Exit(2)
	}
	flag.Parse()
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.New(_configPaths)
	if err != nil {
		glog.Fatalln("Failed to new config.", zap.Error(err))
	}
	initLogger(cfg)

	svr, err := itx.NewServer(ctx, cfg)
	if err != nil {
		log.L().Fatal("Failed to create server.", zap.Error(err))
	}

	var probeSvr *probe.Server
	if cfg.System.ProbePort > 0 {
		probeSvr = probe.New(cfg.System.ProbePort, probe.WithStatus(func() interface{} {
			return svr.SyncService().Status()
		}))
		if err := probeSvr.Start(ctx); err != nil {
			log.L().Fatal("Failed to start probe server.", zap.Error(err))
		}
		defer func() {
			if err := probeSvr.Stop(context.Background()); err != nil {
				log.L().Panic("Failed to stop probe server.", zap.Error(err))
			}
		}()
	}

	log.L().Info("rlay client starting",
		zap.Strings("configPaths", _configPaths),
		zap.Strings("ledger", cfg.Chain.URLs),
		zap.String("defaultBackend", cfg.DefaultBackend),
		zap.Bool("payout", cfg.Payout.Enabled),
		zap.Bool("submit", cfg.Payout.Enabled && cfg.Payout.Submit),
	)
	itx.StartServer(ctx, svr, probeSvr, cfg)
}

func initLogger(cfg config.Config) {
	if err := log.InitLoggers(cfg.Log, cfg.SubLogs); err != nil {
		glog.Println("Cannot config global logger, use default one: ", err)
	}
}
