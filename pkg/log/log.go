// Copyright (c) 2019 IoTeX Foundation
// This is an alpha (internal) release and is not suitable for production. This source code is provided 'as is' and no
// warranties are given as to title or non-infringement, merchantability or fitness for purpose and, to the extent
// permitted by law, all liability for your use of the code is disclaimed. This source code is governed by Apache
// License 2.0 that can be found in the LICENSE file.

package log

import (
	"log"
	"os"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// GlobalConfig defines the global logger configurations.
type GlobalConfig struct {
	Zap                *zap.Config `json:"zap" yaml:"zap"`
	StderrRedirectFile *string     `json:"stderrRedirectFile" yaml:"stderrRedirectFile"`
	RedirectStdLog     bool        `json:"stdLogRedirect" yaml:"stdLogRedirect"`
}

var (
	_globalCfg        GlobalConfig
	_logMu            sync.RWMutex
	_subLoggers       map[string]*zap.Logger
	_globalLoggerName = "global"
)

func init() {
	zapCfg := zap.NewDevelopmentConfig()
	zapCfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	zapCfg.Level.SetLevel(zap.InfoLevel)
	l, err := zapCfg.Build()
	if err != nil {
		log.Println("Failed to init zap global logger, no zap log will be shown till zap is properly initialized: ", err)
		return
	}
	_logMu.Lock()
	_globalCfg.Zap = &zapCfg
	_subLoggers = make(map[string]*zap.Logger)
	_logMu.Unlock()
	zap.ReplaceGlobals(l)
}

// L wraps zap.L().
func L() *zap.Logger { return zap.L() }

// S wraps zap.S().
func S() *zap.SugaredLogger { return zap.S() }

// Logger returns logger of the given name
func Logger(name string) *zap.Logger {
	_logMu.RLock()
	logger, ok := _subLoggers[name]
	_logMu.RUnlock()
	if !ok {
		return L().With(zap.String("logger", name))
	}
	return logger
}

// InitLoggers initializes the global logger and other sub loggers.
func InitLoggers(globalCfg GlobalConfig, subCfgs map[string]GlobalConfig, opts ...zap.Option) error {
	if _, exists := subCfgs[_globalLoggerName]; exists {
		return ErrReservedLoggerName
	}
	for name, cfg := range subCfgs {
		if name == _globalLoggerName {
			continue
		}
		logger, err := buildLogger(cfg, opts...)
		if err != nil {
			return err
		}
		_logMu.Lock()
		_subLoggers[name] = logger.With(zap.String("logger", name))
		_logMu.Unlock()
	}

	logger, err := buildLogger(globalCfg, opts...)
	if err != nil {
		return err
	}
	if globalCfg.StderrRedirectFile != nil {
		stderrF, err := os.OpenFile(*globalCfg.StderrRedirectFile, os.O_WRONLY|os.O_CREATE|os.O_SYNC|os.O_APPEND, 0600)
		if err != nil {
			return err
		}
		if err := redirectStderr(stderrF); err != nil {
			return err
		}
	}
	if globalCfg.RedirectStdLog {
		zap.RedirectStdLog(logger)
	}
	_logMu.Lock()
	_globalCfg = globalCfg
	_logMu.Unlock()
	zap.ReplaceGlobals(logger)
	return nil
}

func buildLogger(cfg GlobalConfig, opts ...zap.Option) (*zap.Logger, error) {
	if cfg.Zap == nil {
		zapCfg := zap.NewProductionConfig()
		cfg.Zap = &zapCfg
	} else {
		cfg.Zap.EncoderConfig = zap.NewProductionEncoderConfig()
	}
	return cfg.Zap.Build(opts...)
}
