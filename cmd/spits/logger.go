package main

import (
	"io"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/wippyai/spits/config"
	"github.com/wippyai/spits/examples/mandel"
	"github.com/wippyai/spits/jobbinary"
	"github.com/wippyai/spits/native"
	"github.com/wippyai/spits/runner"
	"github.com/wippyai/spits/wasm"
)

// newLogger logs to console and, when a file is configured, to a rotating
// JSON file as well. The returned closer flushes and closes the file.
func newLogger(cfg config.Logging, console io.Writer) (*zap.Logger, func() error, error) {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return nil, nil, err
	}

	encCfg := zap.NewProductionEncoderConfig()
	if cfg.Development {
		encCfg = zap.NewDevelopmentEncoderConfig()
	}
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	cores := []zapcore.Core{
		zapcore.NewCore(zapcore.NewConsoleEncoder(encCfg), zapcore.AddSync(console), level),
	}

	closeFile := func() error { return nil }
	if cfg.File != "" {
		file := &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
		}
		cores = append(cores, zapcore.NewCore(zapcore.NewJSONEncoder(encCfg), zapcore.AddSync(file), level))
		closeFile = file.Close
	}

	log := zap.New(zapcore.NewTee(cores...))
	if cfg.Development {
		log = log.WithOptions(zap.AddCaller(), zap.Development())
	}
	return log, func() error {
		_ = log.Sync()
		return closeFile()
	}, nil
}

// installLogger hands log to every library package.
func installLogger(log *zap.Logger) {
	jobbinary.SetLogger(log.Named("jobbinary"))
	wasm.SetLogger(log.Named("wasm"))
	native.SetLogger(log.Named("native"))
	runner.SetLogger(log.Named("runner"))
	mandel.SetLogger(log.Named("mandel"))
}
