// Author: momentics <momentics@gmail.com>

package logger

import (
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// NewZapLogger builds a Logger writing to stderr and/or rotated files under
// cfg.LogDir. Warn and error records can additionally be split into
// <BaseName>-warn.log and <BaseName>-error.log.
func NewZapLogger(cfg Config) (Logger, error) {
	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	var encoder zapcore.Encoder
	if cfg.Format == "json" {
		encoder = zapcore.NewJSONEncoder(encoderCfg)
	} else {
		encoder = zapcore.NewConsoleEncoder(encoderCfg)
	}

	level := zap.NewAtomicLevelAt(cfg.Level.toZapLevel())
	var cores []zapcore.Core

	if cfg.LogDir == "" || cfg.EnableStdout {
		cores = append(cores, zapcore.NewCore(encoder, zapcore.Lock(os.Stderr), level))
	}
	if cfg.LogDir != "" {
		if err := os.MkdirAll(cfg.LogDir, 0o755); err != nil {
			return nil, err
		}
		cores = append(cores, zapcore.NewCore(encoder, zapcore.AddSync(rollingWriter(cfg, "")), level))

		if cfg.EnableWarnFile {
			cores = append(cores, zapcore.NewCore(encoder, zapcore.AddSync(rollingWriter(cfg, "-warn")),
				zap.LevelEnablerFunc(func(l zapcore.Level) bool { return l >= zapcore.WarnLevel })))
		}
		if cfg.EnableErrorFile {
			cores = append(cores, zapcore.NewCore(encoder, zapcore.AddSync(rollingWriter(cfg, "-error")),
				zap.LevelEnablerFunc(func(l zapcore.Level) bool { return l >= zapcore.ErrorLevel })))
		}
	}

	z := zap.New(zapcore.NewTee(cores...), zap.AddCaller(), zap.AddCallerSkip(1))
	return &zapLogger{s: z.Sugar(), level: &level}, nil
}

func rollingWriter(cfg Config, suffix string) *lumberjack.Logger {
	name := cfg.BaseName
	if name == "" {
		name = "reactor-echo"
	}
	return &lumberjack.Logger{
		Filename:   filepath.Join(cfg.LogDir, name+suffix+".log"),
		MaxSize:    cfg.MaxSizeMB,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAgeDays,
		Compress:   cfg.Compress,
	}
}
