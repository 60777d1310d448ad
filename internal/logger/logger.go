// Package logger builds the zap logger used across batchd and wires it
// into a batcher.LogHook so every dispatched batch gets one structured
// log line for free.
package logger

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/FairForge/batchd/internal/batcher"
)

// New builds a zap logger for the given level and format. format is
// either "json" (production default) or "console" (human-friendly,
// used in local development).
func New(level, format string) (*zap.Logger, error) {
	var zapLevel zapcore.Level
	if err := zapLevel.UnmarshalText([]byte(level)); err != nil {
		zapLevel = zapcore.InfoLevel
	}

	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(zapLevel)
	if format == "console" {
		cfg.Encoding = "console"
		cfg.EncoderConfig = zap.NewDevelopmentEncoderConfig()
	}

	return cfg.Build()
}

// BatchHook returns a batcher.LogHook that emits one structured line per
// dispatched batch: its size, processing time, and outcome. Name
// distinguishes the engine instance (e.g. the adapter it feeds) in
// multi-engine processes.
func BatchHook(log *zap.Logger, name string) batcher.LogHook {
	log = log.Named(name)
	return func(ev batcher.BatchEvent) {
		fields := []zap.Field{
			zap.Uint64("task_id", ev.TaskID),
			zap.Int("batch_size", ev.Size),
			zap.Duration("elapsed", ev.Elapsed),
		}
		if ev.Err != nil {
			log.Error("batch failed", append(fields, zap.Error(ev.Err))...)
			return
		}
		log.Info("batch dispatched", fields...)
	}
}
