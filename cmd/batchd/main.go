// cmd/batchd/main.go
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/FairForge/batchd/internal/api"
	"github.com/FairForge/batchd/internal/auth"
	"github.com/FairForge/batchd/internal/batcher"
	"github.com/FairForge/batchd/internal/batcher/adapters/inference"
	"github.com/FairForge/batchd/internal/batcher/adapters/objectstore"
	"github.com/FairForge/batchd/internal/batcher/adapters/sqlbulk"
	"github.com/FairForge/batchd/internal/batcher/adapters/webhook"
	"github.com/FairForge/batchd/internal/config"
	"github.com/FairForge/batchd/internal/drivers"
	"github.com/FairForge/batchd/internal/logger"
	"github.com/FairForge/batchd/internal/ratelimit"
	"go.uber.org/zap"
)

func main() {
	configPath := flag.String("config", "batchd.yaml", "path to batchd's YAML configuration")
	flag.Parse()

	preview, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "batchd: load config: %v\n", err)
		os.Exit(1)
	}
	preview.ApplyDefaults()

	log, err := logger.New(preview.Server.LogLevel, preview.Server.LogFormat)
	if err != nil {
		fmt.Fprintf(os.Stderr, "batchd: build logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	watcher, err := config.NewWatcher(*configPath, log)
	if err != nil {
		log.Fatal("failed to load configuration", zap.Error(err))
	}
	cfg := watcher.Get()

	warnOnFileDescriptorHeadroom(log, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	submitter, closeAdapter, err := buildSubmitter(ctx, cfg, log)
	if err != nil {
		log.Fatal("failed to build adapter", zap.String("kind", cfg.Adapter.Kind), zap.Error(err))
	}
	if closeAdapter != nil {
		defer closeAdapter()
	}

	var auther *auth.Validator
	if cfg.Server.JWTSigningKey != "" {
		auther, err = auth.NewValidator([]byte(cfg.Server.JWTSigningKey), "batchd")
		if err != nil {
			log.Fatal("failed to build auth validator", zap.Error(err))
		}
	} else {
		log.Warn("no jwt_signing_key configured, admission endpoint is unauthenticated")
	}

	limiter := ratelimit.New(cfg.Server.RateLimitRPS, cfg.Server.RateLimitBurst)

	server := api.NewServer(fmt.Sprintf(":%d", cfg.Server.Port), log, submitter, auther, limiter)

	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh

		log.Info("shutting down")
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		_ = server.Shutdown(shutdownCtx)
		_ = watcher.Stop()
		cancel()
	}()

	log.Info("batchd starting",
		zap.Int("port", cfg.Server.Port),
		zap.String("adapter", cfg.Adapter.Kind),
	)
	if err := server.Start(); err != nil {
		log.Fatal("server failed", zap.Error(err))
	}
}

// warnOnFileDescriptorHeadroom logs a warning if the engine's configured
// capacity could plausibly approach the process's open file descriptor
// limit — each in-flight batch may hold open sockets or file handles.
func warnOnFileDescriptorHeadroom(log *zap.Logger, cfg config.Config) {
	limit, err := drivers.OpenFileLimit()
	if err != nil {
		log.Debug("skipping file descriptor headroom check", zap.Error(err))
		return
	}

	projected := cfg.Batcher.MaxQueueSize
	if cfg.Batcher.Concurrency != batcher.Unbounded {
		projected += cfg.Batcher.Concurrency * cfg.Batcher.MaxBatchSize
	}

	if uint64(projected) > limit*8/10 {
		log.Warn("configured queue and concurrency may approach the open file descriptor limit",
			zap.Uint64("fd_limit", limit),
			zap.Int("max_queue_size", cfg.Batcher.MaxQueueSize),
			zap.Int("concurrency", cfg.Batcher.Concurrency),
		)
	}
}

// buildSubmitter constructs the one adapter selected by cfg.Adapter.Kind
// and returns it wrapped as an api.Submitter, along with a cleanup func.
func buildSubmitter(ctx context.Context, cfg config.Config, log *zap.Logger) (api.Submitter, func(), error) {
	batcherCfg := batcher.Config{
		MaxBatchSize: cfg.Batcher.MaxBatchSize,
		MaxQueueTime: cfg.Batcher.MaxQueueTime,
		MaxQueueSize: cfg.Batcher.MaxQueueSize,
		Concurrency:  cfg.Batcher.Concurrency,
	}

	switch cfg.Adapter.Kind {
	case "objectstore":
		return buildObjectStoreSubmitter(ctx, cfg, batcherCfg, log)
	case "sqlbulk":
		return buildSQLBulkSubmitter(cfg, batcherCfg, log)
	case "inference":
		return buildInferenceSubmitter(ctx, cfg, batcherCfg, log)
	case "webhook":
		return buildWebhookSubmitter(cfg, batcherCfg, log)
	default:
		return nil, nil, fmt.Errorf("batchd: unknown adapter kind %q", cfg.Adapter.Kind)
	}
}

func buildObjectStoreSubmitter(ctx context.Context, cfg config.Config, batcherCfg batcher.Config, log *zap.Logger) (api.Submitter, func(), error) {
	adapter, err := objectstore.New(ctx, objectstore.Config{
		Endpoint:         cfg.Adapter.ObjectStore.Endpoint,
		Region:           cfg.Adapter.ObjectStore.Region,
		AccessKeyID:      cfg.Adapter.ObjectStore.AccessKeyID,
		SecretAccessKey:  cfg.Adapter.ObjectStore.SecretAccessKey,
		CompressionLevel: cfg.Adapter.ObjectStore.CompressionLevel,
	})
	if err != nil {
		return nil, nil, err
	}

	proc := batcher.BlockingProcessor[objectstore.Item, objectstore.PutResult]{Fn: adapter.Process}
	eng := mustEngine(batcherCfg, proc, log, "objectstore")
	return api.EngineSubmitter[objectstore.Item, objectstore.PutResult]{Engine: eng}, nil, nil
}

func buildSQLBulkSubmitter(cfg config.Config, batcherCfg batcher.Config, log *zap.Logger) (api.Submitter, func(), error) {
	adapter, err := sqlbulk.New(sqlbulk.Config{
		Host:     cfg.Adapter.SQLBulk.Host,
		Port:     cfg.Adapter.SQLBulk.Port,
		Database: cfg.Adapter.SQLBulk.Database,
		User:     cfg.Adapter.SQLBulk.User,
		Password: cfg.Adapter.SQLBulk.Password,
		SSLMode:  cfg.Adapter.SQLBulk.SSLMode,
	})
	if err != nil {
		return nil, nil, err
	}

	eng := mustEngine(batcherCfg, batcher.BlockingProcessor[sqlbulk.Record, int64]{Fn: adapter.Process}, log, "sqlbulk")
	return api.EngineSubmitter[sqlbulk.Record, int64]{Engine: eng}, func() { _ = adapter.Close() }, nil
}

func buildInferenceSubmitter(ctx context.Context, cfg config.Config, batcherCfg batcher.Config, log *zap.Logger) (api.Submitter, func(), error) {
	model, err := inference.Load(ctx, cfg.Adapter.Inference.ModulePath, cfg.Adapter.Inference.Entrypoint)
	if err != nil {
		return nil, nil, err
	}

	eng := mustEngine(batcherCfg, batcher.BlockingProcessor[inference.Request, inference.Response]{Fn: model.Process}, log, "inference")
	return api.EngineSubmitter[inference.Request, inference.Response]{Engine: eng}, func() { _ = model.Close(context.Background()) }, nil
}

func buildWebhookSubmitter(cfg config.Config, batcherCfg batcher.Config, log *zap.Logger) (api.Submitter, func(), error) {
	adapter := webhook.New(webhook.Config{
		TokenURL:     cfg.Adapter.Webhook.TokenURL,
		ClientID:     cfg.Adapter.Webhook.ClientID,
		ClientSecret: cfg.Adapter.Webhook.ClientSecret,
		Scopes:       cfg.Adapter.Webhook.Scopes,
		CompressBody: cfg.Adapter.Webhook.CompressBody,
	})

	eng := mustEngine(batcherCfg, batcher.AsyncProcessor[webhook.Delivery, webhook.Receipt](adapter.Process), log, "webhook")
	return api.EngineSubmitter[webhook.Delivery, webhook.Receipt]{Engine: eng}, nil, nil
}

func mustEngine[T, S any](cfg batcher.Config, proc batcher.Processor[T, S], log *zap.Logger, name string) *batcher.Engine[T, S] {
	cfg.LogHook = logger.BatchHook(log, name)
	eng, err := batcher.New[T, S](cfg, proc)
	if err != nil {
		log.Fatal("failed to build engine", zap.String("adapter", name), zap.Error(err))
	}
	return eng
}
