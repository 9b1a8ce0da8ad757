package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"scribe/internal/config"
	"scribe/internal/daemon"
	"scribe/internal/logging"
	"scribe/internal/orchestrator"
	"scribe/internal/services/transcriber"
	"scribe/internal/session"
	"scribe/internal/storage"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, _, _, err := config.Load("")
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	logger, err := logging.NewFromConfig(cfg)
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}

	// A broken session database is not fatal; the orchestrator runs from
	// memory and sessions simply do not survive a restart.
	store, err := session.Open(cfg)
	if err != nil {
		logger.Warn("open session store", logging.Error(err))
		store = nil
	}

	client, err := transcriber.New(
		cfg.Provider.BaseURL,
		cfg.Provider.APIKey,
		cfg.Provider.ModelID,
		time.Duration(cfg.Provider.RequestTimeout)*time.Second,
	)
	if err != nil {
		logger.Error("init provider client", logging.Error(err))
		os.Exit(1)
	}

	var stager storage.Stager
	if cfg.StagingEnabled() {
		objectStore, err := storage.New(cfg)
		if err != nil {
			logger.Error("init staging storage", logging.Error(err))
			os.Exit(1)
		}
		if err := objectStore.EnsureBucket(ctx); err != nil {
			logger.Warn("staging bucket check failed", logging.Error(err))
		}
		stager = objectStore
	}

	orch := orchestrator.New(cfg, store, client, stager, logger)

	d, err := daemon.New(cfg, store, orch, logger)
	if err != nil {
		logger.Error("create daemon", logging.Error(err))
		os.Exit(1)
	}
	defer func() { _ = d.Close() }()

	if err := d.Start(ctx); err != nil {
		logger.Error("start daemon", logging.Error(err))
		os.Exit(1)
	}

	<-ctx.Done()
	logger.Info("scribed shutting down")
}
