package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"uebaguard/internal/api"
	"uebaguard/internal/config"
	"uebaguard/internal/detector"
	"uebaguard/internal/ingest"
	"uebaguard/internal/logging"
	"uebaguard/internal/metrics"
	"uebaguard/internal/storage"
	"uebaguard/internal/validate"
)

var version = "dev"

func main() {
	configPath := flag.String("config", "", "path to config file (yaml or json)")
	flag.Parse()

	var mgr *config.Manager
	var err error
	if *configPath != "" {
		mgr, err = config.NewManager(config.ResolvePath(*configPath))
		if err != nil {
			fmt.Fprintf(os.Stderr, "load config: %v\n", err)
			os.Exit(1)
		}
	} else {
		mgr = config.NewStaticManager(config.DefaultConfig())
	}
	cfg := mgr.Get()

	logger := logging.NewLogger(cfg.LogLevel)
	logger.Info("starting uebaguard", "version", version, "storage", cfg.Storage.Driver)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := storage.NewStore(cfg.Storage)
	if err != nil {
		logger.Error("open store", "err", err)
		os.Exit(1)
	}
	defer store.Close()
	if err := store.Init(ctx); err != nil {
		logger.Error("init store", "err", err)
		os.Exit(1)
	}

	validator, err := validate.NewRecordValidator()
	if err != nil {
		logger.Error("build record validator", "err", err)
		os.Exit(1)
	}

	m := metrics.New()
	det := detector.New(mgr, logger, store, m)

	api.Start(ctx, mgr, det, store, validator, m, logger, version)
	ingest.StartKafka(ctx, mgr, det, validator, m, logger)
	if err := ingest.StartNATS(ctx, mgr, det, validator, m, logger); err != nil {
		logger.Error("start nats ingest", "err", err)
		os.Exit(1)
	}

	if mgr.Path() != "" {
		go mgr.Watch(3*time.Second,
			func(next *config.Config) {
				logger.Info("config reloaded", "path", mgr.Path())
			},
			func(err error) {
				logger.Warn("config reload failed", "err", err)
			},
			ctx.Done())
	}

	if interval := cfg.Detection.ScanInterval; interval > 0 {
		go func() {
			ticker := time.NewTicker(interval)
			defer ticker.Stop()
			for {
				select {
				case <-ticker.C:
					if _, err := det.Scan(ctx, 0); err != nil {
						logger.Error("periodic scan failed", "err", err)
					}
				case <-ctx.Done():
					return
				}
			}
		}()
		logger.Info("periodic scan enabled", "interval", interval.String())
	}

	<-ctx.Done()
	logger.Info("shutting down")
}
