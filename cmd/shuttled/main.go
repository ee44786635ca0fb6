package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"shuttle/internal/config"
	"shuttle/internal/daemon"
	"shuttle/internal/ledger"
	"shuttle/internal/logging"
	"shuttle/internal/manifest"
	"shuttle/internal/observer"
	"shuttle/internal/orchestrator"
	"shuttle/internal/records"
	"shuttle/internal/token"
	"shuttle/internal/uploader"
)

// tokenEnvVar supplies the initial upload authorization token when the
// transport is not emulated.
const tokenEnvVar = "SHUTTLE_UPLOAD_TOKEN"

func main() {
	configFlag := flag.String("config", "", "configuration file path")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, _, _, err := config.Load(*configFlag)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	if err := cfg.EnsureDirectories(); err != nil {
		log.Fatalf("prepare directories: %v", err)
	}

	logger, err := logging.New(logging.Options{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	})
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}

	store, err := records.Open(cfg)
	if err != nil {
		logger.Error("open record store", logging.Error(err))
		os.Exit(1)
	}
	defer store.Close()

	if imported, err := store.ImportLegacy(ctx, cfg.LegacyRecordPath()); err != nil {
		logger.Warn("legacy record import failed", logging.Error(err))
	} else if imported > 0 {
		logger.Info("legacy records imported", logging.Int("count", imported))
	}

	m, err := manifest.Load(cfg.Collection.Dir, cfg.ManifestPath())
	if err != nil {
		logger.Error("load manifest", logging.Error(err))
		os.Exit(1)
	}

	uploaded, err := store.UploadedIDs(ctx)
	if err != nil {
		logger.Error("load upload records", logging.Error(err))
		os.Exit(1)
	}
	ld := ledger.New(m.AssetsData, uploaded, store)
	logger.Info("collection loaded",
		logging.String("name", cfg.Collection.Name),
		logging.Int("assets", len(m.AssetsData)),
		logging.Int("already_uploaded", len(uploaded)))

	registry := observer.NewRegistry(cfg.API.Secret)
	engine := orchestrator.New(cfg, orchestrator.Deps{
		Ledger:    ld,
		Tokens:    tokenSource(cfg),
		Transport: transport(cfg),
		Shaper:    manifest.DefaultShaper{Collection: cfg.Collection},
		Registry:  registry,
		Logger:    logger,
	})

	d, err := daemon.New(cfg, store, engine, registry, logger)
	if err != nil {
		logger.Error("create daemon", logging.Error(err))
		os.Exit(1)
	}
	if err := d.Start(ctx); err != nil {
		logger.Error("start daemon", logging.Error(err))
		os.Exit(1)
	}

	select {
	case <-ctx.Done():
	case <-d.ShutdownRequested():
	}
	logger.Info("shuttled shutting down")
	d.Stop()
}

func tokenSource(cfg *config.Config) *token.Source {
	if value := os.Getenv(tokenEnvVar); value != "" {
		return token.NewSource(token.Token{
			Value:     value,
			IssuedAt:  time.Now(),
			CanExpire: cfg.Token.CanExpire,
			TTL:       cfg.TokenTTL(),
		})
	}
	return token.NewSource(token.Emulation())
}

func transport(cfg *config.Config) uploader.Transport {
	if cfg.Uploader.Emulate {
		return &uploader.Emulator{
			Delay: time.Duration(cfg.Uploader.EmulateDelayMS) * time.Millisecond,
		}
	}
	return uploader.NewHTTPTransport(cfg.Uploader.Endpoint, cfg.UploadRequestTimeout())
}
