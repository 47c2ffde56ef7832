package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/farid-asgarli/ws-cloud/internal/logger"
	"github.com/farid-asgarli/ws-cloud/pkg/config"
	"github.com/farid-asgarli/ws-cloud/pkg/drive"
	"github.com/farid-asgarli/ws-cloud/pkg/gc"
	"github.com/farid-asgarli/ws-cloud/pkg/transfer"
)

func main() {
	configPath := flag.String("config", "", "Path to config file (default: "+config.GetDefaultConfigPath()+")")
	logLevel := flag.String("log-level", "", "Log level override (DEBUG, INFO, WARN, ERROR)")
	gcNow := flag.Bool("gc-now", false, "Run orphan blob collection at startup")
	initConfig := flag.Bool("init", false, "Write a sample config file and exit")
	force := flag.Bool("force", false, "Overwrite an existing config file with -init")
	flag.Parse()

	if *initConfig {
		if err := config.InitConfig(*configPath, *force); err != nil {
			log.Fatalf("Failed to write sample config: %v", err)
		}
		path := *configPath
		if path == "" {
			path = config.GetDefaultConfigPath()
		}
		fmt.Printf("Sample configuration written to %s\n", path)
		return
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// CLI flag overrides the configured level
	if *logLevel != "" {
		cfg.Logging.Level = *logLevel
	}
	logger.SetLevel(cfg.Logging.Level)
	logger.SetFormat(cfg.Logging.Format)
	if err := logger.SetOutput(cfg.Logging.Output); err != nil {
		log.Fatalf("Failed to configure log output: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	fmt.Println("WS Cloud - Virtual File Store")
	logger.Info("Log level set to: %s", cfg.Logging.Level)

	// Stores
	metadataStore, err := config.CreateMetadataStore(ctx, &cfg.Metadata)
	if err != nil {
		log.Fatalf("Failed to create metadata store: %v", err)
	}
	defer func() {
		if err := metadataStore.Close(); err != nil {
			logger.Error("Failed to close metadata store: %v", err)
		}
	}()
	logger.Info("Metadata store initialized: type=%s", cfg.Metadata.Type)

	contentStore, err := config.CreateContentStore(ctx, &cfg.Content)
	if err != nil {
		log.Fatalf("Failed to create content store: %v", err)
	}
	defer func() {
		if err := contentStore.Close(); err != nil {
			logger.Error("Failed to close content store: %v", err)
		}
	}()
	logger.Info("Content store initialized: type=%s", cfg.Content.Type)

	staging, err := config.CreateStagingArea(ctx, &cfg.Server)
	if err != nil {
		log.Fatalf("Failed to create staging area: %v", err)
	}
	logger.Info("Staging area: %s", cfg.Server.StagingPath)

	// Transfer session managers
	uploads := transfer.NewUploadManager(transfer.UploadManagerConfig{
		Staging:          staging,
		Durable:          contentStore,
		Metadata:         metadataStore,
		DefaultChunkSize: cfg.Transfer.ChunkSize,
		IdleTimeout:      cfg.Transfer.IdleTimeout,
	})
	downloads := transfer.NewDownloadManager(transfer.DownloadManagerConfig{
		Durable:          contentStore,
		Metadata:         metadataStore,
		DefaultChunkSize: cfg.Transfer.ChunkSize,
		IdleTimeout:      cfg.Transfer.IdleTimeout,
	})

	service := drive.NewService(drive.ServiceConfig{
		Metadata:  metadataStore,
		Durable:   contentStore,
		Uploads:   uploads,
		Downloads: downloads,
	})

	if err := service.Healthcheck(ctx); err != nil {
		log.Fatalf("Healthcheck failed: %v", err)
	}

	// Background workers
	reaper := transfer.NewReaper(uploads, downloads, cfg.Transfer.ReaperConfig())
	reaper.Start()

	collector, err := gc.NewCollector(metadataStore, contentStore, cfg.GC.CollectorConfig())
	if err != nil {
		log.Fatalf("Failed to create orphan collector: %v", err)
	}
	collector.Start()

	if *gcNow {
		stats, err := collector.RunNow(ctx)
		if err != nil {
			logger.Error("Startup orphan collection failed: %v", err)
		} else {
			logger.Info("Startup orphan collection: %s", stats.Summary())
		}
	}

	logger.Info("Server configuration:")
	logger.Info("  Chunk size: %d bytes", cfg.Transfer.ChunkSize)
	logger.Info("  Session idle timeout: %v", cfg.Transfer.IdleTimeout)
	logger.Info("  Shutdown timeout: %v", cfg.Server.ShutdownTimeout)

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	logger.Info("WS Cloud is running. Press Ctrl+C to stop.")
	<-sigChan

	logger.Info("Shutdown signal received, initiating graceful shutdown...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := collector.Stop(shutdownCtx); err != nil {
		logger.Error("Orphan collector shutdown error: %v", err)
	}
	if err := reaper.Stop(shutdownCtx); err != nil {
		logger.Error("Session reaper shutdown error: %v", err)
	}

	logger.Info("Server stopped gracefully")
}
