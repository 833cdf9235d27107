package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/arlo/knowbase/internal/chunker"
	"github.com/arlo/knowbase/internal/config"
	"github.com/arlo/knowbase/internal/embedding"
	"github.com/arlo/knowbase/internal/logger"
	"github.com/arlo/knowbase/internal/repository"
	"github.com/arlo/knowbase/internal/service"
	"github.com/arlo/knowbase/internal/storage"
)

func main() {
	cfg, err := config.Load(os.Getenv("CONFIG_PATH"))
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	appLog := logger.NewDefault()
	logger.SetDefaultLogger(appLog)
	defer logger.Sync()

	db, err := repository.InitDB(&cfg.Database)
	if err != nil {
		logger.Fatal("Failed to initialize database: %v", err)
	}

	jobRepo := repository.NewJobRepository(db, &repository.JobQueueConfig{
		MaxAttempts: cfg.Queue.MaxAttempts,
		BackoffBase: cfg.Queue.BackoffBase,
		BackoffCap:  cfg.Queue.BackoffCap,
	})
	docRepo := repository.NewDocumentRepository(db)

	qdrantRepo, err := repository.NewQdrantRepository(&repository.QdrantConnectionConfig{
		Host:            cfg.Qdrant.Host,
		Port:            cfg.Qdrant.Port,
		Collection:      cfg.Qdrant.Collection,
		APIKey:          cfg.Qdrant.APIKey,
		UseTLS:          cfg.Qdrant.UseTLS,
		VectorDimension: cfg.Embedding.Dimensions,
	})
	if err != nil {
		logger.Fatal("Failed to initialize Qdrant repository: %v", err)
	}
	defer qdrantRepo.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := qdrantRepo.EnsureCollection(ctx); err != nil {
		logger.Fatal("Failed to ensure Qdrant collection: %v", err)
	}

	objectStorage, err := storage.NewStorage(&storage.S3Config{
		Type:      storage.StorageType(cfg.Storage.Type),
		Endpoint:  cfg.Storage.Endpoint,
		AccessKey: cfg.Storage.AccessKey,
		SecretKey: cfg.Storage.SecretKey,
		UseSSL:    cfg.Storage.UseSSL,
		Bucket:    cfg.Storage.Bucket,
		Region:    cfg.Storage.Region,
		PublicURL: cfg.Storage.PublicURL,
	})
	if err != nil {
		logger.Fatal("Failed to initialize storage: %v", err)
	}

	embedder, err := embedding.New(&cfg.Embedding)
	if err != nil {
		logger.Fatal("Failed to initialize embedding backend: %v", err)
	}

	// Surface a dead or misconfigured backend at startup instead of on the
	// first job. Reachability can still change later; jobs handle that.
	if err := embedder.Ping(ctx); err != nil {
		logger.Warn("Embedding backend not ready: %v", err)
	}

	ingestService := service.NewIngestService(jobRepo, docRepo, qdrantRepo, objectStorage, embedder, chunker.Options{
		ChunkSize:          cfg.Chunking.ChunkSize,
		Overlap:            cfg.Chunking.Overlap,
		PreserveParagraphs: cfg.Chunking.PreserveParagraphs,
		MinChunkSize:       cfg.Chunking.MinChunkSize,
	})

	worker := service.NewWorker(jobRepo, ingestService, service.WorkerOptions{
		PollInterval:    cfg.Worker.PollInterval,
		JobTimeout:      cfg.Worker.JobTimeout,
		Staleness:       cfg.Worker.Staleness,
		ReapInterval:    cfg.Worker.ReapInterval,
		CleanupInterval: cfg.Worker.CleanupInterval,
		Retention:       cfg.Queue.Retention,
	})

	if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Fatal("Worker stopped: %v", err)
	}

	logger.Info("Worker exited")
}
