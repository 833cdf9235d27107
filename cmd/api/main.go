package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/arlo/knowbase/internal/api"
	"github.com/arlo/knowbase/internal/api/middleware"
	"github.com/arlo/knowbase/internal/chunker"
	"github.com/arlo/knowbase/internal/config"
	"github.com/arlo/knowbase/internal/embedding"
	"github.com/arlo/knowbase/internal/logger"
	"github.com/arlo/knowbase/internal/repository"
	"github.com/arlo/knowbase/internal/service"
	"github.com/arlo/knowbase/internal/storage"
)

func main() {
	// Support CONFIG_PATH environment variable for production deployments
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

	ctx := context.Background()
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

	ingestService := service.NewIngestService(jobRepo, docRepo, qdrantRepo, objectStorage, embedder, chunker.Options{
		ChunkSize:          cfg.Chunking.ChunkSize,
		Overlap:            cfg.Chunking.Overlap,
		PreserveParagraphs: cfg.Chunking.PreserveParagraphs,
		MinChunkSize:       cfg.Chunking.MinChunkSize,
	})
	retriever := service.NewRetriever(embedder, qdrantRepo, docRepo, service.RetrieveOptions{
		TopK:                cfg.Retrieve.TopK,
		SimilarityThreshold: cfg.Retrieve.SimilarityThreshold,
		Timeout:             cfg.Retrieve.Timeout,
	})

	router := api.SetupRouter(api.RouterDeps{
		Jobs:      jobRepo,
		Documents: docRepo,
		Ingest:    ingestService,
		Retriever: retriever,
		Embedder:  embedder,
		CORS: middleware.CORSConfig{
			AllowedOrigins:  cfg.Server.CORS.AllowedOrigins,
			AllowAllOrigins: cfg.Server.CORS.AllowAllOrigins,
		},
		Mode: cfg.Server.Mode,
	})

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: router,
	}

	go func() {
		logger.Info("Starting API server on port %d (mode=%s, embedding=%s)",
			cfg.Server.Port, cfg.Server.Mode, cfg.Embedding.Mode)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed to start server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Fatal("Server forced to shutdown: %v", err)
	}

	logger.Info("Server exited")
}
