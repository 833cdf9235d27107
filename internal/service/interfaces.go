// Package service wires the ingestion pipeline, the worker loop and the
// retrieval orchestrator on top of the repositories and backends.
package service

import (
	"context"
	"time"

	"github.com/arlo/knowbase/internal/domain"
)

// Queue is the durable job queue the pipeline runs on.
type Queue interface {
	Enqueue(ctx context.Context, jobType domain.JobType, payload domain.JSONMap, priority int, ownerID string) (string, error)
	ClaimNext(ctx context.Context) (*domain.Job, error)
	Complete(ctx context.Context, jobID string, result domain.JSONMap) error
	Fail(ctx context.Context, jobID string, errMsg string, retry bool) error
	ReapStale(ctx context.Context, staleness time.Duration) (int, error)
	Cleanup(ctx context.Context, olderThan time.Time) (int64, error)
}

// DocumentStore tracks source document metadata and ingestion status.
type DocumentStore interface {
	GetByID(ctx context.Context, id string) (*domain.SourceDocument, error)
	ListByCollection(ctx context.Context, collectionID string) ([]domain.SourceDocument, error)
	SetProcessing(ctx context.Context, id string) error
	SetProcessed(ctx context.Context, id string, pageCount, wordCount, chunkCount int) error
	SetFailed(ctx context.Context, id string, errMsg string) error
	CountProcessed(ctx context.Context, collectionID string) (int64, error)
}

// VectorStore persists chunk embeddings and answers similarity queries.
type VectorStore interface {
	StoreBatch(ctx context.Context, collectionID, documentID string, chunks []domain.Chunk, vectors [][]float32) (int, error)
	Search(ctx context.Context, collectionID string, vector []float32, topK int, threshold float32) ([]domain.SimilarityMatch, error)
	DeleteByDocument(ctx context.Context, documentID string) error
	DeleteByCollection(ctx context.Context, collectionID string) error
	CountChunks(ctx context.Context, collectionID string) (int64, error)
}
