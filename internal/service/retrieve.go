package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/arlo/knowbase/internal/domain"
	"github.com/arlo/knowbase/internal/embedding"
	"github.com/arlo/knowbase/internal/logger"
)

// ErrMissingCollection rejects retrieval requests without a collection scope.
var ErrMissingCollection = errors.New("collection id is required")

// RetrieveOptions tune retrieval behavior.
type RetrieveOptions struct {
	TopK                int
	SimilarityThreshold float32
	Timeout             time.Duration
}

// RetrieveResult is the outcome of one retrieval request. Matches may be
// empty; Context is then the empty string and the caller proceeds without
// grounding.
type RetrieveResult struct {
	Query   string                   `json:"query"`
	Context string                   `json:"context"`
	Matches []domain.SimilarityMatch `json:"matches"`
}

// Retriever answers similarity queries against an ingested collection.
// Retrieval augments answers; it must not break them. Every backend
// failure past request validation degrades to an empty result instead of
// an error, so the caller can always fall through to an ungrounded answer.
type Retriever struct {
	embedder embedding.Embedder
	vectors  VectorStore
	docs     DocumentStore
	opts     RetrieveOptions
}

// NewRetriever creates a retrieval orchestrator.
func NewRetriever(embedder embedding.Embedder, vectors VectorStore, docs DocumentStore, opts RetrieveOptions) *Retriever {
	if opts.TopK <= 0 {
		opts.TopK = 5
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	return &Retriever{embedder: embedder, vectors: vectors, docs: docs, opts: opts}
}

// Retrieve embeds the query and returns the most similar chunks from the
// collection, rendered into a context block for prompt assembly.
func (r *Retriever) Retrieve(ctx context.Context, collectionID, query string, topK int) (*RetrieveResult, error) {
	if collectionID == "" {
		return nil, ErrMissingCollection
	}

	result := &RetrieveResult{Query: query, Matches: []domain.SimilarityMatch{}}
	if strings.TrimSpace(query) == "" {
		return result, nil
	}

	ctx, cancel := context.WithTimeout(ctx, r.opts.Timeout)
	defer cancel()
	ctx = logger.SetCollectionID(ctx, collectionID)

	if topK <= 0 {
		topK = r.opts.TopK
	}

	if err := r.embedder.Ping(ctx); err != nil {
		logger.CtxWarn(ctx, "embedding backend unavailable, retrieval degraded: %v", err)
		return result, nil
	}

	vector, err := r.embedder.Embed(ctx, query)
	if err != nil {
		logger.CtxWarn(ctx, "query embedding failed, retrieval degraded: %v", err)
		return result, nil
	}

	matches, err := r.vectors.Search(ctx, collectionID, vector, topK, r.opts.SimilarityThreshold)
	if err != nil {
		logger.CtxWarn(ctx, "similarity search failed, retrieval degraded: %v", err)
		return result, nil
	}

	result.Matches = matches
	result.Context = renderContext(matches)
	return result, nil
}

// renderContext formats matches into a numbered context block, best match
// first, for inclusion in a model prompt.
func renderContext(matches []domain.SimilarityMatch) string {
	if len(matches) == 0 {
		return ""
	}
	parts := make([]string, len(matches))
	for i, m := range matches {
		parts[i] = fmt.Sprintf("[%d] (%.1f%% match)\n%s", i+1, m.Similarity*100, m.ChunkText)
	}
	return strings.Join(parts, "\n\n---\n\n")
}

// CollectionStats reports how much of a collection is searchable.
func (r *Retriever) CollectionStats(ctx context.Context, collectionID string) (*domain.CollectionStats, error) {
	if collectionID == "" {
		return nil, ErrMissingCollection
	}

	chunks, err := r.vectors.CountChunks(ctx, collectionID)
	if err != nil {
		return nil, err
	}
	docs, err := r.docs.CountProcessed(ctx, collectionID)
	if err != nil {
		return nil, err
	}

	stats := &domain.CollectionStats{TotalChunks: chunks, TotalDocuments: docs}
	if docs > 0 {
		stats.AvgChunksPerDoc = float64(chunks) / float64(docs)
	}
	return stats, nil
}
