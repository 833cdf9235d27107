package service

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/arlo/knowbase/internal/domain"
)

func testMatches() []domain.SimilarityMatch {
	return []domain.SimilarityMatch{
		{ID: "m1", DocumentID: "doc-1", ChunkText: "Most relevant chunk.", ChunkIndex: 0, Similarity: 0.91},
		{ID: "m2", DocumentID: "doc-2", ChunkText: "Second best chunk.", ChunkIndex: 3, Similarity: 0.72},
	}
}

func TestRetrieveRequiresCollection(t *testing.T) {
	r := NewRetriever(&fakeEmbedder{}, newFakeVectorStore(), newFakeDocStore(), RetrieveOptions{})

	_, err := r.Retrieve(context.Background(), "", "what is the refund policy", 0)
	if !errors.Is(err, ErrMissingCollection) {
		t.Fatalf("error = %v, want ErrMissingCollection", err)
	}
}

func TestRetrieveEmptyQuery(t *testing.T) {
	vectors := newFakeVectorStore()
	r := NewRetriever(&fakeEmbedder{}, vectors, newFakeDocStore(), RetrieveOptions{})

	result, err := r.Retrieve(context.Background(), "coll-1", "   ", 0)
	if err != nil {
		t.Fatal(err)
	}
	if result.Context != "" || len(result.Matches) != 0 {
		t.Errorf("empty query produced matches: %+v", result)
	}
	if vectors.searchCalls != 0 {
		t.Error("search ran for an empty query")
	}
}

func TestRetrieveSuccess(t *testing.T) {
	vectors := newFakeVectorStore()
	vectors.matches = testMatches()
	r := NewRetriever(&fakeEmbedder{}, vectors, newFakeDocStore(), RetrieveOptions{TopK: 5, SimilarityThreshold: 0.35})

	result, err := r.Retrieve(context.Background(), "coll-1", "refund policy", 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(result.Matches) != 2 {
		t.Fatalf("got %d matches, want 2", len(result.Matches))
	}

	// Rendered context lists matches best first with rank and score.
	if !strings.HasPrefix(result.Context, "[1] (91.0% match)\nMost relevant chunk.") {
		t.Errorf("context = %q", result.Context)
	}
	if !strings.Contains(result.Context, "\n\n---\n\n[2] (72.0% match)\nSecond best chunk.") {
		t.Errorf("context = %q", result.Context)
	}
}

func TestRetrieveHonorsTopK(t *testing.T) {
	vectors := newFakeVectorStore()
	vectors.matches = testMatches()
	r := NewRetriever(&fakeEmbedder{}, vectors, newFakeDocStore(), RetrieveOptions{TopK: 5})

	result, err := r.Retrieve(context.Background(), "coll-1", "refund policy", 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(result.Matches) != 1 {
		t.Errorf("got %d matches, want 1", len(result.Matches))
	}
}

func TestRetrieveDegradesToEmpty(t *testing.T) {
	tests := []struct {
		name     string
		embedder *fakeEmbedder
		vectors  *fakeVectorStore
	}{
		{
			name:     "backend down",
			embedder: &fakeEmbedder{pingErr: domain.ErrBackendUnavailable},
			vectors:  newFakeVectorStore(),
		},
		{
			name:     "embed failure",
			embedder: &fakeEmbedder{embedErr: domain.ErrBackendUnavailable},
			vectors:  newFakeVectorStore(),
		},
		{
			name:     "search failure",
			embedder: &fakeEmbedder{},
			vectors:  &fakeVectorStore{searchErr: domain.ErrStoreUnavailable},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewRetriever(tt.embedder, tt.vectors, newFakeDocStore(), RetrieveOptions{})

			result, err := r.Retrieve(context.Background(), "coll-1", "refund policy", 0)
			if err != nil {
				t.Fatalf("degraded retrieval must not error, got %v", err)
			}
			if result.Context != "" || len(result.Matches) != 0 {
				t.Errorf("expected empty result, got %+v", result)
			}
		})
	}
}

func TestRetrieveNoMatches(t *testing.T) {
	r := NewRetriever(&fakeEmbedder{}, newFakeVectorStore(), newFakeDocStore(), RetrieveOptions{})

	result, err := r.Retrieve(context.Background(), "coll-1", "something entirely unrelated", 0)
	if err != nil {
		t.Fatal(err)
	}
	if result.Context != "" {
		t.Errorf("context = %q, want empty", result.Context)
	}
}

func TestCollectionStats(t *testing.T) {
	vectors := newFakeVectorStore()
	vectors.chunkCount = 40
	docs := newFakeDocStore()
	docs.processed = 8
	r := NewRetriever(&fakeEmbedder{}, vectors, docs, RetrieveOptions{})

	stats, err := r.CollectionStats(context.Background(), "coll-1")
	if err != nil {
		t.Fatal(err)
	}
	if stats.TotalChunks != 40 || stats.TotalDocuments != 8 {
		t.Errorf("stats = %+v", stats)
	}
	if stats.AvgChunksPerDoc != 5 {
		t.Errorf("avg chunks per doc = %v, want 5", stats.AvgChunksPerDoc)
	}
}
