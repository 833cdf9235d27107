package service

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/arlo/knowbase/internal/domain"
)

// Test doubles shared by the service tests. They record calls so the tests
// can assert on pipeline ordering and settlement without a database or any
// network backend.

type enqueuedJob struct {
	jobType  domain.JobType
	payload  domain.JSONMap
	priority int
	ownerID  string
}

type failRecord struct {
	msg   string
	retry bool
}

type fakeQueue struct {
	mu        sync.Mutex
	pending   []*domain.Job
	enqueued  []enqueuedJob
	completed map[string]domain.JSONMap
	failed    map[string]failRecord
	claimErr  error
}

func newFakeQueue(jobs ...*domain.Job) *fakeQueue {
	return &fakeQueue{
		pending:   jobs,
		completed: make(map[string]domain.JSONMap),
		failed:    make(map[string]failRecord),
	}
}

func (q *fakeQueue) Enqueue(_ context.Context, jobType domain.JobType, payload domain.JSONMap, priority int, ownerID string) (string, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.enqueued = append(q.enqueued, enqueuedJob{jobType, payload, priority, ownerID})
	return fmt.Sprintf("job-%d", len(q.enqueued)), nil
}

func (q *fakeQueue) ClaimNext(_ context.Context) (*domain.Job, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.claimErr != nil {
		return nil, q.claimErr
	}
	if len(q.pending) == 0 {
		return nil, nil
	}
	job := q.pending[0]
	q.pending = q.pending[1:]
	return job, nil
}

func (q *fakeQueue) Complete(_ context.Context, jobID string, result domain.JSONMap) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.completed[jobID] = result
	return nil
}

func (q *fakeQueue) Fail(_ context.Context, jobID string, errMsg string, retry bool) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.failed[jobID] = failRecord{errMsg, retry}
	return nil
}

func (q *fakeQueue) ReapStale(context.Context, time.Duration) (int, error) { return 0, nil }
func (q *fakeQueue) Cleanup(context.Context, time.Time) (int64, error)     { return 0, nil }

type fakeDocStore struct {
	mu        sync.Mutex
	docs      map[string]*domain.SourceDocument
	statuses  map[string]domain.DocumentStatus
	errors    map[string]string
	chunkSet  map[string]int
	processed int64
}

func newFakeDocStore(docs ...*domain.SourceDocument) *fakeDocStore {
	s := &fakeDocStore{
		docs:     make(map[string]*domain.SourceDocument),
		statuses: make(map[string]domain.DocumentStatus),
		errors:   make(map[string]string),
		chunkSet: make(map[string]int),
	}
	for _, d := range docs {
		s.docs[d.ID] = d
	}
	return s
}

func (s *fakeDocStore) GetByID(_ context.Context, id string) (*domain.SourceDocument, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := s.docs[id]
	if !ok {
		return nil, fmt.Errorf("document %s not found", id)
	}
	return doc, nil
}

func (s *fakeDocStore) ListByCollection(_ context.Context, collectionID string) ([]domain.SourceDocument, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.SourceDocument
	for _, d := range s.docs {
		if d.CollectionID == collectionID {
			out = append(out, *d)
		}
	}
	return out, nil
}

func (s *fakeDocStore) SetProcessing(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.statuses[id] = domain.DocumentStatusProcessing
	return nil
}

func (s *fakeDocStore) SetProcessed(_ context.Context, id string, _, _, chunkCount int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.statuses[id] = domain.DocumentStatusProcessed
	s.chunkSet[id] = chunkCount
	return nil
}

func (s *fakeDocStore) SetFailed(_ context.Context, id string, errMsg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.statuses[id] = domain.DocumentStatusFailed
	s.errors[id] = errMsg
	return nil
}

func (s *fakeDocStore) CountProcessed(context.Context, string) (int64, error) {
	return s.processed, nil
}

func (s *fakeDocStore) status(id string) domain.DocumentStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.statuses[id]
}

type fakeVectorStore struct {
	mu          sync.Mutex
	ops         []string
	stored      map[string][]domain.Chunk
	storeErr    error
	matches     []domain.SimilarityMatch
	searchErr   error
	chunkCount  int64
	searchCalls int
}

func newFakeVectorStore() *fakeVectorStore {
	return &fakeVectorStore{stored: make(map[string][]domain.Chunk)}
}

func (s *fakeVectorStore) StoreBatch(_ context.Context, _, documentID string, chunks []domain.Chunk, vectors [][]float32) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.storeErr != nil {
		return 0, s.storeErr
	}
	if len(chunks) != len(vectors) {
		return 0, fmt.Errorf("%w: %d chunks, %d vectors", domain.ErrAlignment, len(chunks), len(vectors))
	}
	s.ops = append(s.ops, "store:"+documentID)
	s.stored[documentID] = chunks
	return len(chunks), nil
}

func (s *fakeVectorStore) Search(_ context.Context, _ string, _ []float32, topK int, _ float32) ([]domain.SimilarityMatch, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.searchCalls++
	if s.searchErr != nil {
		return nil, s.searchErr
	}
	if len(s.matches) > topK {
		return s.matches[:topK], nil
	}
	return s.matches, nil
}

func (s *fakeVectorStore) DeleteByDocument(_ context.Context, documentID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ops = append(s.ops, "delete:"+documentID)
	delete(s.stored, documentID)
	return nil
}

func (s *fakeVectorStore) DeleteByCollection(_ context.Context, collectionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ops = append(s.ops, "delete-collection:"+collectionID)
	return nil
}

func (s *fakeVectorStore) CountChunks(context.Context, string) (int64, error) {
	return s.chunkCount, nil
}

type fakeEmbedder struct {
	pingErr  error
	embedErr error
	batches  int
}

func (e *fakeEmbedder) Embed(_ context.Context, _ string) ([]float32, error) {
	if e.embedErr != nil {
		return nil, e.embedErr
	}
	return []float32{1, 0, 0}, nil
}

func (e *fakeEmbedder) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	if e.embedErr != nil {
		return nil, e.embedErr
	}
	e.batches++
	vectors := make([][]float32, len(texts))
	for i := range vectors {
		vectors[i] = []float32{1, 0, 0}
	}
	return vectors, nil
}

func (e *fakeEmbedder) Model() string             { return "fake-model" }
func (e *fakeEmbedder) Dimension() int            { return 3 }
func (e *fakeEmbedder) Ping(context.Context) error { return e.pingErr }

type fakeStorage struct {
	objects map[string][]byte
}

func (s *fakeStorage) Download(_ context.Context, key string) (io.ReadCloser, error) {
	data, ok := s.objects[key]
	if !ok {
		return nil, fmt.Errorf("object %s does not exist", key)
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (s *fakeStorage) Exists(_ context.Context, key string) (bool, error) {
	_, ok := s.objects[key]
	return ok, nil
}

func (s *fakeStorage) GetURL(key string) string { return "https://files.test/" + key }

func (s *fakeStorage) Delete(_ context.Context, key string) error {
	delete(s.objects, key)
	return nil
}
