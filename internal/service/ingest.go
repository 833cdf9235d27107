package service

import (
	"context"
	"fmt"
	"time"

	"github.com/arlo/knowbase/internal/chunker"
	"github.com/arlo/knowbase/internal/domain"
	"github.com/arlo/knowbase/internal/embedding"
	"github.com/arlo/knowbase/internal/extractor"
	"github.com/arlo/knowbase/internal/logger"
	"github.com/arlo/knowbase/internal/storage"
)

// IngestService runs the ingestion pipeline for a single document:
// fetch bytes, extract text, chunk, embed, index. Each stage failure is
// reported to the caller; the retry decision belongs to the worker loop.
type IngestService struct {
	queue     Queue
	docs      DocumentStore
	vectors   VectorStore
	store     storage.ObjectStorage
	embedder  embedding.Embedder
	extractor *extractor.Extractor
	chunkOpts chunker.Options
}

// NewIngestService creates the pipeline service.
func NewIngestService(queue Queue, docs DocumentStore, vectors VectorStore, store storage.ObjectStorage, embedder embedding.Embedder, chunkOpts chunker.Options) *IngestService {
	return &IngestService{
		queue:     queue,
		docs:      docs,
		vectors:   vectors,
		store:     store,
		embedder:  embedder,
		extractor: extractor.New(),
		chunkOpts: chunkOpts,
	}
}

// EnqueueDocument registers a document for ingestion and returns the job ID.
func (s *IngestService) EnqueueDocument(ctx context.Context, doc *domain.SourceDocument, priority int, ownerID string) (string, error) {
	payload := domain.IngestFilePayload{
		DocumentID:   doc.ID,
		CollectionID: doc.CollectionID,
		StorageKey:   doc.StorageKey,
		FileName:     doc.Name,
		ContentType:  doc.ContentType,
	}
	return s.queue.Enqueue(ctx, domain.JobTypeIngestFile, payload.ToMap(), priority, ownerID)
}

// EnqueueCollection registers a whole collection for ingestion. The worker
// fans the job out into one child job per document.
func (s *IngestService) EnqueueCollection(ctx context.Context, collectionID string, priority int, ownerID string) (string, error) {
	payload := domain.IngestCollectionPayload{CollectionID: collectionID}
	return s.queue.Enqueue(ctx, domain.JobTypeIngestCollection, payload.ToMap(), priority, ownerID)
}

// IngestFile executes the full pipeline for one document and returns the
// job result on success. On failure the document is marked failed and the
// stage error is returned; previously indexed vectors of the document are
// only dropped once the replacement embeddings exist, so a failed re-ingest
// never leaves the collection without the old version.
func (s *IngestService) IngestFile(ctx context.Context, payload *domain.IngestFilePayload) (domain.JSONMap, error) {
	ctx = logger.SetDocumentID(ctx, payload.DocumentID)
	ctx = logger.SetCollectionID(ctx, payload.CollectionID)
	start := time.Now()

	doc, err := s.docs.GetByID(ctx, payload.DocumentID)
	if err != nil {
		return nil, fmt.Errorf("load document %s: %w", payload.DocumentID, err)
	}
	if err := s.docs.SetProcessing(ctx, doc.ID); err != nil {
		return nil, fmt.Errorf("mark document processing: %w", err)
	}

	data, err := storage.FetchBytes(ctx, s.store, payload.StorageKey)
	if err != nil {
		return nil, s.failDoc(ctx, doc.ID, fmt.Errorf("fetch %s: %w", payload.StorageKey, err))
	}

	extracted, err := s.extractor.Extract(data, payload.FileName, payload.ContentType)
	if err != nil {
		return nil, s.failDoc(ctx, doc.ID, err)
	}

	chunks := chunker.Chunk(extracted.Text, s.chunkOpts)
	if len(chunks) == 0 {
		return nil, s.failDoc(ctx, doc.ID, fmt.Errorf("%w: document yielded no text", domain.ErrNoChunks))
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}
	vectors, err := s.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return nil, s.failDoc(ctx, doc.ID, fmt.Errorf("embed %d chunks: %w", len(chunks), err))
	}

	// Re-ingest: replace any previous version of this document's vectors.
	if err := s.vectors.DeleteByDocument(ctx, doc.ID); err != nil {
		return nil, s.failDoc(ctx, doc.ID, fmt.Errorf("drop stale vectors: %w", err))
	}
	stored, err := s.vectors.StoreBatch(ctx, payload.CollectionID, doc.ID, chunks, vectors)
	if err != nil {
		return nil, s.failDoc(ctx, doc.ID, fmt.Errorf("index vectors: %w", err))
	}

	if err := s.docs.SetProcessed(ctx, doc.ID, extracted.Metadata.PageCount, extracted.Metadata.WordCount, stored); err != nil {
		return nil, fmt.Errorf("mark document processed: %w", err)
	}

	logger.CtxInfo(logger.WithFields(ctx, logger.Fields{
		logger.FieldCount:      stored,
		logger.FieldDurationMs: time.Since(start).Milliseconds(),
	}), "document ingested")

	return domain.JSONMap{
		"chunks":     stored,
		"page_count": extracted.Metadata.PageCount,
		"word_count": extracted.Metadata.WordCount,
		"model":      s.embedder.Model(),
	}, nil
}

// IngestCollection fans a collection job out into one ingest job per
// document, inheriting the parent's priority and owner. Documents already
// processed are re-ingested; the pipeline replaces their vectors.
func (s *IngestService) IngestCollection(ctx context.Context, parent *domain.Job, payload *domain.IngestCollectionPayload) (domain.JSONMap, error) {
	ctx = logger.SetCollectionID(ctx, payload.CollectionID)

	docs, err := s.docs.ListByCollection(ctx, payload.CollectionID)
	if err != nil {
		return nil, fmt.Errorf("list collection %s: %w", payload.CollectionID, err)
	}

	enqueued := 0
	for i := range docs {
		if _, err := s.EnqueueDocument(ctx, &docs[i], parent.Priority, parent.OwnerID); err != nil {
			return nil, fmt.Errorf("enqueue document %s: %w", docs[i].ID, err)
		}
		enqueued++
	}

	logger.CtxInfo(logger.WithField(ctx, logger.FieldCount, enqueued), "collection fanned out")
	return domain.JSONMap{"documents": enqueued}, nil
}

// DeleteDocument removes a document's vectors and metadata.
func (s *IngestService) DeleteDocument(ctx context.Context, documentID string) error {
	if err := s.vectors.DeleteByDocument(ctx, documentID); err != nil {
		return err
	}
	return nil
}

// DeleteCollection removes every vector a collection holds.
func (s *IngestService) DeleteCollection(ctx context.Context, collectionID string) error {
	return s.vectors.DeleteByCollection(ctx, collectionID)
}

// failDoc records the failure on the document and passes the error through.
// The status write is best effort; the job error is authoritative.
func (s *IngestService) failDoc(ctx context.Context, docID string, cause error) error {
	if err := s.docs.SetFailed(ctx, docID, cause.Error()); err != nil {
		logger.CtxWarn(ctx, "failed to record document failure: %v", err)
	}
	return cause
}
