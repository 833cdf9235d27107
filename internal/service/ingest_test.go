package service

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/arlo/knowbase/internal/chunker"
	"github.com/arlo/knowbase/internal/domain"
)

func testChunkOpts() chunker.Options {
	return chunker.Options{ChunkSize: 200, Overlap: 40, PreserveParagraphs: true, MinChunkSize: 1}
}

func testDoc() *domain.SourceDocument {
	return &domain.SourceDocument{
		ID:           "doc-1",
		CollectionID: "coll-1",
		Name:         "notes.txt",
		ContentType:  "text/plain",
		StorageKey:   "uploads/doc-1/notes.txt",
		Status:       domain.DocumentStatusUploaded,
	}
}

func testPayload() *domain.IngestFilePayload {
	return &domain.IngestFilePayload{
		DocumentID:   "doc-1",
		CollectionID: "coll-1",
		StorageKey:   "uploads/doc-1/notes.txt",
		FileName:     "notes.txt",
		ContentType:  "text/plain",
	}
}

func TestIngestFileSuccess(t *testing.T) {
	docs := newFakeDocStore(testDoc())
	vectors := newFakeVectorStore()
	store := &fakeStorage{objects: map[string][]byte{
		"uploads/doc-1/notes.txt": []byte("First paragraph of notes.\n\nSecond paragraph of notes."),
	}}
	svc := NewIngestService(newFakeQueue(), docs, vectors, store, &fakeEmbedder{}, testChunkOpts())

	result, err := svc.IngestFile(context.Background(), testPayload())
	if err != nil {
		t.Fatalf("ingest failed: %v", err)
	}

	if docs.status("doc-1") != domain.DocumentStatusProcessed {
		t.Errorf("document status = %s, want processed", docs.status("doc-1"))
	}
	if len(vectors.stored["doc-1"]) == 0 {
		t.Error("no chunks stored in vector store")
	}
	if result["model"] != "fake-model" {
		t.Errorf("result model = %v", result["model"])
	}
	if result["chunks"] != len(vectors.stored["doc-1"]) {
		t.Errorf("result chunks = %v, stored %d", result["chunks"], len(vectors.stored["doc-1"]))
	}
}

func TestIngestFileReplacesOldVectors(t *testing.T) {
	docs := newFakeDocStore(testDoc())
	vectors := newFakeVectorStore()
	store := &fakeStorage{objects: map[string][]byte{
		"uploads/doc-1/notes.txt": []byte("Replacement content for the document."),
	}}
	svc := NewIngestService(newFakeQueue(), docs, vectors, store, &fakeEmbedder{}, testChunkOpts())

	if _, err := svc.IngestFile(context.Background(), testPayload()); err != nil {
		t.Fatal(err)
	}

	// The stale vectors are dropped first so the upsert cannot leave both
	// document versions searchable.
	want := []string{"delete:doc-1", "store:doc-1"}
	if len(vectors.ops) != 2 || vectors.ops[0] != want[0] || vectors.ops[1] != want[1] {
		t.Errorf("vector ops = %v, want %v", vectors.ops, want)
	}
}

func TestIngestFileUnsupportedType(t *testing.T) {
	doc := testDoc()
	doc.Name = "binary.exe"
	doc.ContentType = "application/octet-stream"
	docs := newFakeDocStore(doc)
	store := &fakeStorage{objects: map[string][]byte{
		"uploads/doc-1/notes.txt": {0x4d, 0x5a, 0x00},
	}}
	svc := NewIngestService(newFakeQueue(), docs, newFakeVectorStore(), store, &fakeEmbedder{}, testChunkOpts())

	payload := testPayload()
	payload.FileName = "binary.exe"
	payload.ContentType = "application/octet-stream"

	_, err := svc.IngestFile(context.Background(), payload)
	if !errors.Is(err, domain.ErrUnsupportedType) {
		t.Fatalf("error = %v, want ErrUnsupportedType", err)
	}
	if domain.IsRetryable(err) {
		t.Error("unsupported type must not be retryable")
	}
	if docs.status("doc-1") != domain.DocumentStatusFailed {
		t.Errorf("document status = %s, want failed", docs.status("doc-1"))
	}
}

func TestIngestFileMissingObject(t *testing.T) {
	docs := newFakeDocStore(testDoc())
	svc := NewIngestService(newFakeQueue(), docs, newFakeVectorStore(), &fakeStorage{objects: map[string][]byte{}}, &fakeEmbedder{}, testChunkOpts())

	_, err := svc.IngestFile(context.Background(), testPayload())
	if err == nil {
		t.Fatal("expected error for missing object")
	}
	// Transient storage trouble stays retryable.
	if !domain.IsRetryable(err) {
		t.Error("storage fetch failure should be retryable")
	}
	if docs.status("doc-1") != domain.DocumentStatusFailed {
		t.Errorf("document status = %s, want failed", docs.status("doc-1"))
	}
}

func TestIngestFileEmptyDocument(t *testing.T) {
	docs := newFakeDocStore(testDoc())
	store := &fakeStorage{objects: map[string][]byte{
		"uploads/doc-1/notes.txt": []byte("   \n\n  "),
	}}
	svc := NewIngestService(newFakeQueue(), docs, newFakeVectorStore(), store, &fakeEmbedder{}, testChunkOpts())

	_, err := svc.IngestFile(context.Background(), testPayload())
	if !errors.Is(err, domain.ErrNoChunks) {
		t.Fatalf("error = %v, want ErrNoChunks", err)
	}
}

func TestIngestFileEmbedFailure(t *testing.T) {
	docs := newFakeDocStore(testDoc())
	vectors := newFakeVectorStore()
	store := &fakeStorage{objects: map[string][]byte{
		"uploads/doc-1/notes.txt": []byte("Some content to embed."),
	}}
	embedder := &fakeEmbedder{embedErr: domain.ErrBackendUnavailable}
	svc := NewIngestService(newFakeQueue(), docs, vectors, store, embedder, testChunkOpts())

	_, err := svc.IngestFile(context.Background(), testPayload())
	if !errors.Is(err, domain.ErrBackendUnavailable) {
		t.Fatalf("error = %v, want ErrBackendUnavailable", err)
	}
	if len(vectors.ops) != 0 {
		t.Errorf("vector store touched despite embed failure: %v", vectors.ops)
	}
	if docs.status("doc-1") != domain.DocumentStatusFailed {
		t.Errorf("document status = %s, want failed", docs.status("doc-1"))
	}
	if msg := docs.errors["doc-1"]; !strings.Contains(msg, "embed") {
		t.Errorf("document error = %q, want embed stage mentioned", msg)
	}
}

func TestIngestFileStoreFailure(t *testing.T) {
	docs := newFakeDocStore(testDoc())
	vectors := newFakeVectorStore()
	vectors.storeErr = domain.ErrStoreUnavailable
	store := &fakeStorage{objects: map[string][]byte{
		"uploads/doc-1/notes.txt": []byte("Some content to embed."),
	}}
	svc := NewIngestService(newFakeQueue(), docs, vectors, store, &fakeEmbedder{}, testChunkOpts())

	_, err := svc.IngestFile(context.Background(), testPayload())
	if !errors.Is(err, domain.ErrStoreUnavailable) {
		t.Fatalf("error = %v, want ErrStoreUnavailable", err)
	}
	if !domain.IsRetryable(err) {
		t.Error("store failure must be retryable")
	}
	if docs.status("doc-1") != domain.DocumentStatusFailed {
		t.Errorf("document status = %s, want failed", docs.status("doc-1"))
	}
}

func TestIngestCollectionFansOut(t *testing.T) {
	docA := testDoc()
	docB := testDoc()
	docB.ID = "doc-2"
	docB.StorageKey = "uploads/doc-2/more.txt"
	docB.Name = "more.txt"
	other := testDoc()
	other.ID = "doc-3"
	other.CollectionID = "other-coll"

	docs := newFakeDocStore(docA, docB, other)
	queue := newFakeQueue()
	svc := NewIngestService(queue, docs, newFakeVectorStore(), &fakeStorage{}, &fakeEmbedder{}, testChunkOpts())

	parent := &domain.Job{ID: "parent", Priority: 7, OwnerID: "owner-1"}
	result, err := svc.IngestCollection(context.Background(), parent, &domain.IngestCollectionPayload{CollectionID: "coll-1"})
	if err != nil {
		t.Fatal(err)
	}

	if result["documents"] != 2 {
		t.Errorf("result documents = %v, want 2", result["documents"])
	}
	if len(queue.enqueued) != 2 {
		t.Fatalf("enqueued %d jobs, want 2", len(queue.enqueued))
	}
	for _, j := range queue.enqueued {
		if j.jobType != domain.JobTypeIngestFile {
			t.Errorf("child job type = %s", j.jobType)
		}
		if j.priority != 7 || j.ownerID != "owner-1" {
			t.Errorf("child job did not inherit priority/owner: %+v", j)
		}
	}
}
