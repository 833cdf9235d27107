package service

import (
	"context"
	"testing"
	"time"

	"github.com/arlo/knowbase/internal/domain"
)

func testWorker(queue *fakeQueue, docs *fakeDocStore, vectors *fakeVectorStore, store *fakeStorage) *Worker {
	ingest := NewIngestService(queue, docs, vectors, store, &fakeEmbedder{}, testChunkOpts())
	return NewWorker(queue, ingest, WorkerOptions{PollInterval: 10 * time.Millisecond})
}

func TestProcessCompletesJob(t *testing.T) {
	queue := newFakeQueue()
	docs := newFakeDocStore(testDoc())
	store := &fakeStorage{objects: map[string][]byte{
		"uploads/doc-1/notes.txt": []byte("Job content to ingest."),
	}}
	w := testWorker(queue, docs, newFakeVectorStore(), store)

	job := &domain.Job{
		ID:          "job-a",
		Type:        domain.JobTypeIngestFile,
		Status:      domain.JobStatusProcessing,
		Payload:     testPayload().ToMap(),
		MaxAttempts: 3,
	}
	w.process(context.Background(), job)

	result, ok := queue.completed["job-a"]
	if !ok {
		t.Fatalf("job not completed; failures: %v", queue.failed)
	}
	if result["model"] != "fake-model" {
		t.Errorf("result = %v", result)
	}
}

func TestProcessFailsJobWithRetryClass(t *testing.T) {
	tests := []struct {
		name      string
		job       *domain.Job
		wantRetry bool
	}{
		{
			name: "malformed payload is permanent",
			job: &domain.Job{
				ID:      "job-bad-payload",
				Type:    domain.JobTypeIngestFile,
				Payload: domain.JSONMap{"collection_id": "coll-1"},
			},
			wantRetry: false,
		},
		{
			name: "unknown type is permanent",
			job: &domain.Job{
				ID:      "job-unknown",
				Type:    domain.JobType("compact-segments"),
				Payload: domain.JSONMap{},
			},
			wantRetry: false,
		},
		{
			name: "missing storage object is retryable",
			job: &domain.Job{
				ID:      "job-transient",
				Type:    domain.JobTypeIngestFile,
				Payload: testPayload().ToMap(),
			},
			wantRetry: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			queue := newFakeQueue()
			docs := newFakeDocStore(testDoc())
			// Empty storage: the transient case fails at the fetch stage.
			w := testWorker(queue, docs, newFakeVectorStore(), &fakeStorage{objects: map[string][]byte{}})

			w.process(context.Background(), tt.job)

			rec, ok := queue.failed[tt.job.ID]
			if !ok {
				t.Fatalf("job not failed; completions: %v", queue.completed)
			}
			if rec.retry != tt.wantRetry {
				t.Errorf("retry = %t, want %t (error %q)", rec.retry, tt.wantRetry, rec.msg)
			}
		})
	}
}

func TestRunDrainsQueueUntilCancelled(t *testing.T) {
	job := &domain.Job{
		ID:      "job-run",
		Type:    domain.JobTypeIngestFile,
		Payload: testPayload().ToMap(),
	}
	queue := newFakeQueue(job)
	docs := newFakeDocStore(testDoc())
	store := &fakeStorage{objects: map[string][]byte{
		"uploads/doc-1/notes.txt": []byte("Content processed by the run loop."),
	}}
	w := testWorker(queue, docs, newFakeVectorStore(), store)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	deadline := time.After(2 * time.Second)
	for {
		queue.mu.Lock()
		_, completed := queue.completed["job-run"]
		queue.mu.Unlock()
		if completed {
			break
		}
		select {
		case <-deadline:
			t.Fatal("job was not processed before deadline")
		case <-time.After(5 * time.Millisecond):
		}
	}

	cancel()
	select {
	case err := <-done:
		if err != context.Canceled {
			t.Errorf("Run returned %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop after cancel")
	}
}

func TestErrorBackoffEscalates(t *testing.T) {
	if errorBackoff(1) != time.Second {
		t.Errorf("first backoff = %v", errorBackoff(1))
	}
	if errorBackoff(3) != 4*time.Second {
		t.Errorf("third backoff = %v", errorBackoff(3))
	}
	if errorBackoff(20) != maxErrorBackoff {
		t.Errorf("backoff not capped: %v", errorBackoff(20))
	}
}
