package domain

import (
	"errors"
	"fmt"
	"testing"
)

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"unsupported type", ErrUnsupportedType, false},
		{"misconfigured backend", ErrBackendMisconfigured, false},
		{"model not installed", ErrModelNotInstalled, false},
		{"alignment violation", ErrAlignment, false},
		{"backend down", ErrBackendUnavailable, true},
		{"store down", ErrStoreUnavailable, true},
		{"queue down", ErrQueueUnavailable, true},
		{"extraction failure", ErrExtractionFailed, true},
		{"no chunks", ErrNoChunks, true},
		{"plain error", errors.New("connection reset"), true},
		{"wrapped permanent", fmt.Errorf("ingest: %w", ErrUnsupportedType), false},
		{"wrapped transient", fmt.Errorf("embed: %w", ErrBackendUnavailable), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsRetryable(tt.err); got != tt.want {
				t.Errorf("IsRetryable(%v) = %t, want %t", tt.err, got, tt.want)
			}
		})
	}
}

func TestPayloadRoundTrip(t *testing.T) {
	file := &IngestFilePayload{
		DocumentID:   "doc-1",
		CollectionID: "coll-1",
		StorageKey:   "uploads/doc-1",
		FileName:     "doc.pdf",
		ContentType:  "application/pdf",
	}
	decoded, err := IngestFilePayloadFromMap(file.ToMap())
	if err != nil {
		t.Fatal(err)
	}
	if *decoded != *file {
		t.Errorf("round trip = %+v, want %+v", decoded, file)
	}

	if _, err := IngestFilePayloadFromMap(JSONMap{"collection_id": "coll-1"}); err == nil {
		t.Error("payload without document_id decoded")
	}

	coll := &IngestCollectionPayload{CollectionID: "coll-1"}
	decodedColl, err := IngestCollectionPayloadFromMap(coll.ToMap())
	if err != nil {
		t.Fatal(err)
	}
	if decodedColl.CollectionID != "coll-1" {
		t.Errorf("collection = %s", decodedColl.CollectionID)
	}
}

func TestJobStatusIsTerminal(t *testing.T) {
	terminal := []JobStatus{JobStatusCompleted, JobStatusFailed, JobStatusCancelled}
	for _, s := range terminal {
		if !s.IsTerminal() {
			t.Errorf("%s should be terminal", s)
		}
	}
	for _, s := range []JobStatus{JobStatusPending, JobStatusProcessing} {
		if s.IsTerminal() {
			t.Errorf("%s should not be terminal", s)
		}
	}
}
