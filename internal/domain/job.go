package domain

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"
)

// JobType identifies the kind of background work a job carries.
type JobType string

const (
	// JobTypeIngestFile processes a single uploaded document.
	JobTypeIngestFile JobType = "ingest-file"

	// JobTypeIngestCollection re-ingests every document of a collection by
	// fanning out one ingest-file job per document.
	JobTypeIngestCollection JobType = "ingest-model-files"
)

// JobStatus represents the lifecycle state of a job.
type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
	JobStatusCancelled  JobStatus = "cancelled"
)

// IsTerminal reports whether the status admits no further transitions.
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed || s == JobStatusCancelled
}

// JSONMap is a custom type for storing free-form JSON in the database.
type JSONMap map[string]interface{}

// Value implements the driver.Valuer interface for database serialization.
func (m JSONMap) Value() (driver.Value, error) {
	if m == nil {
		return "{}", nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implements the sql.Scanner interface for database deserialization.
func (m *JSONMap) Scan(value interface{}) error {
	if value == nil {
		*m = JSONMap{}
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		str, ok := value.(string)
		if !ok {
			return errors.New("failed to scan JSONMap")
		}
		bytes = []byte(str)
	}
	return json.Unmarshal(bytes, m)
}

// Job represents a durable unit of background work. Exactly one worker may
// hold a job in processing at a time; the claim transition is a conditional
// update in the store, never an application-level read-then-write.
type Job struct {
	ID          string     `gorm:"type:text;primaryKey" json:"id"`
	Type        JobType    `gorm:"type:text;not null;index" json:"type"`
	Status      JobStatus  `gorm:"type:text;default:pending;index" json:"status"`
	Priority    int        `gorm:"default:0;index" json:"priority"`
	OwnerID     string     `gorm:"type:text;index" json:"owner_id,omitempty"`
	Payload     JSONMap    `gorm:"type:text" json:"payload"`
	Result      JSONMap    `gorm:"type:text" json:"result,omitempty"`
	Error       string     `gorm:"type:text" json:"error,omitempty"`
	Attempts    int        `gorm:"default:0" json:"attempts"`
	MaxAttempts int        `gorm:"default:3" json:"max_attempts"`
	CreatedAt   time.Time  `gorm:"index" json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	FailedAt    *time.Time `json:"failed_at,omitempty"`
	NextRetryAt *time.Time `json:"next_retry_at,omitempty"`
}

// TableName returns the database table name for Job.
func (Job) TableName() string {
	return "jobs"
}

// IngestFilePayload is the structured payload of an ingest-file job.
type IngestFilePayload struct {
	DocumentID   string `json:"document_id"`
	CollectionID string `json:"collection_id"`
	StorageKey   string `json:"storage_key"`
	FileName     string `json:"file_name"`
	ContentType  string `json:"content_type"`
}

// ToMap converts the payload into the free-form shape stored on the job.
func (p *IngestFilePayload) ToMap() JSONMap {
	return JSONMap{
		"document_id":   p.DocumentID,
		"collection_id": p.CollectionID,
		"storage_key":   p.StorageKey,
		"file_name":     p.FileName,
		"content_type":  p.ContentType,
	}
}

// IngestFilePayloadFromMap decodes a job payload back into its typed form.
func IngestFilePayloadFromMap(m JSONMap) (*IngestFilePayload, error) {
	b, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	var p IngestFilePayload
	if err := json.Unmarshal(b, &p); err != nil {
		return nil, err
	}
	if p.DocumentID == "" {
		return nil, errors.New("payload missing document_id")
	}
	return &p, nil
}

// IngestCollectionPayload is the structured payload of an ingest-model-files job.
type IngestCollectionPayload struct {
	CollectionID string `json:"collection_id"`
}

// ToMap converts the payload into the free-form shape stored on the job.
func (p *IngestCollectionPayload) ToMap() JSONMap {
	return JSONMap{"collection_id": p.CollectionID}
}

// IngestCollectionPayloadFromMap decodes a collection re-ingest payload.
func IngestCollectionPayloadFromMap(m JSONMap) (*IngestCollectionPayload, error) {
	b, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	var p IngestCollectionPayload
	if err := json.Unmarshal(b, &p); err != nil {
		return nil, err
	}
	if p.CollectionID == "" {
		return nil, errors.New("payload missing collection_id")
	}
	return &p, nil
}

// QueueStats holds aggregate job counts per status for monitoring.
type QueueStats struct {
	Pending    int64 `json:"pending"`
	Processing int64 `json:"processing"`
	Completed  int64 `json:"completed"`
	Failed     int64 `json:"failed"`
	Cancelled  int64 `json:"cancelled"`

	// AvgProcessingMs is the mean wall time of completed jobs in milliseconds.
	AvgProcessingMs float64 `json:"avg_processing_ms"`
}
