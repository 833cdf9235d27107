package domain

import "time"

// DocumentStatus represents the processing state of an uploaded document.
// The upload flow creates documents as uploaded; the worker moves them
// through processing to processed or failed.
type DocumentStatus string

const (
	DocumentStatusUploaded   DocumentStatus = "uploaded"
	DocumentStatusProcessing DocumentStatus = "processing"
	DocumentStatusProcessed  DocumentStatus = "processed"
	DocumentStatusFailed     DocumentStatus = "failed"
)

// SourceDocument represents an uploaded file tracked through ingestion.
// The bytes themselves live in object storage under StorageKey.
type SourceDocument struct {
	ID           string         `gorm:"type:text;primaryKey" json:"id"`
	CollectionID string         `gorm:"type:text;not null;index" json:"collection_id"`
	Name         string         `gorm:"type:text;not null" json:"name"`
	ContentType  string         `gorm:"type:text" json:"content_type"`
	StorageKey   string         `gorm:"type:text;not null" json:"storage_key"`
	Status       DocumentStatus `gorm:"type:text;default:uploaded;index" json:"status"`
	Error        string         `gorm:"type:text" json:"error,omitempty"`
	PageCount    int            `gorm:"default:0" json:"page_count,omitempty"`
	WordCount    int            `gorm:"default:0" json:"word_count,omitempty"`
	ChunkCount   int            `gorm:"default:0" json:"chunk_count,omitempty"`
	ProcessedAt  *time.Time     `json:"processed_at,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
}

// TableName returns the database table name for SourceDocument.
func (SourceDocument) TableName() string {
	return "source_documents"
}
