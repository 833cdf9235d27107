package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/arlo/knowbase/internal/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// DocumentRepository handles source document metadata operations.
type DocumentRepository struct {
	db *gorm.DB
}

// NewDocumentRepository creates a new DocumentRepository.
func NewDocumentRepository(db *gorm.DB) *DocumentRepository {
	return &DocumentRepository{db: db}
}

// Upsert creates or updates a document record keyed by ID.
func (r *DocumentRepository) Upsert(ctx context.Context, doc *domain.SourceDocument) error {
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		UpdateAll: true,
	}).Create(doc).Error
}

// GetByID retrieves a document by its ID.
func (r *DocumentRepository) GetByID(ctx context.Context, id string) (*domain.SourceDocument, error) {
	var doc domain.SourceDocument
	if err := r.db.WithContext(ctx).First(&doc, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &doc, nil
}

// ListByCollection returns all documents belonging to a collection.
func (r *DocumentRepository) ListByCollection(ctx context.Context, collectionID string) ([]domain.SourceDocument, error) {
	var docs []domain.SourceDocument
	err := r.db.WithContext(ctx).
		Where("collection_id = ?", collectionID).
		Order("created_at ASC").
		Find(&docs).Error
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrStoreUnavailable, err)
	}
	return docs, nil
}

// SetProcessing marks a document as being ingested.
func (r *DocumentRepository) SetProcessing(ctx context.Context, id string) error {
	return r.setStatus(ctx, id, map[string]interface{}{
		"status": domain.DocumentStatusProcessing,
		"error":  "",
	})
}

// SetProcessed marks a document as fully ingested and records its
// extraction and chunk counts.
func (r *DocumentRepository) SetProcessed(ctx context.Context, id string, pageCount, wordCount, chunkCount int) error {
	now := time.Now()
	return r.setStatus(ctx, id, map[string]interface{}{
		"status":       domain.DocumentStatusProcessed,
		"error":        "",
		"page_count":   pageCount,
		"word_count":   wordCount,
		"chunk_count":  chunkCount,
		"processed_at": now,
	})
}

// SetFailed marks a document's ingestion as failed with the last error.
func (r *DocumentRepository) SetFailed(ctx context.Context, id string, errMsg string) error {
	return r.setStatus(ctx, id, map[string]interface{}{
		"status": domain.DocumentStatusFailed,
		"error":  errMsg,
	})
}

func (r *DocumentRepository) setStatus(ctx context.Context, id string, updates map[string]interface{}) error {
	res := r.db.WithContext(ctx).Model(&domain.SourceDocument{}).
		Where("id = ?", id).
		Updates(updates)
	if res.Error != nil {
		return fmt.Errorf("%w: %v", domain.ErrStoreUnavailable, res.Error)
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// Delete removes a document record.
func (r *DocumentRepository) Delete(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Delete(&domain.SourceDocument{}, "id = ?", id).Error
}

// DeleteByCollection removes every document record of a collection.
func (r *DocumentRepository) DeleteByCollection(ctx context.Context, collectionID string) error {
	return r.db.WithContext(ctx).Delete(&domain.SourceDocument{}, "collection_id = ?", collectionID).Error
}

// CountProcessed returns how many documents in a collection finished ingestion.
func (r *DocumentRepository) CountProcessed(ctx context.Context, collectionID string) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&domain.SourceDocument{}).
		Where("collection_id = ? AND status = ?", collectionID, domain.DocumentStatusProcessed).
		Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("%w: %v", domain.ErrStoreUnavailable, err)
	}
	return count, nil
}
