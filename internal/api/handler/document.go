package handler

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/arlo/knowbase/internal/domain"
	"github.com/arlo/knowbase/internal/repository"
	"github.com/arlo/knowbase/internal/service"
)

// DocumentHandler exposes document registration, ingestion and deletion.
type DocumentHandler struct {
	docs   *repository.DocumentRepository
	ingest *service.IngestService
}

// NewDocumentHandler creates a new document handler.
func NewDocumentHandler(docs *repository.DocumentRepository, ingest *service.IngestService) *DocumentHandler {
	return &DocumentHandler{docs: docs, ingest: ingest}
}

// ingestDocumentRequest registers or refreshes a document before enqueueing
// its ingestion. When the metadata fields are omitted the document must
// already be registered.
type ingestDocumentRequest struct {
	CollectionID string `json:"collection_id"`
	Name         string `json:"name"`
	ContentType  string `json:"content_type"`
	StorageKey   string `json:"storage_key"`
	Priority     int    `json:"priority"`
	OwnerID      string `json:"owner_id"`
}

// IngestDocument handles POST /api/v1/documents/:id/ingest. The document
// bytes must already be in object storage; this only registers metadata and
// enqueues the pipeline job. Responds 202 with the job ID to poll.
func (h *DocumentHandler) IngestDocument(c *gin.Context) {
	id := c.Param("id")
	ctx := c.Request.Context()

	var req ingestDocumentRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request: " + err.Error()})
		return
	}

	var doc *domain.SourceDocument
	if req.StorageKey != "" {
		if req.CollectionID == "" || req.Name == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "collection_id and name are required when registering a document"})
			return
		}
		doc = &domain.SourceDocument{
			ID:           id,
			CollectionID: req.CollectionID,
			Name:         req.Name,
			ContentType:  req.ContentType,
			StorageKey:   req.StorageKey,
			Status:       domain.DocumentStatusUploaded,
		}
		if err := h.docs.Upsert(ctx, doc); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to register document: " + err.Error()})
			return
		}
	} else {
		existing, err := h.docs.GetByID(ctx, id)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "Document not found"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load document: " + err.Error()})
			return
		}
		doc = existing
	}

	jobID, err := h.ingest.EnqueueDocument(ctx, doc, req.Priority, req.OwnerID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to enqueue ingestion: " + err.Error()})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"job_id":      jobID,
		"document_id": doc.ID,
	})
}

// GetDocument handles GET /api/v1/documents/:id.
func (h *DocumentHandler) GetDocument(c *gin.Context) {
	doc, err := h.docs.GetByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Document not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load document: " + err.Error()})
		return
	}
	c.JSON(http.StatusOK, doc)
}

// DeleteDocument handles DELETE /api/v1/documents/:id. Vectors go first so
// a half-finished delete leaves metadata pointing at nothing rather than
// orphaned vectors that still match queries.
func (h *DocumentHandler) DeleteDocument(c *gin.Context) {
	id := c.Param("id")
	ctx := c.Request.Context()

	if err := h.ingest.DeleteDocument(ctx, id); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete vectors: " + err.Error()})
		return
	}
	if err := h.docs.Delete(ctx, id); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete document: " + err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": id})
}

// collectionIngestRequest tunes a collection re-ingest job.
type collectionIngestRequest struct {
	Priority int    `json:"priority"`
	OwnerID  string `json:"owner_id"`
}

// IngestCollection handles POST /api/v1/collections/:id/ingest, enqueueing
// a fan-out job that re-ingests every document of the collection.
func (h *DocumentHandler) IngestCollection(c *gin.Context) {
	id := c.Param("id")

	var req collectionIngestRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request: " + err.Error()})
		return
	}

	jobID, err := h.ingest.EnqueueCollection(c.Request.Context(), id, req.Priority, req.OwnerID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to enqueue ingestion: " + err.Error()})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{
		"job_id":        jobID,
		"collection_id": id,
	})
}

// ListCollectionDocuments handles GET /api/v1/collections/:id/documents.
func (h *DocumentHandler) ListCollectionDocuments(c *gin.Context) {
	docs, err := h.docs.ListByCollection(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list documents: " + err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"documents": docs,
		"total":     len(docs),
	})
}

// DeleteCollection handles DELETE /api/v1/collections/:id, removing the
// collection's vectors and document records.
func (h *DocumentHandler) DeleteCollection(c *gin.Context) {
	id := c.Param("id")
	ctx := c.Request.Context()

	if err := h.ingest.DeleteCollection(ctx, id); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete vectors: " + err.Error()})
		return
	}
	if err := h.docs.DeleteByCollection(ctx, id); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete documents: " + err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": id})
}
