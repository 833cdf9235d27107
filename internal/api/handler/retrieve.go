package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/arlo/knowbase/internal/service"
)

// RetrieveHandler exposes similarity retrieval over ingested collections.
type RetrieveHandler struct {
	retriever *service.Retriever
}

// NewRetrieveHandler creates a new retrieve handler.
func NewRetrieveHandler(retriever *service.Retriever) *RetrieveHandler {
	return &RetrieveHandler{retriever: retriever}
}

type retrieveRequest struct {
	CollectionID string `json:"collection_id"`
	Query        string `json:"query"`
	TopK         int    `json:"top_k"`
}

// Retrieve handles POST /api/v1/retrieve. An empty match list is a normal
// 200 response; the caller decides how to answer without grounding.
func (h *RetrieveHandler) Retrieve(c *gin.Context) {
	var req retrieveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request: " + err.Error()})
		return
	}

	result, err := h.retriever.Retrieve(c.Request.Context(), req.CollectionID, req.Query, req.TopK)
	if err != nil {
		if errors.Is(err, service.ErrMissingCollection) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "collection_id is required"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Retrieval failed: " + err.Error()})
		return
	}

	c.JSON(http.StatusOK, result)
}

// CollectionStats handles GET /api/v1/collections/:id/stats.
func (h *RetrieveHandler) CollectionStats(c *gin.Context) {
	stats, err := h.retriever.CollectionStats(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get collection stats: " + err.Error()})
		return
	}
	c.JSON(http.StatusOK, stats)
}
