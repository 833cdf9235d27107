package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/arlo/knowbase/internal/embedding"
)

// HealthHandler handles health check endpoints
type HealthHandler struct {
	embedder embedding.Embedder
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(embedder embedding.Embedder) *HealthHandler {
	return &HealthHandler{embedder: embedder}
}

// Health returns the health status of the service
func (h *HealthHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":          "ok",
		"embedding_model": h.embedder.Model(),
	})
}

// Ready reports whether the embedding backend is reachable. Load balancers
// use this to keep traffic away from an instance whose backend is down;
// retrieval itself degrades gracefully either way.
func (h *HealthHandler) Ready(c *gin.Context) {
	if err := h.embedder.Ping(c.Request.Context()); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status": "degraded",
			"error":  err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}
