package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/arlo/knowbase/internal/repository"
)

// JobHandler exposes the job queue's read side: job status polling, owner
// job listings and queue statistics.
type JobHandler struct {
	jobs *repository.JobRepository
}

// NewJobHandler creates a new job handler.
func NewJobHandler(jobs *repository.JobRepository) *JobHandler {
	return &JobHandler{jobs: jobs}
}

// GetJob handles GET /api/v1/jobs/:id.
func (h *JobHandler) GetJob(c *gin.Context) {
	job, err := h.jobs.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Job not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load job: " + err.Error()})
		return
	}
	c.JSON(http.StatusOK, job)
}

// ListJobs handles GET /api/v1/jobs?owner_id=...&limit=...
func (h *JobHandler) ListJobs(c *gin.Context) {
	ownerID := c.Query("owner_id")
	if ownerID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Query parameter 'owner_id' is required"})
		return
	}

	limit := 0
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid limit: " + raw})
			return
		}
		limit = parsed
	}

	jobs, err := h.jobs.ListByOwner(c.Request.Context(), ownerID, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list jobs: " + err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"jobs":  jobs,
		"total": len(jobs),
	})
}

// GetStats handles GET /api/v1/jobs/stats.
func (h *JobHandler) GetStats(c *gin.Context) {
	stats, err := h.jobs.Stats(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get queue stats: " + err.Error()})
		return
	}
	c.JSON(http.StatusOK, stats)
}
