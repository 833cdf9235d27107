package api

import (
	"github.com/gin-gonic/gin"

	"github.com/arlo/knowbase/internal/api/handler"
	"github.com/arlo/knowbase/internal/api/middleware"
	"github.com/arlo/knowbase/internal/embedding"
	"github.com/arlo/knowbase/internal/repository"
	"github.com/arlo/knowbase/internal/service"
)

// RouterDeps carries everything the HTTP surface is built from.
type RouterDeps struct {
	Jobs      *repository.JobRepository
	Documents *repository.DocumentRepository
	Ingest    *service.IngestService
	Retriever *service.Retriever
	Embedder  embedding.Embedder
	CORS      middleware.CORSConfig
	Mode      string
}

// SetupRouter configures the Gin router with all routes
func SetupRouter(deps RouterDeps) *gin.Engine {
	switch deps.Mode {
	case "release":
		gin.SetMode(gin.ReleaseMode)
	case "test":
		gin.SetMode(gin.TestMode)
	default:
		gin.SetMode(gin.DebugMode)
	}

	r := gin.New()

	r.Use(gin.Recovery())
	r.Use(middleware.Logger())
	r.Use(middleware.CORS(deps.CORS))

	healthHandler := handler.NewHealthHandler(deps.Embedder)
	jobHandler := handler.NewJobHandler(deps.Jobs)
	documentHandler := handler.NewDocumentHandler(deps.Documents, deps.Ingest)
	retrieveHandler := handler.NewRetrieveHandler(deps.Retriever)

	// Health checks
	r.GET("/health", healthHandler.Health)
	r.GET("/health/ready", healthHandler.Ready)

	// API v1 routes
	v1 := r.Group("/api/v1")
	{
		// Retrieval
		v1.POST("/retrieve", retrieveHandler.Retrieve)

		// Documents
		v1.POST("/documents/:id/ingest", documentHandler.IngestDocument)
		v1.GET("/documents/:id", documentHandler.GetDocument)
		v1.DELETE("/documents/:id", documentHandler.DeleteDocument)

		// Collections
		v1.POST("/collections/:id/ingest", documentHandler.IngestCollection)
		v1.GET("/collections/:id/documents", documentHandler.ListCollectionDocuments)
		v1.GET("/collections/:id/stats", retrieveHandler.CollectionStats)
		v1.DELETE("/collections/:id", documentHandler.DeleteCollection)

		// Jobs
		v1.GET("/jobs/stats", jobHandler.GetStats)
		v1.GET("/jobs/:id", jobHandler.GetJob)
		v1.GET("/jobs", jobHandler.ListJobs)
	}

	return r
}
