package logger

// Fields is an alias for map[string]interface{} for convenience.
type Fields map[string]interface{}

// ============================================
// Standard Tracing Fields (Context level)
// These fields are propagated through the call chain
// ============================================

const (
	// FieldRequestID is the HTTP request ID (UUID)
	FieldRequestID = "request_id"

	// FieldJobID is the background job ID
	FieldJobID = "job_id"

	// FieldDocumentID is the source document ID
	FieldDocumentID = "document_id"

	// FieldCollectionID is the collection that scopes documents and vectors
	FieldCollectionID = "collection_id"

	// FieldComponent is the component/module name
	FieldComponent = "component"

	// FieldOwnerID is the ID of the user owning a job
	FieldOwnerID = "owner_id"
)

// ============================================
// Standard Metric Fields (aggregation and alerting)
// ============================================

const (
	// FieldDurationMs is the execution duration in milliseconds
	FieldDurationMs = "duration_ms"

	// FieldCount is a generic count field
	FieldCount = "count"

	// FieldSize is the data size in bytes
	FieldSize = "size"

	// FieldStatus is the operation status
	FieldStatus = "status"
)
