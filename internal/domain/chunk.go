package domain

// Chunk is a contiguous span of a document's extracted text, the unit fed
// to the embedding step. Chunks are ephemeral: they exist in memory between
// the chunker and the vector store and are never persisted on their own.
type Chunk struct {
	Text      string `json:"text"`
	Index     int    `json:"index"`
	StartChar int    `json:"start_char"`
	EndChar   int    `json:"end_char"`
}

// SimilarityMatch is a transient search result: a stored chunk together
// with its cosine similarity to the query vector.
type SimilarityMatch struct {
	ID         string  `json:"id"`
	DocumentID string  `json:"document_id"`
	ChunkText  string  `json:"chunk_text"`
	ChunkIndex int     `json:"chunk_index"`
	Similarity float32 `json:"similarity"`
}

// CollectionStats summarizes what a collection holds in the vector store.
type CollectionStats struct {
	TotalChunks     int64   `json:"total_chunks"`
	TotalDocuments  int64   `json:"total_documents"`
	AvgChunksPerDoc float64 `json:"avg_chunks_per_document"`
}
