// Package embedding turns text into dense vectors through one of two
// interchangeable backends: an OpenAI-compatible cloud API or a local
// Ollama server. A process runs exactly one backend; vectors from
// different backends or models are not comparable, so the choice is fixed
// at startup.
package embedding

import (
	"context"
	"fmt"

	"github.com/arlo/knowbase/internal/config"
	"github.com/arlo/knowbase/internal/domain"
)

// Embedder produces embedding vectors for text.
type Embedder interface {
	// Embed returns the vector for a single text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch returns one vector per input text, in input order. It
	// fails as a whole if any batch fails; partial results are never
	// returned.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Model returns the model identifier vectors are produced with.
	Model() string

	// Dimension returns the vector dimensionality.
	Dimension() int

	// Ping verifies the backend is reachable and the model usable.
	Ping(ctx context.Context) error
}

// New selects the backend from configuration. Misconfiguration, such as a
// cloud mode without an API key, is reported here rather than on first use.
func New(cfg *config.EmbeddingConfig) (Embedder, error) {
	switch cfg.Mode {
	case "cloud":
		return NewOpenAI(cfg)
	case "local":
		return NewOllama(cfg)
	default:
		return nil, fmt.Errorf("%w: unknown embedding mode %q", domain.ErrBackendMisconfigured, cfg.Mode)
	}
}

// batches splits texts into slices of at most size elements.
func batches(texts []string, size int) [][]string {
	if size <= 0 {
		size = len(texts)
	}
	var out [][]string
	for start := 0; start < len(texts); start += size {
		end := start + size
		if end > len(texts) {
			end = len(texts)
		}
		out = append(out, texts[start:end])
	}
	return out
}
