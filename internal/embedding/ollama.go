package embedding

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"golang.org/x/sync/errgroup"

	"github.com/arlo/knowbase/internal/config"
	"github.com/arlo/knowbase/internal/domain"
)

// OllamaEmbedder calls a local Ollama server. Local inference gains little
// from huge request bodies, so large inputs are split into sub-batches
// embedded with bounded concurrency; any failing sub-batch fails the whole
// call.
type OllamaEmbedder struct {
	client      *resty.Client
	model       string
	dimensions  int
	batchSize   int
	concurrency int
}

type ollamaEmbedRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type ollamaEmbedResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
	Error      string      `json:"error"`
}

type ollamaTagsResponse struct {
	Models []struct {
		Name string `json:"name"`
	} `json:"models"`
}

// NewOllama builds the local backend.
func NewOllama(cfg *config.EmbeddingConfig) (*OllamaEmbedder, error) {
	if cfg.Model == "" {
		return nil, fmt.Errorf("%w: embedding model is not set", domain.ErrBackendMisconfigured)
	}

	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = 1
	}

	client := resty.New().
		SetBaseURL(cfg.LocalHost).
		SetHeader("Content-Type", "application/json").
		SetTimeout(120 * time.Second)

	return &OllamaEmbedder{
		client:      client,
		model:       cfg.Model,
		dimensions:  cfg.Dimensions,
		batchSize:   cfg.BatchSize,
		concurrency: concurrency,
	}, nil
}

func (e *OllamaEmbedder) Model() string  { return e.model }
func (e *OllamaEmbedder) Dimension() int { return e.dimensions }

func (e *OllamaEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vectors, err := e.embedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

func (e *OllamaEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	parts := batches(texts, e.batchSize)
	results := make([][][]float32, len(parts))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.concurrency)
	for i, part := range parts {
		g.Go(func() error {
			vectors, err := e.embedBatch(gctx, part)
			if err != nil {
				return err
			}
			results[i] = vectors
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	vectors := make([][]float32, 0, len(texts))
	for _, r := range results {
		vectors = append(vectors, r...)
	}
	return vectors, nil
}

// Ping checks the server is up and the configured model is installed.
func (e *OllamaEmbedder) Ping(ctx context.Context) error {
	var tags ollamaTagsResponse

	resp, err := e.client.R().
		SetContext(ctx).
		SetResult(&tags).
		Get("/api/tags")
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrBackendUnavailable, err)
	}
	if resp.IsError() {
		return fmt.Errorf("%w: ollama returned %s", domain.ErrBackendUnavailable, resp.Status())
	}

	for _, m := range tags.Models {
		if m.Name == e.model || strings.HasPrefix(m.Name, e.model+":") {
			return nil
		}
	}
	return fmt.Errorf("%w: model %q not found on ollama server", domain.ErrModelNotInstalled, e.model)
}

func (e *OllamaEmbedder) embedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	var result ollamaEmbedResponse

	resp, err := e.client.R().
		SetContext(ctx).
		SetBody(ollamaEmbedRequest{Model: e.model, Input: texts}).
		SetResult(&result).
		SetError(&result).
		Post("/api/embed")
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrBackendUnavailable, err)
	}

	if resp.IsError() {
		msg := result.Error
		if msg == "" {
			msg = resp.Status()
		}
		if resp.StatusCode() == 404 || strings.Contains(msg, "not found") {
			return nil, fmt.Errorf("%w: %s", domain.ErrModelNotInstalled, msg)
		}
		return nil, fmt.Errorf("%w: ollama returned %d: %s", domain.ErrBackendUnavailable, resp.StatusCode(), msg)
	}

	if len(result.Embeddings) != len(texts) {
		return nil, fmt.Errorf("%w: requested %d embeddings, got %d", domain.ErrBackendUnavailable, len(texts), len(result.Embeddings))
	}
	return result.Embeddings, nil
}
