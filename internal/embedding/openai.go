package embedding

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/arlo/knowbase/internal/config"
	"github.com/arlo/knowbase/internal/domain"
)

// OpenAIEmbedder calls an OpenAI-compatible /embeddings endpoint. The API
// accepts multiple inputs per request, so batching maps one sub-batch to
// one HTTP call.
type OpenAIEmbedder struct {
	client     *resty.Client
	model      string
	dimensions int
	batchSize  int
}

type embeddingsRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type embeddingsResponse struct {
	Data []struct {
		Index     int       `json:"index"`
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
}

type apiError struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

// NewOpenAI validates credentials and builds the cloud backend.
func NewOpenAI(cfg *config.EmbeddingConfig) (*OpenAIEmbedder, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%w: cloud embedding mode requires an API key", domain.ErrBackendMisconfigured)
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("%w: embedding model is not set", domain.ErrBackendMisconfigured)
	}

	client := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetAuthToken(cfg.APIKey).
		SetHeader("Content-Type", "application/json").
		SetTimeout(60 * time.Second)

	return &OpenAIEmbedder{
		client:     client,
		model:      cfg.Model,
		dimensions: cfg.Dimensions,
		batchSize:  cfg.BatchSize,
	}, nil
}

func (e *OpenAIEmbedder) Model() string  { return e.model }
func (e *OpenAIEmbedder) Dimension() int { return e.dimensions }

func (e *OpenAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vectors, err := e.embedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

func (e *OpenAIEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	vectors := make([][]float32, 0, len(texts))
	for _, batch := range batches(texts, e.batchSize) {
		batchVectors, err := e.embedBatch(ctx, batch)
		if err != nil {
			return nil, err
		}
		vectors = append(vectors, batchVectors...)
	}
	return vectors, nil
}

// Ping issues a minimal embedding request to confirm the endpoint accepts
// our credentials and model.
func (e *OpenAIEmbedder) Ping(ctx context.Context) error {
	_, err := e.embedBatch(ctx, []string{"ping"})
	return err
}

func (e *OpenAIEmbedder) embedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	var result embeddingsResponse
	var apiErr apiError

	resp, err := e.client.R().
		SetContext(ctx).
		SetBody(embeddingsRequest{Model: e.model, Input: texts}).
		SetResult(&result).
		SetError(&apiErr).
		Post("/embeddings")
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrBackendUnavailable, err)
	}

	if resp.IsError() {
		msg := apiErr.Error.Message
		if msg == "" {
			msg = resp.Status()
		}
		switch resp.StatusCode() {
		case 401, 403:
			return nil, fmt.Errorf("%w: %s", domain.ErrBackendMisconfigured, msg)
		case 404:
			return nil, fmt.Errorf("%w: %s", domain.ErrModelNotInstalled, msg)
		default:
			return nil, fmt.Errorf("%w: embeddings API returned %d: %s", domain.ErrBackendUnavailable, resp.StatusCode(), msg)
		}
	}

	if len(result.Data) != len(texts) {
		return nil, fmt.Errorf("%w: requested %d embeddings, got %d", domain.ErrBackendUnavailable, len(texts), len(result.Data))
	}

	// The API documents data as ordered, but sort by index anyway since
	// chunk/vector alignment depends on it.
	sort.Slice(result.Data, func(i, j int) bool {
		return result.Data[i].Index < result.Data[j].Index
	})

	vectors := make([][]float32, len(result.Data))
	for i, d := range result.Data {
		vectors[i] = d.Embedding
	}
	return vectors, nil
}
