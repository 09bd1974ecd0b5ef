package archive

import (
	"context"
	"fmt"

	"github.com/sashabaranov/go-openai"

	"deep-researcher/internal/config"
	"deep-researcher/internal/llm"
	"deep-researcher/internal/transport"
)

// OpenAIEmbedder generates embeddings through an OpenAI-compatible
// /embeddings endpoint, using the same credentials as the chat models
type OpenAIEmbedder struct {
	client    *openai.Client
	model     string
	dimension int
	limiter   *transport.Limiter
}

// NewOpenAIEmbedder creates a new embedder
func NewOpenAIEmbedder(llmCfg config.LLMConfig, cfg config.ArchiveConfig, limiter *transport.Limiter) (*OpenAIEmbedder, error) {
	if cfg.EmbeddingModel == "" {
		return nil, fmt.Errorf("embedding_model is required for the archive")
	}
	if cfg.Dimension <= 0 {
		return nil, fmt.Errorf("dimension is required for the archive")
	}

	return &OpenAIEmbedder{
		client:    openai.NewClientWithConfig(llm.ClientConfig(llmCfg)),
		model:     cfg.EmbeddingModel,
		dimension: cfg.Dimension,
		limiter:   limiter,
	}, nil
}

// EmbedBatch generates embeddings for multiple texts, in input order
func (e *OpenAIEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	if err := e.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	resp, err := e.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: texts,
		Model: openai.EmbeddingModel(e.model),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create embeddings: %w", err)
	}
	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("expected %d embeddings, got %d", len(texts), len(resp.Data))
	}

	embeddings := make([][]float32, len(texts))
	for _, d := range resp.Data {
		if d.Index < 0 || d.Index >= len(texts) {
			return nil, fmt.Errorf("embedding index %d out of range", d.Index)
		}
		if len(d.Embedding) != e.dimension {
			return nil, fmt.Errorf("embedding dimension mismatch: expected %d, got %d", e.dimension, len(d.Embedding))
		}
		embeddings[d.Index] = d.Embedding
	}
	return embeddings, nil
}

// GetDimension returns the embedding dimension
func (e *OpenAIEmbedder) GetDimension() int {
	return e.dimension
}
