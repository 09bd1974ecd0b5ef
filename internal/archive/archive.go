// Package archive keeps the findings of past runs in a vector store so later
// sub-agents can search them.
package archive

import (
	"context"

	"github.com/rs/zerolog"

	"deep-researcher/internal/config"
	"deep-researcher/internal/transport"
	"deep-researcher/pkg/interfaces"
)

// New creates the archive described by cfg. It returns nil when archiving is
// disabled, so callers can skip registering the archive tool.
func New(ctx context.Context, cfg *config.ResearcherConfig, limiter *transport.Limiter, logger zerolog.Logger) (interfaces.Archive, error) {
	if !cfg.Archive.Enabled {
		return nil, nil
	}

	embedder, err := NewOpenAIEmbedder(cfg.LLM, cfg.Archive, limiter)
	if err != nil {
		return nil, &interfaces.ConfigurationError{Field: "archive", Message: "invalid embedder settings", Err: err}
	}

	a, err := NewMilvusArchive(ctx, cfg.Archive, embedder, logger)
	if err != nil {
		return nil, err
	}
	return a, nil
}
