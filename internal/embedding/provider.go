// Package embedding wraps the fixed sentence-embedding model the Semantic
// Cache's similarity tier uses, the sibling eino-ext
// package to internal/llm's chat model client.
package embedding

import (
	"context"
	"fmt"
	"math"

	"github.com/cloudwego/eino-ext/components/embedding/openai"
)

// Provider embeds text for the persistent cache tier's semantic lookup.
type Provider struct {
	embedder *openai.Embedder
}

// Config selects the embedding model.
type Config struct {
	APIKey  string
	BaseURL string
	Model   string
}

// NewProvider constructs the embedding client.
func NewProvider(ctx context.Context, cfg Config) (*Provider, error) {
	ecfg := &openai.EmbeddingConfig{Model: cfg.Model, APIKey: cfg.APIKey}
	if cfg.BaseURL != "" {
		ecfg.BaseURL = cfg.BaseURL
	}
	embedder, err := openai.NewEmbedder(ctx, ecfg)
	if err != nil {
		return nil, fmt.Errorf("embedding: build embedder: %w", err)
	}
	return &Provider{embedder: embedder}, nil
}

// Embed returns the embedding vector for a single piece of normalized text.
func (p *Provider) Embed(ctx context.Context, text string) ([]float32, error) {
	vectors, err := p.embedder.EmbedStrings(ctx, []string{text})
	if err != nil {
		return nil, fmt.Errorf("embedding: embed: %w", err)
	}
	if len(vectors) == 0 {
		return nil, fmt.Errorf("embedding: embedder returned no vectors")
	}
	out := make([]float32, len(vectors[0]))
	for i, v := range vectors[0] {
		out[i] = float32(v)
	}
	return out, nil
}

// CosineSimilarity computes the cosine similarity between two vectors of
// equal length, used by the persistent tier's top-1 semantic search.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
