// Package openai implements EmbeddingProvider using OpenAI's API or any
// OpenAI-compatible endpoint.
package openai

import (
	"context"
	"fmt"
	"os"
	"sync"

	"github.com/sashabaranov/go-openai"

	"github.com/spetr/pyast-rag/pkg/provider"
	"github.com/spetr/pyast-rag/pkg/types"
)

// Default values
const (
	DefaultModel      = openai.SmallEmbedding3
	DefaultBatchSize  = 100
	DefaultDimensions = 1536
)

// Model dimensions for known models
var modelDimensions = map[string]int{
	"text-embedding-ada-002": 1536,
	"text-embedding-3-small": 1536,
	"text-embedding-3-large": 3072,
	"nomic-embed-text":       768,
}

// Config contains OpenAI provider configuration.
type Config struct {
	Model      string
	APIKey     string // If empty, uses OPENAI_API_KEY env var
	BaseURL    string // Optional: OpenAI-compatible endpoint
	BatchSize  int
	Dimensions int // Set to 0 to use default for model
}

// Provider implements the EmbeddingProvider interface for OpenAI.
type Provider struct {
	config     Config
	client     *openai.Client
	dimensions int
	mu         sync.RWMutex
}

// New creates a new OpenAI embedding provider.
func New(cfg Config) *Provider {
	if cfg.Model == "" {
		cfg.Model = string(DefaultModel)
	}
	if cfg.BatchSize == 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.APIKey == "" {
		cfg.APIKey = os.Getenv("OPENAI_API_KEY")
	}

	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}

	dimensions := cfg.Dimensions
	if dimensions == 0 {
		dimensions = modelDimensions[cfg.Model]
	}

	return &Provider{
		config:     cfg,
		client:     openai.NewClientWithConfig(clientConfig),
		dimensions: dimensions,
	}
}

// Name returns the provider name.
func (p *Provider) Name() string {
	return "openai"
}

// Embed generates embeddings for the given texts, one request per batch.
func (p *Provider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	results := make([][]float32, len(texts))
	for i := 0; i < len(texts); i += p.config.BatchSize {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		end := min(i+p.config.BatchSize, len(texts))

		resp, err := p.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
			Input: texts[i:end],
			Model: openai.EmbeddingModel(p.config.Model),
		})
		if err != nil {
			return nil, fmt.Errorf("openai: %w: %v", types.ErrEmbeddingFailed, err)
		}
		if len(resp.Data) != end-i {
			return nil, fmt.Errorf("openai: %w: got %d embeddings for %d inputs", types.ErrEmbeddingFailed, len(resp.Data), end-i)
		}

		for _, data := range resp.Data {
			if data.Index < 0 || data.Index >= end-i {
				return nil, fmt.Errorf("openai: %w: embedding index %d out of range", types.ErrEmbeddingFailed, data.Index)
			}
			results[i+data.Index] = data.Embedding
		}

		p.mu.Lock()
		if p.dimensions == 0 && len(resp.Data[0].Embedding) > 0 {
			p.dimensions = len(resp.Data[0].Embedding)
		}
		p.mu.Unlock()
	}

	return results, nil
}

// Dimensions returns the embedding dimensions.
func (p *Provider) Dimensions() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.dimensions > 0 {
		return p.dimensions
	}
	return DefaultDimensions
}

// MaxBatchSize returns the maximum batch size.
func (p *Provider) MaxBatchSize() int {
	return p.config.BatchSize
}

// Warmup tests the API connection and learns the model's dimensions.
func (p *Provider) Warmup(ctx context.Context) error {
	if p.config.APIKey == "" && p.config.BaseURL == "" {
		return fmt.Errorf("openai: %w (set OPENAI_API_KEY)", types.ErrNoAPIKey)
	}
	_, err := p.Embed(ctx, []string{"warmup"})
	return err
}

// Close releases resources.
func (p *Provider) Close() error {
	return nil
}

var _ provider.EmbeddingProvider = (*Provider)(nil)
