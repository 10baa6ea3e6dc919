// Package answer turns retrieved chunks into a prompt and asks a chat model
// to answer a question about the code.
package answer

import (
	"context"
	"fmt"
	"os"
	"strings"
	"unicode/utf8"

	"github.com/sashabaranov/go-openai"

	"github.com/spetr/pyast-rag/pkg/types"
)

const systemPrompt = "You are a senior Python engineer answering questions about a codebase."

// previewChars bounds the snippet shown when no model is available.
const previewChars = 100

// BuildPrompt formats the search hits as numbered python snippets followed
// by the question.
func BuildPrompt(query string, results []*types.SearchResult) string {
	var b strings.Builder
	b.WriteString("The following code snippets were retrieved for the user's question:\n---\n")

	for i, r := range results {
		if i > 0 {
			b.WriteString("\n\n")
		}
		c := r.Chunk
		fmt.Fprintf(&b, "Snippet %d | File: %s | Name: %s", i+1, c.FilePath, c.Name)
		if c.ParentName != "" {
			fmt.Fprintf(&b, " (Class: %s)", c.ParentName)
		}
		b.WriteString("\n```python\n")
		b.WriteString(c.Content)
		b.WriteString("\n```")
	}

	b.WriteString("\n---\nThe user's question is: ")
	b.WriteString(query)
	b.WriteString("\nAnswer the question in detail using only the snippets above. " +
		"If they do not contain the answer, say so honestly.")
	return b.String()
}

// Preview describes the first hit for when no model can be called.
func Preview(results []*types.SearchResult) string {
	if len(results) == 0 {
		return "No relevant code snippets found."
	}
	c := results[0].Chunk
	content := c.Content
	if len(content) > previewChars {
		cut := previewChars
		for cut > 0 && !utf8.RuneStart(content[cut]) {
			cut--
		}
		content = content[:cut]
	}
	return fmt.Sprintf("Retrieved %d snippets. Preview of the first snippet:\n--- %s ---\n%s...",
		len(results), c.Name, content)
}

// Config contains generator configuration.
type Config struct {
	Model       string
	BaseURL     string // Optional: OpenAI-compatible endpoint
	APIKey      string // If empty, uses OPENAI_API_KEY env var
	MaxTokens   int
	Temperature float32
}

// Generator answers questions with an OpenAI-compatible chat model.
type Generator struct {
	config Config
	client *openai.Client
}

// NewGenerator creates a generator. It does not contact the endpoint.
func NewGenerator(cfg Config) *Generator {
	if cfg.Model == "" {
		cfg.Model = openai.GPT4oMini
	}
	if cfg.APIKey == "" {
		cfg.APIKey = os.Getenv("OPENAI_API_KEY")
	}

	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}
	return &Generator{config: cfg, client: openai.NewClientWithConfig(clientConfig)}
}

// Available reports whether credentials are configured.
func (g *Generator) Available() bool {
	return g.config.APIKey != ""
}

// Answer asks the model about query using results as the only context.
// It returns types.ErrNoAPIKey without credentials and types.ErrNotFound
// when there is nothing to answer from.
func (g *Generator) Answer(ctx context.Context, query string, results []*types.SearchResult) (string, error) {
	if len(results) == 0 {
		return "", fmt.Errorf("no relevant code snippets: %w", types.ErrNotFound)
	}
	if !g.Available() {
		return "", types.ErrNoAPIKey
	}

	resp, err := g.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: g.config.Model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: BuildPrompt(query, results)},
		},
		MaxTokens:   g.config.MaxTokens,
		Temperature: g.config.Temperature,
	})
	if err != nil {
		return "", fmt.Errorf("chat completion failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("chat completion returned no choices")
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}
