// Package wizard checks that a project's configuration can actually index
// and answer: providers reachable, models present, credentials set.
package wizard

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	ollamaEmbed "github.com/spetr/pyast-rag/builtin/embedding/ollama"
	"github.com/spetr/pyast-rag/internal/config"
	"github.com/spetr/pyast-rag/pkg/provider"
)

// Status values of a check.
const (
	StatusOK      = "ok"
	StatusWarning = "warning"
	StatusError   = "error"
	StatusSkipped = "skipped"
)

// probeSource is embedded to verify the embedding provider end to end.
const probeSource = "def probe(value):\n    return value"

// CheckResult contains a single check result.
type CheckResult struct {
	Name    string `json:"name"`
	Status  string `json:"status"`
	Message string `json:"message"`
}

// Report contains all check results. Valid is false when any check failed.
type Report struct {
	Valid  bool          `json:"valid"`
	Checks []CheckResult `json:"checks"`
}

func (r *Report) add(name, status, format string, args ...any) {
	r.Checks = append(r.Checks, CheckResult{Name: name, Status: status, Message: fmt.Sprintf(format, args...)})
	if status == StatusError {
		r.Valid = false
	}
}

// Checker runs environment checks for one project.
type Checker struct {
	root   string
	cfg    *config.Config
	client *http.Client
}

// New creates a checker for the project at root.
func New(root string, cfg *config.Config) *Checker {
	return &Checker{
		root:   root,
		cfg:    cfg,
		client: &http.Client{Timeout: 5 * time.Second},
	}
}

// Run validates the config and exercises embed, when non-nil, with a probe
// text. A nil embed skips the probe.
func (c *Checker) Run(ctx context.Context, embed provider.EmbeddingProvider) *Report {
	r := &Report{Valid: true}

	errs := config.Validate(c.cfg)
	if len(errs) == 0 {
		r.add("config", StatusOK, "configuration is valid")
	}
	for _, err := range errs {
		r.add("config", StatusError, "%v", err)
	}

	switch c.cfg.Embedding.Provider {
	case "ollama":
		c.checkOllama(ctx, r)
	case "plugin":
		c.checkPlugin(r)
	}

	c.checkEmbedding(ctx, r, embed)
	c.checkLLM(r)
	c.checkIndex(r)
	return r
}

func (c *Checker) checkOllama(ctx context.Context, r *Report) {
	endpoint := c.cfg.Embedding.Endpoint
	if endpoint == "" {
		endpoint = ollamaEmbed.DefaultEndpoint
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint+"/api/version", nil)
	if err != nil {
		r.add("ollama_connection", StatusError, "invalid endpoint %q: %v", endpoint, err)
		return
	}
	resp, err := c.client.Do(req)
	if err != nil {
		r.add("ollama_connection", StatusError, "cannot connect to Ollama at %s: %v", endpoint, err)
		return
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		r.add("ollama_connection", StatusError, "Ollama returned status %d", resp.StatusCode)
		return
	}
	r.add("ollama_connection", StatusOK, "connected to Ollama at %s", endpoint)

	model := ollamaEmbed.New(ollamaEmbed.Config{Endpoint: endpoint, Model: c.cfg.Embedding.Model})
	if err := model.Available(ctx); err != nil {
		r.add("embedding_model", StatusError, "%v", err)
		return
	}
	r.add("embedding_model", StatusOK, "model %s available", c.cfg.Embedding.Model)
}

func (c *Checker) checkPlugin(r *Report) {
	path := filepath.Join(c.cfg.PluginDir(c.root), c.cfg.Embedding.Plugin)
	info, err := os.Stat(path)
	switch {
	case err != nil:
		r.add("plugin", StatusError, "plugin %q not found at %s", c.cfg.Embedding.Plugin, path)
	case info.Mode()&0111 == 0:
		r.add("plugin", StatusError, "plugin %s is not executable", path)
	default:
		r.add("plugin", StatusOK, "plugin %s found", path)
	}
}

func (c *Checker) checkEmbedding(ctx context.Context, r *Report, embed provider.EmbeddingProvider) {
	if embed == nil {
		r.add("embedding", StatusSkipped, "no embedding provider created")
		return
	}

	vecs, err := embed.Embed(ctx, []string{probeSource})
	switch {
	case err != nil:
		r.add("embedding", StatusError, "%s failed to embed a probe: %v", embed.Name(), err)
	case len(vecs) != 1 || len(vecs[0]) == 0:
		r.add("embedding", StatusError, "%s returned no vector for a probe", embed.Name())
	case embed.Dimensions() > 0 && len(vecs[0]) != embed.Dimensions():
		r.add("embedding", StatusWarning, "%s returned %d dimensions, expected %d", embed.Name(), len(vecs[0]), embed.Dimensions())
	default:
		r.add("embedding", StatusOK, "%s returned a %d-dimensional vector", embed.Name(), len(vecs[0]))
	}
}

func (c *Checker) checkLLM(r *Report) {
	if c.cfg.LLM.APIKey != "" || os.Getenv("OPENAI_API_KEY") != "" {
		r.add("llm", StatusOK, "API key configured for %s", c.cfg.LLM.Model)
		return
	}
	r.add("llm", StatusWarning, "no API key; ask shows retrieved snippets without an answer")
}

func (c *Checker) checkIndex(r *Report) {
	if _, err := os.Stat(config.IndexDBPath(c.root)); err != nil {
		r.add("index", StatusWarning, "no index yet, run: pyast-rag index")
		return
	}
	r.add("index", StatusOK, "index found at %s", config.IndexDBPath(c.root))
}
