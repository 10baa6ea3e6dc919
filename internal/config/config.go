// Package config handles configuration loading and validation.
package config

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/spetr/pyast-rag/pkg/types"
)

// EnvPrefix prefixes environment overrides, e.g. PYAST_RAG_LLM_API_KEY.
const EnvPrefix = "PYAST_RAG"

// Config represents the complete configuration.
type Config struct {
	Embedding   EmbeddingConfig   `mapstructure:"embedding" yaml:"embedding"`
	Chunking    ChunkingConfig    `mapstructure:"chunking" yaml:"chunking"`
	Search      SearchConfig      `mapstructure:"search" yaml:"search"`
	VectorStore VectorStoreConfig `mapstructure:"vectorstore" yaml:"vectorstore"`
	Index       IndexConfig       `mapstructure:"index" yaml:"index"`
	Limits      LimitsConfig      `mapstructure:"limits" yaml:"limits"`
	LLM         LLMConfig         `mapstructure:"llm" yaml:"llm"`
	Plugins     PluginsConfig     `mapstructure:"plugins" yaml:"plugins"`
	Logging     LoggingConfig     `mapstructure:"logging" yaml:"logging"`
}

// EmbeddingConfig contains embedding provider configuration.
type EmbeddingConfig struct {
	Provider  string `mapstructure:"provider" yaml:"provider"`     // ollama, openai, plugin
	Model     string `mapstructure:"model" yaml:"model"`           // model name
	Endpoint  string `mapstructure:"endpoint" yaml:"endpoint"`     // API endpoint or OpenAI-compatible base URL
	APIKey    string `mapstructure:"api_key" yaml:"api_key"`       // API key
	BatchSize int    `mapstructure:"batch_size" yaml:"batch_size"` // documents per batch
	Plugin    string `mapstructure:"plugin" yaml:"plugin"`         // plugin binary when provider is plugin
}

// ChunkingConfig contains chunking strategy configuration.
type ChunkingConfig struct {
	Strategy string `mapstructure:"strategy" yaml:"strategy"` // treesitter
}

// SearchConfig contains search configuration.
type SearchConfig struct {
	Mode           string  `mapstructure:"mode" yaml:"mode"`                       // vector, bm25, hybrid
	VectorWeight   float32 `mapstructure:"vector_weight" yaml:"vector_weight"`     // weight for vector search
	BM25Weight     float32 `mapstructure:"bm25_weight" yaml:"bm25_weight"`         // weight for BM25
	DefaultLimit   int     `mapstructure:"default_limit" yaml:"default_limit"`     // default result limit
	IncludeRelated bool    `mapstructure:"include_related" yaml:"include_related"` // attach dependency chunks
	RelatedLimit   int     `mapstructure:"related_limit" yaml:"related_limit"`     // related chunks per hit
}

// VectorStoreConfig contains vector store configuration.
type VectorStoreConfig struct {
	Provider string `mapstructure:"provider" yaml:"provider"` // sqlitevec
}

// IndexConfig contains indexing configuration.
type IndexConfig struct {
	Include      []string `mapstructure:"include" yaml:"include"`             // glob patterns to include
	Exclude      []string `mapstructure:"exclude" yaml:"exclude"`             // glob patterns to exclude
	UseGitIgnore bool     `mapstructure:"use_gitignore" yaml:"use_gitignore"` // list files with git ls-files
}

// LimitsConfig contains resource limits.
type LimitsConfig struct {
	MaxFileSize   string        `mapstructure:"max_file_size" yaml:"max_file_size"`     // e.g., "1MB"
	MaxFiles      int           `mapstructure:"max_files" yaml:"max_files"`             // max files to index
	MaxEmbedChars int           `mapstructure:"max_embed_chars" yaml:"max_embed_chars"` // chunk text sent to the embedder
	FileTimeout   time.Duration `mapstructure:"file_timeout" yaml:"file_timeout"`       // per-file parse bound
	Timeout       time.Duration `mapstructure:"timeout" yaml:"timeout"`                 // whole indexing run
	Workers       int           `mapstructure:"workers" yaml:"workers"`                 // 0 = runtime.NumCPU()
}

// LLMConfig configures answer generation for the ask command.
type LLMConfig struct {
	Provider      string  `mapstructure:"provider" yaml:"provider"`             // openai (any compatible endpoint)
	Model         string  `mapstructure:"model" yaml:"model"`                   // chat model
	BaseURL       string  `mapstructure:"base_url" yaml:"base_url"`             // optional compatible endpoint
	APIKey        string  `mapstructure:"api_key" yaml:"api_key"`               // falls back to OPENAI_API_KEY
	MaxTokens     int     `mapstructure:"max_tokens" yaml:"max_tokens"`         // answer length bound
	Temperature   float32 `mapstructure:"temperature" yaml:"temperature"`       // sampling temperature
	ContextChunks int     `mapstructure:"context_chunks" yaml:"context_chunks"` // snippets in the prompt
}

// PluginsConfig locates external plugins.
type PluginsConfig struct {
	Dir      string `mapstructure:"dir" yaml:"dir"`             // relative to the config dir
	LogLevel string `mapstructure:"log_level" yaml:"log_level"` // hclog level for plugin output
}

// LoggingConfig contains logging configuration.
type LoggingConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`   // debug, info, warn, error
	Format string `mapstructure:"format" yaml:"format"` // text, json
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Embedding: EmbeddingConfig{
			Provider:  "ollama",
			Model:     "nomic-embed-text",
			Endpoint:  "http://localhost:11434",
			BatchSize: 32,
		},
		Chunking: ChunkingConfig{
			Strategy: "treesitter",
		},
		Search: SearchConfig{
			Mode:         "hybrid",
			VectorWeight: 0.7,
			BM25Weight:   0.3,
			DefaultLimit: 10,
			RelatedLimit: 3,
		},
		VectorStore: VectorStoreConfig{
			Provider: "sqlitevec",
		},
		Index: IndexConfig{
			Include: []string{"**/*.py", "**/*.pyi"},
			Exclude: []string{
				"**/.git/**", "**/.venv/**", "**/venv/**", "**/env/**",
				"**/__pycache__/**", "**/site-packages/**", "**/.tox/**",
				"**/.mypy_cache/**", "**/build/**", "**/dist/**",
				"**/node_modules/**", "**/*_pb2.py", "**/*_pb2_grpc.py",
			},
			UseGitIgnore: true,
		},
		Limits: LimitsConfig{
			MaxFileSize:   "1MB",
			MaxFiles:      50000,
			MaxEmbedChars: 8000,
			FileTimeout:   10 * time.Second,
			Timeout:       30 * time.Minute,
		},
		LLM: LLMConfig{
			Provider:      "openai",
			Model:         "gpt-4o-mini",
			MaxTokens:     1024,
			Temperature:   0.2,
			ContextChunks: 5,
		},
		Plugins: PluginsConfig{
			Dir:      "plugins",
			LogLevel: "warn",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// ConfigDir returns the path to the .pyast-rag directory.
func ConfigDir(projectRoot string) string {
	return filepath.Join(projectRoot, ".pyast-rag")
}

// ConfigPath returns the path to config.yaml.
func ConfigPath(projectRoot string) string {
	return filepath.Join(ConfigDir(projectRoot), "config.yaml")
}

// IndexDBPath returns the path to index.db.
func IndexDBPath(projectRoot string) string {
	return filepath.Join(ConfigDir(projectRoot), "index.db")
}

// PluginDir resolves the plugins directory against the config dir.
func (c *Config) PluginDir(projectRoot string) string {
	if filepath.IsAbs(c.Plugins.Dir) {
		return c.Plugins.Dir
	}
	return filepath.Join(ConfigDir(projectRoot), c.Plugins.Dir)
}

// envKeys are the settings that may come from PYAST_RAG_* variables.
var envKeys = []string{
	"embedding.provider", "embedding.model", "embedding.endpoint", "embedding.api_key",
	"llm.model", "llm.base_url", "llm.api_key",
	"logging.level",
}

// Load loads configuration from file and environment, falling back to
// defaults. The returned warnings describe defaults that were applied.
func Load(projectRoot string) (*Config, []string, error) {
	cfg := DefaultConfig()
	warnings := []string{}

	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	for _, key := range envKeys {
		if err := v.BindEnv(key); err != nil {
			return nil, nil, err
		}
	}

	configPath := ConfigPath(projectRoot)
	if _, err := os.Stat(configPath); errors.Is(err, fs.ErrNotExist) {
		warnings = append(warnings, "No config file found, using defaults")
	} else {
		v.SetConfigFile(configPath)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, nil, fmt.Errorf("failed to parse config: %w", err)
	}

	def := DefaultConfig()
	if cfg.Embedding.Provider == "" {
		cfg.Embedding.Provider = def.Embedding.Provider
		warnings = append(warnings, "Using default embedding provider: "+def.Embedding.Provider)
	}
	if cfg.Embedding.Model == "" && cfg.Embedding.Provider == def.Embedding.Provider {
		cfg.Embedding.Model = def.Embedding.Model
	}
	if cfg.Embedding.BatchSize == 0 {
		cfg.Embedding.BatchSize = def.Embedding.BatchSize
	}
	if cfg.Chunking.Strategy == "" {
		cfg.Chunking.Strategy = def.Chunking.Strategy
	}
	if cfg.Search.DefaultLimit == 0 {
		cfg.Search.DefaultLimit = def.Search.DefaultLimit
	}
	if cfg.Search.RelatedLimit == 0 {
		cfg.Search.RelatedLimit = def.Search.RelatedLimit
	}
	if cfg.Search.VectorWeight == 0 && cfg.Search.BM25Weight == 0 {
		cfg.Search.VectorWeight = def.Search.VectorWeight
		cfg.Search.BM25Weight = def.Search.BM25Weight
	}
	if len(cfg.Index.Include) == 0 {
		cfg.Index.Include = def.Index.Include
		warnings = append(warnings, "No include patterns, indexing **/*.py")
	}

	return cfg, warnings, nil
}

// Save saves configuration to file.
func Save(projectRoot string, cfg *Config) error {
	if err := os.MkdirAll(ConfigDir(projectRoot), 0755); err != nil {
		return fmt.Errorf("failed to create config dir: %w", err)
	}

	v := viper.New()
	v.SetConfigFile(ConfigPath(projectRoot))
	v.SetConfigType("yaml")

	v.Set("embedding", cfg.Embedding)
	v.Set("chunking", cfg.Chunking)
	v.Set("search", cfg.Search)
	v.Set("vectorstore", cfg.VectorStore)
	v.Set("index", cfg.Index)
	v.Set("limits", cfg.Limits)
	v.Set("llm", cfg.LLM)
	v.Set("plugins", cfg.Plugins)
	v.Set("logging", cfg.Logging)

	return v.WriteConfig()
}

// Validate validates the configuration. Every returned error wraps
// types.ErrInvalidConfig.
func Validate(cfg *Config) []error {
	var errs []error
	invalid := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf("%w: "+format, append([]any{types.ErrInvalidConfig}, args...)...))
	}

	if !slices.Contains([]string{"ollama", "openai", "plugin"}, cfg.Embedding.Provider) {
		invalid("embedding provider %q (valid: ollama, openai, plugin)", cfg.Embedding.Provider)
	}
	if cfg.Embedding.Provider == "plugin" && cfg.Embedding.Plugin == "" {
		invalid("embedding.plugin is required when provider is plugin")
	}
	if cfg.Embedding.BatchSize < 0 {
		invalid("embedding.batch_size must not be negative")
	}

	if cfg.Chunking.Strategy != "treesitter" {
		invalid("chunking strategy %q (valid: treesitter)", cfg.Chunking.Strategy)
	}

	if cfg.Search.Mode != "" && !slices.Contains([]string{"vector", "bm25", "hybrid"}, cfg.Search.Mode) {
		invalid("search mode %q (valid: vector, bm25, hybrid)", cfg.Search.Mode)
	}
	if cfg.Search.VectorWeight < 0 || cfg.Search.BM25Weight < 0 {
		invalid("search weights must not be negative")
	}

	if cfg.VectorStore.Provider != "sqlitevec" {
		invalid("vector store %q (valid: sqlitevec)", cfg.VectorStore.Provider)
	}

	if _, err := ParseSize(cfg.Limits.MaxFileSize); err != nil {
		invalid("limits.max_file_size: %v", err)
	}
	if cfg.Limits.Workers < 0 {
		invalid("limits.workers must not be negative")
	}

	if cfg.LLM.Provider != "" && cfg.LLM.Provider != "openai" {
		invalid("llm provider %q (valid: openai)", cfg.LLM.Provider)
	}

	if cfg.Logging.Format != "" && cfg.Logging.Format != "text" && cfg.Logging.Format != "json" {
		invalid("logging format %q (valid: text, json)", cfg.Logging.Format)
	}

	return errs
}

// Hash returns a hash of the settings that change stored chunks or vectors.
// A different hash means the index must be rebuilt.
func (c *Config) Hash() string {
	data := fmt.Sprintf("%s:%s:%s:%s:%d",
		c.Embedding.Provider,
		c.Embedding.Model,
		c.Embedding.Plugin,
		c.Chunking.Strategy,
		c.Limits.MaxEmbedChars,
	)
	h := sha256.Sum256([]byte(data))
	return hex.EncodeToString(h[:])
}

// Copy creates a deep copy of the config.
func (c *Config) Copy() *Config {
	dup := *c
	dup.Index.Include = slices.Clone(c.Index.Include)
	dup.Index.Exclude = slices.Clone(c.Index.Exclude)
	return &dup
}

// MaxFileSizeBytes returns limits.max_file_size in bytes, zero for no limit.
func (l LimitsConfig) MaxFileSizeBytes() int64 {
	n, err := ParseSize(l.MaxFileSize)
	if err != nil {
		return 0
	}
	return n
}

// ParseSize parses sizes like "512KB", "1MB" or "1048576". An empty string
// is zero.
func ParseSize(s string) (int64, error) {
	s = strings.ToUpper(strings.TrimSpace(s))
	if s == "" {
		return 0, nil
	}

	mult := int64(1)
	for _, unit := range []struct {
		suffix string
		mult   int64
	}{
		{"GB", 1 << 30},
		{"MB", 1 << 20},
		{"KB", 1 << 10},
		{"B", 1},
	} {
		if strings.HasSuffix(s, unit.suffix) {
			s = strings.TrimSpace(strings.TrimSuffix(s, unit.suffix))
			mult = unit.mult
			break
		}
	}

	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("invalid size %q", s)
	}
	return n * mult, nil
}
