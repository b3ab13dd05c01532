package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds the corpora API configuration.
type Config struct {
	HTTP        HTTPConfig        `yaml:"http"`
	Redis       RedisConfig       `yaml:"redis"`
	VectorStore VectorStoreConfig `yaml:"vector_store"`
	Embedding   EmbeddingConfig   `yaml:"embedding"`
	Chunking    ChunkingConfig    `yaml:"chunking"`
	Knowledge   KnowledgeConfig   `yaml:"knowledge"`
	Metadata    MetadataConfig    `yaml:"metadata"`
	Auth        AuthConfig        `yaml:"auth"`
	Logging     LoggingConfig     `yaml:"logging"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error (default: determined by env)
}

// AuthConfig maps bearer API keys to user IDs. An empty map disables
// authentication (development only).
type AuthConfig struct {
	APIKeys map[string]string `yaml:"api_keys"`
}

// HTTPConfig holds HTTP server settings.
type HTTPConfig struct {
	Port            int   `yaml:"port"`
	ReadTimeoutSec  int   `yaml:"read_timeout_sec"`
	WriteTimeoutSec int   `yaml:"write_timeout_sec"`
	ShutdownSec     int   `yaml:"shutdown_timeout_sec"`
	MaxUploadBytes  int64 `yaml:"max_upload_bytes"`
}

// RedisConfig holds connection settings for the redis instance backing the
// metadata repository, embedding cache, budget counters, and (optionally)
// the redis vector backend.
type RedisConfig struct {
	Addrs            []string `yaml:"addrs"`
	Password         string   `yaml:"password"`
	ReadinessTimeout int      `yaml:"readiness_timeout_sec"`
}

// VectorStoreConfig selects and configures the vector backend.
type VectorStoreConfig struct {
	Backend    string       `yaml:"backend"` // qdrant, redis, memory (default: redis)
	Dimensions int          `yaml:"dimensions"`
	Qdrant     QdrantConfig `yaml:"qdrant"`
	// IndexName is the qdrant collection / redis FT index base name.
	IndexName string `yaml:"index_name"`
	HNSWM     int    `yaml:"hnsw_m"`
	HNSWEF    int    `yaml:"hnsw_ef_construction"`
}

// QdrantConfig holds qdrant connection settings (gRPC).
type QdrantConfig struct {
	Host   string `yaml:"host"`
	Port   int    `yaml:"port"`
	APIKey string `yaml:"api_key"`
	UseTLS bool   `yaml:"use_tls"`
}

// EmbeddingConfig holds embedding provider settings.
type EmbeddingConfig struct {
	Provider      string       `yaml:"provider"` // openai, gemini, voyage
	Model         string       `yaml:"model"`
	Dimensions    int          `yaml:"dimensions"`
	APIKey        string       `yaml:"api_key"`
	BaseURL       string       `yaml:"base_url"`
	BatchSize     int          `yaml:"batch_size"`
	MaxRetries    int          `yaml:"max_retries"`
	RetryDelayMS  int          `yaml:"retry_delay_ms"`
	RatePerSecond float64      `yaml:"rate_per_second"` // 0 = unlimited
	Cache         bool         `yaml:"cache"`
	Budget        BudgetConfig `yaml:"budget"`
}

// BudgetConfig holds token budget settings.
type BudgetConfig struct {
	DailyTokenLimit   int64  `yaml:"daily_token_limit"`   // 0 = unlimited
	MonthlyTokenLimit int64  `yaml:"monthly_token_limit"` // 0 = unlimited
	Action            string `yaml:"action"`              // "reject" | "warn" (default)
}

// ChunkingConfig holds document splitting settings.
type ChunkingConfig struct {
	Strategy     string `yaml:"strategy"` // fixed, paragraph, sentence, semantic, recursive
	ChunkSize    int    `yaml:"chunk_size"`
	ChunkOverlap int    `yaml:"chunk_overlap"`
	MinChunkSize int    `yaml:"min_chunk_size"`
	MaxChunkSize int    `yaml:"max_chunk_size"`
}

// KnowledgeConfig holds retrieval defaults.
type KnowledgeConfig struct {
	MinScore         float64 `yaml:"min_score"`
	DefaultTopK      int     `yaml:"default_top_k"`
	MaxContextTokens int     `yaml:"max_context_tokens"`
}

// MetadataConfig selects the document metadata store.
type MetadataConfig struct {
	Store string `yaml:"store"` // redis, memory (default: redis)
}

// Load reads configuration from a YAML file by environment name (local, dev, prod).
func Load(env string) (Config, error) {
	configPath := findConfigPath(env)

	data, err := os.ReadFile(filepath.Clean(configPath))
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config %s: %w", configPath, err)
	}

	// Substitute env variables of the form ${VAR} / ${VAR:-default}
	data = expandEnvVars(data)

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// GetEnv returns the current environment from the ENV variable, defaulting to "local".
func GetEnv() string {
	if env := os.Getenv("ENV"); env != "" {
		return env
	}
	return "local"
}

// ApplyDefaults fills empty fields with default values.
func (c *Config) ApplyDefaults() {
	if c.HTTP.ReadTimeoutSec <= 0 {
		c.HTTP.ReadTimeoutSec = 10
	}
	if c.HTTP.WriteTimeoutSec <= 0 {
		c.HTTP.WriteTimeoutSec = 30
	}
	if c.HTTP.ShutdownSec <= 0 {
		c.HTTP.ShutdownSec = 10
	}
	if c.HTTP.MaxUploadBytes <= 0 {
		c.HTTP.MaxUploadBytes = 32 << 20
	}
	if c.Redis.ReadinessTimeout <= 0 {
		c.Redis.ReadinessTimeout = 10
	}
	if c.VectorStore.Backend == "" {
		c.VectorStore.Backend = "redis"
	}
	if c.VectorStore.IndexName == "" {
		c.VectorStore.IndexName = "corpora-chunks"
	}
	if c.VectorStore.HNSWM <= 0 {
		c.VectorStore.HNSWM = 32
	}
	if c.VectorStore.HNSWEF <= 0 {
		c.VectorStore.HNSWEF = 400
	}
	if c.VectorStore.Dimensions <= 0 {
		c.VectorStore.Dimensions = c.Embedding.Dimensions
	}
	if c.Embedding.Provider == "" {
		c.Embedding.Provider = "openai"
	}
	if c.Embedding.BatchSize <= 0 {
		c.Embedding.BatchSize = 100
	}
	if c.Embedding.MaxRetries <= 0 {
		c.Embedding.MaxRetries = 3
	}
	if c.Embedding.RetryDelayMS <= 0 {
		c.Embedding.RetryDelayMS = 1000
	}
	if c.Chunking.Strategy == "" {
		c.Chunking.Strategy = "recursive"
	}
	if c.Chunking.ChunkSize <= 0 {
		c.Chunking.ChunkSize = 512
	}
	if c.Chunking.ChunkOverlap <= 0 {
		c.Chunking.ChunkOverlap = 50
	}
	if c.Chunking.MinChunkSize <= 0 {
		c.Chunking.MinChunkSize = 32
	}
	if c.Chunking.MaxChunkSize <= 0 {
		c.Chunking.MaxChunkSize = 1024
	}
	if c.Knowledge.MinScore <= 0 {
		c.Knowledge.MinScore = 0.7
	}
	if c.Knowledge.DefaultTopK <= 0 {
		c.Knowledge.DefaultTopK = 5
	}
	if c.Knowledge.MaxContextTokens <= 0 {
		c.Knowledge.MaxContextTokens = 4000
	}
	if c.Metadata.Store == "" {
		c.Metadata.Store = "redis"
	}
}

// Validate checks the configuration for correctness.
func (c *Config) Validate() error {
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http.port must be between 1 and 65535, got %d", c.HTTP.Port)
	}

	switch c.VectorStore.Backend {
	case "qdrant":
		if c.VectorStore.Qdrant.Host == "" {
			return fmt.Errorf("vector_store.qdrant.host is required for the qdrant backend")
		}
	case "redis":
		if len(c.Redis.Addrs) == 0 {
			return fmt.Errorf("redis.addrs is required for the redis backend")
		}
	case "memory":
		// development only, nothing to check
	default:
		return fmt.Errorf("vector_store.backend must be qdrant, redis, or memory, got %q", c.VectorStore.Backend)
	}

	switch c.Embedding.Provider {
	case "openai", "gemini", "voyage":
	default:
		return fmt.Errorf("embedding.provider must be openai, gemini, or voyage, got %q", c.Embedding.Provider)
	}

	switch c.Metadata.Store {
	case "redis":
		if len(c.Redis.Addrs) == 0 {
			return fmt.Errorf("redis.addrs is required for the redis metadata store")
		}
	case "memory":
	default:
		return fmt.Errorf("metadata.store must be redis or memory, got %q", c.Metadata.Store)
	}

	switch c.Embedding.Budget.Action {
	case "", "warn", "reject":
	default:
		return fmt.Errorf("embedding.budget.action must be \"warn\" or \"reject\", got %q", c.Embedding.Budget.Action)
	}

	if c.Chunking.MinChunkSize > c.Chunking.ChunkSize {
		return fmt.Errorf("chunking.min_chunk_size %d exceeds chunk_size %d",
			c.Chunking.MinChunkSize, c.Chunking.ChunkSize)
	}
	if c.Chunking.ChunkSize > c.Chunking.MaxChunkSize {
		return fmt.Errorf("chunking.chunk_size %d exceeds max_chunk_size %d",
			c.Chunking.ChunkSize, c.Chunking.MaxChunkSize)
	}
	if c.Chunking.ChunkOverlap >= c.Chunking.ChunkSize {
		return fmt.Errorf("chunking.chunk_overlap %d must be below chunk_size %d",
			c.Chunking.ChunkOverlap, c.Chunking.ChunkSize)
	}

	return nil
}

// findConfigPath locates the config file.
func findConfigPath(env string) string {
	filename := fmt.Sprintf("%s.yaml", env)

	// 1. Check ./config/
	if path := filepath.Join("config", filename); fileExists(path) {
		return path
	}

	// 2. Check relative to the source file
	_, b, _, _ := runtime.Caller(0)
	projectRoot := filepath.Dir(filepath.Dir(filepath.Dir(b))) // internal/config -> project root
	if path := filepath.Join(projectRoot, "config", filename); fileExists(path) {
		return path
	}

	// 3. Fallback to ./config/
	return filepath.Join("config", filename)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// expandEnvVars replaces ${VAR} and ${VAR:-default} with environment variable values.
var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}`)

func expandEnvVars(data []byte) []byte {
	return envVarRegex.ReplaceAllFunc(data, func(match []byte) []byte {
		expr := string(match[2 : len(match)-1]) // strip ${ and }
		varName, defaultVal, hasDefault := strings.Cut(expr, ":-")
		val := os.Getenv(varName)
		if val == "" && hasDefault {
			val = defaultVal
		}
		return []byte(val)
	})
}
