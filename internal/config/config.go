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

// Vector storage backends.
const (
	BackendSQLite = "sqlite"
	BackendRedis  = "redis"
)

// Embedding providers.
const (
	ProviderHash   = "hash"
	ProviderOpenAI = "openai"
)

// Config holds the DocuChat API configuration.
type Config struct {
	HTTP       HTTPConfig       `yaml:"http"`
	CORS       CORSConfig       `yaml:"cors"`
	Storage    StorageConfig    `yaml:"storage"`
	Database   DatabaseConfig   `yaml:"database"`
	Embedding  EmbeddingConfig  `yaml:"embedding"`
	Chunking   ChunkingConfig   `yaml:"chunking"`
	Retrieval  RetrievalConfig  `yaml:"retrieval"`
	Completion CompletionConfig `yaml:"completion"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error (default: determined by env)
}

// HTTPConfig holds HTTP server settings.
type HTTPConfig struct {
	Port             int  `yaml:"port"`
	ReadTimeoutSec   int  `yaml:"read_timeout_sec"`
	WriteTimeoutSec  int  `yaml:"write_timeout_sec"`
	ShutdownSec      int  `yaml:"shutdown_timeout_sec"`
	MaxUploadMB      int  `yaml:"max_upload_mb"`
	ErrorStatusCodes bool `yaml:"error_status_codes"` // false: every error is HTTP 200 with {"error": ...}
}

// CORSConfig lists origins allowed to call the API from a browser.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// StorageConfig holds on-disk layout and vector backend selection.
type StorageConfig struct {
	UploadDir string `yaml:"upload_dir"`
	VectorDir string `yaml:"vector_dir"`
	Backend   string `yaml:"backend"` // sqlite (default), redis
	KeyPrefix string `yaml:"key_prefix"`
}

// DatabaseConfig holds Redis connection settings, used by the redis backend only.
type DatabaseConfig struct {
	Addrs            []string `yaml:"addrs"`
	Password         string   `yaml:"password"`
	ReadinessTimeout int      `yaml:"readiness_timeout_sec"`
}

// EmbeddingConfig selects the embedder.
type EmbeddingConfig struct {
	Provider   string `yaml:"provider"` // hash (default), openai
	APIKey     string `yaml:"api_key"`
	BaseURL    string `yaml:"base_url"`
	Model      string `yaml:"model"`
	Dimensions int    `yaml:"dimensions"`
}

// ChunkingConfig holds splitter parameters.
type ChunkingConfig struct {
	Size    int  `yaml:"size"`
	Overlap *int `yaml:"overlap"`
}

// RetrievalConfig holds nearest-neighbour search settings.
type RetrievalConfig struct {
	TopK int `yaml:"top_k"`
}

// CompletionConfig holds the completion API settings.
type CompletionConfig struct {
	APIKey             string   `yaml:"api_key"`
	BaseURL            string   `yaml:"base_url"`
	Model              string   `yaml:"model"`
	AnswerTemperature  *float32 `yaml:"answer_temperature"`
	SummaryTemperature *float32 `yaml:"summary_temperature"`
	SummaryMaxTokens   int      `yaml:"summary_max_tokens"`
	SummaryMaxChars    int      `yaml:"summary_max_chars"`
	TimeoutSec         int      `yaml:"timeout_sec"`
}

// Load reads configuration from a YAML file by environment name (local, dev, prod).
func Load(env string) (Config, error) {
	configPath := findConfigPath(env)

	data, err := os.ReadFile(filepath.Clean(configPath))
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config %s: %w", configPath, err)
	}

	return Parse(data)
}

// Parse decodes YAML config bytes, expanding ${VAR} references first.
func Parse(data []byte) (Config, error) {
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

// MustLoad loads configuration or panics.
func MustLoad(env string) Config {
	cfg, err := Load(env)
	if err != nil {
		panic(err)
	}
	return cfg
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
	if c.HTTP.Port == 0 {
		c.HTTP.Port = 8000
	}
	if c.HTTP.ReadTimeoutSec <= 0 {
		c.HTTP.ReadTimeoutSec = 30
	}
	if c.HTTP.WriteTimeoutSec <= 0 {
		c.HTTP.WriteTimeoutSec = 120
	}
	if c.HTTP.ShutdownSec <= 0 {
		c.HTTP.ShutdownSec = 10
	}
	if c.HTTP.MaxUploadMB <= 0 {
		c.HTTP.MaxUploadMB = 50
	}
	if len(c.CORS.AllowedOrigins) == 0 {
		c.CORS.AllowedOrigins = []string{"*"}
	}
	if c.Storage.UploadDir == "" {
		c.Storage.UploadDir = "uploaded_pdfs"
	}
	if c.Storage.VectorDir == "" {
		c.Storage.VectorDir = "chroma_db"
	}
	if c.Storage.Backend == "" {
		c.Storage.Backend = BackendSQLite
	}
	if c.Storage.KeyPrefix == "" {
		c.Storage.KeyPrefix = "docuchat:"
	}
	if c.Database.ReadinessTimeout <= 0 {
		c.Database.ReadinessTimeout = 10
	}
	if c.Embedding.Provider == "" {
		c.Embedding.Provider = ProviderHash
	}
	if c.Embedding.Provider == ProviderOpenAI && c.Embedding.Model == "" {
		c.Embedding.Model = "text-embedding-3-small"
	}
	if c.Embedding.Provider == ProviderOpenAI && c.Embedding.APIKey == "" {
		c.Embedding.APIKey = c.Completion.APIKey
	}
	if c.Chunking.Size <= 0 {
		c.Chunking.Size = 1000
	}
	if c.Chunking.Overlap == nil {
		overlap := 200
		c.Chunking.Overlap = &overlap
	}
	if c.Retrieval.TopK <= 0 {
		c.Retrieval.TopK = 4
	}
	if c.Completion.Model == "" {
		c.Completion.Model = "gpt-3.5-turbo"
	}
	if c.Completion.AnswerTemperature == nil {
		c.Completion.AnswerTemperature = float32Ptr(0)
	}
	if c.Completion.SummaryTemperature == nil {
		c.Completion.SummaryTemperature = float32Ptr(0.3)
	}
	if c.Completion.SummaryMaxTokens <= 0 {
		c.Completion.SummaryMaxTokens = 512
	}
	if c.Completion.SummaryMaxChars <= 0 {
		c.Completion.SummaryMaxChars = 6000
	}
	if c.Completion.TimeoutSec <= 0 {
		c.Completion.TimeoutSec = 60
	}
}

// Validate checks the configuration for correctness.
func (c *Config) Validate() error {
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http.port must be between 1 and 65535, got %d", c.HTTP.Port)
	}
	switch c.Storage.Backend {
	case BackendSQLite:
	case BackendRedis:
		if len(c.Database.Addrs) == 0 {
			return fmt.Errorf("database.addrs is required for the redis backend")
		}
	default:
		return fmt.Errorf("storage.backend must be %q or %q, got %q", BackendSQLite, BackendRedis, c.Storage.Backend)
	}
	switch c.Embedding.Provider {
	case ProviderHash, ProviderOpenAI:
	default:
		return fmt.Errorf("embedding.provider must be %q or %q, got %q", ProviderHash, ProviderOpenAI, c.Embedding.Provider)
	}
	if c.Chunking.Overlap != nil && (*c.Chunking.Overlap < 0 || *c.Chunking.Overlap >= c.Chunking.Size) {
		return fmt.Errorf("chunking.overlap must be in [0, %d), got %d", c.Chunking.Size, *c.Chunking.Overlap)
	}
	return nil
}

func float32Ptr(v float32) *float32 { return &v }

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
