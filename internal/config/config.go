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

// Config holds the visim service configuration.
type Config struct {
	HTTP      HTTPConfig      `yaml:"http"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Cache     CacheConfig     `yaml:"cache"`
	Index     IndexConfig     `yaml:"index"`
	Batch     BatchConfig     `yaml:"batch"`
	Search    SearchConfig    `yaml:"search"`
	Auth      AuthConfig      `yaml:"auth"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error (default: determined by env)
}

// AuthConfig holds API authentication settings.
type AuthConfig struct {
	APIKeys []string `yaml:"api_keys"`
}

// HTTPConfig holds HTTP server settings.
type HTTPConfig struct {
	Port            int `yaml:"port"`
	ReadTimeoutSec  int `yaml:"read_timeout_sec"`
	WriteTimeoutSec int `yaml:"write_timeout_sec"`
	ShutdownSec     int `yaml:"shutdown_timeout_sec"`
	MaxUploadMB     int `yaml:"max_upload_mb"`
}

// EmbeddingConfig selects and configures the extraction backend.
type EmbeddingConfig struct {
	Backend string       `yaml:"backend"` // onnx, openai (default: onnx)
	ONNX    ONNXConfig   `yaml:"onnx"`
	OpenAI  OpenAIConfig `yaml:"openai"`
}

// ONNXConfig holds local inference settings.
type ONNXConfig struct {
	ModelPath  string `yaml:"model_path"`
	InputSize  int    `yaml:"input_size"`
	Dimensions int    `yaml:"dimensions"`
}

// OpenAIConfig holds remote embedding provider settings
// (OpenAI-compatible multimodal embeddings endpoint).
type OpenAIConfig struct {
	APIKey     string `yaml:"api_key"`
	BaseURL    string `yaml:"base_url"`
	Model      string `yaml:"model"`
	Dimensions int    `yaml:"dimensions"`
}

// CacheConfig holds the optional Redis embedding cache settings.
type CacheConfig struct {
	Enabled          bool     `yaml:"enabled"`
	Addrs            []string `yaml:"addrs"`
	Password         string   `yaml:"password"`
	KeyPrefix        string   `yaml:"key_prefix"`
	TTLHours         int      `yaml:"ttl_hours"`
	ReadinessTimeout int      `yaml:"readiness_timeout_sec"`
}

// IndexConfig holds LSH index parameters.
type IndexConfig struct {
	NumHashTables      int   `yaml:"num_hash_tables"`
	HashSize           int   `yaml:"hash_size"`
	Seed               int64 `yaml:"seed"` // 0 = random per session
	ExhaustiveFallback bool  `yaml:"exhaustive_fallback"`
}

// BatchConfig holds batch extraction settings.
type BatchConfig struct {
	Concurrency int `yaml:"concurrency"`
}

// SearchConfig holds query settings.
type SearchConfig struct {
	DefaultK int `yaml:"default_k"`
	MaxK     int `yaml:"max_k"`
}

// Load reads configuration from a YAML file by environment name (local, dev, prod).
func Load(env string) (Config, error) {
	configPath := findConfigPath(env)

	data, err := os.ReadFile(filepath.Clean(configPath))
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config %s: %w", configPath, err)
	}

	// Substitute env variables of the form ${VAR}
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
		c.HTTP.ReadTimeoutSec = 30
	}
	if c.HTTP.WriteTimeoutSec <= 0 {
		// Zip uploads embed every image in the archive before responding.
		c.HTTP.WriteTimeoutSec = 300
	}
	if c.HTTP.ShutdownSec <= 0 {
		c.HTTP.ShutdownSec = 10
	}
	if c.HTTP.MaxUploadMB <= 0 {
		c.HTTP.MaxUploadMB = 512
	}
	if c.Embedding.Backend == "" {
		c.Embedding.Backend = "onnx"
	}
	if c.Embedding.ONNX.InputSize <= 0 {
		c.Embedding.ONNX.InputSize = 224
	}
	if c.Cache.KeyPrefix == "" {
		c.Cache.KeyPrefix = "visim:"
	}
	if c.Cache.TTLHours <= 0 {
		c.Cache.TTLHours = 30 * 24
	}
	if c.Cache.ReadinessTimeout <= 0 {
		c.Cache.ReadinessTimeout = 10
	}
	if c.Index.NumHashTables == 0 {
		c.Index.NumHashTables = 5
	}
	if c.Index.HashSize == 0 {
		c.Index.HashSize = 10
	}
	if c.Batch.Concurrency == 0 {
		c.Batch.Concurrency = 3
	}
	if c.Search.DefaultK == 0 {
		c.Search.DefaultK = 5
	}
	if c.Search.MaxK <= 0 {
		c.Search.MaxK = 100
	}
}

// Validate checks the configuration for correctness. Non-positive index and
// batch parameters are configuration errors, not values to silently clamp.
func (c *Config) Validate() error {
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http.port must be between 1 and 65535, got %d", c.HTTP.Port)
	}
	switch c.Embedding.Backend {
	case "onnx":
		if c.Embedding.ONNX.ModelPath == "" {
			return fmt.Errorf("embedding.onnx.model_path is required for the onnx backend")
		}
	case "openai":
		if c.Embedding.OpenAI.BaseURL == "" {
			return fmt.Errorf("embedding.openai.base_url is required for the openai backend")
		}
		if c.Embedding.OpenAI.Model == "" {
			return fmt.Errorf("embedding.openai.model is required for the openai backend")
		}
	default:
		return fmt.Errorf("embedding.backend must be \"onnx\" or \"openai\", got %q", c.Embedding.Backend)
	}
	if c.Cache.Enabled && len(c.Cache.Addrs) == 0 {
		return fmt.Errorf("cache.addrs is required when cache.enabled is true")
	}
	if c.Index.NumHashTables <= 0 {
		return fmt.Errorf("index.num_hash_tables must be > 0, got %d", c.Index.NumHashTables)
	}
	if c.Index.HashSize <= 0 {
		return fmt.Errorf("index.hash_size must be > 0, got %d", c.Index.HashSize)
	}
	if c.Batch.Concurrency <= 0 {
		return fmt.Errorf("batch.concurrency must be > 0, got %d", c.Batch.Concurrency)
	}
	if c.Search.DefaultK <= 0 {
		return fmt.Errorf("search.default_k must be > 0, got %d", c.Search.DefaultK)
	}
	if c.Search.MaxK < c.Search.DefaultK {
		return fmt.Errorf("search.max_k (%d) must be >= search.default_k (%d)",
			c.Search.MaxK, c.Search.DefaultK)
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
