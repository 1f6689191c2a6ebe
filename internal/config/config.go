package config

import (
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration for the testscout server and CLI.
type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	AI        AIConfig
	Embedding EmbeddingConfig
	Analysis  AnalysisConfig
	Corpus    CorpusConfig
	GitHub    GitHubConfig
	TFS       TFSConfig
	Intake    IntakeConfig
}

type ServerConfig struct {
	Port         int
	Env          string
	RateLimitRPM int
}

type DatabaseConfig struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

type RedisConfig struct {
	URL string
}

type AIConfig struct {
	Provider          string
	InferenceTimeout  time.Duration
	RequestsPerSecond float64
	Ollama            OllamaConfig
	VLLM              VLLMConfig
	OpenAI            OpenAIConfig
	Anthropic         AnthropicConfig
}

type OllamaConfig struct {
	BaseURL string
	Model   string
}

type VLLMConfig struct {
	BaseURL string
	Model   string
}

type OpenAIConfig struct {
	APIKey  string
	Model   string
	BaseURL string
}

type AnthropicConfig struct {
	APIKey  string
	Model   string
	BaseURL string
}

type EmbeddingConfig struct {
	Provider    string
	ServiceURL  string
	Model       string
	Dimensions  int
	Concurrency int
	Timeout     time.Duration
}

// AnalysisConfig holds the pipeline defaults. Nil thresholds keep the
// strictness profile's value.
type AnalysisConfig struct {
	Strictness    string
	MinSimilarity *float64
	AnalysisGate  *float64
	ExportGate    *float64
	AreaBoost     bool
	BoostValue    float64
	PenaltyValue  float64
	TopK          int
	MaxTestChars  int
}

type CorpusConfig struct {
	Path            string
	AreaCatalogPath string
	ReportDir       string
}

type GitHubConfig struct {
	Token   string
	Owner   string
	Repo    string
	BaseURL string
}

type TFSConfig struct {
	BaseURL    string
	Collection string
	Project    string
	PAT        string
	Timeout    time.Duration
}

type IntakeConfig struct {
	CacheTTL time.Duration
}

var validProviders = map[string]bool{
	"ollama":    true,
	"vllm":      true,
	"openai":    true,
	"anthropic": true,
}

var validEmbedders = map[string]bool{
	"hash":   true,
	"ollama": true,
}

var validStrictness = map[string]bool{
	"lenient":  true,
	"moderate": true,
	"strict":   true,
}

// Load reads configuration for the server. DATABASE_URL and REDIS_URL are required.
// Returns an error with a descriptive message if any value is missing or invalid.
func Load() (*Config, error) {
	return load(true)
}

// LoadLocal reads configuration for the CLI, where the database and Redis
// are not used.
func LoadLocal() (*Config, error) {
	return load(false)
}

func load(requireInfra bool) (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port:         envInt("TESTSCOUT_PORT", 8080),
			Env:          envString("TESTSCOUT_ENV", "development"),
			RateLimitRPM: envInt("TESTSCOUT_RATE_LIMIT_RPM", 60),
		},
		Database: DatabaseConfig{
			URL:             os.Getenv("DATABASE_URL"),
			MaxOpenConns:    envInt("DATABASE_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    envInt("DATABASE_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: envDuration("DATABASE_CONN_MAX_LIFETIME", 5*time.Minute),
		},
		Redis: RedisConfig{
			URL: os.Getenv("REDIS_URL"),
		},
		AI: AIConfig{
			Provider:          envString("AI_PROVIDER", "ollama"),
			InferenceTimeout:  envDurationSecs("AI_INFERENCE_TIMEOUT_SECS", 60*time.Second),
			RequestsPerSecond: envFloat("AI_REQUESTS_PER_SECOND", 2),
			Ollama: OllamaConfig{
				BaseURL: envString("OLLAMA_BASE_URL", "http://localhost:11434"),
				Model:   envString("OLLAMA_MODEL", "llama3"),
			},
			VLLM: VLLMConfig{
				BaseURL: envString("VLLM_BASE_URL", "http://localhost:8000"),
				Model:   envString("VLLM_MODEL", ""),
			},
			OpenAI: OpenAIConfig{
				APIKey:  os.Getenv("OPENAI_API_KEY"),
				Model:   envString("OPENAI_MODEL", "gpt-4o"),
				BaseURL: envString("OPENAI_BASE_URL", "https://api.openai.com/v1"),
			},
			Anthropic: AnthropicConfig{
				APIKey:  os.Getenv("ANTHROPIC_API_KEY"),
				Model:   envString("ANTHROPIC_MODEL", "claude-sonnet-4-5-20250929"),
				BaseURL: envString("ANTHROPIC_BASE_URL", "https://api.anthropic.com"),
			},
		},
		Embedding: EmbeddingConfig{
			Provider:    envString("EMBEDDING_PROVIDER", "hash"),
			ServiceURL:  envString("EMBEDDING_SERVICE_URL", "http://localhost:11434"),
			Model:       envString("EMBEDDING_MODEL", "all-minilm"),
			Dimensions:  envInt("EMBEDDING_DIMENSIONS", 384),
			Concurrency: envInt("EMBEDDING_CONCURRENCY", 8),
			Timeout:     envDuration("EMBEDDING_TIMEOUT", 30*time.Second),
		},
		Analysis: AnalysisConfig{
			Strictness:   strings.ToLower(envString("TESTSCOUT_STRICTNESS", "moderate")),
			AreaBoost:    envBool("TESTSCOUT_AREA_BOOST", true),
			BoostValue:   envFloat("TESTSCOUT_AREA_BOOST_VALUE", 0.15),
			PenaltyValue: envFloat("TESTSCOUT_AREA_PENALTY_VALUE", 0.05),
			TopK:         envInt("TESTSCOUT_TOP_K", 15),
			MaxTestChars: envInt("TESTSCOUT_MAX_TEST_CHARS", 2000),
		},
		Corpus: CorpusConfig{
			Path:            envString("CORPUS_PATH", "test_cases.csv"),
			AreaCatalogPath: os.Getenv("AREA_CATALOG_PATH"),
			ReportDir:       envString("REPORT_DIR", "reports"),
		},
		GitHub: GitHubConfig{
			Token:   os.Getenv("GITHUB_TOKEN"),
			Owner:   os.Getenv("GITHUB_OWNER"),
			Repo:    os.Getenv("GITHUB_REPO"),
			BaseURL: envString("GITHUB_API_URL", "https://api.github.com"),
		},
		TFS: TFSConfig{
			BaseURL:    os.Getenv("TFS_BASE_URL"),
			Collection: envString("TFS_COLLECTION", "DefaultCollection"),
			Project:    os.Getenv("TFS_PROJECT"),
			PAT:        os.Getenv("TFS_PAT"),
			Timeout:    envDuration("TFS_TIMEOUT", 30*time.Second),
		},
		Intake: IntakeConfig{
			CacheTTL: envDuration("INTAKE_CACHE_TTL", 15*time.Minute),
		},
	}

	var err error
	if cfg.Analysis.MinSimilarity, err = envThreshold("TESTSCOUT_MIN_SIMILARITY"); err != nil {
		return nil, err
	}
	if cfg.Analysis.AnalysisGate, err = envThreshold("TESTSCOUT_ANALYSIS_GATE"); err != nil {
		return nil, err
	}
	if cfg.Analysis.ExportGate, err = envThreshold("TESTSCOUT_EXPORT_GATE"); err != nil {
		return nil, err
	}

	if err := cfg.validate(requireInfra); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate(requireInfra bool) error {
	if requireInfra {
		if c.Database.URL == "" {
			return fmt.Errorf("DATABASE_URL is required")
		}
		if c.Redis.URL == "" {
			return fmt.Errorf("REDIS_URL is required")
		}
	}

	if !validProviders[c.AI.Provider] {
		return fmt.Errorf("AI_PROVIDER must be one of ollama, vllm, openai, anthropic; got %q", c.AI.Provider)
	}
	if c.AI.Provider == "openai" && c.AI.OpenAI.APIKey == "" {
		return fmt.Errorf("OPENAI_API_KEY is required when AI_PROVIDER is openai")
	}
	if c.AI.Provider == "anthropic" && c.AI.Anthropic.APIKey == "" {
		return fmt.Errorf("ANTHROPIC_API_KEY is required when AI_PROVIDER is anthropic")
	}
	if c.AI.Provider == "vllm" && c.AI.VLLM.Model == "" {
		return fmt.Errorf("VLLM_MODEL is required when AI_PROVIDER is vllm")
	}
	if c.AI.RequestsPerSecond <= 0 {
		return fmt.Errorf("AI_REQUESTS_PER_SECOND must be positive, got %v", c.AI.RequestsPerSecond)
	}

	if !validEmbedders[c.Embedding.Provider] {
		return fmt.Errorf("EMBEDDING_PROVIDER must be one of hash, ollama; got %q", c.Embedding.Provider)
	}
	if c.Embedding.Provider == "ollama" && !isHTTPURL(c.Embedding.ServiceURL) {
		return fmt.Errorf("EMBEDDING_SERVICE_URL must start with http:// or https://, got %q", c.Embedding.ServiceURL)
	}
	if c.Embedding.Dimensions <= 0 {
		return fmt.Errorf("EMBEDDING_DIMENSIONS must be positive, got %d", c.Embedding.Dimensions)
	}

	if !validStrictness[c.Analysis.Strictness] {
		return fmt.Errorf("TESTSCOUT_STRICTNESS must be one of lenient, moderate, strict; got %q", c.Analysis.Strictness)
	}
	for name, v := range map[string]float64{
		"TESTSCOUT_AREA_BOOST_VALUE":   c.Analysis.BoostValue,
		"TESTSCOUT_AREA_PENALTY_VALUE": c.Analysis.PenaltyValue,
	} {
		if !inUnitRange(v) {
			return fmt.Errorf("%s must be in [0, 1], got %v", name, v)
		}
	}
	if c.Analysis.TopK < 0 {
		return fmt.Errorf("TESTSCOUT_TOP_K must not be negative, got %d", c.Analysis.TopK)
	}
	if c.Analysis.MaxTestChars <= 0 {
		return fmt.Errorf("TESTSCOUT_MAX_TEST_CHARS must be positive, got %d", c.Analysis.MaxTestChars)
	}

	if c.TFS.BaseURL != "" && !isHTTPURL(c.TFS.BaseURL) {
		return fmt.Errorf("TFS_BASE_URL must start with http:// or https://, got %q", c.TFS.BaseURL)
	}
	if !isHTTPURL(c.GitHub.BaseURL) {
		return fmt.Errorf("GITHUB_API_URL must start with http:// or https://, got %q", c.GitHub.BaseURL)
	}

	return nil
}

func isHTTPURL(s string) bool {
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://")
}

func inUnitRange(v float64) bool {
	return !math.IsNaN(v) && v >= 0 && v <= 1
}

func envString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func envFloat(key string, defaultVal float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return defaultVal
	}
	return f
}

func envBool(key string, defaultVal bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return defaultVal
	}
	return b
}

// envThreshold reads an optional threshold override. Unlike the other
// helpers it rejects unparseable and out-of-range values.
func envThreshold(key string) (*float64, error) {
	v := os.Getenv(key)
	if v == "" {
		return nil, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return nil, fmt.Errorf("%s must be a number, got %q", key, v)
	}
	if !inUnitRange(f) {
		return nil, fmt.Errorf("%s must be in [0, 1], got %v", key, f)
	}
	return &f, nil
}

func envDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}

func envDurationSecs(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	secs, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return time.Duration(secs) * time.Second
}
