package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"pdf-rag/internal/models"
)

const (
	DefaultConfigPath = "config.yaml"

	ProviderBedrock = "bedrock"
	ProviderOpenAI  = "openai"
	ProviderOllama  = "ollama"

	BackendChromem = "chromem"
	BackendSQLite  = "sqlite"
)

// SupportedExtensions lists every file type the loader can read
var SupportedExtensions = []string{".pdf", ".docx", ".xlsx", ".md", ".txt"}

type Config struct {
	DataDir      string        `yaml:"data_dir"`
	Timeout      time.Duration `yaml:"timeout"`
	RAG          RAGConfig     `yaml:"rag"`
	Index        IndexConfig   `yaml:"index"`
	EmbedLLM     LLMConfig     `yaml:"embed_llm"`
	InferenceLLM LLMConfig     `yaml:"inference_llm"`
	AWS          AWSConfig     `yaml:"aws"`
	Log          LogConfig     `yaml:"log"`
}

type RAGConfig struct {
	ChunkSize    int      `yaml:"chunk_size"`
	ChunkOverlap int      `yaml:"chunk_overlap"`
	TopK         int      `yaml:"top_k"`
	Extensions   []string `yaml:"extensions"`
}

type IndexConfig struct {
	Path          string `yaml:"path"`
	Backend       string `yaml:"backend"`
	Collection    string `yaml:"collection"`
	Compress      bool   `yaml:"compress"`
	EncryptionKey string `yaml:"encryption_key"`
	Debug         bool   `yaml:"debug"`
}

// LLMConfig configures one remote model, either for embeddings or for inference
type LLMConfig struct {
	Provider    string        `yaml:"provider"`
	BaseURL     string        `yaml:"base_url"`
	Model       string        `yaml:"model"`
	Key         string        `yaml:"key"`
	BatchSize   int           `yaml:"batch_size"`
	MaxTokens   int           `yaml:"max_tokens"`
	Temperature float64       `yaml:"temperature"`
	Timeout     time.Duration `yaml:"timeout"`
}

type AWSConfig struct {
	Region          string `yaml:"region"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
	SessionToken    string `yaml:"session_token"`
}

type LogConfig struct {
	Level string `yaml:"level"`
	File  string `yaml:"file"`
}

// DefaultConfig uses Titan embeddings and Llama 3 on Bedrock in us-east-1
func DefaultConfig() *Config {
	return &Config{
		DataDir: "data",
		Timeout: 5 * time.Minute,
		RAG: RAGConfig{
			ChunkSize:    1000,
			ChunkOverlap: 500,
			TopK:         3,
			Extensions:   []string{".pdf"},
		},
		Index: IndexConfig{
			Path:       "vector_store",
			Backend:    BackendChromem,
			Collection: "documents",
		},
		EmbedLLM: LLMConfig{
			Provider:  ProviderBedrock,
			Model:     "amazon.titan-embed-text-v1",
			BatchSize: 16,
			Timeout:   60 * time.Second,
		},
		InferenceLLM: LLMConfig{
			Provider:    ProviderBedrock,
			Model:       "meta.llama3-8b-instruct-v1:0",
			MaxTokens:   1024,
			Temperature: 0.5,
			Timeout:     120 * time.Second,
		},
		AWS: AWSConfig{
			Region: "us-east-1",
		},
		Log: LogConfig{
			Level: "info",
			File:  "rag.log",
		},
	}
}

// LoadConfig builds the configuration from defaults, then the YAML file, then the environment.
// An empty path falls back to ./config.yaml when it exists.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path == "" {
		if _, err := os.Stat(DefaultConfigPath); err == nil {
			path = DefaultConfigPath
		}
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("%w: failed to read config %s: %v", models.ErrConfig, path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("%w: failed to parse config %s: %v", models.ErrConfig, path, err)
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnvOverrides reads credentials and paths from the environment.
// The lower-case AWS names come first, they are what existing .env files use.
func applyEnvOverrides(cfg *Config) {
	if v := firstEnv("aws_access_key_id", "AWS_ACCESS_KEY_ID"); v != "" {
		cfg.AWS.AccessKeyID = v
	}
	if v := firstEnv("aws_secret_access_key", "AWS_SECRET_ACCESS_KEY"); v != "" {
		cfg.AWS.SecretAccessKey = v
	}
	if v := firstEnv("aws_session_token", "AWS_SESSION_TOKEN"); v != "" {
		cfg.AWS.SessionToken = v
	}
	if v := firstEnv("region_name", "AWS_REGION", "AWS_DEFAULT_REGION"); v != "" {
		cfg.AWS.Region = v
	}
	if v := os.Getenv("OPENAI_API_KEY"); v != "" {
		for _, llm := range []*LLMConfig{&cfg.EmbedLLM, &cfg.InferenceLLM} {
			if llm.Provider == ProviderOpenAI && llm.Key == "" {
				llm.Key = v
			}
		}
	}
	if v := os.Getenv("RAG_DATA_DIR"); v != "" {
		cfg.DataDir = v
	}
	if v := os.Getenv("RAG_INDEX_PATH"); v != "" {
		cfg.Index.Path = v
	}
	if v := os.Getenv("RAG_INDEX_ENCRYPTION_KEY"); v != "" {
		cfg.Index.EncryptionKey = v
	}
	if v := os.Getenv("RAG_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
}

func firstEnv(keys ...string) string {
	for _, k := range keys {
		if v := strings.TrimSpace(os.Getenv(k)); v != "" {
			return v
		}
	}
	return ""
}

// Validate checks the configuration and fails fast on anything that would only break later
func (c *Config) Validate() error {
	var errs []error

	if c.DataDir == "" {
		errs = append(errs, errors.New("data_dir is required"))
	}
	if c.Timeout < 0 {
		errs = append(errs, errors.New("timeout must not be negative"))
	}
	errs = append(errs, c.validateRAG()...)
	errs = append(errs, c.validateIndex()...)
	errs = append(errs, c.validateLLM("embed_llm", &c.EmbedLLM)...)
	errs = append(errs, c.validateLLM("inference_llm", &c.InferenceLLM)...)

	if c.UsesBedrock() {
		if c.AWS.Region == "" {
			errs = append(errs, errors.New("aws region is required (region_name)"))
		}
		if c.AWS.AccessKeyID == "" || c.AWS.SecretAccessKey == "" {
			errs = append(errs, errors.New("aws credentials are required (aws_access_key_id, aws_secret_access_key)"))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %v", models.ErrConfig, errors.Join(errs...))
	}
	return nil
}

func (c *Config) validateRAG() []error {
	var errs []error
	if c.RAG.ChunkSize <= 0 {
		errs = append(errs, errors.New("rag.chunk_size must be greater than 0"))
	}
	if c.RAG.ChunkOverlap < 0 || c.RAG.ChunkOverlap >= c.RAG.ChunkSize {
		errs = append(errs, fmt.Errorf("rag.chunk_overlap must be in [0, %d)", c.RAG.ChunkSize))
	}
	if c.RAG.TopK <= 0 {
		errs = append(errs, errors.New("rag.top_k must be greater than 0"))
	}
	if len(c.RAG.Extensions) == 0 {
		errs = append(errs, errors.New("rag.extensions must not be empty"))
	}
	for _, ext := range c.RAG.Extensions {
		if !IsSupportedExtension(ext) {
			errs = append(errs, fmt.Errorf("unsupported extension: %s (must be one of: %s)", ext, strings.Join(SupportedExtensions, ", ")))
		}
	}
	return errs
}

func (c *Config) validateIndex() []error {
	var errs []error
	if c.Index.Path == "" {
		errs = append(errs, errors.New("index.path is required"))
	}
	switch c.Index.Backend {
	case BackendChromem:
		if c.Index.Collection == "" {
			errs = append(errs, errors.New("index.collection is required"))
		}
		// chromem encrypts with AES-256
		if k := len(c.Index.EncryptionKey); k != 0 && k != 32 {
			errs = append(errs, fmt.Errorf("index.encryption_key must be 32 bytes, got %d", k))
		}
	case BackendSQLite:
	default:
		errs = append(errs, fmt.Errorf("invalid index backend: %s (must be one of: chromem, sqlite)", c.Index.Backend))
	}
	return errs
}

func (c *Config) validateLLM(name string, llm *LLMConfig) []error {
	var errs []error
	switch llm.Provider {
	case ProviderBedrock, ProviderOllama:
	case ProviderOpenAI:
		if llm.Key == "" {
			errs = append(errs, fmt.Errorf("%s.key is required for openai (or set OPENAI_API_KEY)", name))
		}
	default:
		errs = append(errs, fmt.Errorf("invalid %s provider: %s (must be one of: bedrock, openai, ollama)", name, llm.Provider))
	}
	if llm.Model == "" {
		errs = append(errs, fmt.Errorf("%s.model is required", name))
	}
	if llm.Timeout < 0 {
		errs = append(errs, fmt.Errorf("%s.timeout must not be negative", name))
	}
	if llm.BatchSize < 0 || llm.MaxTokens < 0 {
		errs = append(errs, fmt.Errorf("%s.batch_size and max_tokens must not be negative", name))
	}
	return errs
}

// UsesBedrock reports whether any of the remote models is served by AWS Bedrock
func (c *Config) UsesBedrock() bool {
	return c.EmbedLLM.Provider == ProviderBedrock || c.InferenceLLM.Provider == ProviderBedrock
}

func IsSupportedExtension(ext string) bool {
	ext = strings.ToLower(ext)
	for _, s := range SupportedExtensions {
		if s == ext {
			return true
		}
	}
	return false
}
