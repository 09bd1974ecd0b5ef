package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"deep-researcher/pkg/interfaces"
)

// Environment variables holding the service credentials
const (
	EnvLLMToken      = "HF_TOKEN"
	EnvScraperAPIKey = "FIRECRAWL_API_KEY"
	EnvPrefix        = "RESEARCHER"
)

// ResearcherConfig contains all configuration for the research pipeline
type ResearcherConfig struct {
	LLM         LLMConfig         `json:"llm" mapstructure:"llm" validate:"required"`
	Scraper     ScraperConfig     `json:"scraper" mapstructure:"scraper" validate:"required"`
	Coordinator CoordinatorConfig `json:"coordinator" mapstructure:"coordinator" validate:"required"`
	Archive     ArchiveConfig     `json:"archive" mapstructure:"archive"`
	Server      ServerConfig      `json:"server" mapstructure:"server"`

	OutputFile string `json:"output_file" mapstructure:"output_file" validate:"required"`

	// Logging
	LogLevel  string `json:"log_level" mapstructure:"log_level" validate:"omitempty,oneof=debug info warn error DEBUG INFO WARN ERROR"`
	LogFormat string `json:"log_format" mapstructure:"log_format" validate:"omitempty,oneof=console json"`
}

// LLMConfig configures the OpenAI-compatible chat completion endpoint
type LLMConfig struct {
	BaseURL string `json:"base_url" mapstructure:"base_url" validate:"required,url"`
	APIKey  string `json:"api_key,omitempty" mapstructure:"api_key"`

	PlannerModel   string `json:"planner_model" mapstructure:"planner_model" validate:"required"`
	SplitterModel  string `json:"splitter_model" mapstructure:"splitter_model" validate:"required"`
	SubagentModel  string `json:"subagent_model" mapstructure:"subagent_model" validate:"required"`
	SynthesisModel string `json:"synthesis_model" mapstructure:"synthesis_model" validate:"required"`

	Temperature float32       `json:"temperature" mapstructure:"temperature" validate:"min=0,max=2"`
	MaxTokens   int           `json:"max_tokens" mapstructure:"max_tokens" validate:"min=0,max=200000"`
	Timeout     time.Duration `json:"timeout" mapstructure:"timeout"`

	RequestsPerSecond float64 `json:"requests_per_second" mapstructure:"requests_per_second" validate:"min=0"`
	Burst             int     `json:"burst" mapstructure:"burst" validate:"min=1"`
}

// ScraperConfig configures the web search and scraping backend
type ScraperConfig struct {
	Provider string `json:"provider" mapstructure:"provider" validate:"required,oneof=firecrawl direct"`
	BaseURL  string `json:"base_url" mapstructure:"base_url" validate:"omitempty,url"`
	APIKey   string `json:"api_key,omitempty" mapstructure:"api_key"`

	SearchURL    string        `json:"search_url,omitempty" mapstructure:"search_url" validate:"omitempty,url"`
	SearchLimit  int           `json:"search_limit" mapstructure:"search_limit" validate:"min=1,max=20"`
	MaxPageBytes int           `json:"max_page_bytes" mapstructure:"max_page_bytes" validate:"min=1024"`
	Timeout      time.Duration `json:"timeout" mapstructure:"timeout"`
	RetryMax     int           `json:"retry_max" mapstructure:"retry_max" validate:"min=0,max=10"`

	RequestsPerSecond float64 `json:"requests_per_second" mapstructure:"requests_per_second" validate:"min=0"`
	Burst             int     `json:"burst" mapstructure:"burst" validate:"min=1"`

	CacheSize int           `json:"cache_size" mapstructure:"cache_size" validate:"min=0"`
	CacheTTL  time.Duration `json:"cache_ttl" mapstructure:"cache_ttl"`
}

// CoordinatorConfig controls sub-agent fan-out
type CoordinatorConfig struct {
	MaxConcurrency    int           `json:"max_concurrency" mapstructure:"max_concurrency" validate:"min=1,max=100"`
	SubtaskTimeout    time.Duration `json:"subtask_timeout" mapstructure:"subtask_timeout"`
	MaxToolIterations int           `json:"max_tool_iterations" mapstructure:"max_tool_iterations" validate:"min=1,max=50"`
	SubagentMode      string        `json:"subagent_mode" mapstructure:"subagent_mode" validate:"required,oneof=tool_calling search_summarize"`
	ScrapeTopN        int           `json:"scrape_top_n" mapstructure:"scrape_top_n" validate:"min=0,max=10"`
}

// ArchiveConfig configures the optional vector archive of past findings
type ArchiveConfig struct {
	Enabled        bool   `json:"enabled" mapstructure:"enabled"`
	Host           string `json:"host" mapstructure:"host" validate:"required_if=Enabled true"`
	Port           int    `json:"port" mapstructure:"port" validate:"omitempty,min=1,max=65535"`
	Username       string `json:"username" mapstructure:"username"`
	Password       string `json:"password" mapstructure:"password"`
	Collection     string `json:"collection" mapstructure:"collection" validate:"required_if=Enabled true"`
	Recreate       bool   `json:"recreate" mapstructure:"recreate"`
	EmbeddingModel string `json:"embedding_model" mapstructure:"embedding_model" validate:"required_if=Enabled true"`
	Dimension      int    `json:"dimension" mapstructure:"dimension" validate:"omitempty,min=1,max=4096"`
	ChunkSize      int    `json:"chunk_size" mapstructure:"chunk_size" validate:"omitempty,min=100,max=50000"`
	TopK           int    `json:"top_k" mapstructure:"top_k" validate:"omitempty,min=1,max=50"`
}

// ServerConfig configures the HTTP API
type ServerConfig struct {
	Address      string        `json:"address" mapstructure:"address"`
	ReadTimeout  time.Duration `json:"read_timeout" mapstructure:"read_timeout"`
	WriteTimeout time.Duration `json:"write_timeout" mapstructure:"write_timeout"`
}

// DefaultConfig returns a default configuration
func DefaultConfig() *ResearcherConfig {
	return &ResearcherConfig{
		LLM: LLMConfig{
			BaseURL:           "https://router.huggingface.co/v1",
			PlannerModel:      "moonshotai/Kimi-K2-Thinking",
			SplitterModel:     "deepseek-ai/DeepSeek-V3.2-Exp",
			SubagentModel:     "MiniMaxAI/MiniMax-M1-80k",
			SynthesisModel:    "MiniMaxAI/MiniMax-M1-80k",
			Temperature:       0.3,
			MaxTokens:         0,
			Timeout:           5 * time.Minute,
			RequestsPerSecond: 2,
			Burst:             4,
		},
		Scraper: ScraperConfig{
			Provider:          "firecrawl",
			BaseURL:           "https://api.firecrawl.dev",
			SearchURL:         "https://lite.duckduckgo.com/lite/",
			SearchLimit:       5,
			MaxPageBytes:      32 * 1024,
			Timeout:           60 * time.Second,
			RetryMax:          3,
			RequestsPerSecond: 5,
			Burst:             5,
			CacheSize:         256,
			CacheTTL:          30 * time.Minute,
		},
		Coordinator: CoordinatorConfig{
			MaxConcurrency:    4,
			SubtaskTimeout:    10 * time.Minute,
			MaxToolIterations: 8,
			SubagentMode:      "tool_calling",
			ScrapeTopN:        3,
		},
		Archive: ArchiveConfig{
			Enabled:        false,
			Host:           "localhost",
			Port:           19530,
			Username:       "root",
			Password:       "Milvus",
			Collection:     "research_findings",
			EmbeddingModel: "BAAI/bge-small-en-v1.5",
			Dimension:      384,
			ChunkSize:      2000,
			TopK:           5,
		},
		Server: ServerConfig{
			Address:      ":8080",
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Minute,
		},
		OutputFile: "research_result.md",
		LogLevel:   "info",
		LogFormat:  "console",
	}
}

// Load builds the configuration from defaults, an optional config file and
// the environment. A .env file in the working directory is loaded first.
// Credentials are checked before returning.
func Load(path string) (*ResearcherConfig, error) {
	// A missing .env is not an error
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v, DefaultConfig())

	if path != "" {
		if _, err := os.Stat(path); os.IsNotExist(err) {
			return nil, &interfaces.ConfigurationError{Field: "config", Message: fmt.Sprintf("config file does not exist: %s", path)}
		}
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, &interfaces.ConfigurationError{Field: "config", Message: "failed to read config file", Err: err}
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	_ = v.BindEnv("llm.api_key", EnvLLMToken, EnvPrefix+"_LLM_API_KEY")
	_ = v.BindEnv("scraper.api_key", EnvScraperAPIKey, EnvPrefix+"_SCRAPER_API_KEY")

	cfg := &ResearcherConfig{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, &interfaces.ConfigurationError{Field: "config", Message: "failed to unmarshal config", Err: err}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := cfg.RequireCredentials(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadConfigFromFile loads and validates a config file without requiring
// credentials, used by `config validate`
func LoadConfigFromFile(path string) (*ResearcherConfig, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, fmt.Errorf("config file does not exist: %s", path)
	}

	v := viper.New()
	setDefaults(v, DefaultConfig())
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := &ResearcherConfig{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// setDefaults registers every default so environment variables can
// override keys that are absent from the config file
func setDefaults(v *viper.Viper, d *ResearcherConfig) {
	defaults := map[string]any{
		"llm.base_url":                    d.LLM.BaseURL,
		"llm.api_key":                     d.LLM.APIKey,
		"llm.planner_model":               d.LLM.PlannerModel,
		"llm.splitter_model":              d.LLM.SplitterModel,
		"llm.subagent_model":              d.LLM.SubagentModel,
		"llm.synthesis_model":             d.LLM.SynthesisModel,
		"llm.temperature":                 d.LLM.Temperature,
		"llm.max_tokens":                  d.LLM.MaxTokens,
		"llm.timeout":                     d.LLM.Timeout,
		"llm.requests_per_second":         d.LLM.RequestsPerSecond,
		"llm.burst":                       d.LLM.Burst,
		"scraper.provider":                d.Scraper.Provider,
		"scraper.base_url":                d.Scraper.BaseURL,
		"scraper.api_key":                 d.Scraper.APIKey,
		"scraper.search_url":              d.Scraper.SearchURL,
		"scraper.search_limit":            d.Scraper.SearchLimit,
		"scraper.max_page_bytes":          d.Scraper.MaxPageBytes,
		"scraper.timeout":                 d.Scraper.Timeout,
		"scraper.retry_max":               d.Scraper.RetryMax,
		"scraper.requests_per_second":     d.Scraper.RequestsPerSecond,
		"scraper.burst":                   d.Scraper.Burst,
		"scraper.cache_size":              d.Scraper.CacheSize,
		"scraper.cache_ttl":               d.Scraper.CacheTTL,
		"coordinator.max_concurrency":     d.Coordinator.MaxConcurrency,
		"coordinator.subtask_timeout":     d.Coordinator.SubtaskTimeout,
		"coordinator.max_tool_iterations": d.Coordinator.MaxToolIterations,
		"coordinator.subagent_mode":       d.Coordinator.SubagentMode,
		"coordinator.scrape_top_n":        d.Coordinator.ScrapeTopN,
		"archive.enabled":                 d.Archive.Enabled,
		"archive.host":                    d.Archive.Host,
		"archive.port":                    d.Archive.Port,
		"archive.username":                d.Archive.Username,
		"archive.password":                d.Archive.Password,
		"archive.collection":              d.Archive.Collection,
		"archive.recreate":                d.Archive.Recreate,
		"archive.embedding_model":         d.Archive.EmbeddingModel,
		"archive.dimension":               d.Archive.Dimension,
		"archive.chunk_size":              d.Archive.ChunkSize,
		"archive.top_k":                   d.Archive.TopK,
		"server.address":                  d.Server.Address,
		"server.read_timeout":             d.Server.ReadTimeout,
		"server.write_timeout":            d.Server.WriteTimeout,
		"output_file":                     d.OutputFile,
		"log_level":                       d.LogLevel,
		"log_format":                      d.LogFormat,
	}
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
}

// Validate validates the configuration
func (c *ResearcherConfig) Validate() error {
	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return &interfaces.ConfigurationError{
				Field:   verrs[0].Namespace(),
				Message: fmt.Sprintf("failed on '%s' validation", verrs[0].Tag()),
				Err:     err,
			}
		}
		return &interfaces.ConfigurationError{Message: "invalid configuration", Err: err}
	}
	if c.Scraper.Provider == "firecrawl" && c.Scraper.BaseURL == "" {
		return &interfaces.ConfigurationError{Field: "scraper.base_url", Message: "required for the firecrawl provider"}
	}
	if c.Coordinator.SubtaskTimeout < 0 {
		return &interfaces.ConfigurationError{Field: "coordinator.subtask_timeout", Message: "cannot be negative"}
	}
	return nil
}

// RequireCredentials checks that every credential the configured
// components need is present
func (c *ResearcherConfig) RequireCredentials() error {
	if c.LLM.APIKey == "" {
		return &interfaces.ConfigurationError{Field: EnvLLMToken, Message: "LLM API token is not set"}
	}
	if c.Scraper.Provider == "firecrawl" && c.Scraper.APIKey == "" {
		return &interfaces.ConfigurationError{Field: EnvScraperAPIKey, Message: "Firecrawl API key is not set"}
	}
	return nil
}

// SaveToFile saves the configuration to a file
func (c *ResearcherConfig) SaveToFile(filepath string) error {
	// Credentials are read from the environment, never written out
	configCopy := *c
	configCopy.LLM.APIKey = ""
	configCopy.Scraper.APIKey = ""

	data, err := json.MarshalIndent(configCopy, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(filepath, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Masked returns a copy with credentials removed, safe to print or serve
func (c *ResearcherConfig) Masked() ResearcherConfig {
	configCopy := *c
	if configCopy.LLM.APIKey != "" {
		configCopy.LLM.APIKey = "***"
	}
	if configCopy.Scraper.APIKey != "" {
		configCopy.Scraper.APIKey = "***"
	}
	if configCopy.Archive.Password != "" {
		configCopy.Archive.Password = "***"
	}
	return configCopy
}

// String returns a string representation of the config (with sensitive data masked)
func (c *ResearcherConfig) String() string {
	configCopy := c.Masked()
	data, _ := json.MarshalIndent(configCopy, "", "  ")
	return string(data)
}

// GetURI returns the archive connection address
func (a *ArchiveConfig) GetURI() string {
	return fmt.Sprintf("%s:%d", a.Host, a.Port)
}
