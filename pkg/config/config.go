package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"gopkg.in/yaml.v3"
)

type Config struct {
	AMQP      AMQPConfig      `yaml:"amqp"`
	Database  DatabaseConfig  `yaml:"database"`
	HTTP      HTTPConfig      `yaml:"http"`
	LLM       LLMConfig       `yaml:"llm"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Scraper   ScraperConfig   `yaml:"scraper"`
	Processor ProcessorConfig `yaml:"processor"`
	Worker    WorkerConfig    `yaml:"worker"`
	Log       LogConfig       `yaml:"log"`
}

type AMQPConfig struct {
	URL              string `yaml:"url"`
	Queue            string `yaml:"queue"`
	Prefetch         int    `yaml:"prefetch"`
	AckPolicy        string `yaml:"ack_policy"`
	RequeueLimit     int    `yaml:"requeue_limit"`
	HeartbeatSeconds int    `yaml:"heartbeat_seconds"`
}

type DatabaseConfig struct {
	URL string `yaml:"url"`
}

type HTTPConfig struct {
	Port int `yaml:"port"`
}

type LLMConfig struct {
	Provider    string  `yaml:"provider"`
	Model       string  `yaml:"model"`
	BaseURL     string  `yaml:"base_url"`
	APIKey      string  `yaml:"api_key"`
	Temperature float64 `yaml:"temperature"`
	BatchSize   int     `yaml:"batch_size"`
}

type EmbeddingConfig struct {
	Enabled bool   `yaml:"enabled"`
	Model   string `yaml:"model"`
	Dim     int    `yaml:"dim"`
}

type ScraperConfig struct {
	MaxDepth       int     `yaml:"max_depth"`
	MaxPages       int     `yaml:"max_pages"`
	RateLimit      float64 `yaml:"rate_limit"`
	TimeoutSeconds int     `yaml:"timeout_seconds"`
}

type ProcessorConfig struct {
	MaxChunkSize int `yaml:"max_chunk_size"`
}

type WorkerConfig struct {
	JobTimeoutSeconds int `yaml:"job_timeout_seconds"`
}

type LogConfig struct {
	Level      string `yaml:"level"`
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
}

func LoadConfig(path string) (*Config, error) {
	// If no path provided, try default locations
	if path == "" {
		locations := []string{
			"config.yaml",
			"config.yml",
			filepath.Join(os.Getenv("HOME"), ".config/siphon/config.yaml"),
			"/etc/siphon/config.yaml",
		}

		for _, loc := range locations {
			if _, err := os.Stat(loc); err == nil {
				path = loc
				break
			}
		}
	}

	if path == "" {
		return getDefaultConfig()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %v", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("error parsing config file: %v", err)
	}

	// Merge with environment variables
	mergeWithEnv(&config)

	// Apply defaults for unset values
	applyDefaults(&config)

	return &config, nil
}

func getDefaultConfig() (*Config, error) {
	config := &Config{}
	applyDefaults(config)
	mergeWithEnv(config)
	return config, nil
}

func applyDefaults(config *Config) {
	if config.AMQP.Queue == "" {
		config.AMQP.Queue = "extraction_requests"
	}
	if config.AMQP.Prefetch == 0 {
		config.AMQP.Prefetch = 1
	}
	if config.AMQP.AckPolicy == "" {
		config.AMQP.AckPolicy = "on_success"
	}
	if config.AMQP.RequeueLimit == 0 {
		config.AMQP.RequeueLimit = 3
	}
	if config.AMQP.HeartbeatSeconds == 0 {
		config.AMQP.HeartbeatSeconds = 10
	}

	if config.HTTP.Port == 0 {
		config.HTTP.Port = 8080
	}

	if config.LLM.Provider == "" {
		config.LLM.Provider = "openai"
	}
	if config.LLM.Model == "" {
		config.LLM.Model = "gpt-4.1-nano"
	}
	if config.LLM.Temperature == 0 {
		config.LLM.Temperature = 0.1
	}
	if config.LLM.BatchSize == 0 {
		config.LLM.BatchSize = 10
	}

	// Embedding.Model stays empty here; the embedder picks a default
	// that matches the configured provider.
	if config.Embedding.Dim == 0 {
		config.Embedding.Dim = 768
	}

	if config.Scraper.MaxDepth == 0 {
		config.Scraper.MaxDepth = 2
	}
	if config.Scraper.MaxPages == 0 {
		config.Scraper.MaxPages = 50
	}
	if config.Scraper.RateLimit == 0 {
		config.Scraper.RateLimit = 2.0
	}
	if config.Scraper.TimeoutSeconds == 0 {
		config.Scraper.TimeoutSeconds = 30
	}

	if config.Processor.MaxChunkSize == 0 {
		config.Processor.MaxChunkSize = 2000
	}

	if config.Worker.JobTimeoutSeconds == 0 {
		config.Worker.JobTimeoutSeconds = 600
	}

	if config.Log.Level == "" {
		config.Log.Level = "info"
	}
	if config.Log.MaxSizeMB == 0 {
		config.Log.MaxSizeMB = 100
	}
	if config.Log.MaxBackups == 0 {
		config.Log.MaxBackups = 3
	}
	if config.Log.MaxAgeDays == 0 {
		config.Log.MaxAgeDays = 28
	}
}

func mergeWithEnv(config *Config) {
	if amqpURL := os.Getenv("AMQP_URL"); amqpURL != "" {
		config.AMQP.URL = amqpURL
	}
	if queue := os.Getenv("EXTRACTION_QUEUE"); queue != "" {
		config.AMQP.Queue = queue
	}
	if dbURL := os.Getenv("DATABASE_URL"); dbURL != "" {
		config.Database.URL = dbURL
	}
	if port := os.Getenv("PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.HTTP.Port = p
		}
	}
	if apiKey := os.Getenv("OPENAI_API_KEY"); apiKey != "" {
		config.LLM.APIKey = apiKey
	}
	if baseURL := os.Getenv("OLLAMA_BASE_URL"); baseURL != "" {
		config.LLM.BaseURL = baseURL
	}
	if level := os.Getenv("LOG_LEVEL"); level != "" {
		config.Log.Level = level
	}
}
