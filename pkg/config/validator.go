package config

import (
	"fmt"
	"net/url"
)

type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (c *Config) Validate() []ValidationError {
	var errors []ValidationError

	// Validate AMQP config
	if c.AMQP.URL == "" {
		errors = append(errors, ValidationError{
			Field:   "amqp.url",
			Message: "broker URL is required",
		})
	} else if _, err := url.Parse(c.AMQP.URL); err != nil {
		errors = append(errors, ValidationError{
			Field:   "amqp.url",
			Message: "invalid broker URL",
		})
	}

	if c.AMQP.Queue == "" {
		errors = append(errors, ValidationError{
			Field:   "amqp.queue",
			Message: "queue name is required",
		})
	}

	if c.AMQP.Prefetch < 1 {
		errors = append(errors, ValidationError{
			Field:   "amqp.prefetch",
			Message: "prefetch must be positive",
		})
	}

	switch c.AMQP.AckPolicy {
	case "always", "on_success":
	default:
		errors = append(errors, ValidationError{
			Field:   "amqp.ack_policy",
			Message: fmt.Sprintf("unknown ack policy: %s", c.AMQP.AckPolicy),
		})
	}

	if c.AMQP.RequeueLimit < 0 {
		errors = append(errors, ValidationError{
			Field:   "amqp.requeue_limit",
			Message: "requeue_limit must be non-negative",
		})
	}

	// Validate Database config
	if c.Database.URL == "" {
		errors = append(errors, ValidationError{
			Field:   "database.url",
			Message: "database URL is required",
		})
	} else if _, err := url.Parse(c.Database.URL); err != nil {
		errors = append(errors, ValidationError{
			Field:   "database.url",
			Message: "invalid database URL",
		})
	}

	// Validate HTTP config
	if c.HTTP.Port < 1 || c.HTTP.Port > 65535 {
		errors = append(errors, ValidationError{
			Field:   "http.port",
			Message: "port must be between 1 and 65535",
		})
	}

	// Validate LLM config
	switch c.LLM.Provider {
	case "openai", "ollama", "":
	default:
		errors = append(errors, ValidationError{
			Field:   "llm.provider",
			Message: fmt.Sprintf("unknown provider: %s", c.LLM.Provider),
		})
	}

	if c.LLM.Temperature < 0 || c.LLM.Temperature > 2 {
		errors = append(errors, ValidationError{
			Field:   "llm.temperature",
			Message: "temperature must be between 0 and 2",
		})
	}

	if c.LLM.BatchSize < 1 {
		errors = append(errors, ValidationError{
			Field:   "llm.batch_size",
			Message: "batch_size must be positive",
		})
	}

	// Validate Embedding config
	if c.Embedding.Enabled && c.Embedding.Dim < 1 {
		errors = append(errors, ValidationError{
			Field:   "embedding.dim",
			Message: "dim must be positive when embeddings are enabled",
		})
	}

	// Validate Scraper config
	if c.Scraper.MaxDepth < 1 {
		errors = append(errors, ValidationError{
			Field:   "scraper.max_depth",
			Message: "max_depth must be positive",
		})
	}

	if c.Scraper.MaxPages < 1 {
		errors = append(errors, ValidationError{
			Field:   "scraper.max_pages",
			Message: "max_pages must be positive",
		})
	}

	if c.Scraper.RateLimit <= 0 {
		errors = append(errors, ValidationError{
			Field:   "scraper.rate_limit",
			Message: "rate_limit must be positive",
		})
	}

	// Validate Processor config
	if c.Processor.MaxChunkSize < 1 {
		errors = append(errors, ValidationError{
			Field:   "processor.max_chunk_size",
			Message: "max_chunk_size must be positive",
		})
	}

	// Validate Worker config
	if c.Worker.JobTimeoutSeconds < 1 {
		errors = append(errors, ValidationError{
			Field:   "worker.job_timeout_seconds",
			Message: "job_timeout_seconds must be positive",
		})
	}

	// Validate Log config
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		errors = append(errors, ValidationError{
			Field:   "log.level",
			Message: fmt.Sprintf("unknown log level: %s", c.Log.Level),
		})
	}

	return errors
}
