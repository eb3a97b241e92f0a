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

	// Validate LLM config
	if c.LLM.Token == "" {
		errors = append(errors, ValidationError{
			Field:   "llm.token",
			Message: "OpenAI API key is required",
		})
	}

	if c.LLM.MaxTokens < 1 || c.LLM.MaxTokens > 16384 {
		errors = append(errors, ValidationError{
			Field:   "llm.max_tokens",
			Message: "max_tokens must be between 1 and 16384",
		})
	}

	if c.LLM.Temperature < 0 || c.LLM.Temperature > 2 {
		errors = append(errors, ValidationError{
			Field:   "llm.temperature",
			Message: "temperature must be between 0 and 2",
		})
	}

	if c.LLM.RateLimit <= 0 {
		errors = append(errors, ValidationError{
			Field:   "llm.rate_limit",
			Message: "rate_limit must be positive",
		})
	}

	// Validate Database config
	if c.Database.URL == "" {
		errors = append(errors, ValidationError{
			Field:   "database.url",
			Message: "PostgreSQL connection string is required",
		})
	} else if _, err := url.Parse(c.Database.URL); err != nil {
		errors = append(errors, ValidationError{
			Field:   "database.url",
			Message: "invalid database URL",
		})
	}

	if c.Database.MunicipalityID < 1 {
		errors = append(errors, ValidationError{
			Field:   "database.municipality_id",
			Message: "municipality_id must be positive",
		})
	}

	// Notion is optional, but a database ID without a token is unusable
	if c.Notion.DatabaseID != "" && c.Notion.Token == "" {
		errors = append(errors, ValidationError{
			Field:   "notion.token",
			Message: "Notion API token is required when a database ID is set",
		})
	}

	// Validate Pipeline config
	if c.Pipeline.Workers < 1 {
		errors = append(errors, ValidationError{
			Field:   "pipeline.workers",
			Message: "workers must be positive",
		})
	}

	if c.Pipeline.MaxAttempts < 1 {
		errors = append(errors, ValidationError{
			Field:   "pipeline.max_attempts",
			Message: "max_attempts must be positive",
		})
	}

	if c.Pipeline.CallTimeoutSec < 1 {
		errors = append(errors, ValidationError{
			Field:   "pipeline.call_timeout_sec",
			Message: "call_timeout_sec must be positive",
		})
	}

	return errors
}
