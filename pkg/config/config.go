package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

type Config struct {
	LLM struct {
		BaseURL     string  `yaml:"base_url"`
		Model       string  `yaml:"model"`
		Token       string  `yaml:"token"`
		MaxTokens   int     `yaml:"max_tokens"`
		Temperature float64 `yaml:"temperature"`
		RateLimit   float64 `yaml:"rate_limit"`
	} `yaml:"llm"`

	Database struct {
		URL              string `yaml:"url"`
		MunicipalityID   int    `yaml:"municipality_id"`
		MunicipalityName string `yaml:"municipality_name"`
	} `yaml:"database"`

	Notion struct {
		Token      string `yaml:"token"`
		DatabaseID string `yaml:"database_id"`
	} `yaml:"notion"`

	Pipeline struct {
		OutputDir      string `yaml:"output_dir"`
		Workers        int    `yaml:"workers"`
		MaxAttempts    int    `yaml:"max_attempts"`
		RetryDelayMS   int    `yaml:"retry_delay_ms"`
		CallTimeoutSec int    `yaml:"call_timeout_sec"`
	} `yaml:"pipeline"`
}

func LoadConfig(path string) (*Config, error) {
	// If no path provided, try default locations
	if path == "" {
		locations := []string{
			"config.yaml",
			"config.yml",
			filepath.Join(os.Getenv("HOME"), ".config/budgetscan/config.yaml"),
			"/etc/budgetscan/config.yaml",
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
	mergeWithEnv(config)
	applyDefaults(config)
	return config, nil
}

func applyDefaults(config *Config) {
	if config.LLM.Model == "" {
		config.LLM.Model = "gpt-3.5-turbo-16k"
	}
	if config.LLM.MaxTokens == 0 {
		config.LLM.MaxTokens = 2000
	}
	if config.LLM.RateLimit == 0 {
		config.LLM.RateLimit = 2.0
	}

	if config.Database.MunicipalityID == 0 {
		config.Database.MunicipalityID = 1
	}
	if config.Database.MunicipalityName == "" {
		config.Database.MunicipalityName = "富山市"
	}

	if config.Pipeline.OutputDir == "" {
		config.Pipeline.OutputDir = "output"
	}
	if config.Pipeline.Workers == 0 {
		config.Pipeline.Workers = 4
	}
	if config.Pipeline.MaxAttempts == 0 {
		config.Pipeline.MaxAttempts = 3
	}
	if config.Pipeline.RetryDelayMS == 0 {
		config.Pipeline.RetryDelayMS = 1000
	}
	if config.Pipeline.CallTimeoutSec == 0 {
		config.Pipeline.CallTimeoutSec = 60
	}
}

func mergeWithEnv(config *Config) {
	if baseURL := os.Getenv("OPENAI_BASE_URL"); baseURL != "" {
		config.LLM.BaseURL = baseURL
	}
	if token := os.Getenv("OPENAI_API_KEY"); token != "" {
		config.LLM.Token = token
	}
	if dbURL := os.Getenv("DATABASE_URL"); dbURL != "" {
		config.Database.URL = dbURL
	}
	if token := os.Getenv("NOTION_API_KEY"); token != "" {
		config.Notion.Token = token
	}
	if id := os.Getenv("NOTION_DATABASE_ID"); id != "" {
		config.Notion.DatabaseID = id
	}
}
