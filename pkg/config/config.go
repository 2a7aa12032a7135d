// Copyright 2025 The Scout Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package config defines the service configuration and the global LLM/prompt
// settings document served from the strategy store.
package config

import (
	"fmt"
)

// Config is the root service configuration, loaded once at boot.
type Config struct {
	Logging   LoggingConfig                 `yaml:"logging" mapstructure:"logging"`
	Server    ServerConfig                  `yaml:"server" mapstructure:"server"`
	Store     StoreConfig                   `yaml:"store" mapstructure:"store"`
	Providers ProvidersConfig               `yaml:"providers" mapstructure:"providers"`
	LLM       map[string]*LLMProviderConfig `yaml:"llm" mapstructure:"llm"`
	Executor  ExecutorConfig                `yaml:"executor" mapstructure:"executor"`
	Webhook   WebhookConfig                 `yaml:"webhook" mapstructure:"webhook"`
	Metrics   MetricsConfig                 `yaml:"metrics" mapstructure:"metrics"`
}

type LoggingConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
	File   string `yaml:"file" mapstructure:"file"`
}

type ServerConfig struct {
	Host string `yaml:"host" mapstructure:"host"`
	Port int    `yaml:"port" mapstructure:"port"`

	// SharedSecret protects the /v1 API surface. Empty disables auth
	// (local development only).
	SharedSecret string `yaml:"shared_secret" mapstructure:"shared_secret"`
}

// StoreConfig selects the durable store for strategies, settings and
// subscriptions. Driver "sqlite" reads everything from DSN; driver "file"
// reads strategy and settings documents from StrategiesDir (dev mode,
// subscriptions unavailable).
type StoreConfig struct {
	Driver        string `yaml:"driver" mapstructure:"driver"`
	DSN           string `yaml:"dsn" mapstructure:"dsn"`
	StrategiesDir string `yaml:"strategies_dir" mapstructure:"strategies_dir"`
}

type ProvidersConfig struct {
	Sonar SonarConfig `yaml:"sonar" mapstructure:"sonar"`
	Exa   ExaConfig   `yaml:"exa" mapstructure:"exa"`
	Fetch FetchConfig `yaml:"fetch" mapstructure:"fetch"`
}

// SonarConfig configures the citation-bearing web search provider.
type SonarConfig struct {
	APIKey     string `yaml:"api_key" mapstructure:"api_key"`
	BaseURL    string `yaml:"base_url" mapstructure:"base_url"`
	Model      string `yaml:"model" mapstructure:"model"`
	Timeout    int    `yaml:"timeout" mapstructure:"timeout"`
	MaxRetries int    `yaml:"max_retries" mapstructure:"max_retries"`
}

// ExaConfig configures the neural search provider.
type ExaConfig struct {
	APIKey     string `yaml:"api_key" mapstructure:"api_key"`
	BaseURL    string `yaml:"base_url" mapstructure:"base_url"`
	Timeout    int    `yaml:"timeout" mapstructure:"timeout"`
	MaxRetries int    `yaml:"max_retries" mapstructure:"max_retries"`
}

// FetchConfig configures the direct content-fetch adapter.
type FetchConfig struct {
	Timeout  int   `yaml:"timeout" mapstructure:"timeout"`
	MaxBytes int64 `yaml:"max_bytes" mapstructure:"max_bytes"`
}

// LLMProviderConfig configures one named LLM provider. Type is one of
// "openai", "anthropic", "gemini".
type LLMProviderConfig struct {
	Type        string   `yaml:"type" mapstructure:"type"`
	Model       string   `yaml:"model" mapstructure:"model"`
	Host        string   `yaml:"host" mapstructure:"host"`
	APIKey      string   `yaml:"api_key" mapstructure:"api_key"`
	Temperature *float64 `yaml:"temperature" mapstructure:"temperature"`
	MaxTokens   int      `yaml:"max_tokens" mapstructure:"max_tokens"`
	Timeout     int      `yaml:"timeout" mapstructure:"timeout"`
	MaxRetries  int      `yaml:"max_retries" mapstructure:"max_retries"`
	RetryDelay  int      `yaml:"retry_delay" mapstructure:"retry_delay"`
}

type ExecutorConfig struct {
	// MaxFanOut bounds parallel foreach iterations and fan-out passes
	// within a single request.
	MaxFanOut int `yaml:"max_fan_out" mapstructure:"max_fan_out"`

	// RequestTimeout is the request-wide deadline in seconds.
	RequestTimeout int `yaml:"request_timeout" mapstructure:"request_timeout"`

	// StepRetries bounds executor-level retries of transient adapter
	// failures (the HTTP client retries underneath as well).
	StepRetries int `yaml:"step_retries" mapstructure:"step_retries"`
}

type WebhookConfig struct {
	URL     string `yaml:"url" mapstructure:"url"`
	Secret  string `yaml:"secret" mapstructure:"secret"`
	Timeout int    `yaml:"timeout" mapstructure:"timeout"`
}

type MetricsConfig struct {
	Enabled bool `yaml:"enabled" mapstructure:"enabled"`
}

// SetDefaults fills unset fields with working defaults.
func (c *Config) SetDefaults() {
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "simple"
	}
	if c.Server.Host == "" {
		c.Server.Host = "0.0.0.0"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Store.Driver == "" {
		c.Store.Driver = "sqlite"
	}
	if c.Providers.Sonar.BaseURL == "" {
		c.Providers.Sonar.BaseURL = "https://api.perplexity.ai"
	}
	if c.Providers.Sonar.Model == "" {
		c.Providers.Sonar.Model = "sonar"
	}
	if c.Providers.Sonar.Timeout == 0 {
		c.Providers.Sonar.Timeout = 60
	}
	if c.Providers.Exa.BaseURL == "" {
		c.Providers.Exa.BaseURL = "https://api.exa.ai"
	}
	if c.Providers.Exa.Timeout == 0 {
		c.Providers.Exa.Timeout = 30
	}
	if c.Providers.Fetch.Timeout == 0 {
		c.Providers.Fetch.Timeout = 30
	}
	if c.Providers.Fetch.MaxBytes == 0 {
		c.Providers.Fetch.MaxBytes = 4 << 20
	}
	for _, llm := range c.LLM {
		if llm.Timeout == 0 {
			llm.Timeout = 120
		}
		if llm.MaxRetries == 0 {
			llm.MaxRetries = 3
		}
		if llm.RetryDelay == 0 {
			llm.RetryDelay = 2
		}
		if llm.MaxTokens == 0 {
			llm.MaxTokens = 4096
		}
	}
	if c.Executor.MaxFanOut == 0 {
		c.Executor.MaxFanOut = 4
	}
	if c.Executor.RequestTimeout == 0 {
		c.Executor.RequestTimeout = 600
	}
	if c.Executor.StepRetries == 0 {
		c.Executor.StepRetries = 2
	}
	if c.Webhook.Timeout == 0 {
		c.Webhook.Timeout = 30
	}
}

// Validate rejects configurations that cannot serve requests.
func (c *Config) Validate() error {
	switch c.Store.Driver {
	case "sqlite":
		if c.Store.DSN == "" {
			return fmt.Errorf("store.dsn is required for the sqlite driver")
		}
	case "file":
		if c.Store.StrategiesDir == "" {
			return fmt.Errorf("store.strategies_dir is required for the file driver")
		}
	default:
		return fmt.Errorf("unknown store driver %q", c.Store.Driver)
	}

	if len(c.LLM) == 0 {
		return fmt.Errorf("at least one llm provider is required")
	}
	if _, ok := c.LLM["default"]; !ok {
		return fmt.Errorf("llm provider %q is required", "default")
	}
	for name, llm := range c.LLM {
		switch llm.Type {
		case "openai", "anthropic", "gemini":
		default:
			return fmt.Errorf("llm %q: unknown type %q", name, llm.Type)
		}
		if llm.Model == "" {
			return fmt.Errorf("llm %q: model is required", name)
		}
	}

	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d out of range", c.Server.Port)
	}
	return nil
}
