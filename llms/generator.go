// Copyright 2025 The Civic Educator Authors
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

// Package llms provides answer-generation backends for the pipeline.
package llms

import (
	"context"
	"fmt"
)

// Generator synthesizes prose answers. The pipeline treats any
// generation error as "backend unavailable" and moves to the next
// fallback tier.
type Generator interface {
	// Available reports whether the backend is configured and reachable
	// enough to attempt generation.
	Available() bool

	// Generate produces text for the prompt.
	Generate(ctx context.Context, prompt string) (string, error)

	// Name identifies the backend, used to tag ungrounded answers.
	Name() string
}

// Config configures the generation backend.
type Config struct {
	// Provider selects the backend: "gemini", "ollama", or "" (none).
	Provider string `yaml:"provider" mapstructure:"provider"`

	// Model name. Defaults depend on the provider.
	Model string `yaml:"model" mapstructure:"model"`

	// APIKey authenticates hosted providers. Supports ${ENV} expansion
	// when loaded from YAML.
	APIKey string `yaml:"api_key" mapstructure:"api_key"`

	// BaseURL overrides the provider endpoint (Ollama).
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`

	// Temperature controls randomness (0-2).
	Temperature float64 `yaml:"temperature" mapstructure:"temperature"`

	// MaxTokens limits the response length.
	MaxTokens int `yaml:"max_tokens" mapstructure:"max_tokens"`

	// Timeout in seconds for generation requests.
	Timeout int `yaml:"timeout" mapstructure:"timeout"`
}

// SetDefaults applies default values.
func (c *Config) SetDefaults() {
	if c.Timeout == 0 {
		c.Timeout = 30
	}
	if c.MaxTokens == 0 {
		c.MaxTokens = 1024
	}
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	switch c.Provider {
	case "", "none", "ollama":
	case "gemini":
		if c.APIKey == "" {
			return fmt.Errorf("api_key is required for gemini generator")
		}
	default:
		return fmt.Errorf("unsupported generator provider: %s (supported: gemini, ollama, none)", c.Provider)
	}
	return nil
}

// New creates a Generator from configuration. A "none" or empty
// provider returns nil: the pipeline then stays on extractive answers.
func New(cfg *Config) (Generator, error) {
	if cfg == nil {
		return nil, nil
	}
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid generator config: %w", err)
	}

	switch cfg.Provider {
	case "", "none":
		return nil, nil
	case "gemini":
		return NewGeminiGenerator(*cfg)
	case "ollama":
		return NewOllamaGenerator(*cfg)
	default:
		return nil, fmt.Errorf("unsupported generator provider: %s", cfg.Provider)
	}
}
