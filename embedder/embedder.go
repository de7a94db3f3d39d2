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

// Package embedder produces vector embeddings from text.
//
// Embeddings back the semantic half of hybrid retrieval. Both providers
// (Ollama, OpenAI) return vectors suitable for inner-product search once
// they are unit-normalized; vector.Normalize handles that at index time.
package embedder

import (
	"context"
	"fmt"
)

// Embedder converts text into dense vector embeddings.
type Embedder interface {
	// Embed converts a single text to a vector embedding.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch converts multiple texts to vector embeddings.
	// More efficient than calling Embed in a loop.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimension returns the embedding vector dimension.
	Dimension() int

	// Model returns the model name being used.
	Model() string

	// Close releases any resources held by the embedder.
	Close() error
}

// Config configures embedding for the pipeline.
type Config struct {
	// Provider selects the backend: "ollama" (default) or "openai".
	Provider string `yaml:"provider" mapstructure:"provider"`

	// Model name. Defaults depend on the provider.
	Model string `yaml:"model" mapstructure:"model"`

	// BaseURL overrides the provider endpoint.
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`

	// APIKey authenticates hosted providers. Supports ${ENV} expansion
	// when loaded from YAML.
	APIKey string `yaml:"api_key" mapstructure:"api_key"`

	// Dimension of the embedding vectors (auto-detected from model if 0).
	Dimension int `yaml:"dimension" mapstructure:"dimension"`

	// Timeout in seconds for embedding requests.
	Timeout int `yaml:"timeout" mapstructure:"timeout"`

	// BatchSize caps how many texts go into one provider request.
	BatchSize int `yaml:"batch_size" mapstructure:"batch_size"`
}

// SetDefaults applies default values.
func (c *Config) SetDefaults() {
	if c.Provider == "" {
		c.Provider = "ollama"
	}
	if c.Timeout == 0 {
		c.Timeout = 30
	}
	if c.BatchSize == 0 {
		c.BatchSize = 100
	}
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	switch c.Provider {
	case "ollama":
	case "openai":
		if c.APIKey == "" {
			return fmt.Errorf("api_key is required for openai embedder")
		}
	default:
		return fmt.Errorf("unsupported embedder provider: %s (supported: ollama, openai)", c.Provider)
	}
	if c.Dimension < 0 {
		return fmt.Errorf("dimension must be non-negative, got %d", c.Dimension)
	}
	return nil
}
