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

package embedder

import (
	"fmt"
	"time"
)

// Compile-time interface checks.
var (
	_ Embedder = (*OllamaEmbedder)(nil)
	_ Embedder = (*OpenAIEmbedder)(nil)
)

// New creates an Embedder from configuration.
func New(cfg *Config) (Embedder, error) {
	if cfg == nil {
		return nil, fmt.Errorf("embedder config is required")
	}

	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid embedder config: %w", err)
	}

	switch cfg.Provider {
	case "ollama":
		return NewOllamaEmbedder(OllamaConfig{
			BaseURL:   cfg.BaseURL,
			Model:     cfg.Model,
			Dimension: cfg.Dimension,
			Timeout:   time.Duration(cfg.Timeout) * time.Second,
		})

	case "openai":
		return NewOpenAIEmbedder(OpenAIConfig{
			APIKey:    cfg.APIKey,
			BaseURL:   cfg.BaseURL,
			Model:     cfg.Model,
			Dimension: cfg.Dimension,
			Timeout:   time.Duration(cfg.Timeout) * time.Second,
			BatchSize: cfg.BatchSize,
		})

	default:
		return nil, fmt.Errorf("unsupported embedder provider: %s (supported: ollama, openai)", cfg.Provider)
	}
}
