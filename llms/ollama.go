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

package llms

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// OllamaGenerator implements Generator against a local Ollama server
// using the non-streaming /api/generate endpoint.
type OllamaGenerator struct {
	client  *http.Client
	baseURL string
	model   string
	config  Config
}

type ollamaGenerateRequest struct {
	Model   string         `json:"model"`
	Prompt  string         `json:"prompt"`
	Stream  bool           `json:"stream"`
	Options map[string]any `json:"options,omitempty"`
}

type ollamaGenerateResponse struct {
	Response string `json:"response"`
	Done     bool   `json:"done"`
}

// NewOllamaGenerator creates an Ollama-backed generator.
func NewOllamaGenerator(cfg Config) (*OllamaGenerator, error) {
	if cfg.Model == "" {
		cfg.Model = "llama3.2"
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "http://localhost:11434"
	}
	timeout := time.Duration(cfg.Timeout) * time.Second
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	return &OllamaGenerator{
		client:  &http.Client{Timeout: timeout},
		baseURL: cfg.BaseURL,
		model:   cfg.Model,
		config:  cfg,
	}, nil
}

// Available reports whether the generator is configured.
func (g *OllamaGenerator) Available() bool {
	return g.client != nil
}

// Generate produces a completion for the prompt.
func (g *OllamaGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	req := ollamaGenerateRequest{
		Model:  g.model,
		Prompt: prompt,
		Stream: false,
	}
	if g.config.Temperature > 0 {
		req.Options = map[string]any{"temperature": g.config.Temperature}
	}

	reqBody, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", g.baseURL+"/api/generate", bytes.NewBuffer(reqBody))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("failed to send request to Ollama: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("Ollama API returned status %d: %s", resp.StatusCode, string(body))
	}

	var response ollamaGenerateResponse
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return "", fmt.Errorf("failed to decode response: %w", err)
	}
	return response.Response, nil
}

// Name returns the model identifier.
func (g *OllamaGenerator) Name() string {
	return g.model
}

var _ Generator = (*OllamaGenerator)(nil)
