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
	"context"
	"fmt"
	"strings"

	"google.golang.org/genai"
)

// GeminiGenerator implements Generator using the official
// google.golang.org/genai SDK.
type GeminiGenerator struct {
	client *genai.Client
	model  string
	config Config
}

// NewGeminiGenerator creates a Gemini-backed generator.
func NewGeminiGenerator(cfg Config) (*GeminiGenerator, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("API key is required")
	}
	if cfg.Model == "" {
		cfg.Model = "gemini-2.0-flash"
	}

	// Constructors shouldn't require a context; genai only uses it for
	// option resolution here.
	client, err := genai.NewClient(context.Background(), &genai.ClientConfig{
		APIKey: cfg.APIKey,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	return &GeminiGenerator{
		client: client,
		model:  cfg.Model,
		config: cfg,
	}, nil
}

// Available reports whether the client was constructed.
func (g *GeminiGenerator) Available() bool {
	return g.client != nil
}

// Generate produces a completion for the prompt.
func (g *GeminiGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	config := &genai.GenerateContentConfig{}
	if g.config.Temperature > 0 {
		config.Temperature = genai.Ptr(float32(g.config.Temperature))
	}
	if g.config.MaxTokens > 0 {
		config.MaxOutputTokens = int32(g.config.MaxTokens)
	}

	resp, err := g.client.Models.GenerateContent(ctx, g.model, genai.Text(prompt), config)
	if err != nil {
		return "", fmt.Errorf("Gemini generation failed: %w", err)
	}
	if len(resp.Candidates) == 0 {
		return "", fmt.Errorf("empty response from Gemini")
	}

	var sb strings.Builder
	candidate := resp.Candidates[0]
	if candidate.Content != nil {
		for _, part := range candidate.Content.Parts {
			if part.Text != "" && !part.Thought {
				sb.WriteString(part.Text)
			}
		}
	}
	text := strings.TrimSpace(sb.String())
	if text == "" {
		return "", fmt.Errorf("Gemini returned no text content")
	}
	return text, nil
}

// Name returns the model identifier.
func (g *GeminiGenerator) Name() string {
	return g.model
}

var _ Generator = (*GeminiGenerator)(nil)
