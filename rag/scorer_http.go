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

package rag

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// ScorerConfig configures the HTTP cross-encoder scorer.
type ScorerConfig struct {
	// URL of the scoring endpoint. Empty disables cross-encoder reranking.
	URL string `yaml:"url" mapstructure:"url"`

	// Timeout for scoring requests in seconds (default: 10).
	Timeout int `yaml:"timeout" mapstructure:"timeout"`
}

// SetDefaults applies default values.
func (c *ScorerConfig) SetDefaults() {
	if c.Timeout == 0 {
		c.Timeout = 10
	}
}

// Validate checks the configuration for errors.
func (c *ScorerConfig) Validate() error {
	if c.Timeout < 0 {
		return fmt.Errorf("timeout must be non-negative")
	}
	return nil
}

// HTTPScorer scores query/passage pairs against a cross-encoder service.
// The service accepts {"query": ..., "passages": [...]} and returns one
// relevance score per passage in the same order.
type HTTPScorer struct {
	client *http.Client
	url    string
}

// NewHTTPScorer creates a cross-encoder scorer, or nil when no URL is
// configured so callers can pass it straight to NewReranker.
func NewHTTPScorer(cfg ScorerConfig) *HTTPScorer {
	cfg.SetDefaults()
	if cfg.URL == "" {
		return nil
	}
	return &HTTPScorer{
		client: &http.Client{Timeout: time.Duration(cfg.Timeout) * time.Second},
		url:    cfg.URL,
	}
}

type scoreRequest struct {
	Query    string   `json:"query"`
	Passages []string `json:"passages"`
}

type scoreResponse struct {
	Scores []float64 `json:"scores"`
	Error  string    `json:"error,omitempty"`
}

// Score scores a single query/passage pair.
func (s *HTTPScorer) Score(ctx context.Context, query, passage string) (float64, error) {
	scores, err := s.ScoreBatch(ctx, query, []string{passage})
	if err != nil {
		return 0, err
	}
	return scores[0], nil
}

// ScoreBatch scores a query against multiple passages in one request.
func (s *HTTPScorer) ScoreBatch(ctx context.Context, query string, passages []string) ([]float64, error) {
	if len(passages) == 0 {
		return nil, nil
	}

	body, err := json.Marshal(scoreRequest{Query: query, Passages: passages})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal score request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create score request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("cross-encoder request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read score response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("cross-encoder returned status %d: %s", resp.StatusCode, string(data))
	}

	var parsed scoreResponse
	if err := json.Unmarshal(data, &parsed); err != nil {
		return nil, fmt.Errorf("failed to parse score response: %w", err)
	}
	if parsed.Error != "" {
		return nil, fmt.Errorf("cross-encoder error: %s", parsed.Error)
	}
	if len(parsed.Scores) != len(passages) {
		return nil, fmt.Errorf("cross-encoder returned %d scores for %d passages", len(parsed.Scores), len(passages))
	}
	return parsed.Scores, nil
}

var _ Scorer = (*HTTPScorer)(nil)
