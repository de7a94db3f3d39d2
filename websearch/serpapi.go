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

package websearch

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/godfrey-creat/civic-educator/internal/httpclient"
)

// SerpAPIClient queries Google results through serpapi.com.
type SerpAPIClient struct {
	client  *http.Client
	apiKey  string
	baseURL string
	engine  string
}

// SerpAPIConfig configures the SerpAPI client.
type SerpAPIConfig struct {
	// APIKey for serpapi.com (required to be Available).
	APIKey string `yaml:"api_key" mapstructure:"api_key"`

	// BaseURL overrides the API endpoint (default: https://serpapi.com/search).
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`

	// Engine selects the search engine (default: google).
	Engine string `yaml:"engine" mapstructure:"engine"`

	// Timeout for search requests (default: 20s).
	Timeout time.Duration `yaml:"timeout" mapstructure:"timeout"`
}

type serpAPIResponse struct {
	OrganicResults []struct {
		Title   string `json:"title"`
		Snippet string `json:"snippet"`
		Link    string `json:"link"`
	} `json:"organic_results"`
	Error string `json:"error"`
}

// NewSerpAPIClient creates a SerpAPI search client. An empty API key is
// allowed; the client then reports itself unavailable.
func NewSerpAPIClient(cfg SerpAPIConfig) *SerpAPIClient {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://serpapi.com/search"
	}
	if cfg.Engine == "" {
		cfg.Engine = "google"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 20 * time.Second
	}
	return &SerpAPIClient{
		client:  &http.Client{Timeout: cfg.Timeout},
		apiKey:  cfg.APIKey,
		baseURL: cfg.BaseURL,
		engine:  cfg.Engine,
	}
}

// Available reports whether an API key is configured.
func (c *SerpAPIClient) Available() bool {
	return c != nil && c.apiKey != ""
}

// Search returns the first organic result, or nil when there is none.
func (c *SerpAPIClient) Search(ctx context.Context, query string) (*Result, error) {
	if !c.Available() {
		return nil, fmt.Errorf("serpapi client is not configured")
	}

	params := url.Values{}
	params.Set("q", query)
	params.Set("api_key", c.apiKey)
	params.Set("engine", c.engine)
	params.Set("num", "3")

	resp, err := httpclient.Do(ctx, c.client, httpclient.DefaultAttempts, func() (*http.Request, error) {
		return http.NewRequestWithContext(ctx, "GET", c.baseURL+"?"+params.Encode(), nil)
	})
	if err != nil {
		return nil, fmt.Errorf("search request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("serpapi returned status %d: %s", resp.StatusCode, string(body))
	}

	var parsed serpAPIResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("failed to decode search response: %w", err)
	}
	if parsed.Error != "" {
		return nil, fmt.Errorf("serpapi error: %s", parsed.Error)
	}

	for _, hit := range parsed.OrganicResults {
		if hit.Link == "" {
			continue
		}
		return &Result{
			Title:   hit.Title,
			Snippet: hit.Snippet,
			Link:    hit.Link,
		}, nil
	}
	return nil, nil
}

var _ Client = (*SerpAPIClient)(nil)
