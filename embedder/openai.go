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
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/godfrey-creat/civic-educator/internal/httpclient"
)

// OpenAIEmbedder implements Embedder using OpenAI's embeddings API.
type OpenAIEmbedder struct {
	client    *http.Client
	apiKey    string
	baseURL   string
	model     string
	dimension int
	batchSize int
}

// OpenAIConfig configures the OpenAI embedder.
type OpenAIConfig struct {
	// APIKey for the OpenAI API (required).
	APIKey string

	// BaseURL for the API (default: https://api.openai.com/v1).
	BaseURL string

	// Model name (default: text-embedding-3-small).
	Model string

	// Dimension of embeddings (auto-detected from model if 0).
	// For text-embedding-3 models this maps to the 'dimensions' API parameter.
	Dimension int

	// Timeout for API requests (default: 30s).
	Timeout time.Duration

	// BatchSize for batch embedding (default: 100). OpenAI accepts up to
	// 2048 inputs per request but the total token limit bites first.
	BatchSize int
}

type openaiEmbedRequest struct {
	Model      string   `json:"model"`
	Input      []string `json:"input"`
	Dimensions *int     `json:"dimensions,omitempty"`
}

type openaiEmbedResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
		Index     int       `json:"index"`
	} `json:"data"`
}

type openaiErrorResponse struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    string `json:"code"`
	} `json:"error"`
}

// NewOpenAIEmbedder creates a new OpenAI embedder.
func NewOpenAIEmbedder(cfg OpenAIConfig) (*OpenAIEmbedder, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("API key is required for OpenAI embedder")
	}

	model := cfg.Model
	if model == "" {
		model = "text-embedding-3-small"
	}

	dimension := cfg.Dimension
	if dimension == 0 {
		switch model {
		case "text-embedding-3-large":
			dimension = 3072
		default:
			dimension = 1536
		}
	}

	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	batchSize := cfg.BatchSize
	if batchSize == 0 {
		batchSize = 100
	}

	return &OpenAIEmbedder{
		client:    &http.Client{Timeout: timeout},
		apiKey:    cfg.APIKey,
		baseURL:   baseURL,
		model:     model,
		dimension: dimension,
		batchSize: batchSize,
	}, nil
}

// Embed converts text to a vector embedding.
func (e *OpenAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	embeddings, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(embeddings) == 0 {
		return nil, fmt.Errorf("received empty embedding from OpenAI")
	}
	return embeddings[0], nil
}

// EmbedBatch converts multiple texts to vector embeddings, splitting the
// input into API-sized batches.
func (e *OpenAIEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	results := make([][]float32, 0, len(texts))
	for i := 0; i < len(texts); i += e.batchSize {
		end := i + e.batchSize
		if end > len(texts) {
			end = len(texts)
		}
		embeddings, err := e.embedBatch(ctx, texts[i:end])
		if err != nil {
			return nil, err
		}
		results = append(results, embeddings...)
	}
	return results, nil
}

func (e *OpenAIEmbedder) embedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	req := openaiEmbedRequest{
		Model: e.model,
		Input: texts,
	}

	// text-embedding-3 models accept a reduced output dimension.
	if e.dimension > 0 && (e.model == "text-embedding-3-small" || e.model == "text-embedding-3-large") {
		req.Dimensions = &e.dimension
	}

	reqBody, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	// Rate limits are retried with backoff, honoring Retry-After.
	resp, err := httpclient.Do(ctx, e.client, httpclient.DefaultAttempts, func() (*http.Request, error) {
		httpReq, err := http.NewRequestWithContext(ctx, "POST", e.baseURL+"/embeddings", bytes.NewBuffer(reqBody))
		if err != nil {
			return nil, fmt.Errorf("failed to create request: %w", err)
		}
		httpReq.Header.Set("Content-Type", "application/json")
		httpReq.Header.Set("Authorization", "Bearer "+e.apiKey)
		return httpReq, nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to send request to OpenAI: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		var errorResp openaiErrorResponse
		if err := json.Unmarshal(body, &errorResp); err == nil && errorResp.Error.Message != "" {
			return nil, fmt.Errorf("OpenAI API error: %s (type: %s, code: %s)",
				errorResp.Error.Message, errorResp.Error.Type, errorResp.Error.Code)
		}
		return nil, fmt.Errorf("OpenAI API returned status %d: %s", resp.StatusCode, string(body))
	}

	var response openaiEmbedResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	// Responses may arrive out of order; restore input order by index.
	embeddings := make([][]float32, len(texts))
	for _, item := range response.Data {
		if item.Index >= 0 && item.Index < len(embeddings) {
			embeddings[item.Index] = item.Embedding
		}
	}
	return embeddings, nil
}

// Dimension returns the embedding vector dimension.
func (e *OpenAIEmbedder) Dimension() int {
	return e.dimension
}

// Model returns the model name being used.
func (e *OpenAIEmbedder) Model() string {
	return e.model
}

// Close releases any resources.
func (e *OpenAIEmbedder) Close() error {
	return nil
}
