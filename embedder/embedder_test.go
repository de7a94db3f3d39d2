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
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigDefaults(t *testing.T) {
	cfg := &Config{}
	cfg.SetDefaults()
	assert.Equal(t, "ollama", cfg.Provider)
	require.NoError(t, cfg.Validate())
}

func TestConfigOpenAIRequiresKey(t *testing.T) {
	cfg := &Config{Provider: "openai"}
	cfg.SetDefaults()
	assert.Error(t, cfg.Validate())

	cfg.APIKey = "sk-test"
	assert.NoError(t, cfg.Validate())
}

func TestNewRejectsUnknownProvider(t *testing.T) {
	_, err := New(&Config{Provider: "sbert"})
	assert.Error(t, err)
}

func TestOllamaEmbedBatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/embed", r.URL.Path)

		var req ollamaEmbedRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "all-minilm", req.Model)

		inputs, ok := req.Input.([]interface{})
		require.True(t, ok)
		embeddings := make([][]float32, len(inputs))
		for i := range embeddings {
			embeddings[i] = []float32{float32(i), 1}
		}
		json.NewEncoder(w).Encode(ollamaEmbedResponse{Embeddings: embeddings})
	}))
	defer srv.Close()

	emb, err := NewOllamaEmbedder(OllamaConfig{BaseURL: srv.URL})
	require.NoError(t, err)

	got, err := emb.EmbedBatch(context.Background(), []string{"a", "b"})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, []float32{1, 1}, got[1])
	assert.Equal(t, 384, emb.Dimension())
}

func TestOllamaSingleInputIsString(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req ollamaEmbedRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		_, isString := req.Input.(string)
		assert.True(t, isString)
		json.NewEncoder(w).Encode(ollamaEmbedResponse{Embeddings: [][]float32{{0.1, 0.2}}})
	}))
	defer srv.Close()

	emb, err := NewOllamaEmbedder(OllamaConfig{BaseURL: srv.URL})
	require.NoError(t, err)

	vec, err := emb.Embed(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, []float32{0.1, 0.2}, vec)
}

func TestOllamaServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not found", http.StatusNotFound)
	}))
	defer srv.Close()

	emb, err := NewOllamaEmbedder(OllamaConfig{BaseURL: srv.URL})
	require.NoError(t, err)

	_, err = emb.Embed(context.Background(), "hello")
	assert.ErrorContains(t, err, "404")
}

func TestOpenAIEmbedBatchOrdersByIndex(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/embeddings", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))

		// Out-of-order response data; the client must reorder.
		json.NewEncoder(w).Encode(map[string]any{
			"data": []map[string]any{
				{"index": 1, "embedding": []float32{2}},
				{"index": 0, "embedding": []float32{1}},
			},
		})
	}))
	defer srv.Close()

	emb, err := NewOpenAIEmbedder(OpenAIConfig{APIKey: "sk-test", BaseURL: srv.URL})
	require.NoError(t, err)

	got, err := emb.EmbedBatch(context.Background(), []string{"a", "b"})
	require.NoError(t, err)
	assert.Equal(t, [][]float32{{1}, {2}}, got)
}

func TestOpenAIRetriesRateLimit(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.Header().Set("Retry-After", "0")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		json.NewEncoder(w).Encode(map[string]any{
			"data": []map[string]any{{"index": 0, "embedding": []float32{1}}},
		})
	}))
	defer srv.Close()

	emb, err := NewOpenAIEmbedder(OpenAIConfig{APIKey: "sk-test", BaseURL: srv.URL})
	require.NoError(t, err)

	vec, err := emb.Embed(context.Background(), "a")
	require.NoError(t, err)
	assert.Equal(t, []float32{1}, vec)
	assert.Equal(t, int32(2), calls.Load())
}

func TestOpenAIErrorMessage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		json.NewEncoder(w).Encode(map[string]any{
			"error": map[string]string{"message": "Incorrect API key", "type": "invalid_request_error"},
		})
	}))
	defer srv.Close()

	emb, err := NewOpenAIEmbedder(OpenAIConfig{APIKey: "sk-bad", BaseURL: srv.URL})
	require.NoError(t, err)

	_, err = emb.Embed(context.Background(), "a")
	assert.ErrorContains(t, err, "Incorrect API key")
}
