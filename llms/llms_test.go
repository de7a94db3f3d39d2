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
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewGeneratorNoneProvider(t *testing.T) {
	gen, err := New(&Config{})
	require.NoError(t, err)
	assert.Nil(t, gen)

	gen, err = New(&Config{Provider: "none"})
	require.NoError(t, err)
	assert.Nil(t, gen)

	gen, err = New(nil)
	require.NoError(t, err)
	assert.Nil(t, gen)
}

func TestNewGeneratorGeminiRequiresKey(t *testing.T) {
	_, err := New(&Config{Provider: "gemini"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "api_key is required")
}

func TestNewGeneratorUnknownProvider(t *testing.T) {
	_, err := New(&Config{Provider: "bard"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported generator provider")
}

func TestConfigDefaults(t *testing.T) {
	cfg := Config{}
	cfg.SetDefaults()
	assert.Equal(t, 30, cfg.Timeout)
	assert.Equal(t, 1024, cfg.MaxTokens)
}

func TestOllamaGenerate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/generate", r.URL.Path)

		var req ollamaGenerateRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "llama3.2", req.Model)
		assert.False(t, req.Stream)
		assert.Contains(t, req.Prompt, "garbage")
		assert.Equal(t, 0.2, req.Options["temperature"])

		json.NewEncoder(w).Encode(ollamaGenerateResponse{
			Response: "Garbage is collected on Mondays.",
			Done:     true,
		})
	}))
	defer srv.Close()

	gen, err := NewOllamaGenerator(Config{BaseURL: srv.URL, Temperature: 0.2})
	require.NoError(t, err)
	assert.True(t, gen.Available())
	assert.Equal(t, "llama3.2", gen.Name())

	out, err := gen.Generate(context.Background(), "When is garbage collected?")
	require.NoError(t, err)
	assert.Equal(t, "Garbage is collected on Mondays.", out)
}

func TestOllamaGenerateServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not found", http.StatusNotFound)
	}))
	defer srv.Close()

	gen, err := NewOllamaGenerator(Config{BaseURL: srv.URL})
	require.NoError(t, err)

	_, err = gen.Generate(context.Background(), "hello")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 404")
}

func TestTrimToTokenBudget(t *testing.T) {
	short := "Water bills can be paid online."
	assert.Equal(t, short, TrimToTokenBudget(short, 1000))

	// Zero budget means unbounded.
	long := strings.Repeat("county service desk hours ", 400)
	assert.Equal(t, long, TrimToTokenBudget(long, 0))

	trimmed := TrimToTokenBudget(long, 10)
	assert.NotEmpty(t, trimmed)
	assert.Less(t, len(trimmed), len(long))
	assert.True(t, strings.HasPrefix(long, trimmed))
}

func TestCountTokens(t *testing.T) {
	assert.Zero(t, CountTokens(""))
	assert.Greater(t, CountTokens(strings.Repeat("civic education ", 50)), 0)
}
