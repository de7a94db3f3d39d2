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
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSerpAPISearch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "garbage collection schedule", r.URL.Query().Get("q"))
		assert.Equal(t, "test-key", r.URL.Query().Get("api_key"))
		assert.Equal(t, "google", r.URL.Query().Get("engine"))

		json.NewEncoder(w).Encode(map[string]any{
			"organic_results": []map[string]string{
				{"title": "No link entry", "snippet": "skipped"},
				{"title": "County Waste", "snippet": "Collected Tuesdays.", "link": "https://county.example/waste"},
			},
		})
	}))
	defer srv.Close()

	client := NewSerpAPIClient(SerpAPIConfig{APIKey: "test-key", BaseURL: srv.URL})
	require.True(t, client.Available())

	result, err := client.Search(context.Background(), "garbage collection schedule")
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.Equal(t, "County Waste", result.Title)
	assert.Equal(t, "https://county.example/waste", result.Link)
}

func TestSerpAPINoResults(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"organic_results": []map[string]string{}})
	}))
	defer srv.Close()

	client := NewSerpAPIClient(SerpAPIConfig{APIKey: "test-key", BaseURL: srv.URL})
	result, err := client.Search(context.Background(), "anything")
	require.NoError(t, err)
	assert.Nil(t, result)
}

func TestSerpAPIErrorField(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"error": "Invalid API key"})
	}))
	defer srv.Close()

	client := NewSerpAPIClient(SerpAPIConfig{APIKey: "bad", BaseURL: srv.URL})
	_, err := client.Search(context.Background(), "anything")
	assert.ErrorContains(t, err, "Invalid API key")
}

func TestSerpAPIUnavailableWithoutKey(t *testing.T) {
	client := NewSerpAPIClient(SerpAPIConfig{})
	assert.False(t, client.Available())

	_, err := client.Search(context.Background(), "anything")
	assert.Error(t, err)
}
