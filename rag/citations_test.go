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
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatCitationsDedupAndCap(t *testing.T) {
	docs := []CandidateResult{
		{Content: "a", Source: "kb1", Title: "Waste guide"},
		{Content: "b", Source: "kb1", Title: "Waste guide"},
		{Content: "c", Source: "kb2", Title: "Permits"},
		{Content: "d", Source: "kb3", Title: "Water"},
		{Content: "e", Source: "kb4", Title: "Courts"},
	}

	citations := FormatCitations(docs)
	require.Len(t, citations, 3, "capped at three")

	seen := map[string]struct{}{}
	for _, c := range citations {
		_, dup := seen[c.SourceLink]
		assert.False(t, dup, "no two citations share a source")
		seen[c.SourceLink] = struct{}{}
	}
	assert.Equal(t, "kb1", citations[0].SourceLink)
	assert.Equal(t, "kb2", citations[1].SourceLink)
}

func TestFormatCitationsSnippetTruncation(t *testing.T) {
	long := strings.Repeat("water  billing   details ", 30)
	citations := FormatCitations([]CandidateResult{{Content: long, Source: "kb1"}})
	require.Len(t, citations, 1)

	assert.LessOrEqual(t, len(citations[0].Snippet), maxSnippetLength+len(citationSeparator))
	assert.True(t, strings.HasSuffix(citations[0].Snippet, "..."))
	assert.NotContains(t, citations[0].Snippet, "  ", "whitespace collapsed")
}

func TestFormatCitationsPageFromMetadata(t *testing.T) {
	citations := FormatCitations([]CandidateResult{
		{Content: "x", Source: "kb1", Metadata: map[string]any{"page": 4}},
		// JSON round-trips numbers as float64.
		{Content: "y", Source: "kb2", Metadata: map[string]any{"page": float64(7)}},
	})
	require.Len(t, citations, 2)
	require.NotNil(t, citations[0].Page)
	assert.Equal(t, 4, *citations[0].Page)
	require.NotNil(t, citations[1].Page)
	assert.Equal(t, 7, *citations[1].Page)
}

func TestFormatCitationsTitleFallsBackToSource(t *testing.T) {
	citations := FormatCitations([]CandidateResult{{Content: "x", Source: "kb9"}})
	require.Len(t, citations, 1)
	assert.Equal(t, "kb9", citations[0].Title)
}

func TestDistinctSources(t *testing.T) {
	docs := []CandidateResult{
		{Source: "kb1"},
		{Source: "kb2"},
		{Source: "kb1"},
		{Source: ""},
		{Metadata: map[string]any{"source": "kb3"}},
	}
	assert.Equal(t, []string{"kb1", "kb2", "kb3"}, DistinctSources(docs))
}

func TestSnippet(t *testing.T) {
	assert.Equal(t, "a b c", Snippet("  a\n b\t c ", 100))
	assert.Equal(t, "abcde", Snippet("abcde", 5))
	assert.Equal(t, "abcde...", Snippet("abcdef", 5))
}
