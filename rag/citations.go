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

import "strings"

const (
	maxCitations      = 3
	maxSnippetLength  = 200
	citationSeparator = "..."
)

// FormatCitations turns ranked candidates into a display-ready citation
// list: at most one citation per distinct source, capped at three,
// snippets whitespace-collapsed and truncated.
func FormatCitations(docs []CandidateResult) []Citation {
	citations := make([]Citation, 0, maxCitations)
	seen := make(map[string]struct{}, maxCitations)

	for _, doc := range docs {
		if len(citations) >= maxCitations {
			break
		}
		source := doc.Source
		if source == "" {
			source = metadataString(doc.Metadata, "source")
		}
		if source != "" {
			if _, dup := seen[source]; dup {
				continue
			}
			seen[source] = struct{}{}
		}

		title := doc.Title
		if title == "" {
			title = metadataString(doc.Metadata, "title")
		}
		if title == "" {
			title = source
		}

		c := Citation{
			Title:      title,
			Snippet:    Snippet(doc.Content, maxSnippetLength),
			SourceLink: source,
		}
		if page, ok := metadataInt(doc.Metadata, "page"); ok {
			c.Page = &page
		}
		citations = append(citations, c)
	}
	return citations
}

// DistinctSources lists source identifiers in ranked order, deduplicated.
func DistinctSources(docs []CandidateResult) []string {
	sources := make([]string, 0, len(docs))
	seen := make(map[string]struct{}, len(docs))
	for _, doc := range docs {
		source := doc.Source
		if source == "" {
			source = metadataString(doc.Metadata, "source")
		}
		if source == "" {
			continue
		}
		if _, dup := seen[source]; dup {
			continue
		}
		seen[source] = struct{}{}
		sources = append(sources, source)
	}
	return sources
}

// Snippet collapses whitespace and truncates to limit characters,
// appending an ellipsis when text was cut.
func Snippet(text string, limit int) string {
	collapsed := strings.Join(strings.Fields(text), " ")
	if limit <= 0 || len(collapsed) <= limit {
		return collapsed
	}
	return strings.TrimSpace(collapsed[:limit]) + citationSeparator
}

// metadataInt pulls an integer field out of metadata, tolerating the
// float64 that JSON round-trips produce.
func metadataInt(md map[string]any, key string) (int, bool) {
	if md == nil {
		return 0, false
	}
	switch v := md[key].(type) {
	case int:
		return v, true
	case int64:
		return int(v), true
	case float64:
		return int(v), true
	default:
		return 0, false
	}
}
