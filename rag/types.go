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

// Package rag implements the retrieval-augmented answering core:
// chunking, document indexing with hybrid (dense + lexical) search,
// reranking, confidence scoring, clarification gating, citation
// formatting, and the coordinating pipeline.
package rag

// Document is a unit of ingested content, owned by the DocumentIndex.
// Re-ingesting with the same id replaces the previous version.
type Document struct {
	ID       int            `json:"id"`
	Title    string         `json:"title"`
	Content  string         `json:"content"`
	Metadata map[string]any `json:"metadata"`
}

// Chunk is a bounded slice of a document's text, the unit of embedding
// and retrieval. ChunkID is derived from the source metadata plus a
// content hash so identical content re-indexed from the same source
// keeps its id.
type Chunk struct {
	ChunkID   string         `json:"chunk_id"`
	Text      string         `json:"text"`
	Metadata  map[string]any `json:"metadata"`
	Embedding []float32      `json:"-"`
}

// CandidateResult is a transient search result. Score domain depends on
// the stage that produced it: raw inner-product similarity from the
// first stage, or a min-max normalized blend after hybrid reranking.
type CandidateResult struct {
	Content  string         `json:"content"`
	Score    float64        `json:"score"`
	Metadata map[string]any `json:"metadata"`
	Source   string         `json:"source"`
	Title    string         `json:"title"`
}

// Citation points a user at where an answer came from.
type Citation struct {
	Title      string `json:"title"`
	Snippet    string `json:"snippet"`
	SourceLink string `json:"source_link"`
	Page       *int   `json:"page,omitempty"`
}

// RAGResponse is the complete answer to one query. Immutable once built
// and serialized directly to the caller.
type RAGResponse struct {
	Answer                string         `json:"answer"`
	Citations             []Citation     `json:"citations"`
	Confidence            float64        `json:"confidence"`
	NeedsClarification    bool           `json:"needs_clarification"`
	ClarificationQuestion string         `json:"clarification_question,omitempty"`
	Sources               []string       `json:"sources"`
	SuggestedActions      []string       `json:"suggested_actions,omitempty"`
	Context               map[string]any `json:"context,omitempty"`
}

// metadataString pulls a string field out of chunk/document metadata,
// tolerating missing keys and non-string values.
func metadataString(md map[string]any, key string) string {
	if md == nil {
		return ""
	}
	if v, ok := md[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}
