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

// Package vector provides vector storage and nearest-neighbor search.
//
// Three providers are available:
//   - FlatStore: exact brute-force search with binary file persistence.
//     The default; its search output is deterministic and round-trips
//     bit-identically through Save/Load.
//   - ChromemProvider: embedded chromem-go database, no external services.
//   - QdrantProvider: external Qdrant server for production deployments.
//
// All providers share the Provider interface consumed by the document index.
package vector

import "context"

// Metric identifies the similarity metric used by a store.
//
// The metric is fixed for the lifetime of an index instance and is recorded
// in the persisted header so a loaded index scores identically.
type Metric string

const (
	// MetricInnerProduct scores by dot product. With unit-normalized vectors
	// this equals cosine similarity, in [-1, 1], higher is better.
	MetricInnerProduct Metric = "ip"

	// MetricL2 scores by negated squared euclidean distance, so that higher
	// is still better and result ordering is uniform across metrics.
	MetricL2 Metric = "l2"
)

// Result is a single nearest-neighbor match.
type Result struct {
	// ID is the stored vector's identifier.
	ID string `json:"id"`

	// Score is the similarity under the store's metric (higher is better).
	Score float64 `json:"score"`

	// Metadata carries the payload stored alongside the vector, if the
	// provider keeps one.
	Metadata map[string]any `json:"metadata,omitempty"`
}

// Provider stores embeddings and answers nearest-neighbor queries.
type Provider interface {
	// Upsert adds or replaces a vector under the given id.
	Upsert(ctx context.Context, id string, vec []float32, metadata map[string]any) error

	// Search returns up to topK nearest neighbors ordered by descending score.
	// Fewer than topK stored vectors yield fewer results, never an error.
	Search(ctx context.Context, vec []float32, topK int) ([]Result, error)

	// Count reports the number of stored vectors.
	Count(ctx context.Context) (int, error)

	// Reset removes all stored vectors.
	Reset(ctx context.Context) error

	// Name identifies the provider implementation.
	Name() string

	// Close releases resources.
	Close() error
}
