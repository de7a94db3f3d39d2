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
	"context"
	"log/slog"
	"sort"
)

// Scorer is the cross-encoder backend: pairwise relevance of a passage
// against a query.
type Scorer interface {
	// Score returns the relevance of passage to query.
	Score(ctx context.Context, query, passage string) (float64, error)

	// ScoreBatch scores many passages against one query.
	ScoreBatch(ctx context.Context, query string, passages []string) ([]float64, error)
}

// minMaxEpsilon guards the min-max denominator when all scores are equal.
const minMaxEpsilon = 1e-9

// Reranker reorders first-stage candidates with a cross-encoder scorer.
// On any scorer failure it degrades to the original ordering: ranking
// quality loss is acceptable, a dead query path is not.
type Reranker struct {
	scorer Scorer
}

// NewReranker creates a reranker over the given scorer. A nil scorer is
// allowed; both operations then pass candidates through untouched.
func NewReranker(scorer Scorer) *Reranker {
	return &Reranker{scorer: scorer}
}

// Rerank scores every (query, content) pair, overwrites each candidate's
// Score, sorts descending, drops entries below threshold, and truncates
// to topK.
func (r *Reranker) Rerank(ctx context.Context, query string, docs []CandidateResult, topK int, threshold float64) []CandidateResult {
	if len(docs) == 0 {
		return docs
	}

	scores, ok := r.crossScores(ctx, query, docs)
	if !ok {
		return truncate(docs, topK)
	}

	out := make([]CandidateResult, len(docs))
	copy(out, docs)
	for i := range out {
		out[i].Score = scores[i]
	}
	sortCandidatesByScore(out)
	return truncate(filterByThreshold(out, threshold), topK)
}

// RerankHybrid blends first-stage retrieval scores with cross-encoder
// scores: combined = alpha*minmax(first) + (1-alpha)*minmax(cross).
// Min-max normalization per query batch puts both stages on one scale.
// Alpha <= 0 means the default equal blend.
func (r *Reranker) RerankHybrid(ctx context.Context, query string, docs []CandidateResult, alpha float64, topK int, threshold float64) []CandidateResult {
	if len(docs) == 0 {
		return docs
	}
	if alpha <= 0 || alpha > 1 {
		alpha = 0.5
	}

	cross, ok := r.crossScores(ctx, query, docs)
	if !ok {
		return truncate(docs, topK)
	}

	first := make([]float64, len(docs))
	for i, doc := range docs {
		first[i] = doc.Score
	}
	firstNorm := minMaxNormalize(first)
	crossNorm := minMaxNormalize(cross)

	out := make([]CandidateResult, len(docs))
	copy(out, docs)
	for i := range out {
		out[i].Score = alpha*firstNorm[i] + (1-alpha)*crossNorm[i]
	}
	sortCandidatesByScore(out)
	return truncate(filterByThreshold(out, threshold), topK)
}

// crossScores runs the scorer, reporting ok=false on failure so callers
// fall back to the pre-rerank ordering.
func (r *Reranker) crossScores(ctx context.Context, query string, docs []CandidateResult) ([]float64, bool) {
	if r.scorer == nil {
		return nil, false
	}

	passages := make([]string, len(docs))
	for i, doc := range docs {
		passages[i] = doc.Content
	}

	scores, err := r.scorer.ScoreBatch(ctx, query, passages)
	if err != nil || len(scores) != len(docs) {
		slog.Warn("cross-encoder scoring failed, keeping first-stage order",
			"error", err, "candidates", len(docs))
		return nil, false
	}
	return scores, true
}

// minMaxNormalize maps scores onto [0,1]:
// (x - min) / (max - min + epsilon). A batch with no spread (including
// a single candidate) maps to 1.0 everywhere: a sole match normalized
// against itself is a full match, not a zero.
func minMaxNormalize(xs []float64) []float64 {
	if len(xs) == 0 {
		return nil
	}
	lo, hi := xs[0], xs[0]
	for _, x := range xs[1:] {
		if x < lo {
			lo = x
		}
		if x > hi {
			hi = x
		}
	}
	out := make([]float64, len(xs))
	if hi-lo < minMaxEpsilon {
		for i := range out {
			out[i] = 1.0
		}
		return out
	}
	span := hi - lo + minMaxEpsilon
	for i, x := range xs {
		out[i] = (x - lo) / span
	}
	return out
}

// sortCandidatesByScore sorts descending, preserving input order on ties.
func sortCandidatesByScore(docs []CandidateResult) {
	sort.SliceStable(docs, func(i, j int) bool {
		return docs[i].Score > docs[j].Score
	})
}

func filterByThreshold(docs []CandidateResult, threshold float64) []CandidateResult {
	if threshold <= 0 {
		return docs
	}
	out := docs[:0]
	for _, doc := range docs {
		if doc.Score >= threshold {
			out = append(out, doc)
		}
	}
	return out
}

func truncate(docs []CandidateResult, topK int) []CandidateResult {
	if topK > 0 && len(docs) > topK {
		return docs[:topK]
	}
	return docs
}
