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
	"fmt"
	"hash/fnv"
	"math"
	"strings"

	"github.com/godfrey-creat/civic-educator/websearch"
)

// stubEmbedder produces deterministic bag-of-words vectors: texts that
// share words get high cosine similarity. Good enough to exercise the
// index without a model.
type stubEmbedder struct {
	dim  int
	fail bool
}

func newStubEmbedder() *stubEmbedder {
	return &stubEmbedder{dim: 32}
}

func (s *stubEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if s.fail {
		return nil, fmt.Errorf("stub embedder failure")
	}
	vec := make([]float32, s.dim)
	for _, tok := range strings.Fields(strings.ToLower(text)) {
		tok = strings.Trim(tok, ".,!?")
		h := fnv.New32a()
		h.Write([]byte(tok))
		vec[int(h.Sum32())%s.dim]++
	}
	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if norm > 0 {
		n := float32(math.Sqrt(norm))
		for i := range vec {
			vec[i] /= n
		}
	}
	return vec, nil
}

func (s *stubEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		vec, err := s.Embed(ctx, t)
		if err != nil {
			return nil, err
		}
		out[i] = vec
	}
	return out, nil
}

func (s *stubEmbedder) Dimension() int { return s.dim }
func (s *stubEmbedder) Model() string  { return "stub" }
func (s *stubEmbedder) Close() error   { return nil }

// stubScorer returns canned cross-encoder scores, or fails on demand.
type stubScorer struct {
	scores map[string]float64
	err    error
}

func (s *stubScorer) Score(ctx context.Context, query, passage string) (float64, error) {
	if s.err != nil {
		return 0, s.err
	}
	return s.scores[passage], nil
}

func (s *stubScorer) ScoreBatch(ctx context.Context, query string, passages []string) ([]float64, error) {
	if s.err != nil {
		return nil, s.err
	}
	out := make([]float64, len(passages))
	for i, p := range passages {
		out[i] = s.scores[p]
	}
	return out, nil
}

// stubGenerator is a canned generation backend.
type stubGenerator struct {
	answer    string
	err       error
	available bool
	prompts   []string
}

func (g *stubGenerator) Available() bool { return g.available }

func (g *stubGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	g.prompts = append(g.prompts, prompt)
	if g.err != nil {
		return "", g.err
	}
	return g.answer, nil
}

func (g *stubGenerator) Name() string { return "stub-model" }

// stubWebClient is a canned web-search backend.
type stubWebClient struct {
	result    *websearch.Result
	err       error
	available bool
	queries   []string
}

func (w *stubWebClient) Available() bool { return w.available }

func (w *stubWebClient) Search(ctx context.Context, query string) (*websearch.Result, error) {
	w.queries = append(w.queries, query)
	if w.err != nil {
		return nil, w.err
	}
	return w.result, nil
}
