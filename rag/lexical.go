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
	"math"
	"regexp"
	"sort"
	"strings"
)

var lexicalTokenPattern = regexp.MustCompile(`\p{L}+(?:['’]\p{L}+)*`)

// LexicalIndex scores queries against the chunk corpus with TF-IDF.
// It is immutable once built; BuildIndex constructs a fresh one per
// rebuild and swaps it in with the vector index.
type LexicalIndex struct {
	vocabulary map[string]int
	idf        []float64
	docs       []map[int]float64 // sparse, L2-normalized TF-IDF per chunk
	stopwords  map[string]struct{}
}

// NewLexicalIndex builds a TF-IDF index over the given chunk texts.
// An empty corpus yields an index that scores everything zero.
func NewLexicalIndex(corpus []string) *LexicalIndex {
	idx := &LexicalIndex{
		vocabulary: make(map[string]int),
		stopwords:  defaultStopwords(),
	}
	if len(corpus) == 0 {
		return idx
	}

	// Document frequencies over the corpus.
	df := make(map[string]int)
	tokenized := make([][]string, len(corpus))
	for i, text := range corpus {
		tokens := idx.tokenize(text)
		tokenized[i] = tokens
		seen := make(map[string]struct{}, len(tokens))
		for _, tok := range tokens {
			if _, ok := seen[tok]; ok {
				continue
			}
			seen[tok] = struct{}{}
			df[tok]++
		}
	}

	// Stable vocabulary ordering.
	terms := make([]string, 0, len(df))
	for term := range df {
		terms = append(terms, term)
	}
	sort.Strings(terms)

	idx.idf = make([]float64, len(terms))
	n := float64(len(corpus))
	for i, term := range terms {
		idx.vocabulary[term] = i
		// Smoothed IDF.
		idx.idf[i] = math.Log((1+n)/(1+float64(df[term]))) + 1.0
	}

	idx.docs = make([]map[int]float64, len(corpus))
	for i, tokens := range tokenized {
		idx.docs[i] = idx.vectorize(tokens)
	}
	return idx
}

// Size returns the number of indexed chunks.
func (l *LexicalIndex) Size() int {
	return len(l.docs)
}

// Score returns the cosine similarity between the query and every chunk
// in corpus order. Out-of-vocabulary queries score zero everywhere.
func (l *LexicalIndex) Score(query string) []float64 {
	scores := make([]float64, len(l.docs))
	if len(l.docs) == 0 {
		return scores
	}
	qvec := l.vectorize(l.tokenize(query))
	if len(qvec) == 0 {
		return scores
	}
	for i, doc := range l.docs {
		var dot float64
		// Iterate the smaller map.
		a, b := qvec, doc
		if len(b) < len(a) {
			a, b = b, a
		}
		for idx, v := range a {
			if w, ok := b[idx]; ok {
				dot += v * w
			}
		}
		scores[i] = dot
	}
	return scores
}

// vectorize builds a sparse L2-normalized TF-IDF vector.
func (l *LexicalIndex) vectorize(tokens []string) map[int]float64 {
	tf := make(map[int]int)
	total := 0
	for _, tok := range tokens {
		if idx, ok := l.vocabulary[tok]; ok {
			tf[idx]++
			total++
		}
	}
	if total == 0 {
		return nil
	}

	vec := make(map[int]float64, len(tf))
	var norm float64
	for idx, count := range tf {
		v := (float64(count) / float64(total)) * l.idf[idx]
		vec[idx] = v
		norm += v * v
	}
	norm = math.Sqrt(norm)
	if norm > 0 {
		for idx := range vec {
			vec[idx] /= norm
		}
	}
	return vec
}

func (l *LexicalIndex) tokenize(text string) []string {
	raw := lexicalTokenPattern.FindAllString(strings.ToLower(text), -1)
	out := raw[:0]
	for _, tok := range raw {
		if _, stop := l.stopwords[tok]; stop {
			continue
		}
		out = append(out, tok)
	}
	return out
}

func defaultStopwords() map[string]struct{} {
	words := []string{
		"a", "an", "the", "and", "or", "but", "if", "then", "else", "for",
		"to", "of", "in", "on", "at", "by", "with", "as", "is", "are",
		"was", "were", "be", "been", "being", "it", "this", "that", "these",
		"those", "from", "up", "down", "over", "under", "again", "further",
		"than", "so", "such", "into", "about", "between", "through",
		"during", "before", "after", "above", "below", "out", "off", "own",
		"same", "too", "very", "can", "will", "just", "should", "now",
	}
	m := make(map[string]struct{}, len(words))
	for _, w := range words {
		m[w] = struct{}{}
	}
	return m
}
