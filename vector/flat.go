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

package vector

import (
	"bufio"
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"
	"sort"
	"sync"
)

// flatMagic identifies the on-disk format of a FlatStore.
const flatMagic = "CEFV1\n"

// FlatStore is an exact nearest-neighbor index over dense vectors.
//
// Search is brute force: every stored vector is scored against the query.
// This is the right trade for corpora of up to a few hundred thousand
// chunks and gives fully deterministic, reproducible rankings, which the
// persistence contract depends on.
//
// Positions are assigned in insertion order; Query exposes them with FAISS
// style semantics (sentinel -1 padding when fewer than k vectors exist).
type FlatStore struct {
	metric Metric
	dim    int

	ids  []string
	rows [][]float32
	pos  map[string]int

	mu sync.RWMutex
}

// NewFlatStore creates an empty flat store.
//
// dim may be zero; it is then fixed by the first upserted vector.
func NewFlatStore(metric Metric, dim int) *FlatStore {
	if metric == "" {
		metric = MetricInnerProduct
	}
	return &FlatStore{
		metric: metric,
		dim:    dim,
		pos:    make(map[string]int),
	}
}

// Metric returns the store's similarity metric.
func (s *FlatStore) Metric() Metric {
	return s.metric
}

// Dimension returns the vector dimension, or 0 if no vector was stored yet.
func (s *FlatStore) Dimension() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.dim
}

// IDs returns the stored vector ids in insertion order.
func (s *FlatStore) IDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, len(s.ids))
	copy(out, s.ids)
	return out
}

// Upsert adds or replaces a vector. The flat store keeps no metadata; the
// document index owns chunk payloads and joins them by position.
func (s *FlatStore) Upsert(ctx context.Context, id string, vec []float32, metadata map[string]any) error {
	if id == "" {
		return fmt.Errorf("vector id is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.dim == 0 {
		s.dim = len(vec)
	}
	if len(vec) != s.dim {
		return fmt.Errorf("vector dimension mismatch: got %d, store has %d", len(vec), s.dim)
	}

	row := make([]float32, len(vec))
	copy(row, vec)

	if p, ok := s.pos[id]; ok {
		s.rows[p] = row
		return nil
	}
	s.pos[id] = len(s.rows)
	s.ids = append(s.ids, id)
	s.rows = append(s.rows, row)
	return nil
}

// Search returns up to topK nearest neighbors, invalid positions skipped.
func (s *FlatStore) Search(ctx context.Context, vec []float32, topK int) ([]Result, error) {
	positions, scores := s.Query(vec, topK)

	s.mu.RLock()
	defer s.mu.RUnlock()

	results := make([]Result, 0, len(positions))
	for i, p := range positions {
		if p < 0 {
			continue
		}
		results = append(results, Result{
			ID:    s.ids[p],
			Score: float64(scores[i]),
		})
	}
	return results, nil
}

// Query scores every stored vector against q and returns the top k
// positions with their scores. When fewer than k vectors are stored the
// remaining slots carry position -1, matching flat-index conventions, so
// callers must skip negative positions.
func (s *FlatStore) Query(q []float32, k int) ([]int, []float32) {
	if k <= 0 {
		return nil, nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	positions := make([]int, k)
	scores := make([]float32, k)
	for i := range positions {
		positions[i] = -1
	}

	if len(s.rows) == 0 || len(q) != s.dim {
		return positions, scores
	}

	type scored struct {
		pos   int
		score float32
	}
	all := make([]scored, len(s.rows))
	for i, row := range s.rows {
		all[i] = scored{pos: i, score: s.score(q, row)}
	}
	// Stable tie-break on position keeps rankings reproducible across runs
	// and across save/load round trips.
	sort.SliceStable(all, func(i, j int) bool {
		if all[i].score != all[j].score {
			return all[i].score > all[j].score
		}
		return all[i].pos < all[j].pos
	})

	n := k
	if len(all) < n {
		n = len(all)
	}
	for i := 0; i < n; i++ {
		positions[i] = all[i].pos
		scores[i] = all[i].score
	}
	return positions, scores
}

func (s *FlatStore) score(q, row []float32) float32 {
	switch s.metric {
	case MetricL2:
		var sum float32
		for i := range q {
			d := q[i] - row[i]
			sum += d * d
		}
		return -sum
	default: // inner product
		var dot float32
		for i := range q {
			dot += q[i] * row[i]
		}
		return dot
	}
}

// Count reports the number of stored vectors.
func (s *FlatStore) Count(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.rows), nil
}

// Reset removes all stored vectors but keeps metric and dimension.
func (s *FlatStore) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ids = nil
	s.rows = nil
	s.pos = make(map[string]int)
	return nil
}

// Name returns the provider name.
func (s *FlatStore) Name() string {
	return "flat"
}

// Close releases resources.
func (s *FlatStore) Close() error {
	return nil
}

// WriteTo serializes the store: magic, metric, dimension, count, ids, then
// raw little-endian float32 rows. The encoding is byte-deterministic.
func (s *FlatStore) WriteTo(w io.Writer) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	bw := bufio.NewWriter(w)
	var written int64

	n, err := bw.WriteString(flatMagic)
	written += int64(n)
	if err != nil {
		return written, err
	}

	if err := writeString(bw, string(s.metric)); err != nil {
		return written, err
	}
	if err := binary.Write(bw, binary.LittleEndian, uint32(s.dim)); err != nil {
		return written, err
	}
	if err := binary.Write(bw, binary.LittleEndian, uint32(len(s.rows))); err != nil {
		return written, err
	}
	for _, id := range s.ids {
		if err := writeString(bw, id); err != nil {
			return written, err
		}
	}
	for _, row := range s.rows {
		for _, v := range row {
			if err := binary.Write(bw, binary.LittleEndian, math.Float32bits(v)); err != nil {
				return written, err
			}
		}
	}
	return written, bw.Flush()
}

// ReadFlatStore deserializes a store written by WriteTo.
func ReadFlatStore(r io.Reader) (*FlatStore, error) {
	br := bufio.NewReader(r)

	magic := make([]byte, len(flatMagic))
	if _, err := io.ReadFull(br, magic); err != nil {
		return nil, fmt.Errorf("failed to read index header: %w", err)
	}
	if string(magic) != flatMagic {
		return nil, fmt.Errorf("not a flat vector index (bad magic %q)", string(magic))
	}

	metric, err := readString(br)
	if err != nil {
		return nil, fmt.Errorf("failed to read metric: %w", err)
	}
	var dim, count uint32
	if err := binary.Read(br, binary.LittleEndian, &dim); err != nil {
		return nil, fmt.Errorf("failed to read dimension: %w", err)
	}
	if err := binary.Read(br, binary.LittleEndian, &count); err != nil {
		return nil, fmt.Errorf("failed to read count: %w", err)
	}

	s := NewFlatStore(Metric(metric), int(dim))
	s.ids = make([]string, count)
	s.rows = make([][]float32, count)
	for i := range s.ids {
		id, err := readString(br)
		if err != nil {
			return nil, fmt.Errorf("failed to read id %d: %w", i, err)
		}
		s.ids[i] = id
		s.pos[id] = i
	}
	for i := range s.rows {
		row := make([]float32, dim)
		for j := range row {
			var bits uint32
			if err := binary.Read(br, binary.LittleEndian, &bits); err != nil {
				return nil, fmt.Errorf("failed to read vector %d: %w", i, err)
			}
			row[j] = math.Float32frombits(bits)
		}
		s.rows[i] = row
	}
	return s, nil
}

// SaveFile writes the store to path atomically (write-then-rename).
func (s *FlatStore) SaveFile(path string) error {
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", tmp, err)
	}
	if _, err := s.WriteTo(f); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("failed to write index: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, path)
}

// LoadFlatFile reads a store previously written with SaveFile.
func LoadFlatFile(path string) (*FlatStore, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()
	return ReadFlatStore(f)
}

func writeString(w io.Writer, s string) error {
	if err := binary.Write(w, binary.LittleEndian, uint32(len(s))); err != nil {
		return err
	}
	_, err := io.WriteString(w, s)
	return err
}

func readString(r io.Reader) (string, error) {
	var n uint32
	if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
		return "", err
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", err
	}
	return string(buf), nil
}

// Normalize scales v to unit length in place and returns it. Zero vectors
// are returned unchanged.
func Normalize(v []float32) []float32 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return v
	}
	inv := float32(1 / math.Sqrt(sum))
	for i := range v {
		v[i] *= inv
	}
	return v
}

// Ensure FlatStore implements Provider.
var _ Provider = (*FlatStore)(nil)
