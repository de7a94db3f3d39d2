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
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/godfrey-creat/civic-educator/vector"
)

func newTestIndex(t *testing.T) *DocumentIndex {
	t.Helper()
	idx, err := NewDocumentIndex(newStubEmbedder(), IndexConfig{
		Chunker: ChunkerConfig{ChunkSize: 200, ChunkOverlap: 40},
	})
	require.NoError(t, err)
	return idx
}

func TestDocumentIndexSequentialIDs(t *testing.T) {
	idx := newTestIndex(t)
	assert.Equal(t, 0, idx.AddDocument("First document.", map[string]any{"source": "a"}))
	assert.Equal(t, 1, idx.AddDocument("Second document.", map[string]any{"source": "b"}))
	assert.Equal(t, 2, idx.AddDocument("Third document.", map[string]any{"source": "c"}))
}

func TestDocumentIndexSearchBeforeBuild(t *testing.T) {
	idx := newTestIndex(t)
	idx.AddDocument("Garbage schedule.", map[string]any{"source": "kb1"})

	results, err := idx.Search(context.Background(), "garbage", 5)
	require.NoError(t, err)
	assert.Empty(t, results)
	assert.Equal(t, IndexEmpty, idx.State())
}

func TestDocumentIndexBuildWithNoChunks(t *testing.T) {
	idx := newTestIndex(t)
	require.NoError(t, idx.BuildIndex(context.Background()))
	assert.Equal(t, IndexEmpty, idx.State())
}

func TestDocumentIndexSearch(t *testing.T) {
	idx := newTestIndex(t)
	idx.AddDocument("Garbage is collected every Monday and Thursday in Zone A.",
		map[string]any{"source": "kb1", "title": "Waste schedule", "topic": "waste"})
	idx.AddDocument("Business permits are renewed annually at the county office.",
		map[string]any{"source": "kb2", "title": "Permit guide", "topic": "permits"})

	require.NoError(t, idx.BuildIndex(context.Background()))
	assert.Equal(t, IndexReady, idx.State())

	results, err := idx.Search(context.Background(), "when is garbage collected", 2)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "kb1", results[0].Source)
	assert.Equal(t, "Waste schedule", results[0].Title)
	assert.Equal(t, "waste", results[0].Metadata["topic"])
	assert.Greater(t, results[0].Score, results[1].Score)
}

func TestDocumentIndexSearchFewerThanK(t *testing.T) {
	idx := newTestIndex(t)
	idx.AddDocument("Only one small document.", map[string]any{"source": "kb1"})
	require.NoError(t, idx.BuildIndex(context.Background()))

	// k far above stored vectors: sentinel positions must be skipped.
	results, err := idx.Search(context.Background(), "document", 50)
	require.NoError(t, err)
	assert.Len(t, results, 1)
}

func TestDocumentIndexHybridBoostsLexicalMatch(t *testing.T) {
	idx := newTestIndex(t)
	idx.AddDocument("Garbage is collected every Monday and Thursday in Zone A.",
		map[string]any{"source": "kb1"})
	idx.AddDocument("Water bills are payable via mobile money.",
		map[string]any{"source": "kb2"})
	require.NoError(t, idx.BuildIndex(context.Background()))

	results, err := idx.SearchHybrid(context.Background(), "garbage collected monday", 2)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "kb1", results[0].Source)
	for _, r := range results {
		assert.GreaterOrEqual(t, r.Score, 0.0)
		assert.LessOrEqual(t, r.Score, 1.0)
	}
}

func TestDocumentIndexRebuildAfterAdd(t *testing.T) {
	ctx := context.Background()
	idx := newTestIndex(t)
	idx.AddDocument("Garbage collection schedule.", map[string]any{"source": "kb1"})
	require.NoError(t, idx.BuildIndex(ctx))

	idx.AddDocument("Water billing information.", map[string]any{"source": "kb2"})
	require.NoError(t, idx.BuildIndex(ctx))

	results, err := idx.Search(ctx, "water billing", 2)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "kb2", results[0].Source)
}

func TestDocumentIndexSaveLoadRoundTrip(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	idx := newTestIndex(t)
	idx.AddDocument("Garbage is collected every Monday and Thursday in Zone A.",
		map[string]any{"source": "kb1", "title": "Waste schedule"})
	idx.AddDocument("Business permits are renewed annually at the county office.",
		map[string]any{"source": "kb2", "title": "Permit guide"})
	require.NoError(t, idx.BuildIndex(ctx))
	require.NoError(t, idx.Save(dir))

	before, err := idx.Search(ctx, "garbage collection", 2)
	require.NoError(t, err)

	restored := newTestIndex(t)
	require.NoError(t, restored.Load(dir))
	assert.Equal(t, IndexReady, restored.State())

	after, err := restored.Search(ctx, "garbage collection", 2)
	require.NoError(t, err)

	require.Equal(t, len(before), len(after))
	for i := range before {
		assert.Equal(t, before[i].Source, after[i].Source)
		assert.Equal(t, before[i].Content, after[i].Content)
		assert.Equal(t, before[i].Score, after[i].Score, "scores must round-trip bit-identically")
	}

	// New documents continue the id sequence.
	assert.Equal(t, 2, restored.AddDocument("More content.", map[string]any{"source": "kb3"}))
}

func TestDocumentIndexLoadRejectsMismatchedSidecar(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	idx := newTestIndex(t)
	idx.AddDocument("Garbage collection schedule.", map[string]any{"source": "kb1"})
	require.NoError(t, idx.BuildIndex(ctx))
	require.NoError(t, idx.Save(dir))

	// Corrupt the sidecar: drop the chunk_to_doc map.
	sidecarPath := filepath.Join(dir, "metadata.json")
	data, err := os.ReadFile(sidecarPath)
	require.NoError(t, err)
	var sidecar map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(data, &sidecar))
	sidecar["chunk_to_doc"] = json.RawMessage("[]")
	corrupted, err := json.Marshal(sidecar)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(sidecarPath, corrupted, 0o644))

	restored := newTestIndex(t)
	err = restored.Load(dir)
	require.Error(t, err)
	var perr *PersistError
	assert.ErrorAs(t, err, &perr)
}

func TestDocumentIndexSaveBeforeBuildFails(t *testing.T) {
	idx := newTestIndex(t)
	err := idx.Save(t.TempDir())
	require.Error(t, err)
	var perr *PersistError
	assert.ErrorAs(t, err, &perr)
}

func TestDocumentIndexStats(t *testing.T) {
	idx := newTestIndex(t)
	idx.AddDocument("Garbage collection schedule.", map[string]any{"source": "kb1"})
	require.NoError(t, idx.BuildIndex(context.Background()))

	stats := idx.Stats()
	assert.Equal(t, 1, stats.Documents)
	assert.Equal(t, 1, stats.Chunks)
	assert.Equal(t, 1, stats.Indexed)
	assert.Equal(t, 32, stats.Dimension)
	assert.Equal(t, "ready", stats.State)
}

func TestDocumentIndexUpsertDocument(t *testing.T) {
	idx := newTestIndex(t)
	ctx := context.Background()

	first := idx.UpsertDocument("Garbage is collected on Tuesdays.", map[string]any{"source": "kb1"})
	idx.UpsertDocument("Water bills can be paid online.", map[string]any{"source": "kb2"})
	require.NoError(t, idx.BuildIndex(ctx))

	replaced := idx.UpsertDocument("Garbage is collected on Fridays.", map[string]any{"source": "kb1"})
	assert.Equal(t, first, replaced)
	assert.Equal(t, 2, idx.Stats().Documents)

	require.NoError(t, idx.BuildIndex(ctx))
	results, err := idx.Search(ctx, "garbage collected", 1)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Contains(t, results[0].Content, "Fridays")
}

func TestDocumentIndexUpsertWithoutSourceAppends(t *testing.T) {
	idx := newTestIndex(t)
	a := idx.UpsertDocument("No source here.", map[string]any{})
	b := idx.UpsertDocument("No source here either.", map[string]any{})
	assert.NotEqual(t, a, b)
	assert.Equal(t, 2, idx.Stats().Documents)
}

// countingProvider wraps a flat store to observe rebuilds from the
// index side.
type countingProvider struct {
	*vector.FlatStore
	resets int
}

func (p *countingProvider) Reset(ctx context.Context) error {
	p.resets++
	return p.FlatStore.Reset(ctx)
}

func (p *countingProvider) Name() string { return "counting" }

func TestDocumentIndexExternalProvider(t *testing.T) {
	ctx := context.Background()
	provider := &countingProvider{FlatStore: vector.NewFlatStore(vector.MetricInnerProduct, 0)}

	idx, err := NewDocumentIndex(newStubEmbedder(), IndexConfig{
		Chunker: ChunkerConfig{ChunkSize: 200, ChunkOverlap: 40},
	}, WithVectorProvider(provider))
	require.NoError(t, err)

	idx.AddDocument("Garbage is collected every Monday in Zone A.",
		map[string]any{"source": "kb1", "title": "Waste schedule"})
	idx.AddDocument("Business permits are renewed annually.",
		map[string]any{"source": "kb2", "title": "Permit guide"})
	require.NoError(t, idx.BuildIndex(ctx))
	assert.Equal(t, 1, provider.resets)

	n, err := provider.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	results, err := idx.Search(ctx, "when is garbage collected", 2)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "kb1", results[0].Source)
	assert.Equal(t, "Waste schedule", results[0].Title)

	require.NoError(t, idx.BuildIndex(ctx))
	assert.Equal(t, 2, provider.resets)
}

func TestDocumentIndexExternalProviderPersistence(t *testing.T) {
	ctx := context.Background()
	provider := &countingProvider{FlatStore: vector.NewFlatStore(vector.MetricInnerProduct, 0)}

	idx, err := NewDocumentIndex(newStubEmbedder(), IndexConfig{
		Chunker: ChunkerConfig{ChunkSize: 200, ChunkOverlap: 40},
	}, WithVectorProvider(provider))
	require.NoError(t, err)

	idx.AddDocument("Water bills can be paid online.", map[string]any{"source": "kb1"})
	require.NoError(t, idx.BuildIndex(ctx))

	dir := t.TempDir()
	err = idx.Save(dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "flat-only")

	err = idx.Load(dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "flat-only")
}

// gateEmbedder blocks one EmbedBatch call so a test can interleave
// writes with an in-flight build.
type gateEmbedder struct {
	*stubEmbedder
	armed   bool
	entered chan struct{}
	release chan struct{}
}

func newGateEmbedder() *gateEmbedder {
	return &gateEmbedder{
		stubEmbedder: newStubEmbedder(),
		entered:      make(chan struct{}),
		release:      make(chan struct{}),
	}
}

func (g *gateEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if g.armed {
		g.armed = false
		close(g.entered)
		<-g.release
	}
	return g.stubEmbedder.EmbedBatch(ctx, texts)
}

func TestDocumentIndexAddDuringBuild(t *testing.T) {
	ctx := context.Background()
	emb := newGateEmbedder()
	idx, err := NewDocumentIndex(emb, IndexConfig{
		Chunker: ChunkerConfig{ChunkSize: 200, ChunkOverlap: 40},
	})
	require.NoError(t, err)

	idx.AddDocument("Garbage is collected every Monday in Zone A.",
		map[string]any{"source": "kb1", "title": "Waste schedule"})
	require.NoError(t, idx.BuildIndex(ctx))

	emb.armed = true
	done := make(chan error, 1)
	go func() { done <- idx.BuildIndex(ctx) }()
	<-emb.entered

	// Lands while the rebuild is embedding; must stay queued, not lost.
	idx.AddDocument("Water bills can be paid online at the county portal.",
		map[string]any{"source": "kb2", "title": "Water billing"})

	// The previous build keeps serving during the rebuild.
	results, err := idx.Search(ctx, "water bills", 5)
	require.NoError(t, err)
	for _, r := range results {
		assert.NotEqual(t, "kb2", r.Source)
	}

	close(emb.release)
	require.NoError(t, <-done)

	// The interleaved rebuild saw only kb1; the next build picks up kb2
	// with chunks and document mapping aligned.
	require.NoError(t, idx.BuildIndex(ctx))

	results, err = idx.Search(ctx, "water bills online", 5)
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Equal(t, "kb2", results[0].Source)
	assert.Equal(t, "Water billing", results[0].Title)

	stats := idx.Stats()
	assert.Equal(t, 2, stats.Documents)
	assert.Equal(t, stats.Chunks, stats.Indexed)
}

func TestDocumentIndexUpsertDuringBuild(t *testing.T) {
	ctx := context.Background()
	emb := newGateEmbedder()
	idx, err := NewDocumentIndex(emb, IndexConfig{
		Chunker: ChunkerConfig{ChunkSize: 200, ChunkOverlap: 40},
	})
	require.NoError(t, err)

	idx.AddDocument("Garbage is collected on Tuesdays.", map[string]any{"source": "kb1"})
	require.NoError(t, idx.BuildIndex(ctx))

	emb.armed = true
	done := make(chan error, 1)
	go func() { done <- idx.BuildIndex(ctx) }()
	<-emb.entered

	idx.UpsertDocument("Garbage is collected on Fridays.", map[string]any{"source": "kb1"})

	close(emb.release)
	require.NoError(t, <-done)

	// The replacement only becomes searchable after its own build.
	require.NoError(t, idx.BuildIndex(ctx))
	results, err := idx.Search(ctx, "garbage collected", 1)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Contains(t, results[0].Content, "Fridays")
	assert.Equal(t, 1, idx.Stats().Documents)
}
