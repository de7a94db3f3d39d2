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
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/godfrey-creat/civic-educator/embedder"
	"github.com/godfrey-creat/civic-educator/vector"
)

// IndexState tracks the document index lifecycle.
type IndexState int

const (
	// IndexEmpty means no build has happened yet.
	IndexEmpty IndexState = iota
	// IndexBuilding means a rebuild is in flight. Readers keep serving
	// the previous index until the swap.
	IndexBuilding
	// IndexReady means the index is serving search results.
	IndexReady
)

// String implements fmt.Stringer.
func (s IndexState) String() string {
	switch s {
	case IndexEmpty:
		return "empty"
	case IndexBuilding:
		return "building"
	case IndexReady:
		return "ready"
	default:
		return "unknown"
	}
}

// IndexConfig configures the document index.
type IndexConfig struct {
	// Metric is the vector similarity metric, "ip" or "l2" (default: "ip").
	// Fixed for the life of an index instance and recorded in the
	// persisted vector file header.
	Metric vector.Metric `yaml:"metric" mapstructure:"metric"`

	// Chunker configures document chunking.
	Chunker ChunkerConfig `yaml:"chunker" mapstructure:"chunker"`

	// LexicalWeight blends TF-IDF scores into hybrid search results
	// (default: 0.3). Zero disables the lexical contribution.
	LexicalWeight float64 `yaml:"lexical_weight" mapstructure:"lexical_weight"`
}

// SetDefaults applies default values.
func (c *IndexConfig) SetDefaults() {
	if c.Metric == "" {
		c.Metric = vector.MetricInnerProduct
	}
	if c.LexicalWeight == 0 {
		c.LexicalWeight = 0.3
	}
	c.Chunker.SetDefaults()
}

// Validate checks the configuration.
func (c *IndexConfig) Validate() error {
	if c.Metric != vector.MetricInnerProduct && c.Metric != vector.MetricL2 {
		return fmt.Errorf("unsupported metric: %s (supported: ip, l2)", c.Metric)
	}
	if c.LexicalWeight < 0 || c.LexicalWeight > 1 {
		return fmt.Errorf("lexical_weight must be in [0,1], got %v", c.LexicalWeight)
	}
	return nil
}

// DocumentIndex owns the chunk-to-document mapping and composes the
// vector and lexical indexes behind one search API.
//
// Documents queue up via AddDocument; BuildIndex copies the queue,
// embeds every chunk, and constructs fresh vector and lexical indexes
// aside, then swaps the whole serving state under a short write lock.
// Searches only ever see a complete build, and documents added while a
// build is running stay queued for the next one.
type DocumentIndex struct {
	embedder embedder.Embedder
	chunker  *Chunker
	config   IndexConfig

	// external, when set, replaces the default in-process flat store for
	// dense retrieval. External providers persist their own data, so Save
	// and Load only work with the flat default.
	external vector.Provider

	// buildMu serializes rebuilds; mu guards everything below.
	buildMu sync.Mutex
	mu      sync.RWMutex

	// The ingestion queue. AddDocument and UpsertDocument mutate these;
	// builds never read them outside a copy taken under mu.
	documents  []Document
	chunks     []Chunk
	chunkToDoc []int

	serving *servingIndex
	state   IndexState
	nextID  int
}

// servingIndex is the searchable state produced by one BuildIndex run.
// Its fields are aligned with each other, never with the live queue, and
// the pointer is replaced as one unit.
type servingIndex struct {
	documents  []Document
	chunks     []Chunk
	chunkToDoc []int
	store      vector.Provider
	idToPos    map[string]int
	dimension  int
	lexical    *LexicalIndex
}

// IndexOption configures a DocumentIndex at construction time.
type IndexOption func(*DocumentIndex)

// WithVectorProvider routes dense retrieval through the given provider
// instead of the default in-process flat store.
func WithVectorProvider(p vector.Provider) IndexOption {
	return func(d *DocumentIndex) {
		d.external = p
	}
}

// IndexStats is a point-in-time summary of the index.
type IndexStats struct {
	Documents int           `json:"documents"`
	Chunks    int           `json:"chunks"`
	Indexed   int           `json:"indexed_chunks"`
	Dimension int           `json:"dimension"`
	Metric    vector.Metric `json:"metric"`
	State     string        `json:"state"`
}

// NewDocumentIndex creates an empty document index.
func NewDocumentIndex(emb embedder.Embedder, cfg IndexConfig, opts ...IndexOption) (*DocumentIndex, error) {
	if emb == nil {
		return nil, fmt.Errorf("embedder is required")
	}
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid index config: %w", err)
	}
	d := &DocumentIndex{
		embedder: emb,
		chunker:  NewChunker(cfg.Chunker),
		config:   cfg,
		state:    IndexEmpty,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d, nil
}

// AddDocument chunks content and queues it for the next BuildIndex.
// Returns the assigned sequential document id. Embedding is deferred to
// build time.
func (d *DocumentIndex) AddDocument(content string, metadata map[string]any) int {
	chunks := d.chunker.Chunk(content, metadata)

	d.mu.Lock()
	defer d.mu.Unlock()

	id := d.nextID
	d.nextID++

	title := metadataString(metadata, "title")
	if title == "" {
		title = metadataString(metadata, "source")
	}

	docPos := len(d.documents)
	d.documents = append(d.documents, Document{
		ID:       id,
		Title:    title,
		Content:  content,
		Metadata: metadata,
	})
	for _, ch := range chunks {
		d.chunks = append(d.chunks, ch)
		d.chunkToDoc = append(d.chunkToDoc, docPos)
	}

	slog.Debug("document queued for indexing",
		"doc_id", id, "chunks", len(chunks), "title", title)
	return id
}

// UpsertDocument replaces the existing document with the same "source"
// metadata, or appends a new one when none matches. The live index
// keeps serving the old content until the next BuildIndex swap.
// Returns the document id.
func (d *DocumentIndex) UpsertDocument(content string, metadata map[string]any) int {
	source := metadataString(metadata, "source")
	if source == "" {
		return d.AddDocument(content, metadata)
	}

	fresh := d.chunker.Chunk(content, metadata)

	d.mu.Lock()
	docPos := -1
	for i := range d.documents {
		if metadataString(d.documents[i].Metadata, "source") == source {
			docPos = i
			break
		}
	}
	if docPos < 0 {
		d.mu.Unlock()
		return d.AddDocument(content, metadata)
	}

	title := metadataString(metadata, "title")
	if title == "" {
		title = source
	}
	id := d.documents[docPos].ID
	d.documents[docPos] = Document{
		ID:       id,
		Title:    title,
		Content:  content,
		Metadata: metadata,
	}

	// Drop the old chunks, then queue the fresh ones.
	chunks := make([]Chunk, 0, len(d.chunks))
	mapping := make([]int, 0, len(d.chunkToDoc))
	for i := range d.chunkToDoc {
		if d.chunkToDoc[i] != docPos {
			chunks = append(chunks, d.chunks[i])
			mapping = append(mapping, d.chunkToDoc[i])
		}
	}
	for _, ch := range fresh {
		chunks = append(chunks, ch)
		mapping = append(mapping, docPos)
	}
	d.chunks = chunks
	d.chunkToDoc = mapping
	d.mu.Unlock()

	slog.Debug("document replaced",
		"doc_id", id, "chunks", len(fresh), "source", source)
	return id
}

// BuildIndex embeds every queued chunk and rebuilds both the vector and
// the lexical index. With zero chunks it logs a warning and returns nil;
// callers must check emptiness before relying on search.
func (d *DocumentIndex) BuildIndex(ctx context.Context) error {
	d.buildMu.Lock()
	defer d.buildMu.Unlock()

	// Copy the queue as one unit. Writers keep mutating the live slices
	// while the build runs; the copy pins chunks, mapping, and documents
	// to the same generation.
	d.mu.Lock()
	if len(d.chunks) == 0 {
		d.mu.Unlock()
		slog.Warn("build requested with no chunks, index left empty")
		return nil
	}
	snapshot := make([]Chunk, len(d.chunks))
	copy(snapshot, d.chunks)
	mapping := make([]int, len(d.chunkToDoc))
	copy(mapping, d.chunkToDoc)
	docs := make([]Document, len(d.documents))
	copy(docs, d.documents)
	prev := d.state
	d.state = IndexBuilding
	d.mu.Unlock()

	texts := make([]string, len(snapshot))
	for i, ch := range snapshot {
		texts[i] = ch.Text
	}

	embeddings, err := d.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		d.mu.Lock()
		d.state = prev
		d.mu.Unlock()
		return NewIndexError("embed", "batch embedding failed", err)
	}
	if len(embeddings) != len(snapshot) {
		d.mu.Lock()
		d.state = prev
		d.mu.Unlock()
		return NewIndexError("embed",
			fmt.Sprintf("embedder returned %d vectors for %d chunks", len(embeddings), len(snapshot)), nil)
	}

	var store vector.Provider
	if d.external != nil {
		// External providers are rebuilt in place; the flat default is
		// built aside and swapped in whole.
		if err := d.external.Reset(ctx); err != nil {
			d.mu.Lock()
			d.state = prev
			d.mu.Unlock()
			return NewIndexError("build", "resetting vector store", err)
		}
		store = d.external
	} else {
		store = vector.NewFlatStore(d.config.Metric, len(embeddings[0]))
	}

	idToPos := make(map[string]int, len(snapshot))
	seen := make(map[string]int, len(snapshot))
	for i, emb := range embeddings {
		vec := emb
		if d.config.Metric == vector.MetricInnerProduct {
			vec = vector.Normalize(emb)
		}
		// Identical text from the same source repeats its chunk id;
		// suffix duplicates to keep row positions aligned.
		id := snapshot[i].ChunkID
		if n, dup := seen[id]; dup {
			seen[id] = n + 1
			id = fmt.Sprintf("%s#%d", id, n+1)
		} else {
			seen[id] = 1
		}
		if err := store.Upsert(ctx, id, vec, snapshot[i].Metadata); err != nil {
			d.mu.Lock()
			d.state = prev
			d.mu.Unlock()
			return NewIndexError("build", "vector upsert failed", err)
		}
		idToPos[id] = i
	}

	lexical := NewLexicalIndex(texts)
	for i := range snapshot {
		snapshot[i].Embedding = embeddings[i]
	}

	d.mu.Lock()
	d.serving = &servingIndex{
		documents:  docs,
		chunks:     snapshot,
		chunkToDoc: mapping,
		store:      store,
		idToPos:    idToPos,
		dimension:  len(embeddings[0]),
		lexical:    lexical,
	}
	d.state = IndexReady
	d.mu.Unlock()

	slog.Info("index built", "chunks", len(snapshot),
		"dimension", len(embeddings[0]), "provider", store.Name(), "metric", d.config.Metric)
	return nil
}

// Search embeds the query and returns the k nearest chunks as candidate
// results. A never-built or empty index returns an empty slice, nil error.
func (d *DocumentIndex) Search(ctx context.Context, query string, k int) ([]CandidateResult, error) {
	return d.search(ctx, query, k, false)
}

// SearchHybrid blends dense similarity with lexical TF-IDF scoring.
// Dense scores are min-max normalized over the candidate set, lexical
// cosine scores are already in [0,1], and the blend uses LexicalWeight.
func (d *DocumentIndex) SearchHybrid(ctx context.Context, query string, k int) ([]CandidateResult, error) {
	return d.search(ctx, query, k, true)
}

func (d *DocumentIndex) search(ctx context.Context, query string, k int, hybrid bool) ([]CandidateResult, error) {
	d.mu.RLock()
	serving := d.serving
	metric := d.config.Metric
	lexWeight := d.config.LexicalWeight
	d.mu.RUnlock()

	if serving == nil {
		return []CandidateResult{}, nil
	}
	store := serving.store
	if n, _ := store.Count(ctx); n == 0 {
		return []CandidateResult{}, nil
	}
	if k <= 0 {
		return []CandidateResult{}, nil
	}

	qvec, err := d.embedder.Embed(ctx, query)
	if err != nil {
		return nil, NewSearchError("embedder", "embed", "query embedding failed", query, err)
	}
	if metric == vector.MetricInnerProduct {
		qvec = vector.Normalize(qvec)
	}

	matches, err := store.Search(ctx, qvec, k)
	if err != nil {
		return nil, NewSearchError(store.Name(), "search", "vector search failed", query, err)
	}

	// Stale ids from an in-place provider rebuild resolve to nothing and
	// are skipped.
	positions := make([]int, 0, len(matches))
	scores := make([]float64, 0, len(matches))
	for _, m := range matches {
		p, ok := serving.idToPos[m.ID]
		if !ok || p < 0 || p >= len(serving.chunks) || p >= len(serving.chunkToDoc) {
			continue
		}
		positions = append(positions, p)
		scores = append(scores, m.Score)
	}

	var lexScores []float64
	if hybrid && serving.lexical != nil && lexWeight > 0 {
		lexScores = serving.lexical.Score(query)
	}

	// Dense scores normalized over the returned candidates only, so the
	// blend with [0,1] lexical cosine is on one scale.
	var denseNorm []float64
	if lexScores != nil {
		denseNorm = minMaxNormalize(scores)
	}

	results := make([]CandidateResult, 0, len(positions))
	for i, p := range positions {
		chunk := serving.chunks[p]
		score := scores[i]
		if lexScores != nil && p < len(lexScores) {
			score = (1-lexWeight)*denseNorm[i] + lexWeight*lexScores[p]
		}

		var title string
		if docPos := serving.chunkToDoc[p]; docPos >= 0 && docPos < len(serving.documents) {
			title = serving.documents[docPos].Title
		}
		results = append(results, CandidateResult{
			Content:  chunk.Text,
			Score:    score,
			Metadata: chunk.Metadata,
			Source:   metadataString(chunk.Metadata, "source"),
			Title:    title,
		})
	}

	if lexScores != nil {
		sortCandidatesByScore(results)
	}
	return results, nil
}

// State returns the current lifecycle state.
func (d *DocumentIndex) State() IndexState {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.state
}

// Stats returns a point-in-time summary.
func (d *DocumentIndex) Stats() IndexStats {
	d.mu.RLock()
	defer d.mu.RUnlock()

	stats := IndexStats{
		Documents: len(d.documents),
		Chunks:    len(d.chunks),
		Metric:    d.config.Metric,
		State:     d.state.String(),
	}
	if d.serving != nil {
		n, _ := d.serving.store.Count(context.Background())
		stats.Indexed = n
		stats.Dimension = d.serving.dimension
	}
	return stats
}

const (
	vectorFileName  = "vectors.bin"
	sidecarFileName = "metadata.json"
)

// indexSidecar is the JSON companion to the binary vector file.
type indexSidecar struct {
	Documents  []Document `json:"documents"`
	Chunks     []Chunk    `json:"chunks"`
	ChunkToDoc []int      `json:"chunk_to_doc"`
}

// Save persists the last built index to a directory: the binary vector
// file plus a JSON sidecar with documents, chunks, and the
// chunk-to-document map. Documents queued after the last BuildIndex are
// not part of the serving state and are not saved.
func (d *DocumentIndex) Save(path string) error {
	d.mu.RLock()
	serving := d.serving
	d.mu.RUnlock()

	if serving == nil {
		return NewPersistError(path, "cannot save an index that was never built", nil)
	}
	flat, ok := serving.store.(*vector.FlatStore)
	if !ok {
		return NewPersistError(path, fmt.Sprintf(
			"the %s provider persists its own data, file save is flat-only", serving.store.Name()), nil)
	}

	if err := os.MkdirAll(path, 0o755); err != nil {
		return NewPersistError(path, "creating index directory", err)
	}

	if err := flat.SaveFile(filepath.Join(path, vectorFileName)); err != nil {
		return NewPersistError(path, "writing vector file", err)
	}

	sidecar := indexSidecar{
		Documents:  serving.documents,
		Chunks:     serving.chunks,
		ChunkToDoc: serving.chunkToDoc,
	}
	data, err := json.MarshalIndent(sidecar, "", "  ")
	if err != nil {
		return NewPersistError(path, "encoding sidecar", err)
	}

	target := filepath.Join(path, sidecarFileName)
	tmp := target + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return NewPersistError(path, "writing sidecar", err)
	}
	if err := os.Rename(tmp, target); err != nil {
		return NewPersistError(path, "replacing sidecar", err)
	}

	slog.Info("index saved", "path", path,
		"documents", len(serving.documents), "chunks", len(serving.chunks))
	return nil
}

// Load restores a previously saved index. A sidecar whose chunk map
// length disagrees with the stored vector count is rejected: serving a
// misaligned index would produce wrong citations.
func (d *DocumentIndex) Load(path string) error {
	if d.external != nil {
		return NewPersistError(path, fmt.Sprintf(
			"the %s provider persists its own data, file load is flat-only", d.external.Name()), nil)
	}

	flat, err := vector.LoadFlatFile(filepath.Join(path, vectorFileName))
	if err != nil {
		return NewPersistError(path, "reading vector file", err)
	}

	data, err := os.ReadFile(filepath.Join(path, sidecarFileName))
	if err != nil {
		return NewPersistError(path, "reading sidecar", err)
	}
	var sidecar indexSidecar
	if err := json.Unmarshal(data, &sidecar); err != nil {
		return NewPersistError(path, "decoding sidecar", err)
	}

	count, _ := flat.Count(context.Background())
	if len(sidecar.ChunkToDoc) != count {
		return NewPersistError(path, fmt.Sprintf(
			"chunk_to_doc length %d disagrees with stored vector count %d",
			len(sidecar.ChunkToDoc), count), nil)
	}
	if len(sidecar.Chunks) != count {
		return NewPersistError(path, fmt.Sprintf(
			"chunk count %d disagrees with stored vector count %d",
			len(sidecar.Chunks), count), nil)
	}

	texts := make([]string, len(sidecar.Chunks))
	for i, ch := range sidecar.Chunks {
		texts[i] = ch.Text
	}

	idToPos := make(map[string]int, count)
	for i, id := range flat.IDs() {
		idToPos[id] = i
	}

	nextID := 0
	for _, doc := range sidecar.Documents {
		if doc.ID >= nextID {
			nextID = doc.ID + 1
		}
	}

	// The queue gets its own copies: in-place writes by UpsertDocument
	// must not reach through to the serving slices.
	queueDocs := make([]Document, len(sidecar.Documents))
	copy(queueDocs, sidecar.Documents)
	queueChunks := make([]Chunk, len(sidecar.Chunks))
	copy(queueChunks, sidecar.Chunks)
	queueMapping := make([]int, len(sidecar.ChunkToDoc))
	copy(queueMapping, sidecar.ChunkToDoc)

	d.mu.Lock()
	d.documents = queueDocs
	d.chunks = queueChunks
	d.chunkToDoc = queueMapping
	d.serving = &servingIndex{
		documents:  sidecar.Documents,
		chunks:     sidecar.Chunks,
		chunkToDoc: sidecar.ChunkToDoc,
		store:      flat,
		idToPos:    idToPos,
		dimension:  flat.Dimension(),
		lexical:    NewLexicalIndex(texts),
	}
	d.config.Metric = flat.Metric()
	d.nextID = nextID
	if count > 0 {
		d.state = IndexReady
	} else {
		d.state = IndexEmpty
	}
	d.mu.Unlock()

	slog.Info("index loaded", "path", path,
		"documents", len(sidecar.Documents), "chunks", len(sidecar.Chunks))
	return nil
}
