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
	"context"
	"fmt"
	"log/slog"
	"os"
	"runtime"
	"sync"

	"github.com/philippgille/chromem-go"
)

// ChromemProvider implements Provider on chromem-go for embedded storage.
//
// Pure Go, no external services; cosine similarity with optional gzip file
// persistence. Vectors are pre-computed by the embedder, so the collection's
// embedding function is an identity stub that must never be called.
//
// Note: chromem does not honor the flat store's byte-identical persistence
// contract; deployments that need Save/Load round-trip guarantees use the
// flat provider.
type ChromemProvider struct {
	db          *chromem.DB
	collection  *chromem.Collection
	persistPath string
	compress    bool
	mu          sync.Mutex
}

// ChromemConfig configures the chromem provider.
type ChromemConfig struct {
	// Collection name (default: "civic_documents").
	Collection string

	// PersistPath enables gob file persistence when non-empty.
	PersistPath string

	// Compress enables gzip compression for persistence.
	Compress bool
}

// NewChromemProvider creates an embedded chromem-backed provider.
func NewChromemProvider(cfg ChromemConfig) (*ChromemProvider, error) {
	collection := cfg.Collection
	if collection == "" {
		collection = "civic_documents"
	}

	var db *chromem.DB
	if cfg.PersistPath != "" {
		if err := os.MkdirAll(cfg.PersistPath, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create persist directory: %w", err)
		}
		dbPath := chromemFile(cfg.PersistPath, cfg.Compress)
		if _, err := os.Stat(dbPath); err == nil {
			loaded, err := chromem.NewPersistentDB(dbPath, cfg.Compress)
			if err != nil {
				slog.Warn("Failed to load vector database, creating new", "path", dbPath, "error", err)
				db = chromem.NewDB()
			} else {
				slog.Info("Loaded vector database", "path", dbPath)
				db = loaded
			}
		} else {
			db = chromem.NewDB()
		}
	} else {
		db = chromem.NewDB()
	}

	identity := func(ctx context.Context, text string) ([]float32, error) {
		return nil, fmt.Errorf("embedding function called but vectors are pre-computed")
	}
	col, err := db.GetOrCreateCollection(collection, nil, identity)
	if err != nil {
		return nil, fmt.Errorf("failed to create collection %q: %w", collection, err)
	}

	return &ChromemProvider{
		db:          db,
		collection:  col,
		persistPath: cfg.PersistPath,
		compress:    cfg.Compress,
	}, nil
}

// Upsert adds or replaces a vector with its payload.
func (p *ChromemProvider) Upsert(ctx context.Context, id string, vec []float32, metadata map[string]any) error {
	strMeta := make(map[string]string, len(metadata))
	content := ""
	for k, v := range metadata {
		strMeta[k] = fmt.Sprint(v)
	}
	if c, ok := metadata["content"].(string); ok {
		content = c
	}

	doc := chromem.Document{
		ID:        id,
		Content:   content,
		Metadata:  strMeta,
		Embedding: vec,
	}
	if err := p.collection.AddDocuments(ctx, []chromem.Document{doc}, runtime.NumCPU()); err != nil {
		return fmt.Errorf("failed to upsert document: %w", err)
	}
	if err := p.persist(); err != nil {
		slog.Warn("Failed to persist after upsert", "error", err)
	}
	return nil
}

// Search returns up to topK nearest neighbors by cosine similarity.
func (p *ChromemProvider) Search(ctx context.Context, vec []float32, topK int) ([]Result, error) {
	count := p.collection.Count()
	if count == 0 {
		return nil, nil
	}
	if topK > count {
		topK = count
	}

	matches, err := p.collection.QueryEmbedding(ctx, vec, topK, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("search failed: %w", err)
	}

	out := make([]Result, 0, len(matches))
	for _, m := range matches {
		metadata := make(map[string]any, len(m.Metadata))
		for k, v := range m.Metadata {
			metadata[k] = v
		}
		out = append(out, Result{
			ID:       m.ID,
			Score:    float64(m.Similarity),
			Metadata: metadata,
		})
	}
	return out, nil
}

// Count reports the number of stored vectors.
func (p *ChromemProvider) Count(ctx context.Context) (int, error) {
	return p.collection.Count(), nil
}

// Reset removes all stored vectors by recreating the collection.
func (p *ChromemProvider) Reset(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	name := p.collection.Name
	if err := p.db.DeleteCollection(name); err != nil {
		return fmt.Errorf("failed to delete collection: %w", err)
	}
	identity := func(ctx context.Context, text string) ([]float32, error) {
		return nil, fmt.Errorf("embedding function called but vectors are pre-computed")
	}
	col, err := p.db.GetOrCreateCollection(name, nil, identity)
	if err != nil {
		return fmt.Errorf("failed to recreate collection: %w", err)
	}
	p.collection = col
	return nil
}

// Name returns the provider name.
func (p *ChromemProvider) Name() string {
	return "chromem"
}

// Close persists the database if persistence is enabled.
func (p *ChromemProvider) Close() error {
	return p.persist()
}

func (p *ChromemProvider) persist() error {
	if p.persistPath == "" {
		return nil
	}
	//nolint:staticcheck // Export is deprecated upstream but remains the stable API
	if err := p.db.Export(chromemFile(p.persistPath, p.compress), p.compress, ""); err != nil {
		return fmt.Errorf("failed to persist database: %w", err)
	}
	return nil
}

func chromemFile(dir string, compress bool) string {
	path := dir + "/vectors.gob"
	if compress {
		path += ".gz"
	}
	return path
}

// Ensure ChromemProvider implements Provider.
var _ Provider = (*ChromemProvider)(nil)
