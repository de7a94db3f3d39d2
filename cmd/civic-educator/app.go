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

package main

import (
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/godfrey-creat/civic-educator/config"
	"github.com/godfrey-creat/civic-educator/embedder"
	"github.com/godfrey-creat/civic-educator/llms"
	"github.com/godfrey-creat/civic-educator/rag"
	"github.com/godfrey-creat/civic-educator/vector"
	"github.com/godfrey-creat/civic-educator/websearch"
)

// app wires the configured backends into a pipeline.
type app struct {
	cfg      *config.Config
	emb      embedder.Embedder
	store    vector.Provider
	pipeline *rag.Pipeline
	registry *prometheus.Registry
}

func buildApp(cli *CLI) (*app, error) {
	cfg, err := loadConfig(cli)
	if err != nil {
		return nil, err
	}

	emb, err := embedder.New(&cfg.Embedder)
	if err != nil {
		return nil, fmt.Errorf("failed to create embedder: %w", err)
	}

	// The flat default stays inside the index so Save and Load keep
	// working; chromem and qdrant replace it for dense retrieval.
	var indexOpts []rag.IndexOption
	var store vector.Provider
	if cfg.Vector.Type != "" && cfg.Vector.Type != "flat" {
		store, err = vector.NewProvider(cfg.Vector)
		if err != nil {
			emb.Close()
			return nil, fmt.Errorf("failed to create vector store: %w", err)
		}
		indexOpts = append(indexOpts, rag.WithVectorProvider(store))
	}

	index, err := rag.NewDocumentIndex(emb, cfg.Index, indexOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create index: %w", err)
	}

	generator, err := llms.New(&cfg.Generator)
	if err != nil {
		return nil, fmt.Errorf("failed to create generator: %w", err)
	}

	// A nil *HTTPScorer must stay a nil Scorer interface, so the
	// reranker falls back to first-stage order.
	var scorer rag.Scorer
	if hs := rag.NewHTTPScorer(cfg.Reranker); hs != nil {
		scorer = hs
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	pipeline, err := rag.NewPipeline(
		index,
		rag.NewReranker(scorer),
		generator,
		websearch.NewSerpAPIClient(cfg.WebSearch),
		rag.NewMetrics(registry),
		cfg.Pipeline,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create pipeline: %w", err)
	}

	slog.Info("Pipeline ready",
		"embedder", cfg.Embedder.Provider,
		"generator", cfg.Generator.Provider,
		"vector_store", cfg.Vector.Type,
		"web_search", cfg.WebSearch.APIKey != "")

	return &app{
		cfg:      cfg,
		emb:      emb,
		store:    store,
		pipeline: pipeline,
		registry: registry,
	}, nil
}

// loadIndex restores the persisted index from disk. External vector
// stores persist themselves, so there is nothing to restore.
func (a *app) loadIndex() error {
	if a.store != nil {
		return nil
	}
	return a.pipeline.Index().Load(a.cfg.Storage.IndexPath)
}

// indexPath returns the file persistence path, or "" when an external
// vector store holds the data.
func (a *app) indexPath() string {
	if a.store != nil {
		return ""
	}
	return a.cfg.Storage.IndexPath
}

// saveIndex persists the index to disk when the flat store is in use.
func (a *app) saveIndex() error {
	if a.store != nil {
		return nil
	}
	return a.pipeline.Index().Save(a.cfg.Storage.IndexPath)
}

func (a *app) Close() {
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			slog.Warn("Failed to close vector store", "error", err)
		}
	}
	if a.emb != nil {
		if err := a.emb.Close(); err != nil {
			slog.Warn("Failed to close embedder", "error", err)
		}
	}
}

func queryOptions(topK int) rag.QueryOptions {
	return rag.QueryOptions{TopK: topK}
}
