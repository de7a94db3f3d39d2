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

// Package server exposes the question-answering pipeline over HTTP:
// search, ask, reindex, health, stats, metrics, and conversation
// endpoints on a chi router.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/godfrey-creat/civic-educator/ingest"
	"github.com/godfrey-creat/civic-educator/rag"
)

// Options configures a Server.
type Options struct {
	// Pipeline answers queries. Required.
	Pipeline *rag.Pipeline

	// Source feeds POST /v1/index. Optional; reindexing returns 503
	// when absent.
	Source ingest.DocumentSource

	// Registry backs GET /metrics. Optional.
	Registry *prometheus.Registry

	// IndexPath persists the index after a successful reindex.
	// Optional.
	IndexPath string

	// Addr is the listen address, e.g. "0.0.0.0:8080".
	Addr string
}

// Server is the HTTP front for the pipeline.
type Server struct {
	pipeline   *rag.Pipeline
	source     ingest.DocumentSource
	registry   *prometheus.Registry
	store      *ConversationStore
	indexPath  string
	addr       string
	started    time.Time
	httpServer *http.Server
}

// New creates a Server. The pipeline is required.
func New(opts Options) (*Server, error) {
	if opts.Pipeline == nil {
		return nil, errors.New("server requires a pipeline")
	}
	return &Server{
		pipeline:  opts.Pipeline,
		source:    opts.Source,
		registry:  opts.Registry,
		store:     NewConversationStore(0),
		indexPath: opts.IndexPath,
		addr:      opts.Addr,
		started:   time.Now(),
	}, nil
}

// Handler builds the router. Exposed for tests.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(loggingMiddleware)
	r.Use(corsMiddleware)

	r.Get("/healthz", s.handleHealth)
	if s.registry != nil {
		r.Get("/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}).ServeHTTP)
	}

	r.Route("/v1", func(r chi.Router) {
		r.Post("/search", s.handleSearch)
		r.Post("/ask", s.handleAsk)
		r.Post("/index", s.handleIndex)
		r.Get("/stats", s.handleStats)
		r.Get("/conversations/{id}", s.handleGetConversation)
		r.Delete("/conversations/{id}", s.handleDeleteConversation)
	})

	return r
}

// Start runs the server until ctx is cancelled or ListenAndServe fails.
func (s *Server) Start(ctx context.Context) error {
	s.httpServer = &http.Server{
		Addr:              s.addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("HTTP server starting", "addr", s.addr)
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server failed: %w", err)
			return
		}
		errCh <- nil
	}()

	select {
	case <-ctx.Done():
		return s.Stop(context.Background())
	case err := <-errCh:
		return err
	}
}

// Stop shuts the server down gracefully.
func (s *Server) Stop(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	slog.Info("HTTP server shutting down")
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shut down http server: %w", err)
	}
	return nil
}
