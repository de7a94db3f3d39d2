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

package server

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	civiceducator "github.com/godfrey-creat/civic-educator"
	"github.com/godfrey-creat/civic-educator/rag"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("Failed to write response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

type searchRequest struct {
	Query          string  `json:"query"`
	TopK           int     `json:"top_k"`
	ScoreThreshold float64 `json:"score_threshold"`
}

type searchResponse struct {
	Query   string                `json:"query"`
	Results []rag.CandidateResult `json:"results"`
	Count   int                   `json:"count"`
}

// handleSearch runs retrieval only, without answer generation.
func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	var req searchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		writeError(w, http.StatusBadRequest, "query is required")
		return
	}
	if req.TopK <= 0 {
		req.TopK = 5
	}

	results, err := s.pipeline.Index().SearchHybrid(r.Context(), req.Query, req.TopK)
	if err != nil {
		slog.Warn("Search failed", "error", err)
		writeError(w, http.StatusInternalServerError, "search failed")
		return
	}

	if req.ScoreThreshold > 0 {
		filtered := results[:0]
		for _, res := range results {
			if res.Score >= req.ScoreThreshold {
				filtered = append(filtered, res)
			}
		}
		results = filtered
	}
	if results == nil {
		results = []rag.CandidateResult{}
	}

	writeJSON(w, http.StatusOK, searchResponse{
		Query:   req.Query,
		Results: results,
		Count:   len(results),
	})
}

type askRequest struct {
	Question       string  `json:"question"`
	TopK           int     `json:"top_k"`
	MaxLength      int     `json:"max_length"`
	Temperature    float64 `json:"temperature"`
	ConversationID string  `json:"conversation_id"`
}

type askResponse struct {
	*rag.RAGResponse
	ConversationID string `json:"conversation_id"`
}

// handleAsk answers a question through the full pipeline.
func (s *Server) handleAsk(w http.ResponseWriter, r *http.Request) {
	var req askRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if strings.TrimSpace(req.Question) == "" {
		writeError(w, http.StatusBadRequest, "question is required")
		return
	}

	conv := s.store.Resolve(req.ConversationID)
	resp := s.pipeline.Query(r.Context(), req.Question, rag.QueryOptions{
		TopK:        req.TopK,
		MaxLength:   req.MaxLength,
		Temperature: req.Temperature,
	})

	s.store.Record(conv.ID, Turn{
		Question:   req.Question,
		Answer:     resp.Answer,
		Confidence: resp.Confidence,
		Timestamp:  time.Now(),
	}, resp.Context)

	writeJSON(w, http.StatusOK, askResponse{
		RAGResponse:    resp,
		ConversationID: conv.ID,
	})
}

type indexResponse struct {
	Documents int    `json:"documents"`
	Chunks    int    `json:"chunks"`
	State     string `json:"state"`
	Persisted bool   `json:"persisted"`
}

// handleIndex re-ingests the document source and rebuilds the index.
// The old index keeps serving until the rebuilt one is swapped in.
func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if s.source == nil {
		writeError(w, http.StatusServiceUnavailable, "no document source configured")
		return
	}

	items, err := s.source.Documents(r.Context())
	if err != nil {
		slog.Warn("Ingestion failed", "error", err)
		writeError(w, http.StatusInternalServerError, "ingestion failed")
		return
	}

	index := s.pipeline.Index()
	for _, item := range items {
		index.UpsertDocument(item.Content, item.Metadata)
	}
	if err := index.BuildIndex(r.Context()); err != nil {
		slog.Warn("Index build failed", "error", err)
		writeError(w, http.StatusInternalServerError, "index build failed")
		return
	}

	persisted := false
	if s.indexPath != "" {
		if err := index.Save(s.indexPath); err != nil {
			slog.Warn("Failed to persist index", "path", s.indexPath, "error", err)
		} else {
			persisted = true
		}
	}

	stats := index.Stats()
	writeJSON(w, http.StatusOK, indexResponse{
		Documents: stats.Documents,
		Chunks:    stats.Chunks,
		State:     stats.State,
		Persisted: persisted,
	})
}

// handleHealth reports per-component health. Degraded components still
// return 200; only unhealthy ones flip the status code.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	checks := s.pipeline.HealthCheck(r.Context())

	status := http.StatusOK
	overall := rag.HealthStatusHealthy
	for _, c := range checks {
		switch c.Status {
		case rag.HealthStatusUnhealthy:
			status = http.StatusServiceUnavailable
			overall = rag.HealthStatusUnhealthy
		case rag.HealthStatusDegraded:
			if overall == rag.HealthStatusHealthy {
				overall = rag.HealthStatusDegraded
			}
		}
	}

	writeJSON(w, status, map[string]any{
		"status": overall,
		"checks": checks,
	})
}

// handleStats reports index statistics and server uptime.
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"index":          s.pipeline.Index().Stats(),
		"conversations":  s.store.Len(),
		"uptime_seconds": int(time.Since(s.started).Seconds()),
		"version":        civiceducator.GetVersion(),
	})
}

func (s *Server) handleGetConversation(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	conv, ok := s.store.Get(id)
	if !ok {
		writeError(w, http.StatusNotFound, "conversation not found")
		return
	}
	writeJSON(w, http.StatusOK, conv)
}

func (s *Server) handleDeleteConversation(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if !s.store.Delete(id) {
		writeError(w, http.StatusNotFound, "conversation not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
