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
	"log/slog"
	"strings"
	"time"

	"github.com/godfrey-creat/civic-educator/llms"
	"github.com/godfrey-creat/civic-educator/websearch"
)

// PipelineConfig configures the answering pipeline.
type PipelineConfig struct {
	// TopK is how many candidates survive reranking (default: 5).
	TopK int `yaml:"top_k" mapstructure:"top_k"`

	// ScoreThreshold drops reranked candidates below it (default: 0).
	ScoreThreshold float64 `yaml:"score_threshold" mapstructure:"score_threshold"`

	// ConfidenceThreshold gates the live web-search fallback and, at
	// half its value, the generic clarification prompt (default: 0.6).
	ConfidenceThreshold float64 `yaml:"confidence_threshold" mapstructure:"confidence_threshold"`

	// Alpha weights first-stage scores in the hybrid blend (default: 0.5).
	Alpha float64 `yaml:"alpha" mapstructure:"alpha"`

	// ContextTokenBudget caps the grounded prompt's context portion
	// (default: 1800 tokens).
	ContextTokenBudget int `yaml:"context_token_budget" mapstructure:"context_token_budget"`

	// GeneratorTimeout bounds generation calls in seconds (default: 30).
	GeneratorTimeout int `yaml:"generator_timeout" mapstructure:"generator_timeout"`

	// WebSearchTimeout bounds live search calls in seconds (default: 20).
	WebSearchTimeout int `yaml:"web_search_timeout" mapstructure:"web_search_timeout"`
}

// SetDefaults applies default values.
func (c *PipelineConfig) SetDefaults() {
	if c.TopK <= 0 {
		c.TopK = 5
	}
	if c.ConfidenceThreshold <= 0 {
		c.ConfidenceThreshold = 0.6
	}
	if c.Alpha <= 0 || c.Alpha > 1 {
		c.Alpha = 0.5
	}
	if c.ContextTokenBudget <= 0 {
		c.ContextTokenBudget = 1800
	}
	if c.GeneratorTimeout <= 0 {
		c.GeneratorTimeout = 30
	}
	if c.WebSearchTimeout <= 0 {
		c.WebSearchTimeout = 20
	}
}

// Validate checks the configuration.
func (c *PipelineConfig) Validate() error {
	if c.ConfidenceThreshold < 0 || c.ConfidenceThreshold > 1 {
		return fmt.Errorf("confidence_threshold must be in [0,1], got %v", c.ConfidenceThreshold)
	}
	if c.ScoreThreshold < 0 {
		return fmt.Errorf("score_threshold must be non-negative, got %v", c.ScoreThreshold)
	}
	return nil
}

// QueryOptions are per-request overrides.
type QueryOptions struct {
	// TopK overrides the configured candidate count when positive.
	TopK int

	// MaxLength caps the generated answer in characters when positive.
	MaxLength int

	// Temperature is passed through to generation backends that honor it.
	Temperature float64
}

const (
	noResultsAnswer = "I'm sorry, I couldn't find any relevant information about that " +
		"in the knowledge base. Try rephrasing your question, or mention the specific " +
		"service, document, or county you need help with."

	apologyAnswer = "I'm sorry, something went wrong while answering your question. " +
		"Please try again in a moment."

	greetingAnswer = "Hello! I can help you with questions about government services: " +
		"waste collection, permits and licenses, water bills, and more. What would you " +
		"like to know?"
)

// Pipeline coordinates retrieval, reranking, confidence gating,
// generation, the live web-search fallback, and citation formatting.
//
// It is explicitly constructed and dependency-injected; the serving
// layer's composition root owns the single shared instance. The only
// cross-request shared state is the document index, which handles its
// own rebuild atomicity.
type Pipeline struct {
	index     *DocumentIndex
	reranker  *Reranker
	generator llms.Generator
	webSearch websearch.Client
	metrics   *Metrics
	config    PipelineConfig
}

// NewPipeline wires a pipeline. Index is required; reranker, generator,
// web search, and metrics may each be nil, degrading to the documented
// fallback tiers.
func NewPipeline(index *DocumentIndex, reranker *Reranker, generator llms.Generator, webSearch websearch.Client, metrics *Metrics, cfg PipelineConfig) (*Pipeline, error) {
	if index == nil {
		return nil, fmt.Errorf("document index is required")
	}
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid pipeline config: %w", err)
	}
	if reranker == nil {
		reranker = NewReranker(nil)
	}
	return &Pipeline{
		index:     index,
		reranker:  reranker,
		generator: generator,
		webSearch: webSearch,
		metrics:   metrics,
		config:    cfg,
	}, nil
}

// Index exposes the underlying document index for administrative
// operations (reindex, stats).
func (p *Pipeline) Index() *DocumentIndex {
	return p.index
}

// Query answers one question end to end. It never returns an error:
// every failure inside retrieval, generation, or the fallback chain
// degrades to a well-formed response, worst case the zero-confidence
// apology.
func (p *Pipeline) Query(ctx context.Context, question string, opts QueryOptions) (resp *RAGResponse) {
	started := time.Now()
	tier := TierFallback

	defer func() {
		if rec := recover(); rec != nil {
			slog.Error("pipeline panic recovered", "panic", rec, "question", Snippet(question, 80))
			resp = &RAGResponse{
				Answer:     apologyAnswer,
				Citations:  []Citation{},
				Confidence: 0,
				Sources:    []string{},
			}
			tier = TierFallback
		}
		if resp != nil {
			p.metrics.ObserveQuery(tier, resp.Confidence, time.Since(started), resp.NeedsClarification)
		}
	}()

	question = strings.TrimSpace(question)
	if question == "" {
		resp = &RAGResponse{
			Answer:                "Please ask a question about a government service.",
			Citations:             []Citation{},
			Confidence:            0,
			NeedsClarification:    true,
			ClarificationQuestion: "What service or document would you like to know about?",
			Sources:               []string{},
		}
		return resp
	}

	if isGreeting(question) {
		tier = TierGreeting
		resp = &RAGResponse{
			Answer:     greetingAnswer,
			Citations:  []Citation{},
			Confidence: 1.0,
			Sources:    []string{},
		}
		return resp
	}

	topK := p.config.TopK
	if opts.TopK > 0 {
		topK = opts.TopK
	}

	// Over-fetch to give the reranker material.
	docs, err := p.index.SearchHybrid(ctx, question, topK*2)
	if err != nil {
		slog.Warn("retrieval failed, continuing with fallback chain", "error", err)
		docs = nil
	}
	docs = p.reranker.RerankHybrid(ctx, question, docs, p.config.Alpha, topK, p.config.ScoreThreshold)

	resp, tier = p.answerFromContext(ctx, question, docs, opts)
	resp.Context = map[string]any{
		"last_query":      question,
		"last_sources":    resp.Sources,
		"last_confidence": resp.Confidence,
	}
	return resp
}

// AnswerFromContext answers from precomputed retrieval results, skipping
// the pipeline's own retrieve + rerank stage.
func (p *Pipeline) AnswerFromContext(ctx context.Context, query string, docs []CandidateResult) *RAGResponse {
	resp, _ := p.answerFromContext(ctx, strings.TrimSpace(query), docs, QueryOptions{})
	return resp
}

func (p *Pipeline) answerFromContext(ctx context.Context, query string, docs []CandidateResult, opts QueryOptions) (*RAGResponse, string) {
	confidence := ScoreConfidence(docs)

	// The clarification gate only applies when retrieval produced
	// something to be ambiguous about; empty retrieval goes through the
	// fallback chain instead.
	if needs, clarification := Clarify(docs, confidence, p.config.ConfidenceThreshold); needs && len(docs) > 0 {
		return &RAGResponse{
			Answer:                clarification,
			Citations:             FormatCitations(docs),
			Confidence:            confidence,
			NeedsClarification:    true,
			ClarificationQuestion: clarification,
			Sources:               DistinctSources(docs),
			SuggestedActions:      suggestedActions(query),
		}, TierFallback
	}

	if len(docs) > 0 && confidence >= p.config.ConfidenceThreshold {
		return p.groundedAnswer(ctx, query, docs, confidence, opts)
	}

	// Low confidence or empty retrieval: try the live fallback chain.
	if p.generatorAvailable() && p.webSearchAvailable() {
		if resp := p.webFallback(ctx, query); resp != nil {
			return resp, TierWeb
		}
		if resp := p.generativeFallback(ctx, query); resp != nil {
			return resp, TierGenerative
		}
	}

	// No live backends: the extractive result from retrieval stands,
	// whatever its confidence.
	if len(docs) > 0 {
		resp, tier := p.groundedAnswer(ctx, query, docs, confidence, opts)
		return resp, tier
	}

	return &RAGResponse{
		Answer:           noResultsAnswer,
		Citations:        []Citation{},
		Confidence:       0,
		Sources:          []string{},
		SuggestedActions: suggestedActions(query),
	}, TierFallback
}

// groundedAnswer synthesizes from retrieved chunks: constrained
// generation over the top 3 when a generator is live, else the
// deterministic extractive summary.
func (p *Pipeline) groundedAnswer(ctx context.Context, query string, docs []CandidateResult, confidence float64, opts QueryOptions) (*RAGResponse, string) {
	citations := FormatCitations(docs)
	sources := DistinctSources(docs)
	tier := TierExtractive

	answer := Snippet(docs[0].Content, 240)

	if p.generatorAvailable() {
		contextText := groundedContext(docs, 3)
		contextText = llms.TrimToTokenBudget(contextText, p.config.ContextTokenBudget)
		prompt := fmt.Sprintf(
			"You are a civic information assistant. Answer the question using ONLY "+
				"the context below. If the context does not contain the answer, say you "+
				"don't know. Be concise and factual.\n\nContext:\n%s\n\nQuestion: %s\n\nAnswer:",
			contextText, sanitizeQuery(query))

		genCtx, cancel := context.WithTimeout(ctx, time.Duration(p.config.GeneratorTimeout)*time.Second)
		generated, err := p.generator.Generate(genCtx, prompt)
		cancel()
		if err != nil || strings.TrimSpace(generated) == "" {
			slog.Warn("generation failed, using extractive summary", "error", err)
		} else {
			answer = strings.TrimSpace(generated)
			tier = TierGrounded
		}
	}

	if opts.MaxLength > 0 && len(answer) > opts.MaxLength {
		answer = strings.TrimSpace(answer[:opts.MaxLength]) + "..."
	}

	return &RAGResponse{
		Answer:           answer,
		Citations:        citations,
		Confidence:       confidence,
		Sources:          sources,
		SuggestedActions: suggestedActions(query),
	}, tier
}

// webFallback answers from a live search result and persists it to the
// knowledge base so the next identical query stays local. Returns nil
// when no usable result (one with a link) came back.
func (p *Pipeline) webFallback(ctx context.Context, query string) *RAGResponse {
	searchCtx, cancel := context.WithTimeout(ctx, time.Duration(p.config.WebSearchTimeout)*time.Second)
	result, err := p.webSearch.Search(searchCtx, query)
	cancel()
	if err != nil {
		slog.Warn("web search failed", "error", err)
		return nil
	}
	if result == nil || result.Link == "" {
		return nil
	}

	prompt := fmt.Sprintf(
		"Summarize the following search result in 1-3 sentences to answer the "+
			"question. Use only the information given.\n\nTitle: %s\nSnippet: %s\n\n"+
			"Question: %s\n\nAnswer:",
		result.Title, result.Snippet, sanitizeQuery(query))

	genCtx, cancel := context.WithTimeout(ctx, time.Duration(p.config.GeneratorTimeout)*time.Second)
	answer, err := p.generator.Generate(genCtx, prompt)
	cancel()
	if err != nil || strings.TrimSpace(answer) == "" {
		slog.Warn("web summary generation failed", "error", err)
		return nil
	}
	answer = strings.TrimSpace(answer)

	p.persistWebResult(ctx, query, result, answer)

	return &RAGResponse{
		Answer: answer,
		Citations: []Citation{{
			Title:      result.Title,
			Snippet:    Snippet(result.Snippet, maxSnippetLength),
			SourceLink: result.Link,
		}},
		Confidence:       0.5,
		Sources:          []string{"web"},
		SuggestedActions: suggestedActions(query),
	}
}

// persistWebResult adds the summarized web answer as a knowledge-base
// entry and rebuilds the index. Persistence failures only log: the user
// already has an answer.
func (p *Pipeline) persistWebResult(ctx context.Context, query string, result *websearch.Result, answer string) {
	content := answer
	if result.Snippet != "" {
		content = answer + "\n\n" + result.Snippet
	}
	p.index.AddDocument(content, map[string]any{
		"source":   "web",
		"title":    result.Title,
		"link":     result.Link,
		"query":    query,
		"ingested": time.Now().UTC().Format(time.RFC3339),
	})
	if err := p.index.BuildIndex(ctx); err != nil {
		slog.Warn("failed to persist web result to index", "error", err)
		return
	}
	p.metrics.ObserveRebuild()
	slog.Info("web result persisted to knowledge base", "link", result.Link)
}

// generativeFallback answers from the model alone, tagged with the
// generator's identity. Returns nil on failure.
func (p *Pipeline) generativeFallback(ctx context.Context, query string) *RAGResponse {
	prompt := fmt.Sprintf(
		"Answer this question about government services as helpfully as you can. "+
			"If you are not sure, say so.\n\nQuestion: %s\n\nAnswer:", sanitizeQuery(query))

	genCtx, cancel := context.WithTimeout(ctx, time.Duration(p.config.GeneratorTimeout)*time.Second)
	answer, err := p.generator.Generate(genCtx, prompt)
	cancel()
	if err != nil || strings.TrimSpace(answer) == "" {
		slog.Warn("generative fallback failed", "error", err)
		return nil
	}

	name := p.generator.Name()
	return &RAGResponse{
		Answer:           strings.TrimSpace(answer),
		Citations:        []Citation{},
		Confidence:       0,
		Sources:          []string{name},
		SuggestedActions: suggestedActions(query),
	}
}

func (p *Pipeline) generatorAvailable() bool {
	return p.generator != nil && p.generator.Available()
}

func (p *Pipeline) webSearchAvailable() bool {
	return p.webSearch != nil && p.webSearch.Available()
}

// groundedContext joins the top n chunk texts for the generation prompt.
func groundedContext(docs []CandidateResult, n int) string {
	if len(docs) < n {
		n = len(docs)
	}
	parts := make([]string, 0, n)
	for i := 0; i < n; i++ {
		parts = append(parts, docs[i].Content)
	}
	return strings.Join(parts, "\n\n---\n\n")
}

var greetings = map[string]struct{}{
	"hello": {}, "hi": {}, "hey": {}, "jambo": {}, "habari": {},
	"good morning": {}, "good afternoon": {}, "good evening": {},
	"hujambo": {}, "mambo": {},
}

// isGreeting reports whether the whole query is a salutation.
func isGreeting(query string) bool {
	q := strings.ToLower(strings.TrimSpace(query))
	q = strings.Trim(q, "!.?, ")
	_, ok := greetings[q]
	return ok
}

// Category keywords mapped to follow-up actions shown with answers.
var actionCategories = []struct {
	keywords []string
	actions  []string
}{
	{
		keywords: []string{"garbage", "waste", "trash", "litter", "dumping"},
		actions: []string{
			"Check your zone's collection schedule",
			"Report a missed collection or illegal dumping",
		},
	},
	{
		keywords: []string{"permit", "license", "licence", "business registration"},
		actions: []string{
			"Review the permit application requirements",
			"Book an appointment at the county licensing office",
		},
	},
	{
		keywords: []string{"water", "bill", "sewerage", "meter"},
		actions: []string{
			"Check your water bill balance",
			"Report a leak or supply interruption",
		},
	},
}

// suggestedActions returns follow-up actions matching the query's
// category keywords, at most one category.
func suggestedActions(query string) []string {
	q := strings.ToLower(query)
	for _, cat := range actionCategories {
		for _, kw := range cat.keywords {
			if strings.Contains(q, kw) {
				return cat.actions
			}
		}
	}
	return nil
}
