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
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Answer tiers, used as the "tier" label on query metrics.
const (
	TierGreeting   = "greeting"
	TierGrounded   = "grounded"
	TierExtractive = "extractive"
	TierWeb        = "web"
	TierGenerative = "generative"
	TierFallback   = "fallback"
)

// Metrics collects pipeline and index observability counters.
type Metrics struct {
	queries        *prometheus.CounterVec
	clarifications prometheus.Counter
	queryLatency   prometheus.Histogram
	confidence     prometheus.Histogram
	rebuilds       prometheus.Counter
}

// NewMetrics registers pipeline metrics on the given registerer.
// Pass prometheus.DefaultRegisterer in production; tests use a fresh
// prometheus.NewRegistry to avoid duplicate registration.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		queries: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "civic_educator",
			Name:      "queries_total",
			Help:      "Queries answered, labeled by the answer tier taken.",
		}, []string{"tier"}),
		clarifications: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "civic_educator",
			Name:      "clarifications_total",
			Help:      "Responses that asked the user for clarification.",
		}),
		queryLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "civic_educator",
			Name:      "query_seconds",
			Help:      "End-to-end query latency, including generation and web fallback tiers.",
			Buckets:   prometheus.DefBuckets,
		}),
		confidence: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "civic_educator",
			Name:      "answer_confidence",
			Help:      "Confidence distribution of returned answers.",
			Buckets:   prometheus.LinearBuckets(0, 0.1, 11),
		}),
		rebuilds: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "civic_educator",
			Name:      "index_rebuilds_total",
			Help:      "Completed index rebuilds.",
		}),
	}
}

// ObserveQuery records a completed query with its end-to-end duration.
func (m *Metrics) ObserveQuery(tier string, confidence float64, elapsed time.Duration, clarified bool) {
	if m == nil {
		return
	}
	m.queries.WithLabelValues(tier).Inc()
	m.confidence.Observe(confidence)
	m.queryLatency.Observe(elapsed.Seconds())
	if clarified {
		m.clarifications.Inc()
	}
}

// ObserveRebuild records a completed index rebuild.
func (m *Metrics) ObserveRebuild() {
	if m == nil {
		return
	}
	m.rebuilds.Inc()
}
