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
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricsObserveQuery(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	m.ObserveQuery(TierGrounded, 0.8, 120*time.Millisecond, false)
	m.ObserveQuery(TierWeb, 0.5, 2*time.Second, true)

	families, err := reg.Gather()
	require.NoError(t, err)

	byName := make(map[string]uint64)
	for _, f := range families {
		switch f.GetName() {
		case "civic_educator_query_seconds":
			byName[f.GetName()] = f.GetMetric()[0].GetHistogram().GetSampleCount()
		case "civic_educator_clarifications_total":
			byName[f.GetName()] = uint64(f.GetMetric()[0].GetCounter().GetValue())
		}
	}

	// The latency histogram covers the whole query, every tier observes it.
	assert.Equal(t, uint64(2), byName["civic_educator_query_seconds"])
	assert.Equal(t, uint64(1), byName["civic_educator_clarifications_total"])
}

func TestMetricsNilSafe(t *testing.T) {
	var m *Metrics
	m.ObserveQuery(TierFallback, 0, 0, false)
	m.ObserveRebuild()
}
