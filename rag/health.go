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
	"time"
)

// HealthStatus represents the health state of a component.
type HealthStatus string

const (
	// HealthStatusHealthy indicates the component is functioning normally.
	HealthStatusHealthy HealthStatus = "healthy"

	// HealthStatusDegraded indicates the component works but a fallback
	// tier is in effect (e.g. generator unconfigured).
	HealthStatusDegraded HealthStatus = "degraded"

	// HealthStatusUnhealthy indicates the component is not functioning.
	HealthStatusUnhealthy HealthStatus = "unhealthy"
)

// HealthCheck is the result of probing one component.
type HealthCheck struct {
	Component string         `json:"component"`
	Status    HealthStatus   `json:"status"`
	Message   string         `json:"message,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
	Details   map[string]any `json:"details,omitempty"`
}

// IsHealthy returns true if the status is healthy.
func (h HealthCheck) IsHealthy() bool {
	return h.Status == HealthStatusHealthy
}

// HealthCheck reports index readiness. An empty index is degraded, not
// unhealthy: the pipeline still answers through its fallback tiers.
func (d *DocumentIndex) HealthCheck(ctx context.Context) HealthCheck {
	stats := d.Stats()
	check := HealthCheck{
		Component: "document_index",
		Timestamp: time.Now(),
		Details: map[string]any{
			"documents": stats.Documents,
			"chunks":    stats.Chunks,
			"state":     stats.State,
		},
	}
	switch {
	case stats.State == IndexReady.String() && stats.Indexed > 0:
		check.Status = HealthStatusHealthy
		check.Message = "index ready"
	case stats.State == IndexBuilding.String():
		check.Status = HealthStatusHealthy
		check.Message = "rebuild in progress, previous index serving"
	default:
		check.Status = HealthStatusDegraded
		check.Message = "index empty or not built"
	}
	return check
}

// HealthCheck probes the pipeline's collaborators.
func (p *Pipeline) HealthCheck(ctx context.Context) []HealthCheck {
	now := time.Now()
	checks := []HealthCheck{p.index.HealthCheck(ctx)}

	gen := HealthCheck{Component: "generator", Timestamp: now}
	if p.generator != nil && p.generator.Available() {
		gen.Status = HealthStatusHealthy
		gen.Message = p.generator.Name()
	} else {
		gen.Status = HealthStatusDegraded
		gen.Message = "not configured, extractive answers only"
	}
	checks = append(checks, gen)

	web := HealthCheck{Component: "web_search", Timestamp: now}
	if p.webSearch != nil && p.webSearch.Available() {
		web.Status = HealthStatusHealthy
	} else {
		web.Status = HealthStatusDegraded
		web.Message = "not configured, live fallback disabled"
	}
	checks = append(checks, web)

	return checks
}
