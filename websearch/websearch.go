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

// Package websearch provides the live search fallback used when local
// retrieval confidence is low.
package websearch

import "context"

// Result is one usable search hit. The pipeline only trusts results
// that carry a link.
type Result struct {
	Title   string `json:"title"`
	Snippet string `json:"snippet"`
	Link    string `json:"link"`
}

// Client is the web-search collaborator. A nil or unavailable client
// disables the live fallback tier.
type Client interface {
	// Available reports whether the client is configured.
	Available() bool

	// Search returns the best result for the query, or nil when the
	// engine found nothing usable.
	Search(ctx context.Context, query string) (*Result, error)
}
