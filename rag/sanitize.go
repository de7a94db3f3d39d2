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

import "strings"

// Patterns stripped from user queries before they reach a generation
// prompt. Role markers and override phrases could otherwise steer the
// model away from the grounded-answer instruction.
var injectionPatterns = []string{
	"SYSTEM:", "System:", "system:",
	"ASSISTANT:", "Assistant:", "assistant:",
	"USER:", "User:", "user:",
	"Ignore previous instructions", "ignore previous instructions",
	"Ignore all previous", "ignore all previous",
	"Disregard previous", "disregard previous",
	"---", "===", "***", "```",
}

// sanitizeQuery strips prompt-injection markers before the query is
// embedded into a generation prompt. Retrieval sees the query verbatim:
// questions that legitimately quote markup must still match the
// knowledge base.
func sanitizeQuery(input string) string {
	sanitized := input
	for _, pattern := range injectionPatterns {
		sanitized = strings.ReplaceAll(sanitized, pattern, "")
	}
	return strings.TrimSpace(sanitized)
}
