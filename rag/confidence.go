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

import "fmt"

// ScoreConfidence derives answer confidence from the top-ranked score.
//
// Scores reaching this function are min-max normalized blends in [0,1];
// empirically useful matches cluster in [0.5, 1.0], so that band is
// affine-mapped onto [0,1]: clamp((top - 0.5) * 2, 0, 1). No documents
// means zero confidence. Deliberately a cheap proxy; monotone in the
// top score.
func ScoreConfidence(docs []CandidateResult) float64 {
	if len(docs) == 0 {
		return 0
	}
	c := (docs[0].Score - 0.5) * 2
	if c < 0 {
		return 0
	}
	if c > 1 {
		return 1
	}
	return c
}

// topicGapThreshold is the score gap below which the top two candidates
// are considered topically ambiguous.
const topicGapThreshold = 0.1

// Clarify decides whether to ask the user for more detail instead of
// answering. Returns the clarification question when needed.
//
// Two triggers: confidence below half the threshold asks a generic
// follow-up; a narrow gap between the top two candidates that both
// carry a topic tag names the competing topics, since a single
// best-match answer would mask the ambiguity.
func Clarify(docs []CandidateResult, confidence, threshold float64) (bool, string) {
	if confidence < threshold/2 {
		return true, "Could you provide more details about what you're looking for? " +
			"For example, mention the service, county, or document you need help with."
	}

	if len(docs) >= 2 && docs[0].Score-docs[1].Score < topicGapThreshold {
		first := metadataString(docs[0].Metadata, "topic")
		second := metadataString(docs[1].Metadata, "topic")
		if first != "" && second != "" && first != second {
			return true, fmt.Sprintf(
				"Your question could relate to %s or %s. Which one do you mean?",
				first, second)
		}
	}

	return false, ""
}
