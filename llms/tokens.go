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

package llms

import (
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

var (
	budgetEncoding     *tiktoken.Tiktoken
	budgetEncodingOnce sync.Once
)

// encoding returns the shared cl100k_base tokenizer, or nil if the
// encoding tables could not be loaded.
func encoding() *tiktoken.Tiktoken {
	budgetEncodingOnce.Do(func() {
		enc, err := tiktoken.GetEncoding("cl100k_base")
		if err == nil {
			budgetEncoding = enc
		}
	})
	return budgetEncoding
}

// CountTokens returns the token count of text under cl100k_base, or a
// chars/4 estimate when the tokenizer is unavailable.
func CountTokens(text string) int {
	enc := encoding()
	if enc == nil {
		return len(text) / 4
	}
	return len(enc.Encode(text, nil, nil))
}

// TrimToTokenBudget truncates text to at most budget tokens. Generation
// prompts embed retrieved context through this so oversized chunks never
// blow the model's window. Falls back to a 4-chars-per-token estimate
// when the tokenizer is unavailable.
func TrimToTokenBudget(text string, budget int) string {
	if budget <= 0 {
		return text
	}
	enc := encoding()
	if enc == nil {
		limit := budget * 4
		if len(text) <= limit {
			return text
		}
		return text[:limit]
	}

	tokens := enc.Encode(text, nil, nil)
	if len(tokens) <= budget {
		return text
	}
	return enc.Decode(tokens[:budget])
}
