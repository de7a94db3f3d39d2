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

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLexicalIndexEmptyCorpus(t *testing.T) {
	idx := NewLexicalIndex(nil)
	assert.Equal(t, 0, idx.Size())
	assert.Empty(t, idx.Score("garbage collection"))
}

func TestLexicalIndexRanksRelevantChunkFirst(t *testing.T) {
	corpus := []string{
		"Garbage is collected every Monday and Thursday in Zone A.",
		"Business permits are renewed annually at the county office.",
		"Water bills are payable via mobile money or bank transfer.",
	}
	idx := NewLexicalIndex(corpus)
	require.Equal(t, 3, idx.Size())

	scores := idx.Score("when is garbage collected")
	require.Len(t, scores, 3)
	assert.Greater(t, scores[0], scores[1])
	assert.Greater(t, scores[0], scores[2])
}

func TestLexicalIndexOutOfVocabularyQuery(t *testing.T) {
	idx := NewLexicalIndex([]string{"Garbage collection schedule for Zone A."})

	scores := idx.Score("quantum chromodynamics")
	require.Len(t, scores, 1)
	assert.Zero(t, scores[0])
}

func TestLexicalIndexScoresBounded(t *testing.T) {
	corpus := []string{
		"Permit fees and permit renewals.",
		"Garbage zones and collection days.",
	}
	idx := NewLexicalIndex(corpus)

	for _, q := range []string{"permit fees", "garbage collection", "permit garbage"} {
		for i, s := range idx.Score(q) {
			assert.GreaterOrEqual(t, s, 0.0, "query %q chunk %d", q, i)
			assert.LessOrEqual(t, s, 1.0+1e-9, "query %q chunk %d", q, i)
		}
	}
}

func TestLexicalIndexIdenticalChunkMaxScore(t *testing.T) {
	corpus := []string{
		"Garbage is collected every Monday.",
		"Permits are issued on Fridays.",
	}
	idx := NewLexicalIndex(corpus)

	scores := idx.Score("Garbage is collected every Monday.")
	assert.InDelta(t, 1.0, scores[0], 1e-9)
}
