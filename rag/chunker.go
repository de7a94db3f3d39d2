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
	"crypto/sha256"
	"encoding/hex"
	"regexp"
	"strings"
)

// ChunkerConfig configures the semantic chunker.
type ChunkerConfig struct {
	// ChunkSize is the target chunk length in characters (default: 1000).
	ChunkSize int `yaml:"chunk_size" mapstructure:"chunk_size"`

	// ChunkOverlap is how many trailing characters of the previous chunk
	// get prepended to the next one (default: 200).
	ChunkOverlap int `yaml:"chunk_overlap" mapstructure:"chunk_overlap"`
}

// SetDefaults applies default values.
func (c *ChunkerConfig) SetDefaults() {
	if c.ChunkSize <= 0 {
		c.ChunkSize = 1000
	}
	if c.ChunkOverlap < 0 {
		c.ChunkOverlap = 0
	} else if c.ChunkOverlap == 0 {
		c.ChunkOverlap = 200
	}
}

var paragraphSplit = regexp.MustCompile(`\n\s*\n`)

// Chunker splits document text into overlapping, paragraph-bounded
// segments. Chunk ids derive from the source metadata plus a content
// hash, so chunking the same text from the same source twice yields
// identical ids in the same order.
type Chunker struct {
	config ChunkerConfig
}

// NewChunker creates a chunker with the given configuration.
func NewChunker(cfg ChunkerConfig) *Chunker {
	cfg.SetDefaults()
	return &Chunker{config: cfg}
}

// Chunk splits text into an ordered sequence of chunks.
//
// Paragraphs (blank-line-delimited) accumulate until the next addition
// would exceed ChunkSize. A paragraph longer than 1.5x ChunkSize is
// split into sentences and packed greedily. After base chunking, every
// chunk past the first gets the trailing ChunkOverlap characters of its
// predecessor prepended, separated by a blank line.
func (c *Chunker) Chunk(text string, metadata map[string]any) []Chunk {
	base := c.baseChunks(text)
	if len(base) == 0 {
		return nil
	}

	source := metadataString(metadata, "source")

	chunks := make([]Chunk, 0, len(base))
	for i, body := range base {
		final := body
		if i > 0 && c.config.ChunkOverlap > 0 {
			prev := base[i-1]
			tail := prev
			if len(prev) > c.config.ChunkOverlap {
				tail = prev[len(prev)-c.config.ChunkOverlap:]
			}
			final = tail + "\n\n" + body
		}

		md := make(map[string]any, len(metadata))
		for k, v := range metadata {
			md[k] = v
		}

		chunks = append(chunks, Chunk{
			ChunkID:  chunkID(source, final),
			Text:     final,
			Metadata: md,
		})
	}
	return chunks
}

// baseChunks runs the pre-overlap chunking pass.
func (c *Chunker) baseChunks(text string) []string {
	var out []string
	var current strings.Builder

	flush := func() {
		if current.Len() > 0 {
			out = append(out, current.String())
			current.Reset()
		}
	}

	for _, para := range paragraphSplit.Split(text, -1) {
		para = strings.TrimSpace(para)
		if para == "" {
			continue
		}

		if len(para) > c.config.ChunkSize*3/2 {
			// Oversized paragraph: flush what we have and pack sentences.
			flush()
			for _, piece := range c.packSentences(para) {
				out = append(out, piece)
			}
			continue
		}

		if current.Len() > 0 && current.Len()+2+len(para) > c.config.ChunkSize {
			flush()
		}
		if current.Len() > 0 {
			current.WriteString("\n\n")
		}
		current.WriteString(para)
	}
	flush()
	return out
}

// packSentences splits a paragraph into sentences and packs them
// greedily up to ChunkSize.
func (c *Chunker) packSentences(para string) []string {
	var out []string
	var current strings.Builder

	for _, sent := range splitSentences(para) {
		if current.Len() > 0 && current.Len()+1+len(sent) > c.config.ChunkSize {
			out = append(out, current.String())
			current.Reset()
		}
		if current.Len() > 0 {
			current.WriteString(" ")
		}
		current.WriteString(sent)
	}
	if current.Len() > 0 {
		out = append(out, current.String())
	}
	return out
}

// splitSentences breaks text at sentence-ending punctuation followed by
// whitespace. Good enough for government prose; abbreviation handling is
// not attempted.
func splitSentences(text string) []string {
	var sentences []string
	start := 0
	for i := 0; i < len(text); i++ {
		ch := text[i]
		if ch != '.' && ch != '!' && ch != '?' {
			continue
		}
		// Consume a run of terminators ("?!", "...").
		j := i + 1
		for j < len(text) && (text[j] == '.' || text[j] == '!' || text[j] == '?') {
			j++
		}
		if j < len(text) && (text[j] == ' ' || text[j] == '\t' || text[j] == '\n') {
			sent := strings.TrimSpace(text[start:j])
			if sent != "" {
				sentences = append(sentences, sent)
			}
			start = j + 1
		}
		i = j - 1
	}
	if tail := strings.TrimSpace(text[start:]); tail != "" {
		sentences = append(sentences, tail)
	}
	return sentences
}

// chunkID builds the stable chunk identifier <source>:<8 hex of content hash>.
func chunkID(source, text string) string {
	sum := sha256.Sum256([]byte(text))
	h := hex.EncodeToString(sum[:])[:8]
	if source == "" {
		return h
	}
	return source + ":" + h
}
