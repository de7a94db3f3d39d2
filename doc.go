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

// Package civiceducator answers residents' questions about local
// government services from a curated document knowledge base.
//
// Documents are chunked, embedded, and indexed for hybrid
// dense-plus-lexical retrieval. Answers are grounded in the retrieved
// chunks, scored for confidence, and cited back to their sources.
// Ambiguous questions trigger a clarification prompt instead of a
// guess, and unanswerable ones fall back to live web search or an
// honest "I don't know".
//
// # Quick Start
//
// Build the index from a folder of documents:
//
//	civic-educator ingest --config config.yaml
//
// Ask a question from the command line:
//
//	civic-educator ask "When is garbage collected?"
//
// Or serve the HTTP API:
//
//	civic-educator serve --config config.yaml
//
// A minimal configuration:
//
//	embedder:
//	  provider: ollama
//	  model: all-minilm
//	generator:
//	  provider: gemini
//	  api_key: ${GEMINI_API_KEY}
//	storage:
//	  documents_dir: data/documents
//	  index_path: data/index
//
// The packages under this module are usable as a library; see rag for
// the pipeline, vector for the index backends, and server for the HTTP
// surface.
package civiceducator
