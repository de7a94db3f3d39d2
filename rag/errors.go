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

// SearchError represents a failure on the query path. Callers use it to
// distinguish a backend failure from the (non-error) empty result set.
type SearchError struct {
	Component string // component that failed ("embedder", "vector", "reranker")
	Operation string // operation that failed
	Message   string
	Query     string
	Err       error
}

// Error implements the error interface.
func (e *SearchError) Error() string {
	msg := fmt.Sprintf("[%s] %s: %s", e.Component, e.Operation, e.Message)
	if e.Query != "" {
		query := e.Query
		if len(query) > 50 {
			query = query[:50] + "..."
		}
		msg += fmt.Sprintf(" (query: %q)", query)
	}
	if e.Err != nil {
		msg += fmt.Sprintf(": %v", e.Err)
	}
	return msg
}

// Unwrap returns the underlying error.
func (e *SearchError) Unwrap() error {
	return e.Err
}

// NewSearchError creates a new SearchError.
func NewSearchError(component, operation, message, query string, err error) *SearchError {
	return &SearchError{
		Component: component,
		Operation: operation,
		Message:   message,
		Query:     query,
		Err:       err,
	}
}

// IndexError represents a failure while building or mutating the index.
type IndexError struct {
	Operation string // "embed", "build", "add"
	Message   string
	Err       error
}

// Error implements the error interface.
func (e *IndexError) Error() string {
	msg := fmt.Sprintf("index %s failed: %s", e.Operation, e.Message)
	if e.Err != nil {
		msg += fmt.Sprintf(": %v", e.Err)
	}
	return msg
}

// Unwrap returns the underlying error.
func (e *IndexError) Unwrap() error {
	return e.Err
}

// NewIndexError creates a new IndexError.
func NewIndexError(operation, message string, err error) *IndexError {
	return &IndexError{Operation: operation, Message: message, Err: err}
}

// IngestError represents a failure reading a single document source.
// Batch ingestion logs these and continues.
type IngestError struct {
	Source  string // file path or URL
	Message string
	Err     error
}

// Error implements the error interface.
func (e *IngestError) Error() string {
	msg := fmt.Sprintf("ingest failed for %s: %s", e.Source, e.Message)
	if e.Err != nil {
		msg += fmt.Sprintf(": %v", e.Err)
	}
	return msg
}

// Unwrap returns the underlying error.
func (e *IngestError) Unwrap() error {
	return e.Err
}

// NewIngestError creates a new IngestError.
func NewIngestError(source, message string, err error) *IngestError {
	return &IngestError{Source: source, Message: message, Err: err}
}

// PersistError represents a malformed or unreadable persisted index.
// Fatal at load time: serving a wrong index risks wrong citations.
type PersistError struct {
	Path    string
	Message string
	Err     error
}

// Error implements the error interface.
func (e *PersistError) Error() string {
	msg := fmt.Sprintf("persisted index at %s: %s", e.Path, e.Message)
	if e.Err != nil {
		msg += fmt.Sprintf(": %v", e.Err)
	}
	return msg
}

// Unwrap returns the underlying error.
func (e *PersistError) Unwrap() error {
	return e.Err
}

// NewPersistError creates a new PersistError.
func NewPersistError(path, message string, err error) *PersistError {
	return &PersistError{Path: path, Message: message, Err: err}
}
