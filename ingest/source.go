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

// Package ingest discovers and parses knowledge-base documents for
// indexing. A DocumentSource yields parsed document content plus
// metadata; the directory source walks a folder of PDF, DOCX, Markdown,
// HTML, and plain-text files.
package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"
)

// Item is one parsed document ready for indexing.
type Item struct {
	Content  string
	Metadata map[string]interface{}
}

// DocumentSource yields parsed documents from some backing store.
type DocumentSource interface {
	// Documents parses all documents from the source. Individual
	// document failures are logged and skipped; the batch continues.
	Documents(ctx context.Context) ([]Item, error)
}

// DirectorySource walks a directory tree and parses every supported
// file it finds.
type DirectorySource struct {
	basePath    string
	parsers     []Parser
	maxFileSize int64
	workers     int
}

// DirectoryOption configures a DirectorySource.
type DirectoryOption func(*DirectorySource)

// WithMaxFileSize caps the size of files that will be parsed.
func WithMaxFileSize(n int64) DirectoryOption {
	return func(ds *DirectorySource) { ds.maxFileSize = n }
}

// WithWorkers sets the number of concurrent parsers.
func WithWorkers(n int) DirectoryOption {
	return func(ds *DirectorySource) { ds.workers = n }
}

// NewDirectorySource creates a source over basePath with the built-in
// parsers registered.
func NewDirectorySource(basePath string, opts ...DirectoryOption) *DirectorySource {
	ds := &DirectorySource{
		basePath: basePath,
		parsers: []Parser{
			&pdfParser{},
			&docxParser{},
			&htmlParser{},
			&textParser{},
		},
		maxFileSize: 50 * 1024 * 1024,
		workers:     4,
	}
	for _, opt := range opts {
		opt(ds)
	}
	return ds
}

// Documents walks the directory and parses supported files
// concurrently. Files that fail to parse are logged and skipped.
// Results come back in path order regardless of worker scheduling.
func (ds *DirectorySource) Documents(ctx context.Context) ([]Item, error) {
	paths, err := ds.discover()
	if err != nil {
		return nil, fmt.Errorf("failed to scan %s: %w", ds.basePath, err)
	}
	if len(paths) == 0 {
		return nil, nil
	}

	// Each goroutine writes its own slot, so no lock is needed.
	items := make([]*Item, len(paths))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(ds.workers)

	for i, path := range paths {
		g.Go(func() error {
			item, err := ds.parseFile(gctx, path)
			if err != nil {
				slog.Warn("Skipping document", "path", path, "error", err)
				return nil
			}
			items[i] = item
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	result := make([]Item, 0, len(items))
	for _, item := range items {
		if item != nil {
			result = append(result, *item)
		}
	}
	return result, nil
}

// discover collects the paths of all parseable files under basePath.
func (ds *DirectorySource) discover() ([]string, error) {
	var paths []string
	err := filepath.WalkDir(ds.basePath, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if strings.HasPrefix(d.Name(), ".") && path != ds.basePath {
				return filepath.SkipDir
			}
			return nil
		}
		if ds.findParser(path) == nil {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		if info.Size() > ds.maxFileSize {
			slog.Warn("Skipping oversized document", "path", path, "size", info.Size())
			return nil
		}
		paths = append(paths, path)
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(paths)
	return paths, nil
}

func (ds *DirectorySource) findParser(path string) Parser {
	for _, p := range ds.parsers {
		if p.CanParse(path) {
			return p
		}
	}
	return nil
}

func (ds *DirectorySource) parseFile(ctx context.Context, path string) (*Item, error) {
	parser := ds.findParser(path)
	if parser == nil {
		return nil, fmt.Errorf("no parser for %s", filepath.Ext(path))
	}

	content, metadata, err := parser.Parse(ctx, path)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(content) == "" {
		return nil, fmt.Errorf("document is empty")
	}

	if metadata == nil {
		metadata = make(map[string]interface{})
	}
	name := filepath.Base(path)
	metadata["source"] = name
	if _, ok := metadata["title"]; !ok {
		metadata["title"] = strings.TrimSuffix(name, filepath.Ext(name))
	}
	metadata["path"] = path

	return &Item{Content: content, Metadata: metadata}, nil
}

var _ DocumentSource = (*DirectorySource)(nil)
