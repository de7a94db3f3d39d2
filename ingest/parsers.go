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

package ingest

import (
	"context"
	"fmt"
	"html"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/ledongthuc/pdf"
	"github.com/nguyenthenguyen/docx"
)

// Parser extracts plain text from one document format.
type Parser interface {
	CanParse(path string) bool
	Parse(ctx context.Context, path string) (content string, metadata map[string]interface{}, err error)
}

func hasExt(path string, exts ...string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, e := range exts {
		if ext == e {
			return true
		}
	}
	return false
}

// pdfParser extracts text page by page.
type pdfParser struct{}

func (p *pdfParser) CanParse(path string) bool { return hasExt(path, ".pdf") }

func (p *pdfParser) Parse(ctx context.Context, path string) (string, map[string]interface{}, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", nil, fmt.Errorf("failed to open PDF: %w", err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return "", nil, fmt.Errorf("failed to stat PDF: %w", err)
	}

	reader, err := pdf.NewReader(file, info.Size())
	if err != nil {
		return "", nil, fmt.Errorf("failed to parse PDF: %w", err)
	}

	var parts []string
	totalPages := reader.NumPage()
	for pageNum := 1; pageNum <= totalPages; pageNum++ {
		select {
		case <-ctx.Done():
			return "", nil, ctx.Err()
		default:
		}

		page := reader.Page(pageNum)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			continue
		}
		if strings.TrimSpace(text) != "" {
			parts = append(parts, text)
		}
	}

	metadata := map[string]interface{}{
		"type":  "pdf",
		"pages": totalPages,
	}
	return strings.Join(parts, "\n\n"), metadata, nil
}

// docxParser extracts text from Word documents.
type docxParser struct{}

func (p *docxParser) CanParse(path string) bool { return hasExt(path, ".docx") }

func (p *docxParser) Parse(_ context.Context, path string) (string, map[string]interface{}, error) {
	doc, err := docx.ReadDocxFile(path)
	if err != nil {
		return "", nil, fmt.Errorf("failed to parse DOCX: %w", err)
	}
	defer doc.Close()

	// GetContent returns the document XML; strip the markup the same
	// way as HTML.
	content := stripTags(doc.Editable().GetContent())
	return content, map[string]interface{}{"type": "docx"}, nil
}

// htmlParser strips tags from HTML pages.
type htmlParser struct{}

func (p *htmlParser) CanParse(path string) bool { return hasExt(path, ".html", ".htm") }

func (p *htmlParser) Parse(_ context.Context, path string) (string, map[string]interface{}, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", nil, fmt.Errorf("failed to read HTML: %w", err)
	}

	text := string(data)
	if title := htmlTitlePattern.FindStringSubmatch(text); len(title) == 2 {
		return stripTags(text), map[string]interface{}{
			"type":  "html",
			"title": strings.TrimSpace(html.UnescapeString(title[1])),
		}, nil
	}
	return stripTags(text), map[string]interface{}{"type": "html"}, nil
}

// textParser reads Markdown and plain text as-is.
type textParser struct{}

func (p *textParser) CanParse(path string) bool {
	return hasExt(path, ".txt", ".md", ".markdown", ".text")
}

func (p *textParser) Parse(_ context.Context, path string) (string, map[string]interface{}, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", nil, fmt.Errorf("failed to read file: %w", err)
	}
	return string(data), map[string]interface{}{"type": "text"}, nil
}

var (
	htmlTitlePattern  = regexp.MustCompile(`(?is)<title[^>]*>(.*?)</title>`)
	htmlScriptPattern = regexp.MustCompile(`(?is)<(script|style)[^>]*>.*?</(script|style)>`)
	htmlBlockPattern  = regexp.MustCompile(`(?i)</(p|div|h[1-6]|li|tr|section|article)>|<br\s*/?>`)
	tagPattern        = regexp.MustCompile(`<[^>]+>`)
	blankLinePattern  = regexp.MustCompile(`\n{3,}`)
)

// stripTags converts markup to plain text, keeping block boundaries as
// paragraph breaks so chunking still sees document structure.
func stripTags(s string) string {
	s = htmlScriptPattern.ReplaceAllString(s, " ")
	s = htmlBlockPattern.ReplaceAllString(s, "\n\n")
	s = tagPattern.ReplaceAllString(s, " ")
	s = html.UnescapeString(s)

	// Collapse horizontal whitespace per line but keep paragraph breaks.
	lines := strings.Split(s, "\n")
	for i, line := range lines {
		lines[i] = strings.Join(strings.Fields(line), " ")
	}
	s = strings.Join(lines, "\n")
	s = blankLinePattern.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}
