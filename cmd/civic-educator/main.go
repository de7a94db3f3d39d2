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

// Command civic-educator answers questions about county services from a
// local knowledge base.
//
// Usage:
//
//	civic-educator serve --config config.yaml
//	civic-educator ingest --config config.yaml
//	civic-educator ask "When is garbage collected?"
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/alecthomas/kong"

	civiceducator "github.com/godfrey-creat/civic-educator"
	"github.com/godfrey-creat/civic-educator/config"
	"github.com/godfrey-creat/civic-educator/ingest"
	"github.com/godfrey-creat/civic-educator/server"
)

// CLI defines the command-line interface.
type CLI struct {
	Version VersionCmd `cmd:"" help:"Show version information."`
	Serve   ServeCmd   `cmd:"" help:"Start the HTTP server."`
	Ingest  IngestCmd  `cmd:"" help:"Parse the documents folder and build the index."`
	Ask     AskCmd     `cmd:"" help:"Answer a single question from the command line."`
	Index   IndexCmd   `cmd:"" help:"Rebuild the persisted index with the configured embedder."`

	Config   string `short:"c" help:"Path to config file." type:"path"`
	LogLevel string `help:"Log level (debug, info, warn, error)." default:"info"`
}

// VersionCmd shows version information.
type VersionCmd struct{}

func (c *VersionCmd) Run() error {
	fmt.Println(civiceducator.GetVersion())
	return nil
}

// ServeCmd starts the HTTP server.
type ServeCmd struct {
	Port int `help:"Port to listen on (overrides config)."`
}

func (c *ServeCmd) Run(cli *CLI) error {
	ctx, cancel := signalContext()
	defer cancel()

	app, err := buildApp(cli)
	if err != nil {
		return err
	}
	defer app.Close()

	if c.Port != 0 {
		app.cfg.Server.Port = c.Port
	}

	// Serve the persisted index when present; an empty index still
	// answers with the deterministic fallback.
	if err := app.loadIndex(); err != nil {
		slog.Warn("No persisted index loaded", "path", app.cfg.Storage.IndexPath, "error", err)
	}

	srv, err := server.New(server.Options{
		Pipeline:  app.pipeline,
		Source:    ingest.NewDirectorySource(app.cfg.Storage.DocumentsDir),
		Registry:  app.registry,
		IndexPath: app.indexPath(),
		Addr:      fmt.Sprintf("%s:%d", app.cfg.Server.Host, app.cfg.Server.Port),
	})
	if err != nil {
		return err
	}
	return srv.Start(ctx)
}

// IngestCmd parses the documents folder, builds the index, and saves it.
type IngestCmd struct {
	Dir string `help:"Documents folder (overrides config)." type:"path"`
}

func (c *IngestCmd) Run(cli *CLI) error {
	ctx, cancel := signalContext()
	defer cancel()

	app, err := buildApp(cli)
	if err != nil {
		return err
	}
	defer app.Close()

	dir := app.cfg.Storage.DocumentsDir
	if c.Dir != "" {
		dir = c.Dir
	}

	// Start from the persisted index so re-ingestion replaces rather
	// than duplicates.
	if err := app.loadIndex(); err != nil {
		slog.Debug("Starting with an empty index", "error", err)
	}

	source := ingest.NewDirectorySource(dir)
	items, err := source.Documents(ctx)
	if err != nil {
		return fmt.Errorf("ingestion failed: %w", err)
	}
	if len(items) == 0 {
		return fmt.Errorf("no parseable documents found in %s", dir)
	}

	index := app.pipeline.Index()
	for _, item := range items {
		index.UpsertDocument(item.Content, item.Metadata)
	}
	if err := index.BuildIndex(ctx); err != nil {
		return fmt.Errorf("index build failed: %w", err)
	}
	if err := app.saveIndex(); err != nil {
		return fmt.Errorf("failed to persist index: %w", err)
	}

	stats := index.Stats()
	fmt.Printf("Indexed %d documents (%d chunks, %d dims)\n",
		stats.Documents, stats.Chunks, stats.Dimension)
	if path := app.indexPath(); path != "" {
		fmt.Printf("Saved to %s\n", path)
	}
	return nil
}

// AskCmd answers one question and exits.
type AskCmd struct {
	Question []string `arg:"" help:"The question to answer."`
	TopK     int      `help:"Number of candidate chunks to retrieve."`
}

func (c *AskCmd) Run(cli *CLI) error {
	ctx, cancel := signalContext()
	defer cancel()

	app, err := buildApp(cli)
	if err != nil {
		return err
	}
	defer app.Close()

	if err := app.loadIndex(); err != nil {
		slog.Warn("No persisted index loaded", "path", app.cfg.Storage.IndexPath, "error", err)
	}

	question := strings.Join(c.Question, " ")
	resp := app.pipeline.Query(ctx, question, queryOptions(c.TopK))

	fmt.Println(resp.Answer)
	if resp.NeedsClarification {
		fmt.Printf("\n%s\n", resp.ClarificationQuestion)
	}
	if len(resp.Citations) > 0 {
		fmt.Println("\nSources:")
		for _, cit := range resp.Citations {
			if cit.SourceLink != "" {
				fmt.Printf("  - %s (%s)\n", cit.Title, cit.SourceLink)
			} else {
				fmt.Printf("  - %s\n", cit.Title)
			}
		}
	}
	fmt.Printf("\nConfidence: %.2f\n", resp.Confidence)
	return nil
}

// IndexCmd re-embeds the persisted index with the configured embedder.
type IndexCmd struct{}

func (c *IndexCmd) Run(cli *CLI) error {
	ctx, cancel := signalContext()
	defer cancel()

	app, err := buildApp(cli)
	if err != nil {
		return err
	}
	defer app.Close()

	if err := app.loadIndex(); err != nil {
		return fmt.Errorf("no persisted index at %s: %w", app.cfg.Storage.IndexPath, err)
	}

	index := app.pipeline.Index()
	if err := index.BuildIndex(ctx); err != nil {
		return fmt.Errorf("index rebuild failed: %w", err)
	}
	if err := app.saveIndex(); err != nil {
		return fmt.Errorf("failed to persist index: %w", err)
	}

	stats := index.Stats()
	fmt.Printf("Rebuilt index: %d chunks, %d dims\n", stats.Chunks, stats.Dimension)
	return nil
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

func setupLogging(level string) error {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return fmt.Errorf("invalid log level %q: %w", level, err)
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})))
	return nil
}

func loadConfig(cli *CLI) (*config.Config, error) {
	if cli.Config == "" {
		if err := config.LoadEnvFiles(); err != nil {
			return nil, err
		}
		return config.Default(), nil
	}
	return config.Load(cli.Config)
}

func main() {
	cli := CLI{}
	ctx := kong.Parse(&cli,
		kong.Name("civic-educator"),
		kong.Description("Question answering over local government service documents."),
		kong.UsageOnError(),
	)

	if err := setupLogging(cli.LogLevel); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	ctx.FatalIfErrorf(ctx.Run(&cli))
}
