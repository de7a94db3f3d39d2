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

// Package config loads and validates the application configuration from
// YAML, with environment variable expansion and .env file support.
package config

import (
	"fmt"
	"os"

	"github.com/mitchellh/mapstructure"
	"gopkg.in/yaml.v3"

	"github.com/godfrey-creat/civic-educator/embedder"
	"github.com/godfrey-creat/civic-educator/llms"
	"github.com/godfrey-creat/civic-educator/rag"
	"github.com/godfrey-creat/civic-educator/vector"
	"github.com/godfrey-creat/civic-educator/websearch"
)

// Config is the complete application configuration. A single YAML file
// configures the server, the retrieval index, and every backend.
type Config struct {
	Server    ServerConfig            `yaml:"server"`
	Storage   StorageConfig           `yaml:"storage"`
	Embedder  embedder.Config         `yaml:"embedder"`
	Generator llms.Config             `yaml:"generator"`
	Vector    vector.Config           `yaml:"vector"`
	Index     rag.IndexConfig         `yaml:"index"`
	Pipeline  rag.PipelineConfig      `yaml:"pipeline"`
	Reranker  rag.ScorerConfig        `yaml:"reranker"`
	WebSearch websearch.SerpAPIConfig `yaml:"web_search"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	// Host to bind (default: 0.0.0.0).
	Host string `yaml:"host"`

	// Port to listen on (default: 8080).
	Port int `yaml:"port"`
}

// SetDefaults applies default values.
func (c *ServerConfig) SetDefaults() {
	if c.Host == "" {
		c.Host = "0.0.0.0"
	}
	if c.Port == 0 {
		c.Port = 8080
	}
}

// Validate checks the configuration for errors.
func (c *ServerConfig) Validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Port)
	}
	return nil
}

// StorageConfig configures on-disk locations.
type StorageConfig struct {
	// IndexPath is the directory holding the persisted index
	// (vectors.bin plus metadata.json).
	IndexPath string `yaml:"index_path"`

	// DocumentsDir is the directory scanned for knowledge-base
	// documents during ingestion.
	DocumentsDir string `yaml:"documents_dir"`
}

// SetDefaults applies default values.
func (c *StorageConfig) SetDefaults() {
	if c.IndexPath == "" {
		c.IndexPath = "data/index"
	}
	if c.DocumentsDir == "" {
		c.DocumentsDir = "data/documents"
	}
}

// Validate checks the configuration for errors.
func (c *StorageConfig) Validate() error {
	return nil
}

// sections returns the cascading configuration sections. WebSearch is
// absent: the SerpAPI client defaults itself in its constructor.
func (c *Config) sections() []Section {
	return []Section{
		&c.Server,
		&c.Storage,
		&c.Embedder,
		&c.Generator,
		&c.Vector,
		&c.Index,
		&c.Pipeline,
		&c.Reranker,
	}
}

// SetDefaults applies defaults to every section.
func (c *Config) SetDefaults() {
	for _, s := range c.sections() {
		s.SetDefaults()
	}
}

// Validate validates every section.
func (c *Config) Validate() error {
	for _, s := range c.sections() {
		if err := s.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// Default returns a configuration with every default applied, suitable
// for running without a config file.
func Default() *Config {
	cfg := &Config{}
	cfg.SetDefaults()
	return cfg
}

// Load reads a YAML configuration file, expands environment variables,
// applies defaults, and validates. .env files next to the working
// directory are loaded first so file values can reference them.
func Load(path string) (*Config, error) {
	if err := LoadEnvFiles(); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var raw map[string]interface{}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	expanded, _ := ExpandEnvVarsInData(raw).(map[string]interface{})

	cfg := &Config{}
	if err := decode(expanded, cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config file %s: %w", path, err)
	}

	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration in %s: %w", path, err)
	}
	return cfg, nil
}

// decode maps parsed YAML onto the Config struct using the yaml field
// tags, coercing duration strings and comma-separated lists.
func decode(input map[string]interface{}, output *Config) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           output,
		TagName:          "yaml",
		WeaklyTypedInput: true,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		),
	})
	if err != nil {
		return fmt.Errorf("failed to create decoder: %w", err)
	}
	return decoder.Decode(input)
}
