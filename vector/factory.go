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

package vector

import "fmt"

// Config selects and configures a vector provider.
type Config struct {
	// Type is the provider type: "flat" (default), "chromem", "qdrant".
	Type string `yaml:"type"`

	// Metric for the flat provider: "ip" (default) or "l2".
	Metric string `yaml:"metric,omitempty"`

	// Collection name for chromem/qdrant.
	Collection string `yaml:"collection,omitempty"`

	// PersistPath for chromem file persistence.
	PersistPath string `yaml:"persist_path,omitempty"`

	// Compress enables gzip compression for chromem persistence.
	Compress bool `yaml:"compress,omitempty"`

	// Host and Port for qdrant.
	Host string `yaml:"host,omitempty"`
	Port int    `yaml:"port,omitempty"`

	// APIKey for authenticated qdrant access.
	APIKey string `yaml:"api_key,omitempty"`

	// UseTLS enables TLS for qdrant.
	UseTLS bool `yaml:"use_tls,omitempty"`
}

// SetDefaults applies default values.
func (c *Config) SetDefaults() {
	if c.Type == "" {
		c.Type = "flat"
	}
	if c.Metric == "" {
		c.Metric = string(MetricInnerProduct)
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	switch c.Type {
	case "flat", "chromem":
	case "qdrant":
		if c.Host == "" {
			return fmt.Errorf("host is required for qdrant vector store")
		}
	default:
		return fmt.Errorf("invalid vector store type %q (valid: flat, chromem, qdrant)", c.Type)
	}
	switch Metric(c.Metric) {
	case MetricInnerProduct, MetricL2, "":
	default:
		return fmt.Errorf("invalid metric %q (valid: ip, l2)", c.Metric)
	}
	return nil
}

// NewProvider creates a Provider from configuration.
func NewProvider(cfg Config) (Provider, error) {
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid vector store config: %w", err)
	}

	switch cfg.Type {
	case "flat":
		return NewFlatStore(Metric(cfg.Metric), 0), nil
	case "chromem":
		return NewChromemProvider(ChromemConfig{
			Collection:  cfg.Collection,
			PersistPath: cfg.PersistPath,
			Compress:    cfg.Compress,
		})
	case "qdrant":
		return NewQdrantProvider(QdrantConfig{
			Host:       cfg.Host,
			Port:       cfg.Port,
			APIKey:     cfg.APIKey,
			UseTLS:     cfg.UseTLS,
			Collection: cfg.Collection,
		})
	default:
		return nil, fmt.Errorf("unknown vector store type %q", cfg.Type)
	}
}
