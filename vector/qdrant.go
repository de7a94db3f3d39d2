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

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"
)

// QdrantConfig configures the Qdrant vector provider.
type QdrantConfig struct {
	// Host is the Qdrant server hostname.
	Host string `yaml:"host"`

	// Port is the Qdrant gRPC port (default: 6334).
	Port int `yaml:"port"`

	// APIKey for authenticated access (optional).
	APIKey string `yaml:"api_key,omitempty"`

	// UseTLS enables TLS connections.
	UseTLS bool `yaml:"use_tls,omitempty"`

	// Collection name (default: "civic_documents").
	Collection string `yaml:"collection,omitempty"`
}

// QdrantProvider implements Provider against an external Qdrant server.
//
// Qdrant point ids must be UUIDs or integers, so chunk ids are mapped
// through a deterministic v5 UUID; the original id travels in the payload
// and is restored on search.
type QdrantProvider struct {
	client     *qdrant.Client
	collection string
}

// qdrantIDSpace namespaces the deterministic point UUIDs.
var qdrantIDSpace = uuid.MustParse("6ba7b810-9dad-11d1-80b4-00c04fd430c8")

// NewQdrantProvider creates a new Qdrant provider.
func NewQdrantProvider(cfg QdrantConfig) (*QdrantProvider, error) {
	if cfg.Host == "" {
		cfg.Host = "localhost"
	}
	if cfg.Port == 0 {
		cfg.Port = 6334
	}
	if cfg.Collection == "" {
		cfg.Collection = "civic_documents"
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   cfg.Host,
		Port:   cfg.Port,
		APIKey: cfg.APIKey,
		UseTLS: cfg.UseTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Qdrant client for %s:%d: %w", cfg.Host, cfg.Port, err)
	}

	return &QdrantProvider{
		client:     client,
		collection: cfg.Collection,
	}, nil
}

// Upsert adds or replaces a vector with its payload.
func (p *QdrantProvider) Upsert(ctx context.Context, id string, vec []float32, metadata map[string]any) error {
	exists, err := p.client.CollectionExists(ctx, p.collection)
	if err != nil {
		return fmt.Errorf("failed to check collection existence: %w", err)
	}
	if !exists {
		err = p.client.CreateCollection(ctx, &qdrant.CreateCollection{
			CollectionName: p.collection,
			VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
				Size:     uint64(len(vec)),
				Distance: qdrant.Distance_Cosine,
			}),
		})
		if err != nil && !strings.Contains(err.Error(), "already exists") {
			return fmt.Errorf("failed to create collection: %w", err)
		}
	}

	payload := make(map[string]*qdrant.Value, len(metadata)+1)
	for key, value := range metadata {
		val, err := qdrant.NewValue(value)
		if err != nil {
			return fmt.Errorf("failed to convert metadata value for key %s: %w", key, err)
		}
		payload[key] = val
	}
	idVal, err := qdrant.NewValue(id)
	if err != nil {
		return fmt.Errorf("failed to convert id: %w", err)
	}
	payload["chunk_id"] = idVal

	point := &qdrant.PointStruct{
		Id:      qdrant.NewID(uuid.NewSHA1(qdrantIDSpace, []byte(id)).String()),
		Vectors: qdrant.NewVectors(vec...),
		Payload: payload,
	}
	_, err = p.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: p.collection,
		Points:         []*qdrant.PointStruct{point},
	})
	if err != nil {
		return fmt.Errorf("failed to upsert point: %w", err)
	}
	return nil
}

// Search returns up to topK nearest neighbors by cosine similarity.
func (p *QdrantProvider) Search(ctx context.Context, vec []float32, topK int) ([]Result, error) {
	searchRequest := &qdrant.SearchPoints{
		CollectionName: p.collection,
		Vector:         vec,
		Limit:          uint64(topK),
		WithPayload:    qdrant.NewWithPayload(true),
	}

	pointsClient := p.client.GetPointsClient()
	searchResult, err := pointsClient.Search(ctx, searchRequest)
	if err != nil {
		return nil, fmt.Errorf("failed to search points: %w", err)
	}

	results := make([]Result, 0, len(searchResult.Result))
	for _, point := range searchResult.Result {
		metadata := make(map[string]any, len(point.Payload))
		for key, value := range point.Payload {
			metadata[key] = qdrantValue(value)
		}

		id := ""
		if cid, ok := metadata["chunk_id"].(string); ok {
			id = cid
			delete(metadata, "chunk_id")
		}

		results = append(results, Result{
			ID:       id,
			Score:    float64(point.Score),
			Metadata: metadata,
		})
	}
	return results, nil
}

// Count reports the number of stored vectors.
func (p *QdrantProvider) Count(ctx context.Context) (int, error) {
	exists, err := p.client.CollectionExists(ctx, p.collection)
	if err != nil {
		return 0, fmt.Errorf("failed to check collection: %w", err)
	}
	if !exists {
		return 0, nil
	}
	count, err := p.client.Count(ctx, &qdrant.CountPoints{
		CollectionName: p.collection,
	})
	if err != nil {
		return 0, fmt.Errorf("failed to count points: %w", err)
	}
	return int(count), nil
}

// Reset removes all stored vectors by dropping the collection.
func (p *QdrantProvider) Reset(ctx context.Context) error {
	exists, err := p.client.CollectionExists(ctx, p.collection)
	if err != nil {
		return fmt.Errorf("failed to check collection: %w", err)
	}
	if !exists {
		return nil
	}
	if err := p.client.DeleteCollection(ctx, p.collection); err != nil {
		return fmt.Errorf("failed to delete collection: %w", err)
	}
	return nil
}

// Name returns the provider name.
func (p *QdrantProvider) Name() string {
	return "qdrant"
}

// Close closes the Qdrant client.
func (p *QdrantProvider) Close() error {
	return p.client.Close()
}

// qdrantValue converts a Qdrant payload value into a plain Go value.
func qdrantValue(value *qdrant.Value) any {
	switch v := value.Kind.(type) {
	case *qdrant.Value_StringValue:
		return v.StringValue
	case *qdrant.Value_IntegerValue:
		return v.IntegerValue
	case *qdrant.Value_DoubleValue:
		return v.DoubleValue
	case *qdrant.Value_BoolValue:
		return v.BoolValue
	case *qdrant.Value_ListValue:
		if v.ListValue == nil {
			return nil
		}
		list := make([]any, len(v.ListValue.Values))
		for i, item := range v.ListValue.Values {
			list[i] = qdrantValue(item)
		}
		return list
	default:
		return value
	}
}

// Ensure QdrantProvider implements Provider.
var _ Provider = (*QdrantProvider)(nil)
