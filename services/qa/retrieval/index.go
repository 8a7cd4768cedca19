// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package retrieval turns a question into an evidence-grounded answer.
//
// It holds the similarity index abstraction, the heading-preference
// re-ranking, and the combined prompt sent to the oracle.
package retrieval

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/graphql"
	"github.com/weaviate/weaviate/entities/models"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/AleutianAI/EnviroPro/services/llm"
	"github.com/AleutianAI/EnviroPro/services/qa/datatypes"
)

var tracer = otel.Tracer("enviropro.qa.retrieval")

// ChunkClassName is the Weaviate class holding regulation chunks.
// The ingestion pipeline writes it, the serving path reads it.
const ChunkClassName = "RegulationChunk"

// SimilarityIndex returns the passages nearest to a query, best first.
//
// Implementations must preserve the index's own rank order; re-ranking by
// session preference happens above this interface.
type SimilarityIndex interface {
	Search(ctx context.Context, query string, topK int) ([]datatypes.Passage, error)
}

// WeaviateIndex implements SimilarityIndex against a Weaviate instance.
//
// # Thread Safety
//
// Safe for concurrent use. The underlying Weaviate client handles
// connection pooling.
type WeaviateIndex struct {
	client   *weaviate.Client
	embedder llm.Embedder
}

// NewWeaviateIndex creates an index adapter over the given client.
func NewWeaviateIndex(client *weaviate.Client, embedder llm.Embedder) *WeaviateIndex {
	return &WeaviateIndex{client: client, embedder: embedder}
}

// Search embeds the query and runs a NearVector search over the
// RegulationChunk class. Results come back in the index's rank order.
func (w *WeaviateIndex) Search(ctx context.Context, query string, topK int) ([]datatypes.Passage, error) {
	ctx, span := tracer.Start(ctx, "WeaviateIndex.Search")
	defer span.End()
	span.SetAttributes(attribute.Int("retrieval.top_k", topK))

	vector, err := w.embedder.Embed(ctx, query)
	if err != nil {
		slog.Error("Failed to embed query for retrieval", "error", err)
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	nearVector := w.client.GraphQL().NearVectorArgBuilder().
		WithVector(vector)

	fields := []graphql.Field{
		{Name: "content"},
		{Name: "heading_key"},
		{Name: "file_title"},
		{Name: "_additional", Fields: []graphql.Field{
			{Name: "certainty"},
		}},
	}

	result, err := w.client.GraphQL().Get().
		WithClassName(ChunkClassName).
		WithFields(fields...).
		WithNearVector(nearVector).
		WithLimit(topK).
		Do(ctx)
	if err != nil {
		slog.Error("Failed to search RegulationChunk class", "error", err)
		return nil, fmt.Errorf("weaviate search failed: %w", err)
	}
	if len(result.Errors) > 0 {
		return nil, fmt.Errorf("weaviate search returned an error: %s", result.Errors[0].Message)
	}

	passages := parseChunkResults(result.Data)
	slog.Debug("Retrieved passages", "count", len(passages))
	return passages, nil
}

// parseChunkResults walks the GraphQL response shape defensively; a
// missing or oddly typed level yields an empty result, not a panic.
func parseChunkResults(data map[string]models.JSONObject) []datatypes.Passage {
	var passages []datatypes.Passage

	get, ok := data["Get"].(map[string]interface{})
	if !ok {
		return passages
	}
	chunks, ok := get[ChunkClassName].([]interface{})
	if !ok {
		return passages
	}
	for _, item := range chunks {
		obj, ok := item.(map[string]interface{})
		if !ok {
			continue
		}
		var p datatypes.Passage
		if v, ok := obj["content"].(string); ok {
			p.Content = v
		}
		if v, ok := obj["heading_key"].(string); ok {
			p.HeadingKey = v
		}
		if v, ok := obj["file_title"].(string); ok {
			p.FileTitle = v
		}
		passages = append(passages, p)
	}
	return passages
}
