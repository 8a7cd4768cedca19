// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Command ingest loads CFR PDF volumes into Weaviate.
//
// # Environment Variables
//
//   - WEAVIATE_SERVICE_URL: Weaviate vector DB URL (required)
//   - LLM_BACKEND_TYPE: Embedding provider - openai, ollama (default: openai)
//   - EMBED_RATE_LIMIT: Embedding batch calls per second (default: 2)
//
// # Usage
//
//	go build -o ingest ./cmd/ingest
//	./ingest /data/cfr/title40 /data/cfr/title33
package main

import (
	"context"
	"log"
	"log/slog"
	"net/url"
	"os"
	"strconv"

	"github.com/weaviate/weaviate-go-client/v5/weaviate"

	"github.com/AleutianAI/EnviroPro/services/ingest"
	"github.com/AleutianAI/EnviroPro/services/llm"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	dirs := os.Args[1:]
	if len(dirs) == 0 {
		log.Fatal("Usage: ingest <pdf-dir> [<pdf-dir>...]")
	}

	client, err := newWeaviateClient(os.Getenv("WEAVIATE_SERVICE_URL"))
	if err != nil {
		log.Fatalf("Failed to create Weaviate client: %v", err)
	}

	embedder, err := newEmbedder(getEnvString("LLM_BACKEND_TYPE", "openai"))
	if err != nil {
		log.Fatalf("Failed to create embedding provider: %v", err)
	}

	rateLimit := 2.0
	if value := os.Getenv("EMBED_RATE_LIMIT"); value != "" {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			rateLimit = parsed
		}
	}

	ctx := context.Background()
	loader := ingest.NewLoader(client, embedder, rateLimit)

	if err := loader.EnsureSchema(ctx); err != nil {
		log.Fatalf("Failed to ensure schema: %v", err)
	}

	stats, err := loader.IngestDirectories(ctx, dirs)
	if err != nil {
		log.Fatalf("Ingestion failed: %v", err)
	}

	slog.Info("Ingestion complete",
		"files_processed", stats.FilesProcessed,
		"files_skipped", stats.FilesSkipped,
		"chunks_imported", stats.ChunksImported,
		"chunks_failed", stats.ChunksFailed,
	)
}

// getEnvString returns the environment variable value or a default.
func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func newWeaviateClient(rawURL string) (*weaviate.Client, error) {
	if rawURL == "" {
		log.Fatal("WEAVIATE_SERVICE_URL is required")
	}
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return nil, err
	}
	return weaviate.NewClient(weaviate.Config{Host: parsed.Host, Scheme: parsed.Scheme})
}

func newEmbedder(backend string) (llm.Embedder, error) {
	switch backend {
	case "ollama":
		return llm.NewOllamaClient()
	default:
		return llm.NewOpenAIClient()
	}
}
