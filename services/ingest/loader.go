// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package ingest loads CFR volumes from PDF directories into Weaviate.
//
// # Description
//
// The loader walks one or more directories of CFR PDFs, extracts the
// plain text per page, records the structural headings from the first
// page, splits the text into overlapping chunks, embeds the chunks,
// and batch-imports them as RegulationChunk objects.
//
// Chunk IDs are derived from a sha256 of the chunk content, so
// re-running the loader over the same corpus overwrites objects in
// place instead of duplicating them.
//
// # Limitations
//
//   - Scanned (image-only) PDFs yield no text and are skipped with a
//     warning.
//   - The loader is a one-shot batch tool; it does not watch
//     directories for changes.
package ingest

import (
	"context"
	"crypto/sha256"
	"fmt"
	"io/fs"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/go-openapi/strfmt"
	"github.com/google/uuid"
	"github.com/ledongthuc/pdf"
	"github.com/tmc/langchaingo/textsplitter"
	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"github.com/weaviate/weaviate/entities/models"
	"golang.org/x/time/rate"

	"github.com/AleutianAI/EnviroPro/services/llm"
	"github.com/AleutianAI/EnviroPro/services/qa/retrieval"
)

const (
	CHUNK_SIZE    = 1600
	CHUNK_OVERLAP = 100

	// embedBatchSize bounds how many chunks go to the embedding
	// provider per call.
	embedBatchSize = 64
)

// Stats summarizes one loader run.
type Stats struct {
	FilesProcessed int
	FilesSkipped   int
	ChunksImported int
	ChunksFailed   int
}

// Loader ingests CFR PDF volumes into the similarity index.
type Loader struct {
	client   *weaviate.Client
	embedder llm.Embedder
	limiter  *rate.Limiter
	splitter textsplitter.TextSplitter
}

// NewLoader creates a Loader.
//
// embedsPerSecond throttles embedding calls; pass 0 to disable
// throttling.
func NewLoader(client *weaviate.Client, embedder llm.Embedder, embedsPerSecond float64) *Loader {
	limit := rate.Inf
	if embedsPerSecond > 0 {
		limit = rate.Limit(embedsPerSecond)
	}
	return &Loader{
		client:   client,
		embedder: embedder,
		limiter:  rate.NewLimiter(limit, 1),
		splitter: textsplitter.NewRecursiveCharacter(
			textsplitter.WithChunkSize(CHUNK_SIZE),
			textsplitter.WithChunkOverlap(CHUNK_OVERLAP),
		),
	}
}

// EnsureSchema creates the RegulationChunk class if it does not exist.
//
// Vectorizer is "none": all vectors are supplied by the loader, so the
// serving path and the ingestion path always share one embedding model.
func (l *Loader) EnsureSchema(ctx context.Context) error {
	exists, err := l.client.Schema().ClassExistenceChecker().
		WithClassName(retrieval.ChunkClassName).Do(ctx)
	if err != nil {
		return fmt.Errorf("failed to check class existence: %w", err)
	}
	if exists {
		return nil
	}

	class := &models.Class{
		Class:      retrieval.ChunkClassName,
		Vectorizer: "none",
		Properties: []*models.Property{
			{Name: "content", DataType: []string{"text"}},
			{Name: "heading_key", DataType: []string{"text"}},
			{Name: "file_title", DataType: []string{"text"}},
		},
	}
	if err := l.client.Schema().ClassCreator().WithClass(class).Do(ctx); err != nil {
		return fmt.Errorf("failed to create class %s: %w", retrieval.ChunkClassName, err)
	}
	slog.Info("Created Weaviate class", "class", retrieval.ChunkClassName)
	return nil
}

// IngestDirectories walks each directory and ingests every PDF found.
func (l *Loader) IngestDirectories(ctx context.Context, dirs []string) (Stats, error) {
	var stats Stats
	for _, dir := range dirs {
		err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() || !strings.EqualFold(filepath.Ext(path), ".pdf") {
				return nil
			}
			fileStats, err := l.IngestFile(ctx, path)
			if err != nil {
				slog.Error("Failed to ingest file", "path", path, "error", err)
				stats.FilesSkipped++
				return nil
			}
			stats.FilesProcessed++
			stats.ChunksImported += fileStats.ChunksImported
			stats.ChunksFailed += fileStats.ChunksFailed
			return nil
		})
		if err != nil {
			return stats, fmt.Errorf("failed to walk %s: %w", dir, err)
		}
	}
	return stats, nil
}

// IngestFile extracts, chunks, embeds, and imports a single PDF.
func (l *Loader) IngestFile(ctx context.Context, path string) (Stats, error) {
	var stats Stats

	pages, err := extractPages(path)
	if err != nil {
		return stats, err
	}
	if len(pages) == 0 {
		slog.Warn("No extractable text in PDF", "path", path)
		return stats, nil
	}

	headingKey := HeadingKey(ExtractHeadings(pages[0]))
	fileTitle := FileTitle(path)

	chunks, err := l.splitter.SplitText(strings.Join(pages, "\n"))
	if err != nil {
		return stats, fmt.Errorf("failed to split text: %w", err)
	}
	if len(chunks) == 0 {
		slog.Warn("No chunks produced after splitting", "path", path)
		return stats, nil
	}
	slog.Info("Split volume into chunks",
		"file_title", fileTitle, "heading_key", headingKey, "chunk_count", len(chunks))

	vectors, err := l.embedChunks(ctx, chunks)
	if err != nil {
		return stats, err
	}

	imported, failed, err := l.importChunks(ctx, chunks, vectors, headingKey, fileTitle)
	if err != nil {
		return stats, err
	}
	stats.ChunksImported = imported
	stats.ChunksFailed = failed
	return stats, nil
}

// embedChunks embeds all chunks in rate-limited batches.
func (l *Loader) embedChunks(ctx context.Context, chunks []string) ([][]float32, error) {
	vectors := make([][]float32, 0, len(chunks))
	for start := 0; start < len(chunks); start += embedBatchSize {
		end := start + embedBatchSize
		if end > len(chunks) {
			end = len(chunks)
		}
		if err := l.limiter.Wait(ctx); err != nil {
			return nil, err
		}
		batch, err := l.embedder.EmbedBatch(ctx, chunks[start:end])
		if err != nil {
			return nil, fmt.Errorf("failed to embed chunk batch: %w", err)
		}
		vectors = append(vectors, batch...)
	}
	if len(vectors) != len(chunks) {
		return nil, fmt.Errorf("embedding provider returned %d vectors for %d chunks",
			len(vectors), len(chunks))
	}
	return vectors, nil
}

// importChunks batch-imports chunk objects and tallies per-item status.
func (l *Loader) importChunks(
	ctx context.Context,
	chunks []string,
	vectors [][]float32,
	headingKey, fileTitle string,
) (int, int, error) {
	objects := make([]*models.Object, len(chunks))
	for i, chunk := range chunks {
		objects[i] = &models.Object{
			Class:  retrieval.ChunkClassName,
			ID:     ChunkID(chunk),
			Vector: vectors[i],
			Properties: map[string]interface{}{
				"content":     chunk,
				"heading_key": headingKey,
				"file_title":  fileTitle,
			},
		}
	}

	resp, err := l.client.Batch().ObjectsBatcher().WithObjects(objects...).Do(ctx)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to save objects to Weaviate: %w", err)
	}

	imported := 0
	failed := 0
	for _, item := range resp {
		if item.Result != nil && item.Result.Status != nil && *item.Result.Status == "SUCCESS" {
			imported++
			continue
		}
		failed++
		if item.Result != nil && item.Result.Errors != nil {
			for _, errItem := range item.Result.Errors.Error {
				slog.Warn("Error in Weaviate batch item",
					"file_title", fileTitle, "error", errItem.Message)
			}
		}
	}
	return imported, failed, nil
}

// ChunkID derives a deterministic object UUID from chunk content.
func ChunkID(chunk string) strfmt.UUID {
	hash := sha256.Sum256([]byte(chunk))
	chunkUUID, _ := uuid.FromBytes(hash[:16])
	return strfmt.UUID(chunkUUID.String())
}

// extractPages returns the plain text of each page that has any.
func extractPages(path string) ([]string, error) {
	f, reader, err := pdf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open PDF: %w", err)
	}
	defer f.Close()

	var pages []string
	for i := 1; i <= reader.NumPage(); i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			slog.Warn("Failed to extract page text", "path", path, "page", i, "error", err)
			continue
		}
		if strings.TrimSpace(text) != "" {
			pages = append(pages, text)
		}
	}
	return pages, nil
}
