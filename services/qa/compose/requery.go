// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package compose

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/AleutianAI/EnviroPro/services/llm"
	"github.com/AleutianAI/EnviroPro/services/qa/retrieval"
)

const (
	// requeryTopK is the number of passages fetched per citation. The
	// citation string is a precise query, so a small K suffices.
	requeryTopK = 2

	// requeryUnavailable stands in for a citation whose expansion failed.
	requeryUnavailable = "(details unavailable)"
)

const requerySystemPrompt = "You are ChatGPT, an expert on US regulations and CFR documents. " +
	"Quote or closely paraphrase what the cited regulation says, using only the data provided. " +
	"Keep the explanation tied to the user's question."

// Requery expands the regulations an answer cited.
//
// # Description
//
// For each citation it searches the index for the citation text itself
// and asks the oracle to explain the matched regulation against the
// original question. Citations expand concurrently; output order follows
// citation order regardless of completion order. A single failed
// expansion degrades to a placeholder instead of failing the turn.
type Requery struct {
	index         retrieval.SimilarityIndex
	oracle        llm.LLMClient
	oracleTimeout time.Duration
}

// NewRequery wires a requery expander over the same index and oracle the
// main pipeline uses.
func NewRequery(index retrieval.SimilarityIndex, oracle llm.LLMClient, oracleTimeout time.Duration) *Requery {
	if oracleTimeout <= 0 {
		oracleTimeout = retrieval.DefaultOracleTimeout
	}
	return &Requery{index: index, oracle: oracle, oracleTimeout: oracleTimeout}
}

// Expand returns a details block covering every citation in order.
func (r *Requery) Expand(ctx context.Context, cited []string, question string) (string, error) {
	g, ctx := errgroup.WithContext(ctx)
	sections := make([]string, len(cited))

	for i, citation := range cited {
		g.Go(func() error {
			text, err := r.expandOne(ctx, citation, question)
			if err != nil {
				slog.Warn("Citation expansion failed", "citation", citation, "error", err)
				text = requeryUnavailable
			}
			sections[i] = fmt.Sprintf("### %s\n%s", citation, text)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return "", err
	}

	return "Details for cited regulations:\n\n" + strings.Join(sections, "\n\n"), nil
}

func (r *Requery) expandOne(ctx context.Context, citation, question string) (string, error) {
	passages, err := r.index.Search(ctx, citation, requeryTopK)
	if err != nil {
		return "", fmt.Errorf("search for citation failed: %w", err)
	}

	var evidence strings.Builder
	for _, p := range passages {
		evidence.WriteString(p.Content)
		evidence.WriteString("\n")
	}
	if strings.TrimSpace(evidence.String()) == "" {
		return "", fmt.Errorf("no passages found for citation")
	}

	prompt := fmt.Sprintf(
		"Cited regulation: %s\nUser question: %s\n\nRegulation data:\n%s\n\nExplain what this citation says as it relates to the question.",
		citation, question, evidence.String(),
	)
	system := requerySystemPrompt
	temperature := float32(0.1)

	oracleCtx, cancel := context.WithTimeout(ctx, r.oracleTimeout)
	defer cancel()

	text, err := r.oracle.Generate(oracleCtx, prompt, llm.GenerationParams{
		System:      &system,
		Temperature: &temperature,
	})
	if err != nil {
		return "", fmt.Errorf("expansion generation failed: %w", err)
	}
	return strings.TrimSpace(text), nil
}
