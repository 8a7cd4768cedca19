// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package retrieval

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/AleutianAI/EnviroPro/services/llm"
	"github.com/AleutianAI/EnviroPro/services/qa/datatypes"
	"github.com/AleutianAI/EnviroPro/services/qa/memory"
)

// =============================================================================
// Constants
// =============================================================================

const (
	// InsufficientInfoAnswer is the fixed reply for questions the corpus
	// cannot support.
	InsufficientInfoAnswer = "I don't have enough information to answer that."

	// insufficientInfoMarker detects the oracle volunteering the same
	// admission in its own words. Matched as a substring so trailing
	// punctuation differences do not defeat it.
	insufficientInfoMarker = "I don't have enough information"

	// DefaultTopK is the number of passages retrieved per question.
	DefaultTopK = 3

	// DefaultOracleTimeout bounds a single oracle call. Failures surface
	// to the caller; there are no retries.
	DefaultOracleTimeout = 60 * time.Second
)

const answerSystemPrompt = "You are ChatGPT, a large language model trained by OpenAI. " +
	"Use chain-of-thought reasoning internally, but present a clear final answer. " +
	"When conversation conflicts with retrieved data, favor conversation context or disclaim. " +
	"If doc headings do not match the scenario, disclaim them.\n"

// =============================================================================
// Error Types
// =============================================================================

// OracleError marks a failure of the LLM backend itself, as opposed to a
// local failure. Handlers translate it to 502 at the HTTP boundary.
type OracleError struct {
	Stage string
	Err   error
}

func (e *OracleError) Error() string {
	return fmt.Sprintf("oracle call failed during %s: %v", e.Stage, e.Err)
}

func (e *OracleError) Unwrap() error { return e.Err }

// IsOracleError checks if an error is an OracleError.
func IsOracleError(err error) bool {
	var oracleErr *OracleError
	return errors.As(err, &oracleErr)
}

// =============================================================================
// Engine
// =============================================================================

// Engine runs the retrieval stage of the answer pipeline.
//
// # Description
//
// Retrieve searches the similarity index, re-ranks by the session's
// heading preferences, and asks the oracle for a direct answer grounded
// in the retrieved evidence. The raw evidence and passages are returned
// alongside the answer so the composer can summarize and attribute.
type Engine struct {
	store         *memory.Store
	index         SimilarityIndex
	oracle        llm.LLMClient
	topK          int
	oracleTimeout time.Duration
}

// NewEngine creates a retrieval engine. Non-positive topK or timeout fall
// back to the defaults.
func NewEngine(store *memory.Store, index SimilarityIndex, oracle llm.LLMClient, topK int, oracleTimeout time.Duration) *Engine {
	if topK <= 0 {
		slog.Warn("Invalid topK config, using default", "provided", topK, "default", DefaultTopK)
		topK = DefaultTopK
	}
	if oracleTimeout <= 0 {
		slog.Warn("Invalid oracle timeout config, using default",
			"provided", oracleTimeout, "default", DefaultOracleTimeout)
		oracleTimeout = DefaultOracleTimeout
	}
	return &Engine{
		store:         store,
		index:         index,
		oracle:        oracle,
		topK:          topK,
		oracleTimeout: oracleTimeout,
	}
}

// HasInsufficientInfo reports whether an answer admits it lacks evidence.
func HasInsufficientInfo(answer string) bool {
	return strings.Contains(answer, insufficientInfoMarker)
}

// RerankByHeadings stable-partitions passages so those whose heading key
// is in preferred come first. Relative order within each partition is
// unchanged. When no passage matches, the original slice is returned
// untouched.
func RerankByHeadings(passages []datatypes.Passage, preferred []string) []datatypes.Passage {
	if len(preferred) == 0 || len(passages) == 0 {
		return passages
	}
	preferredSet := make(map[string]struct{}, len(preferred))
	for _, h := range preferred {
		preferredSet[h] = struct{}{}
	}

	var preferredDocs, otherDocs []datatypes.Passage
	for _, p := range passages {
		if _, ok := preferredSet[p.HeadingKey]; ok {
			preferredDocs = append(preferredDocs, p)
		} else {
			otherDocs = append(otherDocs, p)
		}
	}
	if len(preferredDocs) == 0 {
		return passages
	}
	return append(preferredDocs, otherDocs...)
}

// joinEvidence concatenates passage contents in their current order.
func joinEvidence(passages []datatypes.Passage) string {
	parts := make([]string, len(passages))
	for i, p := range passages {
		parts[i] = p.Content
	}
	return strings.Join(parts, "\n")
}

// Retrieve answers a question from the corpus.
//
// # Outputs
//
//   - answer: The oracle's direct answer, or InsufficientInfoAnswer when
//     retrieval produced no usable evidence.
//   - evidence: The concatenated passage contents in final (re-ranked)
//     order. Empty on the insufficient-evidence path.
//   - passages: The retrieved passages in final order, for heading
//     attribution downstream.
//   - error: Non-nil only for index or oracle failures. An empty result
//     set is not an error.
func (e *Engine) Retrieve(ctx context.Context, sessionID, question string) (string, string, []datatypes.Passage, error) {
	ctx, span := tracer.Start(ctx, "Engine.Retrieve")
	defer span.End()
	span.SetAttributes(attribute.String("session.id", sessionID))

	// 1. Pull the nearest passages.
	passages, err := e.index.Search(ctx, question, e.topK)
	if err != nil {
		return "", "", nil, fmt.Errorf("similarity search failed: %w", err)
	}

	evidence := joinEvidence(passages)
	if strings.TrimSpace(evidence) == "" {
		slog.Info("No usable evidence for question", "session_id", sessionID)
		return InsufficientInfoAnswer, evidence, passages, nil
	}

	// 2. Re-rank by the session's heading preferences and rebuild the
	// evidence so the oracle sees passages in the same order.
	preferred := e.store.PreferredHeadings(sessionID)
	reranked := RerankByHeadings(passages, preferred)
	if len(preferred) > 0 {
		evidence = joinEvidence(reranked)
	}

	// 3. Build the combined prompt.
	conversation := e.store.GetOrCreate(sessionID)
	var transcript strings.Builder
	for _, msg := range conversation {
		transcript.WriteString(capitalizeRole(msg.Role))
		transcript.WriteString(": ")
		transcript.WriteString(msg.Content)
		transcript.WriteString("\n")
	}

	prompt := fmt.Sprintf(
		"Conversation History:\n%s\n\nRelevant Data:\n%s\n\nQuestion: %s\n"+
			"Please provide the best possible answer. If the doc headings do not match the conversation context, disclaim or ignore them.",
		transcript.String(), evidence, question,
	)

	// 4. Single oracle call under a bounded timeout.
	oracleCtx, cancel := context.WithTimeout(ctx, e.oracleTimeout)
	defer cancel()

	system := answerSystemPrompt
	temperature := float32(0.1)
	answer, err := e.oracle.Generate(oracleCtx, prompt, llm.GenerationParams{
		System:      &system,
		Temperature: &temperature,
	})
	if err != nil {
		return "", "", nil, &OracleError{Stage: "retrieval answer", Err: err}
	}

	return strings.TrimSpace(answer), evidence, reranked, nil
}

func capitalizeRole(role string) string {
	if role == "" {
		return role
	}
	return strings.ToUpper(role[:1]) + role[1:]
}
