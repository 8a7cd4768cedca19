// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package compose turns a retrieval result into the final answer.
//
// Composition covers yes/no-shape classification, detail-level
// summarization, the References block, heading-preference updates,
// citation extraction, and the optional requery expansion.
package compose

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/AleutianAI/EnviroPro/services/llm"
	"github.com/AleutianAI/EnviroPro/services/qa/citations"
	"github.com/AleutianAI/EnviroPro/services/qa/datatypes"
	"github.com/AleutianAI/EnviroPro/services/qa/memory"
	"github.com/AleutianAI/EnviroPro/services/qa/retrieval"
)

var tracer = otel.Tracer("enviropro.qa.compose")

const summarySystemPrompt = "You are ChatGPT, an expert on US regulations and CFR documents. " +
	"Always provide the **best possible answer** based on the data.\n" +
	"Use **only** the data provided to summarize or elaborate on the question.\n" +
	"Cite CFR references as needed.\n" +
	"If the data doesn't fully address the question, say so.\n"

const yesNoSystemPrompt = "You are ChatGPT, a large language model. Determine if the question can be answered yes/no."

const (
	longStylePrompt = "Use only the relevant data provided. Be direct and factual. " +
		"give a **detailed** explanation. " +
		"Use bullet points or paragraphs for clarity where appropriate." +
		"If the data does not conclusively support either, respond with 'Unable to determine conclusively.' "

	shortYesNoStylePrompt = "If the information provided conclusively supports a 'Yes' or 'No' answer, " +
		"respond with 'Yes' or 'No' (on its own line) followed by a brief explanation. " +
		"Provide a concise (short) summary with 2-3 bullets or a short paragraph. " +
		"If the data does not conclusively support either, respond with 'Unable to determine conclusively.' " +
		"Use bullet points or paragraphs for clarity."

	shortStylePrompt = "Provide a concise (short) summary with 2-3 bullets or a short paragraph. " +
		"If the data does not conclusively support either, respond with 'Unable to determine conclusively.' " +
		"Use bullet points or paragraphs for clarity."
)

// ComposeInput carries the retrieval stage's output into composition.
type ComposeInput struct {
	SessionID   string
	Question    string
	DetailLevel string
	// DirectAnswer is the retrieval engine's answer, inspected for the
	// insufficient-information admission.
	DirectAnswer string
	Evidence     string
	Passages     []datatypes.Passage
}

// ComposeResult is the finished answer.
type ComposeResult struct {
	Answer     string
	References []string
	Details    *string
}

// Composer produces the user-facing answer from retrieval output.
//
// # Thread Safety
//
// Safe for concurrent use; all mutable state lives in the session store.
type Composer struct {
	store         *memory.Store
	oracle        llm.LLMClient
	extractor     *citations.Extractor
	requery       *Requery
	oracleTimeout time.Duration
}

// NewComposer wires a composer. requery may be nil, in which case
// wants-details turns return no expansion.
func NewComposer(store *memory.Store, oracle llm.LLMClient, extractor *citations.Extractor, requery *Requery, oracleTimeout time.Duration) *Composer {
	if oracleTimeout <= 0 {
		oracleTimeout = retrieval.DefaultOracleTimeout
	}
	return &Composer{
		store:         store,
		oracle:        oracle,
		extractor:     extractor,
		requery:       requery,
		oracleTimeout: oracleTimeout,
	}
}

// isYesNoQuestion asks the oracle whether the question has a yes/no shape.
//
// The conservative default applies on any failure or unexpected label:
// not a yes/no question. A wrong "no" costs a slightly longer answer; a
// wrong "yes" invites a bare Yes/No the evidence may not support.
func (c *Composer) isYesNoQuestion(ctx context.Context, question string) bool {
	prompt := fmt.Sprintf(
		"The user asked: '%s'\n\nIf it's a yes/no question, respond 'yesno'. Otherwise respond 'notyesno'.",
		question,
	)
	system := yesNoSystemPrompt
	temperature := float32(0.0)
	maxTokens := 10

	oracleCtx, cancel := context.WithTimeout(ctx, c.oracleTimeout)
	defer cancel()

	raw, err := c.oracle.Generate(oracleCtx, prompt, llm.GenerationParams{
		System:      &system,
		Temperature: &temperature,
		MaxTokens:   &maxTokens,
	})
	if err != nil {
		slog.Error("Failed to classify question as yes/no", "error", err)
		return false
	}
	result := strings.ToLower(strings.TrimSpace(raw))
	if result != "yesno" && result != "notyesno" {
		slog.Warn("Unexpected yes/no classification result", "result", result)
		return false
	}
	return result == "yesno"
}

// summarize produces the detail-level answer from the evidence.
func (c *Composer) summarize(ctx context.Context, evidence, question, detailLevel string) (string, error) {
	yesno := c.isYesNoQuestion(ctx, question)

	var stylePrompt string
	if detailLevel == datatypes.DetailLong {
		stylePrompt = longStylePrompt
	} else if yesno {
		stylePrompt = shortYesNoStylePrompt
	} else {
		stylePrompt = shortStylePrompt
	}

	prompt := fmt.Sprintf(
		"%s\n\n**Question**: %s\n**Relevant Data**:\n%s\n\nBegin your final answer now:",
		stylePrompt, question, evidence,
	)
	system := summarySystemPrompt
	temperature := float32(0.1)

	oracleCtx, cancel := context.WithTimeout(ctx, c.oracleTimeout)
	defer cancel()

	answer, err := c.oracle.Generate(oracleCtx, prompt, llm.GenerationParams{
		System:      &system,
		Temperature: &temperature,
	})
	if err != nil {
		return "", &retrieval.OracleError{Stage: "summarization", Err: err}
	}
	return strings.TrimSpace(answer), nil
}

// collectHeadings returns the distinct heading keys in first-seen passage
// order. Passages without a heading contribute nothing.
func collectHeadings(passages []datatypes.Passage) []string {
	seen := make(map[string]struct{})
	var headings []string
	for _, p := range passages {
		if p.HeadingKey == "" {
			continue
		}
		if _, ok := seen[p.HeadingKey]; ok {
			continue
		}
		seen[p.HeadingKey] = struct{}{}
		headings = append(headings, p.HeadingKey)
	}
	return headings
}

// Compose finishes the turn.
//
// The final answer is always appended to session history, including the
// insufficient-information reply. Heading preferences are overwritten
// only when this turn produced at least one heading; an empty set leaves
// earlier preferences in place.
func (c *Composer) Compose(ctx context.Context, in ComposeInput) (*ComposeResult, error) {
	ctx, span := tracer.Start(ctx, "Composer.Compose")
	defer span.End()
	span.SetAttributes(
		attribute.String("session.id", in.SessionID),
		attribute.String("compose.detail_level", in.DetailLevel),
	)

	// 1. Insufficient evidence short-circuits the summarizer.
	if strings.TrimSpace(in.Evidence) == "" || retrieval.HasInsufficientInfo(in.DirectAnswer) {
		c.store.AppendAssistant(in.SessionID, retrieval.InsufficientInfoAnswer)
		return &ComposeResult{
			Answer:     retrieval.InsufficientInfoAnswer,
			References: []string{},
		}, nil
	}

	// 2. Summarize at the requested detail level.
	answer, err := c.summarize(ctx, in.Evidence, in.Question, in.DetailLevel)
	if err != nil {
		return nil, err
	}

	// 3. Attribute headings and render the References block for long
	// answers.
	headings := collectHeadings(in.Passages)
	references := []string{}
	if in.DetailLevel == datatypes.DetailLong && len(headings) > 0 {
		answer += "\n\nReferences:\n"
		for _, heading := range headings {
			answer += fmt.Sprintf("- %s\n", heading)
		}
		references = headings
	}

	// 4. Remember the headings for re-ranking the next question.
	if len(headings) > 0 {
		c.store.SetPreferredHeadings(in.SessionID, headings)
	}

	c.store.AppendAssistant(in.SessionID, answer)

	// 5. Expand cited regulations when the caller asked for details.
	var details *string
	cited := c.extractor.Extract(answer)
	span.SetAttributes(attribute.Int("compose.citations", len(cited)))
	if in.DetailLevel == datatypes.DetailLong && len(cited) > 0 && c.requery != nil {
		expanded, err := c.requery.Expand(ctx, cited, in.Question)
		if err != nil {
			// Enrichment only. The answer stands without it.
			slog.Error("Requery expansion failed", "session_id", in.SessionID, "error", err)
		} else {
			details = &expanded
		}
	}

	return &ComposeResult{
		Answer:     answer,
		References: references,
		Details:    details,
	}, nil
}
