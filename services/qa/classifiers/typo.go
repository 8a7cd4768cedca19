// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package classifiers

import (
	"context"
	"fmt"
	"strings"

	"github.com/AleutianAI/EnviroPro/services/llm"
	"github.com/AleutianAI/EnviroPro/services/qa/memory"
)

// typoTriggers claim the turn when any of them appears anywhere in the
// lowercased question. Substring match, not exact: "please fix my text
// below" triggers.
var typoTriggers = []string{
	"correct my text",
	"typo correction",
	"spell check",
	"please correct any errors",
	"fix my text",
	"correct my sentence",
	"fix my grammar",
	"proofread",
	"proof read",
}

const typoSystemPrompt = "You are ChatGPT, a large language model with excellent grammar/spelling skills. " +
	"Correct any typos or minor grammatical errors in the user's question without changing its meaning. " +
	"Return only the corrected text."

// TypoClassifier handles explicit correction requests.
//
// Unlike the other classifiers this one records the exchange: the request
// and the corrected text both land in session history, so a follow-up
// question can refer back to the corrected text.
type TypoClassifier struct {
	store  *memory.Store
	oracle llm.LLMClient
}

func NewTypoClassifier(store *memory.Store, oracle llm.LLMClient) *TypoClassifier {
	return &TypoClassifier{store: store, oracle: oracle}
}

func (t *TypoClassifier) Name() string { return "typo_correction" }

// IsTypoRequest reports whether the question contains a correction trigger.
func IsTypoRequest(question string) bool {
	lower := strings.ToLower(question)
	for _, trigger := range typoTriggers {
		if strings.Contains(lower, trigger) {
			return true
		}
	}
	return false
}

func (t *TypoClassifier) TryHandle(ctx context.Context, sessionID, question string) (*Result, error) {
	if !IsTypoRequest(question) {
		return nil, nil
	}

	t.store.AppendUser(sessionID, question)

	system := typoSystemPrompt
	temperature := float32(0.0)
	maxTokens := 100
	corrected, err := t.oracle.Generate(ctx, question, llm.GenerationParams{
		System:      &system,
		Temperature: &temperature,
		MaxTokens:   &maxTokens,
	})
	if err != nil {
		return nil, fmt.Errorf("typo correction failed: %w", err)
	}

	answer := fmt.Sprintf("Here is your corrected text:\n\n%s", strings.TrimSpace(corrected))
	t.store.AppendAssistant(sessionID, answer)
	return &Result{Answer: answer}, nil
}
