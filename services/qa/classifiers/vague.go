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
	"log/slog"
	"strings"

	"github.com/AleutianAI/EnviroPro/services/llm"
	"github.com/AleutianAI/EnviroPro/services/qa/datatypes"
	"github.com/AleutianAI/EnviroPro/services/qa/memory"
)

// VagueReply is returned when a question is judged too vague to retrieve
// against. The session is deliberately left untouched so the user can
// simply restate the question with more context.
const VagueReply = "You might need to add more context."

const vagueSystemPrompt = "You are ChatGPT, a large language model trained by OpenAI. Your task is to decide if the user's question is too vague. " +
	"A question is 'vague' if it lacks necessary context or clarity to be answered. Otherwise, it is 'specific'."

// maxGateWordCount bounds the per-message word count for the cheap gate.
// Once any message in the session exceeds it, the conversation has enough
// substance that vagueness detection is skipped entirely.
const maxGateWordCount = 10

// VagueClassifier asks the oracle whether a question is answerable.
//
// The gate keeps oracle cost off established conversations: the
// classification only runs when the conversation is empty or every
// message so far is at most ten words. Misclassification is survivable,
// so any oracle failure or unexpected label degrades to "specific" and
// the question proceeds to retrieval.
type VagueClassifier struct {
	store  *memory.Store
	oracle llm.LLMClient
}

func NewVagueClassifier(store *memory.Store, oracle llm.LLMClient) *VagueClassifier {
	return &VagueClassifier{store: store, oracle: oracle}
}

func (v *VagueClassifier) Name() string { return "vague" }

// canTriggerDetection implements the cheap gate.
func canTriggerDetection(conversation []datatypes.Message) bool {
	for _, msg := range conversation {
		if len(strings.Fields(msg.Content)) > maxGateWordCount {
			return false
		}
	}
	return true
}

func (v *VagueClassifier) TryHandle(ctx context.Context, sessionID, question string) (*Result, error) {
	conversation := v.store.GetOrCreate(sessionID)
	if !canTriggerDetection(conversation) {
		return nil, nil
	}

	prompt := fmt.Sprintf(
		"Conversation so far:\n%s\nNew question: '%s'\n\nRespond with 'vague' or 'specific'.",
		formatTranscript(conversation), question,
	)
	system := vagueSystemPrompt
	temperature := float32(0.0)
	maxTokens := 10
	raw, err := v.oracle.Generate(ctx, prompt, llm.GenerationParams{
		System:      &system,
		Temperature: &temperature,
		MaxTokens:   &maxTokens,
	})
	if err != nil {
		slog.Error("Vagueness classification failed, treating as specific",
			"session_id", sessionID, "error", err)
		return nil, nil
	}

	classification := strings.ToLower(strings.TrimSpace(raw))
	switch classification {
	case "vague":
		return &Result{Answer: VagueReply}, nil
	case "specific":
		return nil, nil
	default:
		slog.Warn("Unexpected vagueness classification, treating as specific",
			"session_id", sessionID, "classification", classification)
		return nil, nil
	}
}
