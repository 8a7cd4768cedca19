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

// smallTalkPhrases is the closed set of greetings the classifier claims.
// Membership is exact after normalization; "hey there buddy" is not small
// talk even though "hey there" is.
var smallTalkPhrases = map[string]struct{}{
	"hello": {}, "hi": {}, "hey": {}, "greetings": {}, "good morning": {},
	"good evening": {}, "good afternoon": {}, "how are you": {},
	"what's up": {}, "nice to meet you": {}, "thank you": {}, "thanks": {},
	"how is it going": {}, "how's it going": {}, "how are you doing": {},
	"yo yo": {}, "awesome": {}, "whats up": {}, "what's new": {}, "yo": {},
	"hey there": {},
}

// asciiPunctuation mirrors the classic punctuation set trimmed from both
// ends before the membership check.
const asciiPunctuation = "!\"#$%&'()*+,-./:;<=>?@[\\]^_`{|}~"

const smallTalkSystemPrompt = "You are a friendly chatbot. Appropriately respond to greeting in no more than 3 words. " +
	"Respond in a short, friendly, and natural way. " +
	"Use a conversational tone and format your answer with short paragraphs or bullets."

// SmallTalkClassifier answers greetings conversationally.
//
// The greeting itself is answered with an oracle call that sees the
// conversation history, but the greeting and the reply are not recorded:
// small talk leaves the session untouched.
type SmallTalkClassifier struct {
	store  *memory.Store
	oracle llm.LLMClient
}

func NewSmallTalkClassifier(store *memory.Store, oracle llm.LLMClient) *SmallTalkClassifier {
	return &SmallTalkClassifier{store: store, oracle: oracle}
}

func (s *SmallTalkClassifier) Name() string { return "small_talk" }

// IsSmallTalk reports whether question is an exact greeting phrase after
// lowercasing and trimming whitespace and punctuation.
func IsSmallTalk(question string) bool {
	normalized := strings.TrimSpace(strings.ToLower(question))
	normalized = strings.Trim(normalized, asciiPunctuation)
	normalized = strings.TrimSpace(normalized)
	_, ok := smallTalkPhrases[normalized]
	return ok
}

func (s *SmallTalkClassifier) TryHandle(ctx context.Context, sessionID, question string) (*Result, error) {
	if !IsSmallTalk(question) {
		return nil, nil
	}

	conversation := s.store.GetOrCreate(sessionID)
	var prompt strings.Builder
	if len(conversation) > 0 {
		prompt.WriteString("Conversation so far:\n")
		prompt.WriteString(formatTranscript(conversation))
	}
	prompt.WriteString(question)

	system := smallTalkSystemPrompt
	temperature := float32(0.8)
	answer, err := s.oracle.Generate(ctx, prompt.String(), llm.GenerationParams{
		System:      &system,
		Temperature: &temperature,
	})
	if err != nil {
		return nil, fmt.Errorf("small talk generation failed: %w", err)
	}
	return &Result{Answer: strings.TrimSpace(answer)}, nil
}
