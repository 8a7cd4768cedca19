// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package classifiers implements the intent gate that runs before
// retrieval.
//
// Each classifier inspects the incoming question (and sometimes the
// session) and either claims the turn by returning a Result or passes by
// returning nil. The chain applies them in a fixed order and the first
// claim wins; a question that no classifier claims proceeds to the
// retrieval pipeline.
package classifiers

import (
	"context"
	"fmt"
	"strings"

	"github.com/AleutianAI/EnviroPro/services/qa/datatypes"
)

// Result is a classifier's claimed answer for the turn.
//
// SessionEnded is set by the thanks classifier so the handler can report
// the conversation as closed.
type Result struct {
	Answer       string
	SessionEnded bool
}

// Classifier is one stage of the intent gate.
//
// TryHandle returns (nil, nil) to pass the question to the next stage.
// A non-nil error aborts the request; classifiers that can degrade
// gracefully (the vague gate) recover internally instead of erroring.
type Classifier interface {
	Name() string
	TryHandle(ctx context.Context, sessionID, question string) (*Result, error)
}

// Chain applies classifiers in order; the first non-nil Result wins.
type Chain struct {
	classifiers []Classifier
}

// NewChain builds the standard chain: thanks, small talk, vague, typo.
//
// The order is part of the contract. "thanks" is also a small-talk
// phrase, so the thanks classifier must run first or a plain "thanks"
// would never end the conversation.
func NewChain(classifiers ...Classifier) *Chain {
	return &Chain{classifiers: classifiers}
}

// Run applies the chain. Returns (nil, nil) when no classifier claimed
// the question.
func (c *Chain) Run(ctx context.Context, sessionID, question string) (*Result, string, error) {
	for _, cl := range c.classifiers {
		res, err := cl.TryHandle(ctx, sessionID, question)
		if err != nil {
			return nil, cl.Name(), fmt.Errorf("classifier %s failed: %w", cl.Name(), err)
		}
		if res != nil {
			return res, cl.Name(), nil
		}
	}
	return nil, "", nil
}

// formatTranscript renders session history for an oracle prompt.
// Roles are uppercased, matching the classifier prompts' expectations.
func formatTranscript(messages []datatypes.Message) string {
	var b strings.Builder
	for _, msg := range messages {
		b.WriteString(strings.ToUpper(msg.Role))
		b.WriteString(":\n")
		b.WriteString(msg.Content)
		b.WriteString("\n\n")
	}
	return b.String()
}
