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
	"log/slog"
	"regexp"
	"strings"

	"github.com/AleutianAI/EnviroPro/services/qa/memory"
)

// FarewellMessage is returned when a thanks turn ends the conversation.
const FarewellMessage = "You're welcome! The conversation has ended."

// thanksPattern matches a bare "thanks" with up to four trailing
// punctuation characters. "thanks for the help" does not match and falls
// through to the later stages.
var thanksPattern = regexp.MustCompile(`(?i)^\s*thanks[!?.,]{0,4}\s*$`)

// ThanksClassifier ends the conversation on a bare "thanks".
//
// Matching is deterministic; no oracle call is made. The session is
// cleared so a follow-up question starts from a fresh conversation.
type ThanksClassifier struct {
	store *memory.Store
}

func NewThanksClassifier(store *memory.Store) *ThanksClassifier {
	return &ThanksClassifier{store: store}
}

func (t *ThanksClassifier) Name() string { return "thanks" }

func (t *ThanksClassifier) TryHandle(ctx context.Context, sessionID, question string) (*Result, error) {
	if !thanksPattern.MatchString(strings.TrimSpace(question)) {
		return nil, nil
	}
	t.store.Clear(sessionID)
	slog.Info("Conversation ended by thanks", "session_id", sessionID)
	return &Result{Answer: FarewellMessage, SessionEnded: true}, nil
}
