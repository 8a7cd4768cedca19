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
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/EnviroPro/services/llm"
	"github.com/AleutianAI/EnviroPro/services/qa/memory"
)

// MockLLMClient implements llm.LLMClient for tests.
type MockLLMClient struct {
	Response   string
	Err        error
	CallCount  int
	LastPrompt string
	LastParams llm.GenerationParams
}

func (m *MockLLMClient) Generate(ctx context.Context, prompt string, params llm.GenerationParams) (string, error) {
	m.CallCount++
	m.LastPrompt = prompt
	m.LastParams = params
	if m.Err != nil {
		return "", m.Err
	}
	return m.Response, nil
}

func newTestChain(store *memory.Store, oracle llm.LLMClient) *Chain {
	return NewChain(
		NewThanksClassifier(store),
		NewSmallTalkClassifier(store, oracle),
		NewVagueClassifier(store, oracle),
		NewTypoClassifier(store, oracle),
	)
}

func TestThanksClassifier(t *testing.T) {
	tests := []struct {
		input string
		match bool
	}{
		{"thanks", true},
		{"Thanks!", true},
		{"  THANKS?!., ", true},
		{"thanks!!!!", true},
		{"thanks for the help", false},
		{"thanksgiving", false},
		{"thank you", false},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			store := memory.NewStore()
			store.AppendUser("s1", "earlier question")
			cl := NewThanksClassifier(store)

			res, err := cl.TryHandle(context.Background(), "s1", tt.input)
			require.NoError(t, err)
			if !tt.match {
				assert.Nil(t, res)
				assert.True(t, store.Exists("s1"), "non-match must not clear the session")
				return
			}
			require.NotNil(t, res)
			assert.Equal(t, FarewellMessage, res.Answer)
			assert.True(t, res.SessionEnded)
			assert.False(t, store.Exists("s1"), "thanks must clear the session")
		})
	}
}

func TestThanksIdempotent(t *testing.T) {
	store := memory.NewStore()
	cl := NewThanksClassifier(store)

	for i := 0; i < 2; i++ {
		res, err := cl.TryHandle(context.Background(), "s1", "thanks")
		require.NoError(t, err)
		require.NotNil(t, res)
		assert.Equal(t, FarewellMessage, res.Answer)
	}
}

func TestIsSmallTalk(t *testing.T) {
	tests := []struct {
		input string
		want  bool
	}{
		{"Hey!", true},
		{"  good morning.  ", true},
		{"WHAT'S UP", true},
		{"yo", true},
		{"hey there buddy", false},
		{"hello, what does 40 CFR 112 cover", false},
		{"", false},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.want, IsSmallTalk(tt.input))
		})
	}
}

func TestSmallTalkDoesNotTouchSession(t *testing.T) {
	store := memory.NewStore()
	store.AppendUser("s1", "prior")
	oracle := &MockLLMClient{Response: "Hi there!"}
	cl := NewSmallTalkClassifier(store, oracle)

	res, err := cl.TryHandle(context.Background(), "s1", "hello")
	require.NoError(t, err)
	require.NotNil(t, res)
	assert.Equal(t, "Hi there!", res.Answer)
	assert.Equal(t, 1, oracle.CallCount)

	msgs := store.GetOrCreate("s1")
	assert.Len(t, msgs, 1, "small talk must not be recorded in history")
}

func TestSmallTalkOracleFailure(t *testing.T) {
	store := memory.NewStore()
	oracle := &MockLLMClient{Err: errors.New("upstream down")}
	cl := NewSmallTalkClassifier(store, oracle)

	res, err := cl.TryHandle(context.Background(), "s1", "hello")
	assert.Nil(t, res)
	assert.Error(t, err)
}

func TestVagueClassifier(t *testing.T) {
	t.Run("empty conversation triggers detection", func(t *testing.T) {
		store := memory.NewStore()
		oracle := &MockLLMClient{Response: "vague"}
		cl := NewVagueClassifier(store, oracle)

		res, err := cl.TryHandle(context.Background(), "s1", "what about it?")
		require.NoError(t, err)
		require.NotNil(t, res)
		assert.Equal(t, VagueReply, res.Answer)
		assert.Equal(t, 1, oracle.CallCount)
	})

	t.Run("long message in history disables the gate", func(t *testing.T) {
		store := memory.NewStore()
		store.AppendUser("s1", "this earlier question has well over ten words in it so the gate is off")
		oracle := &MockLLMClient{Response: "vague"}
		cl := NewVagueClassifier(store, oracle)

		res, err := cl.TryHandle(context.Background(), "s1", "what about it?")
		require.NoError(t, err)
		assert.Nil(t, res)
		assert.Equal(t, 0, oracle.CallCount, "gated conversation must not call the oracle")
	})

	t.Run("specific passes through", func(t *testing.T) {
		store := memory.NewStore()
		oracle := &MockLLMClient{Response: "Specific"}
		cl := NewVagueClassifier(store, oracle)

		res, err := cl.TryHandle(context.Background(), "s1", "what does 40 CFR 112.7 require?")
		require.NoError(t, err)
		assert.Nil(t, res)
	})

	t.Run("oracle failure degrades to specific", func(t *testing.T) {
		store := memory.NewStore()
		oracle := &MockLLMClient{Err: errors.New("timeout")}
		cl := NewVagueClassifier(store, oracle)

		res, err := cl.TryHandle(context.Background(), "s1", "hmm?")
		require.NoError(t, err)
		assert.Nil(t, res)
	})

	t.Run("unexpected label degrades to specific", func(t *testing.T) {
		store := memory.NewStore()
		oracle := &MockLLMClient{Response: "maybe"}
		cl := NewVagueClassifier(store, oracle)

		res, err := cl.TryHandle(context.Background(), "s1", "hmm?")
		require.NoError(t, err)
		assert.Nil(t, res)
	})
}

func TestTypoClassifier(t *testing.T) {
	t.Run("trigger is substring matched", func(t *testing.T) {
		assert.True(t, IsTypoRequest("Please FIX MY TEXT below: teh quick fox"))
		assert.True(t, IsTypoRequest("can you proofread this"))
		assert.False(t, IsTypoRequest("what does the regulation say"))
	})

	t.Run("records both turns", func(t *testing.T) {
		store := memory.NewStore()
		oracle := &MockLLMClient{Response: "the quick fox"}
		cl := NewTypoClassifier(store, oracle)

		res, err := cl.TryHandle(context.Background(), "s1", "fix my text: teh quick fox")
		require.NoError(t, err)
		require.NotNil(t, res)
		assert.Equal(t, "Here is your corrected text:\n\nthe quick fox", res.Answer)

		msgs := store.GetOrCreate("s1")
		require.Len(t, msgs, 2)
		assert.Equal(t, "user", msgs[0].Role)
		assert.Equal(t, "assistant", msgs[1].Role)
		assert.True(t, strings.HasPrefix(msgs[1].Content, "Here is your corrected text:"))
	})
}

func TestChainOrdering(t *testing.T) {
	t.Run("thanks wins over small talk", func(t *testing.T) {
		store := memory.NewStore()
		oracle := &MockLLMClient{Response: "should not be used"}
		chain := newTestChain(store, oracle)

		// "thanks" is in the small-talk phrase list too; the thanks
		// classifier must claim it first and end the session.
		res, name, err := chain.Run(context.Background(), "s1", "thanks")
		require.NoError(t, err)
		require.NotNil(t, res)
		assert.Equal(t, "thanks", name)
		assert.True(t, res.SessionEnded)
		assert.Equal(t, 0, oracle.CallCount)
	})

	t.Run("no classifier claims a substantive question", func(t *testing.T) {
		store := memory.NewStore()
		oracle := &MockLLMClient{Response: "specific"}
		chain := newTestChain(store, oracle)

		res, name, err := chain.Run(context.Background(), "s1", "what does 40 CFR 112.7 require of facilities?")
		require.NoError(t, err)
		assert.Nil(t, res)
		assert.Empty(t, name)
	})
}
