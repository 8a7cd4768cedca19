// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/EnviroPro/services/llm"
	"github.com/AleutianAI/EnviroPro/services/qa/citations"
	"github.com/AleutianAI/EnviroPro/services/qa/classifiers"
	"github.com/AleutianAI/EnviroPro/services/qa/compose"
	"github.com/AleutianAI/EnviroPro/services/qa/datatypes"
	"github.com/AleutianAI/EnviroPro/services/qa/memory"
	"github.com/AleutianAI/EnviroPro/services/qa/retrieval"
)

type MockLLMClient struct {
	mu        sync.Mutex
	Responses []string
	Err       error
	CallCount int
}

func (m *MockLLMClient) Generate(ctx context.Context, prompt string, params llm.GenerationParams) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.CallCount++
	if m.Err != nil {
		return "", m.Err
	}
	if len(m.Responses) == 0 {
		return "", errors.New("mock exhausted")
	}
	resp := m.Responses[0]
	m.Responses = m.Responses[1:]
	return resp, nil
}

type MockIndex struct {
	Passages []datatypes.Passage
	Err      error
}

func (m *MockIndex) Search(ctx context.Context, query string, topK int) ([]datatypes.Passage, error) {
	if m.Err != nil {
		return nil, m.Err
	}
	return m.Passages, nil
}

type testEnv struct {
	router *gin.Engine
	store  *memory.Store
}

func newTestEnv(t *testing.T, oracle llm.LLMClient, index retrieval.SimilarityIndex) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store := memory.NewStore()
	chain := classifiers.NewChain(
		classifiers.NewThanksClassifier(store),
		classifiers.NewSmallTalkClassifier(store, oracle),
		classifiers.NewVagueClassifier(store, oracle),
		classifiers.NewTypoClassifier(store, oracle),
	)
	engine := retrieval.NewEngine(store, index, oracle, 3, 0)
	extractor, err := citations.NewExtractor()
	require.NoError(t, err)
	composer := compose.NewComposer(store, oracle, extractor, compose.NewRequery(index, oracle, 0), 0)

	router := gin.New()
	router.GET("/", Home())
	router.GET("/health", Health())
	router.POST("/ask", Ask(store, chain, engine, composer, nil))
	router.POST("/clear_memory", ClearMemory(store, nil))
	return &testEnv{router: router, store: store}
}

func (e *testEnv) post(t *testing.T, path string, body map[string]interface{}) *httptest.ResponseRecorder {
	t.Helper()
	payload, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body
}

func TestAskEmptyQuestion(t *testing.T) {
	tests := []struct {
		name string
		body map[string]interface{}
	}{
		{"missing question", map[string]interface{}{"session_id": "s1"}},
		{"whitespace question", map[string]interface{}{"session_id": "s1", "question": "   \n\t "}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, &MockLLMClient{}, &MockIndex{})

			w := env.post(t, "/ask", tt.body)
			assert.Equal(t, http.StatusBadRequest, w.Code)
			body := decodeBody(t, w)
			assert.Equal(t, "error", body["status"])
			assert.Equal(t, "No question provided.", body["error"])
			assert.False(t, env.store.Exists("s1"), "rejected request must not create the session")
		})
	}
}

func TestAskDefaultsSessionToGlobal(t *testing.T) {
	oracle := &MockLLMClient{Responses: []string{"specific", "direct answer", "notyesno", "An answer."}}
	index := &MockIndex{Passages: []datatypes.Passage{{Content: "evidence", HeadingKey: "h1"}}}
	env := newTestEnv(t, oracle, index)

	w := env.post(t, "/ask", map[string]interface{}{"question": "what does 40 CFR Part 112 cover?"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, env.store.Exists("global"))
}

func TestAskThanksEndsSession(t *testing.T) {
	oracle := &MockLLMClient{Responses: []string{"specific", "direct answer", "notyesno", "An answer."}}
	index := &MockIndex{Passages: []datatypes.Passage{{Content: "evidence", HeadingKey: "h1"}}}
	env := newTestEnv(t, oracle, index)

	// Establish a session first.
	w := env.post(t, "/ask", map[string]interface{}{
		"session_id": "s1",
		"question":   "what does 40 CFR Part 112 cover at a facility?",
	})
	require.Equal(t, http.StatusOK, w.Code)
	require.True(t, env.store.Exists("s1"))

	// End it with thanks.
	w = env.post(t, "/ask", map[string]interface{}{"session_id": "s1", "question": "thanks"})
	require.Equal(t, http.StatusOK, w.Code)
	body := decodeBody(t, w)
	assert.Equal(t, "You're welcome! The conversation has ended.", body["answer"])

	// The cleared session must 404 on clear_memory.
	w = env.post(t, "/clear_memory", map[string]interface{}{"session_id": "s1"})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestAskRetrievalAnswer(t *testing.T) {
	t.Run("short answer has empty references", func(t *testing.T) {
		oracle := &MockLLMClient{Responses: []string{
			"specific",      // vague gate
			"direct answer", // retrieval
			"notyesno",      // yes/no shape
			"Short summary.",
		}}
		index := &MockIndex{Passages: []datatypes.Passage{{Content: "evidence", HeadingKey: "Title 40 | Chapter I"}}}
		env := newTestEnv(t, oracle, index)

		w := env.post(t, "/ask", map[string]interface{}{
			"session_id": "s1",
			"question":   "what does 40 CFR Part 112 cover at my facility site?",
		})
		require.Equal(t, http.StatusOK, w.Code)
		body := decodeBody(t, w)
		assert.Equal(t, "ok", body["status"])
		assert.Equal(t, "Short summary.", body["answer"])
		assert.Equal(t, []interface{}{}, body["references"])
		_, hasDetails := body["details"]
		assert.False(t, hasDetails, "details omitted when nil")
	})

	t.Run("long answer carries references", func(t *testing.T) {
		oracle := &MockLLMClient{Responses: []string{
			"specific",
			"direct answer",
			"notyesno",
			"Detailed summary.",
		}}
		index := &MockIndex{Passages: []datatypes.Passage{{Content: "evidence", HeadingKey: "Title 40 | Chapter I"}}}
		env := newTestEnv(t, oracle, index)

		w := env.post(t, "/ask", map[string]interface{}{
			"session_id":    "s1",
			"question":      "what does 40 CFR Part 112 cover at my facility site?",
			"wants_details": true,
		})
		require.Equal(t, http.StatusOK, w.Code)
		body := decodeBody(t, w)
		assert.Equal(t, []interface{}{"Title 40 | Chapter I"}, body["references"])
		assert.Contains(t, body["answer"], "\n\nReferences:\n- Title 40 | Chapter I\n")
	})
}

func TestAskInsufficientEvidence(t *testing.T) {
	oracle := &MockLLMClient{Responses: []string{"specific"}}
	env := newTestEnv(t, oracle, &MockIndex{})

	w := env.post(t, "/ask", map[string]interface{}{
		"session_id": "s1",
		"question":   "what does an unrelated statute say about maritime law here?",
	})
	require.Equal(t, http.StatusOK, w.Code)
	body := decodeBody(t, w)
	assert.Equal(t, "I don't have enough information to answer that.", body["answer"])
}

func TestAskOracleDown(t *testing.T) {
	// The vague gate swallows the first failure, retrieval does not.
	oracle := &MockLLMClient{Err: errors.New("connection refused")}
	index := &MockIndex{Passages: []datatypes.Passage{{Content: "evidence", HeadingKey: "h1"}}}
	env := newTestEnv(t, oracle, index)

	w := env.post(t, "/ask", map[string]interface{}{
		"session_id": "s1",
		"question":   "what does 40 CFR Part 112 cover at my facility site?",
	})
	assert.Equal(t, http.StatusBadGateway, w.Code)
	body := decodeBody(t, w)
	assert.Equal(t, "error", body["status"])
}

func TestClearMemory(t *testing.T) {
	t.Run("missing session_id", func(t *testing.T) {
		env := newTestEnv(t, &MockLLMClient{}, &MockIndex{})
		w := env.post(t, "/clear_memory", map[string]interface{}{})
		assert.Equal(t, http.StatusBadRequest, w.Code)
		body := decodeBody(t, w)
		assert.Equal(t, "Missing session_id", body["error"])
	})

	t.Run("unknown session", func(t *testing.T) {
		env := newTestEnv(t, &MockLLMClient{}, &MockIndex{})
		w := env.post(t, "/clear_memory", map[string]interface{}{"session_id": "ghost"})
		assert.Equal(t, http.StatusNotFound, w.Code)
		body := decodeBody(t, w)
		assert.Equal(t, "No session found with ID 'ghost'", body["error"])
	})

	t.Run("existing session cleared", func(t *testing.T) {
		env := newTestEnv(t, &MockLLMClient{}, &MockIndex{})
		env.store.AppendUser("s1", "q")

		w := env.post(t, "/clear_memory", map[string]interface{}{"session_id": "s1"})
		require.Equal(t, http.StatusOK, w.Code)
		body := decodeBody(t, w)
		assert.Equal(t, "ok", body["status"])
		assert.Equal(t, "Cleared session memory for session ID: s1", body["message"])
		assert.False(t, env.store.Exists("s1"))
	})
}

func TestHomeBanner(t *testing.T) {
	env := newTestEnv(t, &MockLLMClient{}, &MockIndex{})
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Type"), "text/plain")
	assert.Contains(t, w.Body.String(), "/ask")
	assert.Contains(t, w.Body.String(), "/clear_memory")
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t, &MockLLMClient{}, &MockIndex{})
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
}
