// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package datatypes provides data structures for the QA service.
//
// This file contains the request and response types for the public HTTP
// surface (POST /ask, POST /clear_memory) along with the shared Message
// and Passage types the pipeline passes between stages.
package datatypes

import (
	"strings"

	"github.com/go-playground/validator/v10"
)

// =============================================================================
// Constants
// =============================================================================

const (
	// DefaultSessionID is used when the client omits session_id.
	DefaultSessionID = "global"

	// MaxQuestionBytes is the maximum size of a single question.
	// Checks byte length (not rune count) to bound memory per request.
	MaxQuestionBytes = 16 * 1024 // 16KB
)

// Detail levels for answer summarization.
const (
	DetailShort = "short"
	DetailLong  = "long"
)

// =============================================================================
// Shared Validator Instance
// =============================================================================

// qaValidate is the validator instance for QA datatypes.
var qaValidate *validator.Validate

func init() {
	qaValidate = validator.New()
	_ = qaValidate.RegisterValidation("maxbytes", validateMaxBytes)
}

func validateMaxBytes(fl validator.FieldLevel) bool {
	return len(fl.Field().String()) <= MaxQuestionBytes
}

// =============================================================================
// Message Types
// =============================================================================

// Message is a single conversation turn held in session memory.
//
// Role is "user" or "assistant". Content is the raw text of the turn.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// =============================================================================
// Passage Types
// =============================================================================

// Passage is one retrieved chunk of regulation text.
//
// # Fields
//
//   - Content: The chunk body used as evidence for the oracle prompt.
//   - HeadingKey: Pipe-joined heading path of the source document
//     ("Title 40 | Chapter I | Subchapter D").
//   - FileTitle: Stem of the source file the chunk came from.
type Passage struct {
	Content    string `json:"content"`
	HeadingKey string `json:"heading_key"`
	FileTitle  string `json:"file_title"`
}

// =============================================================================
// Ask Request / Response
// =============================================================================

// AskRequest represents the POST /ask request body.
//
// # Description
//
// AskRequest carries one user question plus the session it belongs to and
// whether the caller wants an expanded answer. Session scoping is by opaque
// string key; callers that never send session_id all share the "global"
// session.
//
// # Validation
//
//   - Question: required after whitespace trimming, max 16KB
//   - SessionID: optional, defaulted by EnsureDefaults
//
// # Examples
//
//	req := AskRequest{
//	    SessionID:    "inspector-7",
//	    Question:     "What does 40 CFR 112.7 require?",
//	    WantsDetails: true,
//	}
type AskRequest struct {
	SessionID    string `json:"session_id"`
	Question     string `json:"question" validate:"required,maxbytes"`
	WantsDetails bool   `json:"wants_details"`
}

// Validate validates the AskRequest fields after binding.
func (r *AskRequest) Validate() error {
	return qaValidate.Struct(r)
}

// EnsureDefaults trims the question and fills in the default session ID.
//
// Call before Validate so that a whitespace-only question fails the
// required check.
func (r *AskRequest) EnsureDefaults() {
	r.Question = strings.TrimSpace(r.Question)
	if r.SessionID == "" {
		r.SessionID = DefaultSessionID
	}
}

// DetailLevel maps the wants_details flag onto a summarizer detail level.
func (r *AskRequest) DetailLevel() string {
	if r.WantsDetails {
		return DetailLong
	}
	return DetailShort
}

// AskResponse represents the POST /ask response body.
//
// # Fields
//
//   - Status: "ok" on success, "error" otherwise.
//   - Answer: The final answer text, including the trailing References
//     block when one was produced.
//   - References: Heading keys backing the answer. Empty except on
//     long-detail turns that had evidence.
//   - Details: Expanded text for regulations cited in the answer.
//     Nil unless the caller asked for details and the answer cited at
//     least one regulation.
type AskResponse struct {
	Status     string   `json:"status"`
	Answer     string   `json:"answer"`
	References []string `json:"references"`
	Details    *string  `json:"details,omitempty"`
}

// NewAskResponse creates a success response with an empty references list.
func NewAskResponse(answer string) *AskResponse {
	return &AskResponse{
		Status:     "ok",
		Answer:     answer,
		References: []string{},
	}
}

// =============================================================================
// Clear Memory Request
// =============================================================================

// ClearMemoryRequest represents the POST /clear_memory request body.
type ClearMemoryRequest struct {
	SessionID string `json:"session_id"`
}
