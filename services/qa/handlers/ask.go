// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package handlers contains the gin handlers for the QA service.
package handlers

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/AleutianAI/EnviroPro/services/qa/classifiers"
	"github.com/AleutianAI/EnviroPro/services/qa/compose"
	"github.com/AleutianAI/EnviroPro/services/qa/datatypes"
	"github.com/AleutianAI/EnviroPro/services/qa/memory"
	"github.com/AleutianAI/EnviroPro/services/qa/observability"
	"github.com/AleutianAI/EnviroPro/services/qa/retrieval"
)

// Ask answers one question within a session.
//
// # Description
//
// The turn runs the intent chain first; a claimed turn (thanks, small
// talk, vague, typo correction) short-circuits retrieval entirely. A
// substantive question is recorded, retrieved against, and composed into
// the final answer.
//
// # Status Codes
//
//   - 200: Answer produced (including the insufficient-information reply).
//   - 400: Malformed body, empty question, or oversized question.
//   - 502: The LLM backend failed.
//   - 500: Any other pipeline failure.
func Ask(store *memory.Store, chain *classifiers.Chain, engine *retrieval.Engine, composer *compose.Composer, metrics *observability.QAMetrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req datatypes.AskRequest
		if err := c.BindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"status": "error", "error": "Invalid request body"})
			return
		}
		req.EnsureDefaults()
		if req.Question == "" {
			c.JSON(http.StatusBadRequest, gin.H{"status": "error", "error": "No question provided."})
			return
		}
		if err := req.Validate(); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"status": "error", "error": "Invalid question: " + err.Error()})
			return
		}

		ctx := c.Request.Context()
		start := time.Now()

		// 1. Intent gate.
		claimed, intent, err := chain.Run(ctx, req.SessionID, req.Question)
		if err != nil {
			// Chain errors are oracle failures by construction.
			slog.Error("Intent classification failed", "session_id", req.SessionID, "intent", intent, "error", err)
			metrics.RecordOracleError(intent)
			metrics.RecordOutcome("error")
			c.JSON(http.StatusBadGateway, gin.H{"status": "error", "error": "The language model backend is unavailable."})
			return
		}
		if claimed != nil {
			metrics.RecordOutcome(intent)
			metrics.SetActiveSessions(store.Len())
			c.JSON(http.StatusOK, datatypes.NewAskResponse(claimed.Answer))
			return
		}

		// 2. Substantive question: record it, then retrieve.
		store.AppendUser(req.SessionID, req.Question)
		store.SetLastQuestion(req.SessionID, req.Question)

		directAnswer, evidence, passages, err := engine.Retrieve(ctx, req.SessionID, req.Question)
		if err != nil {
			respondPipelineError(c, metrics, req.SessionID, "retrieval", err)
			return
		}

		// 3. Compose the final answer.
		result, err := composer.Compose(ctx, compose.ComposeInput{
			SessionID:    req.SessionID,
			Question:     req.Question,
			DetailLevel:  req.DetailLevel(),
			DirectAnswer: directAnswer,
			Evidence:     evidence,
			Passages:     passages,
		})
		if err != nil {
			respondPipelineError(c, metrics, req.SessionID, "summarization", err)
			return
		}

		outcome := "retrieval"
		if result.Answer == retrieval.InsufficientInfoAnswer {
			outcome = "insufficient_evidence"
		}
		metrics.RecordOutcome(outcome)
		metrics.RecordAnswerDuration(req.DetailLevel(), time.Since(start).Seconds())
		metrics.SetActiveSessions(store.Len())

		resp := datatypes.NewAskResponse(result.Answer)
		resp.References = result.References
		resp.Details = result.Details
		c.JSON(http.StatusOK, resp)
	}
}

// respondPipelineError translates pipeline failures at the HTTP boundary:
// oracle failures become 502, everything else 500. Internal detail stays
// in the logs, not the response body.
func respondPipelineError(c *gin.Context, metrics *observability.QAMetrics, sessionID, stage string, err error) {
	slog.Error("Answer pipeline failed", "session_id", sessionID, "stage", stage, "error", err)
	metrics.RecordOutcome("error")
	if retrieval.IsOracleError(err) {
		metrics.RecordOracleError(stage)
		c.JSON(http.StatusBadGateway, gin.H{"status": "error", "error": "The language model backend is unavailable."})
		return
	}
	c.JSON(http.StatusInternalServerError, gin.H{"status": "error", "error": "Failed to answer the question."})
}
