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
	"fmt"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/AleutianAI/EnviroPro/services/qa/datatypes"
	"github.com/AleutianAI/EnviroPro/services/qa/memory"
	"github.com/AleutianAI/EnviroPro/services/qa/observability"
)

// ClearMemory wipes one session's conversational state.
//
// # Status Codes
//
//   - 200: Session existed and was cleared.
//   - 400: No session_id in the request.
//   - 404: No session with that ID.
func ClearMemory(store *memory.Store, metrics *observability.QAMetrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req datatypes.ClearMemoryRequest
		if err := c.BindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"status": "error", "error": "Missing session_id"})
			return
		}
		if req.SessionID == "" {
			c.JSON(http.StatusBadRequest, gin.H{"status": "error", "error": "Missing session_id"})
			return
		}

		if !store.Clear(req.SessionID) {
			c.JSON(http.StatusNotFound, gin.H{
				"status": "error",
				"error":  fmt.Sprintf("No session found with ID '%s'", req.SessionID),
			})
			return
		}

		slog.Info("Cleared session memory", "session_id", req.SessionID)
		metrics.SetActiveSessions(store.Len())
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"message": fmt.Sprintf("Cleared session memory for session ID: %s", req.SessionID),
		})
	}
}
