// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package routes registers the QA service's HTTP surface.
package routes

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/AleutianAI/EnviroPro/services/qa/classifiers"
	"github.com/AleutianAI/EnviroPro/services/qa/compose"
	"github.com/AleutianAI/EnviroPro/services/qa/handlers"
	"github.com/AleutianAI/EnviroPro/services/qa/memory"
	"github.com/AleutianAI/EnviroPro/services/qa/observability"
	"github.com/AleutianAI/EnviroPro/services/qa/retrieval"
)

// SetupRoutes wires every endpoint onto the router.
//
// The question and memory endpoints live at the root rather than under a
// versioned group; existing clients depend on the flat paths.
func SetupRoutes(
	router *gin.Engine,
	store *memory.Store,
	chain *classifiers.Chain,
	engine *retrieval.Engine,
	composer *compose.Composer,
	metrics *observability.QAMetrics,
) {
	router.GET("/", handlers.Home())
	router.GET("/health", handlers.Health())
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	router.POST("/ask", handlers.Ask(store, chain, engine, composer, metrics))
	router.POST("/clear_memory", handlers.ClearMemory(store, metrics))
}
