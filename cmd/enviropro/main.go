// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Command enviropro starts the EnviroPro QA HTTP server.
//
// This is the main entry point for the containerized QA service. It
// reads configuration from environment variables and starts the server.
//
// # Environment Variables
//
//   - ENVIROPRO_PORT: HTTP server port (default: 6000)
//   - LLM_BACKEND_TYPE: LLM provider - openai, ollama (default: openai)
//   - WEAVIATE_SERVICE_URL: Weaviate vector DB URL (required)
//   - OTEL_EXPORTER_OTLP_ENDPOINT: OpenTelemetry collector (default: enviropro-otel-collector:4317)
//   - ENABLE_METRICS: Expose Prometheus metrics (default: true)
//   - GIN_MODE: Gin framework mode (default: release)
//   - RETRIEVAL_TOP_K: Passages retrieved per question (default: 3)
//   - ORACLE_TIMEOUT: Per-call LLM timeout (default: 60s)
//   - SESSION_SWEEP_INTERVAL: Stale-session sweep cadence (default: 30m)
//   - SESSION_TTL: Idle session lifetime (default: 1h)
//
// # Usage
//
//	# Build
//	go build -o enviropro ./cmd/enviropro
//
//	# Run
//	./enviropro
//
//	# Or via container
//	podman-compose up enviropro
package main

import (
	"log"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/AleutianAI/EnviroPro/services/qa"
)

func main() {
	// Setup structured logging
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	// Build configuration from environment variables
	cfg := qa.Config{
		Port:          getEnvInt("ENVIROPRO_PORT", 6000),
		LLMBackend:    getEnvString("LLM_BACKEND_TYPE", "openai"),
		WeaviateURL:   os.Getenv("WEAVIATE_SERVICE_URL"),
		OTelEndpoint:  getEnvString("OTEL_EXPORTER_OTLP_ENDPOINT", "enviropro-otel-collector:4317"),
		EnableMetrics: getEnvBool("ENABLE_METRICS", true),
		GinMode:       getEnvString("GIN_MODE", "release"),
		TopK:          getEnvInt("RETRIEVAL_TOP_K", 0),
		OracleTimeout: getEnvDuration("ORACLE_TIMEOUT", 0),
		SweepInterval: getEnvDuration("SESSION_SWEEP_INTERVAL", 0),
		SessionTTL:    getEnvDuration("SESSION_TTL", 0),
	}

	slog.Info("Starting EnviroPro QA service",
		"port", cfg.Port,
		"llm_backend", cfg.LLMBackend,
		"weaviate_url", cfg.WeaviateURL,
	)

	svc, err := qa.New(cfg)
	if err != nil {
		log.Fatalf("Failed to create QA service: %v", err)
	}

	// Run the server (blocks until shutdown)
	if err := svc.Run(); err != nil {
		log.Fatalf("QA service error: %v", err)
	}
}

// getEnvString returns the environment variable value or a default.
func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt returns the environment variable as int or a default.
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvBool returns the environment variable as bool or a default.
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

// getEnvDuration returns the environment variable as a duration or a default.
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
		slog.Warn("Invalid duration, using default", "key", key, "value", value)
	}
	return defaultValue
}
