// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package ttl evicts idle sessions from the store on a schedule.
package ttl

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/AleutianAI/EnviroPro/services/qa/memory"
	"github.com/AleutianAI/EnviroPro/services/qa/observability"
)

// =============================================================================
// Sweeper Configuration
// =============================================================================

// SweeperConfig holds configuration for the stale-session sweeper.
//
// # Fields
//
//   - Interval: How often to sweep. Default: 30 minutes.
//   - SessionTTL: Idle time after which a session is evicted. Default: 1 hour.
type SweeperConfig struct {
	Interval   time.Duration
	SessionTTL time.Duration
}

// DefaultSweeperConfig returns the production cadence: a sweep every
// 30 minutes evicting sessions idle for more than an hour. An expired
// session can therefore linger up to half a sweep interval past its TTL,
// which is acceptable for conversational memory.
func DefaultSweeperConfig() SweeperConfig {
	return SweeperConfig{
		Interval:   30 * time.Minute,
		SessionTTL: 1 * time.Hour,
	}
}

// =============================================================================
// Sweeper Implementation
// =============================================================================

// Sweeper periodically removes idle sessions from the store.
//
// # Description
//
// Uses the ticker + done channel pattern for graceful shutdown. Sweeping
// takes the same store mutex as request handlers, so a sweep and an /ask
// turn for the same session serialize rather than race: a request that
// touches a session mid-sweep either refreshes it before eviction or
// recreates it fresh afterwards.
//
// # Thread Safety
//
// All public methods are thread-safe. A mutex protects the running state.
type Sweeper struct {
	store   *memory.Store
	metrics *observability.QAMetrics
	config  SweeperConfig
	done    chan struct{}
	mu      sync.Mutex
	running bool
}

// NewSweeper creates a sweeper over the given store. metrics may be nil.
func NewSweeper(store *memory.Store, metrics *observability.QAMetrics, config SweeperConfig) *Sweeper {
	defaults := DefaultSweeperConfig()
	if config.Interval <= 0 {
		slog.Warn("Invalid sweep interval, using default",
			"provided", config.Interval, "default", defaults.Interval)
		config.Interval = defaults.Interval
	}
	if config.SessionTTL <= 0 {
		slog.Warn("Invalid session TTL, using default",
			"provided", config.SessionTTL, "default", defaults.SessionTTL)
		config.SessionTTL = defaults.SessionTTL
	}
	return &Sweeper{
		store:   store,
		metrics: metrics,
		config:  config,
		done:    make(chan struct{}),
	}
}

// Start begins the background sweep loop.
//
// Returns an error if the sweeper is already running. The loop stops when
// Stop() is called or the context is cancelled.
func (s *Sweeper) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("sweeper is already running")
	}
	s.running = true
	s.done = make(chan struct{}) // Reset done channel for potential restart
	s.mu.Unlock()

	slog.Info("Stale-session sweeper starting",
		"interval", s.config.Interval.String(),
		"session_ttl", s.config.SessionTTL.String(),
	)

	go s.runLoop(ctx)
	return nil
}

// Stop signals the sweep loop to exit. Safe to call multiple times.
func (s *Sweeper) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return nil // Already stopped
	}

	slog.Info("Stale-session sweeper stopping")
	close(s.done)
	s.running = false
	return nil
}

// RunNow performs an immediate sweep and returns the eviction count.
func (s *Sweeper) RunNow() int {
	return s.sweep()
}

// runLoop runs sweeps at the configured interval until stopped.
func (s *Sweeper) runLoop(ctx context.Context) {
	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("Stale-session sweeper stopped (context cancelled)")
			return
		case <-s.done:
			slog.Info("Stale-session sweeper stopped (stop requested)")
			return
		case <-ticker.C:
			s.sweep()
		}
	}
}

func (s *Sweeper) sweep() int {
	removed := s.store.SweepStale(s.config.SessionTTL)
	if removed > 0 {
		slog.Info("Swept stale sessions", "removed", removed, "remaining", s.store.Len())
	} else {
		slog.Debug("Sweep completed (no stale sessions)")
	}
	s.metrics.RecordSwept(removed)
	s.metrics.SetActiveSessions(s.store.Len())
	return removed
}
