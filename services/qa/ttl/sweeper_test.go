// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package ttl

import (
	"context"
	"testing"
	"time"

	"github.com/AleutianAI/EnviroPro/services/qa/memory"
)

func TestSweeperDoubleStart(t *testing.T) {
	store := memory.NewStore()
	sweeper := NewSweeper(store, nil, DefaultSweeperConfig())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := sweeper.Start(ctx); err != nil {
		t.Fatalf("first start failed: %v", err)
	}
	defer sweeper.Stop()

	if err := sweeper.Start(ctx); err == nil {
		t.Error("expected second Start to fail while running")
	}
}

func TestSweeperStopIdempotent(t *testing.T) {
	store := memory.NewStore()
	sweeper := NewSweeper(store, nil, DefaultSweeperConfig())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := sweeper.Start(ctx); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	if err := sweeper.Stop(); err != nil {
		t.Fatalf("stop failed: %v", err)
	}
	if err := sweeper.Stop(); err != nil {
		t.Errorf("second stop must be a no-op, got: %v", err)
	}
}

func TestSweeperRestartAfterStop(t *testing.T) {
	store := memory.NewStore()
	sweeper := NewSweeper(store, nil, DefaultSweeperConfig())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := sweeper.Start(ctx); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	if err := sweeper.Stop(); err != nil {
		t.Fatalf("stop failed: %v", err)
	}
	if err := sweeper.Start(ctx); err != nil {
		t.Errorf("restart after stop failed: %v", err)
	}
	_ = sweeper.Stop()
}

func TestSweeperRunNow(t *testing.T) {
	store := memory.NewStore()
	store.AppendUser("stale", "q")
	config := SweeperConfig{
		Interval:   time.Hour,
		SessionTTL: time.Millisecond,
	}
	sweeper := NewSweeper(store, nil, config)

	time.Sleep(10 * time.Millisecond)
	removed := sweeper.RunNow()
	if removed != 1 {
		t.Fatalf("expected 1 session removed, got %d", removed)
	}
	if store.Exists("stale") {
		t.Error("stale session survived RunNow")
	}
}

func TestSweeperConfigDefaults(t *testing.T) {
	sweeper := NewSweeper(memory.NewStore(), nil, SweeperConfig{})
	defaults := DefaultSweeperConfig()
	if sweeper.config.Interval != defaults.Interval {
		t.Errorf("interval: got %v, want %v", sweeper.config.Interval, defaults.Interval)
	}
	if sweeper.config.SessionTTL != defaults.SessionTTL {
		t.Errorf("ttl: got %v, want %v", sweeper.config.SessionTTL, defaults.SessionTTL)
	}
}
