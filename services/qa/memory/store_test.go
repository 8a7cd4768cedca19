// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package memory

import (
	"testing"
	"time"
)

func TestStoreGetOrCreate(t *testing.T) {
	t.Run("creates empty session for unknown ID", func(t *testing.T) {
		store := NewStore()
		msgs := store.GetOrCreate("s1")
		if len(msgs) != 0 {
			t.Errorf("expected empty history, got %d messages", len(msgs))
		}
		if !store.Exists("s1") {
			t.Error("expected session to exist after GetOrCreate")
		}
	})

	t.Run("returned slice is a copy", func(t *testing.T) {
		store := NewStore()
		store.AppendUser("s1", "hello")
		msgs := store.GetOrCreate("s1")
		msgs[0].Content = "mutated"
		again := store.GetOrCreate("s1")
		if again[0].Content != "hello" {
			t.Errorf("store internals were mutated through returned slice: %q", again[0].Content)
		}
	})
}

func TestStoreAppendOrder(t *testing.T) {
	store := NewStore()
	store.AppendUser("s1", "q1")
	store.AppendAssistant("s1", "a1")
	store.AppendUser("s1", "q2")

	msgs := store.GetOrCreate("s1")
	if len(msgs) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(msgs))
	}
	want := []struct{ role, content string }{
		{"user", "q1"},
		{"assistant", "a1"},
		{"user", "q2"},
	}
	for i, w := range want {
		if msgs[i].Role != w.role || msgs[i].Content != w.content {
			t.Errorf("message %d: got {%s %q}, want {%s %q}", i, msgs[i].Role, msgs[i].Content, w.role, w.content)
		}
	}
}

func TestStoreClear(t *testing.T) {
	t.Run("unknown ID returns false", func(t *testing.T) {
		store := NewStore()
		if store.Clear("nope") {
			t.Error("expected Clear of unknown ID to return false")
		}
	})

	t.Run("cleared session leaves no trace", func(t *testing.T) {
		store := NewStore()
		store.AppendUser("s1", "q1")
		store.SetPreferredHeadings("s1", []string{"Title 40"})
		store.SetLastQuestion("s1", "q1")

		if !store.Clear("s1") {
			t.Fatal("expected Clear to return true")
		}
		if store.Exists("s1") {
			t.Error("session still exists after Clear")
		}

		msgs := store.GetOrCreate("s1")
		if len(msgs) != 0 {
			t.Errorf("expected empty history after re-create, got %d", len(msgs))
		}
		if h := store.PreferredHeadings("s1"); len(h) != 0 {
			t.Errorf("expected empty preferences after re-create, got %v", h)
		}
		if q := store.LastQuestion("s1"); q != nil {
			t.Errorf("expected nil last question after re-create, got %q", *q)
		}
	})
}

func TestStorePreferredHeadings(t *testing.T) {
	store := NewStore()
	store.SetPreferredHeadings("s1", []string{"h1", "h2"})

	got := store.PreferredHeadings("s1")
	if len(got) != 2 || got[0] != "h1" || got[1] != "h2" {
		t.Fatalf("unexpected preferences: %v", got)
	}

	// Overwrite semantics, not merge.
	store.SetPreferredHeadings("s1", []string{"h3"})
	got = store.PreferredHeadings("s1")
	if len(got) != 1 || got[0] != "h3" {
		t.Errorf("expected overwrite to [h3], got %v", got)
	}
}

func TestStoreSweepStale(t *testing.T) {
	store := NewStore()
	now := time.Now()
	store.nowFn = func() time.Time { return now }

	store.AppendUser("fresh", "q")
	store.AppendUser("stale", "q")
	store.sessions["fresh"].lastUpdated = now.Add(-59 * time.Minute)
	store.sessions["stale"].lastUpdated = now.Add(-61 * time.Minute)

	removed := store.SweepStale(time.Hour)
	if removed != 1 {
		t.Fatalf("expected 1 removed, got %d", removed)
	}
	if !store.Exists("fresh") {
		t.Error("fresh session was swept")
	}
	if store.Exists("stale") {
		t.Error("stale session survived the sweep")
	}
	if store.Len() != 1 {
		t.Errorf("expected 1 live session, got %d", store.Len())
	}
}
