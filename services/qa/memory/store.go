// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package memory implements the in-process session store.
//
// Sessions hold conversation history, the last question asked, and the
// heading preferences learned from prior answers. The store is the only
// mutable shared state in the service; every operation takes the store
// mutex so request handlers and the TTL sweeper never race.
//
// Sessions do not survive a process restart. That is a deliberate scope
// boundary, not an oversight.
package memory

import (
	"sync"
	"time"

	"github.com/AleutianAI/EnviroPro/services/qa/datatypes"
)

// session is the per-key state. All fields are guarded by Store.mu.
type session struct {
	messages          []datatypes.Message
	lastQuestion      *string
	preferredHeadings []string
	lastUpdated       time.Time
}

// Store is a mutex-guarded map of session ID to session state.
//
// # Description
//
// Store provides get-or-create semantics: reading an unknown ID creates an
// empty session, so handlers never branch on existence except where the
// API contract requires it (clear_memory's 404). Every touch refreshes the
// idle timestamp used by SweepStale.
//
// # Limitations
//
//   - No per-session locking. The single mutex is fine at this scale; the
//     critical sections are map and slice operations only.
type Store struct {
	mu       sync.Mutex
	sessions map[string]*session
	nowFn    func() time.Time
}

// NewStore creates an empty session store.
func NewStore() *Store {
	return &Store{
		sessions: make(map[string]*session),
		nowFn:    time.Now,
	}
}

// getOrCreateLocked returns the session for id, creating it if absent,
// and refreshes its idle timestamp. Caller must hold s.mu.
func (s *Store) getOrCreateLocked(id string) *session {
	sess, ok := s.sessions[id]
	if !ok {
		sess = &session{}
		s.sessions[id] = sess
	}
	sess.lastUpdated = s.nowFn()
	return sess
}

// GetOrCreate returns a copy of the conversation history for id, creating
// an empty session when the ID is unknown.
func (s *Store) GetOrCreate(id string) []datatypes.Message {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess := s.getOrCreateLocked(id)
	out := make([]datatypes.Message, len(sess.messages))
	copy(out, sess.messages)
	return out
}

// Exists reports whether a session with the given ID is currently live.
// It does not create one and does not refresh the idle timestamp.
func (s *Store) Exists(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, ok := s.sessions[id]
	return ok
}

// Clear removes all state for id. Returns false when the ID was unknown.
//
// A cleared session leaves no trace: a later GetOrCreate starts from an
// empty conversation with no heading preferences.
func (s *Store) Clear(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions[id]; !ok {
		return false
	}
	delete(s.sessions, id)
	return true
}

// AppendUser appends a user turn to the session's history.
func (s *Store) AppendUser(id, content string) {
	s.append(id, datatypes.Message{Role: "user", Content: content})
}

// AppendAssistant appends an assistant turn to the session's history.
func (s *Store) AppendAssistant(id, content string) {
	s.append(id, datatypes.Message{Role: "assistant", Content: content})
}

func (s *Store) append(id string, msg datatypes.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess := s.getOrCreateLocked(id)
	sess.messages = append(sess.messages, msg)
}

// SetLastQuestion records the most recent substantive question for id.
func (s *Store) SetLastQuestion(id, question string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess := s.getOrCreateLocked(id)
	q := question
	sess.lastQuestion = &q
}

// LastQuestion returns the most recent substantive question for id, or
// nil when none has been asked yet.
func (s *Store) LastQuestion(id string) *string {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess := s.getOrCreateLocked(id)
	if sess.lastQuestion == nil {
		return nil
	}
	q := *sess.lastQuestion
	return &q
}

// SetPreferredHeadings replaces the session's heading preferences.
//
// Callers only invoke this with a non-empty set; an answer that produced
// no headings leaves the previous preferences in place.
func (s *Store) SetPreferredHeadings(id string, headings []string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess := s.getOrCreateLocked(id)
	sess.preferredHeadings = make([]string, len(headings))
	copy(sess.preferredHeadings, headings)
}

// PreferredHeadings returns a copy of the session's heading preferences.
func (s *Store) PreferredHeadings(id string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess := s.getOrCreateLocked(id)
	out := make([]string, len(sess.preferredHeadings))
	copy(out, sess.preferredHeadings)
	return out
}

// Len returns the number of live sessions.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.sessions)
}

// SweepStale removes every session idle longer than ttl and returns the
// number removed. A session exactly at the boundary is retained.
func (s *Store) SweepStale(ttl time.Duration) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := s.nowFn().Add(-ttl)
	removed := 0
	for id, sess := range s.sessions {
		if sess.lastUpdated.Before(cutoff) {
			delete(s.sessions, id)
			removed++
		}
	}
	return removed
}
