// Package session keeps bounded per-conversation history. The orchestrator
// depends on the Store interface only, so the in-memory implementation can be
// swapped for a durable one without touching callers.
package session

import "sync"

// Turn is one question/answer exchange.
type Turn struct {
	Question string
	Answer   string
}

// Store is per-conversation history keyed by a caller-supplied session id.
// Sessions are created lazily; operations on different ids never interfere.
type Store interface {
	// Append records a completed turn.
	Append(sessionID, question, answer string)

	// History returns the retained turns, oldest first, most recent last.
	// At most the configured window of turns is returned.
	History(sessionID string) []Turn

	// Clear forgets a session.
	Clear(sessionID string)
}

// MemoryStore is an in-process Store. History lives for the process lifetime
// only. Each session keeps at most window turns; older turns are dropped on
// append, which is the prompt-size/cost trade documented in the config
// (history_turns, default 3 turns = 6 messages).
type MemoryStore struct {
	mu       sync.Mutex
	window   int
	sessions map[string][]Turn
}

// NewMemoryStore creates a store retaining at most window turns per session.
func NewMemoryStore(window int) *MemoryStore {
	if window <= 0 {
		window = 3
	}
	return &MemoryStore{
		window:   window,
		sessions: make(map[string][]Turn),
	}
}

// Append records a turn, trimming the session to the window.
func (s *MemoryStore) Append(sessionID, question, answer string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	turns := append(s.sessions[sessionID], Turn{Question: question, Answer: answer})
	if len(turns) > s.window {
		turns = turns[len(turns)-s.window:]
	}
	s.sessions[sessionID] = turns
}

// History returns a copy of the retained turns, most recent last.
func (s *MemoryStore) History(sessionID string) []Turn {
	s.mu.Lock()
	defer s.mu.Unlock()
	turns := s.sessions[sessionID]
	out := make([]Turn, len(turns))
	copy(out, turns)
	return out
}

// Clear forgets a session.
func (s *MemoryStore) Clear(sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, sessionID)
}

var _ Store = (*MemoryStore)(nil)
