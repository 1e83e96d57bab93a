package conversation

import (
	"fmt"
	"sync"

	"github.com/querychat/querychat/internal/observability"
)

// Store keys conversation state by session id. The mutex guards the map and
// per-session mutation; serializing whole turns within one session is the
// transport's responsibility.
type Store struct {
	mu       sync.Mutex
	sessions map[string]*State
}

func NewStore() *Store {
	return &Store{sessions: map[string]*State{}}
}

// GetOrCreate returns a snapshot of the session state, creating a fresh
// gathering-phase state from initialQuery for unknown sessions.
func (s *Store) GetOrCreate(sessionID, initialQuery string) State {
	s.mu.Lock()
	defer s.mu.Unlock()

	state, ok := s.sessions[sessionID]
	if !ok {
		state = &State{OriginalQuery: initialQuery}
		s.sessions[sessionID] = state
		observability.SetActiveSessions(len(s.sessions))
	}
	return state.clone()
}

// RecordFollowup appends one assistant question and the user text that
// prompted it, keeping the session in gathering phase.
func (s *Store) RecordFollowup(sessionID, userText, assistantText string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	state, ok := s.sessions[sessionID]
	if !ok {
		return fmt.Errorf("unknown session %q", sessionID)
	}
	if state.Phase() == Resolved {
		return fmt.Errorf("session %q is already resolved", sessionID)
	}
	state.UserFollowups = append(state.UserFollowups, userText)
	state.AssistantFollowups = append(state.AssistantFollowups, assistantText)
	return nil
}

// Resolve transitions the session to resolved phase by attaching the final
// SQL statements. The caller must execute and then Reset.
func (s *Store) Resolve(sessionID string, statements []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	state, ok := s.sessions[sessionID]
	if !ok {
		return fmt.Errorf("unknown session %q", sessionID)
	}
	if state.Phase() == Resolved {
		return fmt.Errorf("session %q is already resolved", sessionID)
	}
	if len(statements) == 0 {
		return fmt.Errorf("at least one statement is required to resolve session %q", sessionID)
	}
	state.PendingSQL = append([]string(nil), statements...)
	return nil
}

// Reopen drops pending SQL after a failed execution, returning the session to
// gathering phase so the user can retry without losing the conversation.
func (s *Store) Reopen(sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if state, ok := s.sessions[sessionID]; ok {
		state.PendingSQL = nil
	}
}

// Reset destroys the session state after successful execution or explicit
// cancellation.
func (s *Store) Reset(sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions[sessionID]; ok {
		delete(s.sessions, sessionID)
		observability.SetActiveSessions(len(s.sessions))
	}
}

// Active reports whether a session has in-progress state.
func (s *Store) Active(sessionID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, ok := s.sessions[sessionID]
	return ok
}
