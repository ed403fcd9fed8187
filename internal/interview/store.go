package interview

import "context"

// Store persists sessions with their exchanges and history.
//
// Update is conditional: it succeeds only if the stored session still has
// s.Version, and on success the stored version becomes s.Version+1. A
// mismatch returns [ErrConflict]. Stores hand out copies; mutating a
// returned session never affects stored state.
type Store interface {
	// Create stores a new session at version 0.
	Create(ctx context.Context, s *Session) error

	// Get returns the session with all exchanges and history, or
	// [ErrSessionNotFound].
	Get(ctx context.Context, id string) (*Session, error)

	// List returns the sessions of userID, newest first.
	List(ctx context.Context, userID string) ([]*Session, error)

	// Update replaces the stored session with s.
	Update(ctx context.Context, s *Session) error
}
