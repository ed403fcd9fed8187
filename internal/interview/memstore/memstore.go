// Package memstore is an in-memory [interview.Store]. It also remembers the
// questions each user was asked and implements [questions.History] with a
// brute-force cosine search.
//
// It is meant for tests and single-process deployments without a database;
// everything is lost on restart.
package memstore

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/MrWong99/intervox/internal/interview"
	"github.com/MrWong99/intervox/internal/questions"
	"github.com/MrWong99/intervox/pkg/provider/embeddings"
)

var (
	_ interview.Store   = (*Store)(nil)
	_ questions.History = (*Store)(nil)
)

// Store is safe for concurrent use.
type Store struct {
	mu       sync.RWMutex
	sessions map[string]*interview.Session
	asked    map[string][]questions.Asked
}

// New returns an empty Store.
func New() *Store {
	return &Store{
		sessions: make(map[string]*interview.Session),
		asked:    make(map[string][]questions.Asked),
	}
}

// Create implements [interview.Store].
func (s *Store) Create(_ context.Context, sess *interview.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[sess.ID]; ok {
		return fmt.Errorf("memstore: session %q already exists", sess.ID)
	}
	c := sess.Clone()
	c.Version = 0
	s.sessions[sess.ID] = c
	sess.Version = 0
	return nil
}

// Get implements [interview.Store].
func (s *Store) Get(_ context.Context, id string) (*interview.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[id]
	if !ok {
		return nil, interview.ErrSessionNotFound
	}
	return sess.Clone(), nil
}

// List implements [interview.Store].
func (s *Store) List(_ context.Context, userID string) ([]*interview.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []*interview.Session{}
	for _, sess := range s.sessions {
		if sess.UserID == userID {
			out = append(out, sess.Clone())
		}
	}
	slices.SortFunc(out, func(a, b *interview.Session) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return out, nil
}

// Update implements [interview.Store].
func (s *Store) Update(_ context.Context, sess *interview.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.sessions[sess.ID]
	if !ok {
		return interview.ErrSessionNotFound
	}
	if cur.Version != sess.Version {
		return fmt.Errorf("%w: session %s at version %d, update based on %d",
			interview.ErrConflict, sess.ID, cur.Version, sess.Version)
	}
	c := sess.Clone()
	c.Version++
	s.sessions[sess.ID] = c
	sess.Version = c.Version
	return nil
}

// NearestAsked implements [questions.History].
func (s *Store) NearestAsked(_ context.Context, userID string, embedding []float32) (questions.Match, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var (
		best  questions.Match
		found bool
	)
	for _, a := range s.asked[userID] {
		d := 1 - embeddings.CosineSimilarity(a.Embedding, embedding)
		if !found || d < best.Distance {
			best, found = questions.Match{Text: a.Text, Distance: d}, true
		}
	}
	return best, found, nil
}

// RecordAsked implements [questions.History].
func (s *Store) RecordAsked(_ context.Context, userID string, asked []questions.Asked) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range asked {
		s.asked[userID] = append(s.asked[userID], questions.Asked{
			Text:      a.Text,
			Embedding: slices.Clone(a.Embedding),
		})
	}
	return nil
}
