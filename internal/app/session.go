package app

import (
	"fmt"
	"sync"

	"xrpl_qr/internal/domain"
)

// Session tracks the generate actions of one user. Every action takes a
// token from Begin; only the most recent token may complete.
type Session struct {
	mu     sync.Mutex
	latest uint64
	last   *Output
}

// NewSession returns an empty session.
func NewSession() *Session {
	return &Session{}
}

// Begin starts a new action and supersedes any still in flight.
func (s *Session) Begin() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.latest++
	return s.latest
}

// Complete publishes out for token. A token older than the latest returns
// domain.ErrStale and out is dropped. commit, if not nil, runs under the
// session lock only for the current token.
func (s *Session) Complete(token uint64, out *Output, commit func(*Output)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if token != s.latest {
		return fmt.Errorf("%w: token %d, latest %d", domain.ErrStale, token, s.latest)
	}
	s.last = out
	if commit != nil {
		commit(out)
	}
	return nil
}

// Last returns the most recently published output, or nil.
func (s *Session) Last() *Output {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last
}
