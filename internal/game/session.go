package game

import (
	"context"
	"sync"
)

// Session tracks the single active conversation. Ending one (including the
// implicit end when another character is approached) runs the end hook
// before anything else may start.
type Session struct {
	mu      sync.Mutex
	active  string
	epoch   uint64        // bumped each time a conversation starts closing
	closing chan struct{} // non-nil while the end hook runs
	onEnd   func(ctx context.Context, characterID string)
}

// NewSession creates a session. onEnd may be nil.
func NewSession(onEnd func(ctx context.Context, characterID string)) *Session {
	return &Session{onEnd: onEnd}
}

// Active returns the character in conversation, or "".
func (s *Session) Active() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

// Current returns the active character together with the session epoch.
// A conversation that is still open has the same epoch it started with.
func (s *Session) Current() (string, uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active, s.epoch
}

// Start makes characterID the active conversation. It reports false when
// that character was already active. A conversation with anyone else is
// ended first, and a close already in progress is waited out.
func (s *Session) Start(ctx context.Context, characterID string) (bool, error) {
	for {
		s.mu.Lock()
		if ch := s.closing; ch != nil {
			s.mu.Unlock()
			select {
			case <-ch:
				continue
			case <-ctx.Done():
				return false, ctx.Err()
			}
		}
		if s.active == characterID {
			s.mu.Unlock()
			return false, nil
		}
		if s.active != "" {
			s.closeLocked(ctx)
			continue
		}
		s.active = characterID
		s.mu.Unlock()
		return true, nil
	}
}

// End closes the active conversation and returns who it was with. Ending
// with nobody active returns "" and does nothing.
func (s *Session) End(ctx context.Context) (string, error) {
	for {
		s.mu.Lock()
		if ch := s.closing; ch != nil {
			s.mu.Unlock()
			select {
			case <-ch:
				continue
			case <-ctx.Done():
				return "", ctx.Err()
			}
		}
		if s.active == "" {
			s.mu.Unlock()
			return "", nil
		}
		return s.closeLocked(ctx), nil
	}
}

// closeLocked runs the end hook for the active conversation. It is called
// with mu held and returns with mu released.
func (s *Session) closeLocked(ctx context.Context) string {
	prev := s.active
	s.epoch++
	done := make(chan struct{})
	s.closing = done
	s.mu.Unlock()

	if s.onEnd != nil {
		s.onEnd(ctx, prev)
	}

	s.mu.Lock()
	s.active = ""
	s.closing = nil
	s.mu.Unlock()
	close(done)
	return prev
}
