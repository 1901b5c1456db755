package bot

import (
	"sync"
	"time"
)

// Action is what an admin chat is expected to send next.
type Action int

const (
	ActionNone Action = iota
	ActionAwaitAddStrategy
	ActionAwaitRemoveStrategy
)

func (a Action) String() string {
	switch a {
	case ActionAwaitAddStrategy:
		return "await_add_strategy"
	case ActionAwaitRemoveStrategy:
		return "await_remove_strategy"
	default:
		return "idle"
	}
}

type session struct {
	action    Action
	expiresAt time.Time
}

// Sessions tracks one pending action per chat. A chat with no entry, or an
// expired one, is idle.
type Sessions struct {
	mu      sync.Mutex
	m       map[int64]session
	timeout time.Duration
	now     func() time.Time
}

func NewSessions(timeout time.Duration, now func() time.Time) *Sessions {
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	if now == nil {
		now = time.Now
	}
	return &Sessions{m: make(map[int64]session), timeout: timeout, now: now}
}

// Begin moves the chat into the pending action, replacing any earlier one.
func (s *Sessions) Begin(chatID int64, a Action) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.m[chatID] = session{action: a, expiresAt: s.now().Add(s.timeout)}
}

// Take returns and clears the pending action.
func (s *Sessions) Take(chatID int64) Action {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.m[chatID]
	if !ok {
		return ActionNone
	}
	delete(s.m, chatID)
	if s.now().After(sess.expiresAt) {
		return ActionNone
	}
	return sess.action
}

// Peek reports the pending action without clearing it.
func (s *Sessions) Peek(chatID int64) Action {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.m[chatID]
	if !ok || s.now().After(sess.expiresAt) {
		return ActionNone
	}
	return sess.action
}

// Cancel returns the chat to idle. It reports whether something was pending.
func (s *Sessions) Cancel(chatID int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.m[chatID]
	delete(s.m, chatID)
	return ok && !s.now().After(sess.expiresAt)
}

// Sweep drops expired sessions.
func (s *Sessions) Sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	n := 0
	for id, sess := range s.m {
		if now.After(sess.expiresAt) {
			delete(s.m, id)
			n++
		}
	}
	return n
}
