// Package session owns per-chat conversation history and its trimming
// policy. History is in-memory and keyed by chat ID; it does not
// survive a process restart.
package session

import (
	"sync"
	"time"
)

// Message is one entry in a chat's ordered history.
type Message struct {
	Role    string // user, assistant, system
	Content string
	Time    time.Time
}

// Store manages conversation histories. All methods are safe for
// concurrent use; within one chat, ordering is always insertion order.
type Store struct {
	// Timeout is the idle gap after which history is trimmed before
	// the next user message is appended. 0 disables idle trimming.
	timeout time.Duration
	// maxRetained is how many trailing messages survive an idle trim.
	// 0 clears the history entirely.
	maxRetained int
	// maxTokens is the history token budget. 0 disables budget
	// trimming.
	maxTokens int

	mu       sync.Mutex
	sessions map[int64]*chatSession

	now func() time.Time // test override
}

type chatSession struct {
	messages []Message
	lastSeen time.Time
}

// NewStore creates a session store with the given trimming policy.
func NewStore(timeout time.Duration, maxRetained, maxTokens int) *Store {
	return &Store{
		timeout:     timeout,
		maxRetained: maxRetained,
		maxTokens:   maxTokens,
		sessions:    make(map[int64]*chatSession),
		now:         time.Now,
	}
}

// AppendUser records an inbound user message. If the chat has been
// idle longer than the configured timeout, the existing history is
// trimmed (or cleared) first. The chat's last-seen time is updated on
// every inbound message regardless of whether trimming fired.
func (s *Store) AppendUser(chatID int64, content string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	sess := s.sessions[chatID]
	if sess == nil {
		sess = &chatSession{}
		s.sessions[chatID] = sess
	} else if s.timeout > 0 && now.Sub(sess.lastSeen) > s.timeout {
		if s.maxRetained == 0 {
			sess.messages = nil
		} else if len(sess.messages) > s.maxRetained {
			kept := make([]Message, s.maxRetained)
			copy(kept, sess.messages[len(sess.messages)-s.maxRetained:])
			sess.messages = kept
		}
	}

	sess.lastSeen = now
	sess.messages = append(sess.messages, Message{Role: "user", Content: content, Time: now})
}

// Append records an assistant or system message without touching the
// idle clock.
func (s *Store) Append(chatID int64, role, content string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess := s.sessions[chatID]
	if sess == nil {
		sess = &chatSession{}
		s.sessions[chatID] = sess
	}
	sess.messages = append(sess.messages, Message{Role: role, Content: content, Time: s.now()})
}

// Get returns a copy of the chat's ordered history.
func (s *Store) Get(chatID int64) []Message {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess := s.sessions[chatID]
	if sess == nil {
		return nil
	}
	out := make([]Message, len(sess.messages))
	copy(out, sess.messages)
	return out
}

// TrimToBudget pops the oldest messages while the summed token
// estimate exceeds the budget, always leaving at least one message.
// This is independent of idle trimming; only idle trimming may empty a
// history.
func (s *Store) TrimToBudget(chatID int64) {
	if s.maxTokens <= 0 {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	sess := s.sessions[chatID]
	if sess == nil {
		return
	}

	total := 0
	for _, m := range sess.messages {
		total += EstimateTokens(m.Content)
	}
	for len(sess.messages) > 1 && total > s.maxTokens {
		total -= EstimateTokens(sess.messages[0].Content)
		sess.messages = sess.messages[1:]
	}
}

// Clear drops a chat's history entirely.
func (s *Store) Clear(chatID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, chatID)
}

// Stats returns session counts for the ops API.
func (s *Store) Stats() map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()

	messages := 0
	for _, sess := range s.sessions {
		messages += len(sess.messages)
	}
	return map[string]any{
		"chats":    len(s.sessions),
		"messages": messages,
	}
}

// EstimateTokens approximates the token count of text. The 4-bytes-per-
// token heuristic is deliberately rough; the ledger uses the backend's
// reported counts, this only drives history budget trimming.
func EstimateTokens(text string) int {
	n := len(text) / 4
	if n == 0 && text != "" {
		n = 1
	}
	return n
}
