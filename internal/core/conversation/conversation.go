// Package conversation serializes concurrent turns for the same chat and
// keeps an in-memory record of each chat's message history, so the agent
// loop always sees a consistent, non-interleaved view of a conversation.
package conversation

import (
	"sync"

	"github.com/tamalebot/tamalebot-core/internal/core/message"
)

// Store holds per-chat history and a per-chat lock that serializes turns:
// two messages submitted concurrently for the same chat key are processed
// one at a time, while unrelated chats proceed in parallel. The lock is a
// plain sync.Mutex, so the order in which waiting turns for one chat key
// acquire it is not defined.
type Store struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
	hist  map[string][]message.Message
}

// NewStore returns an empty Store.
func NewStore() *Store {
	return &Store{
		locks: make(map[string]*sync.Mutex),
		hist:  make(map[string][]message.Message),
	}
}

func (s *Store) lockFor(chatKey string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[chatKey]
	if !ok {
		l = &sync.Mutex{}
		s.locks[chatKey] = l
	}
	return l
}

// History returns a copy of chatKey's current message history.
func (s *Store) History(chatKey string) []message.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	h := s.hist[chatKey]
	out := make([]message.Message, len(h))
	copy(out, h)
	return out
}

// SetHistory replaces chatKey's stored history.
func (s *Store) SetHistory(chatKey string, history []message.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	h := make([]message.Message, len(history))
	copy(h, history)
	s.hist[chatKey] = h
}

// Stats is a point-in-time summary of the store's in-memory footprint.
type Stats struct {
	Chats         int
	TotalMessages int
}

// Stats reports the number of chats currently held and their combined
// message count.
func (s *Store) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	stats := Stats{Chats: len(s.hist)}
	for _, h := range s.hist {
		stats.TotalMessages += len(h)
	}
	return stats
}

// Clear removes chatKey's stored history entirely.
func (s *Store) Clear(chatKey string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.hist, chatKey)
}

// WithTurn serializes fn against any other call to WithTurn for the same
// chatKey, so a second turn submitted while the first is still running
// waits its turn rather than racing it.
func (s *Store) WithTurn(chatKey string, fn func()) {
	l := s.lockFor(chatKey)
	l.Lock()
	defer l.Unlock()
	fn()
}
