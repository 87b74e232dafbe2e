// Package fakekeys provides a scripted KeySource for session tests.
package fakekeys

import (
	"sync"

	"github.com/crestkit/crestctl/internal/passthrough"
)

// Source delivers pre-queued keystrokes; ReadKey never blocks.
type Source struct {
	mu   sync.Mutex
	keys []passthrough.Key
}

// New creates an empty key source.
func New() *Source {
	return &Source{}
}

// Push queues keystrokes in order.
func (s *Source) Push(keys ...passthrough.Key) {
	s.mu.Lock()
	s.keys = append(s.keys, keys...)
	s.mu.Unlock()
}

// Type queues each rune of text as a printable keystroke.
func (s *Source) Type(text string) {
	for _, r := range text {
		s.Push(passthrough.Key{Kind: passthrough.KeyRune, Rune: r})
	}
}

// TypeLine queues text followed by Enter.
func (s *Source) TypeLine(text string) {
	s.Type(text)
	s.Push(passthrough.Key{Kind: passthrough.KeyEnter})
}

// ReadKey pops the next queued keystroke.
func (s *Source) ReadKey() (passthrough.Key, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.keys) == 0 {
		return passthrough.Key{}, false
	}
	key := s.keys[0]
	s.keys = s.keys[1:]
	return key, true
}

// Pending returns how many keystrokes remain queued.
func (s *Source) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.keys)
}

var _ passthrough.KeySource = (*Source)(nil)
