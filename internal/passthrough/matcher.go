// Package passthrough implements the interactive pass-through session to a
// Crestron console: the terminal I/O loop, the in-progress input buffer,
// the completion matcher for scripted commands, and automatic reconnection.
package passthrough

import (
	"context"
	"io"
	"strings"
	"time"

	"github.com/crestkit/crestctl/internal/ports"
)

// matchPollInterval is how often the matcher polls the transport for new
// output while awaiting a completion pattern.
const matchPollInterval = 100 * time.Millisecond

// CompletionSpec describes what counts as success or failure for one
// scripted console command. Patterns are literal substrings compared
// case-insensitively against everything the device has sent since the
// command was issued.
type CompletionSpec struct {
	Success []string
	Failure []string
	Timeout time.Duration

	// Echo streams raw device output to EchoTo while waiting.
	Echo   bool
	EchoTo io.Writer
}

// Matcher awaits completion patterns in accumulated device output.
type Matcher struct {
	clock    ports.Clock
	interval time.Duration
}

// NewMatcher creates a matcher polling on the given clock.
func NewMatcher(clock ports.Clock) *Matcher {
	return &Matcher{clock: clock, interval: matchPollInterval}
}

// Await polls tr until a pattern matches, the timeout elapses, or ctx is
// cancelled. It returns true on a success match, false on a failure match
// or timeout, and (false, ctx.Err()) on cancellation.
//
// Device banners fragment across reads, so each poll appends new data to an
// accumulator and tests the full accumulated text; a pattern split across
// two reads is still detected once it has fully arrived. Failure patterns
// are tested before success patterns, so when both are present at check
// time the failure wins.
func (m *Matcher) Await(ctx context.Context, tr ports.Transport, spec CompletionSpec) (bool, error) {
	deadline := m.clock.Now().Add(spec.Timeout)
	var accumulated strings.Builder

	for {
		select {
		case <-ctx.Done():
			return false, ctx.Err()
		default:
		}

		if tr.Available() {
			chunk, err := tr.Read()
			if err == nil && chunk != "" {
				accumulated.WriteString(chunk)
				if spec.Echo && spec.EchoTo != nil {
					io.WriteString(spec.EchoTo, chunk)
				}

				haystack := strings.ToLower(accumulated.String())
				if containsAny(haystack, spec.Failure) {
					return false, nil
				}
				if containsAny(haystack, spec.Success) {
					return true, nil
				}
			}
		}

		if !m.clock.Now().Before(deadline) {
			return false, nil
		}

		select {
		case <-ctx.Done():
			return false, ctx.Err()
		case <-m.clock.After(m.interval):
		}
	}
}

// containsAny reports whether any pattern occurs in haystack. Haystack is
// already lowercased; empty patterns never match.
func containsAny(haystack string, patterns []string) bool {
	for _, p := range patterns {
		if p == "" {
			continue
		}
		if strings.Contains(haystack, strings.ToLower(p)) {
			return true
		}
	}
	return false
}
