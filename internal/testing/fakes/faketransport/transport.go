// Package faketransport provides a scripted Transport implementation for
// testing session, matcher, and reconnection behavior without a device.
package faketransport

import (
	"context"
	"errors"
	"sync"

	"github.com/crestkit/crestctl/internal/ports"
)

// ErrLinkDown is returned from writes and reads after Fail.
var ErrLinkDown = errors.New("link down")

// Transport is a scripted fake device link. Tests queue output chunks with
// Feed, inspect sent lines via Sent, and inject failures with Fail and
// FailConnectsBefore.
type Transport struct {
	mu sync.Mutex

	connected bool
	closed    bool

	// pending output chunks, delivered one per Read
	chunks []string

	sentLines []string
	sentRaw   [][]byte

	// connectCalls counts Connect invocations; attempts numbered below
	// failBefore fail.
	connectCalls int
	failBefore   int
	connectErr   error

	writeErr error

	notify chan ports.LinkState
}

// New creates a disconnected fake transport.
func New() *Transport {
	return &Transport{
		notify: make(chan ports.LinkState, 4),
	}
}

// Connect succeeds unless a scripted failure applies. Each call counts as
// one attempt.
func (t *Transport) Connect(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	t.connectCalls++
	if t.connectErr != nil {
		return t.connectErr
	}
	if t.connectCalls <= t.failBefore {
		return ErrLinkDown
	}
	t.connected = true
	t.writeErr = nil
	return nil
}

// ConnectCalls returns how many times Connect has been invoked.
func (t *Transport) ConnectCalls() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.connectCalls
}

// FailConnectsBefore makes the first n Connect attempts fail.
func (t *Transport) FailConnectsBefore(n int) {
	t.mu.Lock()
	t.failBefore = n
	t.mu.Unlock()
}

// SetConnectError makes every Connect attempt fail with err until cleared.
func (t *Transport) SetConnectError(err error) {
	t.mu.Lock()
	t.connectErr = err
	t.mu.Unlock()
}

// Fail simulates a dropped link: subsequent writes error and a LinkDown
// notification is queued.
func (t *Transport) Fail() {
	t.mu.Lock()
	t.connected = false
	t.writeErr = ErrLinkDown
	t.mu.Unlock()

	select {
	case t.notify <- ports.LinkDown:
	default:
	}
}

// Feed queues one output chunk; each Read delivers one chunk.
func (t *Transport) Feed(chunk string) {
	t.mu.Lock()
	t.chunks = append(t.chunks, chunk)
	t.mu.Unlock()
}

// WriteLine records text as a sent line.
func (t *Transport) WriteLine(text string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.writeErr != nil {
		return t.writeErr
	}
	if !t.connected {
		return ErrLinkDown
	}
	t.sentLines = append(t.sentLines, text)
	return nil
}

// WriteRaw records b as sent raw bytes.
func (t *Transport) WriteRaw(b []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.writeErr != nil {
		return t.writeErr
	}
	if !t.connected {
		return ErrLinkDown
	}
	buf := make([]byte, len(b))
	copy(buf, b)
	t.sentRaw = append(t.sentRaw, buf)
	return nil
}

// Sent returns the lines sent so far.
func (t *Transport) Sent() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]string, len(t.sentLines))
	copy(out, t.sentLines)
	return out
}

// SentRaw returns the raw writes so far.
func (t *Transport) SentRaw() [][]byte {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([][]byte, len(t.sentRaw))
	copy(out, t.sentRaw)
	return out
}

// Available reports whether a queued chunk is waiting.
func (t *Transport) Available() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.chunks) > 0
}

// Read delivers the next queued chunk, or "" when none is pending.
func (t *Transport) Read() (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.chunks) == 0 {
		return "", nil
	}
	chunk := t.chunks[0]
	t.chunks = t.chunks[1:]
	return chunk, nil
}

// Connected reports the scripted link state.
func (t *Transport) Connected() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.connected
}

// Notify returns the link state notification channel.
func (t *Transport) Notify() <-chan ports.LinkState {
	return t.notify
}

// Close marks the transport closed.
func (t *Transport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.connected = false
	t.closed = true
	return nil
}

// Closed reports whether Close was called.
func (t *Transport) Closed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closed
}

var _ ports.Transport = (*Transport)(nil)
