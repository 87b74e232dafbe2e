// Package ports defines interfaces for external dependencies (Ports and Adapters pattern).
package ports

import "context"

// LinkState reports the health of a transport link.
type LinkState int

const (
	// LinkUp means the shell channel is open and writable.
	LinkUp LinkState = iota
	// LinkDown means the remote side dropped the connection or a
	// read/write failed unexpectedly.
	LinkDown
)

// String returns a human-readable state name.
func (s LinkState) String() string {
	switch s {
	case LinkUp:
		return "up"
	case LinkDown:
		return "down"
	default:
		return "unknown"
	}
}

// Transport is the shell transport capability consumed by the pass-through
// session: a line-oriented channel to a remote device console.
//
// Available and Read are non-blocking so the session loop can interleave
// keystroke handling and output flushing fairly within one poll cycle.
// The implementation owns any background reading; Read drains whatever has
// accumulated since the last call.
type Transport interface {
	// Connect establishes (or re-establishes) the link. Calling Connect on
	// a broken transport tears down the remnants first.
	Connect(ctx context.Context) error

	// WriteLine sends text followed by the device line terminator.
	WriteLine(text string) error

	// WriteRaw sends bytes verbatim, with no terminator. Used for
	// tab-completion requests.
	WriteRaw(b []byte) error

	// Available reports whether Read would return data.
	Available() bool

	// Read drains and returns all output accumulated since the last Read.
	// It never blocks; with no data it returns "".
	Read() (string, error)

	// Connected reports whether the link is currently up.
	Connected() bool

	// Notify returns the channel on which link state changes are delivered.
	// Sends are best-effort; slow consumers miss intermediate transitions,
	// never the latest state.
	Notify() <-chan LinkState

	// Close releases the link and all associated resources.
	Close() error
}
