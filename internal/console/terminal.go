// Package console owns the local terminal: raw mode, keystroke decoding,
// and the styled status banner for interactive sessions.
package console

import (
	"fmt"
	"os"
	"sync"

	"golang.org/x/term"

	"github.com/crestkit/crestctl/internal/passthrough"
)

// Terminal wraps the controlling terminal in raw mode and decodes stdin
// bytes into keystrokes on a buffered channel, so the session loop can
// poll without blocking.
type Terminal struct {
	in *os.File

	state *term.State
	keys  chan passthrough.Key

	mu     sync.Mutex
	closed bool
	done   chan struct{}
}

// NewTerminal puts the terminal attached to in into raw mode and starts
// the keystroke reader. Callers must Restore before the process exits.
func NewTerminal(in *os.File) (*Terminal, error) {
	fd := int(in.Fd())
	if !term.IsTerminal(fd) {
		return nil, fmt.Errorf("stdin is not a terminal")
	}

	state, err := term.MakeRaw(fd)
	if err != nil {
		return nil, fmt.Errorf("enter raw mode: %w", err)
	}

	t := &Terminal{
		in:    in,
		state: state,
		keys:  make(chan passthrough.Key, 64),
		done:  make(chan struct{}),
	}
	go t.readLoop()
	return t, nil
}

// ReadKey returns the next decoded keystroke without blocking.
func (t *Terminal) ReadKey() (passthrough.Key, bool) {
	select {
	case key := <-t.keys:
		return key, true
	default:
		return passthrough.Key{}, false
	}
}

// Restore leaves raw mode. Safe to call more than once.
func (t *Terminal) Restore() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil
	}
	t.closed = true
	close(t.done)
	return term.Restore(int(t.in.Fd()), t.state)
}

// Size returns the terminal dimensions, falling back to 80x24.
func (t *Terminal) Size() (cols, rows int) {
	cols, rows, err := term.GetSize(int(t.in.Fd()))
	if err != nil || cols <= 0 || rows <= 0 {
		return 80, 24
	}
	return cols, rows
}

// readLoop decodes raw input bytes into keystrokes. It exits when the
// input stream errors or the terminal is restored.
func (t *Terminal) readLoop() {
	buf := make([]byte, 256)
	for {
		n, err := t.in.Read(buf)
		if err != nil {
			return
		}
		for _, key := range DecodeKeys(buf[:n]) {
			select {
			case t.keys <- key:
			case <-t.done:
				return
			}
		}
		select {
		case <-t.done:
			return
		default:
		}
	}
}

// DecodeKeys turns a chunk of raw terminal bytes into keystrokes. Escape
// sequences (arrow keys and similar) are dropped: the input line is
// append-only and cursor movement has no meaning there.
func DecodeKeys(b []byte) []passthrough.Key {
	var keys []passthrough.Key
	runes := []rune(string(b))

	for i := 0; i < len(runes); i++ {
		r := runes[i]
		switch {
		case r == '\r' || r == '\n':
			keys = append(keys, passthrough.Key{Kind: passthrough.KeyEnter})
			// Swallow the LF of a CRLF pair.
			if r == '\r' && i+1 < len(runes) && runes[i+1] == '\n' {
				i++
			}
		case r == '\t':
			keys = append(keys, passthrough.Key{Kind: passthrough.KeyTab})
		case r == 0x7f || r == '\b':
			keys = append(keys, passthrough.Key{Kind: passthrough.KeyBackspace})
		case r == 0x1b:
			if i+1 < len(runes) {
				switch runes[i+1] {
				case '[':
					// Skip a CSI sequence through its final byte.
					i += 2
					for i < len(runes) && (runes[i] < 0x40 || runes[i] > 0x7e) {
						i++
					}
				case 'O':
					// SS3 (arrow keys in application cursor mode)
					// carries exactly one byte after the O.
					i += 2
				}
			}
		case r < 0x20:
			// Ctrl+A..Ctrl+Z map back to their letter.
			keys = append(keys, passthrough.Key{
				Kind: passthrough.KeyControl,
				Rune: rune('a' + r - 1),
			})
		default:
			keys = append(keys, passthrough.Key{Kind: passthrough.KeyRune, Rune: r})
		}
	}
	return keys
}

var _ passthrough.KeySource = (*Terminal)(nil)
