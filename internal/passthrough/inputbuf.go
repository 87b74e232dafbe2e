package passthrough

import (
	"fmt"
	"io"
	"strings"
)

// eraseLine returns the cursor to column zero and clears the line, so a
// redraw replaces whatever was previously on it.
const eraseLine = "\r\x1b[K"

// InputBuffer tracks the user's not-yet-submitted command line so it can be
// repainted after remote output interleaves with typing. Editing is
// append-only at the end of the line: append, backspace, clear.
type InputBuffer struct {
	runes  []rune
	prompt string
	dirty  bool
}

// NewInputBuffer creates a buffer rendered behind the given local prompt.
func NewInputBuffer(prompt string) *InputBuffer {
	return &InputBuffer{prompt: prompt}
}

// Append adds a character at the end of the line.
func (b *InputBuffer) Append(r rune) {
	b.runes = append(b.runes, r)
}

// Backspace removes the last character; it reports whether one was removed.
func (b *InputBuffer) Backspace() bool {
	if len(b.runes) == 0 {
		return false
	}
	b.runes = b.runes[:len(b.runes)-1]
	return true
}

// Clear empties the buffer.
func (b *InputBuffer) Clear() {
	b.runes = b.runes[:0]
}

// CurrentText returns the in-progress line.
func (b *InputBuffer) CurrentText() string {
	return string(b.runes)
}

// Len returns the number of buffered characters.
func (b *InputBuffer) Len() int {
	return len(b.runes)
}

// MarkDirty records that remote output has been written since the last
// render, so the visible line is stale.
func (b *InputBuffer) MarkDirty() {
	b.dirty = true
}

// Dirty reports whether remote output has interleaved since the last render.
func (b *InputBuffer) Dirty() bool {
	return b.dirty
}

// Render erases the current terminal line and redraws the prompt plus the
// buffered text, making the in-progress line the last thing on screen.
// Write errors are returned to the caller, never swallowed.
func (b *InputBuffer) Render(w io.Writer) error {
	var sb strings.Builder
	sb.WriteString(eraseLine)
	sb.WriteString(b.prompt)
	sb.WriteString(string(b.runes))

	if _, err := io.WriteString(w, sb.String()); err != nil {
		return fmt.Errorf("render input line: %w", err)
	}
	b.dirty = false
	return nil
}
