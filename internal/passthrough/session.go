package passthrough

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"
	"unicode"

	"log/slog"

	"github.com/crestkit/crestctl/internal/adapters/realclock"
	"github.com/crestkit/crestctl/internal/ports"
)

// ErrDisconnected is returned by Run when reconnection attempts are
// exhausted, distinguishing "gave up" from user cancellation and from a
// normal exit-command departure.
var ErrDisconnected = errors.New("reconnect attempts exhausted")

// KeyKind classifies a decoded keystroke.
type KeyKind int

const (
	// KeyRune is a printable character.
	KeyRune KeyKind = iota
	// KeyEnter submits the input buffer.
	KeyEnter
	// KeyTab requests remote completion of the input buffer.
	KeyTab
	// KeyBackspace deletes the last buffered character.
	KeyBackspace
	// KeyControl is a control combination; Rune holds the letter
	// ('c' for Ctrl+C).
	KeyControl
)

// Key is one decoded keystroke.
type Key struct {
	Kind KeyKind
	Rune rune
}

// KeySource delivers keystrokes without blocking. ReadKey returns false
// when no keystroke is pending.
type KeySource interface {
	ReadKey() (Key, bool)
}

// Options configures a pass-through session.
type Options struct {
	// ExitCommand ends the session when submitted; compared
	// case-insensitively with surrounding whitespace trimmed.
	ExitCommand string

	// EscapeMarker prefixes lines diverted to the local sub-command
	// pipeline instead of the device.
	EscapeMarker rune

	// Prompt is the local prefix drawn before the input buffer.
	Prompt string

	// PollInterval is the cooperative cycle delay; short enough that
	// typing feels immediate.
	PollInterval time.Duration

	// CommandTimeout bounds each scripted sub-command's completion wait.
	CommandTimeout time.Duration

	// Policy governs automatic reconnection.
	Policy Policy

	// Commands is the local sub-command pipeline; nil gets the defaults.
	Commands *CommandSet

	// LocalKeys maps control-combination letters to local-only actions
	// that are never forwarded to the device.
	LocalKeys map[rune]func() error

	// OnStatus is notified on every connection status transition; it must
	// not block.
	OnStatus func(Status)

	Clock ports.Clock
}

// DefaultOptions returns standard session options.
func DefaultOptions() Options {
	return Options{
		ExitCommand:    "bye",
		EscapeMarker:   ':',
		PollInterval:   20 * time.Millisecond,
		CommandTimeout: 30 * time.Second,
		Policy:         DefaultPolicy(),
	}
}

// Session is one interactive pass-through connection to one device. It
// exclusively owns the transport for its lifetime; the sub-command
// pipeline and matcher only touch it synchronously from within the loop.
type Session struct {
	tr     ports.Transport
	keys   KeySource
	out    io.Writer
	opts   Options
	clock  ports.Clock
	buf    *InputBuffer
	recon  *Reconnector
	match  *Matcher
	status Status
}

// NewSession creates a session over tr, reading keystrokes from keys and
// writing to out.
func NewSession(tr ports.Transport, keys KeySource, out io.Writer, opts Options) *Session {
	if opts.ExitCommand == "" {
		opts.ExitCommand = "bye"
	}
	if opts.EscapeMarker == 0 {
		opts.EscapeMarker = ':'
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = 20 * time.Millisecond
	}
	if opts.CommandTimeout <= 0 {
		opts.CommandTimeout = 30 * time.Second
	}
	if opts.Commands == nil {
		opts.Commands = DefaultCommands()
	}
	clk := opts.Clock
	if clk == nil {
		clk = realclock.New()
	}

	return &Session{
		tr:     tr,
		keys:   keys,
		out:    out,
		opts:   opts,
		clock:  clk,
		buf:    NewInputBuffer(opts.Prompt),
		recon:  NewReconnector(opts.Policy, clk),
		match:  NewMatcher(clk),
		status: StatusConnected,
	}
}

// Status returns the current connection status.
func (s *Session) Status() Status {
	return s.status
}

// Buffer exposes the input buffer, primarily for tests.
func (s *Session) Buffer() *InputBuffer {
	return s.buf
}

// Run drives the cooperative poll loop until the exit command is submitted
// (nil), reconnection is exhausted (ErrDisconnected), or ctx is cancelled
// (ctx.Err()). Each cycle interleaves, in order: pending keystrokes, a
// remote output flush followed by an input-line repaint, link notification
// handling, and at most one reconnection step.
func (s *Session) Run(ctx context.Context) error {
	if !s.tr.Connected() {
		if err := s.tr.Connect(ctx); err != nil {
			if ctx.Err() != nil {
				s.setStatus(StatusClosing)
				return ctx.Err()
			}
			return fmt.Errorf("connect: %w", err)
		}
	}
	s.setStatus(StatusConnected)

	if err := s.buf.Render(s.out); err != nil {
		return err
	}

	for {
		if err := ctx.Err(); err != nil {
			s.setStatus(StatusClosing)
			return err
		}

		done, err := s.drainKeys(ctx)
		if err != nil {
			return err
		}
		if done {
			s.setStatus(StatusClosing)
			return nil
		}

		if err := s.flushRemote(); err != nil {
			return err
		}

		s.pollLink()

		if s.status == StatusReconnecting {
			st, err := s.recon.Step(ctx, s.tr)
			switch st {
			case StatusConnected:
				s.setStatus(StatusConnected)
				if err := s.buf.Render(s.out); err != nil {
					return err
				}
			case StatusDisconnected:
				s.setStatus(StatusDisconnected)
				return ErrDisconnected
			case StatusClosing:
				s.setStatus(StatusClosing)
				return err
			}
		}

		select {
		case <-ctx.Done():
			s.setStatus(StatusClosing)
			return ctx.Err()
		case <-s.clock.After(s.opts.PollInterval):
		}
	}
}

// drainKeys handles every pending keystroke. It reports whether the exit
// command was submitted.
func (s *Session) drainKeys(ctx context.Context) (bool, error) {
	for {
		key, ok := s.keys.ReadKey()
		if !ok {
			return false, nil
		}
		done, err := s.handleKey(ctx, key)
		if err != nil || done {
			return done, err
		}
	}
}

func (s *Session) handleKey(ctx context.Context, key Key) (bool, error) {
	switch key.Kind {
	case KeyControl:
		if fn, ok := s.opts.LocalKeys[key.Rune]; ok {
			if err := fn(); err != nil {
				s.reportInline(err.Error())
			}
		}
		// Unbound control keys are neither buffered nor forwarded.
		return false, nil

	case KeyBackspace:
		if s.buf.Backspace() {
			return false, s.buf.Render(s.out)
		}
		return false, nil

	case KeyRune:
		if !unicode.IsPrint(key.Rune) {
			return false, nil
		}
		s.buf.Append(key.Rune)
		return false, s.buf.Render(s.out)

	case KeyTab:
		return false, s.handleTab()

	case KeyEnter:
		return s.handleEnter(ctx)
	}

	return false, nil
}

// handleTab forwards the buffer plus a tab for remote-side completion. The
// device's reply repaints the visible line, so the local copy is dropped:
// completion results replace what the user typed.
func (s *Session) handleTab() error {
	if s.status != StatusConnected {
		return nil
	}

	text := s.buf.CurrentText()
	if err := s.tr.WriteRaw([]byte(text + "\t")); err != nil {
		s.linkLost(err)
		return nil
	}

	s.buf.Clear()
	return nil
}

func (s *Session) handleEnter(ctx context.Context) (bool, error) {
	text := s.buf.CurrentText()

	// The exit command works in every status; a user must be able to
	// leave a session that is stuck reconnecting.
	if strings.EqualFold(strings.TrimSpace(text), s.opts.ExitCommand) {
		io.WriteString(s.out, "\r\n")
		return true, nil
	}

	if strings.HasPrefix(text, string(s.opts.EscapeMarker)) {
		s.buf.Clear()
		io.WriteString(s.out, "\r\n")
		s.runLocal(ctx, strings.TrimPrefix(text, string(s.opts.EscapeMarker)))
		return false, s.buf.Render(s.out)
	}

	if text == "" {
		if s.status == StatusConnected {
			if err := s.tr.WriteLine(""); err != nil {
				s.linkLost(err)
			}
		}
		return false, nil
	}

	// Enter always empties the buffer. A line that cannot be forwarded
	// is reported and dropped, never silently queued: leftover text
	// would absorb the next line typed, including the exit command.
	s.buf.Clear()

	if s.status != StatusConnected {
		s.reportInline(fmt.Sprintf("%s - dropped %q", s.status, text))
		return false, s.buf.Render(s.out)
	}

	if err := s.tr.WriteLine(text); err != nil {
		s.linkLost(err)
		s.reportInline(fmt.Sprintf("send failed - dropped %q", text))
		return false, s.buf.Render(s.out)
	}

	io.WriteString(s.out, "\r\n")
	return false, nil
}

// runLocal dispatches a stripped escape line to the sub-command pipeline.
// Failures are reported inline; the session always continues.
func (s *Session) runLocal(ctx context.Context, line string) {
	env := &CommandEnv{
		Transport: s.tr,
		Matcher:   s.match,
		Out:       s.out,
		Timeout:   s.opts.CommandTimeout,
		Status:    func() Status { return s.status },
	}

	if err := s.opts.Commands.Dispatch(ctx, env, line); err != nil {
		if ctx.Err() != nil {
			return
		}
		s.reportInline(err.Error())
		return
	}
	s.reportInline("ok")
}

// flushRemote writes any pending device output verbatim, then, when a line
// is in progress, repaints it so the typed text is the last thing on
// screen.
func (s *Session) flushRemote() error {
	if !s.tr.Available() {
		return nil
	}

	out, err := s.tr.Read()
	if err != nil {
		s.linkLost(err)
		return nil
	}
	if out == "" {
		return nil
	}

	if _, err := io.WriteString(s.out, out); err != nil {
		return fmt.Errorf("write remote output: %w", err)
	}

	// With nothing typed there is nothing to restore, and erasing the
	// line would wipe in-line device echo such as a completion result.
	if s.buf.Len() == 0 {
		return nil
	}
	s.buf.MarkDirty()
	return s.buf.Render(s.out)
}

// pollLink consumes a pending transport notification, if any.
func (s *Session) pollLink() {
	select {
	case state := <-s.tr.Notify():
		if state == ports.LinkDown && s.status == StatusConnected {
			s.linkLost(nil)
		}
	default:
	}
}

// linkLost transitions to Reconnecting and arms the reconnector.
func (s *Session) linkLost(cause error) {
	if s.status != StatusConnected {
		return
	}
	if cause != nil {
		slog.Debug("transport failure", slog.String("error", cause.Error()))
	}
	s.setStatus(StatusReconnecting)
	s.recon.Begin()
}

func (s *Session) setStatus(status Status) {
	if s.status == status {
		return
	}
	s.status = status
	if s.opts.OnStatus != nil {
		s.opts.OnStatus(status)
	}
}

// reportInline prints a bracketed local notice on its own line.
func (s *Session) reportInline(msg string) {
	fmt.Fprintf(s.out, "\r\n[crestctl] %s\r\n", msg)
}
