// Package transport provides the SSH shell transport to Crestron control
// processors, plus the connection pool that de-duplicates live links.
package transport

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"log/slog"

	"github.com/crestkit/crestctl/internal/adapters/realclock"
	"github.com/crestkit/crestctl/internal/ports"
	"golang.org/x/crypto/ssh"
)

// Options configures an SSH transport.
type Options struct {
	Host              string
	Port              int
	User              string
	AuthMethods       []ssh.AuthMethod
	HostKeyCallback   ssh.HostKeyCallback
	Timeout           time.Duration
	KeepaliveInterval time.Duration

	// PTY settings for the device console channel.
	Term string
	Rows int
	Cols int

	Clock ports.Clock
}

// DefaultOptions returns default transport options.
func DefaultOptions() Options {
	return Options{
		Port:              22,
		Timeout:           30 * time.Second,
		KeepaliveInterval: 30 * time.Second,
		Term:              "vt100",
		Rows:              24,
		Cols:              120,
	}
}

// Identity is the pool de-duplication key for these options.
func (o Options) Identity() string {
	return fmt.Sprintf("%s@%s:%d", o.User, o.Host, o.Port)
}

// SSH implements ports.Transport over an SSH shell channel with a PTY.
//
// A background reader drains the channel into a guarded accumulator so that
// Available/Read never block; read or write failures flip the link down and
// emit a notification. Connect may be called again after a failure to
// re-establish the link with the original credentials.
type SSH struct {
	opts Options

	mu        sync.Mutex
	client    *ssh.Client
	session   *ssh.Session
	stdin     io.WriteCloser
	buf       bytes.Buffer
	connected bool
	closed    bool

	// gen invalidates reader goroutines from torn-down links so a stale
	// EOF never reports a fresh link as down.
	gen int

	keepaliveStop chan struct{}
	notify        chan ports.LinkState
	clock         ports.Clock
}

// NewSSH creates an SSH transport; it does not connect.
func NewSSH(opts Options) (*SSH, error) {
	if opts.Host == "" {
		return nil, fmt.Errorf("host is required")
	}
	if opts.User == "" {
		return nil, fmt.Errorf("user is required")
	}
	if len(opts.AuthMethods) == 0 {
		return nil, fmt.Errorf("at least one auth method is required")
	}
	if opts.Port == 0 {
		opts.Port = 22
	}
	if opts.Timeout == 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.KeepaliveInterval == 0 {
		opts.KeepaliveInterval = 30 * time.Second
	}
	if opts.Term == "" {
		opts.Term = "vt100"
	}
	if opts.Rows == 0 {
		opts.Rows = 24
	}
	if opts.Cols == 0 {
		opts.Cols = 120
	}
	if opts.HostKeyCallback == nil {
		opts.HostKeyCallback = ssh.InsecureIgnoreHostKey()
	}

	clk := opts.Clock
	if clk == nil {
		clk = realclock.New()
	}

	return &SSH{
		opts:   opts,
		clock:  clk,
		notify: make(chan ports.LinkState, 4),
	}, nil
}

// Connect establishes the SSH link and opens the console shell channel.
// Remnants of a broken link are torn down first.
func (t *SSH) Connect(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return fmt.Errorf("transport is closed")
	}

	t.teardownLocked()

	config := &ssh.ClientConfig{
		User:            t.opts.User,
		Auth:            t.opts.AuthMethods,
		HostKeyCallback: t.opts.HostKeyCallback,
		Timeout:         t.opts.Timeout,
	}
	addr := fmt.Sprintf("%s:%d", t.opts.Host, t.opts.Port)

	// Dial in a goroutine so cancellation is observable during the dial.
	type dialResult struct {
		client *ssh.Client
		err    error
	}
	done := make(chan dialResult, 1)
	go func() {
		client, err := ssh.Dial("tcp", addr, config)
		done <- dialResult{client, err}
	}()

	var client *ssh.Client
	select {
	case <-ctx.Done():
		go func() {
			if r := <-done; r.client != nil {
				r.client.Close()
			}
		}()
		return ctx.Err()
	case r := <-done:
		if r.err != nil {
			return fmt.Errorf("ssh dial %s: %w", addr, r.err)
		}
		client = r.client
	}

	session, err := client.NewSession()
	if err != nil {
		client.Close()
		return fmt.Errorf("new session: %w", err)
	}

	modes := ssh.TerminalModes{
		ssh.ECHO:          1,
		ssh.TTY_OP_ISPEED: 14400,
		ssh.TTY_OP_OSPEED: 14400,
	}
	if err := session.RequestPty(t.opts.Term, t.opts.Rows, t.opts.Cols, modes); err != nil {
		session.Close()
		client.Close()
		return fmt.Errorf("request pty: %w", err)
	}

	stdin, err := session.StdinPipe()
	if err != nil {
		session.Close()
		client.Close()
		return fmt.Errorf("stdin pipe: %w", err)
	}
	stdout, err := session.StdoutPipe()
	if err != nil {
		session.Close()
		client.Close()
		return fmt.Errorf("stdout pipe: %w", err)
	}

	if err := session.Shell(); err != nil {
		session.Close()
		client.Close()
		return fmt.Errorf("start shell: %w", err)
	}

	t.client = client
	t.session = session
	t.stdin = stdin
	t.connected = true
	t.gen++

	go t.readLoop(t.gen, stdout)

	t.keepaliveStop = make(chan struct{})
	go t.keepalive(t.keepaliveStop)

	t.sendNotify(ports.LinkUp)

	slog.Debug("transport connected",
		slog.String("host", t.opts.Host),
		slog.Int("port", t.opts.Port),
		slog.String("user", t.opts.User),
	)
	return nil
}

// readLoop drains the shell channel into the accumulator until it fails.
func (t *SSH) readLoop(gen int, stdout io.Reader) {
	buf := make([]byte, 4096)
	for {
		n, err := stdout.Read(buf)
		if n > 0 {
			t.mu.Lock()
			if t.gen == gen {
				t.buf.Write(buf[:n])
			}
			t.mu.Unlock()
		}
		if err != nil {
			t.mu.Lock()
			if t.gen == gen && t.connected {
				t.connected = false
				t.sendNotify(ports.LinkDown)
				slog.Debug("transport link down",
					slog.String("host", t.opts.Host),
					slog.String("error", err.Error()),
				)
			}
			t.mu.Unlock()
			return
		}
	}
}

// keepalive sends periodic requests so NAT and device idle timers do not
// silently drop the link.
func (t *SSH) keepalive(stop <-chan struct{}) {
	ticker := t.clock.NewTicker(t.opts.KeepaliveInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C():
			t.mu.Lock()
			if t.client != nil && t.connected {
				// A failed keepalive is detected by the read loop; do not
				// tear down here.
				_, _, _ = t.client.SendRequest("keepalive@openssh.com", true, nil)
			}
			t.mu.Unlock()
		}
	}
}

// WriteLine sends text followed by CRLF. The Crestron console terminates
// lines with CR; CRLF is accepted by all firmware generations.
func (t *SSH) WriteLine(text string) error {
	return t.WriteRaw([]byte(text + "\r\n"))
}

// WriteRaw sends bytes verbatim.
func (t *SSH) WriteRaw(b []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.connected || t.stdin == nil {
		return fmt.Errorf("not connected")
	}

	if _, err := t.stdin.Write(b); err != nil {
		t.connected = false
		t.sendNotify(ports.LinkDown)
		return fmt.Errorf("write: %w", err)
	}
	return nil
}

// Available reports whether Read would return data.
func (t *SSH) Available() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.buf.Len() > 0
}

// Read drains all accumulated output. It never blocks.
func (t *SSH) Read() (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.buf.Len() == 0 {
		return "", nil
	}
	out := t.buf.String()
	t.buf.Reset()
	return out, nil
}

// Connected reports whether the link is up.
func (t *SSH) Connected() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.connected
}

// Notify returns the link state notification channel.
func (t *SSH) Notify() <-chan ports.LinkState {
	return t.notify
}

// Client exposes the underlying SSH client for subsystem channels (SFTP).
// Returns nil when disconnected.
func (t *SSH) Client() *ssh.Client {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.connected {
		return nil
	}
	return t.client
}

// Close tears down the link permanently.
func (t *SSH) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return nil
	}
	t.closed = true
	t.teardownLocked()

	slog.Debug("transport closed", slog.String("host", t.opts.Host))
	return nil
}

// teardownLocked releases the current link. Callers hold t.mu.
func (t *SSH) teardownLocked() {
	if t.keepaliveStop != nil {
		close(t.keepaliveStop)
		t.keepaliveStop = nil
	}
	if t.session != nil {
		t.session.Close()
		t.session = nil
	}
	if t.client != nil {
		t.client.Close()
		t.client = nil
	}
	t.stdin = nil
	t.connected = false
	t.gen++
	t.buf.Reset()
}

// sendNotify delivers a state change without blocking. Callers hold t.mu.
func (t *SSH) sendNotify(state ports.LinkState) {
	select {
	case t.notify <- state:
	default:
	}
}

var _ ports.Transport = (*SSH)(nil)
