// Package iptable manages a processor's IP table: the mapping of IP IDs to
// the peers (control system masters, touch panels) the program talks to.
package iptable

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/crestkit/crestctl/internal/passthrough"
	"github.com/crestkit/crestctl/internal/ports"
)

// Entry is one IP table row to register.
type Entry struct {
	// IPID is the hex IP ID, e.g. "03".
	IPID string
	// Address is the peer hostname or IP.
	Address string
}

// Manager drives IP table console commands over a live transport, awaiting
// each command's output before issuing the next.
type Manager struct {
	tr      ports.Transport
	matcher *passthrough.Matcher
	timeout time.Duration
}

// NewManager creates an IP table manager over a connected transport.
func NewManager(tr ports.Transport, matcher *passthrough.Matcher, timeout time.Duration) *Manager {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Manager{tr: tr, matcher: matcher, timeout: timeout}
}

// Show prints the current IP table to out. The device ends the listing with
// its console prompt, which is what the wait keys on.
func (m *Manager) Show(ctx context.Context, out io.Writer) error {
	if err := m.tr.WriteLine("ipt -t"); err != nil {
		return fmt.Errorf("send ipt -t: %w", err)
	}

	ok, err := m.matcher.Await(ctx, m.tr, passthrough.CompletionSpec{
		Success: []string{">"},
		Timeout: m.timeout,
		Echo:    true,
		EchoTo:  out,
	})
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("device did not finish the IP table listing")
	}
	return nil
}

// Clear wipes every IP table entry.
func (m *Manager) Clear(ctx context.Context, out io.Writer) error {
	if err := m.tr.WriteLine("ipt -c"); err != nil {
		return fmt.Errorf("send ipt -c: %w", err)
	}

	ok, err := m.matcher.Await(ctx, m.tr, passthrough.CompletionSpec{
		Success: []string{">"},
		Timeout: m.timeout,
		Echo:    true,
		EchoTo:  out,
	})
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("device did not confirm the clear")
	}
	return nil
}

// Add registers one master entry via addmaster.
func (m *Manager) Add(ctx context.Context, entry Entry, out io.Writer) error {
	if err := validateEntry(entry); err != nil {
		return err
	}

	cmd := fmt.Sprintf("addmaster %s %s", entry.IPID, entry.Address)
	if err := m.tr.WriteLine(cmd); err != nil {
		return fmt.Errorf("send %q: %w", cmd, err)
	}

	ok, err := m.matcher.Await(ctx, m.tr, passthrough.CompletionSpec{
		Success: []string{">"},
		Failure: []string{"error"},
		Timeout: m.timeout,
		Echo:    true,
		EchoTo:  out,
	})
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("device rejected entry %s -> %s", entry.IPID, entry.Address)
	}
	return nil
}

// Rewrite clears the table and registers the given entries in order.
func (m *Manager) Rewrite(ctx context.Context, entries []Entry, out io.Writer) error {
	for _, e := range entries {
		if err := validateEntry(e); err != nil {
			return err
		}
	}

	if err := m.Clear(ctx, out); err != nil {
		return fmt.Errorf("clear: %w", err)
	}
	for _, e := range entries {
		if err := m.Add(ctx, e, out); err != nil {
			return fmt.Errorf("add %s: %w", e.IPID, err)
		}
	}
	return nil
}

func validateEntry(e Entry) error {
	ipid := strings.TrimSpace(e.IPID)
	if ipid == "" {
		return fmt.Errorf("ip id is required")
	}
	for _, r := range strings.ToLower(ipid) {
		if (r < '0' || r > '9') && (r < 'a' || r > 'f') {
			return fmt.Errorf("ip id %q is not hex", e.IPID)
		}
	}
	if strings.TrimSpace(e.Address) == "" {
		return fmt.Errorf("address is required for ip id %s", e.IPID)
	}
	return nil
}
