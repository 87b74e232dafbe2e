package iptable_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/crestkit/crestctl/internal/iptable"
	"github.com/crestkit/crestctl/internal/passthrough"
	"github.com/crestkit/crestctl/internal/testing/fakes/fakeclock"
	"github.com/crestkit/crestctl/internal/testing/fakes/faketransport"
)

func newManager(t *testing.T) (*iptable.Manager, *faketransport.Transport) {
	t.Helper()
	clk := fakeclock.New(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	tr := faketransport.New()
	if err := tr.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}
	return iptable.NewManager(tr, passthrough.NewMatcher(clk), time.Second), tr
}

func hasLine(tr *faketransport.Transport, line string) bool {
	for _, s := range tr.Sent() {
		if s == line {
			return true
		}
	}
	return false
}

func TestShowEchoesTable(t *testing.T) {
	mgr, tr := newManager(t)
	tr.Feed("IP Table:\r\n  03 | 10.0.0.9\r\nMC4> ")

	var out strings.Builder
	if err := mgr.Show(context.Background(), &out); err != nil {
		t.Fatalf("show: %v", err)
	}
	if !hasLine(tr, "ipt -t") {
		t.Fatalf("ipt -t not sent, got %v", tr.Sent())
	}
	if !strings.Contains(out.String(), "10.0.0.9") {
		t.Fatalf("table not echoed: %q", out.String())
	}
}

func TestClear(t *testing.T) {
	mgr, tr := newManager(t)
	tr.Feed("MC4> ")

	if err := mgr.Clear(context.Background(), &strings.Builder{}); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if !hasLine(tr, "ipt -c") {
		t.Fatalf("ipt -c not sent, got %v", tr.Sent())
	}
}

func TestAddValidatesEntries(t *testing.T) {
	mgr, tr := newManager(t)

	cases := []iptable.Entry{
		{IPID: "", Address: "10.0.0.9"},
		{IPID: "zz", Address: "10.0.0.9"},
		{IPID: "03", Address: ""},
	}
	for _, entry := range cases {
		if err := mgr.Add(context.Background(), entry, &strings.Builder{}); err == nil {
			t.Errorf("entry %+v should be rejected", entry)
		}
	}
	if len(tr.Sent()) != 0 {
		t.Fatalf("invalid entries must not reach the device: %v", tr.Sent())
	}
}

func TestAddSendsAddmaster(t *testing.T) {
	mgr, tr := newManager(t)
	tr.Feed("MC4> ")

	err := mgr.Add(context.Background(), iptable.Entry{IPID: "0A", Address: "ctrl.example.net"}, &strings.Builder{})
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if !hasLine(tr, "addmaster 0A ctrl.example.net") {
		t.Fatalf("addmaster not sent, got %v", tr.Sent())
	}
}

func TestAddDeviceErrorReply(t *testing.T) {
	mgr, tr := newManager(t)
	tr.Feed("ERROR: invalid ip id\r\n")

	err := mgr.Add(context.Background(), iptable.Entry{IPID: "03", Address: "10.0.0.9"}, &strings.Builder{})
	if err == nil {
		t.Fatal("device error reply must fail the add")
	}
}

func TestRewriteClearsThenAdds(t *testing.T) {
	mgr, tr := newManager(t)
	// One prompt per console command: clear plus two adds.
	tr.Feed("MC4> ")
	tr.Feed("MC4> ")
	tr.Feed("MC4> ")

	entries := []iptable.Entry{
		{IPID: "03", Address: "10.0.0.9"},
		{IPID: "04", Address: "10.0.0.10"},
	}
	if err := mgr.Rewrite(context.Background(), entries, &strings.Builder{}); err != nil {
		t.Fatalf("rewrite: %v", err)
	}

	sent := tr.Sent()
	if len(sent) != 3 || sent[0] != "ipt -c" {
		t.Fatalf("rewrite order wrong: %v", sent)
	}
}

func TestRewriteValidatesBeforeTouchingDevice(t *testing.T) {
	mgr, tr := newManager(t)

	entries := []iptable.Entry{
		{IPID: "03", Address: "10.0.0.9"},
		{IPID: "bad!", Address: "10.0.0.10"},
	}
	if err := mgr.Rewrite(context.Background(), entries, &strings.Builder{}); err == nil {
		t.Fatal("invalid entry must abort the rewrite")
	}
	if len(tr.Sent()) != 0 {
		t.Fatalf("rewrite must validate before clearing: %v", tr.Sent())
	}
}
