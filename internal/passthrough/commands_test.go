package passthrough_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/crestkit/crestctl/internal/passthrough"
	"github.com/crestkit/crestctl/internal/testing/fakes/fakeclock"
	"github.com/crestkit/crestctl/internal/testing/fakes/faketransport"
)

func newCommandFixture(t *testing.T) (*passthrough.CommandEnv, *faketransport.Transport) {
	t.Helper()
	clk := fakeclock.New(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	tr := faketransport.New()
	if err := tr.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}
	return &passthrough.CommandEnv{
		Transport: tr,
		Matcher:   passthrough.NewMatcher(clk),
		Out:       &strings.Builder{},
		Timeout:   time.Second,
	}, tr
}

func TestDispatchUnknownCommand(t *testing.T) {
	env, _ := newCommandFixture(t)
	cs := passthrough.DefaultCommands()

	err := cs.Dispatch(context.Background(), env, "frobnicate 1")
	if err == nil {
		t.Fatal("unknown command must be an error")
	}
	if !strings.Contains(err.Error(), "kill") {
		t.Fatalf("error should list available commands, got %v", err)
	}
}

func TestDispatchEmptyLine(t *testing.T) {
	env, _ := newCommandFixture(t)
	cs := passthrough.DefaultCommands()

	if err := cs.Dispatch(context.Background(), env, "   "); err == nil {
		t.Fatal("blank escape line must be an error")
	}
}

func TestKillCommand(t *testing.T) {
	env, tr := newCommandFixture(t)
	cs := passthrough.DefaultCommands()
	tr.Feed("Program Stopped\r\n")

	if err := cs.Dispatch(context.Background(), env, "kill 1"); err != nil {
		t.Fatalf("kill: %v", err)
	}
	if !sent(tr, "stopprog -p:1")() {
		t.Fatalf("stopprog not issued, sent %v", tr.Sent())
	}
}

func TestKillCommandInvalidSlotReply(t *testing.T) {
	env, tr := newCommandFixture(t)
	cs := passthrough.DefaultCommands()
	tr.Feed("ERROR:Invalid Program Identifier specified.\r\n")

	if err := cs.Dispatch(context.Background(), env, "kill 9"); err == nil {
		t.Fatal("device error reply must fail the command")
	}
}

func TestStartCommand(t *testing.T) {
	env, tr := newCommandFixture(t)
	cs := passthrough.DefaultCommands()
	tr.Feed("Program(s) Started...\r\n")

	if err := cs.Dispatch(context.Background(), env, "start 2"); err != nil {
		t.Fatalf("start: %v", err)
	}
	if !sent(tr, "progreset -p:2")() {
		t.Fatalf("progreset not issued, sent %v", tr.Sent())
	}
}

func TestRegisterCommandInterpolatesSlot(t *testing.T) {
	env, tr := newCommandFixture(t)
	cs := passthrough.DefaultCommands()
	tr.Feed("Program 3 is registered\r\n")

	if err := cs.Dispatch(context.Background(), env, "register 3"); err != nil {
		t.Fatalf("register: %v", err)
	}
	if !sent(tr, "progregister -p:3")() {
		t.Fatalf("progregister not issued, sent %v", tr.Sent())
	}
}

func TestSlotValidation(t *testing.T) {
	env, tr := newCommandFixture(t)
	cs := passthrough.DefaultCommands()

	for _, line := range []string{"kill", "kill zero", "kill 0", "kill -3", "kill 1 2"} {
		if err := cs.Dispatch(context.Background(), env, line); err == nil {
			t.Errorf("%q should be rejected", line)
		}
	}
	if len(tr.Sent()) != 0 {
		t.Fatalf("invalid slots must not reach the device, sent %v", tr.Sent())
	}
}

func TestStatusCommandLocalOnly(t *testing.T) {
	env, tr := newCommandFixture(t)
	var out strings.Builder
	env.Out = &out
	env.Status = func() passthrough.Status { return passthrough.StatusReconnecting }
	cs := passthrough.DefaultCommands()

	if err := cs.Dispatch(context.Background(), env, "status"); err != nil {
		t.Fatalf("status: %v", err)
	}
	if !strings.Contains(out.String(), "reconnecting") {
		t.Fatalf("status output = %q", out.String())
	}
	if len(tr.Sent()) != 0 {
		t.Fatal("status must not touch the transport")
	}
}

func TestCommandTimeout(t *testing.T) {
	env, _ := newCommandFixture(t)
	env.Timeout = 0
	cs := passthrough.DefaultCommands()

	if err := cs.Dispatch(context.Background(), env, "kill 1"); err == nil {
		t.Fatal("missing confirmation must fail the command")
	}
}

func TestRegisterNamesSorted(t *testing.T) {
	cs := passthrough.NewCommandSet()
	cs.Register("zeta", nil)
	cs.Register("alpha", nil)

	names := cs.Names()
	if len(names) != 2 || names[0] != "alpha" || names[1] != "zeta" {
		t.Fatalf("Names() = %v", names)
	}
}
