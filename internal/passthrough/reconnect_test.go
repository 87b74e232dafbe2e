package passthrough_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/crestkit/crestctl/internal/passthrough"
	"github.com/crestkit/crestctl/internal/testing/fakes/fakeclock"
	"github.com/crestkit/crestctl/internal/testing/fakes/faketransport"
)

func newReconnectFixture(policy passthrough.Policy) (*passthrough.Reconnector, *faketransport.Transport, *fakeclock.Clock) {
	clk := fakeclock.New(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	tr := faketransport.New()
	return passthrough.NewReconnector(policy, clk), tr, clk
}

// stepUntilTerminal drives Step, advancing the clock past the retry delay
// between calls, until a terminal status is reached.
func stepUntilTerminal(t *testing.T, r *passthrough.Reconnector, tr *faketransport.Transport, clk *fakeclock.Clock, delay time.Duration) (passthrough.Status, error) {
	t.Helper()
	for i := 0; i < 100; i++ {
		status, err := r.Step(context.Background(), tr)
		if status != passthrough.StatusReconnecting {
			return status, err
		}
		clk.Advance(delay)
	}
	t.Fatal("reconnector never reached a terminal status")
	return 0, nil
}

func TestReconnectSucceedsWithinBudget(t *testing.T) {
	policy := passthrough.Policy{MaxAttempts: 5, Delay: 2 * time.Second}
	r, tr, clk := newReconnectFixture(policy)
	tr.FailConnectsBefore(2)

	r.Begin()
	status, err := stepUntilTerminal(t, r, tr, clk, policy.Delay)
	if err != nil {
		t.Fatalf("step: %v", err)
	}
	if status != passthrough.StatusConnected {
		t.Fatalf("status = %v, want connected", status)
	}
	if got := tr.ConnectCalls(); got != 3 {
		t.Fatalf("connect attempts = %d, want 3", got)
	}
}

func TestReconnectExhaustionStopsAttempting(t *testing.T) {
	policy := passthrough.Policy{MaxAttempts: 2, Delay: time.Second}
	r, tr, clk := newReconnectFixture(policy)
	tr.SetConnectError(errors.New("device unreachable"))

	r.Begin()
	status, err := stepUntilTerminal(t, r, tr, clk, policy.Delay)
	if err != nil {
		t.Fatalf("step: %v", err)
	}
	if status != passthrough.StatusDisconnected {
		t.Fatalf("status = %v, want disconnected", status)
	}
	// With a budget of two, a third attempt is never made.
	if got := tr.ConnectCalls(); got != 2 {
		t.Fatalf("connect attempts = %d, want 2", got)
	}
}

func TestReconnectDelayGatesAttempts(t *testing.T) {
	policy := passthrough.Policy{MaxAttempts: 5, Delay: 2 * time.Second}
	r, tr, _ := newReconnectFixture(policy)
	tr.SetConnectError(errors.New("down"))

	r.Begin()
	if status, _ := r.Step(context.Background(), tr); status != passthrough.StatusReconnecting {
		t.Fatalf("first step status = %v", status)
	}
	if got := tr.ConnectCalls(); got != 1 {
		t.Fatalf("connect attempts = %d, want 1", got)
	}

	// The delay has not elapsed, so stepping again must not attempt.
	if status, _ := r.Step(context.Background(), tr); status != passthrough.StatusReconnecting {
		t.Fatal("expected reconnecting while waiting out the delay")
	}
	if got := tr.ConnectCalls(); got != 1 {
		t.Fatalf("attempt made before the delay elapsed: %d calls", got)
	}
}

func TestReconnectUnlimitedAttempts(t *testing.T) {
	for _, succeedOn := range []int{1, 7, 26, 60} {
		policy := passthrough.Policy{MaxAttempts: passthrough.UnlimitedAttempts, Delay: time.Second}
		r, tr, clk := newReconnectFixture(policy)
		tr.FailConnectsBefore(succeedOn - 1)

		r.Begin()
		status, err := stepUntilTerminal(t, r, tr, clk, policy.Delay)
		if err != nil {
			t.Fatalf("succeedOn=%d: step: %v", succeedOn, err)
		}
		if status != passthrough.StatusConnected {
			t.Fatalf("succeedOn=%d: status = %v, want connected", succeedOn, status)
		}
		if got := tr.ConnectCalls(); got != succeedOn {
			t.Fatalf("succeedOn=%d: connect attempts = %d", succeedOn, got)
		}
	}
}

func TestReconnectBudgetResetsAfterSuccess(t *testing.T) {
	policy := passthrough.Policy{MaxAttempts: 3, Delay: time.Second}
	r, tr, clk := newReconnectFixture(policy)
	tr.FailConnectsBefore(2)

	r.Begin()
	if status, _ := stepUntilTerminal(t, r, tr, clk, policy.Delay); status != passthrough.StatusConnected {
		t.Fatalf("first cycle status = %v", status)
	}

	// A later loss gets the full budget again, not the leftovers.
	tr.FailConnectsBefore(tr.ConnectCalls() + 2)
	r.Begin()
	status, _ := stepUntilTerminal(t, r, tr, clk, policy.Delay)
	if status != passthrough.StatusConnected {
		t.Fatalf("second cycle status = %v, want connected", status)
	}
}

func TestReconnectCancellation(t *testing.T) {
	policy := passthrough.Policy{MaxAttempts: 5, Delay: time.Second}
	r, tr, _ := newReconnectFixture(policy)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	r.Begin()
	status, err := r.Step(ctx, tr)
	if status != passthrough.StatusClosing {
		t.Fatalf("status = %v, want closing", status)
	}
	if err != context.Canceled {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if tr.ConnectCalls() != 0 {
		t.Fatal("cancelled step must not attempt a connect")
	}
}

func TestStatusStrings(t *testing.T) {
	cases := map[passthrough.Status]string{
		passthrough.StatusConnected:    "connected",
		passthrough.StatusReconnecting: "reconnecting",
		passthrough.StatusDisconnected: "disconnected",
		passthrough.StatusClosing:      "closing",
	}
	for status, want := range cases {
		if got := status.String(); got != want {
			t.Errorf("%d.String() = %q, want %q", status, got, want)
		}
	}
}
