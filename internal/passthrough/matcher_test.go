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

func newMatcherFixture(t *testing.T) (*passthrough.Matcher, *faketransport.Transport, *fakeclock.Clock) {
	t.Helper()
	clk := fakeclock.New(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	tr := faketransport.New()
	if err := tr.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}
	return passthrough.NewMatcher(clk), tr, clk
}

func TestAwaitSuccessPattern(t *testing.T) {
	m, tr, _ := newMatcherFixture(t)
	tr.Feed("loading...\r\nProgram(s) Started...\r\n")

	ok, err := m.Await(context.Background(), tr, passthrough.CompletionSpec{
		Success: []string{"Program(s) Started..."},
		Timeout: time.Second,
	})
	if err != nil {
		t.Fatalf("await: %v", err)
	}
	if !ok {
		t.Fatal("expected success match")
	}
}

func TestAwaitCaseInsensitive(t *testing.T) {
	m, tr, _ := newMatcherFixture(t)
	tr.Feed("PROGRAM STOPPED\r\n")

	ok, err := m.Await(context.Background(), tr, passthrough.CompletionSpec{
		Success: []string{"Program Stopped"},
		Timeout: time.Second,
	})
	if err != nil || !ok {
		t.Fatalf("want case-insensitive match, got ok=%v err=%v", ok, err)
	}
}

func TestAwaitFailureBeatsSuccess(t *testing.T) {
	m, tr, _ := newMatcherFixture(t)
	// Both patterns present in the same accumulated output.
	tr.Feed("ERROR:Invalid Program Identifier specified.\r\nProgram Stopped\r\n")

	ok, err := m.Await(context.Background(), tr, passthrough.CompletionSpec{
		Success: []string{"Program Stopped"},
		Failure: []string{"ERROR:Invalid Program Identifier specified."},
		Timeout: time.Second,
	})
	if err != nil {
		t.Fatalf("await: %v", err)
	}
	if ok {
		t.Fatal("failure pattern must win when both are present")
	}
}

func TestAwaitPatternSplitAcrossReads(t *testing.T) {
	m, tr, clk := newMatcherFixture(t)
	tr.Feed("Program St")
	tr.Feed("opped\r\n")

	type result struct {
		ok  bool
		err error
	}
	done := make(chan result, 1)
	go func() {
		ok, err := m.Await(context.Background(), tr, passthrough.CompletionSpec{
			Success: []string{"Program Stopped"},
			Timeout: time.Minute,
		})
		done <- result{ok, err}
	}()

	for i := 0; i < 1000; i++ {
		select {
		case r := <-done:
			if r.err != nil {
				t.Fatalf("await: %v", r.err)
			}
			if !r.ok {
				t.Fatal("split pattern should match once fully arrived")
			}
			return
		default:
			clk.Advance(100 * time.Millisecond)
			time.Sleep(time.Millisecond)
		}
	}
	t.Fatal("await did not finish")
}

func TestAwaitEmptyPatternsNeverMatch(t *testing.T) {
	m, tr, _ := newMatcherFixture(t)
	tr.Feed("any output at all\r\n")

	ok, err := m.Await(context.Background(), tr, passthrough.CompletionSpec{
		Success: []string{""},
		Failure: []string{""},
		Timeout: 0,
	})
	if err != nil {
		t.Fatalf("await: %v", err)
	}
	if ok {
		t.Fatal("empty patterns must never match")
	}
}

func TestAwaitTimeoutReturnsFalse(t *testing.T) {
	m, tr, _ := newMatcherFixture(t)

	ok, err := m.Await(context.Background(), tr, passthrough.CompletionSpec{
		Success: []string{"never arrives"},
		Timeout: 0,
	})
	if err != nil {
		t.Fatalf("timeout must not be an error, got %v", err)
	}
	if ok {
		t.Fatal("timeout must report false")
	}
}

func TestAwaitCancellation(t *testing.T) {
	m, tr, _ := newMatcherFixture(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	ok, err := m.Await(ctx, tr, passthrough.CompletionSpec{
		Success: []string{"never"},
		Timeout: time.Minute,
	})
	if ok {
		t.Fatal("cancelled await must not succeed")
	}
	if err != context.Canceled {
		t.Fatalf("want context.Canceled, got %v", err)
	}
}

func TestAwaitEchoesOutput(t *testing.T) {
	m, tr, _ := newMatcherFixture(t)
	tr.Feed("banner text\r\nProgram Stopped\r\n")

	var echo strings.Builder
	ok, err := m.Await(context.Background(), tr, passthrough.CompletionSpec{
		Success: []string{"Program Stopped"},
		Timeout: time.Second,
		Echo:    true,
		EchoTo:  &echo,
	})
	if err != nil || !ok {
		t.Fatalf("await: ok=%v err=%v", ok, err)
	}
	if !strings.Contains(echo.String(), "banner text") {
		t.Fatalf("device output not echoed, got %q", echo.String())
	}
}
