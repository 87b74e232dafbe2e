package passthrough

import (
	"context"
	"log/slog"
	"time"

	"github.com/crestkit/crestctl/internal/ports"
)

// Status is the session connection state.
type Status int

const (
	// StatusConnected means the transport link is up.
	StatusConnected Status = iota
	// StatusReconnecting means the link dropped and retries are in progress.
	StatusReconnecting
	// StatusDisconnected is terminal: reconnection attempts were exhausted.
	StatusDisconnected
	// StatusClosing is terminal: the user exited or cancelled.
	StatusClosing
)

// String returns a human-readable status name.
func (s Status) String() string {
	switch s {
	case StatusConnected:
		return "connected"
	case StatusReconnecting:
		return "reconnecting"
	case StatusDisconnected:
		return "disconnected"
	case StatusClosing:
		return "closing"
	default:
		return "unknown"
	}
}

// UnlimitedAttempts makes a Policy retry until success or cancellation.
const UnlimitedAttempts = -1

// Policy is the bounded-or-unbounded retry configuration for automatic
// transport re-establishment.
type Policy struct {
	// MaxAttempts bounds consecutive failed attempts; UnlimitedAttempts
	// retries forever.
	MaxAttempts int
	// Delay is the fixed wait between attempts.
	Delay time.Duration
}

// DefaultPolicy returns the stock reconnect policy.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts: 5,
		Delay:       2 * time.Second,
	}
}

// Reconnector drives transport re-establishment one step at a time so the
// session loop can keep accepting keystrokes between attempts. The cycle is
//
//	Begin -> Step* -> StatusConnected        (retry succeeded)
//	                  StatusDisconnected     (attempts exhausted, terminal)
//	                  StatusClosing          (ctx cancelled, terminal)
//
// A successful step resets the attempt budget to full.
type Reconnector struct {
	policy    Policy
	clock     ports.Clock
	remaining int
	nextTry   time.Time
	active    bool
}

// NewReconnector creates a reconnector for the given policy.
func NewReconnector(policy Policy, clock ports.Clock) *Reconnector {
	if policy.Delay <= 0 {
		policy.Delay = DefaultPolicy().Delay
	}
	return &Reconnector{
		policy:    policy,
		clock:     clock,
		remaining: policy.MaxAttempts,
	}
}

// Begin arms the reconnector after a detected transport loss, restoring the
// full attempt budget. The first attempt is eligible immediately.
func (r *Reconnector) Begin() {
	r.remaining = r.policy.MaxAttempts
	r.nextTry = r.clock.Now()
	r.active = true
}

// Active reports whether a reconnection cycle is in progress.
func (r *Reconnector) Active() bool {
	return r.active
}

// Step makes at most one reconnection attempt. Between eligible attempts it
// returns StatusReconnecting without touching the transport, so the caller
// stays responsive. Terminal results end the cycle.
func (r *Reconnector) Step(ctx context.Context, tr ports.Transport) (Status, error) {
	if err := ctx.Err(); err != nil {
		r.active = false
		return StatusClosing, err
	}

	if r.policy.MaxAttempts != UnlimitedAttempts && r.remaining <= 0 {
		r.active = false
		slog.Warn("reconnect attempts exhausted",
			slog.Int("max_attempts", r.policy.MaxAttempts),
		)
		return StatusDisconnected, nil
	}

	if r.clock.Now().Before(r.nextTry) {
		return StatusReconnecting, nil
	}

	if r.policy.MaxAttempts != UnlimitedAttempts {
		r.remaining--
	}

	if err := tr.Connect(ctx); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			r.active = false
			return StatusClosing, ctxErr
		}
		slog.Debug("reconnect attempt failed",
			slog.String("error", err.Error()),
		)
		r.nextTry = r.clock.Now().Add(r.policy.Delay)
		return StatusReconnecting, nil
	}

	r.remaining = r.policy.MaxAttempts
	r.active = false
	return StatusConnected, nil
}
