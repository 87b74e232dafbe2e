package ports

import "time"

// Clock abstracts time operations so poll intervals, timeouts, and backoff
// delays are controllable in tests.
type Clock interface {
	// Now returns the current time.
	Now() time.Time

	// Sleep pauses execution for the specified duration.
	Sleep(d time.Duration)

	// After returns a channel that receives the current time after duration d.
	After(d time.Duration) <-chan time.Time

	// NewTicker returns a Ticker delivering ticks every d.
	NewTicker(d time.Duration) Ticker
}

// Ticker wraps time.Ticker for testing.
type Ticker interface {
	// C returns the channel on which ticks are delivered.
	C() <-chan time.Time

	// Stop turns off the ticker.
	Stop()
}
