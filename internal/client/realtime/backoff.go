package realtime

import (
	"time"

	"github.com/sethvargo/go-retry"
)

// jitterPercent is the +/- spread applied to each reconnect delay so a fleet
// of clients losing the same server does not reconnect in lockstep.
const jitterPercent = 20

// NewBackoff builds the reconnect schedule: delays double from base up to
// maxDelay, each spread by the jitter percentage, giving up after maxRetries
// attempts.
func NewBackoff(base, maxDelay time.Duration, maxRetries uint64) retry.Backoff {
	b := retry.NewExponential(base)
	b = retry.WithCappedDuration(maxDelay, b)
	b = retry.WithJitterPercent(jitterPercent, b)
	b = retry.WithMaxRetries(maxRetries, b)
	return b
}
