package fetch

import (
	"context"
	"time"
)

// Policy is the retry budget of a fetcher.
type Policy struct {
	// MaxAttempts is the total number of attempts. Values below 1 mean 1.
	MaxAttempts int
	// Backoff is the pause between attempts. Non-positive means no pause.
	Backoff time.Duration
}

// Decision is the outcome of Policy.Decide.
type Decision struct {
	Retry bool
	After time.Duration
}

// GiveUp is the zero Decision.
var GiveUp = Decision{}

func (p Policy) attempts() int {
	if p.MaxAttempts < 1 {
		return 1
	}
	return p.MaxAttempts
}

// Decide returns whether attempt (1-based) should be followed by another,
// given the error it failed with. Only timeouts are retried; blocking and
// every other failure give up immediately.
func (p Policy) Decide(attempt int, err error) Decision {
	fe, ok := AsError(err)
	if !ok || fe.Blocked() || !fe.Timeout() {
		return GiveUp
	}
	if attempt >= p.attempts() {
		return GiveUp
	}
	after := p.Backoff
	if after < 0 {
		after = 0
	}
	return Decision{Retry: true, After: after}
}

// sleepCtx waits d or until ctx is done.
func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
