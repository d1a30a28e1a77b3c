package notify

import (
	"context"

	"golang.org/x/time/rate"
)

// Limited throttles an inner notifier with a token bucket so a burst of
// alerts firing together does not flood the desktop.
type Limited struct {
	inner   Notifier
	limiter *rate.Limiter
}

// NewLimited allows ratePerSec notifications per second with the given burst.
// A non-positive rate disables throttling.
func NewLimited(inner Notifier, ratePerSec float64, burst int) *Limited {
	limit := rate.Inf
	if ratePerSec > 0 {
		limit = rate.Limit(ratePerSec)
	}
	if burst <= 0 {
		burst = 1
	}
	return &Limited{inner: inner, limiter: rate.NewLimiter(limit, burst)}
}

func (l *Limited) Notify(ctx context.Context, alertID, title, body string) error {
	if err := l.limiter.Wait(ctx); err != nil {
		return err
	}
	return l.inner.Notify(ctx, alertID, title, body)
}
