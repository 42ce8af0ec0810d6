package platform

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"
)

// Throttled rate-limits Send on a gateway. Status and events pass through.
type Throttled struct {
	Gateway
	limiter *rate.Limiter
}

// Throttle wraps g so that sends stay under perSecond with the given burst.
// A non-positive rate disables limiting.
func Throttle(g Gateway, perSecond float64, burst int) *Throttled {
	limit := rate.Limit(perSecond)
	if perSecond <= 0 {
		limit = rate.Inf
	}
	if burst < 1 {
		burst = 1
	}
	return &Throttled{Gateway: g, limiter: rate.NewLimiter(limit, burst)}
}

// Send waits for a token, then sends.
func (t *Throttled) Send(ctx context.Context, target, text string, replyTo *MessageRef) (MessageRef, error) {
	if err := t.limiter.Wait(ctx); err != nil {
		return MessageRef{}, fmt.Errorf("send throttled: %w", err)
	}
	return t.Gateway.Send(ctx, target, text, replyTo)
}
