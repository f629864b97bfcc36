package engine

import (
	"context"

	"golang.org/x/time/rate"
)

type limited struct {
	next    Engine
	limiter *rate.Limiter
}

// WithRateLimit makes callers wait for a token before each request. A
// non-positive rate returns e unchanged.
func WithRateLimit(e Engine, perSecond float64, burst int) Engine {
	if perSecond <= 0 || IsDisabled(e) {
		return e
	}
	if burst < 1 {
		burst = 1
	}
	return &limited{next: e, limiter: rate.NewLimiter(rate.Limit(perSecond), burst)}
}

func (l *limited) Complete(ctx context.Context, messages []Message, opts Options) (*Completion, error) {
	if err := l.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	return l.next.Complete(ctx, messages, opts)
}

func (l *limited) Stream(ctx context.Context, messages []Message, opts Options, onDelta func(string)) (*Completion, error) {
	if err := l.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	return l.next.Stream(ctx, messages, opts, onDelta)
}
