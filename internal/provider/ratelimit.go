package provider

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/time/rate"
)

// limited throttles calls to the wrapped provider.
type limited struct {
	Provider
	limiter *rate.Limiter
}

// WithRateLimit wraps p so it issues at most perMinute calls per minute,
// with a burst of one. Waiting honours context cancellation. perMinute <= 0
// returns p unchanged.
func WithRateLimit(p Provider, perMinute int) Provider {
	if perMinute <= 0 {
		return p
	}
	return &limited{
		Provider: p,
		limiter:  rate.NewLimiter(rate.Every(time.Minute/time.Duration(perMinute)), 1),
	}
}

func (l *limited) StreamCompletion(ctx context.Context, req Request, onChunk func(string) error) error {
	if err := l.limiter.Wait(ctx); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return &Error{Kind: KindRateLimited, Provider: l.Name(), Model: req.Model, Message: fmt.Sprintf("rate limiter: %v", err), Err: err}
	}
	return l.Provider.StreamCompletion(ctx, req, onChunk)
}

// Unwrap returns the throttled provider.
func (l *limited) Unwrap() Provider { return l.Provider }

// Underlying strips rate-limit wrappers so callers can reach
// provider-specific methods such as OllamaClient.ListModels.
func Underlying(p Provider) Provider {
	for {
		u, ok := p.(interface{ Unwrap() Provider })
		if !ok {
			return p
		}
		p = u.Unwrap()
	}
}
