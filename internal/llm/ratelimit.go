package llm

import (
	"context"
	"time"

	"golang.org/x/time/rate"

	"github.com/retz8/iris/internal/errors"
)

// RateLimited throttles an engine with a token bucket shared by every
// run using it.
type RateLimited struct {
	engine  Engine
	limiter *rate.Limiter
}

// NewRateLimited allows requestsPerMinute exchanges per minute with a
// burst of one tenth of that (at least one).
func NewRateLimited(engine Engine, requestsPerMinute int) *RateLimited {
	burst := requestsPerMinute / 10
	if burst < 1 {
		burst = 1
	}
	return &RateLimited{
		engine:  engine,
		limiter: rate.NewLimiter(rate.Every(time.Minute/time.Duration(requestsPerMinute)), burst),
	}
}

func (r *RateLimited) Name() string {
	return r.engine.Name()
}

// Exchange waits for a token, then delegates.
func (r *RateLimited) Exchange(ctx context.Context, req ExchangeRequest) (*Reply, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		// the wait would outlast the deadline
		return nil, errors.Timeout(err, "rate limit wait exceeds deadline")
	}
	return r.engine.Exchange(ctx, req)
}
