package svc

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

// DefaultHandlerTimeout bounds how long any single handler invocation
// may run before TimeoutMiddleware cuts it off.
const DefaultHandlerTimeout = 10 * time.Second

// Middleware wraps a Handler to add cross-cutting behavior. Chain
// composes them in onion order: the first middleware listed is the
// outermost layer.
type Middleware func(Handler) Handler

// Chain applies middlewares right to left so the first one given runs
// first on the way in and last on the way out.
func Chain(middlewares ...Middleware) Middleware {
	return func(final Handler) Handler {
		h := final
		for i := len(middlewares) - 1; i >= 0; i-- {
			h = middlewares[i](h)
		}
		return h
	}
}

// LoggingMiddleware logs the duration and outcome of every dispatched
// call.
func LoggingMiddleware(log *logrus.Logger) Middleware {
	return func(next Handler) Handler {
		return HandlerFunc(func(ctx context.Context, payload []byte) ([]byte, error) {
			start := time.Now()
			resp, err := next.Handle(ctx, payload)
			entry := log.WithField("duration", time.Since(start))
			if err != nil {
				entry.WithField("error", err).Warn("handler returned an error")
			} else {
				entry.Debug("handler completed")
			}
			return resp, err
		})
	}
}

// TimeoutMiddleware races the wrapped handler against timeout, racing
// a child goroutine against ctx cancellation rather than the handler's
// own cooperation — a handler that never checks ctx still gets bounded.
func TimeoutMiddleware(timeout time.Duration) Middleware {
	return func(next Handler) Handler {
		return HandlerFunc(func(ctx context.Context, payload []byte) ([]byte, error) {
			ctx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()

			type result struct {
				resp []byte
				err  error
			}
			done := make(chan result, 1)
			go func() {
				resp, err := next.Handle(ctx, payload)
				done <- result{resp, err}
			}()

			select {
			case r := <-done:
				return r.resp, r.err
			case <-ctx.Done():
				return nil, fmt.Errorf("svc: handler exceeded %s timeout", timeout)
			}
		})
	}
}

// RateLimitMiddleware throttles dispatch to r events/sec with burst
// capacity, using a single limiter shared across every call — built
// once in the outer closure, not per-request.
func RateLimitMiddleware(r float64, burst int) Middleware {
	limiter := rate.NewLimiter(rate.Limit(r), burst)
	return func(next Handler) Handler {
		return HandlerFunc(func(ctx context.Context, payload []byte) ([]byte, error) {
			if err := limiter.Wait(ctx); err != nil {
				return nil, err
			}
			return next.Handle(ctx, payload)
		})
	}
}
