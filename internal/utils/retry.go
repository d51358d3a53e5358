package utils

import (
	"context"
	"errors"
	"net"
	"os"
	"time"

	"github.com/juju/clock"
	"github.com/juju/retry"
)

// RetryPolicy bounds WithRetry.
type RetryPolicy struct {
	Attempts int
	Delay    time.Duration // first delay, doubled after every attempt
}

// DefaultRetryPolicy makes three attempts starting with a one second pause.
var DefaultRetryPolicy = RetryPolicy{Attempts: 3, Delay: time.Second}

// WithRetry runs fn until it succeeds, fails with an error isRetriable rejects,
// runs out of attempts or ctx is done. The last error from fn is returned.
func WithRetry(ctx context.Context, clk clock.Clock, policy RetryPolicy, isRetriable func(error) bool, fn func() error) error {
	if policy.Attempts <= 0 {
		policy.Attempts = 1
	}
	if policy.Delay <= 0 {
		policy.Delay = time.Millisecond
	}
	err := retry.Call(retry.CallArgs{
		Func: fn,
		IsFatalError: func(err error) bool {
			return !isRetriable(err)
		},
		Attempts:    policy.Attempts,
		Delay:       policy.Delay,
		BackoffFunc: retry.DoubleDelay,
		Clock:       clk,
		Stop:        ctx.Done(),
	})
	return retry.LastError(err)
}

// IsNetworkError reports failures that happened before a response arrived.
func IsNetworkError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}

	return os.IsTimeout(err)
}
