package rag

import (
	"context"
	"errors"
	"net"
	"syscall"
	"time"

	"github.com/cenkalti/backoff/v4"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Retry policy for transient dependency failures. Attempt delays grow
// 1s, 2s, 4s... capped at 10s, for at most three attempts total.
const (
	retryMaxAttempts = 3
	retryBaseDelay   = 1 * time.Second
	retryMultiplier  = 2.0
	retryMaxDelay    = 10 * time.Second
)

// statusCoder is implemented by errors that carry an upstream HTTP status.
type statusCoder interface {
	StatusCode() int
}

// retryTransient runs op, retrying per the policy above as long as the
// failure is classified transient. Permanent failures and context
// cancellation return immediately.
func retryTransient(ctx context.Context, op func() error) error {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = retryBaseDelay
	policy.Multiplier = retryMultiplier
	policy.MaxInterval = retryMaxDelay
	policy.RandomizationFactor = 0

	return backoff.Retry(func() error {
		err := op()
		if err == nil {
			return nil
		}
		if ctx.Err() != nil || !isTransient(err) {
			return backoff.Permanent(err)
		}
		return err
	}, backoff.WithMaxRetries(backoff.WithContext(policy, ctx), retryMaxAttempts-1))
}

// isTransient reports whether err is worth retrying: connection failures,
// timeouts, and upstream throttling or gateway errors. Validation and auth
// failures are permanent.
func isTransient(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	if errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.ECONNRESET) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	var sc statusCoder
	if errors.As(err, &sc) {
		switch sc.StatusCode() {
		case 429, 502, 503:
			return true
		}
		return false
	}

	if st, ok := status.FromError(err); ok {
		switch st.Code() {
		case codes.Unavailable, codes.DeadlineExceeded, codes.ResourceExhausted, codes.Aborted:
			return true
		}
	}

	return false
}
