package services

import (
	"context"
	"errors"
	"net"
	"time"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// transientError marks a failure worth one more attempt
type transientError struct {
	err error
}

func (e *transientError) Error() string { return e.err.Error() }

func (e *transientError) Unwrap() error { return e.err }

// IsTransient reports whether err is a network or availability failure that a
// single retry could fix
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	var te *transientError
	if errors.As(err, &te) {
		return true
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return true
	}
	if isStripeTransient(err) {
		return true
	}
	if s, ok := status.FromError(unwrapAll(err)); ok {
		switch s.Code() {
		case codes.Unavailable, codes.DeadlineExceeded, codes.Aborted:
			return true
		}
	}
	return false
}

// withRetry runs a read with a bounded per-attempt timeout and retries once when the
// first failure is transient. Never use it for writes with side effects.
func withRetry[T any](ctx context.Context, timeout time.Duration, fn func(ctx context.Context) (T, error)) (T, error) {
	attempt := func() (T, error) {
		if timeout <= 0 {
			return fn(ctx)
		}
		actx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		return fn(actx)
	}

	v, err := attempt()
	if err == nil || !IsTransient(err) || ctx.Err() != nil {
		return v, err
	}
	return attempt()
}

func unwrapAll(err error) error {
	for {
		next := errors.Unwrap(err)
		if next == nil {
			return err
		}
		err = next
	}
}
