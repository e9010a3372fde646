package repository

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/redis/go-redis/v9"

	"github.com/rocketscienceinc/crictactoe/internal/apperror"
)

// RetryPolicy - exponential backoff for transient store failures.
type RetryPolicy struct {
	Retries   uint64
	BaseDelay time.Duration
}

var (
	permissionPrefixes = []string{"NOPERM", "NOAUTH", "WRONGPASS"}
	busyPrefixes       = []string{"LOADING", "BUSY", "TRYAGAIN", "MASTERDOWN", "CLUSTERDOWN", "READONLY"}
)

// do - runs fn, retrying transient failures, and returns a categorized error.
func (that RetryPolicy) do(ctx context.Context, logger *slog.Logger, op string, fn func() error) error {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = that.BaseDelay
	policy.Multiplier = 2
	policy.RandomizationFactor = 0
	policy.MaxElapsedTime = 0

	attempt := 0
	err := backoff.RetryNotify(func() error {
		attempt++

		err := fn()
		if err == nil || isTransient(err) {
			return err
		}

		return backoff.Permanent(err)
	}, backoff.WithContext(backoff.WithMaxRetries(policy, that.Retries), ctx), func(err error, delay time.Duration) {
		logger.Debug("transient store error, retrying", "op", op, "attempt", attempt, "delay", delay, "error", err)
	})
	if err != nil {
		return classify(op, err)
	}

	return nil
}

// isTransient - unavailable, timed out or aborted by a concurrent write.
func isTransient(err error) bool {
	var appErr *apperror.Error
	if errors.As(err, &appErr) {
		return false
	}

	if errors.Is(err, redis.TxFailedErr) || errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) || errors.Is(err, redis.ErrClosed) {
		return false
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	return hasPrefix(err, busyPrefixes)
}

// classify - maps store failures onto the error taxonomy. *apperror.Error passes through.
func classify(op string, err error) error {
	var appErr *apperror.Error
	if errors.As(err, &appErr) {
		return err
	}

	switch {
	case errors.Is(err, redis.TxFailedErr):
		return apperror.Wrap(apperror.KindConflict, op, err)
	case errors.Is(err, context.DeadlineExceeded):
		return apperror.Wrap(apperror.KindTimeout, op, err)
	case errors.Is(err, context.Canceled):
		return apperror.Wrap(apperror.KindUnknown, op, err)
	case hasPrefix(err, permissionPrefixes):
		return apperror.Wrap(apperror.KindPermissionDenied, op, err)
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return apperror.Wrap(apperror.KindTimeout, op, err)
		}
		return apperror.Wrap(apperror.KindNetwork, op, err)
	}

	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, redis.ErrClosed) || hasPrefix(err, busyPrefixes) {
		return apperror.Wrap(apperror.KindNetwork, op, err)
	}

	return apperror.Wrap(apperror.KindUnknown, op, err)
}

func hasPrefix(err error, prefixes []string) bool {
	msg := err.Error()
	for _, prefix := range prefixes {
		if strings.HasPrefix(msg, prefix) {
			return true
		}
	}

	return false
}
