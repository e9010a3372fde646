package repository

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"

	"github.com/rocketscienceinc/crictactoe/internal/apperror"
)

type timeoutError struct{}

func (timeoutError) Error() string   { return "i/o timeout" }
func (timeoutError) Timeout() bool   { return true }
func (timeoutError) Temporary() bool { return true }

var _ net.Error = timeoutError{}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestRetryPolicy_Do(t *testing.T) {
	policy := RetryPolicy{Retries: 2, BaseDelay: time.Millisecond}

	t.Run("Retries transient failures until success", func(t *testing.T) {
		// Given: an operation that fails twice with a dropped connection
		calls := 0
		fn := func() error {
			calls++
			if calls < 3 {
				return io.EOF
			}
			return nil
		}

		// When: running it under the policy
		err := policy.do(context.Background(), discardLogger(), "test", fn)

		// Then: the third attempt succeeds
		assert.NoError(t, err)
		assert.Equal(t, 3, calls)
	})

	t.Run("Gives up after the retry budget", func(t *testing.T) {
		// Given: an operation that always loses the optimistic race
		calls := 0
		fn := func() error {
			calls++
			return redis.TxFailedErr
		}

		// When: running it
		err := policy.do(context.Background(), discardLogger(), "test", fn)

		// Then: one attempt plus two retries, reported as a conflict
		assert.ErrorIs(t, err, apperror.ErrConflict)
		assert.Equal(t, 3, calls)
	})

	t.Run("Does not retry categorized errors", func(t *testing.T) {
		// Given: an operation failing with a domain error
		calls := 0
		fn := func() error {
			calls++
			return apperror.New(apperror.KindFull, "test", "room is full")
		}

		// When: running it
		err := policy.do(context.Background(), discardLogger(), "test", fn)

		// Then: it is returned untouched after one attempt
		assert.ErrorIs(t, err, apperror.ErrFull)
		assert.Equal(t, 1, calls)
	})

	t.Run("Does not retry permission failures", func(t *testing.T) {
		calls := 0
		fn := func() error {
			calls++
			return errors.New("NOPERM this user has no permissions")
		}

		err := policy.do(context.Background(), discardLogger(), "test", fn)

		assert.ErrorIs(t, err, apperror.ErrPermissionDenied)
		assert.Equal(t, 1, calls)
	})
}

func TestClassify(t *testing.T) {
	cases := []struct {
		name string
		err  error
		kind apperror.Kind
	}{
		{name: "Transaction aborted", err: redis.TxFailedErr, kind: apperror.KindConflict},
		{name: "Deadline", err: context.DeadlineExceeded, kind: apperror.KindTimeout},
		{name: "Network timeout", err: timeoutError{}, kind: apperror.KindTimeout},
		{name: "Connection refused", err: &net.OpError{Op: "dial", Net: "tcp", Err: errors.New("connection refused")}, kind: apperror.KindNetwork},
		{name: "Closed client", err: redis.ErrClosed, kind: apperror.KindNetwork},
		{name: "Server loading", err: errors.New("LOADING Redis is loading the dataset in memory"), kind: apperror.KindNetwork},
		{name: "Wrong password", err: errors.New("WRONGPASS invalid username-password pair"), kind: apperror.KindPermissionDenied},
		{name: "Anything else", err: errors.New("ERR unknown command"), kind: apperror.KindUnknown},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.kind, apperror.KindOf(classify("test", tc.err)))
		})
	}
}
