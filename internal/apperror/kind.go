package apperror

import (
	"errors"
	"fmt"
)

// Kind - stable machine-readable error category.
type Kind string

const (
	KindInvalidInput     Kind = "invalid_input"
	KindNotFound         Kind = "not_found"
	KindConflict         Kind = "conflict"
	KindFull             Kind = "full"
	KindAlreadyFinished  Kind = "already_finished"
	KindPermissionDenied Kind = "permission_denied"
	KindNetwork          Kind = "network"
	KindTimeout          Kind = "timeout"
	KindCorruptData      Kind = "corrupt_data"
	KindUnknown          Kind = "unknown"
)

// Sentinels matched by errors.Is against any *Error of the same kind.
var (
	ErrInvalidInput     = errors.New("invalid input")
	ErrNotFound         = errors.New("room not found")
	ErrConflict         = errors.New("room state changed, please resync")
	ErrFull             = errors.New("room is full")
	ErrAlreadyFinished  = errors.New("room is already finished")
	ErrPermissionDenied = errors.New("permission denied")
	ErrNetwork          = errors.New("network error")
	ErrTimeout          = errors.New("operation timed out")
	ErrCorruptData      = errors.New("corrupt room data")
	ErrUnknown          = errors.New("unknown error")
)

var sentinels = map[Kind]error{
	KindInvalidInput:     ErrInvalidInput,
	KindNotFound:         ErrNotFound,
	KindConflict:         ErrConflict,
	KindFull:             ErrFull,
	KindAlreadyFinished:  ErrAlreadyFinished,
	KindPermissionDenied: ErrPermissionDenied,
	KindNetwork:          ErrNetwork,
	KindTimeout:          ErrTimeout,
	KindCorruptData:      ErrCorruptData,
	KindUnknown:          ErrUnknown,
}

// Error - a categorized failure of a room operation.
type Error struct {
	Kind    Kind
	Op      string
	Message string
	Err     error
}

// New - builds an *Error without an underlying cause.
func New(kind Kind, op, message string) *Error {
	return &Error{Kind: kind, Op: op, Message: message}
}

// Wrap - builds an *Error around cause.
func Wrap(kind Kind, op string, cause error) *Error {
	return &Error{Kind: kind, Op: op, Err: cause}
}

func (that *Error) Error() string {
	msg := that.Message
	if msg == "" {
		msg = sentinels[that.Kind].Error()
	}

	if that.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, that.Err)
	}

	if that.Op == "" {
		return msg
	}

	return that.Op + ": " + msg
}

func (that *Error) Unwrap() error {
	return that.Err
}

func (that *Error) Is(target error) bool {
	sentinel, ok := sentinels[that.Kind]
	return ok && sentinel == target
}

// KindOf - returns the kind of the first *Error in the chain, or KindUnknown.
func KindOf(err error) Kind {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Kind
	}

	return KindUnknown
}

// IsTransient - reports whether the kind is worth retrying.
func (that Kind) IsTransient() bool {
	return that == KindNetwork || that == KindTimeout
}
