package auth

import (
	"errors"

	"github.com/teemow/mailsense/internal/session"
)

// ErrTimeout is recorded when a flow outlives its deadline.
var ErrTimeout = errors.New("timed out")

// ErrDenied is used for negative completion signals without a reason.
var ErrDenied = errors.New("authorization denied")

// Error is a classified flow failure.
type Error struct {
	Kind session.ErrorKind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	return e.Op + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error {
	return e.Err
}

func externalErr(op string, err error) *Error {
	return &Error{Kind: session.ErrorKindExternal, Op: op, Err: err}
}

// KindOf returns the kind of err, or ErrorKindNone when err is not a
// classified flow failure.
func KindOf(err error) session.ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	if errors.Is(err, ErrTimeout) {
		return session.ErrorKindTimeout
	}
	return session.ErrorKindNone
}
