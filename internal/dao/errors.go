package dao

import (
	"errors"
	"fmt"
)

// Code categorizes why an engine call was rejected.
type Code string

const (
	// CodeNotFound indicates an unknown organization, issue, applicant or member.
	CodeNotFound Code = "NOT_FOUND"

	// CodeUnauthorized indicates the caller may not perform the call.
	CodeUnauthorized Code = "UNAUTHORIZED"

	// CodeInvalidStateTransition indicates the issue or applicant is in a
	// state that does not permit the call.
	CodeInvalidStateTransition Code = "INVALID_STATE_TRANSITION"

	// CodeInsufficientFunds indicates a balance cannot cover a deposit or payout.
	CodeInsufficientFunds Code = "INSUFFICIENT_FUNDS"

	// CodeAlreadyExists indicates a duplicate council member.
	CodeAlreadyExists Code = "ALREADY_EXISTS"

	// CodeInvalidArgument indicates malformed input.
	CodeInvalidArgument Code = "INVALID_ARGUMENT"
)

// Error is a rejected engine call. A rejected call leaves no state behind.
type Error struct {
	// Code identifies the error category.
	Code Code

	// Op is the engine operation that failed, e.g. "approveIssue".
	Op string

	// Message is a human-readable description.
	Message string

	// Err is an underlying cause, if any.
	Err error
}

// Sentinels for errors.Is. They match any *Error with the same Code.
var (
	ErrNotFound               = &Error{Code: CodeNotFound}
	ErrUnauthorized           = &Error{Code: CodeUnauthorized}
	ErrInvalidStateTransition = &Error{Code: CodeInvalidStateTransition}
	ErrInsufficientFunds      = &Error{Code: CodeInsufficientFunds}
	ErrAlreadyExists          = &Error{Code: CodeAlreadyExists}
	ErrInvalidArgument        = &Error{Code: CodeInvalidArgument}
)

func (e *Error) Error() string {
	switch {
	case e.Op != "" && e.Message != "":
		return fmt.Sprintf("%s: %s: %s", e.Op, e.Code, e.Message)
	case e.Message != "":
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	default:
		return string(e.Code)
	}
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches a bare sentinel (no Op, no Message) with the same Code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Op == "" && t.Message == "" && t.Code == e.Code
}

// CodeOf returns the Code of the first *Error in err's chain, or "" when err
// is not an engine rejection.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

func newError(op string, code Code, format string, args ...any) *Error {
	return &Error{Code: code, Op: op, Message: fmt.Sprintf(format, args...)}
}
