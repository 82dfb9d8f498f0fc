// Package apperr holds the coded errors shared by every analysis component.
package apperr

import (
	"errors"
	"fmt"
)

// Code identifies a class of failure. Callers branch on codes, never on messages.
type Code string

const (
	CodeInvalidRepositoryRef Code = "INVALID_REPOSITORY_REF"
	CodeNotFound             Code = "NOT_FOUND"
	CodeAccessDenied         Code = "ACCESS_DENIED"
	CodeGatewayExhausted     Code = "GATEWAY_EXHAUSTED"
	CodeDependencyNotReady   Code = "DEPENDENCY_NOT_READY"
	CodeDependencyFailed     Code = "DEPENDENCY_FAILED"
	CodeContentUnavailable   Code = "CONTENT_UNAVAILABLE"
	CodeQuotaExceeded        Code = "QUOTA_EXCEEDED"
	CodeTaskRunning          Code = "TASK_RUNNING"
	CodeSessionClosed        Code = "SESSION_CLOSED"
	CodeInvalidArgument      Code = "INVALID_ARGUMENT"
	CodeInternal             Code = "INTERNAL_ERROR"
)

// Error is an application error carrying a Code.
type Error struct {
	Code    Code
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (%v)", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports a match when target is an *Error with the same code, so the
// sentinels below work with errors.Is regardless of message.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// Sentinels for errors.Is.
var (
	ErrInvalidRepositoryRef = &Error{Code: CodeInvalidRepositoryRef, Message: "invalid repository reference"}
	ErrNotFound             = &Error{Code: CodeNotFound, Message: "not found"}
	ErrAccessDenied         = &Error{Code: CodeAccessDenied, Message: "access denied"}
	ErrGatewayExhausted     = &Error{Code: CodeGatewayExhausted, Message: "generation gateway exhausted"}
	ErrDependencyNotReady   = &Error{Code: CodeDependencyNotReady, Message: "dependency not ready"}
	ErrDependencyFailed     = &Error{Code: CodeDependencyFailed, Message: "dependency failed"}
	ErrContentUnavailable   = &Error{Code: CodeContentUnavailable, Message: "content unavailable"}
	ErrQuotaExceeded        = &Error{Code: CodeQuotaExceeded, Message: "quota exceeded"}
	ErrTaskRunning          = &Error{Code: CodeTaskRunning, Message: "task is running"}
	ErrSessionClosed        = &Error{Code: CodeSessionClosed, Message: "session closed"}
	ErrInvalidArgument      = &Error{Code: CodeInvalidArgument, Message: "invalid argument"}
)

func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

func Newf(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

func Wrap(code Code, message string, err error) *Error {
	return &Error{Code: code, Message: message, Err: err}
}

// CodeOf returns the code of the first *Error in err's chain, or CodeInternal.
func CodeOf(err error) Code {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return CodeInternal
}

func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

func IsContentUnavailable(err error) bool {
	return errors.Is(err, ErrContentUnavailable)
}
