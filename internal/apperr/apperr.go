// Package apperr defines the structured errors surfaced to API callers.
//
// Every error that reaches a handler either is, or wraps, an *Error carrying
// a stable machine-readable code. Anything else is reported as INTERNAL.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Error codes.
const (
	CodeContestNotFound     = "CONTEST_NOT_FOUND"
	CodeJobNotFound         = "PAYOUT_JOB_NOT_FOUND"
	CodeTransferNotFound    = "PAYOUT_TRANSFER_NOT_FOUND"
	CodeSettlementNotFound  = "SETTLEMENT_NOT_FOUND"
	CodeTerminalState       = "TERMINAL_STATE"
	CodeInvalidStatus       = "INVALID_STATUS"
	CodeInvalidTargetStatus = "INVALID_TARGET_STATUS"
	CodeInvalidTimes        = "INVALID_TIMES"
	CodeValidation          = "VALIDATION_ERROR"
	CodeSettlementDiverged  = "SETTLEMENT_DIVERGED"
	CodePayoutConflict      = "PAYOUT_CONFLICT"
	CodeUnauthorized        = "UNAUTHORIZED"
	CodeForbidden           = "FORBIDDEN"
	CodeRateLimited         = "RATE_LIMITED"
	CodeInternal            = "INTERNAL"
)

// Kind groups codes into the categories callers branch on.
type Kind int

const (
	KindInternal Kind = iota
	KindNotFound
	KindInvalidTransition
	KindValidation
	KindConflict
)

type Error struct {
	Kind    Kind
	Code    string
	Message string
	// Details is rendered alongside the error body when set.
	Details map[string]any
}

func (e *Error) Error() string {
	if e.Message == "" {
		return e.Code
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Is matches on Kind and Code so errors.Is works against the sentinels below.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Code != "" && t.Code != e.Code {
		return false
	}
	return t.Kind == e.Kind
}

// HTTPStatus maps the kind onto a response status.
func (e *Error) HTTPStatus() int {
	switch e.Kind {
	case KindNotFound:
		return http.StatusNotFound
	case KindInvalidTransition, KindConflict:
		return http.StatusConflict
	case KindValidation:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// Sentinels for errors.Is. They match any error of the same kind.
var (
	ErrNotFound          = &Error{Kind: KindNotFound}
	ErrInvalidTransition = &Error{Kind: KindInvalidTransition}
	ErrValidation        = &Error{Kind: KindValidation}
	ErrConflict          = &Error{Kind: KindConflict}
)

func NotFound(code, format string, args ...any) *Error {
	return &Error{Kind: KindNotFound, Code: code, Message: fmt.Sprintf(format, args...)}
}

func InvalidTransition(code, format string, args ...any) *Error {
	return &Error{Kind: KindInvalidTransition, Code: code, Message: fmt.Sprintf(format, args...)}
}

func Validation(format string, args ...any) *Error {
	return &Error{Kind: KindValidation, Code: CodeValidation, Message: fmt.Sprintf(format, args...)}
}

func Conflict(code, format string, args ...any) *Error {
	return &Error{Kind: KindConflict, Code: code, Message: fmt.Sprintf(format, args...)}
}

// As extracts the *Error from err, falling back to an INTERNAL error.
func As(err error) *Error {
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return &Error{Kind: KindInternal, Code: CodeInternal, Message: "internal error"}
}
