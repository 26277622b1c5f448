package conversation

import (
	"errors"
	"fmt"
)

// Code classifies a user-facing outcome.
type Code string

const (
	CodeNotATikTokURL       Code = "NOT_A_TIKTOK_URL"
	CodeResolutionDegraded  Code = "RESOLUTION_DEGRADED"
	CodeDuplicateVideo      Code = "DUPLICATE_VIDEO"
	CodeInvalidAmountFormat Code = "INVALID_AMOUNT_FORMAT"
	CodeSessionInProgress   Code = "SESSION_IN_PROGRESS"
	CodeSessionExpired      Code = "SESSION_EXPIRED"
	CodeSessionCancelled    Code = "SESSION_CANCELLED"
	CodeStoreConflict       Code = "STORE_CONFLICT"
	CodeStoreUnavailable    Code = "STORE_UNAVAILABLE"
)

// Error is an outcome reported to the user. None of them stop the engine.
type Error struct {
	Code   Code
	Reason string
	Err    error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Reason, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Reason)
}

func (e *Error) Unwrap() error { return e.Err }

func newError(code Code, reason string, err error) *Error {
	return &Error{Code: code, Reason: reason, Err: err}
}

// CodeOf returns the code of the first *Error in err's chain, or "".
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}
