package usecase

import (
	"errors"
	"fmt"
	"net/http"
)

type ErrorCode string

const (
	ErrorClassificationParse ErrorCode = "CLASSIFICATION_PARSE"
	ErrorGeneration          ErrorCode = "GENERATION"
	ErrorTimeout             ErrorCode = "TIMEOUT"
	ErrorPlatformAPI         ErrorCode = "PLATFORM_API"
	ErrorContextFetch        ErrorCode = "CONTEXT_FETCH"
	ErrorInternal            ErrorCode = "INTERNAL_ERROR"
)

type Error struct {
	Code   ErrorCode
	Reason string
	Err    error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Err == nil {
		return fmt.Sprintf("usecase: %s (%s)", e.Code, e.Reason)
	}
	return fmt.Sprintf("usecase: %s (%s): %v", e.Code, e.Reason, e.Err)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

func newError(code ErrorCode, reason string, err error) *Error {
	return &Error{Code: code, Reason: reason, Err: err}
}

type httpStatusCoder interface {
	HTTPStatusCode() int
}

type timeoutError interface {
	Timeout() bool
}

// llmError classifies a gateway failure. reason names the step that called
// the gateway, e.g. "classify_action" or "generate_reply".
func llmError(reason string, err error) *Error {
	var te timeoutError
	if errors.As(err, &te) && te.Timeout() {
		return newError(ErrorTimeout, reason+"_timeout", err)
	}
	if status, ok := upstreamStatusCode(err); ok && status == http.StatusTooManyRequests {
		return newError(ErrorGeneration, reason+"_rate_limited", err)
	}
	return newError(ErrorGeneration, reason, err)
}

func upstreamStatusCode(err error) (int, bool) {
	var statusErr httpStatusCoder
	if !errors.As(err, &statusErr) {
		return 0, false
	}
	return statusErr.HTTPStatusCode(), true
}
