package trades

import (
	"errors"
	"fmt"
)

var (
	// ErrTradeNotFound is returned when the requested trade does not exist
	ErrTradeNotFound = errors.New("trade not found")
	// ErrStaleState means the conditional status write matched no row
	ErrStaleState = errors.New("trade state changed concurrently")
	// ErrMissingTradeID rejects requests without a trade id
	ErrMissingTradeID = errors.New("tradeId is required")
	// ErrMissingNextState rejects execute requests without a target
	ErrMissingNextState = errors.New("nextState is required")
)

// RequestError marks a malformed request (HTTP 400)
type RequestError struct {
	Code string
	Err  error
}

func (e *RequestError) Error() string { return e.Err.Error() }

func (e *RequestError) Unwrap() error { return e.Err }

func badRequest(code string, format string, args ...interface{}) *RequestError {
	return &RequestError{Code: code, Err: fmt.Errorf(format, args...)}
}

// KernelError is an internal fault raised while executing an allowed transition.
// The attempt has already been audited under Code when it reaches the caller.
type KernelError struct {
	Code   string
	Result *TransitionResult
	Err    error
}

func (e *KernelError) Error() string {
	return fmt.Sprintf("%s: %v", e.Code, e.Err)
}

func (e *KernelError) Unwrap() error { return e.Err }
