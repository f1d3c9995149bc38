package domain

import (
	"context"
	"errors"
	"fmt"
	"net"
)

var (
	ErrNotFound     = errors.New("not found")
	ErrUnauthorized = errors.New("unauthorized")
	ErrLockHeld     = errors.New("lock already held")

	// Per-(source, symbol) fetch failures. None of these propagate past the
	// price collector.
	ErrNetwork           = errors.New("network error")
	ErrTimeout           = errors.New("timeout")
	ErrRateLimited       = errors.New("rate limited")
	ErrUnsupportedSymbol = errors.New("unsupported symbol")
	ErrMalformedResponse = errors.New("malformed response")
)

// FailureKind classifies a failed fetch.
type FailureKind string

const (
	FailureNetwork           FailureKind = "network_error"
	FailureTimeout           FailureKind = "timeout"
	FailureRateLimited       FailureKind = "rate_limited"
	FailureUnsupportedSymbol FailureKind = "unsupported_symbol"
	FailureMalformedResponse FailureKind = "malformed_response"
)

// FetchError is returned by source adapters. Err is one of the fetch sentinel
// errors above so callers can match with errors.Is.
type FetchError struct {
	Source string
	Symbol Symbol
	Err    error
	Detail string
}

func (e *FetchError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("%s %s: %v", e.Source, e.Symbol, e.Err)
	}
	return fmt.Sprintf("%s %s: %v: %s", e.Source, e.Symbol, e.Err, e.Detail)
}

func (e *FetchError) Unwrap() error { return e.Err }

// KindOf maps any fetch error to its FailureKind. Unknown errors count as
// network errors.
func KindOf(err error) FailureKind {
	switch {
	case errors.Is(err, ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return FailureTimeout
	case errors.Is(err, ErrRateLimited):
		return FailureRateLimited
	case errors.Is(err, ErrUnsupportedSymbol):
		return FailureUnsupportedSymbol
	case errors.Is(err, ErrMalformedResponse):
		return FailureMalformedResponse
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return FailureTimeout
	}
	return FailureNetwork
}
