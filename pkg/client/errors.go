package client

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// Common errors returned by the client.
var (
	// ErrRetryExhausted is returned when all retry attempts are exhausted.
	ErrRetryExhausted = errors.New("retry attempts exhausted")

	// ErrContextCancelled is returned when the context is cancelled during a fetch or retry wait.
	ErrContextCancelled = errors.New("context cancelled")
)

// ErrorClass represents a classification of fetch errors.
type ErrorClass string

const (
	// ErrorClassNetwork represents transport-level errors (DNS, connection reset, broken body).
	ErrorClassNetwork ErrorClass = "network"

	// ErrorClassTimeout represents a request that exceeded its per-attempt timeout.
	ErrorClassTimeout ErrorClass = "timeout"

	// ErrorClassServer represents 5xx server errors.
	ErrorClassServer ErrorClass = "server"

	// ErrorClassMalformed represents a 200 response whose body is not a JSON object.
	ErrorClassMalformed ErrorClass = "malformed"

	// ErrorClassNotFound represents 404 responses.
	ErrorClassNotFound ErrorClass = "not_found"

	// ErrorClassClient represents 4xx client errors other than 404, and
	// non-200 answers below 400.
	ErrorClassClient ErrorClass = "client"
)

// FetchError is a classified failure of a single fetch attempt.
type FetchError struct {
	StatusCode int
	ErrorClass ErrorClass
	Message    string
	Err        error
}

// Error implements the error interface.
func (e *FetchError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s error (status %d): %s: %v",
			e.ErrorClass, e.StatusCode, e.Message, e.Err)
	}
	return fmt.Sprintf("%s error (status %d): %s",
		e.ErrorClass, e.StatusCode, e.Message)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *FetchError) Unwrap() error {
	return e.Err
}

// ClassOf returns the error class carried by err, or "" when err is not a FetchError.
func ClassOf(err error) ErrorClass {
	var fe *FetchError
	if errors.As(err, &fe) {
		return fe.ErrorClass
	}
	return ""
}

// shouldRetry determines if an error should be retried based on its classification.
func shouldRetry(errorClass ErrorClass) bool {
	switch errorClass {
	case ErrorClassNetwork, ErrorClassTimeout, ErrorClassServer, ErrorClassMalformed:
		return true
	default:
		// 404 and other 4xx are terminal; unclassified errors (cancellation) too.
		return false
	}
}

// classifyStatus maps a non-200 HTTP status onto an error class.
// Other 2xx and 3xx answers carry no product and are terminal like 4xx.
func classifyStatus(status int) ErrorClass {
	switch {
	case status == 404:
		return ErrorClassNotFound
	case status >= 500:
		return ErrorClassServer
	default:
		return ErrorClassClient
	}
}

// classifyTransport distinguishes timeouts from other transport failures.
func classifyTransport(err error) ErrorClass {
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrorClassTimeout
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return ErrorClassTimeout
	}
	return ErrorClassNetwork
}
