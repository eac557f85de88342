package llm

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// ErrorClass is the coarse category of a provider failure.
type ErrorClass int

const (
	// ClassUnknown covers failures that carry no status and are not timeouts.
	ClassUnknown ErrorClass = iota
	// ClassClient is a 4xx response: the request itself was rejected.
	ClassClient
	// ClassServer is a 5xx response: the service failed transiently.
	ClassServer
	// ClassTimeout means the attempt ran past its deadline.
	ClassTimeout
)

// String returns the class name.
func (c ErrorClass) String() string {
	switch c {
	case ClassClient:
		return "client"
	case ClassServer:
		return "server"
	case ClassTimeout:
		return "timeout"
	default:
		return "unknown"
	}
}

// ProviderError is returned by every adapter when a completion call fails.
// StatusCode is zero when the failure had no HTTP status.
type ProviderError struct {
	Provider   string
	Class      ErrorClass
	StatusCode int
	Err        error
}

func (e *ProviderError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: %s error (status %d): %v", e.Provider, e.Class, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s: %s error: %v", e.Provider, e.Class, e.Err)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// Retryable reports whether another attempt may succeed.
func (e *ProviderError) Retryable() bool {
	return e.Class == ClassServer || e.Class == ClassTimeout
}

// ClassifyStatus maps an HTTP status code to an ErrorClass.
func ClassifyStatus(code int) ErrorClass {
	switch {
	case code >= 400 && code < 500:
		return ClassClient
	case code >= 500 && code < 600:
		return ClassServer
	default:
		return ClassUnknown
	}
}

// statusFunc extracts an HTTP status from an SDK-specific error.
type statusFunc func(error) (int, bool)

// newProviderError classifies err using the adapter's status extractor.
// Deadline and network timeouts win over any status.
func newProviderError(provider string, err error, status statusFunc) *ProviderError {
	pe := &ProviderError{Provider: provider, Err: err}

	if isTimeout(err) {
		pe.Class = ClassTimeout
		return pe
	}
	if code, ok := status(err); ok {
		pe.StatusCode = code
		pe.Class = ClassifyStatus(code)
	}
	return pe
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
