package orchestration

import (
	"context"
	"errors"

	"github.com/richinex/kotoba/gateway"
)

// Category is the caller-facing class of a failure. Full causes stay in
// operator logs.
type Category string

const (
	CategoryOK                  Category = "ok"
	CategoryInvalidInput        Category = "invalid_input"
	CategoryBatchTooLarge       Category = "batch_too_large"
	CategoryUpstreamClient      Category = "upstream_client_error"
	CategoryUpstreamUnavailable Category = "upstream_unavailable"
	CategoryCancelled           Category = "cancelled"
	CategoryInternal            Category = "internal"
)

// Classify maps an error from Translate or Batch onto a Category.
func Classify(err error) Category {
	switch {
	case err == nil:
		return CategoryOK
	case errors.Is(err, ErrInvalidInput):
		return CategoryInvalidInput
	case errors.Is(err, ErrBatchTooLarge):
		return CategoryBatchTooLarge
	case errors.Is(err, gateway.ErrUpstreamClient):
		return CategoryUpstreamClient
	case errors.Is(err, gateway.ErrUpstreamUnavailable):
		return CategoryUpstreamUnavailable
	case errors.Is(err, context.Canceled):
		return CategoryCancelled
	default:
		return CategoryInternal
	}
}

// Message returns the terse text shown to callers.
func (c Category) Message() string {
	switch c {
	case CategoryOK:
		return ""
	case CategoryInvalidInput:
		return "invalid message"
	case CategoryBatchTooLarge:
		return "too many items in batch"
	case CategoryUpstreamClient:
		return "translation request rejected"
	case CategoryUpstreamUnavailable:
		return "translation service unavailable"
	case CategoryCancelled:
		return "request cancelled"
	default:
		return "internal server error"
	}
}
