// Package reliability classifies failures so callers can log and count them
// by kind instead of by message.
package reliability

import (
	"context"
	"errors"
	"time"
)

type Kind string

const (
	KindUpstreamUnavailable Kind = "upstream_unavailable"
	KindRecognitionEmpty    Kind = "recognition_empty"
	KindSynthesisFailure    Kind = "synthesis_failure"
	KindMalformedFragment   Kind = "malformed_fragment"
	KindCancelled           Kind = "cancelled"
	KindUnknown             Kind = "unknown"
)

type kindError struct {
	kind Kind
	err  error
}

func (e *kindError) Error() string { return e.err.Error() }
func (e *kindError) Unwrap() error { return e.err }

// Mark tags err with kind. The result still matches err with errors.Is.
func Mark(kind Kind, err error) error {
	if err == nil {
		return nil
	}
	return &kindError{kind: kind, err: err}
}

// Classify returns the kind of the outermost marked error in err's chain.
// Context cancellation wins over any mark.
func Classify(err error) Kind {
	if err == nil {
		return ""
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return KindCancelled
	}
	var ke *kindError
	if errors.As(err, &ke) {
		return ke.kind
	}
	return KindUnknown
}

// IsRetryableHTTPStatus classifies retryable HTTP status codes.
func IsRetryableHTTPStatus(code int) bool {
	switch code {
	case 429, 500, 502, 503, 504:
		return true
	default:
		return false
	}
}

// ExponentialBackoff computes a deterministic capped backoff duration.
func ExponentialBackoff(attempt int, base, cap time.Duration) time.Duration {
	if attempt <= 0 {
		return base
	}
	d := base
	for i := 0; i < attempt; i++ {
		d *= 2
		if d >= cap {
			return cap
		}
	}
	return d
}
