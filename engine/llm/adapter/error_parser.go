package llmadapter

import (
	"context"
	"errors"
	"strings"
)

// Transient provider failure patterns worth retrying.
var retryablePatterns = []string{
	"429",
	"500",
	"502",
	"503",
	"504",
	"rate limit",
	"rate-limit",
	"too many requests",
	"quota exceeded",
	"throttl",
	"timeout",
	"timed out",
	"connection refused",
	"connection reset",
	"temporarily unavailable",
	"overloaded",
	"eof",
}

// IsRetryable reports whether the error looks like a transient provider
// failure. Context cancellation is never retryable.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, pattern := range retryablePatterns {
		if strings.Contains(msg, pattern) {
			return true
		}
	}
	return false
}
