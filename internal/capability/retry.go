package capability

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"google.golang.org/api/googleapi"
)

// Category is the error taxonomy shared by every capability provider.
type Category string

const (
	CategoryBadRequest      Category = "bad_request"
	CategoryUnauthorized    Category = "unauthorized"
	CategoryForbidden       Category = "forbidden"
	CategoryNotFound        Category = "not_found"
	CategoryPayloadTooLarge Category = "payload_too_large"
	CategoryRateLimit       Category = "rate_limit"
	CategoryServerError     Category = "server_error"
	CategoryTimeout         Category = "timeout"
	CategoryCanceled        Category = "canceled"
	CategoryNetworkError    Category = "network_error"
	CategoryQuotaExceeded   Category = "quota_exceeded"
	CategoryUnknown         Category = "unknown_api_error"
)

// Error is the classified, provider-agnostic error shape every capability
// returns instead of a bare error.
type Error struct {
	Original   error
	Category   Category
	StatusCode int
	Message    string
	Retryable  bool
}

func (e *Error) Error() string {
	return fmt.Sprintf("[%s] %s", e.Category, e.Message)
}

// RetryConfig bounds the exponential backoff applied to transient errors.
type RetryConfig struct {
	MaxAttempts     int
	InitialDelay    time.Duration
	MaxDelay        time.Duration
	BackoffMultiple float64
}

// DefaultRetryConfig mirrors the conservative defaults the reference
// provider ships with: three attempts, 1s initial delay, 8s cap.
var DefaultRetryConfig = RetryConfig{
	MaxAttempts:     3,
	InitialDelay:    1 * time.Second,
	MaxDelay:        8 * time.Second,
	BackoffMultiple: 2.0,
}

// Classify turns a raw provider error into the shared taxonomy.
func Classify(err error) *Error {
	if err == nil {
		return nil
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return &Error{Original: err, Category: CategoryTimeout, Message: "request timed out", Retryable: true}
	}
	if errors.Is(err, context.Canceled) {
		return &Error{Original: err, Category: CategoryCanceled, Message: "request canceled", Retryable: false}
	}

	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		return classifyStatusCode(err, apiErr.Code, apiErr.Message)
	}

	var httpErr *httpStatusError
	if errors.As(err, &httpErr) {
		return classifyStatusCode(err, httpErr.code, httpErr.body)
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "quota"):
		return &Error{Original: err, Category: CategoryQuotaExceeded, Message: err.Error(), Retryable: true}
	case strings.Contains(msg, "rate limit") || strings.Contains(msg, "429"):
		return &Error{Original: err, Category: CategoryRateLimit, Message: err.Error(), Retryable: true}
	case strings.Contains(msg, "timeout"):
		return &Error{Original: err, Category: CategoryTimeout, Message: err.Error(), Retryable: true}
	case strings.Contains(msg, "connection") || strings.Contains(msg, "network"):
		return &Error{Original: err, Category: CategoryNetworkError, Message: err.Error(), Retryable: true}
	default:
		return &Error{Original: err, Category: CategoryUnknown, Message: err.Error(), Retryable: true}
	}
}

func classifyStatusCode(err error, code int, message string) *Error {
	switch code {
	case http.StatusBadRequest:
		return &Error{Original: err, Category: CategoryBadRequest, StatusCode: code, Message: message, Retryable: false}
	case http.StatusUnauthorized:
		return &Error{Original: err, Category: CategoryUnauthorized, StatusCode: code, Message: message, Retryable: false}
	case http.StatusForbidden:
		return &Error{Original: err, Category: CategoryForbidden, StatusCode: code, Message: message, Retryable: false}
	case http.StatusNotFound:
		return &Error{Original: err, Category: CategoryNotFound, StatusCode: code, Message: message, Retryable: false}
	case http.StatusRequestEntityTooLarge:
		return &Error{Original: err, Category: CategoryPayloadTooLarge, StatusCode: code, Message: message, Retryable: false}
	case http.StatusTooManyRequests:
		return &Error{Original: err, Category: CategoryRateLimit, StatusCode: code, Message: message, Retryable: true}
	default:
		if code >= 500 && code <= 504 {
			return &Error{Original: err, Category: CategoryServerError, StatusCode: code, Message: message, Retryable: true}
		}
		return &Error{Original: err, Category: CategoryUnknown, StatusCode: code, Message: message, Retryable: code >= 500}
	}
}

// WithRetry runs fn up to cfg.MaxAttempts times, classifying each failure
// and stopping early on a non-retryable one. Backoff respects ctx
// cancellation during the sleep.
func WithRetry[T any](ctx context.Context, cfg RetryConfig, fn func(attempt int) (T, error)) (T, *Error) {
	var zero T
	var lastErr *Error

	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		result, err := fn(attempt)
		if err == nil {
			return result, nil
		}

		lastErr = Classify(err)
		if !lastErr.Retryable || attempt == cfg.MaxAttempts {
			return zero, lastErr
		}

		delay := calculateBackoff(attempt, cfg)
		if lastErr.Category == CategoryRateLimit {
			delay *= 2
		}

		select {
		case <-ctx.Done():
			return zero, Classify(ctx.Err())
		case <-time.After(delay):
		}
	}
	return zero, lastErr
}

func calculateBackoff(attempt int, cfg RetryConfig) time.Duration {
	delay := float64(cfg.InitialDelay) * pow(cfg.BackoffMultiple, float64(attempt-1))
	if time.Duration(delay) > cfg.MaxDelay {
		return cfg.MaxDelay
	}
	return time.Duration(delay)
}

func pow(base, exp float64) float64 {
	result := 1.0
	for i := 0; i < int(exp); i++ {
		result *= base
	}
	return result
}
