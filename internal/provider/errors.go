package provider

import (
	"errors"
	"fmt"
)

// Category defines the normalized failure taxonomy for provider fetches.
type Category string

const (
	// CategoryNotFound indicates the document does not exist at the provider.
	CategoryNotFound Category = "not_found"

	// CategoryUnauthorized indicates credential or permission issues.
	CategoryUnauthorized Category = "unauthorized"

	// CategoryRateLimited indicates too many requests. Never retried here;
	// the caller decides how to back off.
	CategoryRateLimited Category = "rate_limited"

	// CategoryTransient indicates timeouts, 5xx responses and other
	// transport failures that are worth retrying.
	CategoryTransient Category = "transient"

	// CategoryConfig indicates the client itself is misconfigured.
	CategoryConfig Category = "config"

	// CategorySecurity indicates a disallowed URL. Always logged as a
	// potential attack signal, never silently downgraded.
	CategorySecurity Category = "security"
)

// Error wraps provider failures with normalized categorization.
type Error struct {
	Category   Category
	Provider   string
	Message    string
	Underlying error
	Retryable  bool
}

func (e *Error) Error() string {
	if e.Underlying != nil {
		return fmt.Sprintf("provider %s [%s]: %s: %v", e.Provider, e.Category, e.Message, e.Underlying)
	}
	return fmt.Sprintf("provider %s [%s]: %s", e.Provider, e.Category, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Underlying
}

// NewError creates a normalized provider error. Only transient failures are
// retryable; 4xx-class refusals and security rejections never are.
func NewError(category Category, providerName, message string, underlying error) *Error {
	return &Error{
		Category:   category,
		Provider:   providerName,
		Message:    message,
		Underlying: underlying,
		Retryable:  category == CategoryTransient,
	}
}

// IsRetryable checks if an error is worth retrying.
func IsRetryable(err error) bool {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Retryable
	}
	return false
}

// CategoryOf extracts the error category from an error chain.
func CategoryOf(err error) Category {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Category
	}
	return CategoryTransient
}
