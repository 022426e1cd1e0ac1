package api

import "fmt"

// ValidationError represents input rejected before any network call, such as
// an endpoint outside the allow-list or an oversized payload.
type ValidationError struct {
	Field  string // The input that failed validation
	Reason string // Human-readable explanation of the rejection
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// RateLimitError represents a 429 response from the service. Callers may
// back off and retry at a higher level.
type RateLimitError struct {
	Endpoint string
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limit exceeded on %s", e.Endpoint)
}

// AuthError represents a credential rejected by the service even after a
// refresh and single retry.
type AuthError struct {
	Endpoint   string
	StatusCode int
	Err        error
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("authorization rejected on %s (HTTP %d)", e.Endpoint, e.StatusCode)
}

func (e *AuthError) Unwrap() error {
	return e.Err
}

// NetworkError represents transport-level failures: timeouts, connection
// resets, and anything else that prevented a response from arriving.
type NetworkError struct {
	Endpoint string
	Err      error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("request failed on %s: %v", e.Endpoint, e.Err)
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// APIError represents any other non-2xx response, carrying the status code
// and a truncated response body for diagnostics.
type APIError struct {
	Endpoint   string
	StatusCode int
	Body       string // Truncated response body
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error on %s (HTTP %d): %s", e.Endpoint, e.StatusCode, e.Body)
}

// ConfigurationError represents a fatal setup failure, such as being unable
// to create the download directory.
type ConfigurationError struct {
	Reason string
	Err    error
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration error: %s", e.Reason)
}

func (e *ConfigurationError) Unwrap() error {
	return e.Err
}
