package relay

import (
	"fmt"
	"strings"
)

// ValidationError rejects an alert request before anything is sent.
type ValidationError struct {
	Missing []string
}

func (e *ValidationError) Error() string {
	return "missing required fields: " + strings.Join(e.Missing, ", ")
}

// ProviderError wraps a failed hand-off to the messaging provider.
type ProviderError struct {
	StatusCode int
	Code       int
	Message    string
	Err        error
}

func (e *ProviderError) Error() string {
	switch {
	case e.Err != nil:
		return fmt.Sprintf("messaging provider: %v", e.Err)
	case e.Code != 0:
		return fmt.Sprintf("messaging provider: status %d code %d: %s", e.StatusCode, e.Code, e.Message)
	default:
		return fmt.Sprintf("messaging provider: status %d: %s", e.StatusCode, e.Message)
	}
}

func (e *ProviderError) Unwrap() error { return e.Err }

// Details is the human-readable reason reported to the caller.
func (e *ProviderError) Details() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return fmt.Sprintf("provider returned status %d", e.StatusCode)
}
