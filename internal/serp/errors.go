package serp

import (
	"errors"
	"fmt"
)

var (
	// ErrAuth is matched by every *AuthError.
	ErrAuth = errors.New("search provider rejected credentials")
	// ErrProvider is matched by every *ProviderError.
	ErrProvider = errors.New("search provider request failed")
	// ErrMissingAPIKey means no credential was configured.
	ErrMissingAPIKey = errors.New("SERP_API_KEY is not set")
)

// AuthError reports a missing or rejected credential.
type AuthError struct {
	Err error
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("serpapi auth: %v", e.Err)
}

func (e *AuthError) Unwrap() error { return e.Err }

func (e *AuthError) Is(target error) bool { return target == ErrAuth }

// ProviderError reports a failed search call. StatusCode is zero when no
// response arrived.
type ProviderError struct {
	StatusCode int
	Err        error
}

func (e *ProviderError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("serpapi: status %d: %v", e.StatusCode, e.Err)
	}
	return fmt.Sprintf("serpapi: %v", e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

func (e *ProviderError) Is(target error) bool { return target == ErrProvider }
