package upload

import (
	"errors"
	"fmt"
)

var (
	// ErrNetwork matches *NetworkError: no HTTP response was received.
	ErrNetwork = errors.New("network error")
	// ErrAPI matches *APIError: the server answered outside 2xx.
	ErrAPI = errors.New("api error")
)

type NetworkError struct {
	Err error
}

func (e *NetworkError) Error() string { return fmt.Sprintf("network error: %v", e.Err) }

func (e *NetworkError) Unwrap() error { return e.Err }

func (e *NetworkError) Is(target error) bool { return target == ErrNetwork }

// APIError carries the server's status and raw body for diagnosis.
type APIError struct {
	StatusCode int
	StatusText string
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: %d %s", e.StatusCode, e.StatusText)
}

func (e *APIError) Is(target error) bool { return target == ErrAPI }
