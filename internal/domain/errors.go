package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrUnauthorized signals that no authenticated user is attached to the call.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrCredentialNotFound is returned by stores when no credential exists for the pair.
	ErrCredentialNotFound = errors.New("credential not found")
	// ErrProviderNotConnected signals a missing credential required by an operation.
	ErrProviderNotConnected = errors.New("provider not connected")
	// ErrInvalidRequest indicates caller input validation errors.
	ErrInvalidRequest = errors.New("invalid request")
	// ErrUpstream matches every UpstreamError.
	ErrUpstream = errors.New("upstream provider error")
	// ErrProjectIncomplete is the InvalidRequest raised for a project without a name or files.
	ErrProjectIncomplete = fmt.Errorf("%w: project name and files required", ErrInvalidRequest)
)

// UpstreamError carries a non-success response from GitHub or Vercel.
// Message is the provider's own message, surfaced verbatim.
type UpstreamError struct {
	Provider  Provider
	Operation string
	Status    int
	Message   string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("%s %s: status=%d: %s", e.Provider, e.Operation, e.Status, e.Message)
}

// Is lets errors.Is(err, ErrUpstream) match any UpstreamError.
func (e *UpstreamError) Is(target error) bool {
	return target == ErrUpstream
}

// NotConnectedError names the provider whose credential is missing.
type NotConnectedError struct {
	Provider Provider
}

func (e *NotConnectedError) Error() string {
	return fmt.Sprintf("%s: %s", ErrProviderNotConnected, e.Provider)
}

func (e *NotConnectedError) Unwrap() error {
	return ErrProviderNotConnected
}
