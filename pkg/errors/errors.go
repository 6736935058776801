package errors

import (
	"fmt"

	"github.com/jafarshop/sellerhub/internal/domain"
)

// ErrNotFound is returned when a resource is not found
type ErrNotFound struct {
	Resource string
	ID       string
}

func (e *ErrNotFound) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Resource, e.ID)
}

// ErrUnauthorized is returned when authentication fails
type ErrUnauthorized struct {
	Message string
}

func (e *ErrUnauthorized) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return "unauthorized"
}

// ErrForbidden is returned when a tenant touches a resource it does not own
type ErrForbidden struct {
	Message string
}

func (e *ErrForbidden) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return "access denied"
}

// ErrValidation is returned when validation fails
type ErrValidation struct {
	Message string
	Fields  map[string]string
}

func (e *ErrValidation) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return "validation failed"
}

// ErrInvalidArgument is returned by pure computations given out-of-range input
type ErrInvalidArgument struct {
	Argument string
	Message  string
}

func (e *ErrInvalidArgument) Error() string {
	if e.Argument == "" {
		return "invalid argument: " + e.Message
	}
	return fmt.Sprintf("invalid argument %s: %s", e.Argument, e.Message)
}

// ErrProvider is returned when a marketplace API rejects a request.
// Message is already scrubbed of credentials and safe to relay.
type ErrProvider struct {
	Platform   domain.Platform
	Op         string
	Code       string
	Message    string
	StatusCode int
}

func (e *ErrProvider) Error() string {
	msg := e.Message
	if msg == "" {
		msg = "request rejected"
	}
	if e.Code != "" {
		msg = e.Code + ": " + msg
	}
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s %s failed (status %d): %s", e.Platform, e.Op, e.StatusCode, msg)
	}
	return fmt.Sprintf("%s %s failed: %s", e.Platform, e.Op, msg)
}

// ErrTransport is returned when a marketplace API could not be reached
type ErrTransport struct {
	Platform domain.Platform
	Op       string
	Err      error
}

func (e *ErrTransport) Error() string {
	return fmt.Sprintf("%s %s: transport failure: %v", e.Platform, e.Op, e.Err)
}

func (e *ErrTransport) Unwrap() error {
	return e.Err
}

// ErrInvalidState is returned when an OAuth callback carries a missing, unknown,
// expired or already consumed state token
type ErrInvalidState struct {
	Reason string
}

func (e *ErrInvalidState) Error() string {
	if e.Reason != "" {
		return "invalid oauth state: " + e.Reason
	}
	return "invalid oauth state"
}

// ErrReauthorizationRequired is returned when a shop has no usable token
type ErrReauthorizationRequired struct {
	Platform domain.Platform
	ShopID   string
}

func (e *ErrReauthorizationRequired) Error() string {
	return fmt.Sprintf("%s shop %s requires reauthorization", e.Platform, e.ShopID)
}

// ErrPlatformDisabled is returned when a platform has no credentials configured
type ErrPlatformDisabled struct {
	Platform string
}

func (e *ErrPlatformDisabled) Error() string {
	return fmt.Sprintf("platform %s is not enabled", e.Platform)
}

// ErrInvalidStateTransition is returned when an invalid order status change is requested
type ErrInvalidStateTransition struct {
	From domain.OrderStatus
	To   domain.OrderStatus
}

func (e *ErrInvalidStateTransition) Error() string {
	return fmt.Sprintf("invalid state transition from %s to %s", e.From, e.To)
}
